// Package auth provides bearer tokens for the document store and the
// language-model provider.
package auth

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"github.com/resqmeals/gateway/core/fault"
)

// DefaultSkew is the minimum remaining lifetime for a cached token to be reused.
const DefaultSkew = 60 * time.Second

// Source fetches a fresh token.
type Source interface {
	FetchToken(ctx context.Context) (*oauth2.Token, error)
}

// Provider hands out bearer tokens and refreshes them on demand.
type Provider interface {
	// Token returns a cached token or fetches a new one.
	Token(ctx context.Context) (string, error)
	// Refresh replaces the rejected token. When another caller already
	// replaced it, the newer cached token is returned without a fetch.
	Refresh(ctx context.Context, rejected string) (string, error)
}

// CachedProvider caches a single token. One mutex guards the
// check-and-refresh so concurrent callers never race two fetches.
type CachedProvider struct {
	src   Source
	skew  time.Duration
	now   func() time.Time
	mu    sync.Mutex
	token *oauth2.Token
}

// NewCachedProvider wraps src. A non-positive skew uses DefaultSkew.
func NewCachedProvider(src Source, skew time.Duration) *CachedProvider {
	if skew <= 0 {
		skew = DefaultSkew
	}
	return &CachedProvider{src: src, skew: skew, now: time.Now}
}

// Token retrieves a valid access token. The cached token is reused while
// more than the skew remains before its expiry.
func (c *CachedProvider) Token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fresh() {
		return c.token.AccessToken, nil
	}
	return c.fetch(ctx)
}

// Refresh forces a new token unless the cached one differs from rejected.
func (c *CachedProvider) Refresh(ctx context.Context, rejected string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token != nil && c.token.AccessToken != rejected && c.fresh() {
		return c.token.AccessToken, nil
	}
	return c.fetch(ctx)
}

// SetAuthHeader sets the Authorization header on r.
func (c *CachedProvider) SetAuthHeader(r *http.Request) error {
	tok, err := c.Token(r.Context())
	if err != nil {
		return err
	}
	r.Header.Set("Authorization", "Bearer "+tok)
	return nil
}

func (c *CachedProvider) fresh() bool {
	if c.token == nil || c.token.AccessToken == "" {
		return false
	}
	if c.token.Expiry.IsZero() {
		return true
	}
	return c.token.Expiry.Sub(c.now()) > c.skew
}

func (c *CachedProvider) fetch(ctx context.Context) (string, error) {
	tok, err := c.src.FetchToken(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to get token: %w", err)
	}
	if tok == nil || tok.AccessToken == "" {
		return "", fault.Newf(fault.ErrTransport, "auth", "token endpoint returned no access token")
	}
	c.token = tok
	return tok.AccessToken, nil
}

// StaticProvider always returns the same token. An empty token is valid and
// means requests go out unauthenticated.
type StaticProvider string

func (s StaticProvider) Token(context.Context) (string, error) { return string(s), nil }

func (s StaticProvider) Refresh(context.Context, string) (string, error) { return string(s), nil }

// NewProvider builds a Provider from conf. Missing credentials yield a
// provider whose every call fails with fault.ErrConfiguration.
func NewProvider(conf Conf, client *http.Client) Provider {
	switch conf.Mode {
	case ModeNone:
		return StaticProvider("")
	case ModeClientCredentials:
		if conf.ClientID == "" || conf.ClientSecret == "" || conf.AuthURL == "" {
			return errProvider{fault.Newf(fault.ErrConfiguration, "auth", "client_id, client_secret and auth_url are required")}
		}
		return NewCachedProvider(NewClientCredentialsSource(conf, client), DefaultSkew)
	case ModeIAM, "":
		if conf.APIKey == "" {
			return errProvider{fault.Newf(fault.ErrConfiguration, "auth", "api key is not set")}
		}
		return NewCachedProvider(NewIAMSource(conf.IAMURL, conf.APIKey, client), DefaultSkew)
	default:
		return errProvider{fault.Newf(fault.ErrConfiguration, "auth", "unsupported auth mode %q", conf.Mode)}
	}
}

type errProvider struct{ err error }

func (e errProvider) Token(context.Context) (string, error) { return "", e.err }

func (e errProvider) Refresh(context.Context, string) (string, error) { return "", e.err }
