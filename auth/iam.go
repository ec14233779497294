package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/resqmeals/gateway/core/fault"
)

const iamGrantType = "urn:ibm:params:oauth:grant-type:apikey"

// IAMSource exchanges a long-lived API key for a short-lived bearer token.
type IAMSource struct {
	url    string
	apiKey string
	client *http.Client
	now    func() time.Time
}

// NewIAMSource returns a source posting to tokenURL. An empty tokenURL uses
// DefaultIAMURL.
func NewIAMSource(tokenURL, apiKey string, client *http.Client) *IAMSource {
	if tokenURL == "" {
		tokenURL = DefaultIAMURL
	}
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	return &IAMSource{url: tokenURL, apiKey: apiKey, client: client, now: time.Now}
}

type iamResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
	Expiration  int64  `json:"expiration"`
}

// FetchToken performs the API key exchange.
func (s *IAMSource) FetchToken(ctx context.Context) (*oauth2.Token, error) {
	form := url.Values{"grant_type": {iamGrantType}, "apikey": {s.apiKey}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fault.New(fault.ErrTransport, "iam token", err)
	}
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fault.New(fault.ErrTransport, "iam token", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fault.Newf(fault.ErrTransport, "iam token", "unexpected status code: %d, body: %s", resp.StatusCode, body)
	}
	var r iamResponse
	if err := json.Unmarshal(body, &r); err != nil {
		return nil, fault.Newf(fault.ErrTransport, "iam token", "failed to decode response: %v", err)
	}
	tok := &oauth2.Token{AccessToken: r.AccessToken, TokenType: r.TokenType}
	switch {
	case r.Expiration > 0:
		tok.Expiry = time.Unix(r.Expiration, 0)
	case r.ExpiresIn > 0:
		tok.Expiry = s.now().Add(time.Duration(r.ExpiresIn) * time.Second)
	}
	return tok, nil
}

// ClientCredentialsSource fetches tokens with the OAuth2 client credentials grant.
type ClientCredentialsSource struct {
	conf   clientcredentials.Config
	client *http.Client
}

// NewClientCredentialsSource builds a source from conf.
func NewClientCredentialsSource(conf Conf, client *http.Client) *ClientCredentialsSource {
	return &ClientCredentialsSource{conf: conf.toOauth2Config(), client: client}
}

// FetchToken requests a new token from the configured endpoint.
func (s *ClientCredentialsSource) FetchToken(ctx context.Context) (*oauth2.Token, error) {
	if s.client != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, s.client)
	}
	tok, err := s.conf.Token(ctx)
	if err != nil {
		return nil, fault.New(fault.ErrTransport, "client credentials token", err)
	}
	return tok, nil
}
