// Package llm provides the language-model providers behind core/llm.Completer.
package llm

import (
	"context"
	"strings"

	"github.com/resqmeals/gateway/auth"
	"github.com/resqmeals/gateway/core/fault"
	corellm "github.com/resqmeals/gateway/core/llm"
)

// Unavailable is a Completer that always fails with Err.
type Unavailable struct{ Err error }

func (u Unavailable) Complete(context.Context, string, string) (string, error) { return "", u.Err }

// New selects the provider named by cfg.Provider. An unset or unknown
// provider returns an Unavailable completer reporting fault.ErrConfiguration
// on every call, together with that error for startup logging.
func New(cfg Config, tokens auth.Provider) (corellm.Completer, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case ProviderOpenAI:
		return NewOpenAIClient(cfg), nil
	case ProviderWatsonx:
		return NewWatsonxClient(cfg, tokens), nil
	case "":
		err := fault.Newf(fault.ErrConfiguration, "llm", "provider is not set")
		return Unavailable{Err: err}, err
	default:
		err := fault.Newf(fault.ErrConfiguration, "llm", "unsupported provider %q", cfg.Provider)
		return Unavailable{Err: err}, err
	}
}
