// Package llm defines the single-shot completion contract used by the
// gateway. Implementations live in infra/llm.
package llm

import "context"

// Completer sends one system/user prompt pair and returns the raw completion.
// The text carries no well-formedness guarantee. Implementations never retry.
type Completer interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// CompleterFunc adapts a function to Completer.
type CompleterFunc func(ctx context.Context, systemPrompt, userPrompt string) (string, error)

func (f CompleterFunc) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return f(ctx, systemPrompt, userPrompt)
}
