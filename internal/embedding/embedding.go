// Package embedding turns inventory text into search vectors through an
// OpenAI-compatible embeddings endpoint.
package embedding

import "context"

// Provider produces one vector per input text.
type Provider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// ProviderFunc adapts a function to the Provider interface.
type ProviderFunc func(ctx context.Context, text string) ([]float32, error)

func (f ProviderFunc) Embed(ctx context.Context, text string) ([]float32, error) {
	return f(ctx, text)
}
