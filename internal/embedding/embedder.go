// Package embedding provides text embedding backends, an immutable per-model
// registry, and a provider that degrades to zero vectors instead of failing.
package embedding

import (
	"context"
	"errors"
)

// ErrModelNotFound is returned by Registry.Lookup for a model that was not configured.
var ErrModelNotFound = errors.New("embedding model not registered")

// Embedder produces vector embeddings for text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Close() error
}
