package embedding

import (
	"context"
	"unicode"

	"github.com/hyperjump/tcmkb/pkg/utils"
)

// MockEmbedder is a deterministic embedder for tests and offline development.
// Each character and character bigram is hashed into a bucket, so texts that
// share characters have positive cosine similarity and equal texts get equal vectors.
type MockEmbedder struct {
	dimensions int
}

// NewMockEmbedder returns an embedder that produces deterministic embeddings of the given dimensions.
func NewMockEmbedder(dimensions int) *MockEmbedder {
	if dimensions <= 0 {
		dimensions = 384
	}
	return &MockEmbedder{dimensions: dimensions}
}

// Embed returns a unit-length bag-of-characters vector, or a zero vector for text with no letters or digits.
func (e *MockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	emb := make([]float32, e.dimensions)
	var prev rune
	for _, r := range text {
		if !unicode.IsLetter(r) && !unicode.IsNumber(r) {
			prev = 0
			continue
		}
		r = unicode.ToLower(r)
		emb[HashString(string(r))%e.dimensions] += 1
		if prev != 0 {
			emb[HashString(string([]rune{prev, r}))%e.dimensions] += 0.5
		}
		prev = r
	}
	utils.NormalizeL2(emb)
	return emb, nil
}

// EmbedBatch calls Embed for each text.
func (e *MockEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	embeddings := make([][]float32, len(texts))
	for i, text := range texts {
		emb, err := e.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		embeddings[i] = emb
	}
	return embeddings, nil
}

// Dimensions returns the embedding dimension.
func (e *MockEmbedder) Dimensions() int {
	return e.dimensions
}

// Close is a no-op for MockEmbedder.
func (e *MockEmbedder) Close() error {
	return nil
}
