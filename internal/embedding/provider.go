package embedding

import (
	"context"
	"fmt"

	"github.com/hyperjump/tcmkb/internal/metrics"
	"github.com/hyperjump/tcmkb/pkg/utils"
	"go.uber.org/zap"
)

// DefaultMaxInputChars is the input cap applied before encoding.
const DefaultMaxInputChars = 2000

// Provider wraps the Embedder of one model. It truncates long input, caches
// results, and substitutes a zero vector for any failed or malformed embedding
// so a single bad paragraph never aborts a batch.
type Provider struct {
	model         string
	embedder      Embedder
	dimensions    int
	maxInputChars int
	cache         *EmbeddingCache
	logger        *zap.Logger
}

// ProviderOption configures a Provider.
type ProviderOption func(*Provider)

// WithLogger sets a logger for truncation and fallback warnings.
func WithLogger(l *zap.Logger) ProviderOption {
	return func(p *Provider) { p.logger = l }
}

// WithCache sets the embedding cache. Without it results are not cached.
func WithCache(c *EmbeddingCache) ProviderOption {
	return func(p *Provider) { p.cache = c }
}

// WithMaxInputChars overrides DefaultMaxInputChars.
func WithMaxInputChars(n int) ProviderOption {
	return func(p *Provider) {
		if n > 0 {
			p.maxInputChars = n
		}
	}
}

// NewProvider returns a provider for model backed by e. dimensions is the
// vector length every result is guaranteed to have.
func NewProvider(model string, e Embedder, dimensions int, opts ...ProviderOption) *Provider {
	p := &Provider{
		model:         model,
		embedder:      e,
		dimensions:    dimensions,
		maxInputChars: DefaultMaxInputChars,
		logger:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Model returns the model name.
func (p *Provider) Model() string { return p.model }

// Dimensions returns the length of every returned vector.
func (p *Provider) Dimensions() int { return p.dimensions }

// Embed returns the embedding of text, or a zero vector on failure.
func (p *Provider) Embed(ctx context.Context, text string) []float32 {
	text = p.truncate(text)
	if v, ok := p.cache.Get(text); ok {
		metrics.EmbeddingCacheHits.WithLabelValues(p.model).Inc()
		return v
	}
	v, err := p.embedder.Embed(ctx, text)
	if err != nil {
		return p.fallback("error", zap.Error(err))
	}
	if len(v) != p.dimensions {
		return p.fallback("dimension_mismatch", zap.Int("got", len(v)))
	}
	p.cache.Set(text, v)
	return v
}

// EmbedBatch embeds texts in one backend call. When that call fails every
// text it carried degrades to the zero vector; cached texts are unaffected.
func (p *Provider) EmbedBatch(ctx context.Context, texts []string) [][]float32 {
	out := make([][]float32, len(texts))
	var missIdx []int
	var missTexts []string
	for i, text := range texts {
		text = p.truncate(text)
		if v, ok := p.cache.Get(text); ok {
			metrics.EmbeddingCacheHits.WithLabelValues(p.model).Inc()
			out[i] = v
			continue
		}
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, text)
	}
	if len(missTexts) == 0 {
		return out
	}

	vecs, err := p.embedder.EmbedBatch(ctx, missTexts)
	if err == nil && len(vecs) != len(missTexts) {
		err = fmt.Errorf("embedder returned %d vectors for %d texts", len(vecs), len(missTexts))
	}
	if err != nil {
		for _, i := range missIdx {
			out[i] = p.fallback("error", zap.Error(err))
		}
		return out
	}
	for j, i := range missIdx {
		v := vecs[j]
		if len(v) != p.dimensions {
			out[i] = p.fallback("dimension_mismatch", zap.Int("got", len(v)))
			continue
		}
		p.cache.Set(missTexts[j], v)
		out[i] = v
	}
	return out
}

// Close closes the underlying embedder.
func (p *Provider) Close() error {
	return p.embedder.Close()
}

func (p *Provider) truncate(text string) string {
	if utils.RuneLen(text) <= p.maxInputChars {
		return text
	}
	p.logger.Warn("embedding input truncated",
		zap.String("model", p.model),
		zap.Int("chars", utils.RuneLen(text)),
		zap.Int("max", p.maxInputChars))
	return utils.TruncateRunes(text, p.maxInputChars)
}

func (p *Provider) fallback(reason string, fields ...zap.Field) []float32 {
	metrics.EmbeddingFallbacks.WithLabelValues(p.model, reason).Inc()
	fields = append(fields, zap.String("model", p.model), zap.String("reason", reason))
	p.logger.Error("embedding failed, using zero vector", fields...)
	return make([]float32, p.dimensions)
}
