package embedding

import (
	"fmt"
	"sort"

	"github.com/hyperjump/tcmkb/internal/config"
	"go.uber.org/zap"
)

// Registry maps model names to providers. It is built once at startup and
// never modified afterwards, so lookups need no locking.
type Registry struct {
	providers map[string]*Provider
}

// NewRegistry returns a registry of the given providers keyed by model name.
func NewRegistry(providers ...*Provider) *Registry {
	r := &Registry{providers: make(map[string]*Provider, len(providers))}
	for _, p := range providers {
		r.providers[p.Model()] = p
	}
	return r
}

// BuildRegistry creates a provider for every configured model. Any backend
// that fails to initialise fails the whole build.
func BuildRegistry(cfg config.EmbeddingConfig, logger *zap.Logger) (*Registry, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	var providers []*Provider
	closeAll := func() {
		for _, p := range providers {
			_ = p.Close()
		}
	}
	for _, m := range cfg.Models {
		e, err := newBackend(m)
		if err != nil {
			closeAll()
			return nil, fmt.Errorf("embedding model %q: %w", m.Name, err)
		}
		providers = append(providers, NewProvider(m.Name, e, m.Dimensions,
			WithLogger(logger),
			WithCache(NewEmbeddingCache(cfg.CacheSize)),
			WithMaxInputChars(cfg.MaxInputChars),
		))
		logger.Info("embedding model registered",
			zap.String("model", m.Name), zap.String("type", m.Type), zap.Int("dimensions", m.Dimensions))
	}
	return NewRegistry(providers...), nil
}

func newBackend(m config.ModelConfig) (Embedder, error) {
	switch m.Type {
	case config.EmbedderMock:
		return NewMockEmbedder(m.Dimensions), nil
	case config.EmbedderOpenAI:
		remote := m.RemoteModel
		if remote == "" {
			remote = m.Name
		}
		return NewOpenAIEmbedder(OpenAIConfig{
			BaseURL:    m.BaseURL,
			APIKey:     m.APIKey,
			Model:      remote,
			Dimensions: m.Dimensions,
		})
	case config.EmbedderONNX:
		return NewONNXEmbedder(ONNXConfig{
			ModelPath:   m.ModelPath,
			VocabPath:   m.VocabPath,
			LibraryPath: m.LibraryPath,
			Dimensions:  m.Dimensions,
			MaxTokens:   m.MaxTokens,
			Pooling:     m.Pooling,
		})
	default:
		return nil, fmt.Errorf("unknown embedder type %q", m.Type)
	}
}

// Lookup returns the provider for model, or an error wrapping ErrModelNotFound.
func (r *Registry) Lookup(model string) (*Provider, error) {
	p, ok := r.providers[model]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrModelNotFound, model)
	}
	return p, nil
}

// Models returns the registered model names in sorted order.
func (r *Registry) Models() []string {
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Close closes every provider and returns the first error.
func (r *Registry) Close() error {
	var first error
	for _, p := range r.providers {
		if err := p.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
