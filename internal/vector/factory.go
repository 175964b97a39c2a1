package vector

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/hyperjump/tcmkb/internal/embedding"
	"github.com/hyperjump/tcmkb/internal/models"
	"github.com/hyperjump/tcmkb/internal/storage"
	"github.com/hyperjump/tcmkb/pkg/utils"
)

// NewBackend returns the Backend sharing st's database connection.
func NewBackend(st storage.Storage, logger *zap.Logger) (Backend, error) {
	switch s := st.(type) {
	case *storage.SQLiteStorage:
		return NewSQLiteBackend(s.DB())
	case *storage.PostgresStorage:
		return NewPostgresBackend(s.Gorm(), logger)
	default:
		return nil, fmt.Errorf("no vector backend for storage %T", st)
	}
}

// Stores hands out one VectorStore per knowledge base, built lazily from the
// embedding registry.
type Stores struct {
	backend  Backend
	registry *embedding.Registry
	logger   *zap.Logger

	mu     sync.Mutex
	stores map[string]VectorStore
}

// NewStores creates a Stores over backend and registry.
func NewStores(backend Backend, registry *embedding.Registry, logger *zap.Logger) *Stores {
	return &Stores{
		backend:  backend,
		registry: registry,
		logger:   utils.LoggerOrNop(logger),
		stores:   make(map[string]VectorStore),
	}
}

// For returns the VectorStore of kb. An unknown embedding model yields
// embedding.ErrModelNotFound.
func (s *Stores) For(kb *models.KnowledgeBase) (VectorStore, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if vs, ok := s.stores[kb.ID]; ok {
		return vs, nil
	}
	provider, err := s.registry.Lookup(kb.EmbeddingModel)
	if err != nil {
		return nil, fmt.Errorf("knowledge base %s: %w", kb.ID, err)
	}
	vs, err := NewStore(s.backend, kb, provider, WithLogger(s.logger))
	if err != nil {
		return nil, err
	}
	s.stores[kb.ID] = vs
	return vs, nil
}
