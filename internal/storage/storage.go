// Package storage persists knowledge bases and documents.
package storage

import (
	"context"
	"errors"

	"github.com/hyperjump/tcmkb/internal/models"
)

// ErrNotFound is returned when a knowledge base or document does not exist.
var ErrNotFound = errors.New("not found")

// Storage defines knowledge base and document persistence operations.
// Paragraphs and embeddings live in the same database but are owned by the
// vector package, which shares the connection (see SQLiteStorage.DB and
// PostgresStorage.Gorm).
type Storage interface {
	// Knowledge base operations
	CreateKnowledgeBase(ctx context.Context, kb *models.KnowledgeBase) error
	GetKnowledgeBase(ctx context.Context, id string) (*models.KnowledgeBase, error)
	ListKnowledgeBases(ctx context.Context, offset, limit int) ([]*models.KnowledgeBase, error)
	SetKnowledgeBaseActive(ctx context.Context, id string, active bool) error

	// Document operations
	CreateDocument(ctx context.Context, doc *models.Document) error
	GetDocument(ctx context.Context, id string) (*models.Document, error)
	UpdateDocumentProgress(ctx context.Context, id string, p models.DocumentProgress) error
	DeleteDocument(ctx context.Context, id string) error
	ListDocuments(ctx context.Context, kbID string, offset, limit int) ([]*models.Document, error)
	ListUnfinishedDocuments(ctx context.Context) ([]*models.Document, error)

	// Stats
	CountDocuments(ctx context.Context, kbID string) (int64, error)

	Close() error
}
