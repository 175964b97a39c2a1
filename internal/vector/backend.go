package vector

import (
	"context"

	"github.com/hyperjump/tcmkb/internal/models"
)

// EmbeddingRow is one stored vector and its linkage to a paragraph.
type EmbeddingRow struct {
	ID          string
	SourceID    string
	SourceType  string
	IsActive    bool
	KnowledgeID string
	DocumentID  string
	ParagraphID string
	Embedding   []float32
	Meta        models.ParagraphMeta
}

// Candidate is a paragraph together with its stored vector.
type Candidate struct {
	Paragraph *models.Paragraph
	Embedding []float32
}

// Selector picks paragraphs within one knowledge base. Non-empty lists are
// combined with AND; SourceType narrows SourceIDs. A selector that names
// nothing matches no rows unless All is set.
type Selector struct {
	All          bool
	ParagraphIDs []string
	DocumentIDs  []string
	SourceIDs    []string
	SourceType   string
}

// Empty reports whether s matches no rows.
func (s Selector) Empty() bool {
	return !s.All && len(s.ParagraphIDs) == 0 && len(s.DocumentIDs) == 0 && len(s.SourceIDs) == 0
}

// Backend persists paragraphs and embeddings for every knowledge base.
// Store scopes each call to its own knowledge base.
type Backend interface {
	// UpsertParagraph writes p and replaces the embedding row of
	// (p.ID, e.KnowledgeID) in one transaction.
	UpsertParagraph(ctx context.Context, p *models.Paragraph, e *EmbeddingRow) error
	// Delete removes selected paragraphs and their embeddings in one transaction.
	Delete(ctx context.Context, kbID string, sel Selector) (int64, error)
	// Update changes selected paragraph rows. Embeddings are untouched.
	Update(ctx context.Context, kbID string, sel Selector, u models.ParagraphUpdate) (int64, error)
	GetParagraph(ctx context.Context, kbID, id string) (*models.Paragraph, error)
	// ScanEmbeddings calls fn for every active embedding of kbID passing filter.
	ScanEmbeddings(ctx context.Context, kbID string, filter models.Filter, fn func(Candidate) error) error
	// KeywordCandidates returns active paragraphs whose content or title
	// contains any of tokens.
	KeywordCandidates(ctx context.Context, kbID string, tokens []string, filter models.Filter) ([]*models.Paragraph, error)
	CountEmbeddings(ctx context.Context, kbID string) (int64, error)
	IndexExists(ctx context.Context, kbID string) (bool, error)
	CreateIndex(ctx context.Context, kbID string, dimensions, lists int) error
	DropIndex(ctx context.Context, kbID string) error
}
