package vector

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/hyperjump/tcmkb/internal/models"
	"github.com/hyperjump/tcmkb/internal/storage"
)

type pgParagraph struct {
	ID          string               `gorm:"primaryKey;type:varchar(36)"`
	DocumentID  string               `gorm:"type:varchar(36);not null;index:tcm_paragraph_document_idx,priority:2"`
	KnowledgeID string               `gorm:"type:varchar(36);not null;index:tcm_paragraph_document_idx,priority:1;index:tcm_paragraph_source_idx,priority:1"`
	SourceID    string               `gorm:"type:varchar(64);not null;index:tcm_paragraph_source_idx,priority:2"`
	SourceType  string               `gorm:"type:varchar(20);not null"`
	IsActive    bool                 `gorm:"not null"`
	Content     string               `gorm:"type:text;not null"`
	Title       string               `gorm:"type:varchar(512);not null"`
	PageNumber  *int                 `gorm:"type:integer"`
	Meta        models.ParagraphMeta `gorm:"type:jsonb;not null"`
	CreatedAt   time.Time            `gorm:"autoCreateTime"`
	UpdatedAt   time.Time            `gorm:"autoUpdateTime"`
}

func (pgParagraph) TableName() string { return "tcm_paragraph" }

type pgEmbedding struct {
	ID          string               `gorm:"primaryKey;type:varchar(36)"`
	SourceID    string               `gorm:"type:varchar(64);not null"`
	SourceType  string               `gorm:"type:varchar(20);not null"`
	IsActive    bool                 `gorm:"not null"`
	KnowledgeID string               `gorm:"type:varchar(36);not null;index:tcm_embedding_kb_idx;uniqueIndex:tcm_embedding_paragraph_kb,priority:2"`
	DocumentID  string               `gorm:"type:varchar(36);not null"`
	ParagraphID string               `gorm:"type:varchar(36);not null;uniqueIndex:tcm_embedding_paragraph_kb,priority:1"`
	Embedding   pgvector.Vector      `gorm:"type:vector;not null"`
	Meta        models.ParagraphMeta `gorm:"type:jsonb;not null"`
	CreatedAt   time.Time            `gorm:"autoCreateTime"`
}

func (pgEmbedding) TableName() string { return "tcm_embedding" }

// PostgresBackend stores vectors in an untyped pgvector column so knowledge
// bases of different dimensions share one table. Each knowledge base gets a
// partial ivfflat index; searches scan every row so results stay exact.
type PostgresBackend struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewPostgresBackend enables the vector extension and migrates the paragraph
// and embedding tables.
func NewPostgresBackend(db *gorm.DB, logger *zap.Logger) (*PostgresBackend, error) {
	if err := db.Exec("CREATE EXTENSION IF NOT EXISTS vector").Error; err != nil {
		return nil, fmt.Errorf("failed to enable pgvector: %w", err)
	}
	if err := db.AutoMigrate(&pgParagraph{}, &pgEmbedding{}); err != nil {
		return nil, fmt.Errorf("failed to migrate vector tables: %w", err)
	}
	if err := db.Exec("CREATE INDEX IF NOT EXISTS tcm_paragraph_meta_idx ON tcm_paragraph USING gin (meta jsonb_path_ops)").Error; err != nil {
		return nil, fmt.Errorf("failed to create meta index: %w", err)
	}
	return newPostgresBackend(db, logger), nil
}

func newPostgresBackend(db *gorm.DB, logger *zap.Logger) *PostgresBackend {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PostgresBackend{db: db, logger: logger}
}

func selectorScope(sel Selector) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if len(sel.ParagraphIDs) > 0 {
			db = db.Where("id IN ?", sel.ParagraphIDs)
		}
		if len(sel.DocumentIDs) > 0 {
			db = db.Where("document_id IN ?", sel.DocumentIDs)
		}
		if len(sel.SourceIDs) > 0 {
			db = db.Where("source_id IN ?", sel.SourceIDs)
			if sel.SourceType != "" {
				db = db.Where("source_type = ?", sel.SourceType)
			}
		}
		return db
	}
}

func pgFilterClause(filter models.Filter) (string, []interface{}) {
	var b strings.Builder
	var args []interface{}
	if filter.DocumentID != "" {
		b.WriteString(" AND e.document_id = ?")
		args = append(args, filter.DocumentID)
	}
	if len(filter.ExcludeDocumentIDs) > 0 {
		b.WriteString(" AND e.document_id <> ALL(?)")
		args = append(args, pq.Array(filter.ExcludeDocumentIDs))
	}
	if len(filter.ExcludeParagraphIDs) > 0 {
		b.WriteString(" AND e.paragraph_id <> ALL(?)")
		args = append(args, pq.Array(filter.ExcludeParagraphIDs))
	}
	return b.String(), args
}

// UpsertParagraph writes p and replaces its embedding row in one transaction.
func (b *PostgresBackend) UpsertParagraph(ctx context.Context, p *models.Paragraph, e *EmbeddingRow) error {
	return b.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row := pgParagraph{
			ID:          p.ID,
			DocumentID:  p.DocumentID,
			KnowledgeID: p.KnowledgeID,
			SourceID:    p.SourceID,
			SourceType:  p.SourceType,
			IsActive:    p.IsActive,
			Content:     p.Content,
			Title:       p.Title,
			PageNumber:  p.PageNumber,
			Meta:        p.Meta,
		}
		err := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"document_id", "knowledge_id", "source_id", "source_type", "is_active",
				"content", "title", "page_number", "meta", "updated_at",
			}),
		}).Create(&row).Error
		if err != nil {
			return fmt.Errorf("failed to upsert paragraph: %w", err)
		}

		if err := tx.Where("paragraph_id = ? AND knowledge_id = ?", e.ParagraphID, e.KnowledgeID).
			Delete(&pgEmbedding{}).Error; err != nil {
			return fmt.Errorf("failed to replace embedding: %w", err)
		}
		emb := pgEmbedding{
			ID:          e.ID,
			SourceID:    e.SourceID,
			SourceType:  e.SourceType,
			IsActive:    e.IsActive,
			KnowledgeID: e.KnowledgeID,
			DocumentID:  e.DocumentID,
			ParagraphID: e.ParagraphID,
			Embedding:   pgvector.NewVector(e.Embedding),
			Meta:        e.Meta,
		}
		if err := tx.Create(&emb).Error; err != nil {
			return fmt.Errorf("failed to insert embedding: %w", err)
		}
		return nil
	})
}

// Delete removes the selected paragraphs and their embeddings.
func (b *PostgresBackend) Delete(ctx context.Context, kbID string, sel Selector) (int64, error) {
	if sel.Empty() {
		return 0, nil
	}
	var n int64
	err := b.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		embeddings := tx.Where("knowledge_id = ?", kbID)
		if !sel.All {
			sub := tx.Model(&pgParagraph{}).Select("id").Where("knowledge_id = ?", kbID).Scopes(selectorScope(sel))
			if len(sel.ParagraphIDs) > 0 {
				embeddings = embeddings.Where("(paragraph_id IN (?) OR paragraph_id IN ?)", sub, sel.ParagraphIDs)
			} else {
				embeddings = embeddings.Where("paragraph_id IN (?)", sub)
			}
		}
		if err := embeddings.Delete(&pgEmbedding{}).Error; err != nil {
			return fmt.Errorf("failed to delete embeddings: %w", err)
		}
		result := tx.Where("knowledge_id = ?", kbID).Scopes(selectorScope(sel)).Delete(&pgParagraph{})
		if result.Error != nil {
			return fmt.Errorf("failed to delete paragraphs: %w", result.Error)
		}
		n = result.RowsAffected
		return nil
	})
	return n, err
}

// Update changes the selected paragraph rows.
func (b *PostgresBackend) Update(ctx context.Context, kbID string, sel Selector, u models.ParagraphUpdate) (int64, error) {
	if sel.Empty() || u.Empty() {
		return 0, nil
	}
	updates := map[string]interface{}{"updated_at": time.Now()}
	if u.Content != nil {
		updates["content"] = *u.Content
	}
	if u.Title != nil {
		updates["title"] = *u.Title
	}
	if u.IsActive != nil {
		updates["is_active"] = *u.IsActive
	}
	if u.PageNumber != nil {
		updates["page_number"] = *u.PageNumber
	}
	result := b.db.WithContext(ctx).Model(&pgParagraph{}).Where("knowledge_id = ?", kbID).
		Scopes(selectorScope(sel)).Updates(updates)
	return result.RowsAffected, result.Error
}

// GetParagraph returns one paragraph of kbID.
func (b *PostgresBackend) GetParagraph(ctx context.Context, kbID, id string) (*models.Paragraph, error) {
	var row pgParagraph
	err := b.db.WithContext(ctx).Where("id = ? AND knowledge_id = ?", id, kbID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("paragraph %s: %w", id, storage.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &models.Paragraph{
		ID:          row.ID,
		DocumentID:  row.DocumentID,
		KnowledgeID: row.KnowledgeID,
		SourceID:    row.SourceID,
		SourceType:  row.SourceType,
		IsActive:    row.IsActive,
		Content:     row.Content,
		Title:       row.Title,
		PageNumber:  row.PageNumber,
		Meta:        row.Meta,
	}, nil
}

const pgCandidateQuery = `SELECT ` + paragraphColumns + `, e.embedding
	FROM tcm_embedding e JOIN tcm_paragraph p ON p.id = e.paragraph_id
	WHERE e.knowledge_id = ? AND p.is_active`

func (b *PostgresBackend) queryCandidates(ctx context.Context, query string, args []interface{}, fn func(Candidate) error) error {
	rows, err := b.db.WithContext(ctx).Raw(query, args...).Rows()
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var vec pgvector.Vector
		p, err := scanParagraph(rows, &vec)
		if err != nil {
			return err
		}
		if err := fn(Candidate{Paragraph: p, Embedding: vec.Slice()}); err != nil {
			return err
		}
	}
	return rows.Err()
}

// ScanEmbeddings streams every active embedding of kbID passing filter.
func (b *PostgresBackend) ScanEmbeddings(ctx context.Context, kbID string, filter models.Filter, fn func(Candidate) error) error {
	where, args := pgFilterClause(filter)
	return b.queryCandidates(ctx, pgCandidateQuery+where, append([]interface{}{kbID}, args...), fn)
}

// KeywordCandidates returns active paragraphs whose content or title matches
// any token case-insensitively.
func (b *PostgresBackend) KeywordCandidates(ctx context.Context, kbID string, tokens []string, filter models.Filter) ([]*models.Paragraph, error) {
	if len(tokens) == 0 {
		return nil, nil
	}
	patterns := make([]string, len(tokens))
	for i, t := range tokens {
		patterns[i] = likePattern(t)
	}
	where, args := pgFilterClause(filter)
	query := `SELECT ` + paragraphColumns + `
		FROM tcm_embedding e JOIN tcm_paragraph p ON p.id = e.paragraph_id
		WHERE e.knowledge_id = ? AND p.is_active` + where +
		` AND (p.content ILIKE ANY(?) OR p.title ILIKE ANY(?))`
	args = append(append([]interface{}{kbID}, args...), pq.Array(patterns), pq.Array(patterns))

	rows, err := b.db.WithContext(ctx).Raw(query, args...).Rows()
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.Paragraph
	for rows.Next() {
		p, err := scanParagraph(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// CountEmbeddings returns the number of embedding rows of kbID.
func (b *PostgresBackend) CountEmbeddings(ctx context.Context, kbID string) (int64, error) {
	var n int64
	err := b.db.WithContext(ctx).Raw(`SELECT COUNT(*) FROM tcm_embedding WHERE knowledge_id = ?`, kbID).Scan(&n).Error
	return n, err
}

// IndexExists reports whether the knowledge base index is present.
func (b *PostgresBackend) IndexExists(ctx context.Context, kbID string) (bool, error) {
	var n int64
	err := b.db.WithContext(ctx).Raw(`SELECT COUNT(*) FROM pg_indexes WHERE indexname = ?`, IndexName(kbID)).Scan(&n).Error
	return n > 0, err
}

// CreateIndex creates the partial ivfflat index of the knowledge base.
// kbID must already be validated as a UUID.
func (b *PostgresBackend) CreateIndex(ctx context.Context, kbID string, dimensions, lists int) error {
	ddl := fmt.Sprintf(
		`CREATE INDEX IF NOT EXISTS "%s" ON tcm_embedding USING ivfflat ((embedding::vector(%d)) vector_cosine_ops) WITH (lists = %d) WHERE knowledge_id = '%s'`,
		IndexName(kbID), dimensions, lists, kbID)
	return b.db.WithContext(ctx).Exec(ddl).Error
}

// DropIndex drops the knowledge base index if present.
func (b *PostgresBackend) DropIndex(ctx context.Context, kbID string) error {
	return b.db.WithContext(ctx).Exec(fmt.Sprintf(`DROP INDEX IF EXISTS "%s"`, IndexName(kbID))).Error
}
