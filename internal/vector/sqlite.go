package vector

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/hyperjump/tcmkb/internal/models"
	"github.com/hyperjump/tcmkb/internal/storage"
)

// SQLiteBackend stores vectors as little-endian float32 BLOBs next to the
// knowledge base tables. Similarity is computed in Go.
type SQLiteBackend struct {
	db *sql.DB
}

// NewSQLiteBackend creates the paragraph and embedding tables on db.
func NewSQLiteBackend(db *sql.DB) (*SQLiteBackend, error) {
	schema := `
	CREATE TABLE IF NOT EXISTS tcm_paragraph (
		id TEXT PRIMARY KEY,
		document_id TEXT NOT NULL DEFAULT '',
		knowledge_id TEXT NOT NULL,
		source_id TEXT NOT NULL DEFAULT '',
		source_type TEXT NOT NULL DEFAULT 'document',
		is_active INTEGER NOT NULL DEFAULT 1,
		content TEXT NOT NULL,
		title TEXT NOT NULL DEFAULT '',
		page_number INTEGER,
		meta TEXT NOT NULL DEFAULT '{}',
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS tcm_paragraph_document_idx ON tcm_paragraph(knowledge_id, document_id);
	CREATE INDEX IF NOT EXISTS tcm_paragraph_source_idx ON tcm_paragraph(knowledge_id, source_id);

	CREATE TABLE IF NOT EXISTS tcm_embedding (
		id TEXT PRIMARY KEY,
		source_id TEXT NOT NULL DEFAULT '',
		source_type TEXT NOT NULL DEFAULT 'document',
		is_active INTEGER NOT NULL DEFAULT 1,
		knowledge_id TEXT NOT NULL,
		document_id TEXT NOT NULL DEFAULT '',
		paragraph_id TEXT NOT NULL,
		embedding BLOB NOT NULL,
		meta TEXT NOT NULL DEFAULT '{}',
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS tcm_embedding_kb_idx ON tcm_embedding(knowledge_id);
	CREATE UNIQUE INDEX IF NOT EXISTS tcm_embedding_paragraph_kb ON tcm_embedding(paragraph_id, knowledge_id);
	`
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to initialize vector schema: %w", err)
	}
	return &SQLiteBackend{db: db}, nil
}

const paragraphColumns = `p.id, p.document_id, p.knowledge_id, p.source_id, p.source_type,
	p.is_active, p.content, p.title, p.page_number, p.meta`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanParagraph(row rowScanner, extra ...interface{}) (*models.Paragraph, error) {
	var p models.Paragraph
	var page sql.NullInt64
	dest := append([]interface{}{&p.ID, &p.DocumentID, &p.KnowledgeID, &p.SourceID, &p.SourceType,
		&p.IsActive, &p.Content, &p.Title, &page, &p.Meta}, extra...)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	if page.Valid {
		n := int(page.Int64)
		p.PageNumber = &n
	}
	return &p, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func appendStrings(args []interface{}, values []string) []interface{} {
	for _, v := range values {
		args = append(args, v)
	}
	return args
}

// selectorClause renders sel against paragraph columns qualified by prefix.
func selectorClause(prefix string, sel Selector) (string, []interface{}) {
	var conds []string
	var args []interface{}
	if len(sel.ParagraphIDs) > 0 {
		conds = append(conds, fmt.Sprintf("%sid IN (%s)", prefix, placeholders(len(sel.ParagraphIDs))))
		args = appendStrings(args, sel.ParagraphIDs)
	}
	if len(sel.DocumentIDs) > 0 {
		conds = append(conds, fmt.Sprintf("%sdocument_id IN (%s)", prefix, placeholders(len(sel.DocumentIDs))))
		args = appendStrings(args, sel.DocumentIDs)
	}
	if len(sel.SourceIDs) > 0 {
		conds = append(conds, fmt.Sprintf("%ssource_id IN (%s)", prefix, placeholders(len(sel.SourceIDs))))
		args = appendStrings(args, sel.SourceIDs)
		if sel.SourceType != "" {
			conds = append(conds, prefix+"source_type = ?")
			args = append(args, sel.SourceType)
		}
	}
	if len(conds) == 0 {
		return "1 = 1", nil
	}
	return strings.Join(conds, " AND "), args
}

func filterClause(filter models.Filter) (string, []interface{}) {
	var b strings.Builder
	var args []interface{}
	if filter.DocumentID != "" {
		b.WriteString(" AND e.document_id = ?")
		args = append(args, filter.DocumentID)
	}
	if len(filter.ExcludeDocumentIDs) > 0 {
		fmt.Fprintf(&b, " AND e.document_id NOT IN (%s)", placeholders(len(filter.ExcludeDocumentIDs)))
		args = appendStrings(args, filter.ExcludeDocumentIDs)
	}
	if len(filter.ExcludeParagraphIDs) > 0 {
		fmt.Fprintf(&b, " AND e.paragraph_id NOT IN (%s)", placeholders(len(filter.ExcludeParagraphIDs)))
		args = appendStrings(args, filter.ExcludeParagraphIDs)
	}
	return b.String(), args
}

// UpsertParagraph writes p and replaces its embedding row in one transaction.
func (b *SQLiteBackend) UpsertParagraph(ctx context.Context, p *models.Paragraph, e *EmbeddingRow) error {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now()
	_, err = tx.ExecContext(ctx, `
		INSERT INTO tcm_paragraph (id, document_id, knowledge_id, source_id, source_type, is_active,
			content, title, page_number, meta, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			document_id = excluded.document_id,
			knowledge_id = excluded.knowledge_id,
			source_id = excluded.source_id,
			source_type = excluded.source_type,
			is_active = excluded.is_active,
			content = excluded.content,
			title = excluded.title,
			page_number = excluded.page_number,
			meta = excluded.meta,
			updated_at = excluded.updated_at`,
		p.ID, p.DocumentID, p.KnowledgeID, p.SourceID, p.SourceType, p.IsActive,
		p.Content, p.Title, nullablePage(p.PageNumber), p.Meta, now, now,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert paragraph: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM tcm_embedding WHERE paragraph_id = ? AND knowledge_id = ?`,
		e.ParagraphID, e.KnowledgeID); err != nil {
		return fmt.Errorf("failed to replace embedding: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO tcm_embedding (id, source_id, source_type, is_active, knowledge_id, document_id,
			paragraph_id, embedding, meta, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.SourceID, e.SourceType, e.IsActive, e.KnowledgeID, e.DocumentID,
		e.ParagraphID, encodeVector(e.Embedding), e.Meta, now,
	)
	if err != nil {
		return fmt.Errorf("failed to insert embedding: %w", err)
	}
	return tx.Commit()
}

func nullablePage(v *int) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

// Delete removes the selected paragraphs and their embeddings.
func (b *SQLiteBackend) Delete(ctx context.Context, kbID string, sel Selector) (int64, error) {
	if sel.Empty() {
		return 0, nil
	}
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	sub, subArgs := selectorClause("p.", sel)
	where, args := selectorClause("", sel)
	if sel.All {
		_, err = tx.ExecContext(ctx, `DELETE FROM tcm_embedding WHERE knowledge_id = ?`, kbID)
	} else {
		_, err = tx.ExecContext(ctx,
			`DELETE FROM tcm_embedding WHERE knowledge_id = ? AND paragraph_id IN (
				SELECT p.id FROM tcm_paragraph p WHERE p.knowledge_id = ? AND `+sub+`)`,
			append([]interface{}{kbID, kbID}, subArgs...)...)
		if err == nil && len(sel.ParagraphIDs) > 0 {
			// Embeddings can outlive a paragraph moved to another knowledge base.
			_, err = tx.ExecContext(ctx,
				fmt.Sprintf(`DELETE FROM tcm_embedding WHERE knowledge_id = ? AND paragraph_id IN (%s)`,
					placeholders(len(sel.ParagraphIDs))),
				appendStrings([]interface{}{kbID}, sel.ParagraphIDs)...)
		}
	}
	if err != nil {
		return 0, fmt.Errorf("failed to delete embeddings: %w", err)
	}

	result, err := tx.ExecContext(ctx,
		`DELETE FROM tcm_paragraph WHERE knowledge_id = ? AND `+where,
		append([]interface{}{kbID}, args...)...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete paragraphs: %w", err)
	}
	n, _ := result.RowsAffected()
	return n, tx.Commit()
}

// Update changes the selected paragraph rows.
func (b *SQLiteBackend) Update(ctx context.Context, kbID string, sel Selector, u models.ParagraphUpdate) (int64, error) {
	if sel.Empty() || u.Empty() {
		return 0, nil
	}
	set, setArgs := updateClause(u)
	where, args := selectorClause("", sel)
	args = append(append(setArgs, time.Now(), kbID), args...)
	result, err := b.db.ExecContext(ctx,
		`UPDATE tcm_paragraph SET `+set+`, updated_at = ? WHERE knowledge_id = ? AND `+where,
		args...)
	if err != nil {
		return 0, fmt.Errorf("failed to update paragraphs: %w", err)
	}
	return result.RowsAffected()
}

func updateClause(u models.ParagraphUpdate) (string, []interface{}) {
	var sets []string
	var args []interface{}
	if u.Content != nil {
		sets = append(sets, "content = ?")
		args = append(args, *u.Content)
	}
	if u.Title != nil {
		sets = append(sets, "title = ?")
		args = append(args, *u.Title)
	}
	if u.IsActive != nil {
		sets = append(sets, "is_active = ?")
		args = append(args, *u.IsActive)
	}
	if u.PageNumber != nil {
		sets = append(sets, "page_number = ?")
		args = append(args, *u.PageNumber)
	}
	return strings.Join(sets, ", "), args
}

// GetParagraph returns one paragraph of kbID.
func (b *SQLiteBackend) GetParagraph(ctx context.Context, kbID, id string) (*models.Paragraph, error) {
	p, err := scanParagraph(b.db.QueryRowContext(ctx,
		`SELECT `+paragraphColumns+` FROM tcm_paragraph p WHERE p.id = ? AND p.knowledge_id = ?`, id, kbID))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("paragraph %s: %w", id, storage.ErrNotFound)
	}
	return p, err
}

// ScanEmbeddings streams every active embedding of kbID passing filter.
func (b *SQLiteBackend) ScanEmbeddings(ctx context.Context, kbID string, filter models.Filter, fn func(Candidate) error) error {
	where, args := filterClause(filter)
	rows, err := b.db.QueryContext(ctx,
		`SELECT `+paragraphColumns+`, e.embedding
		 FROM tcm_embedding e JOIN tcm_paragraph p ON p.id = e.paragraph_id
		 WHERE e.knowledge_id = ? AND p.is_active = 1`+where,
		append([]interface{}{kbID}, args...)...)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var blob []byte
		p, err := scanParagraph(rows, &blob)
		if err != nil {
			return err
		}
		vec, err := decodeVector(blob)
		if err != nil {
			return fmt.Errorf("paragraph %s: %w", p.ID, err)
		}
		if err := fn(Candidate{Paragraph: p, Embedding: vec}); err != nil {
			return err
		}
	}
	return rows.Err()
}

// KeywordCandidates returns active paragraphs containing any token. Matching
// runs in Go because SQLite LIKE folds ASCII case only.
func (b *SQLiteBackend) KeywordCandidates(ctx context.Context, kbID string, tokens []string, filter models.Filter) ([]*models.Paragraph, error) {
	if len(tokens) == 0 {
		return nil, nil
	}
	where, args := filterClause(filter)
	rows, err := b.db.QueryContext(ctx,
		`SELECT `+paragraphColumns+`
		 FROM tcm_embedding e JOIN tcm_paragraph p ON p.id = e.paragraph_id
		 WHERE e.knowledge_id = ? AND p.is_active = 1`+where,
		append([]interface{}{kbID}, args...)...)
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
		if KeywordScore(tokens, p.Content, p.Title) > 0 {
			out = append(out, p)
		}
	}
	return out, rows.Err()
}

// CountEmbeddings returns the number of embedding rows of kbID.
func (b *SQLiteBackend) CountEmbeddings(ctx context.Context, kbID string) (int64, error) {
	var n int64
	err := b.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM tcm_embedding WHERE knowledge_id = ?`, kbID).Scan(&n)
	return n, err
}

// IndexExists reports whether the knowledge base index is present.
func (b *SQLiteBackend) IndexExists(ctx context.Context, kbID string) (bool, error) {
	var one int
	err := b.db.QueryRowContext(ctx,
		`SELECT 1 FROM sqlite_master WHERE type = 'index' AND name = ?`, IndexName(kbID)).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	return err == nil, err
}

// CreateIndex creates a partial index over the knowledge base's embeddings.
// SQLite has no ivfflat; lists is accepted for parity and ignored.
func (b *SQLiteBackend) CreateIndex(ctx context.Context, kbID string, dimensions, lists int) error {
	_, err := b.db.ExecContext(ctx, fmt.Sprintf(
		`CREATE INDEX IF NOT EXISTS "%s" ON tcm_embedding(paragraph_id) WHERE knowledge_id = '%s'`,
		IndexName(kbID), kbID))
	return err
}

// DropIndex drops the knowledge base index if present.
func (b *SQLiteBackend) DropIndex(ctx context.Context, kbID string) error {
	_, err := b.db.ExecContext(ctx, fmt.Sprintf(`DROP INDEX IF EXISTS "%s"`, IndexName(kbID)))
	return err
}
