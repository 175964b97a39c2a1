package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/tcmkb/internal/models"
)

// SQLiteStorage implements Storage using SQLite.
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

// DB returns the underlying connection for packages that own other tables.
func (s *SQLiteStorage) DB() *sql.DB {
	return s.db
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS tcm_knowledge_base (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		is_active INTEGER NOT NULL DEFAULT 1,
		embedding_model TEXT NOT NULL,
		embedding_dimension INTEGER NOT NULL,
		similarity_threshold REAL NOT NULL DEFAULT 0.5,
		search_type TEXT NOT NULL DEFAULT 'blend',
		top_k INTEGER NOT NULL DEFAULT 5,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS tcm_document (
		id TEXT PRIMARY KEY,
		knowledge_base_id TEXT NOT NULL,
		name TEXT NOT NULL,
		file_type TEXT NOT NULL,
		file_size INTEGER NOT NULL DEFAULT 0,
		file_path TEXT NOT NULL DEFAULT '',
		char_count INTEGER NOT NULL DEFAULT 0,
		paragraph_count INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL DEFAULT 'processing',
		progress INTEGER NOT NULL DEFAULT 0,
		error TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (knowledge_base_id) REFERENCES tcm_knowledge_base(id)
	);

	CREATE INDEX IF NOT EXISTS idx_document_kb ON tcm_document(knowledge_base_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_document_status ON tcm_document(status);
	`
	_, err := db.Exec(schema)
	return err
}

const kbColumns = `id, name, description, is_active, embedding_model, embedding_dimension,
	similarity_threshold, search_type, top_k, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanKnowledgeBase(row rowScanner) (*models.KnowledgeBase, error) {
	var kb models.KnowledgeBase
	var searchType string
	if err := row.Scan(&kb.ID, &kb.Name, &kb.Description, &kb.IsActive, &kb.EmbeddingModel,
		&kb.EmbeddingDimension, &kb.SimilarityThreshold, &searchType, &kb.TopK,
		&kb.CreatedAt, &kb.UpdatedAt); err != nil {
		return nil, err
	}
	kb.SearchType = models.SearchType(searchType)
	return &kb, nil
}

// CreateKnowledgeBase inserts kb, assigning an ID when empty.
func (s *SQLiteStorage) CreateKnowledgeBase(ctx context.Context, kb *models.KnowledgeBase) error {
	if kb.ID == "" {
		kb.ID = uuid.New().String()
	}
	now := time.Now()
	kb.CreatedAt = now
	kb.UpdatedAt = now
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tcm_knowledge_base (`+kbColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		kb.ID, kb.Name, kb.Description, kb.IsActive, kb.EmbeddingModel, kb.EmbeddingDimension,
		kb.SimilarityThreshold, string(kb.SearchType), kb.TopK, kb.CreatedAt, kb.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert knowledge base: %w", err)
	}
	return nil
}

// GetKnowledgeBase returns a knowledge base by ID.
func (s *SQLiteStorage) GetKnowledgeBase(ctx context.Context, id string) (*models.KnowledgeBase, error) {
	kb, err := scanKnowledgeBase(s.db.QueryRowContext(ctx,
		`SELECT `+kbColumns+` FROM tcm_knowledge_base WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("knowledge base %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return kb, nil
}

// ListKnowledgeBases returns knowledge bases ordered by creation time.
func (s *SQLiteStorage) ListKnowledgeBases(ctx context.Context, offset, limit int) ([]*models.KnowledgeBase, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+kbColumns+` FROM tcm_knowledge_base ORDER BY created_at LIMIT ? OFFSET ?`,
		limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.KnowledgeBase
	for rows.Next() {
		kb, err := scanKnowledgeBase(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, kb)
	}
	return out, rows.Err()
}

// SetKnowledgeBaseActive toggles is_active.
func (s *SQLiteStorage) SetKnowledgeBaseActive(ctx context.Context, id string, active bool) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE tcm_knowledge_base SET is_active = ?, updated_at = ? WHERE id = ?`,
		active, time.Now(), id,
	)
	if err != nil {
		return err
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("knowledge base %s: %w", id, ErrNotFound)
	}
	return nil
}

const docColumns = `id, knowledge_base_id, name, file_type, file_size, file_path, char_count,
	paragraph_count, status, progress, error, created_at, updated_at`

func scanDocument(row rowScanner) (*models.Document, error) {
	var doc models.Document
	var status string
	if err := row.Scan(&doc.ID, &doc.KnowledgeBaseID, &doc.Name, &doc.FileType, &doc.FileSize,
		&doc.FilePath, &doc.CharCount, &doc.ParagraphCount, &status, &doc.Progress, &doc.Error,
		&doc.CreatedAt, &doc.UpdatedAt); err != nil {
		return nil, err
	}
	doc.Status = models.DocumentStatus(status)
	return &doc, nil
}

// CreateDocument inserts a document, assigning an ID when empty.
func (s *SQLiteStorage) CreateDocument(ctx context.Context, doc *models.Document) error {
	if doc.ID == "" {
		doc.ID = uuid.New().String()
	}
	if doc.Status == "" {
		doc.Status = models.StatusProcessing
	}
	now := time.Now()
	doc.CreatedAt = now
	doc.UpdatedAt = now

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tcm_document (`+docColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		doc.ID, doc.KnowledgeBaseID, doc.Name, doc.FileType, doc.FileSize, doc.FilePath,
		doc.CharCount, doc.ParagraphCount, string(doc.Status), doc.Progress, doc.Error,
		doc.CreatedAt, doc.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert document: %w", err)
	}
	return nil
}

// GetDocument returns a document by ID.
func (s *SQLiteStorage) GetDocument(ctx context.Context, id string) (*models.Document, error) {
	doc, err := scanDocument(s.db.QueryRowContext(ctx,
		`SELECT `+docColumns+` FROM tcm_document WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("document %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// UpdateDocumentProgress records a processing state change.
func (s *SQLiteStorage) UpdateDocumentProgress(ctx context.Context, id string, p models.DocumentProgress) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE tcm_document SET status = ?, progress = ?, error = ?,
		 char_count = COALESCE(?, char_count),
		 paragraph_count = COALESCE(?, paragraph_count),
		 updated_at = ?
		 WHERE id = ?`,
		string(p.Status), p.Progress, p.Error, nullableInt(p.CharCount), nullableInt(p.ParagraphCount),
		time.Now(), id,
	)
	if err != nil {
		return err
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("document %s: %w", id, ErrNotFound)
	}
	return nil
}

func nullableInt(v *int) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

// DeleteDocument removes a document row. Paragraphs and embeddings are
// removed separately through the vector store.
func (s *SQLiteStorage) DeleteDocument(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM tcm_document WHERE id = ?`, id)
	return err
}

// ListDocuments returns the documents of a knowledge base, newest first.
func (s *SQLiteStorage) ListDocuments(ctx context.Context, kbID string, offset, limit int) ([]*models.Document, error) {
	return s.queryDocuments(ctx,
		`SELECT `+docColumns+` FROM tcm_document WHERE knowledge_base_id = ?
		 ORDER BY created_at DESC LIMIT ? OFFSET ?`,
		kbID, limit, offset)
}

// ListUnfinishedDocuments returns every document whose status is not completed.
func (s *SQLiteStorage) ListUnfinishedDocuments(ctx context.Context) ([]*models.Document, error) {
	return s.queryDocuments(ctx,
		`SELECT `+docColumns+` FROM tcm_document WHERE status <> ? ORDER BY created_at`,
		string(models.StatusCompleted))
}

func (s *SQLiteStorage) queryDocuments(ctx context.Context, query string, args ...interface{}) ([]*models.Document, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []*models.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// CountDocuments returns the number of documents in a knowledge base.
func (s *SQLiteStorage) CountDocuments(ctx context.Context, kbID string) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM tcm_document WHERE knowledge_base_id = ?`, kbID).Scan(&count)
	return count, err
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}
