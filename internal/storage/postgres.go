package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/hyperjump/tcmkb/internal/models"
)

type knowledgeBaseRow struct {
	ID                  string    `gorm:"primaryKey;type:varchar(36)"`
	Name                string    `gorm:"type:varchar(255);not null"`
	Description         string    `gorm:"type:text;not null;default:''"`
	IsActive            bool      `gorm:"not null;default:true"`
	EmbeddingModel      string    `gorm:"type:varchar(255);not null"`
	EmbeddingDimension  int       `gorm:"not null"`
	SimilarityThreshold float64   `gorm:"not null;default:0.5"`
	SearchType          string    `gorm:"type:varchar(20);not null;default:'blend'"`
	TopK                int       `gorm:"not null;default:5"`
	CreatedAt           time.Time `gorm:"autoCreateTime"`
	UpdatedAt           time.Time `gorm:"autoUpdateTime"`
}

func (knowledgeBaseRow) TableName() string { return "tcm_knowledge_base" }

func (r knowledgeBaseRow) model() *models.KnowledgeBase {
	return &models.KnowledgeBase{
		ID:                  r.ID,
		Name:                r.Name,
		Description:         r.Description,
		IsActive:            r.IsActive,
		EmbeddingModel:      r.EmbeddingModel,
		EmbeddingDimension:  r.EmbeddingDimension,
		SimilarityThreshold: r.SimilarityThreshold,
		SearchType:          models.SearchType(r.SearchType),
		TopK:                r.TopK,
		CreatedAt:           r.CreatedAt,
		UpdatedAt:           r.UpdatedAt,
	}
}

type documentRow struct {
	ID              string    `gorm:"primaryKey;type:varchar(36)"`
	KnowledgeBaseID string    `gorm:"type:varchar(36);not null;index:idx_document_kb"`
	Name            string    `gorm:"type:varchar(512);not null"`
	FileType        string    `gorm:"type:varchar(20);not null"`
	FileSize        int64     `gorm:"not null;default:0"`
	FilePath        string    `gorm:"type:text;not null;default:''"`
	CharCount       int       `gorm:"not null;default:0"`
	ParagraphCount  int       `gorm:"not null;default:0"`
	Status          string    `gorm:"type:varchar(32);not null;default:'processing';index"`
	Progress        int       `gorm:"not null;default:0"`
	Error           string    `gorm:"type:text;not null;default:''"`
	CreatedAt       time.Time `gorm:"autoCreateTime"`
	UpdatedAt       time.Time `gorm:"autoUpdateTime"`
}

func (documentRow) TableName() string { return "tcm_document" }

func (r documentRow) model() *models.Document {
	return &models.Document{
		ID:              r.ID,
		KnowledgeBaseID: r.KnowledgeBaseID,
		Name:            r.Name,
		FileType:        r.FileType,
		FileSize:        r.FileSize,
		FilePath:        r.FilePath,
		CharCount:       r.CharCount,
		ParagraphCount:  r.ParagraphCount,
		Status:          models.DocumentStatus(r.Status),
		Progress:        r.Progress,
		Error:           r.Error,
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
	}
}

// PostgresStorage implements Storage using PostgreSQL through gorm.
type PostgresStorage struct {
	db *gorm.DB
}

// PostgresOptions sizes the connection pool.
type PostgresOptions struct {
	MaxOpenConns int
	MaxIdleConns int
}

// NewPostgresStorage connects to dsn and migrates the knowledge base and document tables.
func NewPostgresStorage(dsn string, opts PostgresOptions) (*PostgresStorage, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:                 logger.Default.LogMode(logger.Silent),
		SkipDefaultTransaction: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}
	if opts.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(opts.MaxOpenConns)
	}
	if opts.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(opts.MaxIdleConns)
	}
	sqlDB.SetConnMaxLifetime(time.Hour)

	return NewPostgresStorageFromGorm(db)
}

// NewPostgresStorageFromGorm wraps an open gorm handle and migrates the schema.
func NewPostgresStorageFromGorm(db *gorm.DB) (*PostgresStorage, error) {
	if err := db.AutoMigrate(&knowledgeBaseRow{}, &documentRow{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return &PostgresStorage{db: db}, nil
}

// Gorm returns the underlying handle for packages that own other tables.
func (s *PostgresStorage) Gorm() *gorm.DB {
	return s.db
}

func notFound(err error, kind, id string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
	}
	return err
}

// CreateKnowledgeBase inserts kb, assigning an ID when empty.
func (s *PostgresStorage) CreateKnowledgeBase(ctx context.Context, kb *models.KnowledgeBase) error {
	if kb.ID == "" {
		kb.ID = uuid.New().String()
	}
	row := knowledgeBaseRow{
		ID:                  kb.ID,
		Name:                kb.Name,
		Description:         kb.Description,
		IsActive:            kb.IsActive,
		EmbeddingModel:      kb.EmbeddingModel,
		EmbeddingDimension:  kb.EmbeddingDimension,
		SimilarityThreshold: kb.SimilarityThreshold,
		SearchType:          string(kb.SearchType),
		TopK:                kb.TopK,
	}
	// Select("*") writes zero values such as is_active=false instead of column defaults.
	if err := s.db.WithContext(ctx).Select("*").Create(&row).Error; err != nil {
		return fmt.Errorf("failed to insert knowledge base: %w", err)
	}
	kb.CreatedAt = row.CreatedAt
	kb.UpdatedAt = row.UpdatedAt
	return nil
}

// GetKnowledgeBase returns a knowledge base by ID.
func (s *PostgresStorage) GetKnowledgeBase(ctx context.Context, id string) (*models.KnowledgeBase, error) {
	var row knowledgeBaseRow
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&row).Error; err != nil {
		return nil, notFound(err, "knowledge base", id)
	}
	return row.model(), nil
}

// ListKnowledgeBases returns knowledge bases ordered by creation time.
func (s *PostgresStorage) ListKnowledgeBases(ctx context.Context, offset, limit int) ([]*models.KnowledgeBase, error) {
	var rows []knowledgeBaseRow
	if err := s.db.WithContext(ctx).Order("created_at").Offset(offset).Limit(limit).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]*models.KnowledgeBase, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.model())
	}
	return out, nil
}

// SetKnowledgeBaseActive toggles is_active.
func (s *PostgresStorage) SetKnowledgeBaseActive(ctx context.Context, id string, active bool) error {
	result := s.db.WithContext(ctx).Model(&knowledgeBaseRow{}).Where("id = ?", id).
		Updates(map[string]interface{}{"is_active": active, "updated_at": time.Now()})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("knowledge base %s: %w", id, ErrNotFound)
	}
	return nil
}

// CreateDocument inserts a document, assigning an ID when empty.
func (s *PostgresStorage) CreateDocument(ctx context.Context, doc *models.Document) error {
	if doc.ID == "" {
		doc.ID = uuid.New().String()
	}
	if doc.Status == "" {
		doc.Status = models.StatusProcessing
	}
	row := documentRow{
		ID:              doc.ID,
		KnowledgeBaseID: doc.KnowledgeBaseID,
		Name:            doc.Name,
		FileType:        doc.FileType,
		FileSize:        doc.FileSize,
		FilePath:        doc.FilePath,
		CharCount:       doc.CharCount,
		ParagraphCount:  doc.ParagraphCount,
		Status:          string(doc.Status),
		Progress:        doc.Progress,
		Error:           doc.Error,
	}
	if err := s.db.WithContext(ctx).Select("*").Create(&row).Error; err != nil {
		return fmt.Errorf("failed to insert document: %w", err)
	}
	doc.CreatedAt = row.CreatedAt
	doc.UpdatedAt = row.UpdatedAt
	return nil
}

// GetDocument returns a document by ID.
func (s *PostgresStorage) GetDocument(ctx context.Context, id string) (*models.Document, error) {
	var row documentRow
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&row).Error; err != nil {
		return nil, notFound(err, "document", id)
	}
	return row.model(), nil
}

// UpdateDocumentProgress records a processing state change.
func (s *PostgresStorage) UpdateDocumentProgress(ctx context.Context, id string, p models.DocumentProgress) error {
	updates := map[string]interface{}{
		"status":     string(p.Status),
		"progress":   p.Progress,
		"error":      p.Error,
		"updated_at": time.Now(),
	}
	if p.CharCount != nil {
		updates["char_count"] = *p.CharCount
	}
	if p.ParagraphCount != nil {
		updates["paragraph_count"] = *p.ParagraphCount
	}
	result := s.db.WithContext(ctx).Model(&documentRow{}).Where("id = ?", id).Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("document %s: %w", id, ErrNotFound)
	}
	return nil
}

// DeleteDocument removes a document row.
func (s *PostgresStorage) DeleteDocument(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Where("id = ?", id).Delete(&documentRow{}).Error
}

// ListDocuments returns the documents of a knowledge base, newest first.
func (s *PostgresStorage) ListDocuments(ctx context.Context, kbID string, offset, limit int) ([]*models.Document, error) {
	var rows []documentRow
	err := s.db.WithContext(ctx).Where("knowledge_base_id = ?", kbID).
		Order("created_at DESC").Offset(offset).Limit(limit).Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return documentModels(rows), nil
}

// ListUnfinishedDocuments returns every document whose status is not completed.
func (s *PostgresStorage) ListUnfinishedDocuments(ctx context.Context) ([]*models.Document, error) {
	var rows []documentRow
	err := s.db.WithContext(ctx).Where("status <> ?", string(models.StatusCompleted)).
		Order("created_at").Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return documentModels(rows), nil
}

func documentModels(rows []documentRow) []*models.Document {
	out := make([]*models.Document, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.model())
	}
	return out
}

// CountDocuments returns the number of documents in a knowledge base.
func (s *PostgresStorage) CountDocuments(ctx context.Context, kbID string) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&documentRow{}).Where("knowledge_base_id = ?", kbID).Count(&count).Error
	return count, err
}

// Close closes the database connection.
func (s *PostgresStorage) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
