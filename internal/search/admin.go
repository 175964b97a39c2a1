package search

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyperjump/tcmkb/internal/config"
	"github.com/hyperjump/tcmkb/internal/models"
)

// KnowledgeBaseDefaults converts the configured defaults for new knowledge bases.
func KnowledgeBaseDefaults(cfg config.KnowledgeBaseConfig) models.KnowledgeBaseDefaults {
	return models.KnowledgeBaseDefaults{
		EmbeddingModel:      cfg.EmbeddingModel,
		EmbeddingDimension:  cfg.EmbeddingDimension,
		SimilarityThreshold: cfg.SimilarityThreshold,
		SearchType:          models.SearchType(cfg.SearchType),
		TopK:                cfg.TopK,
	}
}

// CreateKnowledgeBase validates in, fills defaults and stores the knowledge
// base. The embedding model must be registered with a matching dimension.
func (e *Engine) CreateKnowledgeBase(ctx context.Context, in models.KnowledgeBaseInput, d models.KnowledgeBaseDefaults) (*models.KnowledgeBase, error) {
	if err := in.Validate(); err != nil {
		return nil, &ValidationError{Err: err}
	}
	kb := models.NewKnowledgeBase(in, d)
	kb.ID = uuid.New().String()
	if _, err := e.stores.For(kb); err != nil {
		return nil, &ValidationError{Err: err}
	}
	if err := e.storage.CreateKnowledgeBase(ctx, kb); err != nil {
		return nil, err
	}
	e.logger.Info("knowledge base created",
		zap.String("knowledge_base_id", kb.ID),
		zap.String("name", kb.Name),
		zap.String("embedding_model", kb.EmbeddingModel))
	return kb, nil
}

// CreateIndex builds the knowledge base's embedding index.
func (e *Engine) CreateIndex(ctx context.Context, kbID string) error {
	_, vs, err := e.storeFor(ctx, kbID)
	if err != nil {
		return err
	}
	return vs.CreateIndex(ctx)
}

// DropIndex removes the knowledge base's embedding index.
func (e *Engine) DropIndex(ctx context.Context, kbID string) error {
	_, vs, err := e.storeFor(ctx, kbID)
	if err != nil {
		return err
	}
	return vs.DropIndex(ctx)
}

// UpdateParagraph applies u to one paragraph and returns it.
func (e *Engine) UpdateParagraph(ctx context.Context, kbID, paragraphID string, u models.ParagraphUpdate) (*models.Paragraph, error) {
	if u.Content != nil && *u.Content == "" {
		return nil, &ValidationError{Err: fmt.Errorf("content cannot be empty")}
	}
	_, vs, err := e.storeFor(ctx, kbID)
	if err != nil {
		return nil, err
	}
	if err := vs.UpdateByParagraphID(ctx, paragraphID, u); err != nil {
		return nil, err
	}
	return vs.GetParagraph(ctx, paragraphID)
}

// ApplyEmbeddingOperation runs a bulk delete on one knowledge base.
func (e *Engine) ApplyEmbeddingOperation(ctx context.Context, op *models.EmbeddingOperation) error {
	if err := op.Validate(); err != nil {
		return &ValidationError{Err: err}
	}
	_, vs, err := e.storeFor(ctx, op.KnowledgeBaseID)
	if err != nil {
		return err
	}
	switch op.Operation {
	case models.OpDeleteByDocumentIDs:
		err = vs.DeleteByDocumentIDs(ctx, op.DocumentIDs)
	case models.OpDeleteByKnowledgeID:
		err = vs.DeleteByKnowledgeID(ctx)
	case models.OpDeleteBySourceIDs:
		err = vs.DeleteBySourceIDs(ctx, op.SourceIDs, op.SourceType)
	}
	if err != nil {
		return fmt.Errorf("%s: %w", op.Operation, err)
	}
	e.logger.Info("embedding operation applied",
		zap.String("operation", op.Operation),
		zap.String("knowledge_base_id", op.KnowledgeBaseID))
	return nil
}
