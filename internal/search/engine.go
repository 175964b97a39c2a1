package search

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/tcmkb/internal/config"
	"github.com/hyperjump/tcmkb/internal/metrics"
	"github.com/hyperjump/tcmkb/internal/models"
	"github.com/hyperjump/tcmkb/internal/storage"
	"github.com/hyperjump/tcmkb/internal/vector"
	"github.com/hyperjump/tcmkb/pkg/utils"
)

// ErrInactiveKnowledgeBase is returned when searching a deactivated knowledge base.
var ErrInactiveKnowledgeBase = errors.New("knowledge base is inactive")

// ValidationError marks a request the caller must fix.
type ValidationError struct{ Err error }

func (e *ValidationError) Error() string { return e.Err.Error() }
func (e *ValidationError) Unwrap() error { return e.Err }

// Engine runs searches against knowledge bases.
type Engine struct {
	storage storage.Storage
	stores  *vector.Stores
	config  config.SearchConfig
	logger  *zap.Logger
}

// NewEngine creates a search engine with the given dependencies.
func NewEngine(st storage.Storage, stores *vector.Stores, cfg config.SearchConfig, logger *zap.Logger) *Engine {
	return &Engine{
		storage: st,
		stores:  stores,
		config:  cfg,
		logger:  utils.LoggerOrNop(logger),
	}
}

func (e *Engine) storeFor(ctx context.Context, kbID string) (*models.KnowledgeBase, vector.VectorStore, error) {
	kb, err := e.storage.GetKnowledgeBase(ctx, kbID)
	if err != nil {
		return nil, nil, err
	}
	vs, err := e.stores.For(kb)
	if err != nil {
		return nil, nil, err
	}
	return kb, vs, nil
}

// Search runs one search against a single knowledge base and drops results
// below the request threshold, or the knowledge base's when unset.
func (e *Engine) Search(ctx context.Context, req *models.SearchRequest) (*models.SearchResponse, error) {
	startTime := time.Now()
	if err := req.Validate(); err != nil {
		return nil, &ValidationError{Err: err}
	}
	kb, vs, err := e.storeFor(ctx, req.KnowledgeBaseID)
	if err != nil {
		return nil, err
	}
	if !kb.IsActive {
		return nil, fmt.Errorf("knowledge base %s: %w", kb.ID, ErrInactiveKnowledgeBase)
	}
	if err := ProcessQuery(req, kb, e.config.MaxTopK); err != nil {
		return nil, &ValidationError{Err: err}
	}

	results, err := vs.SimilaritySearch(ctx, req.Query, req.TopK, req.Filter, req.SearchType)
	if err != nil {
		return nil, err
	}
	metrics.SearchDuration.WithLabelValues(string(req.SearchType)).Observe(time.Since(startTime).Seconds())

	threshold := kb.SimilarityThreshold
	if req.Threshold != nil {
		threshold = *req.Threshold
	}
	results = FilterByThreshold(results, threshold)

	return &models.SearchResponse{
		KnowledgeBaseID: kb.ID,
		Query:           req.Query,
		SearchType:      req.SearchType,
		Threshold:       threshold,
		Results:         results,
		Total:           len(results),
		QueryTime:       time.Since(startTime).Milliseconds(),
	}, nil
}

// Retrieve gathers chat context from several knowledge bases. Each active
// knowledge base is blend searched concurrently; results are merged by
// score, cut to TopK and filtered by the dynamic threshold, whose base is the
// strictest threshold among the knowledge bases searched.
func (e *Engine) Retrieve(ctx context.Context, req *models.RetrieveRequest) (*models.RetrieveResponse, error) {
	startTime := time.Now()
	if err := req.Validate(); err != nil {
		return nil, &ValidationError{Err: err}
	}

	type target struct {
		kb *models.KnowledgeBase
		vs vector.VectorStore
	}
	var targets []target
	topK := req.TopK
	for _, id := range req.KnowledgeBaseIDs {
		kb, vs, err := e.storeFor(ctx, id)
		if err != nil {
			return nil, err
		}
		if !kb.IsActive {
			e.logger.Info("skipping inactive knowledge base", zap.String("knowledge_base_id", kb.ID))
			continue
		}
		targets = append(targets, target{kb: kb, vs: vs})
		if req.TopK == 0 && kb.TopK > topK {
			topK = kb.TopK
		}
	}
	if e.config.MaxTopK > 0 && topK > e.config.MaxTopK {
		topK = e.config.MaxTopK
	}

	var (
		lists   = make([][]*models.SearchResult, len(targets))
		errChan = make(chan error, len(targets))
		wg      sync.WaitGroup
	)
	for i, t := range targets {
		wg.Add(1)
		go func(i int, t target) {
			defer wg.Done()
			results, err := t.vs.BlendSearch(ctx, req.Query, topK, req.Filter)
			if err != nil {
				errChan <- fmt.Errorf("knowledge base %s: %w", t.kb.ID, err)
				return
			}
			lists[i] = results
		}(i, t)
	}
	wg.Wait()
	close(errChan)
	for err := range errChan {
		if err != nil {
			return nil, err
		}
	}
	metrics.SearchDuration.WithLabelValues("retrieve").Observe(time.Since(startTime).Seconds())

	merged := MergeResults(lists, topK)
	base := 0.0
	for _, t := range targets {
		if t.kb.SimilarityThreshold > base {
			base = t.kb.SimilarityThreshold
		}
	}
	threshold := DynamicThreshold(merged, base)
	results := FilterByThreshold(merged, threshold)
	e.logger.Debug("retrieved context",
		zap.Float64("base_threshold", base),
		zap.Float64("threshold", threshold),
		zap.Int("candidates", len(merged)),
		zap.Int("kept", len(results)))

	return &models.RetrieveResponse{
		Query:            req.Query,
		KnowledgeBaseIDs: req.KnowledgeBaseIDs,
		Threshold:        threshold,
		Results:          results,
		Total:            len(results),
		QueryTime:        time.Since(startTime).Milliseconds(),
	}, nil
}

// Stats summarises a knowledge base.
func (e *Engine) Stats(ctx context.Context, kbID string) (*models.KnowledgeBaseStats, error) {
	kb, vs, err := e.storeFor(ctx, kbID)
	if err != nil {
		return nil, err
	}
	docs, err := e.storage.CountDocuments(ctx, kb.ID)
	if err != nil {
		return nil, err
	}
	vectors, err := vs.Count(ctx)
	if err != nil {
		return nil, err
	}
	return &models.KnowledgeBaseStats{
		KnowledgeBaseID: kb.ID,
		DocumentCount:   int(docs),
		VectorCount:     int(vectors),
		EmbeddingModel:  kb.EmbeddingModel,
		SearchType:      kb.SearchType,
	}, nil
}
