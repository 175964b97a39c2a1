// Package vector stores paragraph embeddings per knowledge base and ranks
// paragraphs by embedding similarity, keyword overlap or a blend of both.
package vector

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyperjump/tcmkb/internal/embedding"
	"github.com/hyperjump/tcmkb/internal/models"
	"github.com/hyperjump/tcmkb/internal/storage"
	"github.com/hyperjump/tcmkb/pkg/utils"
)

// Blend weights applied when a paragraph is found by both strategies.
const (
	BlendEmbeddingWeight = 0.6
	BlendKeywordWeight   = 0.4
)

// VectorStore is the retrieval and maintenance surface of one knowledge base.
type VectorStore interface {
	KnowledgeBaseID() string

	AddTexts(ctx context.Context, texts []string, metas []models.ParagraphMeta) ([]string, error)

	SimilaritySearch(ctx context.Context, query string, k int, filter models.Filter, searchType models.SearchType) ([]*models.SearchResult, error)
	EmbeddingSearch(ctx context.Context, query string, k int, filter models.Filter) ([]*models.SearchResult, error)
	KeywordsSearch(ctx context.Context, query string, k int, filter models.Filter) ([]*models.SearchResult, error)
	BlendSearch(ctx context.Context, query string, k int, filter models.Filter) ([]*models.SearchResult, error)

	Delete(ctx context.Context, paragraphIDs []string) error
	DeleteByKnowledgeID(ctx context.Context) error
	DeleteByDocumentID(ctx context.Context, documentID string) error
	DeleteByDocumentIDs(ctx context.Context, documentIDs []string) error
	DeleteBySourceID(ctx context.Context, sourceID, sourceType string) error
	DeleteBySourceIDs(ctx context.Context, sourceIDs []string, sourceType string) error

	UpdateByParagraphID(ctx context.Context, paragraphID string, u models.ParagraphUpdate) error
	UpdateBySourceID(ctx context.Context, sourceID string, u models.ParagraphUpdate) error

	GetParagraph(ctx context.Context, paragraphID string) (*models.Paragraph, error)
	Count(ctx context.Context) (int64, error)

	EnsureIndex(ctx context.Context) error
	CreateIndex(ctx context.Context) error
	DropIndex(ctx context.Context) error
}

// Store implements VectorStore over a Backend for one knowledge base.
type Store struct {
	backend  Backend
	kbID     string
	provider *embedding.Provider
	logger   *zap.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// NewStore binds backend to kb. The provider must produce vectors of the
// knowledge base's dimension.
func NewStore(backend Backend, kb *models.KnowledgeBase, provider *embedding.Provider, opts ...Option) (*Store, error) {
	kbID, err := ValidateKnowledgeBaseID(kb.ID)
	if err != nil {
		return nil, err
	}
	if provider.Dimensions() != kb.EmbeddingDimension {
		return nil, fmt.Errorf("knowledge base %s expects %d dimensions, model %s produces %d",
			kbID, kb.EmbeddingDimension, provider.Model(), provider.Dimensions())
	}
	s := &Store{backend: backend, kbID: kbID, provider: provider}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = utils.LoggerOrNop(s.logger).With(zap.String("knowledge_base_id", kbID))
	return s, nil
}

// KnowledgeBaseID returns the canonical id of the bound knowledge base.
func (s *Store) KnowledgeBaseID() string { return s.kbID }

// AddTexts embeds texts and upserts one paragraph and one embedding per
// text. metas may be nil; otherwise it must match texts in length. A
// paragraph id in the meta is reused, else a new one is generated. Each
// pair commits on its own, so pairs before a failure stay stored.
func (s *Store) AddTexts(ctx context.Context, texts []string, metas []models.ParagraphMeta) ([]string, error) {
	if metas != nil && len(metas) != len(texts) {
		return nil, fmt.Errorf("texts and metas length mismatch: %d != %d", len(texts), len(metas))
	}
	if len(texts) == 0 {
		return nil, nil
	}
	if err := s.EnsureIndex(ctx); err != nil {
		return nil, fmt.Errorf("ensure index: %w", err)
	}

	vectors := s.provider.EmbedBatch(ctx, texts)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(texts))
	for i, text := range texts {
		var meta models.ParagraphMeta
		if metas != nil {
			meta = metas[i]
		}
		id := meta.ParagraphID
		if id == "" {
			id = uuid.New().String()
		}
		meta.ParagraphID = id
		meta.KnowledgeID = s.kbID

		p := &models.Paragraph{
			ID:          id,
			DocumentID:  meta.DocumentID,
			KnowledgeID: s.kbID,
			SourceID:    meta.SourceID,
			SourceType:  meta.SourceTypeOrDefault(),
			IsActive:    meta.Active(),
			Content:     text,
			Title:       meta.Title,
			PageNumber:  meta.PageNumber,
			Meta:        meta,
		}
		e := &EmbeddingRow{
			ID:          uuid.New().String(),
			SourceID:    p.SourceID,
			SourceType:  p.SourceType,
			IsActive:    p.IsActive,
			KnowledgeID: s.kbID,
			DocumentID:  p.DocumentID,
			ParagraphID: id,
			Embedding:   vectors[i],
			Meta:        meta,
		}
		if err := s.backend.UpsertParagraph(ctx, p, e); err != nil {
			return ids, fmt.Errorf("paragraph %d of %d: %w", i+1, len(texts), err)
		}
		ids = append(ids, id)
	}
	s.logger.Debug("added texts", zap.Int("count", len(ids)))
	return ids, nil
}

// SimilaritySearch dispatches on searchType. Unknown types use embedding search.
func (s *Store) SimilaritySearch(ctx context.Context, query string, k int, filter models.Filter, searchType models.SearchType) ([]*models.SearchResult, error) {
	switch searchType {
	case models.SearchTypeKeywords:
		return s.KeywordsSearch(ctx, query, k, filter)
	case models.SearchTypeBlend:
		return s.BlendSearch(ctx, query, k, filter)
	default:
		return s.EmbeddingSearch(ctx, query, k, filter)
	}
}

// EmbeddingSearch ranks every active paragraph by exact cosine similarity to
// the query embedding. Stored vectors whose length differs from the query are
// skipped.
func (s *Store) EmbeddingSearch(ctx context.Context, query string, k int, filter models.Filter) ([]*models.SearchResult, error) {
	if k <= 0 {
		return []*models.SearchResult{}, nil
	}
	q := s.provider.Embed(ctx, query)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var results []*models.SearchResult
	var mismatched int64
	err := s.backend.ScanEmbeddings(ctx, s.kbID, filter, func(c Candidate) error {
		if len(c.Embedding) != len(q) {
			mismatched++
			return nil
		}
		results = append(results, newResult(c.Paragraph, CosineSimilarity(q, c.Embedding), models.SearchTypeEmbedding))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("embedding search: %w", err)
	}
	if mismatched > 0 {
		s.logger.Warn("skipped embeddings with mismatched dimension",
			zap.Int64("count", mismatched), zap.Int("query_dimension", len(q)))
	}
	return rank(results, k), nil
}

// KeywordsSearch ranks paragraphs by the fraction of distinct query words
// they contain. A query without words yields no results.
func (s *Store) KeywordsSearch(ctx context.Context, query string, k int, filter models.Filter) ([]*models.SearchResult, error) {
	tokens := KeywordTokens(query)
	if k <= 0 || len(tokens) == 0 {
		return []*models.SearchResult{}, nil
	}
	cands, err := s.backend.KeywordCandidates(ctx, s.kbID, tokens, filter)
	if err != nil {
		return nil, fmt.Errorf("keywords search: %w", err)
	}
	results := make([]*models.SearchResult, 0, len(cands))
	for _, p := range cands {
		score := KeywordScore(tokens, p.Content, p.Title)
		if score == 0 {
			continue
		}
		results = append(results, newResult(p, score, models.SearchTypeKeywords))
	}
	return rank(results, k), nil
}

// BlendSearch runs both strategies with 2k candidates each. Paragraphs found
// by both get the weighted sum; the rest keep their own score and type.
func (s *Store) BlendSearch(ctx context.Context, query string, k int, filter models.Filter) ([]*models.SearchResult, error) {
	if k <= 0 {
		return []*models.SearchResult{}, nil
	}
	emb, err := s.EmbeddingSearch(ctx, query, 2*k, filter)
	if err != nil {
		return nil, err
	}
	kw, err := s.KeywordsSearch(ctx, query, 2*k, filter)
	if err != nil {
		return nil, err
	}
	return rank(blend(emb, kw), k), nil
}

func blend(emb, kw []*models.SearchResult) []*models.SearchResult {
	merged := make(map[string]*models.SearchResult, len(emb)+len(kw))
	out := make([]*models.SearchResult, 0, len(emb)+len(kw))
	for _, r := range emb {
		merged[r.ParagraphID] = r
		out = append(out, r)
	}
	for _, r := range kw {
		if e, ok := merged[r.ParagraphID]; ok {
			e.Score = BlendEmbeddingWeight*e.Score + BlendKeywordWeight*r.Score
			e.SearchType = models.SearchTypeBlend
			continue
		}
		out = append(out, r)
	}
	return out
}

func newResult(p *models.Paragraph, score float64, t models.SearchType) *models.SearchResult {
	return &models.SearchResult{
		ParagraphID: p.ID,
		DocumentID:  p.DocumentID,
		KnowledgeID: p.KnowledgeID,
		Title:       p.Title,
		Content:     p.Content,
		PageNumber:  p.PageNumber,
		Meta:        p.Meta,
		Score:       score,
		SearchType:  t,
	}
}

// rank sorts by descending score, ties by paragraph id, keeps the top k and
// numbers them from 1.
func rank(results []*models.SearchResult, k int) []*models.SearchResult {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ParagraphID < results[j].ParagraphID
	})
	if len(results) > k {
		results = results[:k]
	}
	for i, r := range results {
		r.Rank = i + 1
	}
	if results == nil {
		return []*models.SearchResult{}
	}
	return results
}

func (s *Store) delete(ctx context.Context, sel Selector) error {
	n, err := s.backend.Delete(ctx, s.kbID, sel)
	if err != nil {
		return err
	}
	s.logger.Debug("deleted paragraphs", zap.Int64("count", n))
	return nil
}

// Delete removes paragraphs and their embeddings by paragraph id.
func (s *Store) Delete(ctx context.Context, paragraphIDs []string) error {
	return s.delete(ctx, Selector{ParagraphIDs: paragraphIDs})
}

// DeleteByKnowledgeID removes every paragraph and embedding of the knowledge base.
func (s *Store) DeleteByKnowledgeID(ctx context.Context) error {
	return s.delete(ctx, Selector{All: true})
}

// DeleteByDocumentID removes the paragraphs and embeddings of one document.
func (s *Store) DeleteByDocumentID(ctx context.Context, documentID string) error {
	if documentID == "" {
		return nil
	}
	return s.delete(ctx, Selector{DocumentIDs: []string{documentID}})
}

// DeleteByDocumentIDs removes the paragraphs and embeddings of several documents.
func (s *Store) DeleteByDocumentIDs(ctx context.Context, documentIDs []string) error {
	return s.delete(ctx, Selector{DocumentIDs: documentIDs})
}

// DeleteBySourceID removes paragraphs owned by sourceID. An empty sourceType matches any type.
func (s *Store) DeleteBySourceID(ctx context.Context, sourceID, sourceType string) error {
	if sourceID == "" {
		return nil
	}
	return s.delete(ctx, Selector{SourceIDs: []string{sourceID}, SourceType: sourceType})
}

// DeleteBySourceIDs removes paragraphs owned by any of sourceIDs.
func (s *Store) DeleteBySourceIDs(ctx context.Context, sourceIDs []string, sourceType string) error {
	return s.delete(ctx, Selector{SourceIDs: sourceIDs, SourceType: sourceType})
}

// UpdateByParagraphID changes one paragraph. Its embedding is left as is.
func (s *Store) UpdateByParagraphID(ctx context.Context, paragraphID string, u models.ParagraphUpdate) error {
	if u.Empty() {
		return nil
	}
	n, err := s.backend.Update(ctx, s.kbID, Selector{ParagraphIDs: []string{paragraphID}}, u)
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("paragraph %s: %w", paragraphID, storage.ErrNotFound)
	}
	return nil
}

// UpdateBySourceID changes every paragraph owned by sourceID.
func (s *Store) UpdateBySourceID(ctx context.Context, sourceID string, u models.ParagraphUpdate) error {
	if sourceID == "" {
		return nil
	}
	_, err := s.backend.Update(ctx, s.kbID, Selector{SourceIDs: []string{sourceID}}, u)
	return err
}

// GetParagraph returns one paragraph of the knowledge base.
func (s *Store) GetParagraph(ctx context.Context, paragraphID string) (*models.Paragraph, error) {
	return s.backend.GetParagraph(ctx, s.kbID, paragraphID)
}

// Count returns the number of embeddings stored for the knowledge base.
func (s *Store) Count(ctx context.Context) (int64, error) {
	return s.backend.CountEmbeddings(ctx, s.kbID)
}

// EnsureIndex creates the knowledge base index when it does not exist.
func (s *Store) EnsureIndex(ctx context.Context) error {
	ok, err := s.backend.IndexExists(ctx, s.kbID)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	return s.CreateIndex(ctx)
}

// CreateIndex creates the knowledge base index, sizing ivfflat lists from the
// current row count.
func (s *Store) CreateIndex(ctx context.Context) error {
	n, err := s.backend.CountEmbeddings(ctx, s.kbID)
	if err != nil {
		return err
	}
	lists := ListsForRowCount(n)
	if err := s.backend.CreateIndex(ctx, s.kbID, s.provider.Dimensions(), lists); err != nil {
		return fmt.Errorf("create index %s: %w", IndexName(s.kbID), err)
	}
	s.logger.Info("created embedding index", zap.Int64("rows", n), zap.Int("lists", lists))
	return nil
}

// DropIndex drops the knowledge base index.
func (s *Store) DropIndex(ctx context.Context) error {
	return s.backend.DropIndex(ctx, s.kbID)
}
