package vector

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/google/uuid"

	"github.com/hyperjump/tcmkb/internal/embedding"
	"github.com/hyperjump/tcmkb/internal/models"
	"github.com/hyperjump/tcmkb/internal/storage"
)

const testDims = 32

func newTestBackend(t *testing.T) *SQLiteBackend {
	t.Helper()
	st, err := storage.NewSQLiteStorage(filepath.Join(t.TempDir(), "vec.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = st.Close() })
	b, err := NewSQLiteBackend(st.DB())
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func testKB() *models.KnowledgeBase {
	return &models.KnowledgeBase{
		ID:                 uuid.New().String(),
		Name:               "test",
		IsActive:           true,
		EmbeddingModel:     "mock",
		EmbeddingDimension: testDims,
	}
}

func newTestStore(t *testing.T, b Backend) *Store {
	t.Helper()
	provider := embedding.NewProvider("mock", embedding.NewMockEmbedder(testDims), testDims)
	s, err := NewStore(b, testKB(), provider)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func docMeta(docID string) models.ParagraphMeta {
	return models.ParagraphMeta{DocumentID: docID, SourceID: docID, SourceType: models.SourceTypeParagraph}
}

func TestNewStore_validation(t *testing.T) {
	b := newTestBackend(t)
	provider := embedding.NewProvider("mock", embedding.NewMockEmbedder(testDims), testDims)

	kb := testKB()
	kb.ID = "not-a-uuid"
	if _, err := NewStore(b, kb, provider); !errors.Is(err, ErrInvalidKnowledgeBaseID) {
		t.Errorf("got %v, want ErrInvalidKnowledgeBaseID", err)
	}

	kb = testKB()
	kb.EmbeddingDimension = 768
	if _, err := NewStore(b, kb, provider); err == nil {
		t.Error("expected dimension mismatch error")
	}
}

func TestStore_keywordAndEmbeddingSearch(t *testing.T) {
	s := newTestStore(t, newTestBackend(t))
	ctx := context.Background()

	ids, err := s.AddTexts(ctx, []string{"咳嗽", "发热"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 2 {
		t.Fatalf("got %d ids, want 2", len(ids))
	}

	kw, err := s.KeywordsSearch(ctx, "咳嗽", 5, models.Filter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(kw) != 1 {
		t.Fatalf("keywords: got %d results, want 1", len(kw))
	}
	if kw[0].Content != "咳嗽" || kw[0].Score != 1.0 || kw[0].SearchType != models.SearchTypeKeywords || kw[0].Rank != 1 {
		t.Errorf("keywords: got %+v", kw[0])
	}

	emb, err := s.EmbeddingSearch(ctx, "咳嗽", 5, models.Filter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(emb) != 2 {
		t.Fatalf("embedding: got %d results, want 2", len(emb))
	}
	if emb[0].Content != "咳嗽" || emb[0].Score < 0.999 || emb[0].SearchType != models.SearchTypeEmbedding {
		t.Errorf("embedding: top result %+v", emb[0])
	}
	if emb[1].Score > emb[0].Score {
		t.Errorf("results not sorted: %v > %v", emb[1].Score, emb[0].Score)
	}

	blend, err := s.BlendSearch(ctx, "咳嗽", 5, models.Filter{})
	if err != nil {
		t.Fatal(err)
	}
	if blend[0].Content != "咳嗽" || blend[0].SearchType != models.SearchTypeBlend {
		t.Errorf("blend: top result %+v", blend[0])
	}
	if blend[0].Score < 0.999 {
		t.Errorf("blend: score %v, want 0.6*1+0.4*1", blend[0].Score)
	}
}

func TestStore_keywordsSearchFoldsUnicodeCase(t *testing.T) {
	s := newTestStore(t, newTestBackend(t))
	ctx := context.Background()
	if _, err := s.AddTexts(ctx, []string{"ÄRZTE Notiz", "Ärzte und Patienten", "咳嗽"}, nil); err != nil {
		t.Fatal(err)
	}

	got, err := s.KeywordsSearch(ctx, "ärzte", 5, models.Filter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d results, want 2: %+v", len(got), got)
	}
	for _, r := range got {
		if r.Score != 1.0 {
			t.Errorf("%q scored %v, want 1", r.Content, r.Score)
		}
	}
}

func TestStore_searchBounds(t *testing.T) {
	s := newTestStore(t, newTestBackend(t))
	ctx := context.Background()

	texts := []string{"太阳病，发热", "阳明病，身热", "少阳病，往来寒热", "太阴病，腹满", "少阴病，脉微细"}
	if _, err := s.AddTexts(ctx, texts, nil); err != nil {
		t.Fatal(err)
	}

	for _, st := range []models.SearchType{models.SearchTypeEmbedding, models.SearchTypeBlend, models.SearchType("bogus")} {
		got, err := s.SimilaritySearch(ctx, "太阳病", 3, models.Filter{}, st)
		if err != nil {
			t.Fatal(err)
		}
		if len(got) != 3 {
			t.Errorf("%s: got %d results, want 3", st, len(got))
		}
		for i, r := range got {
			if r.Rank != i+1 {
				t.Errorf("%s: result %d has rank %d", st, i, r.Rank)
			}
			if i > 0 && r.Score > got[i-1].Score {
				t.Errorf("%s: results not sorted at %d", st, i)
			}
		}
	}

	got, err := s.SimilaritySearch(ctx, "太阳病", 0, models.Filter{}, models.SearchTypeBlend)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Errorf("k=0: got %d results", len(got))
	}

	got, err = s.KeywordsSearch(ctx, "，。", 5, models.Filter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Errorf("no tokens: got %d results", len(got))
	}
}

func TestStore_upsertReplacesEmbedding(t *testing.T) {
	s := newTestStore(t, newTestBackend(t))
	ctx := context.Background()
	meta := models.ParagraphMeta{ParagraphID: "p1", Title: "第1页", PageNumber: models.IntPtr(1)}

	if _, err := s.AddTexts(ctx, []string{"麻黄汤"}, []models.ParagraphMeta{meta}); err != nil {
		t.Fatal(err)
	}
	ids, err := s.AddTexts(ctx, []string{"桂枝汤"}, []models.ParagraphMeta{meta})
	if err != nil {
		t.Fatal(err)
	}
	if ids[0] != "p1" {
		t.Errorf("id = %q, want p1", ids[0])
	}

	n, err := s.Count(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("Count = %d, want 1", n)
	}
	p, err := s.GetParagraph(ctx, "p1")
	if err != nil {
		t.Fatal(err)
	}
	if p.Content != "桂枝汤" || p.Title != "第1页" || p.PageNumber == nil || *p.PageNumber != 1 {
		t.Errorf("got %+v", p)
	}
	if p.SourceType != models.SourceTypeDocument || !p.IsActive || p.Meta.KnowledgeID != s.KnowledgeBaseID() {
		t.Errorf("unexpected linkage %+v", p)
	}

	got, err := s.EmbeddingSearch(ctx, "桂枝汤", 5, models.Filter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Score < 0.999 {
		t.Errorf("search after upsert: %+v", got)
	}
}

func TestStore_addTextsMetaMismatch(t *testing.T) {
	s := newTestStore(t, newTestBackend(t))
	_, err := s.AddTexts(context.Background(), []string{"a", "b"}, []models.ParagraphMeta{{}})
	if err == nil {
		t.Error("expected length mismatch error")
	}
}

func TestStore_addTextsCanceled(t *testing.T) {
	s := newTestStore(t, newTestBackend(t))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := s.AddTexts(ctx, []string{"咳嗽"}, nil); err == nil {
		t.Error("expected context error")
	}
}

func TestStore_deleteFamily(t *testing.T) {
	s := newTestStore(t, newTestBackend(t))
	ctx := context.Background()

	metas := []models.ParagraphMeta{docMeta("d1"), docMeta("d1"), docMeta("d2"), docMeta("d3")}
	ids, err := s.AddTexts(ctx, []string{"一", "二", "三", "四"}, metas)
	if err != nil {
		t.Fatal(err)
	}
	count := func() int64 {
		t.Helper()
		n, err := s.Count(ctx)
		if err != nil {
			t.Fatal(err)
		}
		return n
	}

	if err := s.Delete(ctx, nil); err != nil {
		t.Fatal(err)
	}
	if n := count(); n != 4 {
		t.Fatalf("empty Delete removed rows: %d left", n)
	}

	if err := s.DeleteByDocumentID(ctx, "d1"); err != nil {
		t.Fatal(err)
	}
	if n := count(); n != 2 {
		t.Errorf("after DeleteByDocumentID: %d, want 2", n)
	}
	if _, err := s.GetParagraph(ctx, ids[0]); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("paragraph of d1 still present: %v", err)
	}

	if err := s.DeleteBySourceIDs(ctx, []string{"d2"}, models.SourceTypeDocument); err != nil {
		t.Fatal(err)
	}
	if n := count(); n != 2 {
		t.Errorf("source type mismatch should keep rows: %d, want 2", n)
	}
	if err := s.DeleteBySourceID(ctx, "d2", models.SourceTypeParagraph); err != nil {
		t.Fatal(err)
	}
	if n := count(); n != 1 {
		t.Errorf("after DeleteBySourceID: %d, want 1", n)
	}

	if err := s.Delete(ctx, []string{ids[3]}); err != nil {
		t.Fatal(err)
	}
	if n := count(); n != 0 {
		t.Errorf("after Delete: %d, want 0", n)
	}
}

func TestStore_deleteByKnowledgeIDIsScoped(t *testing.T) {
	b := newTestBackend(t)
	a := newTestStore(t, b)
	other := newTestStore(t, b)
	ctx := context.Background()

	if _, err := a.AddTexts(ctx, []string{"咳嗽", "发热"}, nil); err != nil {
		t.Fatal(err)
	}
	if _, err := other.AddTexts(ctx, []string{"咳嗽"}, nil); err != nil {
		t.Fatal(err)
	}
	if err := a.DeleteByKnowledgeID(ctx); err != nil {
		t.Fatal(err)
	}
	if n, _ := a.Count(ctx); n != 0 {
		t.Errorf("knowledge base a has %d embeddings, want 0", n)
	}
	if n, _ := other.Count(ctx); n != 1 {
		t.Errorf("other knowledge base has %d embeddings, want 1", n)
	}
	got, err := other.KeywordsSearch(ctx, "咳嗽", 5, models.Filter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].KnowledgeID != other.KnowledgeBaseID() {
		t.Errorf("got %+v", got)
	}
}

func TestStore_updateFamily(t *testing.T) {
	s := newTestStore(t, newTestBackend(t))
	ctx := context.Background()

	ids, err := s.AddTexts(ctx, []string{"咳嗽", "咳嗽痰多"}, []models.ParagraphMeta{docMeta("d1"), docMeta("d2")})
	if err != nil {
		t.Fatal(err)
	}

	if err := s.UpdateByParagraphID(ctx, ids[0], models.ParagraphUpdate{IsActive: models.BoolPtr(false)}); err != nil {
		t.Fatal(err)
	}
	got, err := s.KeywordsSearch(ctx, "咳嗽", 5, models.Filter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].ParagraphID != ids[1] {
		t.Errorf("inactive paragraph should be excluded: %+v", got)
	}
	if n, _ := s.Count(ctx); n != 2 {
		t.Errorf("update should not touch embeddings, count %d", n)
	}

	title := "新标题"
	if err := s.UpdateBySourceID(ctx, "d2", models.ParagraphUpdate{Title: &title}); err != nil {
		t.Fatal(err)
	}
	p, err := s.GetParagraph(ctx, ids[1])
	if err != nil {
		t.Fatal(err)
	}
	if p.Title != title {
		t.Errorf("title = %q, want %q", p.Title, title)
	}

	err = s.UpdateByParagraphID(ctx, "missing", models.ParagraphUpdate{Title: &title})
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("got %v, want ErrNotFound", err)
	}
}

func TestStore_filter(t *testing.T) {
	s := newTestStore(t, newTestBackend(t))
	ctx := context.Background()

	ids, err := s.AddTexts(ctx, []string{"咳嗽一", "咳嗽二", "咳嗽三"},
		[]models.ParagraphMeta{docMeta("d1"), docMeta("d2"), docMeta("d2")})
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name   string
		filter models.Filter
		want   int
	}{
		{"document", models.Filter{DocumentID: "d2"}, 2},
		{"exclude documents", models.Filter{ExcludeDocumentIDs: []string{"d2"}}, 1},
		{"exclude paragraphs", models.Filter{ExcludeParagraphIDs: []string{ids[0], ids[1]}}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, st := range []models.SearchType{models.SearchTypeEmbedding, models.SearchTypeKeywords} {
				got, err := s.SimilaritySearch(ctx, "咳嗽", 10, tt.filter, st)
				if err != nil {
					t.Fatal(err)
				}
				if len(got) != tt.want {
					t.Errorf("%s: got %d results, want %d", st, len(got), tt.want)
				}
			}
		})
	}
}

func TestStore_skipsMismatchedDimensions(t *testing.T) {
	b := newTestBackend(t)
	s := newTestStore(t, b)
	ctx := context.Background()

	if _, err := s.AddTexts(ctx, []string{"咳嗽"}, nil); err != nil {
		t.Fatal(err)
	}
	p := &models.Paragraph{ID: "short", KnowledgeID: s.KnowledgeBaseID(), SourceType: models.SourceTypeDocument, IsActive: true, Content: "咳嗽"}
	e := &EmbeddingRow{ID: "e-short", KnowledgeID: s.KnowledgeBaseID(), ParagraphID: "short", IsActive: true, Embedding: []float32{1, 0}}
	if err := b.UpsertParagraph(ctx, p, e); err != nil {
		t.Fatal(err)
	}

	got, err := s.EmbeddingSearch(ctx, "咳嗽", 5, models.Filter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].ParagraphID == "short" {
		t.Errorf("got %+v, want only the full-length embedding", got)
	}
}

func TestStore_index(t *testing.T) {
	b := newTestBackend(t)
	s := newTestStore(t, b)
	ctx := context.Background()

	exists := func() bool {
		t.Helper()
		ok, err := b.IndexExists(ctx, s.KnowledgeBaseID())
		if err != nil {
			t.Fatal(err)
		}
		return ok
	}
	if exists() {
		t.Fatal("index should not exist yet")
	}
	if err := s.EnsureIndex(ctx); err != nil {
		t.Fatal(err)
	}
	if !exists() {
		t.Error("index should exist after EnsureIndex")
	}
	if err := s.CreateIndex(ctx); err != nil {
		t.Errorf("CreateIndex should be idempotent: %v", err)
	}
	if err := s.DropIndex(ctx); err != nil {
		t.Fatal(err)
	}
	if exists() {
		t.Error("index should be gone after DropIndex")
	}
	if err := s.DropIndex(ctx); err != nil {
		t.Errorf("DropIndex should be idempotent: %v", err)
	}
}

func TestBlend(t *testing.T) {
	emb := []*models.SearchResult{
		{ParagraphID: "a", Score: 0.9, SearchType: models.SearchTypeEmbedding},
		{ParagraphID: "b", Score: 0.5, SearchType: models.SearchTypeEmbedding},
	}
	kw := []*models.SearchResult{
		{ParagraphID: "a", Score: 0.5, SearchType: models.SearchTypeKeywords},
		{ParagraphID: "c", Score: 1, SearchType: models.SearchTypeKeywords},
	}
	got := rank(blend(emb, kw), 10)
	if len(got) != 3 {
		t.Fatalf("got %d results, want 3", len(got))
	}
	want := []struct {
		id    string
		score float64
		st    models.SearchType
	}{
		{"c", 1, models.SearchTypeKeywords},
		{"a", 0.6*0.9 + 0.4*0.5, models.SearchTypeBlend},
		{"b", 0.5, models.SearchTypeEmbedding},
	}
	for i, w := range want {
		if got[i].ParagraphID != w.id || got[i].SearchType != w.st || got[i].Score-w.score > 1e-9 || w.score-got[i].Score > 1e-9 {
			t.Errorf("result %d = %+v, want %+v", i, got[i], w)
		}
	}
}
