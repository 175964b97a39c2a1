package e2e

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/hyperjump/tcmkb/internal/config"
	"github.com/hyperjump/tcmkb/internal/embedding"
	"github.com/hyperjump/tcmkb/internal/extract"
	"github.com/hyperjump/tcmkb/internal/fileid"
	"github.com/hyperjump/tcmkb/internal/indexer"
	"github.com/hyperjump/tcmkb/internal/models"
	"github.com/hyperjump/tcmkb/internal/search"
	"github.com/hyperjump/tcmkb/internal/storage"
	"github.com/hyperjump/tcmkb/internal/vector"
)

const (
	e2eTopK       = 10
	e2eDimensions = 64
	e2eThreshold  = 0.5
)

type e2eEnv struct {
	engine    *search.Engine
	processor *indexer.Processor
	kb        *models.KnowledgeBase
}

func newE2EEnv(t *testing.T, dir string) *e2eEnv {
	t.Helper()
	cfg := &config.Config{
		Storage: config.StorageConfig{
			DatabasePath: filepath.Join(dir, "db.sqlite"),
			UploadDir:    filepath.Join(dir, "uploads"),
		},
		Embedding: config.EmbeddingConfig{
			Models: []config.ModelConfig{{Name: "mock", Type: config.EmbedderMock, Dimensions: e2eDimensions}},
		},
		KnowledgeBase: config.KnowledgeBaseConfig{EmbeddingModel: "mock"},
	}
	config.ApplyDefaults(cfg)

	store, err := storage.NewSQLiteStorage(cfg.Storage.DatabasePath)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = store.Close() })
	backend, err := vector.NewSQLiteBackend(store.DB())
	if err != nil {
		t.Fatal(err)
	}
	registry, err := embedding.BuildRegistry(cfg.Embedding, nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = registry.Close() })

	stores := vector.NewStores(backend, registry, nil)
	engine := search.NewEngine(store, stores, cfg.Search, nil)
	kb, err := engine.CreateKnowledgeBase(context.Background(),
		models.KnowledgeBaseInput{Name: "方剂学", SearchType: models.SearchTypeKeywords},
		search.KnowledgeBaseDefaults(cfg.KnowledgeBase))
	if err != nil {
		t.Fatal(err)
	}
	return &e2eEnv{
		engine:    engine,
		processor: indexer.NewProcessor(store, stores, extract.NewExtractor(), cfg.Storage.UploadDir),
		kb:        kb,
	}
}

func (e *e2eEnv) search(t *testing.T, query string) []string {
	t.Helper()
	threshold := e2eThreshold
	resp, err := e.engine.Search(context.Background(), &models.SearchRequest{
		KnowledgeBaseID: e.kb.ID,
		Query:           query,
		TopK:            e2eTopK,
		Threshold:       &threshold,
	})
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	ids := make([]string, 0, len(resp.Results))
	for _, r := range resp.Results {
		ids = append(ids, r.DocumentID)
	}
	return ids
}

func contains(ids []string, want string) bool {
	for _, id := range ids {
		if id == want {
			return true
		}
	}
	return false
}

func TestE2E_SearchReturnsCorrectResults(t *testing.T) {
	e := newE2EEnv(t, t.TempDir())
	ctx := context.Background()

	corpus := BuildCorpus()
	docIDs := make(map[string]string, corpus.TotalDocs)
	for _, f := range corpus.Documents {
		doc, err := e.processor.Ingest(ctx, e.kb.ID, f.Name+".txt", []byte(f.Content()))
		if err != nil {
			t.Fatalf("ingest %s: %v", f.Name, err)
		}
		if doc.Status != models.StatusCompleted {
			t.Fatalf("ingest %s: status %s (%s)", f.Name, doc.Status, doc.Error)
		}
		docIDs[f.ID] = doc.ID
	}

	t.Logf("ingested %d documents; running %d query test cases", corpus.TotalDocs, corpus.TotalQueries)

	for _, tc := range corpus.TestCases {
		t.Run(tc.Description, func(t *testing.T) {
			ids := e.search(t, tc.Query)
			if want := docIDs[tc.ExpectedDocID]; !contains(ids, want) {
				t.Errorf("query %q: expected %s in results, got %v", tc.Query, want, ids)
			}
		})
	}
}

// TestE2E_FileIngestionSearch writes the corpus as files of every fixture type,
// ingests the directory and runs the name queries. Document ids derive from
// the knowledge base and absolute file path.
func TestE2E_FileIngestionSearch(t *testing.T) {
	dir := t.TempDir()
	docDir := filepath.Join(dir, "docs")
	if err := os.MkdirAll(docDir, 0755); err != nil {
		t.Fatal(err)
	}
	e := newE2EEnv(t, dir)
	ctx := context.Background()

	corpus := BuildCorpus()
	exts := SupportedFileExtensions
	fileDocIDs := make(map[string]string, corpus.TotalDocs)
	for i, f := range corpus.Documents {
		ext := exts[i%len(exts)]
		path := filepath.Join(docDir, f.ID+ext)
		content, err := MinimalFile(ext, f.Name, f.Content())
		if err != nil {
			t.Fatalf("fixture %s: %v", path, err)
		}
		if err := os.WriteFile(path, content, 0644); err != nil {
			t.Fatalf("write file %s: %v", path, err)
		}
		absPath, _ := filepath.Abs(path)
		fileDocIDs[f.ID] = fileid.DocumentID(e.kb.ID, absPath)
	}

	n, err := e.processor.IngestDirectory(ctx, e.kb.ID, docDir, exts)
	if err != nil {
		t.Fatalf("ingest directory: %v", err)
	}
	if n != corpus.TotalDocs {
		t.Fatalf("expected %d files ingested, got %d", corpus.TotalDocs, n)
	}

	for _, tc := range corpus.TestCases {
		t.Run(tc.Description, func(t *testing.T) {
			ids := e.search(t, tc.Query)
			if want := fileDocIDs[tc.ExpectedDocID]; !contains(ids, want) {
				t.Errorf("query %q: expected %s in results, got %v", tc.Query, want, ids)
			}
		})
	}

	// A second pass skips unchanged files.
	n, err = e.processor.IngestDirectory(ctx, e.kb.ID, docDir, exts)
	if err != nil {
		t.Fatalf("re-ingest directory: %v", err)
	}
	stats, err := e.engine.Stats(ctx, e.kb.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stats.DocumentCount != corpus.TotalDocs {
		t.Errorf("document count after re-ingest = %d, want %d", stats.DocumentCount, corpus.TotalDocs)
	}
}
