package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/hyperjump/tcmkb/internal/models"
)

func newTestStorage(t *testing.T) *SQLiteStorage {
	t.Helper()
	store, err := NewSQLiteStorage(filepath.Join(t.TempDir(), "nested", "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func testKnowledgeBase() *models.KnowledgeBase {
	return &models.KnowledgeBase{
		Name:                "伤寒论",
		IsActive:            true,
		EmbeddingModel:      "mock",
		EmbeddingDimension:  64,
		SimilarityThreshold: 0.5,
		SearchType:          models.SearchTypeBlend,
		TopK:                5,
	}
}

func TestSQLiteStorage_KnowledgeBase(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	kb := testKnowledgeBase()
	if err := store.CreateKnowledgeBase(ctx, kb); err != nil {
		t.Fatal(err)
	}
	if kb.ID == "" || kb.CreatedAt.IsZero() {
		t.Fatalf("ID and CreatedAt should be set: %+v", kb)
	}

	got, err := store.GetKnowledgeBase(ctx, kb.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Name != "伤寒论" || got.SearchType != models.SearchTypeBlend || got.EmbeddingDimension != 64 || !got.IsActive {
		t.Errorf("got %+v", got)
	}

	if err := store.SetKnowledgeBaseActive(ctx, kb.ID, false); err != nil {
		t.Fatal(err)
	}
	got, _ = store.GetKnowledgeBase(ctx, kb.ID)
	if got.IsActive {
		t.Error("knowledge base should be inactive")
	}

	list, err := store.ListKnowledgeBases(ctx, 0, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 {
		t.Errorf("got %d knowledge bases, want 1", len(list))
	}
}

func TestSQLiteStorage_notFound(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	if _, err := store.GetKnowledgeBase(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetKnowledgeBase: got %v, want ErrNotFound", err)
	}
	if err := store.SetKnowledgeBaseActive(ctx, "missing", true); !errors.Is(err, ErrNotFound) {
		t.Errorf("SetKnowledgeBaseActive: got %v, want ErrNotFound", err)
	}
	if _, err := store.GetDocument(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetDocument: got %v, want ErrNotFound", err)
	}
	err := store.UpdateDocumentProgress(ctx, "missing", models.DocumentProgress{Status: models.StatusFailed})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("UpdateDocumentProgress: got %v, want ErrNotFound", err)
	}
}

func TestSQLiteStorage_Documents(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	kb := testKnowledgeBase()
	if err := store.CreateKnowledgeBase(ctx, kb); err != nil {
		t.Fatal(err)
	}

	doc := &models.Document{
		KnowledgeBaseID: kb.ID,
		Name:            "太阳病篇.txt",
		FileType:        models.FileTypeTxt,
		FileSize:        42,
		FilePath:        "/tmp/太阳病篇.txt",
	}
	if err := store.CreateDocument(ctx, doc); err != nil {
		t.Fatal(err)
	}
	if doc.ID == "" || doc.Status != models.StatusProcessing {
		t.Fatalf("unexpected document after create: %+v", doc)
	}

	err := store.UpdateDocumentProgress(ctx, doc.ID, models.DocumentProgress{
		Status:         models.StatusProcessing,
		Progress:       50,
		CharCount:      models.IntPtr(120),
		ParagraphCount: models.IntPtr(3),
	})
	if err != nil {
		t.Fatal(err)
	}
	// Nil counts keep the stored values.
	err = store.UpdateDocumentProgress(ctx, doc.ID, models.DocumentProgress{
		Status:   models.StatusCompleted,
		Progress: 100,
	})
	if err != nil {
		t.Fatal(err)
	}
	got, err := store.GetDocument(ctx, doc.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != models.StatusCompleted || got.Progress != 100 || got.CharCount != 120 || got.ParagraphCount != 3 {
		t.Errorf("got %+v", got)
	}

	failed := &models.Document{KnowledgeBaseID: kb.ID, Name: "bad.pdf", FileType: models.FileTypePDF}
	if err := store.CreateDocument(ctx, failed); err != nil {
		t.Fatal(err)
	}
	unfinished, err := store.ListUnfinishedDocuments(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(unfinished) != 1 || unfinished[0].ID != failed.ID {
		t.Errorf("unfinished = %+v, want only %s", unfinished, failed.ID)
	}

	n, err := store.CountDocuments(ctx, kb.ID)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("CountDocuments = %d, want 2", n)
	}
	list, err := store.ListDocuments(ctx, kb.ID, 0, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 {
		t.Errorf("ListDocuments limit 1 returned %d", len(list))
	}

	if err := store.DeleteDocument(ctx, doc.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := store.GetDocument(ctx, doc.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestSQLiteStorage_documentRequiresKnowledgeBase(t *testing.T) {
	store := newTestStorage(t)
	doc := &models.Document{KnowledgeBaseID: "missing", Name: "a.txt", FileType: models.FileTypeTxt}
	if err := store.CreateDocument(context.Background(), doc); err == nil {
		t.Error("expected foreign key error")
	}
}
