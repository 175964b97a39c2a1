package search

import (
	"testing"

	"github.com/hyperjump/tcmkb/internal/models"
)

func TestProcessQuery(t *testing.T) {
	kb := &models.KnowledgeBase{TopK: 5, SearchType: models.SearchTypeBlend}

	req := &models.SearchRequest{KnowledgeBaseID: "kb", Query: "  咳嗽 "}
	if err := ProcessQuery(req, kb, 100); err != nil {
		t.Fatal(err)
	}
	if req.Query != "咳嗽" || req.TopK != 5 || req.SearchType != models.SearchTypeBlend {
		t.Errorf("defaults not applied: %+v", req)
	}

	req = &models.SearchRequest{KnowledgeBaseID: "kb", Query: "咳嗽", TopK: 500, SearchType: models.SearchTypeKeywords}
	if err := ProcessQuery(req, kb, 100); err != nil {
		t.Fatal(err)
	}
	if req.TopK != 100 || req.SearchType != models.SearchTypeKeywords {
		t.Errorf("got %+v", req)
	}

	if err := ProcessQuery(&models.SearchRequest{KnowledgeBaseID: "kb", Query: " "}, kb, 100); err == nil {
		t.Error("expected error for blank query")
	}
}
