package models

import (
	"fmt"
	"strings"
)

// Filter narrows a search to a subset of a knowledge base.
type Filter struct {
	DocumentID          string   `json:"document_id,omitempty"`
	ExcludeDocumentIDs  []string `json:"exclude_document_ids,omitempty"`
	ExcludeParagraphIDs []string `json:"exclude_paragraph_ids,omitempty"`
}

// SearchRequest is a search against one knowledge base. Zero TopK and empty
// SearchType fall back to the knowledge base settings; a nil Threshold uses
// the knowledge base's similarity threshold.
type SearchRequest struct {
	KnowledgeBaseID string     `json:"knowledge_base_id"`
	Query           string     `json:"query"`
	TopK            int        `json:"top_k,omitempty"`
	SearchType      SearchType `json:"search_type,omitempty"`
	Threshold       *float64   `json:"threshold,omitempty"`
	Filter          Filter     `json:"filter,omitempty"`
}

// Validate trims the query and checks required fields.
func (r *SearchRequest) Validate() error {
	r.Query = strings.TrimSpace(r.Query)
	if r.Query == "" {
		return fmt.Errorf("query cannot be empty")
	}
	if r.KnowledgeBaseID == "" {
		return fmt.Errorf("knowledge_base_id is required")
	}
	if r.TopK < 0 {
		return fmt.Errorf("top_k cannot be negative")
	}
	if r.Threshold != nil && (*r.Threshold < 0 || *r.Threshold > 1) {
		return fmt.Errorf("threshold must be within [0,1]")
	}
	return nil
}

// RetrieveRequest asks for chat context across one or more knowledge bases.
type RetrieveRequest struct {
	KnowledgeBaseIDs []string `json:"knowledge_base_ids"`
	Query            string   `json:"query"`
	TopK             int      `json:"top_k,omitempty"`
	Filter           Filter   `json:"filter,omitempty"`
}

// Validate trims the query, drops duplicate ids and checks required fields.
func (r *RetrieveRequest) Validate() error {
	r.Query = strings.TrimSpace(r.Query)
	if r.Query == "" {
		return fmt.Errorf("query cannot be empty")
	}
	seen := make(map[string]bool, len(r.KnowledgeBaseIDs))
	ids := r.KnowledgeBaseIDs[:0]
	for _, id := range r.KnowledgeBaseIDs {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	r.KnowledgeBaseIDs = ids
	if len(r.KnowledgeBaseIDs) == 0 {
		return fmt.Errorf("knowledge_base_ids cannot be empty")
	}
	if r.TopK < 0 {
		return fmt.Errorf("top_k cannot be negative")
	}
	return nil
}

// Embedding maintenance operations.
const (
	OpDeleteByDocumentIDs = "delete_by_document_ids"
	OpDeleteByKnowledgeID = "delete_by_knowledge_id"
	OpDeleteBySourceIDs   = "delete_by_source_ids"
)

// EmbeddingOperation is a bulk delete of paragraphs and embeddings within one
// knowledge base.
type EmbeddingOperation struct {
	Operation       string   `json:"operation"`
	KnowledgeBaseID string   `json:"knowledge_base_id"`
	DocumentIDs     []string `json:"document_ids,omitempty"`
	SourceIDs       []string `json:"source_ids,omitempty"`
	SourceType      string   `json:"source_type,omitempty"`
}

// Validate checks the operation name and its required fields.
func (o *EmbeddingOperation) Validate() error {
	if o.Operation == "" || o.KnowledgeBaseID == "" {
		return fmt.Errorf("operation and knowledge_base_id are required")
	}
	switch o.Operation {
	case OpDeleteByKnowledgeID:
	case OpDeleteByDocumentIDs:
		if len(o.DocumentIDs) == 0 {
			return fmt.Errorf("document_ids cannot be empty")
		}
	case OpDeleteBySourceIDs:
		if len(o.SourceIDs) == 0 {
			return fmt.Errorf("source_ids cannot be empty")
		}
	default:
		return fmt.Errorf("unknown operation: %s", o.Operation)
	}
	return nil
}
