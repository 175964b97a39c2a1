// Package models defines core data structures for knowledge bases, documents,
// paragraphs, queries and search results.
package models

import (
	"fmt"
	"strings"
	"time"
)

// SearchType selects a retrieval strategy.
type SearchType string

const (
	SearchTypeEmbedding SearchType = "embedding"
	SearchTypeKeywords  SearchType = "keywords"
	SearchTypeBlend     SearchType = "blend"
)

// Valid reports whether t is one of the known strategies.
func (t SearchType) Valid() bool {
	switch t {
	case SearchTypeEmbedding, SearchTypeKeywords, SearchTypeBlend:
		return true
	}
	return false
}

// KnowledgeBase is a named collection of documents sharing one embedding model.
type KnowledgeBase struct {
	ID                  string     `json:"id" db:"id"`
	Name                string     `json:"name" db:"name"`
	Description         string     `json:"description" db:"description"`
	IsActive            bool       `json:"is_active" db:"is_active"`
	EmbeddingModel      string     `json:"embedding_model" db:"embedding_model"`
	EmbeddingDimension  int        `json:"embedding_dimension" db:"embedding_dimension"`
	SimilarityThreshold float64    `json:"similarity_threshold" db:"similarity_threshold"`
	SearchType          SearchType `json:"search_type" db:"search_type"`
	TopK                int        `json:"top_k" db:"top_k"`
	CreatedAt           time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at" db:"updated_at"`
}

// KnowledgeBaseInput is the input for creating a knowledge base. Zero values
// are replaced by the configured defaults.
type KnowledgeBaseInput struct {
	Name                string     `json:"name"`
	Description         string     `json:"description,omitempty"`
	EmbeddingModel      string     `json:"embedding_model,omitempty"`
	EmbeddingDimension  int        `json:"embedding_dimension,omitempty"`
	SimilarityThreshold *float64   `json:"similarity_threshold,omitempty"`
	SearchType          SearchType `json:"search_type,omitempty"`
	TopK                int        `json:"top_k,omitempty"`
	IsActive            *bool      `json:"is_active,omitempty"`
}

// Validate checks the input fields that have no sensible default.
func (in *KnowledgeBaseInput) Validate() error {
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return fmt.Errorf("name cannot be empty")
	}
	if in.SimilarityThreshold != nil {
		if t := *in.SimilarityThreshold; t < 0 || t > 1 {
			return fmt.Errorf("similarity_threshold must be within [0,1], got %v", t)
		}
	}
	if in.SearchType != "" && !in.SearchType.Valid() {
		return fmt.Errorf("unknown search_type %q", in.SearchType)
	}
	if in.TopK < 0 {
		return fmt.Errorf("top_k cannot be negative")
	}
	if in.EmbeddingDimension < 0 {
		return fmt.Errorf("embedding_dimension cannot be negative")
	}
	return nil
}

// KnowledgeBaseDefaults are applied to empty fields of a KnowledgeBaseInput.
type KnowledgeBaseDefaults struct {
	EmbeddingModel      string
	EmbeddingDimension  int
	SimilarityThreshold float64
	SearchType          SearchType
	TopK                int
}

// NewKnowledgeBase builds a KnowledgeBase from in, filling unset fields from d.
// The caller assigns ID and timestamps.
func NewKnowledgeBase(in KnowledgeBaseInput, d KnowledgeBaseDefaults) *KnowledgeBase {
	kb := &KnowledgeBase{
		Name:                in.Name,
		Description:         in.Description,
		IsActive:            true,
		EmbeddingModel:      in.EmbeddingModel,
		EmbeddingDimension:  in.EmbeddingDimension,
		SimilarityThreshold: d.SimilarityThreshold,
		SearchType:          in.SearchType,
		TopK:                in.TopK,
	}
	if in.IsActive != nil {
		kb.IsActive = *in.IsActive
	}
	if in.SimilarityThreshold != nil {
		kb.SimilarityThreshold = *in.SimilarityThreshold
	}
	if kb.EmbeddingModel == "" {
		kb.EmbeddingModel = d.EmbeddingModel
	}
	if kb.EmbeddingDimension == 0 {
		kb.EmbeddingDimension = d.EmbeddingDimension
	}
	if kb.SearchType == "" {
		kb.SearchType = d.SearchType
	}
	if kb.TopK == 0 {
		kb.TopK = d.TopK
	}
	return kb
}
