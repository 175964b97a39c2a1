package models

// SearchResult is one ranked paragraph.
type SearchResult struct {
	ParagraphID string        `json:"paragraph_id"`
	DocumentID  string        `json:"document_id"`
	KnowledgeID string        `json:"knowledge_id"`
	Title       string        `json:"title"`
	Content     string        `json:"content"`
	PageNumber  *int          `json:"page_number,omitempty"`
	Meta        ParagraphMeta `json:"meta"`
	Score       float64       `json:"score"`
	SearchType  SearchType    `json:"search_type"`
	Rank        int           `json:"rank"`
}

// SearchResponse is the response for a single knowledge base search.
type SearchResponse struct {
	KnowledgeBaseID string          `json:"knowledge_base_id"`
	Query           string          `json:"query"`
	SearchType      SearchType      `json:"search_type"`
	Threshold       float64         `json:"threshold"`
	Results         []*SearchResult `json:"results"`
	Total           int             `json:"total"`
	QueryTime       int64           `json:"query_time_ms"`
}

// RetrieveResponse is the response for a multi knowledge base retrieval.
// Threshold is the effective threshold after dynamic relaxation.
type RetrieveResponse struct {
	Query            string          `json:"query"`
	KnowledgeBaseIDs []string        `json:"knowledge_base_ids"`
	Threshold        float64         `json:"threshold"`
	Results          []*SearchResult `json:"results"`
	Total            int             `json:"total"`
	QueryTime        int64           `json:"query_time_ms"`
}

// KnowledgeBaseStats summarises a knowledge base.
type KnowledgeBaseStats struct {
	KnowledgeBaseID string     `json:"knowledge_base_id"`
	DocumentCount   int        `json:"document_count"`
	VectorCount     int        `json:"vector_count"`
	EmbeddingModel  string     `json:"embedding_model"`
	SearchType      SearchType `json:"search_type"`
}
