package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// Source types of a paragraph's owner.
const (
	SourceTypeParagraph = "paragraph"
	SourceTypeDocument  = "document"
)

// Paragraph is one retrievable text segment of a document.
type Paragraph struct {
	ID          string        `json:"id" db:"id"`
	DocumentID  string        `json:"document_id" db:"document_id"`
	KnowledgeID string        `json:"knowledge_id" db:"knowledge_id"`
	SourceID    string        `json:"source_id" db:"source_id"`
	SourceType  string        `json:"source_type" db:"source_type"`
	IsActive    bool          `json:"is_active" db:"is_active"`
	Content     string        `json:"content" db:"content"`
	Title       string        `json:"title" db:"title"`
	PageNumber  *int          `json:"page_number,omitempty" db:"page_number"`
	Meta        ParagraphMeta `json:"meta" db:"meta"`
}

// ParagraphMeta is the metadata attached to a paragraph and its embedding.
// Extractors fill the source fields; the processor fills the linkage fields.
type ParagraphMeta struct {
	DocumentID  string `json:"document_id,omitempty"`
	KnowledgeID string `json:"knowledge_id,omitempty"`
	ParagraphID string `json:"paragraph_id,omitempty"`
	SourceID    string `json:"source_id,omitempty"`
	SourceType  string `json:"source_type,omitempty"`
	Source      string `json:"source,omitempty"`
	Title       string `json:"title,omitempty"`
	PageNumber  *int   `json:"page_number,omitempty"`
	TotalPages  int    `json:"total_pages,omitempty"`
	Sheet       string `json:"sheet,omitempty"`
	Row         int    `json:"row,omitempty"`
	IsActive    *bool  `json:"is_active,omitempty"`
}

// Active returns IsActive, defaulting to true.
func (m ParagraphMeta) Active() bool {
	return m.IsActive == nil || *m.IsActive
}

// SourceTypeOrDefault returns SourceType, defaulting to SourceTypeDocument.
func (m ParagraphMeta) SourceTypeOrDefault() string {
	if m.SourceType == "" {
		return SourceTypeDocument
	}
	return m.SourceType
}

// Value implements driver.Valuer, storing the meta as JSON text.
func (m ParagraphMeta) Value() (driver.Value, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner.
func (m *ParagraphMeta) Scan(src interface{}) error {
	var data []byte
	switch v := src.(type) {
	case nil:
		*m = ParagraphMeta{}
		return nil
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into ParagraphMeta", src)
	}
	if len(data) == 0 {
		*m = ParagraphMeta{}
		return nil
	}
	return json.Unmarshal(data, m)
}

// ParagraphUpdate is a partial update of paragraph fields. Nil fields are left unchanged.
type ParagraphUpdate struct {
	Content    *string `json:"content,omitempty"`
	Title      *string `json:"title,omitempty"`
	IsActive   *bool   `json:"is_active,omitempty"`
	PageNumber *int    `json:"page_number,omitempty"`
}

// Empty reports whether the update changes nothing.
func (u ParagraphUpdate) Empty() bool {
	return u.Content == nil && u.Title == nil && u.IsActive == nil && u.PageNumber == nil
}

// IntPtr returns a pointer to v.
func IntPtr(v int) *int { return &v }

// BoolPtr returns a pointer to v.
func BoolPtr(v bool) *bool { return &v }
