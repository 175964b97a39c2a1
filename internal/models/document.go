package models

import (
	"path/filepath"
	"strings"
	"time"
)

// DocumentStatus is the processing state of a document.
type DocumentStatus string

const (
	StatusProcessing         DocumentStatus = "processing"
	StatusCompleted          DocumentStatus = "completed"
	StatusPartiallyCompleted DocumentStatus = "partially_completed"
	StatusFailed             DocumentStatus = "failed"
)

// File types recognised by the extractor.
const (
	FileTypePDF     = "pdf"
	FileTypeDoc     = "doc"
	FileTypeDocx    = "docx"
	FileTypeTxt     = "txt"
	FileTypeMd      = "md"
	FileTypeXlsx    = "xlsx"
	FileTypeXls     = "xls"
	FileTypeUnknown = "unknown"
)

var fileTypes = map[string]string{
	".pdf":  FileTypePDF,
	".doc":  FileTypeDoc,
	".docx": FileTypeDocx,
	".txt":  FileTypeTxt,
	".md":   FileTypeMd,
	".xlsx": FileTypeXlsx,
	".xls":  FileTypeXls,
}

// FileTypeFromName maps a file name's extension to a file type, or FileTypeUnknown.
func FileTypeFromName(name string) string {
	if t, ok := fileTypes[strings.ToLower(filepath.Ext(name))]; ok {
		return t
	}
	return FileTypeUnknown
}

// Document is an uploaded file belonging to a knowledge base.
type Document struct {
	ID              string         `json:"id" db:"id"`
	KnowledgeBaseID string         `json:"knowledge_base_id" db:"knowledge_base_id"`
	Name            string         `json:"name" db:"name"`
	FileType        string         `json:"file_type" db:"file_type"`
	FileSize        int64          `json:"file_size" db:"file_size"`
	FilePath        string         `json:"file_path" db:"file_path"`
	CharCount       int            `json:"char_count" db:"char_count"`
	ParagraphCount  int            `json:"paragraph_count" db:"paragraph_count"`
	Status          DocumentStatus `json:"status" db:"status"`
	Progress        int            `json:"progress" db:"progress"`
	Error           string         `json:"error,omitempty" db:"error"`
	CreatedAt       time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at" db:"updated_at"`
}

// DocumentProgress is a partial update of a document's processing state.
// Nil counts leave the stored values unchanged.
type DocumentProgress struct {
	Status         DocumentStatus
	Progress       int
	CharCount      *int
	ParagraphCount *int
	Error          string
}
