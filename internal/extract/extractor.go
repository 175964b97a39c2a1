// Package extract turns uploaded documents into titled, bounded paragraphs.
package extract

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/hyperjump/tcmkb/internal/models"
	"go.uber.org/zap"
)

// RawParagraph is an extracted paragraph before it is assigned ids and linkage metadata.
type RawParagraph struct {
	Content    string
	Title      string
	PageNumber *int
	Meta       models.ParagraphMeta
}

// Extractor extracts paragraphs from document files.
type Extractor struct {
	maxLength int
	logger    *zap.Logger
}

// ExtractorOption configures an Extractor.
type ExtractorOption func(*Extractor)

// WithLogger sets a logger for extraction warnings.
func WithLogger(l *zap.Logger) ExtractorOption {
	return func(e *Extractor) { e.logger = l }
}

// WithMaxLength overrides the paragraph bound (DefaultMaxLength).
func WithMaxLength(n int) ExtractorOption {
	return func(e *Extractor) {
		if n > 0 {
			e.maxLength = n
		}
	}
}

// NewExtractor returns a new Extractor.
func NewExtractor(opts ...ExtractorOption) *Extractor {
	e := &Extractor{maxLength: DefaultMaxLength, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract reads the file at path and extracts paragraphs according to fileType
// (see models.FileTypeFromName). An unsupported type yields no paragraphs and no error.
func (e *Extractor) Extract(path, fileType string) ([]RawParagraph, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	return e.ExtractBytes(content, fileType, filepath.Base(path))
}

// ExtractBytes extracts paragraphs from content. name is used as the title of
// word and text documents.
func (e *Extractor) ExtractBytes(content []byte, fileType, name string) ([]RawParagraph, error) {
	var (
		paras []RawParagraph
		err   error
	)
	switch fileType {
	case models.FileTypePDF:
		paras, err = e.extractPDF(content)
	case models.FileTypeDoc, models.FileTypeDocx:
		paras, err = e.extractWord(content, name)
	case models.FileTypeTxt, models.FileTypeMd:
		paras, err = e.extractText(content, name)
	case models.FileTypeXlsx, models.FileTypeXls:
		paras, err = e.extractExcel(content)
	default:
		e.logger.Warn("unsupported file type", zap.String("file_type", fileType), zap.String("name", name))
		return nil, nil
	}
	if err != nil {
		e.logger.Error("extraction failed", zap.String("name", name), zap.String("file_type", fileType), zap.Error(err))
		return nil, err
	}
	e.logger.Debug("extraction finished", zap.String("name", name), zap.Int("paragraphs", len(paras)))
	return paras, nil
}

func (e *Extractor) segmented(text, title string, meta models.ParagraphMeta, page *int) []RawParagraph {
	segs := SegmentText(text, e.maxLength, title)
	out := make([]RawParagraph, 0, len(segs))
	for _, s := range segs {
		out = append(out, RawParagraph{Content: s.Content, Title: s.Title, PageNumber: page, Meta: meta})
	}
	return out
}
