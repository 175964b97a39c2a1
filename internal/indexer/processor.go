// Package indexer turns uploaded files into searchable paragraphs.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyperjump/tcmkb/internal/extract"
	"github.com/hyperjump/tcmkb/internal/fileid"
	"github.com/hyperjump/tcmkb/internal/metrics"
	"github.com/hyperjump/tcmkb/internal/models"
	"github.com/hyperjump/tcmkb/internal/storage"
	"github.com/hyperjump/tcmkb/internal/vector"
	"github.com/hyperjump/tcmkb/pkg/utils"
)

// Processor extracts, segments and vectorises documents, recording progress
// on the document row as it goes.
type Processor struct {
	storage   storage.Storage
	stores    *vector.Stores
	extractor *extract.Extractor
	uploadDir string
	logger    *zap.Logger
}

// ProcessorOption configures a Processor.
type ProcessorOption func(*Processor)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) ProcessorOption {
	return func(p *Processor) { p.logger = l }
}

// NewProcessor creates a Processor. Uploaded bytes are stored under uploadDir.
func NewProcessor(st storage.Storage, stores *vector.Stores, extractor *extract.Extractor, uploadDir string, opts ...ProcessorOption) *Processor {
	p := &Processor{
		storage:   st,
		stores:    stores,
		extractor: extractor,
		uploadDir: uploadDir,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = utils.LoggerOrNop(p.logger)
	return p
}

// Accept stores content under the upload directory and creates its document
// in the processing state. The caller runs or queues Run.
func (p *Processor) Accept(ctx context.Context, kbID, name string, content []byte) (*models.Document, error) {
	kb, err := p.storage.GetKnowledgeBase(ctx, kbID)
	if err != nil {
		return nil, err
	}
	name = filepath.Base(name)
	if name == "." || name == string(filepath.Separator) {
		return nil, fmt.Errorf("invalid file name")
	}

	docID := uuid.New().String()
	dir := filepath.Join(p.uploadDir, kb.ID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	path := filepath.Join(dir, docID+"_"+name)
	if err := os.WriteFile(path, content, 0644); err != nil {
		return nil, fmt.Errorf("store upload: %w", err)
	}

	doc := &models.Document{
		ID:              docID,
		KnowledgeBaseID: kb.ID,
		Name:            name,
		FileType:        models.FileTypeFromName(name),
		FileSize:        int64(len(content)),
		FilePath:        path,
		Status:          models.StatusProcessing,
	}
	if err := p.storage.CreateDocument(ctx, doc); err != nil {
		_ = os.Remove(path)
		return nil, err
	}
	p.logger.Info("document accepted",
		zap.String("document_id", doc.ID),
		zap.String("name", name),
		zap.String("file_type", doc.FileType))
	return doc, nil
}

// Ingest accepts content and processes it synchronously.
func (p *Processor) Ingest(ctx context.Context, kbID, name string, content []byte) (*models.Document, error) {
	doc, err := p.Accept(ctx, kbID, name, content)
	if err != nil {
		return nil, err
	}
	if err := p.Run(ctx, doc); err != nil {
		return doc, err
	}
	return p.storage.GetDocument(ctx, doc.ID)
}

// Run processes a stored document. Extraction errors mark the document
// failed and are returned. Vectorisation errors mark it partially completed,
// keep the paragraph counts, and are only logged.
func (p *Processor) Run(ctx context.Context, doc *models.Document) error {
	logger := p.logger.With(zap.String("document_id", doc.ID), zap.String("name", doc.Name))

	kb, err := p.storage.GetKnowledgeBase(ctx, doc.KnowledgeBaseID)
	if err != nil {
		p.finish(ctx, logger, doc, models.DocumentProgress{Status: models.StatusFailed, Progress: 100, Error: err.Error()})
		return err
	}
	vs, err := p.stores.For(kb)
	if err != nil {
		p.finish(ctx, logger, doc, models.DocumentProgress{Status: models.StatusFailed, Progress: 100, Error: err.Error()})
		return err
	}

	content, err := os.ReadFile(doc.FilePath)
	if err != nil {
		p.finish(ctx, logger, doc, models.DocumentProgress{Status: models.StatusFailed, Progress: 100, Error: err.Error()})
		return fmt.Errorf("read %s: %w", doc.FilePath, err)
	}
	raws, err := p.extractor.ExtractBytes(content, doc.FileType, doc.Name)
	if err != nil {
		p.finish(ctx, logger, doc, models.DocumentProgress{Status: models.StatusFailed, Progress: 100, Error: err.Error()})
		return fmt.Errorf("extract %s: %w", doc.Name, err)
	}

	texts := make([]string, len(raws))
	metas := make([]models.ParagraphMeta, len(raws))
	charCount := 0
	for i, raw := range raws {
		texts[i] = raw.Content
		charCount += utils.RuneLen(raw.Content)
		meta := raw.Meta
		meta.DocumentID = doc.ID
		meta.KnowledgeID = kb.ID
		meta.SourceID = doc.ID
		meta.SourceType = models.SourceTypeParagraph
		meta.IsActive = models.BoolPtr(true)
		if meta.Title == "" {
			meta.Title = raw.Title
		}
		if meta.PageNumber == nil {
			meta.PageNumber = raw.PageNumber
		}
		metas[i] = meta
	}
	counts := models.DocumentProgress{
		Status:         models.StatusProcessing,
		Progress:       50,
		CharCount:      &charCount,
		ParagraphCount: models.IntPtr(len(raws)),
	}
	p.update(ctx, logger, doc, counts)
	logger.Debug("document extracted", zap.Int("paragraphs", len(raws)), zap.Int("chars", charCount))

	ids, err := vs.AddTexts(ctx, texts, metas)
	metrics.ParagraphsIndexed.Add(float64(len(ids)))
	if err != nil {
		logger.Error("vectorisation failed", zap.Int("stored", len(ids)), zap.Int("paragraphs", len(raws)), zap.Error(err))
		counts.Status = models.StatusPartiallyCompleted
		counts.Progress = 100
		counts.Error = err.Error()
		p.finish(ctx, logger, doc, counts)
		return nil
	}
	counts.Progress = 80
	p.update(ctx, logger, doc, counts)

	counts.Status = models.StatusCompleted
	counts.Progress = 100
	p.finish(ctx, logger, doc, counts)
	logger.Info("document processed", zap.Int("paragraphs", len(ids)))
	return nil
}

// update records progress even after ctx is cancelled so a timed out run
// still reaches a terminal status.
func (p *Processor) update(ctx context.Context, logger *zap.Logger, doc *models.Document, progress models.DocumentProgress) {
	if err := p.storage.UpdateDocumentProgress(context.WithoutCancel(ctx), doc.ID, progress); err != nil {
		logger.Warn("failed to record progress", zap.Int("progress", progress.Progress), zap.Error(err))
		return
	}
	doc.Status = progress.Status
	doc.Progress = progress.Progress
	doc.Error = progress.Error
	if progress.CharCount != nil {
		doc.CharCount = *progress.CharCount
	}
	if progress.ParagraphCount != nil {
		doc.ParagraphCount = *progress.ParagraphCount
	}
}

func (p *Processor) finish(ctx context.Context, logger *zap.Logger, doc *models.Document, progress models.DocumentProgress) {
	p.update(ctx, logger, doc, progress)
	metrics.DocumentsProcessed.WithLabelValues(string(progress.Status)).Inc()
	if progress.Status == models.StatusFailed {
		logger.Error("document processing failed", zap.String("error", progress.Error))
	}
}

// Fail marks doc failed with cause. It is used when Run cannot be reached or
// did not return, such as a rejected reprocess or a worker panic.
func (p *Processor) Fail(ctx context.Context, doc *models.Document, cause error) {
	logger := p.logger.With(zap.String("document_id", doc.ID), zap.String("name", doc.Name))
	p.finish(ctx, logger, doc, models.DocumentProgress{Status: models.StatusFailed, Progress: 100, Error: cause.Error()})
}

// Reprocess resets a document, removes its paragraphs and embeddings and
// runs it again from the stored file.
func (p *Processor) Reprocess(ctx context.Context, docID string) error {
	doc, err := p.Reset(ctx, docID)
	if err != nil {
		return err
	}
	return p.Run(ctx, doc)
}

// Reset puts a document back to processing at 0% and deletes its paragraphs
// and embeddings, leaving it ready for Run.
func (p *Processor) Reset(ctx context.Context, docID string) (*models.Document, error) {
	doc, err := p.storage.GetDocument(ctx, docID)
	if err != nil {
		return nil, err
	}
	kb, err := p.storage.GetKnowledgeBase(ctx, doc.KnowledgeBaseID)
	if err != nil {
		return nil, err
	}
	vs, err := p.stores.For(kb)
	if err != nil {
		return nil, err
	}
	reset := models.DocumentProgress{Status: models.StatusProcessing, Progress: 0}
	if err := p.storage.UpdateDocumentProgress(ctx, doc.ID, reset); err != nil {
		return nil, err
	}
	doc.Status, doc.Progress, doc.Error = reset.Status, reset.Progress, ""
	if err := vs.DeleteByDocumentID(ctx, doc.ID); err != nil {
		return nil, fmt.Errorf("delete paragraphs of %s: %w", doc.ID, err)
	}
	return doc, nil
}

// ReprocessPending reprocesses every document that is not completed and
// returns how many finished without error.
func (p *Processor) ReprocessPending(ctx context.Context) (int, error) {
	docs, err := p.storage.ListUnfinishedDocuments(ctx)
	if err != nil {
		return 0, err
	}
	var errs []error
	n := 0
	for _, doc := range docs {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		if err := p.Reprocess(ctx, doc.ID); err != nil {
			p.logger.Warn("reprocess failed", zap.String("document_id", doc.ID), zap.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", doc.ID, err))
			continue
		}
		n++
	}
	p.logger.Info("reprocessed pending documents", zap.Int("total", len(docs)), zap.Int("ok", n))
	return n, errors.Join(errs...)
}

// DeleteDocument removes a document, its paragraphs and embeddings, and the
// uploaded file when it lives under the upload directory.
func (p *Processor) DeleteDocument(ctx context.Context, docID string) error {
	doc, err := p.storage.GetDocument(ctx, docID)
	if err != nil {
		return err
	}
	kb, err := p.storage.GetKnowledgeBase(ctx, doc.KnowledgeBaseID)
	if err != nil {
		return err
	}
	vs, err := p.stores.For(kb)
	if err != nil {
		return err
	}
	if err := vs.DeleteByDocumentID(ctx, doc.ID); err != nil {
		return fmt.Errorf("failed to delete paragraphs: %w", err)
	}
	if err := p.storage.DeleteDocument(ctx, doc.ID); err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	if p.isUpload(doc.FilePath) {
		if err := os.Remove(doc.FilePath); err != nil && !os.IsNotExist(err) {
			p.logger.Warn("failed to remove uploaded file", zap.String("path", doc.FilePath), zap.Error(err))
		}
	}
	p.logger.Debug("document deleted", zap.String("document_id", doc.ID))
	return nil
}

func (p *Processor) isUpload(path string) bool {
	if p.uploadDir == "" || path == "" {
		return false
	}
	rel, err := filepath.Rel(p.uploadDir, path)
	return err == nil && rel != "." && !strings.HasPrefix(rel, "..")
}

// IngestFile processes a file in place under a document ID derived from its
// path. A completed document with the same size that is newer than the file
// is left alone. If allowedExts is non-empty the extension must be listed.
func (p *Processor) IngestFile(ctx context.Context, kbID, path string, allowedExts []string) (*models.Document, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("absolute path: %w", err)
	}
	ext := strings.ToLower(filepath.Ext(absPath))
	if len(allowedExts) > 0 && !extensionAllowed(ext, allowedExts) {
		return nil, fmt.Errorf("extension %q not in allowed list", ext)
	}
	info, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("stat file: %w", err)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("not a regular file: %s", absPath)
	}
	kb, err := p.storage.GetKnowledgeBase(ctx, kbID)
	if err != nil {
		return nil, err
	}

	docID := fileid.DocumentID(kb.ID, absPath)
	if existing, err := p.storage.GetDocument(ctx, docID); err == nil {
		if existing.Status == models.StatusCompleted && existing.FileSize == info.Size() &&
			!info.ModTime().After(existing.UpdatedAt) {
			p.logger.Debug("skipping unchanged file", zap.String("path", absPath))
			return existing, nil
		}
		if err := p.DeleteDocument(ctx, docID); err != nil {
			return nil, err
		}
	} else if !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}

	doc := &models.Document{
		ID:              docID,
		KnowledgeBaseID: kb.ID,
		Name:            filepath.Base(absPath),
		FileType:        models.FileTypeFromName(absPath),
		FileSize:        info.Size(),
		FilePath:        absPath,
		Status:          models.StatusProcessing,
	}
	if err := p.storage.CreateDocument(ctx, doc); err != nil {
		return nil, err
	}
	if err := p.Run(ctx, doc); err != nil {
		return doc, err
	}
	return p.storage.GetDocument(ctx, doc.ID)
}

// DeleteFile removes the document ingested from path, if any.
func (p *Processor) DeleteFile(ctx context.Context, kbID, path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("absolute path: %w", err)
	}
	err = p.DeleteDocument(ctx, fileid.DocumentID(kbID, absPath))
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	return err
}

// IngestDirectory walks dir recursively and ingests each regular file whose
// extension is in allowedExts (all files when empty). Files that fail
// extraction are logged and skipped. Returns the number of files ingested.
func (p *Processor) IngestDirectory(ctx context.Context, kbID, dir string, allowedExts []string) (n int, err error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return 0, fmt.Errorf("absolute path: %w", err)
	}
	info, err := os.Stat(absDir)
	if err != nil {
		return 0, fmt.Errorf("stat directory: %w", err)
	}
	if !info.IsDir() {
		return 0, fmt.Errorf("not a directory: %s", absDir)
	}
	err = filepath.WalkDir(absDir, func(path string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		if len(allowedExts) > 0 && !extensionAllowed(ext, allowedExts) {
			return nil
		}
		finfo, statErr := os.Stat(path)
		if statErr != nil || !finfo.Mode().IsRegular() {
			return nil
		}
		if _, ingestErr := p.IngestFile(ctx, kbID, path, allowedExts); ingestErr != nil {
			if errors.Is(ingestErr, storage.ErrNotFound) {
				return ingestErr
			}
			p.logger.Warn("skipping file", zap.String("path", path), zap.Error(ingestErr))
			return nil
		}
		n++
		return nil
	})
	return n, err
}

func extensionAllowed(ext string, allowed []string) bool {
	extNorm := strings.ToLower(strings.TrimPrefix(ext, "."))
	for _, a := range allowed {
		if strings.ToLower(strings.TrimPrefix(a, ".")) == extNorm {
			return true
		}
	}
	return false
}
