package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hyperjump/tcmkb/internal/indexer"
	"github.com/hyperjump/tcmkb/internal/models"
	"github.com/hyperjump/tcmkb/internal/search"
	"github.com/hyperjump/tcmkb/internal/storage"
	"github.com/hyperjump/tcmkb/internal/vector"
)

const (
	defaultPageSize = 50
	maxPageSize     = 500
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// statusResponse is the body of GET /api/v1/status.
type statusResponse struct {
	KnowledgeBases  int      `json:"knowledge_bases"`
	Documents       int64    `json:"documents"`
	Vectors         int64    `json:"vectors"`
	StorageDriver   string   `json:"storage_driver"`
	EmbeddingModels []string `json:"embedding_models"`
	DiskUsageBytes  *int64   `json:"disk_usage_bytes,omitempty"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	kbs, err := s.storage.ListKnowledgeBases(ctx, 0, -1)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	resp := statusResponse{
		KnowledgeBases:  len(kbs),
		StorageDriver:   s.config.Storage.Driver,
		EmbeddingModels: make([]string, 0, len(s.config.Embedding.Models)),
	}
	for _, m := range s.config.Embedding.Models {
		resp.EmbeddingModels = append(resp.EmbeddingModels, m.Name)
	}
	for _, kb := range kbs {
		stats, err := s.engine.Stats(ctx, kb.ID)
		if err != nil {
			s.logger.Warn("status: stats failed", zap.String("knowledge_base_id", kb.ID), zap.Error(err))
			continue
		}
		resp.Documents += int64(stats.DocumentCount)
		resp.Vectors += int64(stats.VectorCount)
	}
	paths := append(storage.SQLiteFiles(s.config.Storage.DatabasePath), s.config.Storage.UploadDir)
	if n, err := storage.DiskUsageBytes(paths...); err == nil {
		resp.DiskUsageBytes = &n
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCreateKnowledgeBase(w http.ResponseWriter, r *http.Request) {
	var in models.KnowledgeBaseInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	kb, err := s.engine.CreateKnowledgeBase(r.Context(), in, search.KnowledgeBaseDefaults(s.config.KnowledgeBase))
	if err != nil {
		s.respondErr(w, err)
		return
	}
	s.respondJSON(w, http.StatusCreated, kb)
}

func (s *Server) handleListKnowledgeBases(w http.ResponseWriter, r *http.Request) {
	offset, limit, ok := s.page(w, r)
	if !ok {
		return
	}
	kbs, err := s.storage.ListKnowledgeBases(r.Context(), offset, limit)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	if kbs == nil {
		kbs = []*models.KnowledgeBase{}
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"knowledge_bases": kbs})
}

func (s *Server) handleGetKnowledgeBase(w http.ResponseWriter, r *http.Request) {
	kb, err := s.storage.GetKnowledgeBase(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.respondErr(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, kb)
}

func (s *Server) handleSetKnowledgeBaseActive(w http.ResponseWriter, r *http.Request) {
	var body struct {
		IsActive *bool `json:"is_active"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.IsActive == nil {
		s.respondError(w, http.StatusBadRequest, "is_active is required")
		return
	}
	id := chi.URLParam(r, "id")
	if err := s.storage.SetKnowledgeBaseActive(r.Context(), id, *body.IsActive); err != nil {
		s.respondErr(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"id": id, "is_active": *body.IsActive})
}

func (s *Server) handleKnowledgeBaseStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.engine.Stats(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.respondErr(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, stats)
}

func (s *Server) handleCreateIndex(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.engine.CreateIndex(r.Context(), id); err != nil {
		s.respondErr(w, err)
		return
	}
	s.respondJSON(w, http.StatusCreated, map[string]string{"index": vector.IndexName(id), "status": "created"})
}

func (s *Server) handleDropIndex(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.engine.DropIndex(r.Context(), id); err != nil {
		s.respondErr(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"index": vector.IndexName(id), "status": "dropped"})
}

func (s *Server) handleUploadDocument(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, int64(s.config.Server.MaxUploadMB)<<20)
	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.respondError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("upload exceeds %d MB", s.config.Server.MaxUploadMB))
			return
		}
		s.respondError(w, http.StatusBadRequest, "multipart field \"file\" is required")
		return
	}
	defer file.Close()
	content, err := io.ReadAll(file)
	if err != nil {
		s.respondError(w, http.StatusRequestEntityTooLarge, "upload too large")
		return
	}

	ctx := r.Context()
	doc, err := s.processor.Accept(ctx, chi.URLParam(r, "id"), header.Filename, content)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	if err := s.pool.Submit(doc); err != nil {
		if delErr := s.processor.DeleteDocument(ctx, doc.ID); delErr != nil {
			s.logger.Warn("failed to discard rejected upload", zap.String("document_id", doc.ID), zap.Error(delErr))
		}
		s.respondErr(w, err)
		return
	}
	s.logger.Debug("upload queued", zap.String("document_id", doc.ID), zap.String("name", doc.Name))
	s.respondJSON(w, http.StatusAccepted, map[string]string{
		"message":     "Document upload accepted, processing in background",
		"document_id": doc.ID,
	})
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	offset, limit, ok := s.page(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	kb, err := s.storage.GetKnowledgeBase(ctx, chi.URLParam(r, "id"))
	if err != nil {
		s.respondErr(w, err)
		return
	}
	docs, err := s.storage.ListDocuments(ctx, kb.ID, offset, limit)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	if docs == nil {
		docs = []*models.Document{}
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"documents": docs})
}

func (s *Server) handleUpdateParagraph(w http.ResponseWriter, r *http.Request) {
	var u models.ParagraphUpdate
	if err := json.NewDecoder(r.Body).Decode(&u); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	p, err := s.engine.UpdateParagraph(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "paragraphID"), u)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, p)
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := s.storage.GetDocument(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.respondErr(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, doc)
}

func (s *Server) handleReprocessDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := s.processor.Reset(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.respondErr(w, err)
		return
	}
	if err := s.pool.Submit(doc); err != nil {
		// Reset already removed the paragraphs; leave a terminal status that
		// a later reprocess can pick up.
		s.processor.Fail(r.Context(), doc, err)
		s.respondErr(w, err)
		return
	}
	s.respondJSON(w, http.StatusAccepted, map[string]string{"document_id": doc.ID, "status": string(doc.Status)})
}

func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.logger.Debug("delete document request", zap.String("id", id))
	if err := s.processor.DeleteDocument(r.Context(), id); err != nil {
		s.respondErr(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleEmbeddingOperation(w http.ResponseWriter, r *http.Request) {
	var op models.EmbeddingOperation
	if err := json.NewDecoder(r.Body).Decode(&op); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.engine.ApplyEmbeddingOperation(r.Context(), &op); err != nil {
		s.respondErr(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"message": "Embeddings deleted successfully"})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req models.SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.logger.Debug("search request", zap.String("query", req.Query), zap.Int("top_k", req.TopK))
	resp, err := s.engine.Search(r.Context(), &req)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRetrieve(w http.ResponseWriter, r *http.Request) {
	var req models.RetrieveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.logger.Debug("retrieve request", zap.String("query", req.Query), zap.Strings("knowledge_base_ids", req.KnowledgeBaseIDs))
	resp, err := s.engine.Retrieve(r.Context(), &req)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, resp)
}

// page reads offset and limit query parameters.
func (s *Server) page(w http.ResponseWriter, r *http.Request) (offset, limit int, ok bool) {
	limit = defaultPageSize
	q := r.URL.Query()
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			s.respondError(w, http.StatusBadRequest, "invalid offset")
			return 0, 0, false
		}
		offset = n
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			s.respondError(w, http.StatusBadRequest, "invalid limit")
			return 0, 0, false
		}
		limit = n
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	return offset, limit, true
}

// statusFor maps an error to its HTTP status code.
func statusFor(err error) int {
	var ve *search.ValidationError
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.As(err, &ve), errors.Is(err, vector.ErrInvalidKnowledgeBaseID):
		return http.StatusBadRequest
	case errors.Is(err, search.ErrInactiveKnowledgeBase):
		return http.StatusConflict
	case errors.Is(err, indexer.ErrQueueFull), errors.Is(err, indexer.ErrPoolClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) respondErr(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", zap.Error(err))
	}
	s.respondError(w, status, err.Error())
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
