// Package server exposes the retrieval engine over a small HTTP API.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"github.com/marulab/recall/internal/contextbuild"
	"github.com/marulab/recall/internal/embedding"
	"github.com/marulab/recall/internal/index"
	"github.com/marulab/recall/internal/retriever"
	"github.com/marulab/recall/pkg/models"
)

// Service wires the index, retriever and assembler behind a chi router.
type Service struct {
	ix        *index.Index
	retriever *retriever.Retriever
	assembler *contextbuild.Assembler
	batcher   *embedding.Batcher
	router    chi.Router

	defaultBudget      int
	budgetRatio        float64
	defaultCompression models.CompressionLevel
	startTime          time.Time
}

// New builds the HTTP service. A /api/context request that omits a budget
// gets model_window scaled by budgetRatio when it sends one, defaultBudget
// otherwise. batcher embeds ingested documents; a nil batcher disables the
// ingestion endpoints.
func New(ix *index.Index, r *retriever.Retriever, a *contextbuild.Assembler, batcher *embedding.Batcher, defaultBudget int, budgetRatio float64, compression models.CompressionLevel) *Service {
	svc := &Service{
		ix:                 ix,
		retriever:          r,
		assembler:          a,
		batcher:            batcher,
		router:             chi.NewRouter(),
		defaultBudget:      defaultBudget,
		budgetRatio:        budgetRatio,
		defaultCompression: compression,
		startTime:          time.Now(),
	}
	svc.setupRoutes()
	return svc
}

// Router returns the configured handler.
func (s *Service) Router() http.Handler { return s.router }

func (s *Service) setupRoutes() {
	s.router.Use(middleware.Recoverer)
	s.router.Get("/healthz", s.handleHealth)
	s.router.Route("/api", func(r chi.Router) {
		r.Post("/search", s.handleSearch)
		r.Post("/context", s.handleContext)
		r.Get("/stats", s.handleStats)
		if s.batcher != nil {
			r.Post("/documents", s.handleIngest)
			r.Patch("/documents/{docID}", s.handleUpdate)
			r.Delete("/documents/{docID}", s.handleDelete)
			r.Post("/rebuild", s.handleRebuild)
		}
	})
}

// Serve runs the HTTP server until ctx is cancelled.
func (s *Service) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("HTTP server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Service) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"uptime":    time.Since(s.startTime).String(),
		"documents": s.ix.Len(),
	})
}

func (s *Service) handleSearch(w http.ResponseWriter, r *http.Request) {
	var query models.SearchQuery
	if err := json.NewDecoder(r.Body).Decode(&query); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if query.Text == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}

	results, err := s.retriever.Search(r.Context(), query)
	if err != nil {
		log.Error().Err(err).Msg("Search failed")
		writeError(w, http.StatusBadGateway, "search failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"results": results,
		"count":   len(results),
	})
}

// contextRequest embeds the search query with assembly parameters.
type contextRequest struct {
	models.SearchQuery
	TokenBudget int                     `json:"token_budget,omitempty"`
	ModelWindow int                     `json:"model_window,omitempty"`
	Compression models.CompressionLevel `json:"compression,omitempty"`
}

func (s *Service) handleContext(w http.ResponseWriter, r *http.Request) {
	var req contextRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Text == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}
	if req.TokenBudget <= 0 && req.ModelWindow > 0 && s.budgetRatio > 0 {
		req.TokenBudget = int(float64(req.ModelWindow) * s.budgetRatio)
	}
	if req.TokenBudget <= 0 {
		req.TokenBudget = s.defaultBudget
	}
	if req.Compression == "" {
		req.Compression = s.defaultCompression
	}
	if !req.Compression.Valid() {
		writeError(w, http.StatusBadRequest, "unknown compression level")
		return
	}

	results, err := s.retriever.Search(r.Context(), req.SearchQuery)
	if err != nil {
		log.Error().Err(err).Msg("Context search failed")
		writeError(w, http.StatusBadGateway, "search failed")
		return
	}

	built := s.assembler.Build(results, req.TokenBudget, req.Compression)
	writeJSON(w, http.StatusOK, built)
}

// ingestRequest is a batch of documents to embed and index.
type ingestRequest struct {
	Documents []struct {
		DocID    string              `json:"doc_id,omitempty"`
		Content  string              `json:"content"`
		Type     models.DocumentType `json:"document_type"`
		Metadata map[string]string   `json:"metadata,omitempty"`
	} `json:"documents"`
}

func (s *Service) handleIngest(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Documents) == 0 {
		writeError(w, http.StatusBadRequest, "documents is required")
		return
	}

	texts := make([]string, len(req.Documents))
	for i, d := range req.Documents {
		if d.Content == "" {
			writeError(w, http.StatusBadRequest, "document content is required")
			return
		}
		texts[i] = d.Content
	}

	vectors, err := s.batcher.EmbedAll(r.Context(), texts)
	if err != nil {
		log.Error().Err(err).Msg("Batch embedding failed")
		writeError(w, http.StatusBadGateway, "embedding failed")
		return
	}

	docs := make([]*models.Document, len(req.Documents))
	for i, d := range req.Documents {
		docs[i] = models.NewDocument(d.DocID, d.Content, vectors[i], d.Type, d.Metadata)
	}

	slots, err := s.ix.Add(r.Context(), docs)
	if err != nil {
		if errors.Is(err, index.ErrDuplicateDoc) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		log.Error().Err(err).Msg("Ingest failed")
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	ids := make([]string, len(docs))
	for i, d := range docs {
		ids[i] = d.DocID
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"doc_ids":    ids,
		"vector_ids": slots,
	})
}

// updateRequest carries an in-place content/metadata change.
type updateRequest struct {
	Content  string            `json:"content,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

func (s *Service) handleUpdate(w http.ResponseWriter, r *http.Request) {
	docID := chi.URLParam(r, "docID")
	var req updateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := s.ix.Update(docID, req.Content, req.Metadata); err != nil {
		if errors.Is(err, index.ErrNotFound) {
			writeError(w, http.StatusNotFound, "document not found")
			return
		}
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Service) handleDelete(w http.ResponseWriter, r *http.Request) {
	docID := chi.URLParam(r, "docID")
	if err := s.ix.Delete(docID); err != nil {
		if errors.Is(err, index.ErrNotFound) {
			writeError(w, http.StatusNotFound, "document not found")
			return
		}
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Service) handleRebuild(w http.ResponseWriter, r *http.Request) {
	if err := s.ix.Rebuild(r.Context()); err != nil {
		log.Error().Err(err).Msg("Rebuild failed")
		writeError(w, http.StatusInternalServerError, "rebuild failed")
		return
	}
	writeJSON(w, http.StatusOK, s.ix.Stats())
}

func (s *Service) handleStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"index":     s.ix.Stats(),
		"retrieval": s.retriever.Metrics(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
