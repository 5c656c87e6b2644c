package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/reqlens/reqlens/internal/loader"
	"github.com/reqlens/reqlens/internal/log"
)

// MaxLoadPages caps pages ingested per request.
const MaxLoadPages = 100

// PageLoader ingests pages. *loader.Loader satisfies it.
type PageLoader interface {
	LoadPages(ctx context.Context, pageIDs []string) []loader.PageResult
}

// LoadHandler serves POST /api/load.
type LoadHandler struct {
	loader PageLoader
	logger log.Logger
}

func NewLoadHandler(l PageLoader, logger log.Logger) *LoadHandler {
	return &LoadHandler{loader: l, logger: logger}
}

func (h *LoadHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/load", h.load)
}

// LoadRequest is the request body for POST /api/load.
type LoadRequest struct {
	PageIDs []string `json:"page_ids"`
}

// LoadResponse reports per-page ingestion outcomes.
type LoadResponse struct {
	Pages []loader.PageResult `json:"pages"`
}

func (h *LoadHandler) load(w http.ResponseWriter, r *http.Request) {
	var req LoadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "malformed JSON body", h.logger)
		return
	}
	if len(req.PageIDs) == 0 {
		writeError(w, http.StatusBadRequest, "invalid_request", "page_ids must not be empty", h.logger)
		return
	}
	if len(req.PageIDs) > MaxLoadPages {
		writeError(w, http.StatusBadRequest, "invalid_request", "too many pages in one request", h.logger)
		return
	}
	for _, id := range req.PageIDs {
		if id == "" {
			writeError(w, http.StatusBadRequest, "invalid_request", "empty page id", h.logger)
			return
		}
	}

	results := h.loader.LoadPages(r.Context(), req.PageIDs)
	writeJSON(w, http.StatusOK, LoadResponse{Pages: results}, h.logger)
}
