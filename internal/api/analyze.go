package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/reqlens/reqlens/internal/analyze"
	"github.com/reqlens/reqlens/internal/log"
)

// MaxBatchSize caps the pages analyzed in one request. Each page can
// cost a model call, so unbounded batches would hold the connection
// past WriteTimeout.
const MaxBatchSize = 20

// Analyzer runs batch analyses. *analyze.Orchestrator satisfies it.
type Analyzer interface {
	AnalyzeBatch(ctx context.Context, reqs []analyze.Request) []analyze.Report
}

// AnalyzeHandler serves POST /api/analyze.
type AnalyzeHandler struct {
	analyzer Analyzer
	logger   log.Logger
}

func NewAnalyzeHandler(analyzer Analyzer, logger log.Logger) *AnalyzeHandler {
	return &AnalyzeHandler{analyzer: analyzer, logger: logger}
}

func (h *AnalyzeHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/analyze", h.analyze)
}

// AnalyzeRequest is the request body for POST /api/analyze.
type AnalyzeRequest struct {
	Items []analyze.Request `json:"items"`
}

// AnalyzeResponse is the response body for POST /api/analyze. Reports
// are parallel to the request items.
type AnalyzeResponse struct {
	Reports []analyze.Report `json:"reports"`
}

func (h *AnalyzeHandler) analyze(w http.ResponseWriter, r *http.Request) {
	var req AnalyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "malformed JSON body", h.logger)
		return
	}
	if len(req.Items) == 0 {
		writeError(w, http.StatusBadRequest, "invalid_request", "items must not be empty", h.logger)
		return
	}
	if len(req.Items) > MaxBatchSize {
		writeError(w, http.StatusBadRequest, "invalid_request", "too many items in one batch", h.logger)
		return
	}
	for _, item := range req.Items {
		if item.PageID == "" {
			writeError(w, http.StatusBadRequest, "invalid_request", "every item needs a page_id", h.logger)
			return
		}
	}

	reports := h.analyzer.AnalyzeBatch(r.Context(), req.Items)
	writeJSON(w, http.StatusOK, AnalyzeResponse{Reports: reports}, h.logger)
}
