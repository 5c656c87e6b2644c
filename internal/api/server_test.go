package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/reqlens/reqlens/internal/analyze"
	"github.com/reqlens/reqlens/internal/loader"
	"github.com/reqlens/reqlens/internal/log"
)

type fakeAnalyzer struct {
	reqs []analyze.Request
}

func (f *fakeAnalyzer) AnalyzeBatch(_ context.Context, reqs []analyze.Request) []analyze.Report {
	f.reqs = reqs
	reports := make([]analyze.Report, len(reqs))
	for i, req := range reqs {
		reports[i] = analyze.Report{
			PageID:       req.PageID,
			Status:       "merged",
			OverallScore: 90,
		}
	}
	return reports
}

type fakeLoader struct {
	ids []string
}

func (f *fakeLoader) LoadPages(_ context.Context, pageIDs []string) []loader.PageResult {
	f.ids = pageIDs
	results := make([]loader.PageResult, len(pageIDs))
	for i, id := range pageIDs {
		results[i] = loader.PageResult{PageID: id, Fragments: 3}
	}
	return results
}

type fakePinger struct{ err error }

func (p fakePinger) Ping(context.Context) error { return p.err }

func newTestServer(analyzer Analyzer, pageLoader PageLoader, db Pinger) *Server {
	logger := log.NewNop()
	return NewServer(
		NewHealthHandler(db, logger),
		NewAnalyzeHandler(analyzer, logger),
		NewLoadHandler(pageLoader, logger),
		logger,
	)
}

func TestAnalyzeEndpoint(t *testing.T) {
	analyzer := &fakeAnalyzer{}
	srv := newTestServer(analyzer, &fakeLoader{}, fakePinger{})

	body := `{"items": [{"page_id": "1", "requirement_type": "data_model"}, {"page_id": "2"}]}`
	req := httptest.NewRequest(http.MethodPost, "/api/analyze", strings.NewReader(body))
	rec := httptest.NewRecorder()

	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("missing X-Request-ID header")
	}

	var resp AnalyzeResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Reports) != 2 {
		t.Fatalf("reports = %d, want 2", len(resp.Reports))
	}
	if resp.Reports[0].PageID != "1" || resp.Reports[1].PageID != "2" {
		t.Errorf("reports order = %q, %q", resp.Reports[0].PageID, resp.Reports[1].PageID)
	}
	if len(analyzer.reqs) != 2 || analyzer.reqs[0].RequirementType != "data_model" {
		t.Errorf("forwarded requests = %+v", analyzer.reqs)
	}
}

func TestAnalyzeEndpointValidation(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"malformed JSON", `{items:`},
		{"empty items", `{"items": []}`},
		{"missing page id", `{"items": [{"requirement_type": "data_model"}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(&fakeAnalyzer{}, &fakeLoader{}, fakePinger{})
			req := httptest.NewRequest(http.MethodPost, "/api/analyze", strings.NewReader(tt.body))
			rec := httptest.NewRecorder()

			srv.Handler().ServeHTTP(rec, req)

			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", rec.Code)
			}
			var resp ErrorResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
				t.Fatalf("decode error response: %v", err)
			}
			if resp.Error != "invalid_request" {
				t.Errorf("error = %q", resp.Error)
			}
		})
	}
}

func TestAnalyzeEndpointBatchLimit(t *testing.T) {
	items := make([]string, 0, MaxBatchSize+1)
	for i := 0; i <= MaxBatchSize; i++ {
		items = append(items, `{"page_id": "1"}`)
	}
	body := `{"items": [` + strings.Join(items, ",") + `]}`

	srv := newTestServer(&fakeAnalyzer{}, &fakeLoader{}, fakePinger{})
	req := httptest.NewRequest(http.MethodPost, "/api/analyze", strings.NewReader(body))
	rec := httptest.NewRecorder()

	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestLoadEndpoint(t *testing.T) {
	pageLoader := &fakeLoader{}
	srv := newTestServer(&fakeAnalyzer{}, pageLoader, fakePinger{})

	req := httptest.NewRequest(http.MethodPost, "/api/load", strings.NewReader(`{"page_ids": ["10", "20"]}`))
	rec := httptest.NewRecorder()

	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var resp LoadResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Pages) != 2 || resp.Pages[0].Fragments != 3 {
		t.Errorf("pages = %+v", resp.Pages)
	}
	if len(pageLoader.ids) != 2 {
		t.Errorf("forwarded ids = %v", pageLoader.ids)
	}
}

func TestLoadEndpointValidation(t *testing.T) {
	srv := newTestServer(&fakeAnalyzer{}, &fakeLoader{}, fakePinger{})

	req := httptest.NewRequest(http.MethodPost, "/api/load", strings.NewReader(`{"page_ids": []}`))
	rec := httptest.NewRecorder()

	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestHealthEndpoints(t *testing.T) {
	t.Run("liveness", func(t *testing.T) {
		srv := newTestServer(&fakeAnalyzer{}, &fakeLoader{}, fakePinger{})
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

		if rec.Code != http.StatusOK || rec.Body.String() != "ok" {
			t.Errorf("liveness = %d %q", rec.Code, rec.Body.String())
		}
	})

	t.Run("ready", func(t *testing.T) {
		srv := newTestServer(&fakeAnalyzer{}, &fakeLoader{}, fakePinger{})
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))

		if rec.Code != http.StatusOK {
			t.Errorf("readiness = %d", rec.Code)
		}
	})

	t.Run("database down", func(t *testing.T) {
		srv := newTestServer(&fakeAnalyzer{}, &fakeLoader{}, fakePinger{err: errors.New("connection refused")})
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))

		if rec.Code != http.StatusServiceUnavailable {
			t.Errorf("readiness = %d, want 503", rec.Code)
		}
	})
}

type panicAnalyzer struct{}

func (panicAnalyzer) AnalyzeBatch(context.Context, []analyze.Request) []analyze.Report {
	panic("boom")
}

func TestRecoveryMiddleware(t *testing.T) {
	srv := newTestServer(panicAnalyzer{}, &fakeLoader{}, fakePinger{})

	req := httptest.NewRequest(http.MethodPost, "/api/analyze", strings.NewReader(`{"items": [{"page_id": "1"}]}`))
	rec := httptest.NewRecorder()

	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
}

func TestRequestIDPropagation(t *testing.T) {
	srv := newTestServer(&fakeAnalyzer{}, &fakeLoader{}, fakePinger{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "req-42")
	rec := httptest.NewRecorder()

	srv.Handler().ServeHTTP(rec, req)

	if got := rec.Header().Get("X-Request-ID"); got != "req-42" {
		t.Errorf("X-Request-ID = %q, want req-42", got)
	}
}
