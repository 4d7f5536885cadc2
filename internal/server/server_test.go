package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/grounder-ai/grounder/internal/retrieve"
)

// fakeRetriever returns canned chunks or a canned error.
type fakeRetriever struct {
	chunks []retrieve.HydratedChunk
	err    error
}

func (f *fakeRetriever) Retrieve(context.Context, string) ([]retrieve.HydratedChunk, error) {
	return f.chunks, f.err
}

// fakeReloader records Reload calls and can fail on demand.
type fakeReloader struct {
	calls int
	err   error
}

func (f *fakeReloader) Reload() error {
	f.calls++
	return f.err
}

// newTestServer builds a Server with a fresh registry and no rate limit
// pressure, returning its handler for httptest use.
func newTestServer(t *testing.T, ret retriever, repo reloader, mutate func(*Config)) *Server {
	t.Helper()
	cfg := &Config{
		RateLimit: 1000,
		RateBurst: 1000,
		Registry:  prometheus.NewRegistry(),
	}
	if mutate != nil {
		mutate(cfg)
	}
	s, err := New(ret, repo, cfg)
	if err != nil {
		t.Fatalf("New(): %v", err)
	}
	t.Cleanup(s.stopRL)
	return s
}

func postRetrieve(t *testing.T, s *Server, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/retrieve", strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(rec, req)
	return rec
}

func TestHandleRetrieve(t *testing.T) {
	t.Parallel()

	ret := &fakeRetriever{chunks: []retrieve.HydratedChunk{
		{ChunkID: "c1", Score: 0.9, Text: "alpha", DocumentName: "alpha.md"},
		{ChunkID: "c2", Score: 0.7, Text: "beta", DocumentName: "beta.txt"},
	}}
	repo := &fakeReloader{}
	s := newTestServer(t, ret, repo, nil)

	rec := postRetrieve(t, s, `{"query":"what is alpha?"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	if repo.calls != 1 {
		t.Errorf("Reload called %d times, want 1", repo.calls)
	}

	var resp retrieveResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Query != "what is alpha?" {
		t.Errorf("echoed query = %q", resp.Query)
	}
	if len(resp.Chunks) != 2 || resp.Chunks[0].ChunkID != "c1" {
		t.Errorf("chunks = %+v", resp.Chunks)
	}
}

func TestHandleRetrieveEmptyQuery(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, &fakeRetriever{}, nil, nil)
	if rec := postRetrieve(t, s, `{"query":""}`); rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestHandleRetrieveMalformedBody(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, &fakeRetriever{}, nil, nil)
	if rec := postRetrieve(t, s, `{not json`); rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestHandleRetrieveRetrieverError(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, &fakeRetriever{err: errors.New("search down")}, nil, nil)
	if rec := postRetrieve(t, s, `{"query":"q"}`); rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}

func TestHandleRetrieveReloadFailure(t *testing.T) {
	t.Parallel()

	repo := &fakeReloader{err: errors.New("no manifest")}
	s := newTestServer(t, &fakeRetriever{}, repo, nil)
	if rec := postRetrieve(t, s, `{"query":"q"}`); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}

func TestHandleHealth(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, &fakeRetriever{}, nil, nil)
	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	rec := httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"ok"`) {
		t.Errorf("body = %s", rec.Body.String())
	}
}

// stubPinger implements Pinger with a fixed result.
type stubPinger struct {
	name string
	err  error
}

func (p *stubPinger) Ping(context.Context) error { return p.err }
func (p *stubPinger) Name() string               { return p.name }

func TestHandleReady(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		pingers    []Pinger
		wantStatus int
		wantReady  bool
	}{
		{
			name:       "no pingers is liveness only",
			wantStatus: http.StatusOK,
			wantReady:  true,
		},
		{
			name:       "all healthy",
			pingers:    []Pinger{&stubPinger{name: "qdrant"}, &stubPinger{name: "manifest"}},
			wantStatus: http.StatusOK,
			wantReady:  true,
		},
		{
			name:       "one dependency down",
			pingers:    []Pinger{&stubPinger{name: "qdrant"}, &stubPinger{name: "manifest", err: errors.New("unpublished")}},
			wantStatus: http.StatusServiceUnavailable,
			wantReady:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			s := newTestServer(t, &fakeRetriever{}, nil, func(cfg *Config) {
				cfg.Pingers = tt.pingers
			})

			req := httptest.NewRequest(http.MethodGet, "/api/ready", nil)
			rec := httptest.NewRecorder()
			s.httpServer.Handler.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			var resp readyResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if resp.Ready != tt.wantReady {
				t.Errorf("ready = %v, want %v", resp.Ready, tt.wantReady)
			}
			if len(resp.Checks) != len(tt.pingers) {
				t.Errorf("checks = %d, want %d", len(resp.Checks), len(tt.pingers))
			}
		})
	}
}
