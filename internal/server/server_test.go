package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/localmind/assistant/internal/config"
	"github.com/localmind/assistant/internal/inference"
	"github.com/localmind/assistant/internal/memory"
	"github.com/localmind/assistant/internal/models"
	"github.com/localmind/assistant/internal/resource"
	"github.com/localmind/assistant/internal/session"
	"github.com/localmind/assistant/internal/vectorindex"
)

type stubBackend struct{ content string }

func (b stubBackend) Generate(ctx context.Context, prompt string, params models.GenParams) (models.GenResult, error) {
	return models.GenResult{Content: b.content, TokensOut: 4, FinishReason: "completed"}, nil
}
func (b stubBackend) Close(ctx context.Context) error { return nil }

type stubLoader struct{ backend models.Backend }

func (l stubLoader) Load(ctx context.Context, d models.Descriptor) (models.Backend, error) {
	return l.backend, nil
}

func newTestServer(t *testing.T) (*Server, *session.Manager) {
	t.Helper()

	sessions := session.NewManager(session.DefaultConfig(), nil)

	index, err := vectorindex.NewChromemIndex("")
	if err != nil {
		t.Fatalf("NewChromemIndex: %v", err)
	}
	dbPath := filepath.Join(t.TempDir(), "memory.db")
	memStore, err := memory.Open(dbPath, config.MemoryConfig{ConsolidationThreshold: 0.3}, index, nil)
	if err != nil {
		t.Fatalf("memory.Open: %v", err)
	}
	t.Cleanup(func() { memStore.Close() })

	modelMgr := models.NewManager(stubLoader{backend: stubBackend{content: "hello from the façade"}}, 1<<20, nil)
	resMon := resource.NewMonitor(time.Hour, nil)

	descriptors := []models.Descriptor{{
		ID:            "model-a",
		BackendKind:   "local-process",
		RequiredRAMMB: 1024,
		QualityScore:  0.6,
		SpeedScore:    0.6,
		SweetSpot:     0.5,
	}}

	engine := inference.NewEngine(sessions, memStore, modelMgr, resMon, descriptors, nil, inference.DefaultConfig())

	srv := New(DefaultConfig(), engine, sessions)
	return srv, sessions
}

func TestHandleGenerateReturnsResult(t *testing.T) {
	srv, _ := newTestServer(t)

	body, _ := json.Marshal(generateRequest{AgentID: "agent-1", Prompt: "write a function to add two numbers"})
	req := httptest.NewRequest(http.MethodPost, "/api/generate", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	srv.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var result inference.Result
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if result.Content != "hello from the façade" {
		t.Errorf("Content = %q, want %q", result.Content, "hello from the façade")
	}
}

func TestHandleGenerateRejectsEmptyPrompt(t *testing.T) {
	srv, _ := newTestServer(t)

	body, _ := json.Marshal(generateRequest{Prompt: ""})
	req := httptest.NewRequest(http.MethodPost, "/api/generate", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	srv.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestHandleGetSessionReturnsSnapshot(t *testing.T) {
	srv, sessions := newTestServer(t)
	id := sessions.StartSession("agent-1")

	req := httptest.NewRequest(http.MethodGet, "/api/sessions/"+id, nil)
	rec := httptest.NewRecorder()

	srv.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
}

func TestHandleGetSessionNotFound(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/sessions/does-not-exist", nil)
	rec := httptest.NewRecorder()

	srv.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestHandleHealth(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()

	srv.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}
