package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brainsh/brain/internal/auth"
	"github.com/brainsh/brain/internal/config"
	"github.com/brainsh/brain/internal/db"
	"github.com/brainsh/brain/internal/events"
	"github.com/brainsh/brain/internal/service"
	"github.com/brainsh/brain/internal/task"
)

// indexEntry describes one task for the scripted index.
type indexEntry struct {
	Project string
	ID      string
	Title   string
	Status  task.Status
	Deps    []string
}

type scriptedIndexer struct {
	mu      sync.Mutex
	entries []indexEntry
}

func (s *scriptedIndexer) Query(_ context.Context, _ string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := "["
	for i, e := range s.entries {
		if i > 0 {
			out += ","
		}
		deps := ""
		for j, d := range e.Deps {
			if j > 0 {
				deps += ","
			}
			deps += fmt.Sprintf("%q", d)
		}
		out += fmt.Sprintf(`{"path":"projects/%s/task/%s.md","id":%q,"title":%q,"status":%q,"depends_on":[%s]}`,
			e.Project, e.ID, e.ID, e.Title, e.Status, deps)
	}
	return []byte(out + "]"), nil
}

const taskBody = `## Context
Build it.

## Plan
### Phase one
Do the thing.

## Done
`

// testServer wires an API server over a temp store with the given tasks.
func testServer(t *testing.T, entries []indexEntry) http.Handler {
	t.Helper()

	cfg := config.Default()
	cfg.BrainDir = t.TempDir()

	for _, e := range entries {
		path := filepath.Join(cfg.BrainDir, "projects", e.Project, "task", e.ID+".md")
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		content := fmt.Sprintf("---\nid: %s\ntitle: %s\nstatus: %s\n---\n%s", e.ID, e.Title, e.Status, taskBody)
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	}

	svc := service.NewWithIndexer(cfg, &scriptedIndexer{entries: entries}, nil)
	srv := New(Options{
		Config:    cfg,
		Service:   svc,
		Publisher: events.NewMemoryPublisher(),
	})
	return srv.Handler()
}

func get(t *testing.T, handler http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", path, nil))
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return body
}

func TestHealth(t *testing.T) {
	handler := testServer(t, nil)
	rec := get(t, handler, "/api/v1/health")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decode(t, rec)["status"])
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestListProjects(t *testing.T) {
	handler := testServer(t, []indexEntry{
		{Project: "api", ID: "a1b2c3d4", Title: "Build API", Status: task.StatusPending},
		{Project: "web", ID: "b2c3d4e5", Title: "Build web", Status: task.StatusPending},
	})

	rec := get(t, handler, "/api/v1/tasks")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, float64(2), body["count"])
	assert.Equal(t, []any{"api", "web"}, body["projects"])
}

func TestListTasksForProject(t *testing.T) {
	handler := testServer(t, []indexEntry{
		{Project: "api", ID: "a1b2c3d4", Title: "Build API", Status: task.StatusPending},
		{Project: "api", ID: "b2c3d4e5", Title: "Ship it", Status: task.StatusCompleted},
		{Project: "web", ID: "c3d4e5f6", Title: "Build web", Status: task.StatusPending},
	})

	rec := get(t, handler, "/api/v1/tasks/api")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, float64(2), body["count"])
}

func TestUnknownProjectIs404(t *testing.T) {
	handler := testServer(t, []indexEntry{
		{Project: "api", ID: "a1b2c3d4", Title: "Build API", Status: task.StatusPending},
	})

	rec := get(t, handler, "/api/v1/tasks/nope")
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "PROJECT_NOT_FOUND", decode(t, rec)["error"])
}

func TestTaskSelections(t *testing.T) {
	handler := testServer(t, []indexEntry{
		{Project: "api", ID: "a1b2c3d4", Title: "Schema", Status: task.StatusCompleted},
		{Project: "api", ID: "b2c3d4e5", Title: "Handlers", Status: task.StatusPending, Deps: []string{"a1b2c3d4"}},
		{Project: "api", ID: "c3d4e5f6", Title: "Docs", Status: task.StatusPending, Deps: []string{"b2c3d4e5"}},
		{Project: "api", ID: "e5f6a1b2", Title: "Migration", Status: task.StatusBlocked},
		{Project: "api", ID: "d4e5f6a1", Title: "Legacy", Status: task.StatusPending, Deps: []string{"e5f6a1b2"}},
	})

	rec := get(t, handler, "/api/v1/tasks/api/ready")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	require.Equal(t, float64(1), body["count"])
	ready := body["tasks"].([]any)
	assert.Equal(t, "b2c3d4e5", ready[0].(map[string]any)["id"])

	rec = get(t, handler, "/api/v1/tasks/api/waiting")
	body = decode(t, rec)
	assert.Equal(t, float64(1), body["count"])

	rec = get(t, handler, "/api/v1/tasks/api/blocked")
	body = decode(t, rec)
	assert.Equal(t, float64(1), body["count"])

	rec = get(t, handler, "/api/v1/tasks/api/next")
	require.Equal(t, http.StatusOK, rec.Code)
	next := decode(t, rec)
	assert.Equal(t, "b2c3d4e5", next["id"])

	rec = get(t, handler, "/api/v1/tasks/api/bogus")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestNextWithNoReadyTaskIs404(t *testing.T) {
	handler := testServer(t, []indexEntry{
		{Project: "api", ID: "a1b2c3d4", Title: "Done already", Status: task.StatusCompleted},
	})

	rec := get(t, handler, "/api/v1/tasks/api/next")
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "TASK_NOT_FOUND", decode(t, rec)["error"])
}

func TestSectionList(t *testing.T) {
	handler := testServer(t, []indexEntry{
		{Project: "api", ID: "a1b2c3d4", Title: "Build API", Status: task.StatusPending},
	})

	rec := get(t, handler, "/api/v1/entries/a1b2c3d4/sections")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	require.Equal(t, float64(4), body["count"])
	headers := body["sections"].([]any)
	h0 := headers[0].(map[string]any)
	assert.Equal(t, "Context", h0["title"])
	assert.Equal(t, float64(2), h0["level"])
	// Front matter counts toward the 1-based line numbers.
	assert.Equal(t, float64(6), h0["line"])
}

func TestSectionExtract(t *testing.T) {
	handler := testServer(t, []indexEntry{
		{Project: "api", ID: "a1b2c3d4", Title: "Build API", Status: task.StatusPending},
	})

	rec := get(t, handler, "/api/v1/entries/a1b2c3d4/sections/plan")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.NotContains(t, body["content"], "Phase one")

	rec = get(t, handler, "/api/v1/entries/a1b2c3d4/sections/plan?includeSubsections=true")
	body = decode(t, rec)
	assert.Contains(t, body["content"], "Phase one")

	rec = get(t, handler, "/api/v1/entries/a1b2c3d4/sections/missing")
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "SECTION_NOT_FOUND", decode(t, rec)["error"])
}

func TestSectionUnknownEntry(t *testing.T) {
	handler := testServer(t, nil)
	rec := get(t, handler, "/api/v1/entries/ffffffff/sections")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMCPMethodNotAllowed(t *testing.T) {
	handler := testServer(t, nil)

	for _, method := range []string{"GET", "DELETE"} {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(method, "/mcp", nil))
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code, method)
	}
}

func TestMCPRequiresBearerWhenAuthEnabled(t *testing.T) {
	cfg := config.Default()
	cfg.BrainDir = t.TempDir()
	cfg.EnableAuth = true

	d, err := db.OpenInMemory(context.Background())
	require.NoError(t, err)
	defer d.Close()

	srv := New(Options{
		Config:    cfg,
		Service:   service.NewWithIndexer(cfg, &scriptedIndexer{}, nil),
		Store:     auth.NewStore(d),
		Publisher: events.NewMemoryPublisher(),
	})
	handler := srv.Handler()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/mcp", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Header().Get("WWW-Authenticate"), "Bearer")

	// The OAuth metadata route is mounted alongside.
	rec = get(t, handler, "/.well-known/oauth-authorization-server")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCORSPreflight(t *testing.T) {
	handler := testServer(t, nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("OPTIONS", "/api/v1/tasks", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), "Authorization")
}
