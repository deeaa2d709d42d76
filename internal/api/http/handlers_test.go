package http

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ThuyDang88/webview/internal/engine/inproc"
	"github.com/ThuyDang88/webview/internal/infrastructure/logging"
	"github.com/ThuyDang88/webview/internal/views"
)

func newAPIStack(t *testing.T, maxViews int64) (*views.Manager, *gin.Engine) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	eng := inproc.New(inproc.Config{
		Transport:    http.DefaultTransport,
		FetchTimeout: 5 * time.Second,
	})
	mgr := views.NewManager(views.Config{
		Engine:   eng,
		MaxViews: maxViews,
		Logger:   logging.Nop(),
	})
	h := NewHandlers(mgr, logging.Nop(), nil, "")

	router := gin.New()
	router.GET("/", h.Root)
	router.GET("/health", h.Health)
	router.GET("/stats", h.Stats)
	router.GET("/logs", h.GetLogs)
	router.POST("/logs", h.StreamLogs)
	router.POST("/views", h.CreateView)
	router.GET("/views", h.ListViews)
	router.GET("/views/:id", h.GetView)
	router.DELETE("/views/:id", h.DeleteView)
	router.POST("/views/:id/navigate", h.Navigate)
	router.POST("/views/:id/back", h.Back)
	router.POST("/views/:id/forward", h.Forward)
	router.POST("/views/:id/reload", h.Reload)
	router.POST("/views/:id/stop", h.Stop)
	router.POST("/views/:id/inject", h.Inject)
	router.POST("/views/:id/post", h.Post)

	t.Cleanup(func() {
		mgr.Stop()
		eng.Close()
	})
	return mgr, router
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), "body: %s", w.Body.String())
	return out
}

func createInlineView(t *testing.T, router *gin.Engine) string {
	t.Helper()
	w := doJSON(t, router, "POST", "/views", map[string]any{
		"name":            "probe",
		"html":            `<html><head><title>Probe</title></head><body></body></html>`,
		"originAllowList": []string{"*"},
	})
	require.Equal(t, http.StatusCreated, w.Code, "body: %s", w.Body.String())
	info := decode(t, w)
	viewID, _ := info["id"].(string)
	require.True(t, strings.HasPrefix(viewID, "view_"), "id: %s", viewID)
	return viewID
}

func TestRootAndHealth(t *testing.T) {
	_, router := newAPIStack(t, 4)

	w := doJSON(t, router, "GET", "/", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "online", body["status"])
	assert.Equal(t, "webviewd", body["service"])

	w = doJSON(t, router, "GET", "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body = decode(t, w)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "inproc", body["engine"])
}

func TestViewLifecycleOverREST(t *testing.T) {
	_, router := newAPIStack(t, 4)

	viewID := createInlineView(t, router)

	w := doJSON(t, router, "GET", "/views", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.EqualValues(t, 1, body["count"])

	w = doJSON(t, router, "GET", "/views/"+viewID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	info := decode(t, w)
	assert.Equal(t, viewID, info["id"])
	assert.Equal(t, "probe", info["name"])
	assert.Equal(t, "inproc", info["engine"])

	w = doJSON(t, router, "DELETE", "/views/"+viewID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decode(t, w)["success"])

	w = doJSON(t, router, "GET", "/views/"+viewID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doJSON(t, router, "DELETE", "/views/"+viewID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCreateViewValidation(t *testing.T) {
	_, router := newAPIStack(t, 4)

	// No source at all.
	w := doJSON(t, router, "POST", "/views", map[string]any{"name": "empty"})
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decode(t, w)["error"], "required")

	// Conflicting sources.
	w = doJSON(t, router, "POST", "/views", map[string]any{
		"url":  "http://example.com/",
		"html": "<p>hi</p>",
	})
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decode(t, w)["error"], "mutually exclusive")

	// Malformed body.
	req := httptest.NewRequest("POST", "/views", strings.NewReader("{not json"))
	req.Header.Set("Content-Type", "application/json")
	w2 := httptest.NewRecorder()
	router.ServeHTTP(w2, req)
	assert.Equal(t, http.StatusBadRequest, w2.Code)

	// Inline markup without the universal origin pattern never comes up.
	w = doJSON(t, router, "POST", "/views", map[string]any{
		"html":            "<p>hi</p>",
		"originAllowList": []string{"https://example.com"},
	})
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decode(t, w)["error"], "inline")
}

func TestCreateViewCapacity(t *testing.T) {
	_, router := newAPIStack(t, 1)

	createInlineView(t, router)

	w := doJSON(t, router, "POST", "/views", map[string]any{
		"html":            "<p>two</p>",
		"originAllowList": []string{"*"},
	})
	require.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, decode(t, w)["error"], "capacity")
}

func TestNavigateIsAsynchronous(t *testing.T) {
	_, router := newAPIStack(t, 4)
	viewID := createInlineView(t, router)

	// Acceptance does not wait for the load outcome: an unreachable
	// target still yields 202, and the failure arrives as an event.
	w := doJSON(t, router, "POST", "/views/"+viewID+"/navigate", map[string]any{
		"url": "http://127.0.0.1:1/unreachable",
	})
	require.Equal(t, http.StatusAccepted, w.Code)
	body := decode(t, w)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, viewID, body["viewId"])

	w = doJSON(t, router, "POST", "/views/"+viewID+"/navigate", map[string]any{})
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decode(t, w)["error"], "url is required")
}

func TestViewOpsAccepted(t *testing.T) {
	_, router := newAPIStack(t, 4)
	viewID := createInlineView(t, router)

	for _, op := range []string{"back", "forward", "reload", "stop"} {
		w := doJSON(t, router, "POST", "/views/"+viewID+"/"+op, nil)
		assert.Equal(t, http.StatusAccepted, w.Code, "op %s: %s", op, w.Body.String())
	}
}

func TestOpsOnMissingView(t *testing.T) {
	_, router := newAPIStack(t, 4)

	paths := []string{
		"/views/view_missing/navigate",
		"/views/view_missing/back",
		"/views/view_missing/inject",
		"/views/view_missing/post",
	}
	for _, p := range paths {
		w := doJSON(t, router, "POST", p, map[string]any{"url": "http://x/", "script": "1", "data": "d"})
		assert.Equal(t, http.StatusNotFound, w.Code, "path %s", p)
	}
}

func TestInjectAndPostValidation(t *testing.T) {
	_, router := newAPIStack(t, 4)
	viewID := createInlineView(t, router)

	w := doJSON(t, router, "POST", "/views/"+viewID+"/inject", map[string]any{})
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decode(t, w)["error"], "script is required")

	w = doJSON(t, router, "POST", "/views/"+viewID+"/inject", map[string]any{"script": "void 0;"})
	assert.Equal(t, http.StatusAccepted, w.Code)

	w = doJSON(t, router, "POST", "/views/"+viewID+"/post", map[string]any{})
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decode(t, w)["error"], "data is required")

	// An explicit empty string is a legal bridge payload.
	w = doJSON(t, router, "POST", "/views/"+viewID+"/post", map[string]any{"data": ""})
	assert.Equal(t, http.StatusAccepted, w.Code)
}

func TestStreamLogsIngestion(t *testing.T) {
	_, router := newAPIStack(t, 4)

	w := doJSON(t, router, "POST", "/logs", map[string]any{
		"source": "panel",
		"entries": []map[string]any{
			{"id": "1", "level": "info", "message": "panel started"},
			{"id": "2", "level": "error", "message": "render failed", "context": map[string]any{"retries": 3}},
		},
	})
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, true, body["success"])
	assert.EqualValues(t, 2, body["entries_received"])

	w = doJSON(t, router, "POST", "/logs", map[string]any{"entries": []map[string]any{}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetLogsUnconfigured(t *testing.T) {
	_, router := newAPIStack(t, 4)

	w := doJSON(t, router, "GET", "/logs", nil)
	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, decode(t, w)["error"], "not configured")
}

func TestGetLogsTailsFile(t *testing.T) {
	gin.SetMode(gin.TestMode)

	path := filepath.Join(t.TempDir(), "webviewd.log")
	content := strings.Join([]string{
		`{"level":"info","msg":"one"}`,
		`{"level":"info","msg":"two"}`,
		`plain text line`,
		`{"level":"warn","msg":"three"}`,
	}, "\n") + "\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	h := NewHandlers(nil, logging.Nop(), nil, path)
	router := gin.New()
	router.GET("/logs", h.GetLogs)

	w := doJSON(t, router, "GET", "/logs?limit=2", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Entries []json.RawMessage `json:"entries"`
		Count   int               `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Equal(t, 2, body.Count)
	assert.JSONEq(t, `"plain text line"`, string(body.Entries[0]))
	assert.JSONEq(t, `{"level":"warn","msg":"three"}`, string(body.Entries[1]))

	w = doJSON(t, router, "GET", "/logs?limit=0", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
