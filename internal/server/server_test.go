package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/bladekit/internal/config"
	"github.com/conneroisu/bladekit/internal/watcher"
	"github.com/conneroisu/bladekit/pkg/blade"
)

func newTestServer(t *testing.T) (*PreviewServer, afero.Fs) {
	t.Helper()
	fs := afero.NewMemMapFs()
	files := map[string]string{
		"/views/home.blade.html": "<html><body>Hello {{ .name }}</body></html>",
		"/views/app.css":         "body{}",
		"/views/broken.html":     "{{ index .Items 9 }}",
		"/views/users/list.html": "<ul>{{ range .users }}<li>{{ . }}</li>{{ end }}</ul>",
	}
	for path, contents := range files {
		require.NoError(t, afero.WriteFile(fs, path, []byte(contents), 0o644))
	}

	cfg := &config.Config{Server: config.ServerConfig{Host: "localhost", Port: 0}}
	views := blade.New([]string{"/views"}, "/cache", blade.WithFilesystem(fs))
	return New(cfg, views, nil), fs
}

func get(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestHandleView(t *testing.T) {
	s, _ := newTestServer(t)
	h := s.Handler()

	rec := get(t, h, "/view/home?name=Ada")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"))
	body := rec.Body.String()
	assert.True(t, strings.HasPrefix(body, "<html><body>Hello Ada<script>"))
	assert.True(t, strings.HasSuffix(body, "</script></body></html>"))

	rec = get(t, h, "/view/app")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/css; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Equal(t, "body{}", rec.Body.String())

	rec = get(t, h, "/view/missing")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = get(t, h, "/view/broken")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestHandleViewPostData(t *testing.T) {
	s, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/view/users/list", strings.NewReader(`{"users":["a","b"]}`))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "<ul><li>a</li><li>b</li></ul>")

	req = httptest.NewRequest(http.MethodPost, "/view/users/list", strings.NewReader(`{not json`))
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleViews(t *testing.T) {
	s, _ := newTestServer(t)

	rec := get(t, s.Handler(), "/_views")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Views []string `json:"views"`
		Count int      `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, []string{"app", "broken", "home", "users.list"}, resp.Views)
	assert.Equal(t, 4, resp.Count)

	rec = get(t, s.Handler(), "/")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `<a href="/view/users.list">users.list</a>`)
}

func TestHandleHealth(t *testing.T) {
	s, _ := newTestServer(t)

	rec := get(t, s.Handler(), "/health")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp["status"])
	assert.Equal(t, "/cache", resp["cache_dir"])

	services, ok := resp["services"].([]any)
	require.True(t, ok)
	byName := make(map[string]map[string]any)
	for _, service := range services {
		entry := service.(map[string]any)
		byName[entry["name"].(string)] = entry
	}
	require.Contains(t, byName, blade.CompilerService)
	assert.Equal(t, false, byName[blade.CompilerService]["resolved"])
	assert.Equal(t, []any{blade.FilesystemService}, byName[blade.CompilerService]["depends_on"])
	assert.Equal(t, true, byName[blade.FactoryService]["resolved"])
	assert.Equal(t, "*view.Factory", byName[blade.FactoryService]["type"])
}

func TestWebSocketRejectsForeignOrigin(t *testing.T) {
	s, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	req.Header.Set("Origin", "http://evil.example.com")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func readUpdate(t *testing.T, conn *websocket.Conn) UpdateMessage {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, data, err := conn.Read(ctx)
	require.NoError(t, err)

	var msg UpdateMessage
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

func TestLiveReload(t *testing.T) {
	s, fs := newTestServer(t)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", &websocket.DialOptions{
		HTTPHeader: http.Header{"Origin": []string{srv.URL}},
	})
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	require.Eventually(t, func() bool { return s.Hub().Count() == 1 }, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, s.HandleChanges([]watcher.ChangeEvent{
		{Type: watcher.EventTypeModified, Path: "/views/home.blade.html"},
	}))
	msg := readUpdate(t, conn)
	assert.Equal(t, "reload", msg.Type)
	assert.Equal(t, "/views/home.blade.html", msg.Target)

	require.NoError(t, afero.WriteFile(fs, "/views/bad.blade.html", []byte("@if(.X)"), 0o644))
	require.NoError(t, s.HandleChanges([]watcher.ChangeEvent{
		{Type: watcher.EventTypeCreated, Path: "/views/bad.blade.html"},
	}))
	msg = readUpdate(t, conn)
	assert.Equal(t, "error", msg.Type)
	assert.Contains(t, msg.Content, "unclosed @if")
}

func TestHandleChanges_CompilesWholeBatch(t *testing.T) {
	s, fs := newTestServer(t)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", &websocket.DialOptions{
		HTTPHeader: http.Header{"Origin": []string{srv.URL}},
	})
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")
	require.Eventually(t, func() bool { return s.Hub().Count() == 1 }, 5*time.Second, 10*time.Millisecond)

	views := s.views
	require.False(t, views.Exists("fresh"))

	require.NoError(t, afero.WriteFile(fs, "/views/bad.blade.html", []byte("@if(.X)"), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/views/fresh.blade.html", []byte("fresh"), 0o644))
	require.NoError(t, s.HandleChanges([]watcher.ChangeEvent{
		{Type: watcher.EventTypeModified, Path: "/views/bad.blade.html"},
		{Type: watcher.EventTypeCreated, Path: "/views/fresh.blade.html"},
		{Type: watcher.EventTypeModified, Path: "/views/home.blade.html"},
	}))

	msg := readUpdate(t, conn)
	assert.Equal(t, "error", msg.Type)
	assert.Equal(t, "/views/bad.blade.html", msg.Target)

	assert.False(t, views.Compiler().IsExpired("/views/fresh.blade.html"))
	assert.False(t, views.Compiler().IsExpired("/views/home.blade.html"))
	assert.True(t, views.Exists("fresh"))
}

func TestShutdownClosesClients(t *testing.T) {
	s, _ := newTestServer(t)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", &websocket.DialOptions{
		HTTPHeader: http.Header{"Origin": []string{srv.URL}},
	})
	require.NoError(t, err)
	require.Eventually(t, func() bool { return s.Hub().Count() == 1 }, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, s.Shutdown(ctx))
	require.NoError(t, s.Shutdown(ctx))

	_, _, err = conn.Read(ctx)
	require.Error(t, err)
	assert.Equal(t, websocket.StatusGoingAway, websocket.CloseStatus(err))
}
