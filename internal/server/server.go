// Package server serves rendered views over HTTP with live reload.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"mime"
	"net/http"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/html"

	"github.com/conneroisu/bladekit/internal/config"
	"github.com/conneroisu/bladekit/internal/logging"
	"github.com/conneroisu/bladekit/internal/version"
	"github.com/conneroisu/bladekit/internal/watcher"
	"github.com/conneroisu/bladekit/pkg/blade"
	viewerrors "github.com/conneroisu/bladekit/pkg/errors"
	"github.com/conneroisu/bladekit/pkg/view"
)

// maxBodySize bounds the JSON data accepted by POST /view/{name}.
const maxBodySize = 1 << 20

// PreviewServer renders views on request and tells connected browsers to
// reload when view files change.
type PreviewServer struct {
	config *config.Config
	views  *blade.View
	logger logging.Logger
	hub    *Hub

	serverMutex  sync.RWMutex
	httpServer   *http.Server
	watcher      *watcher.FileWatcher
	shutdownOnce sync.Once
}

// New creates a preview server for views.
func New(cfg *config.Config, views *blade.View, logger logging.Logger) *PreviewServer {
	if logger == nil {
		logger = logging.Nop()
	}
	return &PreviewServer{
		config: cfg,
		views:  views,
		logger: logger.WithComponent("server"),
		hub:    NewHub(),
	}
}

// Hub returns the live-reload hub.
func (s *PreviewServer) Hub() *Hub {
	return s.hub
}

// Handler returns the server's routes.
func (s *PreviewServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /view/{name...}", s.handleView)
	mux.HandleFunc("POST /view/{name...}", s.handleView)
	mux.HandleFunc("GET /_views", s.handleViews)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("GET /{$}", s.handleIndex)
	return s.logRequests(mux)
}

// Start watches the view directories and serves until ctx is cancelled or
// the server fails.
func (s *PreviewServer) Start(ctx context.Context) error {
	if err := s.startWatcher(ctx); err != nil {
		s.logger.Warn(ctx, err, "Live reload disabled")
	}

	s.serverMutex.Lock()
	s.httpServer = &http.Server{
		Addr:              s.config.Address(),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	server := s.httpServer
	s.serverMutex.Unlock()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.Shutdown(shutdownCtx); err != nil {
			s.logger.Error(shutdownCtx, err, "Shutdown failed")
		}
	}()

	s.logger.Info(ctx, "Preview server listening", "address", "http://"+server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

func (s *PreviewServer) startWatcher(ctx context.Context) error {
	fw, err := watcher.NewFileWatcher(s.config.Watch.Debounce, s.logger)
	if err != nil {
		return err
	}

	fw.AddFilter(watcher.ExtensionFilter(s.views.Finder().Extensions()...))
	fw.AddFilter(watcher.ExcludeDirFilter(s.views.CachePath()))
	fw.AddFilter(watcher.NoHiddenFilter)
	fw.AddHandler(s.HandleChanges)

	for _, path := range s.views.Paths() {
		if err := fw.AddRecursive(path); err != nil {
			s.logger.Warn(ctx, err, "Failed to watch path", "path", path)
		}
	}
	fw.Start(ctx)

	s.serverMutex.Lock()
	s.watcher = fw
	s.serverMutex.Unlock()
	return nil
}

// HandleChanges recompiles changed directive templates and asks browsers to
// reload. Every file in the batch is compiled; if any fails, the first
// failure is sent to browsers instead of a reload.
func (s *PreviewServer) HandleChanges(events []watcher.ChangeEvent) error {
	ctx := context.Background()
	c := s.views.Compiler()

	structural := false
	var (
		firstErr  error
		errTarget string
	)
	for _, event := range events {
		s.logger.Info(ctx, "View changed", "path", event.Path, "type", event.Type.String())

		switch event.Type {
		case watcher.EventTypeCreated, watcher.EventTypeDeleted, watcher.EventTypeRenamed:
			structural = true
		}
		if event.Type == watcher.EventTypeDeleted || !strings.HasSuffix(event.Path, "."+view.BladeExtension) {
			continue
		}

		if err := c.Compile(event.Path); err != nil {
			s.logger.Error(ctx, err, "Compile failed", "path", event.Path)
			if firstErr == nil {
				firstErr, errTarget = err, event.Path
			}
		}
	}

	if structural {
		s.views.FlushFinderCache()
	}

	if firstErr != nil {
		return s.hub.Broadcast(UpdateMessage{Type: "error", Target: errTarget, Content: firstErr.Error()})
	}

	target := ""
	if len(events) == 1 {
		target = events[0].Path
	}
	return s.hub.Broadcast(UpdateMessage{Type: "reload", Target: target})
}

// Shutdown stops the watcher, disconnects clients and stops the HTTP server.
func (s *PreviewServer) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		s.serverMutex.RLock()
		fw := s.watcher
		server := s.httpServer
		s.serverMutex.RUnlock()

		if fw != nil {
			if err := fw.Stop(); err != nil {
				s.logger.Warn(ctx, err, "Failed to stop watcher")
			}
		}

		s.hub.CloseAll()

		if server != nil {
			shutdownErr = server.Shutdown(ctx)
		}
	})

	return shutdownErr
}

func (s *PreviewServer) handleView(w http.ResponseWriter, r *http.Request) {
	name := strings.Trim(r.PathValue("name"), "/")

	data, err := requestData(w, r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	v, err := s.views.Make(name, data)
	if err != nil {
		s.writeViewError(w, r, name, err)
		return
	}

	out, err := v.Render()
	if err != nil {
		s.writeViewError(w, r, name, err)
		return
	}

	contentType := mime.TypeByExtension(filepath.Ext(v.Path()))
	if contentType == "" {
		contentType = "text/html; charset=utf-8"
	}
	body := []byte(out)
	if strings.HasPrefix(contentType, "text/html") {
		if injected, err := InjectReloadScript(body, reloadScript); err == nil {
			body = injected
		} else {
			s.logger.Warn(r.Context(), err, "Cannot inject reload script", "view", name)
		}
	}

	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}

// requestData merges query parameters with a JSON object body.
func requestData(w http.ResponseWriter, r *http.Request) (map[string]any, error) {
	data := make(map[string]any)
	for key, values := range r.URL.Query() {
		if len(values) == 1 {
			data[key] = values[0]
		} else {
			data[key] = values
		}
	}

	if r.Method == http.MethodPost && r.ContentLength != 0 {
		var body map[string]any
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize)).Decode(&body); err != nil {
			return nil, fmt.Errorf("invalid JSON body: %w", err)
		}
		for key, value := range body {
			data[key] = value
		}
	}
	return data, nil
}

func (s *PreviewServer) writeViewError(w http.ResponseWriter, r *http.Request, name string, err error) {
	status := http.StatusInternalServerError
	if viewerrors.IsNotFound(err) {
		status = http.StatusNotFound
	} else {
		s.logger.Error(r.Context(), err, "Render failed", "view", name)
	}
	http.Error(w, err.Error(), status)
}

func (s *PreviewServer) handleViews(w http.ResponseWriter, r *http.Request) {
	names, err := s.views.Finder().Views()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]any{"views": names, "count": len(names)})
}

func (s *PreviewServer) handleIndex(w http.ResponseWriter, r *http.Request) {
	names, err := s.views.Finder().Views()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	var b strings.Builder
	b.WriteString("<!doctype html><html><head><title>bladekit</title></head><body><h1>Views</h1><ul>")
	for _, name := range names {
		escaped := html.EscapeString(name)
		fmt.Fprintf(&b, `<li><a href="/view/%s">%s</a></li>`, escaped, escaped)
	}
	b.WriteString("</ul></body></html>")

	page, err := InjectReloadScript([]byte(b.String()), reloadScript)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(page)
}

func (s *PreviewServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"version":   version.GetShortVersion(),
		"clients":   s.hub.Count(),
		"cache_dir": s.views.CachePath(),
		"services":  s.services(),
	})
}

// serviceStatus describes one service published by the view bootstrap.
type serviceStatus struct {
	Name      string   `json:"name"`
	Type      string   `json:"type,omitempty"`
	Resolved  bool     `json:"resolved"`
	DependsOn []string `json:"depends_on,omitempty"`
}

func (s *PreviewServer) services() []serviceStatus {
	container := s.views.Container()
	names := container.ListServices()

	statuses := make([]serviceStatus, 0, len(names))
	for _, name := range names {
		status := serviceStatus{Name: name, Resolved: container.Resolved(name)}
		if def, ok := container.GetServiceDefinition(name); ok {
			status.DependsOn = def.Dependencies
			if def.Type != nil {
				status.Type = def.Type.String()
			}
		}
		statuses = append(statuses, status)
	}
	return statuses
}

func (s *PreviewServer) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug(r.Context(), "Request", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
