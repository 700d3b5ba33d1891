// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package runtime exposes the universal runtime's HTTP surface: chat
// completions, embeddings, model introspection, OCR, the streaming anomaly
// detector, the polars sliding buffer, and TTL-cached file uploads. It owns
// no inference logic itself — every request is served by wiring an HTTP
// verb+path onto the already-built pkg/orchestrator, pkg/modelcache,
// pkg/anomaly, and pkg/polarsbuffer components. Grounded on
// pkg/server/http.go's functional-options server shape and
// original_source/runtimes/universal/server.py's route layout.
package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/llamafarm/llamafarm-core/pkg/anomaly"
	"github.com/llamafarm/llamafarm-core/pkg/config"
	"github.com/llamafarm/llamafarm-core/pkg/mcp"
	"github.com/llamafarm/llamafarm-core/pkg/modelcache"
	"github.com/llamafarm/llamafarm-core/pkg/models"
	"github.com/llamafarm/llamafarm-core/pkg/observability"
	"github.com/llamafarm/llamafarm-core/pkg/orchestrator"
	"github.com/llamafarm/llamafarm-core/pkg/polarsbuffer"
)

// WrapperLoader builds a fresh models.Wrapper for modelID on a cache miss.
// The server wires one per injectable model kind (language, encoder, ocr);
// a kind the caller never configures a loader for responds 500.
type WrapperLoader func(ctx context.Context, modelID string) (models.Wrapper, error)

// Server is the runtime's HTTP front door: one chi.Router built once at
// construction time, served over a *http.Server with a graceful shutdown.
type Server struct {
	addr       string
	project    atomic.Pointer[config.ProjectConfig]
	projectDir string
	obs        *observability.Manager

	cache   *modelcache.Cache
	loaders map[string]WrapperLoader

	anomalyMgr *anomaly.Manager
	polarsMgr  *polarsbuffer.Manager
	files      *fileCache

	tools []mcp.BoundTool
	rag   orchestrator.RAGSearcher

	router chi.Router
	server *http.Server
}

// Option configures a Server.
type Option func(*Server)

// WithAddr sets the listen address (default ":8080").
func WithAddr(addr string) Option {
	return func(s *Server) { s.addr = addr }
}

// WithProject supplies the resolved project config and its on-disk
// directory (for session history and RAG lookups).
func WithProject(project *config.ProjectConfig, projectDir string) Option {
	return func(s *Server) {
		s.project.Store(project)
		s.projectDir = projectDir
	}
}

// WithObservability wires tracing/metrics middleware and the /metrics route.
func WithObservability(obs *observability.Manager) Option {
	return func(s *Server) { s.obs = obs }
}

// WithModelCache overrides the default modelcache.Cache (mainly for tests).
func WithModelCache(c *modelcache.Cache) Option {
	return func(s *Server) { s.cache = c }
}

// WithWrapperLoader registers the loader used on a cache miss for kind
// (one of models.KindLanguage, KindEncoder, KindOCR).
func WithWrapperLoader(kind string, loader WrapperLoader) Option {
	return func(s *Server) { s.loaders[kind] = loader }
}

// WithAnomalyManager overrides the default anomaly.Manager.
func WithAnomalyManager(m *anomaly.Manager) Option {
	return func(s *Server) { s.anomalyMgr = m }
}

// WithPolarsManager overrides the default polarsbuffer.Manager.
func WithPolarsManager(m *polarsbuffer.Manager) Option {
	return func(s *Server) { s.polarsMgr = m }
}

// WithTools sets the MCP-backed tools offered to the orchestrator for every
// chat turn.
func WithTools(tools []mcp.BoundTool) Option {
	return func(s *Server) { s.tools = tools }
}

// WithRAG wires a retrieval collaborator into chat completions.
func WithRAG(rag orchestrator.RAGSearcher) Option {
	return func(s *Server) { s.rag = rag }
}

// WithFileTTL overrides the upload cache's default eviction TTL.
func WithFileTTL(ttl time.Duration) Option {
	return func(s *Server) { s.files.ttl = ttl }
}

// New builds a Server and its route tree. Call Start to serve.
func New(opts ...Option) *Server {
	s := &Server{
		addr:       ":8080",
		cache:      modelcache.New(),
		loaders:    make(map[string]WrapperLoader),
		anomalyMgr: anomaly.NewManager(unconfiguredAnomalyBackend),
		polarsMgr:  polarsbuffer.NewManager(),
		files:      newFileCache(24 * time.Hour),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.router = s.routes()
	return s
}

// unconfiguredAnomalyBackend is the anomaly.Manager default factory until a
// caller wires a real one — every PyOD-style backend algorithm is an
// external collaborator (no statistics/ML library ships in the example
// corpus this module was built from), so a detector created without one
// fails clearly instead of silently never training.
func unconfiguredAnomalyBackend(backend string, contamination float64) (models.AnomalyBackend, error) {
	return nil, fmt.Errorf("runtime: no anomaly backend factory configured (requested %q)", backend)
}

// routes builds the full route tree. Grounded on
// original_source/runtimes/universal/routers/polars/router.py for the
// polars path shapes and server.py's router includes for the rest.
func (s *Server) routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/health", s.handleHealth)
	if s.obs != nil && s.obs.MetricsEnabled() {
		r.Handle(s.obs.MetricsEndpoint(), s.obs.MetricsHandler())
	}

	r.Post("/v1/chat/completions", s.handleChatCompletions)
	r.Post("/v1/embeddings", s.handleEmbeddings)
	r.Get("/v1/models", s.handleListModels)
	r.Post("/v1/models/download", s.handleDownloadModel)
	r.Delete("/v1/models/{name}", s.handleDeleteModel)

	r.Post("/v1/ocr", s.handleOCR)
	r.Post("/v1/files", s.handleUploadFile)

	r.Route("/v1/anomaly", func(r chi.Router) {
		r.Get("/backends", s.handleAnomalyBackends)
		r.Get("/streaming", s.handleListDetectors)
		r.Post("/streaming/{model_id}/process", s.handleAnomalyProcess)
		r.Post("/streaming/{model_id}/process_batch", s.handleAnomalyProcessBatch)
		r.Post("/streaming/{model_id}/reset", s.handleAnomalyReset)
		r.Get("/streaming/{model_id}/stats", s.handleAnomalyStats)
		r.Delete("/streaming/{model_id}", s.handleAnomalyDelete)
	})

	r.Route("/v1/polars", func(r chi.Router) {
		r.Post("/buffers", s.handleCreateBuffer)
		r.Get("/buffers", s.handleListBuffers)
		r.Get("/buffers/{id}", s.handleBufferStats)
		r.Delete("/buffers/{id}", s.handleDeleteBuffer)
		r.Post("/buffers/{id}/clear", s.handleClearBuffer)
		r.Post("/buffers/{id}/append", s.handleAppendBuffer)
		r.Post("/buffers/{id}/features", s.handleBufferFeatures)
		r.Get("/buffers/{id}/data", s.handleBufferData)
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Start builds the middleware chain (cors -> logging -> observability,
// outermost last) and serves until ctx is cancelled, at which point it
// shuts down gracefully. Grounded on pkg/server/http.go's Start/Shutdown
// goroutine+errCh+select lifecycle.
func (s *Server) Start(ctx context.Context) error {
	var handler http.Handler = s.router
	handler = corsMiddleware(handler)
	handler = loggingMiddleware(handler)
	if s.obs != nil {
		handler = observability.HTTPMiddleware(s.obs.Tracer(), s.obs.Metrics())(handler)
	}

	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // streaming chat/SSE responses must not be cut off
		IdleTimeout:  120 * time.Second,
	}

	s.cache.StartJanitor(ctx)
	slog.Info("runtime: HTTP server starting", "address", s.addr)

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return s.Shutdown(context.Background())
	}
}

// Shutdown gracefully stops the HTTP server and the model cache's janitor.
func (s *Server) Shutdown(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var err error
	if s.server != nil {
		slog.Info("runtime: HTTP server shutting down")
		err = s.server.Shutdown(shutdownCtx)
	}
	s.cache.Shutdown()
	return err
}

// Address returns the server's configured listen address.
func (s *Server) Address() string { return s.addr }

// Project returns the currently active project config. Safe to call
// concurrently with UpdateProject.
func (s *Server) Project() *config.ProjectConfig { return s.project.Load() }

// UpdateProject swaps in a freshly reloaded project config. In-flight
// requests keep the config snapshot they already read; new requests see
// the update immediately. Grounded on the config.Loader's WithOnChange
// hot-reload hook driven by provider.FileProvider's fsnotify watch.
func (s *Server) UpdateProject(project *config.ProjectConfig) {
	s.project.Store(project)
	slog.Info("runtime: project config reloaded", "name", project.Name, "namespace", project.Namespace, "models", len(project.Runtime.Models))
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware logs requests without wrapping the ResponseWriter, so
// SSE handlers downstream can still type-assert it to http.Flusher.
func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		slog.Debug("runtime: HTTP request", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
	})
}
