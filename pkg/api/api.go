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

// Package api is the control-plane HTTP surface: project configuration,
// dataset management, and RAG query/preview, namespaced by
// /v1/projects/{namespace}/{project}/... . It owns no inference or
// retrieval logic itself — chat/embeddings/models live on pkg/runtime's
// single-project server; this package is the multi-project surface a
// caller (a web UI, an LLM-driven config assistant) talks to before
// handing a resolved project to a runtime instance. Grounded on
// original_source/server/api/routers/{datasets,rag}/*.py's route layout
// and pkg/server/http.go's functional-options server shape.
package api

import (
	"fmt"
	"path/filepath"

	"github.com/go-chi/chi/v5"

	"github.com/llamafarm/llamafarm-core/pkg/orchestrator"
	"github.com/llamafarm/llamafarm-core/pkg/utils"
)

// Server is the control-plane HTTP front door: one chi.Router built once at
// construction time. Callers mount it directly or wrap it with their own
// *http.Server (see cmd/llamafarmd).
type Server struct {
	projectsRoot string
	rag          orchestrator.RAGSearcher
	preview      PreviewService

	router chi.Router
}

// Option configures a Server.
type Option func(*Server)

// WithProjectsRoot sets the directory under which every project lives at
// {root}/{namespace}/{project}. Required; New panics without it since every
// handler needs a root to resolve paths safely against.
func WithProjectsRoot(dir string) Option {
	return func(s *Server) { s.projectsRoot = dir }
}

// WithRAG wires the retrieval collaborator used by the RAG query endpoint.
func WithRAG(rag orchestrator.RAGSearcher) Option {
	return func(s *Server) { s.rag = rag }
}

// WithPreviewService wires the document-preview collaborator used by the
// RAG preview endpoint. Left nil, preview requests fail with 501.
func WithPreviewService(p PreviewService) Option {
	return func(s *Server) { s.preview = p }
}

// New builds a Server and its route tree.
func New(opts ...Option) *Server {
	s := &Server{}
	for _, opt := range opts {
		opt(s)
	}
	if s.projectsRoot == "" {
		panic("api: WithProjectsRoot is required")
	}
	s.router = s.routes()
	return s
}

// Router returns the built chi.Router for mounting into a parent handler.
func (s *Server) Router() chi.Router { return s.router }

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()

	r.Route("/v1/projects/{namespace}/{project}", func(r chi.Router) {
		r.Get("/config", s.handleGetConfig)
		r.Put("/config", s.handlePutConfig)
		r.Get("/schema", s.handleGetSchema)
		r.Post("/config/changes", s.handleApplyChangeset)

		r.Get("/datasets", s.handleListDatasets)
		r.Post("/datasets", s.handleCreateDataset)
		r.Get("/datasets/strategies", s.handleDatasetStrategies)
		r.Delete("/datasets/{dataset}", s.handleDeleteDataset)
		r.Get("/datasets/{dataset}/data", s.handleListDatasetFiles)
		r.Post("/datasets/{dataset}/data", s.handleUploadDatasetFile)
		r.Delete("/datasets/{dataset}/data/{hash}", s.handleDeleteDatasetFile)

		r.Route("/rag/databases/{database}", func(r chi.Router) {
			r.Post("/query", s.handleRAGQuery)
			r.Post("/preview", s.handleRAGPreview)
		})
	})

	return r
}

// projectDir resolves namespace/project to an on-disk directory, rejecting
// any identifier that isn't a safe single path component and any result
// that would escape projectsRoot.
func (s *Server) projectDir(namespace, project string) (string, error) {
	if !utils.ValidIdentifier(namespace) {
		return "", fmt.Errorf("api: invalid namespace %q", namespace)
	}
	if !utils.ValidIdentifier(project) {
		return "", fmt.Errorf("api: invalid project %q", project)
	}
	return utils.ResolveSafePath(s.projectsRoot, filepath.Join(namespace, project))
}

func (s *Server) configPath(namespace, project string) (string, error) {
	dir, err := s.projectDir(namespace, project)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}
