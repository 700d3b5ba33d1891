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

package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/llamafarm/llamafarm-core/pkg/config"
	"github.com/llamafarm/llamafarm-core/pkg/devicecache"
	"github.com/llamafarm/llamafarm-core/pkg/modelcache"
)

// providersSupportingDeletion are providers whose models live on disk under
// this runtime's control. Hosted API providers have nothing local to delete.
var providersSupportingDeletion = map[string]bool{
	config.ProviderOllama:    true,
	config.ProviderUniversal: true,
}

// modelEntry is GET /v1/models' per-entry shape: `{id, name, size, path}`.
// No on-disk artifact is inspected: size is always 0 and path carries the
// model's configured base_url.
type modelEntry struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Size int64  `json:"size"`
	Path string `json:"path"`
}

func (s *Server) handleListModels(w http.ResponseWriter, r *http.Request) {
	project := s.Project()
	if project == nil {
		writeJSON(w, http.StatusOK, []modelEntry{})
		return
	}
	entries := make([]modelEntry, 0, len(project.Runtime.Models))
	for _, m := range project.Runtime.Models {
		entries = append(entries, modelEntry{ID: m.Name, Name: m.Model, Path: m.BaseURL})
	}
	writeJSON(w, http.StatusOK, entries)
}

// downloadRequest names the model to make resident and, optionally, the
// size of the artifact to be fetched so the disk-space preflight has
// something to gate on. SizeBytes is caller-supplied because no
// weights-fetching client in this module can resolve it on its own.
type downloadRequest struct {
	Name      string `json:"name"`
	SizeBytes int64  `json:"size_bytes,omitempty"`
}

// handleDownloadModel streams preflight/progress events for a model
// download. No weights-fetching client (Hugging Face Hub, ollama pull,
// etc.) is wired into this module, so a configured model that passes the
// disk-space preflight is reported ready immediately; an unconfigured one
// is a 400, matching the documented preflight-failure status without
// fabricating a progress bar for a transfer that never happens.
func (s *Server) handleDownloadModel(w http.ResponseWriter, r *http.Request) {
	var req downloadRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("runtime: malformed request body: %w", err))
		return
	}
	project := s.Project()
	if project == nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("runtime: no project loaded"))
		return
	}
	if _, ok := project.FindModel(req.Name); !ok {
		writeError(w, http.StatusBadRequest, fmt.Errorf("runtime: model %q is not configured in this project", req.Name))
		return
	}

	destDir := s.projectDir
	if destDir == "" {
		destDir = "."
	}
	result := devicecache.ValidateSpaceForDownload(req.SizeBytes, destDir)
	if !result.CanDownload {
		writeError(w, http.StatusBadRequest, fmt.Errorf("runtime: %s", result.Message))
		return
	}

	sseHeaders(w)
	sse, err := newSSEWriter(w)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if result.Warning {
		_ = sse.sendJSON(map[string]string{"event": "warning", "name": req.Name, "message": result.Message})
	}
	_ = sse.sendJSON(map[string]string{"event": "already_available", "name": req.Name})
	sse.done()
}

func (s *Server) handleDeleteModel(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	project := s.Project()
	if project == nil {
		writeError(w, http.StatusNotFound, fmt.Errorf("runtime: model %q not found", name))
		return
	}
	model, ok := project.FindModel(name)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Errorf("runtime: model %q not found", name))
		return
	}
	if !providersSupportingDeletion[model.Provider] {
		writeError(w, http.StatusBadRequest, fmt.Errorf("runtime: provider %q does not support model deletion", model.Provider))
		return
	}
	for _, kind := range []string{"language", "gguf", "encoder"} {
		key := modelcache.Key(kind, model.Name)
		if w, ok := s.cache.Get(key); ok {
			if err := w.Unload(context.Background()); err != nil {
				slog.Warn("runtime: unload on delete failed", "key", key, "error", err)
			}
			s.cache.Delete(key)
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted", "name": name})
}
