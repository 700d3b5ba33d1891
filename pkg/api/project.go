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

package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/invopop/jsonschema"

	"github.com/llamafarm/llamafarm-core/pkg/config"
)

func (s *Server) openStore(r *http.Request) (*config.ProjectStore, error) {
	namespace := chi.URLParam(r, "namespace")
	project := chi.URLParam(r, "project")
	path, err := s.configPath(namespace, project)
	if err != nil {
		return nil, err
	}
	return config.NewProjectStore(path)
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	store, err := s.openStore(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	defer store.Close()

	cfg, err := store.Load(r.Context())
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

func (s *Server) handlePutConfig(w http.ResponseWriter, r *http.Request) {
	store, err := s.openStore(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	defer store.Close()

	var cfg config.ProjectConfig
	if err := decodeJSON(r, &cfg); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("api: malformed request body: %w", err))
		return
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := store.Save(&cfg); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, &cfg)
}

// schemaResponse combines the hand-written LLM-guidance field descriptions
// with a generated JSON Schema document, so a config-builder UI can render
// a form from the latter while an LLM editing assistant reads the former's
// guidance/enum/constraint text.
type schemaResponse struct {
	Fields     []config.ConfigFieldInfo `json:"fields"`
	JSONSchema *jsonschema.Schema       `json:"json_schema"`
}

var schemaReflector = &jsonschema.Reflector{
	AllowAdditionalProperties: false,
	DoNotReference:            true,
}

func (s *Server) handleGetSchema(w http.ResponseWriter, r *http.Request) {
	introspector := config.NewSchemaIntrospector()
	schema := schemaReflector.Reflect(&config.ProjectConfig{})
	schema.Title = "LlamaFarm Project Configuration"
	schema.Version = "http://json-schema.org/draft-07/schema#"

	writeJSON(w, http.StatusOK, schemaResponse{
		Fields:     introspector.GetAllFields(),
		JSONSchema: schema,
	})
}

func (s *Server) handleApplyChangeset(w http.ResponseWriter, r *http.Request) {
	store, err := s.openStore(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	defer store.Close()

	cfg, err := store.Load(r.Context())
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}

	var cs config.ConfigChangeSet
	if err := decodeJSON(r, &cs); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("api: malformed request body: %w", err))
		return
	}

	manipulator, err := config.NewManipulator(cfg, func() string { return time.Now().UTC().Format(time.RFC3339) })
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if err := manipulator.ApplyChangeset(cs); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	newCfg, err := manipulator.CurrentConfig()
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := store.Save(newCfg); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, newCfg)
}
