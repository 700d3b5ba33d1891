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
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"

	"github.com/go-chi/chi/v5"

	"github.com/llamafarm/llamafarm-core/pkg/config"
	"github.com/llamafarm/llamafarm-core/pkg/utils"
)

// Dataset raw files live under {project_dir}/lf_data/datasets/{name}/raw/,
// content-addressed by the sha256 of their bytes. Grounded on
// original_source/server/api/routers/datasets/datasets.py and
// rag/preview.py's identical "lf_data/datasets/{id}/raw/{hash}" layout.
// Ingestion (chunking a stored file into a vector store) is the RAG
// subsystem's job, reached through the Search/Preview collaborators, not
// reimplemented here: this file only manages the raw bytes those
// collaborators later read.
const datasetsSubdir = "lf_data/datasets"

func (s *Server) datasetRawDir(projectDir, dataset string) (string, error) {
	if !utils.ValidIdentifier(dataset) {
		return "", fmt.Errorf("api: invalid dataset name %q", dataset)
	}
	return utils.ResolveSafePath(projectDir, filepath.Join(datasetsSubdir, dataset, "raw"))
}

func (s *Server) loadProjectConfig(r *http.Request) (*config.ProjectStore, *config.ProjectConfig, string, error) {
	namespace := chi.URLParam(r, "namespace")
	project := chi.URLParam(r, "project")
	dir, err := s.projectDir(namespace, project)
	if err != nil {
		return nil, nil, "", err
	}
	store, err := config.NewProjectStore(filepath.Join(dir, "config.yaml"))
	if err != nil {
		return nil, nil, "", err
	}
	cfg, err := store.Load(r.Context())
	if err != nil {
		store.Close()
		return nil, nil, "", err
	}
	return store, cfg, dir, nil
}

func (s *Server) handleListDatasets(w http.ResponseWriter, r *http.Request) {
	store, cfg, _, err := s.loadProjectConfig(r)
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	defer store.Close()
	writeJSON(w, http.StatusOK, cfg.Datasets)
}

func (s *Server) handleCreateDataset(w http.ResponseWriter, r *http.Request) {
	store, cfg, _, err := s.loadProjectConfig(r)
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	defer store.Close()

	var ds config.DatasetConfig
	if err := decodeJSON(r, &ds); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("api: malformed request body: %w", err))
		return
	}
	if _, ok := findDataset(cfg.Datasets, ds.Name); ok {
		writeError(w, http.StatusBadRequest, fmt.Errorf("api: dataset %q already exists", ds.Name))
		return
	}

	cfg.Datasets = append(cfg.Datasets, ds)
	if err := cfg.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := store.Save(cfg); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusCreated, ds)
}

func (s *Server) handleDeleteDataset(w http.ResponseWriter, r *http.Request) {
	store, cfg, _, err := s.loadProjectConfig(r)
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	defer store.Close()

	name := chi.URLParam(r, "dataset")
	idx, ok := findDataset(cfg.Datasets, name)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Errorf("api: dataset %q not found", name))
		return
	}
	cfg.Datasets = append(cfg.Datasets[:idx], cfg.Datasets[idx+1:]...)
	if err := store.Save(cfg); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted", "name": name})
}

func findDataset(datasets []config.DatasetConfig, name string) (int, bool) {
	for i, d := range datasets {
		if d.Name == name {
			return i, true
		}
	}
	return 0, false
}

type strategiesResponse struct {
	DataProcessingStrategies []config.RAGStrategyConfig `json:"data_processing_strategies"`
	Databases                []config.RAGDatabaseConfig `json:"databases"`
}

func (s *Server) handleDatasetStrategies(w http.ResponseWriter, r *http.Request) {
	store, cfg, _, err := s.loadProjectConfig(r)
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	defer store.Close()

	resp := strategiesResponse{}
	if cfg.RAG != nil {
		resp.DataProcessingStrategies = cfg.RAG.DataProcessingStrategies
		resp.Databases = cfg.RAG.Databases
	}
	writeJSON(w, http.StatusOK, resp)
}

type datasetFileEntry struct {
	Hash string `json:"hash"`
	Size int64  `json:"size"`
}

func (s *Server) handleListDatasetFiles(w http.ResponseWriter, r *http.Request) {
	store, _, projectDir, err := s.loadProjectConfig(r)
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	defer store.Close()

	rawDir, err := s.datasetRawDir(projectDir, chi.URLParam(r, "dataset"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	entries, err := os.ReadDir(rawDir)
	if os.IsNotExist(err) {
		writeJSON(w, http.StatusOK, []datasetFileEntry{})
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	files := make([]datasetFileEntry, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		files = append(files, datasetFileEntry{Hash: e.Name(), Size: info.Size()})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Hash < files[j].Hash })
	writeJSON(w, http.StatusOK, files)
}

const maxDatasetUploadBytes = 64 << 20 // 64MiB

type uploadDatasetFileResponse struct {
	FileHash         string `json:"file_hash"`
	OriginalFilename string `json:"original_filename"`
	Size             int    `json:"size"`
}

func (s *Server) handleUploadDatasetFile(w http.ResponseWriter, r *http.Request) {
	store, _, projectDir, err := s.loadProjectConfig(r)
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	defer store.Close()

	rawDir, err := s.datasetRawDir(projectDir, chi.URLParam(r, "dataset"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	if err := r.ParseMultipartForm(maxDatasetUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("api: malformed multipart upload: %w", err))
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("api: missing \"file\" form field: %w", err))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxDatasetUploadBytes+1))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if len(data) > maxDatasetUploadBytes {
		writeError(w, http.StatusBadRequest, fmt.Errorf("api: upload exceeds %d byte limit", maxDatasetUploadBytes))
		return
	}

	sum := sha256.Sum256(data)
	hash := hex.EncodeToString(sum[:])

	if err := os.MkdirAll(rawDir, 0o755); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if err := os.WriteFile(filepath.Join(rawDir, hash), data, 0o644); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	writeJSON(w, http.StatusCreated, uploadDatasetFileResponse{
		FileHash:         hash,
		OriginalFilename: header.Filename,
		Size:             len(data),
	})
}

func (s *Server) handleDeleteDatasetFile(w http.ResponseWriter, r *http.Request) {
	store, _, projectDir, err := s.loadProjectConfig(r)
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	defer store.Close()

	rawDir, err := s.datasetRawDir(projectDir, chi.URLParam(r, "dataset"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	hash := chi.URLParam(r, "hash")
	path, err := utils.ResolveSafePath(rawDir, hash)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			writeError(w, http.StatusNotFound, fmt.Errorf("api: file %q not found in dataset", hash))
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted", "hash": hash})
}
