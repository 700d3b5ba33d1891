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
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/llamafarm/llamafarm-core/pkg/anomaly"
	"github.com/llamafarm/llamafarm-core/pkg/models"
	"github.com/llamafarm/llamafarm-core/pkg/polarsbuffer"
)

func (s *Server) handleAnomalyBackends(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, models.GetBackendsResponse())
}

func (s *Server) handleListDetectors(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.anomalyMgr.List())
}

type anomalyProcessRequest struct {
	Record polarsbuffer.Record `json:"record"`
	Index  int                 `json:"index"`
	Config *anomalyConfigBody  `json:"config,omitempty"`
}

type anomalyProcessBatchRequest struct {
	Records []polarsbuffer.Record `json:"records"`
	Config  *anomalyConfigBody    `json:"config,omitempty"`
}

// anomalyConfigBody lets a first /process call provision a detector that
// doesn't exist yet, matching streaming_anomaly.py's get_or_create(model_id,
// **config) convenience.
type anomalyConfigBody struct {
	Backend         string   `json:"backend,omitempty"`
	MinSamples      int      `json:"min_samples,omitempty"`
	RetrainInterval int      `json:"retrain_interval,omitempty"`
	WindowSize      int      `json:"window_size,omitempty"`
	Contamination   float64  `json:"contamination,omitempty"`
	Threshold       float64  `json:"threshold,omitempty"`
	RollingWindows  []int    `json:"rolling_windows,omitempty"`
	IncludeLags     bool     `json:"include_lags,omitempty"`
	LagPeriods      []int    `json:"lag_periods,omitempty"`
}

func (c *anomalyConfigBody) toConfig(modelID string) anomaly.Config {
	cfg := anomaly.DefaultConfig(modelID)
	if c == nil {
		return cfg
	}
	if c.Backend != "" {
		cfg.Backend = c.Backend
	}
	if c.MinSamples > 0 {
		cfg.MinSamples = c.MinSamples
	}
	if c.RetrainInterval > 0 {
		cfg.RetrainInterval = c.RetrainInterval
	}
	if c.WindowSize > 0 {
		cfg.WindowSize = c.WindowSize
	}
	if c.Contamination > 0 {
		cfg.Contamination = c.Contamination
	}
	if c.Threshold > 0 {
		cfg.Threshold = c.Threshold
	}
	cfg.RollingWindows = c.RollingWindows
	cfg.IncludeLags = c.IncludeLags
	cfg.LagPeriods = c.LagPeriods
	return cfg
}

func (s *Server) handleAnomalyProcess(w http.ResponseWriter, r *http.Request) {
	modelID := chi.URLParam(r, "model_id")
	var req anomalyProcessRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("runtime: malformed request body: %w", err))
		return
	}

	detector := s.anomalyMgr.GetOrCreate(modelID, req.Config.toConfig(modelID))
	result, err := detector.Process(r.Context(), req.Record, req.Index)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleAnomalyProcessBatch(w http.ResponseWriter, r *http.Request) {
	modelID := chi.URLParam(r, "model_id")
	var req anomalyProcessBatchRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("runtime: malformed request body: %w", err))
		return
	}

	detector := s.anomalyMgr.GetOrCreate(modelID, req.Config.toConfig(modelID))
	result, err := detector.ProcessBatch(r.Context(), req.Records)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleAnomalyReset(w http.ResponseWriter, r *http.Request) {
	modelID := chi.URLParam(r, "model_id")
	detector, ok := s.anomalyMgr.Get(modelID)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Errorf("runtime: detector %q not found", modelID))
		return
	}
	detector.Reset()
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset", "model_id": modelID})
}

func (s *Server) handleAnomalyStats(w http.ResponseWriter, r *http.Request) {
	modelID := chi.URLParam(r, "model_id")
	detector, ok := s.anomalyMgr.Get(modelID)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Errorf("runtime: detector %q not found", modelID))
		return
	}
	writeJSON(w, http.StatusOK, detector.GetStats())
}

func (s *Server) handleAnomalyDelete(w http.ResponseWriter, r *http.Request) {
	modelID := chi.URLParam(r, "model_id")
	if !s.anomalyMgr.Delete(modelID) {
		writeError(w, http.StatusNotFound, fmt.Errorf("runtime: detector %q not found", modelID))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted", "model_id": modelID})
}
