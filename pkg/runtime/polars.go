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
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/llamafarm/llamafarm-core/pkg/polarsbuffer"
)

type createBufferRequest struct {
	WindowSize int `json:"window_size"`
}

type bufferEntry struct {
	ID    string             `json:"id"`
	Stats polarsbuffer.Stats `json:"stats"`
}

func (s *Server) handleCreateBuffer(w http.ResponseWriter, r *http.Request) {
	var req createBufferRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("runtime: malformed request body: %w", err))
		return
	}
	buf := s.polarsMgr.Create(req.WindowSize)
	writeJSON(w, http.StatusCreated, bufferEntry{ID: buf.ID(), Stats: buf.GetStats()})
}

func (s *Server) handleListBuffers(w http.ResponseWriter, r *http.Request) {
	buffers := s.polarsMgr.List()
	entries := make([]bufferEntry, len(buffers))
	for i, b := range buffers {
		entries[i] = bufferEntry{ID: b.ID(), Stats: b.GetStats()}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) lookupBuffer(w http.ResponseWriter, r *http.Request) (*polarsbuffer.Buffer, bool) {
	id := chi.URLParam(r, "id")
	buf, ok := s.polarsMgr.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, &polarsbuffer.ErrNotFound{ID: id})
		return nil, false
	}
	return buf, true
}

func (s *Server) handleBufferStats(w http.ResponseWriter, r *http.Request) {
	buf, ok := s.lookupBuffer(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, bufferEntry{ID: buf.ID(), Stats: buf.GetStats()})
}

func (s *Server) handleDeleteBuffer(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !s.polarsMgr.Delete(id) {
		writeError(w, http.StatusNotFound, &polarsbuffer.ErrNotFound{ID: id})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted", "id": id})
}

func (s *Server) handleClearBuffer(w http.ResponseWriter, r *http.Request) {
	buf, ok := s.lookupBuffer(w, r)
	if !ok {
		return
	}
	buf.Clear()
	writeJSON(w, http.StatusOK, map[string]string{"status": "cleared", "id": buf.ID()})
}

type appendRequest struct {
	Record  polarsbuffer.Record   `json:"record,omitempty"`
	Records []polarsbuffer.Record `json:"records,omitempty"`
}

func (s *Server) handleAppendBuffer(w http.ResponseWriter, r *http.Request) {
	buf, ok := s.lookupBuffer(w, r)
	if !ok {
		return
	}
	var req appendRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("runtime: malformed request body: %w", err))
		return
	}
	if len(req.Records) > 0 {
		buf.AppendBatch(req.Records)
	} else if req.Record != nil {
		buf.Append(req.Record)
	} else {
		writeError(w, http.StatusBadRequest, fmt.Errorf("runtime: request must set record or records"))
		return
	}
	writeJSON(w, http.StatusOK, bufferEntry{ID: buf.ID(), Stats: buf.GetStats()})
}

type featuresRequest struct {
	RollingWindows []int    `json:"rolling_windows,omitempty"`
	IncludeStats   []string `json:"include_stats,omitempty"`
	IncludeLags    bool     `json:"include_lags,omitempty"`
	LagPeriods     []int    `json:"lag_periods,omitempty"`
	FillNullValue  float64  `json:"fill_null_value,omitempty"`
	Tail           int      `json:"tail,omitempty"`
}

func (req featuresRequest) toConfig() polarsbuffer.FeatureConfig {
	cfg := polarsbuffer.DefaultFeatureConfig()
	if len(req.RollingWindows) > 0 {
		cfg.RollingWindows = req.RollingWindows
	}
	if len(req.IncludeStats) > 0 {
		cfg.IncludeStats = req.IncludeStats
	}
	cfg.IncludeLags = req.IncludeLags
	if len(req.LagPeriods) > 0 {
		cfg.LagPeriods = req.LagPeriods
	}
	cfg.FillNullValue = req.FillNullValue
	return cfg
}

func (s *Server) handleBufferFeatures(w http.ResponseWriter, r *http.Request) {
	buf, ok := s.lookupBuffer(w, r)
	if !ok {
		return
	}
	var req featuresRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("runtime: malformed request body: %w", err))
		return
	}

	table := buf.GetFeatures(req.toConfig())
	if req.Tail > 0 {
		table = table.Tail(req.Tail)
	}
	writeJSON(w, http.StatusOK, table.ToRecords())
}

func (s *Server) handleBufferData(w http.ResponseWriter, r *http.Request) {
	buf, ok := s.lookupBuffer(w, r)
	if !ok {
		return
	}
	query := r.URL.Query()
	withFeatures := query.Get("with_features") == "true"
	tail := buf.Size()
	if raw := query.Get("tail"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("runtime: invalid tail parameter %q", raw))
			return
		}
		tail = n
	}

	table := buf.GetLatest(tail, withFeatures, polarsbuffer.DefaultFeatureConfig())
	writeJSON(w, http.StatusOK, table.ToRecords())
}
