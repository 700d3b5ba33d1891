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

package anomaly

import "sync"

// Manager is a registry of streaming detectors keyed by model id, created
// on demand. Grounded on streaming_anomaly.py's StreamingDetectorManager
// (get_or_create/get/delete/list_detectors/clear_all), re-expressed with a
// sync.Mutex in place of asyncio.Lock.
type Manager struct {
	mu        sync.Mutex
	factory   BackendFactory
	detectors map[string]*Detector
}

// NewManager creates an empty detector registry. Every detector it creates
// shares factory for building backend instances.
func NewManager(factory BackendFactory) *Manager {
	return &Manager{factory: factory, detectors: make(map[string]*Detector)}
}

// GetOrCreate returns the existing detector for modelID, or creates one
// from cfg (with cfg.ModelID forced to modelID) if none exists yet.
func (m *Manager) GetOrCreate(modelID string, cfg Config) *Detector {
	m.mu.Lock()
	defer m.mu.Unlock()

	if d, ok := m.detectors[modelID]; ok {
		return d
	}
	cfg.ModelID = modelID
	d := New(cfg, m.factory)
	m.detectors[modelID] = d
	return d
}

// Get returns the detector for modelID, if registered.
func (m *Manager) Get(modelID string) (*Detector, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.detectors[modelID]
	return d, ok
}

// Delete removes a detector, reporting whether it existed.
func (m *Manager) Delete(modelID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.detectors[modelID]; !ok {
		return false
	}
	delete(m.detectors, modelID)
	return true
}

// List returns stats for every registered detector.
func (m *Manager) List() []Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Stats, 0, len(m.detectors))
	for _, d := range m.detectors {
		out = append(out, d.GetStats())
	}
	return out
}

// ClearAll removes every detector and returns the count removed.
func (m *Manager) ClearAll() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := len(m.detectors)
	m.detectors = make(map[string]*Detector)
	return count
}
