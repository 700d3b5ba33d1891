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

package orchestrator

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/llamafarm/llamafarm-core/pkg/llmclient"
)

// history is a per-session turn log: everything exchanged after the leading
// prompt bundle (user/assistant/tool messages), optionally persisted to
// disk. A nil sessionID disables persistence entirely — turns live only in
// memory for the life of the Orchestrator.
type history struct {
	path string // empty when persistence is disabled
}

func newHistory(projectDir, sessionID string) *history {
	if sessionID == "" {
		return &history{}
	}
	return &history{path: filepath.Join(projectDir, "sessions", sessionID, "history.json")}
}

func (h *history) enabled() bool {
	return h.path != ""
}

// load restores previously persisted turns. A missing file, not yet
// written, is not an error — it just means an empty history.
func (h *history) load() ([]llmclient.Message, error) {
	if !h.enabled() {
		return nil, nil
	}
	data, err := os.ReadFile(h.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("orchestrator: read history: %w", err)
	}
	var turns []llmclient.Message
	if err := json.Unmarshal(data, &turns); err != nil {
		slog.Warn("orchestrator: failed to parse history file, starting fresh", "path", h.path, "error", err)
		return nil, nil
	}
	return turns, nil
}

// persist writes turns atomically: write to a sibling temp file, then
// rename over the destination so a crash never leaves a half-written file.
func (h *history) persist(turns []llmclient.Message) error {
	if !h.enabled() {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(h.path), 0o755); err != nil {
		return fmt.Errorf("orchestrator: create session directory: %w", err)
	}
	data, err := json.MarshalIndent(turns, "", "  ")
	if err != nil {
		return fmt.Errorf("orchestrator: marshal history: %w", err)
	}
	tmpPath := h.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("orchestrator: write history: %w", err)
	}
	if err := os.Rename(tmpPath, h.path); err != nil {
		return fmt.Errorf("orchestrator: finalize history: %w", err)
	}
	return nil
}

// reset clears the persisted history file, if any.
func (h *history) reset() error {
	if !h.enabled() {
		return nil
	}
	if err := os.Remove(h.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("orchestrator: remove history: %w", err)
	}
	return nil
}
