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

package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/llamafarm/llamafarm-core/pkg/config/provider"
)

// ProjectStore loads and atomically persists a project's config.yaml.
type ProjectStore struct {
	path   string
	loader *Loader
}

// NewProjectStore opens a store rooted at configPath (typically
// "{project_dir}/config.yaml").
func NewProjectStore(configPath string) (*ProjectStore, error) {
	p, err := provider.NewFileProvider(configPath)
	if err != nil {
		return nil, fmt.Errorf("project store: %w", err)
	}
	return &ProjectStore{path: configPath, loader: NewLoader(p)}, nil
}

// Load reads and validates the project config.
func (s *ProjectStore) Load(ctx context.Context) (*ProjectConfig, error) {
	return s.loader.Load(ctx)
}

// Save writes cfg to disk atomically (temp file in the same directory,
// then rename), matching the write pattern the orchestrator uses for
// session history so a crash mid-write never leaves a truncated config.yaml.
func (s *ProjectStore) Save(cfg *ProjectConfig) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("project store: marshal: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("project store: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".config-*.yaml.tmp")
	if err != nil {
		return fmt.Errorf("project store: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("project store: write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("project store: close: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("project store: rename: %w", err)
	}
	return nil
}

// Close releases the underlying provider's resources.
func (s *ProjectStore) Close() error {
	return s.loader.Close()
}

// Loader returns the underlying config.Loader, so a caller can drive
// hot-reload via Loader.Watch without reaching into the store's internals.
func (s *ProjectStore) Loader() *Loader {
	return s.loader
}
