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

package models

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/llamafarm/llamafarm-core/pkg/devicecache"
)

// GGUFModelInfo describes what a GGUF file advertises about itself. Header
// inspection (reading the actual GGUF metadata block) is left to the engine;
// the wrapper only needs the advertised maximum context length.
type GGUFModelInfo struct {
	MaxContext int
}

// NewGGUFWrapper builds a LanguageWrapper that selects the best on-disk GGUF
// file from modelDir (preferring preferredQuantization if set, falling back
// to GGUFQuantizationPreferenceOrder), derives a safe context-window size
// from available RAM and the model's advertised maximum, and returns a
// wrapper that passes both to engine on Load.
//
// Grounded on original_source/runtimes/universal/models/gguf_language_model.py's
// load() sequence (select quantized file -> compute context size -> load),
// re-expressed against pkg/devicecache's local, network-free equivalents of
// smart_download/get_default_context_size.
func NewGGUFWrapper(modelID, modelDir string, info GGUFModelInfo, preferredQuantization string, contextOverride *int, engine LanguageEngine) (*LanguageWrapper, error) {
	files, err := ListLocalGGUFFiles(modelDir)
	if err != nil {
		return nil, fmt.Errorf("models: listing gguf files in %s: %w", modelDir, err)
	}
	selected := devicecache.SelectGGUFFile(files, preferredQuantization)
	if selected == "" {
		return nil, fmt.Errorf("models: no .gguf files found in %s", modelDir)
	}

	nCtx, _ := devicecache.ComputeContextSize(info.MaxContext, devicecache.AvailableRAMGB(), contextOverride)

	w := NewLanguageWrapper(modelID, filepath.Join(modelDir, selected), nCtx, engine)
	w.kind = KindGGUF
	return w, nil
}

// ListLocalGGUFFiles lists the .gguf filenames present directly under dir,
// in the shape SelectGGUFFile expects (downloading them is out of scope —
// the runtime only ever selects among files already resident in the cache).
func ListLocalGGUFFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if strings.HasSuffix(strings.ToLower(e.Name()), ".gguf") {
			files = append(files, e.Name())
		}
	}
	return files, nil
}

// PreflightDownload validates that requiredBytes can be safely downloaded
// into cacheDir, per pkg/devicecache's disk-space gate.
func PreflightDownload(ctx context.Context, requiredBytes int64, cacheDir string) devicecache.ValidationResult {
	return devicecache.ValidateSpaceForDownload(requiredBytes, cacheDir)
}
