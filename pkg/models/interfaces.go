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

// Package models implements the runtime's per-kind model wrappers: the
// common lifecycle surface pkg/modelcache manages, and the language, GGUF,
// encoder, OCR, and anomaly specializations layered on top of it.
//
// None of the wrappers here execute tensor math themselves — no GGUF,
// ONNX, or transformer inference library exists anywhere in the example
// corpus this module was built from. Instead each wrapper owns the plumbing
// the runtime actually needs to get right — cache lifecycle, chat-template
// formatting, quantization selection, context sizing, streaming-channel
// idiom, score normalization — and delegates the actual forward pass to an
// injected engine interface, the same external-collaborator pattern used
// for RAG search. A test double implementing that interface exercises every
// wrapper without linking a real model runtime.
package models

import (
	"context"
	"sync"
)

// Kind identifies a wrapper's model category, matching the cache key prefix
// pkg/modelcache uses.
const (
	KindLanguage = "language"
	KindGGUF     = "gguf"
	KindEncoder  = "encoder"
	KindOCR      = "ocr"
	KindAnomaly  = "anomaly"
)

// Info describes a loaded (or loadable) model for introspection endpoints.
type Info struct {
	Kind        string
	ModelID     string
	Loaded      bool
	ContextSize int
	Extra       map[string]any
}

// Wrapper is the common surface every model kind implements. It is a
// superset of pkg/modelcache.Wrapper (Kind, Unload), adding the lifecycle
// and introspection methods the runtime HTTP layer needs.
type Wrapper interface {
	Load(ctx context.Context) error
	Unload(ctx context.Context) error
	Kind() string
	SupportsStreaming() bool
	Info() Info
}

// lifecycle is embedded by each concrete wrapper to serialize Load/Unload
// against concurrent use — every wrapper kind here has a single-consumer
// contract: callers serialize their own Generate/Embed/Recognize/Fit calls,
// but Load and Unload race against the cache janitor and must be mutex-guarded.
type lifecycle struct {
	mu     sync.Mutex
	loaded bool
}

func (l *lifecycle) isLoaded() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.loaded
}

func (l *lifecycle) setLoaded(v bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.loaded = v
}

// ErrNotLoaded is returned by a generate/embed/recognize/fit call made
// before Load has succeeded. It is fatal to the request, not the runtime.
type ErrNotLoaded struct{ Kind, ModelID string }

func (e *ErrNotLoaded) Error() string {
	return "models: " + e.Kind + " model " + e.ModelID + " is not loaded"
}
