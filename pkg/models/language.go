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
	"errors"
	"fmt"
	"strings"

	"github.com/llamafarm/llamafarm-core/pkg/llmclient"
)

// ErrOutOfMemory marks a transient load/generate failure: the caller should
// unload the model (already done by the wrapper) and may retry with a
// smaller context size or a lighter quantization.
var ErrOutOfMemory = errors.New("models: out of memory")

// LanguageWrapper is a chat-completion model backed by a LanguageEngine.
// Grounded on original_source/runtimes/universal/models/gguf_language_model.py's
// load/generate/generate_streaming shape, generalized to any transformer
// engine (GGUF is the specialization in gguf.go).
type LanguageWrapper struct {
	lifecycle

	modelID     string
	modelPath   string
	nCtx        int
	engine      LanguageEngine
	kind        string
	systemGuide string
}

// NewLanguageWrapper builds a language wrapper around engine with kind
// KindLanguage; NewGGUFWrapper overrides the kind to KindGGUF.
func NewLanguageWrapper(modelID, modelPath string, nCtx int, engine LanguageEngine) *LanguageWrapper {
	return &LanguageWrapper{modelID: modelID, modelPath: modelPath, nCtx: nCtx, engine: engine, kind: KindLanguage}
}

func (w *LanguageWrapper) Kind() string           { return w.kind }
func (w *LanguageWrapper) SupportsStreaming() bool { return true }

func (w *LanguageWrapper) Info() Info {
	return Info{
		Kind:        w.kind,
		ModelID:     w.modelID,
		Loaded:      w.isLoaded(),
		ContextSize: w.nCtx,
	}
}

// Load brings the underlying engine up. An engine error is treated as
// fatal-to-request unless it wraps ErrOutOfMemory, in which case the
// partially-loaded engine is torn back down so a retry starts clean.
func (w *LanguageWrapper) Load(ctx context.Context) error {
	if err := w.engine.Load(ctx, w.modelPath, w.nCtx); err != nil {
		if errors.Is(err, ErrOutOfMemory) {
			_ = w.engine.Unload(ctx)
		}
		return fmt.Errorf("models: load %s: %w", w.modelID, err)
	}
	w.setLoaded(true)
	return nil
}

func (w *LanguageWrapper) Unload(ctx context.Context) error {
	if !w.isLoaded() {
		return nil
	}
	err := w.engine.Unload(ctx)
	w.setLoaded(false)
	return err
}

// Generate passes messages to the engine and returns the full completion
// text. Returns ErrNotLoaded if Load has not yet succeeded.
func (w *LanguageWrapper) Generate(ctx context.Context, messages []llmclient.Message, opts GenerateOptions) (string, error) {
	if !w.isLoaded() {
		return "", &ErrNotLoaded{Kind: w.kind, ModelID: w.modelID}
	}
	text, err := w.engine.Generate(ctx, messages, opts)
	if err != nil {
		if errors.Is(err, ErrOutOfMemory) {
			_ = w.Unload(ctx)
		}
		return "", fmt.Errorf("models: generate %s: %w", w.modelID, err)
	}
	return text, nil
}

// GenerateStream mirrors Generate but yields incremental StreamEvents, the
// same tagged-union shape pkg/llmclient's two chat clients produce, so the
// orchestrator can treat a local model and a remote provider identically.
func (w *LanguageWrapper) GenerateStream(ctx context.Context, messages []llmclient.Message, opts GenerateOptions) (<-chan llmclient.StreamEvent, error) {
	if !w.isLoaded() {
		return nil, &ErrNotLoaded{Kind: w.kind, ModelID: w.modelID}
	}
	tokens, err := w.engine.GenerateStream(ctx, messages, opts)
	if err != nil {
		if errors.Is(err, ErrOutOfMemory) {
			_ = w.Unload(ctx)
		}
		return nil, fmt.Errorf("models: generate stream %s: %w", w.modelID, err)
	}

	out := make(chan llmclient.StreamEvent, 16)
	go func() {
		defer close(out)
		for tok := range tokens {
			if tok.Err != nil {
				if errors.Is(tok.Err, ErrOutOfMemory) {
					_ = w.Unload(ctx)
				}
				out <- llmclient.StreamEvent{Type: llmclient.EventError, Err: tok.Err}
				return
			}
			out <- llmclient.StreamEvent{Type: llmclient.EventContent, Text: tok.Text}
		}
		out <- llmclient.StreamEvent{Type: llmclient.EventDone}
	}()
	return out, nil
}

// FormatChatTemplate renders a message list as a single prompt string for
// engines that accept raw text rather than a structured message list
// (llama.cpp's chat-completion wrapper typically applies its own template,
// but simpler engines, and tests, need a deterministic fallback).
func FormatChatTemplate(messages []llmclient.Message) string {
	var b strings.Builder
	for _, m := range messages {
		fmt.Fprintf(&b, "<|%s|>\n%s\n", m.Role, m.Content)
	}
	b.WriteString("<|assistant|>\n")
	return b.String()
}
