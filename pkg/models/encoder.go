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
)

// PoolingMode controls how an encoder reduces per-token embeddings to a
// single vector per input.
type PoolingMode string

const (
	PoolingMean PoolingMode = "mean"
	PoolingCLS  PoolingMode = "cls"
	PoolingLast PoolingMode = "last"
)

// EncoderWrapper embeds text into fixed-size vectors via an EncoderEngine,
// splitting oversized batches and re-merging results so callers never have
// to reason about the engine's own batch-size limit.
type EncoderWrapper struct {
	lifecycle

	modelID   string
	modelPath string
	pooling   PoolingMode
	batchSize int
	engine    EncoderEngine
}

// NewEncoderWrapper builds an encoder wrapper. batchSize <= 0 disables splitting.
func NewEncoderWrapper(modelID, modelPath string, pooling PoolingMode, batchSize int, engine EncoderEngine) *EncoderWrapper {
	return &EncoderWrapper{modelID: modelID, modelPath: modelPath, pooling: pooling, batchSize: batchSize, engine: engine}
}

func (w *EncoderWrapper) Kind() string           { return KindEncoder }
func (w *EncoderWrapper) SupportsStreaming() bool { return false }

func (w *EncoderWrapper) Info() Info {
	return Info{
		Kind:    KindEncoder,
		ModelID: w.modelID,
		Loaded:  w.isLoaded(),
		Extra:   map[string]any{"pooling": string(w.pooling)},
	}
}

func (w *EncoderWrapper) Load(ctx context.Context) error {
	if err := w.engine.Load(ctx, w.modelPath); err != nil {
		return fmt.Errorf("models: load encoder %s: %w", w.modelID, err)
	}
	w.setLoaded(true)
	return nil
}

func (w *EncoderWrapper) Unload(ctx context.Context) error {
	if !w.isLoaded() {
		return nil
	}
	err := w.engine.Unload(ctx)
	w.setLoaded(false)
	return err
}

// Embed returns one vector per input text, splitting into batches of at
// most w.batchSize engine calls and re-merging in input order.
func (w *EncoderWrapper) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if !w.isLoaded() {
		return nil, &ErrNotLoaded{Kind: KindEncoder, ModelID: w.modelID}
	}
	if w.batchSize <= 0 || len(texts) <= w.batchSize {
		return w.engine.Embed(ctx, texts)
	}

	result := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += w.batchSize {
		end := start + w.batchSize
		if end > len(texts) {
			end = len(texts)
		}
		vecs, err := w.engine.Embed(ctx, texts[start:end])
		if err != nil {
			return nil, fmt.Errorf("models: embed batch [%d:%d]: %w", start, end, err)
		}
		result = append(result, vecs...)
	}
	return result, nil
}
