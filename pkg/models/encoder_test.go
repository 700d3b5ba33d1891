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
	"testing"
)

type fakeEncoderEngine struct {
	calls [][]string
}

func (e *fakeEncoderEngine) Load(ctx context.Context, modelPath string) error { return nil }
func (e *fakeEncoderEngine) Unload(ctx context.Context) error                { return nil }

func (e *fakeEncoderEngine) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	e.calls = append(e.calls, texts)
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{float32(i)}
	}
	return out, nil
}

func TestEncoderWrapper_SplitsOversizedBatches(t *testing.T) {
	engine := &fakeEncoderEngine{}
	w := NewEncoderWrapper("e1", "/models/e1", PoolingMean, 2, engine)
	if err := w.Load(context.Background()); err != nil {
		t.Fatal(err)
	}

	vecs, err := w.Embed(context.Background(), []string{"a", "b", "c", "d", "e"})
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(vecs) != 5 {
		t.Fatalf("got %d vectors, want 5", len(vecs))
	}
	if len(engine.calls) != 3 {
		t.Fatalf("got %d engine calls, want 3 batches of size <=2", len(engine.calls))
	}
}

func TestEncoderWrapper_EmbedBeforeLoadIsFatal(t *testing.T) {
	w := NewEncoderWrapper("e1", "/models/e1", PoolingMean, 2, &fakeEncoderEngine{})
	_, err := w.Embed(context.Background(), []string{"a"})
	if err == nil {
		t.Fatal("expected an error before Load")
	}
}
