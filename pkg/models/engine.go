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

	"github.com/llamafarm/llamafarm-core/pkg/llmclient"
)

// GenerateOptions bounds a single language-model generation call.
type GenerateOptions struct {
	MaxTokens   int
	Temperature float64
	Stop        []string
}

// Token is one piece of streamed generation output.
type Token struct {
	Text string
	Err  error
}

// LanguageEngine performs the actual forward pass for a loaded chat model.
// Concrete implementations wrap whatever inference runtime a deployment
// links in; the runtime itself only depends on this interface.
type LanguageEngine interface {
	Load(ctx context.Context, modelPath string, nCtx int) error
	Unload(ctx context.Context) error
	Generate(ctx context.Context, messages []llmclient.Message, opts GenerateOptions) (string, error)
	GenerateStream(ctx context.Context, messages []llmclient.Message, opts GenerateOptions) (<-chan Token, error)
}

// EncoderEngine embeds text into fixed-size vectors.
type EncoderEngine interface {
	Load(ctx context.Context, modelPath string) error
	Unload(ctx context.Context) error
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// OCRRegion is one recognized text region within an image.
type OCRRegion struct {
	X1, Y1, X2, Y2 float64
	Text           string
	Confidence     float64
}

// OCREngine recognizes text regions within an image file.
type OCREngine interface {
	Load(ctx context.Context, modelPath string) error
	Unload(ctx context.Context) error
	Recognize(ctx context.Context, imagePath string) ([]OCRRegion, error)
}

// AnomalyBackend is the PyOD-style adapter every anomaly algorithm
// implements: fit on a training batch, then score or classify new rows.
type AnomalyBackend interface {
	Fit(X [][]float64) error
	DecisionFunction(X [][]float64) ([]float64, error)
	Predict(X [][]float64) ([]int, error)
}
