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
	"context"
	"fmt"

	"github.com/llamafarm/llamafarm-core/pkg/models"
)

// fakeEncoderEngine returns a fixed-size vector per input text, each value
// the text's byte length plus its index, so tests can assert on shape
// without a real embedder.
type fakeEncoderEngine struct {
	loadErr error
	dim     int
}

func (e *fakeEncoderEngine) Load(ctx context.Context, modelPath string) error { return e.loadErr }
func (e *fakeEncoderEngine) Unload(ctx context.Context) error                { return nil }
func (e *fakeEncoderEngine) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		vec := make([]float32, e.dim)
		for j := range vec {
			vec[j] = float32(len(t) + j)
		}
		out[i] = vec
	}
	return out, nil
}

func newFakeEncoderLoader(dim int) WrapperLoader {
	return func(ctx context.Context, modelID string) (models.Wrapper, error) {
		return models.NewEncoderWrapper(modelID, "/fake/path", models.PoolingMean, 0, &fakeEncoderEngine{dim: dim}), nil
	}
}

// fakeOCREngine recognizes one canned region per image, tagging the image
// path into the recognized text so tests can tell inputs apart.
type fakeOCREngine struct{}

func (e *fakeOCREngine) Load(ctx context.Context, modelPath string) error { return nil }
func (e *fakeOCREngine) Unload(ctx context.Context) error                { return nil }
func (e *fakeOCREngine) Recognize(ctx context.Context, imagePath string) ([]models.OCRRegion, error) {
	if imagePath == "bad.png" {
		return nil, fmt.Errorf("fakeOCREngine: cannot read %s", imagePath)
	}
	return []models.OCRRegion{{Text: "hello from " + imagePath, Confidence: 0.99}}, nil
}

func newFakeOCRLoader() WrapperLoader {
	return func(ctx context.Context, modelID string) (models.Wrapper, error) {
		return models.NewOCRWrapper(modelID, "/fake/path", models.OCRBackendTesseract, &fakeOCREngine{}), nil
	}
}
