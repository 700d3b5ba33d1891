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
	"strings"
)

// OCRBackendName identifies which OCR engine a wrapper is configured for.
// Grounded on original_source/runtimes/universal/models/ocr_model.py's
// SUPPORTED_BACKENDS.
type OCRBackendName string

const (
	OCRBackendSurya     OCRBackendName = "surya"
	OCRBackendEasyOCR   OCRBackendName = "easyocr"
	OCRBackendPaddleOCR OCRBackendName = "paddleocr"
	OCRBackendTesseract OCRBackendName = "tesseract"
)

// tesseractLangCodes maps ISO-639-1 two-letter codes to the three-letter
// codes Tesseract's language packs use, carried verbatim from
// ocr_model.py's LANG_CODE_MAP. Only the tesseract backend needs this
// conversion; the other backends accept ISO codes directly.
var tesseractLangCodes = map[string]string{
	"en": "eng", "de": "deu", "fr": "fra", "es": "spa", "it": "ita",
	"pt": "por", "nl": "nld", "ru": "rus", "zh": "chi_sim", "ja": "jpn",
	"ko": "kor", "ar": "ara", "hi": "hin", "pl": "pol", "tr": "tur",
	"vi": "vie", "th": "tha", "sv": "swe", "da": "dan", "no": "nor",
	"fi": "fin", "cs": "ces", "el": "ell", "he": "heb", "hu": "hun",
	"id": "ind", "ms": "msa", "ro": "ron", "sk": "slk", "uk": "ukr",
}

// ConvertTesseractLangCodes converts any two-letter ISO-639-1 codes in
// languages to Tesseract's three-letter form, leaving anything else (already
// a three-letter code, or an unrecognized two-letter one) unchanged.
func ConvertTesseractLangCodes(languages []string) []string {
	out := make([]string, len(languages))
	for i, lang := range languages {
		lower := strings.ToLower(lang)
		if len(lower) == 2 {
			if code, ok := tesseractLangCodes[lower]; ok {
				out[i] = code
				continue
			}
		}
		out[i] = lang
	}
	return out
}

// TesseractLangString joins converted language codes the way Tesseract's
// CLI/library wants them: plus-separated.
func TesseractLangString(languages []string) string {
	return strings.Join(ConvertTesseractLangCodes(languages), "+")
}

// OCRWrapper recognizes text in images via an OCREngine configured for one
// of the four supported backends.
type OCRWrapper struct {
	lifecycle

	modelID   string
	modelPath string
	backend   OCRBackendName
	engine    OCREngine
}

func NewOCRWrapper(modelID, modelPath string, backend OCRBackendName, engine OCREngine) *OCRWrapper {
	return &OCRWrapper{modelID: modelID, modelPath: modelPath, backend: backend, engine: engine}
}

func (w *OCRWrapper) Kind() string           { return KindOCR }
func (w *OCRWrapper) SupportsStreaming() bool { return false }

func (w *OCRWrapper) Info() Info {
	return Info{
		Kind:    KindOCR,
		ModelID: w.modelID,
		Loaded:  w.isLoaded(),
		Extra:   map[string]any{"backend": string(w.backend)},
	}
}

func (w *OCRWrapper) Load(ctx context.Context) error {
	if err := w.engine.Load(ctx, w.modelPath); err != nil {
		return fmt.Errorf("models: load ocr backend %s: %w", w.backend, err)
	}
	w.setLoaded(true)
	return nil
}

func (w *OCRWrapper) Unload(ctx context.Context) error {
	if !w.isLoaded() {
		return nil
	}
	err := w.engine.Unload(ctx)
	w.setLoaded(false)
	return err
}

// Recognize runs OCR over imagePath and normalizes every returned box to the
// {X1,Y1,X2,Y2,Text,Confidence} shape regardless of backend.
func (w *OCRWrapper) Recognize(ctx context.Context, imagePath string) ([]OCRRegion, error) {
	if !w.isLoaded() {
		return nil, &ErrNotLoaded{Kind: KindOCR, ModelID: w.modelID}
	}
	regions, err := w.engine.Recognize(ctx, imagePath)
	if err != nil {
		return nil, fmt.Errorf("models: recognize %s: %w", imagePath, err)
	}
	return regions, nil
}
