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
	"fmt"
	"net/http"

	"github.com/llamafarm/llamafarm-core/pkg/models"
)

type ocrRequest struct {
	Model        string   `json:"model"`
	ImagePaths   []string `json:"image_paths"`
	Languages    []string `json:"languages,omitempty"`
	DetectLayout bool     `json:"detect_layout,omitempty"`
}

type ocrResponse struct {
	Model   string                `json:"model"`
	Results [][]models.OCRRegion `json:"results"`
}

func (s *Server) handleOCR(w http.ResponseWriter, r *http.Request) {
	var req ocrRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("runtime: malformed request body: %w", err))
		return
	}
	if req.Model == "" || len(req.ImagePaths) == 0 {
		writeError(w, http.StatusBadRequest, fmt.Errorf("runtime: model and image_paths are required"))
		return
	}

	wrapper, err := s.ensureModel(r.Context(), models.KindOCR, req.Model)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	ocr, ok := wrapper.(*models.OCRWrapper)
	if !ok {
		writeError(w, http.StatusInternalServerError, fmt.Errorf("runtime: model %q is not an OCR backend", req.Model))
		return
	}

	results := make([][]models.OCRRegion, len(req.ImagePaths))
	for i, path := range req.ImagePaths {
		regions, err := ocr.Recognize(r.Context(), path)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		results[i] = regions
	}
	writeJSON(w, http.StatusOK, ocrResponse{Model: req.Model, Results: results})
}
