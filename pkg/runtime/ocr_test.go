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
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandleOCR(t *testing.T) {
	s := New(WithWrapperLoader("ocr", newFakeOCRLoader()))

	w := doRequest(t, s, http.MethodPost, "/v1/ocr", ocrRequest{
		Model:      "ocr-1",
		ImagePaths: []string{"page1.png", "page2.png"},
	})
	require.Equal(t, http.StatusOK, w.Code)

	var resp ocrResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Results, 2)
	require.Len(t, resp.Results[0], 1)
	assert.Contains(t, resp.Results[0][0].Text, "page1.png")
	assert.Contains(t, resp.Results[1][0].Text, "page2.png")
}

func TestHandleOCR_PerImageFailure(t *testing.T) {
	s := New(WithWrapperLoader("ocr", newFakeOCRLoader()))
	w := doRequest(t, s, http.MethodPost, "/v1/ocr", ocrRequest{
		Model:      "ocr-1",
		ImagePaths: []string{"bad.png"},
	})
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestHandleOCR_MissingFields(t *testing.T) {
	s := New()
	w := doRequest(t, s, http.MethodPost, "/v1/ocr", ocrRequest{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
