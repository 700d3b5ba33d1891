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
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/llamafarm/llamafarm-core/pkg/config"
)

func doRequest(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		req = httptest.NewRequest(method, path, bytes.NewReader(raw))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func TestHandleHealth(t *testing.T) {
	s := New()
	w := doRequest(t, s, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp["status"])
}

func TestHandleListModels_NoProject(t *testing.T) {
	s := New()
	w := doRequest(t, s, http.MethodGet, "/v1/models", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, "[]", w.Body.String())
}

func testProject() *config.ProjectConfig {
	return &config.ProjectConfig{
		Name: "test-project",
		Runtime: config.RuntimeConfig{
			DefaultModel: "chat-model",
			Models: []config.ModelConfig{
				{Name: "chat-model", Provider: config.ProviderOllama, Model: "llama3", BaseURL: "http://127.0.0.1:0"},
			},
		},
	}
}

func TestHandleListModels(t *testing.T) {
	s := New(WithProject(testProject(), t.TempDir()))
	w := doRequest(t, s, http.MethodGet, "/v1/models", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	var entries []modelEntry
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, "chat-model", entries[0].ID)
	assert.Equal(t, "llama3", entries[0].Name)
}

func TestHandleDownloadModel(t *testing.T) {
	s := New(WithProject(testProject(), t.TempDir()))

	t.Run("configured model reports already_available", func(t *testing.T) {
		w := doRequest(t, s, http.MethodPost, "/v1/models/download", downloadRequest{Name: "chat-model"})
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "already_available")
		assert.Contains(t, w.Body.String(), "[DONE]")
	})

	t.Run("unconfigured model is a bad request", func(t *testing.T) {
		w := doRequest(t, s, http.MethodPost, "/v1/models/download", downloadRequest{Name: "nope"})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("implausibly large download fails the disk-space preflight", func(t *testing.T) {
		w := doRequest(t, s, http.MethodPost, "/v1/models/download", downloadRequest{
			Name: "chat-model", SizeBytes: 1 << 62,
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "Insufficient disk space")
	})
}

func TestHandleDeleteModel_UnsupportedProviderIsBadRequest(t *testing.T) {
	project := &config.ProjectConfig{
		Name: "test-project",
		Runtime: config.RuntimeConfig{
			DefaultModel: "hosted-model",
			Models: []config.ModelConfig{
				{Name: "hosted-model", Provider: config.ProviderOpenAI, Model: "gpt-4o"},
			},
		},
	}
	s := New(WithProject(project, t.TempDir()))
	w := doRequest(t, s, http.MethodDelete, "/v1/models/hosted-model", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "does not support model deletion")
}

func TestHandleDeleteModel_NotFound(t *testing.T) {
	s := New(WithProject(testProject(), t.TempDir()))
	w := doRequest(t, s, http.MethodDelete, "/v1/models/nope", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandleDeleteModel_UnloadsAndEvictsCachedWrapper(t *testing.T) {
	s := New(
		WithProject(testProject(), t.TempDir()),
		WithWrapperLoader("encoder", newFakeEncoderLoader(4)),
	)

	// Warm the cache so there is something to unload.
	_, err := s.ensureModel(context.Background(), "encoder", "chat-model")
	require.NoError(t, err)
	require.Equal(t, 1, s.cache.Len())

	w := doRequest(t, s, http.MethodDelete, "/v1/models/chat-model", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 0, s.cache.Len())
}
