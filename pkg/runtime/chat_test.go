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
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/llamafarm/llamafarm-core/pkg/config"
)

// fakeOllamaServer replies to POST /api/chat with a two-chunk NDJSON stream
// ("Hello, " then "world!"), matching OllamaClient's expected wire shape.
func fakeOllamaServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/chat", r.URL.Path)
		flusher, ok := w.(http.Flusher)
		require.True(t, ok)
		enc := json.NewEncoder(w)
		_ = enc.Encode(map[string]any{"message": map[string]string{"role": "assistant", "content": "Hello, "}, "done": false})
		flusher.Flush()
		_ = enc.Encode(map[string]any{"message": map[string]string{"role": "assistant", "content": "world!"}, "done": true})
		flusher.Flush()
	}))
}

func chatProject(baseURL string) *config.ProjectConfig {
	return &config.ProjectConfig{
		Name: "test-project",
		Runtime: config.RuntimeConfig{
			DefaultModel: "chat-model",
			Models: []config.ModelConfig{
				{Name: "chat-model", Provider: config.ProviderOllama, Model: "llama3", BaseURL: baseURL},
			},
		},
	}
}

func TestHandleChatCompletions_NonStreaming(t *testing.T) {
	ollama := fakeOllamaServer(t)
	defer ollama.Close()

	s := New(WithProject(chatProject(ollama.URL), t.TempDir()))
	w := doRequest(t, s, http.MethodPost, "/v1/chat/completions", chatCompletionRequest{
		Model:    "chat-model",
		Messages: []chatMessage{{Role: "user", Content: "hi"}},
	})
	require.Equal(t, http.StatusOK, w.Code)

	var resp chatCompletionResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Choices, 1)
	assert.Equal(t, "Hello, world!", resp.Choices[0].Message.Content)
	assert.Equal(t, "stop", *resp.Choices[0].FinishReason)
	assert.Equal(t, "chat.completion", resp.Object)
}

func TestHandleChatCompletions_Streaming(t *testing.T) {
	ollama := fakeOllamaServer(t)
	defer ollama.Close()

	s := New(WithProject(chatProject(ollama.URL), t.TempDir()))
	w := doRequest(t, s, http.MethodPost, "/v1/chat/completions", chatCompletionRequest{
		Model:    "chat-model",
		Messages: []chatMessage{{Role: "user", Content: "hi"}},
		Stream:   true,
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Body.String(), "chat.completion.chunk")
	assert.Contains(t, w.Body.String(), "[DONE]")
}

func TestHandleChatCompletions_NoUserMessage(t *testing.T) {
	s := New(WithProject(chatProject("http://127.0.0.1:0"), t.TempDir()))
	w := doRequest(t, s, http.MethodPost, "/v1/chat/completions", chatCompletionRequest{
		Model:    "chat-model",
		Messages: []chatMessage{{Role: "system", Content: "be nice"}},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleChatCompletions_UnknownModel(t *testing.T) {
	s := New(WithProject(chatProject("http://127.0.0.1:0"), t.TempDir()))
	w := doRequest(t, s, http.MethodPost, "/v1/chat/completions", chatCompletionRequest{
		Model:    "does-not-exist",
		Messages: []chatMessage{{Role: "user", Content: "hi"}},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleEmbeddings(t *testing.T) {
	s := New(WithWrapperLoader("encoder", newFakeEncoderLoader(3)))

	w := doRequest(t, s, http.MethodPost, "/v1/embeddings", embeddingsRequest{
		Model: "embed-1", Input: []string{"a", "bb"},
	})
	require.Equal(t, http.StatusOK, w.Code)

	var resp embeddingsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Data, 2)
	assert.Len(t, resp.Data[0].Embedding, 3)
	assert.Equal(t, 0, resp.Data[0].Index)
	assert.Equal(t, 1, resp.Data[1].Index)
}

func TestHandleEmbeddings_MissingFields(t *testing.T) {
	s := New()
	w := doRequest(t, s, http.MethodPost, "/v1/embeddings", embeddingsRequest{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleEmbeddings_NoLoaderConfigured(t *testing.T) {
	s := New()
	w := doRequest(t, s, http.MethodPost, "/v1/embeddings", embeddingsRequest{Model: "embed-1", Input: []string{"a"}})
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), fmt.Sprintf("no %s model loader configured", "encoder"))
}
