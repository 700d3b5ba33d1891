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
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/llamafarm/llamafarm-core/pkg/llmclient"
	"github.com/llamafarm/llamafarm-core/pkg/modelcache"
	"github.com/llamafarm/llamafarm-core/pkg/models"
	"github.com/llamafarm/llamafarm-core/pkg/orchestrator"
)

// chatMessage is the wire shape of one OpenAI-style chat message.
type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// chatCompletionRequest extends the OpenAI /v1/chat/completions body with
// the project's retrieval controls.
type chatCompletionRequest struct {
	Model     string        `json:"model"`
	Messages  []chatMessage `json:"messages"`
	Stream    bool          `json:"stream"`
	SessionID string        `json:"session_id,omitempty"`

	RAGEnabled        bool     `json:"rag_enabled,omitempty"`
	RAGQueries        []string `json:"rag_queries,omitempty"`
	Database          string   `json:"database,omitempty"`
	Dataset           string   `json:"dataset,omitempty"`
	RetrievalStrategy string   `json:"retrieval_strategy,omitempty"`
	TopK              int      `json:"top_k,omitempty"`
}

func (req chatCompletionRequest) lastUserMessage() (string, error) {
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == llmclient.RoleUser {
			return req.Messages[i].Content, nil
		}
	}
	return "", fmt.Errorf("runtime: request contains no user message")
}

func (req chatCompletionRequest) ragParams() *orchestrator.RAGParams {
	if !req.RAGEnabled {
		return nil
	}
	target := req.Database
	if target == "" {
		target = req.Dataset
	}
	return &orchestrator.RAGParams{
		Queries:  req.RAGQueries,
		Target:   target,
		TopK:     req.TopK,
		Strategy: req.RetrievalStrategy,
	}
}

type chatChoice struct {
	Index        int         `json:"index"`
	Message      chatMessage `json:"message,omitempty"`
	Delta        chatMessage `json:"delta,omitempty"`
	FinishReason *string     `json:"finish_reason"`
}

type chatCompletionResponse struct {
	ID      string       `json:"id"`
	Object  string       `json:"object"`
	Created int64        `json:"created"`
	Model   string       `json:"model"`
	Choices []chatChoice `json:"choices"`
}

func (s *Server) handleChatCompletions(w http.ResponseWriter, r *http.Request) {
	var req chatCompletionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("runtime: malformed request body: %w", err))
		return
	}
	userMessage, err := req.lastUserMessage()
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	orc, err := orchestrator.New(orchestrator.Config{
		ProjectDir: s.projectDir,
		Project:    s.Project(),
		ModelName:  req.Model,
		SessionID:  req.SessionID,
		Tools:      s.tools,
		RAG:        s.rag,
		Tracer:     s.obs.Tracer(),
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	defer orc.Close()

	completionID := "chatcmpl-" + uuid.NewString()
	created := time.Now().Unix()
	events := orc.Run(r.Context(), userMessage, req.ragParams())

	if req.Stream {
		s.streamChatCompletion(w, completionID, created, req.Model, events)
		return
	}
	s.collectChatCompletion(w, completionID, created, req.Model, events)
}

func (s *Server) streamChatCompletion(w http.ResponseWriter, id string, created int64, model string, events <-chan orchestrator.Event) {
	sseHeaders(w)
	sse, err := newSSEWriter(w)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	for ev := range events {
		switch ev.Type {
		case orchestrator.EventContent:
			_ = sse.sendJSON(chatCompletionResponse{
				ID: id, Object: "chat.completion.chunk", Created: created, Model: model,
				Choices: []chatChoice{{Delta: chatMessage{Role: llmclient.RoleAssistant, Content: ev.Content}}},
			})
		case orchestrator.EventError:
			_ = sse.sendJSON(errorResponse{Detail: ev.Err.Error()})
		case orchestrator.EventDone:
			finish := "stop"
			_ = sse.sendJSON(chatCompletionResponse{
				ID: id, Object: "chat.completion.chunk", Created: created, Model: model,
				Choices: []chatChoice{{Delta: chatMessage{}, FinishReason: &finish}},
			})
		}
	}
	sse.done()
}

func (s *Server) collectChatCompletion(w http.ResponseWriter, id string, created int64, model string, events <-chan orchestrator.Event) {
	var content string
	var streamErr error
	for ev := range events {
		switch ev.Type {
		case orchestrator.EventContent:
			content += ev.Content
		case orchestrator.EventError:
			streamErr = ev.Err
		}
	}
	if streamErr != nil {
		writeError(w, http.StatusInternalServerError, streamErr)
		return
	}

	finish := "stop"
	writeJSON(w, http.StatusOK, chatCompletionResponse{
		ID: id, Object: "chat.completion", Created: created, Model: model,
		Choices: []chatChoice{{Message: chatMessage{Role: llmclient.RoleAssistant, Content: content}, FinishReason: &finish}},
	})
}

type embeddingsRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingEntry struct {
	Index     int       `json:"index"`
	Object    string    `json:"object"`
	Embedding []float32 `json:"embedding"`
}

type embeddingsResponse struct {
	Object string           `json:"object"`
	Model  string           `json:"model"`
	Data   []embeddingEntry `json:"data"`
}

func (s *Server) handleEmbeddings(w http.ResponseWriter, r *http.Request) {
	var req embeddingsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("runtime: malformed request body: %w", err))
		return
	}
	if req.Model == "" || len(req.Input) == 0 {
		writeError(w, http.StatusBadRequest, fmt.Errorf("runtime: model and input are required"))
		return
	}

	wrapper, err := s.ensureModel(r.Context(), models.KindEncoder, req.Model)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	encoder, ok := wrapper.(*models.EncoderWrapper)
	if !ok {
		writeError(w, http.StatusInternalServerError, fmt.Errorf("runtime: model %q is not an encoder", req.Model))
		return
	}

	vectors, err := encoder.Embed(r.Context(), req.Input)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	data := make([]embeddingEntry, len(vectors))
	for i, v := range vectors {
		data[i] = embeddingEntry{Index: i, Object: "embedding", Embedding: v}
	}
	writeJSON(w, http.StatusOK, embeddingsResponse{Object: "list", Model: req.Model, Data: data})
}

// ensureModel loads (or reuses) the wrapper for kind:modelID via the model
// cache's single-flighted EnsureLoaded, using the loader registered for
// kind. Grounded on server.py's lifespan-managed model cache lookup.
func (s *Server) ensureModel(ctx context.Context, kind, modelID string) (models.Wrapper, error) {
	loader, ok := s.loaders[kind]
	if !ok {
		return nil, fmt.Errorf("runtime: no %s model loader configured", kind)
	}
	w, err := s.cache.EnsureLoaded(ctx, kind, modelID, func(ctx context.Context) (modelcache.Wrapper, error) {
		wrapper, err := loader(ctx, modelID)
		if err != nil {
			return nil, err
		}
		if err := wrapper.Load(ctx); err != nil {
			return nil, err
		}
		return wrapper, nil
	})
	if err != nil {
		return nil, err
	}
	return w.(models.Wrapper), nil
}
