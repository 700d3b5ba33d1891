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

package llmclient

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/llamafarm/llamafarm-core/pkg/config"
	"github.com/llamafarm/llamafarm-core/pkg/httpclient"
	"github.com/llamafarm/llamafarm-core/pkg/observability"
)

const ollamaDefaultHost = "http://localhost:11434"

// toolInstructionTemplate is injected into the system message when tools are
// offered, since Ollama's classic /api/chat has no uniform native
// tool-calling contract across locally served models.
const toolInstructionTemplate = `You have access to the following tools. When you need to use one, reply with
ONLY a JSON object of the exact shape {"tool_name": "<name>", "tool_parameters": {...}} and nothing else.
If no tool is needed, reply normally.

Available tools:
%s`

// OllamaClient talks to Ollama's /api/chat, detecting tool calls by
// buffering streamed content and testing whether it looks like JSON once a
// leading '{' is seen.
type OllamaClient struct {
	model      config.ModelConfig
	httpClient *httpclient.Client
	baseURL    string
}

// NewOllamaClient builds a client for the ollama provider.
func NewOllamaClient(model config.ModelConfig) *OllamaClient {
	baseURL := strings.TrimSuffix(model.BaseURL, "/")
	if baseURL == "" {
		baseURL = ollamaDefaultHost
	}
	return &OllamaClient{
		model:      model,
		httpClient: createHTTPClient(model),
		baseURL:    baseURL,
	}
}

func (c *OllamaClient) ModelName() string { return c.model.Model }
func (c *OllamaClient) Close() error      { return nil }

type ollamaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Options  *ollamaOptions  `json:"options,omitempty"`
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature,omitempty"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type ollamaResponse struct {
	Message   ollamaMessage `json:"message"`
	Done      bool          `json:"done"`
	EvalCount int           `json:"eval_count"`
	Error     string        `json:"error,omitempty"`
}

func toolInstructionBlock(tools []ToolDefinition) string {
	var b strings.Builder
	for _, t := range tools {
		params, _ := json.Marshal(t.Parameters)
		fmt.Fprintf(&b, "- %s: %s (parameters: %s)\n", t.Name, t.Description, string(params))
	}
	return b.String()
}

func (c *OllamaClient) buildMessages(messages []Message, tools []ToolDefinition) []ollamaMessage {
	out := make([]ollamaMessage, 0, len(messages)+1)
	if len(tools) > 0 {
		out = append(out, ollamaMessage{
			Role:    RoleSystem,
			Content: fmt.Sprintf(toolInstructionTemplate, toolInstructionBlock(tools)),
		})
	}
	for _, m := range messages {
		role := m.Role
		if role == RoleTool {
			// Ollama's classic chat API has no tool role; fold tool results
			// back in as user-visible content, same as the base model's
			// role-mapping for providers without a native tool role.
			role = RoleUser
		}
		out = append(out, ollamaMessage{Role: role, Content: m.Content})
	}
	return out
}

func (c *OllamaClient) buildRequest(messages []Message, stream bool, tools []ToolDefinition) ollamaRequest {
	req := ollamaRequest{
		Model:    c.model.Model,
		Messages: c.buildMessages(messages, tools),
		Stream:   stream,
	}
	if c.model.Temperature > 0 || c.model.MaxTokens > 0 {
		req.Options = &ollamaOptions{Temperature: c.model.Temperature, NumPredict: c.model.MaxTokens}
	}
	return req
}

// Chat performs a single non-streaming completion.
func (c *OllamaClient) Chat(messages []Message) (string, error) {
	req := c.buildRequest(messages, false, nil)
	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("ollama client: marshal request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(context.Background(), http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("ollama client: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("ollama client: request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("ollama client: read response: %w", err)
	}
	var parsed ollamaResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("ollama client: decode response: %w", err)
	}
	if parsed.Error != "" {
		return "", fmt.Errorf("ollama client: api error: %s", parsed.Error)
	}
	return parsed.Message.Content, nil
}

// StreamChat streams content-only deltas.
func (c *OllamaClient) StreamChat(messages []Message) (<-chan StreamEvent, error) {
	return c.StreamChatWithTools(messages, nil)
}

// StreamChatWithTools injects tool instructions into the system message,
// buffers streamed content, and withholds it from the caller once the
// stripped buffer starts with '{' until the stream ends — at which point the
// buffer either parses as a valid tool-call object (emitting ToolCall) or is
// re-emitted verbatim as Content. This avoids leaking partial tool-call JSON
// into visible chat text at the cost of a little added latency on tool turns.
func (c *OllamaClient) StreamChatWithTools(messages []Message, tools []ToolDefinition) (<-chan StreamEvent, error) {
	req := c.buildRequest(messages, true, tools)
	out := make(chan StreamEvent, streamChannelBufferSize)

	go func() {
		defer close(out)
		if err := c.streamRequest(context.Background(), req, out); err != nil {
			out <- StreamEvent{Type: EventError, Err: err}
		}
	}()

	return out, nil
}

type jsonToolCall struct {
	ToolName       string                 `json:"tool_name"`
	ToolParameters map[string]interface{} `json:"tool_parameters"`
}

func (c *OllamaClient) streamRequest(ctx context.Context, req ollamaRequest, out chan<- StreamEvent) error {
	tracer := observability.GetTracer("llamafarm.llmclient")
	ctx, span := tracer.Start(ctx, observability.SpanLLMRequest, trace.WithAttributes(
		attribute.String(observability.AttrLLMModel, c.model.Model),
		attribute.String("provider", "ollama"),
		attribute.Bool("streaming", true),
	))
	defer span.End()
	start := time.Now()

	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("ollama client: marshal request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("ollama client: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if resp != nil {
		defer resp.Body.Close()
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("ollama client: streaming request failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("ollama client: api request failed with status %d: %s", resp.StatusCode, string(raw))
	}

	reader := bufio.NewReader(resp.Body)
	var buf strings.Builder
	looksLikeJSON := false
	var totalTokens int

	for {
		line, readErr := reader.ReadBytes('\n')
		line = bytes.TrimSpace(line)
		if len(line) > 0 {
			var chunk ollamaResponse
			if err := json.Unmarshal(line, &chunk); err == nil {
				if chunk.Error != "" {
					return fmt.Errorf("ollama client: api error: %s", chunk.Error)
				}
				if chunk.Message.Content != "" {
					buf.WriteString(chunk.Message.Content)
					stripped := strings.TrimSpace(buf.String())
					if strings.HasPrefix(stripped, "{") {
						looksLikeJSON = true
					} else if !looksLikeJSON {
						out <- StreamEvent{Type: EventContent, Text: chunk.Message.Content}
					}
				}
				if chunk.Done {
					totalTokens = chunk.EvalCount
				}
			}
		}
		if readErr != nil {
			if readErr == io.EOF {
				break
			}
			return fmt.Errorf("ollama client: read stream: %w", readErr)
		}
	}

	if looksLikeJSON {
		c.resolveBufferedJSON(buf.String(), out)
	}
	out <- StreamEvent{Type: EventDone, Tokens: totalTokens}

	span.SetAttributes(attribute.Int(observability.AttrLLMTokensOutput, totalTokens))
	span.SetStatus(codes.Ok, "success")
	recordMetrics(c.model.Model, c.model.Provider, time.Since(start), 0, totalTokens, "")
	return nil
}

func (c *OllamaClient) resolveBufferedJSON(buffered string, out chan<- StreamEvent) {
	stripped := strings.TrimSpace(buffered)
	var call jsonToolCall
	if err := json.Unmarshal([]byte(stripped), &call); err != nil || call.ToolName == "" {
		// Not a valid tool-call object after all: re-emit as plain content.
		out <- StreamEvent{Type: EventContent, Text: buffered}
		return
	}
	out <- StreamEvent{
		Type: EventToolCall,
		ToolCall: &ToolCall{
			Name:      call.ToolName,
			Arguments: call.ToolParameters,
			RawArgs:   stripped,
		},
	}
}
