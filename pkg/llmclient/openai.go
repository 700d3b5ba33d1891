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

const (
	openAIDefaultHost       = "https://api.openai.com/v1"
	streamChannelBufferSize = 100
)

// OpenAIClient speaks the classic /v1/chat/completions wire shape shared by
// the openai, lemonade, and universal providers: native tool_calls deltas
// accumulated per-index and emitted once the stream ends. finish_reason is
// not inspected.
type OpenAIClient struct {
	model      config.ModelConfig
	httpClient *httpclient.Client
	baseURL    string
}

func createHTTPClient(cfg config.ModelConfig) *httpclient.Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 60
	}
	return httpclient.New(
		httpclient.WithHTTPClient(&http.Client{Timeout: time.Duration(timeout) * time.Second}),
		httpclient.WithMaxRetries(cfg.MaxRetries),
		httpclient.WithBaseDelay(time.Duration(cfg.RetryDelay)*time.Second),
		httpclient.WithHeaderParser(httpclient.ParseOpenAIRateLimitHeaders),
	)
}

// NewOpenAIClient builds a client for the openai/lemonade/universal providers.
func NewOpenAIClient(model config.ModelConfig) *OpenAIClient {
	baseURL := strings.TrimSuffix(model.BaseURL, "/")
	if baseURL == "" {
		baseURL = openAIDefaultHost
	}
	return &OpenAIClient{
		model:      model,
		httpClient: createHTTPClient(model),
		baseURL:    baseURL,
	}
}

func (c *OpenAIClient) ModelName() string { return c.model.Model }
func (c *OpenAIClient) Close() error      { return nil }

type chatCompletionMessage struct {
	Role       string               `json:"role"`
	Content    string               `json:"content,omitempty"`
	ToolCalls  []chatCompletionCall `json:"tool_calls,omitempty"`
	ToolCallID string               `json:"tool_call_id,omitempty"`
	Name       string               `json:"name,omitempty"`
}

type chatCompletionCall struct {
	Index    int                    `json:"index,omitempty"`
	ID       string                 `json:"id,omitempty"`
	Type     string                 `json:"type,omitempty"`
	Function chatCompletionFunction `json:"function"`
}

type chatCompletionFunction struct {
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`
}

type chatCompletionTool struct {
	Type     string                     `json:"type"`
	Function chatCompletionToolFunction `json:"function"`
}

type chatCompletionToolFunction struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description,omitempty"`
	Parameters  map[string]interface{} `json:"parameters,omitempty"`
}

type chatCompletionRequest struct {
	Model       string                  `json:"model"`
	Messages    []chatCompletionMessage `json:"messages"`
	Stream      bool                    `json:"stream"`
	Temperature float64                 `json:"temperature,omitempty"`
	MaxTokens   int                     `json:"max_tokens,omitempty"`
	Tools       []chatCompletionTool    `json:"tools,omitempty"`
	ToolChoice  string                  `json:"tool_choice,omitempty"`
}

type chatCompletionResponse struct {
	ID      string                   `json:"id"`
	Choices []chatCompletionChoice   `json:"choices"`
	Usage   chatCompletionUsage      `json:"usage"`
	Error   *chatCompletionErrorBody `json:"error,omitempty"`
}

type chatCompletionChoice struct {
	Index        int                    `json:"index"`
	Message      chatCompletionMessage  `json:"message"`
	Delta        chatCompletionMessage  `json:"delta"`
	FinishReason string                 `json:"finish_reason"`
}

type chatCompletionUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type chatCompletionErrorBody struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

func toChatMessages(messages []Message) []chatCompletionMessage {
	out := make([]chatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		cm := chatCompletionMessage{
			Role:       m.Role,
			Content:    m.Content,
			ToolCallID: m.ToolCallID,
			Name:       m.Name,
		}
		for i, tc := range m.ToolCalls {
			args := tc.RawArgs
			if args == "" {
				b, _ := json.Marshal(tc.Arguments)
				args = string(b)
			}
			cm.ToolCalls = append(cm.ToolCalls, chatCompletionCall{
				Index: i,
				ID:    tc.ID,
				Type:  "function",
				Function: chatCompletionFunction{
					Name:      tc.Name,
					Arguments: args,
				},
			})
		}
		out = append(out, cm)
	}
	return out
}

func toChatTools(tools []ToolDefinition) []chatCompletionTool {
	if len(tools) == 0 {
		return nil
	}
	out := make([]chatCompletionTool, len(tools))
	for i, t := range tools {
		out[i] = chatCompletionTool{
			Type: "function",
			Function: chatCompletionToolFunction{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		}
	}
	return out
}

func (c *OpenAIClient) buildRequest(messages []Message, stream bool, tools []ToolDefinition) chatCompletionRequest {
	req := chatCompletionRequest{
		Model:       c.model.Model,
		Messages:    toChatMessages(messages),
		Stream:      stream,
		Temperature: c.model.Temperature,
		MaxTokens:   c.model.MaxTokens,
		Tools:       toChatTools(tools),
	}
	if len(tools) > 0 {
		req.ToolChoice = "auto"
	}
	return req
}

// Chat performs a single non-streaming completion and returns its text.
func (c *OpenAIClient) Chat(messages []Message) (string, error) {
	req := c.buildRequest(messages, false, nil)
	resp, err := c.doRequest(context.Background(), req)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai client: empty choices in response")
	}
	return resp.Choices[0].Message.Content, nil
}

// StreamChat streams content-only deltas; no tool definitions are offered.
func (c *OpenAIClient) StreamChat(messages []Message) (<-chan StreamEvent, error) {
	return c.StreamChatWithTools(messages, nil)
}

// StreamChatWithTools is the contract the orchestrator drives: it emits
// Content events verbatim and accumulates tool_calls deltas per-index
// (id, name, arguments fragment) until the stream ends, then emits one
// ToolCall event per accumulated call that has a name; finish_reason is not
// inspected. Malformed JSON arguments
// suppress the event rather than surfacing an error.
func (c *OpenAIClient) StreamChatWithTools(messages []Message, tools []ToolDefinition) (<-chan StreamEvent, error) {
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

func (c *OpenAIClient) doRequest(ctx context.Context, req chatCompletionRequest) (*chatCompletionResponse, error) {
	tracer := observability.GetTracer("llamafarm.llmclient")
	ctx, span := tracer.Start(ctx, observability.SpanLLMRequest, trace.WithAttributes(
		attribute.String(observability.AttrLLMModel, c.model.Model),
		attribute.String("provider", c.model.Provider),
		attribute.Bool("streaming", false),
	))
	defer span.End()
	start := time.Now()

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("openai client: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("openai client: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.model.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.model.APIKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	duration := time.Since(start)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		recordMetrics(c.model.Model, c.model.Provider, duration, 0, 0, "request_failed")
		return nil, fmt.Errorf("openai client: request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("openai client: read response: %w", err)
	}

	var parsed chatCompletionResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("openai client: decode response: %w", err)
	}
	if parsed.Error != nil {
		apiErr := fmt.Errorf("openai client: api error: %s", parsed.Error.Message)
		span.RecordError(apiErr)
		span.SetStatus(codes.Error, parsed.Error.Message)
		recordMetrics(c.model.Model, c.model.Provider, duration, 0, 0, "api_error")
		return nil, apiErr
	}

	span.SetAttributes(
		attribute.Int(observability.AttrLLMTokensInput, parsed.Usage.PromptTokens),
		attribute.Int(observability.AttrLLMTokensOutput, parsed.Usage.CompletionTokens),
	)
	span.SetStatus(codes.Ok, "success")
	recordMetrics(c.model.Model, c.model.Provider, duration, parsed.Usage.PromptTokens, parsed.Usage.CompletionTokens, "")

	return &parsed, nil
}

// recordMetrics reports an LLM call to whatever *observability.Metrics was
// registered by the daemon's observability.Manager at startup. errorType is
// empty for a successful call.
func recordMetrics(model, provider string, duration time.Duration, tokensIn, tokensOut int, errorType string) {
	metrics := observability.GetGlobalMetrics()
	if metrics == nil {
		return
	}
	metrics.RecordLLMCall(model, provider, duration)
	metrics.RecordLLMTokens(model, provider, tokensIn, tokensOut)
	if errorType != "" {
		metrics.RecordLLMError(model, provider, errorType)
	}
}

// accumulatedCall tracks one in-progress tool_calls[i] across SSE deltas.
type accumulatedCall struct {
	id   string
	name string
	args strings.Builder
}

func (c *OpenAIClient) streamRequest(ctx context.Context, req chatCompletionRequest, out chan<- StreamEvent) error {
	tracer := observability.GetTracer("llamafarm.llmclient")
	ctx, span := tracer.Start(ctx, observability.SpanLLMRequest, trace.WithAttributes(
		attribute.String(observability.AttrLLMModel, c.model.Model),
		attribute.String("provider", c.model.Provider),
		attribute.Bool("streaming", true),
	))
	defer span.End()
	start := time.Now()

	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("openai client: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("openai client: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	if c.model.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.model.APIKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if resp != nil {
		defer resp.Body.Close()
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("openai client: streaming request failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("openai client: api request failed with status %d: %s", resp.StatusCode, string(raw))
	}

	// bufio.Reader with ReadBytes, not Scanner: SSE data lines for large
	// tool-call argument fragments can exceed Scanner's 64KB default buffer.
	reader := bufio.NewReader(resp.Body)
	calls := make(map[int]*accumulatedCall)
	callOrder := make([]int, 0, 4)
	var totalTokens int

	for {
		line, err := reader.ReadBytes('\n')
		if len(line) > 0 {
			if evErr := handleSSELine(line, out, calls, &callOrder, &totalTokens); evErr != nil {
				return evErr
			}
		}
		if err != nil {
			if err == io.EOF {
				break
			}
			return fmt.Errorf("openai client: read stream: %w", err)
		}
	}

	flushToolCalls(out, calls, callOrder)
	out <- StreamEvent{Type: EventDone, Tokens: totalTokens}

	span.SetAttributes(attribute.Int(observability.AttrLLMTokensOutput, totalTokens))
	span.SetStatus(codes.Ok, "success")
	recordMetrics(c.model.Model, c.model.Provider, time.Since(start), 0, totalTokens, "")
	return nil
}

func handleSSELine(line []byte, out chan<- StreamEvent, calls map[int]*accumulatedCall, callOrder *[]int, totalTokens *int) error {
	line = bytes.TrimSpace(line)
	if len(line) == 0 || !bytes.HasPrefix(line, []byte("data:")) {
		return nil
	}
	payload := bytes.TrimSpace(bytes.TrimPrefix(line, []byte("data:")))
	if string(payload) == "[DONE]" {
		return nil
	}

	var chunk chatCompletionResponse
	if err := json.Unmarshal(payload, &chunk); err != nil {
		return nil
	}
	if chunk.Error != nil {
		return fmt.Errorf("openai client: api error: %s", chunk.Error.Message)
	}
	if len(chunk.Choices) == 0 {
		return nil
	}

	choice := chunk.Choices[0]
	if choice.Delta.Content != "" {
		out <- StreamEvent{Type: EventContent, Text: choice.Delta.Content}
	}

	for _, tc := range choice.Delta.ToolCalls {
		acc, ok := calls[tc.Index]
		if !ok {
			acc = &accumulatedCall{}
			calls[tc.Index] = acc
			*callOrder = append(*callOrder, tc.Index)
		}
		if tc.ID != "" {
			acc.id = tc.ID
		}
		if tc.Function.Name != "" {
			acc.name = tc.Function.Name
		}
		acc.args.WriteString(tc.Function.Arguments)
	}

	if chunk.Usage.TotalTokens > 0 {
		*totalTokens = chunk.Usage.TotalTokens
	}
	return nil
}

func flushToolCalls(out chan<- StreamEvent, calls map[int]*accumulatedCall, order []int) {
	for _, idx := range order {
		acc := calls[idx]
		if acc.name == "" {
			continue
		}
		args := map[string]interface{}{}
		raw := acc.args.String()
		if raw != "" {
			if err := json.Unmarshal([]byte(raw), &args); err != nil {
				// Malformed arguments: suppress the event, the orchestrator
				// observes no tool call and finalizes the turn normally.
				continue
			}
		}
		out <- StreamEvent{
			Type: EventToolCall,
			ToolCall: &ToolCall{
				ID:        acc.id,
				Name:      acc.name,
				Arguments: args,
				RawArgs:   raw,
			},
		}
	}
}
