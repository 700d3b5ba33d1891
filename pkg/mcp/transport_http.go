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

package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/llamafarm/llamafarm-core/pkg/config"
	"github.com/llamafarm/llamafarm-core/pkg/httpclient"
)

// defaultSSEResponseTimeout accommodates long-running tool calls (document
// parsing, OCR) that may take minutes to stream a single response.
const defaultSSEResponseTimeout = 5 * time.Minute

type rpcRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      int         `json:"id"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params,omitempty"`
}

type rpcResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      int         `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *rpcError   `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// httpSession speaks MCP JSON-RPC over streamable HTTP or SSE. The two
// transports share a request/response cycle: only the response Content-Type
// differs (plain JSON vs. text/event-stream).
type httpSession struct {
	name       string
	url        string
	headers    map[string]string
	httpClient *httpclient.Client

	sessionMu sync.RWMutex
	sessionID string
}

func dialHTTP(ctx context.Context, cfg config.MCPServerConfig) (session, error) {
	s := &httpSession{
		name:    cfg.Name,
		url:     cfg.BaseURL,
		headers: cfg.Headers,
		httpClient: httpclient.New(
			httpclient.WithHTTPClient(&http.Client{Timeout: 30 * time.Second}),
			httpclient.WithMaxRetries(3),
			httpclient.WithBaseDelay(2*time.Second),
		),
	}

	resp, err := s.request(ctx, "initialize", map[string]interface{}{
		"protocolVersion": protocolVersion,
		"capabilities":    map[string]interface{}{},
		"clientInfo": map[string]interface{}{
			"name":    "llamafarmd",
			"version": "1.0.0",
		},
	})
	if err != nil {
		return nil, fmt.Errorf("initialize %s session: %w", cfg.Transport, err)
	}
	if resp.Error != nil {
		return nil, fmt.Errorf("initialize %s session: %s", cfg.Transport, resp.Error.Message)
	}
	return s, nil
}

func (s *httpSession) ListTools(ctx context.Context) ([]ToolDescriptor, error) {
	resp, err := s.request(ctx, "tools/list", map[string]interface{}{})
	if err != nil {
		return nil, err
	}
	if resp.Error != nil {
		return nil, fmt.Errorf("tools/list: %s", resp.Error.Message)
	}

	result, ok := resp.Result.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("tools/list: unexpected result shape")
	}
	rawTools, ok := result["tools"].([]interface{})
	if !ok {
		return nil, nil
	}

	descriptors := make([]ToolDescriptor, 0, len(rawTools))
	for _, raw := range rawTools {
		item, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		descriptor := ToolDescriptor{
			Name:        stringField(item, "name"),
			Description: stringField(item, "description"),
		}
		if schema, ok := item["inputSchema"].(map[string]interface{}); ok {
			descriptor.InputSchema = schema
		}
		descriptors = append(descriptors, descriptor)
	}
	return descriptors, nil
}

func (s *httpSession) CallTool(ctx context.Context, name string, args map[string]interface{}) (string, error) {
	resp, err := s.request(ctx, "tools/call", map[string]interface{}{
		"name":      name,
		"arguments": args,
	})
	if err != nil {
		return "", err
	}
	if resp.Error != nil {
		return "", fmt.Errorf("%s", resp.Error.Message)
	}

	result, ok := resp.Result.(map[string]interface{})
	if !ok {
		return "", nil
	}

	isError, _ := result["isError"].(bool)
	content, _ := result["content"].([]interface{})

	var sb strings.Builder
	for _, item := range content {
		entry, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		if text, ok := entry["text"].(string); ok {
			sb.WriteString(text)
		}
	}
	text := sb.String()
	if isError {
		if text == "" {
			text = "mcp tool reported an error"
		}
		return "", fmt.Errorf("%s", text)
	}
	return text, nil
}

func (s *httpSession) Close() error {
	return nil
}

func (s *httpSession) request(ctx context.Context, method string, params interface{}) (*rpcResponse, error) {
	reqBody := rpcRequest{JSONRPC: "2.0", ID: 1, Method: method, Params: params}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, strings.NewReader(string(body)))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json, text/event-stream")
	for k, v := range s.headers {
		httpReq.Header.Set(k, v)
	}

	s.sessionMu.RLock()
	sessionID := s.sessionID
	s.sessionMu.RUnlock()
	if sessionID != "" {
		httpReq.Header.Set("mcp-session-id", sessionID)
	}

	httpResp, err := s.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer httpResp.Body.Close()

	if newSessionID := httpResp.Header.Get("mcp-session-id"); newSessionID != "" {
		s.sessionMu.Lock()
		s.sessionID = newSessionID
		s.sessionMu.Unlock()
	}

	if httpResp.StatusCode != http.StatusOK {
		responseBody, _ := io.ReadAll(httpResp.Body)
		return nil, fmt.Errorf("HTTP error %d: %s (response: %s)", httpResp.StatusCode, httpResp.Status, string(responseBody))
	}

	if strings.Contains(httpResp.Header.Get("Content-Type"), "text/event-stream") {
		return readSSEResponse(s.name, httpResp)
	}

	responseBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	var resp rpcResponse
	if err := json.Unmarshal(responseBody, &resp); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	return &resp, nil
}

// readSSEResponse reads an SSE body until the first complete JSON-RPC
// message, manually framing events (bufio.Reader.ReadBytes, never
// bufio.Scanner, whose 64KiB line ceiling would truncate large tool
// results).
func readSSEResponse(source string, httpResp *http.Response) (*rpcResponse, error) {
	type outcome struct {
		resp *rpcResponse
		err  error
	}
	resultChan := make(chan outcome, 1)

	go func() {
		defer httpResp.Body.Close()
		reader := bufio.NewReader(httpResp.Body)
		var data strings.Builder

		for {
			line, err := reader.ReadBytes('\n')
			if err != nil {
				if err != io.EOF {
					slog.Debug("mcp: SSE read error", "source", source, "error", err)
				}
				break
			}
			lineStr := strings.TrimSpace(string(line))

			if lineStr == "" {
				if data.Len() > 0 {
					if resp, ok := parseSSEData(data.String()); ok {
						resultChan <- outcome{resp: resp}
						return
					}
					data.Reset()
				}
				continue
			}
			if strings.HasPrefix(lineStr, "data:") {
				data.WriteString(strings.TrimSpace(strings.TrimPrefix(lineStr, "data:")))
			}
		}

		if data.Len() > 0 {
			if resp, ok := parseSSEData(data.String()); ok {
				resultChan <- outcome{resp: resp}
				return
			}
		}
		resultChan <- outcome{err: fmt.Errorf("SSE stream ended without a complete message")}
	}()

	select {
	case res := <-resultChan:
		return res.resp, res.err
	case <-time.After(defaultSSEResponseTimeout):
		return nil, fmt.Errorf("timeout reading SSE response after %v", defaultSSEResponseTimeout)
	}
}

func parseSSEData(jsonData string) (*rpcResponse, bool) {
	var resp rpcResponse
	if err := json.Unmarshal([]byte(jsonData), &resp); err != nil {
		return nil, false
	}
	return &resp, true
}

func stringField(m map[string]interface{}, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}
