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
	"context"
	"encoding/json"
	"fmt"
	"strings"

	mcpclient "github.com/mark3labs/mcp-go/client"
	mcpsdk "github.com/mark3labs/mcp-go/mcp"

	"github.com/llamafarm/llamafarm-core/pkg/config"
)

const protocolVersion = "2024-11-05"

// stdioSession wraps a subprocess MCP server speaking JSON-RPC over its
// stdin/stdout, via mark3labs/mcp-go's client.
type stdioSession struct {
	client *mcpclient.Client
}

func dialStdio(ctx context.Context, cfg config.MCPServerConfig) (session, error) {
	client, err := mcpclient.NewStdioMCPClient(cfg.Command, envPairs(cfg.Env), cfg.Args...)
	if err != nil {
		return nil, fmt.Errorf("create stdio client: %w", err)
	}

	if err := client.Start(ctx); err != nil {
		return nil, fmt.Errorf("start stdio client: %w", err)
	}

	initReq := mcpsdk.InitializeRequest{}
	initReq.Params.ClientInfo = mcpsdk.Implementation{Name: "llamafarmd", Version: "1.0.0"}
	initReq.Params.ProtocolVersion = protocolVersion

	if _, err := client.Initialize(ctx, initReq); err != nil {
		client.Close()
		return nil, fmt.Errorf("initialize stdio session: %w", err)
	}

	return &stdioSession{client: client}, nil
}

func (s *stdioSession) ListTools(ctx context.Context) ([]ToolDescriptor, error) {
	resp, err := s.client.ListTools(ctx, mcpsdk.ListToolsRequest{})
	if err != nil {
		return nil, err
	}

	descriptors := make([]ToolDescriptor, 0, len(resp.Tools))
	for _, t := range resp.Tools {
		descriptors = append(descriptors, ToolDescriptor{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: convertInputSchema(t.InputSchema),
		})
	}
	return descriptors, nil
}

func (s *stdioSession) CallTool(ctx context.Context, name string, args map[string]interface{}) (string, error) {
	req := mcpsdk.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args

	resp, err := s.client.CallTool(ctx, req)
	if err != nil {
		return "", err
	}
	return textFromContent(resp.Content, resp.IsError)
}

func (s *stdioSession) Close() error {
	return s.client.Close()
}

func envPairs(env map[string]string) []string {
	if len(env) == 0 {
		return nil
	}
	pairs := make([]string, 0, len(env))
	for k, v := range env {
		pairs = append(pairs, fmt.Sprintf("%s=%s", k, v))
	}
	return pairs
}

// convertInputSchema round-trips the SDK's typed schema through JSON to get
// the plain map[string]interface{} shape llmclient.ToolDefinition.Parameters
// expects.
func convertInputSchema(schema mcpsdk.ToolInputSchema) map[string]interface{} {
	data, err := json.Marshal(schema)
	if err != nil {
		return nil
	}
	var result map[string]interface{}
	if err := json.Unmarshal(data, &result); err != nil {
		return nil
	}
	return result
}

func textFromContent(content []mcpsdk.Content, isError bool) (string, error) {
	var sb strings.Builder
	for _, c := range content {
		if tc, ok := c.(mcpsdk.TextContent); ok {
			sb.WriteString(tc.Text)
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
