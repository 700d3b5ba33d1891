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
	"log/slog"

	"github.com/llamafarm/llamafarm-core/pkg/llmclient"
)

// BoundTool pairs a llmclient.ToolDefinition (what the model sees) with a
// callable bound to the MCP server and persistent session that serve it.
type BoundTool struct {
	Definition llmclient.ToolDefinition

	call func(ctx context.Context, args map[string]interface{}) (string, error)
}

// Call invokes the tool through its originating MCP session.
func (b BoundTool) Call(ctx context.Context, args map[string]interface{}) (string, error) {
	return b.call(ctx, args)
}

// ToolFactory converts MCP tool descriptors into BoundTools the chat
// orchestrator can offer to a model.
type ToolFactory struct {
	service *Service
}

// NewToolFactory builds a factory over an already-configured Service.
func NewToolFactory(service *Service) *ToolFactory {
	return &ToolFactory{service: service}
}

// CreateToolsForServer lists server's tools (opening its session if needed)
// and binds each one to a callable that invokes it through the persistent
// session.
func (f *ToolFactory) CreateToolsForServer(ctx context.Context, server string) ([]BoundTool, error) {
	descriptors, err := f.service.ListTools(ctx, server)
	if err != nil {
		return nil, err
	}

	tools := make([]BoundTool, 0, len(descriptors))
	for _, d := range descriptors {
		name := d.Name
		tools = append(tools, BoundTool{
			Definition: llmclient.ToolDefinition{
				Name:        d.Name,
				Description: d.Description,
				Parameters:  d.InputSchema,
			},
			call: func(ctx context.Context, args map[string]interface{}) (string, error) {
				return f.service.CallTool(ctx, server, name, args)
			},
		})
	}
	return tools, nil
}

// CreateAllTools builds tools for every configured server. A server that
// fails to connect is logged and skipped rather than failing the whole
// call, matching how a single unavailable MCP server must not take down
// every other tool in the orchestrator's toolbox.
func (f *ToolFactory) CreateAllTools(ctx context.Context) []BoundTool {
	var all []BoundTool
	for _, name := range f.service.ListServers() {
		tools, err := f.CreateToolsForServer(ctx, name)
		if err != nil {
			slog.Warn("mcp: failed to create tools for server", "server", name, "error", err)
			continue
		}
		all = append(all, tools...)
	}
	return all
}
