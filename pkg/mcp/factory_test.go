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
	"fmt"
	"testing"

	"github.com/llamafarm/llamafarm-core/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToolFactory_CreateToolsForServerBindsCallable(t *testing.T) {
	fake := &fakeSession{
		tools: []ToolDescriptor{
			{Name: "search_docs", Description: "search the docs", InputSchema: map[string]interface{}{"type": "object"}},
		},
		callResult: "found 3 results",
	}
	service := NewServiceWithDialer(testServers(), func(ctx context.Context, cfg config.MCPServerConfig) (session, error) {
		return fake, nil
	})
	factory := NewToolFactory(service)

	tools, err := factory.CreateToolsForServer(context.Background(), "search")
	require.NoError(t, err)
	require.Len(t, tools, 1)

	def := tools[0].Definition
	assert.Equal(t, "search_docs", def.Name)
	assert.Equal(t, "search the docs", def.Description)
	assert.Equal(t, map[string]interface{}{"type": "object"}, def.Parameters)

	result, err := tools[0].Call(context.Background(), map[string]interface{}{"query": "x"})
	require.NoError(t, err)
	assert.Equal(t, "found 3 results", result)
}

func TestToolFactory_CreateAllToolsSkipsFailingServer(t *testing.T) {
	healthy := &fakeSession{tools: []ToolDescriptor{{Name: "get_weather"}}}
	service := NewServiceWithDialer(testServers(), func(ctx context.Context, cfg config.MCPServerConfig) (session, error) {
		if cfg.Name == "search" {
			return nil, fmt.Errorf("search server unreachable")
		}
		return healthy, nil
	})
	factory := NewToolFactory(service)

	tools := factory.CreateAllTools(context.Background())
	require.Len(t, tools, 1)
	assert.Equal(t, "get_weather", tools[0].Definition.Name)
}

func TestToolFactory_CreateAllToolsEmptyWhenNoServers(t *testing.T) {
	service := NewServiceWithDialer(nil, func(ctx context.Context, cfg config.MCPServerConfig) (session, error) {
		return &fakeSession{}, nil
	})
	factory := NewToolFactory(service)
	assert.Empty(t, factory.CreateAllTools(context.Background()))
}
