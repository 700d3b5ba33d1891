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

package config

import (
	"fmt"
	"regexp"
)

// identifierPattern restricts name/namespace fields to path-separator-free identifiers.
var identifierPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]*$`)

// ProjectConfig is the root of a project's config.yaml (schema version v1).
type ProjectConfig struct {
	Version   string          `yaml:"version,omitempty" mapstructure:"version"`
	Name      string          `yaml:"name" mapstructure:"name"`
	Namespace string          `yaml:"namespace" mapstructure:"namespace"`
	Runtime   RuntimeConfig   `yaml:"runtime" mapstructure:"runtime"`
	Prompts   []PromptConfig  `yaml:"prompts,omitempty" mapstructure:"prompts"`
	RAG       *RAGConfig      `yaml:"rag,omitempty" mapstructure:"rag"`
	Datasets  []DatasetConfig `yaml:"datasets,omitempty" mapstructure:"datasets"`
	MCP       *MCPConfig      `yaml:"mcp,omitempty" mapstructure:"mcp"`
	Logger    LoggerConfig    `yaml:"logger,omitempty" mapstructure:"logger"`
}

// RuntimeConfig describes the set of models this project can route to.
type RuntimeConfig struct {
	DefaultModel string        `yaml:"default_model" mapstructure:"default_model"`
	Models       []ModelConfig `yaml:"models" mapstructure:"models"`
}

// ModelConfig is a model descriptor: created by config load, read-only at runtime.
type ModelConfig struct {
	Name     string   `yaml:"name" mapstructure:"name"`
	Provider string   `yaml:"provider" mapstructure:"provider"`
	Model    string   `yaml:"model" mapstructure:"model"`
	BaseURL  string   `yaml:"base_url,omitempty" mapstructure:"base_url"`
	APIKey   string   `yaml:"api_key,omitempty" mapstructure:"api_key"`
	Prompts  []string `yaml:"prompts,omitempty" mapstructure:"prompts"`

	Temperature float64 `yaml:"temperature,omitempty" mapstructure:"temperature"`
	MaxTokens   int     `yaml:"max_tokens,omitempty" mapstructure:"max_tokens"`
	Timeout     int     `yaml:"timeout,omitempty" mapstructure:"timeout"`
	MaxRetries  int     `yaml:"max_retries,omitempty" mapstructure:"max_retries"`
	RetryDelay  int     `yaml:"retry_delay,omitempty" mapstructure:"retry_delay"`

	// ContextWindow is the model's total token budget (prompt + history +
	// reply). The orchestrator trims persisted history so that leading
	// prompts, RAG context, and the new user message always fit within
	// ContextWindow-MaxTokens tokens.
	ContextWindow int `yaml:"context_window,omitempty" mapstructure:"context_window"`
}

// Providers recognized by the runtime.
const (
	ProviderOpenAI   = "openai"
	ProviderOllama   = "ollama"
	ProviderLemonade = "lemonade"
	ProviderUniversal = "universal"
)

var validProviders = map[string]bool{
	ProviderOpenAI:    true,
	ProviderOllama:    true,
	ProviderLemonade:  true,
	ProviderUniversal: true,
}

// PromptConfig is a named bundle of chat-template messages.
type PromptConfig struct {
	Name     string          `yaml:"name" mapstructure:"name"`
	Messages []PromptMessage `yaml:"messages" mapstructure:"messages"`
}

// PromptMessage is one role-tagged message in a prompt bundle.
type PromptMessage struct {
	Role    string `yaml:"role" mapstructure:"role"`
	Content string `yaml:"content" mapstructure:"content"`
}

var validPromptRoles = map[string]bool{
	"system": true, "user": true, "assistant": true,
	"developer": true, "tool": true, "function": true,
}

// RAGConfig describes retrieval databases and ingestion strategies available to this project.
type RAGConfig struct {
	Databases               []RAGDatabaseConfig `yaml:"databases,omitempty" mapstructure:"databases"`
	DataProcessingStrategies []RAGStrategyConfig `yaml:"data_processing_strategies,omitempty" mapstructure:"data_processing_strategies"`
}

// RAGDatabaseConfig names a retrieval collection the RAG collaborator can search.
type RAGDatabaseConfig struct {
	Name string `yaml:"name" mapstructure:"name"`
	Type string `yaml:"type,omitempty" mapstructure:"type"`
}

// RAGStrategyConfig names an ingestion/chunking strategy.
type RAGStrategyConfig struct {
	Name string `yaml:"name" mapstructure:"name"`
}

// DatasetConfig binds a dataset to a RAG database and processing strategy.
type DatasetConfig struct {
	Name                  string `yaml:"name" mapstructure:"name"`
	Database              string `yaml:"database" mapstructure:"database"`
	DataProcessingStrategy string `yaml:"data_processing_strategy,omitempty" mapstructure:"data_processing_strategy"`
}

// MCPConfig lists the MCP servers this project's orchestrator may use.
type MCPConfig struct {
	Servers []MCPServerConfig `yaml:"servers,omitempty" mapstructure:"servers"`
}

// Transport enumerates supported MCP transports.
type Transport string

const (
	TransportStdio Transport = "stdio"
	TransportHTTP  Transport = "http"
	TransportSSE   Transport = "sse"
)

// MCPServerConfig describes one MCP server entry.
type MCPServerConfig struct {
	Name      string            `yaml:"name" mapstructure:"name"`
	Transport Transport         `yaml:"transport" mapstructure:"transport"`
	Command   string            `yaml:"command,omitempty" mapstructure:"command"`
	Args      []string          `yaml:"args,omitempty" mapstructure:"args"`
	Env       map[string]string `yaml:"env,omitempty" mapstructure:"env"`
	BaseURL   string            `yaml:"base_url,omitempty" mapstructure:"base_url"`
	Headers   map[string]string `yaml:"headers,omitempty" mapstructure:"headers"`
}

// SetDefaults applies default values across the whole project config tree.
func (c *ProjectConfig) SetDefaults() {
	if c.Version == "" {
		c.Version = "v1"
	}
	c.Logger.SetDefaults()
	for i := range c.Runtime.Models {
		m := &c.Runtime.Models[i]
		if m.Provider == "" {
			m.Provider = ProviderOllama
		}
		if m.Temperature == 0 {
			m.Temperature = 0.7
		}
		if m.MaxTokens == 0 {
			m.MaxTokens = 1000
		}
		if m.Timeout == 0 {
			m.Timeout = 60
		}
		if m.MaxRetries == 0 {
			m.MaxRetries = 3
		}
		if m.RetryDelay == 0 {
			m.RetryDelay = 1
		}
		if m.ContextWindow == 0 {
			m.ContextWindow = 8192
		}
	}
}

// Validate checks the invariants named in the project config's data model:
// identifier shape, unique model names, a resolvable default model, and
// dataset references that resolve to configured databases/strategies.
func (c *ProjectConfig) Validate() error {
	if !identifierPattern.MatchString(c.Name) {
		return fmt.Errorf("invalid project name %q: must be a path-separator-free identifier", c.Name)
	}
	if !identifierPattern.MatchString(c.Namespace) {
		return fmt.Errorf("invalid namespace %q: must be a path-separator-free identifier", c.Namespace)
	}
	if err := c.Logger.Validate(); err != nil {
		return err
	}

	seenModels := make(map[string]bool, len(c.Runtime.Models))
	for _, m := range c.Runtime.Models {
		if m.Name == "" {
			return fmt.Errorf("runtime.models: model name cannot be empty")
		}
		if seenModels[m.Name] {
			return fmt.Errorf("runtime.models: duplicate model name %q", m.Name)
		}
		seenModels[m.Name] = true
		if !validProviders[m.Provider] {
			return fmt.Errorf("runtime.models[%s]: unsupported provider %q", m.Name, m.Provider)
		}
	}
	if c.Runtime.DefaultModel != "" && !seenModels[c.Runtime.DefaultModel] {
		return fmt.Errorf("runtime.default_model %q does not resolve to any runtime.models[] entry", c.Runtime.DefaultModel)
	}

	for _, p := range c.Prompts {
		for _, msg := range p.Messages {
			if !validPromptRoles[msg.Role] {
				return fmt.Errorf("prompts[%s]: invalid message role %q", p.Name, msg.Role)
			}
		}
	}

	for _, s := range c.mcpServers() {
		switch s.Transport {
		case TransportStdio:
			if s.Command == "" {
				return fmt.Errorf("mcp.servers[%s]: stdio transport requires command", s.Name)
			}
		case TransportHTTP, TransportSSE:
			if s.BaseURL == "" {
				return fmt.Errorf("mcp.servers[%s]: %s transport requires base_url", s.Name, s.Transport)
			}
		default:
			return fmt.Errorf("mcp.servers[%s]: unknown transport %q", s.Name, s.Transport)
		}
	}

	databases := make(map[string]bool)
	strategies := make(map[string]bool)
	if c.RAG != nil {
		for _, d := range c.RAG.Databases {
			databases[d.Name] = true
		}
		for _, s := range c.RAG.DataProcessingStrategies {
			strategies[s.Name] = true
		}
	}
	for _, ds := range c.Datasets {
		if !databases[ds.Database] {
			return fmt.Errorf("datasets[%s]: database %q does not resolve to any rag.databases[] entry", ds.Name, ds.Database)
		}
		if ds.DataProcessingStrategy != "" && !strategies[ds.DataProcessingStrategy] {
			return fmt.Errorf("datasets[%s]: data_processing_strategy %q does not resolve to any rag.data_processing_strategies[] entry", ds.Name, ds.DataProcessingStrategy)
		}
	}

	return nil
}

func (c *ProjectConfig) mcpServers() []MCPServerConfig {
	if c.MCP == nil {
		return nil
	}
	return c.MCP.Servers
}

// FindModel returns the model descriptor by name, if any.
func (c *ProjectConfig) FindModel(name string) (*ModelConfig, bool) {
	for i := range c.Runtime.Models {
		if c.Runtime.Models[i].Name == name {
			return &c.Runtime.Models[i], true
		}
	}
	return nil, false
}

// FindPrompt returns a named prompt bundle, if any.
func (c *ProjectConfig) FindPrompt(name string) (*PromptConfig, bool) {
	for i := range c.Prompts {
		if c.Prompts[i].Name == name {
			return &c.Prompts[i], true
		}
	}
	return nil, false
}
