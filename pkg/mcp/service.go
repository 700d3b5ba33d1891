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

// Package mcp manages persistent connections to MCP (Model Context Protocol)
// tool servers over stdio, streamable HTTP, or SSE, and adapts their tool
// schemas into the shape the chat orchestrator consumes.
//
// A Service holds at most one persistent session per configured server for
// the life of the process: the first caller to touch a server pays the
// connect/initialize cost, every later caller reuses the same session. Tool
// schemas are cached alongside the session and invalidated when the session
// is closed.
package mcp

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/llamafarm/llamafarm-core/pkg/config"
)

// ToolDescriptor is one tool advertised by an MCP server's tools/list RPC.
type ToolDescriptor struct {
	Name        string
	Description string
	InputSchema map[string]interface{}
}

// session is the transport-independent contract a connected MCP server
// satisfies. stdioSession and httpSession are the two implementations;
// tests substitute a fake to avoid spawning processes or making network
// calls.
type session interface {
	ListTools(ctx context.Context) ([]ToolDescriptor, error)
	CallTool(ctx context.Context, name string, args map[string]interface{}) (string, error)
	Close() error
}

// dialFunc opens a new persistent session for a configured server.
// Implementations must clean up any partially-initialized resources (spawned
// process, opened connection) before returning an error.
type dialFunc func(ctx context.Context, cfg config.MCPServerConfig) (session, error)

type serverEntry struct {
	cfg config.MCPServerConfig

	mu    sync.Mutex
	sess  session
	tools []ToolDescriptor
}

// Service is the process-wide registry of configured MCP servers and their
// persistent sessions.
type Service struct {
	mu      sync.RWMutex
	entries map[string]*serverEntry
	dial    dialFunc
}

// NewService builds a Service over the given server configs, wired to the
// real stdio/HTTP/SSE transports.
func NewService(servers []config.MCPServerConfig) *Service {
	return newService(servers, dialTransport)
}

// NewServiceWithDialer builds a Service with a caller-supplied dialer,
// bypassing real process spawning and network I/O. Used by tests.
func NewServiceWithDialer(servers []config.MCPServerConfig, dial dialFunc) *Service {
	return newService(servers, dial)
}

func newService(servers []config.MCPServerConfig, dial dialFunc) *Service {
	entries := make(map[string]*serverEntry, len(servers))
	for _, s := range servers {
		entries[s.Name] = &serverEntry{cfg: s}
	}
	return &Service{entries: entries, dial: dial}
}

// ListServers returns the configured server names, sorted.
func (s *Service) ListServers() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.entries))
	for name := range s.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (s *Service) lookup(server string) (*serverEntry, error) {
	s.mu.RLock()
	entry, ok := s.entries[server]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("mcp: unknown server %q", server)
	}
	return entry, nil
}

// GetOrCreatePersistentSession returns the server's open session, dialing it
// on first use. Idempotent: concurrent callers for the same server block on
// the entry's lock rather than racing to dial twice.
func (s *Service) GetOrCreatePersistentSession(ctx context.Context, server string) (session, error) {
	entry, err := s.lookup(server)
	if err != nil {
		return nil, err
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	if entry.sess != nil {
		return entry.sess, nil
	}

	sess, err := s.dial(ctx, entry.cfg)
	if err != nil {
		return nil, fmt.Errorf("mcp: failed to initialize session for %q: %w", server, err)
	}
	entry.sess = sess
	return sess, nil
}

// ListTools opens a session for server if needed, calls tools/list, and
// caches the result until the session is closed.
func (s *Service) ListTools(ctx context.Context, server string) ([]ToolDescriptor, error) {
	entry, err := s.lookup(server)
	if err != nil {
		return nil, err
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	if entry.tools != nil {
		return entry.tools, nil
	}

	if entry.sess == nil {
		sess, err := s.dial(ctx, entry.cfg)
		if err != nil {
			return nil, fmt.Errorf("mcp: failed to initialize session for %q: %w", server, err)
		}
		entry.sess = sess
	}

	tools, err := entry.sess.ListTools(ctx)
	if err != nil {
		return nil, fmt.Errorf("mcp: tools/list failed for %q: %w", server, err)
	}
	entry.tools = tools
	return tools, nil
}

// CallTool invokes a named tool on server through its persistent session,
// dialing it first if it is not yet open.
func (s *Service) CallTool(ctx context.Context, server, tool string, args map[string]interface{}) (string, error) {
	sess, err := s.GetOrCreatePersistentSession(ctx, server)
	if err != nil {
		return "", err
	}
	result, err := sess.CallTool(ctx, tool, args)
	if err != nil {
		return "", fmt.Errorf("mcp: tool %q on server %q failed: %w", tool, server, err)
	}
	return result, nil
}

// ClosePersistentSession closes server's session, if open, and drops its
// cached tool list. Closing an already-closed or never-opened server is a
// no-op.
func (s *Service) ClosePersistentSession(server string) error {
	entry, err := s.lookup(server)
	if err != nil {
		return nil
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	if entry.sess == nil {
		return nil
	}
	err = entry.sess.Close()
	entry.sess = nil
	entry.tools = nil
	return err
}

// CloseAllPersistentSessions closes every open session. It keeps going on
// error so one stuck server cannot prevent the others from shutting down,
// returning the first error encountered.
func (s *Service) CloseAllPersistentSessions() error {
	var firstErr error
	for _, name := range s.ListServers() {
		if err := s.ClosePersistentSession(name); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
