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
	"sync/atomic"
	"testing"

	"github.com/llamafarm/llamafarm-core/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSession struct {
	dialCount  *int32
	closed     bool
	listCalls  int
	tools      []ToolDescriptor
	listErr    error
	callResult string
	callErr    error
}

func (f *fakeSession) ListTools(ctx context.Context) ([]ToolDescriptor, error) {
	f.listCalls++
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.tools, nil
}

func (f *fakeSession) CallTool(ctx context.Context, name string, args map[string]interface{}) (string, error) {
	if f.callErr != nil {
		return "", f.callErr
	}
	return f.callResult, nil
}

func (f *fakeSession) Close() error {
	f.closed = true
	return nil
}

func testServers() []config.MCPServerConfig {
	return []config.MCPServerConfig{
		{Name: "search", Transport: config.TransportStdio, Command: "search-server"},
		{Name: "weather", Transport: config.TransportHTTP, BaseURL: "http://localhost:9000"},
	}
}

func newCountingDialer(sess *fakeSession) (dialFunc, *int32) {
	var count int32
	return func(ctx context.Context, cfg config.MCPServerConfig) (session, error) {
		atomic.AddInt32(&count, 1)
		return sess, nil
	}, &count
}

func TestService_ListServersIsSortedByName(t *testing.T) {
	s := NewServiceWithDialer(testServers(), func(ctx context.Context, cfg config.MCPServerConfig) (session, error) {
		return &fakeSession{}, nil
	})
	assert.Equal(t, []string{"search", "weather"}, s.ListServers())
}

func TestService_GetOrCreatePersistentSessionDialsOnce(t *testing.T) {
	dial, count := newCountingDialer(&fakeSession{})
	s := NewServiceWithDialer(testServers(), dial)

	sess1, err := s.GetOrCreatePersistentSession(context.Background(), "search")
	require.NoError(t, err)
	sess2, err := s.GetOrCreatePersistentSession(context.Background(), "search")
	require.NoError(t, err)

	assert.Same(t, sess1, sess2)
	assert.EqualValues(t, 1, atomic.LoadInt32(count))
}

func TestService_GetOrCreatePersistentSessionUnknownServer(t *testing.T) {
	s := NewServiceWithDialer(testServers(), func(ctx context.Context, cfg config.MCPServerConfig) (session, error) {
		return &fakeSession{}, nil
	})
	_, err := s.GetOrCreatePersistentSession(context.Background(), "ghost")
	assert.Error(t, err)
}

func TestService_ListToolsCachesUntilSessionClosed(t *testing.T) {
	fake := &fakeSession{tools: []ToolDescriptor{{Name: "lookup"}}}
	dial, count := newCountingDialer(fake)
	s := NewServiceWithDialer(testServers(), dial)

	tools1, err := s.ListTools(context.Background(), "search")
	require.NoError(t, err)
	tools2, err := s.ListTools(context.Background(), "search")
	require.NoError(t, err)

	assert.Equal(t, tools1, tools2)
	assert.Equal(t, 1, fake.listCalls)
	assert.EqualValues(t, 1, atomic.LoadInt32(count))

	require.NoError(t, s.ClosePersistentSession("search"))
	assert.True(t, fake.closed)

	_, err = s.ListTools(context.Background(), "search")
	require.NoError(t, err)
	assert.Equal(t, 2, fake.listCalls)
	assert.EqualValues(t, 2, atomic.LoadInt32(count))
}

func TestService_CallToolRoutesThroughSession(t *testing.T) {
	fake := &fakeSession{callResult: "42 degrees"}
	s := NewServiceWithDialer(testServers(), func(ctx context.Context, cfg config.MCPServerConfig) (session, error) {
		return fake, nil
	})

	result, err := s.CallTool(context.Background(), "weather", "get_temp", map[string]interface{}{"city": "nyc"})
	require.NoError(t, err)
	assert.Equal(t, "42 degrees", result)
}

func TestService_DialFailureIsNotCached(t *testing.T) {
	attempts := 0
	s := NewServiceWithDialer(testServers(), func(ctx context.Context, cfg config.MCPServerConfig) (session, error) {
		attempts++
		return nil, fmt.Errorf("connection refused")
	})

	_, err := s.GetOrCreatePersistentSession(context.Background(), "search")
	assert.Error(t, err)
	_, err = s.GetOrCreatePersistentSession(context.Background(), "search")
	assert.Error(t, err)
	assert.Equal(t, 2, attempts)
}

func TestService_CloseAllPersistentSessions(t *testing.T) {
	searchSession := &fakeSession{}
	weatherSession := &fakeSession{}
	s := NewServiceWithDialer(testServers(), func(ctx context.Context, cfg config.MCPServerConfig) (session, error) {
		if cfg.Name == "search" {
			return searchSession, nil
		}
		return weatherSession, nil
	})

	_, err := s.GetOrCreatePersistentSession(context.Background(), "search")
	require.NoError(t, err)
	_, err = s.GetOrCreatePersistentSession(context.Background(), "weather")
	require.NoError(t, err)

	require.NoError(t, s.CloseAllPersistentSessions())
	assert.True(t, searchSession.closed)
	assert.True(t, weatherSession.closed)
}

func TestService_ClosePersistentSessionOnNeverOpenedServerIsNoop(t *testing.T) {
	s := NewServiceWithDialer(testServers(), func(ctx context.Context, cfg config.MCPServerConfig) (session, error) {
		return &fakeSession{}, nil
	})
	assert.NoError(t, s.ClosePersistentSession("search"))
}
