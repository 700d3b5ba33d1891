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

package orchestrator

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/llamafarm/llamafarm-core/pkg/llmclient"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHistory_DisabledWithoutSessionID(t *testing.T) {
	h := newHistory(t.TempDir(), "")
	assert.False(t, h.enabled())

	turns, err := h.load()
	require.NoError(t, err)
	assert.Nil(t, turns)
	require.NoError(t, h.persist([]llmclient.Message{{Role: "user", Content: "hi"}}))
}

func TestHistory_LoadMissingFileIsNotError(t *testing.T) {
	h := newHistory(t.TempDir(), "sess-1")
	turns, err := h.load()
	require.NoError(t, err)
	assert.Nil(t, turns)
}

func TestHistory_PersistThenLoadRoundTrips(t *testing.T) {
	dir := t.TempDir()
	h := newHistory(dir, "sess-1")
	turns := []llmclient.Message{
		{Role: llmclient.RoleUser, Content: "hi"},
		{Role: llmclient.RoleAssistant, Content: "hello"},
	}
	require.NoError(t, h.persist(turns))

	path := filepath.Join(dir, "sessions", "sess-1", "history.json")
	_, err := os.Stat(path)
	require.NoError(t, err, "history file must exist at the expected path")

	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err), "temp file must be renamed away, not left behind")

	loaded, err := h.load()
	require.NoError(t, err)
	assert.Equal(t, turns, loaded)
}

func TestHistory_LoadCorruptFileStartsFresh(t *testing.T) {
	dir := t.TempDir()
	h := newHistory(dir, "sess-1")
	require.NoError(t, os.MkdirAll(filepath.Dir(h.path), 0o755))
	require.NoError(t, os.WriteFile(h.path, []byte("not json"), 0o644))

	turns, err := h.load()
	require.NoError(t, err)
	assert.Nil(t, turns)
}

func TestHistory_Reset(t *testing.T) {
	dir := t.TempDir()
	h := newHistory(dir, "sess-1")
	require.NoError(t, h.persist([]llmclient.Message{{Role: llmclient.RoleUser, Content: "hi"}}))

	require.NoError(t, h.reset())
	turns, err := h.load()
	require.NoError(t, err)
	assert.Nil(t, turns)

	// resetting an already-clear history is a no-op, not an error.
	require.NoError(t, h.reset())
}
