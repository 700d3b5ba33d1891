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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *ProjectConfig {
	cfg := &ProjectConfig{
		Name:      "demo",
		Namespace: "default",
		Runtime: RuntimeConfig{
			DefaultModel: "chat",
			Models: []ModelConfig{
				{Name: "chat", Provider: ProviderOllama, Model: "qwen3:8b"},
			},
		},
	}
	cfg.SetDefaults()
	return cfg
}

func TestValidate_DefaultModelMustResolve(t *testing.T) {
	cfg := testConfig()
	cfg.Runtime.DefaultModel = "missing"
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "default_model")
}

func TestValidate_DuplicateModelNames(t *testing.T) {
	cfg := testConfig()
	cfg.Runtime.Models = append(cfg.Runtime.Models, ModelConfig{Name: "chat", Provider: ProviderOpenAI})
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate model name")
}

func TestValidate_DatasetMustResolveDatabase(t *testing.T) {
	cfg := testConfig()
	cfg.Datasets = []DatasetConfig{{Name: "docs", Database: "missing"}}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not resolve")
}

func TestManipulator_ApplyChange(t *testing.T) {
	cfg := testConfig()
	m, err := NewManipulator(cfg, func() string { return "t0" })
	require.NoError(t, err)

	change, err := m.ApplyChange("runtime.default_model", "chat", "noop rename")
	require.NoError(t, err)
	assert.Equal(t, ChangeUpdate, change.ChangeType)

	updated, err := m.CurrentConfig()
	require.NoError(t, err)
	assert.Equal(t, "chat", updated.Runtime.DefaultModel)
}

func TestManipulator_ApplyChangeRejectsInvalid(t *testing.T) {
	cfg := testConfig()
	m, err := NewManipulator(cfg, nil)
	require.NoError(t, err)

	_, err = m.ApplyChange("runtime.default_model", "does-not-exist", "")
	require.Error(t, err)
}

func TestManipulator_ApplyChangesetRollsBackOnFailure(t *testing.T) {
	cfg := testConfig()
	m, err := NewManipulator(cfg, func() string { return "t0" })
	require.NoError(t, err)

	before, err := m.CurrentConfig()
	require.NoError(t, err)

	cs := ConfigChangeSet{
		Description: "bad batch",
		Changes: []ConfigChange{
			{FieldPath: "name", NewValue: "renamed"},
			{FieldPath: "runtime.default_model", NewValue: "does-not-exist"},
		},
	}
	err = m.ApplyChangeset(cs)
	require.Error(t, err)

	after, err := m.CurrentConfig()
	require.NoError(t, err)
	assert.Equal(t, before.Name, after.Name)
}

func TestManipulator_GetChangesDiffsAgainstOriginal(t *testing.T) {
	cfg := testConfig()
	m, err := NewManipulator(cfg, func() string { return "t0" })
	require.NoError(t, err)

	_, err = m.ApplyChange("name", "renamed", "")
	require.NoError(t, err)

	changes := m.GetChanges()
	require.NotEmpty(t, changes)

	found := false
	for _, c := range changes {
		if c.FieldPath == "name" {
			found = true
			assert.Equal(t, ChangeUpdate, c.ChangeType)
			assert.Equal(t, "renamed", c.NewValue)
		}
	}
	assert.True(t, found, "expected a change for field path 'name'")
}

func TestSplitPath(t *testing.T) {
	segs, err := splitPath("rag.databases[0].name")
	require.NoError(t, err)
	require.Len(t, segs, 4)
	assert.Equal(t, "rag", segs[0].key)
	assert.Equal(t, "databases", segs[1].key)
	assert.Equal(t, "0", segs[2].key)
	assert.Equal(t, "name", segs[3].key)
}
