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

package ragclient

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/llamafarm/llamafarm-core/pkg/orchestrator"
)

const testProjectYAML = `
name: demo
namespace: default
runtime:
  default_model: chat
  models:
    - name: chat
      provider: ollama
      model: qwen3:8b
rag:
  databases:
    - name: support-db
      type: chroma
datasets:
  - name: support-docs
    database: support-db
`

func writeTestProject(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "llamafarm.yaml"), []byte(testProjectYAML), 0o644))
	return dir
}

// echoRunner builds a fake search-tool runner that ignores whatever program
// text ragclient appends and always prints the given JSON to stdout.
func echoRunner(json string) []string {
	return []string{"sh", "-c", "echo " + shellQuote(json), "--"}
}

func shellQuote(s string) string {
	return "'" + s + "'"
}

func failingRunner() []string {
	return []string{"sh", "-c", "exit 1", "--"}
}

func TestClient_Search_DatasetTarget(t *testing.T) {
	dir := writeTestProject(t)
	c := New(WithRunner(echoRunner(`[{"content":"chunk one","score":0.9,"metadata":{"doc":"a"}}]`)...))

	results, err := c.Search(context.Background(), dir, []string{"how do I reset my password"}, "support-docs", 5, "")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "chunk one", results[0].Content)
	assert.Equal(t, 0.9, results[0].Score)
	assert.Equal(t, "a", results[0].Metadata["doc"])
}

func TestClient_Search_DatabaseTarget(t *testing.T) {
	dir := writeTestProject(t)
	c := New(WithRunner(echoRunner(`[{"content":"chunk two","score":0.5,"metadata":{}}]`)...))

	results, err := c.Search(context.Background(), dir, []string{"query"}, "support-db", 5, "")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "chunk two", results[0].Content)
}

func TestClient_Search_UnknownTarget(t *testing.T) {
	dir := writeTestProject(t)
	c := New(WithRunner(echoRunner(`[]`)...))

	_, err := c.Search(context.Background(), dir, []string{"query"}, "ghost", 5, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestClient_Search_NoQueriesReturnsEmptyWithoutSubprocess(t *testing.T) {
	dir := writeTestProject(t)
	c := New(WithRunner(failingRunner()...))

	results, err := c.Search(context.Background(), dir, nil, "support-docs", 5, "")
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestClient_Search_SubprocessFailureYieldsEmptyNotError(t *testing.T) {
	dir := writeTestProject(t)
	c := New(WithRunner(failingRunner()...))

	results, err := c.Search(context.Background(), dir, []string{"query"}, "support-docs", 5, "")
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestClient_Search_MergesAndDedupsAcrossQueries(t *testing.T) {
	dir := writeTestProject(t)
	// Same two chunks returned for every query; with two queries the raw
	// result set has four entries that must collapse to two.
	c := New(WithRunner(echoRunner(`[{"content":"alpha chunk text","score":0.8,"metadata":{}},{"content":"beta chunk text","score":0.6,"metadata":{}}]`)...))

	results, err := c.Search(context.Background(), dir, []string{"q1", "q2"}, "support-docs", 10, "")
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "alpha chunk text", results[0].Content)
	assert.Equal(t, "beta chunk text", results[1].Content)
}

func TestClient_Search_TruncatesToTopK(t *testing.T) {
	dir := writeTestProject(t)
	c := New(WithRunner(echoRunner(`[{"content":"one","score":0.9,"metadata":{}},{"content":"two","score":0.8,"metadata":{}},{"content":"three","score":0.7,"metadata":{}}]`)...))

	results, err := c.Search(context.Background(), dir, []string{"q"}, "support-docs", 2, "")
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "one", results[0].Content)
	assert.Equal(t, "two", results[1].Content)
}

func TestMergeDedup_JaccardCollapsesNearDuplicates(t *testing.T) {
	results := []orchestrator.RAGResult{
		{Content: "the quick brown fox jumps", Score: 0.9},
		{Content: "the quick brown fox leaps", Score: 0.5},
	}
	merged := mergeDedup(results, 10, 0.6)
	assert.Len(t, merged, 1)
	assert.Equal(t, "the quick brown fox jumps", merged[0].Content)
}

func TestJaccardSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, jaccardSimilarity("a b c", "a b c"), 0.0001)
	assert.Equal(t, 0.0, jaccardSimilarity("a b", "c d"))
	assert.Greater(t, jaccardSimilarity("a b c", "a b d"), 0.0)
}
