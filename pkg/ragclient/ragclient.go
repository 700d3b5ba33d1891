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

// Package ragclient is a process-invoking adapter onto an external RAG
// (retrieval-augmented generation) subsystem. It does not implement
// retrieval itself; it shells out to a sibling search tool per query and
// merges the per-query result sets into one deterministic, deduplicated,
// top-k list.
package ragclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/llamafarm/llamafarm-core/pkg/config"
	"github.com/llamafarm/llamafarm-core/pkg/orchestrator"
)

// Client searches a project's RAG databases/datasets by invoking an external
// search tool once per query and merging the results. It implements
// orchestrator.RAGSearcher.
type Client struct {
	ragRepoDir       string
	runner           []string
	runTimeout       time.Duration
	jaccardThreshold float64
}

var _ orchestrator.RAGSearcher = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

// WithRAGRepoDir sets the working directory the search subprocess runs in —
// the checkout of the external RAG tool that exposes the search API this
// adapter invokes.
func WithRAGRepoDir(dir string) Option {
	return func(c *Client) { c.ragRepoDir = dir }
}

// WithRunner overrides the command used to invoke the search tool. The query
// program text is appended as the final argument. Defaults to
// []string{"uv", "run", "-q", "python", "-c"}.
func WithRunner(args ...string) Option {
	return func(c *Client) {
		if len(args) > 0 {
			c.runner = append([]string(nil), args...)
		}
	}
}

// WithRunTimeout bounds a single per-query subprocess invocation. Zero
// disables the timeout.
func WithRunTimeout(d time.Duration) Option {
	return func(c *Client) { c.runTimeout = d }
}

// WithJaccardThreshold sets the word-level Jaccard similarity at or above
// which two results are considered duplicates during merge.
func WithJaccardThreshold(threshold float64) Option {
	return func(c *Client) { c.jaccardThreshold = threshold }
}

// New builds a Client. Without WithRAGRepoDir, the subprocess runs in the
// caller's working directory.
func New(opts ...Option) *Client {
	c := &Client{
		runner:           []string{"uv", "run", "-q", "python", "-c"},
		runTimeout:       60 * time.Second,
		jaccardThreshold: 0.8,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// rawResult mirrors the JSON shape the search subprocess prints to stdout:
// a JSON array of per-chunk dicts.
type rawResult struct {
	Content  string                 `json:"content"`
	Score    float64                `json:"score"`
	Metadata map[string]interface{} `json:"metadata"`
}

type targetKind int

const (
	targetDataset targetKind = iota
	targetDatabase
)

// Search runs each query separately against target (resolved to a dataset or
// a rag.databases[] entry from the project's config), merges and
// deduplicates the combined result set, and truncates it to topK. An empty
// queries slice returns no results without invoking a subprocess.
func (c *Client) Search(ctx context.Context, projectDir string, queries []string, target string, topK int, strategy string) ([]orchestrator.RAGResult, error) {
	if len(queries) == 0 {
		return nil, nil
	}

	kind, err := c.resolveTargetKind(ctx, projectDir, target)
	if err != nil {
		return nil, err
	}

	var merged []orchestrator.RAGResult
	for _, q := range queries {
		raw := c.searchOnce(ctx, projectDir, kind, target, q, topK, strategy)
		for _, r := range raw {
			merged = append(merged, orchestrator.RAGResult{
				Content:  r.Content,
				Metadata: r.Metadata,
				Score:    r.Score,
			})
		}
	}

	return mergeDedup(merged, topK, c.jaccardThreshold), nil
}

// resolveTargetKind decides whether target names a datasets[] entry or a
// rag.databases[] entry by loading the project's config.
func (c *Client) resolveTargetKind(ctx context.Context, projectDir, target string) (targetKind, error) {
	cfgPath := filepath.Join(projectDir, "llamafarm.yaml")
	cfg, loader, err := config.LoadConfigFile(ctx, cfgPath)
	if err != nil {
		return 0, fmt.Errorf("ragclient: loading project config: %w", err)
	}
	defer loader.Close()

	for _, ds := range cfg.Datasets {
		if ds.Name == target {
			return targetDataset, nil
		}
	}
	if cfg.RAG != nil {
		for _, db := range cfg.RAG.Databases {
			if db.Name == target {
				return targetDatabase, nil
			}
		}
	}
	return 0, fmt.Errorf("ragclient: rag target %q not found among project datasets or databases", target)
}

// searchOnce invokes the search tool for a single query. Subprocess failures
// and malformed output are logged and treated as zero results, matching the
// external tool's own degrade-gracefully contract.
func (c *Client) searchOnce(ctx context.Context, projectDir string, kind targetKind, target, query string, topK int, strategy string) []rawResult {
	cfgPath := filepath.Join(projectDir, "llamafarm.yaml")

	var apiClass, targetKW string
	switch kind {
	case targetDataset:
		apiClass = "SearchAPI"
		targetKW = fmt.Sprintf("dataset=%q", target)
	case targetDatabase:
		apiClass = "DatabaseSearchAPI"
		targetKW = fmt.Sprintf("database=%q", target)
	}

	program := fmt.Sprintf(
		"from rag.api import %s;"+
			"api=%s(config_path=%q, %s);"+
			"res=api.search(query=%q, top_k=%d, retrieval_strategy=%q);"+
			"import json; print(json.dumps([r.to_dict() for r in res]))",
		apiClass, apiClass, cfgPath, targetKW, query, topK, strategy,
	)

	runCtx := ctx
	if c.runTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, c.runTimeout)
		defer cancel()
	}

	args := append(append([]string(nil), c.runner...), program)
	cmd := exec.CommandContext(runCtx, args[0], args[1:]...)
	cmd.Dir = c.ragRepoDir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		slog.Warn("ragclient: search subprocess failed", "target", target, "error", err, "stderr", strings.TrimSpace(stderr.String()))
		return nil
	}

	out := strings.TrimSpace(stdout.String())
	if out == "" {
		return nil
	}

	var raw []rawResult
	if err := json.Unmarshal([]byte(out), &raw); err != nil {
		slog.Warn("ragclient: failed to decode search output as JSON", "target", target, "error", err)
		return nil
	}
	return raw
}

// mergeDedup orders results by descending score, drops exact content
// repeats, then drops anything sufficiently similar (word-level Jaccard) to
// an already-kept result, and truncates to topK.
func mergeDedup(results []orchestrator.RAGResult, topK int, jaccardThreshold float64) []orchestrator.RAGResult {
	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })

	seenExact := make(map[string]bool, len(results))
	kept := make([]orchestrator.RAGResult, 0, len(results))

	for _, r := range results {
		if seenExact[r.Content] {
			continue
		}
		if isDuplicate(r.Content, kept, jaccardThreshold) {
			continue
		}
		seenExact[r.Content] = true
		kept = append(kept, r)
		if topK > 0 && len(kept) >= topK {
			break
		}
	}
	return kept
}

func isDuplicate(content string, kept []orchestrator.RAGResult, threshold float64) bool {
	for _, k := range kept {
		if jaccardSimilarity(content, k.Content) >= threshold {
			return true
		}
	}
	return false
}

// jaccardSimilarity scores word-level overlap between two strings in [0,1].
func jaccardSimilarity(a, b string) float64 {
	wa := wordSet(a)
	wb := wordSet(b)
	if len(wa) == 0 && len(wb) == 0 {
		return 1
	}

	intersection := 0
	for w := range wa {
		if wb[w] {
			intersection++
		}
	}
	union := len(wa) + len(wb) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

func wordSet(s string) map[string]bool {
	words := strings.Fields(strings.ToLower(s))
	set := make(map[string]bool, len(words))
	for _, w := range words {
		set[w] = true
	}
	return set
}
