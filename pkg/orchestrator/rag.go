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
	"context"
	"fmt"
	"strings"
)

// RAGResult is one retrieved chunk a RAGSearcher returns, ready to be
// injected as context for a chat turn.
type RAGResult struct {
	Content  string
	Metadata map[string]interface{}
	Score    float64
}

// RAGParams controls one turn's retrieval. Queries, when empty, tells the
// orchestrator to search with the user's message as a single query instead
// of a caller-supplied rag_queries[] list.
type RAGParams struct {
	Queries  []string
	Target   string // a rag.databases[] name or a datasets[] name
	TopK     int
	Strategy string
}

// RAGSearcher is the orchestrator's external-collaborator interface onto the
// RAG subsystem. Concrete implementations own query execution AND the
// merge/dedup/truncate-to-top-k behavior described for multi-query
// retrieval; the orchestrator only ever issues one Search call per turn and
// treats the result as already finalized.
type RAGSearcher interface {
	Search(ctx context.Context, projectDir string, queries []string, target string, topK int, strategy string) ([]RAGResult, error)
}

// formatRAGContext renders retrieved chunks into a single system-role
// message injected ahead of the user's turn.
func formatRAGContext(results []RAGResult) string {
	if len(results) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("Relevant context:\n")
	for i, r := range results {
		fmt.Fprintf(&sb, "[%d] %s\n", i+1, r.Content)
	}
	return sb.String()
}
