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

package api

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/llamafarm/llamafarm-core/pkg/utils"
)

// queryRequest mirrors rag_query.py's QueryRequest: a free-text query plus
// an optional retrieval strategy override and top_k. Fields the original
// accepts but this module has no parameter for (score_threshold,
// metadata_filters, distance_metric, hybrid_alpha, rerank_model,
// query_expansion, max_tokens) are the retrieval collaborator's concern,
// reached only through RAGSearcher's Search signature, not this router's.
type queryRequest struct {
	Query             string `json:"query"`
	RetrievalStrategy string `json:"retrieval_strategy,omitempty"`
	TopK              int    `json:"top_k,omitempty"`
}

type queryResult struct {
	Content    string                 `json:"content"`
	Score      float64                `json:"score"`
	Metadata   map[string]interface{} `json:"metadata"`
	ChunkID    string                 `json:"chunk_id,omitempty"`
	DocumentID string                 `json:"document_id,omitempty"`
}

type queryResponse struct {
	Query                string        `json:"query"`
	Results              []queryResult `json:"results"`
	TotalResults         int           `json:"total_results"`
	ProcessingTimeMS     float64       `json:"processing_time_ms"`
	RetrievalStrategyUsed string       `json:"retrieval_strategy_used"`
	DatabaseUsed         string        `json:"database_used"`
}

func (s *Server) handleRAGQuery(w http.ResponseWriter, r *http.Request) {
	if s.rag == nil {
		writeError(w, http.StatusNotImplemented, fmt.Errorf("api: no RAG collaborator configured"))
		return
	}

	namespace := chi.URLParam(r, "namespace")
	project := chi.URLParam(r, "project")
	database := chi.URLParam(r, "database")
	projectDir, err := s.projectDir(namespace, project)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	var req queryRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("api: malformed request body: %w", err))
		return
	}
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("api: query is required"))
		return
	}
	topK := req.TopK
	if topK <= 0 {
		topK = 5
	}

	start := time.Now()
	results, err := s.rag.Search(r.Context(), projectDir, []string{req.Query}, database, topK, req.RetrievalStrategy)
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Errorf("api: RAG query failed: %w", err))
		return
	}
	elapsed := time.Since(start)

	out := make([]queryResult, len(results))
	for i, res := range results {
		qr := queryResult{Content: res.Content, Score: res.Score, Metadata: res.Metadata}
		if v, ok := res.Metadata["chunk_id"].(string); ok {
			qr.ChunkID = v
		}
		if v, ok := res.Metadata["document_id"].(string); ok {
			qr.DocumentID = v
		}
		out[i] = qr
	}

	writeJSON(w, http.StatusOK, queryResponse{
		Query:                 req.Query,
		Results:               out,
		TotalResults:          len(out),
		ProcessingTimeMS:      float64(elapsed.Microseconds()) / 1000.0,
		RetrievalStrategyUsed: req.RetrievalStrategy,
		DatabaseUsed:          database,
	})
}

// PreviewService renders a document's parsed text and chunk boundaries
// without ingesting it into a vector store. Document parsing and chunking
// strategy execution live in the same external RAG subsystem reached by
// orchestrator.RAGSearcher, not in this module — a caller wires a
// process-invoking adapter here the way pkg/ragclient wires retrieval.
type PreviewService interface {
	Preview(ctx context.Context, params PreviewParams) (*PreviewResult, error)
}

// PreviewParams names the file to preview and the chunking settings to
// preview it with. Grounded on rag/preview.py's DocumentPreviewRequest.
type PreviewParams struct {
	ProjectDir              string
	FilePath                string
	OriginalFilename        string
	Database                string
	DataProcessingStrategy  string
	ChunkSize               int
	ChunkOverlap            int
	ChunkStrategy           string
}

// PreviewChunk is one chunk boundary within a previewed document.
type PreviewChunk struct {
	Index         int                    `json:"chunk_index"`
	Content       string                 `json:"content"`
	StartPosition int                    `json:"start_position"`
	EndPosition   int                    `json:"end_position"`
	CharCount     int                    `json:"char_count"`
	WordCount     int                    `json:"word_count"`
	Metadata      map[string]interface{} `json:"metadata,omitempty"`
}

// PreviewResult is rag/preview.py's DocumentPreviewResponse.
type PreviewResult struct {
	OriginalText          string         `json:"original_text"`
	Chunks                []PreviewChunk `json:"chunks"`
	Filename              string         `json:"filename"`
	SizeBytes             int64          `json:"size_bytes"`
	ContentType           string         `json:"content_type,omitempty"`
	ParserUsed            string         `json:"parser_used"`
	ChunkStrategy         string         `json:"chunk_strategy"`
	ChunkSize             int            `json:"chunk_size"`
	ChunkOverlap          int            `json:"chunk_overlap"`
	TotalChunks           int            `json:"total_chunks"`
	AvgChunkSize          float64        `json:"avg_chunk_size"`
	TotalSizeWithOverlaps int            `json:"total_size_with_overlaps"`
	AvgOverlapSize        float64        `json:"avg_overlap_size"`
	Warnings              []string       `json:"warnings,omitempty"`
}

type previewRequest struct {
	DatasetID              string `json:"dataset_id,omitempty"`
	FileHash               string `json:"file_hash,omitempty"`
	FileContent            string `json:"file_content,omitempty"`
	Filename               string `json:"filename,omitempty"`
	DataProcessingStrategy string `json:"data_processing_strategy,omitempty"`
	ChunkSize              int    `json:"chunk_size,omitempty"`
	ChunkOverlap           int    `json:"chunk_overlap,omitempty"`
	ChunkStrategy          string `json:"chunk_strategy,omitempty"`
}

// resolvePreviewFile mirrors preview.py's _resolve_file_path: a
// (dataset_id, file_hash) pair resolves to a stored raw upload; base64
// file_content is written to a temp file the caller must clean up.
func (s *Server) resolvePreviewFile(projectDir string, req previewRequest) (path string, cleanup func(), err error) {
	if req.FileHash != "" && req.DatasetID != "" {
		rawDir, err := s.datasetRawDir(projectDir, req.DatasetID)
		if err != nil {
			return "", nil, err
		}
		path, err := utils.ResolveSafePath(rawDir, req.FileHash)
		if err != nil {
			return "", nil, err
		}
		if _, statErr := os.Stat(path); statErr != nil {
			return "", nil, fmt.Errorf("api: file not found: %s", req.FileHash)
		}
		return path, func() {}, nil
	}

	if req.FileContent != "" {
		content, err := base64.StdEncoding.DecodeString(req.FileContent)
		if err != nil {
			return "", nil, fmt.Errorf("api: invalid base64 file_content: %w", err)
		}
		tmp, err := os.CreateTemp("", "preview-*-"+filepath.Base(fallback(req.Filename, "upload")))
		if err != nil {
			return "", nil, err
		}
		if _, err := tmp.Write(content); err != nil {
			tmp.Close()
			return "", nil, err
		}
		tmp.Close()
		return tmp.Name(), func() { os.Remove(tmp.Name()) }, nil
	}

	return "", nil, fmt.Errorf("api: must provide either file_hash+dataset_id or file_content")
}

func fallback(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func (s *Server) handleRAGPreview(w http.ResponseWriter, r *http.Request) {
	if s.preview == nil {
		writeError(w, http.StatusNotImplemented, fmt.Errorf("api: no preview collaborator configured"))
		return
	}

	namespace := chi.URLParam(r, "namespace")
	project := chi.URLParam(r, "project")
	database := chi.URLParam(r, "database")
	projectDir, err := s.projectDir(namespace, project)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	var req previewRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("api: malformed request body: %w", err))
		return
	}
	if req.FileHash == "" && req.FileContent == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("api: must provide either file_hash or file_content"))
		return
	}

	path, cleanup, err := s.resolvePreviewFile(projectDir, req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	defer cleanup()

	result, err := s.preview.Preview(r.Context(), PreviewParams{
		ProjectDir:             projectDir,
		FilePath:               path,
		OriginalFilename:       fallback(req.Filename, filepath.Base(path)),
		Database:               database,
		DataProcessingStrategy: req.DataProcessingStrategy,
		ChunkSize:              req.ChunkSize,
		ChunkOverlap:           req.ChunkOverlap,
		ChunkStrategy:          req.ChunkStrategy,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Errorf("api: preview failed: %w", err))
		return
	}
	writeJSON(w, http.StatusOK, result)
}
