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
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/llamafarm/llamafarm-core/pkg/config"
	"github.com/llamafarm/llamafarm-core/pkg/orchestrator"
)

const testProjectYAML = `
version: v1
name: demo
namespace: default
runtime:
  default_model: chat
  models:
    - name: chat
      provider: ollama
      model: llama3
rag:
  databases:
    - name: support-db
      type: chroma
  data_processing_strategies:
    - name: default
datasets:
  - name: support-docs
    database: support-db
    data_processing_strategy: default
`

func writeTestProject(t *testing.T) (root, namespace, project string) {
	t.Helper()
	root = t.TempDir()
	namespace, project = "default", "demo"
	dir := filepath.Join(root, namespace, project)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(testProjectYAML), 0o644))
	return root, namespace, project
}

func doRequest(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		req = httptest.NewRequest(method, path, bytes.NewReader(raw))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)
	return w
}

func TestHandleGetConfig(t *testing.T) {
	root, ns, proj := writeTestProject(t)
	s := New(WithProjectsRoot(root))

	w := doRequest(t, s, http.MethodGet, "/v1/projects/"+ns+"/"+proj+"/config", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	var cfg config.ProjectConfig
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &cfg))
	assert.Equal(t, "demo", cfg.Name)
	assert.Equal(t, "chat", cfg.Runtime.DefaultModel)
}

func TestHandleGetConfig_UnknownProjectIsNotFound(t *testing.T) {
	root, _, _ := writeTestProject(t)
	s := New(WithProjectsRoot(root))

	w := doRequest(t, s, http.MethodGet, "/v1/projects/default/nope/config", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandleGetConfig_PathTraversalRejected(t *testing.T) {
	root, _, _ := writeTestProject(t)
	s := New(WithProjectsRoot(root))

	w := doRequest(t, s, http.MethodGet, "/v1/projects/default/..%2f..%2fetc/config", nil)
	assert.NotEqual(t, http.StatusOK, w.Code)
}

func TestHandlePutConfig_RejectsInvalidDefaultModel(t *testing.T) {
	root, ns, proj := writeTestProject(t)
	s := New(WithProjectsRoot(root))

	var cfg config.ProjectConfig
	cfg.Name, cfg.Namespace = "demo", "default"
	cfg.Runtime.DefaultModel = "does-not-exist"

	w := doRequest(t, s, http.MethodPut, "/v1/projects/"+ns+"/"+proj+"/config", cfg)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleGetSchema(t *testing.T) {
	root, ns, proj := writeTestProject(t)
	s := New(WithProjectsRoot(root))

	w := doRequest(t, s, http.MethodGet, "/v1/projects/"+ns+"/"+proj+"/schema", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	var resp schemaResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.Fields)
	assert.NotNil(t, resp.JSONSchema)
}

func TestHandleApplyChangeset(t *testing.T) {
	root, ns, proj := writeTestProject(t)
	s := New(WithProjectsRoot(root))

	cs := config.ConfigChangeSet{
		Description: "rename project",
		Changes: []config.ConfigChange{
			{FieldPath: "name", NewValue: "renamed"},
		},
	}
	w := doRequest(t, s, http.MethodPost, "/v1/projects/"+ns+"/"+proj+"/config/changes", cs)
	assert.Equal(t, http.StatusOK, w.Code)

	var cfg config.ProjectConfig
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &cfg))
	assert.Equal(t, "renamed", cfg.Name)

	w2 := doRequest(t, s, http.MethodGet, "/v1/projects/"+ns+"/"+proj+"/config", nil)
	require.NoError(t, json.Unmarshal(w2.Body.Bytes(), &cfg))
	assert.Equal(t, "renamed", cfg.Name)
}

func TestHandleApplyChangeset_InvalidChangeRollsBack(t *testing.T) {
	root, ns, proj := writeTestProject(t)
	s := New(WithProjectsRoot(root))

	cs := config.ConfigChangeSet{
		Changes: []config.ConfigChange{
			{FieldPath: "runtime.default_model", NewValue: "ghost-model"},
		},
	}
	w := doRequest(t, s, http.MethodPost, "/v1/projects/"+ns+"/"+proj+"/config/changes", cs)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w2 := doRequest(t, s, http.MethodGet, "/v1/projects/"+ns+"/"+proj+"/config", nil)
	var cfg config.ProjectConfig
	require.NoError(t, json.Unmarshal(w2.Body.Bytes(), &cfg))
	assert.Equal(t, "chat", cfg.Runtime.DefaultModel)
}

func TestDatasetLifecycle(t *testing.T) {
	root, ns, proj := writeTestProject(t)
	s := New(WithProjectsRoot(root))
	base := "/v1/projects/" + ns + "/" + proj

	w := doRequest(t, s, http.MethodGet, base+"/datasets", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	var datasets []config.DatasetConfig
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &datasets))
	require.Len(t, datasets, 1)
	assert.Equal(t, "support-docs", datasets[0].Name)

	newDataset := config.DatasetConfig{Name: "more-docs", Database: "support-db"}
	w = doRequest(t, s, http.MethodPost, base+"/datasets", newDataset)
	assert.Equal(t, http.StatusCreated, w.Code)

	w = doRequest(t, s, http.MethodPost, base+"/datasets", config.DatasetConfig{Name: "more-docs", Database: "support-db"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doRequest(t, s, http.MethodPost, base+"/datasets", config.DatasetConfig{Name: "bad", Database: "no-such-db"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doRequest(t, s, http.MethodDelete, base+"/datasets/more-docs", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = doRequest(t, s, http.MethodDelete, base+"/datasets/not-there", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandleDatasetStrategies(t *testing.T) {
	root, ns, proj := writeTestProject(t)
	s := New(WithProjectsRoot(root))

	w := doRequest(t, s, http.MethodGet, "/v1/projects/"+ns+"/"+proj+"/datasets/strategies", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	var resp strategiesResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Databases, 1)
	assert.Equal(t, "support-db", resp.Databases[0].Name)
}

func uploadMultipart(t *testing.T, filename string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func TestDatasetFileUploadListDelete(t *testing.T) {
	root, ns, proj := writeTestProject(t)
	s := New(WithProjectsRoot(root))
	base := "/v1/projects/" + ns + "/" + proj + "/datasets/support-docs/data"

	body, contentType := uploadMultipart(t, "doc.txt", []byte("hello world"))
	req := httptest.NewRequest(http.MethodPost, base, body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code)

	var uploadResp uploadDatasetFileResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &uploadResp))
	assert.Equal(t, "doc.txt", uploadResp.OriginalFilename)
	assert.NotEmpty(t, uploadResp.FileHash)

	w = doRequest(t, s, http.MethodGet, base, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	var files []datasetFileEntry
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &files))
	require.Len(t, files, 1)
	assert.Equal(t, uploadResp.FileHash, files[0].Hash)

	w = doRequest(t, s, http.MethodDelete, base+"/"+uploadResp.FileHash, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = doRequest(t, s, http.MethodDelete, base+"/"+uploadResp.FileHash, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

type fakeRAGSearcher struct {
	results []orchestrator.RAGResult
}

func (f *fakeRAGSearcher) Search(ctx context.Context, projectDir string, queries []string, target string, topK int, strategy string) ([]orchestrator.RAGResult, error) {
	return f.results, nil
}

func TestHandleRAGQuery(t *testing.T) {
	root, ns, proj := writeTestProject(t)
	fake := &fakeRAGSearcher{results: []orchestrator.RAGResult{
		{Content: "chunk one", Score: 0.9, Metadata: map[string]interface{}{"chunk_id": "c1"}},
	}}
	s := New(WithProjectsRoot(root), WithRAG(fake))

	req := queryRequest{Query: "what is llamafarm?", TopK: 3}
	w := doRequest(t, s, http.MethodPost, "/v1/projects/"+ns+"/"+proj+"/rag/databases/support-db/query", req)
	assert.Equal(t, http.StatusOK, w.Code)

	var resp queryResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.TotalResults)
	assert.Equal(t, "chunk one", resp.Results[0].Content)
	assert.Equal(t, "c1", resp.Results[0].ChunkID)
	assert.Equal(t, "support-db", resp.DatabaseUsed)
}

func TestHandleRAGQuery_NoCollaboratorConfigured(t *testing.T) {
	root, ns, proj := writeTestProject(t)
	s := New(WithProjectsRoot(root))

	w := doRequest(t, s, http.MethodPost, "/v1/projects/"+ns+"/"+proj+"/rag/databases/support-db/query", queryRequest{Query: "x"})
	assert.Equal(t, http.StatusNotImplemented, w.Code)
}

func TestHandleRAGQuery_EmptyQueryIsBadRequest(t *testing.T) {
	root, ns, proj := writeTestProject(t)
	s := New(WithProjectsRoot(root), WithRAG(&fakeRAGSearcher{}))

	w := doRequest(t, s, http.MethodPost, "/v1/projects/"+ns+"/"+proj+"/rag/databases/support-db/query", queryRequest{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

type fakePreviewService struct {
	lastParams PreviewParams
}

func (f *fakePreviewService) Preview(ctx context.Context, params PreviewParams) (*PreviewResult, error) {
	f.lastParams = params
	return &PreviewResult{
		OriginalText: "hello world",
		Chunks:       []PreviewChunk{{Index: 0, Content: "hello world", CharCount: 11, WordCount: 2}},
		Filename:     params.OriginalFilename,
		ParserUsed:   "text",
		TotalChunks:  1,
	}, nil
}

func TestHandleRAGPreview_WithUploadedContent(t *testing.T) {
	root, ns, proj := writeTestProject(t)
	fake := &fakePreviewService{}
	s := New(WithProjectsRoot(root), WithPreviewService(fake))

	req := previewRequest{
		FileContent: base64.StdEncoding.EncodeToString([]byte("hello world")),
		Filename:    "note.txt",
	}
	w := doRequest(t, s, http.MethodPost, "/v1/projects/"+ns+"/"+proj+"/rag/databases/support-db/preview", req)
	assert.Equal(t, http.StatusOK, w.Code)

	var resp PreviewResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "hello world", resp.OriginalText)
	assert.Equal(t, "note.txt", fake.lastParams.OriginalFilename)
	assert.Equal(t, "support-db", fake.lastParams.Database)
}

func TestHandleRAGPreview_MissingFileSourceIsBadRequest(t *testing.T) {
	root, ns, proj := writeTestProject(t)
	s := New(WithProjectsRoot(root), WithPreviewService(&fakePreviewService{}))

	w := doRequest(t, s, http.MethodPost, "/v1/projects/"+ns+"/"+proj+"/rag/databases/support-db/preview", previewRequest{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
