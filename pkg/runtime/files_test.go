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

package runtime

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func multipartUpload(t *testing.T, filename string, content []byte) (*bytes.Buffer, string) {
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

func TestHandleUploadFile(t *testing.T) {
	s := New()
	body, contentType := multipartUpload(t, "report.pdf", []byte("%PDF-fake-content"))

	req := httptest.NewRequest(http.MethodPost, "/v1/files", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusCreated, w.Code)
	var resp uploadResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "report.pdf", resp.Filename)
	assert.Equal(t, len("%PDF-fake-content"), resp.Size)
	assert.NotEmpty(t, resp.ID)

	f, ok := s.files.get(resp.ID)
	require.True(t, ok)
	assert.Equal(t, []byte("%PDF-fake-content"), f.data)
}

func TestHandleUploadFile_MissingFileField(t *testing.T) {
	s := New()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("name", "not-a-file"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/v1/files", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestFileCache_ExpiresAfterTTL(t *testing.T) {
	c := newFileCache(time.Millisecond)
	f := c.put("x.txt", "text/plain", []byte("hi"))
	time.Sleep(5 * time.Millisecond)
	_, ok := c.get(f.id)
	assert.False(t, ok)
}

func TestFileCache_SweepExpired(t *testing.T) {
	c := newFileCache(time.Millisecond)
	c.put("a.txt", "text/plain", []byte("a"))
	c.put("b.txt", "text/plain", []byte("b"))
	time.Sleep(5 * time.Millisecond)
	assert.Equal(t, 2, c.sweepExpired())
	assert.Equal(t, 0, c.sweepExpired())
}
