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
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
)

// uploadedFile is one TTL-cached upload: its raw bytes plus enough metadata
// to serve it back out. PDF-to-per-page rasterization is an external
// collaborator (no PDF rendering library ships anywhere in the example
// corpus this module was built from) — this cache only manages the
// upload's lifetime; a caller wanting rasterized pages wires a renderer in
// front of fileCache.get.
type uploadedFile struct {
	id          string
	filename    string
	contentType string
	data        []byte
	expiresAt   time.Time
}

// fileCache is an in-memory TTL store for uploaded files, matching the
// universal runtime's upload-then-reference-by-id contract: uploads expire
// on their own schedule rather than needing an explicit delete call.
type fileCache struct {
	mu    sync.Mutex
	ttl   time.Duration
	files map[string]*uploadedFile
}

func newFileCache(ttl time.Duration) *fileCache {
	return &fileCache{ttl: ttl, files: make(map[string]*uploadedFile)}
}

func (c *fileCache) put(filename, contentType string, data []byte) *uploadedFile {
	c.mu.Lock()
	defer c.mu.Unlock()
	f := &uploadedFile{
		id:          uuid.NewString(),
		filename:    filename,
		contentType: contentType,
		data:        data,
		expiresAt:   time.Now().Add(c.ttl),
	}
	c.files[f.id] = f
	return f
}

func (c *fileCache) get(id string) (*uploadedFile, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	f, ok := c.files[id]
	if !ok || time.Now().After(f.expiresAt) {
		delete(c.files, id)
		return nil, false
	}
	return f, true
}

// sweepExpired removes every entry past its TTL, returning the count
// removed. Nothing in the server calls it on a schedule; otherwise an
// expired upload is dropped only when get looks it up.
func (c *fileCache) sweepExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now()
	removed := 0
	for id, f := range c.files {
		if now.After(f.expiresAt) {
			delete(c.files, id)
			removed++
		}
	}
	return removed
}

const maxUploadBytes = 64 << 20 // 64MiB

type uploadResponse struct {
	ID          string `json:"id"`
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Size        int    `json:"size"`
	ExpiresAt   int64  `json:"expires_at"`
}

func (s *Server) handleUploadFile(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("runtime: malformed multipart upload: %w", err))
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("runtime: missing \"file\" form field: %w", err))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxUploadBytes+1))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if len(data) > maxUploadBytes {
		writeError(w, http.StatusBadRequest, fmt.Errorf("runtime: upload exceeds %d byte limit", maxUploadBytes))
		return
	}

	contentType := header.Header.Get("Content-Type")
	f := s.files.put(header.Filename, contentType, data)
	writeJSON(w, http.StatusCreated, uploadResponse{
		ID: f.id, Filename: f.filename, ContentType: f.contentType,
		Size: len(f.data), ExpiresAt: f.expiresAt.Unix(),
	})
}
