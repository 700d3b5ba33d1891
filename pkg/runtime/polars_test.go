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
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/llamafarm/llamafarm-core/pkg/polarsbuffer"
)

func createTestBuffer(t *testing.T, s *Server, windowSize int) string {
	t.Helper()
	w := doRequest(t, s, http.MethodPost, "/v1/polars/buffers", createBufferRequest{WindowSize: windowSize})
	require.Equal(t, http.StatusCreated, w.Code)
	var entry bufferEntry
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &entry))
	return entry.ID
}

func TestPolarsBufferLifecycle(t *testing.T) {
	s := New()
	id := createTestBuffer(t, s, 100)

	t.Run("list includes the new buffer", func(t *testing.T) {
		w := doRequest(t, s, http.MethodGet, "/v1/polars/buffers", nil)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), id)
	})

	t.Run("append a single record", func(t *testing.T) {
		w := doRequest(t, s, http.MethodPost, "/v1/polars/buffers/"+id+"/append", appendRequest{
			Record: polarsbuffer.Record{"value": 1.0},
		})
		require.Equal(t, http.StatusOK, w.Code)
		var entry bufferEntry
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &entry))
		assert.Equal(t, 1, entry.Stats.Size)
	})

	t.Run("append a batch", func(t *testing.T) {
		w := doRequest(t, s, http.MethodPost, "/v1/polars/buffers/"+id+"/append", appendRequest{
			Records: []polarsbuffer.Record{{"value": 2.0}, {"value": 3.0}},
		})
		require.Equal(t, http.StatusOK, w.Code)
		var entry bufferEntry
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &entry))
		assert.Equal(t, 3, entry.Stats.Size)
	})

	t.Run("append with neither record nor records is a bad request", func(t *testing.T) {
		w := doRequest(t, s, http.MethodPost, "/v1/polars/buffers/"+id+"/append", appendRequest{})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("stats reflect appended rows", func(t *testing.T) {
		w := doRequest(t, s, http.MethodGet, "/v1/polars/buffers/"+id, nil)
		assert.Equal(t, http.StatusOK, w.Code)
		var entry bufferEntry
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &entry))
		assert.Equal(t, 3, entry.Stats.Size)
	})

	t.Run("data endpoint returns appended rows", func(t *testing.T) {
		w := doRequest(t, s, http.MethodGet, "/v1/polars/buffers/"+id+"/data", nil)
		assert.Equal(t, http.StatusOK, w.Code)
		var records []polarsbuffer.Record
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &records))
		assert.Len(t, records, 3)
	})

	t.Run("data endpoint honors tail", func(t *testing.T) {
		w := doRequest(t, s, http.MethodGet, "/v1/polars/buffers/"+id+"/data?tail=1", nil)
		assert.Equal(t, http.StatusOK, w.Code)
		var records []polarsbuffer.Record
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &records))
		assert.Len(t, records, 1)
	})

	t.Run("features endpoint computes rolling windows", func(t *testing.T) {
		w := doRequest(t, s, http.MethodPost, "/v1/polars/buffers/"+id+"/features", featuresRequest{
			RollingWindows: []int{2},
		})
		assert.Equal(t, http.StatusOK, w.Code)
		var records []polarsbuffer.Record
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &records))
		assert.Len(t, records, 3)
	})

	t.Run("clear empties the buffer", func(t *testing.T) {
		w := doRequest(t, s, http.MethodPost, "/v1/polars/buffers/"+id+"/clear", nil)
		assert.Equal(t, http.StatusOK, w.Code)
		stats := doRequest(t, s, http.MethodGet, "/v1/polars/buffers/"+id, nil)
		var entry bufferEntry
		require.NoError(t, json.Unmarshal(stats.Body.Bytes(), &entry))
		assert.Equal(t, 0, entry.Stats.Size)
	})

	t.Run("delete removes the buffer", func(t *testing.T) {
		w := doRequest(t, s, http.MethodDelete, "/v1/polars/buffers/"+id, nil)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, http.StatusNotFound, doRequest(t, s, http.MethodGet, "/v1/polars/buffers/"+id, nil).Code)
	})
}

func TestPolarsBuffer_UnknownID(t *testing.T) {
	s := New()
	assert.Equal(t, http.StatusNotFound, doRequest(t, s, http.MethodGet, "/v1/polars/buffers/ghost", nil).Code)
	assert.Equal(t, http.StatusNotFound, doRequest(t, s, http.MethodDelete, "/v1/polars/buffers/ghost", nil).Code)
	assert.Equal(t, http.StatusNotFound, doRequest(t, s, http.MethodPost, "/v1/polars/buffers/ghost/clear", nil).Code)
}
