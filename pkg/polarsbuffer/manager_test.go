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

package polarsbuffer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager_CreateGetDelete(t *testing.T) {
	m := NewManager()
	b := m.Create(50)

	got, ok := m.Get(b.ID())
	require.True(t, ok)
	assert.Same(t, b, got)

	assert.True(t, m.Delete(b.ID()))
	_, ok = m.Get(b.ID())
	assert.False(t, ok)
}

func TestManager_DeleteUnknownReturnsFalse(t *testing.T) {
	m := NewManager()
	assert.False(t, m.Delete("does-not-exist"))
}

func TestManager_ListIsSortedById(t *testing.T) {
	m := NewManager()
	m.Create(10)
	m.Create(20)
	m.Create(30)

	list := m.List()
	require.Len(t, list, 3)
	for i := 1; i < len(list); i++ {
		assert.Less(t, list[i-1].ID(), list[i].ID())
	}
}

func TestErrNotFound_Error(t *testing.T) {
	err := &ErrNotFound{ID: "abc"}
	assert.Contains(t, err.Error(), "abc")
}
