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

package models

import (
	"os"
	"path/filepath"
	"testing"
)

func TestNewGGUFWrapper_SelectsPreferredQuantization(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"m.Q2_K.gguf", "m.Q4_K_M.gguf", "m.Q8_0.gguf", "m.F16.gguf"} {
		if err := os.WriteFile(filepath.Join(dir, name), nil, 0o644); err != nil {
			t.Fatal(err)
		}
	}

	engine := &fakeLanguageEngine{}
	w, err := NewGGUFWrapper("m1", dir, GGUFModelInfo{MaxContext: 8192}, "q8_0", nil, engine)
	if err != nil {
		t.Fatalf("NewGGUFWrapper: %v", err)
	}
	want := filepath.Join(dir, "m.Q8_0.gguf")
	if w.modelPath != want {
		t.Fatalf("got modelPath %q, want %q", w.modelPath, want)
	}
	if w.Kind() != KindGGUF {
		t.Fatalf("Kind() = %q, want %q", w.Kind(), KindGGUF)
	}
}

func TestNewGGUFWrapper_NoFilesErrors(t *testing.T) {
	dir := t.TempDir()
	_, err := NewGGUFWrapper("m1", dir, GGUFModelInfo{}, "", nil, &fakeLanguageEngine{})
	if err == nil {
		t.Fatal("expected an error when no .gguf files are present")
	}
}

func TestListLocalGGUFFiles_IgnoresNonGGUF(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"m.Q4_K_M.gguf", "README.md", "m.json"} {
		if err := os.WriteFile(filepath.Join(dir, name), nil, 0o644); err != nil {
			t.Fatal(err)
		}
	}
	files, err := ListLocalGGUFFiles(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 1 || files[0] != "m.Q4_K_M.gguf" {
		t.Fatalf("got %v, want [m.Q4_K_M.gguf]", files)
	}
}
