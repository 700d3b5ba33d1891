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

package devicecache

import "testing"

func TestSelectGGUFFile_DefaultPreferenceOrder(t *testing.T) {
	files := []string{"m.Q2_K.gguf", "m.Q4_K_M.gguf", "m.Q8_0.gguf", "m.F16.gguf"}
	got := SelectGGUFFile(files, "")
	if got != "m.Q4_K_M.gguf" {
		t.Fatalf("got %q, want m.Q4_K_M.gguf", got)
	}
}

func TestSelectGGUFFile_ExplicitPreference(t *testing.T) {
	files := []string{"m.Q2_K.gguf", "m.Q4_K_M.gguf", "m.Q8_0.gguf", "m.F16.gguf"}
	got := SelectGGUFFile(files, "q8_0")
	if got != "m.Q8_0.gguf" {
		t.Fatalf("got %q, want m.Q8_0.gguf", got)
	}
}

func TestSelectGGUFFile_SingleFileVerbatim(t *testing.T) {
	got := SelectGGUFFile([]string{"only.gguf"}, "q8_0")
	if got != "only.gguf" {
		t.Fatalf("got %q, want only.gguf", got)
	}
}

func TestSelectGGUFFile_EmptyListReturnsEmpty(t *testing.T) {
	if got := SelectGGUFFile(nil, ""); got != "" {
		t.Fatalf("got %q, want empty", got)
	}
}

func TestSelectGGUFFile_PrefersNonSplitAtSameTier(t *testing.T) {
	files := []string{
		"model-00001-of-00002.Q4_K_M.gguf",
		"model-00002-of-00002.Q4_K_M.gguf",
		"model.Q4_K_M.gguf",
		"model.Q8_0.gguf",
	}
	got := SelectGGUFFile(files, "")
	if got != "model.Q4_K_M.gguf" {
		t.Fatalf("got %q, want model.Q4_K_M.gguf", got)
	}
}

func TestSelectGGUFFile_UsesSplitWhenOnlyOption(t *testing.T) {
	files := []string{
		"model-00001-of-00002.F16.gguf",
		"model-00002-of-00002.F16.gguf",
		"model.Q4_K_M.gguf",
	}
	got := SelectGGUFFile(files, "F16")
	if got != "model-00001-of-00002.F16.gguf" {
		t.Fatalf("got %q, want model-00001-of-00002.F16.gguf", got)
	}
}

func TestSelectGGUFFile_NoRecognizedQuantizationUsesFirst(t *testing.T) {
	files := []string{"model_a.gguf", "model_b.gguf"}
	got := SelectGGUFFile(files, "")
	if got != "model_a.gguf" {
		t.Fatalf("got %q, want model_a.gguf", got)
	}
}

func TestIsSplitGGUFFile(t *testing.T) {
	splitCases := []string{
		"model-00001-of-00002.gguf",
		"model-00001-of-00002.Q4_K_M.gguf",
		"qwen2.5-coder-7b-instruct-q4_k_m-00001-of-00002.gguf",
	}
	for _, f := range splitCases {
		if !IsSplitGGUFFile(f) {
			t.Errorf("IsSplitGGUFFile(%q) = false, want true", f)
		}
	}

	nonSplitCases := []string{"model.Q4_K_M.gguf", "model-v2.Q4_K_M.gguf", "model.gguf"}
	for _, f := range nonSplitCases {
		if IsSplitGGUFFile(f) {
			t.Errorf("IsSplitGGUFFile(%q) = true, want false", f)
		}
	}
}

func TestParseModelWithQuantization(t *testing.T) {
	id, quant := ParseModelWithQuantization("unsloth/Qwen3-4B-GGUF:q8_0")
	if id != "unsloth/Qwen3-4B-GGUF" || quant != "Q8_0" {
		t.Fatalf("got (%q, %q)", id, quant)
	}

	id, quant = ParseModelWithQuantization("unsloth/Qwen3-4B-GGUF")
	if id != "unsloth/Qwen3-4B-GGUF" || quant != "" {
		t.Fatalf("got (%q, %q), want no quantization", id, quant)
	}
}
