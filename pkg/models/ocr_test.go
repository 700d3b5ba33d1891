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

import "testing"

func TestConvertTesseractLangCodes(t *testing.T) {
	got := ConvertTesseractLangCodes([]string{"en", "zh", "fra"})
	want := []string{"eng", "chi_sim", "fra"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestTesseractLangString(t *testing.T) {
	got := TesseractLangString([]string{"en", "de"})
	if got != "eng+deu" {
		t.Fatalf("got %q, want eng+deu", got)
	}
}

func TestConvertTesseractLangCodes_UnrecognizedTwoLetterPassesThrough(t *testing.T) {
	got := ConvertTesseractLangCodes([]string{"xx"})
	if got[0] != "xx" {
		t.Fatalf("got %q, want unchanged xx", got[0])
	}
}
