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

func TestComputeContextSize_OverrideWithinBounds(t *testing.T) {
	override := 8192
	got, warnings := ComputeContextSize(32768, 64, &override)
	if got != 8192 {
		t.Fatalf("got %d, want 8192", got)
	}
	if len(warnings) != 0 {
		t.Fatalf("unexpected warnings: %v", warnings)
	}
}

func TestComputeContextSize_OverrideClampedToModelMax(t *testing.T) {
	override := 1_000_000
	got, warnings := ComputeContextSize(8192, 64, &override)
	if got != 8192 {
		t.Fatalf("got %d, want clamp to 8192", got)
	}
	if len(warnings) == 0 {
		t.Fatal("expected a clamp warning")
	}
}

func TestComputeContextSize_LowRAMClampsBelowModelMax(t *testing.T) {
	got, _ := ComputeContextSize(131072, 4, nil)
	if got != 4096 {
		t.Fatalf("got %d, want 4096 for a 4GB machine", got)
	}
}

func TestComputeContextSize_HighRAMRespectsModelCeiling(t *testing.T) {
	got, warnings := ComputeContextSize(4096, 128, nil)
	if got != 4096 {
		t.Fatalf("got %d, want model ceiling of 4096", got)
	}
	if len(warnings) != 0 {
		t.Fatalf("no warning expected when the model itself is the binding constraint: %v", warnings)
	}
}
