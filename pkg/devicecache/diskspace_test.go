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

func TestValidateSpaceForDownload_InsufficientSpace(t *testing.T) {
	const gb = uint64(1e9)
	info := DiskSpaceInfo{TotalBytes: 100 * gb, FreeBytes: 5 * gb}
	result := validateSpace(info, int64(10*gb))

	if result.CanDownload {
		t.Fatal("expected CanDownload=false when requested size exceeds free space")
	}
}

func TestValidateSpaceForDownload_WarnsBelowTenPercentPostDownload(t *testing.T) {
	const gb = uint64(1e9)
	// 2TB total, 50GB free: post-download free is comfortably under 10% of total.
	info := DiskSpaceInfo{TotalBytes: 2000 * gb, FreeBytes: 50 * gb}
	result := validateSpace(info, int64(49*gb))

	if !result.CanDownload {
		t.Fatal("expected CanDownload=true with a warning, not an outright refusal")
	}
	if !result.Warning {
		t.Fatal("expected Warning=true when post-download free space falls under 10%")
	}
}

func TestValidateSpaceForDownload_SufficientSpace(t *testing.T) {
	const gb = uint64(1e9)
	info := DiskSpaceInfo{TotalBytes: 100 * gb, FreeBytes: 50 * gb}
	result := validateSpace(info, int64(1*gb))

	if !result.CanDownload || result.Warning {
		t.Fatalf("got %+v, want CanDownload=true Warning=false", result)
	}
}

func TestValidateSpaceForDownload_UnknownSizeProceeds(t *testing.T) {
	result := ValidateSpaceForDownload(0, ".")
	if !result.CanDownload || result.Warning {
		t.Fatalf("got %+v, want CanDownload=true Warning=false when size is unknown", result)
	}
}
