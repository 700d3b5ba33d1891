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

import "fmt"

// DiskSpaceInfo reports the space available on the filesystem backing a path.
type DiskSpaceInfo struct {
	TotalBytes  uint64
	UsedBytes   uint64
	FreeBytes   uint64
	Path        string
	PercentFree float64
}

// ValidationResult is the outcome of a model-download disk-space preflight.
type ValidationResult struct {
	CanDownload   bool
	Warning       bool
	Message       string
	RequiredBytes int64
}

const (
	criticalFreeBytes = 100 * 1024 * 1024 // below this, refuse regardless of the requested size
	lowSpaceThreshold = 10.0              // percent free post-download that triggers a warning
)

// CheckDiskSpace reports total/used/free space for the filesystem containing path.
func CheckDiskSpace(path string) (DiskSpaceInfo, error) {
	return statDisk(path)
}

// ValidateSpaceForDownload checks whether a download of requiredBytes can
// proceed at path, and whether it should carry a low-space warning.
//
// Rules (mirrors the preflight a model download goes through before it is
// allowed to start):
//   - If the space check itself fails, downloads are allowed with a warning
//     rather than blocked outright — a broken disk-usage syscall shouldn't
//     stop an otherwise-working runtime.
//   - If requiredBytes is unknown (<= 0), the download proceeds; nothing to
//     gate on.
//   - Below criticalFreeBytes free, or if requiredBytes exceeds free space,
//     the download is refused.
//   - Otherwise, if free space after the download would fall under
//     lowSpaceThreshold percent of total capacity, the download proceeds but
//     carries a warning.
func ValidateSpaceForDownload(requiredBytes int64, path string) ValidationResult {
	info, err := CheckDiskSpace(path)
	if err != nil {
		return ValidationResult{
			CanDownload: true,
			Warning:     true,
			Message:     fmt.Sprintf("Disk space check unavailable: %v", err),
		}
	}
	return validateSpace(info, requiredBytes)
}

// validateSpace applies the preflight rules to an already-resolved
// DiskSpaceInfo, split out from ValidateSpaceForDownload so the decision
// logic is testable without a real filesystem stat call.
func validateSpace(info DiskSpaceInfo, requiredBytes int64) ValidationResult {
	if requiredBytes <= 0 {
		return ValidationResult{
			CanDownload: true,
			Message:     "Sufficient space available",
		}
	}

	if info.FreeBytes < criticalFreeBytes || uint64(requiredBytes) > info.FreeBytes {
		return ValidationResult{
			CanDownload:   false,
			Message:       fmt.Sprintf("Insufficient disk space: %d bytes required, %d bytes free", requiredBytes, info.FreeBytes),
			RequiredBytes: requiredBytes,
		}
	}

	postFree := info.FreeBytes - uint64(requiredBytes)
	postPercent := 100.0
	if info.TotalBytes > 0 {
		postPercent = float64(postFree) / float64(info.TotalBytes) * 100
	}
	if postPercent < lowSpaceThreshold {
		return ValidationResult{
			CanDownload:   true,
			Warning:       true,
			Message:       fmt.Sprintf("Free space after download would be %.1f%%, below the 10%% threshold", postPercent),
			RequiredBytes: requiredBytes,
		}
	}

	return ValidationResult{
		CanDownload:   true,
		Message:       "Sufficient space available",
		RequiredBytes: requiredBytes,
	}
}
