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

//go:build linux || darwin

package devicecache

import (
	"path/filepath"

	"golang.org/x/sys/unix"
)

func statDisk(path string) (DiskSpaceInfo, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return DiskSpaceInfo{}, err
	}

	var stat unix.Statfs_t
	if err := unix.Statfs(abs, &stat); err != nil {
		return DiskSpaceInfo{}, err
	}

	blockSize := uint64(stat.Bsize)
	total := stat.Blocks * blockSize
	free := stat.Bavail * blockSize
	used := total - (stat.Bfree * blockSize)

	var percentFree float64
	if total > 0 {
		percentFree = float64(free) / float64(total) * 100
	}

	return DiskSpaceInfo{
		TotalBytes:  total,
		UsedBytes:   used,
		FreeBytes:   free,
		Path:        abs,
		PercentFree: percentFree,
	}, nil
}
