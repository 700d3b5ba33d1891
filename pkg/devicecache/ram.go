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

// Package devicecache detects the RAM and accelerator budget available to the
// runtime process and uses it to pick GGUF quantization variants, size the
// context window, and preflight model downloads against free disk space.
// Grounded on _examples/hartyporpoise-llama.porp/internal/features/quant_advisor.go
// for the RAM-detection fallback chain.
package devicecache

import (
	"bufio"
	"os"
	"runtime"
	"strconv"
	"strings"
)

// AvailableRAMGB returns the RAM available to the current process in gigabytes.
//
// Priority order (highest to lowest):
//  1. cgroup v2 memory limit (/sys/fs/cgroup/memory.max)              — containers
//  2. cgroup v1 memory limit (/sys/fs/cgroup/memory/memory.limit_in_bytes)
//  3. /proc/meminfo MemTotal                                          — Linux host RAM
//  4. Platform-specific (darwin hw.memsize via sysctl)
//  5. Go runtime Sys bytes, or 8 GB if that reading looks implausible
//
// Reading the cgroup limit before /proc/meminfo means a container started
// with --memory=1g reports 1 GB instead of the host's full RAM.
func AvailableRAMGB() float64 {
	if gb := readCgroupV2MemLimit(); gb > 0 {
		return gb
	}
	if gb := readCgroupV1MemLimit(); gb > 0 {
		return gb
	}
	if gb := readProcMeminfo(); gb > 0 {
		return gb
	}
	if gb := detectSysRAMGB(); gb > 0 {
		return gb
	}
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	gb := float64(ms.Sys) / 1e9
	if gb < 1 {
		return 8
	}
	return gb
}

func readCgroupV2MemLimit() float64 {
	data, err := os.ReadFile("/sys/fs/cgroup/memory.max")
	if err != nil {
		return 0
	}
	s := strings.TrimSpace(string(data))
	if s == "max" || s == "" {
		return 0
	}
	bytes, err := strconv.ParseInt(s, 10, 64)
	if err != nil || bytes <= 0 {
		return 0
	}
	return float64(bytes) / 1e9
}

func readCgroupV1MemLimit() float64 {
	data, err := os.ReadFile("/sys/fs/cgroup/memory/memory.limit_in_bytes")
	if err != nil {
		return 0
	}
	bytes, err := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
	if err != nil || bytes <= 0 {
		return 0
	}
	// The kernel uses a very large sentinel (PAGE_COUNTER_MAX) for "no limit".
	const maxSentinel = 4 * 1024 * 1024 * 1024 * 1024 * 1024 // 4 PiB
	if bytes >= maxSentinel {
		return 0
	}
	return float64(bytes) / 1e9
}

func readProcMeminfo() float64 {
	f, err := os.Open("/proc/meminfo")
	if err != nil {
		return 0
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "MemTotal:") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			return 0
		}
		kb, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil {
			return 0
		}
		return float64(kb) / (1024 * 1024) // kB -> GB
	}
	return 0
}
