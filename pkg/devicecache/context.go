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

// ramContextCeiling maps an available-RAM threshold (GB) to the largest
// context window a machine in that band should be handed by default, ordered
// from most to least capable. A machine qualifies for the first tier whose
// MinRAMGB it meets.
var ramContextCeiling = []struct {
	MinRAMGB int
	Ceiling  int
}{
	{64, 131072},
	{32, 32768},
	{16, 16384},
	{8, 8192},
	{4, 4096},
	{0, 2048},
}

func ceilingForRAM(ramGB float64) int {
	for _, tier := range ramContextCeiling {
		if ramGB >= float64(tier.MinRAMGB) {
			return tier.Ceiling
		}
	}
	return ramContextCeiling[len(ramContextCeiling)-1].Ceiling
}

// ComputeContextSize derives the context window to load a GGUF model with.
//
// modelMaxContext is the context length advertised in the GGUF header (the
// hard ceiling the model itself supports). availableRAMGB is typically
// AvailableRAMGB(). configOverride, when non-nil, is an explicit operator
// request and wins unless it would exceed modelMaxContext, in which case it
// is clamped down with a warning.
//
// Returns the chosen context size and any warnings worth surfacing to the
// caller (never an error: a context size is always produced).
func ComputeContextSize(modelMaxContext int, availableRAMGB float64, configOverride *int) (int, []string) {
	var warnings []string

	if modelMaxContext <= 0 {
		modelMaxContext = 4096
	}

	if configOverride != nil {
		requested := *configOverride
		if requested <= 0 {
			warnings = append(warnings, "configured context size must be positive, falling back to automatic sizing")
		} else if requested > modelMaxContext {
			warnings = append(warnings, "configured context size exceeds the model's maximum; clamping")
			return modelMaxContext, warnings
		} else {
			return requested, warnings
		}
	}

	ceiling := ceilingForRAM(availableRAMGB)
	if ceiling >= modelMaxContext {
		// The model's own header is the binding constraint; this machine has
		// RAM to spare, nothing to warn about.
		return modelMaxContext, warnings
	}
	warnings = append(warnings, "available RAM limits the context window below the model's advertised maximum")
	return ceiling, warnings
}
