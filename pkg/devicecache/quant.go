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

import (
	"regexp"
	"strings"
)

// GGUFQuantizationPreferenceOrder is the default preference order for GGUF
// quantization variants when the caller has no explicit preference: the best
// balance of file size and quality first.
var GGUFQuantizationPreferenceOrder = []string{
	"Q4_K_M",
	"Q4_K",
	"Q5_K_M",
	"Q5_K",
	"Q8_0",
	"Q6_K",
	"Q4_K_S",
	"Q5_K_S",
	"Q3_K_M",
	"Q2_K",
	"F16",
}

var quantPattern = regexp.MustCompile(`(?i)[.-](I?Q[2-8]_(?:K_[SML]|K|[01])|F(?:16|32))\.`)

var splitPattern = regexp.MustCompile(`-\d{5}-of-\d{5}`)

// ParseQuantizationFromFilename extracts a GGUF quantization tag (e.g.
// "Q4_K_M") from a filename such as "qwen3-1.7b.Q4_K_M.gguf". Returns "" if
// no recognizable tag is present.
func ParseQuantizationFromFilename(filename string) string {
	m := quantPattern.FindStringSubmatch(filename)
	if m == nil {
		return ""
	}
	return strings.ToUpper(m[1])
}

// IsSplitGGUFFile reports whether filename is one part of a multi-file GGUF
// split, identified by a "-NNNNN-of-NNNNN" infix.
func IsSplitGGUFFile(filename string) bool {
	return splitPattern.MatchString(filename)
}

// ParseModelWithQuantization splits "model_id:quantization" into its parts.
// If modelName carries no ":" suffix, quantization is "".
func ParseModelWithQuantization(modelName string) (modelID, quantization string) {
	idx := strings.LastIndex(modelName, ":")
	if idx < 0 {
		return modelName, ""
	}
	return modelName[:idx], strings.ToUpper(modelName[idx+1:])
}

// SelectGGUFFile picks the best GGUF filename from ggufFiles.
//
// Selection order:
//  1. A single candidate is always returned verbatim.
//  2. If preferredQuantization names a tag present among the files, the
//     non-split file carrying that tag wins; a split file is used only if no
//     non-split file carries it.
//  3. Otherwise GGUFQuantizationPreferenceOrder is walked tier by tier, again
//     preferring a non-split file over a split one at the same tier.
//  4. If nothing in ggufFiles carries a recognizable quantization tag, the
//     first file is returned.
func SelectGGUFFile(ggufFiles []string, preferredQuantization string) string {
	if len(ggufFiles) == 0 {
		return ""
	}
	if len(ggufFiles) == 1 {
		return ggufFiles[0]
	}

	type candidate struct {
		name  string
		quant string
		split bool
	}
	candidates := make([]candidate, len(ggufFiles))
	for i, f := range ggufFiles {
		candidates[i] = candidate{name: f, quant: ParseQuantizationFromFilename(f), split: IsSplitGGUFFile(f)}
	}

	pickTier := func(tag string) string {
		for _, c := range candidates {
			if c.quant == tag && !c.split {
				return c.name
			}
		}
		for _, c := range candidates {
			if c.quant == tag && c.split {
				return c.name
			}
		}
		return ""
	}

	if preferredQuantization != "" {
		if name := pickTier(strings.ToUpper(preferredQuantization)); name != "" {
			return name
		}
	}

	for _, tier := range GGUFQuantizationPreferenceOrder {
		if name := pickTier(tier); name != "" {
			return name
		}
	}

	return ggufFiles[0]
}
