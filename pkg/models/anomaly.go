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
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/llamafarm/llamafarm-core/pkg/utils"
)

// NormalizationMode controls how raw decision-function scores are mapped
// before thresholding. Grounded on anomaly_model.py's _normalize_scores
// (standardization: median/IQR-scaled sigmoid) plus the zscore/raw variants
// SPEC_FULL adds.
type NormalizationMode string

const (
	NormalizationStandardization NormalizationMode = "standardization"
	NormalizationZScore          NormalizationMode = "zscore"
	NormalizationRaw             NormalizationMode = "raw"
)

// BackendInfo is the metadata the /v1/anomaly/backends listing surfaces for
// one algorithm. Grounded on the {name, description, category, speed,
// memory, parameters, best_for} fields asserted by
// original_source/runtimes/universal/tests/test_anomaly_pyod.py.
type BackendInfo struct {
	Name        string
	Description string
	Category    string
	Speed       string
	Memory      string
	Parameters  string
	BestFor     string
	IsLegacy    bool
}

// BackendRegistry lists every anomaly backend's metadata, keyed by backend
// name. The four legacy names are kept for backward-compatible configs
// alongside the newer PyOD backends; all twelve share the same Fit/
// DecisionFunction/Predict adapter contract (AnomalyBackend).
var BackendRegistry = map[string]BackendInfo{
	"isolation_forest": {
		Name: "isolation_forest", Description: "Isolation Forest: isolates anomalies via random partitioning",
		Category: "tree", Speed: "medium", Memory: "medium",
		Parameters: "n_estimators, max_samples", BestFor: "general-purpose tabular data", IsLegacy: true,
	},
	"one_class_svm": {
		Name: "one_class_svm", Description: "One-Class SVM: learns a decision boundary around normal data",
		Category: "svm", Speed: "slow", Memory: "medium",
		Parameters: "nu, kernel, gamma", BestFor: "small, low-dimensional datasets", IsLegacy: true,
	},
	"local_outlier_factor": {
		Name: "local_outlier_factor", Description: "LOF: compares local density to neighbors",
		Category: "proximity", Speed: "medium", Memory: "medium",
		Parameters: "n_neighbors", BestFor: "clusters with varying density", IsLegacy: true,
	},
	"autoencoder": {
		Name: "autoencoder", Description: "Autoencoder: flags high reconstruction error as anomalous",
		Category: "neural", Speed: "slow", Memory: "high",
		Parameters: "hidden_layers, epochs", BestFor: "high-dimensional or non-linear data", IsLegacy: true,
	},
	"ecod": {
		Name: "ecod", Description: "Empirical Cumulative Distribution: parameter-free, fast",
		Category: "probabilistic", Speed: "fast", Memory: "low",
		Parameters: "none (parameter-free)", BestFor: "quick baselines, high-dimensional data",
	},
	"hbos": {
		Name: "hbos", Description: "Histogram-Based Outlier Score: fastest backend",
		Category: "probabilistic", Speed: "fastest", Memory: "low",
		Parameters: "n_bins", BestFor: "very large datasets, low-latency streaming",
	},
	"copod": {
		Name: "copod", Description: "Copula-Based Outlier Detection: parameter-free",
		Category: "probabilistic", Speed: "fast", Memory: "low",
		Parameters: "none (parameter-free)", BestFor: "mixed-distribution tabular data",
	},
	"knn": {
		Name: "knn", Description: "K-Nearest Neighbors: distance to the k-th neighbor as score",
		Category: "distance", Speed: "medium", Memory: "medium",
		Parameters: "n_neighbors, method", BestFor: "well-separated clusters",
	},
	"mcd": {
		Name: "mcd", Description: "Minimum Covariance Determinant: robust Gaussian outlier detection",
		Category: "statistical", Speed: "medium", Memory: "low",
		Parameters: "support_fraction", BestFor: "roughly Gaussian low-dimensional data",
	},
	"cblof": {
		Name: "cblof", Description: "Clustering-Based Local Outlier Factor",
		Category: "clustering", Speed: "medium", Memory: "medium",
		Parameters: "n_clusters, alpha, beta", BestFor: "data with natural cluster structure",
	},
	"suod": {
		Name: "suod", Description: "Scalable Unsupervised Outlier Detection ensemble",
		Category: "ensemble", Speed: "medium", Memory: "high",
		Parameters: "base_estimators", BestFor: "large datasets needing ensemble robustness",
	},
	"loda": {
		Name: "loda", Description: "Lightweight Online Detector of Anomalies",
		Category: "streaming", Speed: "fast", Memory: "low",
		Parameters: "n_bins, n_random_cuts", BestFor: "streaming / online detection",
	},
}

// IsLegacyBackend reports whether name is one of the four backward-compatible
// legacy backend names.
func IsLegacyBackend(name string) bool {
	info, ok := BackendRegistry[name]
	return ok && info.IsLegacy
}

// AllBackendNames returns every registered backend name.
func AllBackendNames() []string {
	names := make([]string, 0, len(BackendRegistry))
	for name := range BackendRegistry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// BackendsResponse is the /v1/anomaly/backends listing shape.
type BackendsResponse struct {
	Object     string         `json:"object"`
	Data       []BackendEntry `json:"data"`
	Total      int            `json:"total"`
	Categories map[string]int `json:"categories"`
}

// BackendEntry is one row of BackendsResponse.Data.
type BackendEntry struct {
	Backend     string `json:"backend"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Category    string `json:"category"`
	Speed       string `json:"speed"`
	Memory      string `json:"memory"`
	Parameters  string `json:"parameters"`
	BestFor     string `json:"best_for"`
	IsLegacy    bool   `json:"is_legacy"`
}

// GetBackendsResponse renders BackendRegistry for the backends listing endpoint.
func GetBackendsResponse() BackendsResponse {
	names := AllBackendNames()
	data := make([]BackendEntry, 0, len(names))
	categories := make(map[string]int)
	for _, name := range names {
		info := BackendRegistry[name]
		data = append(data, BackendEntry{
			Backend: name, Name: info.Name, Description: info.Description,
			Category: info.Category, Speed: info.Speed, Memory: info.Memory,
			Parameters: info.Parameters, BestFor: info.BestFor, IsLegacy: info.IsLegacy,
		})
		categories[info.Category]++
	}
	return BackendsResponse{Object: "list", Data: data, Total: len(data), Categories: categories}
}

// AnomalyWrapper adapts a unified PyOD-style AnomalyBackend to the Wrapper
// lifecycle, adding score normalization and threshold auto-derivation.
// Grounded on original_source/runtimes/universal/models/anomaly_model.py's
// AnomalyModel (contamination, threshold, _normalize_scores, score/detect).
type AnomalyWrapper struct {
	lifecycle

	modelID       string
	backend       string
	contamination float64
	threshold     *float64
	normalization NormalizationMode
	safeDir       string
	impl          AnomalyBackend
}

// NewAnomalyWrapper builds an anomaly wrapper. threshold may be nil to
// auto-derive it from the training scores at Fit time. safeDir, if non-empty,
// is the designated root every artifact path passed to LoadArtifactPath must
// resolve inside.
func NewAnomalyWrapper(modelID, backend string, contamination float64, threshold *float64, normalization NormalizationMode, safeDir string, impl AnomalyBackend) *AnomalyWrapper {
	if normalization == "" {
		normalization = NormalizationStandardization
	}
	return &AnomalyWrapper{
		modelID: modelID, backend: backend, contamination: contamination,
		threshold: threshold, normalization: normalization, safeDir: safeDir, impl: impl,
	}
}

func (w *AnomalyWrapper) Kind() string           { return KindAnomaly }
func (w *AnomalyWrapper) SupportsStreaming() bool { return false }

func (w *AnomalyWrapper) Info() Info {
	extra := map[string]any{"backend": w.backend, "contamination": w.contamination, "normalization": string(w.normalization)}
	if w.threshold != nil {
		extra["threshold"] = *w.threshold
	}
	return Info{Kind: KindAnomaly, ModelID: w.modelID, Loaded: w.isLoaded(), Extra: extra}
}

// Load marks the wrapper ready to Fit; the underlying backend has no
// separate load step (it is constructed already bound to its hyperparameters).
func (w *AnomalyWrapper) Load(ctx context.Context) error {
	w.setLoaded(true)
	return nil
}

func (w *AnomalyWrapper) Unload(ctx context.Context) error {
	w.setLoaded(false)
	return nil
}

// LoadArtifactPath resolves a caller-supplied artifact filename against
// w.safeDir, rejecting anything that would escape it.
func (w *AnomalyWrapper) LoadArtifactPath(filename string) (string, error) {
	if w.safeDir == "" {
		return "", fmt.Errorf("models: anomaly wrapper %s has no safe artifact directory configured", w.modelID)
	}
	return utils.ResolveSafePath(w.safeDir, filename)
}

// Fit trains the backend on X, then auto-derives the threshold (if not
// already set) as the (1-contamination)-th percentile of the *normalized*
// training scores, matching anomaly_model.py's rationale: thresholding on
// normalized scores keeps the cutoff comparable across backends.
func (w *AnomalyWrapper) Fit(X [][]float64) error {
	if !w.isLoaded() {
		return &ErrNotLoaded{Kind: KindAnomaly, ModelID: w.modelID}
	}
	if err := w.impl.Fit(X); err != nil {
		return fmt.Errorf("models: fit %s backend %s: %w", w.modelID, w.backend, err)
	}
	if w.threshold == nil {
		raw, err := w.impl.DecisionFunction(X)
		if err != nil {
			return fmt.Errorf("models: deriving threshold for %s: %w", w.modelID, err)
		}
		normalized := normalizeScores(raw, w.normalization)
		t := percentile(normalized, (1-w.contamination)*100)
		w.threshold = &t
	}
	return nil
}

// DecisionFunction returns the normalized anomaly score for each row of X.
func (w *AnomalyWrapper) DecisionFunction(X [][]float64) ([]float64, error) {
	raw, err := w.RawDecisionFunction(X)
	if err != nil {
		return nil, err
	}
	return normalizeScores(raw, w.normalization), nil
}

// RawDecisionFunction returns the backend's unnormalized decision-function
// output — the streaming detector surfaces both this and the normalized
// score per point, matching streaming_anomaly.py's StreamingResult.
func (w *AnomalyWrapper) RawDecisionFunction(X [][]float64) ([]float64, error) {
	if !w.isLoaded() {
		return nil, &ErrNotLoaded{Kind: KindAnomaly, ModelID: w.modelID}
	}
	raw, err := w.impl.DecisionFunction(X)
	if err != nil {
		return nil, fmt.Errorf("models: score %s: %w", w.modelID, err)
	}
	return raw, nil
}

// Predict classifies each row of X as anomalous (1) or normal (0) by
// comparing its normalized score against the fitted threshold.
func (w *AnomalyWrapper) Predict(X [][]float64) ([]int, error) {
	scores, err := w.DecisionFunction(X)
	if err != nil {
		return nil, err
	}
	threshold := 0.5
	if w.threshold != nil {
		threshold = *w.threshold
	}
	labels := make([]int, len(scores))
	for i, s := range scores {
		if s >= threshold {
			labels[i] = 1
		}
	}
	return labels, nil
}

func normalizeScores(scores []float64, mode NormalizationMode) []float64 {
	switch mode {
	case NormalizationRaw:
		out := make([]float64, len(scores))
		copy(out, scores)
		return out
	case NormalizationZScore:
		mean, std := meanStd(scores)
		out := make([]float64, len(scores))
		for i, s := range scores {
			if std == 0 {
				out[i] = 0
				continue
			}
			out[i] = (s - mean) / std
		}
		return out
	default: // NormalizationStandardization
		med := median(scores)
		iqr := interquartileRange(scores)
		out := make([]float64, len(scores))
		for i, s := range scores {
			var x float64
			if iqr > 0 {
				x = (s - med) / (2 * iqr)
			} else {
				x = s - med
			}
			if x > 700 {
				x = 700
			} else if x < -700 {
				x = -700
			}
			out[i] = 1 / (1 + math.Exp(-x))
		}
		return out
	}
}

func meanStd(xs []float64) (mean, std float64) {
	if len(xs) == 0 {
		return 0, 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	mean = sum / float64(len(xs))
	var sqDiff float64
	for _, x := range xs {
		d := x - mean
		sqDiff += d * d
	}
	std = math.Sqrt(sqDiff / float64(len(xs)))
	return mean, std
}

func median(xs []float64) float64 {
	return percentile(xs, 50)
}

func interquartileRange(xs []float64) float64 {
	return percentile(xs, 75) - percentile(xs, 25)
}

// percentile computes the p-th percentile (0-100) of xs via linear
// interpolation between closest ranks, matching numpy.percentile's default.
func percentile(xs []float64, p float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sorted := make([]float64, len(xs))
	copy(sorted, xs)
	sort.Float64s(sorted)

	if len(sorted) == 1 {
		return sorted[0]
	}
	rank := (p / 100) * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi {
		return sorted[lo]
	}
	frac := rank - float64(lo)
	return sorted[lo] + frac*(sorted[hi]-sorted[lo])
}
