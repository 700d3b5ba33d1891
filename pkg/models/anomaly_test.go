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
	"math"
	"testing"
)

// fakeBackend scores a row by its distance from the origin, so a point far
// from the training cluster gets a strictly higher score — enough to
// exercise Fit/DecisionFunction/Predict without a real PyOD binding.
type fakeBackend struct{}

func (fakeBackend) Fit(X [][]float64) error { return nil }

func (fakeBackend) DecisionFunction(X [][]float64) ([]float64, error) {
	scores := make([]float64, len(X))
	for i, row := range X {
		var sumSq float64
		for _, v := range row {
			sumSq += v * v
		}
		scores[i] = math.Sqrt(sumSq)
	}
	return scores, nil
}

func (b fakeBackend) Predict(X [][]float64) ([]int, error) {
	scores, _ := b.DecisionFunction(X)
	labels := make([]int, len(scores))
	for i, s := range scores {
		if s > 5 {
			labels[i] = 1
		}
	}
	return labels, nil
}

func TestAnomalyWrapper_SecondPointScoresHigher(t *testing.T) {
	w := NewAnomalyWrapper("m1", "ecod", 0.1, nil, NormalizationStandardization, "", fakeBackend{})
	if err := w.Load(context.Background()); err != nil {
		t.Fatal(err)
	}

	training := make([][]float64, 100)
	for i := range training {
		training[i] = []float64{0.01 * float64(i%10), 0.01 * float64(i%7)}
	}
	if err := w.Fit(training); err != nil {
		t.Fatalf("Fit: %v", err)
	}

	scores, err := w.DecisionFunction([][]float64{{0, 0}, {10, 10}})
	if err != nil {
		t.Fatalf("DecisionFunction: %v", err)
	}
	if len(scores) != 2 {
		t.Fatalf("got %d scores, want 2", len(scores))
	}
	if !(scores[1] > scores[0]) {
		t.Fatalf("scores = %v, want the second (far) point strictly higher", scores)
	}
}

func TestAnomalyWrapper_ThresholdAutoDerivedWhenNil(t *testing.T) {
	w := NewAnomalyWrapper("m1", "ecod", 0.1, nil, NormalizationRaw, "", fakeBackend{})
	_ = w.Load(context.Background())

	training := make([][]float64, 50)
	for i := range training {
		training[i] = []float64{float64(i), float64(i)}
	}
	if err := w.Fit(training); err != nil {
		t.Fatal(err)
	}
	if w.threshold == nil {
		t.Fatal("expected a threshold to be auto-derived after Fit")
	}
}

func TestAnomalyWrapper_DecisionFunctionBeforeLoadIsFatal(t *testing.T) {
	w := NewAnomalyWrapper("m1", "ecod", 0.1, nil, NormalizationRaw, "", fakeBackend{})
	_, err := w.DecisionFunction([][]float64{{0, 0}})
	if err == nil {
		t.Fatal("expected an error before Load")
	}
}

func TestIsLegacyBackend(t *testing.T) {
	for _, name := range []string{"isolation_forest", "one_class_svm", "local_outlier_factor", "autoencoder"} {
		if !IsLegacyBackend(name) {
			t.Errorf("IsLegacyBackend(%q) = false, want true", name)
		}
	}
	for _, name := range []string{"ecod", "hbos", "knn"} {
		if IsLegacyBackend(name) {
			t.Errorf("IsLegacyBackend(%q) = true, want false", name)
		}
	}
}

func TestGetBackendsResponse_HasAllRequiredFields(t *testing.T) {
	resp := GetBackendsResponse()
	if resp.Object != "list" {
		t.Fatalf("Object = %q, want list", resp.Object)
	}
	if resp.Total != len(resp.Data) {
		t.Fatalf("Total = %d, len(Data) = %d", resp.Total, len(resp.Data))
	}
	if len(resp.Data) < 12 {
		t.Fatalf("got %d backends, want at least 12", len(resp.Data))
	}
	for _, entry := range resp.Data {
		if entry.Name == "" || entry.Category == "" || entry.Speed == "" || entry.Memory == "" || entry.BestFor == "" {
			t.Errorf("backend %q missing a required metadata field: %+v", entry.Backend, entry)
		}
	}
}

func TestPercentile(t *testing.T) {
	xs := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	if got := percentile(xs, 50); got != 5.5 {
		t.Fatalf("median = %v, want 5.5", got)
	}
	if got := percentile(xs, 0); got != 1 {
		t.Fatalf("p0 = %v, want 1", got)
	}
	if got := percentile(xs, 100); got != 10 {
		t.Fatalf("p100 = %v, want 10", got)
	}
}
