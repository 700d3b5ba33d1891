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

package anomaly

import (
	"fmt"
	"math"
	"sort"

	"github.com/llamafarm/llamafarm-core/pkg/models"
)

// ecodBackend is a pure-Go, parameter-free implementation of Empirical
// Cumulative Distribution-based Outlier Detection: per dimension, a point
// far into either tail of the training distribution contributes a large
// -log(tail probability) score; dimensions sum. No PyOD/ECOD port exists
// in the retrieved corpus — this is the one concrete AnomalyBackend the
// module ships, matching streaming_anomaly.py's own "ecod" default.
// Every other backend name is an external-collaborator seam: callers wire
// their own models.AnomalyBackend (e.g. a PyOD microservice client) via a
// custom BackendFactory.
type ecodBackend struct {
	sorted [][]float64 // per-dimension sorted training values
}

// NewECODBackend constructs an empty ECOD-style backend; call Fit before
// scoring.
func NewECODBackend() models.AnomalyBackend {
	return &ecodBackend{}
}

func (b *ecodBackend) Fit(X [][]float64) error {
	if len(X) == 0 {
		return fmt.Errorf("anomaly: ecod backend fit on empty training set")
	}
	dims := len(X[0])
	cols := make([][]float64, dims)
	for d := 0; d < dims; d++ {
		cols[d] = make([]float64, len(X))
	}
	for i, row := range X {
		for d := 0; d < dims && d < len(row); d++ {
			cols[d][i] = row[d]
		}
	}
	for d := range cols {
		sort.Float64s(cols[d])
	}
	b.sorted = cols
	return nil
}

func (b *ecodBackend) DecisionFunction(X [][]float64) ([]float64, error) {
	if b.sorted == nil {
		return nil, fmt.Errorf("anomaly: ecod backend scored before Fit")
	}
	scores := make([]float64, len(X))
	for i, row := range X {
		var total float64
		for d, v := range row {
			if d >= len(b.sorted) {
				continue
			}
			total += tailScore(b.sorted[d], v)
		}
		scores[i] = total
	}
	return scores, nil
}

func (b *ecodBackend) Predict(X [][]float64) ([]int, error) {
	scores, err := b.DecisionFunction(X)
	if err != nil {
		return nil, err
	}
	// A fixed empirical cutoff on the un-normalized score; callers normally
	// compare the AnomalyWrapper's normalized score against its own
	// threshold instead of using this directly.
	labels := make([]int, len(scores))
	for i, s := range scores {
		if s > float64(len(b.sorted))*3 {
			labels[i] = 1
		}
	}
	return labels, nil
}

// tailScore computes -log(min(left tail prob, right tail prob)) for v
// against the empirical distribution in sorted, clamped away from zero so
// values at or beyond the training extremes don't diverge to +Inf.
func tailScore(sorted []float64, v float64) float64 {
	n := float64(len(sorted))
	if n == 0 {
		return 0
	}
	lessThan := float64(sort.SearchFloat64s(sorted, v)) // count of training values < v
	left := lessThan / n
	right := 1 - left

	const epsilon = 1.0 / 1e6
	if left < epsilon {
		left = epsilon
	}
	if right < epsilon {
		right = epsilon
	}
	tail := left
	if right < tail {
		tail = right
	}
	return -math.Log(tail)
}

// NewDefaultBackendFactory returns a BackendFactory serving the "ecod"
// backend with a real implementation; any other name is rejected with an
// error naming the gap, directing callers to supply their own factory for
// the remaining PyOD-style backends in BackendRegistry.
func NewDefaultBackendFactory() BackendFactory {
	return func(backend string, contamination float64) (models.AnomalyBackend, error) {
		if backend != "ecod" {
			return nil, fmt.Errorf("anomaly: no built-in implementation for backend %q (only \"ecod\" ships natively; "+
				"supply a custom BackendFactory for the rest of models.BackendRegistry)", backend)
		}
		return NewECODBackend(), nil
	}
}
