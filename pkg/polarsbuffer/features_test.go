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

package polarsbuffer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetFeatures_RollingMeanColdStartFilledWithZero(t *testing.T) {
	b := New(100)
	for i := 1; i <= 5; i++ {
		b.Append(Record{"value": float64(i)})
	}

	cfg := FeatureConfig{RollingWindows: []int{3}, IncludeStats: []string{"mean"}, FillNullValue: 0}
	table := b.GetFeatures(cfg)

	col, ok := table.Column("value_rolling_mean_3")
	require.True(t, ok)
	require.Len(t, col, 5)
	// First two rows lack a full window of 3 and are filled with 0.
	assert.Equal(t, 0.0, col[0])
	assert.Equal(t, 0.0, col[1])
	// Row index 2 (third value) has its first full window: (1+2+3)/3 = 2.
	assert.InDelta(t, 2.0, col[2], 1e-9)
	assert.InDelta(t, 3.0, col[3], 1e-9)
	assert.InDelta(t, 4.0, col[4], 1e-9)
}

func TestGetFeatures_LagShiftsByK(t *testing.T) {
	b := New(100)
	for i := 1; i <= 4; i++ {
		b.Append(Record{"value": float64(i)})
	}
	cfg := FeatureConfig{IncludeLags: true, LagPeriods: []int{1}, FillNullValue: -1}
	table := b.GetFeatures(cfg)

	col, ok := table.Column("value_lag_1")
	require.True(t, ok)
	assert.Equal(t, []float64{-1, 1, 2, 3}, col)
}

func TestGetFeatures_IsDeterministicWithoutIntervalAppends(t *testing.T) {
	b := New(100)
	for i := 1; i <= 20; i++ {
		b.Append(Record{"value": float64(i)})
	}
	cfg := DefaultFeatureConfig()

	first := b.GetFeatures(cfg)
	second := b.GetFeatures(cfg)
	assert.Equal(t, first.Numeric, second.Numeric)
}

func TestGetLatest_WithFeaturesTailsAfterComputing(t *testing.T) {
	b := New(100)
	for i := 1; i <= 10; i++ {
		b.Append(Record{"value": float64(i)})
	}
	cfg := FeatureConfig{RollingWindows: []int{3}, IncludeStats: []string{"mean"}, FillNullValue: 0}
	latest := b.GetLatest(2, true, cfg)

	assert.Equal(t, 2, latest.Size)
	col, ok := latest.Column("value_rolling_mean_3")
	require.True(t, ok)
	require.Len(t, col, 2)
	assert.InDelta(t, 8.0, col[0], 1e-9)
	assert.InDelta(t, 9.0, col[1], 1e-9)
}

func TestZScoreAndMinMaxScale(t *testing.T) {
	xs := []float64{1, 2, 3, 4, 5}
	z := zscore(xs)
	assert.InDelta(t, 0.0, z[2], 1e-9) // middle value sits at the mean

	mm := minMaxScale(xs)
	assert.Equal(t, 0.0, mm[0])
	assert.Equal(t, 1.0, mm[4])
}

func TestPercentile_Median(t *testing.T) {
	xs := []float64{1, 2, 3, 4}
	assert.InDelta(t, 2.5, percentile(xs, 50), 1e-9)
}
