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
	"fmt"
	"math"
	"sort"
)

// FeatureConfig configures rolling feature computation, grounded on
// rolling_features.py's RollingFeatureConfig.
type FeatureConfig struct {
	RollingWindows []int
	// IncludeStats selects which rolling statistics to compute:
	// "mean", "std", "min", "max", "sum", "median".
	IncludeStats  []string
	IncludeLags   bool
	LagPeriods    []int
	RateOfChange  bool
	IncludeEWM    bool
	EWMSpans      []int
	ZScore        bool
	MinMaxScale   bool
	FillNullValue float64
}

// DefaultFeatureConfig matches polars_buffer.py's get_features defaults.
func DefaultFeatureConfig() FeatureConfig {
	return FeatureConfig{
		RollingWindows: []int{5, 10, 20},
		IncludeStats:   []string{"mean", "std", "min", "max"},
		IncludeLags:    true,
		LagPeriods:     []int{1, 2, 3},
		FillNullValue:  0.0,
	}
}

func (c FeatureConfig) hasStat(name string) bool {
	for _, s := range c.IncludeStats {
		if s == name {
			return true
		}
	}
	return false
}

// computeFeatures augments a Table snapshot with rolling statistics, lag,
// rate-of-change, EWM, z-score, and min-max columns over every numeric
// column — pure and deterministic given (table, config), matching
// polars_buffer.py's get_features / rolling_features.py's compute_features.
func computeFeatures(t *Table, cfg FeatureConfig) *Table {
	if len(cfg.RollingWindows) == 0 {
		cfg.RollingWindows = []int{5, 10, 20}
	}
	if len(cfg.IncludeStats) == 0 {
		cfg.IncludeStats = []string{"mean", "std", "min", "max"}
	}
	if cfg.IncludeLags && len(cfg.LagPeriods) == 0 {
		cfg.LagPeriods = []int{1, 2, 3}
	}

	out := t.clone()
	if t.Size == 0 {
		return out
	}

	numericCols := make([]string, 0, len(t.Numeric))
	for _, name := range t.ColumnOrder {
		if t.IsNumeric[name] {
			numericCols = append(numericCols, name)
		}
	}

	for _, col := range numericCols {
		xs := t.Numeric[col]

		for _, w := range cfg.RollingWindows {
			if w > len(xs) || w <= 0 {
				continue
			}
			if cfg.hasStat("mean") {
				out.addColumn(fmt.Sprintf("%s_rolling_mean_%d", col, w), fillNull(rollingMean(xs, w), cfg.FillNullValue))
			}
			if cfg.hasStat("std") {
				out.addColumn(fmt.Sprintf("%s_rolling_std_%d", col, w), fillNull(rollingStd(xs, w), cfg.FillNullValue))
			}
			if cfg.hasStat("min") {
				out.addColumn(fmt.Sprintf("%s_rolling_min_%d", col, w), fillNull(rollingReduce(xs, w, minOf), cfg.FillNullValue))
			}
			if cfg.hasStat("max") {
				out.addColumn(fmt.Sprintf("%s_rolling_max_%d", col, w), fillNull(rollingReduce(xs, w, maxOf), cfg.FillNullValue))
			}
			if cfg.hasStat("sum") {
				out.addColumn(fmt.Sprintf("%s_rolling_sum_%d", col, w), fillNull(rollingReduce(xs, w, sumOf), cfg.FillNullValue))
			}
			if cfg.hasStat("median") {
				out.addColumn(fmt.Sprintf("%s_rolling_median_%d", col, w), fillNull(rollingReduce(xs, w, medianOf), cfg.FillNullValue))
			}
		}

		if cfg.IncludeLags {
			for _, k := range cfg.LagPeriods {
				out.addColumn(fmt.Sprintf("%s_lag_%d", col, k), fillNull(lag(xs, k), cfg.FillNullValue))
			}
		}

		if cfg.RateOfChange {
			periods := cfg.LagPeriods
			if len(periods) == 0 {
				periods = []int{1}
			}
			for _, k := range periods {
				out.addColumn(fmt.Sprintf("%s_roc_%d", col, k), fillNull(rateOfChange(xs, k), cfg.FillNullValue))
			}
		}

		if cfg.IncludeEWM {
			spans := cfg.EWMSpans
			if len(spans) == 0 {
				spans = []int{5, 10, 20}
			}
			for _, span := range spans {
				out.addColumn(fmt.Sprintf("%s_ewm_%d", col, span), ewm(xs, span))
			}
		}

		if cfg.ZScore {
			out.addColumn(col+"_zscore", zscore(xs))
		}
		if cfg.MinMaxScale {
			out.addColumn(col+"_minmax", minMaxScale(xs))
		}
	}

	return out
}

// fillNull replaces NaN sentinels (cold-start / undefined positions) with
// value, matching polars_buffer.py's fill_null(fill_null_value).
func fillNull(xs []float64, value float64) []float64 {
	out := make([]float64, len(xs))
	for i, x := range xs {
		if math.IsNaN(x) {
			out[i] = value
		} else {
			out[i] = x
		}
	}
	return out
}

// rollingMean computes a trailing mean over window w; positions with
// fewer than w prior samples are NaN (cold start), matching Polars'
// default min_periods == window.
func rollingMean(xs []float64, w int) []float64 {
	out := make([]float64, len(xs))
	var sum float64
	for i, x := range xs {
		sum += x
		if i >= w {
			sum -= xs[i-w]
		}
		if i < w-1 {
			out[i] = math.NaN()
		} else {
			out[i] = sum / float64(w)
		}
	}
	return out
}

// rollingStd computes a trailing sample standard deviation (ddof=1, Polars'
// default) over window w.
func rollingStd(xs []float64, w int) []float64 {
	out := make([]float64, len(xs))
	for i := range xs {
		if i < w-1 {
			out[i] = math.NaN()
			continue
		}
		window := xs[i-w+1 : i+1]
		var mean float64
		for _, v := range window {
			mean += v
		}
		mean /= float64(w)
		var sq float64
		for _, v := range window {
			d := v - mean
			sq += d * d
		}
		if w > 1 {
			out[i] = math.Sqrt(sq / float64(w-1))
		} else {
			out[i] = 0
		}
	}
	return out
}

type windowReducer func([]float64) float64

func rollingReduce(xs []float64, w int, reduce windowReducer) []float64 {
	out := make([]float64, len(xs))
	for i := range xs {
		if i < w-1 {
			out[i] = math.NaN()
			continue
		}
		out[i] = reduce(xs[i-w+1 : i+1])
	}
	return out
}

func minOf(xs []float64) float64 {
	m := xs[0]
	for _, v := range xs[1:] {
		if v < m {
			m = v
		}
	}
	return m
}

func maxOf(xs []float64) float64 {
	m := xs[0]
	for _, v := range xs[1:] {
		if v > m {
			m = v
		}
	}
	return m
}

func sumOf(xs []float64) float64 {
	var s float64
	for _, v := range xs {
		s += v
	}
	return s
}

func medianOf(xs []float64) float64 {
	return percentile(append([]float64(nil), xs...), 50)
}

// percentile uses linear interpolation between closest ranks, matching
// numpy's default ("linear") percentile method.
func percentile(xs []float64, p float64) float64 {
	if len(xs) == 0 {
		return math.NaN()
	}
	sorted := append([]float64(nil), xs...)
	sort.Float64s(sorted)
	if len(sorted) == 1 {
		return sorted[0]
	}
	rank := p / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi {
		return sorted[lo]
	}
	frac := rank - float64(lo)
	return sorted[lo] + frac*(sorted[hi]-sorted[lo])
}

// lag shifts xs forward by k positions, matching Polars' shift(k): the
// first k entries are NaN (undefined, no prior value).
func lag(xs []float64, k int) []float64 {
	out := make([]float64, len(xs))
	for i := range xs {
		if i < k {
			out[i] = math.NaN()
		} else {
			out[i] = xs[i-k]
		}
	}
	return out
}

// rateOfChange computes (x[i] - x[i-k]) / x[i-k]; a zero or undefined
// denominator yields NaN rather than +/-Inf.
func rateOfChange(xs []float64, k int) []float64 {
	out := make([]float64, len(xs))
	for i := range xs {
		if i < k || xs[i-k] == 0 {
			out[i] = math.NaN()
			continue
		}
		out[i] = (xs[i] - xs[i-k]) / xs[i-k]
	}
	return out
}

// ewm computes an exponentially weighted moving average with pandas'
// adjust=True normalization: alpha = 2/(span+1).
func ewm(xs []float64, span int) []float64 {
	if span <= 0 {
		span = 1
	}
	alpha := 2.0 / (float64(span) + 1.0)
	out := make([]float64, len(xs))
	var numerator, denominator float64
	for i, x := range xs {
		numerator = x + (1-alpha)*numerator
		denominator = 1 + (1-alpha)*denominator
		out[i] = numerator / denominator
	}
	return out
}

// zscore standardizes the whole column: (x - mean) / stddev (ddof=1).
func zscore(xs []float64) []float64 {
	mean, std := meanStdDev(xs)
	out := make([]float64, len(xs))
	for i, x := range xs {
		if std == 0 {
			out[i] = 0
		} else {
			out[i] = (x - mean) / std
		}
	}
	return out
}

// minMaxScale rescales the whole column into [0, 1].
func minMaxScale(xs []float64) []float64 {
	if len(xs) == 0 {
		return nil
	}
	lo, hi := xs[0], xs[0]
	for _, v := range xs[1:] {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	out := make([]float64, len(xs))
	span := hi - lo
	for i, x := range xs {
		if span == 0 {
			out[i] = 0
		} else {
			out[i] = (x - lo) / span
		}
	}
	return out
}

func meanStdDev(xs []float64) (mean, std float64) {
	n := float64(len(xs))
	if n == 0 {
		return 0, 0
	}
	for _, v := range xs {
		mean += v
	}
	mean /= n
	if n < 2 {
		return mean, 0
	}
	var sq float64
	for _, v := range xs {
		d := v - mean
		sq += d * d
	}
	return mean, math.Sqrt(sq / (n - 1))
}
