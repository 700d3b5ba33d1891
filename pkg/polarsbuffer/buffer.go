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

// Package polarsbuffer implements the sliding-window columnar buffer used
// by the streaming anomaly detector. Grounded on
// original_source/runtimes/universal/utils/polars_buffer.py's PolarsBuffer:
// a fixed-window table that grows one row at a time, truncates to the most
// recent N rows, and exposes rolling statistics for feature engineering.
// Polars itself has no Go equivalent in the retrieved corpus, so the table
// is re-expressed as plain columnar slices (one []float64 or []string per
// column) behind a mutex, in place of an Arrow-backed DataFrame.
package polarsbuffer

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Record is a single row appended to a Buffer: column name to value.
// Values are classified numeric (float64/float32/int/int64/int32/bool) or
// treated as strings via fmt.Sprint on first sight of that column.
type Record map[string]any

// Stats mirrors polars_buffer.py's BufferStats snapshot.
type Stats struct {
	Size            int
	WindowSize      int
	Columns         []string
	NumericColumns  []string
	AppendCount     int64
	AvgAppendMicros float64
}

type numericColumn struct {
	values []float64
}

type stringColumn struct {
	values []string
}

// Buffer is a thread-safe, fixed-window columnar table. All public methods
// hold an internal mutex; none are safe to call while already holding it.
type Buffer struct {
	mu          sync.Mutex
	id          string
	windowSize  int
	columnOrder []string
	isNumeric   map[string]bool
	numeric     map[string]*numericColumn
	strings     map[string]*stringColumn
	size        int
	appendCount int64
	appendNanos int64
}

// New creates a Buffer retaining at most windowSize rows. windowSize <= 0
// falls back to 1000, matching polars_buffer.py's default.
func New(windowSize int) *Buffer {
	if windowSize <= 0 {
		windowSize = 1000
	}
	return &Buffer{
		id:         uuid.NewString(),
		windowSize: windowSize,
		isNumeric:  make(map[string]bool),
		numeric:    make(map[string]*numericColumn),
		strings:    make(map[string]*stringColumn),
	}
}

// ID returns the buffer's generated identifier.
func (b *Buffer) ID() string { return b.id }

// WindowSize returns the configured retention window.
func (b *Buffer) WindowSize() int { return b.windowSize }

// Size returns the current row count.
func (b *Buffer) Size() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.size
}

// Columns returns all known column names in first-seen order.
func (b *Buffer) Columns() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, len(b.columnOrder))
	copy(out, b.columnOrder)
	return out
}

// NumericColumns returns the subset of Columns classified numeric.
func (b *Buffer) NumericColumns() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []string
	for _, c := range b.columnOrder {
		if b.isNumeric[c] {
			out = append(out, c)
		}
	}
	return out
}

// Append inserts a single row, truncating to the window if over capacity.
func (b *Buffer) Append(record Record) {
	b.AppendBatch([]Record{record})
}

// AppendBatch inserts many rows at once, truncating once at the end —
// cheaper than the same number of individual Append calls since the
// window trim (an O(window) copy) runs a single time per call rather than
// once per row.
func (b *Buffer) AppendBatch(records []Record) {
	if len(records) == 0 {
		return
	}
	start := time.Now()

	b.mu.Lock()
	defer b.mu.Unlock()

	for _, rec := range records {
		b.appendOneLocked(rec)
	}
	b.truncateLocked()

	elapsed := time.Since(start)
	b.appendCount += int64(len(records))
	b.appendNanos += elapsed.Nanoseconds()
}

func (b *Buffer) appendOneLocked(rec Record) {
	seen := make(map[string]bool, len(rec))
	for key, val := range rec {
		seen[key] = true
		b.setValueLocked(key, val)
	}
	for _, key := range b.columnOrder {
		if !seen[key] {
			b.padNullLocked(key)
		}
	}
	b.size++
}

func (b *Buffer) setValueLocked(key string, val any) {
	if _, known := b.isNumeric[key]; !known {
		_, numeric := toFloat64(val)
		b.isNumeric[key] = numeric
		b.columnOrder = append(b.columnOrder, key)
		if numeric {
			col := &numericColumn{values: make([]float64, b.size)}
			for i := range col.values {
				col.values[i] = math.NaN()
			}
			b.numeric[key] = col
		} else {
			b.strings[key] = &stringColumn{values: make([]string, b.size)}
		}
	}

	if b.isNumeric[key] {
		f, ok := toFloat64(val)
		if !ok {
			f = math.NaN()
		}
		col := b.numeric[key]
		col.values = append(col.values, f)
	} else {
		col := b.strings[key]
		col.values = append(col.values, fmt.Sprint(val))
	}
}

func (b *Buffer) padNullLocked(key string) {
	if b.isNumeric[key] {
		col := b.numeric[key]
		col.values = append(col.values, math.NaN())
	} else {
		col := b.strings[key]
		col.values = append(col.values, "")
	}
}

// truncateLocked keeps the tail-most windowSize rows of every column,
// matching polars_buffer.py's df.tail(window_size).
func (b *Buffer) truncateLocked() {
	if b.size <= b.windowSize {
		return
	}
	excess := b.size - b.windowSize
	for _, key := range b.columnOrder {
		if b.isNumeric[key] {
			col := b.numeric[key]
			col.values = append(col.values[:0:0], col.values[excess:]...)
		} else {
			col := b.strings[key]
			col.values = append(col.values[:0:0], col.values[excess:]...)
		}
	}
	b.size = b.windowSize
}

func toFloat64(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case int32:
		return float64(x), true
	case bool:
		if x {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}

// Clear resets the buffer to empty, including its performance counters.
func (b *Buffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.columnOrder = nil
	b.isNumeric = make(map[string]bool)
	b.numeric = make(map[string]*numericColumn)
	b.strings = make(map[string]*stringColumn)
	b.size = 0
	b.appendCount = 0
	b.appendNanos = 0
}

// GetStats reports the buffer's current shape and append-latency average.
func (b *Buffer) GetStats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()

	stats := Stats{
		Size:       b.size,
		WindowSize:  b.windowSize,
		Columns:     append([]string(nil), b.columnOrder...),
		AppendCount: b.appendCount,
	}
	for _, c := range b.columnOrder {
		if b.isNumeric[c] {
			stats.NumericColumns = append(stats.NumericColumns, c)
		}
	}
	if b.appendCount > 0 {
		stats.AvgAppendMicros = float64(b.appendNanos) / float64(b.appendCount) / 1000.0
	}
	return stats
}

// GetData returns a snapshot of the raw buffer contents.
func (b *Buffer) GetData() *Table {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.snapshotLocked()
}

// GetNumeric returns only the numeric columns, as a column-major matrix in
// NumericColumns() order — the Go analogue of polars_buffer.py's
// get_numpy().
func (b *Buffer) GetNumeric() ([]string, [][]float64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var names []string
	for _, c := range b.columnOrder {
		if b.isNumeric[c] {
			names = append(names, c)
		}
	}
	cols := make([][]float64, len(names))
	for i, name := range names {
		cols[i] = append([]float64(nil), b.numeric[name].values...)
	}
	return names, cols
}

// ToList converts the buffer to row-major records in column order.
func (b *Buffer) ToList() []Record {
	b.mu.Lock()
	t := b.snapshotLocked()
	b.mu.Unlock()
	return t.ToRecords()
}

// GetLatest returns the most recent n rows, optionally with rolling
// features computed first (over the whole buffer, then tailed — matching
// polars_buffer.py's get_latest(with_features=True) ordering).
func (b *Buffer) GetLatest(n int, withFeatures bool, cfg FeatureConfig) *Table {
	var t *Table
	if withFeatures {
		t = b.GetFeatures(cfg)
	} else {
		t = b.GetData()
	}
	return t.Tail(n)
}

// GetFeatures computes rolling features over a snapshot of the buffer.
// Snapshotting under the lock and computing outside it keeps feature
// computation from blocking concurrent appends.
func (b *Buffer) GetFeatures(cfg FeatureConfig) *Table {
	b.mu.Lock()
	snap := b.snapshotLocked()
	b.mu.Unlock()
	return computeFeatures(snap, cfg)
}

func (b *Buffer) snapshotLocked() *Table {
	t := &Table{
		Size:        b.size,
		ColumnOrder: append([]string(nil), b.columnOrder...),
		IsNumeric:   make(map[string]bool, len(b.columnOrder)),
		Numeric:     make(map[string][]float64),
		Strings:     make(map[string][]string),
	}
	for _, key := range b.columnOrder {
		t.IsNumeric[key] = b.isNumeric[key]
		if b.isNumeric[key] {
			t.Numeric[key] = append([]float64(nil), b.numeric[key].values...)
		} else {
			t.Strings[key] = append([]string(nil), b.strings[key].values...)
		}
	}
	return t
}

// String gives a short repr, matching polars_buffer.py's __repr__.
func (b *Buffer) String() string {
	return fmt.Sprintf("Buffer(id=%s, size=%d, window_size=%d)", b.id, b.Size(), b.windowSize)
}
