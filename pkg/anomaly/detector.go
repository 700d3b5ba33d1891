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

// Package anomaly implements the streaming anomaly detector: a per-model
// state machine that ingests points into a sliding buffer, does fast
// inference against the current fitted model, and retrains in the
// background once enough new samples have accumulated. Grounded on
// original_source/runtimes/universal/models/streaming_anomaly.py's
// StreamingAnomalyDetector (the Tick-Tock pattern), re-expressed with a
// goroutine replacing asyncio.create_task and pkg/models.AnomalyWrapper
// supplying score normalization and thresholding.
package anomaly

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/llamafarm/llamafarm-core/pkg/models"
	"github.com/llamafarm/llamafarm-core/pkg/polarsbuffer"
)

// Status mirrors streaming_anomaly.py's DetectorStatus.
type Status string

const (
	StatusCollecting Status = "collecting"
	StatusReady      Status = "ready"
	StatusRetraining Status = "retraining"
)

// BackendFactory constructs a fresh AnomalyBackend instance for a named
// algorithm — the streaming detector builds a brand-new backend on every
// initial fit and every retrain, matching create_detector(backend, ...)
// in streaming_anomaly.py's _fit_detector.
type BackendFactory func(backend string, contamination float64) (models.AnomalyBackend, error)

// Config configures one streaming detector. Zero-valued fields fall back
// to streaming_anomaly.py's constructor defaults via DefaultConfig.
type Config struct {
	ModelID         string
	Backend         string
	MinSamples      int
	RetrainInterval int
	WindowSize      int
	Contamination   float64
	Threshold       float64
	Normalization   models.NormalizationMode
	RollingWindows  []int
	IncludeLags     bool
	LagPeriods      []int
}

// DefaultConfig returns streaming_anomaly.py's constructor defaults for modelID.
func DefaultConfig(modelID string) Config {
	return Config{
		ModelID:         modelID,
		Backend:         "ecod",
		MinSamples:      50,
		RetrainInterval: 100,
		WindowSize:      1000,
		Contamination:   0.1,
		Threshold:       0.5,
		Normalization:   models.NormalizationStandardization,
	}
}

func (c Config) withDefaults() Config {
	if c.Backend == "" {
		c.Backend = "ecod"
	}
	if c.MinSamples <= 0 {
		c.MinSamples = 50
	}
	if c.RetrainInterval <= 0 {
		c.RetrainInterval = 100
	}
	if c.WindowSize <= 0 {
		c.WindowSize = 1000
	}
	if c.Threshold == 0 {
		c.Threshold = 0.5
	}
	if c.Normalization == "" {
		c.Normalization = models.NormalizationStandardization
	}
	return c
}

// Result is one point's processing outcome, matching StreamingResult.
// Score, IsAnomaly, and RawScore are nil while the detector is Collecting.
type Result struct {
	Index             int
	Score             *float64
	IsAnomaly         *bool
	RawScore          *float64
	Status            Status
	SamplesCollected  int
	SamplesUntilReady int
	ModelVersion      int
}

// BatchResult is the outcome of ProcessBatch, matching StreamingBatchResult.
type BatchResult struct {
	Results          []Result
	Status           Status
	SamplesCollected int
	ModelVersion     int
	ProcessingTime   time.Duration
}

// Stats is the detector's /stats response shape, matching get_stats().
type Stats struct {
	ModelID             string
	Backend             string
	Status              Status
	ModelVersion        int
	SamplesCollected    int
	TotalProcessed      int64
	SamplesSinceRetrain int
	MinSamples          int
	RetrainInterval     int
	WindowSize          int
	Threshold           float64
	IsReady             bool
}

// Detector is a single streaming anomaly detector instance: one sliding
// buffer plus the currently fitted model. All exported methods are safe
// for concurrent use.
type Detector struct {
	cfg     Config
	factory BackendFactory
	buffer  *polarsbuffer.Buffer

	mu                  sync.Mutex
	status              Status
	current             *models.AnomalyWrapper
	modelVersion        int
	samplesSinceRetrain int
	totalProcessed      int64
	retraining          bool
}

// New creates a detector in the Collecting state.
func New(cfg Config, factory BackendFactory) *Detector {
	cfg = cfg.withDefaults()
	return &Detector{
		cfg:     cfg,
		factory: factory,
		buffer:  polarsbuffer.New(cfg.WindowSize),
		status:  StatusCollecting,
	}
}

// ModelID returns the detector's identifier.
func (d *Detector) ModelID() string { return d.cfg.ModelID }

// Status returns the current lifecycle state.
func (d *Detector) Status() Status {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.status
}

// ModelVersion returns the current fitted model's version (0 before the
// first fit).
func (d *Detector) ModelVersion() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.modelVersion
}

// IsReady reports whether the detector can currently score points —
// true in both Ready and Retraining (inference continues against the
// previous model while a retrain runs in the background).
func (d *Detector) IsReady() bool {
	status := d.Status()
	return status == StatusReady || status == StatusRetraining
}

// Process ingests one data point and returns its scoring result.
// Invariant: status == Collecting iff no model has been fitted yet.
func (d *Detector) Process(ctx context.Context, record polarsbuffer.Record, index int) (Result, error) {
	d.buffer.Append(record)

	d.mu.Lock()
	d.totalProcessed++
	d.samplesSinceRetrain++
	status := d.status
	d.mu.Unlock()

	if status == StatusCollecting {
		size := d.buffer.Size()
		if size >= d.cfg.MinSamples {
			if err := d.fitDetector(ctx, 1); err != nil {
				return Result{}, fmt.Errorf("anomaly: training initial model for %s: %w", d.cfg.ModelID, err)
			}
		}
		d.mu.Lock()
		defer d.mu.Unlock()
		return Result{
			Index:             index,
			Status:            d.status,
			SamplesCollected:  d.buffer.Size(),
			SamplesUntilReady: maxInt(0, d.cfg.MinSamples-d.buffer.Size()),
			ModelVersion:      d.modelVersion,
		}, nil
	}

	score, raw, isAnomaly, err := d.scorePoint()
	if err != nil {
		return Result{}, err
	}

	d.mu.Lock()
	shouldRetrain := d.samplesSinceRetrain >= d.cfg.RetrainInterval && !d.retraining
	d.mu.Unlock()
	if shouldRetrain {
		go d.retrainModel(context.Background())
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	return Result{
		Index:             index,
		Score:             &score,
		RawScore:          &raw,
		IsAnomaly:         &isAnomaly,
		Status:            d.status,
		SamplesCollected:  d.buffer.Size(),
		SamplesUntilReady: 0,
		ModelVersion:      d.modelVersion,
	}, nil
}

// ProcessBatch processes records in order, matching process_batch's
// semantics of sequential per-point processing (the first point in the
// batch can flip Collecting -> Ready mid-batch).
func (d *Detector) ProcessBatch(ctx context.Context, records []polarsbuffer.Record) (BatchResult, error) {
	start := time.Now()
	results := make([]Result, len(records))
	for i, rec := range records {
		res, err := d.Process(ctx, rec, i)
		if err != nil {
			return BatchResult{}, err
		}
		results[i] = res
	}
	return BatchResult{
		Results:          results,
		Status:           d.Status(),
		SamplesCollected: d.buffer.Size(),
		ModelVersion:     d.ModelVersion(),
		ProcessingTime:   time.Since(start),
	}, nil
}

// scorePoint scores the most recently appended row against the current
// fitted model.
func (d *Detector) scorePoint() (score, raw float64, isAnomaly bool, err error) {
	d.mu.Lock()
	current := d.current
	threshold := d.cfg.Threshold
	d.mu.Unlock()

	if current == nil {
		return 0, 0, false, fmt.Errorf("anomaly: %s has no fitted model yet", d.cfg.ModelID)
	}

	X := d.latestFeatureRow()
	rawScores, err := current.RawDecisionFunction(X)
	if err != nil {
		return 0, 0, false, fmt.Errorf("anomaly: scoring %s: %w", d.cfg.ModelID, err)
	}
	normScores, err := current.DecisionFunction(X)
	if err != nil {
		return 0, 0, false, fmt.Errorf("anomaly: normalizing score for %s: %w", d.cfg.ModelID, err)
	}

	return normScores[0], rawScores[0], normScores[0] > threshold, nil
}

// fitDetector builds a training matrix from the buffer, fits a fresh
// backend instance, and swaps it in as the detector's current model.
func (d *Detector) fitDetector(ctx context.Context, version int) error {
	matrix := d.trainingMatrix()
	if len(matrix) == 0 {
		return fmt.Errorf("anomaly: no data in buffer for %s", d.cfg.ModelID)
	}

	impl, err := d.factory(d.cfg.Backend, d.cfg.Contamination)
	if err != nil {
		return fmt.Errorf("anomaly: creating backend %q: %w", d.cfg.Backend, err)
	}

	threshold := d.cfg.Threshold
	wrapper := models.NewAnomalyWrapper(d.cfg.ModelID, d.cfg.Backend, d.cfg.Contamination, &threshold, d.cfg.Normalization, "", impl)
	if err := wrapper.Load(ctx); err != nil {
		return err
	}
	if err := wrapper.Fit(matrix); err != nil {
		return err
	}

	d.mu.Lock()
	d.current = wrapper
	d.modelVersion = version
	d.samplesSinceRetrain = 0
	if d.status == StatusCollecting {
		d.status = StatusReady
	}
	d.mu.Unlock()
	return nil
}

// retrainModel runs fitDetector in the background; failures are logged and
// swallowed so a bad retrain never disrupts inference against the
// previously fitted model, matching streaming_anomaly.py's _retrain_model
// try/except/finally.
func (d *Detector) retrainModel(ctx context.Context) {
	d.mu.Lock()
	if d.retraining {
		d.mu.Unlock()
		return
	}
	d.retraining = true
	d.status = StatusRetraining
	nextVersion := d.modelVersion + 1
	d.mu.Unlock()

	if err := d.fitDetector(ctx, nextVersion); err != nil {
		slog.Error("anomaly: background retrain failed", "model_id", d.cfg.ModelID, "error", err)
	}

	d.mu.Lock()
	d.retraining = false
	d.status = StatusReady
	d.mu.Unlock()
}

// trainingMatrix snapshots the buffer as a row-major numeric matrix,
// applying rolling features first when configured — matching
// _fit_detector's rolling_windows branch.
func (d *Detector) trainingMatrix() [][]float64 {
	if len(d.cfg.RollingWindows) > 0 {
		table := d.buffer.GetFeatures(d.featureConfig())
		return columnsToRows(numericColumns(table))
	}
	_, cols := d.buffer.GetNumeric()
	return columnsToRows(cols)
}

// latestFeatureRow returns the most recent row's feature vector, computed
// over the same feature space used to train the current model.
func (d *Detector) latestFeatureRow() [][]float64 {
	if len(d.cfg.RollingWindows) > 0 {
		table := d.buffer.GetFeatures(d.featureConfig()).Tail(1)
		return columnsToRows(numericColumns(table))
	}
	_, cols := d.buffer.GetNumeric()
	return columnsToRows(tailColumns(cols, 1))
}

func (d *Detector) featureConfig() polarsbuffer.FeatureConfig {
	return polarsbuffer.FeatureConfig{
		RollingWindows: d.cfg.RollingWindows,
		IncludeStats:   []string{"mean", "std", "min", "max"},
		IncludeLags:    d.cfg.IncludeLags,
		LagPeriods:     d.cfg.LagPeriods,
		FillNullValue:  0.0,
	}
}

// GetStats reports the detector's current shape, matching get_stats().
func (d *Detector) GetStats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return Stats{
		ModelID:             d.cfg.ModelID,
		Backend:             d.cfg.Backend,
		Status:              d.status,
		ModelVersion:        d.modelVersion,
		SamplesCollected:    d.buffer.Size(),
		TotalProcessed:      d.totalProcessed,
		SamplesSinceRetrain: d.samplesSinceRetrain,
		MinSamples:          d.cfg.MinSamples,
		RetrainInterval:     d.cfg.RetrainInterval,
		WindowSize:          d.cfg.WindowSize,
		Threshold:           d.cfg.Threshold,
		IsReady:             d.status == StatusReady || d.status == StatusRetraining,
	}
}

// Reset returns the detector to its initial Collecting state, discarding
// the buffer and any fitted model.
func (d *Detector) Reset() {
	d.buffer.Clear()
	d.mu.Lock()
	defer d.mu.Unlock()
	d.current = nil
	d.modelVersion = 0
	d.status = StatusCollecting
	d.samplesSinceRetrain = 0
	d.totalProcessed = 0
	d.retraining = false
}

func numericColumns(t *polarsbuffer.Table) [][]float64 {
	cols := make([][]float64, 0, len(t.ColumnOrder))
	for _, name := range t.ColumnOrder {
		if t.IsNumeric[name] {
			cols = append(cols, t.Numeric[name])
		}
	}
	return cols
}

func columnsToRows(cols [][]float64) [][]float64 {
	if len(cols) == 0 {
		return nil
	}
	n := len(cols[0])
	rows := make([][]float64, n)
	for i := 0; i < n; i++ {
		row := make([]float64, len(cols))
		for j := range cols {
			row[j] = cols[j][i]
		}
		rows[i] = row
	}
	return rows
}

func tailColumns(cols [][]float64, n int) [][]float64 {
	out := make([][]float64, len(cols))
	for i, col := range cols {
		if len(col) <= n {
			out[i] = col
			continue
		}
		out[i] = col[len(col)-n:]
	}
	return out
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
