// Package scoring labels traffic tables with an isolation-forest ensemble.
package scoring

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/hed1ad/netsight/pkg/detectors/iforest"
	"github.com/hed1ad/netsight/pkg/traffic"
)

// Feature column names the scorer can select.
const (
	FeatureBytesSent     = "bytes_sent"
	FeatureBytesReceived = "bytes_received"
	FeatureRequestCount  = "request_count"
	FeaturePort          = "port"
)

var featureAccessors = map[string]func(traffic.Record) float64{
	FeatureBytesSent:     func(r traffic.Record) float64 { return float64(r.BytesSent) },
	FeatureBytesReceived: func(r traffic.Record) float64 { return float64(r.BytesReceived) },
	FeatureRequestCount:  func(r traffic.Record) float64 { return float64(r.RequestCount) },
	FeaturePort:          func(r traffic.Record) float64 { return float64(r.Port) },
}

// DefaultFeatures returns the feature columns scored by default.
func DefaultFeatures() []string {
	return []string{FeatureBytesSent, FeatureBytesReceived, FeatureRequestCount}
}

// ErrEmptyBatch is returned when a scoring call receives no records.
var ErrEmptyBatch = errors.New("empty batch")

// ScoringError reports a failed fit or predict. The batch that caused it is
// always handed back to the caller unchanged.
type ScoringError struct {
	Op  string // "features", "fit" or "predict"
	Err error
}

func (e *ScoringError) Error() string {
	return "scoring: " + e.Op + ": " + e.Err.Error()
}

func (e *ScoringError) Unwrap() error {
	return e.Err
}

// Scorer fits a fresh isolation forest per batch and labels every record.
// It holds no model state between calls.
type Scorer struct {
	features   []string
	trees      int
	sampleSize int
	seed       int64
	workers    int
}

// Option configures a Scorer.
type Option func(*Scorer)

// WithFeatures selects the feature columns to score on.
func WithFeatures(names ...string) Option {
	return func(s *Scorer) {
		s.features = names
	}
}

// WithTrees sets the ensemble size.
func WithTrees(n int) Option {
	return func(s *Scorer) {
		s.trees = n
	}
}

// WithSeed sets the model seed.
func WithSeed(seed int64) Option {
	return func(s *Scorer) {
		s.seed = seed
	}
}

// WithWorkers caps model parallelism.
func WithWorkers(n int) Option {
	return func(s *Scorer) {
		s.workers = n
	}
}

// NewScorer creates a scorer with the default feature set and model shape.
func NewScorer(opts ...Option) *Scorer {
	s := &Scorer{
		features:   DefaultFeatures(),
		trees:      100,
		sampleSize: 256,
		seed:       42,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Score fits an isolation forest on the batch's selected features and
// returns a copy of the records with Label and Confidence populated on
// every row. Row count, row order and base fields are never changed.
//
// On any failure the original slice is returned unchanged alongside a
// *ScoringError; callers must treat unscored records as "scoring
// unavailable" rather than a fatal condition.
func (s *Scorer) Score(records []traffic.Record, contamination float64) ([]traffic.Record, error) {
	if len(records) == 0 {
		return records, &ScoringError{Op: "fit", Err: ErrEmptyBatch}
	}

	matrix, err := s.matrix(records)
	if err != nil {
		return records, err
	}

	forest := iforest.New(
		iforest.WithTrees(s.trees),
		iforest.WithSampleSize(s.sampleSize),
		iforest.WithContamination(contamination),
		iforest.WithSeed(s.seed),
		iforest.WithWorkers(s.workers),
	)

	if err := forest.Fit(matrix); err != nil {
		return records, &ScoringError{Op: "fit", Err: err}
	}

	labels, err := forest.Labels(matrix)
	if err != nil {
		return records, &ScoringError{Op: "predict", Err: err}
	}
	decisions, err := forest.DecisionFunction(matrix)
	if err != nil {
		return records, &ScoringError{Op: "predict", Err: err}
	}

	scored := make([]traffic.Record, len(records))
	copy(scored, records)
	for i := range scored {
		if labels[i] < 0 {
			scored[i].Label = traffic.LabelAnomalous
		} else {
			scored[i].Label = traffic.LabelNormal
		}
		scored[i].Confidence = decisions[i]
	}

	log.Debug().
		Int("records", len(scored)).
		Float64("contamination", contamination).
		Msg("Batch scored")

	return scored, nil
}

// Features returns the configured feature column names.
func (s *Scorer) Features() []string {
	names := make([]string, len(s.features))
	copy(names, s.features)
	return names
}

// matrix extracts the selected feature columns into a dense matrix.
func (s *Scorer) matrix(records []traffic.Record) ([][]float64, error) {
	accessors := make([]func(traffic.Record) float64, len(s.features))
	for i, name := range s.features {
		fn, ok := featureAccessors[name]
		if !ok {
			return nil, &ScoringError{Op: "features", Err: fmt.Errorf("unknown feature column %q", name)}
		}
		accessors[i] = fn
	}
	if len(accessors) == 0 {
		return nil, &ScoringError{Op: "features", Err: errors.New("no feature columns selected")}
	}

	matrix := make([][]float64, len(records))
	for i, r := range records {
		row := make([]float64, len(accessors))
		for j, fn := range accessors {
			row[j] = fn(r)
		}
		matrix[i] = row
	}
	return matrix, nil
}
