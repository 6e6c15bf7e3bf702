// Package dashboard drives the per-cycle generate/score/summarize pipeline
// behind the traffic anomaly dashboard.
package dashboard

import (
	"time"

	"github.com/rs/zerolog/log"

	"github.com/hed1ad/netsight/pkg/lru"
	"github.com/hed1ad/netsight/pkg/scoring"
	"github.com/hed1ad/netsight/pkg/traffic"
)

// Bounds of the dashboard controls.
const (
	MinSampleSize = 100
	MaxSampleSize = 1000

	MinContamination = 0.01
	MaxContamination = 0.5
)

// Params are the inputs of one display cycle.
type Params struct {
	SampleSize    int     `json:"sample_size"`
	Contamination float64 `json:"contamination"`
	Seed          int64   `json:"seed"`
}

// DefaultParams returns the dashboard's initial control positions.
func DefaultParams() Params {
	return Params{
		SampleSize:    100,
		Contamination: 0.1,
		Seed:          traffic.DefaultSeed,
	}
}

// Clamped returns a copy with SampleSize and Contamination forced into the
// UI ranges. The scorer itself rejects out-of-range contamination; clamping
// stays a presentation-layer concern.
func (p Params) Clamped() Params {
	if p.SampleSize < MinSampleSize {
		p.SampleSize = MinSampleSize
	}
	if p.SampleSize > MaxSampleSize {
		p.SampleSize = MaxSampleSize
	}
	if p.Contamination < MinContamination {
		p.Contamination = MinContamination
	}
	if p.Contamination > MaxContamination {
		p.Contamination = MaxContamination
	}
	return p
}

// Snapshot is the result of one display cycle.
//
// When Degraded is true the scorer failed: Records carry base fields only,
// Anomalies is empty and the anomaly metrics are zero.
type Snapshot struct {
	Params      Params    `json:"params"`
	GeneratedAt time.Time `json:"generated_at"`

	Records   []traffic.Record `json:"records"`
	Anomalies []traffic.Record `json:"anomalies"`

	TotalRecords int     `json:"total_records"`
	AnomalyCount int     `json:"anomaly_count"`
	AnomalyRate  float64 `json:"anomaly_rate"`

	Degraded bool `json:"degraded"`
}

type cacheKey struct {
	seed       int64
	sampleSize int
}

// Pipeline runs the synchronous generate -> score -> summarize cycle.
// Generated tables are cached by (seed, sample size); cached tables are
// cloned before scoring so the cache never sees labels.
type Pipeline struct {
	scorer  *scoring.Scorer
	cache   *lru.Cache[cacheKey, []traffic.Record]
	genOpts []traffic.Option
	metrics *Metrics
}

// PipelineOption configures a Pipeline.
type PipelineOption func(*Pipeline)

// WithScorer replaces the default scorer.
func WithScorer(s *scoring.Scorer) PipelineOption {
	return func(p *Pipeline) {
		p.scorer = s
	}
}

// WithGeneratorOptions forwards options to every generator the pipeline
// creates, e.g. traffic.WithStartTime for reproducible cycles.
func WithGeneratorOptions(opts ...traffic.Option) PipelineOption {
	return func(p *Pipeline) {
		p.genOpts = opts
	}
}

// WithMetrics attaches a metrics collector updated on every refresh.
func WithMetrics(m *Metrics) PipelineOption {
	return func(p *Pipeline) {
		p.metrics = m
	}
}

// NewPipeline creates a pipeline with a default scorer and table cache.
func NewPipeline(opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		scorer: scoring.NewScorer(),
		cache:  lru.New[cacheKey, []traffic.Record](16),
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// Refresh runs one full cycle and returns its snapshot.
//
// A generation failure yields (nil, error): there is no data this cycle.
// A scoring failure yields a degraded snapshot together with the error; the
// records are present but unscored. Callers must check Snapshot.Degraded
// (or the returned error) before reading anomaly fields.
func (p *Pipeline) Refresh(params Params) (*Snapshot, error) {
	params = params.Clamped()
	started := time.Now()

	records, err := p.generate(params)
	if err != nil {
		log.Error().Err(err).Int("sample_size", params.SampleSize).Msg("Traffic generation failed")
		return nil, err
	}

	// Clone so cached tables stay label-free.
	batch := make([]traffic.Record, len(records))
	copy(batch, records)

	scored, err := p.scorer.Score(batch, params.Contamination)
	snap := summarize(params, scored, err == nil)
	if p.metrics != nil {
		p.metrics.ObserveRefresh(snap, time.Since(started))
	}
	if err != nil {
		log.Error().Err(err).Msg("Scoring failed, rendering without anomaly information")
		return snap, err
	}

	log.Info().
		Int("total_records", snap.TotalRecords).
		Int("anomaly_count", snap.AnomalyCount).
		Float64("anomaly_rate", snap.AnomalyRate).
		Msg("Cycle complete")

	return snap, nil
}

func (p *Pipeline) generate(params Params) ([]traffic.Record, error) {
	key := cacheKey{seed: params.Seed, sampleSize: params.SampleSize}
	if cached, ok := p.cache.Get(key); ok {
		return cached, nil
	}

	gen := traffic.NewGenerator(params.Seed, p.genOpts...)
	records, err := gen.Generate(params.SampleSize)
	if err != nil {
		return nil, err
	}

	p.cache.Put(key, records)
	return records, nil
}

func summarize(params Params, records []traffic.Record, scored bool) *Snapshot {
	snap := &Snapshot{
		Params:       params,
		GeneratedAt:  time.Now(),
		Records:      records,
		TotalRecords: len(records),
		Degraded:     !scored,
	}

	if !scored {
		return snap
	}

	for _, r := range records {
		if r.Label == traffic.LabelAnomalous {
			snap.Anomalies = append(snap.Anomalies, r)
		}
	}
	snap.AnomalyCount = len(snap.Anomalies)
	if snap.TotalRecords > 0 {
		snap.AnomalyRate = float64(snap.AnomalyCount) / float64(snap.TotalRecords)
	}

	return snap
}
