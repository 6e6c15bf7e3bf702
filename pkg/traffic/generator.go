package traffic

import (
	"fmt"
	"math"
	"math/rand"
	"time"
)

// Distribution parameters for the synthetic feature columns.
const (
	bytesMeanLog  = 5.0
	bytesSigmaLog = 1.0
	requestRate   = 25.0

	timestampStep = time.Minute
)

// DefaultSeed is the seed used when callers do not supply one.
const DefaultSeed int64 = 42

// GenerationError reports a failed synthetic-table construction.
type GenerationError struct {
	SampleSize int
	Reason     string
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("traffic generation failed (sample_size=%d): %s", e.SampleSize, e.Reason)
}

// Generator produces fixed-schema traffic tables from an explicit seed.
//
// Each call to Generate re-seeds its random stream, so repeated calls with
// the same sample size yield identical random fields. Timestamps default to
// the moment of generation; use WithStartTime for fully reproducible tables.
type Generator struct {
	seed int64
	now  func() time.Time
}

// Option configures a Generator.
type Option func(*Generator)

// WithStartTime pins the timestamp origin instead of using the wall clock.
func WithStartTime(t time.Time) Option {
	return func(g *Generator) {
		g.now = func() time.Time { return t }
	}
}

// NewGenerator creates a generator with the given seed.
func NewGenerator(seed int64, opts ...Option) *Generator {
	g := &Generator{
		seed: seed,
		now:  time.Now,
	}

	for _, opt := range opts {
		opt(g)
	}

	return g
}

// Generate returns exactly sampleSize records with all base fields populated.
// Timestamps are strictly increasing at one-minute spacing.
func (g *Generator) Generate(sampleSize int) ([]Record, error) {
	if sampleSize < 1 {
		return nil, &GenerationError{SampleSize: sampleSize, Reason: "sample size must be positive"}
	}

	// Fresh stream per call keeps successive calls reproducible.
	rng := rand.New(rand.NewSource(g.seed))
	start := g.now()

	records := make([]Record, sampleSize)
	for i := range records {
		records[i] = Record{
			Timestamp:     start.Add(time.Duration(i) * timestampStep),
			SourceAddress: SourceAddresses[rng.Intn(len(SourceAddresses))],
			BytesSent:     logNormalInt(rng, bytesMeanLog, bytesSigmaLog),
			BytesReceived: logNormalInt(rng, bytesMeanLog, bytesSigmaLog),
			RequestCount:  poisson(rng, requestRate),
			Port:          Ports[rng.Intn(len(Ports))],
		}
	}

	return records, nil
}

// Seed returns the generator's seed, used as a cache key component.
func (g *Generator) Seed() int64 {
	return g.seed
}

// logNormalInt draws from a log-normal distribution and floors to int.
// The draw is always positive, so the result is never negative.
func logNormalInt(rng *rand.Rand, meanLog, sigmaLog float64) int {
	return int(math.Floor(math.Exp(meanLog + sigmaLog*rng.NormFloat64())))
}

// poisson draws a Poisson-distributed count using Knuth's method.
func poisson(rng *rand.Rand, lambda float64) int {
	limit := math.Exp(-lambda)
	k := 0
	p := 1.0
	for {
		p *= rng.Float64()
		if p <= limit {
			return k
		}
		k++
	}
}
