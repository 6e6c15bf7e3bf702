package traffic

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerate(t *testing.T) {
	tests := []struct {
		name       string
		sampleSize int
		wantErr    bool
	}{
		{
			name:       "zero records",
			sampleSize: 0,
			wantErr:    true,
		},
		{
			name:       "negative",
			sampleSize: -5,
			wantErr:    true,
		},
		{
			name:       "single record",
			sampleSize: 1,
		},
		{
			name:       "typical batch",
			sampleSize: 100,
		},
		{
			name:       "above the UI range",
			sampleSize: 2500,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewGenerator(DefaultSeed)
			records, err := g.Generate(tt.sampleSize)

			if tt.wantErr {
				var genErr *GenerationError
				require.Error(t, err)
				assert.True(t, errors.As(err, &genErr))
				assert.Nil(t, records)
				return
			}

			require.NoError(t, err)
			assert.Len(t, records, tt.sampleSize)
		})
	}
}

func TestGenerateFieldRanges(t *testing.T) {
	g := NewGenerator(DefaultSeed)
	records, err := g.Generate(500)
	require.NoError(t, err)

	for i, r := range records {
		assert.GreaterOrEqual(t, r.BytesSent, 0, "record %d", i)
		assert.GreaterOrEqual(t, r.BytesReceived, 0, "record %d", i)
		assert.GreaterOrEqual(t, r.RequestCount, 0, "record %d", i)
		assert.Contains(t, SourceAddresses, r.SourceAddress, "record %d", i)
		assert.Contains(t, Ports, r.Port, "record %d", i)
		assert.False(t, r.IsScored(), "record %d should not carry a label before scoring", i)
	}
}

func TestGenerateTimestamps(t *testing.T) {
	start := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	g := NewGenerator(DefaultSeed, WithStartTime(start))

	records, err := g.Generate(10)
	require.NoError(t, err)

	for i, r := range records {
		assert.Equal(t, start.Add(time.Duration(i)*time.Minute), r.Timestamp)
	}
}

func TestGenerateDeterminism(t *testing.T) {
	start := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("same seed yields identical tables", func(t *testing.T) {
		a, err := NewGenerator(DefaultSeed, WithStartTime(start)).Generate(100)
		require.NoError(t, err)
		b, err := NewGenerator(DefaultSeed, WithStartTime(start)).Generate(100)
		require.NoError(t, err)

		assert.Equal(t, a, b)
	})

	t.Run("successive calls on one generator are reproducible", func(t *testing.T) {
		g := NewGenerator(DefaultSeed, WithStartTime(start))
		a, err := g.Generate(100)
		require.NoError(t, err)
		b, err := g.Generate(100)
		require.NoError(t, err)

		assert.Equal(t, a, b)
	})

	t.Run("different seeds diverge", func(t *testing.T) {
		a, err := NewGenerator(1, WithStartTime(start)).Generate(100)
		require.NoError(t, err)
		b, err := NewGenerator(2, WithStartTime(start)).Generate(100)
		require.NoError(t, err)

		assert.NotEqual(t, a, b)
	})
}

func TestGenerationErrorMessage(t *testing.T) {
	err := &GenerationError{SampleSize: -1, Reason: "sample size must be positive"}
	assert.Contains(t, err.Error(), "sample_size=-1")
	assert.Contains(t, err.Error(), "sample size must be positive")
}

func BenchmarkGenerate(b *testing.B) {
	g := NewGenerator(DefaultSeed)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := g.Generate(1000); err != nil {
			b.Fatal(err)
		}
	}
}
