package iforest

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewIsolationForest(t *testing.T) {
	tests := []struct {
		name       string
		opts       []Option
		wantNTrees int
	}{
		{
			name:       "default configuration",
			opts:       nil,
			wantNTrees: 100,
		},
		{
			name:       "custom trees",
			opts:       []Option{WithTrees(50)},
			wantNTrees: 50,
		},
		{
			name:       "multiple options",
			opts:       []Option{WithTrees(200), WithContamination(0.05), WithSeed(123)},
			wantNTrees: 200,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := New(tt.opts...)
			assert.Equal(t, tt.wantNTrees, f.nTrees)
		})
	}
}

func TestFit(t *testing.T) {
	tests := []struct {
		name    string
		data    [][]float64
		opts    []Option
		wantErr bool
	}{
		{
			name:    "empty data",
			data:    [][]float64{},
			wantErr: true,
		},
		{
			name:    "row without features",
			data:    [][]float64{{}},
			wantErr: true,
		},
		{
			name: "ragged matrix",
			data: [][]float64{
				{1.0, 2.0, 3.0},
				{1.0, 2.0},
			},
			wantErr: true,
		},
		{
			name:    "contamination zero",
			data:    generateTestData(100, 3),
			opts:    []Option{WithContamination(0)},
			wantErr: true,
		},
		{
			name:    "contamination above half",
			data:    generateTestData(100, 3),
			opts:    []Option{WithContamination(0.6)},
			wantErr: true,
		},
		{
			name: "single sample",
			data: [][]float64{{1.0, 2.0, 3.0}},
		},
		{
			name: "normal data",
			data: generateTestData(100, 5),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := append([]Option{WithTrees(10), WithSeed(42)}, tt.opts...)
			f := New(opts...)
			err := f.Fit(tt.data)

			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
				assert.True(t, f.trained)
				assert.Len(t, f.trees, f.nTrees)
			}
		})
	}
}

func TestScores(t *testing.T) {
	trainData := generateTestData(500, 5)
	f := New(WithTrees(50), WithSampleSize(100), WithSeed(42))
	require.NoError(t, f.Fit(trainData))

	t.Run("scores stay in unit range", func(t *testing.T) {
		scores, err := f.Scores(generateTestData(100, 5))
		require.NoError(t, err)
		assert.Len(t, scores, 100)

		for _, score := range scores {
			assert.GreaterOrEqual(t, score, 0.0)
			assert.LessOrEqual(t, score, 1.0)
		}
	})

	t.Run("far-off points score high", func(t *testing.T) {
		anomalies := [][]float64{
			{1000, 1000, 1000, 1000, 1000},
			{-500, -500, -500, -500, -500},
		}
		scores, err := f.Scores(anomalies)
		require.NoError(t, err)

		for _, score := range scores {
			assert.Greater(t, score, 0.4, "anomalies should have high scores")
		}
	})

	t.Run("predict before fit", func(t *testing.T) {
		untrained := New()
		_, err := untrained.Scores(trainData)
		assert.Error(t, err)
	})

	t.Run("feature width mismatch", func(t *testing.T) {
		_, err := f.Scores([][]float64{{1.0, 2.0}})
		assert.Error(t, err)
	})
}

func TestDecisionFunctionSign(t *testing.T) {
	data := generateTestData(300, 3)
	f := New(WithTrees(50), WithSeed(42), WithContamination(0.1))
	require.NoError(t, f.Fit(data))

	labels, err := f.Labels(data)
	require.NoError(t, err)
	decisions, err := f.DecisionFunction(data)
	require.NoError(t, err)
	require.Len(t, labels, len(decisions))

	// The label partition must match the decision sign: strictly negative
	// decisions are outliers, zero and positive decisions are inliers.
	for i := range labels {
		if decisions[i] < 0 {
			assert.Equal(t, -1, labels[i], "sample %d", i)
		} else {
			assert.Equal(t, 1, labels[i], "sample %d", i)
		}
	}
}

func TestLabelsFlagInjectedOutliers(t *testing.T) {
	data := generateTestData(300, 3)
	outlier := []float64{500, 500, 500}
	data = append(data, outlier)

	f := New(WithTrees(100), WithSeed(42), WithContamination(0.05))
	require.NoError(t, f.Fit(data))

	labels, err := f.Labels(data)
	require.NoError(t, err)
	assert.Equal(t, -1, labels[len(labels)-1], "the injected outlier should be labeled anomalous")
}

func TestDeterminism(t *testing.T) {
	data := generateTestData(400, 4)

	t.Run("same seed, same results", func(t *testing.T) {
		a := New(WithTrees(50), WithSeed(42), WithContamination(0.1))
		b := New(WithTrees(50), WithSeed(42), WithContamination(0.1))
		require.NoError(t, a.Fit(data))
		require.NoError(t, b.Fit(data))

		scoresA, err := a.Scores(data)
		require.NoError(t, err)
		scoresB, err := b.Scores(data)
		require.NoError(t, err)

		assert.Equal(t, scoresA, scoresB)
		assert.Equal(t, a.Threshold(), b.Threshold())
	})

	t.Run("worker count does not change results", func(t *testing.T) {
		serial := New(WithTrees(50), WithSeed(42), WithContamination(0.1), WithWorkers(1))
		parallel := New(WithTrees(50), WithSeed(42), WithContamination(0.1), WithWorkers(8))
		require.NoError(t, serial.Fit(data))
		require.NoError(t, parallel.Fit(data))

		serialScores, err := serial.DecisionFunction(data)
		require.NoError(t, err)
		parallelScores, err := parallel.DecisionFunction(data)
		require.NoError(t, err)

		assert.Equal(t, serialScores, parallelScores)
	})
}

func TestContaminationMonotonicity(t *testing.T) {
	data := generateTestData(500, 3)

	countAnomalies := func(contamination float64) int {
		f := New(WithTrees(50), WithSeed(42), WithContamination(contamination))
		require.NoError(t, f.Fit(data))
		labels, err := f.Labels(data)
		require.NoError(t, err)

		count := 0
		for _, l := range labels {
			if l == -1 {
				count++
			}
		}
		return count
	}

	prev := 0
	for _, c := range []float64{0.01, 0.05, 0.1, 0.2, 0.3, 0.5} {
		count := countAnomalies(c)
		assert.GreaterOrEqual(t, count, prev, "contamination %v must not lower the anomaly count", c)
		prev = count
	}
}

func TestScoreOne(t *testing.T) {
	trainData := generateTestData(200, 3)
	f := New(WithTrees(20), WithSeed(42))
	require.NoError(t, f.Fit(trainData))

	score, err := f.ScoreOne([]float64{0.5, 0.5, 0.5})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, score, 0.0)
	assert.LessOrEqual(t, score, 1.0)
}

func BenchmarkFit(b *testing.B) {
	data := generateTestData(10000, 10)
	f := New(WithTrees(100), WithSampleSize(256))

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		f.Fit(data)
	}
}

func BenchmarkScores(b *testing.B) {
	trainData := generateTestData(5000, 10)
	testData := generateTestData(1000, 10)

	f := New(WithTrees(100), WithSampleSize(256))
	f.Fit(trainData)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		f.Scores(testData)
	}
}

func generateTestData(n, features int) [][]float64 {
	rng := rand.New(rand.NewSource(7))
	data := make([][]float64, n)
	for i := 0; i < n; i++ {
		data[i] = make([]float64, features)
		for j := 0; j < features; j++ {
			data[i][j] = rng.NormFloat64()
		}
	}
	return data
}
