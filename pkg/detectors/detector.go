// Package detectors provides unsupervised anomaly detection algorithms.
package detectors

// Detector is the common interface for batch anomaly detectors.
// Every call cycle re-fits from scratch; no model state survives a batch.
type Detector interface {
	// Fit trains the detector on a feature matrix.
	// data is a 2D slice where each row is a sample and each column is a feature.
	Fit(data [][]float64) error

	// Scores returns raw anomaly scores for the given samples.
	// Scores are normalized to [0, 1] where higher values indicate anomalies.
	Scores(data [][]float64) ([]float64, error)

	// DecisionFunction returns signed scores relative to the decision
	// threshold. Negative values are anomalous; more negative means a
	// stronger anomaly signal.
	DecisionFunction(data [][]float64) ([]float64, error)

	// Labels returns +1 for inliers and -1 for outliers.
	Labels(data [][]float64) ([]int, error)
}

// Config holds common configuration for detectors.
type Config struct {
	// Contamination is the expected proportion of anomalies in the batch,
	// in (0, 0.5]. It sets the decision threshold for binary labels.
	Contamination float64
	// RandomSeed for reproducibility.
	RandomSeed int64
}

// DefaultConfig returns sensible defaults for detector configuration.
func DefaultConfig() Config {
	return Config{
		Contamination: 0.1,
		RandomSeed:    42,
	}
}
