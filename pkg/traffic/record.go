// Package traffic defines the synthetic network traffic model and its generator.
package traffic

import "time"

// Label classifies a record after anomaly scoring. The values follow the
// usual outlier-detection convention: +1 inlier, -1 outlier.
type Label int

const (
	// LabelUnscored marks records that have not been through the scorer.
	LabelUnscored Label = 0
	// LabelNormal marks records the model considers inliers.
	LabelNormal Label = 1
	// LabelAnomalous marks records the model considers outliers.
	LabelAnomalous Label = -1
)

// String returns a human-readable label name.
func (l Label) String() string {
	switch l {
	case LabelNormal:
		return "normal"
	case LabelAnomalous:
		return "anomalous"
	default:
		return "unscored"
	}
}

// Record is one row of the synthetic traffic table.
//
// Label and Confidence are zero until the record passes through a scorer.
// Confidence is a signed decision score: negative values indicate anomalies,
// and more negative means a stronger anomaly signal.
type Record struct {
	Timestamp     time.Time `json:"timestamp"`
	SourceAddress string    `json:"source_address"`
	BytesSent     int       `json:"bytes_sent"`
	BytesReceived int       `json:"bytes_received"`
	RequestCount  int       `json:"request_count"`
	Port          int       `json:"port"`

	Label      Label   `json:"anomaly_label"`
	Confidence float64 `json:"confidence"`
}

// IsScored reports whether the record has been labeled by a scorer.
func (r Record) IsScored() bool {
	return r.Label != LabelUnscored
}

// Fixed pools the generator draws categorical values from.
var (
	SourceAddresses = []string{"192.168.1.1", "192.168.1.2", "192.168.1.3", "192.168.1.4"}
	Ports           = []int{80, 443, 22, 3389}
)
