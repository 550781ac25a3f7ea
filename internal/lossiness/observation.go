package lossiness

import "math"

// scaleFloor keeps normalisation finite for zero or tiny scales.
const scaleFloor = 0.001

// Observation pairs a prediction with what was later measured.
type Observation struct {
	Bucket    Bucket  `json:"bucket"`
	Metric    string  `json:"metric"`
	Predicted float64 `json:"predicted"`
	Observed  float64 `json:"observed"`
	// Delta is Predicted minus Observed.
	Delta float64 `json:"delta"`
	// DeltaNormalized is Delta divided by max(0.001, scale).
	DeltaNormalized float64 `json:"delta_normalized"`
	TimestampMs     uint64  `json:"timestamp_ms"`
}

// NewObservation computes the raw and normalised error for one measurement.
func NewObservation(bucket Bucket, metric string, predicted, observed, scale float64, nowMs uint64) Observation {
	delta := predicted - observed
	return Observation{
		Bucket:          bucket,
		Metric:          metric,
		Predicted:       predicted,
		Observed:        observed,
		Delta:           delta,
		DeltaNormalized: delta / math.Max(scaleFloor, scale),
		TimestampMs:     nowMs,
	}
}
