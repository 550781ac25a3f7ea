package objective

import (
	"encoding/binary"
	"fmt"
	"math"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/shopspring/decimal"
)

const (
	sumTolerance     = 1e-6
	quantizePlaces   = 9
	coefficientCount = 6
)

// Named coefficient presets.
const (
	PresetDefault     = "default"
	PresetLatency     = "latency_optimized"
	PresetReliability = "reliability_optimized"
	PresetCost        = "cost_optimized"
)

// RoutingCoefficients is an immutable, versioned weight vector for the
// objective. A new version is only produced by Promote.
type RoutingCoefficients struct {
	LambdaLat   float64 `json:"lambda_lat"`
	LambdaJit   float64 `json:"lambda_jit"`
	LambdaFail  float64 `json:"lambda_fail"`
	LambdaCong  float64 `json:"lambda_cong"`
	LambdaPower float64 `json:"lambda_power"`
	LambdaOpp   float64 `json:"lambda_opp"`

	Version      uint64 `json:"version"`
	VersionHash  string `json:"version_hash"`
	PromotedAtMs uint64 `json:"promoted_at_ms"`
	Source       string `json:"source"`
}

// NewCoefficients builds a version-1 coefficient set with its hash computed.
// It does not validate.
func NewCoefficients(lat, jit, fail, cong, power, opp float64, source string) RoutingCoefficients {
	c := RoutingCoefficients{
		LambdaLat:   lat,
		LambdaJit:   jit,
		LambdaFail:  fail,
		LambdaCong:  cong,
		LambdaPower: power,
		LambdaOpp:   opp,
		Version:     1,
		Source:      source,
	}
	c.VersionHash = c.computeHash()
	return c
}

// DefaultCoefficients is the balanced general-purpose preset.
func DefaultCoefficients() RoutingCoefficients {
	return NewCoefficients(0.30, 0.10, 0.25, 0.15, 0.10, 0.10, PresetDefault)
}

// LatencyOptimized weights latency and jitter for time-critical traffic.
func LatencyOptimized() RoutingCoefficients {
	return NewCoefficients(0.45, 0.20, 0.15, 0.10, 0.05, 0.05, PresetLatency)
}

// ReliabilityOptimized weights failure probability and congestion.
func ReliabilityOptimized() RoutingCoefficients {
	return NewCoefficients(0.15, 0.10, 0.40, 0.20, 0.075, 0.075, PresetReliability)
}

// CostOptimized weights power and opportunity cost for bulk transfers.
func CostOptimized() RoutingCoefficients {
	return NewCoefficients(0.10, 0.05, 0.15, 0.20, 0.30, 0.20, PresetCost)
}

// PresetNames lists the accepted preset names in display order.
func PresetNames() []string {
	return []string{PresetDefault, PresetLatency, PresetReliability, PresetCost}
}

// Preset returns the named preset.
func Preset(name string) (RoutingCoefficients, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", PresetDefault:
		return DefaultCoefficients(), nil
	case PresetLatency, "latency":
		return LatencyOptimized(), nil
	case PresetReliability, "reliability":
		return ReliabilityOptimized(), nil
	case PresetCost, "cost":
		return CostOptimized(), nil
	default:
		return RoutingCoefficients{}, fmt.Errorf("unknown coefficient preset %q", name)
	}
}

// Weights returns the six λ values in canonical order.
func (c RoutingCoefficients) Weights() [coefficientCount]float64 {
	return [coefficientCount]float64{c.LambdaLat, c.LambdaJit, c.LambdaFail, c.LambdaCong, c.LambdaPower, c.LambdaOpp}
}

func (c *RoutingCoefficients) setWeights(w [coefficientCount]float64) {
	c.LambdaLat, c.LambdaJit, c.LambdaFail = w[0], w[1], w[2]
	c.LambdaCong, c.LambdaPower, c.LambdaOpp = w[3], w[4], w[5]
}

// Sum is Σλ.
func (c RoutingCoefficients) Sum() float64 {
	total := 0.0
	for _, w := range c.Weights() {
		total += w
	}
	return total
}

// Validate rejects weight vectors that are negative, non-finite or do not sum
// to one. Errors wrap ErrInvalidState.
func (c RoutingCoefficients) Validate() error {
	for i, w := range c.Weights() {
		if math.IsNaN(w) || math.IsInf(w, 0) {
			return fmt.Errorf("%w: coefficient %d is not finite", ErrInvalidState, i)
		}
		if w < 0 {
			return fmt.Errorf("%w: coefficients must be non-negative", ErrInvalidState)
		}
	}
	if sum := c.Sum(); math.Abs(sum-1) > sumTolerance {
		return fmt.Errorf("%w: coefficient sum %v != 1.0", ErrInvalidState, sum)
	}
	return nil
}

// Promote returns a copy with the version incremented, provenance updated and
// the hash recomputed. The receiver is unchanged.
func (c RoutingCoefficients) Promote(source string, nowMs uint64) RoutingCoefficients {
	next := c
	next.Version++
	next.Source = source
	next.PromotedAtMs = nowMs
	next.VersionHash = next.computeHash()
	return next
}

// Quantize rounds every weight to nine decimals and assigns the rounding
// residue to the largest weight, so the weights sum to exactly one in decimal
// arithmetic. The hash is recomputed; the version is unchanged. Only vectors
// that already pass Validate are quantized, so the residue never exceeds the
// sum tolerance.
func (c RoutingCoefficients) Quantize() (RoutingCoefficients, error) {
	if err := c.Validate(); err != nil {
		return RoutingCoefficients{}, err
	}
	weights := c.Weights()
	rounded := make([]decimal.Decimal, coefficientCount)
	sum := decimal.Zero
	largest := 0
	for i, w := range weights {
		rounded[i] = decimal.NewFromFloat(w).Round(quantizePlaces)
		sum = sum.Add(rounded[i])
		if w > weights[largest] {
			largest = i
		}
	}
	rounded[largest] = rounded[largest].Add(decimal.NewFromInt(1).Sub(sum))

	for i := range weights {
		weights[i] = rounded[i].InexactFloat64()
	}
	out := c
	out.setWeights(weights)
	out.VersionHash = out.computeHash()
	return out, nil
}

// HashMatches reports whether VersionHash is consistent with the weights and
// version.
func (c RoutingCoefficients) HashMatches() bool {
	return c.VersionHash == c.computeHash()
}

// computeHash is xxhash64 over the little-endian bit patterns of the six
// weights followed by the version. Audit identifier only.
func (c RoutingCoefficients) computeHash() string {
	var buf [8 * (coefficientCount + 1)]byte
	for i, w := range c.Weights() {
		binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(w))
	}
	binary.LittleEndian.PutUint64(buf[coefficientCount*8:], c.Version)
	return fmt.Sprintf("%016x", xxhash.Sum64(buf[:]))
}
