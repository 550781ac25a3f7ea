package adjudicator

import (
	"fmt"
	"strings"
)

// Decision is the fast-path verdict on a route.
type Decision int

const (
	Sell Decision = iota
	Spread
	Buy
)

func (d Decision) String() string {
	switch d {
	case Buy:
		return "Buy"
	case Spread:
		return "Spread"
	default:
		return "Sell"
	}
}

func (d Decision) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Decision) UnmarshalText(b []byte) error {
	parsed, err := ParseDecision(string(b))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// ParseDecision maps "buy", "spread" or "sell" (any case) to a Decision.
func ParseDecision(s string) (Decision, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "buy":
		return Buy, nil
	case "spread":
		return Spread, nil
	case "sell":
		return Sell, nil
	default:
		return Sell, fmt.Errorf("unknown decision %q", s)
	}
}

// RouteThresholds parameterise scoring and the Buy/Spread/Sell cut-offs.
type RouteThresholds struct {
	BuyThreshold    float64 `json:"buy_threshold" toml:"buy_threshold"`
	SpreadThreshold float64 `json:"spread_threshold" toml:"spread_threshold"`
	MaxHops         int     `json:"max_hops" toml:"max_hops"`
	// MinMarginDB is advisory for hosts; scoring does not gate on it.
	MinMarginDB float64 `json:"min_margin_db" toml:"min_margin_db"`
}

// DefaultThresholds returns buy 0.80, spread 0.50, 6 hops, 3 dB.
func DefaultThresholds() RouteThresholds {
	return RouteThresholds{
		BuyThreshold:    0.80,
		SpreadThreshold: 0.50,
		MaxHops:         6,
		MinMarginDB:     3.0,
	}
}

// Validate checks the thresholds are usable for scoring.
func (t RouteThresholds) Validate() error {
	if t.MaxHops <= 0 {
		return fmt.Errorf("max_hops must be > 0, got %d", t.MaxHops)
	}
	if t.SpreadThreshold > t.BuyThreshold {
		return fmt.Errorf("spread_threshold %.2f exceeds buy_threshold %.2f", t.SpreadThreshold, t.BuyThreshold)
	}
	return nil
}

// Decide classifies score against the thresholds.
func (t RouteThresholds) Decide(score float64) Decision {
	switch {
	case score >= t.BuyThreshold:
		return Buy
	case score >= t.SpreadThreshold:
		return Spread
	default:
		return Sell
	}
}

// ScoredRoute is a path with its heuristic score and verdict.
type ScoredRoute struct {
	Path           []string `json:"path"`
	Score          float64  `json:"score"`
	Decision       Decision `json:"decision"`
	TotalLatencyMs float64  `json:"total_latency_ms"`
	MinMarginDB    float64  `json:"min_margin_db"`
	AvgMarginDB    float64  `json:"avg_margin_db"`
	ThroughputGbps float64  `json:"throughput_gbps"`
	HopCount       int      `json:"hop_count"`
	WeatherFactor  float64  `json:"weather_factor"`
}

func (r ScoredRoute) clone() ScoredRoute {
	r.Path = append([]string(nil), r.Path...)
	return r
}

// RouteRequest asks for the best route between two nodes.
type RouteRequest struct {
	SourceID      string `json:"source_id"`
	DestinationID string `json:"destination_id"`
	// Alternatives is the maximum number of alternative routes to return.
	Alternatives int              `json:"alternatives"`
	Thresholds   *RouteThresholds `json:"thresholds,omitempty"`
}

// RouteResponse carries the primary route, if scorable, and alternatives
// ordered by descending score.
type RouteResponse struct {
	Request          RouteRequest  `json:"request"`
	BestRoute        *ScoredRoute  `json:"best_route,omitempty"`
	Alternatives     []ScoredRoute `json:"alternatives"`
	ProcessingTimeUs int64         `json:"processing_time_us"`
}
