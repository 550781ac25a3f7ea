package objective

import "github.com/signalsfoundry/mesh-router/model"

// PenaltyKind names one SLA penalty term.
type PenaltyKind string

const (
	PenaltyLatency    PenaltyKind = "latency"
	PenaltyJitter     PenaltyKind = "jitter"
	PenaltyFailure    PenaltyKind = "failure"
	PenaltyCongestion PenaltyKind = "congestion"
)

// CongestionThreshold is the load factor above which congestion is flagged.
// Congestion never affects viability.
const CongestionThreshold = 0.8

// PenaltyResult is a penalty value with the inputs that produced it, so
// callers can explain a rejection.
type PenaltyResult struct {
	Value     float64     `json:"value"`
	Violated  bool        `json:"violated"`
	Observed  float64     `json:"observed"`
	Threshold float64     `json:"threshold"`
	Kind      PenaltyKind `json:"kind"`
}

// AllPenalties is the full penalty breakdown for one route and payload.
type AllPenalties struct {
	Latency     PenaltyResult `json:"latency"`
	Jitter      PenaltyResult `json:"jitter"`
	Failure     PenaltyResult `json:"failure"`
	Congestion  PenaltyResult `json:"congestion"`
	Power       float64       `json:"power"`
	Opportunity float64       `json:"opportunity"`
}

// AnyViolated reports a hard SLA violation. Congestion is a soft signal and
// is not considered.
func (p AllPenalties) AnyViolated() bool {
	return p.Latency.Violated || p.Jitter.Violated || p.Failure.Violated
}

// ViolationCount counts flagged terms, congestion included.
func (p AllPenalties) ViolationCount() int {
	n := 0
	for _, v := range []bool{p.Latency.Violated, p.Jitter.Violated, p.Failure.Violated, p.Congestion.Violated} {
		if v {
			n++
		}
	}
	return n
}

func overage(kind PenaltyKind, observed, threshold float64) PenaltyResult {
	value := max(0, observed-threshold)
	return PenaltyResult{
		Value:     value,
		Violated:  value > 0,
		Observed:  observed,
		Threshold: threshold,
		Kind:      kind,
	}
}

// PhiLatency is max(0, μ − LMax).
func PhiLatency(m RouteMetrics, p model.Payload) PenaltyResult {
	return overage(PenaltyLatency, m.MuLatencyMs, p.LMaxMs)
}

// PhiJitter is max(0, σ² − JMax).
func PhiJitter(m RouteMetrics, p model.Payload) PenaltyResult {
	return overage(PenaltyJitter, m.Sigma2LatencyMs2, p.JMaxMs2)
}

// PhiFailure is max(0, π_F − PLossMax).
func PhiFailure(m RouteMetrics, p model.Payload) PenaltyResult {
	return overage(PenaltyFailure, m.PiFailure, p.PLossMax)
}

// PhiCongestion always charges κ.
func PhiCongestion(m RouteMetrics) PenaltyResult {
	return PenaltyResult{
		Value:     m.KappaCongestion,
		Violated:  m.KappaCongestion > CongestionThreshold,
		Observed:  m.KappaCongestion,
		Threshold: CongestionThreshold,
		Kind:      PenaltyCongestion,
	}
}

// CalculateAll evaluates every penalty term and carries the raw power and
// opportunity costs through.
func CalculateAll(m RouteMetrics, p model.Payload) AllPenalties {
	return AllPenalties{
		Latency:     PhiLatency(m, p),
		Jitter:      PhiJitter(m, p),
		Failure:     PhiFailure(m, p),
		Congestion:  PhiCongestion(m),
		Power:       m.CPower,
		Opportunity: m.COpportunity,
	}
}
