package objective

import (
	"cmp"
	"slices"

	"github.com/signalsfoundry/mesh-router/model"
)

// ObjectiveResult is the evaluation of one candidate route for one payload.
type ObjectiveResult struct {
	Utility            float64      `json:"utility"`
	Value              float64      `json:"value"`
	TotalPenalty       float64      `json:"total_penalty"`
	Penalties          AllPenalties `json:"penalties"`
	CoefficientVersion uint64       `json:"coefficient_version"`
	CoefficientHash    string       `json:"coefficient_hash"`
	Metrics            RouteMetrics `json:"metrics"`
	Viable             bool         `json:"viable"`
}

// ObjectiveFunction computes U = V − Σλᵢ·Φᵢ against a fixed coefficient
// snapshot. It is a value and safe for concurrent use.
type ObjectiveFunction struct {
	coeffs RoutingCoefficients
}

// NewObjectiveFunction binds an objective to coeffs. Callers are expected to
// have validated coeffs; CoefficientStore does so on install.
func NewObjectiveFunction(coeffs RoutingCoefficients) ObjectiveFunction {
	return ObjectiveFunction{coeffs: coeffs}
}

// Coefficients returns the bound snapshot.
func (f ObjectiveFunction) Coefficients() RoutingCoefficients {
	return f.coeffs
}

// Evaluate scores metrics for payload at nowMs. SLA violations produce a
// non-viable result with the full breakdown, never an error.
func (f ObjectiveFunction) Evaluate(m RouteMetrics, p model.Payload, nowMs uint64) ObjectiveResult {
	value := Value(p, nowMs)
	pen := CalculateAll(m, p)
	c := f.coeffs

	total := c.LambdaLat*pen.Latency.Value +
		c.LambdaJit*pen.Jitter.Value +
		c.LambdaFail*pen.Failure.Value +
		c.LambdaCong*pen.Congestion.Value +
		c.LambdaPower*pen.Power +
		c.LambdaOpp*pen.Opportunity

	return ObjectiveResult{
		Utility:            value - total,
		Value:              value,
		TotalPenalty:       total,
		Penalties:          pen,
		CoefficientVersion: c.Version,
		CoefficientHash:    c.VersionHash,
		Metrics:            m,
		Viable:             !pen.AnyViolated(),
	}
}

// SelectOptimal returns the viable candidate with the highest utility. On
// equal utility the earliest candidate in input order wins. ok is false when
// no candidate is viable.
func (f ObjectiveFunction) SelectOptimal(candidates []RouteMetrics, p model.Payload, nowMs uint64) (best ObjectiveResult, ok bool) {
	for _, m := range candidates {
		r := f.Evaluate(m, p, nowMs)
		if !r.Viable {
			continue
		}
		if !ok || r.Utility > best.Utility {
			best, ok = r, true
		}
	}
	return best, ok
}

// RankCandidates evaluates every candidate, viable or not, and orders them
// by descending utility. The sort is stable.
func (f ObjectiveFunction) RankCandidates(candidates []RouteMetrics, p model.Payload, nowMs uint64) []ObjectiveResult {
	results := make([]ObjectiveResult, 0, len(candidates))
	for _, m := range candidates {
		results = append(results, f.Evaluate(m, p, nowMs))
	}
	slices.SortStableFunc(results, func(a, b ObjectiveResult) int {
		return cmp.Compare(b.Utility, a.Utility)
	})
	return results
}
