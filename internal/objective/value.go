package objective

import (
	"math"

	"github.com/signalsfoundry/mesh-router/model"
)

// urgencyBeta scales the deadline urgency bonus.
const urgencyBeta = 2.0

// TierAlpha is the base value multiplier of an SLA tier.
func TierAlpha(tier model.SLATier) float64 {
	switch tier {
	case model.Gold:
		return 3.0
	case model.Silver:
		return 1.5
	default:
		return 1.0
	}
}

// UrgencyWeight is w(τ, now). Without a deadline it falls back to a per-tier
// constant; a passed deadline yields the maximum 1+β.
func UrgencyWeight(p model.Payload, nowMs uint64) float64 {
	if p.DeadlineMs == nil {
		switch p.SLATier {
		case model.Gold:
			return 1.5
		case model.Silver:
			return 1.2
		default:
			return 1.0
		}
	}
	deadline := *p.DeadlineMs
	if deadline <= nowMs {
		return 1 + urgencyBeta
	}
	dtSeconds := float64(deadline-nowMs) / 1000
	return 1 + urgencyBeta*math.Exp(-dtSeconds/p.TauSeconds)
}

// Value is V(p, now) = α_tier · w(τ, now).
func Value(p model.Payload, nowMs uint64) float64 {
	return TierAlpha(p.SLATier) * UrgencyWeight(p, nowMs)
}
