package calibration

import (
	"context"
	"sync/atomic"

	"github.com/signalsfoundry/mesh-router/internal/objective"
)

// CandidateSlot holds the most recent candidate awaiting promotion. A newer
// candidate replaces an older one that has not been promoted yet.
type CandidateSlot struct {
	c atomic.Pointer[objective.RoutingCoefficients]
}

// Offer stores c as the pending candidate. It has the CandidateHandler shape
// so a slot can be fed directly by a Watcher.
func (s *CandidateSlot) Offer(_ context.Context, _ string, c objective.RoutingCoefficients) {
	s.c.Store(&c)
}

// Peek returns the pending candidate or nil.
func (s *CandidateSlot) Peek() *objective.RoutingCoefficients {
	return s.c.Load()
}

// Clear drops c if it is still the pending candidate.
func (s *CandidateSlot) Clear(c *objective.RoutingCoefficients) {
	s.c.CompareAndSwap(c, nil)
}

// SweepPending runs gate.Sweep with the slot's candidate and clears it once
// promoted.
func SweepPending(ctx context.Context, gate *Gate, slot *CandidateSlot) (Outcome, error) {
	pending := slot.Peek()
	out, err := gate.Sweep(ctx, pending)
	if err != nil {
		// A candidate that fails validation will never pass; drop it.
		slot.Clear(pending)
		return out, err
	}
	if out.Verdict == VerdictPromote {
		slot.Clear(pending)
	}
	return out, nil
}
