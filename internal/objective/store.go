package objective

import (
	"fmt"
	"sync/atomic"
)

// defaultHistoryDepth bounds how many superseded snapshots are kept for
// rollback.
const defaultHistoryDepth = 16

// CoefficientMetricsRecorder observes coefficient lifecycle events.
type CoefficientMetricsRecorder interface {
	SetCoefficientVersion(version uint64)
	IncCoefficientPromotion(outcome string)
}

// Promotion outcomes reported to CoefficientMetricsRecorder.
const (
	OutcomeInstalled  = "installed"
	OutcomePromoted   = "promoted"
	OutcomeRejected   = "rejected"
	OutcomeRolledBack = "rolled_back"
)

type coefficientSnapshot struct {
	coeffs RoutingCoefficients
	prev   *coefficientSnapshot
}

// CoefficientStore holds the live coefficient snapshot behind an atomic
// pointer. Readers always see a complete, validated version; writers publish
// a fresh snapshot and never mutate one in place.
type CoefficientStore struct {
	cur     atomic.Pointer[coefficientSnapshot]
	depth   int
	metrics CoefficientMetricsRecorder
}

// StoreOption customises a CoefficientStore.
type StoreOption func(*CoefficientStore)

// WithCoefficientMetrics attaches a recorder for version and promotion events.
func WithCoefficientMetrics(m CoefficientMetricsRecorder) StoreOption {
	return func(s *CoefficientStore) {
		s.metrics = m
	}
}

// WithHistoryDepth sets how many previous snapshots are retained.
func WithHistoryDepth(n int) StoreOption {
	return func(s *CoefficientStore) {
		if n > 0 {
			s.depth = n
		}
	}
}

// NewCoefficientStore validates initial and installs it as the live snapshot.
func NewCoefficientStore(initial RoutingCoefficients, opts ...StoreOption) (*CoefficientStore, error) {
	s := &CoefficientStore{depth: defaultHistoryDepth}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	if err := initial.Validate(); err != nil {
		return nil, err
	}
	s.cur.Store(&coefficientSnapshot{coeffs: initial})
	s.recordVersion(initial.Version)
	return s, nil
}

// Load returns the live snapshot.
func (s *CoefficientStore) Load() RoutingCoefficients {
	return s.cur.Load().coeffs
}

// Objective returns an ObjectiveFunction bound to the live snapshot.
func (s *CoefficientStore) Objective() ObjectiveFunction {
	return NewObjectiveFunction(s.Load())
}

// Install replaces the live snapshot with c as given, keeping the previous
// one for rollback. Invalid sets are rejected and never become visible.
func (s *CoefficientStore) Install(c RoutingCoefficients) error {
	if err := c.Validate(); err != nil {
		s.recordOutcome(OutcomeRejected)
		return err
	}
	for {
		old := s.cur.Load()
		next := &coefficientSnapshot{coeffs: c, prev: trimHistory(old, s.depth)}
		if s.cur.CompareAndSwap(old, next) {
			break
		}
	}
	s.recordOutcome(OutcomeInstalled)
	s.recordVersion(c.Version)
	return nil
}

// Promote adopts the weights of candidate as the next version after the live
// one. The candidate is validated first; a concurrent promotion causes a
// retry against the newer live version so versions stay monotonic.
func (s *CoefficientStore) Promote(candidate RoutingCoefficients, source string, nowMs uint64) (RoutingCoefficients, error) {
	if err := candidate.Validate(); err != nil {
		s.recordOutcome(OutcomeRejected)
		return RoutingCoefficients{}, err
	}
	for {
		old := s.cur.Load()
		next := candidate
		next.Version = old.coeffs.Version
		next = next.Promote(source, nowMs)
		snap := &coefficientSnapshot{coeffs: next, prev: trimHistory(old, s.depth)}
		if s.cur.CompareAndSwap(old, snap) {
			s.recordOutcome(OutcomePromoted)
			s.recordVersion(next.Version)
			return next, nil
		}
	}
}

// Rollback restores the snapshot that preceded the live one.
func (s *CoefficientStore) Rollback() (RoutingCoefficients, error) {
	for {
		old := s.cur.Load()
		if old.prev == nil {
			return RoutingCoefficients{}, fmt.Errorf("rollback from version %d: %w", old.coeffs.Version, ErrNoPreviousVersion)
		}
		if s.cur.CompareAndSwap(old, old.prev) {
			s.recordOutcome(OutcomeRolledBack)
			s.recordVersion(old.prev.coeffs.Version)
			return old.prev.coeffs, nil
		}
	}
}

// History returns the live snapshot followed by retained predecessors,
// newest first.
func (s *CoefficientStore) History() []RoutingCoefficients {
	var out []RoutingCoefficients
	for snap := s.cur.Load(); snap != nil; snap = snap.prev {
		out = append(out, snap.coeffs)
	}
	return out
}

// trimHistory returns snap with at most depth-1 predecessors, copying nodes
// as needed. Snapshots are shared between readers and never modified.
func trimHistory(snap *coefficientSnapshot, depth int) *coefficientSnapshot {
	if snap == nil || depth <= 0 {
		return nil
	}
	n := 0
	for p := snap; p != nil; p = p.prev {
		n++
	}
	if n <= depth {
		return snap
	}
	return &coefficientSnapshot{coeffs: snap.coeffs, prev: trimHistory(snap.prev, depth-1)}
}

func (s *CoefficientStore) recordVersion(v uint64) {
	if s.metrics != nil {
		s.metrics.SetCoefficientVersion(v)
	}
}

func (s *CoefficientStore) recordOutcome(outcome string) {
	if s.metrics != nil {
		s.metrics.IncCoefficientPromotion(outcome)
	}
}
