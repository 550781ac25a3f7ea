// Package calibration decides when observed prediction error justifies
// adopting or reverting a routing coefficient version.
package calibration

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/signalsfoundry/mesh-router/internal/logging"
	"github.com/signalsfoundry/mesh-router/internal/lossiness"
	"github.com/signalsfoundry/mesh-router/internal/objective"
)

// Verdict is the action a gate took.
type Verdict string

const (
	VerdictPromote  Verdict = "promote"
	VerdictRollback Verdict = "rollback"
	VerdictHold     Verdict = "hold"
)

// Outcome reports what the gate did and the live coefficients afterwards.
type Outcome struct {
	Verdict      Verdict                       `json:"verdict"`
	Reason       string                        `json:"reason"`
	Coefficients objective.RoutingCoefficients `json:"coefficients"`
}

// Gate combines a lossiness tracker with a coefficient store. Error above the
// rollback threshold reverts the live version; small and stable error admits
// a candidate. Any action resets the tracker so the next decision is based
// only on observations of the newly live version.
type Gate struct {
	tracker *lossiness.Tracker
	store   *objective.CoefficientStore
	log     logging.Logger
	nowMs   func() uint64
}

// GateOption customises a Gate.
type GateOption func(*Gate)

// WithGateLogger attaches a logger.
func WithGateLogger(l logging.Logger) GateOption {
	return func(g *Gate) {
		if l != nil {
			g.log = l
		}
	}
}

// WithGateClock replaces the wall clock used to stamp promotions.
func WithGateClock(nowMs func() uint64) GateOption {
	return func(g *Gate) {
		if nowMs != nil {
			g.nowMs = nowMs
		}
	}
}

// NewGate builds a gate over tracker and store.
func NewGate(tracker *lossiness.Tracker, store *objective.CoefficientStore, opts ...GateOption) *Gate {
	g := &Gate{
		tracker: tracker,
		store:   store,
		log:     logging.Noop(),
		nowMs:   func() uint64 { return uint64(time.Now().UnixMilli()) },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(g)
		}
	}
	return g
}

// Evaluate applies the gate to a single bucket. candidate may be nil, in
// which case only rollback is considered.
func (g *Gate) Evaluate(ctx context.Context, bucket lossiness.Bucket, candidate *objective.RoutingCoefficients) (Outcome, error) {
	switch {
	case g.tracker.ShouldRollback(bucket):
		return g.rollback(ctx, fmt.Sprintf("bucket %s exceeds rollback threshold", bucket))
	case candidate != nil && g.tracker.ShouldPromote(bucket):
		return g.promote(ctx, *candidate, fmt.Sprintf("bucket %s within promotion thresholds", bucket))
	default:
		return g.hold("bucket " + bucket.String() + " inconclusive"), nil
	}
}

// Sweep applies the gate across every tracked bucket: any bucket above the
// rollback threshold reverts the live version, and a candidate is promoted
// only when every bucket passes the promotion thresholds.
func (g *Gate) Sweep(ctx context.Context, candidate *objective.RoutingCoefficients) (Outcome, error) {
	sum := g.tracker.Summary()
	if sum.BucketCount == 0 {
		return g.hold("no observations"), nil
	}
	promotable := 0
	for _, st := range sum.Buckets {
		if st.ShouldRollback {
			return g.rollback(ctx, fmt.Sprintf("bucket %s exceeds rollback threshold", st.Bucket))
		}
		if st.ShouldPromote {
			promotable++
		}
	}
	if candidate == nil {
		return g.hold("no candidate"), nil
	}
	if promotable < sum.BucketCount {
		return g.hold(fmt.Sprintf("%d of %d buckets within promotion thresholds", promotable, sum.BucketCount)), nil
	}
	return g.promote(ctx, *candidate, fmt.Sprintf("all %d buckets within promotion thresholds", sum.BucketCount))
}

func (g *Gate) rollback(ctx context.Context, reason string) (Outcome, error) {
	prev, err := g.store.Rollback()
	if errors.Is(err, objective.ErrNoPreviousVersion) {
		g.log.Warn(ctx, "calibration rollback requested with no previous version",
			logging.String("reason", reason),
		)
		return g.hold(reason + "; no previous version"), nil
	}
	if err != nil {
		return Outcome{}, err
	}
	g.tracker.Reset()
	g.log.Warn(ctx, "coefficients rolled back",
		logging.String("reason", reason),
		logging.Any("version", prev.Version),
		logging.String("version_hash", prev.VersionHash),
	)
	return Outcome{Verdict: VerdictRollback, Reason: reason, Coefficients: prev}, nil
}

func (g *Gate) promote(ctx context.Context, candidate objective.RoutingCoefficients, reason string) (Outcome, error) {
	source := candidate.Source
	if source == "" {
		source = "calibration"
	}
	next, err := g.store.Promote(candidate, source, g.nowMs())
	if err != nil {
		g.log.Error(ctx, "calibration candidate rejected",
			logging.String("source", source),
			logging.Err(err),
		)
		return Outcome{}, fmt.Errorf("promote candidate %q: %w", source, err)
	}
	g.tracker.Reset()
	g.log.Info(ctx, "coefficients promoted",
		logging.String("reason", reason),
		logging.String("source", source),
		logging.Any("version", next.Version),
		logging.String("version_hash", next.VersionHash),
	)
	return Outcome{Verdict: VerdictPromote, Reason: reason, Coefficients: next}, nil
}

func (g *Gate) hold(reason string) Outcome {
	return Outcome{Verdict: VerdictHold, Reason: reason, Coefficients: g.store.Load()}
}
