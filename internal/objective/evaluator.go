package objective

import (
	"context"

	"github.com/signalsfoundry/mesh-router/internal/observability"
	"github.com/signalsfoundry/mesh-router/model"
	"go.opentelemetry.io/otel/attribute"
)

// Evaluator evaluates routes against whatever coefficient snapshot is live in
// the store at call time. Each call reads the snapshot once, so a result is
// never computed from a mix of two versions.
type Evaluator struct {
	store *CoefficientStore
}

// NewEvaluator returns an Evaluator reading from store.
func NewEvaluator(store *CoefficientStore) *Evaluator {
	return &Evaluator{store: store}
}

// Evaluate scores a single route.
func (e *Evaluator) Evaluate(ctx context.Context, m RouteMetrics, p model.Payload, nowMs uint64) ObjectiveResult {
	f := e.store.Objective()
	_, span := observability.StartSpan(ctx, "objective.Evaluate", spanAttrs(f, p, 1)...)
	defer span.End()

	r := f.Evaluate(m, p, nowMs)
	span.SetAttributes(attribute.Bool("objective.viable", r.Viable), attribute.Float64("objective.utility", r.Utility))
	return r
}

// SelectOptimal picks the best viable candidate under the live snapshot.
func (e *Evaluator) SelectOptimal(ctx context.Context, candidates []RouteMetrics, p model.Payload, nowMs uint64) (ObjectiveResult, bool) {
	f := e.store.Objective()
	_, span := observability.StartSpan(ctx, "objective.SelectOptimal", spanAttrs(f, p, len(candidates))...)
	defer span.End()

	best, ok := f.SelectOptimal(candidates, p, nowMs)
	span.SetAttributes(attribute.Bool("objective.found", ok))
	return best, ok
}

// RankCandidates ranks all candidates under the live snapshot.
func (e *Evaluator) RankCandidates(ctx context.Context, candidates []RouteMetrics, p model.Payload, nowMs uint64) []ObjectiveResult {
	f := e.store.Objective()
	_, span := observability.StartSpan(ctx, "objective.RankCandidates", spanAttrs(f, p, len(candidates))...)
	defer span.End()
	return f.RankCandidates(candidates, p, nowMs)
}

func spanAttrs(f ObjectiveFunction, p model.Payload, candidates int) []attribute.KeyValue {
	c := f.Coefficients()
	return []attribute.KeyValue{
		attribute.String("payload.id", p.ID),
		attribute.String("payload.sla_tier", p.SLATier.String()),
		attribute.Int64("coefficients.version", int64(c.Version)),
		attribute.String("coefficients.hash", c.VersionHash),
		attribute.Int("objective.candidates", candidates),
	}
}
