// Package router joins route adjudication with SLA-aware objective scoring
// and feeds prediction error back into the lossiness tracker.
package router

import (
	"context"

	"github.com/signalsfoundry/mesh-router/core"
	"github.com/signalsfoundry/mesh-router/internal/adjudicator"
	"github.com/signalsfoundry/mesh-router/internal/objective"
	"github.com/signalsfoundry/mesh-router/internal/observability"
	"github.com/signalsfoundry/mesh-router/model"
	"go.opentelemetry.io/otel/attribute"
)

// Evaluation is the adjudicated route set for one request ranked by utility
// for one payload.
type Evaluation struct {
	Route    adjudicator.RouteResponse   `json:"route"`
	Ranked   []objective.ObjectiveResult `json:"ranked"`
	Selected *objective.ObjectiveResult  `json:"selected,omitempty"`
}

// Router evaluates candidate routes against the live coefficient set.
type Router struct {
	graph     *core.SharedGraph
	service   *adjudicator.Service
	evaluator *objective.Evaluator
}

// New returns a router over graph. The service must be bound to the same
// graph.
func New(graph *core.SharedGraph, service *adjudicator.Service, evaluator *objective.Evaluator) *Router {
	return &Router{graph: graph, service: service, evaluator: evaluator}
}

// Service exposes the adjudication service.
func (r *Router) Service() *adjudicator.Service { return r.service }

// Graph exposes the shared topology.
func (r *Router) Graph() *core.SharedGraph { return r.graph }

// Evaluate adjudicates req and ranks the primary route and its alternatives
// for payload p. Candidates are composed and ranked under one read snapshot,
// so the metrics always describe the paths that were adjudicated.
func (r *Router) Evaluate(ctx context.Context, req adjudicator.RouteRequest, p model.Payload, nowMs uint64) (Evaluation, error) {
	ctx, span := observability.StartSpan(ctx, "router.Evaluate",
		attribute.String("source", req.SourceID),
		attribute.String("destination", req.DestinationID),
		attribute.String("sla_tier", p.SLATier.String()),
	)
	defer span.End()

	var ev Evaluation
	err := r.graph.Read(func(g *core.ConstellationGraph) error {
		resp, err := r.service.Optimizer().Optimize(ctx, g, req)
		if err != nil {
			return err
		}
		ev.Route = resp

		candidates := make([]objective.RouteMetrics, 0, 1+len(resp.Alternatives))
		if resp.BestRoute != nil {
			if m := objective.FromPath(resp.BestRoute.Path, g); m != nil {
				candidates = append(candidates, *m)
			}
		}
		for _, alt := range resp.Alternatives {
			if m := objective.FromPath(alt.Path, g); m != nil {
				candidates = append(candidates, *m)
			}
		}
		ev.Ranked = r.evaluator.RankCandidates(ctx, candidates, p, nowMs)
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return Evaluation{}, err
	}

	// Ranked is stably sorted, so the first viable entry is the earliest
	// candidate with the highest utility.
	for i := range ev.Ranked {
		if ev.Ranked[i].Viable {
			selected := ev.Ranked[i]
			ev.Selected = &selected
			break
		}
	}
	span.SetAttributes(
		attribute.Int("candidates", len(ev.Ranked)),
		attribute.Bool("selected", ev.Selected != nil),
	)
	return ev, nil
}
