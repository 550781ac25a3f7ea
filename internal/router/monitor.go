package router

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	"github.com/signalsfoundry/mesh-router/core"
	"github.com/signalsfoundry/mesh-router/internal/logging"
	"github.com/signalsfoundry/mesh-router/internal/lossiness"
	"github.com/signalsfoundry/mesh-router/internal/objective"
	"github.com/signalsfoundry/mesh-router/model"
)

// Observed metric names.
const (
	MetricLatency = "latency_ms"
	MetricFailure = "failure_prob"
)

// Pair is a watched source and destination.
type Pair struct {
	Source      string `json:"source"`
	Destination string `json:"destination"`
}

// PhaseSource reports the orbital phase of a satellite's latest fix.
type PhaseSource interface {
	Phase(nodeID string) (float64, bool)
}

type prediction struct {
	path   []string
	bucket lossiness.Bucket
	m      objective.RouteMetrics
}

// Monitor predicts route metrics for watched pairs on every tick and, on the
// following tick, records how far the prediction was from the metrics the
// same path then shows.
type Monitor struct {
	graph   *core.SharedGraph
	router  *Router
	tracker *lossiness.Tracker
	phases  PhaseSource
	pairs   []Pair
	log     logging.Logger

	mu   sync.Mutex
	last map[Pair]prediction
}

// MonitorOption configures a Monitor.
type MonitorOption func(*Monitor)

// WithPhaseSource sets where orbital phases come from. Without one every
// observation falls in phase bin 0.
func WithPhaseSource(p PhaseSource) MonitorOption {
	return func(m *Monitor) { m.phases = p }
}

// WithMonitorLogger attaches a logger.
func WithMonitorLogger(l logging.Logger) MonitorOption {
	return func(m *Monitor) {
		if l != nil {
			m.log = l
		}
	}
}

// NewMonitor watches pairs through r and records prediction error in tracker.
func NewMonitor(r *Router, tracker *lossiness.Tracker, pairs []Pair, opts ...MonitorOption) *Monitor {
	m := &Monitor{
		graph:   r.Graph(),
		router:  r,
		tracker: tracker,
		pairs:   append([]Pair(nil), pairs...),
		log:     logging.Noop(),
		last:    make(map[Pair]prediction),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Pairs returns the watched pairs.
func (m *Monitor) Pairs() []Pair {
	return append([]Pair(nil), m.pairs...)
}

// Tick settles the previous predictions, refreshes the adjudication verdict
// and records new predictions for each watched pair. Pairs with no route are
// skipped until one appears.
func (m *Monitor) Tick(ctx context.Context, now time.Time) error {
	nowMs := uint64(now.UnixMilli())
	m.mu.Lock()
	defer m.mu.Unlock()

	var errs []error
	for _, pair := range m.pairs {
		if err := ctx.Err(); err != nil {
			return err
		}

		prev, hadPrev := m.last[pair]
		var (
			observed *objective.RouteMetrics
			next     *prediction
		)
		err := m.graph.Read(func(g *core.ConstellationGraph) error {
			if hadPrev {
				observed = objective.FromPath(prev.path, g)
			}
			path, err := g.FindPath(pair.Source, pair.Destination)
			if err != nil {
				return err
			}
			metrics := objective.FromPath(path, g)
			if metrics == nil {
				return nil
			}
			next = &prediction{
				path:   path,
				bucket: m.bucketFor(path, *metrics, g, now),
				m:      *metrics,
			}
			return nil
		})

		if hadPrev {
			m.settle(prev, observed, nowMs)
		}

		switch {
		case errors.Is(err, core.ErrNoPath):
			delete(m.last, pair)
			m.log.Debug(ctx, "watched pair unroutable",
				logging.String("source", pair.Source),
				logging.String("destination", pair.Destination),
			)
			continue
		case err != nil:
			delete(m.last, pair)
			errs = append(errs, err)
			continue
		}
		if next == nil {
			delete(m.last, pair)
			continue
		}
		m.last[pair] = *next

		decision := m.router.Service().QuickAdjudicate(pair.Source, pair.Destination)
		m.log.Debug(ctx, "watched pair adjudicated",
			logging.String("source", pair.Source),
			logging.String("destination", pair.Destination),
			logging.String("decision", decision.String()),
			logging.Float64("latency_ms", next.m.MuLatencyMs),
			logging.String("bucket", next.bucket.String()),
		)
	}
	return errors.Join(errs...)
}

// settle records the error between a prediction and what its path shows now.
// A path that has since broken counts as certain failure.
func (m *Monitor) settle(prev prediction, observed *objective.RouteMetrics, nowMs uint64) {
	if observed == nil {
		m.tracker.Record(lossiness.NewObservation(prev.bucket, MetricFailure, prev.m.PiFailure, 1, 1, nowMs))
		return
	}
	m.tracker.Record(lossiness.NewObservation(prev.bucket, MetricLatency,
		prev.m.MuLatencyMs, observed.MuLatencyMs, prev.m.MuLatencyMs, nowMs))
	m.tracker.Record(lossiness.NewObservation(prev.bucket, MetricFailure,
		prev.m.PiFailure, observed.PiFailure, 1, nowMs))
}

// bucketFor keys a prediction by the phase of the first satellite on the
// path, the class of its first hop and the route's weather and load.
func (m *Monitor) bucketFor(path []string, metrics objective.RouteMetrics, g *core.ConstellationGraph, now time.Time) lossiness.Bucket {
	var phase float64
	if m.phases != nil {
		for _, id := range path {
			if p, ok := m.phases.Phase(id); ok {
				phase = p
				break
			}
		}
	}

	class := lossiness.ClassTerrestrial
	if link, ok := g.LinkBetween(path[0], path[1]); ok {
		class = lossiness.LinkClass(link.Type, groundTier(g, path[0], path[1]))
	}

	load := metrics.KappaCongestion
	if math.IsNaN(load) {
		load = 0
	}
	return lossiness.NewBucket(phase, class, metrics.WeatherFactor, load, uint8(now.UTC().Hour()))
}

func groundTier(g *core.ConstellationGraph, ids ...string) uint8 {
	for _, id := range ids {
		n, ok := g.Node(id)
		if !ok {
			continue
		}
		if gs, ok := n.Kind.(model.GroundStation); ok {
			return gs.Tier
		}
	}
	return 0
}
