package adjudicator

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/signalsfoundry/mesh-router/core"
	"github.com/signalsfoundry/mesh-router/internal/logging"
	"github.com/signalsfoundry/mesh-router/internal/observability"
	"github.com/signalsfoundry/mesh-router/model"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"
)

// Score component weights.
const (
	marginWeight  = 0.35
	latencyWeight = 0.25
	hopsWeight    = 0.20
	weatherWeight = 0.20

	marginNormDB    = 10.0
	latencyNormMs   = 100.0
	defaultParallel = 8
)

// ErrUnscorable reports a found path that cannot be scored because a hop
// is missing or inactive.
var ErrUnscorable = errors.New("route not scorable")

// Graph is the read-only view the optimizer needs. *core.ConstellationGraph
// satisfies it; callers sharing a graph must hold a read lock for the whole
// call.
type Graph interface {
	FindPath(fromID, toID string) ([]string, error)
	FindPathExcluding(fromID, toID string, excluded [][2]string) ([]string, error)
	LinkBetween(aID, bID string) (model.Link, bool)
}

// MetricsRecorder receives search and adjudication events.
type MetricsRecorder interface {
	ObservePathSearch(result string, d time.Duration)
	IncAdjudication(decision string)
}

// RouteOptimizer is the fast heuristic adjudicator. It is independent of
// the utility objective and holds no mutable state, so one instance may serve
// concurrent callers.
type RouteOptimizer struct {
	thresholds RouteThresholds
	metrics    MetricsRecorder
	log        logging.Logger
	parallel   int
}

// Option customises a RouteOptimizer.
type Option func(*RouteOptimizer)

// WithThresholds replaces the default thresholds.
func WithThresholds(t RouteThresholds) Option {
	return func(o *RouteOptimizer) {
		o.thresholds = t
	}
}

// WithMetrics attaches a metrics recorder.
func WithMetrics(m MetricsRecorder) Option {
	return func(o *RouteOptimizer) {
		o.metrics = m
	}
}

// WithLogger attaches a logger.
func WithLogger(l logging.Logger) Option {
	return func(o *RouteOptimizer) {
		if l != nil {
			o.log = l
		}
	}
}

// WithBatchParallelism bounds the goroutines used by OptimizeBatch.
func WithBatchParallelism(n int) Option {
	return func(o *RouteOptimizer) {
		if n > 0 {
			o.parallel = n
		}
	}
}

// NewRouteOptimizer builds an optimizer with default thresholds unless
// overridden.
func NewRouteOptimizer(opts ...Option) *RouteOptimizer {
	o := &RouteOptimizer{
		thresholds: DefaultThresholds(),
		log:        logging.Noop(),
		parallel:   defaultParallel,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	return o
}

// Thresholds returns the optimizer's default thresholds.
func (o *RouteOptimizer) Thresholds() RouteThresholds {
	return o.thresholds
}

// ScoreRoute scores path under the optimizer's thresholds. ok is false when
// the path has fewer than two nodes or any hop is missing or inactive.
func (o *RouteOptimizer) ScoreRoute(path []string, g Graph) (ScoredRoute, bool) {
	return scoreRoute(path, g, o.thresholds)
}

func scoreRoute(path []string, g Graph, th RouteThresholds) (ScoredRoute, bool) {
	if len(path) < 2 || g == nil {
		return ScoredRoute{}, false
	}

	var (
		totalLatency, totalMargin float64
		minMargin                 = math.MaxFloat64
		minThroughput             = math.MaxFloat64
		weather                   = 1.0
		hops                      int
	)
	for i := 0; i+1 < len(path); i++ {
		link, ok := g.LinkBetween(path[i], path[i+1])
		if !ok || !link.Active {
			return ScoredRoute{}, false
		}
		totalLatency += link.LatencyMs
		totalMargin += link.MarginDB
		minMargin = math.Min(minMargin, link.MarginDB)
		minThroughput = math.Min(minThroughput, link.ThroughputGbps)
		weather *= link.WeatherScore
		hops++
	}

	maxHops := th.MaxHops
	if maxHops <= 0 {
		maxHops = DefaultThresholds().MaxHops
	}
	marginScore := math.Max(0, math.Min(1, minMargin/marginNormDB))
	latencyScore := math.Max(0, 1-totalLatency/latencyNormMs)
	hopsScore := math.Max(0, 1-float64(hops)/float64(maxHops))

	score := marginWeight*marginScore +
		latencyWeight*latencyScore +
		hopsWeight*hopsScore +
		weatherWeight*weather

	return ScoredRoute{
		Path:           append([]string(nil), path...),
		Score:          score,
		Decision:       th.Decide(score),
		TotalLatencyMs: totalLatency,
		MinMarginDB:    minMargin,
		AvgMarginDB:    totalMargin / float64(hops),
		ThroughputGbps: minThroughput,
		HopCount:       hops,
		WeatherFactor:  weather,
	}, true
}

// Optimize finds and scores the primary route for req, plus up to
// req.Alternatives alternatives found by excluding each hop of the primary
// path in turn. Path search errors are returned unchanged. A found but
// unscorable primary path yields a response with a nil BestRoute.
func (o *RouteOptimizer) Optimize(ctx context.Context, g Graph, req RouteRequest) (RouteResponse, error) {
	start := time.Now()
	ctx, span := observability.StartSpan(ctx, "adjudicator.Optimize",
		attribute.String("route.source", req.SourceID),
		attribute.String("route.destination", req.DestinationID),
		attribute.Int("route.alternatives", req.Alternatives),
	)
	defer span.End()

	th := o.thresholds
	if req.Thresholds != nil {
		th = *req.Thresholds
	}

	path, err := o.findPath(g, req.SourceID, req.DestinationID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return RouteResponse{}, err
	}

	resp := RouteResponse{Request: req, Alternatives: []ScoredRoute{}}
	if best, ok := scoreRoute(path, g, th); ok {
		resp.BestRoute = &best
		o.recordDecision(best.Decision)
		span.SetAttributes(
			attribute.Float64("route.score", best.Score),
			attribute.String("route.decision", best.Decision.String()),
		)
	}

	if req.Alternatives > 0 {
		resp.Alternatives = o.alternatives(ctx, g, req, path, th)
	}

	resp.ProcessingTimeUs = time.Since(start).Microseconds()
	logging.LoggerFromContext(ctx, o.log).Debug(ctx, "route optimized",
		logging.String("source", req.SourceID),
		logging.String("destination", req.DestinationID),
		logging.Int("hops", len(path)-1),
		logging.Int("alternatives", len(resp.Alternatives)),
		logging.Any("processing_time_us", resp.ProcessingTimeUs),
	)
	return resp, nil
}

func (o *RouteOptimizer) alternatives(ctx context.Context, g Graph, req RouteRequest, primary []string, th RouteThresholds) []ScoredRoute {
	seen := map[string]struct{}{pathKey(primary): {}}
	var out []ScoredRoute
	for i := 0; i+1 < len(primary); i++ {
		if ctx.Err() != nil {
			break
		}
		excluded := [][2]string{{primary[i], primary[i+1]}}
		alt, err := g.FindPathExcluding(req.SourceID, req.DestinationID, excluded)
		if err != nil {
			continue
		}
		key := pathKey(alt)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		if scored, ok := scoreRoute(alt, g, th); ok {
			out = append(out, scored)
		}
	}
	slices.SortStableFunc(out, func(a, b ScoredRoute) int {
		return cmp.Compare(b.Score, a.Score)
	})
	if len(out) > req.Alternatives {
		out = out[:req.Alternatives]
	}
	if out == nil {
		out = []ScoredRoute{}
	}
	return out
}

// BestRoute finds and scores the primary route only. A path that cannot be
// scored is reported as ErrUnscorable.
func (o *RouteOptimizer) BestRoute(g Graph, sourceID, destID string) (ScoredRoute, error) {
	path, err := o.findPath(g, sourceID, destID)
	if err != nil {
		return ScoredRoute{}, err
	}
	scored, ok := scoreRoute(path, g, o.thresholds)
	if !ok {
		return ScoredRoute{}, fmt.Errorf("%s -> %s: %w", sourceID, destID, ErrUnscorable)
	}
	o.recordDecision(scored.Decision)
	return scored, nil
}

// QuickAdjudicate returns the verdict for the primary route, or Sell when no
// path exists, an endpoint is unknown, or the path cannot be scored.
func (o *RouteOptimizer) QuickAdjudicate(g Graph, sourceID, destID string) Decision {
	scored, err := o.BestRoute(g, sourceID, destID)
	if err != nil {
		o.recordDecision(Sell)
		return Sell
	}
	return scored.Decision
}

// OptimizeBatch optimizes every request concurrently and returns one
// response per request in input order. A failed request yields an empty
// response carrying only the request.
func (o *RouteOptimizer) OptimizeBatch(ctx context.Context, g Graph, reqs []RouteRequest) []RouteResponse {
	out := make([]RouteResponse, len(reqs))
	eg, egctx := errgroup.WithContext(ctx)
	eg.SetLimit(o.parallel)
	for i, req := range reqs {
		eg.Go(func() error {
			resp, err := o.Optimize(egctx, g, req)
			if err != nil {
				out[i] = RouteResponse{Request: req, Alternatives: []ScoredRoute{}}
				return nil
			}
			out[i] = resp
			return nil
		})
	}
	_ = eg.Wait()
	return out
}

func (o *RouteOptimizer) findPath(g Graph, sourceID, destID string) ([]string, error) {
	start := time.Now()
	path, err := g.FindPath(sourceID, destID)
	if o.metrics != nil {
		o.metrics.ObservePathSearch(searchResult(err), time.Since(start))
	}
	return path, err
}

func (o *RouteOptimizer) recordDecision(d Decision) {
	if o.metrics != nil {
		o.metrics.IncAdjudication(d.String())
	}
}

func searchResult(err error) string {
	switch {
	case err == nil:
		return observability.SearchFound
	case errors.Is(err, core.ErrNoPath):
		return observability.SearchNoPath
	case errors.Is(err, core.ErrNodeNotFound):
		return observability.SearchNotFound
	default:
		return observability.SearchError
	}
}

func pathKey(path []string) string {
	return strings.Join(path, "\x00")
}
