package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/signalsfoundry/mesh-router/core"
)

// Path search results.
const (
	SearchFound    = "found"
	SearchNoPath   = "no_path"
	SearchNotFound = "node_not_found"
	SearchError    = "error"
)

// RouterCollector bundles the router's Prometheus metrics. All methods are
// safe on a nil receiver so components can be built without metrics.
type RouterCollector struct {
	gatherer prometheus.Gatherer

	PathSearches       *prometheus.CounterVec
	PathSearchDuration *prometheus.HistogramVec
	Adjudications      *prometheus.CounterVec
	CacheEvents        *prometheus.CounterVec

	CoefficientVersion    prometheus.Gauge
	CoefficientPromotions *prometheus.CounterVec
	LossinessBuckets      prometheus.Gauge

	GraphNodes       prometheus.Gauge
	GraphLinks       prometheus.Gauge
	GraphActiveLinks prometheus.Gauge
}

// NewRouterCollector registers router metrics against reg, defaulting to the
// global Prometheus registry when nil.
func NewRouterCollector(reg prometheus.Registerer) (*RouterCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	searches, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "router_path_searches_total",
		Help: "Path searches, labeled by result.",
	}, []string{"result"}), "router_path_searches_total")
	if err != nil {
		return nil, err
	}

	durations, err := registerHistogramVec(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "router_path_search_duration_seconds",
		Help:    "Duration of path searches, labeled by result.",
		Buckets: []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
	}, []string{"result"}), "router_path_search_duration_seconds")
	if err != nil {
		return nil, err
	}

	adjudications, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "router_adjudications_total",
		Help: "Route adjudications, labeled by decision.",
	}, []string{"decision"}), "router_adjudications_total")
	if err != nil {
		return nil, err
	}

	cacheEvents, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "router_route_cache_events_total",
		Help: "Route cache lookups and invalidations, labeled by event.",
	}, []string{"event"}), "router_route_cache_events_total")
	if err != nil {
		return nil, err
	}

	version, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "router_coefficient_version",
		Help: "Version of the live routing coefficient snapshot.",
	}), "router_coefficient_version")
	if err != nil {
		return nil, err
	}

	promotions, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "router_coefficient_promotions_total",
		Help: "Coefficient lifecycle events, labeled by outcome.",
	}, []string{"outcome"}), "router_coefficient_promotions_total")
	if err != nil {
		return nil, err
	}

	buckets, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "router_lossiness_buckets",
		Help: "Number of lossiness regime buckets holding observations.",
	}), "router_lossiness_buckets")
	if err != nil {
		return nil, err
	}

	nodes, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "router_graph_nodes",
		Help: "Current number of nodes in the constellation graph.",
	}), "router_graph_nodes")
	if err != nil {
		return nil, err
	}
	links, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "router_graph_links",
		Help: "Current number of physical links in the constellation graph.",
	}), "router_graph_links")
	if err != nil {
		return nil, err
	}
	active, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "router_graph_active_links",
		Help: "Current number of active physical links.",
	}), "router_graph_active_links")
	if err != nil {
		return nil, err
	}

	return &RouterCollector{
		gatherer:              gatherer,
		PathSearches:          searches,
		PathSearchDuration:    durations,
		Adjudications:         adjudications,
		CacheEvents:           cacheEvents,
		CoefficientVersion:    version,
		CoefficientPromotions: promotions,
		LossinessBuckets:      buckets,
		GraphNodes:            nodes,
		GraphLinks:            links,
		GraphActiveLinks:      active,
	}, nil
}

// Gatherer returns the Prometheus gatherer associated with the collector.
func (c *RouterCollector) Gatherer() prometheus.Gatherer {
	if c == nil {
		return nil
	}
	return c.gatherer
}

// Handler exposes a ready-to-use /metrics handler.
func (c *RouterCollector) Handler() http.Handler {
	var gatherer prometheus.Gatherer
	if c != nil {
		gatherer = c.gatherer
	}
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// ObservePathSearch records one search and its duration.
func (c *RouterCollector) ObservePathSearch(result string, d time.Duration) {
	if c == nil {
		return
	}
	c.PathSearches.WithLabelValues(result).Inc()
	c.PathSearchDuration.WithLabelValues(result).Observe(d.Seconds())
}

// IncAdjudication counts one Buy/Spread/Sell decision.
func (c *RouterCollector) IncAdjudication(decision string) {
	if c == nil {
		return
	}
	c.Adjudications.WithLabelValues(decision).Inc()
}

// IncCacheEvent counts a route cache event (hit, miss, expired, invalidate).
func (c *RouterCollector) IncCacheEvent(event string) {
	if c == nil {
		return
	}
	c.CacheEvents.WithLabelValues(event).Inc()
}

// SetCoefficientVersion satisfies objective.CoefficientMetricsRecorder.
func (c *RouterCollector) SetCoefficientVersion(version uint64) {
	if c == nil {
		return
	}
	c.CoefficientVersion.Set(float64(version))
}

// IncCoefficientPromotion satisfies objective.CoefficientMetricsRecorder.
func (c *RouterCollector) IncCoefficientPromotion(outcome string) {
	if c == nil {
		return
	}
	c.CoefficientPromotions.WithLabelValues(outcome).Inc()
}

// SetLossinessBuckets updates the tracked bucket gauge.
func (c *RouterCollector) SetLossinessBuckets(n int) {
	if c == nil {
		return
	}
	c.LossinessBuckets.Set(float64(n))
}

// SetGraphStats satisfies core.GraphMetricsRecorder so the shared graph can
// drive gauge values from its mutators.
func (c *RouterCollector) SetGraphStats(stats core.GraphStats) {
	if c == nil {
		return
	}
	c.GraphNodes.Set(float64(stats.TotalNodes))
	c.GraphLinks.Set(float64(stats.TotalLinks))
	c.GraphActiveLinks.Set(float64(stats.ActiveLinks))
}
