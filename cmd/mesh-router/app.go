package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/signalsfoundry/mesh-router/core"
	"github.com/signalsfoundry/mesh-router/internal/adjudicator"
	"github.com/signalsfoundry/mesh-router/internal/calibration"
	"github.com/signalsfoundry/mesh-router/internal/config"
	"github.com/signalsfoundry/mesh-router/internal/logging"
	"github.com/signalsfoundry/mesh-router/internal/lossiness"
	"github.com/signalsfoundry/mesh-router/internal/objective"
	"github.com/signalsfoundry/mesh-router/internal/observability"
	"github.com/signalsfoundry/mesh-router/internal/propagation"
	"github.com/signalsfoundry/mesh-router/internal/router"
	"github.com/signalsfoundry/mesh-router/timectrl"
)

// app is the assembled router.
type app struct {
	cfg     config.Config
	graph   *core.SharedGraph
	store   *objective.CoefficientStore
	service *adjudicator.Service
	router  *router.Router
	tracker *lossiness.Tracker
	gate    *calibration.Gate
	slot    *calibration.CandidateSlot
	feed    *propagation.Feed
	monitor *router.Monitor
	log     logging.Logger
}

func newApp(cfg config.Config, collector *observability.RouterCollector, log logging.Logger) (*app, error) {
	ctx := context.Background()

	g := core.NewConstellationGraph()
	if cfg.Topology.Path != "" {
		if err := loadTopology(g, cfg.Topology.Path); err != nil {
			return nil, err
		}
		stats := g.Stats()
		log.Info(ctx, "loaded topology",
			logging.String("path", cfg.Topology.Path),
			logging.Int("nodes", stats.TotalNodes),
			logging.Int("links", stats.TotalLinks),
		)
	}
	graph := core.NewSharedGraph(g, core.WithGraphMetrics(collector))

	initial, err := objective.Preset(cfg.Router.CoefficientPreset)
	if err != nil {
		return nil, err
	}
	store, err := objective.NewCoefficientStore(initial,
		objective.WithCoefficientMetrics(collector),
		objective.WithHistoryDepth(cfg.Router.HistoryDepth),
	)
	if err != nil {
		return nil, err
	}

	optimizer := adjudicator.NewRouteOptimizer(
		adjudicator.WithThresholds(cfg.Router.Thresholds),
		adjudicator.WithMetrics(collector),
		adjudicator.WithLogger(log),
		adjudicator.WithBatchParallelism(cfg.Router.BatchParallelism),
	)
	cache := adjudicator.NewRouteCache(cfg.Cache.MaxAge.Duration,
		adjudicator.WithCacheCapacity(cfg.Cache.Capacity),
		adjudicator.WithCacheMetrics(collector),
	)
	service := adjudicator.NewService(graph, optimizer, cache)
	r := router.New(graph, service, objective.NewEvaluator(store))

	tracker := lossiness.NewTracker(
		lossiness.WithMaxPerBucket(cfg.Lossiness.MaxPerBucket),
		lossiness.WithThresholds(cfg.Lossiness.Thresholds),
		lossiness.WithMetrics(collector),
	)

	feed := propagation.NewFeed()
	if cfg.Topology.TLEPath != "" {
		n, err := loadTLEs(feed, cfg.Topology.TLEPath)
		if err != nil {
			service.Close()
			return nil, err
		}
		log.Info(ctx, "loaded element sets", logging.String("path", cfg.Topology.TLEPath), logging.Int("satellites", n))
	}

	pairs := make([]router.Pair, 0, len(cfg.Tick.Watch))
	for _, w := range cfg.Tick.Watch {
		pairs = append(pairs, router.Pair{Source: w.Source, Destination: w.Destination})
	}

	return &app{
		cfg:     cfg,
		graph:   graph,
		store:   store,
		service: service,
		router:  r,
		tracker: tracker,
		gate:    calibration.NewGate(tracker, store, calibration.WithGateLogger(log)),
		slot:    &calibration.CandidateSlot{},
		feed:    feed,
		monitor: router.NewMonitor(r, tracker, pairs,
			router.WithPhaseSource(feed),
			router.WithMonitorLogger(log),
		),
		log: log,
	}, nil
}

func (a *app) Close() {
	a.service.Close()
}

// controller registers the per-tick listeners. Propagation is registered
// first so the monitor sees the positions of the current tick.
func (a *app) controller(start time.Time) *timectrl.Controller {
	tick := a.cfg.Tick
	mode := timectrl.RealTime
	if tick.Accelerated {
		mode = timectrl.Accelerated
	}
	c := timectrl.NewController(start, tick.Interval.Duration, mode, timectrl.WithLogger(a.log))

	if a.feed.Len() > 0 {
		c.AddListener("propagation", func(ctx context.Context, now time.Time) error {
			_, err := a.feed.Apply(ctx, a.graph, now)
			if n := a.graph.RefreshGroundLinks(a.cfg.Topology.MinElevationDeg); n > 0 {
				a.log.Debug(ctx, "ground links refreshed", logging.Int("changed", n))
			}
			return err
		})
	}
	if len(a.monitor.Pairs()) > 0 {
		c.AddListener("monitor", a.monitor.Tick)
	}
	c.AddListener("calibration", func(ctx context.Context, _ time.Time) error {
		_, err := calibration.SweepPending(ctx, a.gate, a.slot)
		return err
	})
	return c
}

func loadTopology(g *core.ConstellationGraph, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open topology: %w", err)
	}
	defer f.Close()
	if _, err := core.LoadTopology(g, f); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}

func loadTLEs(feed *propagation.Feed, path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open element sets: %w", err)
	}
	defer f.Close()
	n, err := feed.LoadTLEs(f)
	if err != nil {
		return n, fmt.Errorf("%s: %w", path, err)
	}
	return n, nil
}
