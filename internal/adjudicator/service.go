package adjudicator

import (
	"context"

	"github.com/signalsfoundry/mesh-router/core"
)

// Service runs the optimizer against a shared graph and caches primary-route
// verdicts until the topology changes.
type Service struct {
	graph       *core.SharedGraph
	optimizer   *RouteOptimizer
	cache       *RouteCache
	unsubscribe func()
}

// NewService wires optimizer and cache to graph. A nil optimizer or cache
// gets a default one.
func NewService(graph *core.SharedGraph, optimizer *RouteOptimizer, cache *RouteCache) *Service {
	if optimizer == nil {
		optimizer = NewRouteOptimizer()
	}
	if cache == nil {
		cache = NewRouteCache(0)
	}
	s := &Service{
		graph:     graph,
		optimizer: optimizer,
		cache:     cache,
	}
	s.unsubscribe = graph.Subscribe(cache.OnTopologyEvent)
	return s
}

// Cache exposes the service's route cache.
func (s *Service) Cache() *RouteCache { return s.cache }

// Optimizer exposes the service's optimizer.
func (s *Service) Optimizer() *RouteOptimizer { return s.optimizer }

// Optimize runs a full optimization under a single read snapshot.
func (s *Service) Optimize(ctx context.Context, req RouteRequest) (RouteResponse, error) {
	var resp RouteResponse
	err := s.graph.Read(func(g *core.ConstellationGraph) error {
		var err error
		resp, err = s.optimizer.Optimize(ctx, g, req)
		return err
	})
	return resp, err
}

// OptimizeBatch optimizes every request under a single read snapshot.
func (s *Service) OptimizeBatch(ctx context.Context, reqs []RouteRequest) []RouteResponse {
	var out []RouteResponse
	_ = s.graph.Read(func(g *core.ConstellationGraph) error {
		out = s.optimizer.OptimizeBatch(ctx, g, reqs)
		return nil
	})
	return out
}

// BestRoute returns the cached primary route for the pair, computing it on a
// miss.
func (s *Service) BestRoute(sourceID, destID string) (ScoredRoute, error) {
	return s.cache.GetOrCompute(sourceID, destID, func() (ScoredRoute, error) {
		var route ScoredRoute
		err := s.graph.Read(func(g *core.ConstellationGraph) error {
			var err error
			route, err = s.optimizer.BestRoute(g, sourceID, destID)
			return err
		})
		return route, err
	})
}

// QuickAdjudicate returns the cached verdict for the pair, or Sell when no
// scorable route exists.
func (s *Service) QuickAdjudicate(sourceID, destID string) Decision {
	route, err := s.BestRoute(sourceID, destID)
	if err != nil {
		return Sell
	}
	return route.Decision
}

// Close detaches the cache from topology events.
func (s *Service) Close() {
	if s.unsubscribe != nil {
		s.unsubscribe()
		s.unsubscribe = nil
	}
}
