package core

import (
	"sync"

	"github.com/signalsfoundry/mesh-router/model"
)

// TopologyEventType indicates what changed in a SharedGraph.
type TopologyEventType int

const (
	EventNodeAdded TopologyEventType = iota
	EventLinkAdded
	EventLinkUpdated
	EventNodeMoved
)

// TopologyEvent is delivered to subscribers after a mutation commits.
type TopologyEvent struct {
	Type   TopologyEventType
	NodeID string
	// PeerID is the far endpoint for link events.
	PeerID string
}

// GraphMetricsRecorder receives graph-size updates after each mutation.
type GraphMetricsRecorder interface {
	SetGraphStats(stats GraphStats)
}

// SharedGraph wraps a ConstellationGraph with single-writer/multi-reader
// discipline: telemetry writers take the write lock, searches and route
// evaluations run under the read lock and never observe a half-applied link
// update.
type SharedGraph struct {
	mu sync.RWMutex
	g  *ConstellationGraph

	subMu  sync.Mutex
	subs   []subscriber
	nextID int

	metrics GraphMetricsRecorder
}

type subscriber struct {
	id int
	fn func(TopologyEvent)
}

// SharedGraphOption customises SharedGraph construction.
type SharedGraphOption func(*SharedGraph)

// WithGraphMetrics attaches a recorder for graph gauges.
func WithGraphMetrics(m GraphMetricsRecorder) SharedGraphOption {
	return func(s *SharedGraph) {
		s.metrics = m
	}
}

// NewSharedGraph takes ownership of g. Callers must not touch g directly
// afterwards.
func NewSharedGraph(g *ConstellationGraph, opts ...SharedGraphOption) *SharedGraph {
	if g == nil {
		g = NewConstellationGraph()
	}
	s := &SharedGraph{g: g}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	s.recordStats()
	return s
}

// Read runs fn with the read lock held. fn must treat the graph as read-only
// and must not call back into SharedGraph mutators.
func (s *SharedGraph) Read(fn func(g *ConstellationGraph) error) error {
	if fn == nil {
		return nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(s.g)
}

// FindPath runs a search under the read lock.
func (s *SharedGraph) FindPath(fromID, toID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.g.FindPath(fromID, toID)
}

// Stats reads graph statistics under the read lock.
func (s *SharedGraph) Stats() GraphStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.g.Stats()
}

func (s *SharedGraph) AddNode(node model.Node) error {
	s.mu.Lock()
	_, err := s.g.AddNode(node)
	s.mu.Unlock()
	if err != nil {
		return err
	}
	s.afterWrite(TopologyEvent{Type: EventNodeAdded, NodeID: node.ID})
	return nil
}

func (s *SharedGraph) AddLink(fromID, toID string, link model.Link) error {
	s.mu.Lock()
	err := s.g.AddLink(fromID, toID, link)
	s.mu.Unlock()
	if err != nil {
		return err
	}
	s.afterWrite(TopologyEvent{Type: EventLinkAdded, NodeID: fromID, PeerID: toID})
	return nil
}

// UpdateLink applies a telemetry update to both directions atomically with
// respect to readers.
func (s *SharedGraph) UpdateLink(fromID, toID string, active bool, marginDB *float64) error {
	return s.ApplyLinkUpdate(fromID, toID, LinkUpdate{Active: &active, MarginDB: marginDB})
}

func (s *SharedGraph) ApplyLinkUpdate(fromID, toID string, upd LinkUpdate) error {
	s.mu.Lock()
	err := s.g.ApplyLinkUpdate(fromID, toID, upd)
	s.mu.Unlock()
	if err != nil {
		return err
	}
	s.afterWrite(TopologyEvent{Type: EventLinkUpdated, NodeID: fromID, PeerID: toID})
	return nil
}

func (s *SharedGraph) UpdateNodePosition(id string, latDeg, lonDeg float64, epoch int64) error {
	s.mu.Lock()
	err := s.g.UpdateNodePosition(id, latDeg, lonDeg, epoch)
	s.mu.Unlock()
	if err != nil {
		return err
	}
	s.notify(TopologyEvent{Type: EventNodeMoved, NodeID: id})
	return nil
}

// RefreshGroundLinks applies ConstellationGraph.RefreshGroundLinks under the
// write lock and emits one link-updated event when anything changed.
func (s *SharedGraph) RefreshGroundLinks(minElevationDeg float64) int {
	s.mu.Lock()
	changed := s.g.RefreshGroundLinks(minElevationDeg)
	s.mu.Unlock()
	if changed > 0 {
		s.afterWrite(TopologyEvent{Type: EventLinkUpdated})
	}
	return changed
}

// Subscribe registers fn for topology events and returns an unsubscribe
// function. Events are delivered outside the graph lock, in registration
// order.
func (s *SharedGraph) Subscribe(fn func(TopologyEvent)) (unsubscribe func()) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	id := s.nextID
	s.nextID++
	s.subs = append(s.subs, subscriber{id: id, fn: fn})

	return func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		for i, sub := range s.subs {
			if sub.id == id {
				s.subs = append(s.subs[:i], s.subs[i+1:]...)
				return
			}
		}
	}
}

func (s *SharedGraph) afterWrite(ev TopologyEvent) {
	s.recordStats()
	s.notify(ev)
}

func (s *SharedGraph) recordStats() {
	if s.metrics == nil {
		return
	}
	s.metrics.SetGraphStats(s.Stats())
}

func (s *SharedGraph) notify(ev TopologyEvent) {
	s.subMu.Lock()
	subs := make([]subscriber, len(s.subs))
	copy(subs, s.subs)
	s.subMu.Unlock()

	for _, sub := range subs {
		if sub.fn != nil {
			sub.fn(ev)
		}
	}
}
