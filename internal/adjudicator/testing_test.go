package adjudicator

import (
	"sync"
	"testing"
	"time"

	"github.com/signalsfoundry/mesh-router/core"
	"github.com/signalsfoundry/mesh-router/model"
	"github.com/stretchr/testify/require"
)

var ringPath = []string{"GS-1", "SAT-1", "SAT-2", "GS-2"}

func ringGraph(t *testing.T) *core.ConstellationGraph {
	t.Helper()
	g := core.NewConstellationGraph()
	for i, id := range []string{"SAT-1", "SAT-2", "SAT-3", "SAT-4"} {
		_, err := g.AddNode(model.NewSatellite(id, id, 0, float64(i*90), 550, 0, 53))
		require.NoError(t, err)
	}
	_, err := g.AddNode(model.NewGroundStation("GS-1", "Ground 1", 40, -74, 1))
	require.NoError(t, err)
	_, err = g.AddNode(model.NewGroundStation("GS-2", "Ground 2", 51.5, -0.1, 1))
	require.NoError(t, err)

	for _, pair := range [][2]string{{"SAT-1", "SAT-2"}, {"SAT-2", "SAT-3"}, {"SAT-3", "SAT-4"}, {"SAT-4", "SAT-1"}} {
		require.NoError(t, g.AddLink(pair[0], pair[1], model.InterSatelliteLink(pair[0]+"_"+pair[1], 8)))
	}
	require.NoError(t, g.AddLink("GS-1", "SAT-1", model.SatelliteToGroundLink("GS-1_SAT-1", 6, 0.90)))
	require.NoError(t, g.AddLink("GS-2", "SAT-2", model.SatelliteToGroundLink("GS-2_SAT-2", 6, 0.85)))
	return g
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1_700_000_000, 0)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type recordingMetrics struct {
	mu        sync.Mutex
	searches  map[string]int
	decisions map[string]int
	cache     map[string]int
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{
		searches:  map[string]int{},
		decisions: map[string]int{},
		cache:     map[string]int{},
	}
}

func (m *recordingMetrics) ObservePathSearch(result string, _ time.Duration) {
	m.mu.Lock()
	m.searches[result]++
	m.mu.Unlock()
}

func (m *recordingMetrics) IncAdjudication(decision string) {
	m.mu.Lock()
	m.decisions[decision]++
	m.mu.Unlock()
}

func (m *recordingMetrics) IncCacheEvent(event string) {
	m.mu.Lock()
	m.cache[event]++
	m.mu.Unlock()
}

func (m *recordingMetrics) count(set map[string]int, key string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return set[key]
}
