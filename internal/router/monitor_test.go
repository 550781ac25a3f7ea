package router

import (
	"context"
	"testing"
	"time"

	"github.com/signalsfoundry/mesh-router/core"
	"github.com/signalsfoundry/mesh-router/internal/lossiness"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticPhases map[string]float64

func (p staticPhases) Phase(id string) (float64, bool) {
	v, ok := p[id]
	return v, ok
}

func TestMonitorRecordsPredictionError(t *testing.T) {
	r, sg := newTestRouter(t)
	tracker := lossiness.NewTracker()
	m := NewMonitor(r, tracker, []Pair{{Source: "GS-1", Destination: "GS-2"}},
		WithPhaseSource(staticPhases{"SAT-1": 37}))

	ctx := context.Background()
	now := time.Date(2024, 3, 1, 14, 0, 0, 0, time.UTC)
	require.NoError(t, m.Tick(ctx, now))
	assert.Equal(t, 0, tracker.Summary().TotalObservations)

	latency := 15.0
	require.NoError(t, sg.ApplyLinkUpdate("GS-1", "SAT-1", core.LinkUpdate{LatencyMs: &latency}))
	require.NoError(t, m.Tick(ctx, now.Add(time.Second)))

	bucket := lossiness.Bucket{
		OrbitalPhase:  30,
		LinkClass:     "SG_TIER1",
		WeatherRegime: lossiness.WeatherDegraded,
		LoadRegime:    lossiness.LoadMedium,
		TimeBand:      14,
	}
	obs := tracker.Observations(bucket)
	require.Len(t, obs, 2)
	assert.Equal(t, MetricLatency, obs[0].Metric)
	assert.InDelta(t, 10.1, obs[0].Predicted, 1e-9)
	assert.InDelta(t, 20.1, obs[0].Observed, 1e-9)
	assert.InDelta(t, -10/10.1, obs[0].DeltaNormalized, 1e-9)
	assert.Equal(t, MetricFailure, obs[1].Metric)
	assert.InDelta(t, 0, obs[1].Delta, 1e-12)
}

func TestMonitorCountsBrokenPathAsFailure(t *testing.T) {
	r, sg := newTestRouter(t)
	tracker := lossiness.NewTracker()
	m := NewMonitor(r, tracker, []Pair{{Source: "GS-1", Destination: "GS-2"}})

	ctx := context.Background()
	now := time.Date(2024, 3, 1, 3, 0, 0, 0, time.UTC)
	require.NoError(t, m.Tick(ctx, now))

	require.NoError(t, sg.UpdateLink("GS-2", "SAT-2", false, nil))
	require.NoError(t, m.Tick(ctx, now.Add(time.Second)))

	summary := tracker.Summary()
	require.Equal(t, 1, summary.TotalObservations)
	require.Len(t, summary.Buckets, 1)
	obs := tracker.Observations(summary.Buckets[0].Bucket)
	require.Len(t, obs, 1)
	assert.Equal(t, MetricFailure, obs[0].Metric)
	assert.Equal(t, 1.0, obs[0].Observed)
	assert.Equal(t, uint16(0), obs[0].Bucket.OrbitalPhase)

	// The pair stays unroutable, so nothing further is settled.
	require.NoError(t, m.Tick(ctx, now.Add(2*time.Second)))
	assert.Equal(t, 1, tracker.Summary().TotalObservations)
}

func TestMonitorReportsUnknownNodes(t *testing.T) {
	r, _ := newTestRouter(t)
	m := NewMonitor(r, lossiness.NewTracker(), []Pair{{Source: "GS-1", Destination: "GHOST"}})
	err := m.Tick(context.Background(), time.Now())
	assert.ErrorIs(t, err, core.ErrNodeNotFound)
}

func TestMonitorStopsOnCancel(t *testing.T) {
	r, _ := newTestRouter(t)
	m := NewMonitor(r, lossiness.NewTracker(), []Pair{{Source: "GS-1", Destination: "GS-2"}})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, m.Tick(ctx, time.Now()), context.Canceled)
}
