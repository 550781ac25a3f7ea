package adjudicator

import (
	"context"
	"testing"
	"time"

	"github.com/signalsfoundry/mesh-router/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServiceCachesUntilTopologyChanges(t *testing.T) {
	sg := core.NewSharedGraph(ringGraph(t))
	metrics := newRecordingMetrics()
	svc := NewService(sg, NewRouteOptimizer(), NewRouteCache(time.Minute, WithCacheMetrics(metrics)))
	defer svc.Close()

	assert.Equal(t, Spread, svc.QuickAdjudicate("GS-1", "GS-2"))
	assert.Equal(t, Spread, svc.QuickAdjudicate("GS-1", "GS-2"))
	assert.Equal(t, int64(1), svc.Cache().Stats().Hits)

	require.NoError(t, sg.UpdateLink("GS-1", "SAT-1", false, nil))
	assert.Equal(t, 0, svc.Cache().Stats().Entries)
	assert.Equal(t, Sell, svc.QuickAdjudicate("GS-1", "GS-2"))

	margin := 6.0
	require.NoError(t, sg.UpdateLink("GS-1", "SAT-1", true, &margin))
	assert.Equal(t, Spread, svc.QuickAdjudicate("GS-1", "GS-2"))
}

func TestServiceOptimize(t *testing.T) {
	sg := core.NewSharedGraph(ringGraph(t))
	svc := NewService(sg, nil, nil)
	defer svc.Close()

	resp, err := svc.Optimize(context.Background(), RouteRequest{SourceID: "GS-1", DestinationID: "GS-2", Alternatives: 1})
	require.NoError(t, err)
	require.NotNil(t, resp.BestRoute)
	assert.Equal(t, ringPath, resp.BestRoute.Path)
	assert.Len(t, resp.Alternatives, 1)

	out := svc.OptimizeBatch(context.Background(), []RouteRequest{
		{SourceID: "GS-2", DestinationID: "GS-1"},
		{SourceID: "GS-1", DestinationID: "MISSING"},
	})
	require.Len(t, out, 2)
	assert.NotNil(t, out[0].BestRoute)
	assert.Nil(t, out[1].BestRoute)
}

func TestServiceCloseDetachesCache(t *testing.T) {
	sg := core.NewSharedGraph(ringGraph(t))
	svc := NewService(sg, nil, nil)
	svc.QuickAdjudicate("GS-1", "GS-2")
	svc.Close()
	svc.Close()

	require.NoError(t, sg.UpdateLink("SAT-3", "SAT-4", false, nil))
	assert.Equal(t, 1, svc.Cache().Stats().Entries)
}
