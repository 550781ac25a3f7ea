package router

import (
	"context"
	"testing"

	"github.com/signalsfoundry/mesh-router/core"
	"github.com/signalsfoundry/mesh-router/internal/adjudicator"
	"github.com/signalsfoundry/mesh-router/internal/objective"
	"github.com/signalsfoundry/mesh-router/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

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

func newTestRouter(t *testing.T) (*Router, *core.SharedGraph) {
	t.Helper()
	sg := core.NewSharedGraph(ringGraph(t))
	store, err := objective.NewCoefficientStore(objective.DefaultCoefficients())
	require.NoError(t, err)
	svc := adjudicator.NewService(sg, nil, nil)
	t.Cleanup(svc.Close)
	return New(sg, svc, objective.NewEvaluator(store)), sg
}

func TestEvaluateRanksPrimaryAndAlternatives(t *testing.T) {
	r, _ := newTestRouter(t)
	req := adjudicator.RouteRequest{SourceID: "GS-1", DestinationID: "GS-2", Alternatives: 1}

	ev, err := r.Evaluate(context.Background(), req, model.SilverPayload("p", 50), 0)
	require.NoError(t, err)
	require.NotNil(t, ev.Route.BestRoute)
	assert.Equal(t, []string{"GS-1", "SAT-1", "SAT-2", "GS-2"}, ev.Route.BestRoute.Path)
	require.Len(t, ev.Ranked, 2)
	assert.GreaterOrEqual(t, ev.Ranked[0].Utility, ev.Ranked[1].Utility)

	require.NotNil(t, ev.Selected)
	assert.True(t, ev.Selected.Viable)
	assert.Equal(t, ev.Ranked[0].Metrics.Path, ev.Selected.Metrics.Path)
	assert.Equal(t, uint64(1), ev.Selected.CoefficientVersion)
}

func TestEvaluateNoViableRoute(t *testing.T) {
	r, _ := newTestRouter(t)
	req := adjudicator.RouteRequest{SourceID: "GS-1", DestinationID: "GS-2", Alternatives: 1}

	// Both candidates exceed a 5 ms bound.
	ev, err := r.Evaluate(context.Background(), req, model.GoldPayload("p", 5), 0)
	require.NoError(t, err)
	assert.Len(t, ev.Ranked, 2)
	assert.Nil(t, ev.Selected)
	for _, res := range ev.Ranked {
		assert.False(t, res.Viable)
	}
}

func TestEvaluatePropagatesLookupErrors(t *testing.T) {
	r, _ := newTestRouter(t)
	_, err := r.Evaluate(context.Background(),
		adjudicator.RouteRequest{SourceID: "GS-1", DestinationID: "NOPE"},
		model.DefaultPayload(), 0)
	assert.ErrorIs(t, err, core.ErrNodeNotFound)
}
