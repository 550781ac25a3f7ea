package objective

import (
	"context"
	"testing"

	"github.com/signalsfoundry/mesh-router/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluatorFollowsLiveSnapshot(t *testing.T) {
	s, err := NewCoefficientStore(DefaultCoefficients())
	require.NoError(t, err)
	e := NewEvaluator(s)
	ctx := context.Background()
	p := model.SilverPayload("test", 50)

	before := e.Evaluate(ctx, goodMetrics(), p, testNowMs)
	assert.Equal(t, uint64(1), before.CoefficientVersion)

	promoted, err := s.Promote(CostOptimized(), "calibration", testNowMs)
	require.NoError(t, err)

	after := e.Evaluate(ctx, goodMetrics(), p, testNowMs)
	assert.Equal(t, promoted.Version, after.CoefficientVersion)
	assert.Equal(t, promoted.VersionHash, after.CoefficientHash)
	assert.NotEqual(t, before.TotalPenalty, after.TotalPenalty)

	best, ok := e.SelectOptimal(ctx, []RouteMetrics{badMetrics(), goodMetrics()}, p, testNowMs)
	require.True(t, ok)
	assert.Equal(t, 30.0, best.Metrics.MuLatencyMs)

	ranked := e.RankCandidates(ctx, []RouteMetrics{badMetrics(), goodMetrics()}, p, testNowMs)
	require.Len(t, ranked, 2)
	assert.True(t, ranked[0].Viable)
}
