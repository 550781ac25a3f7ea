package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/signalsfoundry/mesh-router/core"
	"github.com/signalsfoundry/mesh-router/internal/adjudicator"
	"github.com/signalsfoundry/mesh-router/internal/lossiness"
	"github.com/signalsfoundry/mesh-router/internal/objective"
	"github.com/signalsfoundry/mesh-router/internal/observability"
	"github.com/signalsfoundry/mesh-router/internal/router"
	"github.com/signalsfoundry/mesh-router/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

type fixture struct {
	server  *Server
	graph   *core.SharedGraph
	store   *objective.CoefficientStore
	tracker *lossiness.Tracker
}

func newFixture(t *testing.T) *fixture {
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

	collector, err := observability.NewRouterCollector(prometheus.NewRegistry())
	require.NoError(t, err)

	sg := core.NewSharedGraph(g)
	store, err := objective.NewCoefficientStore(objective.DefaultCoefficients())
	require.NoError(t, err)
	svc := adjudicator.NewService(sg, adjudicator.NewRouteOptimizer(adjudicator.WithMetrics(collector)), nil)
	t.Cleanup(svc.Close)
	tracker := lossiness.NewTracker()

	srv := NewServer(Deps{
		Router:  router.New(sg, svc, objective.NewEvaluator(store)),
		Store:   store,
		Tracker: tracker,
		Metrics: collector.Handler(),
		Now:     func() time.Time { return time.UnixMilli(1_700_000_000_000) },
	}, nil)
	return &fixture{server: srv, graph: sg, store: store, tracker: tracker}
}

func (f *fixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestHealthAndRequestID(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(RequestIDHeader, "req-42")
	rec = httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	assert.Equal(t, "req-42", rec.Header().Get(RequestIDHeader))
}

func TestGraphStats(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/api/v1/graph/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	stats := decode[core.GraphStats](t, rec)
	assert.Equal(t, 6, stats.TotalNodes)
	assert.Equal(t, 6, stats.TotalLinks)
}

func TestOptimize(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodPost, "/api/v1/routes/optimize", adjudicator.RouteRequest{
		SourceID: "GS-1", DestinationID: "GS-2", Alternatives: 1,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	resp := decode[adjudicator.RouteResponse](t, rec)
	require.NotNil(t, resp.BestRoute)
	assert.Equal(t, []string{"GS-1", "SAT-1", "SAT-2", "GS-2"}, resp.BestRoute.Path)
	assert.Equal(t, adjudicator.Spread, resp.BestRoute.Decision)
	assert.Len(t, resp.Alternatives, 1)

	metrics := f.do(t, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, metrics.Code)
	assert.Contains(t, metrics.Body.String(), "router_path_searches_total")
}

func TestOptimizeErrors(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/v1/routes/optimize", adjudicator.RouteRequest{SourceID: "GS-1"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/v1/routes/optimize", adjudicator.RouteRequest{SourceID: "GS-1", DestinationID: "GHOST"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	body := decode[ErrorResponse](t, rec)
	assert.Contains(t, body.Error, "GHOST")
	assert.Equal(t, rec.Header().Get(RequestIDHeader), body.RequestID)

	require.NoError(t, f.graph.UpdateLink("GS-2", "SAT-2", false, nil))
	rec = f.do(t, http.MethodPost, "/api/v1/routes/optimize", adjudicator.RouteRequest{SourceID: "GS-1", DestinationID: "GS-2"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestBatchPreservesOrder(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodPost, "/api/v1/routes/batch", BatchRequest{Requests: []adjudicator.RouteRequest{
		{SourceID: "GS-2", DestinationID: "GS-1"},
		{SourceID: "GS-1", DestinationID: "GHOST"},
	}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	out := decode[struct {
		Responses []adjudicator.RouteResponse `json:"responses"`
	}](t, rec)
	require.Len(t, out.Responses, 2)
	assert.NotNil(t, out.Responses[0].BestRoute)
	assert.Nil(t, out.Responses[1].BestRoute)
	assert.Equal(t, "GHOST", out.Responses[1].Request.DestinationID)

	rec = f.do(t, http.MethodPost, "/api/v1/routes/batch", BatchRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdjudicateFollowsLinkUpdates(t *testing.T) {
	f := newFixture(t)
	verdict := func() string {
		rec := f.do(t, http.MethodGet, "/api/v1/routes/adjudicate?source=GS-1&destination=GS-2", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		return decode[map[string]string](t, rec)["decision"]
	}
	assert.Equal(t, "Spread", verdict())

	inactive := false
	rec := f.do(t, http.MethodPost, "/api/v1/links/update", LinkUpdateRequest{Source: "GS-1", Target: "SAT-1", Active: &inactive})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "Sell", verdict())

	rec = f.do(t, http.MethodGet, "/api/v1/routes/adjudicate?source=GS-1", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLinkUpdateValidation(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/v1/links/update", LinkUpdateRequest{Source: "GS-1", Target: "SAT-1"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	weather := 1.5
	rec = f.do(t, http.MethodPost, "/api/v1/links/update", LinkUpdateRequest{Source: "GS-1", Target: "SAT-1", WeatherScore: &weather})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	latency := 3.0
	rec = f.do(t, http.MethodPost, "/api/v1/links/update", LinkUpdateRequest{Source: "GS-1", Target: "SAT-3", LatencyMs: &latency})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestEvaluate(t *testing.T) {
	f := newFixture(t)

	silver := model.SilverPayload("p1", 50)
	rec := f.do(t, http.MethodPost, "/api/v1/routes/evaluate", EvaluateRequest{
		RouteRequest: adjudicator.RouteRequest{SourceID: "GS-1", DestinationID: "GS-2", Alternatives: 1},
		Payload:      &silver,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	ev := decode[router.Evaluation](t, rec)
	assert.Len(t, ev.Ranked, 2)
	require.NotNil(t, ev.Selected)
	assert.True(t, ev.Selected.Viable)

	gold := model.GoldPayload("p2", 5)
	rec = f.do(t, http.MethodPost, "/api/v1/routes/evaluate", EvaluateRequest{
		RouteRequest: adjudicator.RouteRequest{SourceID: "GS-1", DestinationID: "GS-2"},
		Payload:      &gold,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	ev = decode[router.Evaluation](t, rec)
	assert.Nil(t, ev.Selected)
}

func TestEvaluateRejectsInvalidPayload(t *testing.T) {
	f := newFixture(t)
	deadline := uint64(time.Now().Add(time.Hour).UnixMilli())

	cases := map[string]map[string]any{
		"missing tier": {"id": "x", "l_max_ms": 50, "j_max_ms2": 25, "p_loss_max": 0.001, "tau_seconds": 60},
		"negative tau": {"id": "x", "sla_tier": "silver", "l_max_ms": 50, "j_max_ms2": 25, "p_loss_max": 0.001, "tau_seconds": -1, "deadline_ms": deadline},
		"zero tau":     {"id": "x", "sla_tier": "gold", "l_max_ms": 50, "j_max_ms2": 4, "p_loss_max": 0.0001},
		"negative lat": {"id": "x", "sla_tier": "bulk", "l_max_ms": -5, "j_max_ms2": 400, "p_loss_max": 0.01, "tau_seconds": 3600},
	}
	for name, payload := range cases {
		t.Run(name, func(t *testing.T) {
			rec := f.do(t, http.MethodPost, "/api/v1/routes/evaluate", map[string]any{
				"source_id":      "GS-1",
				"destination_id": "GS-2",
				"payload":        payload,
			})
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
		})
	}
}

func TestCoefficientsAndRollback(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/api/v1/coefficients", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[CoefficientsResponse](t, rec)
	assert.Equal(t, uint64(1), resp.Live.Version)

	rec = f.do(t, http.MethodPost, "/api/v1/coefficients/rollback", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	_, err := f.store.Promote(objective.LatencyOptimized(), "test", 1)
	require.NoError(t, err)
	f.tracker.Record(lossiness.NewObservation(lossiness.NewBucket(0, lossiness.ClassISL, 1, 0, 0), "latency_ms", 1, 1, 1, 1))

	rec = f.do(t, http.MethodPost, "/api/v1/coefficients/rollback", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp = decode[CoefficientsResponse](t, rec)
	assert.Equal(t, objective.DefaultCoefficients().LambdaLat, resp.Live.LambdaLat)
	assert.Equal(t, 0, f.tracker.Summary().TotalObservations)
}

func TestObservationsAndSummary(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/v1/lossiness/observations", ObservationRequest{
		PhaseDeg:     47,
		LinkClass:    lossiness.ClassISL,
		WeatherScore: 0.9,
		Load:         0.2,
		Hour:         6,
		Metric:       "latency_ms",
		Predicted:    10,
		Observed:     12,
		Scale:        10,
	})
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	obs := decode[lossiness.Observation](t, rec)
	assert.Equal(t, uint16(45), obs.Bucket.OrbitalPhase)
	assert.InDelta(t, -0.2, obs.DeltaNormalized, 1e-12)
	assert.Equal(t, uint64(1_700_000_000_000), obs.TimestampMs)

	rec = f.do(t, http.MethodPost, "/api/v1/lossiness/observations", ObservationRequest{LinkClass: lossiness.ClassISL, Metric: "x", Hour: 24})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/v1/lossiness/summary", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	summary := decode[lossiness.Summary](t, rec)
	assert.Equal(t, 1, summary.TotalObservations)
	require.Len(t, summary.Buckets, 1)
	require.NotNil(t, summary.Buckets[0].MAE)
	assert.InDelta(t, 0.2, *summary.Buckets[0].MAE, 1e-12)
}
