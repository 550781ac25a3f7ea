package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/signalsfoundry/mesh-router/core"
	"github.com/signalsfoundry/mesh-router/internal/adjudicator"
	"github.com/signalsfoundry/mesh-router/internal/logging"
	"github.com/signalsfoundry/mesh-router/internal/lossiness"
	"github.com/signalsfoundry/mesh-router/internal/objective"
	"github.com/signalsfoundry/mesh-router/model"
)

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) graphStats(c *gin.Context) {
	c.JSON(http.StatusOK, s.deps.Router.Graph().Stats())
}

// LinkUpdateRequest patches the link between Source and Target. Omitted
// fields are left unchanged.
type LinkUpdateRequest struct {
	Source       string   `json:"source" binding:"required"`
	Target       string   `json:"target" binding:"required"`
	Active       *bool    `json:"active,omitempty"`
	MarginDB     *float64 `json:"margin_db,omitempty"`
	WeatherScore *float64 `json:"weather_score,omitempty" binding:"omitempty,min=0,max=1"`
	LatencyMs    *float64 `json:"latency_ms,omitempty" binding:"omitempty,min=0"`
}

func (s *Server) updateLink(c *gin.Context) {
	var req LinkUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, badRequest("%v", err))
		return
	}
	if req.Active == nil && req.MarginDB == nil && req.WeatherScore == nil && req.LatencyMs == nil {
		s.fail(c, badRequest("update names no fields"))
		return
	}

	upd := core.LinkUpdate{
		Active:       req.Active,
		MarginDB:     req.MarginDB,
		WeatherScore: req.WeatherScore,
		LatencyMs:    req.LatencyMs,
	}
	if err := s.deps.Router.Graph().ApplyLinkUpdate(req.Source, req.Target, upd); err != nil {
		s.fail(c, err)
		return
	}
	logging.LoggerFromContext(c.Request.Context(), s.log).Info(c.Request.Context(), "link updated",
		logging.String("source", req.Source),
		logging.String("target", req.Target),
	)
	c.JSON(http.StatusOK, gin.H{"status": "updated"})
}

func validateRoute(req adjudicator.RouteRequest) error {
	if req.SourceID == "" || req.DestinationID == "" {
		return badRequest("source_id and destination_id are required")
	}
	if req.Alternatives < 0 {
		return badRequest("alternatives must not be negative")
	}
	if req.Thresholds != nil {
		if err := req.Thresholds.Validate(); err != nil {
			return badRequest("%v", err)
		}
	}
	return nil
}

func (s *Server) optimize(c *gin.Context) {
	var req adjudicator.RouteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, badRequest("%v", err))
		return
	}
	if err := validateRoute(req); err != nil {
		s.fail(c, err)
		return
	}
	resp, err := s.deps.Router.Service().Optimize(c.Request.Context(), req)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// BatchRequest is a list of independent route requests.
type BatchRequest struct {
	Requests []adjudicator.RouteRequest `json:"requests" binding:"required,min=1"`
}

func (s *Server) optimizeBatch(c *gin.Context) {
	var req BatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, badRequest("%v", err))
		return
	}
	for i, r := range req.Requests {
		if err := validateRoute(r); err != nil {
			s.fail(c, badRequest("request %d: %v", i, err))
			return
		}
	}
	out := s.deps.Router.Service().OptimizeBatch(c.Request.Context(), req.Requests)
	c.JSON(http.StatusOK, gin.H{"responses": out})
}

func (s *Server) adjudicate(c *gin.Context) {
	src, dst := c.Query("source"), c.Query("destination")
	if src == "" || dst == "" {
		s.fail(c, badRequest("source and destination are required"))
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"source":      src,
		"destination": dst,
		"decision":    s.deps.Router.Service().QuickAdjudicate(src, dst),
	})
}

// EvaluateRequest adjudicates a route request and ranks the candidates for
// Payload, or for the default payload when none is given.
type EvaluateRequest struct {
	adjudicator.RouteRequest
	Payload *model.Payload `json:"payload,omitempty"`
}

func (s *Server) evaluate(c *gin.Context) {
	var req EvaluateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, badRequest("%v", err))
		return
	}
	if err := validateRoute(req.RouteRequest); err != nil {
		s.fail(c, err)
		return
	}
	payload := model.DefaultPayload()
	if req.Payload != nil {
		if err := req.Payload.Validate(); err != nil {
			s.fail(c, badRequest("%v", err))
			return
		}
		payload = *req.Payload
	}

	ev, err := s.deps.Router.Evaluate(c.Request.Context(), req.RouteRequest, payload, s.nowMs())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, ev)
}

// CoefficientsResponse reports the live set and retained history, newest
// first.
type CoefficientsResponse struct {
	Live    objective.RoutingCoefficients   `json:"live"`
	History []objective.RoutingCoefficients `json:"history"`
}

func (s *Server) coefficients(c *gin.Context) {
	c.JSON(http.StatusOK, CoefficientsResponse{
		Live:    s.deps.Store.Load(),
		History: s.deps.Store.History(),
	})
}

func (s *Server) rollback(c *gin.Context) {
	restored, err := s.deps.Store.Rollback()
	if err != nil {
		s.fail(c, err)
		return
	}
	if s.deps.Tracker != nil {
		s.deps.Tracker.Reset()
	}
	logging.LoggerFromContext(c.Request.Context(), s.log).Warn(c.Request.Context(), "coefficients rolled back",
		logging.Any("version", restored.Version),
		logging.String("hash", restored.VersionHash),
	)
	c.JSON(http.StatusOK, CoefficientsResponse{
		Live:    restored,
		History: s.deps.Store.History(),
	})
}

// ObservationRequest reports one measured metric against its prediction.
// The bucket is derived from the regime fields.
type ObservationRequest struct {
	PhaseDeg     float64 `json:"phase_deg"`
	LinkClass    string  `json:"link_class" binding:"required"`
	WeatherScore float64 `json:"weather_score" binding:"min=0,max=1"`
	Load         float64 `json:"load" binding:"min=0"`
	Hour         uint8   `json:"hour" binding:"max=23"`
	Metric       string  `json:"metric" binding:"required"`
	Predicted    float64 `json:"predicted"`
	Observed     float64 `json:"observed"`
	Scale        float64 `json:"scale"`
	TimestampMs  *uint64 `json:"timestamp_ms,omitempty"`
}

func (s *Server) recordObservation(c *gin.Context) {
	var req ObservationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, badRequest("%v", err))
		return
	}
	ts := s.nowMs()
	if req.TimestampMs != nil {
		ts = *req.TimestampMs
	}
	bucket := lossiness.NewBucket(req.PhaseDeg, req.LinkClass, req.WeatherScore, req.Load, req.Hour)
	obs := lossiness.NewObservation(bucket, req.Metric, req.Predicted, req.Observed, req.Scale, ts)
	s.deps.Tracker.Record(obs)
	c.JSON(http.StatusAccepted, obs)
}

func (s *Server) lossinessSummary(c *gin.Context) {
	c.JSON(http.StatusOK, s.deps.Tracker.Summary())
}
