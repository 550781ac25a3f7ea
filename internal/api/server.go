// Package api serves the router over HTTP.
package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/signalsfoundry/mesh-router/internal/logging"
	"github.com/signalsfoundry/mesh-router/internal/lossiness"
	"github.com/signalsfoundry/mesh-router/internal/objective"
	"github.com/signalsfoundry/mesh-router/internal/router"
)

// Deps are the components the HTTP surface exposes.
type Deps struct {
	Router  *router.Router
	Store   *objective.CoefficientStore
	Tracker *lossiness.Tracker
	// Metrics, if set, is mounted at /metrics.
	Metrics http.Handler
	// Now defaults to time.Now.
	Now func() time.Time
}

// Server owns the gin engine and its handlers.
type Server struct {
	deps   Deps
	log    logging.Logger
	engine *gin.Engine
}

// NewServer builds the route table. The gin mode is left to the caller.
func NewServer(deps Deps, log logging.Logger) *Server {
	if log == nil {
		log = logging.Noop()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(requestID())
	engine.Use(accessLog(log))

	s := &Server{deps: deps, log: log, engine: engine}
	s.routes()
	return s
}

// Handler returns the server as an http.Handler.
func (s *Server) Handler() http.Handler { return s.engine }

func (s *Server) routes() {
	s.engine.GET("/healthz", s.health)
	if s.deps.Metrics != nil {
		s.engine.GET("/metrics", gin.WrapH(s.deps.Metrics))
	}

	v1 := s.engine.Group("/api/v1")
	{
		v1.GET("/graph/stats", s.graphStats)
		v1.POST("/links/update", s.updateLink)
	}

	routes := v1.Group("/routes")
	{
		routes.POST("/optimize", s.optimize)
		routes.POST("/batch", s.optimizeBatch)
		routes.GET("/adjudicate", s.adjudicate)
		routes.POST("/evaluate", s.evaluate)
	}

	coeffs := v1.Group("/coefficients")
	{
		coeffs.GET("", s.coefficients)
		coeffs.POST("/rollback", s.rollback)
	}

	loss := v1.Group("/lossiness")
	{
		loss.POST("/observations", s.recordObservation)
		loss.GET("/summary", s.lossinessSummary)
	}
}

func (s *Server) nowMs() uint64 {
	return uint64(s.deps.Now().UnixMilli())
}
