package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/signalsfoundry/mesh-router/core"
	"github.com/signalsfoundry/mesh-router/internal/adjudicator"
	"github.com/signalsfoundry/mesh-router/internal/objective"
	"github.com/signalsfoundry/mesh-router/model"
)

var errBadRequest = errors.New("bad request")

func badRequest(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errBadRequest, fmt.Sprintf(format, args...))
}

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, errBadRequest), errors.Is(err, objective.ErrInvalidState), errors.Is(err, model.ErrInvalidPayload):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrNodeNotFound), errors.Is(err, core.ErrLinkNotFound):
		return http.StatusNotFound
	case errors.Is(err, objective.ErrNoPreviousVersion):
		return http.StatusConflict
	case errors.Is(err, core.ErrNoPath), errors.Is(err, adjudicator.ErrUnscorable):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) fail(c *gin.Context, err error) {
	_ = c.Error(err)
	c.AbortWithStatusJSON(statusFor(err), ErrorResponse{
		Error:     err.Error(),
		RequestID: requestIDFrom(c),
	})
}
