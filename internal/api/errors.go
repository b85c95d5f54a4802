package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/energizer-project/slingshot/internal/game"
	"github.com/energizer-project/slingshot/internal/network"
	"github.com/energizer-project/slingshot/internal/protocol"
	"github.com/energizer-project/slingshot/internal/session"
)

// statusFor maps a session error to an HTTP status. A malformed server
// reply is checked before a level error since an out-of-range level read
// from the server carries both.
func statusFor(err error) int {
	switch {
	case errors.Is(err, network.ErrTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, protocol.ErrMalformedResponse),
		errors.Is(err, game.ErrInvalidStatusCode),
		errors.Is(err, session.ErrConfigurationRejected):
		return http.StatusBadGateway
	case errors.Is(err, game.ErrInvalidLevel):
		return http.StatusBadRequest
	case errors.Is(err, session.ErrNotConnected), errors.Is(err, network.ErrClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, session.ErrPreconditionUnavailable),
		errors.Is(err, session.ErrLevelNotLoaded),
		errors.Is(err, session.ErrScoreRegressed):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func fail(c *gin.Context, err error) {
	c.JSON(statusFor(err), gin.H{"error": err.Error()})
}
