package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"verdant-sync/internal/transport/httpdto"
	verdant_errors "verdant-sync/pkg/errors"
	"verdant-sync/pkg/logger"
)

func LoggingMiddleware(l *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()
		l.Infof("%s %s %d %s", method, path, status, latency.String())
	}
}

// writeError maps the error taxonomy onto HTTP statuses for the local UI.
func writeError(c *gin.Context, err error) {
	switch {
	case verdant_errors.IsValidation(err):
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse(err.Error(), "INVALID_REQUEST"))
	case verdant_errors.IsAuth(err):
		c.JSON(http.StatusUnauthorized, httpdto.NewErrorResponse(err.Error(), "SESSION_EXPIRED"))
	case verdant_errors.IsNotFound(err):
		c.JSON(http.StatusNotFound, httpdto.NewErrorResponse(err.Error(), "NOT_FOUND"))
	case verdant_errors.IsNetwork(err):
		c.JSON(http.StatusBadGateway, httpdto.NewErrorResponse(err.Error(), "BACKEND_UNAVAILABLE"))
	default:
		c.JSON(http.StatusInternalServerError, httpdto.NewErrorResponse(err.Error(), "INTERNAL_ERROR"))
	}
}
