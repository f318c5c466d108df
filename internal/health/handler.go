package health

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Probe paths.
const (
	PathHealth = "/health"
	PathReady  = "/ready"
)

// HealthHandler answers liveness probes.
func (c *Checker) HealthHandler() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, c.Health())
	}
}

// ReadinessHandler answers readiness probes with 503 when any check fails.
func (c *Checker) ReadinessHandler() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		status := c.Readiness(ctx.Request.Context())

		code := http.StatusOK
		if status.Status != StatusOK {
			code = http.StatusServiceUnavailable
		}
		ctx.JSON(code, status)
	}
}

// RegisterRoutes registers the probe routes on a Gin engine or group.
func (c *Checker) RegisterRoutes(routes gin.IRoutes) {
	routes.GET(PathHealth, c.HealthHandler())
	routes.HEAD(PathHealth, c.HealthHandler())
	routes.GET(PathReady, c.ReadinessHandler())
}
