// Package handlers contains the HTTP handlers that ship with the server
// binary: health probes and the optional demo host application that
// exercises the OAuth provider end to end.
package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/cawinkelmann/rack-oauth2-server/pkg/logger"
)

// HealthHandler serves the liveness and readiness probes. Readiness runs
// the registered dependency checks; liveness never touches dependencies.
type HealthHandler struct {
	checks  map[string]func(context.Context) error
	timeout time.Duration
	log     logger.Logger
}

// NewHealthHandler creates the probe handler with no checks registered.
func NewHealthHandler(log logger.Logger) *HealthHandler {
	return &HealthHandler{
		checks:  make(map[string]func(context.Context) error),
		timeout: 5 * time.Second,
		log:     log.WithComponent("health"),
	}
}

// AddCheck registers a named dependency check for the readiness probe.
func (h *HealthHandler) AddCheck(name string, check func(context.Context) error) {
	h.checks[name] = check
}

// Liveness reports that the process is up.
func (h *HealthHandler) Liveness(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"timestamp": time.Now().UTC(),
	})
}

// Readiness runs every registered check and reports 503 when any fails.
func (h *HealthHandler) Readiness(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	status := http.StatusOK
	results := make(map[string]string, len(h.checks))
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			h.log.Warn(ctx, "readiness check failed",
				logger.String("check", name),
				logger.String("reason", err.Error()))
			results[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		results[name] = "ok"
	}

	c.JSON(status, gin.H{
		"status":    statusWord(status),
		"checks":    results,
		"timestamp": time.Now().UTC(),
	})
}

func statusWord(status int) string {
	if status == http.StatusOK {
		return "ready"
	}
	return "unavailable"
}
