package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/cawinkelmann/rack-oauth2-server/internal/infrastructure/monitoring"
)

// Observability wraps each request in an OpenTelemetry span and records the
// request counter and latency histogram. The endpoint label is the route
// template where one exists; the protocol endpoints are handled in
// middleware and matched by path, and everything else collapses to
// "unmatched" so arbitrary request paths cannot blow up metric cardinality.
func Observability(tracer trace.Tracer, metrics *monitoring.Metrics, authorizePath, tokenPath string) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		endpoint := endpointLabel(c, authorizePath, tokenPath)

		ctx, span := tracer.Start(c.Request.Context(), c.Request.Method+" "+endpoint)
		defer span.End()
		c.Request = c.Request.WithContext(ctx)

		c.Next()

		status := c.Writer.Status()
		metrics.RecordHTTPRequest(c.Request.Method, endpoint, strconv.Itoa(status), time.Since(start))

		span.SetAttributes(
			attribute.String("http.method", c.Request.Method),
			attribute.String("http.route", endpoint),
			attribute.Int("http.status_code", status),
			attribute.String("http.client_ip", c.ClientIP()),
		)
	}
}

func endpointLabel(c *gin.Context, authorizePath, tokenPath string) string {
	switch c.Request.URL.Path {
	case authorizePath:
		return "authorize"
	case tokenPath:
		return "token"
	}
	if path := c.FullPath(); path != "" {
		return path
	}
	return "unmatched"
}
