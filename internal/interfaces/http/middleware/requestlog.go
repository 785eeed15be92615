package middleware

import (
	"net/http"
	"net/url"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/cawinkelmann/rack-oauth2-server/pkg/constants"
	"github.com/cawinkelmann/rack-oauth2-server/pkg/logger"
)

// HeaderRequestID carries the per-request correlation id.
const HeaderRequestID = "X-Request-ID"

// ctxRequestID is the gin-context key the request id is stored under.
const ctxRequestID = "request_id"

// sensitiveParams are query parameters whose values never reach the access
// log. Bearer tokens and client secrets may legally travel in the query
// string, so the log line redacts them.
var sensitiveParams = []string{
	constants.ParamOAuthToken,
	constants.ParamClientSecret,
	constants.ParamPassword,
}

// RequestID assigns every request a correlation id, honoring one supplied by
// the caller, and echoes it on the response.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(HeaderRequestID)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(ctxRequestID, id)
		c.Header(HeaderRequestID, id)
		c.Next()
	}
}

// RequestLogger emits one structured record per handled request. Server
// failures log at error level, client failures at warn; protocol errors on
// the OAuth endpoints are expected traffic and stay at warn.
func RequestLogger(log logger.Logger) gin.HandlerFunc {
	access := log.WithComponent("http")
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		status := c.Writer.Status()
		fields := []logger.Field{
			logger.String("method", c.Request.Method),
			logger.String("path", path),
			logger.Int("status", status),
			logger.Duration("latency", time.Since(start)),
			logger.String("client_ip", c.ClientIP()),
		}
		if id := c.GetString(ctxRequestID); id != "" {
			fields = append(fields, logger.String("request_id", id))
		}
		if query := redactedQuery(c.Request.URL); query != "" {
			fields = append(fields, logger.String("query", query))
		}

		ctx := c.Request.Context()
		switch {
		case status >= http.StatusInternalServerError:
			access.Error(ctx, "request", firstError(c), fields...)
		case status >= http.StatusBadRequest:
			access.Warn(ctx, "request", fields...)
		default:
			access.Info(ctx, "request", fields...)
		}
	}
}

func firstError(c *gin.Context) error {
	if len(c.Errors) == 0 {
		return nil
	}
	return c.Errors[0].Err
}

func redactedQuery(u *url.URL) string {
	if u.RawQuery == "" {
		return ""
	}
	values := u.Query()
	redacted := false
	for _, name := range sensitiveParams {
		if _, ok := values[name]; ok {
			values.Set(name, "REDACTED")
			redacted = true
		}
	}
	if !redacted {
		return u.RawQuery
	}
	return values.Encode()
}
