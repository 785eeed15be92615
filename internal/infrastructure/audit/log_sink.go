package audit

import (
	"context"

	"github.com/cawinkelmann/rack-oauth2-server/internal/domain/models"
	"github.com/cawinkelmann/rack-oauth2-server/internal/domain/service"
	"github.com/cawinkelmann/rack-oauth2-server/pkg/logger"
)

// LogSink writes audit events to the structured log. It is the default sink
// when Kafka publishing is disabled.
type LogSink struct {
	log logger.Logger
}

// NewLogSink creates a logger-backed audit sink.
func NewLogSink(log logger.Logger) *LogSink {
	return &LogSink{log: log.WithComponent("audit")}
}

// LogEvent records the event at info level.
func (s *LogSink) LogEvent(ctx context.Context, event *models.AuditEvent) error {
	fields := []logger.Field{
		logger.String("event_id", event.EventID),
		logger.String("type", string(event.Type)),
		logger.Time("created_at", event.CreatedAt),
	}
	if event.ClientID != "" {
		fields = append(fields, logger.String("client_id", event.ClientID))
	}
	if event.Resource != "" {
		fields = append(fields, logger.String("resource", event.Resource))
	}
	if event.Scope != "" {
		fields = append(fields, logger.String("scope", event.Scope))
	}
	if event.GrantType != "" {
		fields = append(fields, logger.String("grant_type", event.GrantType))
	}
	if event.Message != "" {
		fields = append(fields, logger.String("message", event.Message))
	}
	s.log.Info(ctx, "audit event", fields...)
	return nil
}

var _ service.AuditService = (*LogSink)(nil)
