package service

import (
	"context"

	"github.com/cawinkelmann/rack-oauth2-server/internal/domain/models"
	domainservice "github.com/cawinkelmann/rack-oauth2-server/internal/domain/service"
	"github.com/cawinkelmann/rack-oauth2-server/pkg/logger"
)

// publishAudit hands an event to the audit sink. Publishing is best effort:
// a failed publish is logged and never surfaces to the protocol flow.
func publishAudit(ctx context.Context, sink domainservice.AuditService, log logger.Logger, event *models.AuditEvent) {
	if sink == nil || event == nil {
		return
	}
	if err := sink.LogEvent(ctx, event); err != nil {
		log.Warn(ctx, "audit publish failed",
			logger.String("event", string(event.Type)),
			logger.String("error", err.Error()))
	}
}
