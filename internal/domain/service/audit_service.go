package service

import (
	"context"

	"github.com/cawinkelmann/rack-oauth2-server/internal/domain/models"
)

// AuditService records protocol outcomes for operators. Publishing is best
// effort: callers log failures and keep serving.
type AuditService interface {
	// LogEvent records an audit event.
	LogEvent(ctx context.Context, event *models.AuditEvent) error
}
