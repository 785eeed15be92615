package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/cawinkelmann/rack-oauth2-server/pkg/constants"
)

// AuditEvent records a protocol outcome for the audit trail. Events are
// serialized as JSON and handed to the configured publisher; they are not
// part of the protocol state.
type AuditEvent struct {
	EventID    string                   `json:"event_id"`
	Type       constants.AuditEventType `json:"type"`
	ClientID   string                   `json:"client_id,omitempty"`
	Resource   string                   `json:"resource,omitempty"`
	Scope      string                   `json:"scope,omitempty"`
	GrantType  string                   `json:"grant_type,omitempty"`
	RemoteAddr string                   `json:"remote_addr,omitempty"`
	TraceID    string                   `json:"trace_id,omitempty"`
	Message    string                   `json:"message,omitempty"`
	CreatedAt  time.Time                `json:"created_at"`
}

// NewAuditEvent creates an audit event of the given type.
func NewAuditEvent(eventType constants.AuditEventType) *AuditEvent {
	return &AuditEvent{
		EventID:   uuid.NewString(),
		Type:      eventType,
		CreatedAt: time.Now().UTC(),
	}
}

// WithClient sets the client the event concerns.
func (e *AuditEvent) WithClient(clientID string) *AuditEvent {
	e.ClientID = clientID
	return e
}

// WithResource sets the end user the event concerns.
func (e *AuditEvent) WithResource(resource string) *AuditEvent {
	e.Resource = resource
	return e
}

// WithScope sets the scope involved in the event.
func (e *AuditEvent) WithScope(scope string) *AuditEvent {
	e.Scope = scope
	return e
}

// WithGrantType sets the grant type for token-endpoint events.
func (e *AuditEvent) WithGrantType(grantType string) *AuditEvent {
	e.GrantType = grantType
	return e
}

// WithRequestInfo sets request-derived context.
func (e *AuditEvent) WithRequestInfo(remoteAddr, traceID string) *AuditEvent {
	e.RemoteAddr = remoteAddr
	e.TraceID = traceID
	return e
}

// WithMessage sets a free-form operator note.
func (e *AuditEvent) WithMessage(message string) *AuditEvent {
	e.Message = message
	return e
}
