package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/cawinkelmann/rack-oauth2-server/pkg/constants"
)

// AuthRequest is a durable record of one in-flight authorization attempt.
// It is created when the authorize endpoint accepts a request, handed to the
// host application by id for the consent decision, and finalized exactly
// once: the first grant or deny wins and later decisions leave the stored
// outcome untouched.
type AuthRequest struct {
	// ID is the opaque consent correlation handle.
	ID string `json:"id" gorm:"primaryKey;size:36"`

	// ClientID identifies the requesting client.
	ClientID string `json:"client_id" gorm:"index;not null;size:36"`

	// Scope is the normalized requested scope (deduplicated, single-spaced).
	Scope string `json:"scope"`

	// RedirectURI is the validated callback in string form.
	RedirectURI string `json:"redirect_uri" gorm:"not null"`

	// ResponseType is "code" or "token".
	ResponseType string `json:"response_type" gorm:"not null"`

	// State is the opaque client value echoed on every redirect. May be empty.
	State string `json:"state"`

	// Status is pending until the end user decides.
	Status constants.AuthRequestStatus `json:"status" gorm:"index;not null"`

	// GrantCode holds the issued authorization code when a code-flow request
	// is granted.
	GrantCode string `json:"grant_code,omitempty" gorm:"size:32"`

	// AccessToken holds the issued token when a token-flow request is granted.
	AccessToken string `json:"access_token,omitempty" gorm:"size:32"`

	CreatedAt time.Time `json:"created_at"`

	// DecidedAt records the terminal transition instant. Nil while pending.
	DecidedAt *time.Time `json:"decided_at,omitempty"`
}

// TableName returns the SQL table for authorization requests.
func (AuthRequest) TableName() string {
	return constants.TableAuthRequests
}

// NewAuthRequest records a validated authorization attempt in the pending
// state. Scope is stored as given; callers normalize it first.
func NewAuthRequest(clientID, scope, redirectURI, responseType, state string) *AuthRequest {
	return &AuthRequest{
		ID:           uuid.NewString(),
		ClientID:     clientID,
		Scope:        scope,
		RedirectURI:  redirectURI,
		ResponseType: responseType,
		State:        state,
		Status:       constants.AuthRequestPending,
		CreatedAt:    time.Now().UTC(),
	}
}

// IsPending reports whether the end user has not decided yet.
func (r *AuthRequest) IsPending() bool {
	return r.Status == constants.AuthRequestPending
}

// IsGranted reports whether the end user approved the request.
func (r *AuthRequest) IsGranted() bool {
	return r.Status == constants.AuthRequestGranted
}

// IsDenied reports whether the end user rejected the request.
func (r *AuthRequest) IsDenied() bool {
	return r.Status == constants.AuthRequestDenied
}

// MarkGranted applies the terminal granted transition in memory. Stores are
// responsible for making the transition atomic.
func (r *AuthRequest) MarkGranted() {
	now := time.Now().UTC()
	r.Status = constants.AuthRequestGranted
	r.DecidedAt = &now
}

// MarkDenied applies the terminal denied transition in memory.
func (r *AuthRequest) MarkDenied() {
	now := time.Now().UTC()
	r.Status = constants.AuthRequestDenied
	r.DecidedAt = &now
}
