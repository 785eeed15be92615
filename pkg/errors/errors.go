// Package errors defines the error taxonomy of the OAuth 2 authorization server.
// Protocol errors carry a stable wire code, an HTTP status for direct surfaces,
// and a human-readable description; storage sentinels mark store outcomes the
// protocol layer branches on.
package errors

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/cawinkelmann/rack-oauth2-server/pkg/constants"
)

// ================================================================================
// Protocol Error Interface
// ================================================================================

// OAuthError is a protocol-level failure with a stable wire code.
//
// The HTTP status is the one used when the error surfaces as a direct HTTP
// response; the authorize endpoint instead reports redirect-safe errors as a
// 302 carrying the code, and the token endpoint upgrades invalid_client to a
// 401 challenge when the caller attempted Basic authentication.
type OAuthError interface {
	error

	// Code returns the OAuth 2.0 wire code.
	Code() constants.ErrorCode

	// HTTPStatus returns the status for a direct HTTP surface.
	HTTPStatus() int

	// Description returns the human-readable message sent to clients.
	Description() string

	// Unwrap returns the underlying cause, if any.
	Unwrap() error

	// WithCause attaches an underlying error for the log chain.
	WithCause(cause error) OAuthError
}

type oauthError struct {
	code        constants.ErrorCode
	httpStatus  int
	description string
	cause       error
}

func (e *oauthError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.code, e.description, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.code, e.description)
}

func (e *oauthError) Code() constants.ErrorCode { return e.code }

func (e *oauthError) HTTPStatus() int { return e.httpStatus }

func (e *oauthError) Description() string { return e.description }

func (e *oauthError) Unwrap() error { return e.cause }

func (e *oauthError) WithCause(cause error) OAuthError {
	return &oauthError{code: e.code, httpStatus: e.httpStatus, description: e.description, cause: cause}
}

// New creates an OAuthError with explicit code, status and description.
func New(code constants.ErrorCode, httpStatus int, description string) OAuthError {
	return &oauthError{code: code, httpStatus: httpStatus, description: description}
}

// ================================================================================
// Predefined Error Constructors
// ================================================================================

// Descriptions default to the stable wording below; pass a message to replace it.

// ErrInvalidRequest creates an invalid_request error. It is the only
// authorize-time error reported as a plain 400 instead of a redirect.
func ErrInvalidRequest(message string) OAuthError {
	return withDefault(constants.ErrCodeInvalidRequest, http.StatusBadRequest,
		"The request is missing a required parameter, includes an unsupported parameter or is otherwise malformed.", message)
}

// ErrInvalidClient creates an invalid_client error. Every client-resolution
// failure collapses into this one value.
func ErrInvalidClient() OAuthError {
	return withDefault(constants.ErrCodeInvalidClient, http.StatusBadRequest,
		"Client ID and client secret do not match.", "")
}

// ErrRedirectURIMismatch creates a redirect_uri_mismatch error.
func ErrRedirectURIMismatch() OAuthError {
	return withDefault(constants.ErrCodeRedirectURIMismatch, http.StatusBadRequest,
		"Must use the same redirect URI that was registered for this client.", "")
}

// ErrUnsupportedResponseType creates an unsupported_response_type error.
func ErrUnsupportedResponseType() OAuthError {
	return withDefault(constants.ErrCodeUnsupportedResponseType, http.StatusBadRequest,
		"The requested response type is not supported by this server.", "")
}

// ErrInvalidScope creates an invalid_scope error.
func ErrInvalidScope(message string) OAuthError {
	return withDefault(constants.ErrCodeInvalidScope, http.StatusBadRequest,
		"The requested scope is not supported.", message)
}

// ErrInvalidGrant creates an invalid_grant error.
func ErrInvalidGrant(message string) OAuthError {
	return withDefault(constants.ErrCodeInvalidGrant, http.StatusBadRequest,
		"The authorization grant is invalid, expired or was issued to another client.", message)
}

// ErrUnsupportedGrantType creates an unsupported_grant_type error.
func ErrUnsupportedGrantType() OAuthError {
	return withDefault(constants.ErrCodeUnsupportedGrantType, http.StatusBadRequest,
		"This grant type is not supported by this server.", "")
}

// ErrAccessDenied creates an access_denied error, reported only by redirect.
func ErrAccessDenied() OAuthError {
	return withDefault(constants.ErrCodeAccessDenied, http.StatusForbidden,
		"The end user denied the authorization request.", "")
}

// ErrInvalidToken creates an invalid_token error for the resource gate.
func ErrInvalidToken(message string) OAuthError {
	return withDefault(constants.ErrCodeInvalidToken, http.StatusUnauthorized,
		"The access token is no longer valid.", message)
}

// ErrExpiredToken creates an expired_token error for the resource gate.
func ErrExpiredToken() OAuthError {
	return withDefault(constants.ErrCodeExpiredToken, http.StatusUnauthorized,
		"The access token has expired.", "")
}

// ErrInsufficientScope creates an insufficient_scope error for the resource gate.
func ErrInsufficientScope() OAuthError {
	return withDefault(constants.ErrCodeInsufficientScope, http.StatusForbidden,
		"The request requires higher privileges than provided by the access token.", "")
}

// ErrServerError creates a server_error for unexpected internal failures.
func ErrServerError(message string) OAuthError {
	return withDefault(constants.ErrCodeServerError, http.StatusInternalServerError,
		"The authorization server encountered an unexpected condition.", message)
}

func withDefault(code constants.ErrorCode, status int, def, message string) OAuthError {
	if message == "" {
		message = def
	}
	return &oauthError{code: code, httpStatus: status, description: message}
}

// ================================================================================
// Storage Sentinels
// ================================================================================

var (
	// ErrClientNotFound reports an unknown or malformed client id.
	ErrClientNotFound = errors.New("client not found")

	// ErrAuthRequestNotFound reports an unknown or expired authorization request id.
	ErrAuthRequestNotFound = errors.New("authorization request not found")

	// ErrGrantNotFound reports an unknown authorization code.
	ErrGrantNotFound = errors.New("access grant not found")

	// ErrTokenNotFound reports an unknown access token.
	ErrTokenNotFound = errors.New("access token not found")

	// ErrRequestDecided reports a grant/deny attempt on an already-terminal
	// authorization request; the first decision stands.
	ErrRequestDecided = errors.New("authorization request already decided")

	// ErrGrantConsumed reports a second redemption of a one-shot code.
	ErrGrantConsumed = errors.New("access grant already consumed")

	// ErrDatabaseOperation wraps infrastructure failures raised by a store.
	ErrDatabaseOperation = errors.New("database operation failed")
)

// IsNotFound reports whether err is one of the not-found storage sentinels.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrClientNotFound) ||
		errors.Is(err, ErrAuthRequestNotFound) ||
		errors.Is(err, ErrGrantNotFound) ||
		errors.Is(err, ErrTokenNotFound)
}

// ================================================================================
// Error Response Builder
// ================================================================================

// ErrorResponse is the JSON shape of token-endpoint failures.
type ErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// AsOAuthError unwraps err to an OAuthError if one is in the chain.
func AsOAuthError(err error) (OAuthError, bool) {
	var oerr OAuthError
	if errors.As(err, &oerr) {
		return oerr, true
	}
	return nil, false
}

// ToErrorResponse converts any error to the wire shape. Errors outside the
// protocol taxonomy are reported as server_error without internal detail.
func ToErrorResponse(err error) *ErrorResponse {
	if oerr, ok := AsOAuthError(err); ok {
		return &ErrorResponse{
			Error:            string(oerr.Code()),
			ErrorDescription: oerr.Description(),
		}
	}
	return &ErrorResponse{
		Error:            string(constants.ErrCodeServerError),
		ErrorDescription: "An unexpected error occurred.",
	}
}
