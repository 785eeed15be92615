// Package constants defines system-wide constants for the OAuth 2 authorization server.
// This package provides type-safe constant definitions used across all modules.
package constants

import "time"

// ================================================================================
// Response Type Constants
// ================================================================================

// ResponseType represents the OAuth 2.0 authorization response types.
type ResponseType string

const (
	// ResponseTypeCode requests an authorization code on grant
	ResponseTypeCode ResponseType = "code"

	// ResponseTypeToken requests an access token directly on grant (implicit flow)
	ResponseTypeToken ResponseType = "token"
)

// DefaultAuthorizationTypes enumerates the response types enabled when none
// are configured explicitly.
var DefaultAuthorizationTypes = []string{string(ResponseTypeCode), string(ResponseTypeToken)}

// ================================================================================
// Grant Type Constants
// ================================================================================

// GrantType represents the OAuth 2.0 grant types accepted at the token endpoint.
type GrantType string

const (
	// GrantTypeAuthorizationCode redeems a one-shot authorization code
	GrantTypeAuthorizationCode GrantType = "authorization_code"

	// GrantTypePassword exchanges resource-owner credentials for a token
	GrantTypePassword GrantType = "password"
)

// ================================================================================
// Authorization Request Status Constants
// ================================================================================

// AuthRequestStatus represents the lifecycle status of an authorization request.
type AuthRequestStatus string

const (
	// AuthRequestPending indicates the end user has not decided yet
	AuthRequestPending AuthRequestStatus = "pending"

	// AuthRequestGranted indicates the end user approved the request
	AuthRequestGranted AuthRequestStatus = "granted"

	// AuthRequestDenied indicates the end user rejected the request
	AuthRequestDenied AuthRequestStatus = "denied"
)

// ================================================================================
// OAuth 2.0 Error Code Constants
// ================================================================================

// ErrorCode represents the stable wire codes clients may key on.
type ErrorCode string

const (
	// ErrCodeInvalidRequest indicates a malformed or missing required parameter
	ErrCodeInvalidRequest ErrorCode = "invalid_request"

	// ErrCodeInvalidClient indicates client authentication failed
	ErrCodeInvalidClient ErrorCode = "invalid_client"

	// ErrCodeRedirectURIMismatch indicates the redirect URI differs from the registered one
	ErrCodeRedirectURIMismatch ErrorCode = "redirect_uri_mismatch"

	// ErrCodeUnsupportedResponseType indicates the response type is absent or not enabled
	ErrCodeUnsupportedResponseType ErrorCode = "unsupported_response_type"

	// ErrCodeInvalidScope indicates a requested scope is outside the allow-list
	ErrCodeInvalidScope ErrorCode = "invalid_scope"

	// ErrCodeInvalidGrant indicates the grant is missing, consumed, or owned by another client
	ErrCodeInvalidGrant ErrorCode = "invalid_grant"

	// ErrCodeUnsupportedGrantType indicates the grant type is absent or not enabled
	ErrCodeUnsupportedGrantType ErrorCode = "unsupported_grant_type"

	// ErrCodeAccessDenied indicates the end user rejected the authorization request
	ErrCodeAccessDenied ErrorCode = "access_denied"

	// ErrCodeInvalidToken indicates the bearer token is unknown or revoked
	ErrCodeInvalidToken ErrorCode = "invalid_token"

	// ErrCodeExpiredToken indicates the bearer token is past its expiry
	ErrCodeExpiredToken ErrorCode = "expired_token"

	// ErrCodeInsufficientScope indicates the token lacks a scope the resource requires
	ErrCodeInsufficientScope ErrorCode = "insufficient_scope"

	// ErrCodeServerError indicates an unexpected internal failure
	ErrCodeServerError ErrorCode = "server_error"
)

// ================================================================================
// Protocol Parameter Names
// ================================================================================

const (
	// ParamResponseType is the authorize-endpoint response type parameter
	ParamResponseType = "response_type"

	// ParamClientID carries the client identifier
	ParamClientID = "client_id"

	// ParamClientSecret carries the client shared secret
	ParamClientSecret = "client_secret"

	// ParamRedirectURI carries the callback URI
	ParamRedirectURI = "redirect_uri"

	// ParamScope carries the space-separated scope list
	ParamScope = "scope"

	// ParamState carries the opaque client state echoed on every response
	ParamState = "state"

	// ParamGrantType is the token-endpoint grant type parameter
	ParamGrantType = "grant_type"

	// ParamCode carries the authorization code being redeemed
	ParamCode = "code"

	// ParamUsername carries the resource-owner username (password grant)
	ParamUsername = "username"

	// ParamPassword carries the resource-owner password (password grant)
	ParamPassword = "password"

	// ParamOAuthToken is the fallback bearer-token parameter in query or form body
	ParamOAuthToken = "oauth_token"

	// ParamAccessToken names the token field of the JSON token response
	ParamAccessToken = "access_token"

	// ParamError names the error field on redirects and JSON failures
	ParamError = "error"

	// ParamErrorDescription names the human-readable error field
	ParamErrorDescription = "error_description"
)

// ================================================================================
// Host-Application Contract Keys
// ================================================================================

// The core and the host application exchange request-scoped annotations under
// these keys: inbound on the gin context, outbound as response headers that
// are stripped before the response reaches the wire.

const (
	// CtxAuthorization carries the in-flight AuthRequest id to the consent page,
	// and names the decided AuthRequest on a host-app response
	CtxAuthorization = "oauth.authorization"

	// CtxConsent carries the consent view (client display name + scope list)
	CtxConsent = "oauth.consent"

	// CtxAccessToken carries the verified bearer token on resource requests
	CtxAccessToken = "oauth.access_token"

	// CtxResource carries the end-user identifier the verified token acts for
	CtxResource = "oauth.resource"

	// HeaderNoAccess asks the core to reply with a bare 401 challenge
	HeaderNoAccess = "oauth.no_access"

	// HeaderNoScope asks the core to turn a 403 into an insufficient_scope challenge
	HeaderNoScope = "oauth.no_scope"
)

// ================================================================================
// Credential Carrier Constants
// ================================================================================

const (
	// HeaderAuthorization is the canonical credentials header
	HeaderAuthorization = "Authorization"

	// HeaderProxyAuthorization is the first proxy variant inspected
	HeaderProxyAuthorization = "X-Http-Authorization"

	// HeaderForwardedAuthorization is the second proxy variant inspected
	HeaderForwardedAuthorization = "X-Forwarded-Authorization"

	// HeaderWWWAuthenticate carries the challenge on 401/403 responses
	HeaderWWWAuthenticate = "WWW-Authenticate"

	// SchemeBasic authenticates a client by id and secret
	SchemeBasic = "Basic"

	// SchemeBearer presents a bearer access token
	SchemeBearer = "Bearer"

	// SchemeOAuth is the draft-10 spelling of the bearer scheme and the
	// challenge scheme emitted in WWW-Authenticate
	SchemeOAuth = "OAuth"
)

// ================================================================================
// Endpoint Defaults
// ================================================================================

const (
	// DefaultAuthorizePath is the default authorization endpoint path
	DefaultAuthorizePath = "/oauth/authorize"

	// DefaultTokenPath is the default token endpoint path
	DefaultTokenPath = "/oauth/access_token"

	// DefaultRequestTTL bounds the life of a pending authorization request
	DefaultRequestTTL = 10 * time.Minute

	// DefaultShutdownTimeout is the graceful shutdown timeout
	DefaultShutdownTimeout = 30 * time.Second

	// DefaultServicePort is the default HTTP listen port
	DefaultServicePort = 8080
)

// ================================================================================
// Token Format Constants
// ================================================================================

const (
	// TokenEntropyBytes is the random entropy behind every code and token (128 bits)
	TokenEntropyBytes = 16

	// TokenLength is the hex-encoded length of codes and tokens
	TokenLength = 32

	// CacheControlNoStore is sent with every token-endpoint response
	CacheControlNoStore = "no-store"
)

// ================================================================================
// Storage Key and Table Constants
// ================================================================================

const (
	// KeyPrefixClient prefixes Redis client records
	KeyPrefixClient = "oauth:client:"

	// KeyPrefixAuthRequest prefixes Redis authorization-request records
	KeyPrefixAuthRequest = "oauth:authreq:"

	// KeyPrefixGrant prefixes Redis access-grant records
	KeyPrefixGrant = "oauth:grant:"

	// KeyPrefixToken prefixes Redis access-token records
	KeyPrefixToken = "oauth:token:"

	// KeyPrefixTokenIndex prefixes the (resource, client, scope) uniqueness index
	KeyPrefixTokenIndex = "oauth:tokenidx:"

	// KeyClientIndex is the Redis set collecting all client ids
	KeyClientIndex = "oauth:clients"

	// KeyPrefixResourceIndex prefixes the per-resource token index set
	KeyPrefixResourceIndex = "oauth:resourceidx:"

	// TableClients is the SQL table for registered clients
	TableClients = "oauth_clients"

	// TableAuthRequests is the SQL table for authorization requests
	TableAuthRequests = "oauth_auth_requests"

	// TableAccessGrants is the SQL table for one-shot authorization codes
	TableAccessGrants = "oauth_access_grants"

	// TableAccessTokens is the SQL table for bearer tokens
	TableAccessTokens = "oauth_access_tokens"
)

// ================================================================================
// Audit Event Type Constants
// ================================================================================

// AuditEventType represents different types of auditable protocol outcomes.
type AuditEventType string

const (
	// EventAuthorizationGranted records an end-user approval
	EventAuthorizationGranted AuditEventType = "authorization_granted"

	// EventAuthorizationDenied records an end-user rejection
	EventAuthorizationDenied AuditEventType = "authorization_denied"

	// EventTokenIssued records a token-endpoint success
	EventTokenIssued AuditEventType = "token_issued"

	// EventGrantRedeemed records a one-shot code redemption
	EventGrantRedeemed AuditEventType = "grant_redeemed"

	// EventTokenRejected records a bearer token refused at the resource gate
	EventTokenRejected AuditEventType = "token_rejected"

	// EventClientRegistered records an administrative client registration
	EventClientRegistered AuditEventType = "client_registered"

	// EventClientRevoked records an administrative client revocation
	EventClientRevoked AuditEventType = "client_revoked"

	// EventTokenRevoked records an administrative token revocation
	EventTokenRevoked AuditEventType = "token_revoked"
)

// ================================================================================
// Logging Constants
// ================================================================================

// LogLevel represents the severity level of log messages.
type LogLevel string

const (
	// LogLevelDebug is the most verbose logging level
	LogLevelDebug LogLevel = "debug"

	// LogLevelInfo is the standard informational logging level
	LogLevelInfo LogLevel = "info"

	// LogLevelWarn indicates potential issues
	LogLevelWarn LogLevel = "warn"

	// LogLevelError indicates errors that need attention
	LogLevelError LogLevel = "error"

	// LogLevelFatal indicates critical errors that cause service termination
	LogLevelFatal LogLevel = "fatal"
)

// ================================================================================
// Storage Driver Constants
// ================================================================================

// StorageDriver selects the persistence backend.
type StorageDriver string

const (
	// StorageMemory keeps all records in process memory (tests, demos)
	StorageMemory StorageDriver = "memory"

	// StorageSQLite stores records in a SQLite file or in-memory database
	StorageSQLite StorageDriver = "sqlite"

	// StoragePostgres stores records in PostgreSQL
	StoragePostgres StorageDriver = "postgres"

	// StorageRedis stores records in Redis
	StorageRedis StorageDriver = "redis"
)
