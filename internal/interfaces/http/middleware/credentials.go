package middleware

import (
	"encoding/base64"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/cawinkelmann/rack-oauth2-server/internal/application/service"
	"github.com/cawinkelmann/rack-oauth2-server/pkg/constants"
)

// credentialKind classifies what an Authorization header carried.
type credentialKind int

const (
	credentialNone credentialKind = iota
	credentialBasic
	credentialBearer
)

type credentials struct {
	kind   credentialKind
	id     string
	secret string
	token  string
}

// authorizationHeaders lists the carriers inspected for credentials, in
// order. Proxies that consume the Authorization header themselves pass the
// original value through one of the X- variants.
var authorizationHeaders = []string{
	constants.HeaderAuthorization,
	constants.HeaderProxyAuthorization,
	constants.HeaderForwardedAuthorization,
}

// extractCredentials reads the first present authorization header and
// classifies it by scheme: Basic decodes to a client id and secret,
// OAuth and Bearer carry an access token, anything else counts as no
// credentials. Later headers are not consulted once one is present.
func extractCredentials(r *http.Request) credentials {
	for _, name := range authorizationHeaders {
		raw := strings.TrimSpace(r.Header.Get(name))
		if raw == "" {
			continue
		}

		scheme, rest, _ := strings.Cut(raw, " ")
		rest = strings.TrimSpace(rest)
		switch {
		case strings.EqualFold(scheme, constants.SchemeBasic):
			// A Basic header that fails to decode still counts as an
			// attempted Basic authentication; the empty id fails
			// resolution downstream.
			decoded, err := base64.StdEncoding.DecodeString(rest)
			if err != nil {
				return credentials{kind: credentialBasic}
			}
			id, secret, _ := strings.Cut(string(decoded), ":")
			return credentials{kind: credentialBasic, id: id, secret: secret}
		case strings.EqualFold(scheme, constants.SchemeOAuth), strings.EqualFold(scheme, constants.SchemeBearer):
			return credentials{kind: credentialBearer, token: rest}
		default:
			return credentials{kind: credentialNone}
		}
	}
	return credentials{kind: credentialNone}
}

// tokenClientAuth assembles the client credentials for a token-endpoint
// request: HTTP Basic when presented, otherwise the client_id and
// client_secret request parameters.
func tokenClientAuth(c *gin.Context) service.ClientAuth {
	if creds := extractCredentials(c.Request); creds.kind == credentialBasic {
		return service.ClientAuth{ID: creds.id, Secret: creds.secret, FromBasic: true}
	}
	return service.ClientAuth{
		ID:     c.Request.FormValue(constants.ParamClientID),
		Secret: c.Request.FormValue(constants.ParamClientSecret),
	}
}

// bearerToken finds the access token on a resource request: the
// authorization header first, then the oauth_token parameter in the query
// string or a form-encoded body.
func bearerToken(r *http.Request) (string, bool) {
	if creds := extractCredentials(r); creds.kind == credentialBearer && creds.token != "" {
		return creds.token, true
	}
	if value := r.URL.Query().Get(constants.ParamOAuthToken); value != "" {
		return value, true
	}
	if value := r.PostFormValue(constants.ParamOAuthToken); value != "" {
		return value, true
	}
	return "", false
}
