package service

import (
	"net/url"

	"github.com/cawinkelmann/rack-oauth2-server/pkg/constants"
	"github.com/cawinkelmann/rack-oauth2-server/pkg/errors"
)

// ParseRedirectURI validates a client-supplied redirect URI. The target must
// be an absolute URI with a host, and must not carry a fragment. Its query
// string is preserved; response parameters are merged into it later.
func ParseRedirectURI(raw string) (*url.URL, error) {
	if raw == "" {
		return nil, errors.ErrInvalidRequest("missing redirect URI")
	}
	uri, err := url.Parse(raw)
	if err != nil {
		return nil, errors.ErrInvalidRequest("invalid redirect URI").WithCause(err)
	}
	if !uri.IsAbs() || uri.Host == "" {
		return nil, errors.ErrInvalidRequest("redirect URI must be absolute")
	}
	if uri.Fragment != "" {
		return nil, errors.ErrInvalidRequest("redirect URI must not contain a fragment")
	}
	return uri, nil
}

// appendQuery merges params into the URI's query string, keeping whatever
// the client already put there, and returns the absolute location.
func appendQuery(uri *url.URL, params url.Values) string {
	merged := uri.Query()
	for key, values := range params {
		for _, value := range values {
			merged.Set(key, value)
		}
	}
	target := *uri
	target.RawQuery = merged.Encode()
	return target.String()
}

// appendFragment returns the location with params carried in the URI
// fragment, query-encoded. The fragment is concatenated rather than set on
// the URL value so the encoding survives verbatim.
func appendFragment(uri *url.URL, params url.Values) string {
	return uri.String() + "#" + params.Encode()
}

// RedirectError is an authorize-time protocol failure that must reach the
// client through its already-validated redirect URI rather than as a direct
// HTTP error.
type RedirectError struct {
	uri   *url.URL
	state string
	err   errors.OAuthError
}

func newRedirectError(uri *url.URL, state string, err errors.OAuthError) *RedirectError {
	return &RedirectError{uri: uri, state: state, err: err}
}

func (e *RedirectError) Error() string { return e.err.Error() }

func (e *RedirectError) Unwrap() error { return e.err }

// Location builds the 302 target carrying error, error_description and the
// echoed state in the redirect URI query.
func (e *RedirectError) Location() string {
	params := url.Values{}
	params.Set(constants.ParamError, string(e.err.Code()))
	if description := e.err.Description(); description != "" {
		params.Set(constants.ParamErrorDescription, description)
	}
	if e.state != "" {
		params.Set(constants.ParamState, e.state)
	}
	return appendQuery(e.uri, params)
}
