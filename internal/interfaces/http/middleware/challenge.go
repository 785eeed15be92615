package middleware

import (
	"fmt"
	"strings"

	"github.com/cawinkelmann/rack-oauth2-server/pkg/constants"
	"github.com/cawinkelmann/rack-oauth2-server/pkg/errors"
)

// challengeValue renders the WWW-Authenticate header for 401 and 403
// responses. The bare form names only the realm; protocol failures append
// error and error_description, and insufficient-scope responses append the
// scope the resource requires.
func challengeValue(realm string, oerr errors.OAuthError, scope string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s realm=%q", constants.SchemeOAuth, realm)
	if oerr != nil {
		fmt.Fprintf(&b, ", error=%q, error_description=%q", string(oerr.Code()), oerr.Description())
	}
	if scope != "" {
		fmt.Fprintf(&b, ", scope=%q", scope)
	}
	return b.String()
}
