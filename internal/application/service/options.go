package service

import (
	"time"

	domainservice "github.com/cawinkelmann/rack-oauth2-server/internal/domain/service"
	"github.com/cawinkelmann/rack-oauth2-server/pkg/constants"
)

// Options carries the protocol settings shared by the application services.
type Options struct {
	// AuthorizationTypes is the subset of {"code","token"} accepted at the
	// authorize endpoint. Empty means both.
	AuthorizationTypes []string

	// Scopes is the optional scope allow-list. Empty accepts any scope.
	Scopes []string

	// RequestTTL bounds pending authorization requests and the codes minted
	// from them.
	RequestTTL time.Duration

	// Authenticator verifies resource-owner credentials; nil disables the
	// password grant.
	Authenticator domainservice.Authenticator
}

// withDefaults fills unset options.
func (o Options) withDefaults() Options {
	if len(o.AuthorizationTypes) == 0 {
		o.AuthorizationTypes = constants.DefaultAuthorizationTypes
	}
	if o.RequestTTL <= 0 {
		o.RequestTTL = constants.DefaultRequestTTL
	}
	return o
}

func (o Options) responseTypeAllowed(responseType string) bool {
	for _, allowed := range o.AuthorizationTypes {
		if responseType == allowed {
			return true
		}
	}
	return false
}
