package middleware

import (
	"net/http"

	"babil/internal/identity"
)

// WithIdentity puts the visitor's token into the request context.
func WithIdentity(s *identity.Sessions) func(http.Handler) http.Handler {
	return s.WithToken
}

// DenyFunc answers a request that failed an authorization check.
type DenyFunc func(w http.ResponseWriter, r *http.Request, err error)

// Require lets a request through only when its token holds capability.
// Must run behind WithIdentity.
func Require(gate *identity.Gate, capability identity.Capability, deny DenyFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := identity.TokenFrom(r.Context())
			if err := gate.Authorize(r.Context(), token, capability); err != nil {
				deny(w, r, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
