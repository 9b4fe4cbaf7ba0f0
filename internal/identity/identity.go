// Package identity carries the caller's authenticated identity from the HTTP
// boundary into the engine.
package identity

import "context"

// Auth is the caller context every engine operation receives. PhoneNumber is
// the primary participant key across activities and assignees.
type Auth struct {
	PhoneNumber  string         `json:"phoneNumber"`
	UID          string         `json:"uid"`
	DisplayName  string         `json:"displayName"`
	CustomClaims map[string]any `json:"customClaims,omitempty"`
	// IsSupportRequest bypasses canEdit checks for the operations staff
	// channel. Set only by the support-secret middleware.
	IsSupportRequest bool `json:"isSupportRequest,omitempty"`
}

// HasClaim reports whether a custom claim is present and truthy.
func (a Auth) HasClaim(name string) bool {
	v, ok := a.CustomClaims[name]
	if !ok {
		return false
	}
	b, ok := v.(bool)
	return ok && b
}

type authKey struct{}

// FromContext retrieves the caller identity, zero-valued when unset.
func FromContext(ctx context.Context) Auth {
	if a, ok := ctx.Value(authKey{}).(Auth); ok {
		return a
	}
	return Auth{}
}

// WithAuth injects a caller identity. Middleware sets it; service unit tests
// inject it directly.
func WithAuth(ctx context.Context, a Auth) context.Context {
	return context.WithValue(ctx, authKey{}, a)
}
