// Package identity verifies the signed access token an identity-aware proxy
// attaches to each request.
package identity

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

// Request locations checked for a token, in order.
const (
	HeaderAssertion = "Cf-Access-Jwt-Assertion"
	CookieName      = "CF_Authorization"
)

var (
	// ErrMissingCredential means the request carried no token at all.
	ErrMissingCredential = errors.New("missing access credential")
	// ErrInvalidCredential means a token was present but did not verify.
	ErrInvalidCredential = errors.New("invalid access credential")
	// ErrKeySetUnavailable means the signing keys could not be obtained, so
	// the token could not be judged either way.
	ErrKeySetUnavailable = errors.New("signing key set unavailable")
)

// Group is a directory group the caller belongs to.
type Group struct {
	ID    string `json:"id,omitempty"`
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
}

// Identity is the verified caller.
type Identity struct {
	Subject string  `json:"id,omitempty"`
	Name    string  `json:"name,omitempty"`
	Email   string  `json:"email,omitempty"`
	Groups  []Group `json:"groups,omitempty"`
}

type contextKey struct{}

// WithIdentity returns a copy of ctx carrying id.
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

// FromContext returns the identity stored by WithIdentity.
func FromContext(ctx context.Context) (*Identity, bool) {
	id, ok := ctx.Value(contextKey{}).(*Identity)
	return id, ok && id != nil
}

// TokenFromRequest returns the access token from the assertion header, a
// bearer Authorization header, or the access cookie. It returns "" when none
// is present.
func TokenFromRequest(r *http.Request) string {
	if v := strings.TrimSpace(r.Header.Get(HeaderAssertion)); v != "" {
		return v
	}
	if v := r.Header.Get("Authorization"); len(v) > 7 && strings.EqualFold(v[:7], "bearer ") {
		if tok := strings.TrimSpace(v[7:]); tok != "" {
			return tok
		}
	}
	if c, err := r.Cookie(CookieName); err == nil {
		return strings.TrimSpace(c.Value)
	}
	return ""
}
