package identity

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/SmitUplenchwar2687/Tollgate/internal/clock"
)

// KeyResolver returns the verification key for a key id.
type KeyResolver interface {
	Key(ctx context.Context, kid string) (any, error)
}

// GateConfig configures a Gate.
type GateConfig struct {
	Issuer   string
	Audience string
	Keys     KeyResolver
	Clock    clock.Clock
	Leeway   time.Duration
}

// Gate admits requests carrying a valid access token for one application.
type Gate struct {
	keys   KeyResolver
	parser *jwt.Parser
}

type accessClaims struct {
	jwt.RegisteredClaims
	Email  string  `json:"email,omitempty"`
	Name   string  `json:"name,omitempty"`
	Groups []Group `json:"groups,omitempty"`
}

// NewGate validates cfg and returns a Gate.
func NewGate(cfg GateConfig) (*Gate, error) {
	if cfg.Issuer == "" {
		return nil, fmt.Errorf("issuer is required")
	}
	if cfg.Audience == "" {
		return nil, fmt.Errorf("audience is required")
	}
	if cfg.Keys == nil {
		return nil, fmt.Errorf("key resolver is required")
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.NewRealClock()
	}

	return &Gate{
		keys: cfg.Keys,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{"RS256", "ES256"}),
			jwt.WithIssuer(cfg.Issuer),
			jwt.WithAudience(cfg.Audience),
			jwt.WithExpirationRequired(),
			jwt.WithIssuedAt(),
			jwt.WithLeeway(cfg.Leeway),
			jwt.WithTimeFunc(cfg.Clock.Now),
		),
	}, nil
}

// Verify checks token and returns the caller it identifies. Errors wrap
// ErrMissingCredential, ErrInvalidCredential or ErrKeySetUnavailable.
func (g *Gate) Verify(ctx context.Context, token string) (*Identity, error) {
	if token == "" {
		return nil, ErrMissingCredential
	}

	claims := &accessClaims{}
	_, err := g.parser.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, fmt.Errorf("%w: token has no key id", ErrInvalidCredential)
		}
		return g.keys.Key(ctx, kid)
	})
	if err != nil {
		if errors.Is(err, ErrKeySetUnavailable) {
			return nil, fmt.Errorf("verifying token: %w", err)
		}
		if errors.Is(err, ErrInvalidCredential) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidCredential, err)
	}

	return &Identity{
		Subject: claims.Subject,
		Name:    claims.Name,
		Email:   claims.Email,
		Groups:  claims.Groups,
	}, nil
}

// Authenticate verifies the token carried by r.
func (g *Gate) Authenticate(r *http.Request) (*Identity, error) {
	return g.Verify(r.Context(), TokenFromRequest(r))
}
