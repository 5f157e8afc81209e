package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// claims is the JWT payload the default resolver expects: "sub" carries
// the stable identity, "name" the display name shown in the room.
type claims struct {
	jwt.RegisteredClaims
	Name string `json:"name"`
}

// JWTResolver is the default IdentityResolver, decoding HS256 tokens
// issued out-of-band by whatever auth provider the deployment fronts
// SyncRoom with. Grounded on the teacher's internal/auth/token.go
// (TokenService), trimmed to decode-only since SyncRoom never issues
// tokens itself — it only resolves them.
type JWTResolver struct {
	signingKey []byte
}

// NewJWTResolver constructs a resolver. signingKey must be at least 16
// characters; a short or empty key is a deployment misconfiguration the caller
// should catch at startup, not silently accept.
func NewJWTResolver(signingKey string) (*JWTResolver, error) {
	if len(signingKey) < 16 {
		return nil, errors.New("auth: identity signing key must be at least 16 characters")
	}
	return &JWTResolver{signingKey: []byte(signingKey)}, nil
}

// Resolve implements IdentityResolver.
func (r *JWTResolver) Resolve(_ context.Context, token string) (Identity, error) {
	parsed, err := jwt.ParseWithClaims(token, &claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return r.signingKey, nil
	})
	if err != nil {
		return Identity{}, fmt.Errorf("resolve identity token: %w", err)
	}

	c, ok := parsed.Claims.(*claims)
	if !ok || !parsed.Valid || c.Subject == "" {
		return Identity{}, errors.New("resolve identity token: invalid claims")
	}

	return Identity{Identity: c.Subject, DisplayName: c.Name}, nil
}

// IssueForTesting mints a token for the given identity. It exists so
// tests and local tooling can exercise the gateway's identify flow
// without standing up a real auth provider; it is not part of the
// production identity-resolution path.
func IssueForTesting(signingKey, identity, name string, ttl time.Duration) (string, error) {
	now := time.Now()
	c := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identity,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Name: name,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	return token.SignedString([]byte(signingKey))
}
