// Package session mints and validates the signed tokens that carry an
// authenticated identity between requests.
//
// Two tokens are minted per login: the session token held by the browser
// cookie, which carries the downstream access token needed for credential
// exchange, and an API token for backend calls, which deliberately does
// not. Expiry is the only termination mechanism; there is no server-side
// revocation list.
package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/idbridge/idbridge/pkg/auth/federation"
	"github.com/idbridge/idbridge/pkg/auth/roles"
)

// DefaultTTL is the session lifetime when none is configured.
const DefaultTTL = 24 * time.Hour

// Sentinel errors.
var (
	ErrMissingSecret  = errors.New("session secret is required")
	ErrInvalidSession = errors.New("invalid or expired session")
)

// Claims is the session token payload.
type Claims struct {
	jwt.RegisteredClaims

	Email string `json:"email"`
	Name  string `json:"name"`

	// Role is the highest-privilege role; Roles is the full set.
	Role  string   `json:"role"`
	Roles []string `json:"roles"`

	// Groups are the raw IdP group identifiers, kept for re-mapping and
	// auditability.
	Groups []string `json:"groups,omitempty"`

	// DownstreamToken is the opaque token presented to the credential
	// exchange broker. Omitted from API tokens.
	DownstreamToken string `json:"dat,omitempty"`
}

// RoleSet returns the session's roles as a typed set.
func (c *Claims) RoleSet() roles.Set {
	return roles.SetFromStrings(c.Roles)
}

// Minter builds and validates session tokens, signed HS256 with the
// configured secret.
type Minter struct {
	secret []byte
	ttl    time.Duration

	// now is injectable for tests; nil means time.Now.
	now func() time.Time
}

// NewMinter creates a Minter. An empty secret is refused: an unsigned or
// guessably signed session would let anyone forge a role set.
func NewMinter(secret string, ttl time.Duration) (*Minter, error) {
	if secret == "" {
		return nil, ErrMissingSecret
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Minter{secret: []byte(secret), ttl: ttl}, nil
}

// TTL returns the configured session lifetime.
func (m *Minter) TTL() time.Duration {
	return m.ttl
}

// Mint builds the signed session token for an authenticated identity.
func (m *Minter) Mint(id *federation.Identity, set roles.Set) (string, error) {
	return m.sign(m.claims(id, set, true))
}

// MintAPIToken builds the independently signed token used for backend
// API calls. It carries identity and role but never the downstream
// access token: the backend has no business exchanging credentials on
// the user's behalf. A non-zero notAfter caps the expiry so a token
// minted late in a session cannot outlive the session itself.
func (m *Minter) MintAPIToken(id *federation.Identity, set roles.Set, notAfter time.Time) (string, error) {
	claims := m.claims(id, set, false)
	if !notAfter.IsZero() && notAfter.Before(claims.ExpiresAt.Time) {
		claims.ExpiresAt = jwt.NewNumericDate(notAfter)
	}
	return m.sign(claims)
}

func (m *Minter) claims(id *federation.Identity, set roles.Set, includeDownstream bool) *Claims {
	now := time.Now()
	if m.now != nil {
		now = m.now()
	}

	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.Subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		},
		Email:  id.Email,
		Name:   id.Name,
		Role:   string(set.Highest()),
		Roles:  set.Strings(),
		Groups: id.Groups,
	}
	if includeDownstream {
		claims.DownstreamToken = id.DownstreamToken
	}
	return claims
}

func (m *Minter) sign(claims *Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign session token: %w", err)
	}
	return signed, nil
}

// Validate parses and verifies a session token, rejecting bad signatures
// and expired sessions.
func (m *Minter) Validate(tokenString string) (*Claims, error) {
	claims := &Claims{}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	)
	if m.now != nil {
		parser = jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithExpirationRequired(),
			jwt.WithTimeFunc(m.now),
		)
	}

	token, err := parser.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return m.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, ErrInvalidSession
	}
	return claims, nil
}
