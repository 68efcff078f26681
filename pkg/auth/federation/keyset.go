package federation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/lestrrat-go/httprc/v3"
	"github.com/lestrrat-go/jwx/v3/jwk"
)

// jwksRegistrationTimeout bounds the initial JWKS fetch.
const jwksRegistrationTimeout = 5 * time.Second

// KeySource resolves token signing keys from a JWKS endpoint, with
// auto-refresh. It backs the optional signature-verification path of
// Validator.
type KeySource struct {
	jwksURL string
	cache   *jwk.Cache

	// Lazy JWKS registration
	registered      bool
	registrationMu  sync.Mutex
	registrationErr error
}

// NewKeySource creates a KeySource for the given JWKS URL.
func NewKeySource(ctx context.Context, jwksURL string) (*KeySource, error) {
	if jwksURL == "" {
		return nil, fmt.Errorf("missing JWKS URL")
	}

	cache, err := jwk.NewCache(ctx, httprc.NewClient())
	if err != nil {
		return nil, fmt.Errorf("failed to create JWKS cache: %w", err)
	}

	return &KeySource{jwksURL: jwksURL, cache: cache}, nil
}

// ensureRegistered registers the JWKS URL with the cache on first use.
func (k *KeySource) ensureRegistered(ctx context.Context) error {
	k.registrationMu.Lock()
	defer k.registrationMu.Unlock()

	if k.registered {
		return k.registrationErr
	}

	registrationCtx, cancel := context.WithTimeout(ctx, jwksRegistrationTimeout)
	defer cancel()

	if err := k.cache.Register(registrationCtx, k.jwksURL); err != nil {
		k.registrationErr = fmt.Errorf("failed to register JWKS URL: %w", err)
	} else {
		k.registrationErr = nil
	}

	k.registered = true
	return k.registrationErr
}

// keyFor looks up the signing key for the token's kid header.
func (k *KeySource) keyFor(ctx context.Context, token *jwt.Token) (any, error) {
	if err := k.ensureRegistered(ctx); err != nil {
		return nil, err
	}

	if _, ok := token.Method.(*jwt.SigningMethodRSA); !ok {
		return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
	}

	kid, ok := token.Header["kid"].(string)
	if !ok {
		return nil, fmt.Errorf("token header missing kid")
	}

	keySet, err := k.cache.Lookup(ctx, k.jwksURL)
	if err != nil {
		return nil, fmt.Errorf("failed to lookup JWKS: %w", err)
	}

	key, found := keySet.LookupKeyID(kid)
	if !found {
		return nil, fmt.Errorf("key ID %s not found in JWKS", kid)
	}

	var rawKey any
	if err := jwk.Export(key, &rawKey); err != nil {
		return nil, fmt.Errorf("failed to export raw key: %w", err)
	}

	return rawKey, nil
}

// VerifyToken checks the token's signature against the JWKS keys.
func (k *KeySource) VerifyToken(ctx context.Context, rawToken string) error {
	token, err := jwt.Parse(rawToken, func(token *jwt.Token) (any, error) {
		return k.keyFor(ctx, token)
	})
	if err != nil {
		return err
	}
	if !token.Valid {
		return fmt.Errorf("token signature invalid")
	}
	return nil
}
