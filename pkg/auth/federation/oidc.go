package federation

import (
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/idbridge/idbridge/pkg/logger"
)

// Default claim names used when the broker is not configured with
// custom ones.
const (
	DefaultGroupsClaim     = "groups"
	DefaultDownstreamClaim = "idc_access_token"
)

// claims consumed into canonical Identity fields; everything else lands
// in Identity.Extra.
var consumedClaims = map[string]bool{
	"sub": true, "email": true, "name": true,
	"given_name": true, "family_name": true,
	"iss": true, "aud": true, "iat": true, "exp": true,
}

// ParseIDToken extracts the canonical identity from an OIDC ID token
// obtained from the broker's token endpoint.
//
// The claim set is decoded without verifying the signature: the token
// arrives over a direct, TLS-protected, confidential-client exchange with
// the broker's token endpoint, and the authorization code that produced
// it is single use. The transport and protocol establish trust; see
// Validator for the checks that are applied. Deployments with a
// different trust model must enable signature verification.
//
// groupsClaim and downstreamClaim name the custom claims carrying group
// memberships and the downstream access token; empty values select the
// defaults.
func ParseIDToken(raw, groupsClaim, downstreamClaim string) (*Identity, error) {
	if raw == "" {
		return nil, ErrInvalidToken
	}
	if groupsClaim == "" {
		groupsClaim = DefaultGroupsClaim
	}
	if downstreamClaim == "" {
		downstreamClaim = DefaultDownstreamClaim
	}

	claims := jwt.MapClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(raw, claims); err != nil {
		logger.Debugf("ID token is not a decodable JWT: %v", err)
		return nil, ErrInvalidToken
	}

	id := &Identity{}
	id.Subject, _ = claims.GetSubject()
	id.Email = stringClaim(claims, "email")
	id.Issuer, _ = claims.GetIssuer()

	if aud, err := claims.GetAudience(); err == nil && len(aud) > 0 {
		id.Audience = aud[0]
	}
	if iat, err := claims.GetIssuedAt(); err == nil && iat != nil {
		id.IssuedAt = iat.Time
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		id.ExpiresAt = exp.Time
	}

	id.Groups = stringSliceClaim(claims, groupsClaim)
	id.DownstreamToken = stringClaim(claims, downstreamClaim)

	given := stringClaim(claims, "given_name")
	family := stringClaim(claims, "family_name")
	full := stringClaim(claims, "name")

	for name, value := range claims {
		if consumedClaims[name] || name == groupsClaim || name == downstreamClaim {
			continue
		}
		if id.Extra == nil {
			id.Extra = map[string]any{}
		}
		id.Extra[name] = value
	}

	if id.Email == "" {
		return nil, ErrNoUserData
	}
	if id.Subject == "" {
		id.Subject = id.Email
	}
	id.Name = displayName(full, given, family, id.Email)

	return id, nil
}

// stringClaim returns the named claim as a string, or "".
func stringClaim(claims jwt.MapClaims, name string) string {
	if v, ok := claims[name].(string); ok {
		return strings.TrimSpace(v)
	}
	return ""
}

// stringSliceClaim returns the named claim as a string slice. Brokers
// deliver group claims either as a JSON array or as a single string.
func stringSliceClaim(claims jwt.MapClaims, name string) []string {
	switch v := claims[name].(type) {
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	case []string:
		return v
	case string:
		if v == "" {
			return nil
		}
		return []string{v}
	default:
		return nil
	}
}

// MergeUserInfo fills the identity's group memberships from a userinfo
// document when the ID token carried none. Brokers routinely keep group
// claims out of the token to bound its size. Groups already present are
// never overwritten.
func (id *Identity) MergeUserInfo(info map[string]any, groupsClaim string) {
	if groupsClaim == "" {
		groupsClaim = DefaultGroupsClaim
	}
	if len(id.Groups) == 0 {
		id.Groups = stringSliceClaim(jwt.MapClaims(info), groupsClaim)
	}
}

// ExpiresIn returns the remaining validity of the identity's federated
// token at the given instant, or zero if already expired.
func (id *Identity) ExpiresIn(now time.Time) time.Duration {
	if id.ExpiresAt.IsZero() {
		return 0
	}
	if remaining := id.ExpiresAt.Sub(now); remaining > 0 {
		return remaining
	}
	return 0
}
