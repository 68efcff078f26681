// Package federation extracts a canonical user identity from federated
// identity payloads: SAML assertions delivered over the POST binding, or
// OIDC ID tokens obtained from a broker. It also performs the structural
// and temporal trust checks applied before a session is minted.
package federation

import (
	"strings"
	"time"
)

// Identity is the canonical user record produced once per login. After
// parsing, only MergeUserInfo may fill fields the payload left empty.
type Identity struct {
	// Subject is the stable user identifier: a user-identifier
	// attribute/claim when present, the email otherwise.
	Subject string

	// Email is the user's email address. Always non-empty for a
	// successfully parsed identity.
	Email string

	// Name is the display name, derived from explicit name attributes,
	// given+family name, or the email local part, in that order.
	Name string

	// Groups holds every raw group/role identifier asserted by the IdP.
	// Multi-valued attributes are accumulated, never overwritten.
	Groups []string

	// Issuer and Audience are the trust parameters asserted by the
	// payload, checked by Validator.
	Issuer   string
	Audience string

	IssuedAt  time.Time
	ExpiresAt time.Time

	// DownstreamToken is an opaque access token carried by the payload
	// for the credential-exchange stage. Empty when the IdP does not
	// provide one.
	DownstreamToken string

	// Extra holds claims that were present in the payload but are not
	// part of the canonical record. Keys are claim names as received.
	Extra map[string]any
}

// displayName derives the identity's name from the available parts.
// Explicit full name wins, then given+family, then the email local part.
func displayName(full, given, family, email string) string {
	if full != "" {
		return full
	}
	if given != "" || family != "" {
		return strings.TrimSpace(given + " " + family)
	}
	if at := strings.IndexByte(email, '@'); at > 0 {
		return email[:at]
	}
	return email
}
