package federation

import "errors"

// Sentinel errors for federated identity processing.
var (
	// ErrNoAssertionData is returned when the inbound payload is missing.
	ErrNoAssertionData = errors.New("no assertion data in request")

	// ErrInvalidAssertion is returned when a SAML response fails
	// structural, status, or issuer checks.
	ErrInvalidAssertion = errors.New("invalid SAML assertion")

	// ErrNoUserData is returned when no email can be recovered from the
	// identity payload after all fallbacks.
	ErrNoUserData = errors.New("no user data in identity payload")

	// ErrInvalidToken is returned when a federated token fails
	// structural or temporal validation.
	ErrInvalidToken = errors.New("invalid federated token")
)
