package federation

import (
	"context"
	"fmt"
	"time"

	"github.com/idbridge/idbridge/pkg/logger"
)

// Validator performs the trust checks applied to a parsed federated
// identity before a session is minted: temporal validity, issuer, and
// audience, plus an optional token-use check.
//
// Cryptographic signature verification is off by default. The token is
// obtained through a direct, server-to-server, TLS-protected exchange
// with a trusted endpoint using a confidential client secret, and the
// authorization code that produced it is single use; the transport and
// protocol already establish trust. A replay-protection nonce is not
// checked either: the federation chain hops through an intermediary that
// cannot propagate the original nonce. Deployments with a different
// trust model must set VerifySignature and configure a key source.
type Validator struct {
	// Issuer is the expected issuer; empty skips the check.
	Issuer string

	// Audience is the expected audience (the broker client ID); empty
	// skips the check.
	Audience string

	// ExpectedUse is matched against a token_use claim when the payload
	// carries one (e.g. "id" for ID tokens). Empty skips the check.
	ExpectedUse string

	// VerifySignature enables cryptographic verification through Keys.
	VerifySignature bool

	// Keys resolves signing keys when VerifySignature is set.
	Keys *KeySource

	// now is injectable for tests; nil means time.Now.
	now func() time.Time
}

// Validate checks the identity's structural and temporal validity.
// rawToken is the original compact token, needed only when signature
// verification is enabled; SAML-derived identities pass "".
func (v *Validator) Validate(ctx context.Context, id *Identity, rawToken string) error {
	if id == nil {
		return ErrInvalidToken
	}

	now := time.Now()
	if v.now != nil {
		now = v.now()
	}

	if id.ExpiresAt.IsZero() || !id.ExpiresAt.After(now) {
		logger.Debugw("federated token expired", "subject", id.Subject, "expires_at", id.ExpiresAt)
		return fmt.Errorf("%w: expired", ErrInvalidToken)
	}

	if v.Issuer != "" && id.Issuer != v.Issuer {
		logger.Debugw("federated token issuer mismatch", "got", id.Issuer)
		return fmt.Errorf("%w: issuer mismatch", ErrInvalidToken)
	}

	if v.Audience != "" && id.Audience != v.Audience {
		logger.Debugw("federated token audience mismatch", "got", id.Audience)
		return fmt.Errorf("%w: audience mismatch", ErrInvalidToken)
	}

	if v.ExpectedUse != "" {
		if use, ok := id.Extra["token_use"].(string); ok && use != v.ExpectedUse {
			logger.Debugw("federated token has wrong token_use", "got", use, "want", v.ExpectedUse)
			return fmt.Errorf("%w: wrong token use", ErrInvalidToken)
		}
	}

	if v.VerifySignature {
		if v.Keys == nil {
			return fmt.Errorf("%w: signature verification enabled without a key source", ErrInvalidToken)
		}
		if rawToken == "" {
			return fmt.Errorf("%w: signature verification requires the raw token", ErrInvalidToken)
		}
		if err := v.Keys.VerifyToken(ctx, rawToken); err != nil {
			logger.Debugw("federated token signature verification failed", "err", err)
			return fmt.Errorf("%w: bad signature", ErrInvalidToken)
		}
	}

	return nil
}
