package awscreds

import "errors"

// Sentinel errors for the credential exchange pipeline.
var (
	// ErrTokenExchangeFailed is returned when STS rejects the identity token.
	ErrTokenExchangeFailed = errors.New("token exchange with STS failed")

	// ErrAccessDenied is returned when no access grant covers the requested
	// target and permission.
	ErrAccessDenied = errors.New("access denied for requested target")

	// ErrNotConfigured is returned when a required exchange setting is missing.
	ErrNotConfigured = errors.New("credential exchange is not configured")

	// ErrMissingToken is returned when no identity token is supplied.
	ErrMissingToken = errors.New("identity token is required")

	// ErrMissingRegion is returned when region is not configured.
	ErrMissingRegion = errors.New("AWS region is required")

	// ErrInvalidRoleArn is returned when the role ARN format is invalid.
	ErrInvalidRoleArn = errors.New("invalid IAM role ARN format")

	// ErrInvalidSessionName is returned when a session name cannot be
	// derived that meets AWS RoleSessionName constraints.
	ErrInvalidSessionName = errors.New("invalid role session name")

	// ErrInvalidSessionDuration is returned when the requested duration is
	// outside AWS limits.
	ErrInvalidSessionDuration = errors.New("invalid session duration")

	// ErrInvalidPermission is returned for unknown access grant permissions.
	ErrInvalidPermission = errors.New("invalid access grant permission")

	// ErrNilCredentials is returned when AWS responds without credentials.
	ErrNilCredentials = errors.New("AWS response contained no credentials")
)
