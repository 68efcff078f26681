// Package awscreds exchanges a federated identity token for temporary AWS
// credentials in two stages: an STS web-identity exchange for base role
// credentials, then an S3 Access Grants GetDataAccess call that scopes them
// down to a bucket prefix.
package awscreds

import (
	"fmt"
	"strings"
	"time"
)

// DefaultSessionDuration is the default credential lifetime in seconds.
const DefaultSessionDuration int32 = 3600

// MinSessionDuration is the minimum allowed session duration (AWS limit).
const MinSessionDuration int32 = 900

// MaxSessionDuration is the maximum allowed session duration (12 hours).
const MaxSessionDuration int32 = 43200

// refreshSkew is how long before expiry credentials are considered stale.
const refreshSkew = 5 * time.Minute

// Credentials holds temporary AWS credentials from either exchange stage.
type Credentials struct {
	AccessKeyID     string    `json:"accessKeyId"`
	SecretAccessKey string    `json:"secretAccessKey"`
	SessionToken    string    `json:"sessionToken"`
	Expiration      time.Time `json:"expiration"`
}

// IsExpired returns true if the credentials have expired.
func (c *Credentials) IsExpired() bool {
	return time.Now().After(c.Expiration)
}

// ShouldRefresh returns true if the credentials are within the refresh
// window and the caller should request a fresh set.
func (c *Credentials) ShouldRefresh() bool {
	return time.Now().After(c.Expiration.Add(-refreshSkew))
}

// Permission is the access level requested from S3 Access Grants.
type Permission string

// Permission values accepted by GetDataAccess.
const (
	PermissionRead      Permission = "READ"
	PermissionWrite     Permission = "WRITE"
	PermissionReadWrite Permission = "READWRITE"
)

// ParsePermission normalizes a permission string. An empty value defaults
// to READ, matching the most common caller intent.
func ParsePermission(s string) (Permission, error) {
	switch Permission(strings.ToUpper(strings.TrimSpace(s))) {
	case "":
		return PermissionRead, nil
	case PermissionRead:
		return PermissionRead, nil
	case PermissionWrite:
		return PermissionWrite, nil
	case PermissionReadWrite:
		return PermissionReadWrite, nil
	default:
		return "", fmt.Errorf("%w: unknown permission %q", ErrInvalidPermission, s)
	}
}
