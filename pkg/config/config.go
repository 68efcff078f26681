// Package config loads application configuration from the environment and
// an optional config file using Viper. Configuration is read once at
// startup; components receive the values they need at construction time.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/idbridge/idbridge/pkg/auth/roles"
)

// envPrefix namespaces every environment variable, e.g. IDBRIDGE_BASE_URL.
const envPrefix = "IDBRIDGE"

// Config holds the full application configuration.
type Config struct {
	// BaseURL is the externally visible origin of this service,
	// e.g. https://app.example.com. Used to build SAML and OAuth
	// callback URLs.
	BaseURL string `mapstructure:"base_url"`

	// ListenAddress is the host:port the HTTP server binds to.
	ListenAddress string `mapstructure:"listen_address"`

	// Debug enables debug logging.
	Debug bool `mapstructure:"debug"`

	Session SessionConfig `mapstructure:"session"`
	SAML    SAMLConfig    `mapstructure:"saml"`
	OIDC    OIDCConfig    `mapstructure:"oidc"`
	AWS     AWSConfig     `mapstructure:"aws"`
	Roles   RolesConfig   `mapstructure:"roles"`
}

// SessionConfig controls session token minting.
type SessionConfig struct {
	// Secret signs session JWTs. Required, no default.
	Secret string `mapstructure:"secret"`

	// TTL is the session lifetime. Defaults to 24h.
	TTL time.Duration `mapstructure:"ttl"`
}

// SAMLConfig describes the upstream SAML identity provider.
type SAMLConfig struct {
	// EntryPoint is the IdP single sign-on URL login requests redirect to.
	EntryPoint string `mapstructure:"entry_point"`

	// Issuer is the IdP entity ID expected in assertions.
	Issuer string `mapstructure:"issuer"`
}

// OIDCConfig describes the upstream identity broker.
type OIDCConfig struct {
	// Issuer is the expected `iss` of broker-issued ID tokens.
	Issuer string `mapstructure:"issuer"`

	// ClientID doubles as the expected audience of ID tokens.
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`

	AuthURL     string `mapstructure:"auth_url"`
	TokenURL    string `mapstructure:"token_url"`
	UserInfoURL string `mapstructure:"userinfo_url"`

	// GroupsClaim is the ID-token claim carrying group memberships.
	GroupsClaim string `mapstructure:"groups_claim"`

	// DownstreamTokenClaim is the custom claim carrying the access token
	// forwarded to the AWS credential exchange.
	DownstreamTokenClaim string `mapstructure:"downstream_token_claim"`

	// VerifySignature enables JWKS signature verification of ID tokens.
	// Off by default: tokens arrive over the confidential token-endpoint
	// channel, not from the browser.
	VerifySignature bool `mapstructure:"verify_signature"`

	// JWKSURL is required when VerifySignature is set.
	JWKSURL string `mapstructure:"jwks_url"`
}

// AWSConfig controls the two-stage credential exchange.
type AWSConfig struct {
	Region    string `mapstructure:"region"`
	AccountID string `mapstructure:"account_id"`

	// RoleArn is the IAM role assumed via web identity in stage 1.
	RoleArn string `mapstructure:"role_arn"`

	// Bucket is the data bucket access grants are scoped to.
	Bucket string `mapstructure:"bucket"`

	// SessionDurationSeconds is the lifetime of vended credentials.
	SessionDurationSeconds int32 `mapstructure:"session_duration_seconds"`
}

// RolesConfig holds per-role directory group IDs as comma-separated lists.
type RolesConfig struct {
	AdminGroups        string `mapstructure:"admin_groups"`
	DataOwnerGroups    string `mapstructure:"data_owner_groups"`
	ProcessOwnerGroups string `mapstructure:"process_owner_groups"`
	ViewerGroups       string `mapstructure:"viewer_groups"`
}

// GroupMap builds the exact-match group-to-role table consumed by the
// role mapper.
func (r *RolesConfig) GroupMap() map[string]roles.Role {
	m := make(map[string]roles.Role)
	addGroups := func(list string, role roles.Role) {
		for _, g := range strings.Split(list, ",") {
			if g = strings.TrimSpace(g); g != "" {
				m[g] = role
			}
		}
	}
	addGroups(r.AdminGroups, roles.RoleAdmin)
	addGroups(r.DataOwnerGroups, roles.RoleDataOwner)
	addGroups(r.ProcessOwnerGroups, roles.RoleProcessOwner)
	addGroups(r.ViewerGroups, roles.RoleViewer)
	return m
}

// Load reads configuration from the environment and an optional config
// file, then validates it.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// setDefaults registers every key so environment variables bind even when
// no config file is present.
func setDefaults(v *viper.Viper) {
	v.SetDefault("base_url", "http://localhost:8080")
	v.SetDefault("listen_address", ":8080")
	v.SetDefault("debug", false)

	v.SetDefault("session.secret", "")
	v.SetDefault("session.ttl", 24*time.Hour)

	v.SetDefault("saml.entry_point", "")
	v.SetDefault("saml.issuer", "")

	v.SetDefault("oidc.issuer", "")
	v.SetDefault("oidc.client_id", "")
	v.SetDefault("oidc.client_secret", "")
	v.SetDefault("oidc.auth_url", "")
	v.SetDefault("oidc.token_url", "")
	v.SetDefault("oidc.userinfo_url", "")
	v.SetDefault("oidc.groups_claim", "groups")
	v.SetDefault("oidc.downstream_token_claim", "idc_access_token")
	v.SetDefault("oidc.verify_signature", false)
	v.SetDefault("oidc.jwks_url", "")

	v.SetDefault("aws.region", "")
	v.SetDefault("aws.account_id", "")
	v.SetDefault("aws.role_arn", "")
	v.SetDefault("aws.bucket", "")
	v.SetDefault("aws.session_duration_seconds", 3600)

	v.SetDefault("roles.admin_groups", "")
	v.SetDefault("roles.data_owner_groups", "")
	v.SetDefault("roles.process_owner_groups", "")
	v.SetDefault("roles.viewer_groups", "")
}

// Validate checks required settings and cross-field consistency. Optional
// subsystems (SAML, OIDC, AWS) validate only when partially configured, so
// a deployment can run with a subset of identity providers.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return errors.New("base_url is required")
	}
	if c.ListenAddress == "" {
		return errors.New("listen_address is required")
	}
	if c.Session.Secret == "" {
		return errors.New("session.secret is required")
	}
	if c.Session.TTL <= 0 {
		return errors.New("session.ttl must be positive")
	}

	if c.SAML.EntryPoint != "" && c.SAML.Issuer == "" {
		return errors.New("saml.issuer is required when saml.entry_point is set")
	}

	if c.OIDC.ClientID != "" && c.OIDC.TokenURL == "" {
		return errors.New("oidc.token_url is required when oidc.client_id is set")
	}
	if c.OIDC.VerifySignature && c.OIDC.JWKSURL == "" {
		return errors.New("oidc.jwks_url is required when oidc.verify_signature is set")
	}

	if c.AWS.RoleArn != "" {
		if c.AWS.Region == "" {
			return errors.New("aws.region is required when aws.role_arn is set")
		}
		if c.AWS.AccountID == "" {
			return errors.New("aws.account_id is required when aws.role_arn is set")
		}
	}

	return nil
}

// SecureTransport reports whether the service is served over https, which
// controls the session cookie name and secure flag.
func (c *Config) SecureTransport() bool {
	return strings.HasPrefix(c.BaseURL, "https://")
}
