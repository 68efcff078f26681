package app

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/idbridge/idbridge/pkg/api"
	"github.com/idbridge/idbridge/pkg/auth/broker"
	"github.com/idbridge/idbridge/pkg/auth/federation"
	"github.com/idbridge/idbridge/pkg/auth/roles"
	"github.com/idbridge/idbridge/pkg/auth/session"
	"github.com/idbridge/idbridge/pkg/awscreds"
	"github.com/idbridge/idbridge/pkg/config"
	"github.com/idbridge/idbridge/pkg/logger"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the idbridge HTTP server",
	RunE:  serveCmdFunc,
}

var serveFlagConfig string

func init() {
	serveCmd.Flags().StringVar(&serveFlagConfig, "config", "", "Path to an optional config file")
}

func serveCmdFunc(cmd *cobra.Command, _ []string) error {
	logger.Initialize()

	cfg, err := config.Load(serveFlagConfig)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	deps, err := buildDeps(ctx, cfg)
	if err != nil {
		return err
	}

	return api.Serve(ctx, deps)
}

// buildDeps wires the application components from configuration. SAML,
// OIDC and AWS are each optional; routes depending on an absent component
// answer with an error instead of failing startup.
func buildDeps(ctx context.Context, cfg *config.Config) (api.Deps, error) {
	minter, err := session.NewMinter(cfg.Session.Secret, cfg.Session.TTL)
	if err != nil {
		return api.Deps{}, err
	}

	deps := api.Deps{
		Config:   cfg,
		Sessions: minter,
		Roles:    roles.NewMapper(cfg.Roles.GroupMap()),
	}

	validator := &federation.Validator{
		Issuer:          cfg.OIDC.Issuer,
		Audience:        cfg.OIDC.ClientID,
		ExpectedUse:     "id",
		VerifySignature: cfg.OIDC.VerifySignature,
	}
	if cfg.OIDC.VerifySignature {
		keys, err := federation.NewKeySource(ctx, cfg.OIDC.JWKSURL)
		if err != nil {
			return api.Deps{}, fmt.Errorf("failed to set up JWKS key source: %w", err)
		}
		validator.Keys = keys
	}
	deps.Validator = validator

	if cfg.SAML.EntryPoint != "" {
		sp, err := federation.NewServiceProvider(cfg.BaseURL, cfg.SAML.EntryPoint)
		if err != nil {
			return api.Deps{}, fmt.Errorf("failed to set up SAML service provider: %w", err)
		}
		deps.SAML = sp
	}

	if cfg.OIDC.ClientID != "" {
		client, err := broker.New(broker.Config{
			ClientID:     cfg.OIDC.ClientID,
			ClientSecret: cfg.OIDC.ClientSecret,
			AuthURL:      cfg.OIDC.AuthURL,
			TokenURL:     cfg.OIDC.TokenURL,
			UserInfoURL:  cfg.OIDC.UserInfoURL,
			RedirectURL:  cfg.BaseURL + "/auth/oidc/callback",
		})
		if err != nil {
			return api.Deps{}, fmt.Errorf("failed to set up broker client: %w", err)
		}
		deps.Broker = client
	}

	if cfg.AWS.RoleArn != "" {
		exchanger, err := awscreds.NewExchanger(ctx, cfg.AWS.Region, cfg.AWS.RoleArn, cfg.AWS.SessionDurationSeconds)
		if err != nil {
			return api.Deps{}, fmt.Errorf("failed to set up STS exchanger: %w", err)
		}
		granter, err := awscreds.NewGranter(cfg.AWS.Region, cfg.AWS.AccountID, cfg.AWS.SessionDurationSeconds)
		if err != nil {
			return api.Deps{}, fmt.Errorf("failed to set up access granter: %w", err)
		}
		deps.Exchanger = exchanger
		deps.Granter = granter
	}

	return deps, nil
}
