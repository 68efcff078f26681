// Package api contains the HTTP server for idbridge.
package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	v1 "github.com/idbridge/idbridge/pkg/api/v1"
	"github.com/idbridge/idbridge/pkg/auth"
	"github.com/idbridge/idbridge/pkg/auth/broker"
	"github.com/idbridge/idbridge/pkg/auth/federation"
	"github.com/idbridge/idbridge/pkg/auth/policy"
	"github.com/idbridge/idbridge/pkg/auth/roles"
	"github.com/idbridge/idbridge/pkg/auth/session"
	"github.com/idbridge/idbridge/pkg/awscreds"
	"github.com/idbridge/idbridge/pkg/config"
	"github.com/idbridge/idbridge/pkg/logger"
)

const (
	middlewareTimeout = 60 * time.Second
	readHeaderTimeout = 10 * time.Second
)

// Deps carries the wired components the API routes depend on. SAML, Broker
// and the AWS exchangers may be nil when the deployment does not configure
// them; the corresponding routes then answer with an error.
type Deps struct {
	Config    *config.Config
	Sessions  *session.Minter
	Roles     *roles.Mapper
	Validator *federation.Validator

	SAML   *federation.ServiceProvider
	Broker *broker.Client

	Exchanger *awscreds.Exchanger
	Granter   *awscreds.Granter
}

// credentialsConfig adapts the optional AWS components for the credentials
// routes. A typed nil pointer must not reach the interface fields, so nil
// checks happen here.
func credentialsConfig(deps Deps) *v1.CredentialsConfig {
	cfg := &v1.CredentialsConfig{
		Region: deps.Config.AWS.Region,
		Bucket: deps.Config.AWS.Bucket,
	}
	if deps.Exchanger != nil {
		cfg.Exchanger = deps.Exchanger
	}
	if deps.Granter != nil {
		cfg.Granter = deps.Granter
	}
	return cfg
}

func headersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/api/") {
			w.Header().Set("Content-Type", "application/json")
		}
		next.ServeHTTP(w, r)
	})
}

// Serve starts the server on the configured address and serves the API.
// It is assumed that the caller sets up appropriate signal handling.
func Serve(ctx context.Context, deps Deps) error {
	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		middleware.Timeout(middlewareTimeout),
		headersMiddleware,
	)

	secure := deps.Config.SecureTransport()
	pol := policy.Default()
	requireSession := auth.RequireSession(deps.Sessions)

	// Credential exchange is gated on the baseline signed-in permission;
	// the table in policy.Default decides who holds it.
	requireCredentialAccess := auth.RequirePermission(pol, policy.PermDashboardView)

	routers := map[string]http.Handler{
		"/health": v1.HealthcheckRouter(),
		"/auth": v1.AuthRouter(&v1.AuthConfig{
			SAML:      deps.SAML,
			Broker:    deps.Broker,
			Validator: deps.Validator,
			Roles:     deps.Roles,
			Sessions:  deps.Sessions,

			SAMLIssuer:           deps.Config.SAML.Issuer,
			GroupsClaim:          deps.Config.OIDC.GroupsClaim,
			DownstreamTokenClaim: deps.Config.OIDC.DownstreamTokenClaim,
			SecureCookies:        secure,
		}),
		"/api/v1/session":     v1.SessionRouter(requireSession, deps.Sessions),
		"/api/v1/policy":      v1.PolicyRouter(requireSession, pol),
		"/api/v1/credentials": v1.CredentialsRouter(requireSession, requireCredentialAccess, credentialsConfig(deps)),
	}

	for prefix, router := range routers {
		r.Mount(prefix, router)
	}

	srv := &http.Server{
		BaseContext:       func(net.Listener) context.Context { return ctx },
		Addr:              deps.Config.ListenAddress,
		Handler:           r,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	listener, err := net.Listen("tcp", deps.Config.ListenAddress)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", deps.Config.ListenAddress, err)
	}

	logger.Infof("starting HTTP server on %s", deps.Config.ListenAddress)

	go func() {
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Panicf("server stopped with error: %v", err)
		}
	}()

	<-ctx.Done()
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	logger.Infof("HTTP server stopped")
	return nil
}
