package v1

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"path"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/idbridge/idbridge/pkg/auth"
	"github.com/idbridge/idbridge/pkg/auth/session"
	"github.com/idbridge/idbridge/pkg/awscreds"
	"github.com/idbridge/idbridge/pkg/logger"
)

// BaseExchanger performs the stage-1 web-identity exchange.
type BaseExchanger interface {
	ExchangeForBaseCredentials(ctx context.Context, token, subject string) (*awscreds.Credentials, error)
}

// AccessGranter performs the stage-2 scope-down exchange.
type AccessGranter interface {
	ExchangeForScopedAccess(
		ctx context.Context,
		base *awscreds.Credentials,
		target string,
		permission awscreds.Permission,
	) (*awscreds.ScopedAccess, error)
}

// CredentialsConfig carries the exchangers and bucket layout used by the
// credentials routes.
type CredentialsConfig struct {
	Exchanger BaseExchanger
	Granter   AccessGranter
	Region    string
	Bucket    string
}

// CredentialsRouter creates a new router for the AWS credential exchange.
// requirePermission runs after requireSession and gates the exchange on
// the caller's role set.
func CredentialsRouter(requireSession, requirePermission func(http.Handler) http.Handler, cfg *CredentialsConfig) http.Handler {
	routes := &credentialsRoutes{cfg: cfg}

	r := chi.NewRouter()
	r.Use(requireSession, requirePermission)
	r.Get("/", routes.getBaseCredentials)
	r.Post("/", routes.getScopedCredentials)
	return r
}

type credentialsRoutes struct {
	cfg *CredentialsConfig
}

// credentialsBody is the wire form of vended AWS credentials.
type credentialsBody struct {
	AccessKeyID     string    `json:"accessKeyId"`
	SecretAccessKey string    `json:"secretAccessKey"`
	SessionToken    string    `json:"sessionToken"`
	Expiration      time.Time `json:"expiration"`
}

func toCredentialsBody(c *awscreds.Credentials) credentialsBody {
	return credentialsBody{
		AccessKeyID:     c.AccessKeyID,
		SecretAccessKey: c.SecretAccessKey,
		SessionToken:    c.SessionToken,
		Expiration:      c.Expiration,
	}
}

// baseCredentialsResponse answers GET /api/v1/credentials.
type baseCredentialsResponse struct {
	Credentials credentialsBody `json:"credentials"`
	Bucket      string          `json:"bucket"`
	UserPrefix  string          `json:"userPrefix"`
	SubjectID   string          `json:"subjectId"`
	Region      string          `json:"region"`
}

// scopedCredentialsRequest is the body of POST /api/v1/credentials.
type scopedCredentialsRequest struct {
	Target     string `json:"target"`
	Permission string `json:"permission"`
}

// scopedCredentialsResponse answers POST /api/v1/credentials.
type scopedCredentialsResponse struct {
	Credentials        credentialsBody `json:"credentials"`
	MatchedGrantTarget string          `json:"matchedGrantTarget,omitempty"`
	Region             string          `json:"region"`
}

// exchangeBase runs the stage-1 exchange for the current session. A nil
// claims result means the response has already been written.
func (c *credentialsRoutes) exchangeBase(w http.ResponseWriter, r *http.Request) (*session.Claims, *awscreds.Credentials) {
	claims, ok := auth.SessionFromContext(r.Context())
	if !ok {
		writeJSONError(w, http.StatusUnauthorized, "authentication required")
		return nil, nil
	}

	if c.cfg.Exchanger == nil {
		writeJSONError(w, http.StatusInternalServerError, "credential exchange is not configured")
		return nil, nil
	}

	if claims.DownstreamToken == "" {
		writeJSONError(w, http.StatusUnauthorized, "session carries no downstream access token")
		return nil, nil
	}

	creds, err := c.cfg.Exchanger.ExchangeForBaseCredentials(r.Context(), claims.DownstreamToken, claims.Subject)
	if err != nil {
		writeExchangeError(w, claims.Subject, err)
		return nil, nil
	}

	return claims, creds
}

func (c *credentialsRoutes) getBaseCredentials(w http.ResponseWriter, r *http.Request) {
	claims, creds := c.exchangeBase(w, r)
	if creds == nil {
		return
	}

	writeJSON(w, baseCredentialsResponse{
		Credentials: toCredentialsBody(creds),
		Bucket:      c.cfg.Bucket,
		UserPrefix:  path.Join("users", claims.Subject) + "/",
		SubjectID:   claims.Subject,
		Region:      c.cfg.Region,
	})
}

func (c *credentialsRoutes) getScopedCredentials(w http.ResponseWriter, r *http.Request) {
	var req scopedCredentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Target == "" {
		writeJSONError(w, http.StatusBadRequest, "target is required")
		return
	}

	permission, err := awscreds.ParsePermission(req.Permission)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid permission")
		return
	}

	if c.cfg.Granter == nil {
		writeJSONError(w, http.StatusInternalServerError, "credential exchange is not configured")
		return
	}

	claims, base := c.exchangeBase(w, r)
	if base == nil {
		return
	}

	access, err := c.cfg.Granter.ExchangeForScopedAccess(r.Context(), base, req.Target, permission)
	if err != nil {
		if errors.Is(err, awscreds.ErrAccessDenied) {
			logger.Infow("scoped access denied",
				"subject", claims.Subject,
				"target", req.Target,
				"permission", string(permission),
			)
			writeJSONError(w, http.StatusForbidden, "no access grant covers the requested target")
			return
		}
		writeExchangeError(w, claims.Subject, err)
		return
	}

	writeJSON(w, scopedCredentialsResponse{
		Credentials:        toCredentialsBody(access.Credentials),
		MatchedGrantTarget: access.MatchedGrantTarget,
		Region:             c.cfg.Region,
	})
}

// writeExchangeError maps exchange failures to HTTP statuses: broker
// rejection means the downstream token is no longer good (401), missing
// configuration is a server fault (500).
func writeExchangeError(w http.ResponseWriter, subject string, err error) {
	switch {
	case errors.Is(err, awscreds.ErrTokenExchangeFailed), errors.Is(err, awscreds.ErrMissingToken):
		logger.Infow("token exchange rejected", "subject", subject, "error", err)
		writeJSONError(w, http.StatusUnauthorized, "token exchange failed")
	case errors.Is(err, awscreds.ErrNotConfigured):
		logger.Errorf("credential exchange misconfigured: %v", err)
		writeJSONError(w, http.StatusInternalServerError, "credential exchange is not configured")
	default:
		logger.Errorf("credential exchange failed for %s: %v", subject, err)
		writeJSONError(w, http.StatusInternalServerError, "credential exchange failed")
	}
}
