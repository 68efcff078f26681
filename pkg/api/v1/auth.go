package v1

import (
	"encoding/xml"
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/idbridge/idbridge/pkg/auth/broker"
	"github.com/idbridge/idbridge/pkg/auth/federation"
	"github.com/idbridge/idbridge/pkg/auth/roles"
	"github.com/idbridge/idbridge/pkg/auth/session"
	"github.com/idbridge/idbridge/pkg/logger"
)

// Error codes surfaced to the login page after a failed browser flow.
const (
	loginErrNoAssertionData  = "NoAssertionData"
	loginErrInvalidAssertion = "InvalidAssertion"
	loginErrNoUserData       = "NoUserData"
	loginErrInvalidToken     = "InvalidToken"
	loginErrCallback         = "CallbackError"
)

// AuthConfig carries the components the authentication routes depend on.
type AuthConfig struct {
	SAML      *federation.ServiceProvider
	Broker    *broker.Client
	Validator *federation.Validator
	Roles     *roles.Mapper
	Sessions  *session.Minter

	// SAMLIssuer is the IdP entity ID expected in assertions.
	SAMLIssuer string

	// GroupsClaim and DownstreamTokenClaim name the ID-token claims used
	// by the OIDC callback.
	GroupsClaim          string
	DownstreamTokenClaim string

	// SecureCookies selects the __Secure- cookie name and secure flag.
	SecureCookies bool
}

// AuthRouter creates a new router for the sign-in and sign-out flows.
func AuthRouter(cfg *AuthConfig) http.Handler {
	routes := &authRoutes{cfg: cfg}

	r := chi.NewRouter()
	r.Get("/saml/login", routes.samlLogin)
	r.Post("/saml/acs", routes.samlACS)
	r.Get("/saml/metadata", routes.samlMetadata)
	r.Get("/oidc/login", routes.oidcLogin)
	r.Get("/oidc/callback", routes.oidcCallback)
	r.Post("/signout", routes.signout)
	return r
}

type authRoutes struct {
	cfg *AuthConfig
}

// redirectToLogin sends the browser back to the login page with an error
// code. Browser flows never see JSON errors.
func redirectToLogin(w http.ResponseWriter, r *http.Request, code string) {
	http.Redirect(w, r, "/login?error="+url.QueryEscape(code), http.StatusSeeOther)
}

func (a *authRoutes) samlLogin(w http.ResponseWriter, r *http.Request) {
	if a.cfg.SAML == nil {
		logger.Errorf("SAML login requested but SAML is not configured")
		redirectToLogin(w, r, loginErrCallback)
		return
	}

	callbackURL := r.URL.Query().Get("callbackUrl")
	if callbackURL == "" {
		callbackURL = "/"
	}

	redirect, err := a.cfg.SAML.LoginRedirect(callbackURL)
	if err != nil {
		logger.Errorf("failed to build SAML authentication request: %v", err)
		redirectToLogin(w, r, loginErrCallback)
		return
	}

	http.Redirect(w, r, redirect.String(), http.StatusFound)
}

func (a *authRoutes) samlACS(w http.ResponseWriter, r *http.Request) {
	if a.cfg.SAML == nil {
		redirectToLogin(w, r, loginErrCallback)
		return
	}

	if err := r.ParseForm(); err != nil {
		redirectToLogin(w, r, loginErrNoAssertionData)
		return
	}

	id, err := federation.ParseAssertion(r.PostFormValue("SAMLResponse"), a.cfg.SAMLIssuer)
	if err != nil {
		logger.Infow("SAML assertion rejected", "error", err)
		redirectToLogin(w, r, samlErrorCode(err))
		return
	}

	// The issuer was already checked during parsing; only freshness is
	// left to verify here.
	if !id.ExpiresAt.IsZero() && id.ExpiresIn(time.Now()) == 0 {
		logger.Infow("SAML assertion expired", "subject", id.Subject, "expiresAt", id.ExpiresAt)
		redirectToLogin(w, r, loginErrInvalidAssertion)
		return
	}

	a.completeSignIn(w, r, id, federation.DecodeRelayState(r.PostFormValue("RelayState")))
}

// samlErrorCode maps assertion parse failures to login page error codes.
func samlErrorCode(err error) string {
	switch {
	case errors.Is(err, federation.ErrNoAssertionData):
		return loginErrNoAssertionData
	case errors.Is(err, federation.ErrNoUserData):
		return loginErrNoUserData
	default:
		return loginErrInvalidAssertion
	}
}

func (a *authRoutes) samlMetadata(w http.ResponseWriter, _ *http.Request) {
	if a.cfg.SAML == nil {
		http.Error(w, "SAML is not configured", http.StatusNotFound)
		return
	}

	out, err := xml.MarshalIndent(a.cfg.SAML.Metadata(), "", "  ")
	if err != nil {
		http.Error(w, "failed to render metadata", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/samlmetadata+xml")
	_, _ = w.Write(out)
}

func (a *authRoutes) oidcLogin(w http.ResponseWriter, r *http.Request) {
	if a.cfg.Broker == nil {
		logger.Errorf("OIDC login requested but no broker is configured")
		redirectToLogin(w, r, loginErrCallback)
		return
	}

	callbackURL := r.URL.Query().Get("callbackUrl")
	if callbackURL == "" {
		callbackURL = "/"
	}

	state := federation.EncodeRelayState(callbackURL)
	http.Redirect(w, r, a.cfg.Broker.AuthCodeURL(state), http.StatusFound)
}

func (a *authRoutes) oidcCallback(w http.ResponseWriter, r *http.Request) {
	if a.cfg.Broker == nil {
		logger.Errorf("OIDC callback requested but no broker is configured")
		redirectToLogin(w, r, loginErrCallback)
		return
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		redirectToLogin(w, r, loginErrCallback)
		return
	}

	tokens, err := a.cfg.Broker.ExchangeCode(r.Context(), code)
	if err != nil {
		logger.Infow("broker code exchange failed", "error", err)
		redirectToLogin(w, r, loginErrCallback)
		return
	}

	id, err := federation.ParseIDToken(tokens.IDToken, a.cfg.GroupsClaim, a.cfg.DownstreamTokenClaim)
	if err != nil {
		logger.Infow("ID token rejected", "error", err)
		redirectToLogin(w, r, loginErrInvalidToken)
		return
	}

	if err := a.cfg.Validator.Validate(r.Context(), id, tokens.IDToken); err != nil {
		logger.Infow("ID token validation failed", "error", err, "subject", id.Subject)
		redirectToLogin(w, r, loginErrInvalidToken)
		return
	}

	// Some brokers keep group claims out of the ID token; the userinfo
	// endpoint fills the gap when one is configured. A userinfo failure
	// degrades the role set, it does not block the sign-in.
	if len(id.Groups) == 0 && a.cfg.Broker.HasUserInfo() {
		info, err := a.cfg.Broker.UserInfo(r.Context(), tokens.AccessToken)
		if err != nil {
			logger.Infow("userinfo fetch failed", "error", err, "subject", id.Subject)
		} else {
			id.MergeUserInfo(info, a.cfg.GroupsClaim)
		}
	}

	a.completeSignIn(w, r, id, federation.DecodeRelayState(r.URL.Query().Get("state")))
}

// completeSignIn maps groups to roles, mints the session cookie and sends
// the browser to its post-login destination.
func (a *authRoutes) completeSignIn(w http.ResponseWriter, r *http.Request, id *federation.Identity, callbackURL string) {
	set := a.cfg.Roles.MapGroups(id.Groups)

	token, err := a.cfg.Sessions.Mint(id, set)
	if err != nil {
		logger.Errorf("failed to mint session for %s: %v", id.Subject, err)
		redirectToLogin(w, r, loginErrCallback)
		return
	}

	session.SetCookie(w, token, a.cfg.Sessions.TTL(), a.cfg.SecureCookies)

	logger.Infow("user signed in",
		"subject", id.Subject,
		"role", string(set.Highest()),
	)

	http.Redirect(w, r, callbackURL, http.StatusSeeOther)
}

func (a *authRoutes) signout(w http.ResponseWriter, _ *http.Request) {
	session.ClearCookie(w, a.cfg.SecureCookies)
	w.WriteHeader(http.StatusNoContent)
}
