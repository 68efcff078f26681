package v1

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/idbridge/idbridge/pkg/auth"
	"github.com/idbridge/idbridge/pkg/auth/federation"
	"github.com/idbridge/idbridge/pkg/auth/session"
	"github.com/idbridge/idbridge/pkg/logger"
)

// SessionRouter creates a new router exposing the current session.
func SessionRouter(requireSession func(http.Handler) http.Handler, minter *session.Minter) http.Handler {
	routes := &sessionRoutes{minter: minter}

	r := chi.NewRouter()
	r.Use(requireSession)
	r.Get("/", routes.getSession)
	return r
}

type sessionRoutes struct {
	minter *session.Minter
}

// sessionResponse describes the signed-in user to the frontend. APIToken
// is an independently signed token for backend calls; unlike the cookie
// session it never carries the downstream access token.
type sessionResponse struct {
	Subject   string   `json:"subject"`
	Email     string   `json:"email"`
	Name      string   `json:"name,omitempty"`
	Role      string   `json:"role"`
	Roles     []string `json:"roles"`
	Groups    []string `json:"groups,omitempty"`
	ExpiresAt int64    `json:"expiresAt"`
	APIToken  string   `json:"apiToken"`
}

func (s *sessionRoutes) getSession(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.SessionFromContext(r.Context())
	if !ok {
		writeJSONError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	// Cap the API token at the session's own expiry so it dies with the
	// session that requested it.
	var notAfter time.Time
	if claims.ExpiresAt != nil {
		notAfter = claims.ExpiresAt.Time
	}

	apiToken, err := s.minter.MintAPIToken(&federation.Identity{
		Subject: claims.Subject,
		Email:   claims.Email,
		Name:    claims.Name,
		Groups:  claims.Groups,
	}, claims.RoleSet(), notAfter)
	if err != nil {
		logger.Errorf("failed to mint API token for %s: %v", claims.Subject, err)
		writeJSONError(w, http.StatusInternalServerError, "failed to mint API token")
		return
	}

	resp := sessionResponse{
		Subject:  claims.Subject,
		Email:    claims.Email,
		Name:     claims.Name,
		Role:     claims.Role,
		Roles:    claims.Roles,
		Groups:   claims.Groups,
		APIToken: apiToken,
	}
	if claims.ExpiresAt != nil {
		resp.ExpiresAt = claims.ExpiresAt.Unix()
	}

	writeJSON(w, resp)
}
