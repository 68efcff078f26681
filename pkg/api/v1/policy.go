package v1

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/idbridge/idbridge/pkg/auth"
	"github.com/idbridge/idbridge/pkg/auth/policy"
)

// PolicyRouter creates a new router exposing page-access decisions. The
// frontend middleware consults it before rendering a route, so the route
// table lives in one place.
func PolicyRouter(requireSession func(http.Handler) http.Handler, pol *policy.Policy) http.Handler {
	routes := &policyRoutes{policy: pol}

	r := chi.NewRouter()
	r.Use(requireSession)
	r.Get("/page", routes.checkPage)
	return r
}

type policyRoutes struct {
	policy *policy.Policy
}

// pageAccessResponse answers GET /api/v1/policy/page.
type pageAccessResponse struct {
	Path    string `json:"path"`
	Allowed bool   `json:"allowed"`
}

func (p *policyRoutes) checkPage(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.SessionFromContext(r.Context())
	if !ok {
		writeJSONError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	path := r.URL.Query().Get("path")
	if path == "" {
		writeJSONError(w, http.StatusBadRequest, "path is required")
		return
	}

	writeJSON(w, pageAccessResponse{
		Path:    path,
		Allowed: p.policy.IsPageAllowed(claims.RoleSet(), path),
	})
}
