package auth

import (
	"encoding/json"
	"net/http"

	"github.com/idbridge/idbridge/pkg/auth/policy"
	"github.com/idbridge/idbridge/pkg/auth/session"
	"github.com/idbridge/idbridge/pkg/logger"
)

// RequireSession returns middleware that validates the session token from
// the request cookie or Authorization header. Requests without a valid
// session get a 401 JSON error; valid sessions are stored in the request
// context for downstream handlers.
func RequireSession(minter *session.Minter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := session.FromRequest(r)
			if token == "" {
				writeJSONError(w, http.StatusUnauthorized, "authentication required")
				return
			}

			claims, err := minter.Validate(token)
			if err != nil {
				logger.Debugf("session validation failed: %v", err)
				writeJSONError(w, http.StatusUnauthorized, "invalid or expired session")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), claims)))
		})
	}
}

// RequirePermission returns middleware that checks the session's roles
// against the policy for the given permission. It must run after
// RequireSession.
func RequirePermission(pol *policy.Policy, permission string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := SessionFromContext(r.Context())
			if !ok {
				writeJSONError(w, http.StatusUnauthorized, "authentication required")
				return
			}

			if !pol.IsAuthorized(claims.RoleSet(), permission) {
				logger.Debugw("permission denied",
					"subject", claims.Subject,
					"permission", permission,
				)
				writeJSONError(w, http.StatusForbidden, "insufficient permissions")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// writeJSONError writes a JSON error body with the given status. Error
// strings are generic on purpose; details stay in the server log.
func writeJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
