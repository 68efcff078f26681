package v1

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/idbridge/idbridge/pkg/auth"
	"github.com/idbridge/idbridge/pkg/auth/federation"
	"github.com/idbridge/idbridge/pkg/auth/roles"
	"github.com/idbridge/idbridge/pkg/auth/session"
)

func TestGetSession(t *testing.T) {
	t.Parallel()

	minter, err := session.NewMinter("test-secret", time.Hour)
	require.NoError(t, err)

	handler := SessionRouter(auth.RequireSession(minter), minter)

	token, err := minter.Mint(&federation.Identity{
		Subject:         "u-1",
		Email:           "alice@example.com",
		Name:            "Alice",
		Groups:          []string{"GroupAdmin"},
		DownstreamToken: "downstream-token",
	}, roles.Set{roles.RoleAdmin, roles.RoleUser})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()

	var resp sessionResponse
	require.NoError(t, json.Unmarshal([]byte(body), &resp))
	assert.Equal(t, "u-1", resp.Subject)
	assert.Equal(t, "alice@example.com", resp.Email)
	assert.Equal(t, "admin", resp.Role)
	assert.Equal(t, []string{"admin", "user"}, resp.Roles)
	assert.Positive(t, resp.ExpiresAt)

	// The downstream access token must never appear in the response.
	assert.NotContains(t, body, "downstream-token")

	// The API token is valid and carries no downstream access token.
	require.NotEmpty(t, resp.APIToken)
	apiClaims, err := minter.Validate(resp.APIToken)
	require.NoError(t, err)
	assert.Equal(t, "u-1", apiClaims.Subject)
	assert.Empty(t, apiClaims.DownstreamToken)
	assert.LessOrEqual(t, apiClaims.ExpiresAt.Unix(), resp.ExpiresAt)
}

func TestGetSession_APITokenDiesWithSession(t *testing.T) {
	t.Parallel()

	minter, err := session.NewMinter("test-secret", time.Hour)
	require.NoError(t, err)

	handler := SessionRouter(auth.RequireSession(minter), minter)

	// A session in its final seconds: the API token minted for it must
	// not get the minter's full TTL.
	now := time.Now()
	sessionExpiry := now.Add(30 * time.Second)
	sessionClaims := &session.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "u-1",
			IssuedAt:  jwt.NewNumericDate(now.Add(-time.Hour + 30*time.Second)),
			ExpiresAt: jwt.NewNumericDate(sessionExpiry),
		},
		Email: "alice@example.com",
		Role:  "user",
		Roles: []string{"user"},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, sessionClaims).SignedString([]byte("test-secret"))
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp sessionResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.NotEmpty(t, resp.APIToken)

	apiClaims, err := minter.Validate(resp.APIToken)
	require.NoError(t, err)
	assert.False(t, apiClaims.ExpiresAt.After(sessionExpiry))
}

func TestGetSession_Unauthenticated(t *testing.T) {
	t.Parallel()

	minter, err := session.NewMinter("test-secret", time.Hour)
	require.NoError(t, err)

	handler := SessionRouter(auth.RequireSession(minter), minter)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
