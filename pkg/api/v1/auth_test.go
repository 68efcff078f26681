package v1

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/idbridge/idbridge/pkg/auth/broker"
	"github.com/idbridge/idbridge/pkg/auth/federation"
	"github.com/idbridge/idbridge/pkg/auth/roles"
	"github.com/idbridge/idbridge/pkg/auth/session"
)

const testIdPIssuer = "https://idp.example.com"

// samlResponse builds an encoded response document with saml2 namespace
// prefixes, a Success status and a NameID subject.
func samlResponse(nameID string, attributes string) string {
	return samlResponseExpiring(nameID, attributes, time.Now().UTC().Add(5*time.Minute))
}

func samlResponseExpiring(nameID string, attributes string, notOnOrAfter time.Time) string {
	now := time.Now().UTC()
	doc := fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<saml2p:Response xmlns:saml2p="urn:oasis:names:tc:SAML:2.0:protocol" ID="_resp1" Version="2.0" IssueInstant="%s">
  <saml2:Issuer xmlns:saml2="urn:oasis:names:tc:SAML:2.0:assertion">%s</saml2:Issuer>
  <saml2p:Status>
    <saml2p:StatusCode Value="urn:oasis:names:tc:SAML:2.0:status:Success"/>
  </saml2p:Status>
  <saml2:Assertion xmlns:saml2="urn:oasis:names:tc:SAML:2.0:assertion" ID="_a1" Version="2.0" IssueInstant="%s">
    <saml2:Issuer>%s</saml2:Issuer>
    <saml2:Subject>
      <saml2:NameID Format="urn:oasis:names:tc:SAML:1.1:nameid-format:emailAddress">%s</saml2:NameID>
    </saml2:Subject>
    <saml2:Conditions NotBefore="%s" NotOnOrAfter="%s">
      <saml2:AudienceRestriction>
        <saml2:Audience>https://app.example.com/auth/saml/metadata</saml2:Audience>
      </saml2:AudienceRestriction>
    </saml2:Conditions>
    <saml2:AttributeStatement>
      %s
    </saml2:AttributeStatement>
  </saml2:Assertion>
</saml2p:Response>`,
		now.Format(time.RFC3339), testIdPIssuer,
		now.Format(time.RFC3339), testIdPIssuer,
		nameID,
		now.Add(-time.Minute).Format(time.RFC3339), notOnOrAfter.Format(time.RFC3339),
		attributes)
	return base64.StdEncoding.EncodeToString([]byte(doc))
}

func newAuthServer(t *testing.T, mutate func(*AuthConfig)) http.Handler {
	t.Helper()

	sp, err := federation.NewServiceProvider("https://app.example.com", testIdPIssuer+"/sso")
	require.NoError(t, err)

	minter, err := session.NewMinter("test-secret", time.Hour)
	require.NoError(t, err)

	cfg := &AuthConfig{
		SAML:                 sp,
		Validator:            &federation.Validator{},
		Roles:                roles.NewMapper(nil),
		Sessions:             minter,
		SAMLIssuer:           testIdPIssuer,
		GroupsClaim:          federation.DefaultGroupsClaim,
		DownstreamTokenClaim: federation.DefaultDownstreamClaim,
		SecureCookies:        true,
	}
	if mutate != nil {
		mutate(cfg)
	}
	return AuthRouter(cfg)
}

func sessionCookie(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()

	for _, c := range rec.Result().Cookies() {
		if c.Name == session.CookieName(true) {
			return c
		}
	}
	t.Fatal("no session cookie set")
	return nil
}

func TestSAMLLogin(t *testing.T) {
	t.Parallel()

	handler := newAuthServer(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/saml/login?callbackUrl=/dashboard", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusFound, rec.Code)

	redirect, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "idp.example.com", redirect.Host)
	assert.NotEmpty(t, redirect.Query().Get("SAMLRequest"))

	state := redirect.Query().Get("RelayState")
	assert.Equal(t, "/dashboard", federation.DecodeRelayState(state))
}

func TestSAMLLogin_NotConfigured(t *testing.T) {
	t.Parallel()

	handler := newAuthServer(t, func(cfg *AuthConfig) { cfg.SAML = nil })

	req := httptest.NewRequest(http.MethodGet, "/saml/login", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/login?error=CallbackError", rec.Header().Get("Location"))
}

func TestSAMLACS(t *testing.T) {
	t.Parallel()

	handler := newAuthServer(t, nil)

	form := url.Values{
		"SAMLResponse": {samlResponse("alice@example.com",
			`<saml2:Attribute Name="role"><saml2:AttributeValue>GroupAdmin</saml2:AttributeValue></saml2:Attribute>`)},
		"RelayState": {federation.EncodeRelayState("/dashboard")},
	}

	req := httptest.NewRequest(http.MethodPost, "/saml/acs", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/dashboard", rec.Header().Get("Location"))

	cookie := sessionCookie(t, rec)
	assert.True(t, cookie.HttpOnly)
	assert.True(t, cookie.Secure)
	assert.NotEmpty(t, cookie.Value)
}

func TestSAMLACS_Failures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		form     url.Values
		wantCode string
	}{
		{
			name:     "missing response",
			form:     url.Values{"RelayState": {""}},
			wantCode: "NoAssertionData",
		},
		{
			name:     "undecodable response",
			form:     url.Values{"SAMLResponse": {"%%%not-base64%%%"}},
			wantCode: "InvalidAssertion",
		},
		{
			name: "no email in assertion",
			form: url.Values{"SAMLResponse": {samlResponse("",
				`<saml2:Attribute Name="role"><saml2:AttributeValue>GroupA</saml2:AttributeValue></saml2:Attribute>`)}},
			wantCode: "NoUserData",
		},
		{
			name: "expired assertion",
			form: url.Values{"SAMLResponse": {samlResponseExpiring("alice@example.com",
				`<saml2:Attribute Name="role"><saml2:AttributeValue>GroupA</saml2:AttributeValue></saml2:Attribute>`,
				time.Now().UTC().Add(-time.Hour))}},
			wantCode: "InvalidAssertion",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			handler := newAuthServer(t, nil)

			req := httptest.NewRequest(http.MethodPost, "/saml/acs", strings.NewReader(tt.form.Encode()))
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			require.Equal(t, http.StatusSeeOther, rec.Code)
			assert.Equal(t, "/login?error="+tt.wantCode, rec.Header().Get("Location"))
		})
	}
}

func TestSAMLMetadata(t *testing.T) {
	t.Parallel()

	handler := newAuthServer(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/saml/metadata", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/samlmetadata+xml", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "https://app.example.com/auth/saml/metadata")
	assert.Contains(t, rec.Body.String(), "https://app.example.com/auth/saml/acs")
}

func TestOIDCLogin(t *testing.T) {
	t.Parallel()

	brokerClient, err := broker.New(broker.Config{
		ClientID: "client",
		AuthURL:  "https://broker.example.com/authorize",
		TokenURL: "https://broker.example.com/token",
	})
	require.NoError(t, err)

	handler := newAuthServer(t, func(cfg *AuthConfig) { cfg.Broker = brokerClient })

	req := httptest.NewRequest(http.MethodGet, "/oidc/login?callbackUrl=/dashboard", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusFound, rec.Code)

	redirect, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "broker.example.com", redirect.Host)
	assert.Equal(t, "/authorize", redirect.Path)
	assert.Equal(t, "client", redirect.Query().Get("client_id"))

	// The callback URL rides through the broker in the state parameter.
	assert.Equal(t, "/dashboard", federation.DecodeRelayState(redirect.Query().Get("state")))
}

func TestOIDCLogin_NotConfigured(t *testing.T) {
	t.Parallel()

	handler := newAuthServer(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/oidc/login", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/login?error=CallbackError", rec.Header().Get("Location"))
}

func signTestIDToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte("broker-secret"))
	require.NoError(t, err)
	return signed
}

func TestOIDCCallback(t *testing.T) {
	t.Parallel()

	idToken := signTestIDToken(t, jwt.MapClaims{
		"sub":              "u-1",
		"email":            "alice@example.com",
		"groups":           []string{"GroupAdmin"},
		"idc_access_token": "downstream-token",
		"exp":              time.Now().Add(time.Hour).Unix(),
	})

	tokenSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "at-1",
			"token_type":   "Bearer",
			"id_token":     idToken,
		})
	}))
	defer tokenSrv.Close()

	brokerClient, err := broker.New(broker.Config{ClientID: "client", TokenURL: tokenSrv.URL})
	require.NoError(t, err)

	handler := newAuthServer(t, func(cfg *AuthConfig) { cfg.Broker = brokerClient })

	target := "/oidc/callback?code=code-1&state=" + url.QueryEscape(federation.EncodeRelayState("/home"))
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/home", rec.Header().Get("Location"))

	cookie := sessionCookie(t, rec)
	assert.NotEmpty(t, cookie.Value)
}

func TestOIDCCallback_GroupsFromUserInfo(t *testing.T) {
	t.Parallel()

	// ID token without a groups claim; the broker serves them from the
	// userinfo endpoint instead.
	idToken := signTestIDToken(t, jwt.MapClaims{
		"sub":   "u-1",
		"email": "alice@example.com",
		"exp":   time.Now().Add(time.Hour).Unix(),
	})

	tokenSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "at-1",
			"token_type":   "Bearer",
			"id_token":     idToken,
		})
	}))
	defer tokenSrv.Close()

	userInfoSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer at-1", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"sub":    "u-1",
			"groups": []string{"GroupAdmin"},
		})
	}))
	defer userInfoSrv.Close()

	brokerClient, err := broker.New(broker.Config{
		ClientID:    "client",
		TokenURL:    tokenSrv.URL,
		UserInfoURL: userInfoSrv.URL,
	})
	require.NoError(t, err)

	minter, err := session.NewMinter("test-secret", time.Hour)
	require.NoError(t, err)

	handler := newAuthServer(t, func(cfg *AuthConfig) {
		cfg.Broker = brokerClient
		cfg.Sessions = minter
	})

	target := "/oidc/callback?code=code-1&state=" + url.QueryEscape(federation.EncodeRelayState("/home"))
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/home", rec.Header().Get("Location"))

	// The userinfo groups must have fed the role mapping.
	claims, err := minter.Validate(sessionCookie(t, rec).Value)
	require.NoError(t, err)
	assert.Equal(t, "admin", claims.Role)
	assert.Equal(t, []string{"GroupAdmin"}, claims.Groups)
}

func TestOIDCCallback_MissingCode(t *testing.T) {
	t.Parallel()

	brokerClient, err := broker.New(broker.Config{ClientID: "client", TokenURL: "https://broker.example.com/token"})
	require.NoError(t, err)

	handler := newAuthServer(t, func(cfg *AuthConfig) { cfg.Broker = brokerClient })

	req := httptest.NewRequest(http.MethodGet, "/oidc/callback", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/login?error=CallbackError", rec.Header().Get("Location"))
}

func TestSignout(t *testing.T) {
	t.Parallel()

	handler := newAuthServer(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/signout", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNoContent, rec.Code)

	cookie := sessionCookie(t, rec)
	assert.Empty(t, cookie.Value)
	assert.Negative(t, cookie.MaxAge)
}
