package federation

import (
	"encoding/base64"
	"encoding/json"
	"net/url"

	"github.com/crewjam/saml"
)

// SAML binding paths served by the application.
const (
	MetadataPath = "/auth/saml/metadata"
	ACSPath      = "/auth/saml/acs"
)

// relayState is the JSON document carried through the IdP round trip in
// the RelayState form field, base64 encoded.
type relayState struct {
	CallbackURL string `json:"callbackUrl"`
}

// EncodeRelayState wraps the post-login callback URL for the IdP round
// trip.
func EncodeRelayState(callbackURL string) string {
	raw, _ := json.Marshal(relayState{CallbackURL: callbackURL})
	return base64.StdEncoding.EncodeToString(raw)
}

// DecodeRelayState recovers the callback URL from a RelayState value.
// Anything undecodable falls back to "/" so a mangled relay state never
// breaks the login flow.
func DecodeRelayState(encoded string) string {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "/"
	}
	var state relayState
	if err := json.Unmarshal(raw, &state); err != nil || state.CallbackURL == "" {
		return "/"
	}
	return state.CallbackURL
}

// ServiceProvider wraps the SAML SP configuration for this application:
// the IdP entry point plus the entity ID and ACS URL derived from the
// application base URL.
type ServiceProvider struct {
	entryPoint string
	sp         *saml.ServiceProvider
}

// NewServiceProvider builds the SP for the given application base URL and
// IdP entry point (the IdP's SSO URL).
func NewServiceProvider(baseURL, entryPoint string) (*ServiceProvider, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, err
	}

	metadataURL := *base
	metadataURL.Path = MetadataPath
	acsURL := *base
	acsURL.Path = ACSPath

	return &ServiceProvider{
		entryPoint: entryPoint,
		sp: &saml.ServiceProvider{
			EntityID:          metadataURL.String(),
			MetadataURL:       metadataURL,
			AcsURL:            acsURL,
			AuthnNameIDFormat: saml.EmailAddressNameIDFormat,
		},
	}, nil
}

// Metadata returns the SP metadata document published to the IdP.
func (s *ServiceProvider) Metadata() *saml.EntityDescriptor {
	return s.sp.Metadata()
}

// LoginRedirect builds the IdP redirect URL for an SP-initiated login.
// The AuthnRequest is deflated and base64 encoded per the HTTP-Redirect
// binding; callbackURL rides along in the RelayState.
func (s *ServiceProvider) LoginRedirect(callbackURL string) (*url.URL, error) {
	req, err := s.sp.MakeAuthenticationRequest(s.entryPoint, saml.HTTPRedirectBinding, saml.HTTPPostBinding)
	if err != nil {
		return nil, err
	}
	return req.Redirect(EncodeRelayState(callbackURL), s.sp)
}
