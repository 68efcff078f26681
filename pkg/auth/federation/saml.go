package federation

import (
	"encoding/base64"
	"encoding/xml"
	"strings"

	"github.com/crewjam/saml"

	"github.com/idbridge/idbridge/pkg/logger"
)

// attrKind is the semantic classification of a SAML attribute name.
type attrKind int

const (
	attrUnknown attrKind = iota
	attrEmail
	attrGivenName
	attrFamilyName
	attrFullName
	attrUserID
	attrGroups
)

// classifyAttribute classifies a SAML attribute name by case-insensitive
// keyword and suffix matching. IdPs ship attribute names in many shapes
// (plain names, URI-style claim names, schema URLs), so matching is loose
// on purpose.
func classifyAttribute(name string) attrKind {
	lower := strings.ToLower(name)
	switch {
	case lower == "email",
		strings.Contains(lower, "emailaddress"),
		strings.Contains(lower, "mail"):
		return attrEmail
	case lower == "firstname",
		lower == "givenname",
		strings.HasSuffix(lower, "/givenname"),
		strings.Contains(lower, "given_name"):
		return attrGivenName
	case lower == "lastname",
		lower == "surname",
		lower == "familyname",
		strings.HasSuffix(lower, "/surname"),
		strings.Contains(lower, "family_name"):
		return attrFamilyName
	case (lower == "name" || strings.HasSuffix(lower, "/name")) &&
		!strings.Contains(lower, "format") &&
		!strings.Contains(lower, "first") &&
		!strings.Contains(lower, "last") &&
		!strings.Contains(lower, "given") &&
		!strings.Contains(lower, "family"):
		return attrFullName
	case lower == "userid",
		lower == "user_id",
		strings.HasSuffix(lower, "/nameidentifier"),
		strings.Contains(lower, "useridentifier"):
		return attrUserID
	case strings.Contains(lower, "role"),
		strings.Contains(lower, "group"):
		return attrGroups
	default:
		return attrUnknown
	}
}

// ParseAssertion decodes a base64-encoded SAML response document and
// extracts the canonical identity from its assertion.
//
// The document is parsed structurally; the response status must be
// Success and, when expectedIssuer is non-empty, the asserted issuer must
// match it. Group and role attributes accumulate every AttributeValue so
// multi-group memberships survive. A missing email after all fallbacks is
// ErrNoUserData.
func ParseAssertion(encoded, expectedIssuer string) (*Identity, error) {
	if encoded == "" {
		return nil, ErrNoAssertionData
	}

	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		logger.Debugf("SAML response is not valid base64: %v", err)
		return nil, ErrInvalidAssertion
	}

	var resp saml.Response
	if err := xml.Unmarshal(raw, &resp); err != nil {
		logger.Debugf("SAML response is not a valid response document: %v", err)
		return nil, ErrInvalidAssertion
	}

	if resp.Status.StatusCode.Value != saml.StatusSuccess {
		logger.Debugf("SAML response status is %q, not Success", resp.Status.StatusCode.Value)
		return nil, ErrInvalidAssertion
	}

	assertion := resp.Assertion
	if assertion == nil {
		return nil, ErrInvalidAssertion
	}

	issuer := assertion.Issuer.Value
	if issuer == "" && resp.Issuer != nil {
		issuer = resp.Issuer.Value
	}
	if expectedIssuer != "" && issuer != expectedIssuer {
		logger.Debugw("SAML issuer mismatch", "got", issuer)
		return nil, ErrInvalidAssertion
	}

	id := &Identity{Issuer: issuer, IssuedAt: resp.IssueInstant}
	if id.IssuedAt.IsZero() {
		id.IssuedAt = assertion.IssueInstant
	}

	if assertion.Subject != nil && assertion.Subject.NameID != nil {
		id.Email = strings.TrimSpace(assertion.Subject.NameID.Value)
	}

	if c := assertion.Conditions; c != nil {
		id.ExpiresAt = c.NotOnOrAfter
		if len(c.AudienceRestrictions) > 0 {
			id.Audience = c.AudienceRestrictions[0].Audience.Value
		}
	}

	var given, family, full, userID string
	for _, stmt := range assertion.AttributeStatements {
		for _, attr := range stmt.Attributes {
			name := attr.Name
			if name == "" {
				name = attr.FriendlyName
			}
			values := attributeValues(attr)
			if len(values) == 0 {
				continue
			}

			switch classifyAttribute(name) {
			case attrEmail:
				id.Email = values[0]
			case attrGivenName:
				given = values[0]
			case attrFamilyName:
				family = values[0]
			case attrFullName:
				full = values[0]
			case attrUserID:
				userID = values[0]
			case attrGroups:
				// An attribute may carry one value per group; collect
				// them all rather than keeping the last.
				id.Groups = append(id.Groups, values...)
			case attrUnknown:
				if id.Extra == nil {
					id.Extra = map[string]any{}
				}
				id.Extra[name] = values
			}
		}
	}

	if id.Email == "" {
		return nil, ErrNoUserData
	}

	id.Name = displayName(full, given, family, id.Email)
	id.Subject = userID
	if id.Subject == "" {
		id.Subject = id.Email
	}

	return id, nil
}

// attributeValues returns all non-empty values of a SAML attribute.
func attributeValues(attr saml.Attribute) []string {
	values := make([]string, 0, len(attr.Values))
	for _, v := range attr.Values {
		if trimmed := strings.TrimSpace(v.Value); trimmed != "" {
			values = append(values, trimmed)
		}
	}
	return values
}
