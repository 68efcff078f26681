// Package policy decides whether a caller's role set satisfies the
// permission required by a target resource or route.
package policy

import (
	"strings"

	"github.com/idbridge/idbridge/pkg/auth/roles"
)

// Permission names used by the application.
const (
	PermUsersView     = "users:view"
	PermUsersCreate   = "users:create"
	PermUsersEdit     = "users:edit"
	PermUsersDelete   = "users:delete"
	PermUsersApprove  = "users:approve"
	PermDashboardView = "dashboard:view"
	PermReportsView   = "reports:view"
	PermReportsCreate = "reports:create"
	PermReportsExport = "reports:export"
	PermSettingsView  = "settings:view"
	PermSettingsEdit  = "settings:edit"
	PermAdminAccess   = "admin:access"
)

// routeRule maps a route pattern to the permission it requires. Pattern
// segments wrapped in braces (e.g. "{id}") match any single path segment.
type routeRule struct {
	segments   []string
	permission string
}

// Policy is the static authorization table: a permission-to-roles map and
// an ordered list of route rules. It is read-only after construction and
// safe for concurrent use.
type Policy struct {
	permissions map[string][]roles.Role
	routes      []routeRule
}

// New builds a Policy from a permission table and a route table. Route
// table keys are patterns like "/users/{id}/edit".
func New(permissions map[string][]roles.Role, routes map[string]string) *Policy {
	p := &Policy{permissions: permissions}
	for pattern, perm := range routes {
		p.routes = append(p.routes, routeRule{
			segments:   splitPath(pattern),
			permission: perm,
		})
	}
	return p
}

// Default returns the application's built-in policy tables.
func Default() *Policy {
	all := []roles.Role{roles.RoleUser, roles.RoleViewer, roles.RoleProcessOwner, roles.RoleDataOwner, roles.RoleAdmin}
	viewerUp := []roles.Role{roles.RoleViewer, roles.RoleProcessOwner, roles.RoleDataOwner, roles.RoleAdmin}
	processOwnerUp := []roles.Role{roles.RoleProcessOwner, roles.RoleDataOwner, roles.RoleAdmin}
	dataOwnerUp := []roles.Role{roles.RoleDataOwner, roles.RoleAdmin}
	adminOnly := []roles.Role{roles.RoleAdmin}

	permissions := map[string][]roles.Role{
		PermUsersView:     viewerUp,
		PermUsersCreate:   dataOwnerUp,
		PermUsersEdit:     dataOwnerUp,
		PermUsersDelete:   adminOnly,
		PermUsersApprove:  dataOwnerUp,
		PermDashboardView: all,
		PermReportsView:   viewerUp,
		PermReportsCreate: processOwnerUp,
		PermReportsExport: dataOwnerUp,
		PermSettingsView:  dataOwnerUp,
		PermSettingsEdit:  adminOnly,
		PermAdminAccess:   adminOnly,
	}

	routes := map[string]string{
		"/":                PermDashboardView,
		"/users":           PermUsersView,
		"/users/new":       PermUsersCreate,
		"/users/{id}":      PermUsersView,
		"/users/{id}/edit": PermUsersEdit,
		"/reports":         PermReportsView,
		"/settings":        PermSettingsView,
		"/admin":           PermAdminAccess,
	}

	return New(permissions, routes)
}

// IsAuthorized reports whether the role set intersects the allowed roles
// for the permission. Unknown permissions authorize nobody.
func (p *Policy) IsAuthorized(set roles.Set, permission string) bool {
	allowed, ok := p.permissions[permission]
	if !ok {
		return false
	}
	for _, role := range allowed {
		if set.Contains(role) {
			return true
		}
	}
	return false
}

// IsPageAllowed matches the concrete path against the route table and, on
// a match, requires the corresponding permission. Literal rules take
// precedence over wildcard rules so "/users/new" is not swallowed by
// "/users/{id}". Paths that match no rule are allowed: policy is opt-in
// per route, so pages without an entry stay reachable until a rule is
// defined for them.
func (p *Policy) IsPageAllowed(set roles.Set, path string) bool {
	segments := splitPath(path)
	for _, literalPass := range []bool{true, false} {
		for _, rule := range p.routes {
			if isLiteral(rule.segments) != literalPass {
				continue
			}
			if matchSegments(rule.segments, segments) {
				return p.IsAuthorized(set, rule.permission)
			}
		}
	}
	return true
}

// isLiteral reports whether the pattern contains no wildcard segments.
func isLiteral(pattern []string) bool {
	for _, seg := range pattern {
		if strings.HasPrefix(seg, "{") && strings.HasSuffix(seg, "}") {
			return false
		}
	}
	return true
}

// splitPath normalizes a path into its segments. "/" and "" both yield an
// empty slice.
func splitPath(path string) []string {
	path = strings.Trim(path, "/")
	if path == "" {
		return nil
	}
	return strings.Split(path, "/")
}

// matchSegments matches concrete path segments against a pattern. A
// "{name}" pattern segment matches exactly one path segment.
func matchSegments(pattern, path []string) bool {
	if len(pattern) != len(path) {
		return false
	}
	for i, seg := range pattern {
		if strings.HasPrefix(seg, "{") && strings.HasSuffix(seg, "}") {
			continue
		}
		if seg != path[i] {
			return false
		}
	}
	return true
}
