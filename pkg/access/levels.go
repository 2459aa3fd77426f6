package access

import "fmt"

// PermissionLevel represents a level in the form permission hierarchy
type PermissionLevel string

const (
	PermissionNoAccess PermissionLevel = "no_access"
	PermissionViewer   PermissionLevel = "viewer"
	PermissionEditor   PermissionLevel = "editor"
	PermissionOwner    PermissionLevel = "owner"
)

// DefaultRequiredLevel is assumed whenever a caller does not name a level.
const DefaultRequiredLevel = PermissionViewer

// SharingScope represents how a form propagates access to organization members
type SharingScope string

const (
	ScopePrivate         SharingScope = "private"
	ScopeSpecificMembers SharingScope = "specific_members"
	ScopeAllOrgMembers   SharingScope = "all_org_members"
)

// Rank maps a permission level onto the total order used by every access
// comparison. The mapping is explicit so that reordering the constant block
// can never silently change access semantics. Unknown values rank below
// no_access and therefore satisfy nothing.
func Rank(level PermissionLevel) int {
	switch level {
	case PermissionNoAccess:
		return 0
	case PermissionViewer:
		return 1
	case PermissionEditor:
		return 2
	case PermissionOwner:
		return 3
	default:
		return -1
	}
}

// Satisfies reports whether a held permission level meets a required one.
// Every permission comparison in the engine goes through this function.
func Satisfies(have, require PermissionLevel) bool {
	return Rank(have) >= Rank(require)
}

// Valid reports whether the level is a known member of the hierarchy.
func (l PermissionLevel) Valid() bool {
	return Rank(l) >= 0
}

// Valid reports whether the scope is a known sharing scope.
func (s SharingScope) Valid() bool {
	switch s {
	case ScopePrivate, ScopeSpecificMembers, ScopeAllOrgMembers:
		return true
	}
	return false
}

// ParsePermissionLevel converts a wire string into a PermissionLevel,
// rejecting anything outside the hierarchy.
func ParsePermissionLevel(s string) (PermissionLevel, error) {
	level := PermissionLevel(s)
	if !level.Valid() {
		return "", &ValidationError{Message: fmt.Sprintf("invalid permission level: %q", s)}
	}
	return level, nil
}

// ParseSharingScope converts a wire string into a SharingScope.
func ParseSharingScope(s string) (SharingScope, error) {
	scope := SharingScope(s)
	if !scope.Valid() {
		return "", &ValidationError{Message: fmt.Sprintf("invalid sharing scope: %q", s)}
	}
	return scope, nil
}

// GrantableLevels are the levels that may be stored as explicit grants.
// Ownership is derived from the form record, never granted.
func GrantableLevels() []PermissionLevel {
	return []PermissionLevel{PermissionViewer, PermissionEditor}
}

// Grantable reports whether the level may appear in a stored grant.
func (l PermissionLevel) Grantable() bool {
	return l == PermissionViewer || l == PermissionEditor
}
