// ABOUTME: Role family extraction and versioned-role activation
// ABOUTME: Role strings may carry an "@vN" suffix; gating operates on the family name
package protocol

import "strings"

// RoleFamily strips an optional "@vN" version suffix from a declared role
// string, e.g. "player@v1" -> RolePlayer. All role-gating logic operates on
// the family name; the versioned string only matters for activation echo.
func RoleFamily(role string) Role {
	if idx := strings.Index(role, "@"); idx > 0 {
		return Role(role[:idx])
	}
	return Role(role)
}

// knownFamily reports whether family is one of the five protocol roles.
func knownFamily(family Role) bool {
	switch family {
	case RolePlayer, RoleController, RoleMetadata, RoleArtwork, RoleVisualizer:
		return true
	}
	return false
}

// ActivateRoles selects the activated role set from a client's declared
// supported_roles: the first declared version of each known family wins
// (clients list versions in preference order), unknown families are dropped.
// Declaration order is preserved so the echoed active_roles list is
// deterministic.
func ActivateRoles(supported []string) []string {
	seen := make(map[Role]bool, len(supported))
	var active []string
	for _, role := range supported {
		family := RoleFamily(role)
		if seen[family] || !knownFamily(family) {
			continue
		}
		seen[family] = true
		active = append(active, role)
	}
	return active
}

// RoleFamilies converts a (possibly versioned) role list into the family set
// used for gating decisions.
func RoleFamilies(roles []string) map[Role]bool {
	out := make(map[Role]bool, len(roles))
	for _, r := range roles {
		if family := RoleFamily(r); knownFamily(family) {
			out[family] = true
		}
	}
	return out
}
