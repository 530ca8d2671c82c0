package policy

import "github.com/pathwaylabs/commandgate/pkg/commandgate/api"

// CanAccess reports whether the principal may act at (database, namespace)
// with the required level. Checks run in a fixed order and short-circuit on
// the first success:
//
//  1. The principal's own user-data namespace, for read and write only.
//     Admin-level operations on one's own namespace are not implied and fall
//     through to the remaining checks.
//  2. Membership in the admin group.
//  3. An explicit grant matching the database, covering the namespace
//     (scoped, wildcard, or absent), at or above the required level.
//
// Grants do not compose across scopes; each grant either satisfies the check
// on its own or contributes nothing.
func CanAccess(principal api.Principal, database, namespace string, required api.AccessLevel) bool {
	if database == UserDataDatabase && namespace == DeriveNamespace(principal.Email) && required <= api.LevelWrite {
		return true
	}
	if principal.InGroup(api.AdminGroup) {
		return true
	}
	for _, grant := range principal.Permissions {
		if grant.Database != database {
			continue
		}
		if grant.Namespace != "" && grant.Namespace != api.WildcardNamespace && grant.Namespace != namespace {
			continue
		}
		if grant.Level >= required {
			return true
		}
	}
	return false
}
