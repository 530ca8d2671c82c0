// Package policy decides what a principal may do and where their data lives.
// Everything here is pure over the principal's state: functions return values
// and booleans, never errors, and touch no I/O.
package policy

import "strings"

// UserDataDatabase holds every principal's private namespace.
const UserDataDatabase = "user-data"

// DeriveNamespace maps an email address to the principal's private namespace.
// The transform is the single canonical one: '@' and '.' each become '_'.
// It is total and deterministic, and never introduces characters outside the
// identifier syntax the name guard accepts.
func DeriveNamespace(email string) string {
	return strings.Map(func(r rune) rune {
		if r == '@' || r == '.' {
			return '_'
		}
		return r
	}, email)
}

// OwnLocation is the location DeriveNamespace implies for a principal.
func OwnLocation(email string) (database, namespace string) {
	return UserDataDatabase, DeriveNamespace(email)
}
