// Package names validates database, namespace, and tag identifiers against
// syntax and reserved-word rules before they reach the store.
package names

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/pathwaylabs/commandgate/servers/commandgate/internal/fault"
)

type Kind string

const (
	KindDatabase  Kind = "database"
	KindNamespace Kind = "namespace"
	KindTag       Kind = "tag"
)

const maxNameLength = 50

var namePattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// DefaultReserved is the shipped reserved-word configuration. Deployments
// override it through the policy file.
func DefaultReserved() map[Kind][]string {
	return map[Kind][]string{
		KindDatabase:  {"main", "config", "system", "admin", "root", "temp", "cache"},
		KindNamespace: {"core", "system", "admin", "config", "temp", "cache"},
		KindTag:       {},
	}
}

// Guard is a pure identifier validator. It returns validation faults, never
// panics, and has no side effects.
type Guard struct {
	reserved map[Kind]map[string]struct{}
}

func NewGuard(reserved map[Kind][]string) *Guard {
	guard := &Guard{reserved: make(map[Kind]map[string]struct{}, len(reserved))}
	for kind, words := range reserved {
		set := make(map[string]struct{}, len(words))
		for _, word := range words {
			set[strings.ToLower(word)] = struct{}{}
		}
		guard.reserved[kind] = set
	}
	return guard
}

func NewDefaultGuard() *Guard {
	return NewGuard(DefaultReserved())
}

// Validate applies the rules in order: non-empty, length, character set,
// reserved words (case-insensitive). The returned fault names the rule that
// failed.
func (g *Guard) Validate(kind Kind, name string) error {
	if name == "" {
		return fault.Validation(fmt.Sprintf("%s name must not be empty", kind))
	}
	if len(name) > maxNameLength {
		return fault.Validation(fmt.Sprintf("%s name exceeds %d characters", kind, maxNameLength))
	}
	if !namePattern.MatchString(name) {
		return fault.Validation(fmt.Sprintf("%s name must match [A-Za-z0-9_-]+", kind))
	}
	if _, ok := g.reserved[kind][strings.ToLower(name)]; ok {
		return fault.Validation(fmt.Sprintf("%s name %q is reserved", kind, name))
	}
	return nil
}
