package policy

import "github.com/pathwaylabs/commandgate/pkg/commandgate/api"

// Capability names are a coarser permission dimension than path grants: a
// capability like "ai.use" gates a feature, never a database path. The two
// systems are deliberately independent; holding a capability says nothing
// about level-N access to any database, and vice versa.

// DefaultGroupCapabilities is the shipped group allow-list. Deployments
// override it through the policy file.
func DefaultGroupCapabilities() map[string][]string {
	return map[string][]string{
		"default": {"ai.use", "commands.use"},
	}
}

// HasCapability reports whether the principal holds the named capability,
// either explicitly or through a group allow-list. The admin group holds
// every capability.
func HasCapability(principal api.Principal, capability string, groupCapabilities map[string][]string) bool {
	if capability == "" {
		return false
	}
	if principal.InGroup(api.AdminGroup) {
		return true
	}
	for _, held := range principal.Capabilities {
		if held == capability {
			return true
		}
	}
	for _, group := range principal.Groups {
		for _, allowed := range groupCapabilities[group] {
			if allowed == capability {
				return true
			}
		}
	}
	return false
}
