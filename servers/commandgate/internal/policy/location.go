package policy

import "github.com/pathwaylabs/commandgate/pkg/commandgate/api"

const (
	// GlobalDatabase and GlobalCommandsNamespace form the shared command
	// library appended to a principal's candidates when they hold any grant
	// on the global database.
	GlobalDatabase          = "global"
	GlobalCommandsNamespace = "commands"

	timelineDatabase = "timeline"
)

// DefaultLocation is where an operation lands when no location was supplied
// and no sufficiently-permitted explicit pair was given.
func DefaultLocation(principal api.Principal) api.Location {
	return api.Location{Database: UserDataDatabase, Namespace: DeriveNamespace(principal.Email)}
}

// CandidateLocations builds the ordered list searched when no explicit
// location is given. Ordering is fixed and significant:
//
//  1. The principal's own user-data namespace.
//  2. One entry per distinct readable database from the grant list, skipping
//     main, timeline, and user-data. Database-wide grants produce a wildcard
//     namespace entry; callers must enumerate real namespaces through the
//     store before searching those.
//  3. global.commands, only when the principal holds any grant on global.
//
// The resolver orders candidates; it does not search them. Callers take the
// first location that yields a record and treat per-location failures as
// "not found here".
func CandidateLocations(principal api.Principal) []api.Location {
	candidates := []api.Location{DefaultLocation(principal)}

	seen := map[string]struct{}{
		UserDataDatabase: {},
		timelineDatabase: {},
		"main":           {},
	}
	globalGranted := false
	for _, grant := range principal.Permissions {
		if grant.Database == GlobalDatabase {
			globalGranted = true
		}
		if grant.Level < api.LevelRead {
			continue
		}
		if _, ok := seen[grant.Database]; ok {
			continue
		}
		seen[grant.Database] = struct{}{}
		namespace := grant.Namespace
		if namespace == "" {
			namespace = api.WildcardNamespace
		}
		candidates = append(candidates, api.Location{Database: grant.Database, Namespace: namespace})
	}

	if globalGranted {
		shared := api.Location{Database: GlobalDatabase, Namespace: GlobalCommandsNamespace}
		if !containsLocation(candidates, shared) {
			candidates = append(candidates, shared)
		}
	}
	return candidates
}

// ResolveWriteLocation honors an explicit pair only when the principal can
// write there; otherwise it silently falls back to the default location.
// Callers that want an explicit location to fail loudly must check access
// themselves first.
func ResolveWriteLocation(principal api.Principal, explicit *api.Location) api.Location {
	if explicit != nil && explicit.Database != "" && explicit.Namespace != "" &&
		CanAccess(principal, explicit.Database, explicit.Namespace, api.LevelWrite) {
		return *explicit
	}
	return DefaultLocation(principal)
}

func containsLocation(locations []api.Location, target api.Location) bool {
	for _, location := range locations {
		if location == target {
			return true
		}
	}
	return false
}
