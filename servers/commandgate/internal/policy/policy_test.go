package policy

import (
	"reflect"
	"testing"

	"github.com/pathwaylabs/commandgate/pkg/commandgate/api"
)

func TestDeriveNamespace(t *testing.T) {
	t.Parallel()

	cases := []struct {
		email string
		want  string
	}{
		{email: "bob@x.com", want: "bob_x_com"},
		{email: "alice.smith@example.co.uk", want: "alice_smith_example_co_uk"},
		{email: "no-at-sign", want: "no-at-sign"},
		{email: "", want: ""},
	}
	for _, tc := range cases {
		tc := tc
		if got := DeriveNamespace(tc.email); got != tc.want {
			t.Errorf("DeriveNamespace(%q) = %q, want %q", tc.email, got, tc.want)
		}
	}
}

func TestDeriveNamespaceIsDeterministic(t *testing.T) {
	t.Parallel()
	first := DeriveNamespace("bob@x.com")
	second := DeriveNamespace("bob@x.com")
	if first != second {
		t.Fatalf("derivation must be stable, got %q then %q", first, second)
	}
}

func TestCanAccessOwnNamespace(t *testing.T) {
	t.Parallel()
	principal := api.Principal{Email: "bob@x.com"}

	if !CanAccess(principal, UserDataDatabase, "bob_x_com", api.LevelRead) {
		t.Fatal("own namespace must grant read without any grants")
	}
	if !CanAccess(principal, UserDataDatabase, "bob_x_com", api.LevelWrite) {
		t.Fatal("own namespace must grant write without any grants")
	}
	if CanAccess(principal, UserDataDatabase, "bob_x_com", api.LevelAdmin) {
		t.Fatal("own namespace must not imply admin")
	}
	if CanAccess(principal, UserDataDatabase, "alice_y_com", api.LevelRead) {
		t.Fatal("another user's namespace must not be covered by the own-namespace rule")
	}
}

func TestCanAccessAdminGroupBypass(t *testing.T) {
	t.Parallel()
	principal := api.Principal{Email: "root@x.com", Groups: []string{api.AdminGroup}}

	if !CanAccess(principal, "projects", "team-alpha", api.LevelAdmin) {
		t.Fatal("admin group must satisfy any path check")
	}
}

func TestCanAccessGrantMatching(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name      string
		grants    []api.PermissionGrant
		database  string
		namespace string
		required  api.AccessLevel
		want      bool
	}{
		{
			name:      "exact grant at level",
			grants:    []api.PermissionGrant{{Database: "projects", Namespace: "team-alpha", Level: api.LevelWrite}},
			database:  "projects",
			namespace: "team-alpha",
			required:  api.LevelWrite,
			want:      true,
		},
		{
			name:      "higher level covers lower requirement",
			grants:    []api.PermissionGrant{{Database: "projects", Namespace: "team-alpha", Level: api.LevelAdmin}},
			database:  "projects",
			namespace: "team-alpha",
			required:  api.LevelRead,
			want:      true,
		},
		{
			name:      "lower level fails higher requirement",
			grants:    []api.PermissionGrant{{Database: "projects", Namespace: "team-alpha", Level: api.LevelRead}},
			database:  "projects",
			namespace: "team-alpha",
			required:  api.LevelAdmin,
			want:      false,
		},
		{
			name:      "wildcard namespace matches any namespace",
			grants:    []api.PermissionGrant{{Database: "projects", Namespace: api.WildcardNamespace, Level: api.LevelRead}},
			database:  "projects",
			namespace: "anything",
			required:  api.LevelRead,
			want:      true,
		},
		{
			name:      "empty namespace matches any namespace",
			grants:    []api.PermissionGrant{{Database: "projects", Level: api.LevelRead}},
			database:  "projects",
			namespace: "anything",
			required:  api.LevelRead,
			want:      true,
		},
		{
			name:      "database mismatch never matches",
			grants:    []api.PermissionGrant{{Database: "projects", Namespace: "team-alpha", Level: api.LevelAdmin}},
			database:  "other",
			namespace: "team-alpha",
			required:  api.LevelRead,
			want:      false,
		},
		{
			name: "grants do not compose",
			grants: []api.PermissionGrant{
				{Database: "projects", Namespace: "team-alpha", Level: api.LevelRead},
				{Database: "projects", Namespace: "team-beta", Level: api.LevelAdmin},
			},
			database:  "projects",
			namespace: "team-alpha",
			required:  api.LevelAdmin,
			want:      false,
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			principal := api.Principal{Email: "bob@x.com", Permissions: tc.grants}
			if got := CanAccess(principal, tc.database, tc.namespace, tc.required); got != tc.want {
				t.Fatalf("CanAccess = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestCandidateLocationsOrdering(t *testing.T) {
	t.Parallel()
	principal := api.Principal{
		Email: "bob@x.com",
		Permissions: []api.PermissionGrant{
			{Database: "projects", Namespace: "team-alpha", Level: api.LevelRead},
			{Database: "archive", Level: api.LevelWrite},
			{Database: "projects", Namespace: "team-beta", Level: api.LevelRead},
			{Database: "main", Namespace: "core", Level: api.LevelAdmin},
		},
	}

	got := CandidateLocations(principal)
	want := []api.Location{
		{Database: UserDataDatabase, Namespace: "bob_x_com"},
		{Database: "projects", Namespace: "team-alpha"},
		{Database: "archive", Namespace: api.WildcardNamespace},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("CandidateLocations = %v, want %v", got, want)
	}
}

func TestCandidateLocationsGlobalAppend(t *testing.T) {
	t.Parallel()

	// Any grant on global qualifies, even below read level.
	principal := api.Principal{
		Email: "bob@x.com",
		Permissions: []api.PermissionGrant{
			{Database: GlobalDatabase, Namespace: "commands", Level: api.LevelUnspecified},
		},
	}
	got := CandidateLocations(principal)
	shared := api.Location{Database: GlobalDatabase, Namespace: GlobalCommandsNamespace}
	if got[len(got)-1] != shared {
		t.Fatalf("expected %v appended last, got %v", shared, got)
	}

	// No global grant, no shared entry.
	none := CandidateLocations(api.Principal{Email: "bob@x.com"})
	for _, location := range none {
		if location == shared {
			t.Fatal("shared library must not appear without a global grant")
		}
	}
}

func TestCandidateLocationsSkipsExcludedDatabases(t *testing.T) {
	t.Parallel()
	principal := api.Principal{
		Email: "bob@x.com",
		Permissions: []api.PermissionGrant{
			{Database: UserDataDatabase, Namespace: "alice_y_com", Level: api.LevelRead},
			{Database: "timeline", Namespace: "events", Level: api.LevelRead},
		},
	}

	got := CandidateLocations(principal)
	want := []api.Location{{Database: UserDataDatabase, Namespace: "bob_x_com"}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("CandidateLocations = %v, want %v", got, want)
	}
}

func TestResolveWriteLocation(t *testing.T) {
	t.Parallel()
	principal := api.Principal{
		Email: "bob@x.com",
		Permissions: []api.PermissionGrant{
			{Database: "projects", Namespace: "team-alpha", Level: api.LevelWrite},
			{Database: "projects", Namespace: "team-beta", Level: api.LevelRead},
		},
	}
	own := api.Location{Database: UserDataDatabase, Namespace: "bob_x_com"}

	cases := []struct {
		name     string
		explicit *api.Location
		want     api.Location
	}{
		{name: "nil falls back", explicit: nil, want: own},
		{name: "writable explicit is honored", explicit: &api.Location{Database: "projects", Namespace: "team-alpha"}, want: api.Location{Database: "projects", Namespace: "team-alpha"}},
		{name: "read-only explicit falls back silently", explicit: &api.Location{Database: "projects", Namespace: "team-beta"}, want: own},
		{name: "partial explicit falls back", explicit: &api.Location{Database: "projects"}, want: own},
		{name: "unknown explicit falls back", explicit: &api.Location{Database: "secret", Namespace: "ops"}, want: own},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := ResolveWriteLocation(principal, tc.explicit); got != tc.want {
				t.Fatalf("ResolveWriteLocation = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestHasCapability(t *testing.T) {
	t.Parallel()
	groups := DefaultGroupCapabilities()

	cases := []struct {
		name       string
		principal  api.Principal
		capability string
		want       bool
	}{
		{name: "empty capability", principal: api.Principal{Email: "b@x.com", Groups: []string{api.AdminGroup}}, capability: "", want: false},
		{name: "admin holds everything", principal: api.Principal{Email: "b@x.com", Groups: []string{api.AdminGroup}}, capability: "anything.at.all", want: true},
		{name: "explicit capability", principal: api.Principal{Email: "b@x.com", Capabilities: []string{"reports.export"}}, capability: "reports.export", want: true},
		{name: "group allow-list", principal: api.Principal{Email: "b@x.com", Groups: []string{"default"}}, capability: "ai.use", want: true},
		{name: "not held", principal: api.Principal{Email: "b@x.com", Groups: []string{"default"}}, capability: "reports.export", want: false},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := HasCapability(tc.principal, tc.capability, groups); got != tc.want {
				t.Fatalf("HasCapability = %v, want %v", got, tc.want)
			}
		})
	}
}
