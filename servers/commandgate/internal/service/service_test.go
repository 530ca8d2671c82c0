package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pathwaylabs/commandgate/pkg/commandgate/api"
	dsapi "github.com/pathwaylabs/commandgate/pkg/docstore/api"
	"github.com/pathwaylabs/commandgate/servers/commandgate/internal/fault"
	"github.com/pathwaylabs/commandgate/servers/commandgate/internal/identity"
)

// fakeStore is an in-memory stand-in for the remote document store. It
// returns the same fault kinds the real client produces, so the service sees
// an indistinguishable contract.
type fakeStore struct {
	mu         sync.Mutex
	docs       map[string]json.RawMessage
	namespaces map[string]map[string]bool
	fail       map[string]error

	lastCredential identity.StoreCredential
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		docs:       map[string]json.RawMessage{},
		namespaces: map[string]map[string]bool{},
		fail:       map[string]error{},
	}
}

func docKey(database, namespace, entity, id string) string {
	return database + "|" + namespace + "|" + entity + "|" + id
}

func (f *fakeStore) put(database, namespace, id string, cmd api.Command) {
	payload, _ := json.Marshal(cmd)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.docs[docKey(database, namespace, "commands", id)] = payload
	f.ensureNamespace(database, namespace)
}

func (f *fakeStore) ensureNamespace(database, namespace string) {
	if f.namespaces[database] == nil {
		f.namespaces[database] = map[string]bool{}
	}
	if namespace != "" {
		f.namespaces[database][namespace] = true
	}
}

func (f *fakeStore) failAt(database, namespace string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail[database+"|"+namespace] = err
}

func (f *fakeStore) Execute(_ context.Context, credential identity.StoreCredential, req dsapi.ExecuteRequest) (*dsapi.ExecuteResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastCredential = credential

	path := req.Path
	if err, ok := f.fail[path.Database+"|"+path.Namespace]; ok {
		return nil, err
	}

	switch req.Verb {
	case dsapi.VerbSet:
		if path.Entity == "" {
			f.ensureNamespace(path.Database, path.Namespace)
			return &dsapi.ExecuteResponse{}, nil
		}
		f.docs[docKey(path.Database, path.Namespace, path.Entity, path.ID)] = req.Payload
		f.ensureNamespace(path.Database, path.Namespace)
		return &dsapi.ExecuteResponse{Document: req.Payload}, nil
	case dsapi.VerbGet:
		document, ok := f.docs[docKey(path.Database, path.Namespace, path.Entity, path.ID)]
		if !ok {
			return nil, fault.NotFound("record not found in store")
		}
		return &dsapi.ExecuteResponse{Document: document}, nil
	case dsapi.VerbList, dsapi.VerbSearch:
		if path.Namespace == "" {
			names := make([]string, 0, len(f.namespaces[path.Database]))
			for name := range f.namespaces[path.Database] {
				names = append(names, name)
			}
			sort.Strings(names)
			return &dsapi.ExecuteResponse{Names: names}, nil
		}
		prefix := path.Database + "|" + path.Namespace + "|" + path.Entity + "|"
		documents := []json.RawMessage{}
		for key, document := range f.docs {
			if !strings.HasPrefix(key, prefix) {
				continue
			}
			if req.Verb == dsapi.VerbSearch && !matchesFilter(document, req.Filter) {
				continue
			}
			documents = append(documents, document)
		}
		return &dsapi.ExecuteResponse{Documents: documents}, nil
	case dsapi.VerbRemove:
		key := docKey(path.Database, path.Namespace, path.Entity, path.ID)
		if _, ok := f.docs[key]; !ok {
			return nil, fault.NotFound("record not found in store")
		}
		delete(f.docs, key)
		return &dsapi.ExecuteResponse{}, nil
	case dsapi.VerbTag, dsapi.VerbUntag:
		key := docKey(path.Database, path.Namespace, path.Entity, path.ID)
		document, ok := f.docs[key]
		if !ok {
			return nil, fault.NotFound("record not found in store")
		}
		var cmd api.Command
		if err := json.Unmarshal(document, &cmd); err != nil {
			return nil, fault.Store("decode", err)
		}
		var tagPayload struct {
			Tag string `json:"tag"`
		}
		_ = json.Unmarshal(req.Payload, &tagPayload)
		if req.Verb == dsapi.VerbTag {
			if !cmd.HasTag(tagPayload.Tag) {
				cmd.Tags = append(cmd.Tags, tagPayload.Tag)
			}
		} else {
			kept := cmd.Tags[:0]
			for _, tag := range cmd.Tags {
				if tag != tagPayload.Tag {
					kept = append(kept, tag)
				}
			}
			cmd.Tags = kept
		}
		updated, _ := json.Marshal(cmd)
		f.docs[key] = updated
		return &dsapi.ExecuteResponse{Document: updated}, nil
	case dsapi.VerbDrop:
		prefix := path.Database + "|"
		if path.Namespace != "" {
			prefix = path.Database + "|" + path.Namespace + "|"
		}
		for key := range f.docs {
			if strings.HasPrefix(key, prefix) {
				delete(f.docs, key)
			}
		}
		if path.Namespace == "" {
			delete(f.namespaces, path.Database)
		} else if f.namespaces[path.Database] != nil {
			delete(f.namespaces[path.Database], path.Namespace)
		}
		return &dsapi.ExecuteResponse{}, nil
	default:
		return nil, fault.Validation(fmt.Sprintf("unsupported verb %s", req.Verb))
	}
}

func matchesFilter(document json.RawMessage, filter *dsapi.Filter) bool {
	if filter == nil {
		return true
	}
	var cmd api.Command
	if err := json.Unmarshal(document, &cmd); err != nil {
		return false
	}
	if filter.Name != "" && !strings.Contains(strings.ToLower(cmd.Name), strings.ToLower(filter.Name)) {
		return false
	}
	for _, tag := range filter.Tags {
		if !cmd.HasTag(tag) {
			return false
		}
	}
	return true
}

func newTestService(t *testing.T, fake *fakeStore) *Service {
	t.Helper()
	svc := New(Config{
		Store: fake,
		Credentials: identity.StaticCredentials(identity.Credentials{
			Fallback: identity.StoreCredential{URL: "https://store", Token: "store-token"},
		}),
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	svc.now = func() time.Time { return time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC) }
	counter := 0
	svc.newID = func() string {
		counter++
		return fmt.Sprintf("cmd-%d", counter)
	}
	return svc
}

func bobCaller(grants ...api.PermissionGrant) Caller {
	return Caller{
		Principal: api.Principal{Email: "bob@x.com", Permissions: grants},
		Token:     "bob-token",
	}
}

func timerCommand(name string) api.Command {
	return api.Command{Name: name, CommandType: api.CommandTypeTimer, Duration: 30, Unit: api.UnitSeconds}
}

func TestCreateDefaultsToOwnNamespace(t *testing.T) {
	t.Parallel()
	fake := newFakeStore()
	svc := newTestService(t, fake)
	caller := bobCaller()

	cmd, location, err := svc.Create(context.Background(), caller, nil, timerCommand("wait"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if location != (api.Location{Database: "user-data", Namespace: "bob_x_com"}) {
		t.Fatalf("unexpected location %v", location)
	}
	if cmd.ID != "cmd-1" {
		t.Fatalf("expected generated id, got %q", cmd.ID)
	}
	if cmd.CreatedBy != "bob@x.com" || cmd.CreatedAt.IsZero() {
		t.Fatalf("authorship not stamped: %+v", cmd)
	}
	if _, ok := fake.docs[docKey("user-data", "bob_x_com", "commands", "cmd-1")]; !ok {
		t.Fatal("record not written to derived namespace")
	}
}

func TestCreateFallsBackWhenExplicitNotWritable(t *testing.T) {
	t.Parallel()
	fake := newFakeStore()
	svc := newTestService(t, fake)
	caller := bobCaller(api.PermissionGrant{Database: "projects", Namespace: "team-alpha", Level: api.LevelRead})

	_, location, err := svc.Create(context.Background(), caller,
		&api.Location{Database: "projects", Namespace: "team-alpha"}, timerCommand("wait"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if location.Database != "user-data" {
		t.Fatalf("expected silent fallback to own namespace, got %v", location)
	}
}

func TestCreateRejectsInvalidCommand(t *testing.T) {
	t.Parallel()
	svc := newTestService(t, newFakeStore())

	_, _, err := svc.Create(context.Background(), bobCaller(), nil,
		api.Command{Name: "broken", CommandType: api.CommandTypeTimer})
	if !fault.IsKind(err, api.ErrorKindValidation) {
		t.Fatalf("expected validation fault, got %v", err)
	}
}

func TestCreateRejectsReservedTag(t *testing.T) {
	t.Parallel()
	svc := newTestService(t, newFakeStore())

	cmd := timerCommand("wait")
	cmd.Tags = []string{"has.dots"}
	_, _, err := svc.Create(context.Background(), bobCaller(), nil, cmd)
	if !fault.IsKind(err, api.ErrorKindValidation) {
		t.Fatalf("expected validation fault for bad tag, got %v", err)
	}
}

func TestGetSearchesCandidatesInOrder(t *testing.T) {
	t.Parallel()
	fake := newFakeStore()
	svc := newTestService(t, fake)
	caller := bobCaller(api.PermissionGrant{Database: "projects", Namespace: "team-alpha", Level: api.LevelRead})

	stored := timerCommand("wait")
	stored.ID = "cmd-x"
	fake.put("projects", "team-alpha", "cmd-x", stored)

	cmd, location, err := svc.Get(context.Background(), caller, "cmd-x", nil)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if location != (api.Location{Database: "projects", Namespace: "team-alpha"}) {
		t.Fatalf("unexpected location %v", location)
	}
	if cmd.Name != "wait" {
		t.Fatalf("unexpected command %+v", cmd)
	}
}

func TestGetSkipsFailingCandidate(t *testing.T) {
	t.Parallel()
	fake := newFakeStore()
	svc := newTestService(t, fake)
	caller := bobCaller(
		api.PermissionGrant{Database: "broken-db", Namespace: "ns", Level: api.LevelRead},
		api.PermissionGrant{Database: "projects", Namespace: "team-alpha", Level: api.LevelRead},
	)

	fake.failAt("broken-db", "ns", fault.Store("store call failed", nil))
	stored := timerCommand("wait")
	stored.ID = "cmd-x"
	fake.put("projects", "team-alpha", "cmd-x", stored)

	cmd, location, err := svc.Get(context.Background(), caller, "cmd-x", nil)
	if err != nil {
		t.Fatalf("failing earlier candidate must not abort the search: %v", err)
	}
	if location.Database != "projects" || cmd.ID != "cmd-x" {
		t.Fatalf("unexpected hit %v %v", location, cmd)
	}
}

func TestGetMissReportsNotFoundNeverAuthorization(t *testing.T) {
	t.Parallel()
	fake := newFakeStore()
	svc := newTestService(t, fake)

	// The record exists, but only in a tenant the caller cannot reach.
	hidden := timerCommand("secret")
	hidden.ID = "cmd-hidden"
	fake.put("projects", "team-omega", "cmd-hidden", hidden)

	_, _, err := svc.Get(context.Background(), bobCaller(), "cmd-hidden", nil)
	if !fault.IsKind(err, api.ErrorKindNotFound) {
		t.Fatalf("cross-tenant miss must be not_found, got %v", err)
	}
}

func TestGetSurfacesLastFailureWhenAllCandidatesFail(t *testing.T) {
	t.Parallel()
	fake := newFakeStore()
	svc := newTestService(t, fake)
	caller := bobCaller(api.PermissionGrant{Database: "broken-db", Namespace: "ns", Level: api.LevelRead})

	fake.failAt("user-data", "bob_x_com", fault.Store("store call failed", nil))
	fake.failAt("broken-db", "ns", fault.Store("store call failed", nil))

	_, _, err := svc.Get(context.Background(), caller, "cmd-x", nil)
	if !fault.IsKind(err, api.ErrorKindStore) {
		t.Fatalf("a store outage must not masquerade as not_found, got %v", err)
	}
}

func TestGetDecodesUnknownCommandTypeAsBase(t *testing.T) {
	t.Parallel()
	fake := newFakeStore()
	svc := newTestService(t, fake)
	caller := bobCaller()

	stored := api.Command{ID: "cmd-new", Name: "from-the-future", CommandType: "quantum"}
	fake.put("user-data", "bob_x_com", "cmd-new", stored)

	cmd, _, err := svc.Get(context.Background(), caller, "cmd-new", nil)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if cmd.CommandType != "quantum" || cmd.Name != "from-the-future" {
		t.Fatalf("unknown type must keep its base fields, got %+v", cmd)
	}
}

func TestGetExplicitLocationRequiresRead(t *testing.T) {
	t.Parallel()
	fake := newFakeStore()
	svc := newTestService(t, fake)

	stored := timerCommand("secret")
	stored.ID = "cmd-x"
	fake.put("projects", "team-omega", "cmd-x", stored)

	_, _, err := svc.Get(context.Background(), bobCaller(), "cmd-x",
		&api.Location{Database: "projects", Namespace: "team-omega"})
	if !fault.IsKind(err, api.ErrorKindAuthorization) {
		t.Fatalf("explicit unreadable location must be authorization, got %v", err)
	}
}

func TestUpdateAuthorOverride(t *testing.T) {
	t.Parallel()
	fake := newFakeStore()
	svc := newTestService(t, fake)

	// bob authored a command in a shared namespace he can read but not write.
	stored := timerCommand("wait")
	stored.ID = "cmd-x"
	stored.CreatedBy = "bob@x.com"
	fake.put("projects", "team-alpha", "cmd-x", stored)
	caller := bobCaller(api.PermissionGrant{Database: "projects", Namespace: "team-alpha", Level: api.LevelRead})

	updated := timerCommand("wait-longer")
	got, _, err := svc.Update(context.Background(), caller, "cmd-x", nil, updated)
	if err != nil {
		t.Fatalf("author must be allowed to update: %v", err)
	}
	if got.Name != "wait-longer" || got.CreatedBy != "bob@x.com" {
		t.Fatalf("merge lost fields: %+v", got)
	}

	// A non-author with read-only access is denied.
	other := Caller{
		Principal: api.Principal{Email: "eve@x.com", Permissions: []api.PermissionGrant{
			{Database: "projects", Namespace: "team-alpha", Level: api.LevelRead},
		}},
		Token: "eve-token",
	}
	if _, _, err := svc.Update(context.Background(), other, "cmd-x", nil, updated); !fault.IsKind(err, api.ErrorKindAuthorization) {
		t.Fatalf("non-author without write must be denied, got %v", err)
	}
}

func TestDeleteSystemCommandIsValidationFault(t *testing.T) {
	t.Parallel()
	fake := newFakeStore()
	svc := newTestService(t, fake)

	stored := timerCommand("bootstrap")
	stored.ID = "cmd-sys"
	stored.IsSystem = true
	stored.CreatedBy = "bob@x.com"
	fake.put("user-data", "bob_x_com", "cmd-sys", stored)

	// Even the author with admin group cannot delete a system command.
	caller := Caller{
		Principal: api.Principal{Email: "bob@x.com", Groups: []string{api.AdminGroup}},
		Token:     "bob-token",
	}
	_, err := svc.Delete(context.Background(), caller, "cmd-sys", nil)
	if !fault.IsKind(err, api.ErrorKindValidation) {
		t.Fatalf("system delete must be validation, got %v", err)
	}
	if _, ok := fake.docs[docKey("user-data", "bob_x_com", "commands", "cmd-sys")]; !ok {
		t.Fatal("system command must survive the delete attempt")
	}
}

func TestDeleteRemovesRecord(t *testing.T) {
	t.Parallel()
	fake := newFakeStore()
	svc := newTestService(t, fake)

	stored := timerCommand("wait")
	stored.ID = "cmd-x"
	stored.CreatedBy = "bob@x.com"
	fake.put("user-data", "bob_x_com", "cmd-x", stored)

	location, err := svc.Delete(context.Background(), bobCaller(), "cmd-x", nil)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if location.Namespace != "bob_x_com" {
		t.Fatalf("unexpected location %v", location)
	}
	if _, ok := fake.docs[docKey("user-data", "bob_x_com", "commands", "cmd-x")]; ok {
		t.Fatal("record still present after delete")
	}
}

func TestListUnionsReachableCandidates(t *testing.T) {
	t.Parallel()
	fake := newFakeStore()
	svc := newTestService(t, fake)
	caller := bobCaller(api.PermissionGrant{Database: "projects", Namespace: "team-alpha", Level: api.LevelRead})

	own := timerCommand("mine")
	own.ID = "cmd-1"
	fake.put("user-data", "bob_x_com", "cmd-1", own)
	shared := timerCommand("ours")
	shared.ID = "cmd-2"
	fake.put("projects", "team-alpha", "cmd-2", shared)

	results, err := svc.List(context.Background(), caller, nil, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected union of both locations, got %d results", len(results))
	}
}

func TestListExpandsWildcardThroughStore(t *testing.T) {
	t.Parallel()
	fake := newFakeStore()
	svc := newTestService(t, fake)
	caller := bobCaller(api.PermissionGrant{Database: "projects", Level: api.LevelRead})

	first := timerCommand("a")
	first.ID = "cmd-a"
	fake.put("projects", "team-alpha", "cmd-a", first)
	second := timerCommand("b")
	second.ID = "cmd-b"
	fake.put("projects", "team-beta", "cmd-b", second)

	results, err := svc.List(context.Background(), caller, nil, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("wildcard grant must reach both namespaces, got %d results", len(results))
	}
}

func TestListSurfacesErrorOnlyWhenEmpty(t *testing.T) {
	t.Parallel()
	fake := newFakeStore()
	svc := newTestService(t, fake)
	caller := bobCaller(api.PermissionGrant{Database: "broken-db", Namespace: "ns", Level: api.LevelRead})
	fake.failAt("broken-db", "ns", fault.Store("store call failed", nil))

	// Own namespace still yields a record, so the failure is swallowed.
	own := timerCommand("mine")
	own.ID = "cmd-1"
	fake.put("user-data", "bob_x_com", "cmd-1", own)
	results, err := svc.List(context.Background(), caller, nil, 0)
	if err != nil || len(results) != 1 {
		t.Fatalf("expected partial results, got %v / %v", results, err)
	}

	// With nothing found anywhere, the last failure surfaces.
	empty := newFakeStore()
	empty.failAt("broken-db", "ns", fault.Store("store call failed", nil))
	svcEmpty := newTestService(t, empty)
	if _, err := svcEmpty.List(context.Background(), caller, nil, 0); !fault.IsKind(err, api.ErrorKindStore) {
		t.Fatalf("expected surfaced store fault, got %v", err)
	}
}

func TestSearchFiltersByNameAndTags(t *testing.T) {
	t.Parallel()
	fake := newFakeStore()
	svc := newTestService(t, fake)

	deploy := timerCommand("deploy-service")
	deploy.ID = "cmd-1"
	deploy.Tags = []string{"ops"}
	fake.put("user-data", "bob_x_com", "cmd-1", deploy)
	cleanup := timerCommand("cleanup")
	cleanup.ID = "cmd-2"
	fake.put("user-data", "bob_x_com", "cmd-2", cleanup)

	results, err := svc.Search(context.Background(), bobCaller(), nil, "deploy", []string{"ops"}, 0)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 1 || results[0].Command.ID != "cmd-1" {
		t.Fatalf("unexpected search results %+v", results)
	}
}

func TestTagCommandValidatesAndMutates(t *testing.T) {
	t.Parallel()
	fake := newFakeStore()
	svc := newTestService(t, fake)

	stored := timerCommand("wait")
	stored.ID = "cmd-x"
	stored.CreatedBy = "bob@x.com"
	fake.put("user-data", "bob_x_com", "cmd-x", stored)

	if _, _, err := svc.TagCommand(context.Background(), bobCaller(), "cmd-x", nil, "bad.tag"); !fault.IsKind(err, api.ErrorKindValidation) {
		t.Fatalf("invalid tag name must be rejected, got %v", err)
	}

	cmd, _, err := svc.TagCommand(context.Background(), bobCaller(), "cmd-x", nil, "ops")
	if err != nil {
		t.Fatalf("tag: %v", err)
	}
	if !cmd.HasTag("ops") {
		t.Fatalf("tag not applied: %+v", cmd)
	}

	cmd, _, err = svc.UntagCommand(context.Background(), bobCaller(), "cmd-x", nil, "ops")
	if err != nil {
		t.Fatalf("untag: %v", err)
	}
	if cmd.HasTag("ops") {
		t.Fatalf("tag not removed: %+v", cmd)
	}
}

func TestContainerOperationsRequireAdmin(t *testing.T) {
	t.Parallel()
	fake := newFakeStore()
	svc := newTestService(t, fake)

	if err := svc.CreateDatabase(context.Background(), bobCaller(), "projects"); !fault.IsKind(err, api.ErrorKindAuthorization) {
		t.Fatalf("create database without admin must be denied, got %v", err)
	}
	if err := svc.CreateDatabase(context.Background(), bobCaller(), "system"); !fault.IsKind(err, api.ErrorKindValidation) {
		t.Fatalf("reserved database name must be validation, got %v", err)
	}

	admin := bobCaller(api.PermissionGrant{Database: "projects", Level: api.LevelAdmin})
	if err := svc.CreateDatabase(context.Background(), admin, "projects"); err != nil {
		t.Fatalf("create database: %v", err)
	}
	if err := svc.CreateNamespace(context.Background(), admin, "projects", "team-alpha"); err != nil {
		t.Fatalf("create namespace: %v", err)
	}

	names, err := svc.ListNamespaces(context.Background(), admin, "projects")
	if err != nil {
		t.Fatalf("list namespaces: %v", err)
	}
	if len(names) != 1 || names[0] != "team-alpha" {
		t.Fatalf("unexpected namespaces %v", names)
	}

	// A single-namespace grant cannot enumerate the database.
	scoped := bobCaller(api.PermissionGrant{Database: "projects", Namespace: "team-alpha", Level: api.LevelAdmin})
	if _, err := svc.ListNamespaces(context.Background(), scoped, "projects"); !fault.IsKind(err, api.ErrorKindAuthorization) {
		t.Fatalf("scoped grant must not enumerate namespaces, got %v", err)
	}

	if err := svc.DropNamespace(context.Background(), admin, "projects", "team-alpha"); err != nil {
		t.Fatalf("drop namespace: %v", err)
	}
	if err := svc.DropDatabase(context.Background(), admin, "projects"); err != nil {
		t.Fatalf("drop database: %v", err)
	}
}

func TestCheckCapability(t *testing.T) {
	t.Parallel()
	svc := newTestService(t, newFakeStore())

	caller := Caller{Principal: api.Principal{Email: "bob@x.com", Groups: []string{"default"}}, Token: "t"}
	allowed, err := svc.CheckCapability(caller, "ai.use")
	if err != nil || !allowed {
		t.Fatalf("expected ai.use for default group, got %v / %v", allowed, err)
	}
	if _, err := svc.CheckCapability(caller, " "); !fault.IsKind(err, api.ErrorKindValidation) {
		t.Fatalf("blank capability must be validation, got %v", err)
	}
}

func TestStoreCredentialResolvedPerCaller(t *testing.T) {
	t.Parallel()
	fake := newFakeStore()
	svc := New(Config{
		Store: fake,
		Credentials: identity.StaticCredentials(identity.Credentials{
			ByToken: map[string]identity.StoreCredential{
				"bob-token": {URL: "https://store-b", Token: "bob-store-token"},
			},
			Fallback: identity.StoreCredential{URL: "https://store", Token: "shared"},
		}),
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	svc.now = func() time.Time { return time.Now().UTC() }

	if _, _, err := svc.Create(context.Background(), bobCaller(), nil, timerCommand("wait")); err != nil {
		t.Fatalf("create: %v", err)
	}
	if fake.lastCredential.Token != "bob-store-token" {
		t.Fatalf("expected per-token store credential, got %+v", fake.lastCredential)
	}
}
