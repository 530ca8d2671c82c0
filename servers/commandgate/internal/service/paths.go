package service

import (
	"context"
	"encoding/json"

	"github.com/pathwaylabs/commandgate/pkg/commandgate/api"
	dsapi "github.com/pathwaylabs/commandgate/pkg/docstore/api"
	"github.com/pathwaylabs/commandgate/servers/commandgate/internal/fault"
	"github.com/pathwaylabs/commandgate/servers/commandgate/internal/names"
	"github.com/pathwaylabs/commandgate/servers/commandgate/internal/policy"
)

// Container operations need admin level on the affected path. Creating or
// dropping a database touches every namespace inside it, so the grant must
// cover the whole database.

func (s *Service) CreateDatabase(ctx context.Context, caller Caller, database string) error {
	if err := s.guard.Validate(names.KindDatabase, database); err != nil {
		return err
	}
	if !policy.CanAccess(caller.Principal, database, api.WildcardNamespace, api.LevelAdmin) {
		return fault.Authorization("admin access denied for database " + database)
	}
	_, err := s.execute(ctx, caller, dsapi.ExecuteRequest{
		Path: dsapi.Path{Database: database},
		Verb: dsapi.VerbSet,
	})
	if err != nil {
		return err
	}
	s.logOperation("create_database", caller, api.Location{Database: database})
	return nil
}

func (s *Service) DropDatabase(ctx context.Context, caller Caller, database string) error {
	if err := s.guard.Validate(names.KindDatabase, database); err != nil {
		return err
	}
	if !policy.CanAccess(caller.Principal, database, api.WildcardNamespace, api.LevelAdmin) {
		return fault.Authorization("admin access denied for database " + database)
	}
	_, err := s.execute(ctx, caller, dsapi.ExecuteRequest{
		Path: dsapi.Path{Database: database},
		Verb: dsapi.VerbDrop,
	})
	if err != nil {
		return err
	}
	s.logOperation("drop_database", caller, api.Location{Database: database})
	return nil
}

func (s *Service) CreateNamespace(ctx context.Context, caller Caller, database, namespace string) error {
	if err := s.guard.Validate(names.KindDatabase, database); err != nil {
		return err
	}
	if err := s.guard.Validate(names.KindNamespace, namespace); err != nil {
		return err
	}
	if !policy.CanAccess(caller.Principal, database, namespace, api.LevelAdmin) {
		return fault.Authorization("admin access denied at " + database + "." + namespace)
	}
	_, err := s.execute(ctx, caller, dsapi.ExecuteRequest{
		Path: dsapi.Path{Database: database, Namespace: namespace},
		Verb: dsapi.VerbSet,
	})
	if err != nil {
		return err
	}
	s.logOperation("create_namespace", caller, api.Location{Database: database, Namespace: namespace})
	return nil
}

func (s *Service) DropNamespace(ctx context.Context, caller Caller, database, namespace string) error {
	if err := s.guard.Validate(names.KindDatabase, database); err != nil {
		return err
	}
	if err := s.guard.Validate(names.KindNamespace, namespace); err != nil {
		return err
	}
	if !policy.CanAccess(caller.Principal, database, namespace, api.LevelAdmin) {
		return fault.Authorization("admin access denied at " + database + "." + namespace)
	}
	_, err := s.execute(ctx, caller, dsapi.ExecuteRequest{
		Path: dsapi.Path{Database: database, Namespace: namespace},
		Verb: dsapi.VerbDrop,
	})
	if err != nil {
		return err
	}
	s.logOperation("drop_namespace", caller, api.Location{Database: database, Namespace: namespace})
	return nil
}

// ListNamespaces enumerates a database's namespaces. Enumeration reveals the
// database's shape, so it needs a grant that spans the database, not a
// single-namespace grant.
func (s *Service) ListNamespaces(ctx context.Context, caller Caller, database string) ([]string, error) {
	if err := s.guard.Validate(names.KindDatabase, database); err != nil {
		return nil, err
	}
	if !policy.CanAccess(caller.Principal, database, api.WildcardNamespace, api.LevelRead) {
		return nil, fault.Authorization("read access denied for database " + database)
	}
	return s.listNamespaces(ctx, caller, database)
}

// TagCommand attaches a tag to an existing command. Tagging mutates the
// record, so it follows the same write-or-author rule as Update.
func (s *Service) TagCommand(ctx context.Context, caller Caller, id string, explicit *api.Location, tag string) (api.Command, api.Location, error) {
	return s.retag(ctx, caller, id, explicit, tag, dsapi.VerbTag, "tag_command")
}

func (s *Service) UntagCommand(ctx context.Context, caller Caller, id string, explicit *api.Location, tag string) (api.Command, api.Location, error) {
	return s.retag(ctx, caller, id, explicit, tag, dsapi.VerbUntag, "untag_command")
}

func (s *Service) retag(ctx context.Context, caller Caller, id string, explicit *api.Location, tag string, verb dsapi.Verb, operation string) (api.Command, api.Location, error) {
	if err := s.guard.Validate(names.KindTag, tag); err != nil {
		return api.Command{}, api.Location{}, err
	}
	current, location, err := s.Get(ctx, caller, id, explicit)
	if err != nil {
		return api.Command{}, api.Location{}, err
	}
	if !s.canMutate(caller.Principal, current, location) {
		return api.Command{}, api.Location{}, fault.Authorization("write access denied at " + location.String())
	}

	payload, err := json.Marshal(struct {
		Tag string `json:"tag"`
	}{Tag: tag})
	if err != nil {
		return api.Command{}, api.Location{}, fault.Store("encode tag payload", err)
	}
	response, err := s.execute(ctx, caller, dsapi.ExecuteRequest{
		Path:    dsapi.Path{Database: location.Database, Namespace: location.Namespace, Entity: commandsEntity, ID: id},
		Verb:    verb,
		Payload: payload,
	})
	if err != nil {
		return api.Command{}, api.Location{}, err
	}

	updated, err := s.decodeCommand(response.Document)
	if err != nil {
		// Stores that do not echo the document force a second read.
		updated, err = s.readCommand(ctx, caller, location, id)
		if err != nil {
			return api.Command{}, api.Location{}, err
		}
	}
	s.logOperation(operation, caller, location, "id", id, "tag", tag)
	return updated, location, nil
}
