// Package service orchestrates permission evaluation, location resolution,
// and store access for every gate operation. It is the single place where a
// negative policy evaluation becomes a typed fault.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pathwaylabs/commandgate/pkg/commandgate/api"
	dsapi "github.com/pathwaylabs/commandgate/pkg/docstore/api"
	"github.com/pathwaylabs/commandgate/servers/commandgate/internal/command"
	"github.com/pathwaylabs/commandgate/servers/commandgate/internal/fault"
	"github.com/pathwaylabs/commandgate/servers/commandgate/internal/identity"
	"github.com/pathwaylabs/commandgate/servers/commandgate/internal/names"
	"github.com/pathwaylabs/commandgate/servers/commandgate/internal/policy"
	"github.com/pathwaylabs/commandgate/servers/commandgate/internal/store"
)

// commandsEntity is the store entity segment every command record lives
// under: database.namespace.commands.<id>.
const commandsEntity = "commands"

// Caller is one authenticated request: the resolved principal plus the
// inbound bearer token the credentials snapshot keys store access by.
type Caller struct {
	Principal api.Principal
	Token     string
}

type Service struct {
	logger            *slog.Logger
	registry          *command.Registry
	guard             *names.Guard
	store             store.Client
	credentials       *identity.CredentialsService
	groupCapabilities map[string][]string

	now   func() time.Time
	newID func() string
}

type Config struct {
	Guard             *names.Guard
	Store             store.Client
	Credentials       *identity.CredentialsService
	GroupCapabilities map[string][]string
}

func New(cfg Config, logger *slog.Logger) *Service {
	guard := cfg.Guard
	if guard == nil {
		guard = names.NewDefaultGuard()
	}
	capabilities := cfg.GroupCapabilities
	if capabilities == nil {
		capabilities = policy.DefaultGroupCapabilities()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		logger:            logger,
		registry:          command.NewRegistry(),
		guard:             guard,
		store:             cfg.Store,
		credentials:       cfg.Credentials,
		groupCapabilities: capabilities,
		now:               func() time.Time { return time.Now().UTC() },
		newID:             uuid.NewString,
	}
}

// Create builds the command variant, resolves the write location (silently
// falling back to the caller's own namespace when the explicit pair is
// missing or not writable), stamps authorship, validates, and writes.
func (s *Service) Create(ctx context.Context, caller Caller, explicit *api.Location, cmd api.Command) (api.Command, api.Location, error) {
	location := policy.ResolveWriteLocation(caller.Principal, explicit)

	if cmd.ID == "" {
		cmd.ID = s.newID()
	}
	now := s.now()
	cmd.CreatedBy = caller.Principal.Email
	cmd.CreatedAt = now
	cmd.UpdatedAt = now

	if err := s.validateTags(cmd.Tags); err != nil {
		return api.Command{}, api.Location{}, err
	}
	if violations := s.registry.Validate(cmd); len(violations) > 0 {
		return api.Command{}, api.Location{}, fault.Validation(joinViolations(violations))
	}

	if err := s.writeCommand(ctx, caller, location, cmd); err != nil {
		return api.Command{}, api.Location{}, err
	}

	s.logOperation("create", caller, location, "id", cmd.ID, "command_type", string(cmd.CommandType))
	return cmd, location, nil
}

// Get returns the command and the location it was found in. With an explicit
// location the caller needs read access there; without one the candidate
// list is searched in order and the first hit wins.
func (s *Service) Get(ctx context.Context, caller Caller, id string, explicit *api.Location) (api.Command, api.Location, error) {
	if id == "" {
		return api.Command{}, api.Location{}, fault.Validation("command id is required")
	}

	if explicit != nil {
		if err := explicit.Validate(); err != nil {
			return api.Command{}, api.Location{}, fault.Validation(err.Error())
		}
		if !policy.CanAccess(caller.Principal, explicit.Database, explicit.Namespace, api.LevelRead) {
			return api.Command{}, api.Location{}, fault.Authorization("read access denied at " + explicit.String())
		}
		cmd, err := s.readCommand(ctx, caller, *explicit, id)
		if err != nil {
			return api.Command{}, api.Location{}, err
		}
		return cmd, *explicit, nil
	}

	cmd, location, err := s.findCommand(ctx, caller, id)
	if err != nil {
		return api.Command{}, api.Location{}, err
	}
	s.logOperation("get", caller, location, "id", id)
	return cmd, location, nil
}

// Update discovers the command's current location first, then requires
// either write access at that location or authorship. The two access paths
// are independent; either one suffices.
func (s *Service) Update(ctx context.Context, caller Caller, id string, explicit *api.Location, updated api.Command) (api.Command, api.Location, error) {
	current, location, err := s.Get(ctx, caller, id, explicit)
	if err != nil {
		return api.Command{}, api.Location{}, err
	}
	if !s.canMutate(caller.Principal, current, location) {
		return api.Command{}, api.Location{}, fault.Authorization("write access denied at " + location.String())
	}

	merged := updated
	merged.ID = current.ID
	merged.CreatedBy = current.CreatedBy
	merged.CreatedAt = current.CreatedAt
	merged.IsSystem = current.IsSystem
	merged.UpdatedAt = s.now()
	if merged.CommandType == "" {
		merged.CommandType = current.CommandType
	}

	if err := s.validateTags(merged.Tags); err != nil {
		return api.Command{}, api.Location{}, err
	}
	if violations := s.registry.Validate(merged); len(violations) > 0 {
		return api.Command{}, api.Location{}, fault.Validation(joinViolations(violations))
	}

	if err := s.writeCommand(ctx, caller, location, merged); err != nil {
		return api.Command{}, api.Location{}, err
	}
	s.logOperation("update", caller, location, "id", id)
	return merged, location, nil
}

// Delete refuses system commands for every caller; that is policy, not a
// permission gap, so it surfaces as a validation fault.
func (s *Service) Delete(ctx context.Context, caller Caller, id string, explicit *api.Location) (api.Location, error) {
	current, location, err := s.Get(ctx, caller, id, explicit)
	if err != nil {
		return api.Location{}, err
	}
	if current.IsSystem {
		return api.Location{}, fault.Validation("system commands cannot be deleted")
	}
	if !s.canMutate(caller.Principal, current, location) {
		return api.Location{}, fault.Authorization("write access denied at " + location.String())
	}

	_, err = s.execute(ctx, caller, dsapi.ExecuteRequest{
		Path: dsapi.Path{Database: location.Database, Namespace: location.Namespace, Entity: commandsEntity, ID: id},
		Verb: dsapi.VerbRemove,
	})
	if err != nil {
		return api.Location{}, err
	}
	s.logOperation("delete", caller, location, "id", id)
	return location, nil
}

// List returns the union of commands across every reachable candidate
// location, or just the explicit location when one is given.
func (s *Service) List(ctx context.Context, caller Caller, explicit *api.Location, limit uint32) ([]api.CommandMatch, error) {
	return s.collect(ctx, caller, explicit, dsapi.VerbList, dsapi.Filter{Limit: limit})
}

// Search behaves like List with a name/tag filter pushed down to the store.
func (s *Service) Search(ctx context.Context, caller Caller, explicit *api.Location, name string, tags []string, limit uint32) ([]api.CommandMatch, error) {
	return s.collect(ctx, caller, explicit, dsapi.VerbSearch, dsapi.Filter{Name: name, Tags: tags, Limit: limit})
}

// CheckCapability answers the permission-name dimension. It is independent
// of path grants by design.
func (s *Service) CheckCapability(caller Caller, capability string) (bool, error) {
	if strings.TrimSpace(capability) == "" {
		return false, fault.Validation("capability name is required")
	}
	return policy.HasCapability(caller.Principal, capability, s.groupCapabilities), nil
}

// canMutate is the OR of the two mutation access paths: path-level write
// permission at the discovered location, or authorship of the record.
func (s *Service) canMutate(principal api.Principal, cmd api.Command, location api.Location) bool {
	if cmd.CreatedBy != "" && cmd.CreatedBy == principal.Email {
		return true
	}
	return policy.CanAccess(principal, location.Database, location.Namespace, api.LevelWrite)
}

func (s *Service) validateTags(tags []string) error {
	for _, tag := range tags {
		if err := s.guard.Validate(names.KindTag, tag); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) writeCommand(ctx context.Context, caller Caller, location api.Location, cmd api.Command) error {
	payload, err := json.Marshal(cmd)
	if err != nil {
		return fault.Wrap(api.ErrorKindValidation, "encode command", err)
	}
	_, err = s.execute(ctx, caller, dsapi.ExecuteRequest{
		Path:    dsapi.Path{Database: location.Database, Namespace: location.Namespace, Entity: commandsEntity, ID: cmd.ID},
		Verb:    dsapi.VerbSet,
		Payload: payload,
	})
	return err
}

func (s *Service) readCommand(ctx context.Context, caller Caller, location api.Location, id string) (api.Command, error) {
	response, err := s.execute(ctx, caller, dsapi.ExecuteRequest{
		Path: dsapi.Path{Database: location.Database, Namespace: location.Namespace, Entity: commandsEntity, ID: id},
		Verb: dsapi.VerbGet,
	})
	if err != nil {
		return api.Command{}, err
	}
	return s.decodeCommand(response.Document)
}

func (s *Service) execute(ctx context.Context, caller Caller, req dsapi.ExecuteRequest) (*dsapi.ExecuteResponse, error) {
	credential, err := s.credentials.Lookup(ctx, caller.Token)
	if err != nil {
		return nil, err
	}
	return s.store.Execute(ctx, credential, req)
}

func (s *Service) logOperation(operation string, caller Caller, location api.Location, extra ...any) {
	attrs := []any{
		"operation", operation,
		"actor", caller.Principal.Email,
		"database", location.Database,
		"namespace", location.Namespace,
	}
	attrs = append(attrs, extra...)
	s.logger.Info("commandgate operation", attrs...)
}

// decodeCommand builds the command variant named by the stored document's
// discriminator. Shared databases hold documents written by newer deployments;
// an unknown type keeps its base fields instead of failing the read.
func (s *Service) decodeCommand(document json.RawMessage) (api.Command, error) {
	if len(document) == 0 {
		return api.Command{}, fault.NotFound("store returned no document")
	}
	var discriminator struct {
		CommandType api.CommandType `json:"commandType"`
	}
	if err := json.Unmarshal(document, &discriminator); err != nil {
		return api.Command{}, fault.Store("decode store document", err)
	}
	cmd, err := s.registry.Construct(discriminator.CommandType, document)
	if err != nil {
		return api.Command{}, fault.Store("decode store document", err)
	}
	return cmd, nil
}

func joinViolations(violations []command.Violation) string {
	parts := make([]string, 0, len(violations))
	for _, violation := range violations {
		parts = append(parts, violation.String())
	}
	return fmt.Sprintf("invalid command: %s", strings.Join(parts, "; "))
}
