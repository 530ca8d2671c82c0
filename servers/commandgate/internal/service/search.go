package service

import (
	"context"
	"fmt"

	"github.com/pathwaylabs/commandgate/pkg/commandgate/api"
	dsapi "github.com/pathwaylabs/commandgate/pkg/docstore/api"
	"github.com/pathwaylabs/commandgate/servers/commandgate/internal/fault"
	"github.com/pathwaylabs/commandgate/servers/commandgate/internal/policy"
)

// findCommand walks the caller's candidate locations in order and returns
// the first hit. A failing candidate is skipped, not fatal; a later location
// may still hold the record. A plain miss stays a plain not-found, so a miss
// in a foreign tenant is indistinguishable from a miss anywhere else, but
// when no candidate hits and at least one failed for another reason the last
// such failure surfaces instead.
func (s *Service) findCommand(ctx context.Context, caller Caller, id string) (api.Command, api.Location, error) {
	locations, err := s.expandCandidates(ctx, caller)
	if err != nil {
		return api.Command{}, api.Location{}, err
	}

	var lastErr error
	for _, location := range locations {
		cmd, err := s.readCommand(ctx, caller, location, id)
		if err != nil {
			if !fault.IsKind(err, api.ErrorKindNotFound) {
				lastErr = err
				s.logger.Warn("candidate location skipped",
					"database", location.Database,
					"namespace", location.Namespace,
					"error", err)
			}
			continue
		}
		return cmd, location, nil
	}
	if lastErr != nil {
		return api.Command{}, api.Location{}, lastErr
	}
	return api.Command{}, api.Location{}, fault.NotFound(fmt.Sprintf("command %q not found", id))
}

// collect runs a list or search across the explicit location, or across
// every candidate the caller can reach. Per-location failures are swallowed
// unless they leave the result empty.
func (s *Service) collect(ctx context.Context, caller Caller, explicit *api.Location, verb dsapi.Verb, filter dsapi.Filter) ([]api.CommandMatch, error) {
	if explicit != nil {
		if err := explicit.Validate(); err != nil {
			return nil, fault.Validation(err.Error())
		}
		if !policy.CanAccess(caller.Principal, explicit.Database, explicit.Namespace, api.LevelRead) {
			return nil, fault.Authorization("read access denied at " + explicit.String())
		}
		return s.collectAt(ctx, caller, *explicit, verb, filter)
	}

	locations, err := s.expandCandidates(ctx, caller)
	if err != nil {
		return nil, err
	}

	matches := []api.CommandMatch{}
	var lastErr error
	for _, location := range locations {
		found, err := s.collectAt(ctx, caller, location, verb, filter)
		if err != nil {
			if !fault.IsKind(err, api.ErrorKindNotFound) {
				lastErr = err
				s.logger.Warn("candidate location skipped",
					"database", location.Database,
					"namespace", location.Namespace,
					"error", err)
			}
			continue
		}
		matches = append(matches, found...)
	}
	if len(matches) == 0 && lastErr != nil {
		return nil, lastErr
	}
	return matches, nil
}

func (s *Service) collectAt(ctx context.Context, caller Caller, location api.Location, verb dsapi.Verb, filter dsapi.Filter) ([]api.CommandMatch, error) {
	response, err := s.execute(ctx, caller, dsapi.ExecuteRequest{
		Path:   dsapi.Path{Database: location.Database, Namespace: location.Namespace, Entity: commandsEntity},
		Verb:   verb,
		Filter: &filter,
	})
	if err != nil {
		return nil, err
	}

	matches := make([]api.CommandMatch, 0, len(response.Documents))
	for _, document := range response.Documents {
		cmd, err := s.decodeCommand(document)
		if err != nil {
			return nil, err
		}
		matches = append(matches, api.CommandMatch{Command: cmd, Location: location})
	}
	return matches, nil
}

// expandCandidates turns the principal's ordered candidate list into
// concrete locations. A wildcard namespace expands to whatever namespaces
// the store reports for that database at this moment; a database we cannot
// enumerate contributes nothing.
func (s *Service) expandCandidates(ctx context.Context, caller Caller) ([]api.Location, error) {
	candidates := policy.CandidateLocations(caller.Principal)

	locations := make([]api.Location, 0, len(candidates))
	seen := map[string]bool{}
	for _, candidate := range candidates {
		if candidate.Namespace != api.WildcardNamespace {
			key := candidate.String()
			if !seen[key] {
				seen[key] = true
				locations = append(locations, candidate)
			}
			continue
		}

		namespaces, err := s.listNamespaces(ctx, caller, candidate.Database)
		if err != nil {
			s.logger.Warn("wildcard expansion skipped",
				"database", candidate.Database,
				"error", err)
			continue
		}
		for _, namespace := range namespaces {
			expanded := api.Location{Database: candidate.Database, Namespace: namespace}
			key := expanded.String()
			if !seen[key] {
				seen[key] = true
				locations = append(locations, expanded)
			}
		}
	}
	return locations, nil
}

func (s *Service) listNamespaces(ctx context.Context, caller Caller, database string) ([]string, error) {
	response, err := s.execute(ctx, caller, dsapi.ExecuteRequest{
		Path: dsapi.Path{Database: database},
		Verb: dsapi.VerbList,
	})
	if err != nil {
		return nil, err
	}
	return response.Names, nil
}
