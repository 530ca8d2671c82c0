// Package server exposes the gate over connect unary handlers. Handlers
// authenticate the caller, delegate to the service layer, and translate
// faults into wire errors; no policy decisions live here.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"connectrpc.com/connect"

	"github.com/pathwaylabs/commandgate/pkg/commandgate/api"
	"github.com/pathwaylabs/commandgate/servers/commandgate/internal/fault"
	"github.com/pathwaylabs/commandgate/servers/commandgate/internal/identity"
	"github.com/pathwaylabs/commandgate/servers/commandgate/internal/service"
)

const errorKindHeader = "Commandgate-Error-Kind"

type Server struct {
	logger   *slog.Logger
	identity identity.Client
	service  *service.Service
}

func New(identityClient identity.Client, svc *service.Service, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(os.Stdout, nil))
	}
	return &Server{logger: logger, identity: identityClient, service: svc}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	codec := api.JSONCodec{}

	mux.Handle(api.ProcedureCreateCommand, connect.NewUnaryHandler(api.ProcedureCreateCommand, s.handleCreateCommand, connect.WithCodec(codec)))
	mux.Handle(api.ProcedureGetCommand, connect.NewUnaryHandler(api.ProcedureGetCommand, s.handleGetCommand, connect.WithCodec(codec)))
	mux.Handle(api.ProcedureUpdateCommand, connect.NewUnaryHandler(api.ProcedureUpdateCommand, s.handleUpdateCommand, connect.WithCodec(codec)))
	mux.Handle(api.ProcedureDeleteCommand, connect.NewUnaryHandler(api.ProcedureDeleteCommand, s.handleDeleteCommand, connect.WithCodec(codec)))
	mux.Handle(api.ProcedureListCommands, connect.NewUnaryHandler(api.ProcedureListCommands, s.handleListCommands, connect.WithCodec(codec)))
	mux.Handle(api.ProcedureSearchCommands, connect.NewUnaryHandler(api.ProcedureSearchCommands, s.handleSearchCommands, connect.WithCodec(codec)))
	mux.Handle(api.ProcedureCreateDatabase, connect.NewUnaryHandler(api.ProcedureCreateDatabase, s.handleCreateDatabase, connect.WithCodec(codec)))
	mux.Handle(api.ProcedureDropDatabase, connect.NewUnaryHandler(api.ProcedureDropDatabase, s.handleDropDatabase, connect.WithCodec(codec)))
	mux.Handle(api.ProcedureCreateNamespace, connect.NewUnaryHandler(api.ProcedureCreateNamespace, s.handleCreateNamespace, connect.WithCodec(codec)))
	mux.Handle(api.ProcedureDropNamespace, connect.NewUnaryHandler(api.ProcedureDropNamespace, s.handleDropNamespace, connect.WithCodec(codec)))
	mux.Handle(api.ProcedureListNamespaces, connect.NewUnaryHandler(api.ProcedureListNamespaces, s.handleListNamespaces, connect.WithCodec(codec)))
	mux.Handle(api.ProcedureTagCommand, connect.NewUnaryHandler(api.ProcedureTagCommand, s.handleTagCommand, connect.WithCodec(codec)))
	mux.Handle(api.ProcedureUntagCommand, connect.NewUnaryHandler(api.ProcedureUntagCommand, s.handleUntagCommand, connect.WithCodec(codec)))
	mux.Handle(api.ProcedureCheckCapability, connect.NewUnaryHandler(api.ProcedureCheckCapability, s.handleCheckCapability, connect.WithCodec(codec)))
	return mux
}

// authenticate resolves the bearer token into a caller. The raw token is
// kept on the caller because store credentials key by it.
func (s *Server) authenticate(ctx context.Context, headers http.Header) (service.Caller, error) {
	authorization := strings.TrimSpace(headers.Get("Authorization"))
	if authorization == "" {
		return service.Caller{}, fault.Authentication("missing authorization header")
	}
	scheme, token, found := strings.Cut(authorization, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return service.Caller{}, fault.Authentication("authorization header must be a bearer token")
	}
	token = strings.TrimSpace(token)

	principal, err := s.identity.ValidateToken(ctx, token)
	if err != nil {
		return service.Caller{}, err
	}
	return service.Caller{Principal: principal, Token: token}, nil
}

// wireError folds an internal fault into the connect error the client sees.
// The kind travels in response metadata so clients get the stable
// {error, message, kind} shape without parsing status codes.
func (s *Server) wireError(operation string, caller service.Caller, err error) error {
	body := fault.Body(err)
	s.logger.Warn("commandgate operation failed",
		"operation", operation,
		"actor", caller.Principal.Email,
		"kind", string(body.Kind),
		"error", err)

	connectErr := connect.NewError(fault.ConnectCode(err), fault.New(body.Kind, body.Message))
	connectErr.Meta().Set(errorKindHeader, string(body.Kind))
	return connectErr
}

func (s *Server) handleCreateCommand(ctx context.Context, req *connect.Request[api.CreateCommandRequest]) (*connect.Response[api.CreateCommandResponse], error) {
	caller, err := s.authenticate(ctx, req.Header())
	if err != nil {
		return nil, s.wireError("create", caller, err)
	}
	cmd, location, err := s.service.Create(ctx, caller, req.Msg.Location, req.Msg.Command)
	if err != nil {
		return nil, s.wireError("create", caller, err)
	}
	return connect.NewResponse(&api.CreateCommandResponse{Command: cmd, Location: location}), nil
}

func (s *Server) handleGetCommand(ctx context.Context, req *connect.Request[api.GetCommandRequest]) (*connect.Response[api.GetCommandResponse], error) {
	caller, err := s.authenticate(ctx, req.Header())
	if err != nil {
		return nil, s.wireError("get", caller, err)
	}
	cmd, location, err := s.service.Get(ctx, caller, req.Msg.ID, req.Msg.Location)
	if err != nil {
		return nil, s.wireError("get", caller, err)
	}
	return connect.NewResponse(&api.GetCommandResponse{Command: cmd, Location: location}), nil
}

func (s *Server) handleUpdateCommand(ctx context.Context, req *connect.Request[api.UpdateCommandRequest]) (*connect.Response[api.UpdateCommandResponse], error) {
	caller, err := s.authenticate(ctx, req.Header())
	if err != nil {
		return nil, s.wireError("update", caller, err)
	}
	cmd, location, err := s.service.Update(ctx, caller, req.Msg.ID, req.Msg.Location, req.Msg.Command)
	if err != nil {
		return nil, s.wireError("update", caller, err)
	}
	return connect.NewResponse(&api.UpdateCommandResponse{Command: cmd, Location: location}), nil
}

func (s *Server) handleDeleteCommand(ctx context.Context, req *connect.Request[api.DeleteCommandRequest]) (*connect.Response[api.DeleteCommandResponse], error) {
	caller, err := s.authenticate(ctx, req.Header())
	if err != nil {
		return nil, s.wireError("delete", caller, err)
	}
	location, err := s.service.Delete(ctx, caller, req.Msg.ID, req.Msg.Location)
	if err != nil {
		return nil, s.wireError("delete", caller, err)
	}
	return connect.NewResponse(&api.DeleteCommandResponse{Location: location}), nil
}

func (s *Server) handleListCommands(ctx context.Context, req *connect.Request[api.ListCommandsRequest]) (*connect.Response[api.ListCommandsResponse], error) {
	caller, err := s.authenticate(ctx, req.Header())
	if err != nil {
		return nil, s.wireError("list", caller, err)
	}
	results, err := s.service.List(ctx, caller, req.Msg.Location, req.Msg.Limit)
	if err != nil {
		return nil, s.wireError("list", caller, err)
	}
	return connect.NewResponse(&api.ListCommandsResponse{Results: results}), nil
}

func (s *Server) handleSearchCommands(ctx context.Context, req *connect.Request[api.SearchCommandsRequest]) (*connect.Response[api.SearchCommandsResponse], error) {
	caller, err := s.authenticate(ctx, req.Header())
	if err != nil {
		return nil, s.wireError("search", caller, err)
	}
	results, err := s.service.Search(ctx, caller, req.Msg.Location, req.Msg.Name, req.Msg.Tags, req.Msg.Limit)
	if err != nil {
		return nil, s.wireError("search", caller, err)
	}
	return connect.NewResponse(&api.SearchCommandsResponse{Results: results}), nil
}

func (s *Server) handleCreateDatabase(ctx context.Context, req *connect.Request[api.CreateDatabaseRequest]) (*connect.Response[api.CreateDatabaseResponse], error) {
	caller, err := s.authenticate(ctx, req.Header())
	if err != nil {
		return nil, s.wireError("create_database", caller, err)
	}
	if err := s.service.CreateDatabase(ctx, caller, req.Msg.Database); err != nil {
		return nil, s.wireError("create_database", caller, err)
	}
	return connect.NewResponse(&api.CreateDatabaseResponse{Database: req.Msg.Database}), nil
}

func (s *Server) handleDropDatabase(ctx context.Context, req *connect.Request[api.DropDatabaseRequest]) (*connect.Response[api.DropDatabaseResponse], error) {
	caller, err := s.authenticate(ctx, req.Header())
	if err != nil {
		return nil, s.wireError("drop_database", caller, err)
	}
	if err := s.service.DropDatabase(ctx, caller, req.Msg.Database); err != nil {
		return nil, s.wireError("drop_database", caller, err)
	}
	return connect.NewResponse(&api.DropDatabaseResponse{Database: req.Msg.Database}), nil
}

func (s *Server) handleCreateNamespace(ctx context.Context, req *connect.Request[api.CreateNamespaceRequest]) (*connect.Response[api.CreateNamespaceResponse], error) {
	caller, err := s.authenticate(ctx, req.Header())
	if err != nil {
		return nil, s.wireError("create_namespace", caller, err)
	}
	if err := s.service.CreateNamespace(ctx, caller, req.Msg.Database, req.Msg.Namespace); err != nil {
		return nil, s.wireError("create_namespace", caller, err)
	}
	return connect.NewResponse(&api.CreateNamespaceResponse{Location: api.Location{Database: req.Msg.Database, Namespace: req.Msg.Namespace}}), nil
}

func (s *Server) handleDropNamespace(ctx context.Context, req *connect.Request[api.DropNamespaceRequest]) (*connect.Response[api.DropNamespaceResponse], error) {
	caller, err := s.authenticate(ctx, req.Header())
	if err != nil {
		return nil, s.wireError("drop_namespace", caller, err)
	}
	if err := s.service.DropNamespace(ctx, caller, req.Msg.Database, req.Msg.Namespace); err != nil {
		return nil, s.wireError("drop_namespace", caller, err)
	}
	return connect.NewResponse(&api.DropNamespaceResponse{Location: api.Location{Database: req.Msg.Database, Namespace: req.Msg.Namespace}}), nil
}

func (s *Server) handleListNamespaces(ctx context.Context, req *connect.Request[api.ListNamespacesRequest]) (*connect.Response[api.ListNamespacesResponse], error) {
	caller, err := s.authenticate(ctx, req.Header())
	if err != nil {
		return nil, s.wireError("list_namespaces", caller, err)
	}
	namespaces, err := s.service.ListNamespaces(ctx, caller, req.Msg.Database)
	if err != nil {
		return nil, s.wireError("list_namespaces", caller, err)
	}
	return connect.NewResponse(&api.ListNamespacesResponse{Database: req.Msg.Database, Namespaces: namespaces}), nil
}

func (s *Server) handleTagCommand(ctx context.Context, req *connect.Request[api.TagCommandRequest]) (*connect.Response[api.TagCommandResponse], error) {
	caller, err := s.authenticate(ctx, req.Header())
	if err != nil {
		return nil, s.wireError("tag", caller, err)
	}
	cmd, location, err := s.service.TagCommand(ctx, caller, req.Msg.ID, req.Msg.Location, req.Msg.Tag)
	if err != nil {
		return nil, s.wireError("tag", caller, err)
	}
	return connect.NewResponse(&api.TagCommandResponse{Command: cmd, Location: location}), nil
}

func (s *Server) handleUntagCommand(ctx context.Context, req *connect.Request[api.UntagCommandRequest]) (*connect.Response[api.UntagCommandResponse], error) {
	caller, err := s.authenticate(ctx, req.Header())
	if err != nil {
		return nil, s.wireError("untag", caller, err)
	}
	cmd, location, err := s.service.UntagCommand(ctx, caller, req.Msg.ID, req.Msg.Location, req.Msg.Tag)
	if err != nil {
		return nil, s.wireError("untag", caller, err)
	}
	return connect.NewResponse(&api.UntagCommandResponse{Command: cmd, Location: location}), nil
}

func (s *Server) handleCheckCapability(ctx context.Context, req *connect.Request[api.CheckCapabilityRequest]) (*connect.Response[api.CheckCapabilityResponse], error) {
	caller, err := s.authenticate(ctx, req.Header())
	if err != nil {
		return nil, s.wireError("check_capability", caller, err)
	}
	allowed, err := s.service.CheckCapability(caller, req.Msg.Capability)
	if err != nil {
		return nil, s.wireError("check_capability", caller, err)
	}
	return connect.NewResponse(&api.CheckCapabilityResponse{Capability: req.Msg.Capability, Allowed: allowed}), nil
}
