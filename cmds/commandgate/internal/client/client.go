// Package client wraps the gate's connect procedures for the CLI.
package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"connectrpc.com/connect"

	"github.com/pathwaylabs/commandgate/pkg/commandgate/api"
)

type Client struct {
	token string

	createClient     *connect.Client[api.CreateCommandRequest, api.CreateCommandResponse]
	getClient        *connect.Client[api.GetCommandRequest, api.GetCommandResponse]
	updateClient     *connect.Client[api.UpdateCommandRequest, api.UpdateCommandResponse]
	deleteClient     *connect.Client[api.DeleteCommandRequest, api.DeleteCommandResponse]
	listClient       *connect.Client[api.ListCommandsRequest, api.ListCommandsResponse]
	searchClient     *connect.Client[api.SearchCommandsRequest, api.SearchCommandsResponse]
	tagClient        *connect.Client[api.TagCommandRequest, api.TagCommandResponse]
	untagClient      *connect.Client[api.UntagCommandRequest, api.UntagCommandResponse]
	namespacesClient *connect.Client[api.ListNamespacesRequest, api.ListNamespacesResponse]
	capabilityClient *connect.Client[api.CheckCapabilityRequest, api.CheckCapabilityResponse]
}

func New(baseURL string, token string) (*Client, error) {
	trimmedURL := strings.TrimSpace(baseURL)
	if trimmedURL == "" {
		return nil, errors.New("server URL is required")
	}
	if strings.TrimSpace(token) == "" {
		return nil, errors.New("token is required")
	}
	if !strings.Contains(trimmedURL, "://") {
		trimmedURL = "http://" + trimmedURL
	}

	codec := api.JSONCodec{}
	httpClient := &http.Client{Timeout: 30 * time.Second}

	return &Client{
		token: token,
		createClient: connect.NewClient[api.CreateCommandRequest, api.CreateCommandResponse](
			httpClient, trimmedURL+api.ProcedureCreateCommand, connect.WithCodec(codec)),
		getClient: connect.NewClient[api.GetCommandRequest, api.GetCommandResponse](
			httpClient, trimmedURL+api.ProcedureGetCommand, connect.WithCodec(codec)),
		updateClient: connect.NewClient[api.UpdateCommandRequest, api.UpdateCommandResponse](
			httpClient, trimmedURL+api.ProcedureUpdateCommand, connect.WithCodec(codec)),
		deleteClient: connect.NewClient[api.DeleteCommandRequest, api.DeleteCommandResponse](
			httpClient, trimmedURL+api.ProcedureDeleteCommand, connect.WithCodec(codec)),
		listClient: connect.NewClient[api.ListCommandsRequest, api.ListCommandsResponse](
			httpClient, trimmedURL+api.ProcedureListCommands, connect.WithCodec(codec)),
		searchClient: connect.NewClient[api.SearchCommandsRequest, api.SearchCommandsResponse](
			httpClient, trimmedURL+api.ProcedureSearchCommands, connect.WithCodec(codec)),
		tagClient: connect.NewClient[api.TagCommandRequest, api.TagCommandResponse](
			httpClient, trimmedURL+api.ProcedureTagCommand, connect.WithCodec(codec)),
		untagClient: connect.NewClient[api.UntagCommandRequest, api.UntagCommandResponse](
			httpClient, trimmedURL+api.ProcedureUntagCommand, connect.WithCodec(codec)),
		namespacesClient: connect.NewClient[api.ListNamespacesRequest, api.ListNamespacesResponse](
			httpClient, trimmedURL+api.ProcedureListNamespaces, connect.WithCodec(codec)),
		capabilityClient: connect.NewClient[api.CheckCapabilityRequest, api.CheckCapabilityResponse](
			httpClient, trimmedURL+api.ProcedureCheckCapability, connect.WithCodec(codec)),
	}, nil
}

func (c *Client) CreateCommand(ctx context.Context, request api.CreateCommandRequest) (*api.CreateCommandResponse, error) {
	response, err := c.createClient.CallUnary(ctx, newRequest(c.token, &request))
	if err != nil {
		return nil, fmt.Errorf("create command: %w", err)
	}
	return response.Msg, nil
}

func (c *Client) GetCommand(ctx context.Context, request api.GetCommandRequest) (*api.GetCommandResponse, error) {
	response, err := c.getClient.CallUnary(ctx, newRequest(c.token, &request))
	if err != nil {
		return nil, fmt.Errorf("get command: %w", err)
	}
	return response.Msg, nil
}

func (c *Client) UpdateCommand(ctx context.Context, request api.UpdateCommandRequest) (*api.UpdateCommandResponse, error) {
	response, err := c.updateClient.CallUnary(ctx, newRequest(c.token, &request))
	if err != nil {
		return nil, fmt.Errorf("update command: %w", err)
	}
	return response.Msg, nil
}

func (c *Client) DeleteCommand(ctx context.Context, request api.DeleteCommandRequest) (*api.DeleteCommandResponse, error) {
	response, err := c.deleteClient.CallUnary(ctx, newRequest(c.token, &request))
	if err != nil {
		return nil, fmt.Errorf("delete command: %w", err)
	}
	return response.Msg, nil
}

func (c *Client) ListCommands(ctx context.Context, request api.ListCommandsRequest) (*api.ListCommandsResponse, error) {
	response, err := c.listClient.CallUnary(ctx, newRequest(c.token, &request))
	if err != nil {
		return nil, fmt.Errorf("list commands: %w", err)
	}
	return response.Msg, nil
}

func (c *Client) SearchCommands(ctx context.Context, request api.SearchCommandsRequest) (*api.SearchCommandsResponse, error) {
	response, err := c.searchClient.CallUnary(ctx, newRequest(c.token, &request))
	if err != nil {
		return nil, fmt.Errorf("search commands: %w", err)
	}
	return response.Msg, nil
}

func (c *Client) TagCommand(ctx context.Context, request api.TagCommandRequest) (*api.TagCommandResponse, error) {
	response, err := c.tagClient.CallUnary(ctx, newRequest(c.token, &request))
	if err != nil {
		return nil, fmt.Errorf("tag command: %w", err)
	}
	return response.Msg, nil
}

func (c *Client) UntagCommand(ctx context.Context, request api.UntagCommandRequest) (*api.UntagCommandResponse, error) {
	response, err := c.untagClient.CallUnary(ctx, newRequest(c.token, &request))
	if err != nil {
		return nil, fmt.Errorf("untag command: %w", err)
	}
	return response.Msg, nil
}

func (c *Client) ListNamespaces(ctx context.Context, request api.ListNamespacesRequest) (*api.ListNamespacesResponse, error) {
	response, err := c.namespacesClient.CallUnary(ctx, newRequest(c.token, &request))
	if err != nil {
		return nil, fmt.Errorf("list namespaces: %w", err)
	}
	return response.Msg, nil
}

func (c *Client) CheckCapability(ctx context.Context, request api.CheckCapabilityRequest) (*api.CheckCapabilityResponse, error) {
	response, err := c.capabilityClient.CallUnary(ctx, newRequest(c.token, &request))
	if err != nil {
		return nil, fmt.Errorf("check capability: %w", err)
	}
	return response.Msg, nil
}

func newRequest[T any](token string, message *T) *connect.Request[T] {
	request := connect.NewRequest(message)
	request.Header().Set("Authorization", "Bearer "+token)
	request.Header().Set("X-Request-Id", requestID())
	return request
}

func requestID() string {
	return fmt.Sprintf("req-%d", time.Now().UTC().UnixNano())
}
