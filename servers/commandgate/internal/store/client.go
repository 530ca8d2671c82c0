// Package store is the gate's client for the remote document store. The
// store is consumed as one opaque path-addressed operation; this package only
// moves requests across the wire and classifies failures.
package store

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"connectrpc.com/connect"

	"github.com/pathwaylabs/commandgate/pkg/commandgate/api"
	dsapi "github.com/pathwaylabs/commandgate/pkg/docstore/api"
	"github.com/pathwaylabs/commandgate/servers/commandgate/internal/fault"
	"github.com/pathwaylabs/commandgate/servers/commandgate/internal/identity"
)

// Client executes one store operation with the store-side credential resolved
// for the calling principal. The credential's URL may differ per caller; the
// credentials snapshot owns that mapping.
type Client interface {
	Execute(ctx context.Context, credential identity.StoreCredential, req dsapi.ExecuteRequest) (*dsapi.ExecuteResponse, error)
}

const defaultTimeout = 15 * time.Second

// HTTPClient builds one connect client per store endpoint and reuses it.
// Every call carries a bounded timeout; a hung candidate location must not
// stall the whole search.
type HTTPClient struct {
	httpClient *http.Client

	mu        sync.Mutex
	endpoints map[string]*connect.Client[dsapi.ExecuteRequest, dsapi.ExecuteResponse]
}

func NewHTTPClient(timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &HTTPClient{
		httpClient: &http.Client{Timeout: timeout},
		endpoints:  map[string]*connect.Client[dsapi.ExecuteRequest, dsapi.ExecuteResponse]{},
	}
}

func (c *HTTPClient) Execute(ctx context.Context, credential identity.StoreCredential, req dsapi.ExecuteRequest) (*dsapi.ExecuteResponse, error) {
	baseURL := strings.TrimSpace(credential.URL)
	if baseURL == "" {
		return nil, fault.Store("no store endpoint configured for caller", nil)
	}

	request := connect.NewRequest(&req)
	request.Header().Set("Authorization", "Bearer "+credential.Token)
	response, err := c.endpoint(baseURL).CallUnary(ctx, request)
	if err != nil {
		return nil, classify(err)
	}
	return response.Msg, nil
}

func (c *HTTPClient) endpoint(baseURL string) *connect.Client[dsapi.ExecuteRequest, dsapi.ExecuteResponse] {
	c.mu.Lock()
	defer c.mu.Unlock()
	if client, ok := c.endpoints[baseURL]; ok {
		return client
	}
	client := connect.NewClient[dsapi.ExecuteRequest, dsapi.ExecuteResponse](
		c.httpClient,
		baseURL+dsapi.ProcedureExecute,
		connect.WithCodec(dsapi.JSONCodec{}),
	)
	c.endpoints[baseURL] = client
	return client
}

// classify folds transport errors into the gate taxonomy. Only a genuine
// not-found keeps its identity; everything else is a store fault so callers
// can tell "no record here" from "this candidate is broken".
func classify(err error) error {
	switch connect.CodeOf(err) {
	case connect.CodeNotFound:
		return fault.NotFound("record not found in store")
	case connect.CodeInvalidArgument:
		return fault.Wrap(api.ErrorKindValidation, "store rejected the request", err)
	default:
		return fault.Store("store call failed", err)
	}
}
