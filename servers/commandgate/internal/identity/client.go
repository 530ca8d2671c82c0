// Package identity resolves bearer tokens to principals and maps principals
// to store-side credentials. The identity service itself is external; this
// package only speaks its validate-token contract, with a local HS256 mode
// for development and tests.
package identity

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"connectrpc.com/connect"
	"github.com/golang-jwt/jwt/v5"

	"github.com/pathwaylabs/commandgate/pkg/commandgate/api"
	"github.com/pathwaylabs/commandgate/servers/commandgate/internal/fault"
)

const ProcedureValidateToken = "/identity.v1.IdentityService/ValidateToken"

type ValidateTokenRequest struct {
	Token string `json:"token"`
}

type ValidateTokenResponse struct {
	Principal api.Principal `json:"principal"`
}

// Client exchanges a bearer token for the principal it identifies. Principals
// are fetched once per request and are immutable for its lifetime.
type Client interface {
	ValidateToken(ctx context.Context, token string) (api.Principal, error)
}

const defaultTimeout = 10 * time.Second

type RemoteClient struct {
	validate *connect.Client[ValidateTokenRequest, ValidateTokenResponse]
	cache    *PrincipalCache
}

// NewRemoteClient talks to the external identity service. The cache is
// optional; nil disables it.
func NewRemoteClient(baseURL string, timeout time.Duration, cache *PrincipalCache) (*RemoteClient, error) {
	trimmedURL := strings.TrimSpace(baseURL)
	if trimmedURL == "" {
		return nil, errors.New("identity service URL is required")
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &RemoteClient{
		validate: connect.NewClient[ValidateTokenRequest, ValidateTokenResponse](
			&http.Client{Timeout: timeout},
			trimmedURL+ProcedureValidateToken,
			connect.WithCodec(api.JSONCodec{}),
		),
		cache: cache,
	}, nil
}

func (c *RemoteClient) ValidateToken(ctx context.Context, token string) (api.Principal, error) {
	if token == "" {
		return api.Principal{}, fault.Authentication("bearer token is empty")
	}
	if principal, ok := c.cache.Get(ctx, token); ok {
		return principal, nil
	}

	response, err := c.validate.CallUnary(ctx, connect.NewRequest(&ValidateTokenRequest{Token: token}))
	if err != nil {
		switch connect.CodeOf(err) {
		case connect.CodeUnauthenticated, connect.CodePermissionDenied, connect.CodeNotFound, connect.CodeInvalidArgument:
			return api.Principal{}, fault.Authentication("token was rejected by the identity service")
		default:
			return api.Principal{}, fault.Store("identity service call failed", err)
		}
	}
	principal := response.Msg.Principal
	if principal.Email == "" {
		return api.Principal{}, fault.Authentication("identity service returned no principal email")
	}

	c.cache.Put(ctx, token, principal)
	return principal, nil
}

// LocalClient validates HS256 tokens signed with a shared secret. Claims
// carry the principal inline; no external call is made.
type LocalClient struct {
	secret []byte
}

type principalClaims struct {
	jwt.RegisteredClaims
	Groups       []string              `json:"groups,omitempty"`
	Capabilities []string              `json:"capabilities,omitempty"`
	Permissions  []api.PermissionGrant `json:"permissions,omitempty"`
}

func NewLocalClient(secret []byte) (*LocalClient, error) {
	if len(secret) == 0 {
		return nil, errors.New("local token secret is required")
	}
	return &LocalClient{secret: secret}, nil
}

func (c *LocalClient) ValidateToken(_ context.Context, token string) (api.Principal, error) {
	if strings.TrimSpace(token) == "" {
		return api.Principal{}, fault.Authentication("bearer token is empty")
	}

	claims := principalClaims{}
	parsed, err := jwt.ParseWithClaims(token, &claims, func(parsed *jwt.Token) (any, error) {
		if parsed.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, errors.New("unexpected token algorithm")
		}
		return c.secret, nil
	})
	if err != nil || !parsed.Valid {
		return api.Principal{}, fault.Authentication("invalid token")
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return api.Principal{}, fault.Authentication("token subject is missing")
	}

	return api.Principal{
		Email:        claims.Subject,
		Groups:       claims.Groups,
		Capabilities: claims.Capabilities,
		Permissions:  claims.Permissions,
	}, nil
}
