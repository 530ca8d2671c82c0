package identity

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/pathwaylabs/commandgate/pkg/commandgate/api"
)

// PrincipalCache is an optional shared cache of validated principals, keyed
// by a digest of the bearer token so raw tokens never reach the cache. It is
// best-effort: a cache failure is a miss, never an error. A nil cache is a
// disabled cache.
type PrincipalCache struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

const defaultPrincipalTTL = 60 * time.Second

func NewPrincipalCache(client *redis.Client, ttl time.Duration) *PrincipalCache {
	if client == nil {
		return nil
	}
	if ttl <= 0 {
		ttl = defaultPrincipalTTL
	}
	return &PrincipalCache{client: client, ttl: ttl, prefix: "commandgate:principal:"}
}

func (c *PrincipalCache) Get(ctx context.Context, token string) (api.Principal, bool) {
	if c == nil {
		return api.Principal{}, false
	}
	encoded, err := c.client.Get(ctx, c.key(token)).Bytes()
	if err != nil {
		return api.Principal{}, false
	}
	var principal api.Principal
	if err := json.Unmarshal(encoded, &principal); err != nil {
		return api.Principal{}, false
	}
	return principal, true
}

func (c *PrincipalCache) Put(ctx context.Context, token string, principal api.Principal) {
	if c == nil {
		return
	}
	encoded, err := json.Marshal(principal)
	if err != nil {
		return
	}
	_ = c.client.Set(ctx, c.key(token), encoded, c.ttl).Err()
}

func (c *PrincipalCache) key(token string) string {
	digest := sha256.Sum256([]byte(token))
	return c.prefix + hex.EncodeToString(digest[:])
}
