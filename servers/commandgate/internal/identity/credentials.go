package identity

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pathwaylabs/commandgate/servers/commandgate/internal/fault"
)

// StoreCredential is the store-side endpoint and token used on behalf of a
// principal.
type StoreCredential struct {
	URL   string `json:"url"`
	Token string `json:"token"`
}

// Credentials is one complete view of the token-to-store mapping. Loaders
// return a whole value; the service never patches a live snapshot.
type Credentials struct {
	ByToken  map[string]StoreCredential
	Fallback StoreCredential
}

type snapshot struct {
	credentials Credentials
	fetchedAt   time.Time
}

// CredentialsService is the read-mostly cache of store credentials shared
// across requests. Refresh loads a complete snapshot and swaps it in
// atomically; concurrent refreshes are serialized and readers never observe
// a partial view.
type CredentialsService struct {
	loader  func(ctx context.Context) (Credentials, error)
	ttl     time.Duration
	current atomic.Pointer[snapshot]
	mu      sync.Mutex
}

const defaultCredentialsTTL = 5 * time.Minute

func NewCredentialsService(loader func(ctx context.Context) (Credentials, error), ttl time.Duration) *CredentialsService {
	if ttl <= 0 {
		ttl = defaultCredentialsTTL
	}
	return &CredentialsService{loader: loader, ttl: ttl}
}

// StaticCredentials wraps a fixed mapping, for deployments where the store
// endpoint does not rotate.
func StaticCredentials(credentials Credentials) *CredentialsService {
	service := NewCredentialsService(func(context.Context) (Credentials, error) {
		return credentials, nil
	}, 0)
	return service
}

// Lookup resolves the store credential for an inbound bearer token, falling
// back to the deployment-wide credential when the token has no dedicated
// entry. A refresh failure keeps serving the previous snapshot.
func (s *CredentialsService) Lookup(ctx context.Context, token string) (StoreCredential, error) {
	snap := s.current.Load()
	if snap == nil || time.Since(snap.fetchedAt) > s.ttl {
		refreshed, err := s.refresh(ctx)
		if err != nil {
			if snap == nil {
				return StoreCredential{}, fault.Store("store credentials are unavailable", err)
			}
		} else {
			snap = refreshed
		}
	}

	if credential, ok := snap.credentials.ByToken[token]; ok {
		return credential, nil
	}
	return snap.credentials.Fallback, nil
}

func (s *CredentialsService) refresh(ctx context.Context) (*snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Another caller may have refreshed while we waited for the lock.
	if existing := s.current.Load(); existing != nil && time.Since(existing.fetchedAt) <= s.ttl {
		return existing, nil
	}

	credentials, err := s.loader(ctx)
	if err != nil {
		return nil, err
	}
	fresh := &snapshot{credentials: credentials, fetchedAt: time.Now()}
	s.current.Store(fresh)
	return fresh, nil
}
