package secrets

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	repositorycache "github.com/goliatone/go-repository-cache/cache"
	"github.com/goliatone/go-slack-dispatch/core"
	"github.com/goliatone/go-slack-dispatch/security"
)

const cacheKeyPrefix = "slack-dispatch::secret::v1::"

// EnvStore reads the payload from the environment variable named by the id.
type EnvStore struct {
	Lookup func(key string) (string, bool)
}

func NewEnvStore() *EnvStore {
	return &EnvStore{Lookup: os.LookupEnv}
}

func (s *EnvStore) GetSecret(_ context.Context, id string) ([]byte, error) {
	id, err := normalizeID(id)
	if err != nil {
		return nil, err
	}
	lookup := os.LookupEnv
	if s != nil && s.Lookup != nil {
		lookup = s.Lookup
	}
	value, ok := lookup(id)
	if !ok || strings.TrimSpace(value) == "" {
		return nil, secretNotFound(id)
	}
	return []byte(value), nil
}

// FileStore reads <Dir>/<id>.
type FileStore struct {
	Dir string
}

func NewFileStore(dir string) *FileStore {
	return &FileStore{Dir: dir}
}

func (s *FileStore) GetSecret(_ context.Context, id string) ([]byte, error) {
	id, err := normalizeID(id)
	if err != nil {
		return nil, err
	}
	if s == nil || strings.TrimSpace(s.Dir) == "" {
		return nil, secretBadInput("secrets: file store directory is required", nil)
	}
	payload, err := os.ReadFile(filepath.Join(s.Dir, id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, secretNotFound(id)
		}
		return nil, secretUnavailable(err, "secrets: read secret file", id)
	}
	return payload, nil
}

// SealedStore opens payloads sealed with security.Sealer. Unsealed payloads
// pass through unchanged.
type SealedStore struct {
	Base   core.SecretStore
	Sealer *security.Sealer
}

func NewSealedStore(base core.SecretStore, sealer *security.Sealer) *SealedStore {
	return &SealedStore{Base: base, Sealer: sealer}
}

func (s *SealedStore) GetSecret(ctx context.Context, id string) ([]byte, error) {
	if s == nil || s.Base == nil {
		return nil, secretBadInput("secrets: sealed store base is required", nil)
	}
	payload, err := s.Base.GetSecret(ctx, id)
	if err != nil {
		return nil, err
	}
	if !security.IsSealed(payload) {
		return payload, nil
	}
	if s.Sealer == nil {
		return nil, secretUnavailable(nil, "secrets: sealed secret requires an app key", id)
	}
	opened, err := s.Sealer.Open(payload)
	if err != nil {
		return nil, secretUnavailable(err, "secrets: open sealed secret", id)
	}
	return opened, nil
}

// CachedStore memoizes a base store through go-repository-cache.
type CachedStore struct {
	base  core.SecretStore
	cache repositorycache.CacheService
}

func NewCachedStore(base core.SecretStore, cacheService repositorycache.CacheService) (*CachedStore, error) {
	if base == nil {
		return nil, secretBadInput("secrets: base secret store is required", nil)
	}
	if cacheService == nil {
		return nil, secretBadInput("secrets: cache service is required", nil)
	}
	return &CachedStore{base: base, cache: cacheService}, nil
}

// NewCacheService builds the default in-memory cache used by CachedStore.
func NewCacheService(ttl time.Duration) (repositorycache.CacheService, error) {
	config := repositorycache.DefaultConfig()
	if ttl > 0 {
		config.TTL = ttl
	}
	return repositorycache.NewCacheService(config)
}

func (s *CachedStore) GetSecret(ctx context.Context, id string) ([]byte, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return nil, secretBadInput("secrets: cached store is not configured", nil)
	}
	id, err := normalizeID(id)
	if err != nil {
		return nil, err
	}
	value, err := repositorycache.GetOrFetch(ctx, s.cache, cacheKeyPrefix+id, func(ctx context.Context) (string, error) {
		payload, fetchErr := s.base.GetSecret(ctx, id)
		if fetchErr != nil {
			return "", fetchErr
		}
		return string(payload), nil
	})
	if err != nil {
		return nil, err
	}
	return []byte(value), nil
}

func normalizeID(id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", secretBadInput("secrets: secret id is required", nil)
	}
	if strings.ContainsAny(id, `/\`) || id == "." || id == ".." {
		return "", secretBadInput("secrets: secret id is invalid", map[string]any{"secret_id": id})
	}
	return id, nil
}

var (
	_ core.SecretStore = (*EnvStore)(nil)
	_ core.SecretStore = (*FileStore)(nil)
	_ core.SecretStore = (*SealedStore)(nil)
	_ core.SecretStore = (*CachedStore)(nil)
)
