package sqlstore

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/goliatone/go-billing/core"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
)

const entitlementCacheKeyPrefix = "go-billing::entitlement::v1"

// CachedEntitlementStore fronts an EntitlementStore with a cache for the hot
// Has lookup, which gates content access on every read. Grants write through
// and invalidate so a fresh purchase is visible immediately.
type CachedEntitlementStore struct {
	base  core.EntitlementStore
	cache repositorycache.CacheService
}

func NewCachedEntitlementStore(
	base core.EntitlementStore,
	cacheService repositorycache.CacheService,
) (*CachedEntitlementStore, error) {
	if base == nil {
		return nil, fmt.Errorf("sqlstore: base entitlement store is required")
	}
	if cacheService == nil {
		return nil, fmt.Errorf("sqlstore: entitlement cache service is required")
	}
	return &CachedEntitlementStore{base: base, cache: cacheService}, nil
}

// EntitlementCacheKey returns the deterministic cache key contract for
// entitlement lookups: go-billing::entitlement::v1::<user_id>::<novel_id>::<scope>
// with each segment URL-path escaped.
func EntitlementCacheKey(userID string, novelID string, scope string) (string, error) {
	userID = strings.TrimSpace(userID)
	novelID = strings.TrimSpace(novelID)
	scope = strings.TrimSpace(scope)
	if userID == "" || novelID == "" || scope == "" {
		return "", fmt.Errorf("sqlstore: user id, novel id, and scope are required for the entitlement cache key")
	}
	segments := []string{userID, novelID, scope}
	for i, segment := range segments {
		segments[i] = url.PathEscape(segment)
	}
	return strings.Join(append([]string{entitlementCacheKeyPrefix}, segments...), "::"), nil
}

func (s *CachedEntitlementStore) Grant(ctx context.Context, in core.GrantEntitlementInput) (core.Entitlement, bool, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.Entitlement{}, false, fmt.Errorf("sqlstore: cached entitlement store is not configured")
	}

	entitlement, created, err := s.base.Grant(ctx, in)
	if err != nil {
		return core.Entitlement{}, false, err
	}

	cacheKey, err := EntitlementCacheKey(entitlement.UserID, entitlement.NovelID, entitlement.Scope)
	if err != nil {
		return core.Entitlement{}, false, err
	}
	if err := s.cache.Delete(ctx, cacheKey); err != nil {
		return core.Entitlement{}, false, err
	}
	return entitlement, created, nil
}

func (s *CachedEntitlementStore) Has(ctx context.Context, userID string, novelID string, scope string) (bool, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return false, fmt.Errorf("sqlstore: cached entitlement store is not configured")
	}
	cacheKey, err := EntitlementCacheKey(userID, novelID, scope)
	if err != nil {
		return false, err
	}
	return repositorycache.GetOrFetch(ctx, s.cache, cacheKey, func(ctx context.Context) (bool, error) {
		return s.base.Has(ctx, userID, novelID, scope)
	})
}

func (s *CachedEntitlementStore) ListByUser(ctx context.Context, userID string) ([]core.Entitlement, error) {
	if s == nil || s.base == nil {
		return nil, fmt.Errorf("sqlstore: cached entitlement store is not configured")
	}
	// List reads go straight to the base store; only Has is hot enough to cache.
	return s.base.ListByUser(ctx, userID)
}

var _ core.EntitlementStore = (*CachedEntitlementStore)(nil)
