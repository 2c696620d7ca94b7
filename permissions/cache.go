package permissions

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-docaccess/core"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
)

const permissionCacheKeyPrefix = "go-docaccess::permissions::v1"

const defaultBatchConcurrency = 4

type CacheConfig struct {
	TTL time.Duration
	// BatchConcurrency bounds parallel backend lookups during batch
	// resolution. It is a deliberate tuning knob: 1 degrades to strictly
	// sequential processing.
	BatchConcurrency int
}

// Cache resolves (user, resource) -> AccessRights through the
// authorization backend and memoizes results for the configured TTL.
// Entries expire by TTL only; there is no push-based invalidation.
type Cache struct {
	resolver         core.AccessResolver
	cache            repositorycache.CacheService
	batchConcurrency int
	observer         core.Observer
}

type CacheOption func(*Cache)

func WithObserver(observer core.Observer) CacheOption {
	return func(c *Cache) {
		c.observer = observer
	}
}

func NewCache(resolver core.AccessResolver, cfg CacheConfig, options ...CacheOption) (*Cache, error) {
	if resolver == nil {
		return nil, fmt.Errorf("permissions: access resolver is required")
	}
	if cfg.TTL <= 0 {
		return nil, fmt.Errorf("permissions: cache ttl must be positive")
	}
	concurrency := cfg.BatchConcurrency
	if concurrency == 0 {
		concurrency = defaultBatchConcurrency
	}
	if concurrency < 1 {
		return nil, fmt.Errorf("permissions: batch concurrency must be at least 1")
	}

	cacheConfig := repositorycache.DefaultConfig()
	cacheConfig.TTL = cfg.TTL
	service, err := repositorycache.NewCacheService(cacheConfig)
	if err != nil {
		return nil, fmt.Errorf("permissions: build cache service: %w", err)
	}

	cache := &Cache{
		resolver:         resolver,
		cache:            service,
		batchConcurrency: concurrency,
	}
	for _, option := range options {
		if option == nil {
			continue
		}
		option(cache)
	}
	return cache, nil
}

// Rights returns the user's effective rights on one resource, hitting the
// backend only on cache miss.
func (c *Cache) Rights(ctx context.Context, userID string, resourceID string) (core.AccessRights, error) {
	if c == nil || c.cache == nil {
		return core.RightsNone, fmt.Errorf("permissions: cache is not configured")
	}
	key, err := permissionCacheKey(userID, resourceID)
	if err != nil {
		return core.RightsNone, err
	}

	rights, err := repositorycache.GetOrFetch(ctx, c.cache, key, func(fetchCtx context.Context) (core.AccessRights, error) {
		startedAt := time.Now().UTC()
		names, resolveErr := c.resolver.ResolveRights(fetchCtx, strings.TrimSpace(userID), strings.TrimSpace(resourceID))
		c.observer.Observe(fetchCtx, startedAt, "permissions.resolve", resolveErr, map[string]any{
			"user_id":     strings.TrimSpace(userID),
			"resource_id": strings.TrimSpace(resourceID),
		})
		if resolveErr != nil {
			return core.RightsNone, resolveErr
		}
		return core.ParseAccessRights(names), nil
	})
	if err != nil {
		return core.RightsNone, err
	}
	return rights, nil
}

// Capabilities projects the cached rights into the caller-facing flag set.
func (c *Cache) Capabilities(ctx context.Context, userID string, resourceID string) (core.CapabilitySet, error) {
	rights, err := c.Rights(ctx, userID, resourceID)
	if err != nil {
		return core.CapabilitySet{}, err
	}
	return rights.Capabilities(), nil
}

// Authorize fails with an access-denied error when the user lacks any of
// the required rights.
func (c *Cache) Authorize(ctx context.Context, userID string, resourceID string, required core.AccessRights) error {
	rights, err := c.Rights(ctx, userID, resourceID)
	if err != nil {
		return err
	}
	if !rights.Has(required) {
		return core.NewAccessDeniedError(fmt.Sprintf(
			"permissions: user lacks %s on resource %q",
			required.String(),
			strings.TrimSpace(resourceID),
		))
	}
	return nil
}

// RightsBatch resolves many resources for one user with bounded
// concurrency. The first backend error aborts the batch.
func (c *Cache) RightsBatch(ctx context.Context, userID string, resourceIDs []string) (map[string]core.AccessRights, error) {
	if c == nil {
		return nil, fmt.Errorf("permissions: cache is not configured")
	}
	results := make(map[string]core.AccessRights, len(resourceIDs))
	if len(resourceIDs) == 0 {
		return results, nil
	}

	batchCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)
	semaphore := make(chan struct{}, c.batchConcurrency)

	for _, resourceID := range dedupeIDs(resourceIDs) {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			select {
			case semaphore <- struct{}{}:
			case <-batchCtx.Done():
				return
			}
			defer func() { <-semaphore }()

			rights, err := c.Rights(batchCtx, userID, id)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if firstErr == nil {
					firstErr = err
					cancel()
				}
				return
			}
			results[id] = rights
		}(resourceID)
	}
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	return results, nil
}

// Invalidate drops one cached entry ahead of its TTL.
func (c *Cache) Invalidate(ctx context.Context, userID string, resourceID string) error {
	if c == nil || c.cache == nil {
		return fmt.Errorf("permissions: cache is not configured")
	}
	key, err := permissionCacheKey(userID, resourceID)
	if err != nil {
		return err
	}
	return c.cache.Delete(ctx, key)
}

func permissionCacheKey(userID string, resourceID string) (string, error) {
	user := strings.TrimSpace(userID)
	resource := strings.TrimSpace(resourceID)
	if user == "" {
		return "", core.NewBadInputError("permissions: user id is required")
	}
	if resource == "" {
		return "", core.NewBadInputError("permissions: resource id is required")
	}
	return strings.Join([]string{
		permissionCacheKeyPrefix,
		url.PathEscape(user),
		url.PathEscape(resource),
	}, "::"), nil
}

func dedupeIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		trimmed := strings.TrimSpace(id)
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}
		out = append(out, trimmed)
	}
	return out
}
