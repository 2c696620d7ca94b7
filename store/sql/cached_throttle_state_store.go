package sqlstore

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/goliatone/go-docaccess/core"
	"github.com/goliatone/go-docaccess/resilience"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
)

const throttleStateCacheKeyPrefix = "go-docaccess::throttle_state::v1"

// CachedThrottleStateStore fronts the SQL store with a read-through cache.
// Upserts invalidate so the next read observes the persisted row.
type CachedThrottleStateStore struct {
	base  resilience.StateStore
	cache repositorycache.CacheService
}

func NewCachedThrottleStateStore(
	base resilience.StateStore,
	cacheService repositorycache.CacheService,
) (*CachedThrottleStateStore, error) {
	if base == nil {
		return nil, fmt.Errorf("sqlstore: base throttle state store is required")
	}
	if cacheService == nil {
		return nil, fmt.Errorf("sqlstore: throttle cache service is required")
	}
	return &CachedThrottleStateStore{base: base, cache: cacheService}, nil
}

// ThrottleStateCacheKey returns the deterministic cache key contract for
// throttle state reads: go-docaccess::throttle_state::v1::<channel>::<bucket_key>
// with each segment URL-path escaped after key normalization.
func ThrottleStateCacheKey(key core.ThrottleKey) (string, error) {
	normalized := normalizeThrottleKey(key)
	if err := validateThrottleKey(normalized); err != nil {
		return "", err
	}
	segments := []string{
		url.PathEscape(normalized.Channel),
		url.PathEscape(normalized.BucketKey),
	}
	return strings.Join(append([]string{throttleStateCacheKeyPrefix}, segments...), "::"), nil
}

func (s *CachedThrottleStateStore) Get(ctx context.Context, key core.ThrottleKey) (resilience.ThrottleState, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return resilience.ThrottleState{}, fmt.Errorf("sqlstore: cached throttle state store is not configured")
	}
	normalized := normalizeThrottleKey(key)
	cacheKey, err := ThrottleStateCacheKey(normalized)
	if err != nil {
		return resilience.ThrottleState{}, err
	}

	state, err := repositorycache.GetOrFetch(ctx, s.cache, cacheKey, func(ctx context.Context) (resilience.ThrottleState, error) {
		fetched, fetchErr := s.base.Get(ctx, normalized)
		if fetchErr != nil {
			return resilience.ThrottleState{}, fetchErr
		}
		fetched.Key = normalizeThrottleKey(fetched.Key)
		return cloneThrottleState(fetched), nil
	})
	if err != nil {
		return resilience.ThrottleState{}, err
	}
	return cloneThrottleState(state), nil
}

func (s *CachedThrottleStateStore) Upsert(ctx context.Context, state resilience.ThrottleState) error {
	if s == nil || s.base == nil || s.cache == nil {
		return fmt.Errorf("sqlstore: cached throttle state store is not configured")
	}
	state.Key = normalizeThrottleKey(state.Key)
	if err := validateThrottleKey(state.Key); err != nil {
		return err
	}

	if err := s.base.Upsert(ctx, state); err != nil {
		return err
	}

	cacheKey, err := ThrottleStateCacheKey(state.Key)
	if err != nil {
		return err
	}
	if err := s.cache.Delete(ctx, cacheKey); err != nil {
		return err
	}
	return nil
}

func cloneThrottleState(state resilience.ThrottleState) resilience.ThrottleState {
	cloned := state
	cloned.Key = normalizeThrottleKey(state.Key)
	cloned.ResetAt = cloneTimePointer(state.ResetAt)
	cloned.ThrottledUntil = cloneTimePointer(state.ThrottledUntil)
	cloned.RetryAfter = cloneDurationPointer(state.RetryAfter)
	return cloned
}

func cloneTimePointer(input *time.Time) *time.Time {
	if input == nil {
		return nil
	}
	value := input.UTC()
	return &value
}

func cloneDurationPointer(input *time.Duration) *time.Duration {
	if input == nil {
		return nil
	}
	value := *input
	return &value
}

