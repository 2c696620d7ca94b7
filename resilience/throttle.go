package resilience

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-docaccess/core"
	goerrors "github.com/goliatone/go-errors"
)

var ErrStateNotFound = errors.New("resilience: throttle state not found")

// ThrottleState tracks what the remote platform last told us about one
// channel's quota.
type ThrottleState struct {
	Key            core.ThrottleKey
	Limit          int
	Remaining      int
	ResetAt        *time.Time
	RetryAfter     *time.Duration
	ThrottledUntil *time.Time
	LastStatus     int
	Attempts       int
	UpdatedAt      time.Time
}

// StateStore persists throttle state. The in-memory implementation is
// process-local; store/sql provides a shared one.
type StateStore interface {
	Get(ctx context.Context, key core.ThrottleKey) (ThrottleState, error)
	Upsert(ctx context.Context, state ThrottleState) error
}

type ThrottledError struct {
	Channel    string
	BucketKey  string
	RetryAfter time.Duration
}

func (e ThrottledError) Error() string {
	return fmt.Sprintf(
		"resilience: channel %q bucket %q throttled for %s",
		strings.TrimSpace(e.Channel),
		strings.TrimSpace(e.BucketKey),
		e.RetryAfter,
	)
}

func (e ThrottledError) ToServiceError() *goerrors.Error {
	return core.NewThrottledError(e.Error(), e.RetryAfter)
}

// ThrottlePolicy blocks calls while an upstream Retry-After window is still
// active and records quota headers after every response.
type ThrottlePolicy struct {
	Store            StateStore
	Now              func() time.Time
	InitialBackoff   time.Duration
	MaxBackoff       time.Duration
	DefaultRetryHint time.Duration
}

func NewThrottlePolicy(store StateStore) *ThrottlePolicy {
	return &ThrottlePolicy{
		Store:            store,
		Now:              func() time.Time { return time.Now().UTC() },
		InitialBackoff:   time.Second,
		MaxBackoff:       time.Minute,
		DefaultRetryHint: 5 * time.Second,
	}
}

func (p *ThrottlePolicy) BeforeCall(ctx context.Context, key core.ThrottleKey) error {
	if p == nil || p.Store == nil {
		return nil
	}
	state, err := p.Store.Get(ctx, normalizeThrottleKey(key))
	if err != nil {
		if errors.Is(err, ErrStateNotFound) {
			return nil
		}
		return err
	}

	now := p.now()
	if until := state.ThrottledUntil; until != nil && now.Before(*until) {
		return ThrottledError{Channel: state.Key.Channel, BucketKey: state.Key.BucketKey, RetryAfter: until.Sub(now)}
	}
	if state.Remaining == 0 && state.ResetAt != nil && now.Before(*state.ResetAt) {
		return ThrottledError{Channel: state.Key.Channel, BucketKey: state.Key.BucketKey, RetryAfter: state.ResetAt.Sub(now)}
	}
	return nil
}

func (p *ThrottlePolicy) AfterCall(ctx context.Context, key core.ThrottleKey, res core.UpstreamResponseMeta) error {
	if p == nil || p.Store == nil {
		return nil
	}
	key = normalizeThrottleKey(key)
	now := p.now()
	state, err := p.Store.Get(ctx, key)
	if err != nil && !errors.Is(err, ErrStateNotFound) {
		return err
	}
	if errors.Is(err, ErrStateNotFound) {
		state = ThrottleState{Key: key}
	}

	state.LastStatus = res.StatusCode
	state.UpdatedAt = now

	limit, hasLimit := parseHeaderInt(res.Headers, "x-ratelimit-limit")
	if hasLimit {
		state.Limit = limit
	}
	remaining, hasRemaining := parseHeaderInt(res.Headers, "x-ratelimit-remaining")
	if hasRemaining {
		state.Remaining = remaining
	}
	resetAt, hasResetAt := parseHeaderResetAt(res.Headers)
	if hasResetAt {
		state.ResetAt = &resetAt
	}

	retryAfter, hasRetryAfter := ParseRetryAfter(res, now)
	if hasRetryAfter {
		state.RetryAfter = &retryAfter
	} else {
		state.RetryAfter = nil
	}

	if isThrottledResponse(res.StatusCode, state.Remaining, hasRemaining, hasResetAt, hasLimit, hasRetryAfter) {
		state.Attempts++
		delay := retryAfter
		if !hasRetryAfter {
			delay = p.nextBackoff(state.Attempts)
		}
		until := now.Add(delay)
		state.ThrottledUntil = &until
		return p.Store.Upsert(ctx, state)
	}

	state.Attempts = 0
	state.ThrottledUntil = nil
	return p.Store.Upsert(ctx, state)
}

func (p *ThrottlePolicy) now() time.Time {
	if p != nil && p.Now != nil {
		return p.Now().UTC()
	}
	return time.Now().UTC()
}

func (p *ThrottlePolicy) nextBackoff(attempt int) time.Duration {
	initial := p.InitialBackoff
	if initial <= 0 {
		initial = time.Second
	}
	maximum := p.MaxBackoff
	if maximum <= 0 {
		maximum = time.Minute
	}
	if attempt <= 0 {
		return initial
	}
	delay := initial
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= maximum {
			return maximum
		}
	}
	if delay <= 0 {
		if p.DefaultRetryHint > 0 {
			return p.DefaultRetryHint
		}
		return 5 * time.Second
	}
	if delay > maximum {
		return maximum
	}
	return delay
}

func isThrottledResponse(
	statusCode int,
	remaining int,
	hasRemaining bool,
	hasResetAt bool,
	hasLimit bool,
	hasRetryAfter bool,
) bool {
	if statusCode == 429 {
		return true
	}
	if statusCode >= 500 {
		return false
	}
	return remaining == 0 && (hasRemaining || hasResetAt || hasLimit || hasRetryAfter)
}

// ParseRetryAfter resolves the suggested wait from response metadata or the
// Retry-After header, supporting both delta-seconds and HTTP-date forms.
func ParseRetryAfter(res core.UpstreamResponseMeta, now time.Time) (time.Duration, bool) {
	if res.RetryAfter != nil && *res.RetryAfter > 0 {
		return *res.RetryAfter, true
	}
	raw := headerValue(res.Headers, "retry-after")
	if raw == "" {
		return 0, false
	}
	if seconds, err := strconv.Atoi(raw); err == nil {
		if seconds <= 0 {
			return 0, false
		}
		return time.Duration(seconds) * time.Second, true
	}
	if retryAt, err := httpDate(raw); err == nil {
		if retryAt.After(now) {
			return retryAt.Sub(now), true
		}
	}
	return 0, false
}

func parseHeaderInt(headers map[string]string, key string) (int, bool) {
	value := headerValue(headers, key)
	if value == "" {
		return 0, false
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, false
	}
	return parsed, true
}

func parseHeaderResetAt(headers map[string]string) (time.Time, bool) {
	value := headerValue(headers, "x-ratelimit-reset")
	if value == "" {
		return time.Time{}, false
	}
	unix, err := strconv.ParseInt(value, 10, 64)
	if err != nil || unix <= 0 {
		return time.Time{}, false
	}
	return time.Unix(unix, 0).UTC(), true
}

func httpDate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, fmt.Errorf("resilience: empty date")
	}
	if parsed, err := time.Parse(time.RFC1123, value); err == nil {
		return parsed.UTC(), nil
	}
	if parsed, err := time.Parse(time.RFC1123Z, value); err == nil {
		return parsed.UTC(), nil
	}
	return time.Time{}, fmt.Errorf("resilience: invalid http date")
}

func headerValue(headers map[string]string, key string) string {
	if len(headers) == 0 {
		return ""
	}
	for existing, value := range headers {
		if strings.EqualFold(strings.TrimSpace(existing), strings.TrimSpace(key)) {
			return strings.TrimSpace(value)
		}
	}
	return ""
}

func normalizeThrottleKey(key core.ThrottleKey) core.ThrottleKey {
	return core.ThrottleKey{
		Channel:   strings.TrimSpace(strings.ToLower(key.Channel)),
		BucketKey: strings.TrimSpace(strings.ToLower(key.BucketKey)),
	}
}

// MemoryStateStore keeps throttle state per process.
type MemoryStateStore struct {
	mu    sync.RWMutex
	items map[string]ThrottleState
}

func NewMemoryStateStore() *MemoryStateStore {
	return &MemoryStateStore{items: map[string]ThrottleState{}}
}

func (s *MemoryStateStore) Get(_ context.Context, key core.ThrottleKey) (ThrottleState, error) {
	if s == nil {
		return ThrottleState{}, fmt.Errorf("resilience: state store is nil")
	}
	normalized := normalizeThrottleKey(key)
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.items[throttleStateKey(normalized)]
	if !ok {
		return ThrottleState{}, ErrStateNotFound
	}
	return state, nil
}

func (s *MemoryStateStore) Upsert(_ context.Context, state ThrottleState) error {
	if s == nil {
		return fmt.Errorf("resilience: state store is nil")
	}
	state.Key = normalizeThrottleKey(state.Key)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[throttleStateKey(state.Key)] = state
	return nil
}

func throttleStateKey(key core.ThrottleKey) string {
	return key.Channel + "|" + key.BucketKey
}

var _ core.ThrottleStatePolicy = (*ThrottlePolicy)(nil)
