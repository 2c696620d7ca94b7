package admission

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-docaccess/core"
)

// Category selects which admission policy governs a call.
type Category string

const (
	CategoryRead       Category = "read"
	CategoryWrite      Category = "write"
	CategoryAuthz      Category = "authz"
	CategoryUpload     Category = "upload"
	CategoryBackground Category = "background"
	CategoryPublic     Category = "public"
)

// Request describes one inbound call for admission purposes. UserID wins as
// the partition key when present; ClientIP is the fallback. Public calls
// are always keyed by ClientIP.
type Request struct {
	Category Category
	UserID   string
	ClientIP string
	Path     string
}

// Limiter is the admission-control front door: six tailored policies plus a
// global fallback, all process-local. Running several instances multiplies
// the effective limits; that is a documented property of this design, not
// something the limiter compensates for.
type Limiter struct {
	config   core.AdmissionConfig
	now      func() time.Time
	observer core.Observer

	read       *slidingWindowPolicy
	write      *tokenBucketPolicy
	authz      *slidingWindowPolicy
	upload     *concurrencyPolicy
	background *fixedWindowPolicy
	public     *fixedWindowPolicy
	fallback   *slidingWindowPolicy

	exempt map[string]struct{}
}

type LimiterOption func(*Limiter)

func WithObserver(observer core.Observer) LimiterOption {
	return func(l *Limiter) {
		l.observer = observer
	}
}

func WithNow(now func() time.Time) LimiterOption {
	return func(l *Limiter) {
		if now != nil {
			l.now = now
		}
	}
}

func NewLimiter(cfg core.AdmissionConfig, options ...LimiterOption) (*Limiter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	limiter := &Limiter{
		config: cfg,
		now:    func() time.Time { return time.Now().UTC() },
		exempt: map[string]struct{}{},
	}
	for _, option := range options {
		if option == nil {
			continue
		}
		option(limiter)
	}

	limiter.read = newSlidingWindowPolicy(cfg.ReadPerMinute, time.Minute, limiter.now)
	limiter.write = newTokenBucketPolicy(cfg.WritePerMinute, cfg.WriteBurst, limiter.now)
	limiter.authz = newSlidingWindowPolicy(cfg.AuthzPerMinute, time.Minute, limiter.now)
	limiter.upload = newConcurrencyPolicy(cfg.UploadConcurrency, cfg.UploadQueueDepth)
	limiter.background = newFixedWindowPolicy(cfg.BackgroundPerWindow, cfg.BackgroundWindow, limiter.now)
	limiter.public = newFixedWindowPolicy(cfg.PublicPerWindow, cfg.PublicWindow, limiter.now)
	limiter.fallback = newSlidingWindowPolicy(cfg.FallbackPerMinute, time.Minute, limiter.now)
	for _, path := range cfg.ExemptPaths {
		trimmed := strings.TrimSpace(strings.ToLower(path))
		if trimmed == "" {
			continue
		}
		limiter.exempt[trimmed] = struct{}{}
	}
	return limiter, nil
}

// Admit consumes one permit for the request. The returned release func must
// be called when the operation finishes; for everything except uploads it
// is a no-op. Upload callers beyond the concurrency cap wait in a bounded
// queue until a slot frees or ctx is done. Rejections carry a positive
// retry-after hint and never reach the facade.
func (l *Limiter) Admit(ctx context.Context, req Request) (func(), error) {
	if l == nil {
		return nil, fmt.Errorf("admission: limiter is not configured")
	}
	noop := func() {}
	if l.isExempt(req.Path) {
		return noop, nil
	}

	key := partitionKey(req)
	if key == "" {
		return nil, core.NewBadInputError("admission: request has no user id or client ip")
	}

	switch req.Category {
	case CategoryUpload:
		release, ok, err := l.upload.acquire(ctx, key)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, l.reject(ctx, req, key, l.uploadRetryHint())
		}
		return release, nil
	case CategoryRead:
		return l.takeRate(ctx, req, key, noop, l.read.take)
	case CategoryWrite:
		return l.takeRate(ctx, req, key, noop, l.write.take)
	case CategoryAuthz:
		return l.takeRate(ctx, req, key, noop, l.authz.take)
	case CategoryBackground:
		return l.takeRate(ctx, req, key, noop, l.background.take)
	case CategoryPublic:
		return l.takeRate(ctx, req, key, noop, l.public.take)
	default:
		return l.takeRate(ctx, req, key, noop, l.fallback.take)
	}
}

func (l *Limiter) takeRate(
	ctx context.Context,
	req Request,
	key string,
	noop func(),
	take func(key string) (bool, time.Duration),
) (func(), error) {
	allowed, retryAfter := take(key)
	if !allowed {
		return nil, l.reject(ctx, req, key, retryAfter)
	}
	return noop, nil
}

func (l *Limiter) reject(ctx context.Context, req Request, key string, retryAfter time.Duration) error {
	if retryAfter <= 0 {
		retryAfter = time.Second
	}
	l.observer.LogWarn(ctx, "admission: request rejected", map[string]any{
		"category":       string(req.Category),
		"partition_key":  key,
		"path":           strings.TrimSpace(req.Path),
		"retry_after_ms": retryAfter.Milliseconds(),
	})
	return core.NewRateLimitedError(
		fmt.Sprintf("admission: %s limit exceeded", categoryLabel(req.Category)),
		retryAfter,
	)
}

// uploadRetryHint approximates how long a full upload slot takes to free
// up; the concurrency policy has no window to derive one from.
func (l *Limiter) uploadRetryHint() time.Duration {
	return 5 * time.Second
}

func (l *Limiter) isExempt(path string) bool {
	trimmed := strings.TrimSpace(strings.ToLower(path))
	if trimmed == "" {
		return false
	}
	_, ok := l.exempt[trimmed]
	return ok
}

func partitionKey(req Request) string {
	ip := strings.TrimSpace(req.ClientIP)
	if req.Category == CategoryPublic {
		if ip == "" {
			return ""
		}
		return "ip:" + ip
	}
	if user := strings.TrimSpace(req.UserID); user != "" {
		return "user:" + user
	}
	if ip == "" {
		return ""
	}
	return "ip:" + ip
}

func categoryLabel(category Category) string {
	switch category {
	case CategoryRead:
		return "read"
	case CategoryWrite:
		return "write"
	case CategoryAuthz:
		return "authorization-query"
	case CategoryUpload:
		return "upload concurrency"
	case CategoryBackground:
		return "background-submission"
	case CategoryPublic:
		return "public"
	default:
		return "request"
	}
}
