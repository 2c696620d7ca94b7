package resilience

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"strings"
	"sync"
	"time"

	goerrors "github.com/goliatone/go-errors"

	"github.com/goliatone/go-docaccess/core"
)

const (
	defaultMaxRetries     = 3
	defaultInitialBackoff = 500 * time.Millisecond
	defaultMaxBackoff     = 30 * time.Second
	defaultAttemptTimeout = 30 * time.Second
)

type PipelineConfig struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	AttemptTimeout time.Duration
	Breaker        BreakerConfig
	Now            func() time.Time
	// Sleep is swappable so tests can run without waiting.
	Sleep func(ctx context.Context, d time.Duration) error
	// Jitter perturbs a computed backoff; defaults to +/-25%.
	Jitter func(d time.Duration) time.Duration
}

// Pipeline is the single resilience wrapper for every outbound call. One
// breaker per channel, shared across all concurrent requests for the
// process lifetime.
type Pipeline struct {
	config    PipelineConfig
	observer  core.Observer
	throttle  core.ThrottleStatePolicy
	listeners []TransitionListener

	mu       sync.Mutex
	breakers map[string]*Breaker
}

type PipelineOption func(*Pipeline)

func WithObserver(observer core.Observer) PipelineOption {
	return func(p *Pipeline) {
		p.observer = observer
	}
}

func WithThrottlePolicy(policy core.ThrottleStatePolicy) PipelineOption {
	return func(p *Pipeline) {
		p.throttle = policy
	}
}

func WithTransitionListener(listener TransitionListener) PipelineOption {
	return func(p *Pipeline) {
		if listener != nil {
			p.listeners = append(p.listeners, listener)
		}
	}
}

func NewPipeline(cfg PipelineConfig, options ...PipelineOption) *Pipeline {
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = defaultInitialBackoff
	}
	if cfg.MaxBackoff < cfg.InitialBackoff {
		cfg.MaxBackoff = defaultMaxBackoff
	}
	if cfg.AttemptTimeout <= 0 {
		cfg.AttemptTimeout = defaultAttemptTimeout
	}
	if cfg.Now == nil {
		cfg.Now = func() time.Time { return time.Now().UTC() }
	}
	if cfg.Sleep == nil {
		cfg.Sleep = sleepContext
	}
	if cfg.Jitter == nil {
		cfg.Jitter = defaultJitter
	}

	pipeline := &Pipeline{
		config:   cfg,
		breakers: map[string]*Breaker{},
	}
	for _, option := range options {
		if option == nil {
			continue
		}
		option(pipeline)
	}
	pipeline.listeners = append(pipeline.listeners, pipeline.logTransition)
	return pipeline
}

// Execute runs op under the channel's circuit breaker with retry on
// transient failures. Upstream Retry-After, when present, overrides the
// computed backoff. Responses below 500 (other than 429) are returned as-is
// for the operations layer to map.
func (p *Pipeline) Execute(
	ctx context.Context,
	channel string,
	op func(context.Context) (core.TransportResponse, error),
) (core.TransportResponse, error) {
	if p == nil {
		return core.TransportResponse{}, fmt.Errorf("resilience: pipeline is not configured")
	}
	if op == nil {
		return core.TransportResponse{}, fmt.Errorf("resilience: operation is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	channel = strings.TrimSpace(strings.ToLower(channel))
	if channel == "" {
		channel = "default"
	}

	throttleKey := core.ThrottleKey{Channel: channel, BucketKey: "api"}
	breaker := p.breaker(channel)

	var lastErr error
	for attempt := 0; attempt <= p.config.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return core.TransportResponse{}, err
		}

		if p.throttle != nil {
			if err := p.throttle.BeforeCall(ctx, throttleKey); err != nil {
				var throttled ThrottledError
				if errors.As(err, &throttled) {
					return core.TransportResponse{}, throttled.ToServiceError()
				}
				return core.TransportResponse{}, err
			}
		}

		if err := breaker.Acquire(); err != nil {
			return core.TransportResponse{}, err
		}

		attemptCtx, cancel := context.WithTimeout(ctx, p.config.AttemptTimeout)
		res, err := op(attemptCtx)
		cancel()

		if p.throttle != nil && err == nil {
			meta := core.UpstreamResponseMeta{StatusCode: res.StatusCode, Headers: res.Headers}
			if afterErr := p.throttle.AfterCall(ctx, throttleKey, meta); afterErr != nil {
				p.observer.LogWarn(ctx, "resilience: record throttle state failed", map[string]any{
					"channel": channel,
					"error":   afterErr.Error(),
				})
			}
		}

		outcome := classifyAttempt(res, err)
		if outcome.success {
			breaker.ReportSuccess()
			return res, nil
		}

		// Caller defects say nothing about upstream health and must not
		// push the circuit toward open.
		if !outcome.callerFault {
			breaker.ReportFailure(outcome.cause)
		}
		lastErr = outcome.surface(channel, res)

		if !outcome.retryable || attempt == p.config.MaxRetries {
			return core.TransportResponse{}, lastErr
		}

		delay := p.config.Jitter(backoffDelay(p.config.InitialBackoff, p.config.MaxBackoff, attempt))
		if outcome.retryAfter > 0 {
			delay = outcome.retryAfter
		}
		if sleepErr := p.config.Sleep(ctx, delay); sleepErr != nil {
			return core.TransportResponse{}, sleepErr
		}
	}
	return core.TransportResponse{}, lastErr
}

// BreakerState exposes the current state of a channel's circuit, mainly for
// health reporting.
func (p *Pipeline) BreakerState(channel string) State {
	return p.breaker(strings.TrimSpace(strings.ToLower(channel))).State()
}

func (p *Pipeline) breaker(channel string) *Breaker {
	p.mu.Lock()
	defer p.mu.Unlock()
	if existing, ok := p.breakers[channel]; ok {
		return existing
	}
	created := NewBreaker(channel, p.config.Breaker, p.listeners...)
	p.breakers[channel] = created
	return created
}

func (p *Pipeline) logTransition(event TransitionEvent) {
	p.observer.LogWarn(context.Background(), "resilience: circuit transition", map[string]any{
		"channel": event.Channel,
		"from":    event.From.String(),
		"to":      event.To.String(),
		"cause":   event.Cause,
	})
}

type attemptOutcome struct {
	success     bool
	retryable   bool
	callerFault bool
	cause       string
	retryAfter  time.Duration
	err         error
	throttled   bool
}

func classifyAttempt(res core.TransportResponse, err error) attemptOutcome {
	if err != nil {
		if isCallerFault(err) {
			return attemptOutcome{
				callerFault: true,
				cause:       err.Error(),
				err:         err,
			}
		}
		retryable := !errors.Is(err, context.Canceled)
		return attemptOutcome{
			retryable: retryable,
			cause:     err.Error(),
			err:       err,
		}
	}
	if res.StatusCode == http.StatusTooManyRequests {
		retryAfter, _ := ParseRetryAfter(core.UpstreamResponseMeta{StatusCode: res.StatusCode, Headers: res.Headers}, time.Now().UTC())
		return attemptOutcome{
			retryable:  true,
			throttled:  true,
			cause:      "upstream throttled",
			retryAfter: retryAfter,
		}
	}
	if res.StatusCode >= 500 {
		return attemptOutcome{
			retryable: true,
			cause:     fmt.Sprintf("upstream status %d", res.StatusCode),
		}
	}
	return attemptOutcome{success: true}
}

// isCallerFault reports whether the attempt failed before reaching the
// upstream because the request itself was malformed. Retrying an identical
// request cannot help.
func isCallerFault(err error) bool {
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		return false
	}
	return richErr.Category == goerrors.CategoryBadInput ||
		richErr.Category == goerrors.CategoryValidation
}

func (o attemptOutcome) surface(channel string, res core.TransportResponse) error {
	if o.err != nil {
		return o.err
	}
	if o.throttled {
		return core.NewThrottledError(
			fmt.Sprintf("resilience: channel %q throttled upstream", channel),
			o.retryAfter,
		)
	}
	return core.NewUpstreamError(
		fmt.Sprintf("resilience: channel %q upstream failure", channel),
		res.StatusCode,
	)
}

func backoffDelay(initial time.Duration, maximum time.Duration, attempt int) time.Duration {
	delay := initial
	for i := 0; i < attempt; i++ {
		delay *= 2
		if delay >= maximum {
			return maximum
		}
	}
	return delay
}

func defaultJitter(d time.Duration) time.Duration {
	if d <= 0 {
		return d
	}
	// +/- 25% keeps concurrent retries from synchronizing.
	spread := int64(d) / 2
	if spread <= 0 {
		return d
	}
	return time.Duration(int64(d)*3/4 + rand.Int63n(spread))
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

var _ core.Pipeline = (*Pipeline)(nil)
