package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	goerrors "github.com/goliatone/go-errors"

	"github.com/goliatone/go-docaccess/core"
)

func newTestPipeline(clock *manualClock, sleeps *[]time.Duration, options ...PipelineOption) *Pipeline {
	cfg := PipelineConfig{
		MaxRetries:     2,
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     time.Second,
		AttemptTimeout: time.Second,
		Breaker: BreakerConfig{
			FailureThreshold: 3,
			FailureWindow:    time.Minute,
			CoolDown:         30 * time.Second,
			Now:              clock.Now,
		},
		Now: clock.Now,
		Sleep: func(_ context.Context, d time.Duration) error {
			if sleeps != nil {
				*sleeps = append(*sleeps, d)
			}
			return nil
		},
		// Identity jitter keeps backoff assertions deterministic.
		Jitter: func(d time.Duration) time.Duration { return d },
	}
	return NewPipeline(cfg, options...)
}

func TestPipeline_RetriesTransientFailuresThenSucceeds(t *testing.T) {
	clock := newManualClock()
	var sleeps []time.Duration
	pipeline := newTestPipeline(clock, &sleeps)

	attempts := 0
	res, err := pipeline.Execute(context.Background(), "platform", func(context.Context) (core.TransportResponse, error) {
		attempts++
		if attempts < 3 {
			return core.TransportResponse{StatusCode: 503}, nil
		}
		return core.TransportResponse{StatusCode: 200}, nil
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if res.StatusCode != 200 {
		t.Fatalf("expected final success, got %d", res.StatusCode)
	}
	if attempts != 3 {
		t.Fatalf("expected three attempts, got %d", attempts)
	}
	if len(sleeps) != 2 || sleeps[0] != 100*time.Millisecond || sleeps[1] != 200*time.Millisecond {
		t.Fatalf("expected exponential backoff sleeps, got %v", sleeps)
	}
}

func TestPipeline_ExhaustedRetriesSurfaceUpstreamError(t *testing.T) {
	clock := newManualClock()
	pipeline := newTestPipeline(clock, nil)

	attempts := 0
	_, err := pipeline.Execute(context.Background(), "platform", func(context.Context) (core.TransportResponse, error) {
		attempts++
		return core.TransportResponse{StatusCode: 502}, nil
	})
	if attempts != 3 {
		t.Fatalf("expected max retries plus one attempts, got %d", attempts)
	}
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) || richErr.TextCode != core.ErrorCodeUpstream {
		t.Fatalf("expected upstream error, got %v", err)
	}
	if richErr.Metadata["upstream_status"] != 502 {
		t.Fatalf("expected upstream status metadata, got %#v", richErr.Metadata)
	}
}

func TestPipeline_RetryAfterOverridesBackoff(t *testing.T) {
	clock := newManualClock()
	var sleeps []time.Duration
	pipeline := newTestPipeline(clock, &sleeps)

	attempts := 0
	_, err := pipeline.Execute(context.Background(), "platform", func(context.Context) (core.TransportResponse, error) {
		attempts++
		if attempts == 1 {
			return core.TransportResponse{
				StatusCode: 429,
				Headers:    map[string]string{"Retry-After": "3"},
			}, nil
		}
		return core.TransportResponse{StatusCode: 200}, nil
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if len(sleeps) != 1 || sleeps[0] != 3*time.Second {
		t.Fatalf("expected upstream retry hint to win, got %v", sleeps)
	}
}

func TestPipeline_PersistentThrottleSurfacesThrottledError(t *testing.T) {
	clock := newManualClock()
	pipeline := newTestPipeline(clock, nil)

	_, err := pipeline.Execute(context.Background(), "platform", func(context.Context) (core.TransportResponse, error) {
		return core.TransportResponse{StatusCode: 429}, nil
	})
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) || richErr.TextCode != core.ErrorCodeThrottled {
		t.Fatalf("expected throttled error after exhausted retries, got %v", err)
	}
}

func TestPipeline_SubFiveHundredResponsesPassThrough(t *testing.T) {
	clock := newManualClock()
	pipeline := newTestPipeline(clock, nil)

	attempts := 0
	res, err := pipeline.Execute(context.Background(), "platform", func(context.Context) (core.TransportResponse, error) {
		attempts++
		return core.TransportResponse{StatusCode: 404}, nil
	})
	if err != nil {
		t.Fatalf("expected 404 to pass through, got %v", err)
	}
	if res.StatusCode != 404 || attempts != 1 {
		t.Fatalf("expected single untouched attempt, got status %d after %d attempts", res.StatusCode, attempts)
	}
}

func TestPipeline_ContextCancellationIsNotRetried(t *testing.T) {
	clock := newManualClock()
	pipeline := newTestPipeline(clock, nil)

	attempts := 0
	_, err := pipeline.Execute(context.Background(), "platform", func(context.Context) (core.TransportResponse, error) {
		attempts++
		return core.TransportResponse{}, context.Canceled
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation to surface, got %v", err)
	}
	if attempts != 1 {
		t.Fatalf("cancellation must not be retried, got %d attempts", attempts)
	}
}

func TestPipeline_BadInputErrorsAreNotRetried(t *testing.T) {
	clock := newManualClock()
	pipeline := newTestPipeline(clock, nil)

	attempts := 0
	_, err := pipeline.Execute(context.Background(), "platform", func(context.Context) (core.TransportResponse, error) {
		attempts++
		return core.TransportResponse{}, core.NewBadInputError("transport: request URL is invalid")
	})
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) || richErr.TextCode != core.ErrorCodeBadInput {
		t.Fatalf("expected bad input to surface unchanged, got %v", err)
	}
	if attempts != 1 {
		t.Fatalf("malformed requests must not be retried, got %d attempts", attempts)
	}

	// Caller defects do not count against the breaker, even past the
	// failure threshold.
	for i := 0; i < 4; i++ {
		if _, err := pipeline.Execute(context.Background(), "platform", func(context.Context) (core.TransportResponse, error) {
			return core.TransportResponse{}, core.NewBadInputError("transport: request URL is invalid")
		}); err == nil {
			t.Fatalf("expected bad input error on execution %d", i)
		}
	}
	if pipeline.BreakerState("platform") != StateClosed {
		t.Fatalf("bad input must not trip the breaker, got %v", pipeline.BreakerState("platform"))
	}
}

func TestPipeline_TripsAndFailsFastPerChannel(t *testing.T) {
	clock := newManualClock()
	pipeline := newTestPipeline(clock, nil)
	ctx := context.Background()

	fail := func(context.Context) (core.TransportResponse, error) {
		return core.TransportResponse{StatusCode: 500}, nil
	}
	// One execution reports three failures, enough to trip the breaker.
	if _, err := pipeline.Execute(ctx, "platform", fail); err == nil {
		t.Fatalf("expected failing execution to error")
	}
	if pipeline.BreakerState("platform") != StateOpen {
		t.Fatalf("expected open platform breaker, got %v", pipeline.BreakerState("platform"))
	}

	attempts := 0
	_, err := pipeline.Execute(ctx, "platform", func(context.Context) (core.TransportResponse, error) {
		attempts++
		return core.TransportResponse{StatusCode: 200}, nil
	})
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) || richErr.TextCode != core.ErrorCodeCircuitOpen {
		t.Fatalf("expected circuit open fail-fast, got %v", err)
	}
	if attempts != 0 {
		t.Fatalf("open circuit must not reach the transport, got %d attempts", attempts)
	}

	// Channels are independent.
	if _, err := pipeline.Execute(ctx, "other", func(context.Context) (core.TransportResponse, error) {
		return core.TransportResponse{StatusCode: 200}, nil
	}); err != nil {
		t.Fatalf("other channel must stay closed: %v", err)
	}
}

func TestPipeline_ThrottlePolicyBlocksBeforeTransport(t *testing.T) {
	clock := newManualClock()
	store := NewMemoryStateStore()
	policy := testThrottlePolicy(store, clock)
	pipeline := newTestPipeline(clock, nil, WithThrottlePolicy(policy))
	ctx := context.Background()

	until := clock.Now().Add(30 * time.Second)
	if err := store.Upsert(ctx, ThrottleState{
		Key:            core.ThrottleKey{Channel: "platform", BucketKey: "api"},
		ThrottledUntil: &until,
	}); err != nil {
		t.Fatalf("seed state: %v", err)
	}

	attempts := 0
	_, err := pipeline.Execute(ctx, "platform", func(context.Context) (core.TransportResponse, error) {
		attempts++
		return core.TransportResponse{StatusCode: 200}, nil
	})
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) || richErr.TextCode != core.ErrorCodeThrottled {
		t.Fatalf("expected throttled fail-fast, got %v", err)
	}
	if attempts != 0 {
		t.Fatalf("active throttle window must not reach the transport, got %d attempts", attempts)
	}
}

func TestPipeline_RecordsThrottleStateAfterResponses(t *testing.T) {
	clock := newManualClock()
	store := NewMemoryStateStore()
	policy := testThrottlePolicy(store, clock)
	pipeline := newTestPipeline(clock, nil, WithThrottlePolicy(policy))

	if _, err := pipeline.Execute(context.Background(), "platform", func(context.Context) (core.TransportResponse, error) {
		return core.TransportResponse{
			StatusCode: 200,
			Headers:    map[string]string{"X-RateLimit-Remaining": "17"},
		}, nil
	}); err != nil {
		t.Fatalf("execute: %v", err)
	}

	state, err := store.Get(context.Background(), core.ThrottleKey{Channel: "platform", BucketKey: "api"})
	if err != nil {
		t.Fatalf("get state: %v", err)
	}
	if state.Remaining != 17 || state.LastStatus != 200 {
		t.Fatalf("unexpected recorded state %#v", state)
	}
}

func TestPipeline_TransitionListenerObservesTrip(t *testing.T) {
	clock := newManualClock()
	var events []TransitionEvent
	pipeline := newTestPipeline(clock, nil, WithTransitionListener(func(event TransitionEvent) {
		events = append(events, event)
	}))

	if _, err := pipeline.Execute(context.Background(), "platform", func(context.Context) (core.TransportResponse, error) {
		return core.TransportResponse{StatusCode: 500}, nil
	}); err == nil {
		t.Fatalf("expected failing execution to error")
	}

	if len(events) != 1 || events[0].To != StateOpen || events[0].Channel != "platform" {
		t.Fatalf("expected trip event, got %#v", events)
	}
}
