package core

import (
	"context"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger

// MetricsRecorder receives operation counters and timings. Implementations
// must be safe for concurrent use; a nil recorder disables metrics.
type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}

// TransportRequest is the wire-level request handed to a TransportAdapter.
type TransportRequest struct {
	Method               string
	URL                  string
	Headers              map[string]string
	Query                map[string]string
	Body                 []byte
	Timeout              time.Duration
	MaxResponseBodyBytes int64
}

// TransportResponse is the wire-level response a TransportAdapter returns.
// Native platform payloads never escape the operations mapping layer.
type TransportResponse struct {
	StatusCode int
	Headers    map[string]string
	Body       []byte
	Metadata   map[string]any
}

// TransportAdapter executes one wire round trip against the document
// platform.
type TransportAdapter interface {
	Do(ctx context.Context, req TransportRequest) (TransportResponse, error)
}

// Pipeline wraps an outbound call with the shared retry, circuit-breaker
// and timeout policies. Channel names partition breaker state.
type Pipeline interface {
	Execute(ctx context.Context, channel string, op func(context.Context) (TransportResponse, error)) (TransportResponse, error)
}

// TokenExchanger performs the on-behalf-of exchange against the identity
// provider: a user bearer token in, a downstream-scoped token out. Exchange
// failures are permanent for the call; the pipeline never retries them.
type TokenExchanger interface {
	Exchange(ctx context.Context, userToken string, scopes []string) (ExchangedToken, error)
}

type ExchangedToken struct {
	AccessToken string
	TokenType   string
	ExpiresAt   time.Time
}

// AccessResolver queries the authorization backend for a user's effective
// right names on a resource.
type AccessResolver interface {
	ResolveRights(ctx context.Context, userID string, resourceID string) ([]string, error)
}

// ThrottleKey partitions upstream throttle state per channel and bucket.
type ThrottleKey struct {
	Channel   string
	BucketKey string
}

// UpstreamResponseMeta is what the resilience layer learns from one
// upstream response: status plus whatever rate-limit headers were present.
type UpstreamResponseMeta struct {
	StatusCode int
	Headers    map[string]string
	RetryAfter *time.Duration
}

// ThrottleStatePolicy tracks upstream throttle windows so that calls made
// while a Retry-After window is active fail fast instead of burning the
// remote quota.
type ThrottleStatePolicy interface {
	BeforeCall(ctx context.Context, key ThrottleKey) error
	AfterCall(ctx context.Context, key ThrottleKey, res UpstreamResponseMeta) error
}
