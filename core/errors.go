package core

import (
	"net/http"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

const (
	ErrorCodeBadInput          = "DOCACCESS_BAD_INPUT"
	ErrorCodeInvalidCredential = "DOCACCESS_INVALID_CREDENTIAL"
	ErrorCodeAccessDenied      = "DOCACCESS_ACCESS_DENIED"
	ErrorCodeNotFound          = "DOCACCESS_NOT_FOUND"
	ErrorCodeConflict          = "DOCACCESS_CONFLICT"
	ErrorCodePayloadTooLarge   = "DOCACCESS_PAYLOAD_TOO_LARGE"
	ErrorCodeRangeInvalid      = "DOCACCESS_RANGE_NOT_SATISFIABLE"
	ErrorCodeThrottled         = "DOCACCESS_THROTTLED"
	ErrorCodeRateLimited       = "DOCACCESS_RATE_LIMITED"
	ErrorCodeCircuitOpen       = "DOCACCESS_CIRCUIT_OPEN"
	ErrorCodeUpstream          = "DOCACCESS_UPSTREAM_FAILURE"
	ErrorCodeInternal          = "DOCACCESS_INTERNAL_ERROR"
)

func NewBadInputError(message string) *goerrors.Error {
	return goerrors.New(message, goerrors.CategoryBadInput).
		WithCode(http.StatusBadRequest).
		WithTextCode(ErrorCodeBadInput)
}

func NewInvalidCredentialError(message string) *goerrors.Error {
	return goerrors.New(message, goerrors.CategoryAuth).
		WithCode(http.StatusUnauthorized).
		WithTextCode(ErrorCodeInvalidCredential)
}

func NewAccessDeniedError(message string) *goerrors.Error {
	return goerrors.New(message, goerrors.CategoryAuthz).
		WithCode(http.StatusForbidden).
		WithTextCode(ErrorCodeAccessDenied)
}

func NewConflictError(message string) *goerrors.Error {
	return goerrors.New(message, goerrors.CategoryConflict).
		WithCode(http.StatusConflict).
		WithTextCode(ErrorCodeConflict)
}

func NewPayloadTooLargeError(message string, sizeBytes int64, limitBytes int64) *goerrors.Error {
	metadata := map[string]any{"limit_bytes": limitBytes}
	if sizeBytes > 0 {
		metadata["size_bytes"] = sizeBytes
	}
	return goerrors.New(message, goerrors.CategoryBadInput).
		WithCode(http.StatusRequestEntityTooLarge).
		WithTextCode(ErrorCodePayloadTooLarge).
		WithMetadata(metadata)
}

// NewThrottledError surfaces an upstream 429 after retries are exhausted.
// RetryAfter, when known, rides in metadata so the boundary can emit a
// Retry-After header.
func NewThrottledError(message string, retryAfter time.Duration) *goerrors.Error {
	err := goerrors.New(message, goerrors.CategoryRateLimit).
		WithCode(http.StatusTooManyRequests).
		WithTextCode(ErrorCodeThrottled)
	if retryAfter > 0 {
		err = err.WithMetadata(map[string]any{"retry_after_ms": retryAfter.Milliseconds()})
	}
	return err
}

// NewRateLimitedError is the admission-control rejection: the call never
// reached the facade.
func NewRateLimitedError(message string, retryAfter time.Duration) *goerrors.Error {
	err := goerrors.New(message, goerrors.CategoryRateLimit).
		WithCode(http.StatusTooManyRequests).
		WithTextCode(ErrorCodeRateLimited)
	if retryAfter > 0 {
		err = err.WithMetadata(map[string]any{"retry_after_ms": retryAfter.Milliseconds()})
	}
	return err
}

func NewCircuitOpenError(channel string, retryAfter time.Duration) *goerrors.Error {
	metadata := map[string]any{"channel": strings.TrimSpace(channel)}
	if retryAfter > 0 {
		metadata["retry_after_ms"] = retryAfter.Milliseconds()
	}
	return goerrors.New("resilience: circuit is open", goerrors.CategoryExternal).
		WithCode(http.StatusServiceUnavailable).
		WithTextCode(ErrorCodeCircuitOpen).
		WithMetadata(metadata)
}

func NewUpstreamError(message string, statusCode int) *goerrors.Error {
	return goerrors.New(message, goerrors.CategoryExternal).
		WithCode(http.StatusBadGateway).
		WithTextCode(ErrorCodeUpstream).
		WithMetadata(map[string]any{"upstream_status": statusCode})
}

// NewInternalError wraps an unexpected failure with a correlation id. The
// cause is preserved for logs; the caller only sees the generic message.
func NewInternalError(cause error) *goerrors.Error {
	correlationID := uuid.NewString()
	err := goerrors.New("an unexpected error occurred", goerrors.CategoryInternal).
		WithCode(http.StatusInternalServerError).
		WithTextCode(ErrorCodeInternal).
		WithMetadata(map[string]any{"correlation_id": correlationID})
	if cause != nil {
		err = goerrors.Wrap(cause, goerrors.CategoryInternal, "an unexpected error occurred").
			WithCode(http.StatusInternalServerError).
			WithTextCode(ErrorCodeInternal).
			WithMetadata(map[string]any{"correlation_id": correlationID})
	}
	return err
}

// IsAccessDenied reports whether err carries the authorization-denied
// category, regardless of wrapping.
func IsAccessDenied(err error) bool {
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		return false
	}
	return richErr.Category == goerrors.CategoryAuthz
}

// IsThrottled reports whether err is an upstream throttle or admission
// rejection.
func IsThrottled(err error) bool {
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		return false
	}
	return richErr.Category == goerrors.CategoryRateLimit
}

// RetryAfterHint extracts the suggested wait from a throttle or circuit
// error, zero when absent.
func RetryAfterHint(err error) time.Duration {
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		return 0
	}
	raw, ok := richErr.Metadata["retry_after_ms"]
	if !ok {
		return 0
	}
	switch value := raw.(type) {
	case int64:
		return time.Duration(value) * time.Millisecond
	case int:
		return time.Duration(value) * time.Millisecond
	case float64:
		return time.Duration(value) * time.Millisecond
	}
	return 0
}
