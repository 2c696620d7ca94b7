package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goliatone/go-docaccess/core"
	goerrors "github.com/goliatone/go-errors"
)

const (
	defaultClientTimeout       = 30 * time.Second
	defaultAcceptContent       = "application/json"
	defaultUserAgent           = "go-docaccess"
	defaultResponseBudgetBytes = int64(64 << 20) // chunked downloads need headroom
)

type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// PlatformAdapter is the single wire boundary to the document platform.
// The platform speaks two dialects over plain HTTPS: JSON envelopes for
// metadata operations and raw octet streams, usually ranged, for content
// transfer. Every outbound call in the module funnels through Do.
type PlatformAdapter struct {
	Client    HTTPDoer
	UserAgent string
	// ResponseBudgetBytes caps how much of a response body Do buffers.
	// Content downloads raise the cap per request to fit a full byte
	// range; everything else stays under the default.
	ResponseBudgetBytes int64
}

func NewPlatformAdapter(client HTTPDoer) *PlatformAdapter {
	if client == nil {
		client = &http.Client{Timeout: defaultClientTimeout}
	}
	return &PlatformAdapter{
		Client:              client,
		UserAgent:           defaultUserAgent,
		ResponseBudgetBytes: defaultResponseBudgetBytes,
	}
}

// Do executes one platform round trip and buffers the full response.
// Request defects surface as bad input; network and upstream read
// failures surface as external faults so the resilience layer can retry
// them.
func (a *PlatformAdapter) Do(ctx context.Context, req core.TransportRequest) (core.TransportResponse, error) {
	if a == nil || a.Client == nil {
		return core.TransportResponse{}, platformFault(
			goerrors.CategoryInternal,
			"transport: platform adapter requires an http client",
			http.StatusInternalServerError,
			nil,
		)
	}
	if ctx == nil {
		ctx = context.Background()
	}

	requestCtx := ctx
	cancel := func() {}
	if req.Timeout > 0 {
		requestCtx, cancel = context.WithTimeout(ctx, req.Timeout)
	}
	defer cancel()

	httpReq, err := a.buildRequest(requestCtx, req)
	if err != nil {
		return core.TransportResponse{}, err
	}

	startedAt := time.Now().UTC()
	httpRes, err := a.Client.Do(httpReq)
	if err != nil {
		return core.TransportResponse{}, wrapPlatformFault(
			err,
			goerrors.CategoryExternal,
			"transport: platform call failed",
			http.StatusBadGateway,
			map[string]any{"method": httpReq.Method, "url": httpReq.URL.String()},
		)
	}
	defer httpRes.Body.Close()

	body, err := a.bufferBody(httpRes, req.MaxResponseBodyBytes)
	if err != nil {
		return core.TransportResponse{}, err
	}

	return core.TransportResponse{
		StatusCode: httpRes.StatusCode,
		Headers:    collapseHeaders(httpRes.Header),
		Body:       body,
		Metadata: map[string]any{
			"duration_ms": time.Since(startedAt).Milliseconds(),
			"partial":     httpRes.StatusCode == http.StatusPartialContent,
		},
	}, nil
}

// buildRequest turns a transport request into an *http.Request carrying
// the platform conventions: GET when no method is given, Accept
// application/json unless the caller wants raw content, and the module's
// user agent.
func (a *PlatformAdapter) buildRequest(ctx context.Context, req core.TransportRequest) (*http.Request, error) {
	target, err := resolveTarget(req)
	if err != nil {
		return nil, err
	}

	method := strings.ToUpper(strings.TrimSpace(req.Method))
	if method == "" {
		method = http.MethodGet
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, target, bytes.NewReader(req.Body))
	if err != nil {
		return nil, wrapPlatformFault(
			err,
			goerrors.CategoryBadInput,
			"transport: build platform request",
			http.StatusBadRequest,
			map[string]any{"method": method, "url": target},
		)
	}

	httpReq.Header.Set("Accept", defaultAcceptContent)
	if a.UserAgent != "" {
		httpReq.Header.Set("User-Agent", a.UserAgent)
	}
	for key, value := range req.Headers {
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		httpReq.Header.Set(key, strings.TrimSpace(value))
	}
	return httpReq, nil
}

// resolveTarget validates the request URL and folds loose query
// parameters into it. Paging tokens arrive as pre-encoded URLs while
// list filters arrive as a query map; both must survive the merge.
func resolveTarget(req core.TransportRequest) (string, error) {
	raw := strings.TrimSpace(req.URL)
	if raw == "" {
		return "", platformFault(
			goerrors.CategoryBadInput,
			"transport: request url is required",
			http.StatusBadRequest,
			nil,
		)
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return "", wrapPlatformFault(
			err,
			goerrors.CategoryBadInput,
			"transport: request url is invalid",
			http.StatusBadRequest,
			map[string]any{"url": raw},
		)
	}
	if len(req.Query) > 0 {
		query := parsed.Query()
		for key, value := range req.Query {
			key = strings.TrimSpace(key)
			if key == "" {
				continue
			}
			query.Set(key, strings.TrimSpace(value))
		}
		parsed.RawQuery = query.Encode()
	}
	return parsed.String(), nil
}

// bufferBody reads at most one byte past the budget so an oversized
// response is detected without draining it.
func (a *PlatformAdapter) bufferBody(res *http.Response, requestBudget int64) ([]byte, error) {
	budget := requestBudget
	if budget <= 0 {
		budget = a.ResponseBudgetBytes
	}
	if budget <= 0 {
		budget = defaultResponseBudgetBytes
	}

	body, err := io.ReadAll(io.LimitReader(res.Body, budget+1))
	if err != nil {
		return nil, wrapPlatformFault(
			err,
			goerrors.CategoryExternal,
			"transport: read platform response",
			http.StatusBadGateway,
			map[string]any{"status_code": res.StatusCode},
		)
	}
	if int64(len(body)) > budget {
		return nil, platformFault(
			goerrors.CategoryExternal,
			fmt.Sprintf("transport: platform response larger than %d bytes", budget),
			http.StatusBadGateway,
			map[string]any{"status_code": res.StatusCode, "budget_bytes": budget},
		)
	}
	return body, nil
}

func collapseHeaders(headers http.Header) map[string]string {
	flat := make(map[string]string, len(headers))
	for key, values := range headers {
		flat[key] = strings.Join(values, ",")
	}
	return flat
}

func platformFault(category goerrors.Category, message string, status int, metadata map[string]any) error {
	err := goerrors.New(message, category).
		WithCode(status).
		WithTextCode(faultTextCode(category))
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

func wrapPlatformFault(cause error, category goerrors.Category, message string, status int, metadata map[string]any) error {
	if cause == nil {
		return platformFault(category, message, status, metadata)
	}
	err := goerrors.Wrap(cause, category, message).
		WithCode(status).
		WithTextCode(faultTextCode(category))
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

func faultTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return core.ErrorCodeBadInput
	case goerrors.CategoryAuth:
		return core.ErrorCodeInvalidCredential
	case goerrors.CategoryAuthz:
		return core.ErrorCodeAccessDenied
	case goerrors.CategoryRateLimit:
		return core.ErrorCodeThrottled
	case goerrors.CategoryExternal:
		return core.ErrorCodeUpstream
	default:
		return core.ErrorCodeInternal
	}
}

var _ core.TransportAdapter = (*PlatformAdapter)(nil)
