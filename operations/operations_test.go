package operations

import (
	"context"
	"encoding/base64"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/goliatone/go-docaccess/core"
	"github.com/goliatone/go-docaccess/credentials"
	goerrors "github.com/goliatone/go-errors"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type scriptedCall struct {
	res core.TransportResponse
	err error
}

// scriptedAdapter replays queued responses in order and records every
// request it saw.
type scriptedAdapter struct {
	mu       sync.Mutex
	queue    []scriptedCall
	requests []core.TransportRequest
}

func (a *scriptedAdapter) Do(_ context.Context, req core.TransportRequest) (core.TransportResponse, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.requests = append(a.requests, req)
	if len(a.queue) == 0 {
		return core.TransportResponse{}, fmt.Errorf("no scripted response for %s %s", req.Method, req.URL)
	}
	next := a.queue[0]
	a.queue = a.queue[1:]
	return next.res, next.err
}

func (a *scriptedAdapter) enqueue(status int, body string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.queue = append(a.queue, scriptedCall{res: core.TransportResponse{
		StatusCode: status,
		Headers:    map[string]string{"Content-Type": "application/json"},
		Body:       []byte(body),
	}})
}

func (a *scriptedAdapter) callCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.requests)
}

func (a *scriptedAdapter) request(t *testing.T, index int) core.TransportRequest {
	t.Helper()
	a.mu.Lock()
	defer a.mu.Unlock()
	if index >= len(a.requests) {
		t.Fatalf("expected at least %d requests, got %d", index+1, len(a.requests))
	}
	return a.requests[index]
}

type stubTokenSource struct{}

func (stubTokenSource) Token(context.Context) (core.ExchangedToken, error) {
	return core.ExchangedToken{
		AccessToken: "app_token",
		TokenType:   "Bearer",
		ExpiresAt:   testNow.Add(time.Hour),
	}, nil
}

type stubExchanger struct{}

func (stubExchanger) Exchange(context.Context, string, []string) (core.ExchangedToken, error) {
	return core.ExchangedToken{
		AccessToken: "obo_token",
		TokenType:   "Bearer",
		ExpiresAt:   testNow.Add(time.Hour),
	}, nil
}

type passthroughPipeline struct{}

func (passthroughPipeline) Execute(ctx context.Context, _ string, op func(context.Context) (core.TransportResponse, error)) (core.TransportResponse, error) {
	return op(ctx)
}

func delegatedToken(subject string) string {
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"RS256"}`))
	payload := base64.RawURLEncoding.EncodeToString([]byte(fmt.Sprintf(`{"sub":%q}`, subject)))
	return header + "." + payload + ".sig"
}

func newTestOperations(t *testing.T, adapter *scriptedAdapter, mutators ...func(*Config)) *Operations {
	t.Helper()
	factory, err := credentials.NewFactory(credentials.FactoryConfig{
		Scopes: []string{"Files.ReadWrite.All"},
		Now:    func() time.Time { return testNow },
	}, stubTokenSource{}, stubExchanger{}, adapter, passthroughPipeline{})
	if err != nil {
		t.Fatalf("NewFactory: %v", err)
	}
	cfg := Config{
		BaseURL:               "https://platform.example.com/v1",
		MaxPageSize:           100,
		SmallUploadLimitBytes: 64,
		ChunkSizeMinBytes:     8,
		ChunkSizeMaxBytes:     16,
		Now:                   func() time.Time { return testNow },
	}
	for _, mutate := range mutators {
		mutate(&cfg)
	}
	ops, err := New(cfg, factory)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return ops
}

func assertErrorCode(t *testing.T, err error, textCode string) *goerrors.Error {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", textCode)
	}
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		t.Fatalf("expected a rich error, got %T: %v", err, err)
	}
	if richErr.TextCode != textCode {
		t.Fatalf("expected text code %s, got %s (%v)", textCode, richErr.TextCode, err)
	}
	return richErr
}

func TestNew_Validation(t *testing.T) {
	adapter := &scriptedAdapter{}
	factory, err := credentials.NewFactory(credentials.FactoryConfig{}, stubTokenSource{}, stubExchanger{}, adapter, passthroughPipeline{})
	if err != nil {
		t.Fatalf("NewFactory: %v", err)
	}

	if _, err := New(Config{}, factory); err == nil {
		t.Fatal("expected an error for a missing base url")
	}
	if _, err := New(Config{BaseURL: "platform.example.com/v1"}, factory); err == nil {
		t.Fatal("expected an error for a relative base url")
	}
	if _, err := New(Config{BaseURL: "https://platform.example.com/v1"}, nil); err == nil {
		t.Fatal("expected an error for a nil client provider")
	}
}

func TestNew_TrimsTrailingSlash(t *testing.T) {
	adapter := &scriptedAdapter{}
	ops := newTestOperations(t, adapter, func(cfg *Config) {
		cfg.BaseURL = "https://platform.example.com/v1/"
	})
	adapter.enqueue(200, `{"value":[]}`)

	if _, err := ops.Containers.List(context.Background()); err != nil {
		t.Fatalf("List: %v", err)
	}
	req := adapter.request(t, 0)
	if req.URL != "https://platform.example.com/v1/containers" {
		t.Fatalf("unexpected URL %q", req.URL)
	}
}

func TestCall_DefaultsAcceptHeader(t *testing.T) {
	adapter := &scriptedAdapter{}
	ops := newTestOperations(t, adapter)
	adapter.enqueue(200, `{"value":[]}`)

	if _, err := ops.Containers.List(context.Background()); err != nil {
		t.Fatalf("List: %v", err)
	}
	req := adapter.request(t, 0)
	if req.Headers["Accept"] != "application/json" {
		t.Fatalf("expected Accept application/json, got %q", req.Headers["Accept"])
	}
	if req.Timeout != defaultRequestTimeout {
		t.Fatalf("expected default timeout %v, got %v", defaultRequestTimeout, req.Timeout)
	}
}

func TestEndpoint_EscapesSegments(t *testing.T) {
	adapter := &scriptedAdapter{}
	ops := newTestOperations(t, adapter)
	adapter.enqueue(200, `{"id":"itm_1","name":"plan a.txt","size":10}`)

	if _, err := ops.Items.Get(context.Background(), "ctr 1", "itm 1"); err != nil {
		t.Fatalf("Get: %v", err)
	}
	req := adapter.request(t, 0)
	want := "https://platform.example.com/v1/containers/ctr%201/items/itm%201"
	if req.URL != want {
		t.Fatalf("expected URL %q, got %q", want, req.URL)
	}
}
