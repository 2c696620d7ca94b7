package credentials

import (
	"context"
	"fmt"
	"strings"

	"github.com/goliatone/go-docaccess/core"
)

const (
	KindAppIdentity = "app"
	KindDelegated   = "delegated"
)

// Client is an authenticated caller against the remote platform. Every call
// goes through the shared resilience pipeline; there is no way to reach the
// transport without it.
type Client struct {
	kind     string
	channel  string
	token    core.ExchangedToken
	adapter  core.TransportAdapter
	pipeline core.Pipeline
	subject  string
}

func (c *Client) Kind() string {
	if c == nil {
		return ""
	}
	return c.kind
}

// Subject is the stable user identifier behind a delegated client, empty
// for app-identity clients.
func (c *Client) Subject() string {
	if c == nil {
		return ""
	}
	return c.subject
}

func (c *Client) authorization() string {
	tokenType := strings.TrimSpace(c.token.TokenType)
	if tokenType == "" {
		tokenType = "Bearer"
	}
	return tokenType + " " + c.token.AccessToken
}

// Call executes a transport request with the client's credential attached,
// wrapped by the resilience pipeline.
func (c *Client) Call(ctx context.Context, req core.TransportRequest) (core.TransportResponse, error) {
	if c == nil || c.adapter == nil || c.pipeline == nil {
		return core.TransportResponse{}, fmt.Errorf("credentials: client is not configured")
	}
	if req.Headers == nil {
		req.Headers = map[string]string{}
	}
	req.Headers["Authorization"] = c.authorization()
	return c.pipeline.Execute(ctx, c.channel, func(attemptCtx context.Context) (core.TransportResponse, error) {
		return c.adapter.Do(attemptCtx, req)
	})
}

// CallUnsigned executes a request without attaching the client credential,
// still wrapped by the resilience pipeline. Upload session URLs are
// pre-authorized and reject requests that carry a second credential.
func (c *Client) CallUnsigned(ctx context.Context, req core.TransportRequest) (core.TransportResponse, error) {
	if c == nil || c.adapter == nil || c.pipeline == nil {
		return core.TransportResponse{}, fmt.Errorf("credentials: client is not configured")
	}
	return c.pipeline.Execute(ctx, c.channel, func(attemptCtx context.Context) (core.TransportResponse, error) {
		return c.adapter.Do(attemptCtx, req)
	})
}
