package operations

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/goliatone/go-docaccess/core"
	"github.com/goliatone/go-docaccess/credentials"
)

const (
	defaultMaxPageSize     = 200
	defaultRequestTimeout  = 30 * time.Second
	defaultSmallUploadMax  = 4 << 20
	defaultChunkSizeMin    = 320 << 10
	defaultChunkSizeMax    = 60 << 20
)

// ClientProvider hands out authenticated clients for the two credential
// kinds. credentials.Factory satisfies it.
type ClientProvider interface {
	AppClient(ctx context.Context) (*credentials.Client, error)
	DelegatedClient(ctx context.Context, userToken string) (*credentials.Client, error)
	SessionClient() *credentials.Client
}

type Config struct {
	BaseURL               string
	RequestTimeout        time.Duration
	MaxPageSize           int
	SmallUploadLimitBytes int64
	ChunkSizeMinBytes     int64
	ChunkSizeMaxBytes     int64
	Now                   func() time.Time
}

// Operations groups the four remote-call modules. Each module exposes a
// parallel pair of method families: app-identity and delegated (suffixed
// As, user token first).
type Operations struct {
	config   Config
	clients  ClientProvider
	observer core.Observer

	Containers *ContainerOperations
	Items      *ItemOperations
	Uploads    *UploadOperations
	Identity   *IdentityOperations
}

type Option func(*Operations)

func WithObserver(observer core.Observer) Option {
	return func(o *Operations) {
		o.observer = observer
	}
}

func New(cfg Config, clients ClientProvider, options ...Option) (*Operations, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, fmt.Errorf("operations: base url is required")
	}
	parsed, err := url.Parse(base)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("operations: base url %q is not absolute", cfg.BaseURL)
	}
	if clients == nil {
		return nil, fmt.Errorf("operations: client provider is required")
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}
	if cfg.MaxPageSize <= 0 {
		cfg.MaxPageSize = defaultMaxPageSize
	}
	if cfg.SmallUploadLimitBytes <= 0 {
		cfg.SmallUploadLimitBytes = defaultSmallUploadMax
	}
	if cfg.ChunkSizeMinBytes <= 0 {
		cfg.ChunkSizeMinBytes = defaultChunkSizeMin
	}
	if cfg.ChunkSizeMaxBytes < cfg.ChunkSizeMinBytes {
		cfg.ChunkSizeMaxBytes = defaultChunkSizeMax
	}
	if cfg.Now == nil {
		cfg.Now = func() time.Time { return time.Now().UTC() }
	}
	cfg.BaseURL = base

	ops := &Operations{
		config:  cfg,
		clients: clients,
	}
	for _, option := range options {
		if option == nil {
			continue
		}
		option(ops)
	}
	ops.Containers = &ContainerOperations{ops: ops}
	ops.Items = &ItemOperations{ops: ops}
	ops.Uploads = &UploadOperations{ops: ops}
	ops.Identity = &IdentityOperations{ops: ops}
	return ops, nil
}

func (o *Operations) appClient(ctx context.Context) (*credentials.Client, error) {
	return o.clients.AppClient(ctx)
}

func (o *Operations) delegatedClient(ctx context.Context, userToken string) (*credentials.Client, error) {
	return o.clients.DelegatedClient(ctx, userToken)
}

func (o *Operations) endpoint(segments ...string) string {
	escaped := make([]string, 0, len(segments))
	for _, segment := range segments {
		escaped = append(escaped, url.PathEscape(segment))
	}
	return o.config.BaseURL + "/" + strings.Join(escaped, "/")
}

func (o *Operations) call(ctx context.Context, client *credentials.Client, req core.TransportRequest) (core.TransportResponse, error) {
	if req.Timeout <= 0 {
		req.Timeout = o.config.RequestTimeout
	}
	if req.Headers == nil {
		req.Headers = map[string]string{}
	}
	if _, ok := req.Headers["Accept"]; !ok {
		req.Headers["Accept"] = "application/json"
	}
	return client.Call(ctx, req)
}

// sessionCall targets a pre-authorized URL such as an upload session. The
// request rides the platform channel's pipeline but carries no
// Authorization header of its own.
func (o *Operations) sessionCall(ctx context.Context, req core.TransportRequest) (core.TransportResponse, error) {
	client := o.clients.SessionClient()
	if req.Timeout <= 0 {
		req.Timeout = o.config.RequestTimeout
	}
	return client.CallUnsigned(ctx, req)
}

func (o *Operations) observe(ctx context.Context, startedAt time.Time, operation string, err error, fields map[string]any) {
	o.observer.Observe(ctx, startedAt, operation, err, fields)
}
