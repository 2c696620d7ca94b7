package docaccess

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/goliatone/go-docaccess/admission"
	doccommand "github.com/goliatone/go-docaccess/command"
	"github.com/goliatone/go-docaccess/core"
	"github.com/goliatone/go-docaccess/credentials"
	"github.com/goliatone/go-docaccess/operations"
	"github.com/goliatone/go-docaccess/permissions"
	docquery "github.com/goliatone/go-docaccess/query"
	"github.com/goliatone/go-docaccess/resilience"
	"github.com/goliatone/go-docaccess/transport"
)

// Aliases so most callers only import this package.
type (
	Config           = core.Config
	ResourceHandle   = core.ResourceHandle
	ItemDescriptor   = core.ItemDescriptor
	ListingPage      = core.ListingPage
	ContentSlice     = core.ContentSlice
	ByteRange        = core.ByteRange
	UploadSession    = core.UploadSession
	ChunkResult      = core.ChunkResult
	IdentitySnapshot = core.IdentitySnapshot
	CapabilitySet    = core.CapabilitySet
	AccessRights     = core.AccessRights
	ListOptions      = operations.ListOptions
	DownloadOptions  = operations.DownloadOptions
)

const defaultTokenEndpointFormat = "https://login.microsoftonline.com/%s/oauth2/v2.0/token"

// Service is the wired composite: admission in front, permission cache
// beside, and the facade over the operation modules. Hosts consume requests
// through Admission and Permissions before invoking Facade methods.
type Service struct {
	config      core.Config
	observer    core.Observer
	pipeline    *resilience.Pipeline
	factory     *credentials.Factory
	operations  *operations.Operations
	admission   *admission.Limiter
	permissions *permissions.Cache
	facade      *Facade
}

type Option func(*serviceOptions)

type serviceOptions struct {
	logger             core.Logger
	metrics            core.MetricsRecorder
	httpClient         *http.Client
	clientSecret       string
	tokenEndpoint      string
	throttleStore      resilience.StateStore
	accessResolver     core.AccessResolver
	appTokenSource     credentials.AppTokenSource
	tokenExchanger     core.TokenExchanger
	transitionListener resilience.TransitionListener
}

func WithLogger(logger core.Logger) Option {
	return func(o *serviceOptions) { o.logger = logger }
}

func WithMetrics(metrics core.MetricsRecorder) Option {
	return func(o *serviceOptions) { o.metrics = metrics }
}

func WithHTTPClient(client *http.Client) Option {
	return func(o *serviceOptions) { o.httpClient = client }
}

// WithClientSecret supplies the confidential client secret for the
// client-credentials and on-behalf-of grants. Secrets stay out of the
// config struct on purpose.
func WithClientSecret(secret string) Option {
	return func(o *serviceOptions) { o.clientSecret = secret }
}

func WithTokenEndpoint(url string) Option {
	return func(o *serviceOptions) { o.tokenEndpoint = url }
}

// WithThrottleStore swaps the process-local throttle state store for a
// shared one, typically store/sql.
func WithThrottleStore(store resilience.StateStore) Option {
	return func(o *serviceOptions) { o.throttleStore = store }
}

func WithAccessResolver(resolver core.AccessResolver) Option {
	return func(o *serviceOptions) { o.accessResolver = resolver }
}

// WithAppTokenSource overrides the app-identity token acquisition, mainly
// for tests and non-OAuth deployments.
func WithAppTokenSource(source credentials.AppTokenSource) Option {
	return func(o *serviceOptions) { o.appTokenSource = source }
}

func WithTokenExchanger(exchanger core.TokenExchanger) Option {
	return func(o *serviceOptions) { o.tokenExchanger = exchanger }
}

func WithTransitionListener(listener resilience.TransitionListener) Option {
	return func(o *serviceOptions) { o.transitionListener = listener }
}

// New validates the configuration eagerly and wires the full stack:
// transport adapter, resilience pipeline, credential factory, operation
// modules, admission limiter and permission cache.
func New(cfg core.Config, opts ...Option) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	options := &serviceOptions{}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(options)
	}
	if options.accessResolver == nil {
		return nil, fmt.Errorf("docaccess: access resolver is required")
	}

	observer := core.Observer{Logger: options.logger, Metrics: options.metrics}

	var httpDoer transport.HTTPDoer
	if options.httpClient != nil {
		httpDoer = options.httpClient
	}
	adapter := transport.NewPlatformAdapter(httpDoer)

	throttleStore := options.throttleStore
	if throttleStore == nil {
		throttleStore = resilience.NewMemoryStateStore()
	}
	pipelineOpts := []resilience.PipelineOption{
		resilience.WithObserver(observer),
		resilience.WithThrottlePolicy(resilience.NewThrottlePolicy(throttleStore)),
	}
	if options.transitionListener != nil {
		pipelineOpts = append(pipelineOpts, resilience.WithTransitionListener(options.transitionListener))
	}
	pipeline := resilience.NewPipeline(resilience.PipelineConfig{
		MaxRetries:     cfg.Resilience.MaxRetries,
		InitialBackoff: cfg.Resilience.InitialBackoff,
		MaxBackoff:     cfg.Resilience.MaxBackoff,
		AttemptTimeout: cfg.Resilience.AttemptTimeout,
		Breaker: resilience.BreakerConfig{
			FailureThreshold: cfg.Resilience.FailureThreshold,
			FailureWindow:    cfg.Resilience.FailureWindow,
			CoolDown:         cfg.Resilience.CoolDown,
		},
	}, pipelineOpts...)

	appSource := options.appTokenSource
	exchanger := options.tokenExchanger
	if appSource == nil || exchanger == nil {
		tokenClient, err := newTokenClient(cfg, options)
		if err != nil {
			return nil, err
		}
		if appSource == nil {
			appSource = tokenClient
		}
		if exchanger == nil {
			exchanger = tokenClient
		}
	}

	factory, err := credentials.NewFactory(credentials.FactoryConfig{
		Scopes: cfg.Platform.Scopes,
	}, appSource, exchanger, adapter, pipeline)
	if err != nil {
		return nil, err
	}

	ops, err := operations.New(operations.Config{
		BaseURL:               cfg.Platform.BaseURL,
		RequestTimeout:        cfg.Platform.RequestTimeout,
		SmallUploadLimitBytes: cfg.Upload.SmallUploadLimitBytes,
		ChunkSizeMinBytes:     cfg.Upload.ChunkSizeMinBytes,
		ChunkSizeMaxBytes:     cfg.Upload.ChunkSizeMaxBytes,
	}, factory, operations.WithObserver(observer))
	if err != nil {
		return nil, err
	}

	limiter, err := admission.NewLimiter(cfg.Admission, admission.WithObserver(observer))
	if err != nil {
		return nil, err
	}

	permissionCache, err := permissions.NewCache(options.accessResolver, permissions.CacheConfig{
		TTL:              cfg.Permissions.TTL,
		BatchConcurrency: cfg.Permissions.BatchConcurrency,
	}, permissions.WithObserver(observer))
	if err != nil {
		return nil, err
	}

	facade, err := NewFacade(ops)
	if err != nil {
		return nil, err
	}

	return &Service{
		config:      cfg,
		observer:    observer,
		pipeline:    pipeline,
		factory:     factory,
		operations:  ops,
		admission:   limiter,
		permissions: permissionCache,
		facade:      facade,
	}, nil
}

func newTokenClient(cfg core.Config, options *serviceOptions) (*credentials.OAuthTokenClient, error) {
	endpoint := strings.TrimSpace(options.tokenEndpoint)
	if endpoint == "" {
		tenant := strings.TrimSpace(cfg.Platform.TenantID)
		if tenant == "" {
			return nil, fmt.Errorf("docaccess: platform tenant id or an explicit token endpoint is required")
		}
		endpoint = fmt.Sprintf(defaultTokenEndpointFormat, tenant)
	}
	var doer credentials.HTTPDoer
	if options.httpClient != nil {
		doer = options.httpClient
	}
	return credentials.NewOAuthTokenClient(credentials.OAuthEndpointConfig{
		TokenURL:     endpoint,
		ClientID:     cfg.Platform.ClientID,
		ClientSecret: options.clientSecret,
	}, doer)
}

func (s *Service) Facade() *Facade {
	if s == nil {
		return nil
	}
	return s.facade
}

func (s *Service) Admission() *admission.Limiter {
	if s == nil {
		return nil
	}
	return s.admission
}

func (s *Service) Permissions() *permissions.Cache {
	if s == nil {
		return nil
	}
	return s.permissions
}

func (s *Service) Pipeline() *resilience.Pipeline {
	if s == nil {
		return nil
	}
	return s.pipeline
}

func (s *Service) Config() core.Config {
	if s == nil {
		return core.Config{}
	}
	return s.config
}

// Commands bundles the write-side message handlers over the facade.
type Commands struct {
	CreateContainer       *doccommand.CreateContainerCommand
	DeleteContainer       *doccommand.DeleteContainerCommand
	UploadItem            *doccommand.UploadItemCommand
	DeleteItem            *doccommand.DeleteItemCommand
	InvalidatePermissions *doccommand.InvalidatePermissionsCommand
}

// Queries bundles the read-side message handlers over the facade.
type Queries struct {
	ListContainers  *docquery.ListContainersQuery
	ListItems       *docquery.ListItemsQuery
	GetItem         *docquery.GetItemQuery
	ResolveIdentity *docquery.ResolveIdentityQuery
	GetCapabilities *docquery.GetCapabilitiesQuery
}

func (s *Service) Commands() Commands {
	return Commands{
		CreateContainer:       doccommand.NewCreateContainerCommand(s.facade),
		DeleteContainer:       doccommand.NewDeleteContainerCommand(s.facade),
		UploadItem:            doccommand.NewUploadItemCommand(s.facade),
		DeleteItem:            doccommand.NewDeleteItemCommand(s.facade),
		InvalidatePermissions: doccommand.NewInvalidatePermissionsCommand(s.permissions),
	}
}

func (s *Service) Queries() Queries {
	return Queries{
		ListContainers:  docquery.NewListContainersQuery(s.facade),
		ListItems:       docquery.NewListItemsQuery(s.facade),
		GetItem:         docquery.NewGetItemQuery(s.facade),
		ResolveIdentity: docquery.NewResolveIdentityQuery(s.facade),
		GetCapabilities: docquery.NewGetCapabilitiesQuery(s.permissions),
	}
}

var (
	_ doccommand.MutatingService = (*Facade)(nil)
	_ docquery.ReaderService     = (*Facade)(nil)
)
