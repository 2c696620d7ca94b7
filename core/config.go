package core

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

const (
	EnvironmentDevelopment = "development"
	EnvironmentProduction  = "production"
)

type PlatformConfig struct {
	BaseURL        string        `koanf:"base_url" mapstructure:"base_url"`
	TenantID       string        `koanf:"tenant_id" mapstructure:"tenant_id"`
	ClientID       string        `koanf:"client_id" mapstructure:"client_id"`
	Scopes         []string      `koanf:"scopes" mapstructure:"scopes"`
	RequestTimeout time.Duration `koanf:"request_timeout" mapstructure:"request_timeout"`
}

type ResilienceConfig struct {
	MaxRetries       int           `koanf:"max_retries" mapstructure:"max_retries"`
	InitialBackoff   time.Duration `koanf:"initial_backoff" mapstructure:"initial_backoff"`
	MaxBackoff       time.Duration `koanf:"max_backoff" mapstructure:"max_backoff"`
	AttemptTimeout   time.Duration `koanf:"attempt_timeout" mapstructure:"attempt_timeout"`
	FailureThreshold int           `koanf:"failure_threshold" mapstructure:"failure_threshold"`
	FailureWindow    time.Duration `koanf:"failure_window" mapstructure:"failure_window"`
	CoolDown         time.Duration `koanf:"cool_down" mapstructure:"cool_down"`
}

type AdmissionConfig struct {
	ReadPerMinute       int           `koanf:"read_per_minute" mapstructure:"read_per_minute"`
	WritePerMinute      int           `koanf:"write_per_minute" mapstructure:"write_per_minute"`
	WriteBurst          int           `koanf:"write_burst" mapstructure:"write_burst"`
	AuthzPerMinute      int           `koanf:"authz_per_minute" mapstructure:"authz_per_minute"`
	UploadConcurrency   int           `koanf:"upload_concurrency" mapstructure:"upload_concurrency"`
	UploadQueueDepth    int           `koanf:"upload_queue_depth" mapstructure:"upload_queue_depth"`
	BackgroundPerWindow int           `koanf:"background_per_window" mapstructure:"background_per_window"`
	BackgroundWindow    time.Duration `koanf:"background_window" mapstructure:"background_window"`
	PublicPerWindow     int           `koanf:"public_per_window" mapstructure:"public_per_window"`
	PublicWindow        time.Duration `koanf:"public_window" mapstructure:"public_window"`
	FallbackPerMinute   int           `koanf:"fallback_per_minute" mapstructure:"fallback_per_minute"`
	ExemptPaths         []string      `koanf:"exempt_paths" mapstructure:"exempt_paths"`
}

type PermissionsConfig struct {
	TTL              time.Duration `koanf:"ttl" mapstructure:"ttl"`
	BatchConcurrency int           `koanf:"batch_concurrency" mapstructure:"batch_concurrency"`
}

type UploadConfig struct {
	SmallUploadLimitBytes int64 `koanf:"small_upload_limit_bytes" mapstructure:"small_upload_limit_bytes"`
	ChunkSizeMinBytes     int64 `koanf:"chunk_size_min_bytes" mapstructure:"chunk_size_min_bytes"`
	ChunkSizeMaxBytes     int64 `koanf:"chunk_size_max_bytes" mapstructure:"chunk_size_max_bytes"`
}

type Config struct {
	ServiceName    string            `koanf:"service_name" mapstructure:"service_name"`
	Environment    string            `koanf:"environment" mapstructure:"environment"`
	AllowedOrigins []string          `koanf:"allowed_origins" mapstructure:"allowed_origins"`
	Platform       PlatformConfig    `koanf:"platform" mapstructure:"platform"`
	Resilience     ResilienceConfig  `koanf:"resilience" mapstructure:"resilience"`
	Admission      AdmissionConfig   `koanf:"admission" mapstructure:"admission"`
	Permissions    PermissionsConfig `koanf:"permissions" mapstructure:"permissions"`
	Upload         UploadConfig      `koanf:"upload" mapstructure:"upload"`
}

func DefaultConfig() Config {
	return Config{
		ServiceName: "docaccess",
		Environment: EnvironmentDevelopment,
		Platform: PlatformConfig{
			RequestTimeout: 30 * time.Second,
		},
		Resilience: ResilienceConfig{
			MaxRetries:       3,
			InitialBackoff:   500 * time.Millisecond,
			MaxBackoff:       30 * time.Second,
			AttemptTimeout:   30 * time.Second,
			FailureThreshold: 5,
			FailureWindow:    time.Minute,
			CoolDown:         30 * time.Second,
		},
		Admission: AdmissionConfig{
			ReadPerMinute:       300,
			WritePerMinute:      60,
			WriteBurst:          10,
			AuthzPerMinute:      600,
			UploadConcurrency:   3,
			UploadQueueDepth:    5,
			BackgroundPerWindow: 20,
			BackgroundWindow:    time.Minute,
			PublicPerWindow:     30,
			PublicWindow:        time.Minute,
			FallbackPerMinute:   120,
			ExemptPaths:         []string{"/health", "/ready", "/metrics"},
		},
		Permissions: PermissionsConfig{
			TTL:              5 * time.Minute,
			BatchConcurrency: 4,
		},
		Upload: UploadConfig{
			SmallUploadLimitBytes: 4 << 20,
			ChunkSizeMinBytes:     320 << 10,
			ChunkSizeMaxBytes:     60 << 20,
		},
	}
}

// Validate is run eagerly at startup. A misconfigured instance must fail to
// build rather than degrade at first use.
func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("core: service_name is required")
	}
	development := strings.EqualFold(strings.TrimSpace(c.Environment), EnvironmentDevelopment)
	if err := validateOrigins(c.AllowedOrigins, development); err != nil {
		return err
	}
	if err := c.Platform.Validate(); err != nil {
		return err
	}
	if err := c.Resilience.Validate(); err != nil {
		return err
	}
	if err := c.Admission.Validate(); err != nil {
		return err
	}
	if err := c.Permissions.Validate(); err != nil {
		return err
	}
	return c.Upload.Validate()
}

func (c PlatformConfig) Validate() error {
	base := strings.TrimSpace(c.BaseURL)
	if base == "" {
		return fmt.Errorf("core: platform.base_url is required")
	}
	parsed, err := url.Parse(base)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("core: platform.base_url %q is not an absolute url", c.BaseURL)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("core: platform.request_timeout must be positive")
	}
	return nil
}

func (c ResilienceConfig) Validate() error {
	if c.MaxRetries < 0 {
		return fmt.Errorf("core: resilience.max_retries must not be negative")
	}
	if c.InitialBackoff <= 0 || c.MaxBackoff < c.InitialBackoff {
		return fmt.Errorf("core: resilience backoff bounds are invalid")
	}
	if c.AttemptTimeout <= 0 {
		return fmt.Errorf("core: resilience.attempt_timeout must be positive")
	}
	if c.FailureThreshold <= 0 {
		return fmt.Errorf("core: resilience.failure_threshold must be positive")
	}
	if c.FailureWindow <= 0 {
		return fmt.Errorf("core: resilience.failure_window must be positive")
	}
	if c.CoolDown <= 0 {
		return fmt.Errorf("core: resilience.cool_down must be positive")
	}
	return nil
}

func (c AdmissionConfig) Validate() error {
	limits := map[string]int{
		"admission.read_per_minute":       c.ReadPerMinute,
		"admission.write_per_minute":      c.WritePerMinute,
		"admission.authz_per_minute":      c.AuthzPerMinute,
		"admission.upload_concurrency":    c.UploadConcurrency,
		"admission.background_per_window": c.BackgroundPerWindow,
		"admission.public_per_window":     c.PublicPerWindow,
		"admission.fallback_per_minute":   c.FallbackPerMinute,
	}
	for name, value := range limits {
		if value <= 0 {
			return fmt.Errorf("core: %s must be positive", name)
		}
	}
	if c.WriteBurst < 0 || c.UploadQueueDepth < 0 {
		return fmt.Errorf("core: admission burst/queue depth must not be negative")
	}
	if c.BackgroundWindow <= 0 || c.PublicWindow <= 0 {
		return fmt.Errorf("core: admission fixed windows must be positive")
	}
	return nil
}

func (c PermissionsConfig) Validate() error {
	if c.TTL <= 0 {
		return fmt.Errorf("core: permissions.ttl must be positive")
	}
	if c.BatchConcurrency < 1 {
		return fmt.Errorf("core: permissions.batch_concurrency must be at least 1")
	}
	return nil
}

func (c UploadConfig) Validate() error {
	if c.SmallUploadLimitBytes <= 0 {
		return fmt.Errorf("core: upload.small_upload_limit_bytes must be positive")
	}
	if c.ChunkSizeMinBytes <= 0 || c.ChunkSizeMaxBytes < c.ChunkSizeMinBytes {
		return fmt.Errorf("core: upload chunk size bounds are invalid")
	}
	return nil
}

func validateOrigins(origins []string, development bool) error {
	for _, origin := range origins {
		trimmed := strings.TrimSpace(origin)
		if trimmed == "" {
			return fmt.Errorf("core: allowed_origins contains an empty entry")
		}
		if trimmed == "*" || strings.Contains(trimmed, "*") {
			return fmt.Errorf("core: allowed_origins must not contain wildcards")
		}
		parsed, err := url.Parse(trimmed)
		if err != nil || parsed.Scheme == "" || parsed.Host == "" {
			return fmt.Errorf("core: allowed origin %q is not an absolute url", origin)
		}
		if parsed.Scheme != "https" && !development {
			return fmt.Errorf("core: allowed origin %q must use https outside development", origin)
		}
	}
	return nil
}
