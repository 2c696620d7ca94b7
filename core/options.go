package core

import (
	"context"
	"fmt"
	"reflect"
	"strings"

	"github.com/goliatone/go-config/cfgx"
	opts "github.com/goliatone/go-options"
)

// ConfigProvider loads configuration from an external source and merges it
// over the supplied defaults.
type ConfigProvider interface {
	Load(ctx context.Context, defaults Config) (Config, error)
}

// RawConfigLoader produces the untyped key/value tree a ConfigProvider
// feeds into cfgx.
type RawConfigLoader interface {
	LoadRaw(ctx context.Context) (map[string]any, error)
}

type staticRawConfigLoader struct{}

func (staticRawConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	return map[string]any{}, nil
}

type CfgxConfigProvider struct {
	Loader RawConfigLoader
}

func NewCfgxConfigProvider(loader RawConfigLoader) *CfgxConfigProvider {
	return &CfgxConfigProvider{Loader: loader}
}

func (p *CfgxConfigProvider) Load(ctx context.Context, defaults Config) (Config, error) {
	if p == nil {
		return defaults, nil
	}
	loader := p.Loader
	if loader == nil {
		loader = staticRawConfigLoader{}
	}
	raw, err := loader.LoadRaw(ctx)
	if err != nil {
		return Config{}, err
	}
	cfg, err := cfgx.Build[Config](raw,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ResolveConfig layers defaults < loaded < runtime with go-options and
// validates the result eagerly, so a misconfigured instance never starts.
func ResolveConfig(defaults Config, loaded Config, runtime Config) (Config, error) {
	stack, err := opts.NewStack(
		opts.NewLayer(
			opts.NewScope("defaults", 0),
			configToLayerMap(defaults, true),
			opts.WithSnapshotID[map[string]any]("defaults"),
		),
		opts.NewLayer(
			opts.NewScope("config", 10),
			configToLayerMap(loaded, false),
			opts.WithSnapshotID[map[string]any]("config"),
		),
		opts.NewLayer(
			opts.NewScope("runtime", 20),
			configToLayerMap(runtime, false),
			opts.WithSnapshotID[map[string]any]("runtime"),
		),
	)
	if err != nil {
		return Config{}, fmt.Errorf("core: options stack build failed: %w", err)
	}
	merged, err := stack.Merge()
	if err != nil {
		return Config{}, fmt.Errorf("core: options merge failed: %w", err)
	}
	resolved, err := cfgx.Build[Config](merged.Value,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	if err := resolved.Validate(); err != nil {
		return Config{}, err
	}
	return resolved, nil
}

func configToLayerMap(cfg Config, includeZero bool) map[string]any {
	layer := map[string]any{}
	if includeZero || strings.TrimSpace(cfg.ServiceName) != "" {
		layer["service_name"] = cfg.ServiceName
	}
	if includeZero || strings.TrimSpace(cfg.Environment) != "" {
		layer["environment"] = cfg.Environment
	}
	if includeZero || len(cfg.AllowedOrigins) > 0 {
		layer["allowed_origins"] = append([]string(nil), cfg.AllowedOrigins...)
	}
	if includeZero || !reflect.DeepEqual(cfg.Platform, PlatformConfig{}) {
		platform := map[string]any{}
		if includeZero || strings.TrimSpace(cfg.Platform.BaseURL) != "" {
			platform["base_url"] = cfg.Platform.BaseURL
		}
		if includeZero || strings.TrimSpace(cfg.Platform.TenantID) != "" {
			platform["tenant_id"] = cfg.Platform.TenantID
		}
		if includeZero || strings.TrimSpace(cfg.Platform.ClientID) != "" {
			platform["client_id"] = cfg.Platform.ClientID
		}
		if includeZero || len(cfg.Platform.Scopes) > 0 {
			platform["scopes"] = append([]string(nil), cfg.Platform.Scopes...)
		}
		if includeZero || cfg.Platform.RequestTimeout > 0 {
			platform["request_timeout"] = cfg.Platform.RequestTimeout
		}
		layer["platform"] = platform
	}
	if includeZero || cfg.Resilience != (ResilienceConfig{}) {
		layer["resilience"] = map[string]any{
			"max_retries":       cfg.Resilience.MaxRetries,
			"initial_backoff":   cfg.Resilience.InitialBackoff,
			"max_backoff":       cfg.Resilience.MaxBackoff,
			"attempt_timeout":   cfg.Resilience.AttemptTimeout,
			"failure_threshold": cfg.Resilience.FailureThreshold,
			"failure_window":    cfg.Resilience.FailureWindow,
			"cool_down":         cfg.Resilience.CoolDown,
		}
	}
	if includeZero || !admissionIsZero(cfg.Admission) {
		layer["admission"] = map[string]any{
			"read_per_minute":       cfg.Admission.ReadPerMinute,
			"write_per_minute":      cfg.Admission.WritePerMinute,
			"write_burst":           cfg.Admission.WriteBurst,
			"authz_per_minute":      cfg.Admission.AuthzPerMinute,
			"upload_concurrency":    cfg.Admission.UploadConcurrency,
			"upload_queue_depth":    cfg.Admission.UploadQueueDepth,
			"background_per_window": cfg.Admission.BackgroundPerWindow,
			"background_window":     cfg.Admission.BackgroundWindow,
			"public_per_window":     cfg.Admission.PublicPerWindow,
			"public_window":         cfg.Admission.PublicWindow,
			"fallback_per_minute":   cfg.Admission.FallbackPerMinute,
			"exempt_paths":          append([]string(nil), cfg.Admission.ExemptPaths...),
		}
	}
	if includeZero || cfg.Permissions != (PermissionsConfig{}) {
		layer["permissions"] = map[string]any{
			"ttl":               cfg.Permissions.TTL,
			"batch_concurrency": cfg.Permissions.BatchConcurrency,
		}
	}
	if includeZero || cfg.Upload != (UploadConfig{}) {
		layer["upload"] = map[string]any{
			"small_upload_limit_bytes": cfg.Upload.SmallUploadLimitBytes,
			"chunk_size_min_bytes":     cfg.Upload.ChunkSizeMinBytes,
			"chunk_size_max_bytes":     cfg.Upload.ChunkSizeMaxBytes,
		}
	}
	return layer
}

func admissionIsZero(cfg AdmissionConfig) bool {
	return cfg.ReadPerMinute == 0 &&
		cfg.WritePerMinute == 0 &&
		cfg.WriteBurst == 0 &&
		cfg.AuthzPerMinute == 0 &&
		cfg.UploadConcurrency == 0 &&
		cfg.UploadQueueDepth == 0 &&
		cfg.BackgroundPerWindow == 0 &&
		cfg.BackgroundWindow == 0 &&
		cfg.PublicPerWindow == 0 &&
		cfg.PublicWindow == 0 &&
		cfg.FallbackPerMinute == 0 &&
		len(cfg.ExemptPaths) == 0
}
