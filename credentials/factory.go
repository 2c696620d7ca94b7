package credentials

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-docaccess/core"
)

const (
	channelPlatform = "platform"

	defaultRenewBefore = 2 * time.Minute
)

// AppTokenSource acquires the service's own platform credential, typically
// a client-credentials grant against the identity provider.
type AppTokenSource interface {
	Token(ctx context.Context) (core.ExchangedToken, error)
}

type FactoryConfig struct {
	Scopes      []string
	RenewBefore time.Duration
	Now         func() time.Time
}

type cachedToken struct {
	token     core.ExchangedToken
	subject   string
	expiresAt time.Time
}

// Factory builds the two client kinds the module supports: app-identity
// (the service itself) and delegated (on-behalf-of an end user). Exchanged
// tokens are cached per user token until shortly before expiry.
type Factory struct {
	config    FactoryConfig
	appSource AppTokenSource
	exchanger core.TokenExchanger
	adapter   core.TransportAdapter
	pipeline  core.Pipeline

	mu        sync.Mutex
	appToken  cachedToken
	delegated map[string]cachedToken
}

func NewFactory(
	cfg FactoryConfig,
	appSource AppTokenSource,
	exchanger core.TokenExchanger,
	adapter core.TransportAdapter,
	pipeline core.Pipeline,
) (*Factory, error) {
	if appSource == nil {
		return nil, fmt.Errorf("credentials: app token source is required")
	}
	if exchanger == nil {
		return nil, fmt.Errorf("credentials: token exchanger is required")
	}
	if adapter == nil {
		return nil, fmt.Errorf("credentials: transport adapter is required")
	}
	if pipeline == nil {
		return nil, fmt.Errorf("credentials: resilience pipeline is required")
	}
	renewBefore := cfg.RenewBefore
	if renewBefore <= 0 {
		renewBefore = defaultRenewBefore
	}
	now := cfg.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Factory{
		config: FactoryConfig{
			Scopes:      normalizeScopes(cfg.Scopes),
			RenewBefore: renewBefore,
			Now:         now,
		},
		appSource: appSource,
		exchanger: exchanger,
		adapter:   adapter,
		pipeline:  pipeline,
		delegated: map[string]cachedToken{},
	}, nil
}

// AppClient returns a client holding the service's own credential. The
// underlying token is acquired lazily and reused until RenewBefore of its
// expiry.
func (f *Factory) AppClient(ctx context.Context) (*Client, error) {
	if f == nil {
		return nil, fmt.Errorf("credentials: factory is not configured")
	}
	now := f.config.Now().UTC()

	f.mu.Lock()
	cached := f.appToken
	f.mu.Unlock()
	if tokenUsable(cached, now, f.config.RenewBefore) {
		return f.buildClient(KindAppIdentity, channelPlatform, cached.token, ""), nil
	}

	token, err := f.appSource.Token(ctx)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	f.appToken = cachedToken{token: token, expiresAt: token.ExpiresAt}
	f.mu.Unlock()
	return f.buildClient(KindAppIdentity, channelPlatform, token, ""), nil
}

// DelegatedClient exchanges the user's bearer token for a downstream-scoped
// one. An empty or malformed token fails with an invalid-credential error
// before any exchange is attempted; exchange failures are permanent for the
// call and are never retried with the same token.
func (f *Factory) DelegatedClient(ctx context.Context, userToken string) (*Client, error) {
	if f == nil {
		return nil, fmt.Errorf("credentials: factory is not configured")
	}
	trimmed := strings.TrimSpace(userToken)
	if err := validateUserToken(trimmed); err != nil {
		return nil, err
	}

	now := f.config.Now().UTC()
	cacheKey := delegatedCacheKey(trimmed, f.config.Scopes)

	f.mu.Lock()
	cached, ok := f.delegated[cacheKey]
	f.mu.Unlock()
	if ok && tokenUsable(cached, now, f.config.RenewBefore) {
		return f.buildClient(KindDelegated, channelPlatform, cached.token, cached.subject), nil
	}

	exchanged, err := f.exchanger.Exchange(ctx, trimmed, f.config.Scopes)
	if err != nil {
		return nil, core.NewInvalidCredentialError("credentials: on-behalf-of exchange failed").WithMetadata(map[string]any{
			"cause": err.Error(),
		})
	}
	subject := tokenSubject(trimmed)

	f.mu.Lock()
	f.pruneDelegatedLocked(now)
	f.delegated[cacheKey] = cachedToken{token: exchanged, subject: subject, expiresAt: exchanged.ExpiresAt}
	f.mu.Unlock()
	return f.buildClient(KindDelegated, channelPlatform, exchanged, subject), nil
}

// pruneDelegatedLocked drops entries whose tokens are past renewal. Every
// distinct user token adds an entry, so without the sweep the cache grows
// for the process lifetime. Callers must hold f.mu.
func (f *Factory) pruneDelegatedLocked(now time.Time) {
	for key, cached := range f.delegated {
		if !tokenUsable(cached, now, f.config.RenewBefore) {
			delete(f.delegated, key)
		}
	}
}

// SessionClient returns a credential-free client for pre-authorized URLs
// such as upload session targets. It shares the platform channel so session
// traffic is governed by the same breaker and throttle state.
func (f *Factory) SessionClient() *Client {
	if f == nil {
		return nil
	}
	return f.buildClient(KindAppIdentity, channelPlatform, core.ExchangedToken{}, "")
}

func (f *Factory) buildClient(kind string, channel string, token core.ExchangedToken, subject string) *Client {
	return &Client{
		kind:     kind,
		channel:  channel,
		token:    token,
		adapter:  f.adapter,
		pipeline: f.pipeline,
		subject:  subject,
	}
}

func tokenUsable(cached cachedToken, now time.Time, renewBefore time.Duration) bool {
	if cached.token.AccessToken == "" {
		return false
	}
	if cached.expiresAt.IsZero() {
		return false
	}
	return cached.expiresAt.After(now.Add(renewBefore))
}

// validateUserToken rejects anything that is not a compact three-segment
// bearer token before the identity provider is involved.
func validateUserToken(token string) error {
	if token == "" {
		return core.NewInvalidCredentialError("credentials: user token is required")
	}
	segments := strings.Split(token, ".")
	if len(segments) != 3 {
		return core.NewInvalidCredentialError("credentials: user token is malformed")
	}
	for _, segment := range segments {
		if strings.TrimSpace(segment) == "" {
			return core.NewInvalidCredentialError("credentials: user token is malformed")
		}
	}
	return nil
}

// tokenSubject extracts the sub claim for logging and admission keys. A
// token that fails to decode still passed shape validation, so the subject
// just stays empty.
func tokenSubject(token string) string {
	segments := strings.Split(token, ".")
	if len(segments) != 3 {
		return ""
	}
	payload, err := base64.RawURLEncoding.DecodeString(segments[1])
	if err != nil {
		return ""
	}
	subject := extractJSONString(payload, "sub")
	return strings.TrimSpace(subject)
}

func extractJSONString(payload []byte, key string) string {
	var claims map[string]any
	if err := json.Unmarshal(payload, &claims); err != nil {
		return ""
	}
	value, ok := claims[key].(string)
	if !ok {
		return ""
	}
	return value
}

func delegatedCacheKey(token string, scopes []string) string {
	sum := sha256.Sum256([]byte(token + "|" + strings.Join(scopes, ",")))
	return "obo_" + hex.EncodeToString(sum[:16])
}

func normalizeScopes(scopes []string) []string {
	normalized := make([]string, 0, len(scopes))
	seen := map[string]struct{}{}
	for _, scope := range scopes {
		trimmed := strings.TrimSpace(scope)
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}
		normalized = append(normalized, trimmed)
	}
	return normalized
}
