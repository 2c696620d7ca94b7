package credentials

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goliatone/go-docaccess/core"
)

const (
	defaultTokenRequestTimeout  = 10 * time.Second
	maxTokenResponseBytes       = 1 << 20
	grantTypeClientCredentials  = "client_credentials"
	grantTypeJWTBearerExchange  = "urn:ietf:params:oauth:grant-type:jwt-bearer"
	requestedTokenUseOnBehalfOf = "on_behalf_of"
)

type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

type OAuthEndpointConfig struct {
	TokenURL     string
	ClientID     string
	ClientSecret string
	Now          func() time.Time
}

// OAuthTokenClient speaks to the identity provider's token endpoint for
// both grant shapes this module needs: client credentials for the app
// identity and jwt-bearer for the on-behalf-of exchange. Token calls are
// deliberately outside the resilience pipeline; a failed exchange is
// permanent for the call.
type OAuthTokenClient struct {
	config OAuthEndpointConfig
	client HTTPDoer
}

func NewOAuthTokenClient(cfg OAuthEndpointConfig, client HTTPDoer) (*OAuthTokenClient, error) {
	if strings.TrimSpace(cfg.TokenURL) == "" {
		return nil, fmt.Errorf("credentials: token url is required")
	}
	if strings.TrimSpace(cfg.ClientID) == "" {
		return nil, fmt.Errorf("credentials: client id is required")
	}
	if strings.TrimSpace(cfg.ClientSecret) == "" {
		return nil, fmt.Errorf("credentials: client secret is required")
	}
	if client == nil {
		client = &http.Client{Timeout: defaultTokenRequestTimeout}
	}
	now := cfg.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &OAuthTokenClient{
		config: OAuthEndpointConfig{
			TokenURL:     strings.TrimSpace(cfg.TokenURL),
			ClientID:     strings.TrimSpace(cfg.ClientID),
			ClientSecret: strings.TrimSpace(cfg.ClientSecret),
			Now:          now,
		},
		client: client,
	}, nil
}

// Token acquires the app-identity credential via the client-credentials
// grant.
func (c *OAuthTokenClient) Token(ctx context.Context) (core.ExchangedToken, error) {
	form := url.Values{}
	form.Set("grant_type", grantTypeClientCredentials)
	form.Set("client_id", c.config.ClientID)
	form.Set("client_secret", c.config.ClientSecret)
	return c.requestToken(ctx, form)
}

// Exchange swaps a user bearer token for a downstream-scoped token.
func (c *OAuthTokenClient) Exchange(ctx context.Context, userToken string, scopes []string) (core.ExchangedToken, error) {
	if strings.TrimSpace(userToken) == "" {
		return core.ExchangedToken{}, core.NewInvalidCredentialError("credentials: user token is required")
	}
	form := url.Values{}
	form.Set("grant_type", grantTypeJWTBearerExchange)
	form.Set("client_id", c.config.ClientID)
	form.Set("client_secret", c.config.ClientSecret)
	form.Set("assertion", strings.TrimSpace(userToken))
	form.Set("requested_token_use", requestedTokenUseOnBehalfOf)
	if len(scopes) > 0 {
		form.Set("scope", strings.Join(scopes, " "))
	}
	return c.requestToken(ctx, form)
}

type tokenEndpointResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
	Error       string `json:"error"`
	Description string `json:"error_description"`
}

func (c *OAuthTokenClient) requestToken(ctx context.Context, form url.Values) (core.ExchangedToken, error) {
	if c == nil || c.client == nil {
		return core.ExchangedToken{}, fmt.Errorf("credentials: oauth token client is not configured")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return core.ExchangedToken{}, fmt.Errorf("credentials: create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	res, err := c.client.Do(req)
	if err != nil {
		return core.ExchangedToken{}, fmt.Errorf("credentials: token request failed: %w", err)
	}
	defer res.Body.Close()

	body, err := io.ReadAll(io.LimitReader(res.Body, maxTokenResponseBytes))
	if err != nil {
		return core.ExchangedToken{}, fmt.Errorf("credentials: read token response: %w", err)
	}

	var parsed tokenEndpointResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return core.ExchangedToken{}, fmt.Errorf("credentials: decode token response: %w", err)
	}
	if res.StatusCode != http.StatusOK || strings.TrimSpace(parsed.AccessToken) == "" {
		detail := strings.TrimSpace(parsed.Error)
		if description := strings.TrimSpace(parsed.Description); description != "" {
			detail = strings.TrimSpace(detail + ": " + description)
		}
		if detail == "" {
			detail = fmt.Sprintf("status %d", res.StatusCode)
		}
		return core.ExchangedToken{}, fmt.Errorf("credentials: token endpoint rejected request: %s", detail)
	}

	expiresIn := parsed.ExpiresIn
	if expiresIn <= 0 {
		expiresIn = 3600
	}
	return core.ExchangedToken{
		AccessToken: strings.TrimSpace(parsed.AccessToken),
		TokenType:   strings.TrimSpace(parsed.TokenType),
		ExpiresAt:   c.config.Now().UTC().Add(time.Duration(expiresIn) * time.Second),
	}, nil
}

var (
	_ AppTokenSource      = (*OAuthTokenClient)(nil)
	_ core.TokenExchanger = (*OAuthTokenClient)(nil)
)
