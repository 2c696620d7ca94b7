package docaccess

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goliatone/go-docaccess/core"
)

type staticTokenSource struct{}

func (staticTokenSource) Token(ctx context.Context) (core.ExchangedToken, error) {
	return core.ExchangedToken{
		AccessToken: "app_token",
		TokenType:   "Bearer",
		ExpiresAt:   time.Now().UTC().Add(time.Hour),
	}, nil
}

type staticExchanger struct{}

func (staticExchanger) Exchange(ctx context.Context, userToken string, scopes []string) (core.ExchangedToken, error) {
	return core.ExchangedToken{
		AccessToken: "obo_token",
		TokenType:   "Bearer",
		ExpiresAt:   time.Now().UTC().Add(time.Hour),
	}, nil
}

type allowAllResolver struct{}

func (allowAllResolver) ResolveRights(ctx context.Context, userID string, resourceID string) ([]string, error) {
	return []string{"read", "write"}, nil
}

func validServiceConfig() core.Config {
	cfg := core.DefaultConfig()
	cfg.Platform.BaseURL = "https://platform.example.com/v1"
	cfg.Platform.TenantID = "tenant-1"
	cfg.Platform.ClientID = "client-1"
	cfg.Platform.Scopes = []string{"Files.ReadWrite.All"}
	return cfg
}

func stubbedOptions() []Option {
	return []Option{
		WithAccessResolver(allowAllResolver{}),
		WithAppTokenSource(staticTokenSource{}),
		WithTokenExchanger(staticExchanger{}),
	}
}

func delegatedUserToken(t *testing.T, subject string) string {
	t.Helper()
	payload, err := json.Marshal(map[string]string{"sub": subject})
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	encode := base64.RawURLEncoding.EncodeToString
	return fmt.Sprintf("%s.%s.%s",
		encode([]byte(`{"alg":"none"}`)),
		encode(payload),
		encode([]byte("sig")))
}

func TestNew_RejectsInvalidConfig(t *testing.T) {
	cfg := validServiceConfig()
	cfg.Platform.BaseURL = ""

	if _, err := New(cfg, stubbedOptions()...); err == nil {
		t.Fatal("expected config validation error")
	}
}

func TestNew_RequiresAccessResolver(t *testing.T) {
	_, err := New(validServiceConfig(),
		WithAppTokenSource(staticTokenSource{}),
		WithTokenExchanger(staticExchanger{}))
	if err == nil {
		t.Fatal("expected missing resolver error")
	}
	if !strings.Contains(err.Error(), "access resolver") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestNew_WiresFullStack(t *testing.T) {
	svc, err := New(validServiceConfig(), stubbedOptions()...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if svc.Facade() == nil {
		t.Fatal("expected facade")
	}
	if svc.Admission() == nil {
		t.Fatal("expected admission limiter")
	}
	if svc.Permissions() == nil {
		t.Fatal("expected permission cache")
	}
	if svc.Pipeline() == nil {
		t.Fatal("expected resilience pipeline")
	}
	if got := svc.Config().ServiceName; got != "docaccess" {
		t.Fatalf("config round trip: got %q", got)
	}
}

func TestService_CommandAndQueryBundles(t *testing.T) {
	svc, err := New(validServiceConfig(), stubbedOptions()...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	commands := svc.Commands()
	if commands.CreateContainer == nil || commands.DeleteContainer == nil ||
		commands.UploadItem == nil || commands.DeleteItem == nil ||
		commands.InvalidatePermissions == nil {
		t.Fatalf("incomplete command bundle: %+v", commands)
	}

	queries := svc.Queries()
	if queries.ListContainers == nil || queries.ListItems == nil ||
		queries.GetItem == nil || queries.ResolveIdentity == nil ||
		queries.GetCapabilities == nil {
		t.Fatalf("incomplete query bundle: %+v", queries)
	}
}

func TestNew_DefaultTokenEndpointRequiresTenant(t *testing.T) {
	cfg := validServiceConfig()
	cfg.Platform.TenantID = ""

	_, err := New(cfg, WithAccessResolver(allowAllResolver{}), WithClientSecret("s3cret"))
	if err == nil {
		t.Fatal("expected token endpoint error")
	}
	if !strings.Contains(err.Error(), "token endpoint") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestNew_ExplicitTokenEndpoint(t *testing.T) {
	cfg := validServiceConfig()
	cfg.Platform.TenantID = ""

	svc, err := New(cfg,
		WithAccessResolver(allowAllResolver{}),
		WithTokenEndpoint("https://login.example.com/oauth2/token"),
		WithClientSecret("s3cret"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if svc.Facade() == nil {
		t.Fatal("expected facade")
	}
}

func TestNew_OAuthClientRequiresSecret(t *testing.T) {
	// Without injected token stubs the wiring builds the OAuth client,
	// which refuses to run without a client secret.
	if _, err := New(validServiceConfig(), WithAccessResolver(allowAllResolver{})); err == nil {
		t.Fatal("expected client secret error")
	}
}

func TestService_NilReceiverAccessors(t *testing.T) {
	var svc *Service
	if svc.Facade() != nil {
		t.Fatal("nil service facade must be nil")
	}
	if svc.Admission() != nil {
		t.Fatal("nil service admission must be nil")
	}
	if svc.Permissions() != nil {
		t.Fatal("nil service permissions must be nil")
	}
	if svc.Pipeline() != nil {
		t.Fatal("nil service pipeline must be nil")
	}
	if got := svc.Config(); got.ServiceName != "" {
		t.Fatalf("nil service config must be zero, got %+v", got)
	}
}

func TestService_FacadeRoundTrip(t *testing.T) {
	var (
		authHeaders []string
		paths       []string
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeaders = append(authHeaders, r.Header.Get("Authorization"))
		paths = append(paths, r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"value":[{"id":"ctr-1","displayName":"Contracts"}]}`)
	}))
	defer server.Close()

	cfg := validServiceConfig()
	cfg.Platform.BaseURL = server.URL + "/v1"

	svc, err := New(cfg, append(stubbedOptions(), WithHTTPClient(server.Client()))...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	handles, err := svc.Facade().ListContainers(context.Background())
	if err != nil {
		t.Fatalf("ListContainers: %v", err)
	}
	if len(handles) != 1 || handles[0].ID != "ctr-1" || handles[0].DisplayName != "Contracts" {
		t.Fatalf("unexpected handles: %+v", handles)
	}

	if _, err := svc.Facade().ListContainersAs(context.Background(), delegatedUserToken(t, "user-1")); err != nil {
		t.Fatalf("ListContainersAs: %v", err)
	}

	if len(authHeaders) != 2 || len(paths) != 2 {
		t.Fatalf("expected two upstream calls, got %d", len(paths))
	}
	if paths[0] != "/v1/containers" {
		t.Fatalf("unexpected path: %q", paths[0])
	}
	if authHeaders[0] != "Bearer app_token" {
		t.Fatalf("app call auth: %q", authHeaders[0])
	}
	if authHeaders[1] != "Bearer obo_token" {
		t.Fatalf("delegated call auth: %q", authHeaders[1])
	}
}
