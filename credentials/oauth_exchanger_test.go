package credentials

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"testing"
	"time"
)

type recordedTokenRequest struct {
	form   url.Values
	header http.Header
	url    string
}

type stubHTTPDoer struct {
	requests []recordedTokenRequest
	status   int
	body     string
	err      error
}

func (s *stubHTTPDoer) Do(req *http.Request) (*http.Response, error) {
	payload, readErr := io.ReadAll(req.Body)
	if readErr != nil {
		return nil, readErr
	}
	form, parseErr := url.ParseQuery(string(payload))
	if parseErr != nil {
		return nil, parseErr
	}
	s.requests = append(s.requests, recordedTokenRequest{
		form:   form,
		header: req.Header.Clone(),
		url:    req.URL.String(),
	})
	if s.err != nil {
		return nil, s.err
	}
	status := s.status
	if status == 0 {
		status = http.StatusOK
	}
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(s.body)),
		Header:     http.Header{"Content-Type": []string{"application/json"}},
	}, nil
}

func newTestTokenClient(t *testing.T, doer *stubHTTPDoer) *OAuthTokenClient {
	t.Helper()
	client, err := NewOAuthTokenClient(OAuthEndpointConfig{
		TokenURL:     "https://login.example.com/tenant_1/oauth2/v2.0/token",
		ClientID:     "client_1",
		ClientSecret: "secret_1",
		Now:          func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) },
	}, doer)
	if err != nil {
		t.Fatalf("new token client: %v", err)
	}
	return client
}

func TestNewOAuthTokenClient_RequiresEndpointConfig(t *testing.T) {
	base := OAuthEndpointConfig{
		TokenURL:     "https://login.example.com/token",
		ClientID:     "client_1",
		ClientSecret: "secret_1",
	}

	missingURL := base
	missingURL.TokenURL = " "
	if _, err := NewOAuthTokenClient(missingURL, nil); err == nil {
		t.Fatalf("expected missing token url to fail")
	}

	missingID := base
	missingID.ClientID = ""
	if _, err := NewOAuthTokenClient(missingID, nil); err == nil {
		t.Fatalf("expected missing client id to fail")
	}

	missingSecret := base
	missingSecret.ClientSecret = ""
	if _, err := NewOAuthTokenClient(missingSecret, nil); err == nil {
		t.Fatalf("expected missing client secret to fail")
	}
}

func TestToken_SendsClientCredentialsGrant(t *testing.T) {
	doer := &stubHTTPDoer{body: `{"access_token":"app_token_1","token_type":"Bearer","expires_in":1800}`}
	client := newTestTokenClient(t, doer)

	token, err := client.Token(context.Background())
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	if token.AccessToken != "app_token_1" || token.TokenType != "Bearer" {
		t.Fatalf("unexpected token %#v", token)
	}
	expected := time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC)
	if !token.ExpiresAt.Equal(expected) {
		t.Fatalf("expected expiry %v, got %v", expected, token.ExpiresAt)
	}

	if len(doer.requests) != 1 {
		t.Fatalf("expected one token request, got %d", len(doer.requests))
	}
	request := doer.requests[0]
	if request.form.Get("grant_type") != "client_credentials" {
		t.Fatalf("unexpected grant type %q", request.form.Get("grant_type"))
	}
	if request.form.Get("client_id") != "client_1" || request.form.Get("client_secret") != "secret_1" {
		t.Fatalf("expected client credentials in form, got %#v", request.form)
	}
	if request.header.Get("Content-Type") != "application/x-www-form-urlencoded" {
		t.Fatalf("unexpected content type %q", request.header.Get("Content-Type"))
	}
}

func TestExchange_SendsOnBehalfOfGrant(t *testing.T) {
	doer := &stubHTTPDoer{body: `{"access_token":"obo_token_1","token_type":"Bearer","expires_in":3600}`}
	client := newTestTokenClient(t, doer)

	token, err := client.Exchange(context.Background(), "user.bearer.token", []string{"Files.ReadWrite.All", "Sites.Read.All"})
	if err != nil {
		t.Fatalf("exchange: %v", err)
	}
	if token.AccessToken != "obo_token_1" {
		t.Fatalf("unexpected token %#v", token)
	}

	request := doer.requests[0]
	if request.form.Get("grant_type") != "urn:ietf:params:oauth:grant-type:jwt-bearer" {
		t.Fatalf("unexpected grant type %q", request.form.Get("grant_type"))
	}
	if request.form.Get("assertion") != "user.bearer.token" {
		t.Fatalf("expected the user token as assertion, got %q", request.form.Get("assertion"))
	}
	if request.form.Get("requested_token_use") != "on_behalf_of" {
		t.Fatalf("unexpected requested_token_use %q", request.form.Get("requested_token_use"))
	}
	if request.form.Get("scope") != "Files.ReadWrite.All Sites.Read.All" {
		t.Fatalf("unexpected scope %q", request.form.Get("scope"))
	}
}

func TestExchange_RejectsEmptyUserToken(t *testing.T) {
	doer := &stubHTTPDoer{}
	client := newTestTokenClient(t, doer)

	if _, err := client.Exchange(context.Background(), "  ", nil); err == nil {
		t.Fatalf("expected empty user token rejection")
	}
	if len(doer.requests) != 0 {
		t.Fatalf("no request expected for an empty token")
	}
}

func TestRequestToken_SurfacesEndpointErrors(t *testing.T) {
	doer := &stubHTTPDoer{
		status: http.StatusBadRequest,
		body:   `{"error":"invalid_grant","error_description":"AADSTS50013 assertion is invalid"}`,
	}
	client := newTestTokenClient(t, doer)

	_, err := client.Token(context.Background())
	if err == nil {
		t.Fatalf("expected endpoint rejection to surface")
	}
	if !strings.Contains(err.Error(), "invalid_grant") || !strings.Contains(err.Error(), "AADSTS50013") {
		t.Fatalf("expected error and description in message, got %v", err)
	}
}

func TestRequestToken_MissingAccessTokenIsAnError(t *testing.T) {
	doer := &stubHTTPDoer{body: `{"token_type":"Bearer"}`}
	client := newTestTokenClient(t, doer)

	if _, err := client.Token(context.Background()); err == nil {
		t.Fatalf("expected missing access token to fail")
	}
}

func TestRequestToken_DefaultsExpiryWhenAbsent(t *testing.T) {
	doer := &stubHTTPDoer{body: `{"access_token":"app_token_1","token_type":"Bearer"}`}
	client := newTestTokenClient(t, doer)

	token, err := client.Token(context.Background())
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	expected := time.Date(2026, 3, 1, 13, 0, 0, 0, time.UTC)
	if !token.ExpiresAt.Equal(expected) {
		t.Fatalf("expected one hour default expiry, got %v", token.ExpiresAt)
	}
}
