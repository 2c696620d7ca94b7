package operations

import (
	"context"
	"testing"

	"github.com/goliatone/go-docaccess/core"
)

func TestIdentityMe(t *testing.T) {
	adapter := &scriptedAdapter{}
	ops := newTestOperations(t, adapter)
	adapter.enqueue(200, `{"id":"usr_1","displayName":"Dana Reyes","userPrincipalName":"dana@example.com"}`)

	snapshot, err := ops.Identity.Me(context.Background(), delegatedToken("usr_1"))
	if err != nil {
		t.Fatalf("Me: %v", err)
	}
	if snapshot.Subject != "usr_1" || snapshot.DisplayName != "Dana Reyes" || snapshot.PrincipalName != "dana@example.com" {
		t.Fatalf("unexpected snapshot %+v", snapshot)
	}

	req := adapter.request(t, 0)
	if req.Method != "GET" || req.URL != "https://platform.example.com/v1/me" {
		t.Fatalf("unexpected request %s %s", req.Method, req.URL)
	}
	if req.Headers["Authorization"] != "Bearer obo_token" {
		t.Fatalf("expected the exchanged credential, got %q", req.Headers["Authorization"])
	}
}

func TestIdentityMe_PrincipalFallsBackToMail(t *testing.T) {
	adapter := &scriptedAdapter{}
	ops := newTestOperations(t, adapter)
	adapter.enqueue(200, `{"id":"usr_1","displayName":"Dana Reyes","mail":"dana@example.com"}`)

	snapshot, err := ops.Identity.Me(context.Background(), delegatedToken("usr_1"))
	if err != nil {
		t.Fatalf("Me: %v", err)
	}
	if snapshot.PrincipalName != "dana@example.com" {
		t.Fatalf("expected the mail fallback, got %q", snapshot.PrincipalName)
	}
}

func TestIdentityMe_RejectsMalformedToken(t *testing.T) {
	adapter := &scriptedAdapter{}
	ops := newTestOperations(t, adapter)

	_, err := ops.Identity.Me(context.Background(), "not-a-token")
	assertErrorCode(t, err, core.ErrorCodeInvalidCredential)
	if adapter.callCount() != 0 {
		t.Fatalf("expected no network call, got %d", adapter.callCount())
	}
}

func TestIdentityMe_MissingSubject(t *testing.T) {
	adapter := &scriptedAdapter{}
	ops := newTestOperations(t, adapter)
	adapter.enqueue(200, `{"displayName":"Dana Reyes"}`)

	_, err := ops.Identity.Me(context.Background(), delegatedToken("usr_1"))
	assertErrorCode(t, err, core.ErrorCodeUpstream)
}

func TestServiceIdentity(t *testing.T) {
	adapter := &scriptedAdapter{}
	ops := newTestOperations(t, adapter)
	adapter.enqueue(200, `{"id":"app_1","displayName":"docaccess service"}`)

	snapshot, err := ops.Identity.ServiceIdentity(context.Background())
	if err != nil {
		t.Fatalf("ServiceIdentity: %v", err)
	}
	if snapshot.Subject != "app_1" {
		t.Fatalf("unexpected snapshot %+v", snapshot)
	}

	req := adapter.request(t, 0)
	if req.URL != "https://platform.example.com/v1/servicePrincipal" {
		t.Fatalf("unexpected URL %q", req.URL)
	}
	if req.Headers["Authorization"] != "Bearer app_token" {
		t.Fatalf("expected the app credential, got %q", req.Headers["Authorization"])
	}
}

func TestServiceIdentity_Unauthorized(t *testing.T) {
	adapter := &scriptedAdapter{}
	ops := newTestOperations(t, adapter)
	adapter.enqueue(401, `{"error":"invalid_token"}`)

	_, err := ops.Identity.ServiceIdentity(context.Background())
	assertErrorCode(t, err, core.ErrorCodeInvalidCredential)
}
