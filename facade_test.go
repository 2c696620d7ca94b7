package docaccess

import (
	"context"
	"reflect"
	"strings"
	"sync"
	"testing"

	"github.com/goliatone/go-docaccess/core"
	"github.com/goliatone/go-docaccess/credentials"
	"github.com/goliatone/go-docaccess/operations"
)

type recordedResponse struct {
	status int
	body   string
}

type recordingAdapter struct {
	mu       sync.Mutex
	queue    []recordedResponse
	requests []core.TransportRequest
}

func (a *recordingAdapter) Do(ctx context.Context, req core.TransportRequest) (core.TransportResponse, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.requests = append(a.requests, req)
	if len(a.queue) == 0 {
		return core.TransportResponse{}, context.Canceled
	}
	next := a.queue[0]
	a.queue = a.queue[1:]
	return core.TransportResponse{
		StatusCode: next.status,
		Headers:    map[string]string{"Content-Type": "application/json"},
		Body:       []byte(next.body),
	}, nil
}

func (a *recordingAdapter) enqueue(status int, body string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.queue = append(a.queue, recordedResponse{status: status, body: body})
}

func (a *recordingAdapter) callCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.requests)
}

func (a *recordingAdapter) request(t *testing.T, index int) core.TransportRequest {
	t.Helper()
	a.mu.Lock()
	defer a.mu.Unlock()
	if index >= len(a.requests) {
		t.Fatalf("no request at index %d, saw %d", index, len(a.requests))
	}
	return a.requests[index]
}

type directPipeline struct{}

func (directPipeline) Execute(ctx context.Context, channel string, op func(context.Context) (core.TransportResponse, error)) (core.TransportResponse, error) {
	return op(ctx)
}

func newTestFacade(t *testing.T, adapter *recordingAdapter) *Facade {
	t.Helper()
	factory, err := credentials.NewFactory(credentials.FactoryConfig{
		Scopes: []string{"Files.ReadWrite.All"},
	}, staticTokenSource{}, staticExchanger{}, adapter, directPipeline{})
	if err != nil {
		t.Fatalf("NewFactory: %v", err)
	}
	ops, err := operations.New(operations.Config{
		BaseURL: "https://platform.example.com/v1",
	}, factory)
	if err != nil {
		t.Fatalf("operations.New: %v", err)
	}
	facade, err := NewFacade(ops)
	if err != nil {
		t.Fatalf("NewFacade: %v", err)
	}
	return facade
}

// The facade must only hand out local DTOs; transport and platform-native
// types stay behind the operations boundary.
func TestFacade_ReturnsLocalTypesOnly(t *testing.T) {
	modulePrefix := "github.com/goliatone/go-docaccess/"
	allowed := map[string]bool{
		modulePrefix + "core":       true,
		modulePrefix + "operations": true,
	}
	facadeType := reflect.TypeOf(&Facade{})
	for i := 0; i < facadeType.NumMethod(); i++ {
		method := facadeType.Method(i)
		for j := 0; j < method.Type.NumOut(); j++ {
			out := method.Type.Out(j)
			for out.Kind() == reflect.Pointer || out.Kind() == reflect.Slice {
				out = out.Elem()
			}
			pkg := out.PkgPath()
			if pkg == "" || !strings.HasPrefix(pkg, modulePrefix) {
				continue
			}
			if !allowed[pkg] {
				t.Fatalf("%s returns %s from %s", method.Name, out.Name(), pkg)
			}
		}
	}
}

func TestNewFacade_RequiresOperations(t *testing.T) {
	if _, err := NewFacade(nil); err == nil {
		t.Fatal("expected error for nil operations")
	}
}

func TestFacade_GetItemDelegatesToItems(t *testing.T) {
	adapter := &recordingAdapter{}
	adapter.enqueue(200, `{"id":"item-1","name":"report.pdf","size":2048,"eTag":"\"v3\"","lastModifiedDateTime":"2026-03-01T12:00:00Z","file":{"mimeType":"application/pdf"}}`)
	facade := newTestFacade(t, adapter)

	item, err := facade.GetItem(context.Background(), "ctr-1", "item-1")
	if err != nil {
		t.Fatalf("GetItem: %v", err)
	}
	if item == nil || item.ID != "item-1" || item.Name != "report.pdf" {
		t.Fatalf("unexpected item: %+v", item)
	}
	if item.Size == nil || *item.Size != 2048 {
		t.Fatalf("unexpected size: %+v", item.Size)
	}

	req := adapter.request(t, 0)
	if req.URL != "https://platform.example.com/v1/containers/ctr-1/items/item-1" {
		t.Fatalf("unexpected url: %q", req.URL)
	}
	if got := req.Headers["Authorization"]; got != "Bearer app_token" {
		t.Fatalf("unexpected credential: %q", got)
	}
}

func TestFacade_DeleteItemMapsMissingToFalse(t *testing.T) {
	adapter := &recordingAdapter{}
	adapter.enqueue(404, `{"error":{"code":"itemNotFound"}}`)
	facade := newTestFacade(t, adapter)

	deleted, err := facade.DeleteItem(context.Background(), "ctr-1", "item-9")
	if err != nil {
		t.Fatalf("DeleteItem: %v", err)
	}
	if deleted {
		t.Fatal("missing item must report false")
	}
}

func TestFacade_MeRunsDelegated(t *testing.T) {
	adapter := &recordingAdapter{}
	adapter.enqueue(200, `{"id":"sub-1","displayName":"Pat Doe","userPrincipalName":"pat@example.com"}`)
	facade := newTestFacade(t, adapter)

	snapshot, err := facade.Me(context.Background(), delegatedUserToken(t, "sub-1"))
	if err != nil {
		t.Fatalf("Me: %v", err)
	}
	if snapshot.Subject != "sub-1" || snapshot.PrincipalName != "pat@example.com" {
		t.Fatalf("unexpected snapshot: %+v", snapshot)
	}

	req := adapter.request(t, 0)
	if req.URL != "https://platform.example.com/v1/me" {
		t.Fatalf("unexpected url: %q", req.URL)
	}
	if got := req.Headers["Authorization"]; got != "Bearer obo_token" {
		t.Fatalf("unexpected credential: %q", got)
	}
}

func TestFacade_UploadChunkValidatesSessionLocally(t *testing.T) {
	adapter := &recordingAdapter{}
	facade := newTestFacade(t, adapter)

	if _, err := facade.UploadChunk(context.Background(), nil, core.ByteRange{}, []byte("data")); err == nil {
		t.Fatal("expected error for nil session")
	}
	if adapter.callCount() != 0 {
		t.Fatalf("validation failure must not reach the network, saw %d calls", adapter.callCount())
	}
}

func TestFacade_CancelUploadSessionIgnoresNilSession(t *testing.T) {
	adapter := &recordingAdapter{}
	facade := newTestFacade(t, adapter)

	if err := facade.CancelUploadSession(context.Background(), nil); err != nil {
		t.Fatalf("CancelUploadSession: %v", err)
	}
	if adapter.callCount() != 0 {
		t.Fatalf("nil session must not reach the network, saw %d calls", adapter.callCount())
	}
}

func TestFacade_DownloadItemClampsRange(t *testing.T) {
	adapter := &recordingAdapter{}
	adapter.enqueue(200, `{"id":"item-1","name":"report.pdf","size":10,"eTag":"\"v1\"","file":{"mimeType":"application/pdf"}}`)
	adapter.enqueue(206, `hello`)
	facade := newTestFacade(t, adapter)

	end := int64(99)
	slice, err := facade.DownloadItem(context.Background(), "ctr-1", "item-1", operations.DownloadOptions{
		Range: &operations.RequestRange{Start: 2, End: &end},
	})
	if err != nil {
		t.Fatalf("DownloadItem: %v", err)
	}
	if slice == nil || string(slice.Body) != "hello" {
		t.Fatalf("unexpected slice: %+v", slice)
	}
	if slice.Range == nil || slice.Range.Start != 2 || slice.Range.End != 9 || slice.Range.Total != 10 {
		t.Fatalf("unexpected range: %+v", slice.Range)
	}

	content := adapter.request(t, 1)
	if got := content.Headers["Range"]; got != "bytes=2-9" {
		t.Fatalf("unexpected range header: %q", got)
	}
}
