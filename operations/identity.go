package operations

import (
	"context"
	"net/http"
	"time"

	"github.com/goliatone/go-docaccess/core"
	"github.com/goliatone/go-docaccess/credentials"
)

// IdentityOperations resolves who a credential represents on the platform
// side.
type IdentityOperations struct {
	ops *Operations
}

// Me resolves the delegated user behind the supplied token.
func (i *IdentityOperations) Me(ctx context.Context, userToken string) (*core.IdentitySnapshot, error) {
	client, err := i.ops.delegatedClient(ctx, userToken)
	if err != nil {
		return nil, err
	}
	return i.resolve(ctx, client, i.ops.endpoint("me"))
}

// ServiceIdentity resolves the application principal the service itself
// runs as.
func (i *IdentityOperations) ServiceIdentity(ctx context.Context) (*core.IdentitySnapshot, error) {
	client, err := i.ops.appClient(ctx)
	if err != nil {
		return nil, err
	}
	return i.resolve(ctx, client, i.ops.endpoint("servicePrincipal"))
}

func (i *IdentityOperations) resolve(ctx context.Context, client *credentials.Client, url string) (_ *core.IdentitySnapshot, err error) {
	startedAt := time.Now().UTC()
	defer func() {
		i.ops.observe(ctx, startedAt, "identity.resolve", err, map[string]any{
			"auth_kind": client.Kind(),
		})
	}()

	res, err := i.ops.call(ctx, client, core.TransportRequest{
		Method: http.MethodGet,
		URL:    url,
	})
	if err != nil {
		return nil, err
	}
	if res.StatusCode != http.StatusOK {
		return nil, mapFailure("identity.resolve", res)
	}
	decoded, err := decodeBody[nativeIdentity](res)
	if err != nil {
		return nil, err
	}
	snapshot := mapIdentity(decoded)
	if snapshot.Subject == "" {
		return nil, core.NewUpstreamError("operations: identity response carried no subject", res.StatusCode)
	}
	return &snapshot, nil
}
