package operations

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/goliatone/go-docaccess/core"
	"github.com/goliatone/go-docaccess/credentials"
)

// ContainerOperations provisions and lists the resource containers the
// platform scopes documents under.
type ContainerOperations struct {
	ops *Operations
}

func (c *ContainerOperations) List(ctx context.Context) ([]core.ResourceHandle, error) {
	client, err := c.ops.appClient(ctx)
	if err != nil {
		return nil, err
	}
	return c.list(ctx, client)
}

func (c *ContainerOperations) ListAs(ctx context.Context, userToken string) ([]core.ResourceHandle, error) {
	client, err := c.ops.delegatedClient(ctx, userToken)
	if err != nil {
		return nil, err
	}
	return c.list(ctx, client)
}

func (c *ContainerOperations) Create(ctx context.Context, displayName string) (*core.ResourceHandle, error) {
	client, err := c.ops.appClient(ctx)
	if err != nil {
		return nil, err
	}
	return c.create(ctx, client, displayName)
}

func (c *ContainerOperations) CreateAs(ctx context.Context, userToken string, displayName string) (*core.ResourceHandle, error) {
	client, err := c.ops.delegatedClient(ctx, userToken)
	if err != nil {
		return nil, err
	}
	return c.create(ctx, client, displayName)
}

// Delete removes a container. A container that is already gone reports
// false with no error, keeping the operation idempotent.
func (c *ContainerOperations) Delete(ctx context.Context, containerID string) (bool, error) {
	client, err := c.ops.appClient(ctx)
	if err != nil {
		return false, err
	}
	return c.delete(ctx, client, containerID)
}

func (c *ContainerOperations) DeleteAs(ctx context.Context, userToken string, containerID string) (bool, error) {
	client, err := c.ops.delegatedClient(ctx, userToken)
	if err != nil {
		return false, err
	}
	return c.delete(ctx, client, containerID)
}

func (c *ContainerOperations) list(ctx context.Context, client *credentials.Client) (_ []core.ResourceHandle, err error) {
	startedAt := time.Now().UTC()
	defer func() {
		c.ops.observe(ctx, startedAt, "containers.list", err, map[string]any{"auth_kind": client.Kind()})
	}()

	res, err := c.ops.call(ctx, client, core.TransportRequest{
		Method: http.MethodGet,
		URL:    c.ops.endpoint("containers"),
	})
	if err != nil {
		return nil, err
	}
	if res.StatusCode != http.StatusOK {
		return nil, mapFailure("containers.list", res)
	}
	decoded, err := decodeBody[nativeContainerList](res)
	if err != nil {
		return nil, err
	}
	handles := make([]core.ResourceHandle, 0, len(decoded.Value))
	for _, native := range decoded.Value {
		handle := mapContainer(native)
		if handle.ID == "" {
			continue
		}
		handles = append(handles, handle)
	}
	return handles, nil
}

func (c *ContainerOperations) create(ctx context.Context, client *credentials.Client, displayName string) (_ *core.ResourceHandle, err error) {
	if err := core.ValidateItemName(displayName); err != nil {
		return nil, core.NewBadInputError(err.Error())
	}

	startedAt := time.Now().UTC()
	defer func() {
		c.ops.observe(ctx, startedAt, "containers.create", err, map[string]any{"auth_kind": client.Kind()})
	}()

	body, err := json.Marshal(map[string]string{"displayName": displayName})
	if err != nil {
		return nil, err
	}
	res, err := c.ops.call(ctx, client, core.TransportRequest{
		Method:  http.MethodPost,
		URL:     c.ops.endpoint("containers"),
		Headers: map[string]string{"Content-Type": "application/json"},
		Body:    body,
	})
	if err != nil {
		return nil, err
	}
	if res.StatusCode != http.StatusCreated && res.StatusCode != http.StatusOK {
		return nil, mapFailure("containers.create", res)
	}
	decoded, err := decodeBody[nativeContainer](res)
	if err != nil {
		return nil, err
	}
	handle := mapContainer(decoded)
	return &handle, nil
}

func (c *ContainerOperations) delete(ctx context.Context, client *credentials.Client, containerID string) (_ bool, err error) {
	if err := core.ValidateResourceID(containerID); err != nil {
		return false, core.NewBadInputError(err.Error())
	}

	startedAt := time.Now().UTC()
	defer func() {
		c.ops.observe(ctx, startedAt, "containers.delete", err, map[string]any{
			"auth_kind":    client.Kind(),
			"container_id": containerID,
		})
	}()

	res, err := c.ops.call(ctx, client, core.TransportRequest{
		Method: http.MethodDelete,
		URL:    c.ops.endpoint("containers", containerID),
	})
	if err != nil {
		return false, err
	}
	switch res.StatusCode {
	case http.StatusNoContent, http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	default:
		return false, mapFailure("containers.delete", res)
	}
}
