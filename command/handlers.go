package command

import (
	"context"
	"strings"

	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-docaccess/core"
)

// MutatingService is the write surface the commands dispatch against. The
// root facade satisfies it.
type MutatingService interface {
	CreateContainer(ctx context.Context, displayName string) (*core.ResourceHandle, error)
	CreateContainerAs(ctx context.Context, userToken string, displayName string) (*core.ResourceHandle, error)
	DeleteContainer(ctx context.Context, containerID string) (bool, error)
	DeleteContainerAs(ctx context.Context, userToken string, containerID string) (bool, error)
	UploadItem(ctx context.Context, containerID string, name string, contentType string, content []byte) (*core.ItemDescriptor, error)
	UploadItemAs(ctx context.Context, userToken string, containerID string, name string, contentType string, content []byte) (*core.ItemDescriptor, error)
	DeleteItem(ctx context.Context, containerID string, itemID string) (bool, error)
	DeleteItemAs(ctx context.Context, userToken string, containerID string, itemID string) (bool, error)
}

// PermissionInvalidator drops a cached rights entry. permissions.Cache
// satisfies it.
type PermissionInvalidator interface {
	Invalidate(ctx context.Context, userID string, resourceID string) error
}

type CreateContainerCommand struct {
	service MutatingService
}

func NewCreateContainerCommand(service MutatingService) *CreateContainerCommand {
	return &CreateContainerCommand{service: service}
}

func (c *CreateContainerCommand) Execute(ctx context.Context, msg CreateContainerMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: container service is required")
	}
	var (
		out *core.ResourceHandle
		err error
	)
	if delegated(msg.UserToken) {
		out, err = c.service.CreateContainerAs(ctx, msg.UserToken, msg.DisplayName)
	} else {
		out, err = c.service.CreateContainer(ctx, msg.DisplayName)
	}
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type DeleteContainerCommand struct {
	service MutatingService
}

func NewDeleteContainerCommand(service MutatingService) *DeleteContainerCommand {
	return &DeleteContainerCommand{service: service}
}

func (c *DeleteContainerCommand) Execute(ctx context.Context, msg DeleteContainerMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: container service is required")
	}
	var (
		deleted bool
		err     error
	)
	if delegated(msg.UserToken) {
		deleted, err = c.service.DeleteContainerAs(ctx, msg.UserToken, msg.ContainerID)
	} else {
		deleted, err = c.service.DeleteContainer(ctx, msg.ContainerID)
	}
	if err != nil {
		return err
	}
	storeResult(ctx, deleted)
	return nil
}

type UploadItemCommand struct {
	service MutatingService
}

func NewUploadItemCommand(service MutatingService) *UploadItemCommand {
	return &UploadItemCommand{service: service}
}

func (c *UploadItemCommand) Execute(ctx context.Context, msg UploadItemMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: item service is required")
	}
	var (
		out *core.ItemDescriptor
		err error
	)
	if delegated(msg.UserToken) {
		out, err = c.service.UploadItemAs(ctx, msg.UserToken, msg.ContainerID, msg.Name, msg.ContentType, msg.Content)
	} else {
		out, err = c.service.UploadItem(ctx, msg.ContainerID, msg.Name, msg.ContentType, msg.Content)
	}
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type DeleteItemCommand struct {
	service MutatingService
}

func NewDeleteItemCommand(service MutatingService) *DeleteItemCommand {
	return &DeleteItemCommand{service: service}
}

func (c *DeleteItemCommand) Execute(ctx context.Context, msg DeleteItemMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: item service is required")
	}
	var (
		deleted bool
		err     error
	)
	if delegated(msg.UserToken) {
		deleted, err = c.service.DeleteItemAs(ctx, msg.UserToken, msg.ContainerID, msg.ItemID)
	} else {
		deleted, err = c.service.DeleteItem(ctx, msg.ContainerID, msg.ItemID)
	}
	if err != nil {
		return err
	}
	storeResult(ctx, deleted)
	return nil
}

type InvalidatePermissionsCommand struct {
	invalidator PermissionInvalidator
}

func NewInvalidatePermissionsCommand(invalidator PermissionInvalidator) *InvalidatePermissionsCommand {
	return &InvalidatePermissionsCommand{invalidator: invalidator}
}

func (c *InvalidatePermissionsCommand) Execute(ctx context.Context, msg InvalidatePermissionsMessage) error {
	if c == nil || c.invalidator == nil {
		return commandDependencyError("command: permission invalidator is required")
	}
	return c.invalidator.Invalidate(ctx, msg.UserID, msg.ResourceID)
}

func delegated(userToken string) bool {
	return strings.TrimSpace(userToken) != ""
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}
