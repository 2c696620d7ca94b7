package command

import (
	"strings"

	"github.com/goliatone/go-docaccess/core"
)

const (
	TypeCreateContainer       = "docaccess.command.container.create"
	TypeDeleteContainer       = "docaccess.command.container.delete"
	TypeUploadItem            = "docaccess.command.item.upload"
	TypeDeleteItem            = "docaccess.command.item.delete"
	TypeInvalidatePermissions = "docaccess.command.permissions.invalidate"
)

// CreateContainerMessage requests a new container. An empty UserToken runs
// under the service's own identity; otherwise the call is made on behalf of
// the token's user.
type CreateContainerMessage struct {
	UserToken   string
	DisplayName string
}

func (CreateContainerMessage) Type() string { return TypeCreateContainer }

func (m CreateContainerMessage) Validate() error {
	if err := core.ValidateItemName(m.DisplayName); err != nil {
		return commandValidationError("display_name", err.Error())
	}
	return nil
}

type DeleteContainerMessage struct {
	UserToken   string
	ContainerID string
}

func (DeleteContainerMessage) Type() string { return TypeDeleteContainer }

func (m DeleteContainerMessage) Validate() error {
	if err := core.ValidateResourceID(m.ContainerID); err != nil {
		return commandValidationError("container_id", err.Error())
	}
	return nil
}

type UploadItemMessage struct {
	UserToken   string
	ContainerID string
	Name        string
	ContentType string
	Content     []byte
}

func (UploadItemMessage) Type() string { return TypeUploadItem }

func (m UploadItemMessage) Validate() error {
	if err := core.ValidateResourceID(m.ContainerID); err != nil {
		return commandValidationError("container_id", err.Error())
	}
	if err := core.ValidateItemName(m.Name); err != nil {
		return commandValidationError("name", err.Error())
	}
	if len(m.Content) == 0 {
		return commandValidationError("content", "content is required")
	}
	return nil
}

type DeleteItemMessage struct {
	UserToken   string
	ContainerID string
	ItemID      string
}

func (DeleteItemMessage) Type() string { return TypeDeleteItem }

func (m DeleteItemMessage) Validate() error {
	if err := core.ValidateResourceID(m.ContainerID); err != nil {
		return commandValidationError("container_id", err.Error())
	}
	if err := core.ValidateResourceID(m.ItemID); err != nil {
		return commandValidationError("item_id", err.Error())
	}
	return nil
}

type InvalidatePermissionsMessage struct {
	UserID     string
	ResourceID string
}

func (InvalidatePermissionsMessage) Type() string { return TypeInvalidatePermissions }

func (m InvalidatePermissionsMessage) Validate() error {
	if strings.TrimSpace(m.UserID) == "" {
		return commandValidationError("user_id", "user id is required")
	}
	if err := core.ValidateResourceID(m.ResourceID); err != nil {
		return commandValidationError("resource_id", err.Error())
	}
	return nil
}
