package query

import (
	"strings"

	"github.com/goliatone/go-docaccess/core"
)

const (
	TypeListContainers  = "docaccess.query.container.list"
	TypeListItems       = "docaccess.query.item.list"
	TypeGetItem         = "docaccess.query.item.get"
	TypeResolveIdentity = "docaccess.query.identity.resolve"
	TypeGetCapabilities = "docaccess.query.permissions.capabilities"
)

// ListContainersMessage lists the containers visible to a credential. An
// empty UserToken runs under the service's own identity.
type ListContainersMessage struct {
	UserToken string
}

func (ListContainersMessage) Type() string { return TypeListContainers }

func (ListContainersMessage) Validate() error { return nil }

type ListItemsMessage struct {
	UserToken   string
	ContainerID string
	PageSize    int
	OrderBy     string
	Filter      string
	Token       string
}

func (ListItemsMessage) Type() string { return TypeListItems }

func (m ListItemsMessage) Validate() error {
	if err := core.ValidateResourceID(m.ContainerID); err != nil {
		return queryValidationError("container_id", err.Error())
	}
	if m.PageSize < 0 {
		return queryValidationError("page_size", "page size must be >= 0")
	}
	return nil
}

type GetItemMessage struct {
	UserToken   string
	ContainerID string
	ItemID      string
}

func (GetItemMessage) Type() string { return TypeGetItem }

func (m GetItemMessage) Validate() error {
	if err := core.ValidateResourceID(m.ContainerID); err != nil {
		return queryValidationError("container_id", err.Error())
	}
	if err := core.ValidateResourceID(m.ItemID); err != nil {
		return queryValidationError("item_id", err.Error())
	}
	return nil
}

type ResolveIdentityMessage struct {
	UserToken string
}

func (ResolveIdentityMessage) Type() string { return TypeResolveIdentity }

func (m ResolveIdentityMessage) Validate() error {
	if strings.TrimSpace(m.UserToken) == "" {
		return queryValidationError("user_token", "user token is required")
	}
	return nil
}

type GetCapabilitiesMessage struct {
	UserID     string
	ResourceID string
}

func (GetCapabilitiesMessage) Type() string { return TypeGetCapabilities }

func (m GetCapabilitiesMessage) Validate() error {
	if strings.TrimSpace(m.UserID) == "" {
		return queryValidationError("user_id", "user id is required")
	}
	if err := core.ValidateResourceID(m.ResourceID); err != nil {
		return queryValidationError("resource_id", err.Error())
	}
	return nil
}
