package query

import (
	"context"
	"strings"

	"github.com/goliatone/go-docaccess/core"
	"github.com/goliatone/go-docaccess/operations"
)

// ReaderService is the read surface the queries dispatch against. The root
// facade satisfies it.
type ReaderService interface {
	ListContainers(ctx context.Context) ([]core.ResourceHandle, error)
	ListContainersAs(ctx context.Context, userToken string) ([]core.ResourceHandle, error)
	ListItems(ctx context.Context, containerID string, opts operations.ListOptions) (*core.ListingPage, error)
	ListItemsAs(ctx context.Context, userToken string, containerID string, opts operations.ListOptions) (*core.ListingPage, error)
	GetItem(ctx context.Context, containerID string, itemID string) (*core.ItemDescriptor, error)
	GetItemAs(ctx context.Context, userToken string, containerID string, itemID string) (*core.ItemDescriptor, error)
	Me(ctx context.Context, userToken string) (*core.IdentitySnapshot, error)
}

type CapabilityReader interface {
	Capabilities(ctx context.Context, userID string, resourceID string) (core.CapabilitySet, error)
}

type ListContainersQuery struct {
	reader ReaderService
}

func NewListContainersQuery(reader ReaderService) *ListContainersQuery {
	return &ListContainersQuery{reader: reader}
}

func (q *ListContainersQuery) Query(ctx context.Context, msg ListContainersMessage) ([]core.ResourceHandle, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: container reader is required")
	}
	if delegated(msg.UserToken) {
		return q.reader.ListContainersAs(ctx, msg.UserToken)
	}
	return q.reader.ListContainers(ctx)
}

type ListItemsQuery struct {
	reader ReaderService
}

func NewListItemsQuery(reader ReaderService) *ListItemsQuery {
	return &ListItemsQuery{reader: reader}
}

func (q *ListItemsQuery) Query(ctx context.Context, msg ListItemsMessage) (*core.ListingPage, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: item reader is required")
	}
	opts := operations.ListOptions{
		PageSize: msg.PageSize,
		OrderBy:  msg.OrderBy,
		Filter:   msg.Filter,
		Token:    msg.Token,
	}
	if delegated(msg.UserToken) {
		return q.reader.ListItemsAs(ctx, msg.UserToken, msg.ContainerID, opts)
	}
	return q.reader.ListItems(ctx, msg.ContainerID, opts)
}

type GetItemQuery struct {
	reader ReaderService
}

func NewGetItemQuery(reader ReaderService) *GetItemQuery {
	return &GetItemQuery{reader: reader}
}

func (q *GetItemQuery) Query(ctx context.Context, msg GetItemMessage) (*core.ItemDescriptor, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: item reader is required")
	}
	if delegated(msg.UserToken) {
		return q.reader.GetItemAs(ctx, msg.UserToken, msg.ContainerID, msg.ItemID)
	}
	return q.reader.GetItem(ctx, msg.ContainerID, msg.ItemID)
}

type ResolveIdentityQuery struct {
	reader ReaderService
}

func NewResolveIdentityQuery(reader ReaderService) *ResolveIdentityQuery {
	return &ResolveIdentityQuery{reader: reader}
}

func (q *ResolveIdentityQuery) Query(ctx context.Context, msg ResolveIdentityMessage) (*core.IdentitySnapshot, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: identity reader is required")
	}
	return q.reader.Me(ctx, msg.UserToken)
}

type GetCapabilitiesQuery struct {
	reader CapabilityReader
}

func NewGetCapabilitiesQuery(reader CapabilityReader) *GetCapabilitiesQuery {
	return &GetCapabilitiesQuery{reader: reader}
}

func (q *GetCapabilitiesQuery) Query(ctx context.Context, msg GetCapabilitiesMessage) (core.CapabilitySet, error) {
	if q == nil || q.reader == nil {
		return core.CapabilitySet{}, queryDependencyError("query: capability reader is required")
	}
	return q.reader.Capabilities(ctx, msg.UserID, msg.ResourceID)
}

func delegated(userToken string) bool {
	return strings.TrimSpace(userToken) != ""
}
