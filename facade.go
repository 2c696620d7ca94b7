package docaccess

import (
	"context"
	"fmt"

	"github.com/goliatone/go-docaccess/core"
	"github.com/goliatone/go-docaccess/operations"
)

// Facade is the single entry point outside callers depend on. Every method
// delegates one-to-one to an operation module and returns local DTOs only;
// remote-platform-native types never cross this boundary. Methods come in
// two families: the plain form runs under the service's own identity, the
// As form runs on behalf of the user whose token is passed first.
type Facade struct {
	ops *operations.Operations
}

func NewFacade(ops *operations.Operations) (*Facade, error) {
	if ops == nil {
		return nil, fmt.Errorf("docaccess: operations are required")
	}
	return &Facade{ops: ops}, nil
}

func (f *Facade) ListContainers(ctx context.Context) ([]core.ResourceHandle, error) {
	return f.ops.Containers.List(ctx)
}

func (f *Facade) ListContainersAs(ctx context.Context, userToken string) ([]core.ResourceHandle, error) {
	return f.ops.Containers.ListAs(ctx, userToken)
}

func (f *Facade) CreateContainer(ctx context.Context, displayName string) (*core.ResourceHandle, error) {
	return f.ops.Containers.Create(ctx, displayName)
}

func (f *Facade) CreateContainerAs(ctx context.Context, userToken string, displayName string) (*core.ResourceHandle, error) {
	return f.ops.Containers.CreateAs(ctx, userToken, displayName)
}

func (f *Facade) DeleteContainer(ctx context.Context, containerID string) (bool, error) {
	return f.ops.Containers.Delete(ctx, containerID)
}

func (f *Facade) DeleteContainerAs(ctx context.Context, userToken string, containerID string) (bool, error) {
	return f.ops.Containers.DeleteAs(ctx, userToken, containerID)
}

func (f *Facade) ListItems(ctx context.Context, containerID string, opts operations.ListOptions) (*core.ListingPage, error) {
	return f.ops.Items.List(ctx, containerID, opts)
}

func (f *Facade) ListItemsAs(ctx context.Context, userToken string, containerID string, opts operations.ListOptions) (*core.ListingPage, error) {
	return f.ops.Items.ListAs(ctx, userToken, containerID, opts)
}

func (f *Facade) GetItem(ctx context.Context, containerID string, itemID string) (*core.ItemDescriptor, error) {
	return f.ops.Items.Get(ctx, containerID, itemID)
}

func (f *Facade) GetItemAs(ctx context.Context, userToken string, containerID string, itemID string) (*core.ItemDescriptor, error) {
	return f.ops.Items.GetAs(ctx, userToken, containerID, itemID)
}

func (f *Facade) DownloadItem(ctx context.Context, containerID string, itemID string, opts operations.DownloadOptions) (*core.ContentSlice, error) {
	return f.ops.Items.Download(ctx, containerID, itemID, opts)
}

func (f *Facade) DownloadItemAs(ctx context.Context, userToken string, containerID string, itemID string, opts operations.DownloadOptions) (*core.ContentSlice, error) {
	return f.ops.Items.DownloadAs(ctx, userToken, containerID, itemID, opts)
}

func (f *Facade) UploadItem(ctx context.Context, containerID string, name string, contentType string, content []byte) (*core.ItemDescriptor, error) {
	return f.ops.Items.Upload(ctx, containerID, name, contentType, content)
}

func (f *Facade) UploadItemAs(ctx context.Context, userToken string, containerID string, name string, contentType string, content []byte) (*core.ItemDescriptor, error) {
	return f.ops.Items.UploadAs(ctx, userToken, containerID, name, contentType, content)
}

func (f *Facade) DeleteItem(ctx context.Context, containerID string, itemID string) (bool, error) {
	return f.ops.Items.Delete(ctx, containerID, itemID)
}

func (f *Facade) DeleteItemAs(ctx context.Context, userToken string, containerID string, itemID string) (bool, error) {
	return f.ops.Items.DeleteAs(ctx, userToken, containerID, itemID)
}

func (f *Facade) CreateUploadSession(ctx context.Context, containerID string, name string) (*core.UploadSession, error) {
	return f.ops.Uploads.CreateSession(ctx, containerID, name)
}

func (f *Facade) CreateUploadSessionAs(ctx context.Context, userToken string, containerID string, name string) (*core.UploadSession, error) {
	return f.ops.Uploads.CreateSessionAs(ctx, userToken, containerID, name)
}

func (f *Facade) UploadChunk(ctx context.Context, session *core.UploadSession, declared core.ByteRange, chunk []byte) (*core.ChunkResult, error) {
	return f.ops.Uploads.UploadChunk(ctx, session, declared, chunk)
}

func (f *Facade) CancelUploadSession(ctx context.Context, session *core.UploadSession) error {
	return f.ops.Uploads.CancelSession(ctx, session)
}

func (f *Facade) Me(ctx context.Context, userToken string) (*core.IdentitySnapshot, error) {
	return f.ops.Identity.Me(ctx, userToken)
}

func (f *Facade) ServiceIdentity(ctx context.Context) (*core.IdentitySnapshot, error) {
	return f.ops.Identity.ServiceIdentity(ctx)
}
