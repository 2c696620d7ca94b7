package operations

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/goliatone/go-docaccess/core"
	"github.com/goliatone/go-docaccess/credentials"
)

// ItemOperations covers item listing, metadata, download and the small
// direct-upload path. Content larger than the small-upload ceiling must go
// through UploadOperations.
type ItemOperations struct {
	ops *Operations
}

// RequestRange is a caller-requested byte range. A nil End means "to the
// end of the item".
type RequestRange struct {
	Start int64
	End   *int64
}

type DownloadOptions struct {
	// ETag short-circuits the download when it still matches the item's
	// current version tag.
	ETag  string
	Range *RequestRange
}

func (i *ItemOperations) List(ctx context.Context, containerID string, opts ListOptions) (*core.ListingPage, error) {
	client, err := i.ops.appClient(ctx)
	if err != nil {
		return nil, err
	}
	return i.list(ctx, client, containerID, opts)
}

func (i *ItemOperations) ListAs(ctx context.Context, userToken string, containerID string, opts ListOptions) (*core.ListingPage, error) {
	client, err := i.ops.delegatedClient(ctx, userToken)
	if err != nil {
		return nil, err
	}
	return i.list(ctx, client, containerID, opts)
}

// Get returns item metadata, nil when the item does not exist.
func (i *ItemOperations) Get(ctx context.Context, containerID string, itemID string) (*core.ItemDescriptor, error) {
	client, err := i.ops.appClient(ctx)
	if err != nil {
		return nil, err
	}
	return i.get(ctx, client, containerID, itemID)
}

func (i *ItemOperations) GetAs(ctx context.Context, userToken string, containerID string, itemID string) (*core.ItemDescriptor, error) {
	client, err := i.ops.delegatedClient(ctx, userToken)
	if err != nil {
		return nil, err
	}
	return i.get(ctx, client, containerID, itemID)
}

// Download fetches item content. A matching ETag yields a zero-length
// not-modified slice without touching the content endpoint; an
// out-of-bounds range start yields nil (range not satisfiable).
func (i *ItemOperations) Download(ctx context.Context, containerID string, itemID string, opts DownloadOptions) (*core.ContentSlice, error) {
	client, err := i.ops.appClient(ctx)
	if err != nil {
		return nil, err
	}
	return i.download(ctx, client, containerID, itemID, opts)
}

func (i *ItemOperations) DownloadAs(ctx context.Context, userToken string, containerID string, itemID string, opts DownloadOptions) (*core.ContentSlice, error) {
	client, err := i.ops.delegatedClient(ctx, userToken)
	if err != nil {
		return nil, err
	}
	return i.download(ctx, client, containerID, itemID, opts)
}

// Upload writes content directly as a named item. Content beyond the
// small-upload ceiling is rejected before any network call.
func (i *ItemOperations) Upload(ctx context.Context, containerID string, name string, contentType string, content []byte) (*core.ItemDescriptor, error) {
	client, err := i.ops.appClient(ctx)
	if err != nil {
		return nil, err
	}
	return i.upload(ctx, client, containerID, name, contentType, content)
}

func (i *ItemOperations) UploadAs(ctx context.Context, userToken string, containerID string, name string, contentType string, content []byte) (*core.ItemDescriptor, error) {
	client, err := i.ops.delegatedClient(ctx, userToken)
	if err != nil {
		return nil, err
	}
	return i.upload(ctx, client, containerID, name, contentType, content)
}

// Delete removes an item, reporting false when it was already gone.
func (i *ItemOperations) Delete(ctx context.Context, containerID string, itemID string) (bool, error) {
	client, err := i.ops.appClient(ctx)
	if err != nil {
		return false, err
	}
	return i.delete(ctx, client, containerID, itemID)
}

func (i *ItemOperations) DeleteAs(ctx context.Context, userToken string, containerID string, itemID string) (bool, error) {
	client, err := i.ops.delegatedClient(ctx, userToken)
	if err != nil {
		return false, err
	}
	return i.delete(ctx, client, containerID, itemID)
}

func (i *ItemOperations) list(ctx context.Context, client *credentials.Client, containerID string, opts ListOptions) (_ *core.ListingPage, err error) {
	if err := core.ValidateResourceID(containerID); err != nil {
		return nil, core.NewBadInputError(err.Error())
	}
	resolved, upstreamOrder, err := resolveListOptions(opts, i.ops.config.MaxPageSize)
	if err != nil {
		return nil, err
	}

	startedAt := time.Now().UTC()
	defer func() {
		i.ops.observe(ctx, startedAt, "items.list", err, map[string]any{
			"auth_kind":    client.Kind(),
			"container_id": containerID,
			"page_size":    resolved.PageSize,
			"offset":       resolved.Offset,
		})
	}()

	query := map[string]string{
		"$top":   strconv.Itoa(resolved.PageSize),
		"$skip":  strconv.Itoa(resolved.Offset),
		"$count": "true",
	}
	if upstreamOrder != "" {
		query["$orderby"] = upstreamOrder
	}
	if filter := strings.TrimSpace(resolved.Filter); filter != "" {
		query["$filter"] = filter
	}

	res, err := i.ops.call(ctx, client, core.TransportRequest{
		Method: http.MethodGet,
		URL:    i.ops.endpoint("containers", containerID, "items"),
		Query:  query,
	})
	if err != nil {
		return nil, err
	}
	if res.StatusCode != http.StatusOK {
		return nil, mapFailure("items.list", res)
	}
	decoded, err := decodeBody[nativeItemList](res)
	if err != nil {
		return nil, err
	}

	items := make([]core.ItemDescriptor, 0, len(decoded.Value))
	for _, native := range decoded.Value {
		descriptor := mapItem(native)
		if descriptor.ID == "" || descriptor.Name == "" {
			continue
		}
		items = append(items, descriptor)
	}
	return &core.ListingPage{
		Items:     items,
		NextToken: synthesizeNextToken(resolved, len(items), decoded.Count, decoded.NextLink),
	}, nil
}

func (i *ItemOperations) get(ctx context.Context, client *credentials.Client, containerID string, itemID string) (_ *core.ItemDescriptor, err error) {
	if err := core.ValidateResourceID(containerID); err != nil {
		return nil, core.NewBadInputError(err.Error())
	}
	if err := core.ValidateResourceID(itemID); err != nil {
		return nil, core.NewBadInputError(err.Error())
	}

	startedAt := time.Now().UTC()
	defer func() {
		i.ops.observe(ctx, startedAt, "items.get", err, map[string]any{
			"auth_kind":    client.Kind(),
			"container_id": containerID,
			"item_id":      itemID,
		})
	}()

	res, err := i.ops.call(ctx, client, core.TransportRequest{
		Method: http.MethodGet,
		URL:    i.ops.endpoint("containers", containerID, "items", itemID),
	})
	if err != nil {
		return nil, err
	}
	switch res.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, nil
	default:
		return nil, mapFailure("items.get", res)
	}
	decoded, err := decodeBody[nativeItem](res)
	if err != nil {
		return nil, err
	}
	descriptor := mapItem(decoded)
	return &descriptor, nil
}

func (i *ItemOperations) download(ctx context.Context, client *credentials.Client, containerID string, itemID string, opts DownloadOptions) (_ *core.ContentSlice, err error) {
	descriptor, err := i.get(ctx, client, containerID, itemID)
	if err != nil {
		return nil, err
	}
	if descriptor == nil {
		return nil, nil
	}
	if descriptor.IsFolder() {
		return nil, core.NewBadInputError("operations: folders have no downloadable content")
	}

	requestedETag := strings.TrimSpace(opts.ETag)
	if requestedETag != "" && requestedETag == descriptor.ETag {
		return &core.ContentSlice{
			ContentType: descriptor.ContentType,
			ETag:        descriptor.ETag,
			NotModified: true,
		}, nil
	}

	var total int64
	if descriptor.Size != nil {
		total = *descriptor.Size
	}
	var contentRange *core.ByteRange
	headers := map[string]string{}
	if opts.Range != nil {
		if opts.Range.Start < 0 {
			return nil, core.NewBadInputError("operations: range start must not be negative")
		}
		if opts.Range.Start >= total {
			// Range not satisfiable; the boundary maps nil to 416.
			return nil, nil
		}
		end := total - 1
		if opts.Range.End != nil {
			if *opts.Range.End < opts.Range.Start {
				return nil, core.NewBadInputError("operations: range end precedes start")
			}
			if *opts.Range.End < end {
				end = *opts.Range.End
			}
		}
		contentRange = &core.ByteRange{Start: opts.Range.Start, End: end, Total: total}
		headers["Range"] = fmt.Sprintf("bytes=%d-%d", contentRange.Start, contentRange.End)
	}

	startedAt := time.Now().UTC()
	defer func() {
		i.ops.observe(ctx, startedAt, "items.download", err, map[string]any{
			"auth_kind":    client.Kind(),
			"container_id": containerID,
			"item_id":      itemID,
			"ranged":       contentRange != nil,
		})
	}()

	res, err := i.ops.call(ctx, client, core.TransportRequest{
		Method:  http.MethodGet,
		URL:     i.ops.endpoint("containers", containerID, "items", itemID, "content"),
		Headers: headers,
	})
	if err != nil {
		return nil, err
	}
	switch res.StatusCode {
	case http.StatusOK, http.StatusPartialContent:
	case http.StatusNotFound:
		return nil, nil
	case http.StatusRequestedRangeNotSatisfiable:
		return nil, nil
	default:
		return nil, mapFailure("items.download", res)
	}

	return &core.ContentSlice{
		Body:        res.Body,
		Length:      int64(len(res.Body)),
		ContentType: descriptor.ContentType,
		ETag:        descriptor.ETag,
		Range:       contentRange,
	}, nil
}

func (i *ItemOperations) upload(ctx context.Context, client *credentials.Client, containerID string, name string, contentType string, content []byte) (_ *core.ItemDescriptor, err error) {
	if err := core.ValidateResourceID(containerID); err != nil {
		return nil, core.NewBadInputError(err.Error())
	}
	if err := core.ValidateItemName(name); err != nil {
		return nil, core.NewBadInputError(err.Error())
	}
	limit := i.ops.config.SmallUploadLimitBytes
	if int64(len(content)) > limit {
		return nil, core.NewPayloadTooLargeError(
			"operations: content exceeds the direct upload ceiling",
			int64(len(content)),
			limit,
		)
	}
	if strings.TrimSpace(contentType) == "" {
		contentType = "application/octet-stream"
	}

	startedAt := time.Now().UTC()
	defer func() {
		i.ops.observe(ctx, startedAt, "items.upload", err, map[string]any{
			"auth_kind":    client.Kind(),
			"container_id": containerID,
			"name":         name,
			"size_bytes":   len(content),
		})
	}()

	res, err := i.ops.call(ctx, client, core.TransportRequest{
		Method:  http.MethodPut,
		URL:     i.ops.endpoint("containers", containerID, "items", name, "content"),
		Headers: map[string]string{"Content-Type": contentType},
		Body:    content,
	})
	if err != nil {
		return nil, err
	}
	if res.StatusCode != http.StatusCreated && res.StatusCode != http.StatusOK {
		return nil, mapFailure("items.upload", res)
	}
	decoded, err := decodeBody[nativeItem](res)
	if err != nil {
		return nil, err
	}
	descriptor := mapItem(decoded)
	return &descriptor, nil
}

func (i *ItemOperations) delete(ctx context.Context, client *credentials.Client, containerID string, itemID string) (_ bool, err error) {
	if err := core.ValidateResourceID(containerID); err != nil {
		return false, core.NewBadInputError(err.Error())
	}
	if err := core.ValidateResourceID(itemID); err != nil {
		return false, core.NewBadInputError(err.Error())
	}

	startedAt := time.Now().UTC()
	defer func() {
		i.ops.observe(ctx, startedAt, "items.delete", err, map[string]any{
			"auth_kind":    client.Kind(),
			"container_id": containerID,
			"item_id":      itemID,
		})
	}()

	res, err := i.ops.call(ctx, client, core.TransportRequest{
		Method: http.MethodDelete,
		URL:    i.ops.endpoint("containers", containerID, "items", itemID),
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
		return false, mapFailure("items.delete", res)
	}
}
