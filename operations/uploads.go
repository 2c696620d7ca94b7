package operations

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/goliatone/go-docaccess/core"
	"github.com/goliatone/go-docaccess/credentials"
)

// UploadOperations manages resumable upload sessions for content beyond the
// small-upload ceiling. Chunks after the session is created go straight to
// the session URL, which carries its own authorization.
type UploadOperations struct {
	ops *Operations
}

func (u *UploadOperations) CreateSession(ctx context.Context, containerID string, name string) (*core.UploadSession, error) {
	client, err := u.ops.appClient(ctx)
	if err != nil {
		return nil, err
	}
	return u.createSession(ctx, client, containerID, name)
}

func (u *UploadOperations) CreateSessionAs(ctx context.Context, userToken string, containerID string, name string) (*core.UploadSession, error) {
	client, err := u.ops.delegatedClient(ctx, userToken)
	if err != nil {
		return nil, err
	}
	return u.createSession(ctx, client, containerID, name)
}

func (u *UploadOperations) createSession(ctx context.Context, client *credentials.Client, containerID string, name string) (_ *core.UploadSession, err error) {
	if err := core.ValidateResourceID(containerID); err != nil {
		return nil, core.NewBadInputError(err.Error())
	}
	if err := core.ValidateItemName(name); err != nil {
		return nil, core.NewBadInputError(err.Error())
	}

	startedAt := time.Now().UTC()
	defer func() {
		u.ops.observe(ctx, startedAt, "uploads.create_session", err, map[string]any{
			"auth_kind":    client.Kind(),
			"container_id": containerID,
			"name":         name,
		})
	}()

	res, err := u.ops.call(ctx, client, core.TransportRequest{
		Method: http.MethodPost,
		URL:    u.ops.endpoint("containers", containerID, "items", name, "createUploadSession"),
		Body:   []byte(`{}`),
		Headers: map[string]string{
			"Content-Type": "application/json",
		},
	})
	if err != nil {
		return nil, err
	}
	if res.StatusCode != http.StatusOK && res.StatusCode != http.StatusCreated {
		return nil, mapFailure("uploads.create_session", res)
	}
	decoded, err := decodeBody[nativeUploadSession](res)
	if err != nil {
		return nil, err
	}
	if decoded.UploadURL == "" {
		return nil, core.NewUpstreamError("operations: upload session response carried no target URL", res.StatusCode)
	}
	return &core.UploadSession{
		URL:       decoded.UploadURL,
		ExpiresAt: parseUpstreamTime(decoded.ExpiresAt),
	}, nil
}

// UploadChunk sends one contiguous slice of the item body to the session
// URL. The declared range must describe exactly the bytes handed in, and
// every chunk except the final one must fall within the configured chunk
// size bounds. The result carries the completed item once the last chunk
// lands.
func (u *UploadOperations) UploadChunk(ctx context.Context, session *core.UploadSession, declared core.ByteRange, chunk []byte) (_ *core.ChunkResult, err error) {
	if session == nil {
		return nil, core.NewBadInputError("operations: upload session is required")
	}
	now := u.ops.config.Now()
	if session.Expired(now) {
		return nil, core.NewBadInputError("operations: upload session has expired")
	}
	if err := declared.Validate(); err != nil {
		return nil, core.NewBadInputError(err.Error())
	}
	declaredLen := declared.End - declared.Start + 1
	if declaredLen != int64(len(chunk)) {
		return nil, core.NewBadInputError(fmt.Sprintf(
			"operations: declared range covers %d bytes but chunk carries %d",
			declaredLen, len(chunk),
		))
	}
	finalChunk := declared.End == declared.Total-1
	if !finalChunk && declaredLen < u.ops.config.ChunkSizeMinBytes {
		return nil, core.NewBadInputError(fmt.Sprintf(
			"operations: chunk of %d bytes is below the %d byte minimum",
			declaredLen, u.ops.config.ChunkSizeMinBytes,
		))
	}
	if declaredLen > u.ops.config.ChunkSizeMaxBytes {
		return nil, core.NewBadInputError(fmt.Sprintf(
			"operations: chunk of %d bytes exceeds the %d byte maximum",
			declaredLen, u.ops.config.ChunkSizeMaxBytes,
		))
	}
	// The platform only accepts non-final chunks sized in whole multiples
	// of the minimum chunk size.
	if !finalChunk && declaredLen%u.ops.config.ChunkSizeMinBytes != 0 {
		return nil, core.NewBadInputError(fmt.Sprintf(
			"operations: chunk of %d bytes is not a multiple of the %d byte chunk unit",
			declaredLen, u.ops.config.ChunkSizeMinBytes,
		))
	}

	startedAt := time.Now().UTC()
	defer func() {
		u.ops.observe(ctx, startedAt, "uploads.chunk", err, map[string]any{
			"range_start": declared.Start,
			"range_end":   declared.End,
			"final":       finalChunk,
		})
	}()

	res, err := u.ops.sessionCall(ctx, core.TransportRequest{
		Method: http.MethodPut,
		URL:    session.URL,
		Headers: map[string]string{
			"Content-Length": fmt.Sprintf("%d", declaredLen),
			"Content-Range":  fmt.Sprintf("bytes %d-%d/%d", declared.Start, declared.End, declared.Total),
		},
		Body: chunk,
	})
	if err != nil {
		return nil, err
	}

	switch res.StatusCode {
	case http.StatusAccepted:
		return &core.ChunkResult{Status: res.StatusCode}, nil
	case http.StatusOK, http.StatusCreated:
		decoded, err := decodeBody[nativeItem](res)
		if err != nil {
			return nil, err
		}
		descriptor := mapItem(decoded)
		return &core.ChunkResult{Status: res.StatusCode, Completed: &descriptor}, nil
	default:
		return nil, mapFailure("uploads.chunk", res)
	}
}

// CancelSession discards a pending session so the platform can reclaim the
// partial upload. Cancelling an unknown or already finished session is not
// an error.
func (u *UploadOperations) CancelSession(ctx context.Context, session *core.UploadSession) (err error) {
	if session == nil || session.URL == "" {
		return nil
	}

	startedAt := time.Now().UTC()
	defer func() {
		u.ops.observe(ctx, startedAt, "uploads.cancel_session", err, nil)
	}()

	res, err := u.ops.sessionCall(ctx, core.TransportRequest{
		Method: http.MethodDelete,
		URL:    session.URL,
	})
	if err != nil {
		return err
	}
	switch res.StatusCode {
	case http.StatusNoContent, http.StatusOK, http.StatusNotFound:
		return nil
	default:
		return mapFailure("uploads.cancel_session", res)
	}
}
