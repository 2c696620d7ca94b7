package operations

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/goliatone/go-docaccess/core"
)

// Native platform payloads are partially populated and inconsistently
// cased across tenants. Everything is mapped defensively here; no native
// shape crosses the package boundary.

type nativeContainer struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	Name        string `json:"name"`
	TypeID      string `json:"containerTypeId"`
	CreatedAt   string `json:"createdDateTime"`
}

type nativeContainerList struct {
	Value []nativeContainer `json:"value"`
}

type nativeFileFacet struct {
	MimeType string `json:"mimeType"`
}

type nativeFolderFacet struct {
	ChildCount *int `json:"childCount"`
}

type nativeItem struct {
	ID         string             `json:"id"`
	Name       string             `json:"name"`
	Size       *int64             `json:"size"`
	ETag       string             `json:"eTag"`
	ModifiedAt string             `json:"lastModifiedDateTime"`
	File       *nativeFileFacet   `json:"file"`
	Folder     *nativeFolderFacet `json:"folder"`
}

type nativeItemList struct {
	Value    []nativeItem `json:"value"`
	Count    *int64       `json:"@odata.count"`
	NextLink string       `json:"@odata.nextLink"`
}

type nativeUploadSession struct {
	UploadURL string `json:"uploadUrl"`
	ExpiresAt string `json:"expirationDateTime"`
}

type nativeIdentity struct {
	DisplayName       string `json:"displayName"`
	UserPrincipalName string `json:"userPrincipalName"`
	Mail              string `json:"mail"`
	ID                string `json:"id"`
}

func mapContainer(native nativeContainer) core.ResourceHandle {
	displayName := strings.TrimSpace(native.DisplayName)
	if displayName == "" {
		displayName = strings.TrimSpace(native.Name)
	}
	return core.ResourceHandle{
		ID:           strings.TrimSpace(native.ID),
		DisplayName:  displayName,
		ResourceType: strings.TrimSpace(native.TypeID),
		CreatedAt:    parseUpstreamTime(native.CreatedAt),
	}
}

func mapItem(native nativeItem) core.ItemDescriptor {
	descriptor := core.ItemDescriptor{
		ID:         strings.TrimSpace(native.ID),
		Name:       strings.TrimSpace(native.Name),
		ETag:       strings.TrimSpace(native.ETag),
		ModifiedAt: parseUpstreamTime(native.ModifiedAt),
	}
	if native.Folder != nil {
		// Folders carry no size; the platform reports one inconsistently.
		descriptor.Size = nil
		if native.Folder.ChildCount != nil {
			count := *native.Folder.ChildCount
			descriptor.ChildCount = &count
		}
		return descriptor
	}
	size := int64(0)
	if native.Size != nil {
		size = *native.Size
	}
	descriptor.Size = &size
	if native.File != nil {
		descriptor.ContentType = strings.TrimSpace(native.File.MimeType)
	}
	return descriptor
}

func mapIdentity(native nativeIdentity) core.IdentitySnapshot {
	principal := strings.TrimSpace(native.UserPrincipalName)
	if principal == "" {
		principal = strings.TrimSpace(native.Mail)
	}
	return core.IdentitySnapshot{
		DisplayName:   strings.TrimSpace(native.DisplayName),
		PrincipalName: principal,
		Subject:       strings.TrimSpace(native.ID),
	}
}

func parseUpstreamTime(value string) time.Time {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return time.Time{}
	}
	if parsed, err := time.Parse(time.RFC3339, trimmed); err == nil {
		return parsed.UTC()
	}
	if parsed, err := time.Parse("2006-01-02T15:04:05Z0700", trimmed); err == nil {
		return parsed.UTC()
	}
	return time.Time{}
}

func decodeBody[T any](res core.TransportResponse) (T, error) {
	var decoded T
	if len(res.Body) == 0 {
		return decoded, fmt.Errorf("operations: empty response body")
	}
	if err := json.Unmarshal(res.Body, &decoded); err != nil {
		return decoded, fmt.Errorf("operations: decode response: %w", err)
	}
	return decoded, nil
}

// mapFailure converts an upstream error status into the module taxonomy.
// Not-found is deliberately excluded: callers map 404 to their sentinel.
func mapFailure(operation string, res core.TransportResponse) error {
	switch res.StatusCode {
	case http.StatusUnauthorized:
		return core.NewInvalidCredentialError(fmt.Sprintf("operations: %s rejected credential", operation))
	case http.StatusForbidden:
		return core.NewAccessDeniedError(fmt.Sprintf("operations: %s forbidden", operation))
	case http.StatusConflict:
		return core.NewConflictError(fmt.Sprintf("operations: %s conflict", operation))
	case http.StatusRequestEntityTooLarge:
		return core.NewPayloadTooLargeError(fmt.Sprintf("operations: %s payload too large", operation), 0, 0)
	default:
		return core.NewUpstreamError(fmt.Sprintf("operations: %s failed", operation), res.StatusCode)
	}
}
