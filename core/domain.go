package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrInvalidResourceID   = errors.New("core: invalid resource id")
	ErrInvalidItemName     = errors.New("core: invalid item name")
	ErrInvalidByteRange    = errors.New("core: invalid byte range")
	ErrSessionExpired      = errors.New("core: upload session expired")
	ErrInvalidAccessRights = errors.New("core: invalid access rights")
)

// ResourceHandle describes a provisioned resource container on the remote
// platform. Handles are read-only once created; deletion is explicit.
type ResourceHandle struct {
	ID           string
	DisplayName  string
	ResourceType string
	CreatedAt    time.Time
}

// ItemDescriptor describes a single item (file or folder) inside a
// container. Size is nil only for folder items; ChildCount is set only for
// folder items.
type ItemDescriptor struct {
	ID          string
	Name        string
	Size        *int64
	ETag        string
	ModifiedAt  time.Time
	ContentType string
	ChildCount  *int
}

func (d ItemDescriptor) IsFolder() bool {
	return d.Size == nil
}

// ListingPage is one page of an ordered item listing. NextToken is nil when
// the listing is exhausted.
type ListingPage struct {
	Items     []ItemDescriptor
	NextToken *string
}

// ByteRange describes the slice of content returned by a partial download.
type ByteRange struct {
	Start int64
	End   int64
	Total int64
}

func (r ByteRange) Validate() error {
	if r.Start < 0 || r.Start > r.End || r.End >= r.Total {
		return fmt.Errorf("%w: start=%d end=%d total=%d", ErrInvalidByteRange, r.Start, r.End, r.Total)
	}
	return nil
}

// ContentSlice carries downloaded content. Range is set only when a
// sub-range was requested and satisfied. NotModified content has zero
// Length and a nil Body.
type ContentSlice struct {
	Body        []byte
	Length      int64
	ContentType string
	ETag        string
	Range       *ByteRange
	NotModified bool
}

// UploadSession is a resumable upload target. Callers must not use the URL
// past ExpiresAt.
type UploadSession struct {
	URL       string
	ExpiresAt time.Time
}

func (s UploadSession) Expired(now time.Time) bool {
	return !s.ExpiresAt.After(now)
}

// ChunkResult reports the outcome of a single chunk submission. Completed
// is non-nil only when the final chunk finished the upload.
type ChunkResult struct {
	Status    int
	Completed *ItemDescriptor
}

// IdentitySnapshot describes the delegated user behind the current call.
type IdentitySnapshot struct {
	DisplayName   string
	PrincipalName string
	Subject       string
}

// CapabilitySet is the caller-facing projection of AccessRights for one
// resource.
type CapabilitySet struct {
	CanRead         bool
	CanWrite        bool
	CanDelete       bool
	CanCreateFolder bool
}

// AccessRights is a combinable bitset of effective rights resolved per
// (user, resource) pair.
type AccessRights uint8

const (
	RightRead AccessRights = 1 << iota
	RightWrite
	RightDelete
	RightCreate
)

const RightsNone AccessRights = 0

func (r AccessRights) Has(right AccessRights) bool {
	return r&right == right
}

func (r AccessRights) Capabilities() CapabilitySet {
	return CapabilitySet{
		CanRead:         r.Has(RightRead),
		CanWrite:        r.Has(RightWrite),
		CanDelete:       r.Has(RightDelete),
		CanCreateFolder: r.Has(RightCreate),
	}
}

func (r AccessRights) String() string {
	if r == RightsNone {
		return "none"
	}
	parts := make([]string, 0, 4)
	if r.Has(RightRead) {
		parts = append(parts, "read")
	}
	if r.Has(RightWrite) {
		parts = append(parts, "write")
	}
	if r.Has(RightDelete) {
		parts = append(parts, "delete")
	}
	if r.Has(RightCreate) {
		parts = append(parts, "create")
	}
	return strings.Join(parts, "|")
}

// ParseAccessRights maps backend right names onto the bitset. Unknown names
// are ignored so a newer backend cannot break older clients.
func ParseAccessRights(names []string) AccessRights {
	rights := RightsNone
	for _, name := range names {
		switch strings.TrimSpace(strings.ToLower(name)) {
		case "read":
			rights |= RightRead
		case "write":
			rights |= RightWrite
		case "delete":
			rights |= RightDelete
		case "create", "create_folder":
			rights |= RightCreate
		}
	}
	return rights
}

// ValidateResourceID rejects empty or path-traversing identifiers before
// they reach a URL.
func ValidateResourceID(id string) error {
	trimmed := strings.TrimSpace(id)
	if trimmed == "" {
		return fmt.Errorf("%w: empty", ErrInvalidResourceID)
	}
	if strings.ContainsAny(trimmed, "/\\?#") || strings.Contains(trimmed, "..") {
		return fmt.Errorf("%w: %q", ErrInvalidResourceID, id)
	}
	return nil
}

const maxItemNameLength = 400

// ValidateItemName enforces the remote platform's file naming rules before
// any network call.
func ValidateItemName(name string) error {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return fmt.Errorf("%w: empty", ErrInvalidItemName)
	}
	if len(trimmed) > maxItemNameLength {
		return fmt.Errorf("%w: exceeds %d characters", ErrInvalidItemName, maxItemNameLength)
	}
	if strings.ContainsAny(trimmed, `"*:<>?/\|`) {
		return fmt.Errorf("%w: %q contains reserved characters", ErrInvalidItemName, name)
	}
	if strings.HasPrefix(trimmed, "~") || strings.HasSuffix(trimmed, ".") {
		return fmt.Errorf("%w: %q", ErrInvalidItemName, name)
	}
	return nil
}
