package operations

import (
	"encoding/base64"
	"encoding/json"
	"strings"

	"github.com/goliatone/go-docaccess/core"
)

const (
	defaultPageSize = 50
	minPageSize     = 1
)

// Ordering fields are whitelisted; anything else would let a caller smuggle
// arbitrary sort expressions upstream.
var orderFieldWhitelist = map[string]string{
	"name":         "name",
	"lastmodified": "lastModifiedDateTime",
	"size":         "size",
}

type ListOptions struct {
	PageSize int
	Offset   int
	OrderBy  string
	Filter   string
	// Token resumes a prior listing; when set it overrides Offset, OrderBy
	// and Filter with the values captured at synthesis time.
	Token string
}

type continuationToken struct {
	Offset  int    `json:"offset"`
	OrderBy string `json:"order_by,omitempty"`
	Filter  string `json:"filter,omitempty"`
}

// resolveListOptions clamps caller input to validated bounds and maps the
// ordering field through the whitelist.
func resolveListOptions(opts ListOptions, maxPageSize int) (ListOptions, string, error) {
	if token := strings.TrimSpace(opts.Token); token != "" {
		decoded, err := decodeContinuationToken(token)
		if err != nil {
			return ListOptions{}, "", err
		}
		opts.Offset = decoded.Offset
		opts.OrderBy = decoded.OrderBy
		opts.Filter = decoded.Filter
	}

	if opts.PageSize <= 0 {
		opts.PageSize = defaultPageSize
	}
	if opts.PageSize < minPageSize {
		opts.PageSize = minPageSize
	}
	if opts.PageSize > maxPageSize {
		opts.PageSize = maxPageSize
	}
	if opts.Offset < 0 {
		opts.Offset = 0
	}

	upstreamOrder := ""
	if trimmed := strings.TrimSpace(opts.OrderBy); trimmed != "" {
		mapped, ok := orderFieldWhitelist[strings.ToLower(trimmed)]
		if !ok {
			return ListOptions{}, "", core.NewBadInputError("operations: order field is not supported")
		}
		upstreamOrder = mapped
	}
	return opts, upstreamOrder, nil
}

// synthesizeNextToken encodes the follow-up offset together with the
// original ordering and filter so the next page is deterministic.
func synthesizeNextToken(opts ListOptions, returned int, total *int64, nextLink string) *string {
	nextOffset := opts.Offset + returned
	more := false
	if total != nil {
		more = int64(nextOffset) < *total
	} else if strings.TrimSpace(nextLink) != "" {
		more = true
	} else {
		more = returned == opts.PageSize && returned > 0
	}
	if !more {
		return nil
	}
	token := encodeContinuationToken(continuationToken{
		Offset:  nextOffset,
		OrderBy: strings.TrimSpace(opts.OrderBy),
		Filter:  strings.TrimSpace(opts.Filter),
	})
	return &token
}

func encodeContinuationToken(token continuationToken) string {
	raw, err := json.Marshal(token)
	if err != nil {
		return ""
	}
	return base64.RawURLEncoding.EncodeToString(raw)
}

func decodeContinuationToken(value string) (continuationToken, error) {
	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimSpace(value))
	if err != nil {
		return continuationToken{}, core.NewBadInputError("operations: continuation token is malformed")
	}
	var token continuationToken
	if err := json.Unmarshal(raw, &token); err != nil {
		return continuationToken{}, core.NewBadInputError("operations: continuation token is malformed")
	}
	if token.Offset < 0 {
		return continuationToken{}, core.NewBadInputError("operations: continuation token is malformed")
	}
	return token, nil
}
