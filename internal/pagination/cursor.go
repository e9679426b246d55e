// Package pagination encodes opaque id cursors for list endpoints.
package pagination

import (
	"encoding/base64"
	"errors"
	"strconv"
	"strings"
)

const cursorPrefix = "id:"

// PageResult represents a paginated result set
type PageResult[T any] struct {
	Items   []T    `json:"items"`
	Cursor  string `json:"cursor,omitempty"`
	HasMore bool   `json:"has_more"`
}

var (
	ErrInvalidCursor = errors.New("invalid cursor format")
)

// EncodeCursor creates a base64-encoded cursor from the last item id.
func EncodeCursor(lastID int64) string {
	if lastID <= 0 {
		return ""
	}
	return base64.RawURLEncoding.EncodeToString([]byte(cursorPrefix + strconv.FormatInt(lastID, 10)))
}

// DecodeCursor returns the id encoded in cursor, or 0 for an empty cursor.
func DecodeCursor(cursor string) (int64, error) {
	if cursor == "" {
		return 0, nil
	}

	decoded, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return 0, ErrInvalidCursor
	}

	raw, ok := strings.CutPrefix(string(decoded), cursorPrefix)
	if !ok {
		return 0, ErrInvalidCursor
	}

	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, ErrInvalidCursor
	}
	return id, nil
}

// Page trims items fetched with limit+1 rows to limit and builds the next
// cursor. Returns an empty cursor when there are no more items.
func Page[T any](items []T, limit int, getID func(T) int64) PageResult[T] {
	if limit <= 0 || len(items) <= limit {
		return PageResult[T]{Items: items}
	}
	items = items[:limit]
	return PageResult[T]{
		Items:   items,
		Cursor:  EncodeCursor(getID(items[len(items)-1])),
		HasMore: true,
	}
}
