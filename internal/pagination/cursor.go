// Package pagination implements keyset cursors over (created_at, id).
package pagination

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// ErrInvalidCursor is returned for cursors that cannot be decoded.
var ErrInvalidCursor = errors.New("invalid cursor")

// Params controls cursor-based pagination.
type Params struct {
	Cursor string `json:"cursor"`
	Limit  int    `json:"limit"`
}

// PageLimit returns the effective page size.
func (p Params) PageLimit() int {
	switch {
	case p.Limit <= 0:
		return DefaultLimit
	case p.Limit > MaxLimit:
		return MaxLimit
	}
	return p.Limit
}

// Encode produces a base64 cursor from a created_at timestamp and id.
func Encode(createdAt time.Time, id string) string {
	raw := createdAt.Format(time.RFC3339Nano) + "|" + id
	return base64.StdEncoding.EncodeToString([]byte(raw))
}

// Decode parses a cursor back into its created_at and id parts.
func Decode(cursor string) (time.Time, string, error) {
	data, err := base64.StdEncoding.DecodeString(cursor)
	if err != nil {
		return time.Time{}, "", fmt.Errorf("%w: decoding base64: %v", ErrInvalidCursor, err)
	}

	parts := strings.SplitN(string(data), "|", 2)
	if len(parts) != 2 || parts[1] == "" {
		return time.Time{}, "", fmt.Errorf("%w: bad format", ErrInvalidCursor)
	}

	t, err := time.Parse(time.RFC3339Nano, parts[0])
	if err != nil {
		return time.Time{}, "", fmt.Errorf("%w: parsing time: %v", ErrInvalidCursor, err)
	}
	return t, parts[1], nil
}

// Trim cuts a result fetched with PageLimit()+1 rows down to the page and
// returns the cursor for the next page, or "" when there is none.
func Trim[T any](items []T, limit int, key func(T) (time.Time, string)) ([]T, string) {
	if len(items) <= limit {
		return items, ""
	}
	at, id := key(items[limit-1])
	return items[:limit], Encode(at, id)
}
