package pagination

import (
	"encoding/base64"
	"errors"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// Cursor is a keyset position: rows strictly older than (Timestamp, LastID).
type Cursor struct {
	LastID    string
	Timestamp time.Time
}

// Page is one slice of a keyset-paginated listing.
type Page[T any] struct {
	Items      []T
	NextCursor string
	HasMore    bool
}

var (
	ErrInvalidCursor = errors.New("invalid cursor format")
	ErrInvalidLimit  = errors.New("invalid limit")
)

// EncodeCursor creates an opaque cursor from the last item ID and timestamp
func EncodeCursor(lastID string, timestamp time.Time) string {
	if lastID == "" {
		return ""
	}
	raw := lastID + "|" + timestamp.UTC().Format(time.RFC3339Nano)
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// DecodeCursor decodes a cursor produced by EncodeCursor. An empty string yields a nil cursor.
func DecodeCursor(cursor string) (*Cursor, error) {
	if cursor == "" {
		return nil, nil
	}

	decoded, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return nil, ErrInvalidCursor
	}

	id, ts, ok := strings.Cut(string(decoded), "|")
	if !ok || id == "" {
		return nil, ErrInvalidCursor
	}

	timestamp, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return nil, ErrInvalidCursor
	}

	return &Cursor{LastID: id, Timestamp: timestamp}, nil
}

// ParseLimit reads a limit query value, applying the default and the upper bound.
func ParseLimit(raw string) (int, error) {
	if raw == "" {
		return DefaultLimit, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, ErrInvalidLimit
	}
	if n > MaxLimit {
		n = MaxLimit
	}
	return n, nil
}

// Build turns a result fetched with limit+1 rows into a Page.
func Build[T any](items []T, limit int, key func(T) (string, time.Time)) *Page[T] {
	hasMore := len(items) > limit
	if hasMore {
		items = items[:limit]
	}
	page := &Page[T]{Items: items, HasMore: hasMore}
	if hasMore && len(items) > 0 {
		page.NextCursor = EncodeCursor(key(items[len(items)-1]))
	}
	if page.Items == nil {
		page.Items = []T{}
	}
	return page
}
