// Package pagination implements keyset cursors over (created_at, id).
package pagination

import (
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	// DefaultLimit is the page size when a limit is not provided.
	DefaultLimit = 25
	// MaxLimit is the largest page size a single request may ask for.
	MaxLimit = 100

	cursorVersion   = "c1"
	cursorSeparator = "|"
)

// Params holds cursor pagination inputs.
type Params struct {
	Limit  int
	Cursor string
}

// PageSize clamps the requested limit into [1, MaxLimit], falling back to
// DefaultLimit when the caller sent none.
func (p Params) PageSize() int {
	switch {
	case p.Limit <= 0:
		return DefaultLimit
	case p.Limit > MaxLimit:
		return MaxLimit
	default:
		return p.Limit
	}
}

// FetchLimit is PageSize plus one row, so queries can detect a next page
// without a second round trip.
func (p Params) FetchLimit() int {
	return p.PageSize() + 1
}

// Position decodes the carried cursor. A blank cursor means first page and
// yields a nil position without error.
func (p Params) Position() (*Cursor, error) {
	return Decode(p.Cursor)
}

// Cursor is a keyset position. Encoded cursors are opaque to callers; only
// this package reads them back.
type Cursor struct {
	CreatedAt time.Time
	ID        uuid.UUID
}

// Encode renders the cursor as a URL-safe opaque token.
func (c Cursor) Encode() string {
	payload := cursorVersion + cursorSeparator +
		c.CreatedAt.UTC().Format(time.RFC3339Nano) + cursorSeparator +
		c.ID.String()
	return base64.RawURLEncoding.EncodeToString([]byte(payload))
}

// Decode parses a token produced by Encode.
func Decode(value string) (*Cursor, error) {
	if strings.TrimSpace(value) == "" {
		return nil, nil
	}

	raw, err := base64.RawURLEncoding.DecodeString(value)
	if err != nil {
		return nil, fmt.Errorf("cursor is not valid base64: %w", err)
	}
	version, rest, ok := strings.Cut(string(raw), cursorSeparator)
	if !ok || version != cursorVersion {
		return nil, fmt.Errorf("unrecognized cursor")
	}
	stamp, rawID, ok := strings.Cut(rest, cursorSeparator)
	if !ok {
		return nil, fmt.Errorf("unrecognized cursor")
	}

	createdAt, err := time.Parse(time.RFC3339Nano, stamp)
	if err != nil {
		return nil, fmt.Errorf("cursor timestamp: %w", err)
	}
	id, err := uuid.Parse(rawID)
	if err != nil {
		return nil, fmt.Errorf("cursor id: %w", err)
	}
	return &Cursor{CreatedAt: createdAt, ID: id}, nil
}
