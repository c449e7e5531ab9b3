package feed

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"

	"github.com/readowl/realtime/pkg/errcode"
)

// Cursor is the keyset position of the last item on a page. Together
// with the (created_at DESC, id DESC) order it gives a stable total
// order even across tied timestamps.
type Cursor struct {
	CreatedAt int64
	Id        int64
}

// Encode returns the opaque client-facing form of the cursor
func (c Cursor) Encode() string {
	raw := fmt.Sprintf("%d:%d", c.CreatedAt, c.Id)
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// DecodeCursor parses a client-supplied cursor. An empty string means
// "first page" and decodes to the zero cursor.
func DecodeCursor(s string) (Cursor, error) {
	if s == "" {
		return Cursor{}, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return Cursor{}, errcode.ErrInvalidCursor
	}
	parts := strings.SplitN(string(raw), ":", 2)
	if len(parts) != 2 {
		return Cursor{}, errcode.ErrInvalidCursor
	}
	createdAt, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil || createdAt <= 0 {
		return Cursor{}, errcode.ErrInvalidCursor
	}
	id, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil || id <= 0 {
		return Cursor{}, errcode.ErrInvalidCursor
	}
	return Cursor{CreatedAt: createdAt, Id: id}, nil
}

// IsZero reports whether the cursor marks the first page
func (c Cursor) IsZero() bool {
	return c.CreatedAt == 0 && c.Id == 0
}
