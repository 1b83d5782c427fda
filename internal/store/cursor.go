package store

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// Cursor is a resumable view position: the key of the next row to read and
// its document ID as a tie-breaker for non-unique keys. The zero Cursor is
// the beginning of a view.
type Cursor struct {
	Key   string `json:"key,omitempty"`
	DocID string `json:"doc_id,omitempty"`
}

// Encode serializes the cursor to a base64-encoded string.
func (c Cursor) Encode() (string, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("marshal cursor: %w", err)
	}
	return base64.URLEncoding.EncodeToString(data), nil
}

// DecodeCursor parses a base64-encoded cursor string.
func DecodeCursor(s string) (Cursor, error) {
	data, err := base64.URLEncoding.DecodeString(s)
	if err != nil {
		return Cursor{}, fmt.Errorf("decode cursor: %w", err)
	}
	var c Cursor
	if err := json.Unmarshal(data, &c); err != nil {
		return Cursor{}, fmt.Errorf("unmarshal cursor: %w", err)
	}
	return c, nil
}
