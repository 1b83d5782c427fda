package document

import (
	"encoding/json"
	"time"
)

// Document is one versioned JSON document.
type Document struct {
	ID        string          `json:"id"`
	Rev       int64           `json:"rev"`
	Body      json.RawMessage `json:"body"`
	Deleted   bool            `json:"deleted"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Change is a full-body mutation of a single document. Rev is the revision
// the caller last read; zero means the document is being created.
type Change struct {
	ID      string          `json:"id"`
	Rev     int64           `json:"rev"`
	Body    json.RawMessage `json:"body"`
	Deleted bool            `json:"deleted"`
}

// WriteResult is the per-change outcome of a bulk write. A bulk write
// returns exactly one WriteResult per submitted Change, in submission
// order. Err is nil on success, store.ErrWriteConflict when the stored
// revision no longer matches Change.Rev, or another error for any other
// per-document rejection.
type WriteResult struct {
	ID  string `json:"id"`
	Rev int64  `json:"rev"`
	Err error  `json:"-"`
}

// Update returns a Change that replaces the document's body while carrying
// its current revision.
func (d *Document) Update(body json.RawMessage) Change {
	return Change{ID: d.ID, Rev: d.Rev, Body: body}
}

// Delete returns a Change that tombstones the document.
func (d *Document) Delete() Change {
	return Change{ID: d.ID, Rev: d.Rev, Body: json.RawMessage(`null`), Deleted: true}
}
