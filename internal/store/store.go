package store

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/ryanbastic/go-docshift/internal/document"
)

// ErrWriteConflict marks a per-document bulk-write rejection caused by a
// revision mismatch. It is carried inside a WriteResult, never returned as
// the bulk write's own error.
var ErrWriteConflict = errors.New("write conflict")

// ErrDocNotFound is returned when a single-document lookup finds no row.
var ErrDocNotFound = errors.New("document not found")

// ErrUnknownView is returned when a view query names an unregistered view.
var ErrUnknownView = errors.New("unknown view")

// ViewRow is one key/value entry from a view page.
type ViewRow struct {
	Key   string          `json:"key"`
	DocID string          `json:"doc_id"`
	Value json.RawMessage `json:"value"`
}

// ViewQuery selects one page of a view. StartKey/StartDocID form an
// inclusive keyset position; both empty means the beginning of the view.
type ViewQuery struct {
	View       string
	StartKey   string
	StartDocID string
	Limit      int
}

// ViewPage is the result of a single view query.
type ViewPage struct {
	Rows []ViewRow
}

// DocStore is the document-store surface the migration engine runs against.
type DocStore interface {
	// QueryView returns up to Limit rows from a view, ordered by
	// (key, doc_id) ascending, starting at the query's keyset position.
	QueryView(ctx context.Context, q ViewQuery) (*ViewPage, error)

	// MultiGet fetches documents by ID, one entry per requested ID in
	// request order. Missing documents appear as nil, not as an error.
	MultiGet(ctx context.Context, ids []string) ([]*document.Document, error)

	// BulkWrite applies all changes in one store round trip and returns one
	// WriteResult per change, in submission order. A revision mismatch
	// surfaces as ErrWriteConflict inside the affected result; only
	// transport or protocol failures are returned as the call's error.
	BulkWrite(ctx context.Context, changes []document.Change) ([]document.WriteResult, error)
}
