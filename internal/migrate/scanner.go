package migrate

import (
	"context"
	"fmt"

	"github.com/ryanbastic/go-docshift/internal/store"
)

// scanner pages through a view with a keyset cursor. Each query requests
// one lookahead row past the page size: the lookahead supplies the next
// page's start position without an extra round trip, and its absence ends
// the scan. The cursor is an immutable value recomputed per page, never a
// shared query object mutated across calls.
type scanner struct {
	store    store.DocStore
	view     string
	pageSize int
	cursor   store.Cursor
	done     bool
}

func newScanner(s store.DocStore, view string, pageSize int, start store.Cursor) *scanner {
	return &scanner{
		store:    s,
		view:     view,
		pageSize: pageSize,
		cursor:   start,
	}
}

// next returns the next page of at most pageSize rows. An empty page means
// the scan is finished. Any query error aborts the scan without advancing
// the cursor.
func (s *scanner) next(ctx context.Context) ([]store.ViewRow, error) {
	if s.done {
		return nil, nil
	}

	page, err := s.store.QueryView(ctx, store.ViewQuery{
		View:       s.view,
		StartKey:   s.cursor.Key,
		StartDocID: s.cursor.DocID,
		Limit:      s.pageSize + 1,
	})
	if err != nil {
		return nil, fmt.Errorf("query view %q: %w", s.view, err)
	}

	rows := page.Rows
	if len(rows) > s.pageSize {
		look := rows[s.pageSize]
		s.cursor = store.Cursor{Key: look.Key, DocID: look.DocID}
		rows = rows[:s.pageSize]
	} else {
		s.done = true
	}
	return rows, nil
}

// position returns the start of the next unread page.
func (s *scanner) position() store.Cursor {
	return s.cursor
}

func (s *scanner) finished() bool {
	return s.done
}

// stop ends the scan early, e.g. when a row budget is exhausted.
func (s *scanner) stop() {
	s.done = true
}
