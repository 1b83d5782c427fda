package migrate

import (
	"context"
	"errors"
	"testing"

	"github.com/ryanbastic/go-docshift/internal/store"
)

func TestScanner_Lookahead(t *testing.T) {
	mock := newMockDocStore(viewRows("a", "b", "c")...)
	sc := newScanner(mock, "v", 2, store.Cursor{})

	page, err := sc.next(context.Background())
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if len(page) != 2 {
		t.Fatalf("page size: got %d, want 2", len(page))
	}
	if sc.finished() {
		t.Error("scan should not be finished after a full page")
	}
	if pos := sc.position(); pos.DocID != "c" {
		t.Errorf("position: got %q, want c", pos.DocID)
	}

	page, err = sc.next(context.Background())
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if len(page) != 1 || page[0].DocID != "c" {
		t.Errorf("second page: got %+v", page)
	}
	if !sc.finished() {
		t.Error("scan should be finished after a short page")
	}
}

func TestScanner_Empty(t *testing.T) {
	sc := newScanner(newMockDocStore(), "v", 2, store.Cursor{})

	page, err := sc.next(context.Background())
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if len(page) != 0 {
		t.Errorf("page: got %d rows, want 0", len(page))
	}
	if !sc.finished() {
		t.Error("scan should be finished")
	}
}

func TestScanner_NextAfterFinished(t *testing.T) {
	mock := newMockDocStore(viewRows("a")...)
	sc := newScanner(mock, "v", 2, store.Cursor{})

	if _, err := sc.next(context.Background()); err != nil {
		t.Fatalf("next: %v", err)
	}

	page, err := sc.next(context.Background())
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if page != nil {
		t.Errorf("page after finish: got %+v, want nil", page)
	}
	if mock.queryCalls != 1 {
		t.Errorf("queryCalls: got %d, want 1", mock.queryCalls)
	}
}

func TestScanner_Stop(t *testing.T) {
	mock := newMockDocStore(viewRows("a", "b", "c")...)
	sc := newScanner(mock, "v", 2, store.Cursor{})

	if _, err := sc.next(context.Background()); err != nil {
		t.Fatalf("next: %v", err)
	}
	sc.stop()

	if !sc.finished() {
		t.Error("scan should be finished after stop")
	}
	if page, _ := sc.next(context.Background()); page != nil {
		t.Errorf("page after stop: got %+v, want nil", page)
	}
}

func TestScanner_QueryError(t *testing.T) {
	mock := newMockDocStore(viewRows("a")...)
	mock.queryErr = errors.New("boom")
	sc := newScanner(mock, "v", 2, store.Cursor{})

	if _, err := sc.next(context.Background()); err == nil {
		t.Fatal("expected error, got nil")
	}
}
