package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/ryanbastic/go-docshift/internal/document"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

var testPool *pgxpool.Pool

func TestMain(m *testing.M) {
	ctx := context.Background()

	ctr, err := postgres.Run(ctx, "postgres:16",
		postgres.WithDatabase("docshift"),
		postgres.WithUsername("postgres"),
		postgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		panic(fmt.Sprintf("start postgres container: %v", err))
	}

	connStr, err := ctr.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		panic(fmt.Sprintf("get connection string: %v", err))
	}

	testPool, err = pgxpool.New(ctx, connStr)
	if err != nil {
		panic(fmt.Sprintf("create pool: %v", err))
	}

	if err := Bootstrap(ctx, testPool); err != nil {
		panic(fmt.Sprintf("bootstrap schema: %v", err))
	}

	code := m.Run()

	testPool.Close()
	_ = testcontainers.TerminateContainer(ctr)

	os.Exit(code)
}

var viewCounter int

// freshView registers a uniquely named view and creates its table. Using a
// document body field unique to the view keeps reindexes of the shared
// documents table isolated between tests.
func freshView(t *testing.T, keyField string, valueFields ...string) (*PostgresStore, string) {
	t.Helper()
	viewCounter++
	name := fmt.Sprintf("testview_%d", viewCounter)

	views := NewViewRegistry()
	if err := views.Register(ViewDefinition{Name: name, KeyField: keyField, ValueFields: valueFields}); err != nil {
		t.Fatalf("register view: %v", err)
	}
	if err := views.CreateTables(context.Background(), testPool); err != nil {
		t.Fatalf("create view tables: %v", err)
	}
	return NewPostgresStore(testPool, views, 5*time.Second), name
}

func plainStore(t *testing.T) *PostgresStore {
	t.Helper()
	return NewPostgresStore(testPool, NewViewRegistry(), 5*time.Second)
}

func mustWrite(t *testing.T, s *PostgresStore, changes ...document.Change) []document.WriteResult {
	t.Helper()
	results, err := s.BulkWrite(context.Background(), changes)
	if err != nil {
		t.Fatalf("BulkWrite: %v", err)
	}
	for _, r := range results {
		if r.Err != nil {
			t.Fatalf("write %q: %v", r.ID, r.Err)
		}
	}
	return results
}

func TestBulkWrite_Create(t *testing.T) {
	s := plainStore(t)

	results := mustWrite(t, s, document.Change{ID: "create:a", Body: json.RawMessage(`{"n":1}`)})
	if results[0].Rev != 1 {
		t.Errorf("Rev: got %d, want 1", results[0].Rev)
	}

	doc, err := s.Get(context.Background(), "create:a")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if doc.Rev != 1 || doc.Deleted {
		t.Errorf("doc: got rev=%d deleted=%v", doc.Rev, doc.Deleted)
	}
	if doc.UpdatedAt.IsZero() {
		t.Error("expected non-zero UpdatedAt")
	}
}

func TestBulkWrite_CreateConflict(t *testing.T) {
	s := plainStore(t)
	ctx := context.Background()

	mustWrite(t, s, document.Change{ID: "create:dup", Body: json.RawMessage(`{}`)})

	results, err := s.BulkWrite(ctx, []document.Change{{ID: "create:dup", Body: json.RawMessage(`{}`)}})
	if err != nil {
		t.Fatalf("BulkWrite: %v", err)
	}
	if !errors.Is(results[0].Err, ErrWriteConflict) {
		t.Errorf("expected ErrWriteConflict, got %v", results[0].Err)
	}
}

func TestBulkWrite_Update(t *testing.T) {
	s := plainStore(t)
	ctx := context.Background()

	mustWrite(t, s, document.Change{ID: "upd:a", Body: json.RawMessage(`{"v":1}`)})

	results := mustWrite(t, s, document.Change{ID: "upd:a", Rev: 1, Body: json.RawMessage(`{"v":2}`)})
	if results[0].Rev != 2 {
		t.Errorf("Rev after update: got %d, want 2", results[0].Rev)
	}

	doc, err := s.Get(ctx, "upd:a")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	var body map[string]int
	if err := json.Unmarshal(doc.Body, &body); err != nil {
		t.Fatalf("unmarshal body: %v", err)
	}
	if body["v"] != 2 {
		t.Errorf("body v: got %d, want 2", body["v"])
	}
}

func TestBulkWrite_StaleRevConflict(t *testing.T) {
	s := plainStore(t)
	ctx := context.Background()

	mustWrite(t, s, document.Change{ID: "stale:a", Body: json.RawMessage(`{"v":1}`)})
	mustWrite(t, s, document.Change{ID: "stale:a", Rev: 1, Body: json.RawMessage(`{"v":2}`)})

	// Re-submitting with the superseded revision must conflict, not
	// double-apply.
	results, err := s.BulkWrite(ctx, []document.Change{
		{ID: "stale:a", Rev: 1, Body: json.RawMessage(`{"v":3}`)},
	})
	if err != nil {
		t.Fatalf("BulkWrite: %v", err)
	}
	if !errors.Is(results[0].Err, ErrWriteConflict) {
		t.Fatalf("expected ErrWriteConflict, got %v", results[0].Err)
	}

	doc, err := s.Get(ctx, "stale:a")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if doc.Rev != 2 {
		t.Errorf("Rev: got %d, want 2", doc.Rev)
	}
}

func TestBulkWrite_MixedResultsKeepOrder(t *testing.T) {
	s := plainStore(t)
	ctx := context.Background()

	mustWrite(t, s, document.Change{ID: "mix:taken", Body: json.RawMessage(`{}`)})

	results, err := s.BulkWrite(ctx, []document.Change{
		{ID: "mix:a", Body: json.RawMessage(`{}`)},
		{ID: "mix:taken", Body: json.RawMessage(`{}`)},
		{ID: "mix:b", Body: json.RawMessage(`{}`)},
	})
	if err != nil {
		t.Fatalf("BulkWrite: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("results: got %d, want 3", len(results))
	}
	if results[0].ID != "mix:a" || results[0].Err != nil {
		t.Errorf("result 0: got %+v", results[0])
	}
	if results[1].ID != "mix:taken" || !errors.Is(results[1].Err, ErrWriteConflict) {
		t.Errorf("result 1: got %+v", results[1])
	}
	if results[2].ID != "mix:b" || results[2].Err != nil {
		t.Errorf("result 2: got %+v", results[2])
	}
}

func TestBulkWrite_Delete(t *testing.T) {
	s := plainStore(t)
	ctx := context.Background()

	mustWrite(t, s, document.Change{ID: "del:a", Body: json.RawMessage(`{"v":1}`)})

	doc, err := s.Get(ctx, "del:a")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	mustWrite(t, s, doc.Delete())

	doc, err = s.Get(ctx, "del:a")
	if err != nil {
		t.Fatalf("Get after delete: %v", err)
	}
	if !doc.Deleted {
		t.Error("expected tombstone")
	}
	if doc.Rev != 2 {
		t.Errorf("Rev: got %d, want 2", doc.Rev)
	}
}

func TestGet_NotFound(t *testing.T) {
	s := plainStore(t)

	_, err := s.Get(context.Background(), "missing:doc")
	if !errors.Is(err, ErrDocNotFound) {
		t.Fatalf("expected ErrDocNotFound, got %v", err)
	}
}

func TestMultiGet_OrderAndMissing(t *testing.T) {
	s := plainStore(t)
	ctx := context.Background()

	mustWrite(t, s,
		document.Change{ID: "mg:a", Body: json.RawMessage(`{"n":"a"}`)},
		document.Change{ID: "mg:b", Body: json.RawMessage(`{"n":"b"}`)},
	)

	docs, err := s.MultiGet(ctx, []string{"mg:b", "mg:missing", "mg:a", "mg:b"})
	if err != nil {
		t.Fatalf("MultiGet: %v", err)
	}
	if len(docs) != 4 {
		t.Fatalf("docs: got %d, want 4", len(docs))
	}
	if docs[0] == nil || docs[0].ID != "mg:b" {
		t.Errorf("docs[0]: got %+v, want mg:b", docs[0])
	}
	if docs[1] != nil {
		t.Errorf("docs[1]: got %+v, want nil", docs[1])
	}
	if docs[2] == nil || docs[2].ID != "mg:a" {
		t.Errorf("docs[2]: got %+v, want mg:a", docs[2])
	}
	if docs[3] == nil || docs[3].ID != "mg:b" {
		t.Errorf("docs[3]: got %+v, want mg:b (duplicates allowed)", docs[3])
	}
}

func TestMultiGet_Empty(t *testing.T) {
	s := plainStore(t)

	docs, err := s.MultiGet(context.Background(), nil)
	if err != nil {
		t.Fatalf("MultiGet: %v", err)
	}
	if len(docs) != 0 {
		t.Errorf("docs: got %d, want 0", len(docs))
	}
}

func TestQueryView_UnknownView(t *testing.T) {
	s := plainStore(t)

	_, err := s.QueryView(context.Background(), ViewQuery{View: "nope", Limit: 10})
	if !errors.Is(err, ErrUnknownView) {
		t.Fatalf("expected ErrUnknownView, got %v", err)
	}
}

func TestReindexAndQueryView_Keyset(t *testing.T) {
	viewCounter++
	field := fmt.Sprintf("kf_%d", viewCounter)
	s, name := freshView(t, field, field)
	ctx := context.Background()

	// Five documents carrying the view's key field, one without it, and one
	// deleted. Only the five live keyed documents materialize.
	var changes []document.Change
	for _, k := range []string{"a", "b", "c", "d", "e"} {
		changes = append(changes, document.Change{
			ID:   fmt.Sprintf("%s:doc_%s", field, k),
			Body: json.RawMessage(fmt.Sprintf(`{"%s":%q}`, field, k)),
		})
	}
	changes = append(changes, document.Change{ID: field + ":unkeyed", Body: json.RawMessage(`{"other":1}`)})
	mustWrite(t, s, changes...)

	doomed, err := s.Get(ctx, field+":doc_e")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	mustWrite(t, s, doomed.Delete())

	if err := s.views.Reindex(ctx, testPool, name); err != nil {
		t.Fatalf("Reindex: %v", err)
	}

	page, err := s.QueryView(ctx, ViewQuery{View: name, Limit: 10})
	if err != nil {
		t.Fatalf("QueryView: %v", err)
	}
	if len(page.Rows) != 4 {
		t.Fatalf("rows: got %d, want 4 (no unkeyed, no deleted)", len(page.Rows))
	}
	for i, want := range []string{"a", "b", "c", "d"} {
		if page.Rows[i].Key != want {
			t.Errorf("row %d key: got %q, want %q", i, page.Rows[i].Key, want)
		}
	}

	// Keyset position is inclusive: restarting at row "c" returns it again.
	page, err = s.QueryView(ctx, ViewQuery{
		View:       name,
		StartKey:   page.Rows[2].Key,
		StartDocID: page.Rows[2].DocID,
		Limit:      10,
	})
	if err != nil {
		t.Fatalf("QueryView from cursor: %v", err)
	}
	if len(page.Rows) != 2 || page.Rows[0].Key != "c" || page.Rows[1].Key != "d" {
		t.Errorf("cursor page: got %+v", page.Rows)
	}

	// Limit caps the page.
	page, err = s.QueryView(ctx, ViewQuery{View: name, Limit: 2})
	if err != nil {
		t.Fatalf("QueryView with limit: %v", err)
	}
	if len(page.Rows) != 2 {
		t.Errorf("limited page: got %d rows, want 2", len(page.Rows))
	}
}

func TestReindex_ValueFields(t *testing.T) {
	viewCounter++
	field := fmt.Sprintf("vf_%d", viewCounter)
	s, name := freshView(t, field, field, "plan")
	ctx := context.Background()

	mustWrite(t, s, document.Change{
		ID:   field + ":a",
		Body: json.RawMessage(fmt.Sprintf(`{"%s":"k1","plan":"pro"}`, field)),
	})

	if err := s.views.Reindex(ctx, testPool, name); err != nil {
		t.Fatalf("Reindex: %v", err)
	}

	page, err := s.QueryView(ctx, ViewQuery{View: name, Limit: 10})
	if err != nil {
		t.Fatalf("QueryView: %v", err)
	}
	if len(page.Rows) != 1 {
		t.Fatalf("rows: got %d, want 1", len(page.Rows))
	}

	var value map[string]string
	if err := json.Unmarshal(page.Rows[0].Value, &value); err != nil {
		t.Fatalf("unmarshal value: %v", err)
	}
	if value["plan"] != "pro" {
		t.Errorf("value plan: got %q, want pro", value["plan"])
	}
}

func TestReindex_Repeatable(t *testing.T) {
	viewCounter++
	field := fmt.Sprintf("ri_%d", viewCounter)
	s, name := freshView(t, field)
	ctx := context.Background()

	mustWrite(t, s, document.Change{
		ID:   field + ":a",
		Body: json.RawMessage(fmt.Sprintf(`{"%s":"x"}`, field)),
	})

	for i := 0; i < 2; i++ {
		if err := s.views.Reindex(ctx, testPool, name); err != nil {
			t.Fatalf("Reindex #%d: %v", i+1, err)
		}
	}

	page, err := s.QueryView(ctx, ViewQuery{View: name, Limit: 10})
	if err != nil {
		t.Fatalf("QueryView: %v", err)
	}
	if len(page.Rows) != 1 {
		t.Errorf("rows after double reindex: got %d, want 1", len(page.Rows))
	}
}

func TestBootstrap_Idempotent(t *testing.T) {
	if err := Bootstrap(context.Background(), testPool); err != nil {
		t.Fatalf("second Bootstrap: %v", err)
	}
}
