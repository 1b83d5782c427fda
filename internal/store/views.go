package store

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ViewDefinition describes a materialized view over the documents table.
// Each live document contributes one row keyed by KeyField's value in the
// document body; KeyField "" keys the view by document ID. ValueFields are
// denormalized into the row's value column (empty means a null value).
type ViewDefinition struct {
	Name        string   `json:"name"`
	KeyField    string   `json:"key_field"`
	ValueFields []string `json:"value_fields"`
}

var viewNameRe = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// ViewTable returns the table name backing a view.
func ViewTable(viewName string) string {
	return "view_" + viewName
}

// ViewRegistry holds all registered view definitions.
type ViewRegistry struct {
	definitions map[string]ViewDefinition
}

// NewViewRegistry creates an empty ViewRegistry.
func NewViewRegistry() *ViewRegistry {
	return &ViewRegistry{definitions: make(map[string]ViewDefinition)}
}

// Register adds a view definition. View names become table names, so they
// are restricted to lowercase identifiers.
func (r *ViewRegistry) Register(def ViewDefinition) error {
	if !viewNameRe.MatchString(def.Name) {
		return fmt.Errorf("invalid view name %q", def.Name)
	}
	for _, f := range def.ValueFields {
		if strings.ContainsRune(f, '\'') {
			return fmt.Errorf("view %q: invalid value field %q", def.Name, f)
		}
	}
	if strings.ContainsRune(def.KeyField, '\'') {
		return fmt.Errorf("view %q: invalid key field %q", def.Name, def.KeyField)
	}
	r.definitions[def.Name] = def
	return nil
}

// Get returns the definition for a view name.
func (r *ViewRegistry) Get(name string) (ViewDefinition, bool) {
	def, ok := r.definitions[name]
	return def, ok
}

// Names returns all registered view names.
func (r *ViewRegistry) Names() []string {
	names := make([]string, 0, len(r.definitions))
	for name := range r.definitions {
		names = append(names, name)
	}
	return names
}

// CreateTables creates the backing table for every registered view.
func (r *ViewRegistry) CreateTables(ctx context.Context, pool *pgxpool.Pool) error {
	for name := range r.definitions {
		table := ViewTable(name)
		ddl := fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				key    TEXT NOT NULL,
				doc_id TEXT NOT NULL,
				value  JSONB,

				PRIMARY KEY (key, doc_id)
			);
		`, table)
		if _, err := pool.Exec(ctx, ddl); err != nil {
			return fmt.Errorf("create view table %s: %w", table, err)
		}
	}
	return nil
}

// Reindex rebuilds a view's rows from the current documents table. The
// engine reads a view with a keyset cursor and never expects it to track
// writes made mid-migration, so materialization is an explicit step.
func (r *ViewRegistry) Reindex(ctx context.Context, pool *pgxpool.Pool, name string) error {
	def, ok := r.definitions[name]
	if !ok {
		return fmt.Errorf("reindex %q: %w", name, ErrUnknownView)
	}
	table := ViewTable(name)

	keyExpr := "id"
	where := "NOT deleted"
	if def.KeyField != "" {
		keyExpr = fmt.Sprintf("body->>'%s'", def.KeyField)
		where = fmt.Sprintf("NOT deleted AND body ? '%s'", def.KeyField)
	}

	valueExpr := "NULL"
	if len(def.ValueFields) > 0 {
		pairs := make([]string, 0, len(def.ValueFields))
		for _, f := range def.ValueFields {
			pairs = append(pairs, fmt.Sprintf("'%s', body->'%s'", f, f))
		}
		valueExpr = fmt.Sprintf("jsonb_build_object(%s)", strings.Join(pairs, ", "))
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("reindex %q: begin: %w", name, err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, fmt.Sprintf(`DELETE FROM %s`, table)); err != nil {
		return fmt.Errorf("reindex %q: clear: %w", name, err)
	}

	insert := fmt.Sprintf(`
		INSERT INTO %s (key, doc_id, value)
		SELECT %s, id, %s
		FROM documents
		WHERE %s
	`, table, keyExpr, valueExpr, where)

	if _, err := tx.Exec(ctx, insert); err != nil {
		return fmt.Errorf("reindex %q: populate: %w", name, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("reindex %q: commit: %w", name, err)
	}
	return nil
}
