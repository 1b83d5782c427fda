package runner

import (
	"fmt"
	"sort"
	"sync"

	"github.com/ryanbastic/go-docshift/internal/migrate"
)

// Definition is a named, registered migration: the view it scans plus the
// user-supplied callbacks and knobs handed to the engine per run.
type Definition struct {
	Name           string
	View           string
	BatchSize      int
	Limit          int
	RetryConflicts int

	FetchKeys migrate.FetchKeysFunc
	Changes   migrate.ChangesFunc
	Filter    migrate.FilterFunc
}

// Registry is a thread-safe in-memory store of migration definitions.
type Registry struct {
	mu   sync.RWMutex
	defs map[string]*Definition
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{defs: make(map[string]*Definition)}
}

// Register adds a migration definition.
func (r *Registry) Register(def *Definition) error {
	if def.Name == "" {
		return fmt.Errorf("migration name is required")
	}
	if def.View == "" {
		return fmt.Errorf("migration %q: view is required", def.Name)
	}
	if def.Changes == nil {
		return fmt.Errorf("migration %q: changes callback is required", def.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.defs[def.Name]; ok {
		return fmt.Errorf("migration %q already registered", def.Name)
	}
	r.defs[def.Name] = def
	return nil
}

// Get returns a definition by name.
func (r *Registry) Get(name string) (*Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.defs[name]
	return def, ok
}

// List returns all definitions ordered by name.
func (r *Registry) List() []*Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Definition, 0, len(r.defs))
	for _, def := range r.defs {
		out = append(out, def)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
