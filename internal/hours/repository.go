package hours

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Repository serializes read-modify-write cycles on the persisted table.
// The mutex covers exactly load, mutate and save.
type Repository struct {
	path   string
	logger *slog.Logger
	mu     sync.Mutex
}

// NewRepository creates a Repository for the table file at path.
func NewRepository(path string, logger *slog.Logger) *Repository {
	return &Repository{path: path, logger: logger}
}

// Path returns the backing file path.
func (r *Repository) Path() string { return r.path }

// Load returns a snapshot of the persisted table.
func (r *Repository) Load() (*Table, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.load()
}

func (r *Repository) load() (*Table, error) {
	t, stats, err := Load(r.path, r.logger)
	if err != nil {
		return nil, err
	}
	if stats.Dropped > 0 {
		r.logger.Warn("hours table loaded with dropped rows",
			"path", r.path, "loaded", stats.Loaded, "dropped", stats.Dropped)
	}
	return t, nil
}

// Update loads the table, applies fn and saves the result atomically. Nothing
// is written when fn fails or ctx is cancelled before the save.
func (r *Repository) Update(ctx context.Context, fn func(*Table) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, err := r.load()
	if err != nil {
		return err
	}
	before := t.Len()
	if err := fn(t); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("hours update cancelled before save: %w", err)
	}
	// Windows only close alongside an append, so an unchanged length means
	// nothing to persist.
	if t.Len() == before {
		return nil
	}
	return Save(r.path, t)
}
