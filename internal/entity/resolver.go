package entity

import (
	"context"
	"errors"
	"log/slog"
)

// PrefixResolver maps entity codes to parks without the index.
type PrefixResolver interface {
	ParkForEntity(entityCode string) (string, bool)
}

// Resolver answers entity -> park lookups through the cache first and the
// registry prefixes second. A nil store disables the index path.
type Resolver struct {
	store    Store
	prefixes PrefixResolver
	logger   *slog.Logger
}

// NewResolver creates a Resolver. store may be nil.
func NewResolver(store Store, prefixes PrefixResolver, logger *slog.Logger) *Resolver {
	return &Resolver{store: store, prefixes: prefixes, logger: logger}
}

// ParkForEntity implements the park lookup used by aggregation and fallback.
func (r *Resolver) ParkForEntity(entityCode string) (string, bool) {
	if r.store != nil {
		e, err := r.store.Get(context.Background(), entityCode)
		switch {
		case err == nil && e.ParkCode != "":
			return e.ParkCode, true
		case err != nil && !errors.Is(err, ErrNotFound):
			r.logger.Warn("entity index lookup failed", "entity_code", entityCode, "error", err)
		}
	}
	if r.prefixes != nil {
		return r.prefixes.ParkForEntity(entityCode)
	}
	return "", false
}
