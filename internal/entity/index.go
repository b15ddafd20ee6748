// Package entity provides the entity index (attraction metadata keyed by
// entity_code) and an explicit lookup cache in front of it.
package entity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when an entity code is not in the index.
var ErrNotFound = errors.New("entity not found")

// Entity is one attraction, show or restaurant.
type Entity struct {
	Code     string
	ParkCode string
	Name     string
}

// Index is a SQLite-backed key/value + scan store of entities.
type Index struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS entities (
	entity_code TEXT PRIMARY KEY,
	park_code   TEXT NOT NULL,
	name        TEXT NOT NULL DEFAULT ''
)`

// Open opens (creating if needed) the index at path. Use ":memory:" for tests.
func Open(ctx context.Context, path string) (*Index, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open entity index: %w", err)
	}
	// A single connection keeps ":memory:" databases shared across calls.
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping entity index: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create entity schema: %w", err)
	}
	return &Index{db: db}, nil
}

// Close releases the database handle.
func (ix *Index) Close() error {
	return ix.db.Close()
}

// Put inserts or replaces an entity.
func (ix *Index) Put(ctx context.Context, e Entity) error {
	_, err := ix.db.ExecContext(ctx,
		`INSERT INTO entities (entity_code, park_code, name) VALUES (?, ?, ?)
		 ON CONFLICT(entity_code) DO UPDATE SET park_code = excluded.park_code, name = excluded.name`,
		strings.ToUpper(e.Code), strings.ToUpper(e.ParkCode), e.Name)
	if err != nil {
		return fmt.Errorf("put entity %s: %w", e.Code, err)
	}
	return nil
}

// Get looks up one entity by code.
func (ix *Index) Get(ctx context.Context, code string) (Entity, error) {
	var e Entity
	err := ix.db.QueryRowContext(ctx,
		`SELECT entity_code, park_code, name FROM entities WHERE entity_code = ?`,
		strings.ToUpper(code)).Scan(&e.Code, &e.ParkCode, &e.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return Entity{}, fmt.Errorf("%s: %w", code, ErrNotFound)
	}
	if err != nil {
		return Entity{}, fmt.Errorf("get entity %s: %w", code, err)
	}
	return e, nil
}

// Scan calls fn for every entity of a park (all parks when parkCode is empty)
// in entity_code order. Returning an error from fn stops the scan.
func (ix *Index) Scan(ctx context.Context, parkCode string, fn func(Entity) error) error {
	query := `SELECT entity_code, park_code, name FROM entities`
	var args []any
	if parkCode != "" {
		query += ` WHERE park_code = ?`
		args = append(args, strings.ToUpper(parkCode))
	}
	query += ` ORDER BY entity_code`

	rows, err := ix.db.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("scan entities: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var e Entity
		if err := rows.Scan(&e.Code, &e.ParkCode, &e.Name); err != nil {
			return fmt.Errorf("scan entity row: %w", err)
		}
		if err := fn(e); err != nil {
			return err
		}
	}
	return rows.Err()
}
