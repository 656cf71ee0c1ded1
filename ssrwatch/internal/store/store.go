// Package store provides the SQLite persistence layer for ssrwatch reports.
//
// Reports are an append-only audit trail of what the classifier saw — the
// classifier never reads them back, so a dropped database changes nothing
// about live classification.
package store

import (
	"database/sql"

	"github.com/leochiu-a/chrome-ssr-inspector/dbopen"
)

// Store is the ssrwatch database handle.
type Store struct {
	DB *sql.DB
}

// Open opens (or creates) the ssrwatch SQLite database at path and applies
// pragmas and schema.
func Open(path string, opts ...dbopen.Option) (*Store, error) {
	allOpts := append([]dbopen.Option{
		dbopen.WithMkdirAll(),
		dbopen.WithSchema(Schema),
	}, opts...)

	db, err := dbopen.Open(path, allOpts...)
	if err != nil {
		return nil, err
	}
	return &Store{DB: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.DB.Close()
}
