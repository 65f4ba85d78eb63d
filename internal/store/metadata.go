package store

import (
	"context"
	"database/sql"
	"errors"
)

const catalogVersionKey = "catalog_version"

// SetMetadata upserts a key-value pair in the store_metadata table.
func (s *Store) SetMetadata(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO store_metadata (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value,
	)
	return err
}

// GetMetadata returns the value for a metadata key.
// Returns empty string and nil error if the key is missing.
func (s *Store) GetMetadata(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM store_metadata WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return value, err
}

// RecordCatalogVersion remembers the catalog version being served and
// returns the one recorded before ("" on a fresh database).
func (s *Store) RecordCatalogVersion(ctx context.Context, version string) (string, error) {
	prev, err := s.GetMetadata(ctx, catalogVersionKey)
	if err != nil {
		return "", err
	}
	if prev == version {
		return prev, nil
	}
	return prev, s.SetMetadata(ctx, catalogVersionKey, version)
}
