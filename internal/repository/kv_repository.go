package repository

import (
	"context"
	"database/sql"
	"time"
)

// KeyValueRepository implements KeyValueRepo for PostgreSQL/SQLite
type KeyValueRepository struct {
	db DBTX
}

// NewKeyValueRepository creates a new KeyValueRepository
func NewKeyValueRepository(db DBTX) *KeyValueRepository {
	return &KeyValueRepository{db: db}
}

func (r *KeyValueRepository) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := r.db.QueryRowContext(ctx, `SELECT value FROM kv_store WHERE key = $1`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

func (r *KeyValueRepository) Set(ctx context.Context, key, value string) error {
	query := `INSERT INTO kv_store (key, value, updated_at) VALUES ($1, $2, $3)
			  ON CONFLICT (key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`
	_, err := r.db.ExecContext(ctx, query, key, value, time.Now().UTC())
	return err
}

func (r *KeyValueRepository) Delete(ctx context.Context, key string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM kv_store WHERE key = $1`, key)
	return err
}
