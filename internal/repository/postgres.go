package repository

import (
	"database/sql"

	_ "github.com/lib/pq"
)

// NewPostgresDB creates and initializes a PostgreSQL database connection
func NewPostgresDB(connStr string) (*sql.DB, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}

	// Test connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}

	if err := createPostgresTables(db); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

func createPostgresTables(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS kv_store (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at TIMESTAMP NOT NULL DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS submissions (
		id TEXT PRIMARY KEY,
		job_id TEXT,
		brand_name TEXT NOT NULL,
		product_class TEXT NOT NULL,
		state TEXT NOT NULL,
		message TEXT,
		success BOOLEAN NOT NULL DEFAULT FALSE,
		elapsed_seconds DOUBLE PRECISION NOT NULL DEFAULT 0,
		created_at TIMESTAMP NOT NULL,
		completed_at TIMESTAMP NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_submissions_completed_at ON submissions(completed_at);
	CREATE INDEX IF NOT EXISTS idx_submissions_job_id ON submissions(job_id);
	`

	_, err := db.Exec(schema)
	return err
}

// Open picks PostgreSQL when a connection URL is configured, SQLite otherwise
func Open(databaseURL, databasePath string) (*sql.DB, error) {
	if databaseURL != "" {
		return NewPostgresDB(databaseURL)
	}
	return NewSQLiteDB(databasePath)
}
