package repository

import (
	"database/sql"

	_ "github.com/mattn/go-sqlite3"
)

// NewSQLiteDB creates and initializes a SQLite database
func NewSQLiteDB(dbPath string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}

	// A single connection keeps ":memory:" databases shared across calls
	db.SetMaxOpenConns(1)

	if err := createTables(db); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

func createTables(db *sql.DB) error {
	schema := `
	-- Client-side key/value storage (persisted bearer token and similar)
	CREATE TABLE IF NOT EXISTS kv_store (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	-- Submission history
	CREATE TABLE IF NOT EXISTS submissions (
		id TEXT PRIMARY KEY,
		job_id TEXT,
		brand_name TEXT NOT NULL,
		product_class TEXT NOT NULL,
		state TEXT NOT NULL,
		message TEXT,
		success INTEGER NOT NULL DEFAULT 0,
		elapsed_seconds REAL NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL,
		completed_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_submissions_completed_at ON submissions(completed_at);
	CREATE INDEX IF NOT EXISTS idx_submissions_job_id ON submissions(job_id);
	`

	_, err := db.Exec(schema)
	return err
}
