package repository

import (
	"context"
	"database/sql"

	"github.com/labelscan/portal/internal/models"
)

// DBTX is satisfied by *sql.DB and the traced wrapper in observability
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// KeyValueRepo is durable client-side key/value storage
type KeyValueRepo interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// HistoryRepo persists finished submissions
type HistoryRepo interface {
	Add(ctx context.Context, entry *models.HistoryEntry) error
	GetRecent(ctx context.Context, limit int) ([]*models.HistoryEntry, error)
	GetByJobID(ctx context.Context, jobID string) (*models.HistoryEntry, error)
}
