package repository

import (
	"context"
	"database/sql"

	"github.com/labelscan/portal/internal/models"
)

// HistoryRepository implements HistoryRepo for PostgreSQL/SQLite
type HistoryRepository struct {
	db DBTX
}

// NewHistoryRepository creates a new HistoryRepository
func NewHistoryRepository(db DBTX) *HistoryRepository {
	return &HistoryRepository{db: db}
}

const historyColumns = `id, job_id, brand_name, product_class, state, message, success, elapsed_seconds, created_at, completed_at`

func (r *HistoryRepository) Add(ctx context.Context, e *models.HistoryEntry) error {
	query := `INSERT INTO submissions (` + historyColumns + `)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	var jobID interface{}
	if e.JobID != "" {
		jobID = e.JobID
	}

	_, err := r.db.ExecContext(ctx, query,
		e.ID, jobID, e.BrandName, e.ProductClass, string(e.State), e.Message,
		e.Success, e.ElapsedSeconds, e.CreatedAt, e.CompletedAt,
	)
	return err
}

func (r *HistoryRepository) GetRecent(ctx context.Context, limit int) ([]*models.HistoryEntry, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `SELECT ` + historyColumns + ` FROM submissions ORDER BY completed_at DESC, id DESC LIMIT $1`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*models.HistoryEntry
	for rows.Next() {
		e, err := scanHistory(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (r *HistoryRepository) GetByJobID(ctx context.Context, jobID string) (*models.HistoryEntry, error) {
	query := `SELECT ` + historyColumns + ` FROM submissions WHERE job_id = $1 ORDER BY completed_at DESC LIMIT 1`

	e, err := scanHistory(r.db.QueryRowContext(ctx, query, jobID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return e, err
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanHistory(s scanner) (*models.HistoryEntry, error) {
	var e models.HistoryEntry
	var jobID, message sql.NullString
	var state string
	if err := s.Scan(&e.ID, &jobID, &e.BrandName, &e.ProductClass, &state, &message,
		&e.Success, &e.ElapsedSeconds, &e.CreatedAt, &e.CompletedAt); err != nil {
		return nil, err
	}
	e.State = models.SubmissionState(state)
	if jobID.Valid {
		e.JobID = jobID.String
	}
	if message.Valid {
		e.Message = message.String
	}
	return &e, nil
}
