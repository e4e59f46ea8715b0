package models

import (
	"time"

	"github.com/oklog/ulid/v2"
)

// HistoryEntry records one submission attempt and how it ended
type HistoryEntry struct {
	ID             string          `json:"id"`
	JobID          string          `json:"jobId,omitempty"`
	BrandName      string          `json:"brandName"`
	ProductClass   string          `json:"productClass"`
	State          SubmissionState `json:"state"`
	Message        string          `json:"message,omitempty"`
	Success        bool            `json:"success"`
	ElapsedSeconds float64         `json:"elapsedSeconds"`
	CreatedAt      time.Time       `json:"createdAt"`
	CompletedAt    time.Time       `json:"completedAt"`
}

// NewHistoryEntry builds an entry from a terminal snapshot
func NewHistoryEntry(snap SubmissionSnapshot, startedAt time.Time) *HistoryEntry {
	entry := &HistoryEntry{
		ID:             ulid.Make().String(),
		JobID:          snap.JobID,
		State:          snap.State,
		Message:        snap.Message,
		ElapsedSeconds: snap.ElapsedSeconds,
		CreatedAt:      startedAt.UTC(),
		CompletedAt:    time.Now().UTC(),
	}
	if snap.Payload != nil {
		entry.BrandName = snap.Payload.BrandName
		entry.ProductClass = snap.Payload.ProductClass
	}
	if snap.Result != nil {
		entry.Success = snap.Result.Success
	}
	return entry
}
