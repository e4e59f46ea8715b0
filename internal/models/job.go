package models

import (
	"encoding/base64"
	"fmt"
	"strings"
	"time"
)

// SubmissionState is a state of the submission/polling flow
type SubmissionState string

const (
	StateIdle       SubmissionState = "idle"
	StateConfirming SubmissionState = "confirming"
	StateSubmitting SubmissionState = "submitting"
	StatePolling    SubmissionState = "polling"
	StateCompleted  SubmissionState = "completed"
	StateFailed     SubmissionState = "failed"
	StateTimedOut   SubmissionState = "timed-out"
)

// IsTerminal reports whether no further transitions happen without user action
func (s SubmissionState) IsTerminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateTimedOut
}

// IsActive reports whether a request or poll is in flight
func (s SubmissionState) IsActive() bool {
	return s == StateSubmitting || s == StatePolling
}

// JobStatus is the lifecycle status of a server-side job
type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
	JobTimedOut  JobStatus = "timed-out"
)

// SubmissionJob tracks the job acknowledged by the verification service
type SubmissionJob struct {
	JobID          string    `json:"jobId"`
	ElapsedSeconds float64   `json:"elapsedSeconds"`
	Status         JobStatus `json:"status"`
}

// VerificationResult is the terminal result of a completed job
type VerificationResult struct {
	Success     bool            `json:"success"`
	Validations map[string]bool `json:"validations"`
	User        string          `json:"user,omitempty"`
	Images      []string        `json:"images,omitempty"`
	Error       string          `json:"error,omitempty"`
}

// Passed reports the verification outcome for a validation key
func (r *VerificationResult) Passed(key string) bool {
	if r == nil || r.Validations == nil {
		return false
	}
	return r.Validations[key]
}

// DecodeDataURL splits a base64 data URL into content type and bytes
func DecodeDataURL(s string) (string, []byte, error) {
	if !strings.HasPrefix(s, "data:") {
		return "", nil, fmt.Errorf("not a data URL")
	}
	meta, data, ok := strings.Cut(strings.TrimPrefix(s, "data:"), ",")
	if !ok {
		return "", nil, fmt.Errorf("malformed data URL")
	}
	contentType, isBase64 := strings.CutSuffix(meta, ";base64")
	if !isBase64 {
		return "", nil, fmt.Errorf("data URL is not base64 encoded")
	}
	if contentType == "" {
		contentType = "text/plain"
	}
	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return "", nil, fmt.Errorf("decode data URL: %w", err)
	}
	return contentType, raw, nil
}

// SubmissionSnapshot is a point-in-time view of the submission flow
type SubmissionSnapshot struct {
	State          SubmissionState     `json:"state"`
	JobID          string              `json:"jobId,omitempty"`
	ElapsedSeconds float64             `json:"elapsedSeconds"`
	Payload        *ProductPayload     `json:"payload,omitempty"`
	ImageCount     int                 `json:"imageCount"`
	Result         *VerificationResult `json:"result,omitempty"`
	Message        string              `json:"message,omitempty"`
	UpdatedAt      time.Time           `json:"updatedAt"`
}

// Job returns the tracked job, if one was acknowledged
func (s SubmissionSnapshot) Job() *SubmissionJob {
	if s.JobID == "" {
		return nil
	}
	status := JobPending
	switch s.State {
	case StateCompleted:
		status = JobCompleted
	case StateFailed:
		status = JobFailed
	case StateTimedOut:
		status = JobTimedOut
	}
	return &SubmissionJob{JobID: s.JobID, ElapsedSeconds: s.ElapsedSeconds, Status: status}
}
