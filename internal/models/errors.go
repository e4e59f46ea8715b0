package models

import "fmt"

// FormError reports a rejected product form submission
type FormError struct {
	Message string
}

func (e FormError) Error() string {
	return e.Message
}

// SubmissionError reports a transition the submission flow refused
type SubmissionError struct {
	Message string
}

func (e SubmissionError) Error() string {
	return e.Message
}

var (
	ErrInvalidForm = FormError{"Error: Please correct the fields marked in red."}

	ErrSubmissionActive = SubmissionError{"a submission is already in progress"}
	ErrNotConfirming    = SubmissionError{"submission is not awaiting confirmation"}
	ErrDismissBlocked   = SubmissionError{"submission cannot be dismissed while it is being processed"}
	ErrFlowClosed       = SubmissionError{"submission flow is closed"}
	ErrNoSubmission     = SubmissionError{"no submission is in progress"}
)

// APIError is a non-OK response from the verification service
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("verification service returned %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("verification service returned %d", e.StatusCode)
}

// NetworkError is a transport failure talking to the verification service
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}
