package models

import "time"

// LoginResponse is returned by the verification service login endpoint.
// Deployments differ in which token field they populate.
type LoginResponse struct {
	Token       string `json:"token"`
	AccessToken string `json:"access_token"`
	Message     string `json:"message"`
	Error       string `json:"error"`
}

// BearerToken returns whichever token field was populated
func (r LoginResponse) BearerToken() string {
	if r.Token != "" {
		return r.Token
	}
	return r.AccessToken
}

// VerifyTokenRequest is the body of the token verification call
type VerifyTokenRequest struct {
	Token string `json:"token"`
}

// VerifyTokenResponse is returned by token verification
type VerifyTokenResponse struct {
	Valid   bool   `json:"valid"`
	User    string `json:"user,omitempty"`
	Message string `json:"message,omitempty"`
}

// SubmitResponse acknowledges a product submission
type SubmitResponse struct {
	JobID   string `json:"job_id"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// StatusResponse is one processing status poll
type StatusResponse struct {
	Status         string              `json:"status"`
	ElapsedSeconds *float64            `json:"elapsed_seconds,omitempty"`
	Result         *VerificationResult `json:"result,omitempty"`
	Error          string              `json:"error,omitempty"`
}

// Status values reported by the verification service
const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// ServiceErrorBody is the error envelope the verification service uses.
// Its JWT layer reports failures under "msg".
type ServiceErrorBody struct {
	Message string `json:"message"`
	Error   string `json:"error"`
	Msg     string `json:"msg"`
}

// Text returns the most specific message in the body
func (b ServiceErrorBody) Text() string {
	switch {
	case b.Message != "":
		return b.Message
	case b.Error != "":
		return b.Error
	}
	return b.Msg
}

// HealthResponse is returned by health check
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// ErrorResponse is returned on errors
type ErrorResponse struct {
	Error string `json:"error"`
}

// FieldUpdateRequest is a live edit of one form field
type FieldUpdateRequest struct {
	Field Field  `json:"field"`
	Value string `json:"value"`
}

// FieldUpdateResponse reports how the form took a live edit
type FieldUpdateResponse struct {
	Accepted bool   `json:"accepted"`
	Value    string `json:"value"`
	Hint     string `json:"hint,omitempty"`
}
