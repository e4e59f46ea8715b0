package handlers

import (
	"errors"
	"net/http"

	"github.com/labelscan/portal/internal/models"
	"github.com/labelscan/portal/internal/services"
)

// SubmissionHandler drives the submission modal and the results viewer
type SubmissionHandler struct{}

// NewSubmissionHandler creates a new SubmissionHandler
func NewSubmissionHandler() *SubmissionHandler {
	return &SubmissionHandler{}
}

type resultsPageResponse struct {
	Position int     `json:"position"`
	Total    int     `json:"total"`
	Image    string  `json:"image,omitempty"`
	Checks   []check `json:"checks"`
}

type check struct {
	Key    string `json:"key"`
	Label  string `json:"label"`
	Passed bool   `json:"passed"`
	Status string `json:"status"`
}

func newResultsPageResponse(p *services.ResultsPage) resultsPageResponse {
	resp := resultsPageResponse{Position: p.Pos, Total: p.Total}
	if p.Image != nil {
		resp.Image = p.Image.DataURL()
	}
	for _, c := range p.Checks {
		resp.Checks = append(resp.Checks, check{Key: c.Key, Label: c.Label, Passed: c.Passed, Status: c.Status()})
	}
	return resp
}

// Confirm sends the reviewed submission
// @Summary Confirm the submission
// @Tags submission
// @Produce json
// @Success 202 {object} models.SubmissionSnapshot
// @Failure 401 {object} models.ErrorResponse
// @Failure 409 {object} models.ErrorResponse
// @Router /submission/confirm [post]
func (h *SubmissionHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	ws, ok := workspaceOf(w, r)
	if !ok {
		return
	}

	err := ws.Confirm()
	switch {
	case err == nil:
		finish(w, r, http.StatusAccepted, ws.Flow().Snapshot())
	case errors.Is(err, models.ErrNotAuthenticated):
		fail(w, r, http.StatusUnauthorized, "Authentication required.")
	case errors.Is(err, models.ErrNotConfirming), errors.Is(err, models.ErrFlowClosed):
		fail(w, r, http.StatusConflict, err.Error())
	default:
		fail(w, r, http.StatusInternalServerError, err.Error())
	}
}

// Dismiss closes the modal. A completed submission also resets the form.
// @Summary Dismiss the submission
// @Tags submission
// @Produce json
// @Success 200 {object} models.SubmissionSnapshot
// @Failure 409 {object} models.ErrorResponse
// @Router /submission/dismiss [post]
func (h *SubmissionHandler) Dismiss(w http.ResponseWriter, r *http.Request) {
	ws, ok := workspaceOf(w, r)
	if !ok {
		return
	}

	if err := ws.Acknowledge(); err != nil {
		if errors.Is(err, models.ErrDismissBlocked) {
			fail(w, r, http.StatusConflict, err.Error())
			return
		}
		fail(w, r, http.StatusInternalServerError, err.Error())
		return
	}
	finish(w, r, http.StatusOK, ws.Flow().Snapshot())
}

// Status returns the current submission snapshot
// @Summary Submission status
// @Tags submission
// @Produce json
// @Success 200 {object} models.SubmissionSnapshot
// @Router /submission/status [get]
func (h *SubmissionHandler) Status(w http.ResponseWriter, r *http.Request) {
	ws, ok := workspaceOf(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, ws.Flow().Snapshot())
}

// NextImage pages the results viewer forward
// @Summary Next result image
// @Tags results
// @Produce json
// @Success 200 {object} resultsPageResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /results/next [post]
func (h *SubmissionHandler) NextImage(w http.ResponseWriter, r *http.Request) {
	ws, ok := workspaceOf(w, r)
	if !ok {
		return
	}
	h.page(w, r, ws.NextImage())
}

// PrevImage pages the results viewer back
// @Summary Previous result image
// @Tags results
// @Produce json
// @Success 200 {object} resultsPageResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /results/prev [post]
func (h *SubmissionHandler) PrevImage(w http.ResponseWriter, r *http.Request) {
	ws, ok := workspaceOf(w, r)
	if !ok {
		return
	}
	h.page(w, r, ws.PrevImage())
}

func (h *SubmissionHandler) page(w http.ResponseWriter, r *http.Request, p *services.ResultsPage) {
	if p == nil {
		fail(w, r, http.StatusNotFound, "No results to show.")
		return
	}
	finish(w, r, http.StatusOK, newResultsPageResponse(p))
}
