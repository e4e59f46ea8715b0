package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/labelscan/portal/internal/config"
	"github.com/labelscan/portal/internal/models"
	"github.com/labelscan/portal/internal/observability"
	"github.com/labelscan/portal/internal/repository"
)

// User-facing submission messages
const (
	MsgSubmitNetwork = "Network error: could not reach the verification service."
	MsgNoJobID       = "Submission failed: no job identifier was returned."
	MsgProcessing    = "Processing failed."
	MsgTimedOut      = "The server did not respond in time."
	MsgPollNetwork   = "Network error while checking processing status."
)

// JobBackend is the part of the verification service the flow drives
type JobBackend interface {
	SubmitProduct(ctx context.Context, token string, payload models.ProductPayload, images []models.UploadedImage) (*SubmitOutcome, error)
	ProcessingStatus(ctx context.Context, token, jobID string) (*models.StatusResponse, error)
}

// FlowOptions are the optional collaborators of a SubmissionFlow
type FlowOptions struct {
	History repository.HistoryRepo
	Metrics *observability.FlowMetrics
}

// SubmissionFlow is the state machine for one product submission at a time:
// Idle, Confirming, Submitting, Polling, then Completed, Failed or TimedOut.
// While Submitting or Polling it owns one goroutine that is cancelled by
// Close. Transitions that would start a second submission are rejected.
type SubmissionFlow struct {
	backend  JobBackend
	polling  config.Polling
	history  repository.HistoryRepo
	metrics  *observability.FlowMetrics
	now      func() time.Time
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	closedCh chan struct{}

	mu        sync.Mutex
	state     models.SubmissionState
	gen       int
	payload   *models.ProductPayload
	images    []models.UploadedImage
	jobID     string
	elapsed   float64
	result    *models.VerificationResult
	message   string
	startedAt time.Time
	updatedAt time.Time
	terminal  chan struct{}
	closed    bool

	// emitMu keeps subscriber deliveries in transition order
	emitMu  sync.Mutex
	subs    map[int]func(models.SubmissionSnapshot)
	nextSub int
}

// NewSubmissionFlow creates an idle flow
func NewSubmissionFlow(backend JobBackend, polling config.Polling, opts FlowOptions) *SubmissionFlow {
	ctx, cancel := context.WithCancel(context.Background())
	return &SubmissionFlow{
		backend:   backend,
		polling:   polling,
		history:   opts.History,
		metrics:   opts.Metrics,
		now:       time.Now,
		ctx:       ctx,
		cancel:    cancel,
		closedCh:  make(chan struct{}),
		state:     models.StateIdle,
		updatedAt: time.Now(),
		subs:      make(map[int]func(models.SubmissionSnapshot)),
	}
}

// Open shows payload for review. It is allowed from Idle or a terminal state.
func (f *SubmissionFlow) Open(payload models.ProductPayload, images []models.UploadedImage) error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return models.ErrFlowClosed
	}
	if f.state != models.StateIdle && !f.state.IsTerminal() {
		f.mu.Unlock()
		return models.ErrSubmissionActive
	}
	f.gen++
	f.reset()
	f.state = models.StateConfirming
	f.payload = &payload
	f.images = append([]models.UploadedImage(nil), images...)
	f.updatedAt = f.now()
	f.mu.Unlock()

	f.emit()
	return nil
}

// Confirm sends the reviewed payload with token and starts polling in the
// background. The request context of the caller is not used; the work is
// bound to the flow and ends on a terminal state or Close.
func (f *SubmissionFlow) Confirm(token string) error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return models.ErrFlowClosed
	}
	if f.state != models.StateConfirming {
		f.mu.Unlock()
		return models.ErrNotConfirming
	}
	f.gen++
	gen := f.gen
	f.state = models.StateSubmitting
	f.startedAt = f.now()
	f.updatedAt = f.startedAt
	f.terminal = make(chan struct{})
	payload := *f.payload
	images := f.images
	f.wg.Add(1)
	f.mu.Unlock()

	f.emit()
	go f.run(gen, token, payload, images)
	return nil
}

// Dismiss closes the review or a finished submission and returns to Idle.
// It returns the state that was dismissed. Dismissal is refused while a
// request or poll is in flight since the job cannot be cancelled remotely.
func (f *SubmissionFlow) Dismiss() (models.SubmissionState, error) {
	f.mu.Lock()
	prev := f.state
	if prev.IsActive() {
		f.mu.Unlock()
		return prev, models.ErrDismissBlocked
	}
	if prev == models.StateIdle {
		f.mu.Unlock()
		return prev, nil
	}
	f.gen++
	f.reset()
	f.state = models.StateIdle
	f.updatedAt = f.now()
	f.mu.Unlock()

	f.emit()
	return prev, nil
}

// reset clears per-submission data. Callers hold f.mu.
func (f *SubmissionFlow) reset() {
	f.payload = nil
	f.images = nil
	f.jobID = ""
	f.elapsed = 0
	f.result = nil
	f.message = ""
}

// Snapshot returns the current state
func (f *SubmissionFlow) Snapshot() models.SubmissionSnapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snapshotLocked()
}

func (f *SubmissionFlow) snapshotLocked() models.SubmissionSnapshot {
	snap := models.SubmissionSnapshot{
		State:          f.state,
		JobID:          f.jobID,
		ElapsedSeconds: f.elapsed,
		ImageCount:     len(f.images),
		Result:         f.result,
		Message:        f.message,
		UpdatedAt:      f.updatedAt,
	}
	if f.payload != nil {
		p := *f.payload
		snap.Payload = &p
	}
	return snap
}

// Images returns the images of the current submission
func (f *SubmissionFlow) Images() []models.UploadedImage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.UploadedImage(nil), f.images...)
}

// Subscribe registers fn to receive a snapshot after every transition and
// elapsed-time update. fn must not call Open, Confirm or Dismiss.
func (f *SubmissionFlow) Subscribe(fn func(models.SubmissionSnapshot)) (unsubscribe func()) {
	f.emitMu.Lock()
	id := f.nextSub
	f.nextSub++
	f.subs[id] = fn
	f.emitMu.Unlock()

	return func() {
		f.emitMu.Lock()
		delete(f.subs, id)
		f.emitMu.Unlock()
	}
}

func (f *SubmissionFlow) emit() {
	f.emitMu.Lock()
	defer f.emitMu.Unlock()
	snap := f.Snapshot()
	for _, fn := range f.subs {
		fn(snap)
	}
}

// Wait blocks until the running submission reaches a terminal state
func (f *SubmissionFlow) Wait(ctx context.Context) (models.SubmissionSnapshot, error) {
	f.mu.Lock()
	snap := f.snapshotLocked()
	if snap.State.IsTerminal() {
		f.mu.Unlock()
		return snap, nil
	}
	if !snap.State.IsActive() {
		f.mu.Unlock()
		return snap, models.ErrNoSubmission
	}
	terminal := f.terminal
	f.mu.Unlock()

	select {
	case <-terminal:
		return f.Snapshot(), nil
	case <-f.closedCh:
		return f.Snapshot(), models.ErrFlowClosed
	case <-ctx.Done():
		return f.Snapshot(), ctx.Err()
	}
}

// Close cancels any in-flight request or poll and waits for it to stop. The
// server-side job, if any, is left running.
func (f *SubmissionFlow) Close() {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.closed = true
	close(f.closedCh)
	f.mu.Unlock()

	f.cancel()
	f.wg.Wait()
}

func (f *SubmissionFlow) run(gen int, token string, payload models.ProductPayload, images []models.UploadedImage) {
	defer f.wg.Done()

	ctx, span := observability.StartServiceSpan(f.ctx, "submission", "Run")
	defer span.End()
	log := observability.WithContext(ctx)

	f.metrics.RecordSubmission(ctx, len(images))
	log.Infof("Submitting %q (%d image(s))", payload.BrandName, len(images))

	outcome, err := f.backend.SubmitProduct(ctx, token, payload, images)
	if ctx.Err() != nil {
		return
	}
	if err != nil {
		observability.RecordError(span, err)
		f.finish(ctx, gen, models.StateFailed, submitFailure(err), nil)
		return
	}
	if outcome.JobID == "" {
		if outcome.Result != nil {
			f.finish(ctx, gen, models.StateCompleted, "", outcome.Result)
		} else {
			f.finish(ctx, gen, models.StateFailed, MsgNoJobID, nil)
		}
		return
	}

	if !f.transition(gen, func() {
		f.state = models.StatePolling
		f.jobID = outcome.JobID
		f.elapsed = 0
	}) {
		return
	}
	span.SetAttributes(observability.JobID(outcome.JobID))
	log.WithField("job_id", outcome.JobID).Info("Polling processing status")

	f.poll(ctx, gen, token, outcome.JobID)
}

// poll issues one status request per tick. Requests never overlap because
// the next tick is only read after the previous request returns.
func (f *SubmissionFlow) poll(ctx context.Context, gen int, token, jobID string) {
	ticker := time.NewTicker(f.polling.Interval())
	defer ticker.Stop()

	started := f.now()
	timeout := f.polling.Timeout().Seconds()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		status, err := f.backend.ProcessingStatus(ctx, token, jobID)
		f.metrics.RecordPoll(ctx, err)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			f.finish(ctx, gen, models.StateFailed, pollFailure(err), nil)
			return
		}

		local := f.now().Sub(started).Seconds()
		elapsed := local
		if status.ElapsedSeconds != nil {
			elapsed = *status.ElapsedSeconds
		}
		f.setElapsed(gen, elapsed)

		switch strings.ToLower(strings.TrimSpace(status.Status)) {
		case models.StatusCompleted:
			result := status.Result
			if result == nil {
				result = &models.VerificationResult{}
			}
			f.finish(ctx, gen, models.StateCompleted, "", result)
			return
		case models.StatusFailed:
			f.finish(ctx, gen, models.StateFailed, processingFailure(status), nil)
			return
		}

		// Local time bounds polling too, in case the server under-reports
		if elapsed > timeout || local > timeout {
			f.finish(ctx, gen, models.StateTimedOut, MsgTimedOut, nil)
			return
		}
		f.emit()
	}
}

// transition applies fn when gen is still current and emits the new state
func (f *SubmissionFlow) transition(gen int, fn func()) bool {
	f.mu.Lock()
	if f.gen != gen || f.closed {
		f.mu.Unlock()
		return false
	}
	fn()
	f.updatedAt = f.now()
	f.mu.Unlock()

	f.emit()
	return true
}

func (f *SubmissionFlow) setElapsed(gen int, elapsed float64) {
	f.mu.Lock()
	if f.gen == gen {
		f.elapsed = elapsed
		f.updatedAt = f.now()
	}
	f.mu.Unlock()
}

func (f *SubmissionFlow) finish(ctx context.Context, gen int, state models.SubmissionState, message string, result *models.VerificationResult) {
	f.mu.Lock()
	if f.gen != gen || f.closed || f.state.IsTerminal() {
		f.mu.Unlock()
		return
	}
	f.state = state
	f.message = message
	f.result = result
	f.updatedAt = f.now()
	snap := f.snapshotLocked()
	startedAt := f.startedAt
	close(f.terminal)
	f.mu.Unlock()

	f.emit()

	f.metrics.RecordOutcome(ctx, string(state), snap.ElapsedSeconds)
	log := observability.WithContext(ctx).WithField("state", state)
	if snap.JobID != "" {
		log = log.WithField("job_id", snap.JobID)
	}
	if state == models.StateCompleted {
		log.Info("Submission finished")
	} else {
		log.Warnf("Submission finished: %s", message)
	}

	if f.history != nil {
		hctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := f.history.Add(hctx, models.NewHistoryEntry(snap, startedAt)); err != nil {
			log.Errorf("Failed to record submission history: %v", err)
		}
	}
}

func submitFailure(err error) string {
	var apiErr *models.APIError
	if errors.As(err, &apiErr) {
		if apiErr.Message != "" {
			return apiErr.Message
		}
		return fmt.Sprintf("Submission failed (%d).", apiErr.StatusCode)
	}
	var netErr *models.NetworkError
	if errors.As(err, &netErr) {
		return MsgSubmitNetwork
	}
	return fmt.Sprintf("Submission failed: %v", err)
}

func pollFailure(err error) string {
	var netErr *models.NetworkError
	if errors.As(err, &netErr) {
		return MsgPollNetwork
	}
	var apiErr *models.APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return MsgProcessing
}

func processingFailure(status *models.StatusResponse) string {
	if msg := strings.TrimSpace(status.Error); msg != "" {
		return msg
	}
	if status.Result != nil && strings.TrimSpace(status.Result.Error) != "" {
		return status.Result.Error
	}
	return MsgProcessing
}
