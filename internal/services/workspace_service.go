package services

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/labelscan/portal/internal/config"
	"github.com/labelscan/portal/internal/models"
	"github.com/labelscan/portal/internal/observability"
	"github.com/labelscan/portal/internal/repository"
)

// WorkspaceDeps are shared by every workspace
type WorkspaceDeps struct {
	Config   config.Config
	Backend  JobBackend
	Auth     *AuthService
	Previews *PreviewService
	Hub      *WebSocketHub
	History  repository.HistoryRepo
	Metrics  *observability.FlowMetrics
}

// Workspace is the top-level view of one user: the session, the product
// form with its uploader, the submission flow and the last results. Its
// methods serialize access so one browser session mutates sequentially.
type Workspace struct {
	ID string

	mu       sync.Mutex
	deps     WorkspaceDeps
	session  models.Session
	form     *ProductForm
	uploader *ImageUploader
	flow     *SubmissionFlow
	results  *ResultsView
	loginMsg string
	lastSeen time.Time
}

// NewWorkspace creates an unauthenticated workspace
func NewWorkspace(id string, deps WorkspaceDeps) *Workspace {
	var previews *PreviewService
	if deps.Config.Features.ShowImagePreview {
		previews = deps.Previews
	}

	w := &Workspace{
		ID:       id,
		deps:     deps,
		form:     NewProductForm(deps.Config.Features.EnableWarningValidation),
		uploader: NewImageUploader(deps.Config.Upload, previews),
		flow: NewSubmissionFlow(deps.Backend, deps.Config.Polling, FlowOptions{
			History: deps.History,
			Metrics: deps.Metrics,
		}),
		lastSeen: time.Now(),
	}
	w.uploader.OnChange(func(images []models.UploadedImage) {
		w.form.ClearImageError(len(images))
	})
	if deps.Hub != nil {
		w.flow.Subscribe(func(snap models.SubmissionSnapshot) {
			deps.Hub.PublishSubmission(id, snap)
		})
	}
	return w
}

// Flow exposes the submission flow for subscriptions and waiting
func (w *Workspace) Flow() *SubmissionFlow {
	return w.flow
}

// Session returns a copy of the session
func (w *Workspace) Session() models.Session {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.session
}

// Login runs the credential modal against store
func (w *Workspace) Login(ctx context.Context, store TokenStore, username, password string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, err := w.deps.Auth.SubmitCredentials(ctx, store, &w.session, username, password)
	if err != nil {
		w.loginMsg = err.Error()
		return err
	}
	w.loginMsg = ""
	return nil
}

// Restore replays the token persisted in store when not yet authenticated
func (w *Workspace) Restore(ctx context.Context, store TokenStore) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.session.Authenticated {
		return nil
	}
	return w.deps.Auth.Init(ctx, store, &w.session)
}

// Logout clears the session and the persisted token
func (w *Workspace) Logout(ctx context.Context, store TokenStore) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.deps.Auth.Logout(ctx, store, &w.session)
}

// AddFiles offers files to the uploader
func (w *Workspace) AddFiles(files []UploadFile) AddResult {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.uploader.AddFiles(files)
}

// RemoveFile removes an uploaded image by index
func (w *Workspace) RemoveFile(index int) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.uploader.RemoveFile(index)
}

// SetField applies a live edit and returns whether it was taken, the value
// now held and the live hint for the field.
func (w *Workspace) SetField(field models.Field, value string) models.FieldUpdateResponse {
	w.mu.Lock()
	defer w.mu.Unlock()
	accepted := w.form.SetField(field, value)
	return models.FieldUpdateResponse{
		Accepted: accepted,
		Value:    fieldValue(w.form.State(), field),
		Hint:     w.form.Hint(field),
	}
}

func fieldValue(s models.FormState, field models.Field) string {
	switch field {
	case models.FieldBrandName:
		return s.BrandName
	case models.FieldProductClass:
		return s.ProductClass
	case models.FieldAlcoholContent:
		return s.AlcoholContent
	case models.FieldNetContents:
		return s.NetContents
	case models.FieldNetContentsUnit:
		return string(s.NetContentsUnit)
	}
	return ""
}

// SubmitForm validates the form and opens the submission review
func (w *Workspace) SubmitForm() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.flow.Snapshot().State.IsActive() {
		return models.ErrSubmissionActive
	}
	return w.submit(nil)
}

// SubmitValues applies a full form post and then submits. A posted value the
// form refuses marks its field invalid and blocks the submit, so the held
// value is never sent in its place.
func (w *Workspace) SubmitValues(values map[models.Field]string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.flow.Snapshot().State.IsActive() {
		return models.ErrSubmissionActive
	}
	var rejected []models.Field
	for field, value := range values {
		if !w.form.SetField(field, value) {
			rejected = append(rejected, field)
		}
	}
	return w.submit(rejected)
}

func (w *Workspace) submit(rejected []models.Field) error {
	payload, err := w.form.Submit(w.uploader.Count())
	if len(rejected) > 0 {
		w.form.MarkInvalid(rejected...)
		return models.ErrInvalidForm
	}
	if err != nil {
		return err
	}
	if err := w.flow.Open(*payload, w.uploader.Images()); err != nil {
		return err
	}
	w.results = nil
	return nil
}

// Confirm sends the reviewed submission with the session token
func (w *Workspace) Confirm() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.session.Authenticated {
		return models.ErrNotAuthenticated
	}
	return w.flow.Confirm(w.session.Token)
}

// Acknowledge dismisses the submission modal. A completed submission also
// resets the form and the uploaded images.
func (w *Workspace) Acknowledge() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	prev, err := w.flow.Dismiss()
	if err != nil {
		return err
	}
	if prev == models.StateCompleted {
		w.form.Reset()
		w.uploader.Reset()
	}
	w.results = nil
	return nil
}

// NextImage pages the results viewer forward. It returns nil when there are
// no results to page.
func (w *Workspace) NextImage() *ResultsPage {
	w.mu.Lock()
	defer w.mu.Unlock()
	r := w.resultsLocked()
	if r == nil {
		return nil
	}
	r.Next()
	return r.Page()
}

// PrevImage pages the results viewer back
func (w *Workspace) PrevImage() *ResultsPage {
	w.mu.Lock()
	defer w.mu.Unlock()
	r := w.resultsLocked()
	if r == nil {
		return nil
	}
	r.Prev()
	return r.Page()
}

// resultsLocked builds the results view once the flow has completed
func (w *Workspace) resultsLocked() *ResultsView {
	snap := w.flow.Snapshot()
	if snap.State != models.StateCompleted {
		return nil
	}
	if w.results == nil {
		w.results = NewResultsView(snap.Result, snap.Payload, w.fallbackImages(w.flow.Images()))
	}
	return w.results
}

func (w *Workspace) fallbackImages(images []models.UploadedImage) []ResultImage {
	out := make([]ResultImage, 0, len(images))
	for _, img := range images {
		if w.deps.Previews != nil {
			if p, ok := w.deps.Previews.Get(img.PreviewRef); ok {
				out = append(out, ResultImage{ContentType: p.ContentType, Data: p.Data})
				continue
			}
		}
		out = append(out, ResultImage{ContentType: img.ContentType, Data: img.Content})
	}
	return out
}

// WorkspaceView is everything a page needs to render the workspace
type WorkspaceView struct {
	ID            string
	Session       models.Session
	Form          models.FormState
	Errors        models.ValidationErrors
	Feedback      string
	AlcoholHint   string
	LoginMessage  string
	Images        []models.UploadedImage
	MaxImages     int
	UploadMessage string
	Submission    models.SubmissionSnapshot
	Results       *ResultsPage
	Config        config.Config
}

// View captures the current state for rendering
func (w *Workspace) View() WorkspaceView {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.lastSeen = time.Now()
	view := WorkspaceView{
		ID:            w.ID,
		Session:       w.session,
		Form:          w.form.State(),
		Errors:        w.form.Errors(),
		Feedback:      w.form.Feedback(),
		AlcoholHint:   w.form.Hint(models.FieldAlcoholContent),
		LoginMessage:  w.loginMsg,
		Images:        w.uploader.Images(),
		MaxImages:     w.uploader.Max(),
		UploadMessage: w.uploader.Message(),
		Submission:    w.flow.Snapshot(),
		Config:        w.deps.Config,
	}
	if r := w.resultsLocked(); r != nil {
		view.Results = r.Page()
	}
	return view
}

func (w *Workspace) touch(now time.Time) {
	w.mu.Lock()
	w.lastSeen = now
	w.mu.Unlock()
}

func (w *Workspace) idleSince() time.Time {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastSeen
}

// Close stops any polling and releases previews
func (w *Workspace) Close() {
	w.flow.Close()
	w.mu.Lock()
	w.uploader.Reset()
	w.mu.Unlock()
}

// WorkspaceRegistry maps opaque ids to live workspaces and expires idle ones
type WorkspaceRegistry struct {
	mu         sync.Mutex
	deps       WorkspaceDeps
	ttl        time.Duration
	now        func() time.Time
	workspaces map[string]*Workspace
}

// NewWorkspaceRegistry creates a registry. Workspaces idle for longer than
// ttl are closed by Sweep.
func NewWorkspaceRegistry(deps WorkspaceDeps, ttl time.Duration) *WorkspaceRegistry {
	return &WorkspaceRegistry{
		deps:       deps,
		ttl:        ttl,
		now:        time.Now,
		workspaces: make(map[string]*Workspace),
	}
}

// Get returns the workspace for id and marks it as seen
func (r *WorkspaceRegistry) Get(id string) (*Workspace, bool) {
	r.mu.Lock()
	w, ok := r.workspaces[id]
	r.mu.Unlock()
	if ok {
		w.touch(r.now())
	}
	return w, ok
}

// Create adds a workspace with a fresh id
func (r *WorkspaceRegistry) Create() *Workspace {
	w := NewWorkspace(uuid.New().String(), r.deps)
	w.touch(r.now())

	r.mu.Lock()
	r.workspaces[w.ID] = w
	r.mu.Unlock()
	return w
}

// GetOrCreate returns the workspace for id, creating one when id is unknown
func (r *WorkspaceRegistry) GetOrCreate(id string) (*Workspace, bool) {
	if id != "" {
		if w, ok := r.Get(id); ok {
			return w, false
		}
	}
	return r.Create(), true
}

// Remove closes and forgets a workspace
func (r *WorkspaceRegistry) Remove(id string) {
	r.mu.Lock()
	w, ok := r.workspaces[id]
	delete(r.workspaces, id)
	r.mu.Unlock()
	if ok {
		w.Close()
	}
}

// Len returns the number of live workspaces
func (r *WorkspaceRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.workspaces)
}

// Sweep closes workspaces idle for longer than the ttl. Workspaces with a
// submission in flight are kept until it finishes.
func (r *WorkspaceRegistry) Sweep() int {
	cutoff := r.now().Add(-r.ttl)

	var expired []*Workspace
	r.mu.Lock()
	for id, w := range r.workspaces {
		if w.idleSince().After(cutoff) || w.flow.Snapshot().State.IsActive() {
			continue
		}
		expired = append(expired, w)
		delete(r.workspaces, id)
	}
	r.mu.Unlock()

	for _, w := range expired {
		w.Close()
	}
	return len(expired)
}

// Run sweeps every interval until ctx is done
func (r *WorkspaceRegistry) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := r.Sweep(); n > 0 {
				observability.Debugf("Expired %d idle workspace(s)", n)
			}
		}
	}
}

// Close closes every workspace
func (r *WorkspaceRegistry) Close() {
	r.mu.Lock()
	all := r.workspaces
	r.workspaces = make(map[string]*Workspace)
	r.mu.Unlock()

	for _, w := range all {
		w.Close()
	}
}
