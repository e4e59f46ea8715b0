package services

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/labelscan/portal/internal/config"
	"github.com/labelscan/portal/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestWorkspaceDeps(t *testing.T, backend JobBackend) WorkspaceDeps {
	t.Helper()
	client, cfg := setupTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"access_token": "tok-1"})
	})
	cfg.Polling = testPolling
	cfg.Upload = config.Upload{MaxImages: 2, MaxFileSizeMB: 1}

	return WorkspaceDeps{
		Config:   cfg,
		Backend:  backend,
		Auth:     NewAuthService(client, nil),
		Previews: NewPreviewService(16),
	}
}

func fillWorkspace(t *testing.T, ws *Workspace) {
	t.Helper()
	for field, value := range map[models.Field]string{
		models.FieldBrandName:       "Awesome Brews",
		models.FieldProductClass:    "Beer",
		models.FieldAlcoholContent:  "5.5",
		models.FieldNetContents:     "12",
		models.FieldNetContentsUnit: "fl oz",
	} {
		require.True(t, ws.SetField(field, value).Accepted, field)
	}
	res := ws.AddFiles([]UploadFile{BytesFile("label.png", "image/png", testPNG(t, 8, 8))})
	require.Equal(t, 1, res.Accepted)
}

func TestWorkspace_SubmissionLifecycle(t *testing.T) {
	ctx := context.Background()

	t.Run("completed submission resets on acknowledge", func(t *testing.T) {
		backend := &fakeJobBackend{statuses: []statusReply{
			{status: completed(2, map[string]bool{"brand_name": true})},
		}}
		ws := NewWorkspace("ws-1", setupTestWorkspaceDeps(t, backend))
		defer ws.Close()

		require.NoError(t, ws.Login(ctx, &MemoryTokenStore{}, "inspector", "pw"))
		fillWorkspace(t, ws)

		require.NoError(t, ws.SubmitForm())
		assert.Equal(t, models.StateConfirming, ws.View().Submission.State)
		require.NoError(t, ws.Confirm())

		_, err := ws.Flow().Wait(ctx)
		require.NoError(t, err)

		view := ws.View()
		assert.Equal(t, models.StateCompleted, view.Submission.State)
		require.NotNil(t, view.Results)
		assert.True(t, view.Results.Checks[0].Passed)
		assert.Equal(t, 1, view.Results.Total)
		require.NotNil(t, view.Results.Image)

		page := ws.NextImage()
		require.NotNil(t, page)
		assert.Equal(t, 1, page.Pos)

		require.NoError(t, ws.Acknowledge())
		view = ws.View()
		assert.Equal(t, models.StateIdle, view.Submission.State)
		assert.Equal(t, models.DefaultFormState(), view.Form)
		assert.Empty(t, view.Images)
		assert.Nil(t, view.Results)
	})

	t.Run("failed submission keeps the form", func(t *testing.T) {
		backend := &fakeJobBackend{submit: func() (*SubmitOutcome, error) {
			return nil, &models.APIError{StatusCode: 503, Message: "Server is busy"}
		}}
		ws := NewWorkspace("ws-2", setupTestWorkspaceDeps(t, backend))
		defer ws.Close()

		require.NoError(t, ws.Login(ctx, &MemoryTokenStore{}, "inspector", "pw"))
		fillWorkspace(t, ws)
		require.NoError(t, ws.SubmitForm())
		require.NoError(t, ws.Confirm())
		snap, err := ws.Flow().Wait(ctx)
		require.NoError(t, err)
		assert.Equal(t, "Server is busy", snap.Message)

		require.NoError(t, ws.Acknowledge())
		view := ws.View()
		assert.Equal(t, "Awesome Brews", view.Form.BrandName)
		assert.Len(t, view.Images, 1)
	})

	t.Run("confirm requires a login", func(t *testing.T) {
		ws := NewWorkspace("ws-3", setupTestWorkspaceDeps(t, &fakeJobBackend{}))
		defer ws.Close()

		fillWorkspace(t, ws)
		require.NoError(t, ws.SubmitForm())
		assert.Equal(t, models.ErrNotAuthenticated, ws.Confirm())
		assert.Nil(t, ws.NextImage())
	})

	t.Run("invalid form does not open the review", func(t *testing.T) {
		ws := NewWorkspace("ws-4", setupTestWorkspaceDeps(t, &fakeJobBackend{}))
		defer ws.Close()

		assert.Equal(t, models.ErrInvalidForm, ws.SubmitForm())
		view := ws.View()
		assert.Equal(t, models.StateIdle, view.Submission.State)
		assert.True(t, view.Errors[models.FieldImages])
		assert.Equal(t, models.ErrInvalidForm.Message, view.Feedback)

		ws.AddFiles([]UploadFile{BytesFile("label.png", "image/png", testPNG(t, 4, 4))})
		assert.False(t, ws.View().Errors[models.FieldImages])
	})

	t.Run("posted values that the form refuses block the submit", func(t *testing.T) {
		ws := NewWorkspace("ws-5", setupTestWorkspaceDeps(t, &fakeJobBackend{}))
		defer ws.Close()
		fillWorkspace(t, ws)

		err := ws.SubmitValues(map[models.Field]string{
			models.FieldBrandName:   "Harbor",
			models.FieldNetContents: "12.345",
		})
		assert.Equal(t, models.ErrInvalidForm, err)

		view := ws.View()
		assert.Equal(t, models.StateIdle, view.Submission.State)
		assert.True(t, view.Errors[models.FieldNetContents])
		assert.False(t, view.Errors[models.FieldBrandName])
		assert.Equal(t, "Harbor", view.Form.BrandName)
		assert.Equal(t, "12", view.Form.NetContents)
		assert.Equal(t, models.ErrInvalidForm.Message, view.Feedback)

		require.NoError(t, ws.SubmitValues(map[models.Field]string{models.FieldNetContents: "12.34"}))
		assert.Equal(t, models.StateConfirming, ws.View().Submission.State)
		payload := ws.Flow().Snapshot().Payload
		require.NotNil(t, payload)
		assert.Equal(t, 12.34, payload.NetContents)
	})

	t.Run("live edits report hints", func(t *testing.T) {
		ws := NewWorkspace("ws-5", setupTestWorkspaceDeps(t, &fakeJobBackend{}))
		defer ws.Close()

		resp := ws.SetField(models.FieldAlcoholContent, "140")
		assert.True(t, resp.Accepted)
		assert.Equal(t, "140", resp.Value)
		assert.Equal(t, AlcoholHint, resp.Hint)

		resp = ws.SetField(models.FieldNetContents, "1.234")
		assert.False(t, resp.Accepted)
		assert.Empty(t, resp.Value)
	})
}

func TestWorkspaceRegistry(t *testing.T) {
	deps := setupTestWorkspaceDeps(t, &fakeJobBackend{})

	t.Run("get or create", func(t *testing.T) {
		reg := NewWorkspaceRegistry(deps, time.Minute)
		defer reg.Close()

		ws, created := reg.GetOrCreate("")
		assert.True(t, created)
		require.NotEmpty(t, ws.ID)

		again, created := reg.GetOrCreate(ws.ID)
		assert.False(t, created)
		assert.Same(t, ws, again)

		_, created = reg.GetOrCreate("unknown")
		assert.True(t, created)
		assert.Equal(t, 2, reg.Len())

		reg.Remove(ws.ID)
		_, ok := reg.Get(ws.ID)
		assert.False(t, ok)
	})

	t.Run("sweep expires idle workspaces", func(t *testing.T) {
		reg := NewWorkspaceRegistry(deps, time.Minute)
		defer reg.Close()

		now := time.Now()
		reg.now = func() time.Time { return now }
		idle := reg.Create()
		fresh := reg.Create()

		now = now.Add(2 * time.Minute)
		fresh.touch(now)

		assert.Equal(t, 1, reg.Sweep())
		_, ok := reg.Get(idle.ID)
		assert.False(t, ok)
		_, ok = reg.Get(fresh.ID)
		assert.True(t, ok)
	})
}
