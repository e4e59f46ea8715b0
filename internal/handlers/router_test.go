package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"image/color"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/disintegration/imaging"
	"github.com/gorilla/websocket"
	"github.com/labelscan/portal/internal/config"
	custommw "github.com/labelscan/portal/internal/middleware"
	"github.com/labelscan/portal/internal/models"
	"github.com/labelscan/portal/internal/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeVerificationService answers the login, verify, submit and status
// endpoints. Only inspector/secret may log in.
func fakeVerificationService(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {
		user, pass, _ := r.BasicAuth()
		if user != "inspector" || pass != "secret" {
			writeTestJSON(w, http.StatusUnauthorized, map[string]string{"message": "Invalid credentials"})
			return
		}
		writeTestJSON(w, http.StatusOK, map[string]string{"token": "good"})
	})
	mux.HandleFunc("/verify-token", func(w http.ResponseWriter, r *http.Request) {
		writeTestJSON(w, http.StatusOK, map[string]interface{}{
			"valid": r.Header.Get("Authorization") == "Bearer good",
			"user":  "inspector",
		})
	})
	mux.HandleFunc("/submit-product", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer good" {
			writeTestJSON(w, http.StatusUnauthorized, map[string]string{"msg": "Token has expired"})
			return
		}
		writeTestJSON(w, http.StatusAccepted, map[string]string{"job_id": "job-1"})
	})
	mux.HandleFunc("/processing-status/job-1", func(w http.ResponseWriter, r *http.Request) {
		writeTestJSON(w, http.StatusOK, map[string]interface{}{
			"status":          "completed",
			"elapsed_seconds": 2.5,
			"result": map[string]interface{}{
				"success": true,
				"validations": map[string]bool{
					"brand_name":      true,
					"product_class":   true,
					"alcohol_content": false,
					"net_contents":    true,
					"gov_warn":        true,
				},
			},
		})
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func writeTestJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

type portal struct {
	server   *httptest.Server
	client   *http.Client
	registry *services.WorkspaceRegistry
}

func setupTestPortal(t *testing.T) *portal {
	t.Helper()
	backend := fakeVerificationService(t)

	cfg := config.Default()
	cfg.APIURL = backend.URL
	cfg.Upload.MaxImages = 2
	cfg.Upload.MaxFileSizeMB = 1
	cfg.Polling.IntervalMS = 10

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	hub := services.NewWebSocketHub()
	go hub.Run(ctx)

	client := services.NewBackendClient(cfg, backend.Client())
	previews := services.NewPreviewService(32)
	registry := services.NewWorkspaceRegistry(services.WorkspaceDeps{
		Config:   cfg,
		Backend:  client,
		Auth:     services.NewAuthService(client, nil),
		Previews: previews,
		Hub:      hub,
	}, time.Hour)
	t.Cleanup(registry.Close)

	sessions, err := custommw.NewSessionStore("test-secret", cfg.Auth.TokenKey, false)
	require.NoError(t, err)

	server := httptest.NewServer(NewRouter(RouterDeps{
		Config:   cfg,
		Sessions: sessions,
		Registry: registry,
		Hub:      hub,
		Previews: previews,
	}))
	t.Cleanup(server.Close)

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	httpClient := &http.Client{
		Jar: jar,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	return &portal{server: server, client: httpClient, registry: registry}
}

func (p *portal) do(t *testing.T, method, path string, body interface{}) (*http.Response, []byte) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, p.server.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return p.send(t, req)
}

func (p *portal) send(t *testing.T, req *http.Request) (*http.Response, []byte) {
	t.Helper()
	resp, err := p.client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

func (p *portal) page(t *testing.T) string {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, p.server.URL+"/", nil)
	require.NoError(t, err)
	resp, body := p.send(t, req)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/html; charset=utf-8", resp.Header.Get("Content-Type"))
	return string(body)
}

func (p *portal) login(t *testing.T) {
	t.Helper()
	resp, _ := p.do(t, http.MethodPost, "/login", map[string]string{"username": "inspector", "password": "secret"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func (p *portal) upload(t *testing.T, name string, data []byte) (*http.Response, addImagesResponse) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("images", name)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req, err := http.NewRequest(http.MethodPost, p.server.URL+"/images", &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Accept", "application/json")
	resp, body := p.send(t, req)

	var out addImagesResponse
	require.NoError(t, json.Unmarshal(body, &out))
	return resp, out
}

func (p *portal) fill(t *testing.T) {
	t.Helper()
	for field, value := range map[string]string{
		"brandName":      "Old Tom",
		"productClass":   "Gin",
		"alcoholContent": "40",
		"netContents":    "750",
	} {
		resp, _ := p.do(t, http.MethodPost, "/product/field", map[string]string{"field": field, "value": value})
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}
}

func (p *portal) snapshot(t *testing.T) models.SubmissionSnapshot {
	t.Helper()
	resp, body := p.do(t, http.MethodGet, "/submission/status", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var snap models.SubmissionSnapshot
	require.NoError(t, json.Unmarshal(body, &snap))
	return snap
}

func testPNG(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	img := imaging.New(64, 48, color.NRGBA{R: 200, G: 40, B: 40, A: 255})
	require.NoError(t, imaging.Encode(&buf, img, imaging.PNG))
	return buf.Bytes()
}

func TestHealth(t *testing.T) {
	p := setupTestPortal(t)

	resp, body := p.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var health models.HealthResponse
	require.NoError(t, json.Unmarshal(body, &health))
	assert.Equal(t, "healthy", health.Status)
}

func TestLogin(t *testing.T) {
	t.Run("page asks for credentials", func(t *testing.T) {
		p := setupTestPortal(t)
		page := p.page(t)
		assert.Contains(t, page, `action="/login"`)
		assert.NotContains(t, page, `id="product"`)
	})

	t.Run("rejected credentials show the service message", func(t *testing.T) {
		p := setupTestPortal(t)

		resp, body := p.do(t, http.MethodPost, "/login", map[string]string{"username": "inspector", "password": "wrong"})
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		assert.Contains(t, string(body), "Invalid credentials")

		assert.Contains(t, p.page(t), "Invalid credentials")
	})

	t.Run("empty credentials", func(t *testing.T) {
		p := setupTestPortal(t)
		resp, body := p.do(t, http.MethodPost, "/login", map[string]string{"username": " ", "password": ""})
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		assert.Contains(t, string(body), models.ErrEmptyCredentials.Message)
	})

	t.Run("form login redirects to the form", func(t *testing.T) {
		p := setupTestPortal(t)
		req, err := http.NewRequest(http.MethodPost, p.server.URL+"/login",
			strings.NewReader("username=inspector&password=secret"))
		require.NoError(t, err)
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

		resp, _ := p.send(t, req)
		assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
		assert.Equal(t, "/", resp.Header.Get("Location"))

		page := p.page(t)
		assert.Contains(t, page, `id="product"`)
		assert.Contains(t, page, "inspector")
	})

	t.Run("logout clears the session", func(t *testing.T) {
		p := setupTestPortal(t)
		p.login(t)

		resp, body := p.do(t, http.MethodPost, "/logout", nil)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.JSONEq(t, `{"authenticated":false}`, string(body))
		assert.Contains(t, p.page(t), `action="/login"`)
	})

	t.Run("token cookie survives a restart", func(t *testing.T) {
		p := setupTestPortal(t)
		p.login(t)

		p.registry.Close()
		assert.Contains(t, p.page(t), `id="product"`)
	})
}

func TestProductForm(t *testing.T) {
	t.Run("live edits", func(t *testing.T) {
		p := setupTestPortal(t)
		p.login(t)

		resp, body := p.do(t, http.MethodPost, "/product/field", map[string]string{"field": "alcoholContent", "value": "40"})
		require.Equal(t, http.StatusOK, resp.StatusCode)
		var update models.FieldUpdateResponse
		require.NoError(t, json.Unmarshal(body, &update))
		assert.True(t, update.Accepted)
		assert.Equal(t, "40", update.Value)

		_, body = p.do(t, http.MethodPost, "/product/field", map[string]string{"field": "netContents", "value": "12abc"})
		require.NoError(t, json.Unmarshal(body, &update))
		assert.False(t, update.Accepted)
		assert.Equal(t, "", update.Value)
	})

	t.Run("invalid submit marks fields", func(t *testing.T) {
		p := setupTestPortal(t)
		p.login(t)

		resp, body := p.do(t, http.MethodPost, "/product", map[string]string{})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

		var out submitFormResponse
		require.NoError(t, json.Unmarshal(body, &out))
		assert.Equal(t, models.ErrInvalidForm.Message, out.Error)
		assert.True(t, out.Fields[models.FieldBrandName])
		assert.True(t, out.Fields[models.FieldImages])

		page := p.page(t)
		assert.Contains(t, page, models.ErrInvalidForm.Message)
		assert.Contains(t, page, `class="invalid"`)
	})

	t.Run("form post redirects", func(t *testing.T) {
		p := setupTestPortal(t)
		p.login(t)

		req, err := http.NewRequest(http.MethodPost, p.server.URL+"/product",
			strings.NewReader("brandName=Old+Tom&productClass=Gin&alcoholContent=40&netContents=750&netContentsUnit=L"))
		require.NoError(t, err)
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

		resp, _ := p.send(t, req)
		assert.Equal(t, http.StatusSeeOther, resp.StatusCode)

		page := p.page(t)
		assert.Contains(t, page, `value="Old Tom"`)
		assert.Contains(t, page, `<option value="L" selected>`)
	})

	t.Run("refused posted value is marked instead of submitted", func(t *testing.T) {
		p := setupTestPortal(t)
		p.login(t)
		p.fill(t)
		resp, _ := p.upload(t, "label.png", testPNG(t))
		require.Equal(t, http.StatusOK, resp.StatusCode)

		req, err := http.NewRequest(http.MethodPost, p.server.URL+"/product",
			strings.NewReader("brandName=Old+Tom&productClass=Gin&alcoholContent=40&netContents=12.345&netContentsUnit=ml"))
		require.NoError(t, err)
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.Header.Set("Accept", "application/json")

		resp, body := p.send(t, req)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		var out submitFormResponse
		require.NoError(t, json.Unmarshal(body, &out))
		assert.True(t, out.Fields[models.FieldNetContents])
		assert.Equal(t, models.StateIdle, p.snapshot(t).State)

		page := p.page(t)
		assert.Contains(t, page, `value="750"`)
		assert.Contains(t, page, models.ErrInvalidForm.Message)
	})
}

func TestImages(t *testing.T) {
	p := setupTestPortal(t)
	p.login(t)

	resp, out := p.upload(t, "label.png", testPNG(t))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1, out.Accepted)
	require.Len(t, out.Images, 1)
	assert.Equal(t, "image/png", out.Images[0].ContentType)
	ref := out.Images[0].PreviewRef
	require.NotEmpty(t, ref)

	t.Run("preview is served", func(t *testing.T) {
		resp, body := p.do(t, http.MethodGet, "/previews/"+ref, nil)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "image/jpeg", resp.Header.Get("Content-Type"))
		assert.NotEmpty(t, body)
	})

	t.Run("unknown preview", func(t *testing.T) {
		resp, _ := p.do(t, http.MethodGet, "/previews/nope", nil)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("non images are skipped", func(t *testing.T) {
		resp, out := p.upload(t, "notes.txt", []byte("just some text"))
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, 0, out.Accepted)
		assert.Len(t, out.Images, 1)
	})

	t.Run("remove out of range", func(t *testing.T) {
		resp, _ := p.do(t, http.MethodPost, "/images/5/remove", nil)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("remove", func(t *testing.T) {
		resp, body := p.do(t, http.MethodPost, "/images/0/remove", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		var out addImagesResponse
		require.NoError(t, json.Unmarshal(body, &out))
		assert.Empty(t, out.Images)

		resp, _ = p.do(t, http.MethodGet, "/previews/"+ref, nil)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}

func TestImages_DroppedFiles(t *testing.T) {
	p := setupTestPortal(t)
	p.login(t)
	assert.Contains(t, p.page(t), `id="dropzone"`)
	assert.Contains(t, p.page(t), `data-enabled="true"`)

	// a drop posts every file under "images" in one request
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, name := range []string{"front.png", "back.png", "neck.png"} {
		part, err := mw.CreateFormFile("images", name)
		require.NoError(t, err)
		_, err = part.Write(testPNG(t))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req, err := http.NewRequest(http.MethodPost, p.server.URL+"/images", &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Accept", "application/json")
	resp, body := p.send(t, req)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out addImagesResponse
	require.NoError(t, json.Unmarshal(body, &out))
	assert.Equal(t, 2, out.Accepted)
	require.Len(t, out.Images, 2)
	assert.Equal(t, "front.png", out.Images[0].Name)
	assert.Equal(t, "back.png", out.Images[1].Name)
	assert.NotEmpty(t, out.Messages)

	page := p.page(t)
	assert.Contains(t, page, "Label Images (2/2)")
	assert.NotContains(t, page, `data-enabled="true"`)
}

func TestSubmission(t *testing.T) {
	t.Run("confirm requires login", func(t *testing.T) {
		p := setupTestPortal(t)
		resp, body := p.do(t, http.MethodPost, "/submission/confirm", nil)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		assert.JSONEq(t, `{"error":"Authentication required."}`, string(body))
	})

	t.Run("confirm without review", func(t *testing.T) {
		p := setupTestPortal(t)
		p.login(t)
		resp, _ := p.do(t, http.MethodPost, "/submission/confirm", nil)
		assert.Equal(t, http.StatusConflict, resp.StatusCode)
	})

	t.Run("no results to page", func(t *testing.T) {
		p := setupTestPortal(t)
		resp, _ := p.do(t, http.MethodPost, "/results/next", nil)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("cancel review keeps the form", func(t *testing.T) {
		p := setupTestPortal(t)
		p.login(t)
		p.fill(t)
		p.upload(t, "label.png", testPNG(t))

		resp, _ := p.do(t, http.MethodPost, "/product", map[string]string{})
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Contains(t, p.page(t), "Review submission")

		resp, body := p.do(t, http.MethodPost, "/submission/dismiss", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Contains(t, string(body), `"state":"idle"`)
		assert.Contains(t, p.page(t), `value="Old Tom"`)
	})

	t.Run("completed round trip", func(t *testing.T) {
		p := setupTestPortal(t)
		p.login(t)
		p.fill(t)
		p.upload(t, "front.png", testPNG(t))
		p.upload(t, "back.png", testPNG(t))

		resp, body := p.do(t, http.MethodPost, "/product", map[string]string{})
		require.Equal(t, http.StatusOK, resp.StatusCode)
		var snap models.SubmissionSnapshot
		require.NoError(t, json.Unmarshal(body, &snap))
		assert.Equal(t, models.StateConfirming, snap.State)
		require.NotNil(t, snap.Payload)
		assert.Equal(t, 40.0, snap.Payload.AlcoholContent)
		assert.Equal(t, 2, snap.ImageCount)

		resp, _ = p.do(t, http.MethodPost, "/submission/confirm", nil)
		require.Equal(t, http.StatusAccepted, resp.StatusCode)

		require.Eventually(t, func() bool {
			return p.snapshot(t).State == models.StateCompleted
		}, 5*time.Second, 20*time.Millisecond)

		page := p.page(t)
		assert.Contains(t, page, "Results")
		assert.Contains(t, page, "✓ Found")
		assert.Contains(t, page, "✗ Not Found")
		assert.Contains(t, page, "data:image/")

		resp, body = p.do(t, http.MethodPost, "/results/next", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		var pageResp resultsPageResponse
		require.NoError(t, json.Unmarshal(body, &pageResp))
		assert.Equal(t, 2, pageResp.Position)
		assert.Equal(t, 2, pageResp.Total)
		require.Len(t, pageResp.Checks, 5)
		assert.Equal(t, "alcohol_content", pageResp.Checks[2].Key)
		assert.False(t, pageResp.Checks[2].Passed)

		_, body = p.do(t, http.MethodPost, "/results/next", nil)
		require.NoError(t, json.Unmarshal(body, &pageResp))
		assert.Equal(t, 1, pageResp.Position)

		resp, _ = p.do(t, http.MethodPost, "/submission/dismiss", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		page = p.page(t)
		assert.NotContains(t, page, `value="Old Tom"`)
		assert.Contains(t, page, "Label Images (0/2)")
	})
}

func TestWebSocket(t *testing.T) {
	p := setupTestPortal(t)
	p.page(t)

	wsURL := "ws" + strings.TrimPrefix(p.server.URL, "http") + "/ws/submission"
	dialer := websocket.Dialer{Jar: p.client.Jar, HandshakeTimeout: 2 * time.Second}
	conn, resp, err := dialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()
	assert.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var msg struct {
		Type    string                    `json:"type"`
		Payload models.SubmissionSnapshot `json:"payload"`
	}
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, string(services.WSTypeSubmission), msg.Type)
	assert.Equal(t, models.StateIdle, msg.Payload.State)

	t.Run("ping", func(t *testing.T) {
		require.NoError(t, conn.WriteJSON(map[string]string{"type": string(services.WSTypePing)}))
		var pong struct {
			Type string `json:"type"`
		}
		require.NoError(t, conn.ReadJSON(&pong))
		assert.Equal(t, string(services.WSTypePong), pong.Type)
	})
}
