package services

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labelscan/portal/internal/config"
	"github.com/labelscan/portal/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestBackend(t *testing.T, handler http.HandlerFunc) (*BackendClient, config.Config) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	cfg := config.Default()
	cfg.APIURL = server.URL
	return NewBackendClient(cfg, server.Client()), cfg
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func TestBackendClient_Login(t *testing.T) {
	ctx := context.Background()

	t.Run("sends basic auth and reads access_token", func(t *testing.T) {
		client, _ := setupTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "/login", r.URL.Path)
			user, pass, ok := r.BasicAuth()
			assert.True(t, ok)
			assert.Equal(t, "inspector", user)
			assert.Equal(t, "s3cret", pass)
			writeJSON(w, http.StatusOK, map[string]string{"access_token": "tok-1"})
		})

		token, err := client.Login(ctx, "inspector", "s3cret")
		require.NoError(t, err)
		assert.Equal(t, "tok-1", token)
	})

	t.Run("prefers token over access_token", func(t *testing.T) {
		client, _ := setupTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]string{"token": "a", "access_token": "b"})
		})

		token, err := client.Login(ctx, "u", "p")
		require.NoError(t, err)
		assert.Equal(t, "a", token)
	})

	t.Run("OK without token yields empty token", func(t *testing.T) {
		client, _ := setupTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]string{"message": "hello"})
		})

		token, err := client.Login(ctx, "u", "p")
		require.NoError(t, err)
		assert.Empty(t, token)
	})

	t.Run("non-OK becomes APIError with server message", func(t *testing.T) {
		client, _ := setupTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Bad credentials"})
		})

		_, err := client.Login(ctx, "u", "p")
		var apiErr *models.APIError
		require.True(t, errors.As(err, &apiErr))
		assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
		assert.Equal(t, "Bad credentials", apiErr.Message)
	})

	t.Run("JWT layer msg field is surfaced", func(t *testing.T) {
		client, _ := setupTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"msg": "Token has expired"})
		})

		_, err := client.ProcessingStatus(ctx, "tok", "job")
		var apiErr *models.APIError
		require.True(t, errors.As(err, &apiErr))
		assert.Equal(t, "Token has expired", apiErr.Message)
	})

	t.Run("unreachable server becomes NetworkError", func(t *testing.T) {
		server := httptest.NewServer(http.NotFoundHandler())
		cfg := config.Default()
		cfg.APIURL = server.URL
		server.Close()

		_, err := NewBackendClient(cfg, nil).Login(ctx, "u", "p")
		var netErr *models.NetworkError
		require.True(t, errors.As(err, &netErr))
		assert.Equal(t, "login", netErr.Op)
	})
}

func TestBackendClient_VerifyToken(t *testing.T) {
	client, _ := setupTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/verify-token", r.URL.Path)
		assert.Equal(t, "Bearer tok-1", r.Header.Get("Authorization"))

		var body models.VerifyTokenRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "tok-1", body.Token)

		writeJSON(w, http.StatusOK, models.VerifyTokenResponse{Valid: true, User: "inspector"})
	})

	resp, err := client.VerifyToken(context.Background(), "tok-1")
	require.NoError(t, err)
	assert.True(t, resp.Valid)
	assert.Equal(t, "inspector", resp.User)
}

func TestBackendClient_SubmitProduct(t *testing.T) {
	payload := models.ProductPayload{
		BrandName:       "Awesome Brews",
		ProductClass:    "Beer",
		AlcoholContent:  5.5,
		NetContents:     12,
		NetContentsUnit: models.UnitFluidOunce,
	}
	images := []models.UploadedImage{
		{Name: "front.jpg", ContentType: "image/jpeg", Content: []byte("front-bytes")},
		{Name: "back.png", ContentType: "image/png", Content: []byte("back-bytes")},
	}

	t.Run("posts text fields and every image as multipart", func(t *testing.T) {
		client, _ := setupTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/submit-product", r.URL.Path)
			assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
			require.NoError(t, r.ParseMultipartForm(1<<20))

			assert.Equal(t, "Awesome Brews", r.FormValue("brandName"))
			assert.Equal(t, "Beer", r.FormValue("productClass"))
			assert.Equal(t, "5.5", r.FormValue("alcoholContent"))
			assert.Equal(t, "12", r.FormValue("netContents"))
			assert.Equal(t, "fl oz", r.FormValue("netContentsUnit"))

			files := r.MultipartForm.File["images"]
			require.Len(t, files, 2)
			assert.Equal(t, "front.jpg", files[0].Filename)
			assert.Equal(t, "image/jpeg", files[0].Header.Get("Content-Type"))
			f, err := files[1].Open()
			require.NoError(t, err)
			data, _ := io.ReadAll(f)
			f.Close()
			assert.Equal(t, "back-bytes", string(data))

			writeJSON(w, http.StatusOK, map[string]string{"job_id": "job-42"})
		})

		outcome, err := client.SubmitProduct(context.Background(), "tok", payload, images)
		require.NoError(t, err)
		assert.Equal(t, "job-42", outcome.JobID)
		assert.Nil(t, outcome.Result)
	})

	t.Run("synchronous result without job id", func(t *testing.T) {
		client, _ := setupTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]interface{}{
				"success":     true,
				"validations": map[string]bool{"brand_name": true},
				"user":        "inspector",
			})
		})

		outcome, err := client.SubmitProduct(context.Background(), "tok", payload, images[:1])
		require.NoError(t, err)
		assert.Empty(t, outcome.JobID)
		require.NotNil(t, outcome.Result)
		assert.True(t, outcome.Result.Passed("brand_name"))
	})

	t.Run("busy server error is kept", func(t *testing.T) {
		client, _ := setupTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
				"success": false,
				"error":   "Server is busy processing another submission. Please wait.",
			})
		})

		_, err := client.SubmitProduct(context.Background(), "tok", payload, images)
		var apiErr *models.APIError
		require.True(t, errors.As(err, &apiErr))
		assert.Equal(t, http.StatusServiceUnavailable, apiErr.StatusCode)
		assert.Contains(t, apiErr.Message, "busy")
	})
}

func TestBackendClient_ProcessingStatus(t *testing.T) {
	client, _ := setupTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/processing-status/job-42", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"status":          "completed",
			"elapsed_seconds": 7.5,
			"result": map[string]interface{}{
				"success":     true,
				"validations": map[string]bool{"gov_warn": true},
			},
		})
	})

	status, err := client.ProcessingStatus(context.Background(), "tok", "job-42")
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, status.Status)
	require.NotNil(t, status.ElapsedSeconds)
	assert.Equal(t, 7.5, *status.ElapsedSeconds)
	require.NotNil(t, status.Result)
	assert.True(t, status.Result.Passed("gov_warn"))
}
