package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/labelscan/portal/internal/config"
	"github.com/labelscan/portal/internal/models"
	"github.com/labelscan/portal/internal/observability"
	"golang.org/x/oauth2"
)

// maxResponseBytes caps how much of a response body is read. Results carry
// base64 images so this is generous.
const maxResponseBytes = 64 << 20

// BackendClient talks to the remote verification service
type BackendClient struct {
	cfg        config.Config
	httpClient *http.Client
}

// NewBackendClient creates a client for the configured verification service.
// A nil httpClient gets a default one with a request timeout.
func NewBackendClient(cfg config.Config, httpClient *http.Client) *BackendClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &BackendClient{cfg: cfg, httpClient: httpClient}
}

// bearer returns a client that attaches token as a bearer credential
func (c *BackendClient) bearer(ctx context.Context, token string) *http.Client {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
	return oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: token,
		TokenType:   "Bearer",
	}))
}

// Login exchanges credentials for a token using basic authentication.
// An OK response without a token yields an empty string and no error.
func (c *BackendClient) Login(ctx context.Context, username, password string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL(c.cfg.Endpoints.Login), nil)
	if err != nil {
		return "", err
	}
	req.SetBasicAuth(username, password)

	body, err := c.do(c.httpClient, req, "login")
	if err != nil {
		return "", err
	}

	var resp models.LoginResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		observability.Debugf("Login response was not JSON: %v", err)
		return "", nil
	}
	return resp.BearerToken(), nil
}

// VerifyToken asks the service whether token is still valid
func (c *BackendClient) VerifyToken(ctx context.Context, token string) (*models.VerifyTokenResponse, error) {
	payload, err := json.Marshal(models.VerifyTokenRequest{Token: token})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL(c.cfg.Endpoints.VerifyToken), bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	body, err := c.do(c.bearer(ctx, token), req, "verify-token")
	if err != nil {
		return nil, err
	}

	var resp models.VerifyTokenResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode verify-token response: %w", err)
	}
	return &resp, nil
}

// SubmitOutcome is the acknowledgement of a product submission. Deployments
// that process synchronously return Result instead of a job id.
type SubmitOutcome struct {
	JobID  string
	Result *models.VerificationResult
}

// SubmitProduct posts the payload and images as one multipart request
func (c *BackendClient) SubmitProduct(ctx context.Context, token string, payload models.ProductPayload, images []models.UploadedImage) (*SubmitOutcome, error) {
	var buf bytes.Buffer
	contentType, err := writeSubmission(&buf, payload, images)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL(c.cfg.Endpoints.Submit), &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", contentType)

	body, err := c.do(c.bearer(ctx, token), req, "submit-product")
	if err != nil {
		return nil, err
	}

	var ack models.SubmitResponse
	if err := json.Unmarshal(body, &ack); err != nil {
		return nil, fmt.Errorf("decode submit response: %w", err)
	}
	outcome := &SubmitOutcome{JobID: strings.TrimSpace(ack.JobID)}
	if outcome.JobID == "" {
		var result models.VerificationResult
		if err := json.Unmarshal(body, &result); err == nil && result.Validations != nil {
			outcome.Result = &result
		}
	}
	return outcome, nil
}

// ProcessingStatus fetches the status of a job
func (c *BackendClient) ProcessingStatus(ctx context.Context, token, jobID string) (*models.StatusResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.StatusURL(jobID), nil)
	if err != nil {
		return nil, err
	}

	body, err := c.do(c.bearer(ctx, token), req, "processing-status")
	if err != nil {
		return nil, err
	}

	var status models.StatusResponse
	if err := json.Unmarshal(body, &status); err != nil {
		return nil, fmt.Errorf("decode status response: %w", err)
	}
	return &status, nil
}

// do sends req inside a client span and returns the body of an OK response.
// Transport failures become *models.NetworkError and non-OK responses
// *models.APIError.
func (c *BackendClient) do(client *http.Client, req *http.Request, op string) ([]byte, error) {
	req, span := observability.StartClientSpan(req, op)

	resp, err := client.Do(req)
	if err != nil {
		observability.EndClientSpan(span, nil, err)
		observability.WithContext(req.Context()).Debugf("%s request failed: %v", op, err)
		return nil, &models.NetworkError{Op: op, Err: err}
	}
	defer resp.Body.Close()
	observability.EndClientSpan(span, resp, nil)

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, &models.NetworkError{Op: op, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var errBody models.ServiceErrorBody
		_ = json.Unmarshal(body, &errBody)
		observability.WithContext(req.Context()).Debugf("%s returned %d", op, resp.StatusCode)
		return nil, &models.APIError{StatusCode: resp.StatusCode, Message: errBody.Text()}
	}
	return body, nil
}

// writeSubmission encodes the text fields followed by every image under the
// "images" field name and returns the multipart content type.
func writeSubmission(w io.Writer, payload models.ProductPayload, images []models.UploadedImage) (string, error) {
	mw := multipart.NewWriter(w)
	for _, kv := range payload.FormValues() {
		if err := mw.WriteField(kv[0], kv[1]); err != nil {
			return "", err
		}
	}
	for _, img := range images {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`,
			string(models.FieldImages), escapeQuotes(img.Name)))
		ct := img.ContentType
		if ct == "" {
			ct = "application/octet-stream"
		}
		h.Set("Content-Type", ct)
		part, err := mw.CreatePart(h)
		if err != nil {
			return "", err
		}
		if _, err := part.Write(img.Content); err != nil {
			return "", err
		}
	}
	if err := mw.Close(); err != nil {
		return "", err
	}
	return mw.FormDataContentType(), nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}
