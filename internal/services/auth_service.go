package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/labelscan/portal/internal/models"
	"github.com/labelscan/portal/internal/observability"
)

// AuthService runs the credential exchange and the session lifecycle around
// the persisted bearer token.
type AuthService struct {
	client  *BackendClient
	metrics *observability.FlowMetrics
	now     func() time.Time
}

// NewAuthService creates a new AuthService. metrics may be nil.
func NewAuthService(client *BackendClient, metrics *observability.FlowMetrics) *AuthService {
	return &AuthService{
		client:  client,
		metrics: metrics,
		now:     time.Now,
	}
}

// SubmitCredentials logs in with basic authentication. On success the token
// is persisted in store and session is authenticated. Failures are returned
// as models.CredentialError carrying the user-facing message.
func (s *AuthService) SubmitCredentials(ctx context.Context, store TokenStore, session *models.Session, username, password string) (string, error) {
	if strings.TrimSpace(username) == "" || strings.TrimSpace(password) == "" {
		return "", models.ErrEmptyCredentials
	}

	ctx, span := observability.StartServiceSpan(ctx, "auth", "SubmitCredentials")
	defer span.End()

	token, err := s.client.Login(ctx, username, password)
	if err != nil {
		observability.RecordError(span, err)
		s.metrics.RecordLogin(ctx, false)
		return "", loginFeedback(err)
	}
	if token == "" {
		s.metrics.RecordLogin(ctx, false)
		return "", models.ErrMissingToken
	}

	if err := store.Save(ctx, token); err != nil {
		// The session still works for this process
		observability.WithContext(ctx).Warnf("Failed to persist token: %v", err)
	}
	session.Authenticate(token)
	session.User = strings.TrimSpace(username)
	s.metrics.RecordLogin(ctx, true)
	observability.SetSuccess(span)
	return token, nil
}

func loginFeedback(err error) error {
	var apiErr *models.APIError
	if errors.As(err, &apiErr) {
		if apiErr.Message != "" {
			return models.CredentialError{Message: apiErr.Message}
		}
		return models.CredentialError{Message: fmt.Sprintf("Login failed (%d).", apiErr.StatusCode)}
	}
	return models.ErrLoginNetwork
}

// Init restores a session from the persisted token. Tokens that are already
// expired, rejected by the service or cannot be verified are cleared from
// store. Only store failures are returned as errors.
func (s *AuthService) Init(ctx context.Context, store TokenStore, session *models.Session) error {
	token, err := store.Load(ctx)
	if err != nil {
		return err
	}
	if token == "" {
		session.Clear()
		return nil
	}

	if models.TokenExpired(token, s.now(), s.client.cfg.Auth.TokenLifetime()) {
		observability.Debug("Stored token has expired, clearing it")
		session.Clear()
		return store.Clear(ctx)
	}

	ctx, span := observability.StartServiceSpan(ctx, "auth", "VerifyToken")
	defer span.End()

	resp, err := s.client.VerifyToken(ctx, token)
	if err != nil || !resp.Valid {
		if err != nil {
			observability.RecordError(span, err)
			observability.WithContext(ctx).Debugf("Token verification failed: %v", err)
		}
		session.Clear()
		return store.Clear(ctx)
	}

	session.Authenticate(token)
	session.User = resp.User
	observability.SetSuccess(span)
	return nil
}

// Logout clears the session and the persisted token
func (s *AuthService) Logout(ctx context.Context, store TokenStore, session *models.Session) error {
	session.Clear()
	return store.Clear(ctx)
}
