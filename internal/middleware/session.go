package middleware

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"
	"net/http"

	"github.com/gorilla/sessions"
	"github.com/labelscan/portal/internal/observability"
	"golang.org/x/crypto/hkdf"
)

// SessionName is the cookie that carries the workspace id and bearer token
const SessionName = "labelscan_session"

const (
	workspaceKey = "workspace"
	sessionDays  = 7
)

// SessionStore is the signed and encrypted cookie store of the portal
type SessionStore struct {
	store    *sessions.CookieStore
	tokenKey string
}

// NewSessionStore derives the cookie hash and block keys from secret. An
// empty secret gets a random one, so cookies do not survive a restart.
func NewSessionStore(secret, tokenKey string, secure bool) (*SessionStore, error) {
	ikm := []byte(secret)
	if secret == "" {
		observability.Warn("SESSION_SECRET is not set; sessions will not survive a restart")
		ikm = make([]byte, 32)
		if _, err := rand.Read(ikm); err != nil {
			return nil, fmt.Errorf("generate session secret: %w", err)
		}
	}

	hashKey, err := deriveKey(ikm, "labelscan-session-hash", 32)
	if err != nil {
		return nil, err
	}
	blockKey, err := deriveKey(ikm, "labelscan-session-block", 32)
	if err != nil {
		return nil, err
	}

	store := sessions.NewCookieStore(hashKey, blockKey)
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   sessionDays * 24 * 60 * 60,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
	return &SessionStore{store: store, tokenKey: tokenKey}, nil
}

func deriveKey(ikm []byte, info string, size int) ([]byte, error) {
	key := make([]byte, size)
	if _, err := io.ReadFull(hkdf.New(sha256.New, ikm, nil, []byte(info)), key); err != nil {
		return nil, fmt.Errorf("derive %s key: %w", info, err)
	}
	return key, nil
}

// Load returns the request's cookie session. A cookie that no longer decodes
// (rotated secret, tampering) yields a fresh session.
func (s *SessionStore) Load(r *http.Request) *sessions.Session {
	session, err := s.store.Get(r, SessionName)
	if err != nil {
		observability.WithContext(r.Context()).Debugf("Discarding unreadable session cookie: %v", err)
		session, _ = s.store.New(r, SessionName)
	}
	return session
}

// CookieTokenStore persists the bearer token in the cookie session. It is
// bound to one request and response.
type CookieTokenStore struct {
	session *sessions.Session
	key     string
	r       *http.Request
	w       http.ResponseWriter
}

// TokenStore binds a token store to the request's session
func (s *SessionStore) TokenStore(session *sessions.Session, w http.ResponseWriter, r *http.Request) *CookieTokenStore {
	return &CookieTokenStore{session: session, key: s.tokenKey, r: r, w: w}
}

func (c *CookieTokenStore) Load(context.Context) (string, error) {
	token, _ := c.session.Values[c.key].(string)
	return token, nil
}

func (c *CookieTokenStore) Save(_ context.Context, token string) error {
	c.session.Values[c.key] = token
	return c.session.Save(c.r, c.w)
}

func (c *CookieTokenStore) Clear(context.Context) error {
	if _, ok := c.session.Values[c.key]; !ok {
		return nil
	}
	delete(c.session.Values, c.key)
	return c.session.Save(c.r, c.w)
}
