package models

import (
	"time"

	"github.com/dgrijalva/jwt-go"
)

// Session is the authentication state of one user of the portal
type Session struct {
	Token         string `json:"-"`
	Authenticated bool   `json:"authenticated"`
	User          string `json:"user,omitempty"`
}

// Authenticate records a verified token
func (s *Session) Authenticate(token string) {
	s.Token = token
	s.Authenticated = token != ""
}

// Clear drops the token and marks the session unauthenticated
func (s *Session) Clear() {
	s.Token = ""
	s.Authenticated = false
	s.User = ""
}

// TokenExpiry reads the exp claim of a JWT without verifying its signature.
// The verification service remains the authority; this only lets a client skip
// replaying a token it can already tell is stale. A token with an iat claim but
// no exp expires lifetime after issue when lifetime is positive. ok is false
// for opaque tokens and tokens with neither claim.
func TokenExpiry(token string, lifetime time.Duration) (exp time.Time, ok bool) {
	claims := jwt.MapClaims{}
	if _, _, err := new(jwt.Parser).ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}
	if exp, ok := unixClaim(claims, "exp"); ok {
		return exp, true
	}
	if iat, ok := unixClaim(claims, "iat"); ok && lifetime > 0 {
		return iat.Add(lifetime), true
	}
	return time.Time{}, false
}

func unixClaim(claims jwt.MapClaims, name string) (time.Time, bool) {
	switch v := claims[name].(type) {
	case float64:
		return time.Unix(int64(v), 0).UTC(), true
	case int64:
		return time.Unix(v, 0).UTC(), true
	}
	return time.Time{}, false
}

// TokenExpired reports whether token's expiry is in the past
func TokenExpired(token string, now time.Time, lifetime time.Duration) bool {
	exp, ok := TokenExpiry(token, lifetime)
	return ok && !now.Before(exp)
}

// Session errors
var (
	ErrNotAuthenticated = SessionError{"not authenticated"}
)

type SessionError struct {
	Message string
}

func (e SessionError) Error() string {
	return e.Message
}

// CredentialError is user-facing login feedback
type CredentialError struct {
	Message string
}

func (e CredentialError) Error() string {
	return e.Message
}

// Credential feedback shown by the login modal
var (
	ErrEmptyCredentials = CredentialError{"Username and password cannot be empty."}
	ErrMissingToken     = CredentialError{"Login succeeded but no token was returned."}
	ErrLoginNetwork     = CredentialError{"Network Error: Failed to connect to backend."}
)
