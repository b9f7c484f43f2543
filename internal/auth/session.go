package auth

import (
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	verdant_errors "verdant-sync/pkg/errors"
)

// Session holds the viewer's backend-issued JWT. The token is parsed
// unverified: the client has no signing key and only needs the claims to
// know who the viewer is and when the session dies, so it can surface an
// AuthError locally instead of issuing a doomed request.
type Session struct {
	mu        sync.RWMutex
	token     string
	viewerID  string
	expiresAt time.Time
}

func NewSession(token string) (*Session, error) {
	s := &Session{}
	if err := s.SetToken(token); err != nil {
		return nil, err
	}
	return s, nil
}

// SetToken swaps in a fresh token, e.g. after the UI re-authenticates.
func (s *Session) SetToken(token string) error {
	claims := jwt.MapClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return verdant_errors.Auth("auth.parse_token", err)
	}

	sub, _ := claims.GetSubject()
	if sub == "" {
		return verdant_errors.Auth("auth.parse_token", verdant_errors.ErrAuth)
	}
	exp, err := claims.GetExpirationTime()
	if err != nil {
		return verdant_errors.Auth("auth.parse_token", err)
	}

	s.mu.Lock()
	s.token = token
	s.viewerID = sub
	if exp != nil {
		s.expiresAt = exp.Time
	} else {
		s.expiresAt = time.Time{}
	}
	s.mu.Unlock()
	return nil
}

// Token returns the bearer token, or an AuthError when it has expired.
func (s *Session) Token() (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.expiresAt.IsZero() && time.Now().After(s.expiresAt) {
		return "", verdant_errors.Auth("auth.token", verdant_errors.ErrAuth)
	}
	return s.token, nil
}

// ViewerID is the authenticated user id from the token subject.
func (s *Session) ViewerID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.viewerID
}
