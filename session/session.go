package session

import (
	"strings"
	"time"

	"github.com/jrsteele09/fixit-auth/internal/errors"
)

// Session is the authenticated credential pair plus the identity it belongs to.
// Values are replaced wholesale, never mutated in place.
type Session struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	UserID       string    `json:"user_id"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// Validate checks the commit invariant: a non-empty access token and user id.
func (s *Session) Validate() error {
	if s == nil {
		return errors.Wrapf(errors.ErrInvalidSession, "nil session")
	}
	if strings.TrimSpace(s.AccessToken) == "" {
		return errors.Wrapf(errors.ErrInvalidSession, "empty access token")
	}
	if strings.TrimSpace(s.UserID) == "" {
		return errors.Wrapf(errors.ErrInvalidSession, "empty user id")
	}
	return nil
}

// Equal reports whether both sessions carry the same credentials for the same user.
func (s *Session) Equal(other *Session) bool {
	if s == nil || other == nil {
		return s == other
	}
	return s.AccessToken == other.AccessToken &&
		s.RefreshToken == other.RefreshToken &&
		s.UserID == other.UserID &&
		s.ExpiresAt.Equal(other.ExpiresAt)
}

// Expired reports whether the access token is past its expiry, minus leeway.
// A zero ExpiresAt never expires.
func (s *Session) Expired(now time.Time, leeway time.Duration) bool {
	if s == nil || s.ExpiresAt.IsZero() {
		return false
	}
	return !now.Add(leeway).Before(s.ExpiresAt)
}

func (s *Session) clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}
