package core

import (
	"sync"
	"time"
)

// Role controls what a session may change.
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleEditor Role = "editor"
	RoleViewer Role = "viewer"
)

// ValidRole reports whether r is a known role.
func ValidRole(r Role) bool {
	switch r {
	case RoleAdmin, RoleEditor, RoleViewer:
		return true
	}
	return false
}

// Session identifies the signed-in user for one sign-in lifetime.
// It is created at sign-in, passed explicitly to every service call,
// and ended at sign-out. Ended or expired sessions are rejected.
type Session struct {
	UserID    string
	Email     string
	Role      Role
	ExpiresAt time.Time

	mu    sync.Mutex
	ended bool
}

// NewSession starts a session. A zero expiresAt never expires.
func NewSession(userID, email string, role Role, expiresAt time.Time) *Session {
	if !ValidRole(role) {
		role = RoleViewer
	}
	return &Session{
		UserID:    userID,
		Email:     email,
		Role:      role,
		ExpiresAt: expiresAt,
	}
}

// End closes the session. Further calls using it fail with ErrSessionEnded.
func (s *Session) End() {
	s.mu.Lock()
	s.ended = true
	s.mu.Unlock()
}

// Check returns nil if the session can still be used at now.
func (s *Session) Check(now time.Time) error {
	if s == nil {
		return ErrNoSession
	}
	s.mu.Lock()
	ended := s.ended
	s.mu.Unlock()
	if ended {
		return ErrSessionEnded
	}
	if !s.ExpiresAt.IsZero() && now.After(s.ExpiresAt) {
		return ErrSessionEnded
	}
	return nil
}

// CanWrite reports whether the session may mutate tracking data.
func (s *Session) CanWrite() bool {
	return s != nil && (s.Role == RoleAdmin || s.Role == RoleEditor)
}

// IsAdmin reports whether the session may manage users and reports.
func (s *Session) IsAdmin() bool {
	return s != nil && s.Role == RoleAdmin
}

// userID is nil-safe for activity logging.
func (s *Session) userID() string {
	if s == nil {
		return ""
	}
	return s.UserID
}
