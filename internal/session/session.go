// Package session holds the signed-in identity for the lifetime of a login.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"campusbook/internal/api"
	"campusbook/internal/models"
)

// Session is an immutable snapshot of the signed-in user.
type Session struct {
	User models.User
}

func (s *Session) UserID() int64 {
	if s == nil {
		return 0
	}
	return s.User.ID
}

// Authenticated reports whether s carries a user.
func (s *Session) Authenticated() bool {
	return s != nil && s.User.ID != 0
}

func (s *Session) IsAdmin() bool {
	return s.Authenticated() && s.User.Role == models.RoleAdmin
}

// Require returns api.ErrUnauthorized for a missing session.
func Require(s *Session) error {
	if !s.Authenticated() {
		return fmt.Errorf("login required: %w", api.ErrUnauthorized)
	}
	return nil
}

// RequireAdmin returns api.ErrForbidden for non-admin sessions.
func RequireAdmin(s *Session) error {
	if err := Require(s); err != nil {
		return err
	}
	if !s.IsAdmin() {
		return fmt.Errorf("admin role required: %w", api.ErrForbidden)
	}
	return nil
}

// Authenticator is the backend part of login/signup.
type Authenticator interface {
	Login(ctx context.Context, creds api.Credentials) (*models.User, error)
	Signup(ctx context.Context, req api.SignupRequest) (*models.User, error)
}

var ErrInvalidCredentials = errors.New("email and password are required")

// Manager populates the session at login and clears it at logout.
type Manager struct {
	auth   Authenticator
	logger zerolog.Logger

	mu      sync.RWMutex
	current *Session
}

func NewManager(auth Authenticator, logger zerolog.Logger) *Manager {
	return &Manager{auth: auth, logger: logger.With().Str("component", "session").Logger()}
}

// Login authenticates and stores the session. The role requested by the
// caller is kept when the backend does not report one.
func (m *Manager) Login(ctx context.Context, email, password string, role models.Role) (*Session, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return nil, ErrInvalidCredentials
	}

	user, err := m.auth.Login(ctx, api.Credentials{Email: email, Password: password})
	if err != nil {
		return nil, err
	}
	if user.Role == "" {
		user.Role = role
	}
	if user.Role == "" {
		user.Role = models.RoleStudent
	}

	return m.set(*user), nil
}

// Signup registers and signs in.
func (m *Manager) Signup(ctx context.Context, req api.SignupRequest) (*Session, error) {
	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" || req.Password == "" {
		return nil, ErrInvalidCredentials
	}

	user, err := m.auth.Signup(ctx, req)
	if err != nil {
		return nil, err
	}
	return m.set(*user), nil
}

// Restore installs a previously obtained user without a backend round-trip.
func (m *Manager) Restore(user models.User) *Session {
	return m.set(user)
}

func (m *Manager) set(user models.User) *Session {
	s := &Session{User: user}
	m.mu.Lock()
	m.current = s
	m.mu.Unlock()

	m.logger.Info().Int64("user_id", user.ID).Str("role", string(user.Role)).Msg("signed in")
	return s
}

// Logout clears the session.
func (m *Manager) Logout() {
	m.mu.Lock()
	prev := m.current
	m.current = nil
	m.mu.Unlock()

	if prev != nil {
		m.logger.Info().Int64("user_id", prev.User.ID).Msg("signed out")
	}
}

// Current returns the active session or nil.
func (m *Manager) Current() *Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}
