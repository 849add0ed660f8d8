// Package auth holds the logged-in user's credentials and keeps the REST
// client's bearer token in step with them.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"github.com/robertguss/rxflow-go/internal/client"
)

// SessionFileName is the credentials file kept in the data directory
const SessionFileName = "session.json"

// ErrNoToken is returned when the backend accepts a login without issuing a token
var ErrNoToken = errors.New("login response did not include a token")

// User is the authenticated operator
type User struct {
	Username string `json:"username"`
	Role     string `json:"role"`
	Token    string `json:"token"`
}

// Credentials are what the login form submits
type Credentials struct {
	Username string `validate:"required,max=64"`
	Password string `validate:"required"`
}

// Backend is the part of the REST client auth needs
type Backend interface {
	Login(ctx context.Context, username, password string) (*client.LoginResponse, error)
	SetToken(token string)
	OnUnauthorized(fn func())
}

// Session tracks the current user
type Session struct {
	backend  Backend
	path     string
	logger   *logrus.Entry
	validate *validator.Validate

	mu        sync.RWMutex
	user      *User
	listeners []func()
}

// NewSession creates a session bound to backend. When dataDir is non-empty
// credentials are persisted there between runs.
func NewSession(backend Backend, dataDir string, logger *logrus.Entry) *Session {
	if logger == nil {
		logger = logrus.WithField("module", "auth")
	}

	s := &Session{
		backend:  backend,
		logger:   logger,
		validate: validator.New(),
	}
	if dataDir != "" {
		s.path = filepath.Join(dataDir, SessionFileName)
	}

	backend.OnUnauthorized(s.invalidate)
	return s
}

// Login authenticates with the backend and stores the token
func (s *Session) Login(ctx context.Context, username, password string) error {
	creds := Credentials{Username: username, Password: password}
	if err := s.validate.Struct(creds); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fmt.Errorf("%s is %s", verrs[0].Field(), verrs[0].Tag())
		}
		return err
	}

	resp, err := s.backend.Login(ctx, username, password)
	if err != nil {
		return fmt.Errorf("login failed: %w", err)
	}
	if resp.Token == "" {
		return ErrNoToken
	}

	user := &User{Username: username, Role: resp.Role, Token: resp.Token}
	if resp.Username != "" {
		user.Username = resp.Username
	}

	s.mu.Lock()
	s.user = user
	s.mu.Unlock()

	s.backend.SetToken(user.Token)
	if err := s.persist(user); err != nil {
		s.logger.WithError(err).Warn("Failed to persist session")
	}

	s.logger.WithFields(logrus.Fields{"user": user.Username, "role": user.Role}).Info("Logged in")
	return nil
}

// Restore loads persisted credentials, returning false when none exist
func (s *Session) Restore() (bool, error) {
	if s.path == "" {
		return false, nil
	}

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read session: %w", err)
	}

	var user User
	if err := json.Unmarshal(data, &user); err != nil {
		return false, fmt.Errorf("failed to parse session: %w", err)
	}
	if user.Token == "" {
		return false, nil
	}

	s.mu.Lock()
	s.user = &user
	s.mu.Unlock()

	s.backend.SetToken(user.Token)
	return true, nil
}

// Logout forgets the user and removes persisted credentials
func (s *Session) Logout() {
	s.mu.Lock()
	s.user = nil
	s.mu.Unlock()

	s.backend.SetToken("")
	s.forget()
}

// IsAuthenticated returns true while a user is logged in
func (s *Session) IsAuthenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user != nil
}

// User returns a copy of the current user, or nil
func (s *Session) User() *User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return nil
	}
	u := *s.user
	return &u
}

// Role returns the current user's role, or "" when logged out
func (s *Session) Role() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return ""
	}
	return s.user.Role
}

// HasSavedSession reports whether persisted credentials exist
func (s *Session) HasSavedSession() bool {
	if s.path == "" {
		return false
	}
	_, err := os.Stat(s.path)
	return err == nil
}

// OnInvalidated registers fn to run when the backend rejects the token
func (s *Session) OnInvalidated(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// invalidate runs when the client sees a 401
func (s *Session) invalidate() {
	s.mu.Lock()
	wasAuthenticated := s.user != nil
	s.user = nil
	listeners := make([]func(), len(s.listeners))
	copy(listeners, s.listeners)
	s.mu.Unlock()

	s.forget()
	if !wasAuthenticated {
		return
	}

	s.logger.Warn("Session expired, logged out")
	for _, fn := range listeners {
		fn()
	}
}

func (s *Session) persist(user *User) error {
	if s.path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return err
	}
	data, err := json.Marshal(user)
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, data, 0600)
}

func (s *Session) forget() {
	if s.path == "" {
		return
	}
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		s.logger.WithError(err).Warn("Failed to remove persisted session")
	}
}
