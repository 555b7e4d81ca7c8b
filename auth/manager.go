// Package auth owns the signed-in state: who the user is, which session they
// hold, and the account operations that change either.
//
// Account operations return result values rather than errors: a failed
// login is an expected outcome with a message for the user, not a fault.
// The Manager also reacts to forced logouts detected by the HTTP client by
// dropping every cached query.
package auth

import (
	"context"
	"strings"

	"github.com/itsneelabh/cartshare/api"
	"github.com/itsneelabh/cartshare/client"
	"github.com/itsneelabh/cartshare/core"
	"github.com/itsneelabh/cartshare/session"
)

// User-facing fallback messages
const (
	MsgNotLoggedIn          = "User not logged in"
	MsgLoginFailed          = "Login failed"
	MsgLoginError           = "An error occurred during login"
	MsgLoginInterrupted     = "The session ended while signing in. Please try again."
	MsgRegistrationFailed   = "Registration failed"
	MsgRegistrationError    = "An error occurred during registration"
	MsgChangePasswordFailed = "Failed to change password"
	MsgChangePasswordError  = "An error occurred while changing password"
	MsgChangeUsernameFailed = "Failed to change username"
	MsgChangeUsernameError  = "An error occurred while changing username"
)

// UserAPI is the slice of api.UserService the manager uses.
type UserAPI interface {
	Register(ctx context.Context, req api.CreateUserRequest) (*api.RegisterUserAttemptResponse, error)
	Login(ctx context.Context, req api.LoginRequest) (*api.LoginUserResponse, error)
	ResetPassword(ctx context.Context, req api.UpdatePasswordRequest) (*api.UpdatePasswordResponse, error)
	ChangePassword(ctx context.Context, req api.ChangePasswordRequest) (*api.UpdatePasswordResponse, error)
	ChangeUsername(ctx context.Context, req api.ChangeUsernameRequest) (*api.ChangeUsernameResponse, error)
	CurrentUser(ctx context.Context) (*api.UserResponse, error)
}

// QueryCache is dropped on login, logout and forced logout. *cache.Cache satisfies it.
type QueryCache interface {
	Clear()
}

// Result is the outcome of an account operation.
type Result struct {
	Success bool
	Error   string
}

// RegisterResult carries the one-time recovery code on success.
type RegisterResult struct {
	Success      bool
	RecoveryCode string
	Error        string
}

// Manager is the auth context. It is safe for concurrent use; state lives in
// the session manager.
type Manager struct {
	users    UserAPI
	sessions *session.Manager
	cache    QueryCache
	logger   core.Logger
}

// Option configures a Manager
type Option func(*Manager)

// WithLogger sets the logger
func WithLogger(logger core.Logger) Option {
	return func(m *Manager) {
		m.logger = core.ComponentLogger(logger, "auth")
	}
}

// NewManager creates the auth context over an already hydrated session manager.
func NewManager(users UserAPI, sessions *session.Manager, queryCache QueryCache, opts ...Option) *Manager {
	m := &Manager{
		users:    users,
		sessions: sessions,
		cache:    queryCache,
		logger:   &core.NoOpLogger{},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Watch subscribes to forced logouts from c. The returned function unsubscribes.
func (m *Manager) Watch(c *client.Client) func() {
	return c.OnUnauthenticated(m.handleUnauthenticated)
}

func (m *Manager) handleUnauthenticated(ev client.UnauthenticatedEvent) {
	m.logger.Info("Signed out by the server", map[string]interface{}{
		"reason": ev.Reason,
		"path":   ev.Path,
	})
	m.clearCache()
	// Storage is already clear; this resets anything set since.
	if err := m.sessions.Clear(context.Background()); err != nil {
		m.logger.Error("Failed to clear session after forced logout", map[string]interface{}{
			"error": err.Error(),
		})
	}
}

// User returns a copy of the signed-in user, nil when anonymous.
func (m *Manager) User() *session.User {
	return m.sessions.User()
}

// SessionID returns the current session, "" when anonymous.
func (m *Manager) SessionID() string {
	return m.sessions.SessionID()
}

// IsAuthenticated requires both a user and a session.
func (m *Manager) IsAuthenticated() bool {
	return m.sessions.IsAuthenticated()
}

// Login signs in. Success needs errorCode 1000 or 5002 and a session id.
// The profile comes from /me; when that fails a profile is derived from the
// email so the user is still signed in.
func (m *Manager) Login(ctx context.Context, email, password string) Result {
	m.clearCache()

	resp, err := m.users.Login(ctx, api.LoginRequest{Email: email, Password: password})
	if err != nil {
		m.logger.WarnWithContext(ctx, "Login request failed", map[string]interface{}{
			"error": err.Error(),
		})
		return Result{Error: client.MessageOf(err, MsgLoginError)}
	}

	ok := resp.Code() == client.CodeSuccess || resp.Code() == client.CodeAlreadyLoggedIn
	if !ok || resp.SessionID == "" {
		return Result{Error: messageOr(resp.Message, MsgLoginFailed)}
	}

	if err := m.sessions.SetSession(ctx, resp.SessionID); err != nil {
		m.logger.ErrorWithContext(ctx, "Session will not survive restart", map[string]interface{}{
			"error": err.Error(),
		})
	}

	user := &session.User{ID: resp.SessionID, Email: email, Username: usernameFromEmail(email)}
	if me, err := m.users.CurrentUser(ctx); err == nil && me != nil {
		user = &session.User{ID: me.ID.String(), Email: me.Email, Username: me.Username}
	} else if err != nil {
		m.logger.WarnWithContext(ctx, "Profile fetch failed, using email as profile", map[string]interface{}{
			"error": err.Error(),
		})
	}
	// The profile request can trigger a forced logout.
	if m.sessions.SessionID() != resp.SessionID {
		m.logger.WarnWithContext(ctx, "Session ended during login", nil)
		return Result{Error: MsgLoginInterrupted}
	}
	if err := m.sessions.SetUser(ctx, user); err != nil {
		m.logger.ErrorWithContext(ctx, "User will not survive restart", map[string]interface{}{
			"error": err.Error(),
		})
	}

	m.logger.InfoWithContext(ctx, "Signed in", map[string]interface{}{
		"username": user.Username,
	})
	return Result{Success: true}
}

// Register creates an account. It never signs in.
func (m *Manager) Register(ctx context.Context, email, username, password, confirmation, location string) RegisterResult {
	resp, err := m.users.Register(ctx, api.CreateUserRequest{
		Username:             username,
		Email:                email,
		Password:             password,
		PasswordConfirmation: confirmation,
		Location:             location,
	})
	if err != nil {
		return RegisterResult{Error: client.MessageOf(err, MsgRegistrationError)}
	}

	switch {
	case resp.Code() == client.CodeSuccess && resp.UniqueCode != "":
		return RegisterResult{Success: true, RecoveryCode: resp.UniqueCode}
	case resp.HasCode() && resp.Code() != client.CodeSuccess && resp.Code() != 0:
		return RegisterResult{Error: messageOr(resp.Message, MsgRegistrationFailed)}
	case resp.UniqueCode != "":
		return RegisterResult{Success: true, RecoveryCode: resp.UniqueCode}
	}
	return RegisterResult{Success: true}
}

// Logout drops the query cache and the session. Calling it while signed out
// is harmless.
func (m *Manager) Logout(ctx context.Context) error {
	m.clearCache()
	if err := m.sessions.Clear(ctx); err != nil {
		m.logger.ErrorWithContext(ctx, "Failed to clear stored session", map[string]interface{}{
			"error": err.Error(),
		})
		return err
	}
	return nil
}

// ResetPasswordWithToken sets a new password using a recovery code. Any
// failure reads as false.
func (m *Manager) ResetPasswordWithToken(ctx context.Context, token, newPassword, confirmation string) bool {
	resp, err := m.users.ResetPassword(ctx, api.UpdatePasswordRequest{
		Token:           token,
		NewPassword:     newPassword,
		ConfirmPassword: confirmation,
	})
	if err != nil {
		m.logger.WarnWithContext(ctx, "Password reset failed", map[string]interface{}{
			"error": err.Error(),
		})
		return false
	}
	return resp.Code() == client.CodeSuccess
}

// ChangePassword changes the signed-in user's password.
func (m *Manager) ChangePassword(ctx context.Context, oldPassword, newPassword, confirmation string) Result {
	user := m.sessions.User()
	if user == nil || user.Email == "" {
		return Result{Error: MsgNotLoggedIn}
	}

	resp, err := m.users.ChangePassword(ctx, api.ChangePasswordRequest{
		Email:           user.Email,
		OldPassword:     oldPassword,
		NewPassword:     newPassword,
		ConfirmPassword: confirmation,
	})
	if err != nil {
		return Result{Error: client.MessageOf(err, MsgChangePasswordError)}
	}
	if resp.Code() != client.CodeSuccess {
		return Result{Error: messageOr(resp.Message, MsgChangePasswordFailed)}
	}
	return Result{Success: true}
}

// ChangeUsername renames the signed-in user and updates the stored profile.
func (m *Manager) ChangeUsername(ctx context.Context, currentPassword, newUsername string) Result {
	user := m.sessions.User()
	if user == nil || user.Email == "" {
		return Result{Error: MsgNotLoggedIn}
	}

	resp, err := m.users.ChangeUsername(ctx, api.ChangeUsernameRequest{
		Email:           user.Email,
		CurrentPassword: currentPassword,
		NewUsername:     newUsername,
	})
	if err != nil {
		return Result{Error: client.MessageOf(err, MsgChangeUsernameError)}
	}
	if resp.Code() != client.CodeSuccess {
		return Result{Error: messageOr(resp.Message, MsgChangeUsernameFailed)}
	}

	m.UpdateUser(ctx, session.User{Username: newUsername})
	return Result{Success: true}
}

// UpdateUser merges the non-empty fields of partial into the signed-in user.
// It does nothing while signed out.
func (m *Manager) UpdateUser(ctx context.Context, partial session.User) {
	_, err := m.sessions.UpdateUser(ctx, func(u *session.User) {
		if partial.ID != "" {
			u.ID = partial.ID
		}
		if partial.Email != "" {
			u.Email = partial.Email
		}
		if partial.Username != "" {
			u.Username = partial.Username
		}
	})
	if err != nil {
		m.logger.ErrorWithContext(ctx, "Failed to persist user", map[string]interface{}{
			"error": err.Error(),
		})
	}
}

// RefreshUser reloads the profile from /me when a session exists and
// returns the resulting user. On failure the current user is kept.
func (m *Manager) RefreshUser(ctx context.Context) *session.User {
	if m.sessions.SessionID() == "" {
		return m.sessions.User()
	}
	me, err := m.users.CurrentUser(ctx)
	if err != nil || me == nil {
		if err != nil {
			m.logger.DebugWithContext(ctx, "Profile refresh failed", map[string]interface{}{
				"error": err.Error(),
			})
		}
		return m.sessions.User()
	}
	// A forced logout may have landed while the request was in flight.
	if m.sessions.SessionID() == "" {
		return nil
	}
	user := &session.User{ID: me.ID.String(), Email: me.Email, Username: me.Username}
	if err := m.sessions.SetUser(ctx, user); err != nil {
		m.logger.ErrorWithContext(ctx, "Failed to persist user", map[string]interface{}{
			"error": err.Error(),
		})
	}
	return user.Clone()
}

func (m *Manager) clearCache() {
	if m.cache != nil {
		m.cache.Clear()
	}
}

func messageOr(msg, fallback string) string {
	if msg != "" {
		return msg
	}
	return fallback
}

// usernameFromEmail is the local part of email, or "user" when empty.
func usernameFromEmail(email string) string {
	local, _, _ := strings.Cut(email, "@")
	if local == "" {
		return "user"
	}
	return local
}
