package session

import (
	"context"
	"errors"
	"fmt"

	"kidchat/internal/client"
	"kidchat/internal/core"
	"kidchat/internal/storage"
)

var ErrNoResetInProgress = errors.New("no password reset in progress")

// RequestChildReset asks the backend to send a recovery code for a child
// account and remembers the username for the verification step
func (m *Manager) RequestChildReset(ctx context.Context, username string) error {
	if _, err := m.requireAuth().ForgotPasswordChild(ctx, username); err != nil {
		return err
	}
	return m.rememberResetIdentifier(ctx, storage.KeyResetUsername, username)
}

// RequestParentReset asks the backend to email a recovery code to a parent
func (m *Manager) RequestParentReset(ctx context.Context, email string) error {
	if _, err := m.requireAuth().ForgotPasswordParent(ctx, email); err != nil {
		return err
	}
	return m.rememberResetIdentifier(ctx, storage.KeyResetEmail, email)
}

// VerifyReset submits the recovery code with the new password. The stored
// identifier is dropped only after the backend accepts it, so a wrong code
// can be retried.
func (m *Manager) VerifyReset(ctx context.Context, otp, newPassword string) error {
	username, _, err := m.store.Get(ctx, storage.KeyResetUsername)
	if err != nil {
		return err
	}
	email, _, err := m.store.Get(ctx, storage.KeyResetEmail)
	if err != nil {
		return err
	}
	if username == "" && email == "" {
		return ErrNoResetInProgress
	}

	req := client.VerifyForgotPasswordRequest{
		Username:    username,
		Email:       email,
		OTP:         otp,
		NewPassword: newPassword,
	}
	if _, err := m.requireAuth().VerifyForgotPassword(ctx, req); err != nil {
		return err
	}

	if err := m.store.MultiRemove(ctx, storage.ResetKeys); err != nil {
		m.logger.Warn("failed to clear reset context", "error", err)
	}
	m.logger.Info("password reset verified")
	return nil
}

// ChangeParentPassword changes the password of the logged-in parent
func (m *Manager) ChangeParentPassword(ctx context.Context, oldPassword, newPassword string) error {
	session, err := m.readSession(ctx)
	if err != nil {
		return err
	}
	if session.Role != core.RoleParent || session.ParentID == 0 {
		return ErrNotParent
	}

	_, err = m.requireAuth().ChangeParentPassword(ctx, client.ChangeParentPasswordRequest{
		ParentID:    session.ParentID,
		OldPassword: oldPassword,
		NewPassword: newPassword,
	})
	return err
}

// rememberResetIdentifier stores one identifier and drops the other so the
// verification step never mixes a child and a parent reset
func (m *Manager) rememberResetIdentifier(ctx context.Context, key, value string) error {
	if err := m.store.Set(ctx, key, value); err != nil {
		return fmt.Errorf("failed to store reset context: %w", err)
	}
	other := storage.KeyResetEmail
	if key == storage.KeyResetEmail {
		other = storage.KeyResetUsername
	}
	if err := m.store.Remove(ctx, other); err != nil {
		return fmt.Errorf("failed to store reset context: %w", err)
	}
	return nil
}

func (m *Manager) requireAuth() Authenticator {
	if m.auth == nil {
		return noAuthenticator{}
	}
	return m.auth
}

var errNoAuthenticator = errors.New("session manager has no authenticator")

// noAuthenticator fails every call; used when the manager was built without
// a backend client
type noAuthenticator struct{}

func (noAuthenticator) ChildLogin(context.Context, string, string) (*client.LoginResponse, error) {
	return nil, errNoAuthenticator
}

func (noAuthenticator) ParentLogin(context.Context, string, string) (*client.LoginResponse, error) {
	return nil, errNoAuthenticator
}

func (noAuthenticator) ForgotPasswordChild(context.Context, string) (*client.MessageResponse, error) {
	return nil, errNoAuthenticator
}

func (noAuthenticator) ForgotPasswordParent(context.Context, string) (*client.MessageResponse, error) {
	return nil, errNoAuthenticator
}

func (noAuthenticator) VerifyForgotPassword(context.Context, client.VerifyForgotPasswordRequest) (*client.MessageResponse, error) {
	return nil, errNoAuthenticator
}

func (noAuthenticator) ChangeParentPassword(context.Context, client.ChangeParentPasswordRequest) (*client.MessageResponse, error) {
	return nil, errNoAuthenticator
}
