package session

import (
	"context"
	"strconv"
)

// Register creates a backend identity and then sets its display name. The
// caller must not assume it is signed in afterwards; the subscription decides.
func (m *Manager) Register(ctx context.Context, email, password, displayName string) (*Identity, error) {
	identity, err := m.auth.SignUp(ctx, email, password)
	if err != nil {
		return nil, m.authFail(err)
	}

	if displayName != "" {
		if err := m.auth.UpdateProfile(ctx, ProfileUpdate{DisplayName: &displayName}); err != nil {
			return nil, m.authFail(err)
		}
		if identity != nil {
			identity.DisplayName = displayName
		}
	}

	m.logger.Info().Str("email", email).Msg("Registered new identity")
	m.succeed()
	return identity, nil
}

// Login selects the persistence mode and only then exchanges credentials.
// The returned identity is informational; state follows the subscription.
func (m *Manager) Login(ctx context.Context, email, password string, rememberMe bool) (*Identity, error) {
	if err := m.selectPersistence(ctx, rememberMe); err != nil {
		return nil, err
	}

	identity, err := m.auth.SignIn(ctx, email, password)
	if err != nil {
		return nil, m.authFail(err)
	}

	m.succeed()
	return identity, nil
}

// LoginWithFederatedProvider runs the interactive federated sign-in. When the
// interactive surface is blocked it falls back to the redirect flow and
// returns a nil identity; the outcome then arrives through the subscription.
func (m *Manager) LoginWithFederatedProvider(ctx context.Context, rememberMe bool) (*Identity, error) {
	if err := m.selectPersistence(ctx, rememberMe); err != nil {
		return nil, err
	}

	result, err := m.auth.SignInWithPopup(ctx)
	if err != nil {
		mapped := MapAuthError(err)
		if mapped.Kind != AuthPopupBlocked {
			return nil, m.fail(mapped)
		}

		m.logger.Info().Msg("Interactive sign-in blocked, falling back to redirect flow")
		if err := m.auth.SignInWithRedirect(ctx); err != nil {
			return nil, m.authFail(err)
		}
		m.succeed()
		return nil, nil
	}

	if result.Window != nil {
		if err := result.Window.Close(); err != nil {
			m.logger.Debug().Err(err).Msg("Failed to close sign-in window")
		}
	}

	m.succeed()
	return result.Identity, nil
}

// Logout signs out and resets the role. Signing out while already signed out
// is not an error here; backend failures still propagate.
func (m *Manager) Logout(ctx context.Context) error {
	if err := m.auth.SignOut(ctx); err != nil {
		return m.authFail(err)
	}

	m.dispatch(SignedOut{}, m.mirrorIdentity)
	m.succeed()
	return nil
}

// Reauthenticate checks currentPassword against the live identity.
func (m *Manager) Reauthenticate(ctx context.Context, currentPassword string) error {
	identity := m.State().Identity
	if identity == nil {
		return m.fail(&AuthError{Kind: AuthNoCurrentUser})
	}

	if err := m.auth.Reauthenticate(ctx, identity.Email, currentPassword); err != nil {
		return m.authFail(err)
	}
	return nil
}

// UpdatePassword reauthenticates and only then applies newPassword.
func (m *Manager) UpdatePassword(ctx context.Context, currentPassword, newPassword string) error {
	if m.State().Identity == nil {
		return m.fail(&AuthError{Kind: AuthNoCurrentUser})
	}

	if err := m.Reauthenticate(ctx, currentPassword); err != nil {
		return err
	}

	if err := m.auth.UpdatePassword(ctx, newPassword); err != nil {
		return m.authFail(err)
	}

	m.logger.Info().Msg("Password updated")
	m.succeed()
	return nil
}

// UpdateProfile merges update into the backend profile of the current
// identity.
func (m *Manager) UpdateProfile(ctx context.Context, update ProfileUpdate) error {
	if m.State().Identity == nil {
		return m.fail(&ProfileError{Kind: ProfileNotAuthenticated})
	}

	if err := m.auth.UpdateProfile(ctx, update); err != nil {
		return m.fail(&ProfileError{Kind: ProfileBackendWriteFailure, Err: err})
	}

	m.succeed()
	return nil
}

// ResetPasswordByEmail asks the backend to send a reset message. Success
// means the request was accepted, not that anything was delivered.
func (m *Manager) ResetPasswordByEmail(ctx context.Context, email string) error {
	if err := m.auth.SendPasswordReset(ctx, email); err != nil {
		return m.authFail(err)
	}
	m.succeed()
	return nil
}

// ToggleSidebar flips the sidebar preference and writes it to the local
// store before returning.
func (m *Manager) ToggleSidebar() (bool, error) {
	var persistErr error
	next := m.dispatch(SidebarToggled{}, func(s State) {
		persistErr = m.local.Set(KeySidebarCollapsed, strconv.FormatBool(s.SidebarCollapsed))
	})
	if persistErr != nil {
		m.logger.Warn().Err(persistErr).Msg("Failed to persist sidebar preference")
	}
	return next.SidebarCollapsed, persistErr
}

func (m *Manager) selectPersistence(ctx context.Context, rememberMe bool) error {
	mode := PersistenceFor(rememberMe)
	if err := m.auth.SetPersistence(ctx, mode); err != nil {
		m.logger.Error().Err(err).Str("mode", string(mode)).Msg("Failed to set persistence")
		return m.authFail(err)
	}
	m.dispatch(PersistenceSelected{Mode: mode})
	return nil
}
