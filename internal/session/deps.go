package session

import (
	"context"
	"io"
)

// AuthBackend is the auth service the manager drives. Implementations must
// deliver identity snapshots through OnAuthStateChanged one at a time and in
// the order they happened; the first delivery after subscribing is the result
// of the initial resolution.
type AuthBackend interface {
	SetPersistence(ctx context.Context, mode PersistenceMode) error
	// Persistence reports the mode of the token currently held, including
	// one restored at startup.
	Persistence() PersistenceMode
	SignIn(ctx context.Context, email, password string) (*Identity, error)
	SignUp(ctx context.Context, email, password string) (*Identity, error)
	SignOut(ctx context.Context) error
	Reauthenticate(ctx context.Context, email, password string) error
	UpdatePassword(ctx context.Context, newPassword string) error
	UpdateProfile(ctx context.Context, update ProfileUpdate) error
	SendPasswordReset(ctx context.Context, email string) error
	SignInWithPopup(ctx context.Context) (*PopupResult, error)
	SignInWithRedirect(ctx context.Context) error
	OnAuthStateChanged(fn func(*Identity)) (unsubscribe func())
}

// PopupResult is the outcome of an interactive federated sign-in. Window, when
// set, is the handle of the interactive surface and is closed by the manager.
type PopupResult struct {
	Identity *Identity
	Window   io.Closer
}

// RoleStore looks up the per-identity role document.
type RoleStore interface {
	LookupRole(ctx context.Context, identityID string) (role string, found bool, err error)
}

// LocalStore is the device-local key/value store.
type LocalStore interface {
	Get(key string) (string, bool)
	Set(key, value string) error
	Remove(key string) error
}

// ProfileUpdate is a partial profile. Nil fields are left untouched.
type ProfileUpdate struct {
	DisplayName     *string `json:"display_name,omitempty"`
	PhotoURL        *string `json:"photo_url,omitempty"`
	Bio             *string `json:"bio,omitempty"`
	Location        *string `json:"location,omitempty"`
	Website         *string `json:"website,omitempty"`
	BackgroundImage *string `json:"background_image,omitempty"`
}

// Empty reports whether the update carries no fields.
func (u ProfileUpdate) Empty() bool {
	return u.DisplayName == nil && u.PhotoURL == nil && u.Bio == nil &&
		u.Location == nil && u.Website == nil && u.BackgroundImage == nil
}
