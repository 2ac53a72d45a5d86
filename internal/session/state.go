// Package session owns the client-side authentication lifecycle: who the
// current identity is, which role it holds, and the UI preferences that live
// next to it. A Manager is the only writer of that state; everything else
// reads snapshots or subscribes to changes.
package session

// Role is the authorization tier of the current session.
type Role string

const (
	RoleUnauthenticated Role = "unauthenticated"
	RoleUser            Role = "user"
	RoleAdmin           Role = "admin"
)

// PersistenceMode controls how long the backend token survives.
type PersistenceMode string

const (
	// PersistenceSession keeps the token only for the current login session.
	PersistenceSession PersistenceMode = "session"
	// PersistenceDurable keeps the token across restarts.
	PersistenceDurable PersistenceMode = "durable"
)

// PersistenceFor maps the "remember me" choice to a persistence mode.
func PersistenceFor(rememberMe bool) PersistenceMode {
	if rememberMe {
		return PersistenceDurable
	}
	return PersistenceSession
}

// Identity is the authenticated user record delivered by the auth backend.
type Identity struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Email       string `json:"email"`
	PhotoURL    string `json:"photo_url,omitempty"`
}

// Phase is the position of a State in the identity/role state machine.
type Phase int

const (
	PhaseResolving Phase = iota
	PhaseAnonymous
	PhaseUser
	PhaseAdmin
)

func (p Phase) String() string {
	switch p {
	case PhaseResolving:
		return "resolving"
	case PhaseAnonymous:
		return "anonymous"
	case PhaseUser:
		return "authenticated(user)"
	case PhaseAdmin:
		return "authenticated(admin)"
	default:
		return "unknown"
	}
}

// State is an immutable snapshot of the session. The Manager hands out copies;
// mutating a copy has no effect on the manager.
type State struct {
	Identity         *Identity
	Role             Role
	Loading          bool
	LastError        error
	SidebarCollapsed bool
	Persistence      PersistenceMode
}

func initialState(sidebarCollapsed bool) State {
	return State{
		Role:             RoleUnauthenticated,
		Loading:          true,
		SidebarCollapsed: sidebarCollapsed,
		Persistence:      PersistenceSession,
	}
}

// Phase derives the state machine position from the snapshot.
func (s State) Phase() Phase {
	switch {
	case s.Loading:
		return PhaseResolving
	case s.Identity == nil:
		return PhaseAnonymous
	case s.Role == RoleAdmin:
		return PhaseAdmin
	default:
		return PhaseUser
	}
}

// Authenticated reports whether an identity is present.
func (s State) Authenticated() bool {
	return s.Identity != nil
}

// IsAdmin reports whether the resolved role is admin.
func (s State) IsAdmin() bool {
	return s.Identity != nil && s.Role == RoleAdmin
}

// HasRole reports whether the session satisfies the required role. Admin
// satisfies every role.
func (s State) HasRole(required Role) bool {
	if s.Identity == nil {
		return required == RoleUnauthenticated
	}
	return s.Role == required || s.Role == RoleAdmin
}
