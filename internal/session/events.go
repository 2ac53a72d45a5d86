package session

// Event is an input to the session state machine.
type Event interface {
	sessionEvent()
}

// IdentityChanged is delivered by the auth backend subscription. A nil
// Identity means no one is signed in.
type IdentityChanged struct {
	Identity *Identity
}

// RoleResolved carries the outcome of a role lookup for IdentityID.
type RoleResolved struct {
	IdentityID string
	Role       Role
}

// SignedOut is raised after an explicit logout succeeded.
type SignedOut struct{}

// PersistenceSelected records the persistence mode chosen at login.
type PersistenceSelected struct {
	Mode PersistenceMode
}

// SidebarToggled flips the sidebar preference.
type SidebarToggled struct{}

// ErrorRaised records the last operation failure. A nil Err clears it.
type ErrorRaised struct {
	Err error
}

func (IdentityChanged) sessionEvent()     {}
func (RoleResolved) sessionEvent()        {}
func (SignedOut) sessionEvent()           {}
func (PersistenceSelected) sessionEvent() {}
func (SidebarToggled) sessionEvent()      {}
func (ErrorRaised) sessionEvent()         {}

// Transition is the pure state machine step.
func Transition(s State, e Event) State {
	switch ev := e.(type) {
	case IdentityChanged:
		s.Loading = false
		if ev.Identity == nil {
			s.Identity = nil
			s.Role = RoleUnauthenticated
			return s
		}
		id := *ev.Identity
		sameIdentity := s.Identity != nil && s.Identity.ID == id.ID
		s.Identity = &id
		// A new identity always starts provisional; admin is only reachable
		// through a RoleResolved for that identity.
		if !sameIdentity || s.Role == RoleUnauthenticated {
			s.Role = RoleUser
		}
		return s

	case RoleResolved:
		if s.Identity == nil || s.Identity.ID != ev.IdentityID {
			return s
		}
		if ev.Role == RoleAdmin {
			s.Role = RoleAdmin
		} else {
			s.Role = RoleUser
		}
		return s

	case SignedOut:
		s.Identity = nil
		s.Role = RoleUnauthenticated
		return s

	case PersistenceSelected:
		s.Persistence = ev.Mode
		return s

	case SidebarToggled:
		s.SidebarCollapsed = !s.SidebarCollapsed
		return s

	case ErrorRaised:
		s.LastError = ev.Err
		return s
	}
	return s
}
