// Package guard decides whether a navigation target may render for the
// current session, or where to send the viewer instead.
package guard

import "github.com/soulnet-app/soulnet/internal/session"

// Redirect targets.
const (
	SignInPath = "/sign"
	HomePath   = "/"
)

// Outcome is the result class of a guard decision.
type Outcome int

const (
	// Pending means the session is still resolving; show a placeholder and
	// do not redirect.
	Pending Outcome = iota
	// DeniedUnauthenticated sends the viewer to sign in, remembering where
	// they wanted to go.
	DeniedUnauthenticated
	// DeniedNotAdmin sends the viewer home without a way back.
	DeniedNotAdmin
	// Allowed renders the target.
	Allowed
)

func (o Outcome) String() string {
	switch o {
	case Pending:
		return "pending"
	case DeniedUnauthenticated:
		return "denied-unauthenticated"
	case DeniedNotAdmin:
		return "denied-not-admin"
	case Allowed:
		return "allowed"
	default:
		return "unknown"
	}
}

// Requirement is what a route declares about its audience.
type Requirement struct {
	RequireAuth  bool
	RequireAdmin bool
}

// Viewer is the part of the session the guard looks at.
type Viewer struct {
	Loading       bool
	Authenticated bool
	Admin         bool
}

// ViewerFromState projects a session snapshot onto a Viewer.
func ViewerFromState(s session.State) Viewer {
	return Viewer{
		Loading:       s.Loading,
		Authenticated: s.Authenticated(),
		Admin:         s.IsAdmin(),
	}
}

// Decision is computed per navigation attempt and never stored.
type Decision struct {
	Outcome    Outcome
	RedirectTo string
	// From is the originally requested path, set only when signing in should
	// return the viewer there.
	From string
}

// Redirects reports whether the decision navigates elsewhere.
func (d Decision) Redirects() bool {
	return d.RedirectTo != ""
}

// Decide evaluates, in order: pending, authentication, admin, allow. An
// anonymous viewer on an admin route is therefore sent to sign in, not home.
func Decide(v Viewer, req Requirement, requestedPath string) Decision {
	if v.Loading {
		return Decision{Outcome: Pending}
	}
	if req.RequireAuth && !v.Authenticated {
		return Decision{Outcome: DeniedUnauthenticated, RedirectTo: SignInPath, From: requestedPath}
	}
	if req.RequireAdmin && !v.Admin {
		return Decision{Outcome: DeniedNotAdmin, RedirectTo: HomePath}
	}
	return Decision{Outcome: Allowed}
}
