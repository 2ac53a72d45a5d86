package auth

// SessionData represents the authenticated session context for a request
type SessionData struct {
	UserID      string `json:"user_id"`
	Email       string `json:"email"`
	Role        string `json:"role"`
	SessionID   string `json:"session_id"`
	Persistence string `json:"persistence"`
	AuthMethod  string `json:"auth_method"` // "password", "google"
}

// IsAdmin reports whether the request runs with admin rights.
func (s *SessionData) IsAdmin() bool {
	return s.Role == "admin"
}
