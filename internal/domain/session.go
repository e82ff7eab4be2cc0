package domain

// SessionState represents where the session is in its lifecycle
type SessionState string

const (
	SessionAnonymous      SessionState = "ANONYMOUS"
	SessionAuthenticating SessionState = "AUTHENTICATING"
	SessionAuthenticated  SessionState = "AUTHENTICATED"
	SessionRefreshPending SessionState = "REFRESH_PENDING"
)

// String representation (for logging)
func (s SessionState) String() string {
	return string(s)
}

// Session is a read-only snapshot of the authenticated identity.
type Session struct {
	User         *User
	AccessToken  string
	RefreshToken string
}

// IsAuthenticated is true iff a user is present. Token presence is not
// checked: a transient mismatch is tolerated until the next expiry check.
func (s Session) IsAuthenticated() bool {
	return s.User != nil
}
