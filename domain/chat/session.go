package chat

// SessionID identifies one live transport connection.
type SessionID string

type SessionState int

const (
	SessionConnecting SessionState = iota
	SessionConnected
	SessionAssociated
	SessionDisconnected
)

func (s SessionState) String() string {
	switch s {
	case SessionConnecting:
		return "connecting"
	case SessionConnected:
		return "connected"
	case SessionAssociated:
		return "associated"
	case SessionDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// Session is a connected client, distinct from the user it may join as.
type Session struct {
	ID     SessionID
	UserID string
	State  SessionState
}

// Join associates the session with a user identity.
// A disconnected session never transitions again.
func (s *Session) Join(userID string) bool {
	if s.State == SessionDisconnected {
		return false
	}
	s.UserID = userID
	s.State = SessionAssociated
	return true
}
