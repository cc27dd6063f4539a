package models

// EventLevel classifies an authentication event.
type EventLevel string

const (
	EventLogin           EventLevel = "login"
	EventLogout          EventLevel = "logout"
	EventFailed          EventLevel = "failed"
	EventPasswordReset   EventLevel = "password_reset"
	EventReAuthenticated EventLevel = "re-authenticated"
)

// EventLevels lists every supported level.
func EventLevels() []EventLevel {
	return []EventLevel{
		EventLogin,
		EventLogout,
		EventFailed,
		EventPasswordReset,
		EventReAuthenticated,
	}
}

// NormalizeEventLevel maps arbitrary input to a supported level.
// Unrecognized values fall back to login.
func NormalizeEventLevel(value string) EventLevel {
	switch EventLevel(value) {
	case EventLogin, EventLogout, EventFailed, EventPasswordReset, EventReAuthenticated:
		return EventLevel(value)
	default:
		return EventLogin
	}
}

// Label returns the human-readable form of the level.
func (e EventLevel) Label() string {
	switch e {
	case EventLogin:
		return "Login"
	case EventLogout:
		return "Logout"
	case EventFailed:
		return "Failed Login"
	case EventPasswordReset:
		return "Password Reset"
	case EventReAuthenticated:
		return "Re-authenticated"
	default:
		return "Unknown"
	}
}

// IsValid reports whether the value is a supported level.
func (e EventLevel) IsValid() bool {
	switch e {
	case EventLogin, EventLogout, EventFailed, EventPasswordReset, EventReAuthenticated:
		return true
	}
	return false
}
