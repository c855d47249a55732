package core

// Session is one connected participant as seen by the core layer.
//
// ConnID is stable for the lifetime of the connection; UserID and Name
// are the account identity, either verified by the transport from a
// connection token or self-reported at join time. The current room is
// owned by the hub run loop and never touched elsewhere.
type Session struct {
	ConnID string
	UserID string
	Name   string

	// IdentityVerified is set by the transport when UserID/Name came from
	// a validated token. Join requests then cannot override them.
	IdentityVerified bool

	Commands chan *Command
	Events   chan *Event

	// room is the id of the session's current room, empty when idle.
	// Mutated only inside Hub.Run.
	room string
}

// NewSession constructs a session with initialized channels.
func NewSession(connID, name string) *Session {
	if name == "" {
		name = connID
	}
	return &Session{
		ConnID:   connID,
		Name:     name,
		Commands: make(chan *Command, 8),
		Events:   make(chan *Event, 32),
	}
}
