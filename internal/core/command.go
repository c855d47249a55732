package core

// CommandKind describes what the client wants to do.
type CommandKind int

const (
	// CommandJoinRoom asks the access gate to admit the session to a room.
	CommandJoinRoom CommandKind = iota
	// CommandLeaveRoom removes the session from its room.
	CommandLeaveRoom
	// CommandCloseRoom stops sharing and evicts every other member.
	CommandCloseRoom
	// CommandTextUpdate relays the full memo text to the other members.
	CommandTextUpdate
	// CommandCanvasUpdate relays a full whiteboard snapshot.
	CommandCanvasUpdate
	// CommandColorUpdate relays a schedule color pick.
	CommandColorUpdate
	// CommandCursorMove relays a pointer position.
	CommandCursorMove
	// CommandRequestSync asks peers for the current shared state.
	CommandRequestSync
	// CommandSyncResponse answers a sync request, addressed to one session.
	CommandSyncResponse
)

// CursorState is the ephemeral pointer position of one session.
type CursorState struct {
	ConnID   string
	UserID   string
	Username string
	X        float64
	Y        float64
	Mode     string
}

// SyncBundle is the full-state snapshot exchanged to bring a new joiner
// up to date. Applied wholesale by the recipient, last writer wins.
type SyncBundle struct {
	Title       string
	Content     string
	CanvasData  string
	Color       string
	Category    string
	Attribution map[string]string
}

// Command represents an action requested by a client.
type Command struct {
	Kind CommandKind
	Room string

	// Join fields.
	Password string
	Username string
	UserID   string

	// Relay payloads; which one is set depends on Kind.
	Content    string
	CanvasData string
	Color      string
	Cursor     *CursorState
	TargetConn string
	Bundle     *SyncBundle
}
