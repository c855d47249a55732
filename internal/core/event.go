package core

// EventKind is a notification the core emits to sessions.
type EventKind int

const (
	// EventRoomCounts carries the global room participant counts.
	EventRoomCounts EventKind = iota
	// EventRoomUsers lists everyone currently in the session's room.
	EventRoomUsers
	// EventJoinSuccess confirms admission into a room.
	EventJoinSuccess
	// EventJoinFailed reports a terminal join rejection.
	EventJoinFailed
	// EventTextUpdate delivers the full memo text from a peer.
	EventTextUpdate
	// EventCanvasUpdate delivers a full whiteboard snapshot from a peer.
	EventCanvasUpdate
	// EventColorUpdate delivers a schedule color pick from a peer.
	EventColorUpdate
	// EventCursorMove delivers a peer's pointer position.
	EventCursorMove
	// EventRequestSync asks the session to answer with current state.
	EventRequestSync
	// EventSyncResponse delivers a full state bundle to a requester.
	EventSyncResponse
	// EventRoomClosed notifies members that the owner stopped sharing.
	EventRoomClosed
	// EventError notifies the session about a domain error.
	EventError
)

// Member identifies one participant in a presence listing.
type Member struct {
	ConnID   string
	Username string
	UserID   string
}

// Event is sent to sessions to describe what happened in the system.
type Event struct {
	Kind EventKind
	Room string

	Counts map[string]int
	Users  []Member

	Content    string
	FromUserID string
	CanvasData string
	Color      string
	Cursor     *CursorState

	RequesterID string
	Bundle      *SyncBundle

	Error *CoreError
}
