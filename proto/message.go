package proto

import "encoding/json"

// Inbound is the envelope for messages coming from the client.
type Inbound struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

const (
	ProtocolVersion = 1

	// Client -> server.
	TypeJoinRequest  = "join-request"
	TypeLeaveRoom    = "leave-room"
	TypeCloseRoom    = "close-room"
	TypeTextUpdate   = "text-update"
	TypeCanvasUpdate = "canvas-update"
	TypeColorUpdate  = "color-update"
	TypeCursorMove   = "cursor-move"
	TypeRequestSync  = "request-sync"
	TypeSyncResponse = "sync-response"

	// Server -> client only.
	TypeRoomCountsUpdate = "room-counts-update"
	TypeRoomUsersUpdate  = "room-users-update"
	TypeJoinSuccess      = "join-success"
	TypeJoinFailed       = "join-failed"
	TypeRoomClosed       = "room-closed"
	TypeError            = "error"
)

// JoinRequestData asks to enter a room. Identity fields are optional;
// a verified connection token takes precedence over them.
type JoinRequestData struct {
	RoomID   string `json:"roomId"`
	Password string `json:"password,omitempty"`
	Username string `json:"username,omitempty"`
	UserID   string `json:"userId,omitempty"`
}

// RoomRefData carries just a room id (leave-room, close-room, request-sync).
type RoomRefData struct {
	RoomID string `json:"roomId"`
}

// TextUpdateData carries the full current text content of the memo.
type TextUpdateData struct {
	RoomID  string `json:"roomId,omitempty"`
	Content string `json:"content"`
	UserID  string `json:"userId,omitempty"`
}

// CanvasUpdateData carries a full serialized whiteboard snapshot.
type CanvasUpdateData struct {
	RoomID     string `json:"roomId,omitempty"`
	CanvasData string `json:"canvasData"`
}

// ColorUpdateData carries the picked schedule color token.
type ColorUpdateData struct {
	RoomID string `json:"roomId,omitempty"`
	Color  string `json:"color"`
}

// CursorMoveData is a pointer position report. Outbound copies include
// the sender's identity so peers can label the cursor overlay.
type CursorMoveData struct {
	RoomID       string  `json:"roomId,omitempty"`
	ConnectionID string  `json:"connectionId,omitempty"`
	UserID       string  `json:"userId,omitempty"`
	Username     string  `json:"username,omitempty"`
	X            float64 `json:"x"`
	Y            float64 `json:"y"`
	Mode         string  `json:"mode,omitempty"`
}

// SyncBundle is the full-state snapshot that brings a new joiner up to date.
type SyncBundle struct {
	Title       string            `json:"title"`
	Content     string            `json:"content"`
	CanvasData  string            `json:"canvasData"`
	Color       string            `json:"color"`
	Category    string            `json:"category"`
	Attribution map[string]string `json:"attribution,omitempty"`
}

// SyncResponseData is a sync bundle addressed to one requester.
type SyncResponseData struct {
	TargetID string `json:"targetId,omitempty"`
	SyncBundle
}

// RequestSyncData identifies the session asking for state.
type RequestSyncData struct {
	RequesterID string `json:"requesterId"`
}

// RoomCountsData maps room id to live participant count. Rooms with no
// members are omitted.
type RoomCountsData struct {
	Counts map[string]int `json:"counts"`
}

// RoomUser identifies one participant in a room-users-update.
type RoomUser struct {
	ConnectionID string `json:"connectionId"`
	Username     string `json:"username"`
	UserID       string `json:"userId"`
}

// RoomUsersData lists everyone currently in a room.
type RoomUsersData struct {
	RoomID string     `json:"roomId"`
	Users  []RoomUser `json:"users"`
}

// JoinSuccessData confirms admission into a room.
type JoinSuccessData struct {
	RoomID string `json:"roomId"`
}

// JoinFailedData reports a terminal join rejection.
type JoinFailedData struct {
	RoomID string `json:"roomId,omitempty"`
	Code   string `json:"code,omitempty"`
	Reason string `json:"reason"`
}

// RoomClosedData notifies members that the owner stopped sharing.
type RoomClosedData struct {
	RoomID string `json:"roomId"`
}

// Outbound is the envelope for messages sent to the client.
type Outbound struct {
	Type  string `json:"type"`
	Data  any    `json:"data,omitempty"`
	Error *Error `json:"error,omitempty"`
}

// Error describes a protocol-level error response.
type Error struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
}
