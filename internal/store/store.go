package store

import (
	"context"
	"errors"
)

// ErrNotFound is returned when no authorization record exists for a room.
var ErrNotFound = errors.New("room not found")

// RoomAuthorization is the join-time sharing record for one memo. The
// surrounding application owns the memo itself; the sync server only
// reads these three fields to decide admission.
type RoomAuthorization struct {
	RoomID      string
	IsShared    bool
	Password    string // empty means no password is set
	OwnerUserID string
}

// AuthStore looks up room authorization records. Implementations must be
// safe for concurrent use; the hub calls FindRoomAuthorization once per
// join attempt and never writes.
type AuthStore interface {
	FindRoomAuthorization(ctx context.Context, roomID string) (*RoomAuthorization, error)
}

// TitleFinder optionally exposes the memo title for the verify endpoint.
type TitleFinder interface {
	FindRoomTitle(ctx context.Context, roomID string) (string, error)
}
