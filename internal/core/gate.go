package core

import (
	"context"
	"errors"
	"time"

	"github.com/knagata/memosync-server/internal/auth"
	"github.com/knagata/memosync-server/internal/store"
)

// lookupTimeout bounds the one external call in the join path.
const lookupTimeout = 5 * time.Second

// admission is the result of an access gate check, posted back into the
// hub run loop once the storage lookup resolves. Membership is never
// mutated before then.
type admission struct {
	sess     *Session
	roomID   string
	username string
	userID   string
	record   *store.RoomAuthorization
	denied   *CoreError
}

// evaluateJoin applies the admission rules, in order, each a terminal
// rejection: record must exist, sharing must be enabled, and a set
// password must match.
func evaluateJoin(rec *store.RoomAuthorization, lookupErr error, suppliedPassword string) *CoreError {
	if lookupErr != nil {
		if errors.Is(lookupErr, store.ErrNotFound) {
			return coreError(ErrCodeRoomNotFound, "room not found")
		}
		return coreError(ErrCodeLookupFailed, "could not check room access")
	}
	if !rec.IsShared {
		return coreError(ErrCodeNotShared, "room is not shared")
	}
	if !auth.MatchRoomPassword(rec.Password, suppliedPassword) {
		return coreError(ErrCodeWrongPassword, "wrong password")
	}
	return nil
}

// checkAccess performs the authorization lookup off the run loop and
// posts the admission back. If the hub shuts down first the result is
// discarded.
func (h *Hub) checkAccess(ctx context.Context, s *Session, cmd *Command) {
	res := admission{
		sess:     s,
		roomID:   cmd.Room,
		username: cmd.Username,
		userID:   cmd.UserID,
	}

	if h.auth == nil {
		res.denied = coreError(ErrCodeLookupFailed, "no authorization store configured")
	} else {
		lookupCtx, cancel := context.WithTimeout(ctx, lookupTimeout)
		rec, err := h.auth.FindRoomAuthorization(lookupCtx, cmd.Room)
		cancel()
		res.record = rec
		res.denied = evaluateJoin(rec, err, cmd.Password)
	}

	select {
	case h.admissions <- res:
	case <-ctx.Done():
	}
}
