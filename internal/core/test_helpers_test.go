package core

import (
	"context"
	"testing"
	"time"

	"github.com/knagata/memosync-server/internal/store"
)

// fakeAuthStore serves authorization records from a map.
type fakeAuthStore struct {
	recs map[string]*store.RoomAuthorization
	err  error
}

func (f *fakeAuthStore) FindRoomAuthorization(_ context.Context, roomID string) (*store.RoomAuthorization, error) {
	if f.err != nil {
		return nil, f.err
	}
	rec, ok := f.recs[roomID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return rec, nil
}

func sharedRoom(id, password, owner string) *store.RoomAuthorization {
	return &store.RoomAuthorization{RoomID: id, IsShared: true, Password: password, OwnerUserID: owner}
}

func mustEvent(t *testing.T, ch <-chan *Event, kind EventKind) *Event {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		select {
		case ev := <-ch:
			if ev == nil {
				continue
			}
			if ev.Kind == kind {
				return ev
			}
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
	t.Fatalf("expected event kind %v not received", kind)
	return nil
}

// drain discards everything currently buffered on the channel.
func drain(ch <-chan *Event) {
	for {
		select {
		case <-ch:
		default:
			return
		}
	}
}

// waitForMembers consumes presence events until the room listing reaches
// the wanted size.
func waitForMembers(t *testing.T, ch <-chan *Event, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		ev := mustEvent(t, ch, EventRoomUsers)
		if len(ev.Users) == want {
			return
		}
	}
	t.Fatalf("never saw a %d-member listing", want)
}

func joinRoom(t *testing.T, s *Session, room, password, username, userID string) {
	t.Helper()
	s.Commands <- &Command{
		Kind:     CommandJoinRoom,
		Room:     room,
		Password: password,
		Username: username,
		UserID:   userID,
	}
	ev := mustEvent(t, s.Events, EventJoinSuccess)
	if ev.Room != room {
		t.Fatalf("joined wrong room: got %q want %q", ev.Room, room)
	}
}
