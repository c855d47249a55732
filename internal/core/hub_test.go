package core

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/knagata/memosync-server/internal/store"
)

func startHub(t *testing.T, auth store.AuthStore) *Hub {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)

	hub := NewHub(auth, nil, nil)
	go hub.Run(ctx)
	return hub
}

func TestJoinAdmittedAndPresenceBroadcast(t *testing.T) {
	auth := &fakeAuthStore{recs: map[string]*store.RoomAuthorization{
		"note-1": sharedRoom("note-1", "", "owner-1"),
	}}
	hub := startHub(t, auth)

	alice := NewSession("conn-a", "")
	bob := NewSession("conn-b", "")
	hub.RegisterSession(alice)
	hub.RegisterSession(bob)

	joinRoom(t, alice, "note-1", "", "alice", "user-a")

	// Every connected session gets the counts, members get the listing.
	counts := mustEvent(t, bob.Events, EventRoomCounts)
	if counts.Counts["note-1"] != 1 {
		t.Fatalf("unexpected counts: %+v", counts.Counts)
	}

	users := mustEvent(t, alice.Events, EventRoomUsers)
	if len(users.Users) != 1 || users.Users[0].Username != "alice" || users.Users[0].UserID != "user-a" {
		t.Fatalf("unexpected members: %+v", users.Users)
	}

	joinRoom(t, bob, "note-1", "", "bob", "user-b")

	users = mustEvent(t, alice.Events, EventRoomUsers)
	if len(users.Users) != 2 {
		t.Fatalf("expected 2 members, got %+v", users.Users)
	}
}

func TestJoinRejectedWhenNotShared(t *testing.T) {
	auth := &fakeAuthStore{recs: map[string]*store.RoomAuthorization{
		"note-1": {RoomID: "note-1", IsShared: false, Password: "abc"},
	}}
	hub := startHub(t, auth)

	alice := NewSession("conn-a", "")
	hub.RegisterSession(alice)

	// A correct password does not help when sharing is off.
	alice.Commands <- &Command{Kind: CommandJoinRoom, Room: "note-1", Password: "abc"}
	ev := mustEvent(t, alice.Events, EventJoinFailed)
	if ev.Error == nil || ev.Error.Code != ErrCodeNotShared {
		t.Fatalf("expected not_shared, got %+v", ev.Error)
	}
}

func TestJoinRejectedUnknownRoom(t *testing.T) {
	hub := startHub(t, &fakeAuthStore{recs: map[string]*store.RoomAuthorization{}})

	alice := NewSession("conn-a", "")
	hub.RegisterSession(alice)

	alice.Commands <- &Command{Kind: CommandJoinRoom, Room: "ghost"}
	ev := mustEvent(t, alice.Events, EventJoinFailed)
	if ev.Error == nil || ev.Error.Code != ErrCodeRoomNotFound {
		t.Fatalf("expected room_not_found, got %+v", ev.Error)
	}
}

func TestJoinLookupFailure(t *testing.T) {
	hub := startHub(t, &fakeAuthStore{err: errors.New("db gone")})

	alice := NewSession("conn-a", "")
	hub.RegisterSession(alice)

	alice.Commands <- &Command{Kind: CommandJoinRoom, Room: "note-1"}
	ev := mustEvent(t, alice.Events, EventJoinFailed)
	if ev.Error == nil || ev.Error.Code != ErrCodeLookupFailed {
		t.Fatalf("expected lookup_failed, got %+v", ev.Error)
	}
}

func TestWrongPasswordThenRetry(t *testing.T) {
	auth := &fakeAuthStore{recs: map[string]*store.RoomAuthorization{
		"note-42": sharedRoom("note-42", "abc", "user-a"),
	}}
	hub := startHub(t, auth)

	bob := NewSession("conn-b", "")
	hub.RegisterSession(bob)

	bob.Commands <- &Command{Kind: CommandJoinRoom, Room: "note-42", Password: "xyz"}
	ev := mustEvent(t, bob.Events, EventJoinFailed)
	if ev.Error == nil || ev.Error.Code != ErrCodeWrongPassword {
		t.Fatalf("expected wrong_password, got %+v", ev.Error)
	}

	// The client re-prompts and retries with the right secret.
	joinRoom(t, bob, "note-42", "abc", "bob", "user-b")
}

func TestSingleRoomInvariant(t *testing.T) {
	auth := &fakeAuthStore{recs: map[string]*store.RoomAuthorization{
		"note-1": sharedRoom("note-1", "", "o1"),
		"note-2": sharedRoom("note-2", "", "o2"),
	}}
	hub := startHub(t, auth)

	alice := NewSession("conn-a", "")
	watcher := NewSession("conn-w", "")
	hub.RegisterSession(alice)
	hub.RegisterSession(watcher)

	joinRoom(t, alice, "note-1", "", "alice", "user-a")
	drain(watcher.Events)

	joinRoom(t, alice, "note-2", "", "alice", "user-a")

	// Switching rooms empties note-1; the final counts list only note-2.
	deadline := time.Now().Add(2 * time.Second)
	var last map[string]int
	for time.Now().Before(deadline) {
		select {
		case ev := <-watcher.Events:
			if ev != nil && ev.Kind == EventRoomCounts {
				last = ev.Counts
			}
		default:
			if last != nil && last["note-1"] == 0 && last["note-2"] == 1 {
				if _, present := last["note-1"]; present {
					t.Fatalf("empty room must be omitted from counts: %+v", last)
				}
				return
			}
			time.Sleep(10 * time.Millisecond)
		}
	}
	t.Fatalf("never observed membership move, last counts: %+v", last)
}

func TestLeaveIsIdempotent(t *testing.T) {
	auth := &fakeAuthStore{recs: map[string]*store.RoomAuthorization{
		"note-1": sharedRoom("note-1", "", "o1"),
	}}
	hub := startHub(t, auth)

	alice := NewSession("conn-a", "")
	bob := NewSession("conn-b", "")
	hub.RegisterSession(alice)
	hub.RegisterSession(bob)

	joinRoom(t, alice, "note-1", "", "alice", "user-a")

	// Bob never joined; his leave must not disturb Alice's membership.
	bob.Commands <- &Command{Kind: CommandLeaveRoom, Room: "note-1"}
	bob.Commands <- &Command{Kind: CommandLeaveRoom, Room: "note-1"}

	drain(alice.Events)
	alice.Commands <- &Command{Kind: CommandRequestSync, Room: "note-1"}

	// Alice is still in the room: bob is not, so nobody hears the sync
	// request, but the command is accepted without an error event.
	select {
	case ev := <-alice.Events:
		if ev.Kind == EventError {
			t.Fatalf("unexpected error after idempotent leave: %+v", ev.Error)
		}
	case <-time.After(100 * time.Millisecond):
	}
}

func TestTextUpdateOverwritesAndSkipsSender(t *testing.T) {
	auth := &fakeAuthStore{recs: map[string]*store.RoomAuthorization{
		"note-42": sharedRoom("note-42", "abc", "user-a"),
	}}
	hub := startHub(t, auth)

	alice := NewSession("conn-a", "")
	bob := NewSession("conn-b", "")
	hub.RegisterSession(alice)
	hub.RegisterSession(bob)

	joinRoom(t, alice, "note-42", "abc", "alice", "user-a")
	joinRoom(t, bob, "note-42", "abc", "bob", "user-b")
	drain(alice.Events)
	drain(bob.Events)

	alice.Commands <- &Command{Kind: CommandTextUpdate, Room: "note-42", Content: "first"}
	alice.Commands <- &Command{Kind: CommandTextUpdate, Room: "note-42", Content: "second"}

	ev := mustEvent(t, bob.Events, EventTextUpdate)
	if ev.Content != "first" || ev.FromUserID != "user-a" {
		t.Fatalf("unexpected first update: %+v", ev)
	}
	ev = mustEvent(t, bob.Events, EventTextUpdate)
	if ev.Content != "second" {
		t.Fatalf("same-sender order violated: got %q", ev.Content)
	}

	// Sender must not hear its own update.
	select {
	case got := <-alice.Events:
		if got.Kind == EventTextUpdate {
			t.Fatalf("sender received its own text-update")
		}
	case <-time.After(100 * time.Millisecond):
	}
}

func TestCanvasAndColorRelay(t *testing.T) {
	auth := &fakeAuthStore{recs: map[string]*store.RoomAuthorization{
		"note-1": sharedRoom("note-1", "", "user-a"),
	}}
	hub := startHub(t, auth)

	alice := NewSession("conn-a", "")
	bob := NewSession("conn-b", "")
	hub.RegisterSession(alice)
	hub.RegisterSession(bob)
	joinRoom(t, alice, "note-1", "", "alice", "user-a")
	joinRoom(t, bob, "note-1", "", "bob", "user-b")
	drain(bob.Events)

	alice.Commands <- &Command{Kind: CommandCanvasUpdate, Room: "note-1", CanvasData: "{\"strokes\":[]}"}
	ev := mustEvent(t, bob.Events, EventCanvasUpdate)
	if ev.CanvasData != "{\"strokes\":[]}" {
		t.Fatalf("unexpected canvas payload: %q", ev.CanvasData)
	}

	alice.Commands <- &Command{Kind: CommandColorUpdate, Room: "note-1", Color: "emerald"}
	ev = mustEvent(t, bob.Events, EventColorUpdate)
	if ev.Color != "emerald" {
		t.Fatalf("unexpected color payload: %q", ev.Color)
	}
}

func TestCursorMoveCarriesSenderIdentity(t *testing.T) {
	auth := &fakeAuthStore{recs: map[string]*store.RoomAuthorization{
		"note-1": sharedRoom("note-1", "", "user-a"),
	}}
	hub := startHub(t, auth)

	alice := NewSession("conn-a", "")
	bob := NewSession("conn-b", "")
	hub.RegisterSession(alice)
	hub.RegisterSession(bob)
	joinRoom(t, alice, "note-1", "", "alice", "user-a")
	joinRoom(t, bob, "note-1", "", "bob", "user-b")
	drain(bob.Events)

	alice.Commands <- &Command{
		Kind:   CommandCursorMove,
		Room:   "note-1",
		Cursor: &CursorState{X: 10, Y: 20, Mode: "draw"},
	}

	ev := mustEvent(t, bob.Events, EventCursorMove)
	c := ev.Cursor
	if c == nil || c.ConnID != "conn-a" || c.UserID != "user-a" || c.Username != "alice" {
		t.Fatalf("cursor identity not attached: %+v", c)
	}
	if c.X != 10 || c.Y != 20 || c.Mode != "draw" {
		t.Fatalf("cursor position mangled: %+v", c)
	}
}

func TestSyncRequestAndTargetedResponse(t *testing.T) {
	auth := &fakeAuthStore{recs: map[string]*store.RoomAuthorization{
		"note-42": sharedRoom("note-42", "abc", "user-a"),
	}}
	hub := startHub(t, auth)

	alice := NewSession("conn-a", "")
	bob := NewSession("conn-b", "")
	carol := NewSession("conn-c", "")
	hub.RegisterSession(alice)
	hub.RegisterSession(bob)
	hub.RegisterSession(carol)
	joinRoom(t, alice, "note-42", "abc", "alice", "user-a")
	joinRoom(t, carol, "note-42", "abc", "carol", "user-c")
	joinRoom(t, bob, "note-42", "abc", "bob", "user-b")
	drain(alice.Events)
	drain(carol.Events)

	bob.Commands <- &Command{Kind: CommandRequestSync, Room: "note-42"}

	req := mustEvent(t, alice.Events, EventRequestSync)
	if req.RequesterID != "conn-b" {
		t.Fatalf("unexpected requester: %q", req.RequesterID)
	}

	alice.Commands <- &Command{
		Kind:       CommandSyncResponse,
		TargetConn: req.RequesterID,
		Bundle: &SyncBundle{
			Title:       "groceries",
			Content:     "milk",
			Color:       "rose",
			Category:    "home",
			Attribution: map[string]string{"1": "user-a"},
		},
	}

	resp := mustEvent(t, bob.Events, EventSyncResponse)
	if resp.Bundle == nil || resp.Bundle.Title != "groceries" || resp.Bundle.Content != "milk" {
		t.Fatalf("unexpected bundle: %+v", resp.Bundle)
	}

	// Unicast only: carol must not see the response.
	select {
	case ev := <-carol.Events:
		if ev.Kind == EventSyncResponse {
			t.Fatalf("sync-response leaked to a third session")
		}
	case <-time.After(100 * time.Millisecond):
	}
}

func TestSyncResponseToGoneTargetIsDropped(t *testing.T) {
	auth := &fakeAuthStore{recs: map[string]*store.RoomAuthorization{
		"note-1": sharedRoom("note-1", "", "user-a"),
	}}
	hub := startHub(t, auth)

	alice := NewSession("conn-a", "")
	hub.RegisterSession(alice)
	joinRoom(t, alice, "note-1", "", "alice", "user-a")
	drain(alice.Events)

	alice.Commands <- &Command{
		Kind:       CommandSyncResponse,
		TargetConn: "conn-gone",
		Bundle:     &SyncBundle{Content: "hello"},
	}

	// No error surfaces to the sender.
	select {
	case ev := <-alice.Events:
		if ev.Kind == EventError {
			t.Fatalf("stale delivery surfaced an error: %+v", ev.Error)
		}
	case <-time.After(100 * time.Millisecond):
	}
}

func TestCloseRoomEvictsGuests(t *testing.T) {
	auth := &fakeAuthStore{recs: map[string]*store.RoomAuthorization{
		"note-42": sharedRoom("note-42", "abc", "user-a"),
	}}
	hub := startHub(t, auth)

	owner := NewSession("conn-a", "")
	guest := NewSession("conn-b", "")
	hub.RegisterSession(owner)
	hub.RegisterSession(guest)
	joinRoom(t, owner, "note-42", "abc", "alice", "user-a")
	joinRoom(t, guest, "note-42", "abc", "bob", "user-b")
	waitForMembers(t, owner.Events, 2)
	drain(guest.Events)

	owner.Commands <- &Command{Kind: CommandCloseRoom, Room: "note-42"}

	mustEvent(t, guest.Events, EventRoomClosed)
	mustEvent(t, owner.Events, EventRoomClosed)

	counts := mustEvent(t, owner.Events, EventRoomCounts)
	if counts.Counts["note-42"] != 1 {
		t.Fatalf("expected only the owner to remain, counts: %+v", counts.Counts)
	}

	users := mustEvent(t, owner.Events, EventRoomUsers)
	if len(users.Users) != 1 || users.Users[0].ConnID != "conn-a" {
		t.Fatalf("expected owner-only membership, got %+v", users.Users)
	}
}

func TestCloseRoomRejectedForNonOwner(t *testing.T) {
	auth := &fakeAuthStore{recs: map[string]*store.RoomAuthorization{
		"note-42": sharedRoom("note-42", "abc", "user-a"),
	}}
	hub := startHub(t, auth)

	owner := NewSession("conn-a", "")
	guest := NewSession("conn-b", "")
	hub.RegisterSession(owner)
	hub.RegisterSession(guest)
	joinRoom(t, owner, "note-42", "abc", "alice", "user-a")
	joinRoom(t, guest, "note-42", "abc", "bob", "user-b")
	drain(owner.Events)
	drain(guest.Events)

	guest.Commands <- &Command{Kind: CommandCloseRoom, Room: "note-42"}

	ev := mustEvent(t, guest.Events, EventError)
	if ev.Error == nil || ev.Error.Code != ErrCodeNotOwner {
		t.Fatalf("expected not_owner, got %+v", ev.Error)
	}

	// Owner stays put.
	select {
	case oev := <-owner.Events:
		if oev.Kind == EventRoomClosed {
			t.Fatalf("guest managed to close the room")
		}
	case <-time.After(100 * time.Millisecond):
	}
}

func TestDisconnectCleansUpMembership(t *testing.T) {
	auth := &fakeAuthStore{recs: map[string]*store.RoomAuthorization{
		"note-1": sharedRoom("note-1", "", "user-a"),
	}}
	hub := startHub(t, auth)

	alice := NewSession("conn-a", "")
	bob := NewSession("conn-b", "")
	hub.RegisterSession(alice)
	hub.RegisterSession(bob)
	joinRoom(t, alice, "note-1", "", "alice", "user-a")
	joinRoom(t, bob, "note-1", "", "bob", "user-b")
	waitForMembers(t, alice.Events, 2)

	// Transport-level drop, not an explicit leave.
	hub.UnregisterSession(bob)
	close(bob.Commands)

	counts := mustEvent(t, alice.Events, EventRoomCounts)
	if counts.Counts["note-1"] != 1 {
		t.Fatalf("membership not cleaned up: %+v", counts.Counts)
	}

	users := mustEvent(t, alice.Events, EventRoomUsers)
	if len(users.Users) != 1 || users.Users[0].ConnID != "conn-a" {
		t.Fatalf("unexpected members after disconnect: %+v", users.Users)
	}
}

func TestRoomMismatchIsDropped(t *testing.T) {
	auth := &fakeAuthStore{recs: map[string]*store.RoomAuthorization{
		"note-1": sharedRoom("note-1", "", "user-a"),
		"note-2": sharedRoom("note-2", "", "user-b"),
	}}
	hub := startHub(t, auth)

	alice := NewSession("conn-a", "")
	bob := NewSession("conn-b", "")
	hub.RegisterSession(alice)
	hub.RegisterSession(bob)
	joinRoom(t, alice, "note-1", "", "alice", "user-a")
	joinRoom(t, bob, "note-1", "", "bob", "user-b")
	drain(bob.Events)

	// Claiming a room the session is not in must not relay anywhere.
	alice.Commands <- &Command{Kind: CommandTextUpdate, Room: "note-2", Content: "sneaky"}

	select {
	case ev := <-bob.Events:
		if ev.Kind == EventTextUpdate {
			t.Fatalf("mismatched-room update was relayed")
		}
	case <-time.After(100 * time.Millisecond):
	}
}
