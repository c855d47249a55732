package core

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/knagata/memosync-server/internal/metrics"
	"github.com/knagata/memosync-server/internal/store"
)

// Hub owns all room membership state. A single run loop mutates the
// registry, so joins and leaves for the same room can never interleave;
// the only suspension point, the access gate's storage lookup, runs off
// the loop and posts its result back as an admission.
type Hub struct {
	auth store.AuthStore
	log  zerolog.Logger
	m    *metrics.Metrics

	register   chan *Session
	unregister chan *Session
	commands   chan sessionCommand
	admissions chan admission

	// Run-loop state. Never accessed outside Run.
	rooms    map[string]*Room
	sessions map[*Session]struct{}
	byConn   map[string]*Session
}

type sessionCommand struct {
	sess *Session
	cmd  *Command
}

// NewHub creates the hub. The auth store may be nil in tests that never
// exercise the join path; metrics may be nil to disable instrumentation.
func NewHub(auth store.AuthStore, logger *zerolog.Logger, m *metrics.Metrics) *Hub {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Hub{
		auth:       auth,
		log:        *logger,
		m:          m,
		register:   make(chan *Session),
		unregister: make(chan *Session),
		commands:   make(chan sessionCommand, 64),
		admissions: make(chan admission, 16),
		rooms:      make(map[string]*Room),
		sessions:   make(map[*Session]struct{}),
		byConn:     make(map[string]*Session),
	}
}

// RegisterSession makes the session addressable and starts consuming its
// commands. Call UnregisterSession exactly once when the connection ends.
func (h *Hub) RegisterSession(s *Session) {
	h.register <- s
}

// UnregisterSession removes the session and cleans up its room membership
// as if it had left explicitly. Safe to call for a session that never
// joined a room.
func (h *Hub) UnregisterSession(s *Session) {
	h.unregister <- s
}

// Run processes registrations and commands until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case s := <-h.register:
			h.handleRegister(ctx, s)
		case s := <-h.unregister:
			h.handleUnregister(s)
		case sc := <-h.commands:
			h.handleCommand(ctx, sc.sess, sc.cmd)
		case adm := <-h.admissions:
			h.handleAdmission(adm)
		case <-ctx.Done():
			return
		}
	}
}

func (h *Hub) handleRegister(ctx context.Context, s *Session) {
	h.sessions[s] = struct{}{}
	h.byConn[s.ConnID] = s

	// Pump the session's commands into the shared loop. Exits when the
	// transport closes s.Commands after unregistering.
	go func() {
		for cmd := range s.Commands {
			select {
			case h.commands <- sessionCommand{sess: s, cmd: cmd}:
			case <-ctx.Done():
				return
			}
		}
	}()

	// Idle clients show live participant badges, so every new session
	// gets the current counts immediately.
	h.send(s, &Event{Kind: EventRoomCounts, Counts: h.countsSnapshot()})
	h.log.Debug().Str("conn_id", s.ConnID).Msg("session registered")
}

func (h *Hub) handleUnregister(s *Session) {
	if _, ok := h.sessions[s]; !ok {
		return
	}
	delete(h.sessions, s)
	delete(h.byConn, s.ConnID)
	h.removeFromRoom(s)
	// The hub is the sole sender on Events; closing it stops the
	// transport's write loop.
	close(s.Events)
	h.log.Debug().Str("conn_id", s.ConnID).Msg("session unregistered")
}

func (h *Hub) handleCommand(ctx context.Context, s *Session, cmd *Command) {
	// Commands from sessions that disconnected while queued are stale.
	if _, ok := h.sessions[s]; !ok {
		return
	}

	switch cmd.Kind {
	case CommandJoinRoom:
		go h.checkAccess(ctx, s, cmd)
	case CommandLeaveRoom:
		h.handleLeave(s, cmd.Room)
	case CommandCloseRoom:
		h.handleClose(s, cmd.Room)
	case CommandTextUpdate:
		if room := h.roomFor(s, cmd.Room); room != nil {
			h.relayExcept(room, s, &Event{
				Kind:       EventTextUpdate,
				Room:       room.ID,
				Content:    cmd.Content,
				FromUserID: s.UserID,
			}, "text-update")
		}
	case CommandCanvasUpdate:
		if room := h.roomFor(s, cmd.Room); room != nil {
			h.relayExcept(room, s, &Event{
				Kind:       EventCanvasUpdate,
				Room:       room.ID,
				CanvasData: cmd.CanvasData,
			}, "canvas-update")
		}
	case CommandColorUpdate:
		if room := h.roomFor(s, cmd.Room); room != nil {
			h.relayExcept(room, s, &Event{
				Kind:  EventColorUpdate,
				Room:  room.ID,
				Color: cmd.Color,
			}, "color-update")
		}
	case CommandCursorMove:
		if room := h.roomFor(s, cmd.Room); room != nil {
			cursor := *cmd.Cursor
			cursor.ConnID = s.ConnID
			cursor.UserID = s.UserID
			cursor.Username = s.Name
			h.relayExcept(room, s, &Event{
				Kind:   EventCursorMove,
				Room:   room.ID,
				Cursor: &cursor,
			}, "cursor-move")
		}
	case CommandRequestSync:
		if room := h.roomFor(s, cmd.Room); room != nil {
			h.relayExcept(room, s, &Event{
				Kind:        EventRequestSync,
				Room:        room.ID,
				RequesterID: s.ConnID,
			}, "request-sync")
		}
	case CommandSyncResponse:
		h.handleSyncResponse(s, cmd)
	}
}

// handleAdmission finishes a join after the access gate resolved.
func (h *Hub) handleAdmission(adm admission) {
	s := adm.sess

	// The session may have disconnected while the lookup was pending;
	// the admission is simply discarded.
	if _, ok := h.sessions[s]; !ok {
		return
	}

	if adm.denied != nil {
		h.countJoin(adm.denied.Code)
		h.send(s, &Event{Kind: EventJoinFailed, Room: adm.roomID, Error: adm.denied})
		h.log.Info().
			Str("conn_id", s.ConnID).
			Str("room", adm.roomID).
			Str("reason", adm.denied.Code).
			Msg("join rejected")
		return
	}

	// At most one room per session: switching rooms leaves the old one
	// first, with its own presence broadcasts.
	if s.room != "" && s.room != adm.roomID {
		h.removeFromRoom(s)
	}

	if !s.IdentityVerified {
		if adm.userID != "" {
			s.UserID = adm.userID
		}
		if adm.username != "" {
			s.Name = adm.username
		}
	}

	room := h.rooms[adm.roomID]
	if room == nil {
		room = NewRoom(adm.roomID, adm.record.OwnerUserID)
		h.rooms[adm.roomID] = room
		h.gaugeRooms()
	}
	room.Add(s)
	s.room = room.ID

	h.countJoin("admitted")
	h.send(s, &Event{Kind: EventJoinSuccess, Room: room.ID})
	h.broadcastPresence(room)
	h.log.Info().
		Str("conn_id", s.ConnID).
		Str("room", room.ID).
		Str("user_id", s.UserID).
		Int("members", room.Size()).
		Msg("session joined room")
}

// handleLeave is idempotent: leaving a room the session is not in is a no-op.
func (h *Hub) handleLeave(s *Session, roomID string) {
	if s.room == "" || (roomID != "" && s.room != roomID) {
		return
	}
	h.removeFromRoom(s)
}

// handleClose evicts every other member and notifies all of them,
// including the sender. Only the memo's owner may close the room.
func (h *Hub) handleClose(s *Session, roomID string) {
	room := h.roomFor(s, roomID)
	if room == nil {
		h.send(s, &Event{Kind: EventError, Error: coreError(ErrCodeNotInRoom, "not in room")})
		return
	}
	if room.ownerUserID != "" && s.UserID != room.ownerUserID {
		h.send(s, &Event{Kind: EventError, Error: coreError(ErrCodeNotOwner, "only the owner can close the room")})
		return
	}

	notice := &Event{Kind: EventRoomClosed, Room: room.ID}
	evicted := 0
	for _, member := range room.Members() {
		peer := h.byConn[member.ConnID]
		if peer == nil {
			continue
		}
		h.send(peer, notice)
		if peer != s {
			room.Remove(peer)
			peer.room = ""
			evicted++
		}
	}
	h.countRelay("close-room")
	h.broadcastPresence(room)
	h.log.Info().
		Str("conn_id", s.ConnID).
		Str("room", room.ID).
		Int("evicted", evicted).
		Msg("room closed")
}

func (h *Hub) handleSyncResponse(s *Session, cmd *Command) {
	target := h.byConn[cmd.TargetConn]
	if target == nil {
		// Requester already disconnected; dropped silently per relay
		// failure semantics.
		h.countDrop()
		return
	}
	if s.room == "" || target.room != s.room {
		return
	}
	h.send(target, &Event{
		Kind:   EventSyncResponse,
		Room:   s.room,
		Bundle: cmd.Bundle,
	})
	h.countRelay("sync-response")
}

// roomFor resolves the session's current room, requiring the command's
// room id to match it. Mismatches are stale client state and are dropped.
func (h *Hub) roomFor(s *Session, roomID string) *Room {
	if s.room == "" {
		return nil
	}
	if roomID != "" && roomID != s.room {
		h.log.Debug().
			Str("conn_id", s.ConnID).
			Str("claimed", roomID).
			Str("actual", s.room).
			Msg("dropping command for room the session is not in")
		return nil
	}
	return h.rooms[s.room]
}

// removeFromRoom takes the session out of its current room, tears the
// room down when it empties, and emits the presence broadcasts.
func (h *Hub) removeFromRoom(s *Session) {
	if s.room == "" {
		return
	}
	room := h.rooms[s.room]
	s.room = ""
	if room == nil {
		return
	}
	room.Remove(s)
	if room.Empty() {
		delete(h.rooms, room.ID)
		h.gaugeRooms()
	}
	h.broadcastPresence(room)
}

// broadcastPresence emits the global counts to every connected session
// and the member listing to the affected room only.
func (h *Hub) broadcastPresence(room *Room) {
	counts := h.countsSnapshot()
	for s := range h.sessions {
		h.send(s, &Event{Kind: EventRoomCounts, Counts: counts})
	}

	users := room.Members()
	usersEv := &Event{Kind: EventRoomUsers, Room: room.ID, Users: users}
	for _, member := range users {
		if peer := h.byConn[member.ConnID]; peer != nil {
			h.send(peer, usersEv)
		}
	}
}

// countsSnapshot maps room id to member count; empty rooms are omitted.
func (h *Hub) countsSnapshot() map[string]int {
	counts := make(map[string]int, len(h.rooms))
	for id, room := range h.rooms {
		if room.Size() > 0 {
			counts[id] = room.Size()
		}
	}
	return counts
}

// relayExcept fans an event out to every room member but the sender.
func (h *Hub) relayExcept(room *Room, sender *Session, ev *Event, kind string) {
	for member := range room.members {
		if member == sender {
			continue
		}
		h.send(member, ev)
	}
	h.countRelay(kind)
}

// send delivers without blocking; slow consumers lose events rather than
// stalling the loop.
func (h *Hub) send(s *Session, ev *Event) {
	select {
	case s.Events <- ev:
	default:
		h.countDrop()
	}
}

func (h *Hub) countJoin(result string) {
	if h.m != nil {
		h.m.JoinAttempts.WithLabelValues(result).Inc()
	}
}

func (h *Hub) countRelay(kind string) {
	if h.m != nil {
		h.m.EventsRelayed.WithLabelValues(kind).Inc()
	}
}

func (h *Hub) countDrop() {
	if h.m != nil {
		h.m.DroppedDeliveries.Inc()
	}
}

func (h *Hub) gaugeRooms() {
	if h.m != nil {
		h.m.ActiveRooms.Set(float64(len(h.rooms)))
	}
}
