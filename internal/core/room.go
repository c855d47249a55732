package core

// Room groups the sessions editing the same memo. The room id is the
// memo's storage id; a room exists only while it has members.
type Room struct {
	ID string

	// ownerUserID is cached from the authorization record at first
	// admission; close-room is honored only from this user.
	ownerUserID string

	members map[*Session]struct{}
}

// NewRoom constructs a room with no members.
func NewRoom(id, ownerUserID string) *Room {
	return &Room{
		ID:          id,
		ownerUserID: ownerUserID,
		members:     make(map[*Session]struct{}),
	}
}

// Add inserts a session into the room. Returns true if newly added.
func (r *Room) Add(s *Session) bool {
	if _, exists := r.members[s]; exists {
		return false
	}
	r.members[s] = struct{}{}
	return true
}

// Remove deletes a session from the room. Returns true if removed.
func (r *Room) Remove(s *Session) bool {
	if _, exists := r.members[s]; !exists {
		return false
	}
	delete(r.members, s)
	return true
}

// Contains reports whether the session is a member.
func (r *Room) Contains(s *Session) bool {
	_, ok := r.members[s]
	return ok
}

// Size returns the current member count.
func (r *Room) Size() int {
	return len(r.members)
}

// Empty returns true if no sessions are in the room.
func (r *Room) Empty() bool {
	return len(r.members) == 0
}

// Members returns the presence listing for the room. Order is unspecified.
func (r *Room) Members() []Member {
	out := make([]Member, 0, len(r.members))
	for s := range r.members {
		out = append(out, Member{ConnID: s.ConnID, Username: s.Name, UserID: s.UserID})
	}
	return out
}
