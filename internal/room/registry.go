package room

import (
	"errors"
	"sync"
)

var (
	// ErrRoomFull is returned by AddMember when the registry was constructed
	// with a member cap and the room is already at it.
	ErrRoomFull = errors.New("room: room is full")

	// ErrNoSuchRoom is returned for operations addressed to a room id with no
	// live room.
	ErrNoSuchRoom = errors.New("room: no such room")

	// ErrNoSuchMember is returned when a sharer change names a member that is
	// not in the room.
	ErrNoSuchMember = errors.New("room: no such member")
)

// Registry is the authoritative mapping from room id to room state.
//
// Rooms are created lazily on first join and destroyed the moment their last
// member leaves; a room with zero members never exists in the registry.
//
// The registry is an injectable instance (constructed at startup, passed by
// reference to session handlers) rather than ambient package state, so tests
// can run against isolated registries.
type Registry struct {
	mu    sync.Mutex
	rooms map[string]*room

	// maxMembers caps members per room. <= 0 means unlimited.
	maxMembers int
}

// Option configures a Registry.
type Option func(*Registry)

// WithMaxMembers caps how many members a single room may hold.
func WithMaxMembers(n int) Option {
	return func(r *Registry) { r.maxMembers = n }
}

func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		rooms: make(map[string]*room),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// AddMember adds a member to the room, creating the room if it does not exist
// yet. The returned slice is the full roster (including the new member) in
// join order.
func (r *Registry) AddMember(roomID string, m Member) ([]Member, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm, ok := r.rooms[roomID]
	if !ok {
		rm = newRoom(roomID)
		r.rooms[roomID] = rm
	}

	if r.maxMembers > 0 && len(rm.members) >= r.maxMembers {
		return nil, ErrRoomFull
	}

	if _, exists := rm.members[m.ID]; !exists {
		rm.order = append(rm.order, m.ID)
	}
	member := m
	rm.members[m.ID] = &member

	return rm.snapshot(), nil
}

// RemoveMember removes the member from the room. If the member was the
// current sharer, the sharer is cleared first and wasSharer is true. When the
// last member leaves, the room itself is removed from the registry.
func (r *Registry) RemoveMember(roomID, memberID string) (wasSharer bool, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm, ok := r.rooms[roomID]
	if !ok {
		return false, ErrNoSuchRoom
	}
	if _, ok := rm.members[memberID]; !ok {
		return false, ErrNoSuchMember
	}

	if rm.sharerID == memberID {
		rm.sharerID = ""
		wasSharer = true
	}

	delete(rm.members, memberID)
	rm.removeFromOrder(memberID)

	if len(rm.members) == 0 {
		delete(r.rooms, roomID)
	}
	return wasSharer, nil
}

// SetSharer installs memberID as the room's sharer. Any previous sharer's
// IsSharing flag is cleared before the new one is set, so there is no
// observable window with two members marked as sharing.
func (r *Registry) SetSharer(roomID, memberID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm, ok := r.rooms[roomID]
	if !ok {
		return ErrNoSuchRoom
	}
	next, ok := rm.members[memberID]
	if !ok {
		return ErrNoSuchMember
	}

	if prev, ok := rm.members[rm.sharerID]; ok {
		prev.IsSharing = false
	}
	rm.sharerID = memberID
	next.IsSharing = true
	return nil
}

// ClearSharer clears the room's sharer, if any.
func (r *Registry) ClearSharer(roomID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm, ok := r.rooms[roomID]
	if !ok {
		return ErrNoSuchRoom
	}
	if prev, ok := rm.members[rm.sharerID]; ok {
		prev.IsSharing = false
	}
	rm.sharerID = ""
	return nil
}

// SharerID returns the current sharer's id ("" when nobody shares) and
// whether the room exists at all.
func (r *Registry) SharerID(roomID string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm, ok := r.rooms[roomID]
	if !ok {
		return "", false
	}
	return rm.sharerID, true
}

// Members returns the room's roster in join order, or ok=false when the room
// does not exist.
func (r *Registry) Members(roomID string) ([]Member, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm, ok := r.rooms[roomID]
	if !ok {
		return nil, false
	}
	return rm.snapshot(), true
}

// MemberIDs returns the connection ids currently bound to the room, in join
// order. A missing room yields an empty slice.
func (r *Registry) MemberIDs(roomID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm, ok := r.rooms[roomID]
	if !ok {
		return nil
	}
	ids := make([]string, len(rm.order))
	copy(ids, rm.order)
	return ids
}

// Exists reports whether a room with the given id is currently live.
func (r *Registry) Exists(roomID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.rooms[roomID]
	return ok
}

// RoomCount returns the number of live rooms.
func (r *Registry) RoomCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rooms)
}
