// Package room owns all room and member state for the signaling relay.
//
// Every mutation funnels through Registry methods so the single-sharer
// invariant (at most one member of a room has IsSharing set, and it matches
// the room's sharer id) cannot be violated by direct field writes elsewhere.
package room

// Member is one connection's presence record within a room.
//
// The JSON field names are part of the wire protocol: member lists are sent
// verbatim in room-joined, user-joined and users-update events.
type Member struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	IsSharing bool   `json:"isSharing"`
}

// AnonymousName is used when a client joins without a display name.
const AnonymousName = "Anonymous"

type room struct {
	id      string
	members map[string]*Member

	// order preserves join order for member listings.
	order []string

	// sharerID is the id of the member currently sharing, or "" when nobody
	// shares. When set it always names a member of this room.
	sharerID string
}

func newRoom(id string) *room {
	return &room{
		id:      id,
		members: make(map[string]*Member),
	}
}

func (r *room) snapshot() []Member {
	out := make([]Member, 0, len(r.order))
	for _, id := range r.order {
		if m, ok := r.members[id]; ok {
			out = append(out, *m)
		}
	}
	return out
}

func (r *room) removeFromOrder(memberID string) {
	for i, id := range r.order {
		if id == memberID {
			r.order = append(r.order[:i], r.order[i+1:]...)
			return
		}
	}
}
