package realtime

import "sort"

// RoomTracker maps task rooms to subscribed connection ids and keeps the reverse
// connection -> rooms index so disconnect cleanup only visits rooms actually joined.
// Not safe for concurrent use.
type RoomTracker struct {
	members map[string]map[string]struct{}
	joined  map[string]map[string]struct{}
}

// NewRoomTracker constructs an empty tracker.
func NewRoomTracker() *RoomTracker {
	return &RoomTracker{
		members: make(map[string]map[string]struct{}),
		joined:  make(map[string]map[string]struct{}),
	}
}

// Join subscribes connID to roomID and reports whether membership changed.
func (t *RoomTracker) Join(roomID, connID string) bool {
	if roomID == "" || connID == "" {
		return false
	}

	room := t.members[roomID]
	if room == nil {
		room = make(map[string]struct{})
		t.members[roomID] = room
	}
	if _, exists := room[connID]; exists {
		return false
	}
	room[connID] = struct{}{}

	rooms := t.joined[connID]
	if rooms == nil {
		rooms = make(map[string]struct{})
		t.joined[connID] = rooms
	}
	rooms[roomID] = struct{}{}
	return true
}

// Leave removes connID from roomID, discarding the room once empty. It reports whether
// membership changed.
func (t *RoomTracker) Leave(roomID, connID string) bool {
	room := t.members[roomID]
	if _, exists := room[connID]; !exists {
		return false
	}

	delete(room, connID)
	if len(room) == 0 {
		delete(t.members, roomID)
	}

	if rooms := t.joined[connID]; rooms != nil {
		delete(rooms, roomID)
		if len(rooms) == 0 {
			delete(t.joined, connID)
		}
	}
	return true
}

// LeaveAll removes connID from every room it joined and returns those room ids.
func (t *RoomTracker) LeaveAll(connID string) []string {
	left := t.RoomsOf(connID)
	for _, roomID := range left {
		t.Leave(roomID, connID)
	}
	return left
}

// MembersOf returns the room's connection ids; unknown rooms yield an empty slice.
func (t *RoomTracker) MembersOf(roomID string) []string {
	return sortedKeys(t.members[roomID])
}

// RoomsOf returns the rooms connID is subscribed to.
func (t *RoomTracker) RoomsOf(connID string) []string {
	return sortedKeys(t.joined[connID])
}

// IsMember reports whether connID is subscribed to roomID.
func (t *RoomTracker) IsMember(roomID, connID string) bool {
	_, ok := t.members[roomID][connID]
	return ok
}

// Rooms returns the number of non-empty rooms.
func (t *RoomTracker) Rooms() int {
	return len(t.members)
}

func sortedKeys(set map[string]struct{}) []string {
	if len(set) == 0 {
		return []string{}
	}
	out := make([]string, 0, len(set))
	for key := range set {
		out = append(out, key)
	}
	sort.Strings(out)
	return out
}
