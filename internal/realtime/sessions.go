package realtime

import "sort"

// SessionRegistry maps a user to the set of live connection ids open for that user.
// It is not safe for concurrent use; the Hub serialises access.
type SessionRegistry struct {
	byUser map[string]map[string]struct{}
	owner  map[string]string
}

// NewSessionRegistry constructs an empty registry.
func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{
		byUser: make(map[string]map[string]struct{}),
		owner:  make(map[string]string),
	}
}

// Register adds connID to the user's session set and reports whether this was the
// user's first open connection. A connection already owned by any user is left untouched.
func (r *SessionRegistry) Register(userID, connID string) bool {
	if userID == "" || connID == "" {
		return false
	}
	if _, owned := r.owner[connID]; owned {
		return false
	}

	set, exists := r.byUser[userID]
	if !exists {
		set = make(map[string]struct{})
		r.byUser[userID] = set
	}
	set[connID] = struct{}{}
	r.owner[connID] = userID

	return !exists
}

// Unregister removes connID from the user's set and reports whether the set became
// empty (the user is now absent). Unknown users or connections are no-ops.
func (r *SessionRegistry) Unregister(userID, connID string) bool {
	if owner, ok := r.owner[connID]; !ok || owner != userID {
		return false
	}

	delete(r.owner, connID)
	set := r.byUser[userID]
	delete(set, connID)
	if len(set) > 0 {
		return false
	}

	delete(r.byUser, userID)
	return true
}

// ConnectionsOf returns a copy of the user's open connection ids, sorted for stable fan-out.
func (r *SessionRegistry) ConnectionsOf(userID string) []string {
	set := r.byUser[userID]
	if len(set) == 0 {
		return nil
	}

	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// OwnerOf resolves the user owning connID.
func (r *SessionRegistry) OwnerOf(connID string) (string, bool) {
	userID, ok := r.owner[connID]
	return userID, ok
}

// Has reports whether the user has at least one open connection.
func (r *SessionRegistry) Has(userID string) bool {
	return len(r.byUser[userID]) > 0
}

// Users returns the number of users with at least one open connection.
func (r *SessionRegistry) Users() int {
	return len(r.byUser)
}

// Connections returns the total number of registered connections.
func (r *SessionRegistry) Connections() int {
	return len(r.owner)
}
