// Package relay tracks room membership for live connections and fans
// broadcast payloads out to every member of a room via the Registry type.
package relay

import "sync"

// Sink is the outbound side of a connection as seen by the registry.
// TrySend must never block; it reports false when the recipient cannot
// accept the payload right now, in which case the delivery is dropped.
type Sink interface {
	TrySend(payload []byte) bool
	Close()
}

// Session holds the metadata fixed at join time for one live connection.
// A connection belongs to at most one room; re-joining overwrites the
// whole tuple (last join wins).
type Session struct {
	ConnID      string
	OrderID     string
	RoomID      string
	UserID      string
	Platform    string
	MessageType string
}

type room struct {
	mu      sync.RWMutex
	members map[string]Sink
}

func (r *room) add(connID string, sink Sink) {
	r.mu.Lock()
	r.members[connID] = sink
	r.mu.Unlock()
}

func (r *room) remove(connID string) {
	r.mu.Lock()
	delete(r.members, connID)
	r.mu.Unlock()
}

func (r *room) size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.members)
}

func (r *room) memberIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.members))
	for id := range r.members {
		ids = append(ids, id)
	}
	return ids
}

// broadcast delivers payload to every member present when the call starts.
// Deliveries are independent and non-blocking; a full recipient is skipped.
func (r *room) broadcast(payload []byte) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	delivered := 0
	for _, sink := range r.members {
		if sink.TrySend(payload) {
			delivered++
		}
	}
	return delivered
}

// Registry is the concurrency-safe mapping from connection to session and
// from room to member set. All operations are pure in-memory map work and
// cannot fail; absent entries are no-ops, never errors.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]Session
	sinks    map[string]Sink
	rooms    map[string]*room
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]Session),
		sinks:    make(map[string]Sink),
		rooms:    make(map[string]*room),
	}
}

// Register upserts the session for connID and places the connection in its
// room. When the connection was already registered in a different room the
// membership transfers: it leaves the old room before joining the new one.
func (r *Registry) Register(connID string, sink Sink, s Session) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.sessions[connID]; ok && prev.RoomID != s.RoomID {
		r.removeMemberLocked(connID, prev.RoomID)
	}

	r.sessions[connID] = s
	r.sinks[connID] = sink

	rm := r.rooms[s.RoomID]
	if rm == nil {
		rm = &room{members: make(map[string]Sink)}
		r.rooms[s.RoomID] = rm
	}
	rm.add(connID, sink)
}

// Lookup returns the current session for connID, if any.
func (r *Registry) Lookup(connID string) (Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[connID]
	return s, ok
}

// Members returns the identifiers of every connection currently in roomID.
// Unknown rooms yield an empty slice.
func (r *Registry) Members(roomID string) []string {
	r.mu.RLock()
	rm := r.rooms[roomID]
	r.mu.RUnlock()
	if rm == nil {
		return nil
	}
	return rm.memberIDs()
}

// Broadcast delivers payload to every current member of roomID and returns
// the number of successful deliveries. An empty or unknown room is a no-op.
func (r *Registry) Broadcast(roomID string, payload []byte) int {
	r.mu.RLock()
	rm := r.rooms[roomID]
	r.mu.RUnlock()
	if rm == nil {
		return 0
	}
	return rm.broadcast(payload)
}

// Deregister removes the session and its room membership. It reports the
// removed session; deregistering an unknown connection is a no-op.
func (r *Registry) Deregister(connID string) (Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[connID]
	if !ok {
		return Session{}, false
	}
	delete(r.sessions, connID)
	delete(r.sinks, connID)
	r.removeMemberLocked(connID, s.RoomID)
	return s, true
}

// CloseAll closes every registered sink and clears all state. Used during
// shutdown; subsequent deregisters from the closing connections are no-ops.
func (r *Registry) CloseAll() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := len(r.sinks)
	for _, sink := range r.sinks {
		sink.Close()
	}
	r.sessions = make(map[string]Session)
	r.sinks = make(map[string]Sink)
	r.rooms = make(map[string]*room)
	return n
}

func (r *Registry) removeMemberLocked(connID, roomID string) {
	rm := r.rooms[roomID]
	if rm == nil {
		return
	}
	rm.remove(connID)
	if rm.size() == 0 {
		delete(r.rooms, roomID)
	}
}
