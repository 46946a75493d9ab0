package presence

import "sync"

// Registry maps a user id to the set of currently open transport
// connections for that user. A user is online iff the set is non-empty.
type Registry struct {
	mx    *sync.RWMutex
	conns map[string]map[string]struct{}
}

func NewRegistry() *Registry {
	return &Registry{
		mx:    &sync.RWMutex{},
		conns: make(map[string]map[string]struct{}),
	}
}

// Register adds a connection to the user's set. Idempotent.
func (r *Registry) Register(userID, connID string) {
	r.mx.Lock()
	defer r.mx.Unlock()

	set, ok := r.conns[userID]
	if !ok {
		set = make(map[string]struct{})
		r.conns[userID] = set
	}
	set[connID] = struct{}{}
}

// Unregister removes a connection from the user's set and reports whether
// the user went offline, i.e. the removed connection was the last one.
func (r *Registry) Unregister(userID, connID string) bool {
	r.mx.Lock()
	defer r.mx.Unlock()

	set, ok := r.conns[userID]
	if !ok {
		return false
	}
	if _, ok = set[connID]; !ok {
		return false
	}
	delete(set, connID)
	if len(set) == 0 {
		delete(r.conns, userID)
		return true
	}
	return false
}

// ConnectionsOf returns the user's open connection ids. The order is
// unspecified. Returns nil for an offline user.
func (r *Registry) ConnectionsOf(userID string) []string {
	r.mx.RLock()
	defer r.mx.RUnlock()

	set, ok := r.conns[userID]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(set))
	for connID := range set {
		out = append(out, connID)
	}
	return out
}

// PrimaryConnection returns any one active connection of the user.
// Which one is unspecified and may change between calls.
func (r *Registry) PrimaryConnection(userID string) (string, bool) {
	r.mx.RLock()
	defer r.mx.RUnlock()

	for connID := range r.conns[userID] {
		return connID, true
	}
	return "", false
}

func (r *Registry) Online(userID string) bool {
	r.mx.RLock()
	defer r.mx.RUnlock()

	return len(r.conns[userID]) > 0
}

// OnlineCount returns the number of users with at least one connection.
func (r *Registry) OnlineCount() int {
	r.mx.RLock()
	defer r.mx.RUnlock()

	return len(r.conns)
}
