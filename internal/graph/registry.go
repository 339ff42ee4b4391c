package graph

import (
	"sort"
	"sync"
)

// Registry maps users to their independent graph stores. Stores are created
// on first use and never shared between users.
type Registry struct {
	mu     sync.RWMutex
	stores map[string]*Store
	opts   []Option
}

// NewRegistry creates an empty registry. opts are applied to every Store it
// creates.
func NewRegistry(opts ...Option) *Registry {
	return &Registry{
		stores: make(map[string]*Store),
		opts:   opts,
	}
}

// For returns the user's store, creating it if needed.
func (r *Registry) For(userID string) *Store {
	r.mu.RLock()
	s, ok := r.stores[userID]
	r.mu.RUnlock()
	if ok {
		return s
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.stores[userID]; ok {
		return s
	}
	s = NewStore(userID, r.opts...)
	r.stores[userID] = s
	return s
}

// Lookup returns the user's store without creating one.
func (r *Registry) Lookup(userID string) (*Store, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.stores[userID]
	return s, ok
}

// Users returns the known user IDs, sorted.
func (r *Registry) Users() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	users := make([]string, 0, len(r.stores))
	for u := range r.stores {
		users = append(users, u)
	}
	sort.Strings(users)
	return users
}

// Len returns the number of user graphs.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.stores)
}
