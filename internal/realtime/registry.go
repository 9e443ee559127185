package realtime

import "sync"

// Registry is the process-wide index from collection name to the set of
// active subscriptions. All mutation is synchronized against snapshot reads,
// so a snapshot never observes a partially updated set.
type Registry struct {
	mu   sync.RWMutex
	subs map[string]map[*Subscription]struct{}
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		subs: make(map[string]map[*Subscription]struct{}),
	}
}

// Add inserts sub into the set for its collection, creating the set if
// absent. Adding the same *Subscription twice is a no-op; duplicate UIDs are
// the caller's concern (remove the old one first).
func (r *Registry) Add(sub *Subscription) {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.subs[sub.Collection]
	if !ok {
		set = make(map[*Subscription]struct{})
		r.subs[sub.Collection] = set
	}
	set[sub] = struct{}{}
}

// Remove deletes the subscription with the given UID owned by the given
// connection, looking across all collections. It reports whether a
// subscription was removed; absence is not an error.
func (r *Registry) Remove(connectionID, uid string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for collection, set := range r.subs {
		for sub := range set {
			if sub.UID == uid && sub.Connection.ID() == connectionID {
				delete(set, sub)
				if len(set) == 0 {
					delete(r.subs, collection)
				}
				return true
			}
		}
	}
	return false
}

// RemoveConnection deletes every subscription owned by the given connection
// across all collections and returns how many were removed. Safe to call for
// connections with no subscriptions.
func (r *Registry) RemoveConnection(connectionID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for collection, set := range r.subs {
		for sub := range set {
			if sub.Connection.ID() == connectionID {
				delete(set, sub)
				removed++
			}
		}
		if len(set) == 0 {
			delete(r.subs, collection)
		}
	}
	return removed
}

// FindByUID scans all collections and returns the first subscription with
// the given UID, or nil. Linear in the total subscription count, which stays
// small (connections × subscriptions per connection).
func (r *Registry) FindByUID(uid string) *Subscription {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, set := range r.subs {
		for sub := range set {
			if sub.UID == uid {
				return sub
			}
		}
	}
	return nil
}

// SubscribersOf returns a point-in-time copy of the subscriptions for the
// collection. Callers may iterate the copy while the registry mutates.
func (r *Registry) SubscribersOf(collection string) []*Subscription {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set := r.subs[collection]
	if len(set) == 0 {
		return nil
	}
	out := make([]*Subscription, 0, len(set))
	for sub := range set {
		out = append(out, sub)
	}
	return out
}

// Count returns the number of subscriptions for the collection.
func (r *Registry) Count(collection string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subs[collection])
}

// Len returns the total number of subscriptions across all collections.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	total := 0
	for _, set := range r.subs {
		total += len(set)
	}
	return total
}

// Collections returns the per-collection subscription counts.
func (r *Registry) Collections() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]int, len(r.subs))
	for collection, set := range r.subs {
		out[collection] = len(set)
	}
	return out
}
