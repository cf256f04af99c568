package registry

import "sync"

// Registry is a thread-safe registry for values indexed by key.
type Registry[K comparable, V any] struct {
	mu      sync.RWMutex
	entries map[K]V
}

// New creates a new empty registry.
func New[K comparable, V any]() *Registry[K, V] {
	return &Registry[K, V]{
		entries: make(map[K]V),
	}
}

// Register adds or updates a value in the registry.
func (r *Registry[K, V]) Register(key K, value V) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[key] = value
}

// Add stores value only if key is absent. It reports whether the value
// was stored.
func (r *Registry[K, V]) Add(key K, value V) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[key]; ok {
		return false
	}
	r.entries[key] = value
	return true
}

// Get returns the value for a key and whether it exists.
func (r *Registry[K, V]) Get(key K) (V, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.entries[key]
	return v, ok
}

// Has returns true if the key exists in the registry.
func (r *Registry[K, V]) Has(key K) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.entries[key]
	return ok
}

// Take removes key and returns its value.
func (r *Registry[K, V]) Take(key K) (V, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.entries[key]
	if ok {
		delete(r.entries, key)
	}
	return v, ok
}

// TakeIf removes key only when match accepts the stored value.
// match runs under the write lock and must not call back into the registry.
func (r *Registry[K, V]) TakeIf(key K, match func(V) bool) (V, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.entries[key]
	if !ok || !match(v) {
		var zero V
		return zero, false
	}
	delete(r.entries, key)
	return v, true
}

// Drain removes and returns every entry.
func (r *Registry[K, V]) Drain() map[K]V {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.entries
	r.entries = make(map[K]V)
	return out
}

// Len returns the number of entries in the registry.
func (r *Registry[K, V]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
