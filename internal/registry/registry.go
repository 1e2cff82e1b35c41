package registry

import (
	"sync"

	"github.com/google/uuid"
)

// PoolHandle is the immutable listing entry for one pool.
type PoolHandle struct {
	PoolID          uuid.UUID
	PremiumAmount   int64
	PayoutAmount    int64
	CreatedSequence int64
}

// Registry is the append-only, creation-ordered index of pools. The
// engine appends; the HTTP layer and subscribers read concurrently.
// Entries are never removed or reordered.
type Registry struct {
	mu      sync.RWMutex
	handles []PoolHandle
	subs    []chan PoolHandle
}

func NewRegistry() *Registry {
	return &Registry{}
}

// Append records a newly created pool and notifies subscribers.
// Notification is best-effort: a subscriber that is not keeping up
// misses the event rather than blocking the engine.
func (r *Registry) Append(h PoolHandle) {
	r.mu.Lock()
	r.handles = append(r.handles, h)
	subs := r.subs
	r.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- h:
		default:
		}
	}
}

// List returns a copy of all handles in creation order.
func (r *Registry) List() []PoolHandle {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]PoolHandle, len(r.handles))
	copy(out, r.handles)
	return out
}

// Get returns the handle for a pool, if registered.
func (r *Registry) Get(poolID uuid.UUID) (PoolHandle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, h := range r.handles {
		if h.PoolID == poolID {
			return h, true
		}
	}
	return PoolHandle{}, false
}

// Len returns the number of registered pools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handles)
}

// Subscribe returns a channel that receives future pool creations.
func (r *Registry) Subscribe(buffer int) <-chan PoolHandle {
	ch := make(chan PoolHandle, buffer)
	r.mu.Lock()
	r.subs = append(r.subs, ch)
	r.mu.Unlock()
	return ch
}
