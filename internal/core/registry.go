package core

import (
	"context"
	"sync"
)

// Registry is the fan-out directory mapping a conversation key to the
// set of currently-connected sessions. Single-process deployments use
// the in-memory implementation; multi-process ones a networked broker.
// Delivery is at-least-once per member with no cross-member ordering;
// within one session's channel, events keep broadcast order.
type Registry interface {
	// Join adds the session to the group. Idempotent.
	Join(key string, s *Session) error

	// Leave removes the session from the group. No-op if absent.
	Leave(key string, s *Session)

	// Broadcast delivers the event to every session currently in the
	// group. It never blocks on a saturated session.
	Broadcast(ctx context.Context, key string, event *Event) error
}

// MemoryRegistry is the in-process Registry backed by a mutex-guarded map.
type MemoryRegistry struct {
	mu     sync.RWMutex
	groups map[string]map[*Session]struct{}
}

// NewMemoryRegistry constructs an empty in-memory registry.
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{
		groups: make(map[string]map[*Session]struct{}),
	}
}

// Join adds the session to the group, creating it on first use.
func (r *MemoryRegistry) Join(key string, s *Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	group, ok := r.groups[key]
	if !ok {
		group = make(map[*Session]struct{})
		r.groups[key] = group
	}
	group[s] = struct{}{}
	return nil
}

// Leave removes the session, dropping the group once empty.
func (r *MemoryRegistry) Leave(key string, s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()

	group, ok := r.groups[key]
	if !ok {
		return
	}
	delete(group, s)
	if len(group) == 0 {
		delete(r.groups, key)
	}
}

// Broadcast sends the event to every member's channel, dropping it for
// sessions whose buffer is full so one slow consumer cannot stall the rest.
func (r *MemoryRegistry) Broadcast(_ context.Context, key string, event *Event) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for s := range r.groups[key] {
		select {
		case s.Events <- event:
		default:
			// Drop if slow consumer.
		}
	}
	return nil
}

// Members returns the current group size. Used by tests.
func (r *MemoryRegistry) Members(key string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.groups[key])
}
