package core

import (
	"sort"
	"sync"

	"github.com/dkeye/StreamRelay/internal/domain"
	"github.com/rs/zerolog/log"
)

type registryEntry struct {
	sub Subscriber
	seq uint64
}

// SubscriberRegistry is a threadsafe set of connected subscribers.
// It never closes adapter-owned resources.
type SubscriberRegistry struct {
	mu      sync.RWMutex
	byID    map[domain.SubscriberID]registryEntry
	nextSeq uint64
}

func NewSubscriberRegistry() *SubscriberRegistry {
	return &SubscriberRegistry{byID: make(map[domain.SubscriberID]registryEntry)}
}

// Add reports whether sub was inserted; an already present id is left untouched.
func (r *SubscriberRegistry) Add(sub Subscriber) bool {
	id := sub.ID()
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[id]; ok {
		return false
	}
	r.nextSeq++
	r.byID[id] = registryEntry{sub: sub, seq: r.nextSeq}
	log.Debug().Str("module", "core.registry").Str("subscriber", string(id)).Int("size", len(r.byID)).Msg("subscriber added")
	return true
}

// Remove is a no-op for unknown ids; disconnect races are expected.
func (r *SubscriberRegistry) Remove(id domain.SubscriberID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[id]; !ok {
		return false
	}
	delete(r.byID, id)
	log.Debug().Str("module", "core.registry").Str("subscriber", string(id)).Int("size", len(r.byID)).Msg("subscriber removed")
	return true
}

func (r *SubscriberRegistry) Get(id domain.SubscriberID) (Subscriber, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.byID[id]
	return e.sub, ok
}

func (r *SubscriberRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}

// Snapshot returns subscribers in join order. The slice is owned by the caller.
func (r *SubscriberRegistry) Snapshot() []Subscriber {
	r.mu.RLock()
	entries := make([]registryEntry, 0, len(r.byID))
	for _, e := range r.byID {
		entries = append(entries, e)
	}
	r.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool { return entries[i].seq < entries[j].seq })
	out := make([]Subscriber, len(entries))
	for i, e := range entries {
		out[i] = e.sub
	}
	return out
}
