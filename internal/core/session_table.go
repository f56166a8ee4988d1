package core

import (
	"sort"
	"sync"
	"time"

	"github.com/dkeye/StreamRelay/internal/domain"
	"github.com/rs/zerolog/log"
)

// sessionEntry is created once per path and never removed, so holders of the
// pointer may lock it without the table lock.
type sessionEntry struct {
	mu      sync.Mutex
	session domain.StreamSession
}

// SessionTable tracks publish state per stream path.
// The table lock only guards the path index; transitions lock the entry.
type SessionTable struct {
	mu    sync.RWMutex
	paths map[domain.StreamPath]*sessionEntry
	now   func() time.Time
}

type TableOption func(*SessionTable)

func WithClock(now func() time.Time) TableOption {
	return func(t *SessionTable) { t.now = now }
}

func NewSessionTable(opts ...TableOption) *SessionTable {
	t := &SessionTable{
		paths: make(map[domain.StreamPath]*sessionEntry),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *SessionTable) lookup(path domain.StreamPath) (*sessionEntry, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	e, ok := t.paths[path]
	return e, ok
}

func (t *SessionTable) getOrCreate(path domain.StreamPath) *sessionEntry {
	if e, ok := t.lookup(path); ok {
		return e
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if e, ok := t.paths[path]; ok {
		return e
	}
	e := &sessionEntry{session: domain.StreamSession{Path: path, State: domain.StateIdle}}
	t.paths[path] = e
	return e
}

// MarkPublishing moves path to Publishing for publisher. changed is false when
// the same publisher was already live on path.
func (t *SessionTable) MarkPublishing(path domain.StreamPath, publisher domain.PublisherID) (domain.StreamSession, bool, error) {
	e := t.getOrCreate(path)
	e.mu.Lock()
	defer e.mu.Unlock()

	s := &e.session
	if s.State == domain.StatePublishing {
		if s.PublisherID != publisher {
			return *s, false, ErrAlreadyPublishing
		}
		return *s, false, nil
	}
	s.State = domain.StatePublishing
	s.PublisherID = publisher
	s.StartedAt = t.now()
	s.PublishCount++
	log.Info().Str("module", "core.sessions").Str("path", string(path)).Str("publisher", string(publisher)).Msg("publishing")
	return *s, true, nil
}

// MarkIdle ends the publish of publisher on path and returns how long it lasted.
func (t *SessionTable) MarkIdle(path domain.StreamPath, publisher domain.PublisherID) (domain.StreamSession, time.Duration, error) {
	e, ok := t.lookup(path)
	if !ok {
		return domain.StreamSession{}, 0, ErrNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	s := &e.session
	if s.State != domain.StatePublishing || s.PublisherID != publisher {
		return *s, 0, ErrNotPublisher
	}
	now := t.now()
	d := now.Sub(s.StartedAt)
	s.State = domain.StateIdle
	s.PublisherID = ""
	s.StartedAt = time.Time{}
	s.LastEndedAt = now
	log.Info().Str("module", "core.sessions").Str("path", string(path)).Str("publisher", string(publisher)).Dur("duration", d).Msg("idle")
	return *s, d, nil
}

func (t *SessionTable) Get(path domain.StreamPath) (domain.StreamSession, error) {
	e, ok := t.lookup(path)
	if !ok {
		return domain.StreamSession{}, ErrNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.session, nil
}

// List returns every known session sorted by path.
func (t *SessionTable) List() []domain.StreamSession {
	return t.collect(func(domain.StreamSession) bool { return true })
}

// Live returns the sessions currently publishing, sorted by path.
func (t *SessionTable) Live() []domain.StreamSession {
	return t.collect(domain.StreamSession.IsLive)
}

func (t *SessionTable) collect(keep func(domain.StreamSession) bool) []domain.StreamSession {
	t.mu.RLock()
	entries := make([]*sessionEntry, 0, len(t.paths))
	for _, e := range t.paths {
		entries = append(entries, e)
	}
	t.mu.RUnlock()

	out := make([]domain.StreamSession, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		s := e.session
		e.mu.Unlock()
		if keep(s) {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}
