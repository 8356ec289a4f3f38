package session

import (
	"context"
	"sync"
	"time"
)

type entry struct {
	history      []Turn
	createdAt    time.Time
	lastActiveAt time.Time
}

type usageEntry struct {
	count        int
	firstSeen    uint64
	lastActiveAt time.Time
}

// Store owns every live session and the usage counters that go with them.
// All reads hand out copies; all writes go through its methods.
type Store struct {
	mu       sync.RWMutex
	persona  string
	sessions map[string]*entry
	usage    map[string]*usageEntry
	seq      uint64

	locks   *userLocks
	now     func() time.Time
	tracker *Tracker
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the wall clock, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New creates an empty store. persona is the system instruction every
// session implicitly starts with; it is never part of History.
func New(persona string, opts ...Option) *Store {
	s := &Store{
		persona:  persona,
		sessions: make(map[string]*entry),
		usage:    make(map[string]*usageEntry),
		locks:    newUserLocks(),
		now:      time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	s.tracker = &Tracker{s: s}
	return s
}

// Persona returns the instruction seeded into every session.
func (s *Store) Persona() string { return s.persona }

// Now returns the store's current time.
func (s *Store) Now() time.Time { return s.now() }

// Usage returns the tracker that shares this store's state.
func (s *Store) Usage() *Tracker { return s.tracker }

// Lock blocks until the caller holds userID's lock or ctx ends. The returned
// func releases it and is safe to call more than once.
func (s *Store) Lock(ctx context.Context, userID string) (func(), error) {
	return s.locks.lock(ctx, userID)
}

// TryLock takes userID's lock only if it is free.
func (s *Store) TryLock(userID string) (func(), bool) {
	return s.locks.tryLock(userID)
}

// GetOrCreate returns a copy of userID's session, creating an empty one if
// none is live.
func (s *Store) GetOrCreate(userID string) Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.ensureLocked(userID)
	return s.sessionLocked(userID, e)
}

// Get returns a copy of userID's session if one is live.
func (s *Store) Get(userID string) (Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.sessions[userID]
	if !ok {
		return Session{}, false
	}
	return s.sessionLocked(userID, e), true
}

// Delete removes userID's session together with its usage counters and
// reports whether a session existed. It waits for any in-flight reply for
// that user, so callers must not already hold userID's lock.
func (s *Store) Delete(userID string) bool {
	unlock, _ := s.locks.lock(context.Background(), userID)
	defer unlock()
	return s.deleteLocked(userID)
}

func (s *Store) deleteLocked(userID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.sessions[userID]
	delete(s.sessions, userID)
	delete(s.usage, userID)
	return ok
}

// Snapshot returns metadata for every live session.
func (s *Store) Snapshot() map[string]SessionInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]SessionInfo, len(s.sessions))
	for id, e := range s.sessions {
		info := SessionInfo{
			UserID:       id,
			Turns:        len(e.history),
			CreatedAt:    e.createdAt,
			LastActiveAt: e.lastActiveAt,
		}
		if u, ok := s.usage[id]; ok {
			info.MessageCount = u.count
		}
		out[id] = info
	}
	return out
}

// Count returns the number of live sessions.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// History returns a copy of userID's turns, or an empty slice.
func (s *Store) History(userID string) []Turn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.sessions[userID]
	if !ok {
		return []Turn{}
	}
	return cloneTurns(e.history)
}

// Append adds turns to the end of userID's history.
func (s *Store) Append(userID string, turns ...Turn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.ensureLocked(userID)
	e.history = append(e.history, turns...)
}

// PopTurn removes and returns the most recent turn.
func (s *Store) PopTurn(userID string) (Turn, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.sessions[userID]
	if !ok || len(e.history) == 0 {
		return Turn{}, false
	}
	last := e.history[len(e.history)-1]
	e.history = e.history[:len(e.history)-1]
	return last, true
}

// Trim drops the oldest turns until at most max remain and returns how many
// were dropped. The window ignores speaker roles.
func (s *Store) Trim(userID string, max int) int {
	if max < 0 {
		max = 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.sessions[userID]
	if !ok || len(e.history) <= max {
		return 0
	}
	dropped := len(e.history) - max
	kept := make([]Turn, max)
	copy(kept, e.history[dropped:])
	e.history = kept
	return dropped
}

// EvictInactive removes every session (and its usage entry) last active
// before cutoff, plus orphaned usage entries equally stale. Users whose lock
// is held are skipped since they are mid-reply. It returns the evicted ids.
func (s *Store) EvictInactive(ctx context.Context, cutoff time.Time) []string {
	s.mu.RLock()
	var candidates []string
	for id, e := range s.sessions {
		if e.lastActiveAt.Before(cutoff) {
			candidates = append(candidates, id)
		}
	}
	for id, u := range s.usage {
		if _, live := s.sessions[id]; !live && u.lastActiveAt.Before(cutoff) {
			candidates = append(candidates, id)
		}
	}
	s.mu.RUnlock()

	var evicted []string
	for _, id := range candidates {
		if ctx.Err() != nil {
			break
		}
		unlock, ok := s.locks.tryLock(id)
		if !ok {
			continue
		}
		if s.evictIfStale(id, cutoff) {
			evicted = append(evicted, id)
		}
		unlock()
	}
	return evicted
}

func (s *Store) evictIfStale(userID string, cutoff time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.sessions[userID]; ok {
		if !e.lastActiveAt.Before(cutoff) {
			return false
		}
	} else if u, ok := s.usage[userID]; !ok || !u.lastActiveAt.Before(cutoff) {
		return false
	}
	delete(s.sessions, userID)
	delete(s.usage, userID)
	return true
}

func (s *Store) ensureLocked(userID string) *entry {
	e, ok := s.sessions[userID]
	if !ok {
		now := s.now()
		e = &entry{history: []Turn{}, createdAt: now, lastActiveAt: now}
		s.sessions[userID] = e
	}
	return e
}

func (s *Store) sessionLocked(userID string, e *entry) Session {
	sess := Session{
		UserID:       userID,
		History:      cloneTurns(e.history),
		CreatedAt:    e.createdAt,
		LastActiveAt: e.lastActiveAt,
	}
	if u, ok := s.usage[userID]; ok {
		sess.MessageCount = u.count
	}
	return sess
}
