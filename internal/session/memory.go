package session

import (
	"context"
	"sync"
	"time"
)

type memorySession struct {
	mu       sync.Mutex
	turns    []Turn
	lastSeen time.Time
}

// MemoryStore is an in-process Store. Each session's turn list is guarded by
// its own mutex; the outer map lock is held only long enough to find or
// create the entry. With a zero TTL sessions live for the process lifetime;
// a positive TTL evicts sessions idle longer than that.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*memorySession

	ttl  time.Duration
	stop chan struct{}
	once sync.Once
}

// NewMemoryStore creates a MemoryStore. ttl <= 0 disables eviction.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	s := &MemoryStore{
		sessions: make(map[string]*memorySession),
		ttl:      ttl,
		stop:     make(chan struct{}),
	}
	if ttl > 0 {
		go s.sweep()
	}
	return s
}

// History returns a copy of the session's turns in chronological order.
func (s *MemoryStore) History(_ context.Context, sessionID string) ([]Turn, error) {
	s.mu.RLock()
	entry, ok := s.sessions[sessionID]
	s.mu.RUnlock()
	if !ok {
		return nil, nil
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()
	entry.lastSeen = time.Now()
	out := make([]Turn, len(entry.turns))
	copy(out, entry.turns)
	return out, nil
}

// Append adds turns to the session, creating it on first reference.
func (s *MemoryStore) Append(_ context.Context, sessionID string, turns ...Turn) error {
	entry := s.getOrCreate(sessionID)

	entry.mu.Lock()
	defer entry.mu.Unlock()
	entry.turns = append(entry.turns, turns...)
	entry.lastSeen = time.Now()
	return nil
}

// Close stops the eviction sweeper, if running.
func (s *MemoryStore) Close() error {
	s.once.Do(func() { close(s.stop) })
	return nil
}

// Len reports the number of live sessions.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

func (s *MemoryStore) getOrCreate(sessionID string) *memorySession {
	s.mu.RLock()
	entry, ok := s.sessions[sessionID]
	s.mu.RUnlock()
	if ok {
		return entry
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if entry, ok = s.sessions[sessionID]; ok {
		return entry
	}
	entry = &memorySession{lastSeen: time.Now()}
	s.sessions[sessionID] = entry
	return entry
}

func (s *MemoryStore) sweep() {
	interval := s.ttl / 2
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.evictIdle(time.Now())
		}
	}
}

func (s *MemoryStore) evictIdle(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, entry := range s.sessions {
		entry.mu.Lock()
		idle := now.Sub(entry.lastSeen)
		entry.mu.Unlock()
		if idle > s.ttl {
			delete(s.sessions, id)
		}
	}
}
