package booking

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/iliyamo/playspot/internal/utils"
)

var (
	// ErrSessionNotFound is returned for unknown or expired session ids.
	ErrSessionNotFound = errors.New("booking session not found")
	// ErrStaleSession is returned when a save carries a version that is
	// no longer the stored one: another request saved the session since
	// it was loaded.
	ErrStaleSession = errors.New("booking session changed concurrently")
)

// SessionStore keeps sessions between requests, keyed by reservation
// token.  Lock serialises requests for one id across load, modify and
// save; Save additionally refuses to overwrite a newer version.
type SessionStore interface {
	Get(ctx context.Context, id string) (*Session, error)
	Save(ctx context.Context, s *Session) error
	Delete(ctx context.Context, id string) error
	Lock(ctx context.Context, id string) (unlock func(), err error)
}

// MemorySessions is a process-local SessionStore.  Entries are dropped
// lazily once they are older than the TTL.
type MemorySessions struct {
	mu    sync.RWMutex
	items map[string]memoryEntry
	ttl   time.Duration
	clock utils.Clock

	lockMu sync.Mutex
	locks  map[string]*sessionLock
}

type memoryEntry struct {
	s       Session
	expires time.Time
}

type sessionLock struct {
	ch   chan struct{}
	refs int
}

// NewMemorySessions returns an empty store.  A nil clock means the
// system clock.
func NewMemorySessions(ttl time.Duration, clock utils.Clock) *MemorySessions {
	if clock == nil {
		clock = utils.RealClock{}
	}
	return &MemorySessions{
		items: make(map[string]memoryEntry),
		ttl:   ttl,
		clock: clock,
		locks: make(map[string]*sessionLock),
	}
}

func (m *MemorySessions) live(e memoryEntry) bool {
	return m.ttl <= 0 || m.clock.Now().Before(e.expires)
}

func (m *MemorySessions) Get(ctx context.Context, id string) (*Session, error) {
	m.mu.RLock()
	e, ok := m.items[id]
	m.mu.RUnlock()
	if !ok || !m.live(e) {
		return nil, ErrSessionNotFound
	}
	s := e.s
	s.History = append([]Transition(nil), e.s.History...)
	s.clock = m.clock
	return &s, nil
}

// Save stores a copy of s and bumps its version.  It fails with
// ErrStaleSession if the stored session was saved after s was loaded.
func (m *MemorySessions) Save(ctx context.Context, s *Session) error {
	if s.ID == "" {
		return errors.New("session has no id")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.items[s.ID]; ok && m.live(e) && e.s.Version != s.Version {
		return ErrStaleSession
	}
	s.Version++
	cp := *s
	cp.History = append([]Transition(nil), s.History...)
	m.items[s.ID] = memoryEntry{s: cp, expires: m.clock.Now().Add(m.ttl)}
	return nil
}

func (m *MemorySessions) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	delete(m.items, id)
	m.mu.Unlock()
	return nil
}

// Lock blocks until no other holder has id locked, or ctx ends.
func (m *MemorySessions) Lock(ctx context.Context, id string) (func(), error) {
	m.lockMu.Lock()
	l, ok := m.locks[id]
	if !ok {
		l = &sessionLock{ch: make(chan struct{}, 1)}
		m.locks[id] = l
	}
	l.refs++
	m.lockMu.Unlock()

	select {
	case l.ch <- struct{}{}:
	case <-ctx.Done():
		m.dropLock(id, l)
		return nil, ctx.Err()
	}
	var once sync.Once
	return func() {
		once.Do(func() {
			<-l.ch
			m.dropLock(id, l)
		})
	}, nil
}

func (m *MemorySessions) dropLock(id string, l *sessionLock) {
	m.lockMu.Lock()
	l.refs--
	if l.refs == 0 {
		delete(m.locks, id)
	}
	m.lockMu.Unlock()
}
