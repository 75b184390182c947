// Package memory provides a thread-safe in-memory storage.Store.
// Sessions are lost on restart and are not shared between processes.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/jmcleod/hubuum-bff/storage"
)

type entry struct {
	rec       storage.Record
	expiresAt time.Time
}

// Store is a mutex-guarded map of session ids to records. Expired entries
// are evicted lazily on read and, when a sweep interval is set, by a
// background goroutine.
type Store struct {
	mu   sync.RWMutex
	data map[string]entry
	ttl  time.Duration
	now  func() time.Time

	sweepInterval time.Duration
	stopOnce      sync.Once
	stopCh        chan struct{}
	done          chan struct{}
}

var _ storage.Store = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithSweepInterval starts a background sweep that evicts expired entries
// every d. Zero disables it.
func WithSweepInterval(d time.Duration) Option {
	return func(s *Store) { s.sweepInterval = d }
}

// New returns an empty store whose entries live for ttl after their last
// Create or Touch.
func New(ttl time.Duration, opts ...Option) *Store {
	s := &Store{
		data:   make(map[string]entry),
		ttl:    ttl,
		now:    time.Now,
		stopCh: make(chan struct{}),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.sweepInterval > 0 {
		go s.sweepLoop()
	} else {
		close(s.done)
	}
	return s
}

func (s *Store) Create(_ context.Context, id string, rec storage.Record) error {
	s.put(id, rec)
	return nil
}

func (s *Store) Touch(_ context.Context, id string, rec storage.Record) error {
	s.put(id, rec)
	return nil
}

func (s *Store) put(id string, rec storage.Record) {
	s.mu.Lock()
	s.data[id] = entry{rec: rec, expiresAt: s.now().Add(s.ttl)}
	s.mu.Unlock()
}

func (s *Store) Get(_ context.Context, id string) (storage.Record, bool, error) {
	s.mu.RLock()
	e, ok := s.data[id]
	s.mu.RUnlock()
	if !ok {
		return storage.Record{}, false, nil
	}
	if !s.now().Before(e.expiresAt) {
		s.mu.Lock()
		// Re-check: a concurrent Touch may have refreshed it.
		if cur, ok := s.data[id]; ok && !s.now().Before(cur.expiresAt) {
			delete(s.data, id)
		}
		s.mu.Unlock()
		return storage.Record{}, false, nil
	}
	return e.rec, true, nil
}

func (s *Store) Destroy(_ context.Context, id string) error {
	s.mu.Lock()
	delete(s.data, id)
	s.mu.Unlock()
	return nil
}

// Len reports the number of stored entries, expired or not.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

// Close stops the background sweep, if any.
func (s *Store) Close() error {
	s.stopOnce.Do(func() { close(s.stopCh) })
	<-s.done
	return nil
}

func (s *Store) sweepLoop() {
	defer close(s.done)
	ticker := time.NewTicker(s.sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.Sweep()
		}
	}
}

// Sweep evicts every expired entry and returns how many were removed.
func (s *Store) Sweep() int {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, e := range s.data {
		if !now.Before(e.expiresAt) {
			delete(s.data, id)
			n++
		}
	}
	return n
}
