// Package bbolt provides a single-node durable storage.Store backed by a
// BBolt database file. Sessions survive restarts but are not shared between
// processes.
package bbolt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.etcd.io/bbolt"

	"github.com/jmcleod/hubuum-bff/internal/util"
	"github.com/jmcleod/hubuum-bff/storage"
)

const (
	sessionAADPrefix = "session:"
	openTimeout      = time.Second
)

var bucketName = []byte("sessions")

// entry is the JSON value stored per session id. When a sealing key is
// configured the marshalled entry is wrapped in a storage.Envelope.
type entry struct {
	Record    storage.Record `json:"record"`
	ExpiresAt time.Time      `json:"expires_at"`
}

// Store implements storage.Store over a BBolt database.
type Store struct {
	db  *bbolt.DB
	ttl time.Duration
	key []byte
	now func() time.Time

	sweepInterval time.Duration
	stopOnce      sync.Once
	stopCh        chan struct{}
	done          chan struct{}
}

var _ storage.Store = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithSealingKey encrypts every entry at rest with the given 32-byte key.
func WithSealingKey(key []byte) Option {
	return func(s *Store) {
		s.key = append([]byte(nil), key...)
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithSweepInterval starts a background sweep that removes expired and
// unreadable entries every d. Zero disables it.
func WithSweepInterval(d time.Duration) Option {
	return func(s *Store) { s.sweepInterval = d }
}

// Open opens (creating if needed) the database at path.
func Open(path string, ttl time.Duration, opts ...Option) (*Store, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: openTimeout})
	if err != nil {
		return nil, fmt.Errorf("%w: opening bbolt db %s: %w", storage.ErrUnavailable, path, err)
	}
	s, err := New(db, ttl, opts...)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// New returns a Store over an already open database. Close closes db.
func New(db *bbolt.DB, ttl time.Duration, opts ...Option) (*Store, error) {
	s := &Store{
		db:     db,
		ttl:    ttl,
		now:    time.Now,
		stopCh: make(chan struct{}),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.key != nil && len(s.key) != util.AESKeySize {
		return nil, fmt.Errorf("sealing key must be exactly %d bytes, got %d", util.AESKeySize, len(s.key))
	}
	err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("%w: creating bucket: %w", storage.ErrUnavailable, err)
	}
	if s.sweepInterval > 0 {
		go s.sweepLoop()
	} else {
		close(s.done)
	}
	return s, nil
}

func (s *Store) Create(_ context.Context, id string, rec storage.Record) error {
	return s.put(id, rec)
}

func (s *Store) Touch(_ context.Context, id string, rec storage.Record) error {
	return s.put(id, rec)
}

func (s *Store) put(id string, rec storage.Record) error {
	data, err := s.encode(id, entry{Record: rec, ExpiresAt: s.now().Add(s.ttl)})
	if err != nil {
		return err
	}
	err = s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketName).Put([]byte(id), data)
	})
	if err != nil {
		return fmt.Errorf("%w: writing session: %w", storage.ErrUnavailable, err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, id string) (storage.Record, bool, error) {
	var data []byte
	err := s.db.View(func(tx *bbolt.Tx) error {
		if v := tx.Bucket(bucketName).Get([]byte(id)); v != nil {
			data = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return storage.Record{}, false, fmt.Errorf("%w: reading session: %w", storage.ErrUnavailable, err)
	}
	if data == nil {
		return storage.Record{}, false, nil
	}
	e, err := s.decode(id, data)
	if err != nil || !s.now().Before(e.ExpiresAt) {
		// Expired, or sealed under a different key.
		if err := s.Destroy(ctx, id); err != nil {
			return storage.Record{}, false, err
		}
		return storage.Record{}, false, nil
	}
	return e.Record, true, nil
}

func (s *Store) Destroy(_ context.Context, id string) error {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketName).Delete([]byte(id))
	})
	if err != nil {
		return fmt.Errorf("%w: deleting session: %w", storage.ErrUnavailable, err)
	}
	return nil
}

// Close stops the sweeper, wipes the sealing key and closes the database.
func (s *Store) Close() error {
	var err error
	s.stopOnce.Do(func() {
		close(s.stopCh)
		<-s.done
		util.WipeBytes(s.key)
		err = s.db.Close()
	})
	return err
}

func (s *Store) encode(id string, e entry) ([]byte, error) {
	plain, err := json.Marshal(e)
	if err != nil {
		return nil, err
	}
	if s.key == nil {
		return plain, nil
	}
	defer util.WipeBytes(plain)
	env, err := storage.SealRecord(s.key, plain, []byte(sessionAADPrefix+id))
	if err != nil {
		return nil, fmt.Errorf("sealing session: %w", err)
	}
	return json.Marshal(env)
}

var errSealed = errors.New("entry is sealed but no sealing key is configured")

func (s *Store) decode(id string, data []byte) (entry, error) {
	var e entry
	if s.key == nil {
		if err := json.Unmarshal(data, &e); err != nil {
			return entry{}, err
		}
		if e.Record.Token == "" {
			return entry{}, errSealed
		}
		return e, nil
	}
	var env storage.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return entry{}, err
	}
	plain, err := storage.OpenRecord(s.key, &env, []byte(sessionAADPrefix+id))
	if err != nil {
		return entry{}, err
	}
	defer util.WipeBytes(plain)
	if err := json.Unmarshal(plain, &e); err != nil {
		return entry{}, err
	}
	return e, nil
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
			_, _ = s.Sweep()
		}
	}
}

// Sweep removes expired and undecodable entries and returns how many were
// removed.
func (s *Store) Sweep() (int, error) {
	now := s.now()
	n := 0
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketName)
		var stale [][]byte
		err := b.ForEach(func(k, v []byte) error {
			e, err := s.decode(string(k), v)
			if err != nil || !now.Before(e.ExpiresAt) {
				stale = append(stale, append([]byte(nil), k...))
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, k := range stale {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		n = len(stale)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("%w: sweeping sessions: %w", storage.ErrUnavailable, err)
	}
	return n, nil
}
