// Package redis provides a distributed storage.Store over Redis. Every BFF
// instance pointed at the same Redis shares sessions.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/jmcleod/hubuum-bff/storage"
)

// DefaultKeyPrefix namespaces session keys.
const DefaultKeyPrefix = "hubuum:session:"

const pingTimeout = 5 * time.Second

// Store keeps one JSON-encoded storage.Record per key with a Redis-side TTL.
type Store struct {
	client    *goredis.Client
	ttl       time.Duration
	keyPrefix string
}

var _ storage.Store = (*Store)(nil)

// Open parses a redis:// or rediss:// URL, connects and pings once. A failed
// ping is returned wrapped in storage.ErrUnavailable.
func Open(ctx context.Context, rawURL string, ttl time.Duration, keyPrefix string) (*Store, error) {
	opts, err := goredis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	client := goredis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: connecting to redis at %s: %w", storage.ErrUnavailable, opts.Addr, err)
	}
	return New(client, ttl, keyPrefix), nil
}

// New wraps an existing client. Close closes it.
func New(client *goredis.Client, ttl time.Duration, keyPrefix string) *Store {
	if keyPrefix == "" {
		keyPrefix = DefaultKeyPrefix
	}
	return &Store{client: client, ttl: ttl, keyPrefix: keyPrefix}
}

func (s *Store) key(id string) string {
	return s.keyPrefix + id
}

func (s *Store) Create(ctx context.Context, id string, rec storage.Record) error {
	return s.set(ctx, id, rec)
}

func (s *Store) Touch(ctx context.Context, id string, rec storage.Record) error {
	return s.set(ctx, id, rec)
}

func (s *Store) set(ctx context.Context, id string, rec storage.Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encoding session: %w", err)
	}
	if err := s.client.Set(ctx, s.key(id), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("%w: redis SET: %w", storage.ErrUnavailable, err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, id string) (storage.Record, bool, error) {
	data, err := s.client.Get(ctx, s.key(id)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return storage.Record{}, false, nil
	}
	if err != nil {
		return storage.Record{}, false, fmt.Errorf("%w: redis GET: %w", storage.ErrUnavailable, err)
	}
	var rec storage.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return storage.Record{}, false, fmt.Errorf("decoding session: %w", err)
	}
	return rec, true, nil
}

func (s *Store) Destroy(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, s.key(id)).Err(); err != nil {
		return fmt.Errorf("%w: redis DEL: %w", storage.ErrUnavailable, err)
	}
	return nil
}

// Health pings the server.
func (s *Store) Health(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: redis PING: %w", storage.ErrUnavailable, err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.client.Close()
}
