package session

import (
	"context"
	"fmt"
	"net/url"

	"github.com/jmcleod/hubuum-bff/config"
	"github.com/jmcleod/hubuum-bff/internal/util"
	"github.com/jmcleod/hubuum-bff/storage"
	"github.com/jmcleod/hubuum-bff/storage/bbolt"
	"github.com/jmcleod/hubuum-bff/storage/memory"
	"github.com/jmcleod/hubuum-bff/storage/redis"
)

// OpenStore builds the store named by cfg.StoreURL. An empty URL returns
// (nil, nil), which selects standalone mode.
func OpenStore(ctx context.Context, cfg config.SessionConfig) (storage.Store, error) {
	if cfg.StoreURL == "" {
		return nil, nil
	}
	u, err := url.Parse(cfg.StoreURL)
	if err != nil {
		return nil, fmt.Errorf("session store url: %w", err)
	}
	switch u.Scheme {
	case "memory":
		return memory.New(cfg.TTL, memory.WithSweepInterval(cfg.SweepInterval)), nil
	case "redis", "rediss":
		store, err := redis.Open(ctx, cfg.StoreURL, cfg.TTL, cfg.KeyPrefix)
		if err != nil {
			return nil, err
		}
		return store, nil
	case "bolt", "bbolt":
		path := u.Path
		if u.Host != "" {
			// bolt://relative/path.db
			path = u.Host + u.Path
		}
		if path == "" {
			return nil, fmt.Errorf("session store url %q: missing file path", cfg.StoreURL)
		}
		opts := []bbolt.Option{bbolt.WithSweepInterval(cfg.SweepInterval)}
		if cfg.CookieSecret != "" {
			key, err := util.DeriveKey([]byte(cfg.CookieSecret), "session-store-seal")
			if err != nil {
				return nil, err
			}
			opts = append(opts, bbolt.WithSealingKey(key))
			util.WipeBytes(key)
		}
		store, err := bbolt.Open(path, cfg.TTL, opts...)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("session store url: unsupported scheme %q", u.Scheme)
	}
}
