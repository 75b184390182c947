package session

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/awnumar/memguard"

	"github.com/jmcleod/hubuum-bff/internal/util"
	"github.com/jmcleod/hubuum-bff/internal/uuid"
	"github.com/jmcleod/hubuum-bff/storage"
)

// sessionIDBytes is the entropy of a distributed session id.
const sessionIDBytes = 32

// codec is the per-mode half of the Manager: how an identity is created,
// written to and read back from the browser.
type codec interface {
	mode() Mode
	create(ctx context.Context, rec storage.Record) (Identity, error)
	write(w http.ResponseWriter, r *http.Request, id Identity) error
	resolve(r *http.Request, now time.Time) (*Session, error)
	destroy(ctx context.Context, s *Session) error
}

type distributedCodec struct {
	store storage.Store
	names CookieNames
	ttl   time.Duration
}

func (distributedCodec) mode() Mode { return ModeDistributed }

func (c distributedCodec) create(ctx context.Context, rec storage.Record) (Identity, error) {
	id, err := util.RandomToken(sessionIDBytes)
	if err != nil {
		return nil, err
	}
	if err := c.store.Create(ctx, id, rec); err != nil {
		return nil, err
	}
	return Distributed{ID: id}, nil
}

func (c distributedCodec) write(w http.ResponseWriter, r *http.Request, id Identity) error {
	d, ok := id.(Distributed)
	if !ok {
		return fmt.Errorf("session: %T identity in distributed mode", id)
	}
	writeCookie(w, r, c.names.Session, d.ID, c.ttl)
	return nil
}

func (c distributedCodec) resolve(r *http.Request, now time.Time) (*Session, error) {
	id := cookieValue(r, c.names.Session)
	if id == "" {
		return nil, nil
	}
	ctx := r.Context()
	rec, ok, err := c.store.Get(ctx, id)
	if err != nil || !ok {
		return nil, err
	}
	rec.LastSeen = now
	if err := c.store.Touch(ctx, id, rec); err != nil {
		return nil, err
	}
	return &Session{ID: id, Record: rec, ExpiresAt: now.Add(c.ttl)}, nil
}

func (c distributedCodec) destroy(ctx context.Context, s *Session) error {
	return c.store.Destroy(ctx, s.ID)
}

// standaloneCodec carries the token and username in their own cookies.
type standaloneCodec struct {
	names  CookieNames
	ttl    time.Duration
	values valueCodec
}

func (standaloneCodec) mode() Mode { return ModeStandalone }

func (c standaloneCodec) create(_ context.Context, rec storage.Record) (Identity, error) {
	return Standalone{Token: rec.Token, Username: rec.Username}, nil
}

func (c standaloneCodec) write(w http.ResponseWriter, r *http.Request, id Identity) error {
	s, ok := id.(Standalone)
	if !ok {
		return fmt.Errorf("session: %T identity in standalone mode", id)
	}
	token, err := c.values.encode(c.names.Token, s.Token)
	if err != nil {
		return err
	}
	writeCookie(w, r, c.names.Token, token, c.ttl)
	if s.Username == "" {
		expireCookie(w, r, c.names.Username)
		return nil
	}
	username, err := c.values.encode(c.names.Username, s.Username)
	if err != nil {
		return err
	}
	writeCookie(w, r, c.names.Username, username, c.ttl)
	return nil
}

func (c standaloneCodec) resolve(r *http.Request, now time.Time) (*Session, error) {
	raw := cookieValue(r, c.names.Token)
	if raw == "" {
		return nil, nil
	}
	token, ok := c.values.decode(c.names.Token, raw)
	if !ok || token == "" {
		return nil, nil
	}
	username := ""
	if raw := cookieValue(r, c.names.Username); raw != "" {
		username, _ = c.values.decode(c.names.Username, raw)
	}
	return &Session{
		ID: "local-" + uuid.New(),
		Record: storage.Record{
			Token:    token,
			Username: username,
			LastSeen: now,
		},
	}, nil
}

func (standaloneCodec) destroy(context.Context, *Session) error { return nil }

// valueCodec turns cookie payloads into cookie-safe strings. The cookie name
// is bound into sealed values so they cannot be moved between cookies.
type valueCodec interface {
	encode(name, value string) (string, error)
	decode(name, value string) (string, bool)
}

type plainValues struct{}

func (plainValues) encode(_, value string) (string, error) {
	return util.B64Encode([]byte(value)), nil
}

func (plainValues) decode(_, value string) (string, bool) {
	b, err := util.B64Decode(value)
	if err != nil {
		return "", false
	}
	return string(b), true
}

// sealedValues AES-GCM seals each value under a key held in a memguard
// enclave.
type sealedValues struct {
	key *memguard.Enclave
}

func newSealedValues(secret []byte) (*sealedValues, error) {
	key, err := util.DeriveKey(secret, "cookie-seal")
	if err != nil {
		return nil, err
	}
	return &sealedValues{key: memguard.NewEnclave(key)}, nil
}

func (s *sealedValues) encode(name, value string) (string, error) {
	buf, err := s.key.Open()
	if err != nil {
		return "", fmt.Errorf("opening cookie key: %w", err)
	}
	defer buf.Destroy()
	sealed, err := util.Seal([]byte(value), buf.Bytes(), []byte(name))
	if err != nil {
		return "", err
	}
	return util.B64Encode(sealed), nil
}

func (s *sealedValues) decode(name, value string) (string, bool) {
	sealed, err := util.B64Decode(value)
	if err != nil {
		return "", false
	}
	buf, err := s.key.Open()
	if err != nil {
		return "", false
	}
	defer buf.Destroy()
	plain, err := util.Open(sealed, buf.Bytes(), []byte(name))
	if err != nil {
		return "", false
	}
	return string(plain), true
}
