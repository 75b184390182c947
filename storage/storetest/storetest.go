// Package storetest provides the conformance suite every storage.Store
// implementation must pass.
package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/jmcleod/hubuum-bff/storage"
)

// Harness describes a store under test. Advance moves the store's notion of
// time forward by d; the store must have been built with TTL.
type Harness struct {
	Store   storage.Store
	TTL     time.Duration
	Advance func(d time.Duration)
}

func record(token, username string) storage.Record {
	now := time.Now().UTC().Truncate(time.Second)
	return storage.Record{
		Token:     token,
		Username:  username,
		CreatedAt: now,
		LastSeen:  now,
	}
}

// Run runs the common suite against h.Store.
func Run(t *testing.T, h Harness) {
	t.Helper()
	ctx := context.Background()
	store := h.Store

	t.Run("CreateAndGet", func(t *testing.T) {
		rec := record("tok-1", "alice")
		if err := store.Create(ctx, "sid-1", rec); err != nil {
			t.Fatalf("Create: %v", err)
		}
		got, ok, err := store.Get(ctx, "sid-1")
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if !ok {
			t.Fatal("expected to find session")
		}
		if got.Token != "tok-1" {
			t.Fatalf("got Token %q, want %q", got.Token, "tok-1")
		}
		if got.Username != "alice" {
			t.Fatalf("got Username %q, want %q", got.Username, "alice")
		}
		if !got.CreatedAt.Equal(rec.CreatedAt) {
			t.Fatalf("got CreatedAt %v, want %v", got.CreatedAt, rec.CreatedAt)
		}
	})

	t.Run("GetMissing", func(t *testing.T) {
		_, ok, err := store.Get(ctx, "no-such-session")
		if err != nil {
			t.Fatalf("Get of missing id must not fail: %v", err)
		}
		if ok {
			t.Fatal("expected not found for missing id")
		}
	})

	t.Run("Destroy", func(t *testing.T) {
		if err := store.Create(ctx, "sid-del", record("tok-del", "")); err != nil {
			t.Fatalf("Create: %v", err)
		}
		if err := store.Destroy(ctx, "sid-del"); err != nil {
			t.Fatalf("Destroy: %v", err)
		}
		_, ok, err := store.Get(ctx, "sid-del")
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if ok {
			t.Fatal("expected session to be destroyed")
		}
		if err := store.Destroy(ctx, "sid-del"); err != nil {
			t.Fatalf("second Destroy must not fail: %v", err)
		}
	})

	t.Run("DestroyMissing", func(t *testing.T) {
		if err := store.Destroy(ctx, "never-existed"); err != nil {
			t.Fatalf("Destroy of missing id must not fail: %v", err)
		}
	})

	t.Run("TouchPreservesIdentity", func(t *testing.T) {
		rec := record("tok-touch", "bob")
		if err := store.Create(ctx, "sid-touch", rec); err != nil {
			t.Fatalf("Create: %v", err)
		}
		for i := 1; i <= 3; i++ {
			rec.LastSeen = rec.LastSeen.Add(time.Duration(i) * time.Second)
			if err := store.Touch(ctx, "sid-touch", rec); err != nil {
				t.Fatalf("Touch %d: %v", i, err)
			}
		}
		got, ok, err := store.Get(ctx, "sid-touch")
		if err != nil || !ok {
			t.Fatalf("Get after touch: ok=%v err=%v", ok, err)
		}
		if got.Token != "tok-touch" || got.Username != "bob" {
			t.Fatalf("touch changed identity: %+v", got)
		}
		if !got.LastSeen.Equal(rec.LastSeen) {
			t.Fatalf("got LastSeen %v, want %v", got.LastSeen, rec.LastSeen)
		}
	})

	t.Run("Overwrite", func(t *testing.T) {
		if err := store.Create(ctx, "sid-ow", record("tok-v1", "")); err != nil {
			t.Fatalf("Create: %v", err)
		}
		if err := store.Create(ctx, "sid-ow", record("tok-v2", "")); err != nil {
			t.Fatalf("Create: %v", err)
		}
		got, ok, err := store.Get(ctx, "sid-ow")
		if err != nil || !ok {
			t.Fatalf("Get: ok=%v err=%v", ok, err)
		}
		if got.Token != "tok-v2" {
			t.Fatalf("got Token %q, want %q", got.Token, "tok-v2")
		}
	})

	if h.Advance == nil {
		return
	}

	t.Run("Expires", func(t *testing.T) {
		if err := store.Create(ctx, "sid-exp", record("tok-exp", "")); err != nil {
			t.Fatalf("Create: %v", err)
		}
		h.Advance(h.TTL + time.Second)
		_, ok, err := store.Get(ctx, "sid-exp")
		if err != nil {
			t.Fatalf("Get of expired id must not fail: %v", err)
		}
		if ok {
			t.Fatal("expected expired session to be gone")
		}
	})

	t.Run("TouchSlidesExpiry", func(t *testing.T) {
		rec := record("tok-slide", "")
		if err := store.Create(ctx, "sid-slide", rec); err != nil {
			t.Fatalf("Create: %v", err)
		}
		h.Advance(h.TTL * 2 / 3)
		if err := store.Touch(ctx, "sid-slide", rec); err != nil {
			t.Fatalf("Touch: %v", err)
		}
		h.Advance(h.TTL * 2 / 3)
		if _, ok, err := store.Get(ctx, "sid-slide"); err != nil || !ok {
			t.Fatalf("expected touched session to outlive the original TTL: ok=%v err=%v", ok, err)
		}
	})
}
