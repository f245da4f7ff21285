package schemacatalog

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/redhatci/kaijs/internal/log"
)

func newTestRedisClient(t *testing.T) *redis.Client {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	return redis.NewClient(&redis.Options{Addr: mr.Addr()})
}

func TestRedisTagCacheMissThenHit(t *testing.T) {
	cache := NewRedisTagCache(newTestRedisClient(t), time.Minute)
	ctx := context.Background()

	if _, ok, err := cache.Get(ctx, "v1.0", "schemas/ci.json"); err != nil || ok {
		t.Fatalf("expected a clean miss, got ok=%v err=%v", ok, err)
	}

	if err := cache.Set(ctx, "v1.0", "schemas/ci.json", []byte(`{"type":"object"}`)); err != nil {
		t.Fatalf("set failed: %v", err)
	}

	raw, ok, err := cache.Get(ctx, "v1.0", "schemas/ci.json")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if !ok {
		t.Fatal("expected a hit after Set")
	}
	if string(raw) != `{"type":"object"}` {
		t.Errorf("got %q", raw)
	}
}

func TestRedisTagCacheKeysAreTagAndPathScoped(t *testing.T) {
	cache := NewRedisTagCache(newTestRedisClient(t), time.Minute)
	ctx := context.Background()

	if err := cache.Set(ctx, "v1.0", "a.json", []byte("a")); err != nil {
		t.Fatalf("set v1.0/a.json: %v", err)
	}
	if err := cache.Set(ctx, "v2.0", "a.json", []byte("b")); err != nil {
		t.Fatalf("set v2.0/a.json: %v", err)
	}

	raw, ok, err := cache.Get(ctx, "v1.0", "a.json")
	if err != nil || !ok {
		t.Fatalf("expected a hit for v1.0/a.json, got ok=%v err=%v", ok, err)
	}
	if string(raw) != "a" {
		t.Errorf("v1.0/a.json: got %q, want %q", raw, "a")
	}

	raw, ok, err = cache.Get(ctx, "v2.0", "a.json")
	if err != nil || !ok {
		t.Fatalf("expected a hit for v2.0/a.json, got ok=%v err=%v", ok, err)
	}
	if string(raw) != "b" {
		t.Errorf("v2.0/a.json: got %q, want %q", raw, "b")
	}
}

func TestCachedCatalogPopulatesOnMiss(t *testing.T) {
	source := setupSourceRepo(t)
	mirrorDir := filepath.Join(t.TempDir(), "mirror.git")
	logger := log.New("schemacatalog-test")
	ctx := context.Background()

	base := New(source, mirrorDir, logger)
	if err := base.EnsureCloned(ctx); err != nil {
		t.Fatalf("EnsureCloned: %v", err)
	}
	if err := base.Refresh(ctx); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	cache := NewRedisTagCache(newTestRedisClient(t), time.Minute)
	cached := NewCachedCatalog(base, cache)

	raw, err := cached.GetFile(ctx, "1.0.0", "schemas/ci.brew-build.test.json")
	if err != nil {
		t.Fatalf("GetFile (miss): %v", err)
	}

	// A second read for the same (tag, path) must come from redis, not
	// another git subprocess call: point the underlying catalog at a mirror
	// that no longer exists and confirm the cached read still succeeds.
	base.localPath = filepath.Join(t.TempDir(), "does-not-exist.git")

	raw2, err := cached.GetFile(ctx, "1.0.0", "schemas/ci.brew-build.test.json")
	if err != nil {
		t.Fatalf("GetFile (cached read after mirror removed): %v", err)
	}
	if string(raw2) != string(raw) {
		t.Errorf("cached read returned %q, want %q", raw2, raw)
	}
}
