package entity

import (
	"context"
	"os"
	"testing"
	"time"
)

type fakeNow struct{ t time.Time }

func (f *fakeNow) now() time.Time          { return f.t }
func (f *fakeNow) advance(d time.Duration) { f.t = f.t.Add(d) }

func TestMemoryCacheTTL(t *testing.T) {
	ctx := context.Background()
	clock := &fakeNow{t: time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)}
	cache := NewMemoryCache(time.Hour, clock.now)

	want := []Entity{{Type: Station, Value: "Blok M", Start: 0, End: 6}}
	if err := cache.Set(ctx, "k", want); err != nil {
		t.Fatalf("Set: %v", err)
	}

	clock.advance(59 * time.Minute)
	got, ok, _ := cache.Get(ctx, "k")
	if !ok || len(got) != 1 || got[0] != want[0] {
		t.Fatalf("Get within TTL = %v, %v", got, ok)
	}

	clock.advance(time.Minute)
	if _, ok, _ := cache.Get(ctx, "k"); ok {
		t.Fatal("entry at TTL age must not be returned")
	}
	if cache.Len() != 1 {
		t.Fatalf("expired entry should linger until the next write, Len = %d", cache.Len())
	}

	cache.Set(ctx, "other", nil)
	if cache.Len() != 1 {
		t.Errorf("write should purge expired entries, Len = %d", cache.Len())
	}
}

func TestMemoryCacheReturnsCopies(t *testing.T) {
	ctx := context.Background()
	cache := NewMemoryCache(0, nil)

	in := []Entity{{Type: POI, Value: "Monas"}}
	cache.Set(ctx, "k", in)
	in[0].Value = "mutated"

	got, _, _ := cache.Get(ctx, "k")
	got[0].Value = "also mutated"

	again, _, _ := cache.Get(ctx, "k")
	if again[0].Value != "Monas" {
		t.Errorf("cached value changed to %q", again[0].Value)
	}
}

func TestRedisCache(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	ctx := context.Background()

	client, err := DialRedis(ctx, addr, os.Getenv("REDIS_PASSWORD"), 0)
	if err != nil {
		t.Fatalf("DialRedis: %v", err)
	}
	defer client.Close()

	cache := NewRedisCache(client, time.Minute)
	key := Key("redis cache test " + time.Now().String())
	defer client.Del(ctx, RedisKeyPrefix+key)

	if _, ok, err := cache.Get(ctx, key); err != nil || ok {
		t.Fatalf("Get before Set = %v, %v", ok, err)
	}

	want := []Entity{{Type: TransportType, Value: "MRT", Start: 17, End: 20}}
	if err := cache.Set(ctx, key, want); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, ok, err := cache.Get(ctx, key)
	if err != nil || !ok || len(got) != 1 || got[0] != want[0] {
		t.Fatalf("Get = %v, %v, %v", got, ok, err)
	}

	ttl := client.TTL(ctx, RedisKeyPrefix+key).Val()
	if ttl <= 0 || ttl > time.Minute {
		t.Errorf("TTL = %v", ttl)
	}
}
