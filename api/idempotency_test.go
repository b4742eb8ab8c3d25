package api

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newDeduperFixture(t *testing.T, ttl time.Duration) (*miniredis.Miniredis, *RedisDeduper) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, NewRedisDeduper(client, ttl)
}

func TestDeduperAddOnce(t *testing.T) {
	_, d := newDeduperFixture(t, time.Minute)
	ctx := context.Background()

	added, err := d.Add(ctx, "user", "key-1")
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if !added {
		t.Fatal("first add must succeed")
	}

	added, err = d.Add(ctx, "user", "key-1")
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if added {
		t.Fatal("duplicate key must not be added")
	}
}

func TestDeduperKeysAreScopedPerUser(t *testing.T) {
	_, d := newDeduperFixture(t, time.Minute)
	ctx := context.Background()

	if added, _ := d.Add(ctx, "alice", "key-1"); !added {
		t.Fatal("first user add failed")
	}
	if added, _ := d.Add(ctx, "bob", "key-1"); !added {
		t.Fatal("same key for another user must be independent")
	}
}

func TestDeduperRemoveAllowsRetry(t *testing.T) {
	_, d := newDeduperFixture(t, time.Minute)
	ctx := context.Background()

	if _, err := d.Add(ctx, "user", "key-1"); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := d.Remove(ctx, "user", "key-1"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	added, err := d.Add(ctx, "user", "key-1")
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if !added {
		t.Fatal("key must be addable again after remove")
	}
}

func TestDeduperKeysExpire(t *testing.T) {
	mr, d := newDeduperFixture(t, time.Minute)
	ctx := context.Background()

	if _, err := d.Add(ctx, "user", "key-1"); err != nil {
		t.Fatalf("add: %v", err)
	}
	mr.FastForward(2 * time.Minute)

	added, err := d.Add(ctx, "user", "key-1")
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if !added {
		t.Fatal("expired key must be addable again")
	}
}
