package scan

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"go.uber.org/zap"
)

func newRedisTestDeduper(t *testing.T, retention time.Duration) *RedisDeduper {
	t.Helper()
	url := os.Getenv("MATCHD_TEST_REDIS_URL")
	if url == "" {
		t.Skip("redis not configured (set MATCHD_TEST_REDIS_URL)")
	}
	d, err := NewRedisDeduper(url, retention, zap.NewNop())
	if err != nil {
		t.Fatalf("connect redis: %v", err)
	}
	t.Cleanup(func() { d.Close() })
	return d
}

func TestNewRedisDeduperBadURL(t *testing.T) {
	if _, err := NewRedisDeduper("://not-a-url", time.Hour, zap.NewNop()); err == nil {
		t.Fatal("expected error for malformed redis url")
	}
}

func TestRedisDeduperSeenAndRecord(t *testing.T) {
	ctx := context.Background()
	d := newRedisTestDeduper(t, time.Hour)
	id := fmt.Sprintf("s-%d", time.Now().UnixNano())

	seen, err := d.SeenAndRecord(ctx, id)
	if err != nil {
		t.Fatalf("first record: %v", err)
	}
	if seen {
		t.Error("first record should not be seen")
	}
	if seen, _ := d.SeenAndRecord(ctx, id); !seen {
		t.Error("second record should be seen")
	}

	// The key is namespaced and expires with the retention window.
	key := dedupKeyPrefix + id
	if n, err := d.rdb.Exists(ctx, key).Result(); err != nil || n != 1 {
		t.Fatalf("expected key %s to exist, got n=%d err=%v", key, n, err)
	}
	ttl, err := d.rdb.TTL(ctx, key).Result()
	if err != nil {
		t.Fatalf("ttl: %v", err)
	}
	if ttl <= 0 || ttl > time.Hour {
		t.Errorf("expected ttl within retention window, got %v", ttl)
	}
}

func TestRedisDeduperUnrecord(t *testing.T) {
	ctx := context.Background()
	d := newRedisTestDeduper(t, time.Hour)
	id := fmt.Sprintf("s-%d", time.Now().UnixNano())

	if seen, _ := d.SeenAndRecord(ctx, id); seen {
		t.Fatal("fresh id reported seen")
	}
	if err := d.Unrecord(ctx, id); err != nil {
		t.Fatalf("unrecord: %v", err)
	}
	if seen, _ := d.SeenAndRecord(ctx, id); seen {
		t.Error("unrecorded id should be accepted again")
	}
}
