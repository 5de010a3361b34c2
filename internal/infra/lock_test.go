package infra

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestRedisLockerExcludesSecondHolder(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	defer mr.Close()
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer cache.Close()

	locker := NewRedisLocker(cache)
	ctx := context.Background()

	release, ok, err := locker.Acquire(ctx, "reconcile", time.Minute)
	if err != nil || !ok {
		t.Fatalf("expected first acquire to succeed, ok=%v err=%v", ok, err)
	}
	if _, ok, _ := locker.Acquire(ctx, "reconcile", time.Minute); ok {
		t.Fatal("second holder acquired a held lock")
	}

	release()
	if mr.Exists("lock:reconcile") {
		t.Fatal("release left the key behind")
	}
	if _, ok, _ := locker.Acquire(ctx, "reconcile", time.Minute); !ok {
		t.Fatal("expected acquire after release")
	}
}

func TestRedisLockerReleaseKeepsForeignToken(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	defer mr.Close()
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer cache.Close()

	locker := NewRedisLocker(cache)
	release, ok, _ := locker.Acquire(context.Background(), "job", time.Second)
	if !ok {
		t.Fatal("acquire failed")
	}
	mr.FastForward(2 * time.Second)
	mr.Set("lock:job", "someone-else")

	release()
	if got, _ := mr.Get("lock:job"); got != "someone-else" {
		t.Fatalf("release removed another holder's lock, value %q", got)
	}
}
