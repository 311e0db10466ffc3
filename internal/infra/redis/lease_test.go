package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"battle-quiz-service/internal/domain"
)

func TestLeaserOwnership(t *testing.T) {
	mr, client := newTestRedis(t)
	ctx := context.Background()
	a := NewLeaser(client, "instance-a", 30*time.Second)
	b := NewLeaser(client, "instance-b", 30*time.Second)

	if ok, err := a.Acquire(ctx, "room-1"); err != nil || !ok {
		t.Fatalf("acquire free lease: ok=%v err=%v", ok, err)
	}
	if got, _ := mr.Get(leaseKey("room-1")); got != "instance-a" {
		t.Fatalf("lease holder %q, want instance-a", got)
	}
	if ok, _ := b.Acquire(ctx, "room-1"); ok {
		t.Fatalf("b must not acquire a-held lease")
	}
	if ok, _ := b.Renew(ctx, "room-1"); ok {
		t.Fatalf("b must not renew a-held lease")
	}
	if err := b.Release(ctx, "room-1"); err != nil {
		t.Fatalf("foreign release: %v", err)
	}
	if !mr.Exists(leaseKey("room-1")) {
		t.Fatalf("foreign release must not drop the lease")
	}

	mr.FastForward(20 * time.Second)
	if ok, err := a.Renew(ctx, "room-1"); err != nil || !ok {
		t.Fatalf("renew: ok=%v err=%v", ok, err)
	}
	mr.FastForward(20 * time.Second)
	if !mr.Exists(leaseKey("room-1")) {
		t.Fatalf("renewed lease expired early")
	}

	mr.FastForward(31 * time.Second)
	if ok, _ := a.Renew(ctx, "room-1"); ok {
		t.Fatalf("expired lease cannot be renewed")
	}
	if ok, err := b.Acquire(ctx, "room-1"); err != nil || !ok {
		t.Fatalf("b should take over an expired lease: ok=%v err=%v", ok, err)
	}
	if err := b.Release(ctx, "room-1"); err != nil {
		t.Fatalf("release: %v", err)
	}
	if mr.Exists(leaseKey("room-1")) {
		t.Fatalf("released lease should be gone")
	}
}

func TestLeaserUnavailable(t *testing.T) {
	mr, client := newTestRedis(t)
	l := NewLeaser(client, "instance-a", time.Second)
	mr.Close()

	if _, err := l.Acquire(context.Background(), "room-1"); !errors.Is(err, domain.ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
}
