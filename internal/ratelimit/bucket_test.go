package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/taskforge/platform/internal/app/domain/fault"
)

type fixedClock struct{ t time.Time }

func (c *fixedClock) Now() time.Time { return c.t }

func TestAllowWithinLimit(t *testing.T) {
	clock := &fixedClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	l := New(NewMemoryBuckets(), clock, 3, time.Hour)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := l.Allow(ctx, "agent-1", "file-dispute"); err != nil {
			t.Fatalf("hit %d: %v", i+1, err)
		}
	}
	err := l.Allow(ctx, "agent-1", "file-dispute")
	if !errors.Is(err, fault.ErrConflict) {
		t.Fatalf("err = %v, want ErrConflict past the limit", err)
	}
}

func TestAllowIsolatesKeys(t *testing.T) {
	clock := &fixedClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	l := New(NewMemoryBuckets(), clock, 1, time.Hour)
	ctx := context.Background()

	if err := l.Allow(ctx, "agent-1", "file-dispute"); err != nil {
		t.Fatalf("agent-1: %v", err)
	}
	if err := l.Allow(ctx, "agent-2", "file-dispute"); err != nil {
		t.Fatalf("agent-2 should have a fresh bucket: %v", err)
	}
	if err := l.Allow(ctx, "agent-1", "place-bid"); err != nil {
		t.Fatalf("different action should have a fresh bucket: %v", err)
	}
}

func TestWindowResets(t *testing.T) {
	clock := &fixedClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	l := New(NewMemoryBuckets(), clock, 1, time.Hour)
	ctx := context.Background()

	if err := l.Allow(ctx, "agent-1", "file-dispute"); err != nil {
		t.Fatalf("first hit: %v", err)
	}
	if err := l.Allow(ctx, "agent-1", "file-dispute"); !errors.Is(err, fault.ErrConflict) {
		t.Fatalf("err = %v, want ErrConflict inside the window", err)
	}

	clock.t = clock.t.Add(time.Hour)
	if err := l.Allow(ctx, "agent-1", "file-dispute"); err != nil {
		t.Fatalf("hit after window rollover: %v", err)
	}
}
