package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestAcquireUnblocked(t *testing.T) {
	c := New(10, time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	start := time.Now()
	if err := c.Acquire(ctx); err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Errorf("Acquire() took %v, want immediate", elapsed)
	}
}

func TestSetBlockedMovesForwardOnly(t *testing.T) {
	c := New(10, time.Second)
	base := time.Now()
	c.now = func() time.Time { return base }

	c.SetBlocked(60 * time.Second)
	if got := c.RemainingBlock(); got != 60*time.Second {
		t.Fatalf("RemainingBlock() = %v, want 60s", got)
	}

	// A shorter pause must not shorten the horizon already in force.
	c.SetBlocked(10 * time.Second)
	if got := c.RemainingBlock(); got != 60*time.Second {
		t.Errorf("RemainingBlock() after shorter SetBlocked = %v, want 60s", got)
	}

	c.SetBlocked(90 * time.Second)
	if got := c.RemainingBlock(); got != 90*time.Second {
		t.Errorf("RemainingBlock() after longer SetBlocked = %v, want 90s", got)
	}
}

func TestSetBlockedNonPositiveUsesDefault(t *testing.T) {
	c := New(10, time.Second)
	base := time.Now()
	c.now = func() time.Time { return base }

	c.SetBlocked(0)
	if got := c.RemainingBlock(); got != DefaultBlockDuration {
		t.Errorf("RemainingBlock() = %v, want %v", got, DefaultBlockDuration)
	}
}

func TestAcquireWaitsOutBlock(t *testing.T) {
	c := New(10, time.Second)
	c.SetBlocked(50 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	start := time.Now()
	if err := c.Acquire(ctx); err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if elapsed := time.Since(start); elapsed < 50*time.Millisecond {
		t.Errorf("Acquire() returned after %v, want at least 50ms", elapsed)
	}
	if c.IsBlocked() {
		t.Error("IsBlocked() = true after block expired")
	}
}

func TestAcquireCancelledWhileBlocked(t *testing.T) {
	c := New(10, time.Second)
	c.SetBlocked(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	err := c.Acquire(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Acquire() error = %v, want context.DeadlineExceeded", err)
	}
}

func TestBucketRejectsWhenDeadlineTooShort(t *testing.T) {
	c := New(1, time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if err := c.Acquire(ctx); err != nil {
		t.Fatalf("first Acquire() error = %v", err)
	}
	// The bucket is drained; the next token is a minute out, far past the
	// deadline, so the wait fails fast.
	if err := c.Acquire(ctx); err == nil {
		t.Error("second Acquire() error = nil, want deadline-related error")
	}
}

func TestGlobalSingleton(t *testing.T) {
	Reset()
	t.Cleanup(Reset)

	a := Global()
	b := Global()
	if a != b {
		t.Error("Global() returned different coordinators")
	}

	replaced := Configure(5, time.Second)
	if Global() != replaced {
		t.Error("Global() does not return the configured coordinator")
	}
	if replaced == a {
		t.Error("Configure() did not replace the coordinator")
	}
}
