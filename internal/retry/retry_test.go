package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestDoSucceedsFirstAttempt(t *testing.T) {
	calls := 0
	got, err := Do(context.Background(), Policy{MaxAttempts: 3, InitialWait: time.Millisecond, Factor: 2}, func() (int, error) {
		calls++
		return 42, nil
	})
	if err != nil {
		t.Fatalf("Do failed: %v", err)
	}
	if got != 42 {
		t.Fatalf("expected 42, got %d", got)
	}
	if calls != 1 {
		t.Fatalf("expected 1 call, got %d", calls)
	}
}

func TestDoSucceedsAfterFailures(t *testing.T) {
	calls := 0
	got, err := Do(context.Background(), Policy{MaxAttempts: 5, InitialWait: time.Millisecond, Factor: 2}, func() (string, error) {
		calls++
		if calls < 3 {
			return "", errors.New("connection refused")
		}
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("Do failed: %v", err)
	}
	if got != "ok" {
		t.Fatalf("expected ok, got %q", got)
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
}

func TestDoExhaustsAttempts(t *testing.T) {
	opErr := errors.New("connection refused")
	calls := 0
	_, err := Do(context.Background(), Policy{MaxAttempts: 3, InitialWait: time.Millisecond, Factor: 2}, func() (int, error) {
		calls++
		return 0, opErr
	})
	if calls != 3 {
		t.Fatalf("expected exactly 3 calls, got %d", calls)
	}
	if !errors.Is(err, ErrExhausted) {
		t.Fatalf("expected ErrExhausted, got %v", err)
	}
	if !errors.Is(err, opErr) {
		t.Fatalf("final error should wrap the last operation error, got %v", err)
	}
}

func TestDoRejectsZeroAttempts(t *testing.T) {
	_, err := Do(context.Background(), Policy{MaxAttempts: 0}, func() (int, error) {
		t.Fatalf("op must not be called")
		return 0, nil
	})
	if err == nil {
		t.Fatalf("expected error for MaxAttempts=0")
	}
}

func TestDoCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	_, err := Do(ctx, DefaultPolicy, func() (int, error) {
		calls++
		return 0, errors.New("nope")
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if calls != 0 {
		t.Fatalf("op must not run under a cancelled context, got %d calls", calls)
	}
}

func TestDoBackoffGrows(t *testing.T) {
	var stamps []time.Time
	Do(context.Background(), Policy{MaxAttempts: 3, InitialWait: 20 * time.Millisecond, Factor: 2}, func() (int, error) {
		stamps = append(stamps, time.Now())
		return 0, errors.New("nope")
	})
	if len(stamps) != 3 {
		t.Fatalf("expected 3 attempts, got %d", len(stamps))
	}
	first := stamps[1].Sub(stamps[0])
	second := stamps[2].Sub(stamps[1])
	if first < 20*time.Millisecond {
		t.Fatalf("first wait too short: %s", first)
	}
	if second < 40*time.Millisecond {
		t.Fatalf("second wait did not grow: %s", second)
	}
}
