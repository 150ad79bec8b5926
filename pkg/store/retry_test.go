package store

import (
	"context"
	"errors"
	"testing"
	"time"
)

func fastPolicy(attempts int) RetryPolicy {
	return RetryPolicy{
		MaxAttempts:    attempts,
		InitialBackoff: time.Microsecond,
		MaxBackoff:     time.Millisecond,
	}
}

func TestRetryTransient(t *testing.T) {
	ctx := context.Background()

	// Succeeds on the third try.
	calls := 0
	err := fastPolicy(5).Do(ctx, func() error {
		calls++
		if calls < 3 {
			return &TransientError{Op: "open", Err: errors.New("throttled")}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do = %v, want nil", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestRetryExhaustion(t *testing.T) {
	ctx := context.Background()

	calls := 0
	transient := &TransientError{Op: "list", Err: errors.New("slow down")}
	err := fastPolicy(3).Do(ctx, func() error {
		calls++
		return transient
	})
	if !errors.Is(err, transient) {
		t.Errorf("Do = %v, want the last transient error", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestRetryFatalNotRetried(t *testing.T) {
	ctx := context.Background()

	calls := 0
	err := fastPolicy(5).Do(ctx, func() error {
		calls++
		return ErrAccessDenied
	})
	if !errors.Is(err, ErrAccessDenied) {
		t.Errorf("Do = %v, want ErrAccessDenied", err)
	}
	if calls != 1 {
		t.Errorf("fatal error retried: %d calls", calls)
	}
}

func TestRetryContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := RetryPolicy{MaxAttempts: 5, InitialBackoff: time.Hour}.Do(ctx, func() error {
		return &TransientError{Op: "open", Err: errors.New("net down")}
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Do = %v, want context.Canceled", err)
	}
}

func TestIsTransient(t *testing.T) {
	te := &TransientError{Op: "open", Err: errors.New("reset")}
	if !IsTransient(te) {
		t.Error("TransientError should be transient")
	}
	if !IsTransient(errors.Join(errors.New("outer"), te)) {
		t.Error("wrapped TransientError should be transient")
	}
	if IsTransient(ErrNotFound) || IsTransient(ErrAccessDenied) || IsTransient(nil) {
		t.Error("fatal errors and nil are not transient")
	}
}
