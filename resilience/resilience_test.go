package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRetry_SucceedsAfterFailures(t *testing.T) {
	calls := 0
	call := func(ctx context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", errors.New("flaky")
		}
		return "ok", nil
	}
	got, err := Do(context.Background(), call, WithRetry[string](2, time.Millisecond, nil))
	if err != nil || got != "ok" || calls != 3 {
		t.Fatalf("got %q, %v after %d calls", got, err, calls)
	}
}

func TestRetry_Exhausted(t *testing.T) {
	boom := errors.New("boom")
	calls := 0
	_, err := Do(context.Background(), func(ctx context.Context) (int, error) {
		calls++
		return 0, boom
	}, WithRetry[int](2, time.Millisecond, nil))

	var re *RetryError
	if !errors.As(err, &re) || re.Attempts != 3 || !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d", calls)
	}
}

func TestRetry_PermanentStops(t *testing.T) {
	calls := 0
	_, err := Do(context.Background(), func(ctx context.Context) (int, error) {
		calls++
		return 0, Permanent(errors.New("bad request"))
	}, WithRetry[int](5, time.Millisecond, nil))
	if calls != 1 || !IsPermanent(err) {
		t.Fatalf("calls = %d, err = %v", calls, err)
	}
}

func TestTimeoutPerAttempt(t *testing.T) {
	attempts := 0
	slow := func(ctx context.Context) (int, error) {
		attempts++
		<-ctx.Done()
		return 0, ctx.Err()
	}
	start := time.Now()
	_, err := Do(context.Background(), slow,
		WithRetry[int](1, time.Millisecond, nil),
		WithTimeout[int](20*time.Millisecond))
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v", err)
	}
	if attempts != 2 {
		t.Errorf("attempts = %d, want 2 (each with its own deadline)", attempts)
	}
	if time.Since(start) > 2*time.Second {
		t.Error("timeout not enforced")
	}
}

func TestFallback(t *testing.T) {
	remote := func(ctx context.Context) (string, error) { return "", errors.New("down") }
	local := func(ctx context.Context) (string, error) { return "local", nil }
	got, err := Do(context.Background(), remote, WithFallback(local, "climate", nil))
	if err != nil || got != "local" {
		t.Fatalf("got %q, %v", got, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	remoteCtx := func(ctx context.Context) (string, error) { return "", ctx.Err() }
	if _, err := Do(ctx, remoteCtx, WithFallback(local, "climate", nil)); !errors.Is(err, context.Canceled) {
		t.Fatalf("cancelled caller should not fall back: %v", err)
	}
}

func TestRecovery(t *testing.T) {
	_, err := Do(context.Background(), func(ctx context.Context) (int, error) {
		panic("kaboom")
	}, Recovery[int](nil))
	var pe *ErrPanic
	if !errors.As(err, &pe) || pe.Value != "kaboom" {
		t.Fatalf("err = %v", err)
	}
}
