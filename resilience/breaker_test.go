package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestBreaker_OpensAndRecovers(t *testing.T) {
	now := time.Unix(1000, 0)
	b := NewBreaker(WithBreakerThreshold(2), WithBreakerResetTimeout(time.Minute),
		WithBreakerClock(func() time.Time { return now }))

	fail := true
	calls := 0
	call := func(ctx context.Context) (int, error) {
		calls++
		if fail {
			return 0, errors.New("down")
		}
		return 1, nil
	}
	mw := WithBreaker[int](b, "climate")
	for range 2 {
		Do(context.Background(), call, mw)
	}
	if b.State() != BreakerOpen {
		t.Fatalf("state = %v, want open", b.State())
	}

	_, err := Do(context.Background(), call, mw)
	var open *ErrCircuitOpen
	if !errors.As(err, &open) || !IsPermanent(err) || calls != 2 {
		t.Fatalf("err = %v, calls = %d", err, calls)
	}

	now = now.Add(2 * time.Minute)
	if b.State() != BreakerHalfOpen {
		t.Fatalf("state = %v, want half_open", b.State())
	}
	fail = false
	for range 2 {
		if _, err := Do(context.Background(), call, mw); err != nil {
			t.Fatal(err)
		}
	}
	if b.State() != BreakerClosed {
		t.Errorf("state = %v, want closed", b.State())
	}
}

func TestBreaker_IgnoresPermanentErrors(t *testing.T) {
	b := NewBreaker(WithBreakerThreshold(1))
	_, err := Do(context.Background(), func(ctx context.Context) (int, error) {
		return 0, Permanent(errors.New("bad request"))
	}, WithBreaker[int](b, "climate"))
	if err == nil || b.State() != BreakerClosed {
		t.Fatalf("err = %v, state = %v", err, b.State())
	}
}
