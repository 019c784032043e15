// CLAUDE:SUMMARY Call middleware for external services: per-attempt timeout, retry with exponential backoff, local fallback, panic recovery.
// Package resilience wraps calls to external services (the vision model,
// the remote climate lookup) with timeouts, retries and fallbacks.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"
)

// Call is one attempt at a remote operation.
type Call[T any] func(ctx context.Context) (T, error)

// Middleware wraps a Call without changing its signature.
type Middleware[T any] func(next Call[T]) Call[T]

// Chain composes middlewares left-to-right: the first is the outermost.
func Chain[T any](mws ...Middleware[T]) Middleware[T] {
	return func(next Call[T]) Call[T] {
		for i := len(mws) - 1; i >= 0; i-- {
			next = mws[i](next)
		}
		return next
	}
}

// Do runs call wrapped in mws.
func Do[T any](ctx context.Context, call Call[T], mws ...Middleware[T]) (T, error) {
	return Chain(mws...)(call)(ctx)
}

// WithTimeout bounds each call. Placed inside WithRetry it bounds each
// attempt separately. Zero disables it.
func WithTimeout[T any](d time.Duration) Middleware[T] {
	return func(next Call[T]) Call[T] {
		return func(ctx context.Context) (T, error) {
			if d > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, d)
				defer cancel()
			}
			return next(ctx)
		}
	}
}

// RetryError reports a call that failed on every attempt.
type RetryError struct {
	Attempts int
	Err      error
}

func (e *RetryError) Error() string {
	return fmt.Sprintf("resilience: %d attempts failed: %v", e.Attempts, e.Err)
}

func (e *RetryError) Unwrap() error { return e.Err }

// permanentError marks an error that retrying cannot fix.
type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// WithRetry retries failed calls up to maxRetries times, waiting
// baseBackoff doubled on each attempt. Cancellation of the parent context
// and permanent errors stop the loop. A logger may be nil.
func WithRetry[T any](maxRetries int, baseBackoff time.Duration, logger *slog.Logger) Middleware[T] {
	return func(next Call[T]) Call[T] {
		return func(ctx context.Context) (T, error) {
			var zero T
			var lastErr error
			attempts := 0
			for attempt := 0; attempt <= maxRetries; attempt++ {
				attempts++
				resp, err := next(ctx)
				if err == nil {
					return resp, nil
				}
				lastErr = err

				if ctx.Err() != nil || IsPermanent(err) {
					break
				}
				if attempt < maxRetries {
					wait := baseBackoff * (1 << uint(attempt))
					if logger != nil {
						logger.WarnContext(ctx, "retrying call",
							"attempt", attempt+1,
							"max_retries", maxRetries,
							"backoff_ms", wait.Milliseconds(),
							"error", err)
					}
					select {
					case <-ctx.Done():
						return zero, &RetryError{Attempts: attempts, Err: lastErr}
					case <-time.After(wait):
					}
				}
			}
			return zero, &RetryError{Attempts: attempts, Err: lastErr}
		}
	}
}

// WithFallback calls local when the wrapped call fails, unless the caller
// cancelled.
func WithFallback[T any](local Call[T], service string, logger *slog.Logger) Middleware[T] {
	return func(next Call[T]) Call[T] {
		if local == nil {
			return next
		}
		return func(ctx context.Context) (T, error) {
			resp, err := next(ctx)
			if err == nil {
				return resp, nil
			}
			if ctx.Err() != nil {
				return resp, err
			}
			if logger != nil {
				logger.WarnContext(ctx, "remote failed, falling back to local",
					"service", service,
					"remote_error", err)
			}
			return local(ctx)
		}
	}
}

// ErrPanic wraps a recovered panic value.
type ErrPanic struct {
	Value any
}

func (e *ErrPanic) Error() string {
	return fmt.Sprintf("resilience: call panicked: %v", e.Value)
}

// Recovery converts panics in downstream calls into *ErrPanic.
func Recovery[T any](logger *slog.Logger) Middleware[T] {
	return func(next Call[T]) Call[T] {
		return func(ctx context.Context) (resp T, err error) {
			defer func() {
				if r := recover(); r != nil {
					if logger != nil {
						logger.ErrorContext(ctx, "call panic recovered",
							"panic", r,
							"stack", string(debug.Stack()))
					}
					err = &ErrPanic{Value: r}
				}
			}()
			return next(ctx)
		}
	}
}
