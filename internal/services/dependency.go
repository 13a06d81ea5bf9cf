package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sjperalta/pharmavault-api/pkg/logger"
)

// withTimeout runs call against an external dependency (blob store,
// identity provider) and gives up after d. Expiry surfaces as
// ErrDependencyUnavailable; nothing is retried here.
func withTimeout[T any](ctx context.Context, d time.Duration, name string, call func(context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	type result struct {
		val T
		err error
	}
	done := make(chan result, 1)
	go func() {
		v, err := call(ctx)
		done <- result{val: v, err: err}
	}()

	var zero T
	select {
	case r := <-done:
		if r.err != nil && (errors.Is(r.err, context.DeadlineExceeded) || errors.Is(r.err, context.Canceled)) {
			logger.Warn("dependency call aborted", slog.String("dependency", name), slog.String("error", r.err.Error()))
			return zero, newError(ErrDependencyUnavailable, "%s did not respond in time", name)
		}
		return r.val, r.err
	case <-ctx.Done():
		logger.Warn("dependency call timed out", slog.String("dependency", name), slog.Duration("timeout", d))
		return zero, newError(ErrDependencyUnavailable, "%s did not respond in time", name)
	}
}
