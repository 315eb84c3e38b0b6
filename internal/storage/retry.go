package storage

import (
	"context"
	"database/sql/driver"
	"errors"
	"io"
	"log/slog"
	"net"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/lib/pq"
	"modernc.org/sqlite"

	"flowmoney/internal/core"
)

const (
	sqliteBusy   = 5
	sqliteLocked = 6
)

// RetryPolicy bounds every store call.
type RetryPolicy struct {
	Attempts int
	Delay    time.Duration
	Timeout  time.Duration
}

// DefaultRetryPolicy is three attempts one second apart, five seconds each.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Attempts: 3, Delay: time.Second, Timeout: 5 * time.Second}
}

func (p RetryPolicy) normalized() RetryPolicy {
	d := DefaultRetryPolicy()
	if p.Attempts <= 0 {
		p.Attempts = d.Attempts
	}
	if p.Delay < 0 {
		p.Delay = d.Delay
	}
	if p.Timeout <= 0 {
		p.Timeout = d.Timeout
	}
	return p
}

// withRetry runs fn under the policy timeout and retries transient failures.
// Errors that survive are wrapped in core.ErrTransientStore when transient.
func withRetry[T any](ctx context.Context, p RetryPolicy, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	attempt := 0
	res, err := backoff.Retry(ctx, func() (T, error) {
		attempt++
		callCtx, cancel := context.WithTimeout(ctx, p.Timeout)
		defer cancel()
		v, err := fn(callCtx)
		if err == nil {
			return v, nil
		}
		if ctx.Err() != nil || !isTransient(err) {
			return v, backoff.Permanent(err)
		}
		slog.WarnContext(ctx, "Transient store error, retrying",
			"op", op, "attempt", attempt, "error", err)
		return v, err
	},
		backoff.WithBackOff(backoff.NewConstantBackOff(p.Delay)),
		backoff.WithMaxTries(uint(p.Attempts)),
	)
	if err != nil && isTransient(err) {
		return res, errors.Join(core.ErrTransientStore, err)
	}
	return res, err
}

// withRetryExec is withRetry for calls without a result.
func withRetryExec(ctx context.Context, p RetryPolicy, op string, fn func(ctx context.Context) error) error {
	_, err := withRetry(ctx, p, op, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// isTransient classifies driver errors worth another attempt.
func isTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, core.ErrValidation) || errors.Is(err, core.ErrIntegrity) ||
		errors.Is(err, core.ErrNotFound) || errors.Is(err, core.ErrUnauthorized) ||
		errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.EPIPE) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		switch liteErr.Code() & 0xff {
		case sqliteBusy, sqliteLocked:
			return true
		}
		return false
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "40001", "40P01", "57P01", "53300":
			return true
		}
		return pqErr.Code.Class() == "08"
	}
	return false
}
