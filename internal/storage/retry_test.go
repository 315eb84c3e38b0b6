package storage

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/lib/pq"

	"flowmoney/internal/core"
)

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"bad conn", driver.ErrBadConn, true},
		{"wrapped bad conn", fmt.Errorf("query: %w", driver.ErrBadConn), true},
		{"deadline", context.DeadlineExceeded, true},
		{"canceled", context.Canceled, false},
		{"not found", core.ErrNotFound, false},
		{"validation", fmt.Errorf("%w: amount must be positive", core.ErrValidation), false},
		{"integrity", core.ErrIntegrity, false},
		{"unexpected eof", io.ErrUnexpectedEOF, true},
		{"connection reset", syscall.ECONNRESET, true},
		{"connection refused", syscall.ECONNREFUSED, true},
		{"pq serialization failure", &pq.Error{Code: "40001"}, true},
		{"pq deadlock", &pq.Error{Code: "40P01"}, true},
		{"pq connection failure", &pq.Error{Code: "08006"}, true},
		{"pq admin shutdown", &pq.Error{Code: "57P01"}, true},
		{"pq unique violation", &pq.Error{Code: "23505"}, false},
		{"plain error", errors.New("boom"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isTransient(tt.err); got != tt.want {
				t.Errorf("isTransient(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestIsTransientSQLiteBusy(t *testing.T) {
	path := filepath.Join(t.TempDir(), "busy.db")
	dsn := "file:" + path + "?_pragma=busy_timeout(0)"

	holder, err := sql.Open("sqlite", dsn)
	if err != nil {
		t.Fatalf("open holder: %v", err)
	}
	defer holder.Close()
	other, err := sql.Open("sqlite", dsn)
	if err != nil {
		t.Fatalf("open other: %v", err)
	}
	defer other.Close()

	if _, err := holder.Exec("CREATE TABLE t (x INTEGER)"); err != nil {
		t.Fatalf("create table: %v", err)
	}
	tx, err := holder.Begin()
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	defer tx.Rollback()
	if _, err := tx.Exec("INSERT INTO t VALUES (1)"); err != nil {
		t.Fatalf("insert in tx: %v", err)
	}

	_, err = other.Exec("INSERT INTO t VALUES (2)")
	if err == nil {
		t.Fatal("expected write to fail while another writer holds the lock")
	}
	if !isTransient(err) {
		t.Errorf("expected busy error to be transient, got %v", err)
	}
}

func TestWithRetry(t *testing.T) {
	policy := RetryPolicy{Attempts: 3, Delay: time.Millisecond, Timeout: time.Second}

	tests := []struct {
		name          string
		errs          []error
		wantCalls     int
		wantErr       error
		wantTransient bool
	}{
		{
			name:      "success first try",
			errs:      []error{nil},
			wantCalls: 1,
		},
		{
			name:      "success after transient",
			errs:      []error{driver.ErrBadConn, nil},
			wantCalls: 2,
		},
		{
			name:          "transient exhausts attempts",
			errs:          []error{driver.ErrBadConn, driver.ErrBadConn, driver.ErrBadConn, nil},
			wantCalls:     3,
			wantErr:       driver.ErrBadConn,
			wantTransient: true,
		},
		{
			name:      "not found is not retried",
			errs:      []error{core.ErrNotFound, nil},
			wantCalls: 1,
			wantErr:   core.ErrNotFound,
		},
		{
			name:      "validation is not retried",
			errs:      []error{fmt.Errorf("%w: bad", core.ErrValidation), nil},
			wantCalls: 1,
			wantErr:   core.ErrValidation,
		},
		{
			name:          "pq serialization failure is retried",
			errs:          []error{&pq.Error{Code: "40001"}, &pq.Error{Code: "40001"}, &pq.Error{Code: "40001"}},
			wantCalls:     3,
			wantTransient: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			got, err := withRetry(context.Background(), policy, "test", func(ctx context.Context) (int, error) {
				e := tt.errs[calls]
				calls++
				if e != nil {
					return 0, e
				}
				return 42, nil
			})

			if calls != tt.wantCalls {
				t.Errorf("calls = %d, want %d", calls, tt.wantCalls)
			}
			if tt.wantErr == nil && !tt.wantTransient {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if got != 42 {
					t.Errorf("result = %d, want 42", got)
				}
				return
			}
			if err == nil {
				t.Fatal("expected error")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v in chain, got %v", tt.wantErr, err)
			}
			if got := errors.Is(err, core.ErrTransientStore); got != tt.wantTransient {
				t.Errorf("ErrTransientStore = %v, want %v (err %v)", got, tt.wantTransient, err)
			}
		})
	}
}

func TestWithRetryExec(t *testing.T) {
	policy := RetryPolicy{Attempts: 2, Delay: time.Millisecond, Timeout: time.Second}

	calls := 0
	err := withRetryExec(context.Background(), policy, "test", func(ctx context.Context) error {
		calls++
		return syscall.ECONNRESET
	})
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
	if !errors.Is(err, core.ErrTransientStore) {
		t.Errorf("expected ErrTransientStore, got %v", err)
	}
}

func TestWithRetryStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	policy := RetryPolicy{Attempts: 5, Delay: time.Millisecond, Timeout: time.Second}

	calls := 0
	err := withRetryExec(ctx, policy, "test", func(ctx context.Context) error {
		calls++
		cancel()
		return driver.ErrBadConn
	})
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestRetryPolicyNormalized(t *testing.T) {
	def := DefaultRetryPolicy()
	tests := []struct {
		name string
		in   RetryPolicy
		want RetryPolicy
	}{
		{"zero value", RetryPolicy{}, RetryPolicy{Attempts: def.Attempts, Delay: 0, Timeout: def.Timeout}},
		{"negative delay", RetryPolicy{Attempts: 2, Delay: -1, Timeout: time.Second}, RetryPolicy{Attempts: 2, Delay: def.Delay, Timeout: time.Second}},
		{"kept", RetryPolicy{Attempts: 4, Delay: time.Millisecond, Timeout: time.Minute}, RetryPolicy{Attempts: 4, Delay: time.Millisecond, Timeout: time.Minute}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.in.normalized(); got != tt.want {
				t.Errorf("normalized() = %+v, want %+v", got, tt.want)
			}
		})
	}
}
