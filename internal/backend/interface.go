// Package backend builds the persistence and messaging collaborators
// selected by configuration.
package backend

import (
	"context"
	"time"

	"flowmoney/internal/amqp"
	"flowmoney/internal/storage"
)

// CleanupFunc releases the resources of a backend
type CleanupFunc func() error

// BackendResult contains the store, the optional publisher and the cleanup
// function releasing both
type BackendResult struct {
	Store storage.Store
	// Publisher is nil when AMQP is not configured or unreachable.
	Publisher *amqp.Client
	Cleanup   CleanupFunc
}

// Factory creates backends based on configuration
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

// Config holds configuration for backend creation
type Config struct {
	Type BackendType

	// SQLite specific
	SQLiteDBPath string

	// Postgres specific
	DatabaseURL string

	// Store call policy
	StoreTimeout       time.Duration
	StoreRetryAttempts int
	StoreRetryDelay    time.Duration

	// Optional data-changed fan-out
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string
}

// BackendType represents the type of backend
type BackendType string

const (
	SQLiteBackend   BackendType = "sqlite"
	PostgresBackend BackendType = "postgres"
	MemoryBackend   BackendType = "memory"
)

// String implements fmt.Stringer
func (bt BackendType) String() string {
	return string(bt)
}

// IsValid returns true if the backend type is valid
func (bt BackendType) IsValid() bool {
	switch bt {
	case SQLiteBackend, PostgresBackend, MemoryBackend:
		return true
	default:
		return false
	}
}
