package backend

import (
	"context"
	"errors"
	"fmt"

	"flowmoney/internal/amqp"
	flowlog "flowmoney/internal/log"
	"flowmoney/internal/storage"
	"flowmoney/internal/storage/memory"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *flowlog.Logger

	// newPublisher is replaced in tests.
	newPublisher func(url, exchange, queue string) (*amqp.Client, error)
}

// NewFactory creates a new backend factory
func NewFactory(logger *flowlog.Logger) *DefaultFactory {
	if logger == nil {
		logger = flowlog.FromContext(context.Background())
	}
	return &DefaultFactory{
		logger:       logger.WithComponent(flowlog.ComponentStorage),
		newPublisher: amqp.NewClient,
	}
}

var _ Factory = (*DefaultFactory)(nil)

// CreateBackend opens the configured store, checks it answers, and connects
// the AMQP publisher when one is configured. A publisher that cannot connect
// is logged and left out.
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	var (
		store storage.Store
		err   error
	)
	switch config.Type {
	case SQLiteBackend:
		store, err = storage.NewSQLiteRepository(config.SQLiteDBPath, config.RetryPolicy())
		if err != nil {
			return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
		}
		f.logger.Info("Initialized SQLite backend", "db_path", config.SQLiteDBPath)
	case PostgresBackend:
		store, err = storage.NewPostgresRepository(config.DatabaseURL, config.RetryPolicy())
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Postgres repository: %w", err)
		}
		f.logger.Info("Initialized Postgres backend")
	case MemoryBackend:
		store = memory.New()
		f.logger.Warn("Initialized memory backend, data is lost on restart")
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}

	if err := store.Ping(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("store not reachable: %w", err)
	}

	result := &BackendResult{Store: store}
	if config.AMQPURL != "" {
		pub, err := f.newPublisher(config.AMQPURL, config.AMQPExchange, config.AMQPQueue)
		if err != nil {
			f.logger.WithComponent(flowlog.ComponentAMQP).Warn("Failed to initialize AMQP client, continuing without fan-out", flowlog.FieldError, err)
		} else {
			result.Publisher = pub
			f.logger.WithComponent(flowlog.ComponentAMQP).Info("Initialized AMQP client",
				"exchange", config.AMQPExchange,
				"queue", config.AMQPQueue)
		}
	}

	result.Cleanup = func() error {
		var errs []error
		if result.Publisher != nil {
			errs = append(errs, result.Publisher.Close())
		}
		errs = append(errs, store.Close())
		return errors.Join(errs...)
	}
	return result, nil
}
