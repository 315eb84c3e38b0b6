package services

import (
	"context"
	"log/slog"
	"time"

	"flowmoney/internal/core"
	flowlog "flowmoney/internal/log"
)

// Notifier receives a DataChange after the write it describes succeeded.
// Implementations must not block the caller for long and must not fail it.
type Notifier interface {
	DataChanged(ctx context.Context, change core.DataChange)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, change core.DataChange)

func (f NotifierFunc) DataChanged(ctx context.Context, change core.DataChange) { f(ctx, change) }

// Notifiers fans a change out to every non-nil notifier in order.
type Notifiers []Notifier

func (ns Notifiers) DataChanged(ctx context.Context, change core.DataChange) {
	for _, n := range ns {
		if n != nil {
			n.DataChanged(ctx, change)
		}
	}
}

type noopNotifier struct{}

func (noopNotifier) DataChanged(context.Context, core.DataChange) {}

func orNoop(n Notifier) Notifier {
	if n == nil {
		return noopNotifier{}
	}
	return n
}

// Clock returns the current time. Services take one so tests can pin it.
type Clock func() time.Time

func orSystemClock(c Clock) Clock {
	if c == nil {
		return time.Now
	}
	return c
}

func emit(ctx context.Context, n Notifier, userID string, kind core.ChangeKind, entityID, ledgerID string, at time.Time) {
	slog.DebugContext(ctx, "Data changed",
		flowlog.FieldUserID, userID, flowlog.FieldKind, kind, "entity_id", entityID)
	n.DataChanged(ctx, core.DataChange{
		UserID:   userID,
		Kind:     kind,
		EntityID: entityID,
		LedgerID: ledgerID,
		At:       at,
	})
}
