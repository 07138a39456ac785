// internal/domain/notification/repository.go
package notification

import (
	"context"
	"errors"

	"clinic_notification_engine/internal/domain/calendar"
)

var ErrUnknownKind = errors.New("unknown notification kind")

// ErrDeliveryRejected is returned by a Center that refuses to schedule.
var ErrDeliveryRejected = errors.New("delivery rejected")

// Ledger is the durable idempotence record. It, not the pending list, decides
// whether a notification was already delivered.
type Ledger interface {
	WasSent(ctx context.Context, m SentMarker) (bool, error)
	MarkSent(ctx context.Context, m SentMarker) error
	// Prune removes markers dated before the given day and returns how many went.
	Prune(ctx context.Context, before calendar.Date) (int, error)
}

// Center is the platform notification center.
type Center interface {
	Schedule(ctx context.Context, d PendingDelivery) error
	Cancel(ctx context.Context, identifiers []string) error
	ListPending(ctx context.Context) ([]PendingDelivery, error)
}
