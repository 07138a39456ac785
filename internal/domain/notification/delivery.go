package notification

import (
	"time"

	"clinic_notification_engine/internal/domain/calendar"
)

// PendingDelivery is a scheduled, not yet fired notification.
type PendingDelivery struct {
	Kind       Kind
	Identifier string
	TriggerAt  time.Time
	Date       calendar.Date // day the content is about; keys the ledger
	Title      string
	Body       string
}

// Marker returns the ledger entry written once this delivery fires.
func (d PendingDelivery) Marker() SentMarker {
	return SentMarker{Kind: d.Kind, Identifier: d.Identifier, Date: d.Date}
}

// SentMarker records that a notification was delivered.
type SentMarker struct {
	Kind       Kind
	Identifier string
	Date       calendar.Date
}
