// internal/domain/notification/kind.go
package notification

import (
	"fmt"
	"strings"
)

// Kind is one of the scheduled notification types.
type Kind string

const (
	KindDailySummary        Kind = "daily_summary"
	KindWeeklySummary       Kind = "weekly_summary"
	KindWeeklyPreview       Kind = "weekly_preview"
	KindAppointmentReminder Kind = "appointment_reminder"
	KindBirthdayReminder    Kind = "birthday_reminder"
)

// Kinds lists every kind in refresh order.
var Kinds = []Kind{
	KindDailySummary,
	KindWeeklySummary,
	KindWeeklyPreview,
	KindAppointmentReminder,
	KindBirthdayReminder,
}

func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Kinds {
		if k == known {
			return k, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

// OwnerOnly reports whether the kind carries clinic financials.
func (k Kind) OwnerOnly() bool {
	switch k {
	case KindDailySummary, KindWeeklySummary, KindWeeklyPreview:
		return true
	}
	return false
}

// Singleton kinds have one fixed identifier; the rest get one per entity.
func (k Kind) Singleton() bool {
	return k.OwnerOnly()
}

// Identifier returns the pending-delivery identifier. entityID is ignored for
// singleton kinds.
func (k Kind) Identifier(entityID string) string {
	switch k {
	case KindAppointmentReminder:
		return "appointment_reminder_" + entityID
	case KindBirthdayReminder:
		return "birthday_" + entityID
	default:
		return string(k)
	}
}

// IdentifierPrefix matches every identifier of the kind.
func (k Kind) IdentifierPrefix() string {
	return k.Identifier("")
}

// Owns reports whether identifier belongs to k.
func (k Kind) Owns(identifier string) bool {
	if k.Singleton() {
		return identifier == string(k)
	}
	return strings.HasPrefix(identifier, k.IdentifierPrefix())
}

func (k Kind) Title() string {
	switch k {
	case KindDailySummary:
		return "Daily summary"
	case KindWeeklySummary:
		return "Weekly summary"
	case KindWeeklyPreview:
		return "Your week ahead"
	case KindAppointmentReminder:
		return "Upcoming appointment"
	case KindBirthdayReminder:
		return "Patient birthday"
	}
	return string(k)
}
