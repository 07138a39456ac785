package clinic

import (
	"clinic_notification_engine/internal/domain/calendar"

	"github.com/shopspring/decimal"
)

// SourceKind names one of the independent revenue streams.
type SourceKind string

const (
	SourceProcedures    SourceKind = "procedures"
	SourceSales         SourceKind = "sales"
	SourceSubscriptions SourceKind = "subscriptions"
	SourceEnrollments   SourceKind = "enrollments"
)

// RevenueRecord is money received on a clinic-local calendar day.
type RevenueRecord struct {
	Source     SourceKind
	Amount     decimal.Decimal
	OccurredOn calendar.Date
}

// SumInRange adds the records whose day falls in rng.
func SumInRange(records []RevenueRecord, rng calendar.Range) decimal.Decimal {
	total := decimal.Zero
	for _, r := range records {
		if rng.Contains(r.OccurredOn) {
			total = total.Add(r.Amount)
		}
	}
	return total
}
