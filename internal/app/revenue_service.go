// internal/app/revenue_service.go
package app

import (
	"context"

	"clinic_notification_engine/internal/domain/calendar"
	"clinic_notification_engine/internal/domain/clinic"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// RevenueBreakdown is the per-source view of an aggregate.
type RevenueBreakdown struct {
	Range    calendar.Range
	Total    decimal.Decimal
	BySource map[clinic.SourceKind]decimal.Decimal
	Failed   []clinic.SourceKind
}

// RevenueAggregator sums every revenue source over the same half-open range.
type RevenueAggregator struct {
	sources []RevenueSource
	logger  *logrus.Entry
}

func NewRevenueAggregator(sources []RevenueSource, logger *logrus.Entry) *RevenueAggregator {
	return &RevenueAggregator{sources: sources, logger: logger}
}

// Aggregate never fails: an unavailable source contributes zero.
func (a *RevenueAggregator) Aggregate(ctx context.Context, userID string, rng calendar.Range) decimal.Decimal {
	return a.Breakdown(ctx, userID, rng).Total
}

// Breakdown queries all sources concurrently and joins once every one has
// either answered or failed.
func (a *RevenueAggregator) Breakdown(ctx context.Context, userID string, rng calendar.Range) RevenueBreakdown {
	out := RevenueBreakdown{
		Range:    rng,
		Total:    decimal.Zero,
		BySource: make(map[clinic.SourceKind]decimal.Decimal, len(a.sources)),
	}
	if userID == "" {
		a.logger.Debug("No current user; revenue is zero")
		return out
	}
	if rng.Empty() {
		return out
	}

	type result struct {
		amount decimal.Decimal
		err    error
	}
	results := make([]result, len(a.sources))

	var g errgroup.Group
	for i, src := range a.sources {
		g.Go(func() error {
			records, err := src.Records(ctx, userID, rng)
			if err != nil {
				results[i] = result{amount: decimal.Zero, err: err}
				return nil
			}
			results[i] = result{amount: clinic.SumInRange(records, rng)}
			return nil
		})
	}
	_ = g.Wait() // goroutines never return an error

	for i, src := range a.sources {
		r := results[i]
		if r.err != nil {
			a.logger.WithFields(logrus.Fields{
				"source": src.Kind(),
				"range":  rng.String(),
			}).WithError(r.err).Warn("Revenue source unavailable; counting it as zero")
			out.Failed = append(out.Failed, src.Kind())
			out.BySource[src.Kind()] = decimal.Zero
			continue
		}
		out.BySource[src.Kind()] = r.amount
		out.Total = out.Total.Add(r.amount)
	}
	return out
}
