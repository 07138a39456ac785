// internal/app/revenue_sources.go
package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"clinic_notification_engine/internal/domain/calendar"
	"clinic_notification_engine/internal/domain/clinic"

	"github.com/sirupsen/logrus"
)

// RevenueSource reads one revenue stream. Implementations are pure reads.
type RevenueSource interface {
	Kind() clinic.SourceKind
	Records(ctx context.Context, userID string, rng calendar.Range) ([]clinic.RevenueRecord, error)
}

// recordCollector normalizes raw documents into revenue records. Documents with
// an unusable amount or date are skipped.
type recordCollector struct {
	kind    clinic.SourceKind
	loc     *time.Location
	logger  *logrus.Entry
	out     []clinic.RevenueRecord
	skipped int
}

func (c *recordCollector) add(doc clinic.Record, amountFields, dateFields []string) {
	amount, ok := doc.FirstDecimal(amountFields...)
	if !ok {
		c.skip(doc, "amount")
		return
	}
	raw := doc.FirstString(dateFields...)
	day, err := calendar.Parse(raw, c.loc)
	if err != nil {
		c.skip(doc, "date")
		return
	}
	c.out = append(c.out, clinic.RevenueRecord{Source: c.kind, Amount: amount, OccurredOn: day})
}

func (c *recordCollector) skip(doc clinic.Record, field string) {
	c.skipped++
	c.logger.WithFields(logrus.Fields{"record_id": doc.String("id"), "field": field}).Debug("Skipping revenue record with unusable field")
}

func (c *recordCollector) records() []clinic.RevenueRecord {
	if c.skipped > 0 {
		c.logger.WithField("skipped", c.skipped).Info("Some revenue records were skipped")
	}
	return c.out
}

func newCollector(kind clinic.SourceKind, loc *time.Location, logger *logrus.Entry) *recordCollector {
	return &recordCollector{kind: kind, loc: loc, logger: logger.WithField("source", kind)}
}

// ProcedureSource reads completed procedures nested in patient records. A
// procedure paid in installments yields one record per paid installment.
type ProcedureSource struct {
	store  clinic.DataStore
	loc    *time.Location
	logger *logrus.Entry
}

func NewProcedureSource(store clinic.DataStore, loc *time.Location, logger *logrus.Entry) *ProcedureSource {
	return &ProcedureSource{store: store, loc: loc, logger: logger}
}

func (s *ProcedureSource) Kind() clinic.SourceKind { return clinic.SourceProcedures }

func (s *ProcedureSource) Records(ctx context.Context, userID string, _ calendar.Range) ([]clinic.RevenueRecord, error) {
	docs, err := s.store.Query(ctx, clinic.Query{Collection: clinic.CollectionPatients}.Where("userId", clinic.OpEq, userID))
	if err != nil {
		return nil, fmt.Errorf("query patients: %w", err)
	}

	c := newCollector(s.Kind(), s.loc, s.logger)
	for _, patient := range docs {
		for _, proc := range patient.Records("procedures") {
			if clinic.ParseAppointmentStatus(proc.String("status")) != clinic.StatusCompleted {
				continue
			}
			payments := proc.Records("payments")
			if len(payments) == 0 {
				c.add(proc, []string{"value", "price", "amount"}, []string{"date", "completedAt", "performedAt"})
				continue
			}
			for _, p := range payments {
				if !installmentPaid(p) {
					continue
				}
				c.add(p, []string{"amount", "value"}, []string{"paidAt", "date", "paymentDate"})
			}
		}
	}
	return c.records(), nil
}

func installmentPaid(p clinic.Record) bool {
	if p.Bool("paid") {
		return true
	}
	return strings.EqualFold(p.String("status"), "paid")
}

// statusSource reads a flat collection filtered on status == paid.
type statusSource struct {
	kind         clinic.SourceKind
	collection   string
	amountFields []string
	dateFields   []string
	store        clinic.DataStore
	loc          *time.Location
	logger       *logrus.Entry
}

func (s *statusSource) Kind() clinic.SourceKind { return s.kind }

func (s *statusSource) Records(ctx context.Context, userID string, _ calendar.Range) ([]clinic.RevenueRecord, error) {
	q := clinic.Query{Collection: s.collection}.
		Where("userId", clinic.OpEq, userID).
		Where("status", clinic.OpIn, []string{"paid", "PAID", "Paid"})
	docs, err := s.store.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", s.collection, err)
	}
	c := newCollector(s.kind, s.loc, s.logger)
	for _, doc := range docs {
		c.add(doc, s.amountFields, s.dateFields)
	}
	return c.records(), nil
}

// NewSalesSource reads paid product sales.
func NewSalesSource(store clinic.DataStore, loc *time.Location, logger *logrus.Entry) RevenueSource {
	return &statusSource{
		kind:         clinic.SourceSales,
		collection:   clinic.CollectionSales,
		amountFields: []string{"total", "amount"},
		dateFields:   []string{"saleDate", "date", "createdAt"},
		store:        store,
		loc:          loc,
		logger:       logger,
	}
}

// NewSubscriptionSource reads paid subscription payments.
func NewSubscriptionSource(store clinic.DataStore, loc *time.Location, logger *logrus.Entry) RevenueSource {
	return &statusSource{
		kind:         clinic.SourceSubscriptions,
		collection:   clinic.CollectionSubscriptionPayments,
		amountFields: []string{"amount", "value"},
		dateFields:   []string{"paymentDate", "paidAt", "date"},
		store:        store,
		loc:          loc,
		logger:       logger,
	}
}

// EnrollmentSource reads course enrollments; only positive payments count.
type EnrollmentSource struct {
	store  clinic.DataStore
	loc    *time.Location
	logger *logrus.Entry
}

func NewEnrollmentSource(store clinic.DataStore, loc *time.Location, logger *logrus.Entry) *EnrollmentSource {
	return &EnrollmentSource{store: store, loc: loc, logger: logger}
}

func (s *EnrollmentSource) Kind() clinic.SourceKind { return clinic.SourceEnrollments }

func (s *EnrollmentSource) Records(ctx context.Context, userID string, _ calendar.Range) ([]clinic.RevenueRecord, error) {
	docs, err := s.store.Query(ctx, clinic.Query{Collection: clinic.CollectionCourseEnrollments}.Where("userId", clinic.OpEq, userID))
	if err != nil {
		return nil, fmt.Errorf("query course enrollments: %w", err)
	}
	c := newCollector(s.Kind(), s.loc, s.logger)
	for _, doc := range docs {
		amount, ok := doc.FirstDecimal("amountPaid", "amount")
		if !ok || !amount.IsPositive() {
			continue
		}
		c.add(doc, []string{"amountPaid", "amount"}, []string{"enrollmentDate", "paymentDate", "date"})
	}
	return c.records(), nil
}

// DefaultRevenueSources wires the four streams over one store.
func DefaultRevenueSources(store clinic.DataStore, loc *time.Location, logger *logrus.Entry) []RevenueSource {
	return []RevenueSource{
		NewProcedureSource(store, loc, logger),
		NewSalesSource(store, loc, logger),
		NewSubscriptionSource(store, loc, logger),
		NewEnrollmentSource(store, loc, logger),
	}
}
