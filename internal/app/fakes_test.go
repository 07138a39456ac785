package app

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"clinic_notification_engine/internal/domain/calendar"
	"clinic_notification_engine/internal/domain/clinic"
	"clinic_notification_engine/internal/domain/notification"
	"clinic_notification_engine/internal/infra/config"

	"github.com/shopspring/decimal"
)

var errBoom = errors.New("boom")

// fakeStore answers queries from in-memory collections.
type fakeStore struct {
	collections map[string][]clinic.Record
	failing     map[string]bool
	queries     []clinic.Query
	mu          sync.Mutex
}

func newFakeStore() *fakeStore {
	return &fakeStore{collections: map[string][]clinic.Record{}, failing: map[string]bool{}}
}

func (s *fakeStore) add(collection string, docs ...clinic.Record) {
	s.collections[collection] = append(s.collections[collection], docs...)
}

func (s *fakeStore) Query(_ context.Context, q clinic.Query) ([]clinic.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queries = append(s.queries, q)
	if s.failing[q.Collection] {
		return nil, fmt.Errorf("collection %s: %w", q.Collection, errBoom)
	}
	var out []clinic.Record
	for _, doc := range s.collections[q.Collection] {
		if matchesAll(doc, q.Filters) {
			out = append(out, doc)
		}
	}
	return out, nil
}

func matchesAll(doc clinic.Record, filters []clinic.Filter) bool {
	for _, f := range filters {
		got := doc.String(f.Field)
		switch f.Op {
		case clinic.OpEq:
			if got != fmt.Sprint(f.Value) {
				return false
			}
		case clinic.OpNeq:
			if got == fmt.Sprint(f.Value) {
				return false
			}
		case clinic.OpIn:
			found := false
			for _, v := range f.Value.([]string) {
				if v == got {
					found = true
				}
			}
			if !found {
				return false
			}
		}
	}
	return true
}

type fakeSource struct {
	kind    clinic.SourceKind
	records []clinic.RevenueRecord
	err     error
	delay   time.Duration
}

func (s *fakeSource) Kind() clinic.SourceKind { return s.kind }

func (s *fakeSource) Records(ctx context.Context, _ string, _ calendar.Range) ([]clinic.RevenueRecord, error) {
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return s.records, s.err
}

type fakeIdentity struct {
	userID string
	owner  bool
}

func (f fakeIdentity) CurrentUserID(context.Context) (string, bool) { return f.userID, f.userID != "" }
func (f fakeIdentity) IsOwnerRole(context.Context) bool             { return f.owner }

type fakeSettings struct {
	mu       sync.Mutex
	settings config.Settings
	err      error
	writes   []map[string]string
}

func newFakeSettings() *fakeSettings {
	return &fakeSettings{settings: config.DefaultSettings()}
}

func (f *fakeSettings) Load(context.Context) (config.Settings, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.settings, f.err
}

func (f *fakeSettings) Set(_ context.Context, values map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.writes = append(f.writes, values)
	kv := f.settings.KV()
	for k, v := range values {
		kv[k] = v
	}
	f.settings, _ = config.ResolveSettings(kv)
	return nil
}

type memLedger struct {
	mu      sync.Mutex
	markers map[notification.SentMarker]bool
	err     error
}

func newMemLedger() *memLedger {
	return &memLedger{markers: map[notification.SentMarker]bool{}}
}

func (l *memLedger) WasSent(_ context.Context, m notification.SentMarker) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return false, l.err
	}
	return l.markers[m], nil
}

func (l *memLedger) MarkSent(_ context.Context, m notification.SentMarker) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.markers[m] = true
	return nil
}

func (l *memLedger) Prune(_ context.Context, before calendar.Date) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for m := range l.markers {
		if m.Date.Before(before) {
			delete(l.markers, m)
			n++
		}
	}
	return n, nil
}

type memCenter struct {
	mu      sync.Mutex
	pending map[string]notification.PendingDelivery
	reject  map[string]bool
	cancels int
}

func newMemCenter() *memCenter {
	return &memCenter{pending: map[string]notification.PendingDelivery{}, reject: map[string]bool{}}
}

func (c *memCenter) Schedule(_ context.Context, d notification.PendingDelivery) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.reject[d.Identifier] {
		return notification.ErrDeliveryRejected
	}
	if _, dup := c.pending[d.Identifier]; dup {
		return fmt.Errorf("duplicate pending identifier %s", d.Identifier)
	}
	c.pending[d.Identifier] = d
	return nil
}

func (c *memCenter) Cancel(_ context.Context, ids []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range ids {
		delete(c.pending, id)
	}
	c.cancels++
	return nil
}

func (c *memCenter) ListPending(context.Context) ([]notification.PendingDelivery, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]notification.PendingDelivery, 0, len(c.pending))
	for _, d := range c.pending {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Identifier < out[j].Identifier })
	return out, nil
}

func (c *memCenter) get(id string) (notification.PendingDelivery, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	d, ok := c.pending[id]
	return d, ok
}

// fakeRevenue returns fixed totals per range start.
type fakeRevenue struct {
	byStart map[calendar.Date]decimal.Decimal
}

func (f *fakeRevenue) Breakdown(_ context.Context, userID string, rng calendar.Range) RevenueBreakdown {
	total := decimal.Zero
	if userID != "" {
		if v, ok := f.byStart[rng.Start]; ok {
			total = v
		}
	}
	return RevenueBreakdown{Range: rng, Total: total}
}

type fakeAppointments struct {
	appts []clinic.AppointmentFact
	loc   *time.Location
	err   error
}

func (f *fakeAppointments) ListAttending(_ context.Context, _ string, rng calendar.Range) ([]clinic.AppointmentFact, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []clinic.AppointmentFact
	for _, a := range f.appts {
		if a.CountsTowardAttendance() && rng.Contains(calendar.Of(a.Start, f.loc)) {
			out = append(out, a)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out, nil
}

func (f *fakeAppointments) CountAttended(ctx context.Context, userID string, rng calendar.Range) int {
	appts, err := f.ListAttending(ctx, userID, rng)
	if err != nil {
		return 0
	}
	return len(appts)
}

type fakePatients struct {
	patients []clinic.Patient
	err      error
}

func (f *fakePatients) ListPatients(context.Context, string) ([]clinic.Patient, error) {
	return f.patients, f.err
}
