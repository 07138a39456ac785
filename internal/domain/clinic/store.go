package clinic

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Collections of the hosted backend read by the engine.
const (
	CollectionAppointments         = "appointments"
	CollectionPatients             = "patients"
	CollectionSales                = "sales"
	CollectionSubscriptionPayments = "subscription_payments"
	CollectionCourseEnrollments    = "course_enrollments"
)

// Op is a filter comparison.
type Op string

const (
	OpEq  Op = "=="
	OpNeq Op = "!="
	OpIn  Op = "in"
)

type Filter struct {
	Field string
	Op    Op
	Value any // []string for OpIn
}

// Query is a generic filtered read against one collection.
type Query struct {
	Collection string
	Filters    []Filter
	OrderBy    string
	Descending bool
	Limit      int // 0 means no limit
}

// Where returns a copy of q with one more filter.
func (q Query) Where(field string, op Op, value any) Query {
	q.Filters = append(append([]Filter(nil), q.Filters...), Filter{Field: field, Op: op, Value: value})
	return q
}

// DataStore is the persistence collaborator. Timeouts are its responsibility.
type DataStore interface {
	Query(ctx context.Context, q Query) ([]Record, error)
}

// Identity exposes who is using the device.
type Identity interface {
	CurrentUserID(ctx context.Context) (string, bool)
	IsOwnerRole(ctx context.Context) bool
}

// Record is one schemaless document.
type Record map[string]any

func (r Record) String(field string) string {
	switch v := r[field].(type) {
	case nil:
		return ""
	case string:
		return v
	case json.Number:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}

// FirstString returns the first non-empty value among fields.
func (r Record) FirstString(fields ...string) string {
	for _, f := range fields {
		if s := r.String(f); s != "" {
			return s
		}
	}
	return ""
}

func (r Record) Bool(field string) bool {
	switch v := r[field].(type) {
	case bool:
		return v
	case string:
		b, _ := strconv.ParseBool(strings.TrimSpace(v))
		return b
	case json.Number:
		n, err := v.Int64()
		return err == nil && n != 0
	case float64:
		return v != 0
	}
	return false
}

// Decimal reads a monetary field stored as a number or a numeric string.
func (r Record) Decimal(field string) (decimal.Decimal, bool) {
	switch v := r[field].(type) {
	case json.Number:
		d, err := decimal.NewFromString(v.String())
		return d, err == nil
	case float64:
		return decimal.NewFromFloat(v), true
	case int:
		return decimal.NewFromInt(int64(v)), true
	case int64:
		return decimal.NewFromInt(v), true
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return decimal.Zero, false
		}
		if !strings.Contains(s, ".") {
			s = strings.ReplaceAll(s, ",", ".")
		}
		d, err := decimal.NewFromString(s)
		return d, err == nil
	case decimal.Decimal:
		return v, true
	}
	return decimal.Zero, false
}

// FirstDecimal returns the first parseable monetary field among fields.
func (r Record) FirstDecimal(fields ...string) (decimal.Decimal, bool) {
	for _, f := range fields {
		if d, ok := r.Decimal(f); ok {
			return d, true
		}
	}
	return decimal.Zero, false
}

// Records returns a nested list of documents.
func (r Record) Records(field string) []Record {
	raw, ok := r[field].([]any)
	if !ok {
		if typed, ok := r[field].([]Record); ok {
			return typed
		}
		return nil
	}
	out := make([]Record, 0, len(raw))
	for _, item := range raw {
		switch v := item.(type) {
		case map[string]any:
			out = append(out, Record(v))
		case Record:
			out = append(out, v)
		}
	}
	return out
}
