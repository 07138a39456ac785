package app

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"
)

func newTestSelector(t *testing.T) *MessageSelector {
	t.Helper()
	s, err := NewMessageSelector(DefaultMessageTiers(), NewCurrencyFormatter("en", "$"))
	if err != nil {
		t.Fatalf("NewMessageSelector: %v", err)
	}
	return s
}

func TestSelect_Tiers(t *testing.T) {
	s := newTestSelector(t)
	tests := []struct {
		revenue string
		prefix  string
	}{
		{"0", "Every visit counts."},
		{"-50", "Every visit counts."},
		{"1000", "Every visit counts."},
		{"1000.50", "Every visit counts."}, // between tiers: lower one
		{"1001", "Solid day!"},
		{"5000", "Solid day!"},
		{"7500", "Great work!"},
		{"10001", "Outstanding!"},
		{"250000", "Outstanding!"},
	}
	for _, tt := range tests {
		got := s.Select(decimal.RequireFromString(tt.revenue), 3)
		if !strings.HasPrefix(got, tt.prefix) {
			t.Errorf("Select(%s) = %q, want prefix %q", tt.revenue, got, tt.prefix)
		}
	}
}

func TestSelect_Interpolation(t *testing.T) {
	s := newTestSelector(t)

	got := s.Select(decimal.RequireFromString("150"), 1)
	want := "Every visit counts. Today you cared for 1 patient and earned $150.00."
	if got != want {
		t.Fatalf("Select = %q, want %q", got, want)
	}

	got = s.Select(decimal.RequireFromString("3200.5"), 4)
	if !strings.Contains(got, "4 patients") || !strings.Contains(got, "3,200.50") {
		t.Fatalf("Select = %q", got)
	}
	if strings.Contains(got, "{") {
		t.Fatalf("placeholders left in %q", got)
	}
}

func TestNewMessageSelector_Validation(t *testing.T) {
	d := decimal.NewFromInt
	tests := []struct {
		name  string
		tiers []MessageTier
	}{
		{"empty", nil},
		{"inverted", []MessageTier{{Min: d(10), Max: d(5)}, {Min: d(11)}}},
		{"overlap", []MessageTier{{Min: d(0), Max: d(100)}, {Min: d(100)}}},
	}
	for _, tt := range tests {
		if _, err := NewMessageSelector(tt.tiers, nil); err == nil {
			t.Errorf("%s: expected an error", tt.name)
		}
	}
}
