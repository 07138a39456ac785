// internal/app/message_selector.go
package app

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// MessageTier applies to revenue in [Min, Max]; the last tier is unbounded.
// Templates may use {patients} and {revenue}.
type MessageTier struct {
	Min      decimal.Decimal
	Max      decimal.Decimal
	Template string
}

// DefaultMessageTiers is the ascending tier table.
func DefaultMessageTiers() []MessageTier {
	return []MessageTier{
		{Min: decimal.Zero, Max: decimal.NewFromInt(1000),
			Template: "Every visit counts. Today you cared for {patients} and earned {revenue}."},
		{Min: decimal.NewFromInt(1001), Max: decimal.NewFromInt(5000),
			Template: "Solid day! {patients} seen and {revenue} earned."},
		{Min: decimal.NewFromInt(5001), Max: decimal.NewFromInt(10000),
			Template: "Great work! {patients} and {revenue} in one day."},
		{Min: decimal.NewFromInt(10001),
			Template: "Outstanding! {revenue} earned with {patients}. Record territory."},
	}
}

// CurrencyFormatter renders amounts with locale digit grouping.
type CurrencyFormatter struct {
	printer *message.Printer
	symbol  string
}

func NewCurrencyFormatter(locale, symbol string) *CurrencyFormatter {
	tag, err := language.Parse(locale)
	if err != nil {
		tag = language.English
	}
	return &CurrencyFormatter{printer: message.NewPrinter(tag), symbol: symbol}
}

func (f *CurrencyFormatter) Format(d decimal.Decimal) string {
	v, _ := d.Round(2).Float64()
	return f.symbol + f.printer.Sprintf("%.2f", v)
}

// MessageSelector maps the day's facts to a human-readable message.
type MessageSelector struct {
	tiers     []MessageTier
	formatter *CurrencyFormatter
}

// NewMessageSelector checks that tiers are ascending and non-overlapping.
func NewMessageSelector(tiers []MessageTier, formatter *CurrencyFormatter) (*MessageSelector, error) {
	if len(tiers) == 0 {
		return nil, fmt.Errorf("message tiers are empty")
	}
	for i := range tiers {
		last := i == len(tiers)-1
		if !last && tiers[i].Max.LessThan(tiers[i].Min) {
			return nil, fmt.Errorf("tier %d: max %s below min %s", i, tiers[i].Max, tiers[i].Min)
		}
		if i > 0 && !tiers[i].Min.GreaterThan(tiers[i-1].Max) {
			return nil, fmt.Errorf("tier %d overlaps tier %d", i, i-1)
		}
	}
	if formatter == nil {
		formatter = NewCurrencyFormatter("en", "$")
	}
	return &MessageSelector{tiers: tiers, formatter: formatter}, nil
}

// Select picks the highest tier whose lower bound revenue reaches. Amounts
// between one tier's max and the next tier's min stay in the lower tier.
func (s *MessageSelector) Select(revenue decimal.Decimal, patients int) string {
	tier := s.tiers[0]
	for _, t := range s.tiers[1:] {
		if revenue.GreaterThanOrEqual(t.Min) {
			tier = t
		}
	}
	return s.render(tier.Template, revenue, patients)
}

// Render interpolates an arbitrary template with the same placeholders.
func (s *MessageSelector) Render(template string, revenue decimal.Decimal, patients int) string {
	return s.render(template, revenue, patients)
}

func (s *MessageSelector) FormatCurrency(d decimal.Decimal) string {
	return s.formatter.Format(d)
}

func (s *MessageSelector) render(template string, revenue decimal.Decimal, patients int) string {
	if patients < 0 {
		patients = 0
	}
	r := strings.NewReplacer(
		"{patients}", pluralize(patients, "patient", "patients"),
		"{revenue}", s.formatter.Format(revenue),
	)
	return r.Replace(template)
}

func pluralize(n int, one, many string) string {
	if n == 1 {
		return "1 " + one
	}
	return strconv.Itoa(n) + " " + many
}
