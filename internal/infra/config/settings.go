package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"clinic_notification_engine/internal/domain/notification"
)

// SettingsSchemaVersion is bumped whenever a key is added or its meaning changes.
const SettingsSchemaVersion = 1

// Keys of the per-device settings store.
const (
	KeySchemaVersion              = "settings_version"
	KeyDailySummaryHour           = "daily_summary_hour"
	KeyDailySummaryMinute         = "daily_summary_minute"
	KeyDailySummaryGraceMinutes   = "daily_summary_grace_minutes"
	KeyWeeklySummaryWeekday       = "weekly_summary_weekday"
	KeyWeeklySummaryHour          = "weekly_summary_hour"
	KeyWeeklyPreviewWeekday       = "weekly_preview_weekday"
	KeyWeeklyPreviewHour          = "weekly_preview_hour"
	KeyAppointmentReminderMinutes = "appointment_reminder_minutes"
	KeyAppointmentLookaheadDays   = "appointment_lookahead_days"
	KeyBirthdayReminderHour       = "birthday_reminder_hour"
	KeyBirthdayHorizonDays        = "birthday_horizon_days"
)

// EnabledKey is the "{kind}_enabled" flag.
func EnabledKey(k notification.Kind) string {
	return string(k) + "_enabled"
}

// Settings are the resolved per-kind schedule parameters.
type Settings struct {
	Version int
	Enabled map[notification.Kind]bool

	DailySummaryHour   int
	DailySummaryMinute int
	DailySummaryGrace  time.Duration

	WeeklySummaryWeekday time.Weekday
	WeeklySummaryHour    int
	WeeklyPreviewWeekday time.Weekday
	WeeklyPreviewHour    int

	AppointmentReminderOffset time.Duration
	AppointmentLookaheadDays  int

	BirthdayReminderHour int
	BirthdayHorizonDays  int
}

// DefaultSettings is the single source of defaults. The daily summary fires at
// 21:00 clinic time.
func DefaultSettings() Settings {
	enabled := make(map[notification.Kind]bool, len(notification.Kinds))
	for _, k := range notification.Kinds {
		enabled[k] = true
	}
	return Settings{
		Version:                   SettingsSchemaVersion,
		Enabled:                   enabled,
		DailySummaryHour:          21,
		DailySummaryMinute:        0,
		DailySummaryGrace:         2 * time.Hour,
		WeeklySummaryWeekday:      time.Saturday,
		WeeklySummaryHour:         22,
		WeeklyPreviewWeekday:      time.Sunday,
		WeeklyPreviewHour:         20,
		AppointmentReminderOffset: 30 * time.Minute,
		AppointmentLookaheadDays:  2,
		BirthdayReminderHour:      9,
		BirthdayHorizonDays:       30,
	}
}

func (s Settings) IsEnabled(k notification.Kind) bool {
	return s.Enabled[k]
}

// ResolveSettings overlays stored values on the defaults. Invalid values keep
// their default and are reported in problems.
func ResolveSettings(kv map[string]string) (s Settings, problems []error) {
	s = DefaultSettings()

	for _, k := range notification.Kinds {
		raw, ok := kv[EnabledKey(k)]
		if !ok {
			continue
		}
		b, err := strconv.ParseBool(strings.TrimSpace(raw))
		if err != nil {
			problems = append(problems, fmt.Errorf("%s: %w", EnabledKey(k), err))
			continue
		}
		s.Enabled[k] = b
	}

	intField := func(key string, min, max int, dst *int) {
		raw, ok := kv[key]
		if !ok {
			return
		}
		n, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil {
			problems = append(problems, fmt.Errorf("%s: %w", key, err))
			return
		}
		if n < min || n > max {
			problems = append(problems, fmt.Errorf("%s: %d out of range [%d, %d]", key, n, min, max))
			return
		}
		*dst = n
	}

	var version int
	intField(KeySchemaVersion, 0, SettingsSchemaVersion, &version)
	s.Version = version

	intField(KeyDailySummaryHour, 0, 23, &s.DailySummaryHour)
	intField(KeyDailySummaryMinute, 0, 59, &s.DailySummaryMinute)

	grace := int(s.DailySummaryGrace / time.Minute)
	intField(KeyDailySummaryGraceMinutes, 0, 12*60, &grace)
	s.DailySummaryGrace = time.Duration(grace) * time.Minute

	weekly := int(s.WeeklySummaryWeekday)
	intField(KeyWeeklySummaryWeekday, 0, 6, &weekly)
	s.WeeklySummaryWeekday = time.Weekday(weekly)
	intField(KeyWeeklySummaryHour, 0, 23, &s.WeeklySummaryHour)

	preview := int(s.WeeklyPreviewWeekday)
	intField(KeyWeeklyPreviewWeekday, 0, 6, &preview)
	s.WeeklyPreviewWeekday = time.Weekday(preview)
	intField(KeyWeeklyPreviewHour, 0, 23, &s.WeeklyPreviewHour)

	offset := int(s.AppointmentReminderOffset / time.Minute)
	intField(KeyAppointmentReminderMinutes, 1, 24*60, &offset)
	s.AppointmentReminderOffset = time.Duration(offset) * time.Minute
	intField(KeyAppointmentLookaheadDays, 1, 14, &s.AppointmentLookaheadDays)

	intField(KeyBirthdayReminderHour, 0, 23, &s.BirthdayReminderHour)
	intField(KeyBirthdayHorizonDays, 0, 366, &s.BirthdayHorizonDays)

	return s, problems
}

// KV renders s in store form.
func (s Settings) KV() map[string]string {
	kv := map[string]string{
		KeySchemaVersion:              strconv.Itoa(SettingsSchemaVersion),
		KeyDailySummaryHour:           strconv.Itoa(s.DailySummaryHour),
		KeyDailySummaryMinute:         strconv.Itoa(s.DailySummaryMinute),
		KeyDailySummaryGraceMinutes:   strconv.Itoa(int(s.DailySummaryGrace / time.Minute)),
		KeyWeeklySummaryWeekday:       strconv.Itoa(int(s.WeeklySummaryWeekday)),
		KeyWeeklySummaryHour:          strconv.Itoa(s.WeeklySummaryHour),
		KeyWeeklyPreviewWeekday:       strconv.Itoa(int(s.WeeklyPreviewWeekday)),
		KeyWeeklyPreviewHour:          strconv.Itoa(s.WeeklyPreviewHour),
		KeyAppointmentReminderMinutes: strconv.Itoa(int(s.AppointmentReminderOffset / time.Minute)),
		KeyAppointmentLookaheadDays:   strconv.Itoa(s.AppointmentLookaheadDays),
		KeyBirthdayReminderHour:       strconv.Itoa(s.BirthdayReminderHour),
		KeyBirthdayHorizonDays:        strconv.Itoa(s.BirthdayHorizonDays),
	}
	for _, k := range notification.Kinds {
		kv[EnabledKey(k)] = strconv.FormatBool(s.IsEnabled(k))
	}
	return kv
}

// Validate checks a single key/value pair before it is written.
func Validate(key, value string) error {
	_, problems := ResolveSettings(map[string]string{key: value})
	if len(problems) > 0 {
		return problems[0]
	}
	if _, known := DefaultSettings().KV()[key]; !known {
		return fmt.Errorf("unknown settings key %q", key)
	}
	return nil
}
