package app

import (
	"time"

	"clinic_notification_engine/internal/domain/calendar"
)

// ImmediateDelay is used when a trigger has just been missed.
const ImmediateDelay = 3 * time.Second

// DailyTrigger returns when today's fixed-time notification should fire and
// which day it reports on. A trigger missed by at most grace fires almost
// immediately; one missed by more rolls to tomorrow.
func DailyTrigger(now time.Time, loc *time.Location, hour, minute int, grace time.Duration) (time.Time, calendar.Date) {
	today := calendar.Of(now, loc)
	at := today.At(hour, minute, loc)
	if now.Before(at) {
		return at, today
	}
	if now.Sub(at) <= grace {
		return now.Add(ImmediateDelay), today
	}
	tomorrow := today.AddDays(1)
	return tomorrow.At(hour, minute, loc), tomorrow
}

// NextWeeklyAnchor returns the next weekday+hour:minute strictly after now,
// never more than seven days ahead. When today is the anchor weekday and the
// hour has passed, it rolls a full week.
func NextWeeklyAnchor(now time.Time, loc *time.Location, weekday time.Weekday, hour, minute int) (time.Time, calendar.Date) {
	today := calendar.Of(now, loc)
	delta := (int(weekday) - int(today.Weekday()) + 7) % 7
	day := today.AddDays(delta)
	at := day.At(hour, minute, loc)
	if !at.After(now) {
		day = day.AddDays(7)
		at = day.At(hour, minute, loc)
	}
	return at, day
}

// NextBirthday re-anchors birth to today's year and rolls to next year when
// that day is already behind. Feb 29 becomes Feb 28 outside leap years.
func NextBirthday(birth, today calendar.Date) calendar.Date {
	occ := birthdayIn(birth, today.Year)
	if occ.Before(today) {
		occ = birthdayIn(birth, today.Year+1)
	}
	return occ
}

func birthdayIn(birth calendar.Date, year int) calendar.Date {
	if birth.Month == time.February && birth.Day == 29 && !isLeap(year) {
		return calendar.New(year, time.February, 28)
	}
	return calendar.New(year, birth.Month, birth.Day)
}

func isLeap(y int) bool {
	return y%4 == 0 && (y%100 != 0 || y%400 == 0)
}
