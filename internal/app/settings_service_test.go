package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"clinic_notification_engine/internal/domain/notification"
)

func TestSettingsService_OwnerOnlyKinds(t *testing.T) {
	repo := newFakeSettings()
	staff := NewSettingsService(repo, fakeIdentity{userID: "u1"})

	if err := staff.SetKindEnabled(context.Background(), notification.KindDailySummary, false); !errors.Is(err, ErrNotOwner) {
		t.Fatalf("staff toggling daily summary: err = %v", err)
	}
	if err := staff.SetKindEnabled(context.Background(), notification.KindBirthdayReminder, false); err != nil {
		t.Fatalf("staff toggling birthdays: %v", err)
	}
	s, _ := staff.Current(context.Background())
	if s.IsEnabled(notification.KindBirthdayReminder) || !s.IsEnabled(notification.KindDailySummary) {
		t.Fatalf("enabled = %v", s.Enabled)
	}
}

func TestSettingsService_DailyTimeAndOffset(t *testing.T) {
	repo := newFakeSettings()
	owner := NewSettingsService(repo, fakeIdentity{userID: "u1", owner: true})
	ctx := context.Background()

	if err := owner.SetDailySummaryTime(ctx, 20, 30); err != nil {
		t.Fatalf("SetDailySummaryTime: %v", err)
	}
	if err := owner.SetReminderOffset(ctx, 45); err != nil {
		t.Fatalf("SetReminderOffset: %v", err)
	}
	s, _ := owner.Current(ctx)
	if s.DailySummaryHour != 20 || s.DailySummaryMinute != 30 {
		t.Errorf("daily time = %02d:%02d", s.DailySummaryHour, s.DailySummaryMinute)
	}
	if s.AppointmentReminderOffset != 45*time.Minute {
		t.Errorf("offset = %s", s.AppointmentReminderOffset)
	}

	if err := owner.SetDailySummaryTime(ctx, 25, 0); !errors.Is(err, ErrInvalidSetting) {
		t.Errorf("hour 25: err = %v", err)
	}
	if err := owner.SetReminderOffset(ctx, 0); !errors.Is(err, ErrInvalidSetting) {
		t.Errorf("offset 0: err = %v", err)
	}
	if len(repo.writes) != 2 {
		t.Errorf("invalid values must not be written; writes = %v", repo.writes)
	}
}

func TestSettingsService_NoUser(t *testing.T) {
	svc := NewSettingsService(newFakeSettings(), fakeIdentity{})
	if err := svc.SetReminderOffset(context.Background(), 15); !errors.Is(err, ErrNoCurrentUser) {
		t.Fatalf("err = %v", err)
	}
}

func TestSettingsService_StoreFailure(t *testing.T) {
	repo := newFakeSettings()
	repo.err = errBoom
	svc := NewSettingsService(repo, fakeIdentity{userID: "u1", owner: true})
	if err := svc.SetReminderOffset(context.Background(), 15); !errors.Is(err, errBoom) {
		t.Fatalf("err = %v", err)
	}
}
