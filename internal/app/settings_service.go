package app

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"clinic_notification_engine/internal/domain/clinic"
	"clinic_notification_engine/internal/domain/notification"
	"clinic_notification_engine/internal/infra/config"
)

// Application-level errors for settings changes
var ErrNotOwner = errors.New("restricted to the clinic owner")
var ErrInvalidSetting = errors.New("invalid setting value")

// SettingsRepository persists per-device settings as key/value pairs.
type SettingsRepository interface {
	SettingsProvider
	Set(ctx context.Context, values map[string]string) error
}

// SettingsService applies validated settings changes on behalf of the device user.
type SettingsService struct {
	repo     SettingsRepository
	identity clinic.Identity
}

func NewSettingsService(repo SettingsRepository, identity clinic.Identity) *SettingsService {
	return &SettingsService{repo: repo, identity: identity}
}

func (s *SettingsService) Current(ctx context.Context) (config.Settings, error) {
	return s.repo.Load(ctx)
}

// SetKindEnabled toggles a notification kind. Financial kinds are owner-only.
func (s *SettingsService) SetKindEnabled(ctx context.Context, kind notification.Kind, enabled bool) error {
	if err := s.authorize(ctx, kind.OwnerOnly()); err != nil {
		return err
	}
	return s.write(ctx, map[string]string{config.EnabledKey(kind): strconv.FormatBool(enabled)})
}

// SetDailySummaryTime moves the daily summary trigger.
func (s *SettingsService) SetDailySummaryTime(ctx context.Context, hour, minute int) error {
	if err := s.authorize(ctx, true); err != nil {
		return err
	}
	return s.write(ctx, map[string]string{
		config.KeyDailySummaryHour:   strconv.Itoa(hour),
		config.KeyDailySummaryMinute: strconv.Itoa(minute),
	})
}

// SetReminderOffset changes how long before an appointment its reminder fires.
func (s *SettingsService) SetReminderOffset(ctx context.Context, minutes int) error {
	if err := s.authorize(ctx, false); err != nil {
		return err
	}
	return s.write(ctx, map[string]string{config.KeyAppointmentReminderMinutes: strconv.Itoa(minutes)})
}

func (s *SettingsService) authorize(ctx context.Context, ownerOnly bool) error {
	if _, ok := s.identity.CurrentUserID(ctx); !ok {
		return ErrNoCurrentUser
	}
	if ownerOnly && !s.identity.IsOwnerRole(ctx) {
		return ErrNotOwner
	}
	return nil
}

func (s *SettingsService) write(ctx context.Context, values map[string]string) error {
	for k, v := range values {
		if err := config.Validate(k, v); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidSetting, err)
		}
	}
	if err := s.repo.Set(ctx, values); err != nil {
		return fmt.Errorf("failed to save settings: %w", err)
	}
	return nil
}
