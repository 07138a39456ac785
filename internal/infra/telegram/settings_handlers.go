package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"clinic_notification_engine/internal/app"
	"clinic_notification_engine/internal/domain/notification"

	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"
)

func (h *CommandHandler) Settings(ctx context.Context, senderID int64) string {
	log := h.commandLogger("/settings", senderID)
	if s, denied := h.authorize(ctx, senderID, log); s == nil {
		return denied
	}
	st, err := h.settings.Current(ctx)
	if err != nil {
		log.WithError(err).Error("Failed to load settings")
		return "Could not load settings."
	}

	var sb strings.Builder
	sb.WriteString("Notification settings:\n")
	for _, k := range notification.Kinds {
		state := "off"
		if st.IsEnabled(k) {
			state = "on"
		}
		fmt.Fprintf(&sb, "- %s: %s\n", k, state)
	}
	fmt.Fprintf(&sb, "Daily summary at %02d:%02d\n", st.DailySummaryHour, st.DailySummaryMinute)
	fmt.Fprintf(&sb, "Weekly summary on %s at %02d:00\n", st.WeeklySummaryWeekday, st.WeeklySummaryHour)
	fmt.Fprintf(&sb, "Weekly preview on %s at %02d:00\n", st.WeeklyPreviewWeekday, st.WeeklyPreviewHour)
	fmt.Fprintf(&sb, "Appointment reminders %d minutes before\n", int(st.AppointmentReminderOffset/time.Minute))
	fmt.Fprintf(&sb, "Birthday reminders at %02d:00", st.BirthdayReminderHour)
	return sb.String()
}

// SetEnabled handles /enable and /disable.
func (h *CommandHandler) SetEnabled(ctx context.Context, senderID int64, args []string, enabled bool) string {
	command := "/disable"
	if enabled {
		command = "/enable"
	}
	log := h.commandLogger(command, senderID)
	if s, denied := h.authorize(ctx, senderID, log); s == nil {
		return denied
	}
	if len(args) != 1 {
		return fmt.Sprintf("Invalid command format. Use: %s <kind>", command)
	}
	kind, err := notification.ParseKind(args[0])
	if err != nil {
		return fmt.Sprintf("Unknown kind %q. Use /help for the list.", args[0])
	}
	log = log.WithField("kind", kind)

	if err := h.settings.SetKindEnabled(ctx, kind, enabled); err != nil {
		return h.settingsError(log, err)
	}
	log.Info("Notification kind toggled")
	return h.afterChange(ctx, log, fmt.Sprintf("%s is now %s.", kind.Title(), onOff(enabled)))
}

func (h *CommandHandler) DailyTime(ctx context.Context, senderID int64, args []string) string {
	log := h.commandLogger("/daily_time", senderID)
	if s, denied := h.authorize(ctx, senderID, log); s == nil {
		return denied
	}
	if len(args) != 1 {
		return "Invalid command format. Use: /daily_time HH:MM"
	}
	t, err := time.Parse("15:04", args[0])
	if err != nil {
		return "Error: time must look like 21:00."
	}
	if err := h.settings.SetDailySummaryTime(ctx, t.Hour(), t.Minute()); err != nil {
		return h.settingsError(log, err)
	}
	log.WithField("time", args[0]).Info("Daily summary time changed")
	return h.afterChange(ctx, log, fmt.Sprintf("Daily summary will be sent at %02d:%02d.", t.Hour(), t.Minute()))
}

func (h *CommandHandler) ReminderOffset(ctx context.Context, senderID int64, args []string) string {
	log := h.commandLogger("/reminder_offset", senderID)
	if s, denied := h.authorize(ctx, senderID, log); s == nil {
		return denied
	}
	if len(args) != 1 {
		return "Invalid command format. Use: /reminder_offset <minutes>"
	}
	minutes, err := strconv.Atoi(args[0])
	if err != nil {
		return "Error: minutes must be a number."
	}
	if err := h.settings.SetReminderOffset(ctx, minutes); err != nil {
		return h.settingsError(log, err)
	}
	log.WithField("minutes", minutes).Info("Reminder offset changed")
	return h.afterChange(ctx, log, fmt.Sprintf("Appointment reminders will fire %d minutes before.", minutes))
}

func (h *CommandHandler) settingsError(log *logrus.Entry, err error) string {
	logWithError := log.WithError(err)
	switch {
	case errors.Is(err, app.ErrNotOwner):
		logWithError.Warn("Non-owner attempted an owner-only setting")
		return "Error: " + app.ErrNotOwner.Error() + "."
	case errors.Is(err, app.ErrInvalidSetting):
		logWithError.Warn("Invalid setting value")
		return "Error: " + err.Error() + "."
	default:
		logWithError.Error("Failed to save settings")
		return "Could not save settings. Please try again later."
	}
}

// afterChange re-plans so the change takes effect immediately.
func (h *CommandHandler) afterChange(ctx context.Context, log *logrus.Entry, msg string) string {
	report := h.engine.RefreshAll(ctx)
	if report.Skipped != "" {
		log.WithField("reason", report.Skipped).Warn("Refresh after settings change skipped")
		return msg + " Notifications will be updated on the next refresh."
	}
	return msg
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

// RegisterSettingsHandlers registers handlers for settings commands.
func RegisterSettingsHandlers(ctx context.Context, b *telebot.Bot, h *CommandHandler) {
	b.Handle("/settings", func(c telebot.Context) error {
		return c.Send(h.Settings(ctx, c.Sender().ID))
	})
	b.Handle("/enable", func(c telebot.Context) error {
		return c.Send(h.SetEnabled(ctx, c.Sender().ID, c.Args(), true))
	})
	b.Handle("/disable", func(c telebot.Context) error {
		return c.Send(h.SetEnabled(ctx, c.Sender().ID, c.Args(), false))
	})
	b.Handle("/daily_time", func(c telebot.Context) error {
		return c.Send(h.DailyTime(ctx, c.Sender().ID, c.Args()))
	})
	b.Handle("/reminder_offset", func(c telebot.Context) error {
		return c.Send(h.ReminderOffset(ctx, c.Sender().ID, c.Args()))
	})
}
