// internal/infra/telegram/bot_commands_handler.go
package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"clinic_notification_engine/internal/app"
	"clinic_notification_engine/internal/domain/calendar"
	"clinic_notification_engine/internal/domain/clinic"
	"clinic_notification_engine/internal/domain/notification"
	"clinic_notification_engine/internal/infra/config"
	idb "clinic_notification_engine/internal/infra/database" // For ErrStaffNotFound

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"
)

// Engine is the part of *app.NotificationScheduler the bot talks to.
type Engine interface {
	RefreshAll(ctx context.Context) app.RefreshReport
	Summary(ctx context.Context, rng calendar.Range) (app.DaySummary, error)
	Today() calendar.Range
	FormatCurrency(d decimal.Decimal) string
}

// PendingLister is satisfied by every notification.Center.
type PendingLister interface {
	ListPending(ctx context.Context) ([]notification.PendingDelivery, error)
}

// SettingsEditor is satisfied by *app.SettingsService.
type SettingsEditor interface {
	Current(ctx context.Context) (config.Settings, error)
	SetKindEnabled(ctx context.Context, kind notification.Kind, enabled bool) error
	SetDailySummaryTime(ctx context.Context, hour, minute int) error
	SetReminderOffset(ctx context.Context, minutes int) error
}

const (
	msgUnauthorized = "This bot only answers the clinic's device user."
	msgLookupFailed = "Could not check your account right now. Please try again later."
)

// CommandHandler answers bot commands. Each command returns the reply text so
// handlers can be exercised without a Telegram connection.
type CommandHandler struct {
	staff    clinic.StaffRepository
	userID   string
	engine   Engine
	pending  PendingLister
	settings SettingsEditor
	loc      *time.Location
	logger   *logrus.Entry
}

func NewCommandHandler(staff clinic.StaffRepository, userID string, engine Engine, pending PendingLister, settings SettingsEditor, loc *time.Location, logger *logrus.Entry) *CommandHandler {
	return &CommandHandler{
		staff:    staff,
		userID:   userID,
		engine:   engine,
		pending:  pending,
		settings: settings,
		loc:      loc,
		logger:   logger,
	}
}

// authorize resolves the sender to the configured device user.
func (h *CommandHandler) authorize(ctx context.Context, senderID int64, log *logrus.Entry) (*clinic.Staff, string) {
	s, err := h.staff.GetByTelegramID(ctx, senderID)
	if err != nil {
		if errors.Is(err, idb.ErrStaffNotFound) {
			log.Info("Sender is unknown")
			return nil, msgUnauthorized
		}
		log.WithError(err).Error("Error checking staff for command")
		return nil, msgLookupFailed
	}
	if !s.IsActive || s.ID != h.userID {
		log.WithField("staff_id", s.ID).Warn("Unauthorized access attempt")
		return nil, msgUnauthorized
	}
	return s, ""
}

func (h *CommandHandler) commandLogger(command string, senderID int64) *logrus.Entry {
	return h.logger.WithFields(logrus.Fields{"command": command, "sender_id": senderID})
}

func (h *CommandHandler) Start(ctx context.Context, senderID int64) string {
	log := h.commandLogger("/start", senderID)
	s, denied := h.authorize(ctx, senderID, log)
	if s == nil {
		return denied
	}
	log.Info("Processing /start command")
	name := s.DisplayName
	if name == "" {
		name = "there"
	}
	return fmt.Sprintf("Hello, %s! I will send your clinic notifications here. Use /help for the list of commands.", name)
}

func (h *CommandHandler) Help(ctx context.Context, senderID int64) string {
	log := h.commandLogger("/help", senderID)
	s, denied := h.authorize(ctx, senderID, log)
	if s == nil {
		return denied
	}

	var help strings.Builder
	help.WriteString("Available commands:\n\n")
	help.WriteString("/refresh - re-plan every notification now\n")
	help.WriteString("/pending - list scheduled notifications\n")
	help.WriteString("/settings - show notification settings\n")
	help.WriteString("/enable <kind>, /disable <kind> - toggle a notification kind\n")
	help.WriteString("/reminder_offset <minutes> - minutes before an appointment to remind you\n")
	if s.IsOwner() {
		help.WriteString("/today - today's revenue and attendance\n")
		help.WriteString("/daily_time HH:MM - when the daily summary is sent\n")
	}
	help.WriteString("\nKinds: ")
	kinds := make([]string, len(notification.Kinds))
	for i, k := range notification.Kinds {
		kinds[i] = string(k)
	}
	help.WriteString(strings.Join(kinds, ", "))
	return help.String()
}

func (h *CommandHandler) Refresh(ctx context.Context, senderID int64) string {
	log := h.commandLogger("/refresh", senderID)
	if s, denied := h.authorize(ctx, senderID, log); s == nil {
		return denied
	}
	report := h.engine.RefreshAll(ctx)
	log.WithField("run_id", report.RunID).Info("Refresh requested from bot")
	return formatReport(report)
}

func formatReport(r app.RefreshReport) string {
	if r.Skipped != "" {
		return "Refresh skipped: " + r.Skipped + "."
	}
	var sb strings.Builder
	sb.WriteString("Refresh complete:\n")
	for _, res := range r.Results {
		fmt.Fprintf(&sb, "- %s: %s", res.Kind, res.Outcome)
		if n := len(res.Scheduled); n > 0 {
			fmt.Fprintf(&sb, " (%d scheduled)", n)
		}
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}

func (h *CommandHandler) Pending(ctx context.Context, senderID int64) string {
	log := h.commandLogger("/pending", senderID)
	if s, denied := h.authorize(ctx, senderID, log); s == nil {
		return denied
	}
	list, err := h.pending.ListPending(ctx)
	if err != nil {
		log.WithError(err).Error("Failed to list pending deliveries")
		return "Could not list scheduled notifications."
	}
	if len(list) == 0 {
		return "No notifications are scheduled."
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "%d scheduled:\n", len(list))
	for _, d := range list {
		fmt.Fprintf(&sb, "- %s %s (%s)\n", d.TriggerAt.In(h.loc).Format("Mon 02/01 15:04"), d.Title, d.Identifier)
	}
	return strings.TrimRight(sb.String(), "\n")
}

func (h *CommandHandler) Today(ctx context.Context, senderID int64) string {
	log := h.commandLogger("/today", senderID)
	if s, denied := h.authorize(ctx, senderID, log); s == nil {
		return denied
	}
	summary, err := h.engine.Summary(ctx, h.engine.Today())
	if err != nil {
		if errors.Is(err, app.ErrNotOwner) {
			log.Warn("Non-owner asked for financials")
			return "Error: " + app.ErrNotOwner.Error() + "."
		}
		log.WithError(err).Error("Failed to compute today's summary")
		return "Could not compute today's summary."
	}

	var sb strings.Builder
	sb.WriteString(summary.Message)
	fmt.Fprintf(&sb, "\n\nTotal: %s", h.engine.FormatCurrency(summary.Revenue.Total))
	for _, src := range []clinic.SourceKind{clinic.SourceProcedures, clinic.SourceSales, clinic.SourceSubscriptions, clinic.SourceEnrollments} {
		if amount, ok := summary.Revenue.BySource[src]; ok {
			fmt.Fprintf(&sb, "\n- %s: %s", src, h.engine.FormatCurrency(amount))
		}
	}
	if len(summary.Revenue.Failed) > 0 {
		sb.WriteString("\n(some sources were unavailable and count as zero)")
	}
	return sb.String()
}

// RegisterBotCommands registers the general command handlers.
func RegisterBotCommands(ctx context.Context, b *telebot.Bot, h *CommandHandler) {
	reply := func(fn func(context.Context, int64) string) telebot.HandlerFunc {
		return func(c telebot.Context) error {
			return c.Send(fn(ctx, c.Sender().ID))
		}
	}
	b.Handle("/start", reply(h.Start))
	b.Handle("/help", reply(h.Help))
	b.Handle("/refresh", reply(h.Refresh))
	b.Handle("/pending", reply(h.Pending))
	b.Handle("/today", reply(h.Today))
}
