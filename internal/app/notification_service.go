// internal/app/notification_service.go
package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"clinic_notification_engine/internal/domain/calendar"
	"clinic_notification_engine/internal/domain/clinic"
	"clinic_notification_engine/internal/domain/notification"
	"clinic_notification_engine/internal/infra/config"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

var ErrNoCurrentUser = errors.New("no current user")

// RevenueCalculator is satisfied by *RevenueAggregator.
type RevenueCalculator interface {
	Breakdown(ctx context.Context, userID string, rng calendar.Range) RevenueBreakdown
}

// AppointmentReader is satisfied by *AttendanceCounter.
type AppointmentReader interface {
	CountAttended(ctx context.Context, userID string, rng calendar.Range) int
	ListAttending(ctx context.Context, userID string, rng calendar.Range) ([]clinic.AppointmentFact, error)
}

// PatientReader is satisfied by *PatientDirectory.
type PatientReader interface {
	ListPatients(ctx context.Context, userID string) ([]clinic.Patient, error)
}

// SettingsProvider returns the current resolved settings.
type SettingsProvider interface {
	Load(ctx context.Context) (config.Settings, error)
}

// Outcome of refreshing one notification kind.
type Outcome string

const (
	OutcomeScheduled   Outcome = "scheduled"
	OutcomeSuppressed  Outcome = "suppressed" // nothing worth sending
	OutcomeNothingDue  Outcome = "nothing_due"
	OutcomeDisabled    Outcome = "disabled"
	OutcomeNotOwner    Outcome = "not_owner"
	OutcomeUnavailable Outcome = "unavailable" // a read failed; previous state kept
	OutcomeRejected    Outcome = "rejected"    // the center refused at least one delivery
)

type KindResult struct {
	Kind      notification.Kind `json:"kind"`
	Outcome   Outcome           `json:"outcome"`
	Scheduled []string          `json:"scheduled,omitempty"`
	Cancelled []string          `json:"cancelled,omitempty"`
}

type RefreshReport struct {
	RunID   string       `json:"run_id"`
	At      time.Time    `json:"at"`
	Skipped string       `json:"skipped,omitempty"`
	Results []KindResult `json:"results,omitempty"`
}

// SchedulerDeps are the collaborators of a NotificationScheduler.
type SchedulerDeps struct {
	Identity     clinic.Identity
	Revenue      RevenueCalculator
	Appointments AppointmentReader
	Patients     PatientReader
	Settings     SettingsProvider
	Ledger       notification.Ledger
	Center       notification.Center
	Messages     *MessageSelector
	Location     *time.Location
	Now          func() time.Time
	KindTimeout  time.Duration
	Logger       *logrus.Entry
}

// NotificationScheduler decides which notifications are due and keeps the
// center's pending list in line with current data. All mutations happen
// inside RefreshAll, which never overlaps with itself.
type NotificationScheduler struct {
	deps SchedulerDeps
	mu   sync.Mutex
}

func NewNotificationScheduler(deps SchedulerDeps) *NotificationScheduler {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Location == nil {
		deps.Location = time.Local
	}
	if deps.KindTimeout <= 0 {
		deps.KindTimeout = 30 * time.Second
	}
	return &NotificationScheduler{deps: deps}
}

// refreshCycle is the state shared by every kind within one RefreshAll.
type refreshCycle struct {
	userID   string
	owner    bool
	settings config.Settings
	now      time.Time
	today    calendar.Date
	log      *logrus.Entry
}

// RefreshAll re-plans every kind. Safe to call on every foreground event and
// data mutation: each kind removes its own identifiers before recreating them.
func (s *NotificationScheduler) RefreshAll(ctx context.Context) RefreshReport {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.deps.Now()
	report := RefreshReport{RunID: uuid.NewString(), At: now}
	log := s.deps.Logger.WithField("run_id", report.RunID)

	userID, ok := s.deps.Identity.CurrentUserID(ctx)
	if !ok {
		log.Info("No current user; nothing to schedule")
		report.Skipped = ErrNoCurrentUser.Error()
		return report
	}

	settings, err := s.deps.Settings.Load(ctx)
	if err != nil {
		log.WithError(err).Error("Settings unavailable; keeping current pending deliveries")
		report.Skipped = "settings unavailable"
		return report
	}

	rc := refreshCycle{
		userID:   userID,
		owner:    s.deps.Identity.IsOwnerRole(ctx),
		settings: settings,
		now:      now,
		today:    calendar.Of(now, s.deps.Location),
		log:      log.WithField("user_id", userID),
	}

	// Kinds own disjoint identifiers, so they may run side by side.
	results := make([]KindResult, len(notification.Kinds))
	var g errgroup.Group
	for i, k := range notification.Kinds {
		g.Go(func() error {
			kctx, cancel := context.WithTimeout(ctx, s.deps.KindTimeout)
			defer cancel()
			results[i] = s.refreshKind(kctx, rc, k)
			return nil
		})
	}
	_ = g.Wait()

	report.Results = results
	rc.log.WithField("results", len(results)).Info("Refresh complete")
	return report
}

func (s *NotificationScheduler) refreshKind(ctx context.Context, rc refreshCycle, k notification.Kind) KindResult {
	log := rc.log.WithField("kind", k)

	if !rc.settings.IsEnabled(k) {
		return KindResult{Kind: k, Outcome: OutcomeDisabled, Cancelled: s.cancelOwned(ctx, log, k, nil)}
	}
	if k.OwnerOnly() && !rc.owner {
		return KindResult{Kind: k, Outcome: OutcomeNotOwner, Cancelled: s.cancelOwned(ctx, log, k, nil)}
	}

	switch k {
	case notification.KindDailySummary:
		return s.refreshDailySummary(ctx, rc, log)
	case notification.KindWeeklySummary:
		return s.refreshWeeklySummary(ctx, rc, log)
	case notification.KindWeeklyPreview:
		return s.refreshWeeklyPreview(ctx, rc, log)
	case notification.KindAppointmentReminder:
		return s.refreshAppointmentReminders(ctx, rc, log)
	case notification.KindBirthdayReminder:
		return s.refreshBirthdays(ctx, rc, log)
	}
	return KindResult{Kind: k, Outcome: OutcomeNothingDue}
}

func (s *NotificationScheduler) refreshDailySummary(ctx context.Context, rc refreshCycle, log *logrus.Entry) KindResult {
	k := notification.KindDailySummary
	st := rc.settings
	loc := s.deps.Location
	res := KindResult{Kind: k}

	trigger, day := DailyTrigger(rc.now, loc, st.DailySummaryHour, st.DailySummaryMinute, st.DailySummaryGrace)
	sent, err := s.wasSent(ctx, k, k.Identifier(""), day)
	if err != nil {
		log.WithError(err).Error("Ledger unavailable; skipping daily summary this cycle")
		res.Outcome = OutcomeUnavailable
		return res
	}
	if sent {
		day = day.AddDays(1)
		trigger = day.At(st.DailySummaryHour, st.DailySummaryMinute, loc)
		log.WithField("date", day.String()).Debug("Daily summary already delivered; planning the next day")
	}

	rng := calendar.DayRange(day)
	revenue := s.deps.Revenue.Breakdown(ctx, rc.userID, rng).Total
	patients := s.deps.Appointments.CountAttended(ctx, rc.userID, rng)
	if revenue.IsZero() && patients == 0 {
		// Leave any pending delivery from an earlier cycle alone.
		log.WithField("date", day.String()).Info("Idle day; daily summary suppressed")
		res.Outcome = OutcomeSuppressed
		return res
	}

	d := notification.PendingDelivery{
		Kind:       k,
		Identifier: k.Identifier(""),
		TriggerAt:  trigger,
		Date:       day,
		Title:      k.Title(),
		Body:       s.deps.Messages.Select(revenue, patients),
	}
	return s.replace(ctx, log, res, d)
}

func (s *NotificationScheduler) refreshWeeklySummary(ctx context.Context, rc refreshCycle, log *logrus.Entry) KindResult {
	k := notification.KindWeeklySummary
	st := rc.settings
	res := KindResult{Kind: k}

	trigger, anchor, err := s.nextUnsentAnchor(ctx, rc, k, st.WeeklySummaryWeekday, st.WeeklySummaryHour)
	if err != nil {
		log.WithError(err).Error("Ledger unavailable; skipping weekly summary this cycle")
		res.Outcome = OutcomeUnavailable
		return res
	}

	rng := calendar.WeekEnding(anchor)
	revenue := s.deps.Revenue.Breakdown(ctx, rc.userID, rng).Total
	patients := s.deps.Appointments.CountAttended(ctx, rc.userID, rng)
	if revenue.IsZero() && patients == 0 {
		log.WithField("range", rng.String()).Info("Idle week; weekly summary suppressed")
		res.Outcome = OutcomeSuppressed
		return res
	}

	d := notification.PendingDelivery{
		Kind:       k,
		Identifier: k.Identifier(""),
		TriggerAt:  trigger,
		Date:       anchor,
		Title:      k.Title(),
		Body: s.deps.Messages.Render(
			fmt.Sprintf("From %s to %s you cared for {patients} and earned {revenue}.", rng.Start, anchor),
			revenue, patients),
	}
	return s.replace(ctx, log, res, d)
}

func (s *NotificationScheduler) refreshWeeklyPreview(ctx context.Context, rc refreshCycle, log *logrus.Entry) KindResult {
	k := notification.KindWeeklyPreview
	st := rc.settings
	loc := s.deps.Location
	res := KindResult{Kind: k}

	trigger, anchor, err := s.nextUnsentAnchor(ctx, rc, k, st.WeeklyPreviewWeekday, st.WeeklyPreviewHour)
	if err != nil {
		log.WithError(err).Error("Ledger unavailable; skipping weekly preview this cycle")
		res.Outcome = OutcomeUnavailable
		return res
	}

	rng := calendar.WeekAfter(anchor)
	appts, err := s.deps.Appointments.ListAttending(ctx, rc.userID, rng)
	if err != nil {
		log.WithError(err).Warn("Appointments unavailable; keeping previous weekly preview")
		res.Outcome = OutcomeUnavailable
		return res
	}
	if len(appts) == 0 {
		log.WithField("range", rng.String()).Info("Empty week ahead; weekly preview suppressed")
		res.Outcome = OutcomeSuppressed
		return res
	}

	first := appts[0].Start.In(loc)
	body := fmt.Sprintf("You have %s next week. First one: %s.",
		pluralize(len(appts), "appointment", "appointments"), first.Format("Mon 02/01 15:04"))

	d := notification.PendingDelivery{
		Kind:       k,
		Identifier: k.Identifier(""),
		TriggerAt:  trigger,
		Date:       anchor,
		Title:      k.Title(),
		Body:       body,
	}
	return s.replace(ctx, log, res, d)
}

// nextUnsentAnchor returns the next weekly anchor, skipping one already
// recorded in the ledger.
func (s *NotificationScheduler) nextUnsentAnchor(ctx context.Context, rc refreshCycle, k notification.Kind, weekday time.Weekday, hour int) (time.Time, calendar.Date, error) {
	trigger, anchor := NextWeeklyAnchor(rc.now, s.deps.Location, weekday, hour, 0)
	sent, err := s.wasSent(ctx, k, k.Identifier(""), anchor)
	if err != nil {
		return time.Time{}, calendar.Date{}, err
	}
	if sent {
		anchor = anchor.AddDays(7)
		trigger = anchor.At(hour, 0, s.deps.Location)
	}
	return trigger, anchor, nil
}

func (s *NotificationScheduler) refreshAppointmentReminders(ctx context.Context, rc refreshCycle, log *logrus.Entry) KindResult {
	k := notification.KindAppointmentReminder
	st := rc.settings
	loc := s.deps.Location
	res := KindResult{Kind: k}

	rng := calendar.Range{Start: rc.today, End: rc.today.AddDays(st.AppointmentLookaheadDays + 1)}
	appts, err := s.deps.Appointments.ListAttending(ctx, rc.userID, rng)
	if err != nil {
		log.WithError(err).Warn("Appointments unavailable; keeping previous reminders")
		res.Outcome = OutcomeUnavailable
		return res
	}

	var desired []notification.PendingDelivery
	for _, a := range appts {
		if a.ID == "" {
			continue
		}
		remindAt := a.Start.Add(-st.AppointmentReminderOffset)
		if !remindAt.After(rc.now) {
			// Too close to start; a late reminder is worse than none.
			continue
		}
		id := k.Identifier(a.ID)
		day := calendar.Of(a.Start, loc)
		sent, err := s.wasSent(ctx, k, id, day)
		if err != nil {
			log.WithField("identifier", id).WithError(err).Warn("Ledger unavailable for reminder; skipping it")
			continue
		}
		if sent {
			continue
		}
		who := a.PatientName
		if who == "" {
			who = "your patient"
		}
		desired = append(desired, notification.PendingDelivery{
			Kind:       k,
			Identifier: id,
			TriggerAt:  remindAt,
			Date:       day,
			Title:      k.Title(),
			Body: fmt.Sprintf("Appointment with %s at %s (in %d minutes).",
				who, a.Start.In(loc).Format("15:04"), int(st.AppointmentReminderOffset/time.Minute)),
		})
	}

	return s.replaceAll(ctx, log, res, desired)
}

func (s *NotificationScheduler) refreshBirthdays(ctx context.Context, rc refreshCycle, log *logrus.Entry) KindResult {
	k := notification.KindBirthdayReminder
	st := rc.settings
	loc := s.deps.Location
	res := KindResult{Kind: k}

	patients, err := s.deps.Patients.ListPatients(ctx, rc.userID)
	if err != nil {
		log.WithError(err).Warn("Patients unavailable; keeping previous birthday reminders")
		res.Outcome = OutcomeUnavailable
		return res
	}

	var desired []notification.PendingDelivery
	for _, p := range patients {
		if p.ID == "" || !p.HasBirthDate() {
			continue
		}
		occ := NextBirthday(p.BirthDate, rc.today)
		if rc.today.DaysUntil(occ) > st.BirthdayHorizonDays {
			continue
		}
		id := k.Identifier(p.ID)
		sent, err := s.wasSent(ctx, k, id, occ)
		if err != nil {
			log.WithField("identifier", id).WithError(err).Warn("Ledger unavailable for birthday; skipping it")
			continue
		}
		if sent {
			continue
		}
		at := occ.At(st.BirthdayReminderHour, 0, loc)
		if !at.After(rc.now) {
			// Birthday is today and the hour has passed: still deliver today.
			at = rc.now.Add(ImmediateDelay)
		}
		desired = append(desired, notification.PendingDelivery{
			Kind:       k,
			Identifier: id,
			TriggerAt:  at,
			Date:       occ,
			Title:      k.Title(),
			Body:       birthdayBody(p, occ),
		})
	}

	return s.replaceAll(ctx, log, res, desired)
}

func birthdayBody(p clinic.Patient, occ calendar.Date) string {
	name := p.Name
	if name == "" {
		name = "A patient"
	}
	age := occ.Year - p.BirthDate.Year
	if p.BirthDate.Year > 1900 && age > 0 && age < 130 {
		return fmt.Sprintf("%s turns %d today. Send them a message!", name, age)
	}
	return fmt.Sprintf("Today is %s's birthday. Send them a message!", name)
}

// replace cancels the identifier and schedules d in its place.
func (s *NotificationScheduler) replace(ctx context.Context, log *logrus.Entry, res KindResult, d notification.PendingDelivery) KindResult {
	return s.replaceAll(ctx, log, res, []notification.PendingDelivery{d})
}

// replaceAll makes the kind's pending set exactly desired: stale identifiers
// are cancelled, then every desired delivery is cancelled and recreated.
func (s *NotificationScheduler) replaceAll(ctx context.Context, log *logrus.Entry, res KindResult, desired []notification.PendingDelivery) KindResult {
	keep := make(map[string]bool, len(desired))
	for _, d := range desired {
		keep[d.Identifier] = true
	}
	if !res.Kind.Singleton() {
		res.Cancelled = s.cancelOwned(ctx, log, res.Kind, keep)
	}

	res.Outcome = OutcomeNothingDue
	rejected := false
	for _, d := range desired {
		dlog := log.WithFields(logrus.Fields{"identifier": d.Identifier, "trigger_at": d.TriggerAt.Format(time.RFC3339)})
		if err := s.deps.Center.Cancel(ctx, []string{d.Identifier}); err != nil {
			dlog.WithError(err).Warn("Could not cancel previous delivery")
		}
		if err := s.deps.Center.Schedule(ctx, d); err != nil {
			// Retried on the next natural refresh.
			dlog.WithError(err).Error("Delivery rejected")
			rejected = true
			continue
		}
		dlog.Debug("Delivery scheduled")
		res.Scheduled = append(res.Scheduled, d.Identifier)
	}
	switch {
	case rejected:
		res.Outcome = OutcomeRejected
	case len(res.Scheduled) > 0:
		res.Outcome = OutcomeScheduled
	}
	return res
}

// cancelOwned removes pending deliveries of k that are not in keep.
func (s *NotificationScheduler) cancelOwned(ctx context.Context, log *logrus.Entry, k notification.Kind, keep map[string]bool) []string {
	pending, err := s.deps.Center.ListPending(ctx)
	if err != nil {
		log.WithError(err).Warn("Could not list pending deliveries")
		return nil
	}
	var stale []string
	for _, p := range pending {
		if k.Owns(p.Identifier) && !keep[p.Identifier] {
			stale = append(stale, p.Identifier)
		}
	}
	if len(stale) == 0 {
		return nil
	}
	if err := s.deps.Center.Cancel(ctx, stale); err != nil {
		log.WithError(err).Warn("Could not cancel stale deliveries")
		return nil
	}
	log.WithField("count", len(stale)).Debug("Cancelled stale deliveries")
	return stale
}

func (s *NotificationScheduler) wasSent(ctx context.Context, k notification.Kind, id string, day calendar.Date) (bool, error) {
	return s.deps.Ledger.WasSent(ctx, notification.SentMarker{Kind: k, Identifier: id, Date: day})
}

// DaySummary is the on-demand financial view of a range.
type DaySummary struct {
	Range    calendar.Range
	Revenue  RevenueBreakdown
	Patients int
	Message  string
}

// Summary computes the facts a summary notification would carry for rng.
func (s *NotificationScheduler) Summary(ctx context.Context, rng calendar.Range) (DaySummary, error) {
	userID, ok := s.deps.Identity.CurrentUserID(ctx)
	if !ok {
		return DaySummary{}, ErrNoCurrentUser
	}
	if !s.deps.Identity.IsOwnerRole(ctx) {
		return DaySummary{}, ErrNotOwner
	}
	breakdown := s.deps.Revenue.Breakdown(ctx, userID, rng)
	patients := s.deps.Appointments.CountAttended(ctx, userID, rng)
	return DaySummary{
		Range:    rng,
		Revenue:  breakdown,
		Patients: patients,
		Message:  s.deps.Messages.Select(breakdown.Total, patients),
	}, nil
}

// Today returns the clinic-local day range of now.
func (s *NotificationScheduler) Today() calendar.Range {
	return calendar.DayRange(calendar.Of(s.deps.Now(), s.deps.Location))
}

// FormatCurrency exposes the configured currency rendering.
func (s *NotificationScheduler) FormatCurrency(d decimal.Decimal) string {
	return s.deps.Messages.FormatCurrency(d)
}
