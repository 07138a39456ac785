package app

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"clinic_notification_engine/internal/domain/calendar"
	"clinic_notification_engine/internal/domain/clinic"
	"clinic_notification_engine/internal/domain/notification"
	"clinic_notification_engine/internal/infra/logger"

	"github.com/shopspring/decimal"
)

// Tuesday afternoon.
var testNow = time.Date(2025, 1, 7, 15, 0, 0, 0, time.UTC)

type schedulerFixture struct {
	identity     *fakeIdentity
	revenue      *fakeRevenue
	appointments *fakeAppointments
	patients     *fakePatients
	settings     *fakeSettings
	ledger       *memLedger
	center       *memCenter
	now          time.Time
	scheduler    *NotificationScheduler
}

func newSchedulerFixture(t *testing.T) *schedulerFixture {
	t.Helper()
	f := &schedulerFixture{
		identity:     &fakeIdentity{userID: "u1", owner: true},
		revenue:      &fakeRevenue{byStart: map[calendar.Date]decimal.Decimal{}},
		appointments: &fakeAppointments{loc: time.UTC},
		patients:     &fakePatients{},
		settings:     newFakeSettings(),
		ledger:       newMemLedger(),
		center:       newMemCenter(),
		now:          testNow,
	}
	f.scheduler = NewNotificationScheduler(SchedulerDeps{
		Identity:     f.identity,
		Revenue:      f.revenue,
		Appointments: f.appointments,
		Patients:     f.patients,
		Settings:     f.settings,
		Ledger:       f.ledger,
		Center:       f.center,
		Messages:     newTestSelector(t),
		Location:     time.UTC,
		Now:          func() time.Time { return f.now },
		KindTimeout:  time.Second,
		Logger:       logger.Discard(),
	})
	return f
}

func (f *schedulerFixture) refresh() RefreshReport {
	return f.scheduler.RefreshAll(context.Background())
}

func resultFor(t *testing.T, r RefreshReport, k notification.Kind) KindResult {
	t.Helper()
	for _, res := range r.Results {
		if res.Kind == k {
			return res
		}
	}
	t.Fatalf("no result for %s in %+v", k, r)
	return KindResult{}
}

func appt(id, start, patient string) clinic.AppointmentFact {
	s, err := time.Parse(time.RFC3339, start)
	if err != nil {
		panic(err)
	}
	return clinic.AppointmentFact{ID: id, Start: s, End: s.Add(time.Hour), Status: clinic.StatusScheduled, PatientName: patient}
}

func TestRefreshAll_DailySummaryScheduled(t *testing.T) {
	f := newSchedulerFixture(t)
	f.revenue.byStart[calendar.MustParse("2025-01-07")] = decimal.NewFromInt(1500)
	f.appointments.appts = []clinic.AppointmentFact{appt("a1", "2025-01-07T09:00:00Z", "Ana")}

	r := f.refresh()
	if r.RunID == "" || r.Skipped != "" {
		t.Fatalf("unexpected report %+v", r)
	}
	if got := resultFor(t, r, notification.KindDailySummary).Outcome; got != OutcomeScheduled {
		t.Fatalf("daily outcome = %s", got)
	}
	d, ok := f.center.get("daily_summary")
	if !ok {
		t.Fatal("daily summary not pending")
	}
	if want := time.Date(2025, 1, 7, 21, 0, 0, 0, time.UTC); !d.TriggerAt.Equal(want) {
		t.Errorf("TriggerAt = %s, want %s", d.TriggerAt, want)
	}
	if d.Date.String() != "2025-01-07" {
		t.Errorf("Date = %s", d.Date)
	}
	if !strings.HasPrefix(d.Body, "Solid day!") || !strings.Contains(d.Body, "1 patient") {
		t.Errorf("Body = %q", d.Body)
	}
}

func TestRefreshAll_Idempotent(t *testing.T) {
	f := newSchedulerFixture(t)
	f.revenue.byStart[calendar.MustParse("2025-01-07")] = decimal.NewFromInt(200)
	f.revenue.byStart[calendar.MustParse("2025-01-05")] = decimal.NewFromInt(900)
	f.appointments.appts = []clinic.AppointmentFact{
		appt("a1", "2025-01-07T18:00:00Z", "Ana"),
		appt("a2", "2025-01-14T10:00:00Z", "Bia"),
	}
	f.patients.patients = []clinic.Patient{{ID: "p1", Name: "Caio", BirthDate: calendar.MustParse("1990-01-20")}}

	f.refresh()
	first, _ := f.center.ListPending(context.Background())
	f.refresh()
	second, _ := f.center.ListPending(context.Background())

	if len(first) != 5 {
		t.Fatalf("expected one delivery per kind, got %d: %+v", len(first), first)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("second refresh changed pending set:\n%+v\n%+v", first, second)
	}
}

func TestRefreshAll_IdleDayKeepsEarlierDelivery(t *testing.T) {
	f := newSchedulerFixture(t)
	day := calendar.MustParse("2025-01-07")
	f.revenue.byStart[day] = decimal.NewFromInt(300)

	f.refresh()
	before, ok := f.center.get("daily_summary")
	if !ok {
		t.Fatal("daily summary not pending after first refresh")
	}

	delete(f.revenue.byStart, day)
	r := f.refresh()
	if got := resultFor(t, r, notification.KindDailySummary).Outcome; got != OutcomeSuppressed {
		t.Fatalf("outcome = %s, want suppressed", got)
	}
	after, ok := f.center.get("daily_summary")
	if !ok || after.Body != before.Body {
		t.Fatalf("suppression removed or changed the earlier delivery: %+v", after)
	}
}

func TestRefreshAll_DailyAlreadySentRollsToTomorrow(t *testing.T) {
	f := newSchedulerFixture(t)
	today := calendar.MustParse("2025-01-07")
	tomorrow := today.AddDays(1)
	f.revenue.byStart[today] = decimal.NewFromInt(100)
	f.revenue.byStart[tomorrow] = decimal.NewFromInt(6000)
	_ = f.ledger.MarkSent(context.Background(), notification.SentMarker{Kind: notification.KindDailySummary, Identifier: "daily_summary", Date: today})

	f.refresh()
	d, ok := f.center.get("daily_summary")
	if !ok {
		t.Fatal("daily summary not pending")
	}
	if d.Date != tomorrow || !d.TriggerAt.Equal(tomorrow.At(21, 0, time.UTC)) {
		t.Fatalf("got %s at %s, want tomorrow 21:00", d.Date, d.TriggerAt)
	}
	if !strings.HasPrefix(d.Body, "Great work!") {
		t.Fatalf("body uses the wrong day: %q", d.Body)
	}
}

func TestRefreshAll_DailyWithinGraceFiresSoon(t *testing.T) {
	f := newSchedulerFixture(t)
	f.now = time.Date(2025, 1, 7, 21, 30, 0, 0, time.UTC)
	f.revenue.byStart[calendar.MustParse("2025-01-07")] = decimal.NewFromInt(100)

	f.refresh()
	d, _ := f.center.get("daily_summary")
	if want := f.now.Add(ImmediateDelay); !d.TriggerAt.Equal(want) {
		t.Fatalf("TriggerAt = %s, want %s", d.TriggerAt, want)
	}
}

func TestRefreshAll_StaffGetsNoFinancials(t *testing.T) {
	f := newSchedulerFixture(t)
	f.identity.owner = false
	f.revenue.byStart[calendar.MustParse("2025-01-07")] = decimal.NewFromInt(100)
	f.appointments.appts = []clinic.AppointmentFact{appt("a1", "2025-01-07T18:00:00Z", "Ana")}
	_ = f.center.Schedule(context.Background(), notification.PendingDelivery{Kind: notification.KindDailySummary, Identifier: "daily_summary"})

	r := f.refresh()
	for _, k := range []notification.Kind{notification.KindDailySummary, notification.KindWeeklySummary, notification.KindWeeklyPreview} {
		if got := resultFor(t, r, k).Outcome; got != OutcomeNotOwner {
			t.Errorf("%s outcome = %s, want not_owner", k, got)
		}
	}
	if _, ok := f.center.get("daily_summary"); ok {
		t.Error("owner-only delivery should have been cancelled")
	}
	if _, ok := f.center.get("appointment_reminder_a1"); !ok {
		t.Error("staff should still get appointment reminders")
	}
}

func TestRefreshAll_DisabledKindCancels(t *testing.T) {
	f := newSchedulerFixture(t)
	f.settings.settings.Enabled[notification.KindAppointmentReminder] = false
	_ = f.center.Schedule(context.Background(), notification.PendingDelivery{Identifier: "appointment_reminder_old"})
	f.appointments.appts = []clinic.AppointmentFact{appt("a1", "2025-01-07T18:00:00Z", "Ana")}

	r := f.refresh()
	res := resultFor(t, r, notification.KindAppointmentReminder)
	if res.Outcome != OutcomeDisabled || len(res.Cancelled) != 1 {
		t.Fatalf("result = %+v", res)
	}
	pending, _ := f.center.ListPending(context.Background())
	for _, p := range pending {
		if notification.KindAppointmentReminder.Owns(p.Identifier) {
			t.Fatalf("reminder %s still pending", p.Identifier)
		}
	}
}

func TestRefreshAll_NoUserOrSettingsKeepsPending(t *testing.T) {
	f := newSchedulerFixture(t)
	_ = f.center.Schedule(context.Background(), notification.PendingDelivery{Identifier: "birthday_p1"})

	f.identity.userID = ""
	if r := f.refresh(); r.Skipped == "" || len(r.Results) != 0 {
		t.Fatalf("no user: report = %+v", r)
	}

	f.identity.userID = "u1"
	f.settings.err = errBoom
	if r := f.refresh(); r.Skipped != "settings unavailable" {
		t.Fatalf("settings error: report = %+v", r)
	}

	if _, ok := f.center.get("birthday_p1"); !ok {
		t.Fatal("skipped refresh must leave pending deliveries alone")
	}
}

func TestRefreshAll_RejectedDeliveryIsolated(t *testing.T) {
	f := newSchedulerFixture(t)
	f.revenue.byStart[calendar.MustParse("2025-01-07")] = decimal.NewFromInt(100)
	f.appointments.appts = []clinic.AppointmentFact{appt("a1", "2025-01-07T18:00:00Z", "Ana")}
	f.center.reject["daily_summary"] = true

	r := f.refresh()
	if got := resultFor(t, r, notification.KindDailySummary).Outcome; got != OutcomeRejected {
		t.Fatalf("daily outcome = %s", got)
	}
	if got := resultFor(t, r, notification.KindAppointmentReminder).Outcome; got != OutcomeScheduled {
		t.Fatalf("reminder outcome = %s", got)
	}

	delete(f.center.reject, "daily_summary")
	f.refresh()
	if _, ok := f.center.get("daily_summary"); !ok {
		t.Fatal("rejected delivery should be retried on the next refresh")
	}
}

func TestRefreshAll_AppointmentReminders(t *testing.T) {
	f := newSchedulerFixture(t)
	personal := appt("a3", "2025-01-07T19:00:00Z", "")
	personal.IsPersonal = true
	f.appointments.appts = []clinic.AppointmentFact{
		appt("a1", "2025-01-07T18:00:00Z", "Ana"),
		appt("a2", "2025-01-07T15:20:00Z", "Bia"), // reminder time already passed
		personal,
		appt("a4", "2025-01-09T10:00:00Z", ""),
		appt("a5", "2025-01-09T11:00:00Z", "Duda"),
		appt("a6", "2025-01-10T10:00:00Z", "Eva"), // past the lookahead
	}
	_ = f.ledger.MarkSent(context.Background(), notification.SentMarker{
		Kind: notification.KindAppointmentReminder, Identifier: "appointment_reminder_a5", Date: calendar.MustParse("2025-01-09"),
	})
	_ = f.center.Schedule(context.Background(), notification.PendingDelivery{Identifier: "appointment_reminder_gone"})

	r := f.refresh()
	res := resultFor(t, r, notification.KindAppointmentReminder)
	if !reflect.DeepEqual(res.Cancelled, []string{"appointment_reminder_gone"}) {
		t.Errorf("Cancelled = %v", res.Cancelled)
	}
	if !reflect.DeepEqual(res.Scheduled, []string{"appointment_reminder_a1", "appointment_reminder_a4"}) {
		t.Errorf("Scheduled = %v", res.Scheduled)
	}

	d, _ := f.center.get("appointment_reminder_a1")
	if want := time.Date(2025, 1, 7, 17, 30, 0, 0, time.UTC); !d.TriggerAt.Equal(want) {
		t.Errorf("TriggerAt = %s, want %s", d.TriggerAt, want)
	}
	if d.Body != "Appointment with Ana at 18:00 (in 30 minutes)." {
		t.Errorf("Body = %q", d.Body)
	}
	if d4, _ := f.center.get("appointment_reminder_a4"); !strings.Contains(d4.Body, "your patient") {
		t.Errorf("anonymous body = %q", d4.Body)
	}
}

func TestRefreshAll_AppointmentsUnavailableKeepsReminders(t *testing.T) {
	f := newSchedulerFixture(t)
	f.appointments.appts = []clinic.AppointmentFact{appt("a1", "2025-01-07T18:00:00Z", "Ana")}
	f.refresh()

	f.appointments.err = errBoom
	r := f.refresh()
	if got := resultFor(t, r, notification.KindAppointmentReminder).Outcome; got != OutcomeUnavailable {
		t.Fatalf("outcome = %s", got)
	}
	if _, ok := f.center.get("appointment_reminder_a1"); !ok {
		t.Fatal("reminder dropped on read failure")
	}
}

func TestRefreshAll_Birthdays(t *testing.T) {
	f := newSchedulerFixture(t)
	f.patients.patients = []clinic.Patient{
		{ID: "today", Name: "Ana", BirthDate: calendar.MustParse("1990-01-07")},
		{ID: "soon", Name: "Bia", BirthDate: calendar.MustParse("1985-01-20")},
		{ID: "far", Name: "Caio", BirthDate: calendar.MustParse("1980-03-01")},
		{ID: "sent", Name: "Duda", BirthDate: calendar.MustParse("1992-01-08")},
		{ID: "unknown", Name: "Eva"},
	}
	_ = f.ledger.MarkSent(context.Background(), notification.SentMarker{
		Kind: notification.KindBirthdayReminder, Identifier: "birthday_sent", Date: calendar.MustParse("2025-01-08"),
	})

	r := f.refresh()
	res := resultFor(t, r, notification.KindBirthdayReminder)
	if !reflect.DeepEqual(res.Scheduled, []string{"birthday_today", "birthday_soon"}) {
		t.Fatalf("Scheduled = %v", res.Scheduled)
	}

	today, _ := f.center.get("birthday_today")
	if !today.TriggerAt.Equal(testNow.Add(ImmediateDelay)) {
		t.Errorf("past-hour birthday TriggerAt = %s", today.TriggerAt)
	}
	if today.Body != "Ana turns 35 today. Send them a message!" {
		t.Errorf("Body = %q", today.Body)
	}
	soon, _ := f.center.get("birthday_soon")
	if want := time.Date(2025, 1, 20, 9, 0, 0, 0, time.UTC); !soon.TriggerAt.Equal(want) {
		t.Errorf("TriggerAt = %s, want %s", soon.TriggerAt, want)
	}
}

func TestRefreshAll_WeeklySummaryAndPreview(t *testing.T) {
	f := newSchedulerFixture(t)
	// Week ending Saturday 2025-01-11 starts Sunday 2025-01-05.
	f.revenue.byStart[calendar.MustParse("2025-01-05")] = decimal.NewFromInt(4200)
	f.appointments.appts = []clinic.AppointmentFact{
		appt("a1", "2025-01-06T10:00:00Z", "Ana"),
		appt("a2", "2025-01-15T11:00:00Z", "Bia"),
		appt("a3", "2025-01-14T09:30:00Z", "Caio"),
	}

	f.refresh()

	summary, ok := f.center.get("weekly_summary")
	if !ok {
		t.Fatal("weekly summary not pending")
	}
	if want := time.Date(2025, 1, 11, 22, 0, 0, 0, time.UTC); !summary.TriggerAt.Equal(want) {
		t.Errorf("summary TriggerAt = %s, want %s", summary.TriggerAt, want)
	}
	if !strings.HasPrefix(summary.Body, "From 2025-01-05 to 2025-01-11 you cared for 1 patient") {
		t.Errorf("summary Body = %q", summary.Body)
	}

	preview, ok := f.center.get("weekly_preview")
	if !ok {
		t.Fatal("weekly preview not pending")
	}
	if want := time.Date(2025, 1, 12, 20, 0, 0, 0, time.UTC); !preview.TriggerAt.Equal(want) {
		t.Errorf("preview TriggerAt = %s, want %s", preview.TriggerAt, want)
	}
	if preview.Body != "You have 2 appointments next week. First one: Tue 14/01 09:30." {
		t.Errorf("preview Body = %q", preview.Body)
	}
}

func TestRefreshAll_WeeklySummaryAlreadySent(t *testing.T) {
	f := newSchedulerFixture(t)
	f.revenue.byStart[calendar.MustParse("2025-01-12")] = decimal.NewFromInt(10)
	_ = f.ledger.MarkSent(context.Background(), notification.SentMarker{
		Kind: notification.KindWeeklySummary, Identifier: "weekly_summary", Date: calendar.MustParse("2025-01-11"),
	})

	f.refresh()
	d, ok := f.center.get("weekly_summary")
	if !ok {
		t.Fatal("weekly summary not pending")
	}
	if d.Date.String() != "2025-01-18" {
		t.Fatalf("anchor = %s, want 2025-01-18", d.Date)
	}
}

func TestRefreshAll_EmptyWeekAheadSuppressesPreview(t *testing.T) {
	f := newSchedulerFixture(t)
	r := f.refresh()
	if got := resultFor(t, r, notification.KindWeeklyPreview).Outcome; got != OutcomeSuppressed {
		t.Fatalf("outcome = %s", got)
	}
}

func TestRefreshAll_LedgerFailureSkipsKind(t *testing.T) {
	f := newSchedulerFixture(t)
	f.revenue.byStart[calendar.MustParse("2025-01-07")] = decimal.NewFromInt(100)
	f.ledger.err = errBoom

	r := f.refresh()
	if got := resultFor(t, r, notification.KindDailySummary).Outcome; got != OutcomeUnavailable {
		t.Fatalf("outcome = %s", got)
	}
}

func TestSummary(t *testing.T) {
	f := newSchedulerFixture(t)
	f.revenue.byStart[calendar.MustParse("2025-01-07")] = decimal.NewFromInt(150)

	s, err := f.scheduler.Summary(context.Background(), f.scheduler.Today())
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if !s.Revenue.Total.Equal(decimal.NewFromInt(150)) || !strings.Contains(s.Message, "$150.00") {
		t.Fatalf("summary = %+v", s)
	}

	f.identity.owner = false
	if _, err := f.scheduler.Summary(context.Background(), f.scheduler.Today()); !errors.Is(err, ErrNotOwner) {
		t.Fatalf("staff Summary error = %v", err)
	}
	f.identity.userID = ""
	if _, err := f.scheduler.Summary(context.Background(), f.scheduler.Today()); !errors.Is(err, ErrNoCurrentUser) {
		t.Fatalf("no-user Summary error = %v", err)
	}
}
