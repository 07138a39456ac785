package scheduler

import (
	"context"
	"fmt"
	"time"

	"clinic_notification_engine/internal/app"
	"clinic_notification_engine/internal/domain/calendar"
	"clinic_notification_engine/internal/domain/notification"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Refresher is satisfied by *app.NotificationScheduler.
type Refresher interface {
	RefreshAll(ctx context.Context) app.RefreshReport
}

// Config holds the cron specs and windows of the periodic jobs.
type Config struct {
	RefreshSpec    string        // e.g. "*/15 * * * *"
	PruneSpec      string        // e.g. "30 3 * * *"
	Retention      time.Duration // markers older than this are pruned
	RefreshTimeout time.Duration
	Location       *time.Location
}

// CronScheduler runs the natural refresh trigger and the nightly ledger prune.
type CronScheduler struct {
	cronEngine *cron.Cron
	refresher  Refresher
	ledger     notification.Ledger
	logger     *logrus.Entry
	cfg        Config
	now        func() time.Time
}

func NewCronScheduler(refresher Refresher, ledger notification.Ledger, logger *logrus.Entry, cfg Config) *CronScheduler {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.RefreshTimeout <= 0 {
		cfg.RefreshTimeout = time.Minute
	}
	return &CronScheduler{
		cronEngine: cron.New(cron.WithLocation(cfg.Location), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		refresher:  refresher,
		ledger:     ledger,
		logger:     logger,
		cfg:        cfg,
		now:        time.Now,
	}
}

// Start registers the jobs, runs one refresh and starts the cron engine.
func (s *CronScheduler) Start() error {
	s.logger.Info("Starting notification scheduler...")

	if _, err := s.cronEngine.AddFunc(s.cfg.RefreshSpec, func() {
		s.logger.Debug("Cron job triggered for refresh.")
		s.Refresh()
	}); err != nil {
		return fmt.Errorf("could not add refresh cron job %q: %w", s.cfg.RefreshSpec, err)
	}

	if _, err := s.cronEngine.AddFunc(s.cfg.PruneSpec, func() {
		s.logger.Debug("Cron job triggered for ledger prune.")
		s.Prune()
	}); err != nil {
		return fmt.Errorf("could not add prune cron job %q: %w", s.cfg.PruneSpec, err)
	}

	// Start-up counts as a foreground event.
	s.Refresh()

	s.cronEngine.Start()
	s.logger.WithField("jobs", len(s.cronEngine.Entries())).Info("Notification scheduler started with jobs.")
	return nil
}

// Refresh runs one RefreshAll under the configured timeout.
func (s *CronScheduler) Refresh() app.RefreshReport {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.RefreshTimeout)
	defer cancel()
	report := s.refresher.RefreshAll(ctx)
	log := s.logger.WithField("run_id", report.RunID)
	if report.Skipped != "" {
		log.WithField("reason", report.Skipped).Warn("Refresh skipped")
	} else {
		log.WithField("kinds", len(report.Results)).Info("Refresh finished")
	}
	return report
}

// Prune removes ledger markers older than the retention window.
func (s *CronScheduler) Prune() (int, error) {
	days := int(s.cfg.Retention / (24 * time.Hour))
	before := calendar.Of(s.now(), s.cfg.Location).AddDays(-days)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	n, err := s.ledger.Prune(ctx, before)
	if err != nil {
		s.logger.WithError(err).Error("Ledger prune failed")
		return n, err
	}
	s.logger.WithFields(logrus.Fields{"removed": n, "before": before.String()}).Info("Ledger pruned")
	return n, nil
}

func (s *CronScheduler) Stop() {
	s.logger.Info("Stopping notification scheduler...")
	ctx := s.cronEngine.Stop() // Stops the scheduler from adding new jobs, waits for running jobs.
	<-ctx.Done()
	s.logger.Info("Notification scheduler gracefully stopped.")
}
