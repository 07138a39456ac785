package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"clinic_notification_engine/internal/api"
	"clinic_notification_engine/internal/app"
	"clinic_notification_engine/internal/infra/config"
	idb "clinic_notification_engine/internal/infra/database"
	"clinic_notification_engine/internal/infra/logger"
	"clinic_notification_engine/internal/infra/notifcenter"
	"clinic_notification_engine/internal/infra/redisstore"
	"clinic_notification_engine/internal/infra/scheduler"
	"clinic_notification_engine/internal/infra/telegram"

	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"
)

var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Log.Fatalf("Could not load application configuration: %v", err)
	}
	logger.Init(cfg)

	mainLogger := logger.Component("main")
	mainLogger.WithFields(logrus.Fields{
		"environment": cfg.Environment,
		"user_id":     cfg.ClinicUserID,
		"timezone":    cfg.ClinicTimezone.String(),
		"version":     version,
	}).Info("Clinic notification engine starting...")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize Database Connection
	db, err := idb.NewPostgresConnection(cfg.DatabaseURL)
	if err != nil {
		mainLogger.WithError(err).Fatal("Could not connect to database")
	}
	defer db.Close()
	if err := idb.EnsureSchema(ctx, db); err != nil {
		mainLogger.WithError(err).Fatal("Could not apply database schema")
	}

	records := idb.NewPostgresRecordStore(db)
	staffRepo := idb.NewPostgresStaffRepository(db)
	identity := idb.NewStaffIdentity(staffRepo, cfg.ClinicUserID, logger.Component("identity"))

	// Initialize Redis (ledger and settings)
	rdb, err := redisstore.NewRedisClient(cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		mainLogger.WithError(err).Fatal("Could not connect to redis")
	}
	defer rdb.Close()

	settingsStore := redisstore.NewSettingsStore(rdb, "engine:settings:"+cfg.ClinicUserID, logger.Component("settings"))
	if n, err := settingsStore.Migrate(ctx); err != nil {
		mainLogger.WithError(err).Fatal("Could not migrate stored settings")
	} else if n > 0 {
		mainLogger.WithField("defaults_written", n).Info("Stored settings migrated")
	}
	ledger := redisstore.NewLedger(rdb, cfg.LedgerRetention, logger.Component("ledger"))

	// Initialize Telegram Bot
	botLogger := logger.Component("telebot")
	bot, err := telebot.NewBot(telebot.Settings{
		Token:  cfg.TelegramToken,
		Poller: &telebot.LongPoller{Timeout: 10 * time.Second},
		OnError: func(err error, c telebot.Context) {
			entry := botLogger.WithError(err)
			if c != nil && c.Sender() != nil && c.Chat() != nil {
				entry = entry.WithFields(logrus.Fields{"text": c.Text(), "sender_id": c.Sender().ID, "chat_id": c.Chat().ID})
			}
			entry.Error("Unhandled bot error")
		},
	})
	if err != nil {
		mainLogger.WithError(err).Fatal("Could not create Telegram bot")
	}

	center := notifcenter.NewLocalCenter(telegram.NewTelebotAdapter(bot), cfg.DeliveryChatID, ledger, cfg.MaxPending, logger.Component("center"))

	// Initialize application services
	appLogger := logger.Component("engine")
	messages, err := app.NewMessageSelector(app.DefaultMessageTiers(), app.NewCurrencyFormatter(cfg.CurrencyLocale, cfg.CurrencySymbol))
	if err != nil {
		mainLogger.WithError(err).Fatal("Invalid message tiers")
	}
	engine := app.NewNotificationScheduler(app.SchedulerDeps{
		Identity:     identity,
		Revenue:      app.NewRevenueAggregator(app.DefaultRevenueSources(records, cfg.ClinicTimezone, appLogger), appLogger),
		Appointments: app.NewAttendanceCounter(records, cfg.ClinicTimezone, appLogger),
		Patients:     app.NewPatientDirectory(records, cfg.ClinicTimezone, appLogger),
		Settings:     settingsStore,
		Ledger:       ledger,
		Center:       center,
		Messages:     messages,
		Location:     cfg.ClinicTimezone,
		KindTimeout:  cfg.RefreshTimeout,
		Logger:       appLogger,
	})
	settingsService := app.NewSettingsService(settingsStore, identity)

	// Register Handlers
	handler := telegram.NewCommandHandler(staffRepo, cfg.ClinicUserID, engine, center, settingsService, cfg.ClinicTimezone, logger.Component("bot"))
	telegram.RegisterBotCommands(ctx, bot, handler)
	telegram.RegisterSettingsHandlers(ctx, bot, handler)

	// Initialize scheduler
	cronScheduler := scheduler.NewCronScheduler(engine, ledger, logger.Component("scheduler"), scheduler.Config{
		RefreshSpec:    cfg.CronSpecRefresh,
		PruneSpec:      cfg.CronSpecPrune,
		Retention:      cfg.LedgerRetention,
		RefreshTimeout: cfg.RefreshTimeout,
		Location:       cfg.ClinicTimezone,
	})
	if err := cronScheduler.Start(); err != nil {
		mainLogger.WithError(err).Fatal("Could not start scheduler")
	}

	go center.Run(ctx, cfg.DispatchEvery)
	go bot.Start()

	srv := &http.Server{
		Addr: ":" + cfg.HTTPPort,
		Handler: api.NewRouter(api.RouterConfig{
			Engine:  engine,
			Pending: center,
			Checks: map[string]api.HealthCheck{
				"postgres": db.PingContext,
				"redis":    func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
			},
			Env:     cfg.Environment,
			Version: version,
			Logger:  logger.Component("http"),
		}),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		mainLogger.WithField("addr", srv.Addr).Info("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			mainLogger.WithError(err).Error("HTTP server failed")
			stop()
		}
	}()

	mainLogger.Info("Application setup complete.")
	<-ctx.Done()

	// Graceful shutdown
	mainLogger.Info("Shutting down application...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		mainLogger.WithError(err).Warn("HTTP server did not shut down cleanly")
	}
	cronScheduler.Stop()
	bot.Stop()
	mainLogger.Info("Application shut down gracefully.")
}
