package api

import (
	"context"
	"net/http"

	"clinic_notification_engine/internal/app"
	"clinic_notification_engine/internal/domain/calendar"
	"clinic_notification_engine/internal/domain/notification"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// Engine is the part of *app.NotificationScheduler exposed over HTTP.
type Engine interface {
	RefreshAll(ctx context.Context) app.RefreshReport
	Summary(ctx context.Context, rng calendar.Range) (app.DaySummary, error)
	Today() calendar.Range
	FormatCurrency(d decimal.Decimal) string
}

type PendingLister interface {
	ListPending(ctx context.Context) ([]notification.PendingDelivery, error)
}

type RouterConfig struct {
	Engine  Engine
	Pending PendingLister
	Checks  map[string]HealthCheck
	Env     string
	Version string
	Logger  *logrus.Entry
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	// Apply middleware
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))

	// Health endpoints
	health := NewHealthHandler(cfg.Checks, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	r.Route("/v1", func(r chi.Router) {
		// Data-mutation hook: upstream writers call this after changing records.
		r.Post("/refresh", refreshHandler(cfg.Engine))
		r.Get("/pending", pendingHandler(cfg.Pending))
		r.Get("/summary/today", todaySummaryHandler(cfg.Engine))
	})

	return r
}
