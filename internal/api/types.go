package api

import (
	"time"

	"clinic_notification_engine/internal/app"
	"clinic_notification_engine/internal/domain/notification"
)

type PendingResponse struct {
	Identifier string            `json:"identifier"`
	Kind       notification.Kind `json:"kind"`
	TriggerAt  time.Time         `json:"trigger_at"`
	Date       string            `json:"date"`
	Title      string            `json:"title"`
	Body       string            `json:"body"`
}

type SummaryResponse struct {
	Start    string            `json:"start"`
	End      string            `json:"end"` // exclusive
	Total    string            `json:"total"`
	Display  string            `json:"display"`
	BySource map[string]string `json:"by_source"`
	Failed   []string          `json:"failed_sources,omitempty"`
	Patients int               `json:"patients"`
	Message  string            `json:"message"`
}

type RefreshResponse = app.RefreshReport

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
