package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"clinic_notification_engine/internal/app"
)

func refreshHandler(engine Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report := engine.RefreshAll(r.Context())
		status := http.StatusOK
		if report.Skipped != "" {
			status = http.StatusConflict
		}
		writeJSON(w, status, RefreshResponse(report))
	}
}

func pendingHandler(pending PendingLister) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := pending.ListPending(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, "pending_unavailable", err.Error())
			return
		}
		resp := make([]PendingResponse, 0, len(list))
		for _, d := range list {
			resp = append(resp, PendingResponse{
				Identifier: d.Identifier,
				Kind:       d.Kind,
				TriggerAt:  d.TriggerAt,
				Date:       d.Date.String(),
				Title:      d.Title,
				Body:       d.Body,
			})
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func todaySummaryHandler(engine Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		summary, err := engine.Summary(r.Context(), engine.Today())
		if err != nil {
			handleSummaryError(w, err)
			return
		}

		bySource := make(map[string]string, len(summary.Revenue.BySource))
		for src, amount := range summary.Revenue.BySource {
			bySource[string(src)] = amount.StringFixed(2)
		}
		var failed []string
		for _, src := range summary.Revenue.Failed {
			failed = append(failed, string(src))
		}

		writeJSON(w, http.StatusOK, SummaryResponse{
			Start:    summary.Range.Start.String(),
			End:      summary.Range.End.String(),
			Total:    summary.Revenue.Total.StringFixed(2),
			Display:  engine.FormatCurrency(summary.Revenue.Total),
			BySource: bySource,
			Failed:   failed,
			Patients: summary.Patients,
			Message:  summary.Message,
		})
	}
}

func handleSummaryError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, app.ErrNotOwner):
		writeError(w, http.StatusForbidden, "not_owner", err.Error())
	case errors.Is(err, app.ErrNoCurrentUser):
		writeError(w, http.StatusConflict, "no_current_user", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", "unexpected error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}
