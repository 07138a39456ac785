// internal/app/attendance.go
package app

import (
	"context"
	"fmt"
	"sort"
	"time"

	"clinic_notification_engine/internal/domain/calendar"
	"clinic_notification_engine/internal/domain/clinic"

	"github.com/sirupsen/logrus"
)

// AttendanceCounter reads patient-facing appointments from the scheduling store.
type AttendanceCounter struct {
	store  clinic.DataStore
	loc    *time.Location
	logger *logrus.Entry
}

func NewAttendanceCounter(store clinic.DataStore, loc *time.Location, logger *logrus.Entry) *AttendanceCounter {
	return &AttendanceCounter{store: store, loc: loc, logger: logger}
}

// CountAttended returns the number of non-personal, non-cancelled appointments
// starting in rng. Store failures count as zero.
func (c *AttendanceCounter) CountAttended(ctx context.Context, userID string, rng calendar.Range) int {
	appts, err := c.ListAttending(ctx, userID, rng)
	if err != nil {
		c.logger.WithField("range", rng.String()).WithError(err).Warn("Could not count attendance; using zero")
		return 0
	}
	return len(appts)
}

// ListAttending returns the counted appointments ordered by start.
func (c *AttendanceCounter) ListAttending(ctx context.Context, userID string, rng calendar.Range) ([]clinic.AppointmentFact, error) {
	if userID == "" || rng.Empty() {
		return nil, nil
	}

	q := clinic.Query{Collection: clinic.CollectionAppointments, OrderBy: "startTime"}.
		Where("userId", clinic.OpEq, userID)
	docs, err := c.store.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("query appointments: %w", err)
	}

	out := make([]clinic.AppointmentFact, 0, len(docs))
	for _, doc := range docs {
		fact, err := c.toFact(doc)
		if err != nil {
			c.logger.WithField("appointment_id", doc.String("id")).WithError(err).Debug("Skipping appointment with unusable start")
			continue
		}
		if !fact.CountsTowardAttendance() {
			continue
		}
		if !rng.Contains(calendar.Of(fact.Start, c.loc)) {
			continue
		}
		out = append(out, fact)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out, nil
}

func (c *AttendanceCounter) toFact(doc clinic.Record) (clinic.AppointmentFact, error) {
	start, err := calendar.ParseInstant(doc.FirstString("startTime", "start", "date"), c.loc)
	if err != nil {
		return clinic.AppointmentFact{}, err
	}
	end, err := calendar.ParseInstant(doc.FirstString("endTime", "end"), c.loc)
	if err != nil {
		end = start
	}
	return clinic.AppointmentFact{
		ID:          doc.String("id"),
		Start:       start,
		End:         end,
		Status:      clinic.ParseAppointmentStatus(doc.String("status")),
		IsPersonal:  doc.Bool("isPersonal"),
		PatientID:   doc.String("patientId"),
		PatientName: doc.String("patientName"),
	}, nil
}
