package app

import (
	"context"
	"fmt"
	"time"

	"clinic_notification_engine/internal/domain/calendar"
	"clinic_notification_engine/internal/domain/clinic"

	"github.com/sirupsen/logrus"
)

// PatientDirectory lists patients of the current user.
type PatientDirectory struct {
	store  clinic.DataStore
	loc    *time.Location
	logger *logrus.Entry
}

func NewPatientDirectory(store clinic.DataStore, loc *time.Location, logger *logrus.Entry) *PatientDirectory {
	return &PatientDirectory{store: store, loc: loc, logger: logger}
}

func (d *PatientDirectory) ListPatients(ctx context.Context, userID string) ([]clinic.Patient, error) {
	if userID == "" {
		return nil, nil
	}
	docs, err := d.store.Query(ctx, clinic.Query{Collection: clinic.CollectionPatients, OrderBy: "name"}.Where("userId", clinic.OpEq, userID))
	if err != nil {
		return nil, fmt.Errorf("query patients: %w", err)
	}
	out := make([]clinic.Patient, 0, len(docs))
	for _, doc := range docs {
		p := clinic.Patient{ID: doc.String("id"), Name: doc.FirstString("name", "fullName")}
		if raw := doc.FirstString("birthDate", "birthday", "dateOfBirth"); raw != "" {
			// Birth dates are calendar facts; normalize without shifting zones.
			if bd, err := calendar.Parse(raw, d.loc); err == nil {
				p.BirthDate = bd
			} else {
				d.logger.WithField("patient_id", p.ID).WithError(err).Debug("Ignoring unparseable birth date")
			}
		}
		out = append(out, p)
	}
	return out, nil
}
