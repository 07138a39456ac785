package clinic

import "clinic_notification_engine/internal/domain/calendar"

// Patient is the subset of a patient record the reminders need.
type Patient struct {
	ID        string
	Name      string
	BirthDate calendar.Date // zero when unknown
}

func (p Patient) HasBirthDate() bool {
	return !p.BirthDate.IsZero()
}
