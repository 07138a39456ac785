package clinic

import (
	"strings"
	"time"
)

// AppointmentStatus mirrors the scheduling store's status field.
type AppointmentStatus string

const (
	StatusScheduled AppointmentStatus = "scheduled"
	StatusConfirmed AppointmentStatus = "confirmed"
	StatusCompleted AppointmentStatus = "completed"
	StatusCancelled AppointmentStatus = "cancelled"
)

// ParseAppointmentStatus folds the spellings found in stored records.
func ParseAppointmentStatus(s string) AppointmentStatus {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "confirmed":
		return StatusConfirmed
	case "completed", "done":
		return StatusCompleted
	case "cancelled", "canceled":
		return StatusCancelled
	default:
		return StatusScheduled
	}
}

// AppointmentFact is a read-only projection of a scheduling record.
type AppointmentFact struct {
	ID          string
	Start       time.Time
	End         time.Time
	Status      AppointmentStatus
	IsPersonal  bool   // blocks that are not patient visits
	PatientID   string // optional
	PatientName string // optional
}

// CountsTowardAttendance is false for personal blocks and cancelled visits.
func (a AppointmentFact) CountsTowardAttendance() bool {
	return !a.IsPersonal && a.Status != StatusCancelled
}
