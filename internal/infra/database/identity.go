package database

import (
	"context"
	"errors"

	"clinic_notification_engine/internal/domain/clinic"

	"github.com/sirupsen/logrus"
)

// StaffIdentity is the device user of this engine instance: a fixed staff id
// whose role is read from the staff table on every check.
type StaffIdentity struct {
	repo   clinic.StaffRepository
	userID string
	logger *logrus.Entry
}

func NewStaffIdentity(repo clinic.StaffRepository, userID string, logger *logrus.Entry) *StaffIdentity {
	return &StaffIdentity{repo: repo, userID: userID, logger: logger}
}

func (i *StaffIdentity) CurrentUserID(context.Context) (string, bool) {
	return i.userID, i.userID != ""
}

// IsOwnerRole is false when the staff record is missing, inactive or unreadable.
func (i *StaffIdentity) IsOwnerRole(ctx context.Context) bool {
	if i.userID == "" {
		return false
	}
	s, err := i.repo.GetByID(ctx, i.userID)
	if err != nil {
		if !errors.Is(err, ErrStaffNotFound) {
			i.logger.WithError(err).Warn("Could not read staff role; treating user as non-owner")
		}
		return false
	}
	return s.IsActive && s.IsOwner()
}
