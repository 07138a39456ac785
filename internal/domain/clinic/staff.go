package clinic

import (
	"context"
	"database/sql"
	"time"
)

// Role of a staff member on the clinic account.
type Role string

const (
	RoleOwner Role = "owner"
	RoleStaff Role = "staff"
)

// Staff is a user of the clinic account.
type Staff struct {
	ID          string
	TelegramID  sql.NullInt64 // chat used for bot commands, if linked
	DisplayName string
	Role        Role
	IsActive    bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (s *Staff) IsOwner() bool {
	return s != nil && s.Role == RoleOwner
}

// StaffRepository reads staff members.
type StaffRepository interface {
	GetByID(ctx context.Context, id string) (*Staff, error)
	GetByTelegramID(ctx context.Context, telegramID int64) (*Staff, error)
	ListActive(ctx context.Context) ([]*Staff, error)
}
