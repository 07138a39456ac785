package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"clinic_notification_engine/internal/domain/clinic"
)

// Custom errors
var ErrStaffNotFound = fmt.Errorf("staff member not found")
var ErrDuplicateTelegramID = fmt.Errorf("staff member with this Telegram ID already exists")

type PostgresStaffRepository struct {
	db *sql.DB
}

func NewPostgresStaffRepository(db *sql.DB) *PostgresStaffRepository {
	return &PostgresStaffRepository{db: db}
}

const staffColumns = `id, telegram_id, display_name, role, is_active, created_at, updated_at`

func scanStaff(row interface{ Scan(...any) error }) (*clinic.Staff, error) {
	s := &clinic.Staff{}
	err := row.Scan(&s.ID, &s.TelegramID, &s.DisplayName, &s.Role, &s.IsActive, &s.CreatedAt, &s.UpdatedAt)
	return s, err
}

// Upsert creates the staff member or updates its profile, keyed by id.
func (r *PostgresStaffRepository) Upsert(ctx context.Context, s *clinic.Staff) error {
	query := `INSERT INTO staff (id, telegram_id, display_name, role, is_active)
               VALUES ($1, $2, $3, $4, $5)
               ON CONFLICT (id) DO UPDATE
               SET telegram_id = EXCLUDED.telegram_id, display_name = EXCLUDED.display_name,
                   role = EXCLUDED.role, is_active = EXCLUDED.is_active, updated_at = NOW()
               RETURNING created_at, updated_at`
	err := r.db.QueryRowContext(ctx, query, s.ID, s.TelegramID, s.DisplayName, s.Role, s.IsActive).Scan(&s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if strings.Contains(err.Error(), "staff_telegram_id_key") {
			return ErrDuplicateTelegramID
		}
		return fmt.Errorf("error upserting staff: %w", err)
	}
	return nil
}

func (r *PostgresStaffRepository) GetByID(ctx context.Context, id string) (*clinic.Staff, error) {
	query := `SELECT ` + staffColumns + ` FROM staff WHERE id = $1`
	s, err := scanStaff(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrStaffNotFound
		}
		return nil, fmt.Errorf("error getting staff by ID: %w", err)
	}
	return s, nil
}

func (r *PostgresStaffRepository) GetByTelegramID(ctx context.Context, telegramID int64) (*clinic.Staff, error) {
	query := `SELECT ` + staffColumns + ` FROM staff WHERE telegram_id = $1`
	s, err := scanStaff(r.db.QueryRowContext(ctx, query, telegramID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrStaffNotFound
		}
		return nil, fmt.Errorf("error getting staff by Telegram ID: %w", err)
	}
	return s, nil
}

func (r *PostgresStaffRepository) ListActive(ctx context.Context) ([]*clinic.Staff, error) {
	query := `SELECT ` + staffColumns + ` FROM staff WHERE is_active = TRUE ORDER BY display_name`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("error listing active staff: %w", err)
	}
	defer rows.Close()

	staff := make([]*clinic.Staff, 0)
	for rows.Next() {
		s, err := scanStaff(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning active staff: %w", err)
		}
		staff = append(staff, s)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating active staff: %w", err)
	}
	return staff, nil
}
