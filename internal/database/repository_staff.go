package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// StaffUser is an internal operator account with access to the ledger API.
type StaffUser struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         string    `json:"role"`
	IsAdmin      bool      `json:"is_admin"`
	CreatedAt    time.Time `json:"created_at"`
}

// ErrStaffUserNotFound is returned when no staff user matches.
var ErrStaffUserNotFound = errors.New("staff user not found")

// CreateStaffUser inserts a staff user.
func (r *Repository) CreateStaffUser(ctx context.Context, u *StaffUser) error {
	query := `
		INSERT INTO staff_users (id, email, password_hash, role, is_admin)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at`
	return r.db.Pool.QueryRow(ctx, query,
		u.ID, u.Email, u.PasswordHash, u.Role, u.IsAdmin,
	).Scan(&u.CreatedAt)
}

// GetStaffUserByEmail looks up a staff user for login.
func (r *Repository) GetStaffUserByEmail(ctx context.Context, email string) (*StaffUser, error) {
	query := `
		SELECT id, email, password_hash, role, is_admin, created_at
		FROM staff_users
		WHERE email = $1`
	var u StaffUser
	err := r.db.Pool.QueryRow(ctx, query, email).Scan(
		&u.ID, &u.Email, &u.PasswordHash, &u.Role, &u.IsAdmin, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrStaffUserNotFound, email)
		}
		return nil, err
	}
	return &u, nil
}

// CountStaffUsers returns the number of staff accounts, used by the admin
// seeder to decide whether to bootstrap one.
func (r *Repository) CountStaffUsers(ctx context.Context) (int, error) {
	var n int
	err := r.db.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM staff_users`).Scan(&n)
	return n, err
}
