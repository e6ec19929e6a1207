package domain

import (
	"time"
)

// User belongs to exactly one company. Soft-deleted users keep their row but
// no longer count against capacity. Users are created exclusively by the
// invitation acceptance transaction.
type User struct {
	ID           string     `json:"id"`
	CompanyID    string     `json:"company_id"`
	Email        string     `json:"email"`
	PasswordHash string     `json:"-"`
	FirstName    string     `json:"first_name"`
	LastName     string     `json:"last_name"`
	Role         string     `json:"role"`
	Position     string     `json:"position,omitempty"`
	BiometricID  string     `json:"-"`
	IsActive     bool       `json:"is_active"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	DeletedAt    *time.Time `json:"deleted_at,omitempty"`
}
