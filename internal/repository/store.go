package repository

import (
	"context"
	"time"

	"github.com/Onyemech/teemplot-sub006/internal/audit"
	"github.com/Onyemech/teemplot-sub006/internal/domain"
)

// Tx exposes the operations available inside a seat-admission transaction.
// Everything called through a Tx sees the same database snapshot and commits
// or rolls back as one unit.
type Tx interface {
	// SetTenantContext scopes subsequent statements to the given tenant via
	// session settings consumed by row-level security policies
	SetTenantContext(ctx context.Context, companyID, userID string) error

	// LockCompany acquires an exclusive row lock on the company record.
	// This is the serialization point for all admission decisions on the
	// tenant: concurrent transactions for the same company block here until
	// the holder commits or rolls back. Returns nil when the company does
	// not exist.
	LockCompany(ctx context.Context, companyID string) (*domain.Company, error)

	ActiveUserExists(ctx context.Context, companyID, email string) (bool, error)
	PendingInvitationExists(ctx context.Context, companyID, email string, now time.Time) (bool, error)
	CountActiveUsers(ctx context.Context, companyID string) (int, error)
	CountPendingInvitations(ctx context.Context, companyID string, now time.Time) (int, error)

	CreateInvitation(ctx context.Context, inv *domain.Invitation) error

	// LockInvitationByToken locks the invitation row for redemption,
	// requiring it to be pending and unexpired. Returns nil when no such
	// row qualifies.
	LockInvitationByToken(ctx context.Context, token string, now time.Time) (*domain.Invitation, error)

	// GetInvitation returns the invitation regardless of status, scoped to
	// the company. Returns nil when missing.
	GetInvitation(ctx context.Context, companyID, invitationID string) (*domain.Invitation, error)

	CreateUser(ctx context.Context, user *domain.User) error

	// MarkInvitationAccepted flips a pending invitation to accepted.
	// Reports false when the row was no longer pending.
	MarkInvitationAccepted(ctx context.Context, invitationID string, at time.Time) (bool, error)

	// MarkInvitationCancelled flips a pending invitation to cancelled.
	// Reports false when the row was no longer pending.
	MarkInvitationCancelled(ctx context.Context, invitationID string, at time.Time) (bool, error)

	IncrementInvitationRetry(ctx context.Context, invitationID string) error

	// RefreshEmployeeCount recomputes the company's denormalized counter
	// from the active user rows and returns the new value
	RefreshEmployeeCount(ctx context.Context, companyID string) (int, error)

	// RecordAudit writes an audit entry on this transaction's connection so
	// it shares the transaction's fate
	RecordAudit(ctx context.Context, entry *audit.Entry) error
}

// Store is the engine's data access boundary
type Store interface {
	// InTx runs fn inside a transaction with statement and lock timeouts
	// applied, committing on nil error and rolling back otherwise
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	// Read-only projections; normal read consistency, no locks
	GetCompany(ctx context.Context, companyID string) (*domain.Company, error)
	CountActiveUsers(ctx context.Context, companyID string) (int, error)
	CountPendingInvitations(ctx context.Context, companyID string, now time.Time) (int, error)
	ListInvitations(ctx context.Context, companyID string, status domain.InvitationStatus, now time.Time) ([]*domain.Invitation, error)
	GetInvitationByToken(ctx context.Context, token string) (*domain.Invitation, error)
}
