package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Onyemech/teemplot-sub006/internal/audit"
	"github.com/Onyemech/teemplot-sub006/internal/domain"
)

const companyColumns = `id, name, plan, billing_status, seat_limit, employee_count,
	biometric_required, created_at, updated_at, deleted_at`

const invitationColumns = `id, company_id, token, email,
	COALESCE(first_name, '') as first_name, COALESCE(last_name, '') as last_name,
	role, COALESCE(position, '') as position, status, expires_at, invited_by,
	COALESCE(trace_id, '') as trace_id, retry_count, accepted_at, cancelled_at,
	created_at, updated_at`

// PostgresStore implements Store using PostgreSQL
type PostgresStore struct {
	pool             *pgxpool.Pool
	statementTimeout time.Duration
	lockTimeout      time.Duration
}

// PostgresStoreConfig holds transaction timeout settings
type PostgresStoreConfig struct {
	// StatementTimeout aborts any statement running longer than this, so a
	// stuck lock holder cannot wedge a tenant's admission path indefinitely
	StatementTimeout time.Duration
	// LockTimeout bounds the wait for the company row lock
	LockTimeout time.Duration
}

// NewPostgresStore creates a new PostgresStore
func NewPostgresStore(pool *pgxpool.Pool, cfg *PostgresStoreConfig) *PostgresStore {
	s := &PostgresStore{
		pool:             pool,
		statementTimeout: 5 * time.Second,
		lockTimeout:      3 * time.Second,
	}
	if cfg != nil {
		if cfg.StatementTimeout > 0 {
			s.statementTimeout = cfg.StatementTimeout
		}
		if cfg.LockTimeout > 0 {
			s.lockTimeout = cfg.LockTimeout
		}
	}
	return s
}

// InTx runs fn inside a transaction with timeouts applied
func (s *PostgresStore) InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	pgtx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	// SET LOCAL scopes the timeouts to this transaction only
	_, err = pgtx.Exec(ctx, fmt.Sprintf(
		"SET LOCAL statement_timeout = %d; SET LOCAL lock_timeout = %d",
		s.statementTimeout.Milliseconds(), s.lockTimeout.Milliseconds(),
	))
	if err != nil {
		_ = pgtx.Rollback(ctx)
		return fmt.Errorf("failed to set transaction timeouts: %w", err)
	}

	if err := fn(ctx, &postgresTx{tx: pgtx}); err != nil {
		_ = pgtx.Rollback(ctx)
		return err
	}

	return pgtx.Commit(ctx)
}

// GetCompany retrieves a company by ID. Returns nil when not found.
func (s *PostgresStore) GetCompany(ctx context.Context, companyID string) (*domain.Company, error) {
	query := `SELECT ` + companyColumns + ` FROM companies WHERE id = $1 AND deleted_at IS NULL`
	return scanCompany(s.pool.QueryRow(ctx, query, companyID))
}

// CountActiveUsers counts users holding a seat
func (s *PostgresStore) CountActiveUsers(ctx context.Context, companyID string) (int, error) {
	return countActiveUsers(ctx, s.pool, companyID)
}

// CountPendingInvitations counts pending, unexpired invitations
func (s *PostgresStore) CountPendingInvitations(ctx context.Context, companyID string, now time.Time) (int, error) {
	return countPendingInvitations(ctx, s.pool, companyID, now)
}

// ListInvitations lists a company's invitations, optionally filtered by
// effective status. The "pending" filter excludes expired rows; the derived
// "expired" filter selects pending rows past expiry.
func (s *PostgresStore) ListInvitations(ctx context.Context, companyID string, status domain.InvitationStatus, now time.Time) ([]*domain.Invitation, error) {
	query := `SELECT ` + invitationColumns + ` FROM invitations WHERE company_id = $1`
	args := []interface{}{companyID}

	switch status {
	case "":
		// no filter
	case domain.InvitationPending:
		query += ` AND status = 'pending' AND expires_at > $2`
		args = append(args, now)
	case domain.InvitationExpired:
		query += ` AND status = 'pending' AND expires_at <= $2`
		args = append(args, now)
	default:
		query += ` AND status = $2`
		args = append(args, string(status))
	}

	query += ` ORDER BY created_at DESC`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	invitations := make([]*domain.Invitation, 0)
	for rows.Next() {
		inv, err := scanInvitationRow(rows)
		if err != nil {
			return nil, err
		}
		invitations = append(invitations, inv)
	}
	return invitations, rows.Err()
}

// GetInvitationByToken retrieves an invitation by token regardless of
// status. Returns nil when not found.
func (s *PostgresStore) GetInvitationByToken(ctx context.Context, token string) (*domain.Invitation, error) {
	query := `SELECT ` + invitationColumns + ` FROM invitations WHERE token = $1`
	return scanInvitation(s.pool.QueryRow(ctx, query, token))
}

// postgresTx implements Tx over a pgx transaction
type postgresTx struct {
	tx pgx.Tx
}

func (t *postgresTx) SetTenantContext(ctx context.Context, companyID, userID string) error {
	_, err := t.tx.Exec(ctx,
		`SELECT set_config('app.current_tenant_id', $1, true), set_config('app.current_user_id', $2, true)`,
		companyID, userID,
	)
	return err
}

func (t *postgresTx) LockCompany(ctx context.Context, companyID string) (*domain.Company, error) {
	query := `SELECT ` + companyColumns + ` FROM companies WHERE id = $1 AND deleted_at IS NULL FOR UPDATE`
	return scanCompany(t.tx.QueryRow(ctx, query, companyID))
}

func (t *postgresTx) ActiveUserExists(ctx context.Context, companyID, email string) (bool, error) {
	query := `SELECT EXISTS(
		SELECT 1 FROM users
		WHERE company_id = $1 AND lower(email) = lower($2) AND deleted_at IS NULL AND is_active
	)`
	var exists bool
	err := t.tx.QueryRow(ctx, query, companyID, email).Scan(&exists)
	return exists, err
}

func (t *postgresTx) PendingInvitationExists(ctx context.Context, companyID, email string, now time.Time) (bool, error) {
	query := `SELECT EXISTS(
		SELECT 1 FROM invitations
		WHERE company_id = $1 AND lower(email) = lower($2) AND status = 'pending' AND expires_at > $3
	)`
	var exists bool
	err := t.tx.QueryRow(ctx, query, companyID, email, now).Scan(&exists)
	return exists, err
}

func (t *postgresTx) CountActiveUsers(ctx context.Context, companyID string) (int, error) {
	return countActiveUsers(ctx, t.tx, companyID)
}

func (t *postgresTx) CountPendingInvitations(ctx context.Context, companyID string, now time.Time) (int, error) {
	return countPendingInvitations(ctx, t.tx, companyID, now)
}

func (t *postgresTx) CreateInvitation(ctx context.Context, inv *domain.Invitation) error {
	query := `
		INSERT INTO invitations (id, company_id, token, email, first_name, last_name,
			role, position, status, expires_at, invited_by, trace_id, retry_count,
			created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`
	_, err := t.tx.Exec(ctx, query,
		inv.ID,
		inv.CompanyID,
		inv.Token,
		inv.Email,
		inv.FirstName,
		inv.LastName,
		inv.Role,
		nullStringOrValue(inv.Position),
		string(inv.Status),
		inv.ExpiresAt,
		inv.InvitedBy,
		nullStringOrValue(inv.TraceID),
		inv.RetryCount,
		inv.CreatedAt,
		inv.UpdatedAt,
	)
	return err
}

func (t *postgresTx) LockInvitationByToken(ctx context.Context, token string, now time.Time) (*domain.Invitation, error) {
	query := `SELECT ` + invitationColumns + ` FROM invitations
		WHERE token = $1 AND status = 'pending' AND expires_at > $2
		FOR UPDATE`
	return scanInvitation(t.tx.QueryRow(ctx, query, token, now))
}

func (t *postgresTx) GetInvitation(ctx context.Context, companyID, invitationID string) (*domain.Invitation, error) {
	query := `SELECT ` + invitationColumns + ` FROM invitations WHERE id = $1 AND company_id = $2`
	return scanInvitation(t.tx.QueryRow(ctx, query, invitationID, companyID))
}

func (t *postgresTx) CreateUser(ctx context.Context, user *domain.User) error {
	query := `
		INSERT INTO users (id, company_id, email, password_hash, first_name, last_name,
			role, position, biometric_id, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	_, err := t.tx.Exec(ctx, query,
		user.ID,
		user.CompanyID,
		user.Email,
		user.PasswordHash,
		user.FirstName,
		user.LastName,
		user.Role,
		nullStringOrValue(user.Position),
		nullStringOrValue(user.BiometricID),
		user.IsActive,
		user.CreatedAt,
		user.UpdatedAt,
	)
	return err
}

func (t *postgresTx) MarkInvitationAccepted(ctx context.Context, invitationID string, at time.Time) (bool, error) {
	query := `
		UPDATE invitations
		SET status = 'accepted', accepted_at = $2, updated_at = $2
		WHERE id = $1 AND status = 'pending'
	`
	result, err := t.tx.Exec(ctx, query, invitationID, at)
	if err != nil {
		return false, err
	}
	return result.RowsAffected() > 0, nil
}

func (t *postgresTx) MarkInvitationCancelled(ctx context.Context, invitationID string, at time.Time) (bool, error) {
	query := `
		UPDATE invitations
		SET status = 'cancelled', cancelled_at = $2, updated_at = $2
		WHERE id = $1 AND status = 'pending'
	`
	result, err := t.tx.Exec(ctx, query, invitationID, at)
	if err != nil {
		return false, err
	}
	return result.RowsAffected() > 0, nil
}

func (t *postgresTx) IncrementInvitationRetry(ctx context.Context, invitationID string) error {
	query := `UPDATE invitations SET retry_count = retry_count + 1, updated_at = $2 WHERE id = $1`
	_, err := t.tx.Exec(ctx, query, invitationID, time.Now())
	return err
}

func (t *postgresTx) RefreshEmployeeCount(ctx context.Context, companyID string) (int, error) {
	query := `
		UPDATE companies
		SET employee_count = (
			SELECT COUNT(*) FROM users
			WHERE company_id = $1 AND deleted_at IS NULL AND is_active
		), updated_at = $2
		WHERE id = $1
		RETURNING employee_count
	`
	var count int
	err := t.tx.QueryRow(ctx, query, companyID, time.Now()).Scan(&count)
	return count, err
}

func (t *postgresTx) RecordAudit(ctx context.Context, entry *audit.Entry) error {
	return audit.Insert(ctx, t.tx, entry)
}

// --- scan helpers ---

// querier is the read surface shared by pools and transactions
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func countActiveUsers(ctx context.Context, q querier, companyID string) (int, error) {
	query := `SELECT COUNT(*) FROM users WHERE company_id = $1 AND deleted_at IS NULL AND is_active`
	var count int
	err := q.QueryRow(ctx, query, companyID).Scan(&count)
	return count, err
}

func countPendingInvitations(ctx context.Context, q querier, companyID string, now time.Time) (int, error) {
	query := `SELECT COUNT(*) FROM invitations WHERE company_id = $1 AND status = 'pending' AND expires_at > $2`
	var count int
	err := q.QueryRow(ctx, query, companyID, now).Scan(&count)
	return count, err
}

func scanCompany(row pgx.Row) (*domain.Company, error) {
	company := &domain.Company{}
	var plan string
	err := row.Scan(
		&company.ID,
		&company.Name,
		&plan,
		&company.BillingStatus,
		&company.SeatLimit,
		&company.EmployeeCount,
		&company.BiometricRequired,
		&company.CreatedAt,
		&company.UpdatedAt,
		&company.DeletedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	company.Plan = domain.PlanTier(plan)
	return company, nil
}

func scanInvitation(row pgx.Row) (*domain.Invitation, error) {
	inv, err := scanInvitationRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return inv, nil
}

func scanInvitationRow(row pgx.Row) (*domain.Invitation, error) {
	inv := &domain.Invitation{}
	var status string
	err := row.Scan(
		&inv.ID,
		&inv.CompanyID,
		&inv.Token,
		&inv.Email,
		&inv.FirstName,
		&inv.LastName,
		&inv.Role,
		&inv.Position,
		&status,
		&inv.ExpiresAt,
		&inv.InvitedBy,
		&inv.TraceID,
		&inv.RetryCount,
		&inv.AcceptedAt,
		&inv.CancelledAt,
		&inv.CreatedAt,
		&inv.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	inv.Status = domain.InvitationStatus(status)
	return inv, nil
}

// nullStringOrValue returns nil for empty strings, otherwise returns the value
func nullStringOrValue(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
