package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/Onyemech/teemplot-sub006/internal/audit"
	"github.com/Onyemech/teemplot-sub006/internal/broadcast"
	"github.com/Onyemech/teemplot-sub006/internal/domain"
	"github.com/Onyemech/teemplot-sub006/internal/dto"
	"github.com/Onyemech/teemplot-sub006/internal/mailer"
	"github.com/Onyemech/teemplot-sub006/internal/repository"
)

// InvitationService covers the invitation lifecycle after admission:
// redemption into a user account, cancellation, resending, and reads
type InvitationService interface {
	// AcceptInvitation atomically redeems a pending invitation into an
	// active user account
	AcceptInvitation(ctx context.Context, token string, req *dto.AcceptInvitationRequest) (*dto.AcceptInvitationResponse, error)
	// CancelInvitation revokes a pending invitation, freeing its seat
	CancelInvitation(ctx context.Context, companyID, actorID, invitationID string) (*dto.InvitationResponse, error)
	// ResendInvitation queues the invitation email again
	ResendInvitation(ctx context.Context, companyID, actorID, invitationID string) (*dto.InvitationResponse, error)
	// ListInvitations returns the company's invitations, optionally filtered
	// by effective status
	ListInvitations(ctx context.Context, companyID string, query *dto.ListInvitationsQuery) (*dto.ListInvitationsResponse, error)
	// PreviewInvitation is the public, unauthenticated view behind the
	// acceptance link
	PreviewInvitation(ctx context.Context, token string) (*dto.InvitationPreviewResponse, error)
}

type invitationService struct {
	store       repository.Store
	sink        audit.Sink
	broadcaster broadcast.Broadcaster
	mailer      mailer.Mailer
	config      AdmissionConfig
	nowFn       func() time.Time
}

// NewInvitationService creates a new InvitationService
func NewInvitationService(store repository.Store, sink audit.Sink, broadcaster broadcast.Broadcaster, m mailer.Mailer, config AdmissionConfig) InvitationService {
	return &invitationService{
		store:       store,
		sink:        sink,
		broadcaster: broadcaster,
		mailer:      m,
		config:      config,
		nowFn:       time.Now,
	}
}

// AcceptInvitation atomically redeems a pending invitation into an active
// user account. User creation, the status flip, and the employee count
// refresh commit together or not at all.
func (s *invitationService) AcceptInvitation(ctx context.Context, token string, req *dto.AcceptInvitationRequest) (*dto.AcceptInvitationResponse, error) {
	now := s.nowFn()
	start := time.Now()
	traceID := traceIDFromContext(ctx)

	// Unlocked pre-read resolves the tenant so the company lock can be taken
	// first. Every lifecycle path locks the company row before touching
	// invitation rows; the token is re-validated under the lock below.
	preread, err := s.store.GetInvitationByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	companyID := ""
	if preread != nil {
		companyID = preread.CompanyID
	}
	if preread == nil || !preread.CanBeAccepted(now) {
		err := error(domain.ErrInvalidInvitation)
		recordFailure(s.sink, companyID, "", audit.ActionAccept, traceID, "", err)
		recordOperation(ctx, string(audit.ActionAccept), start, err)
		return nil, err
	}

	// Hashing is slow on purpose; do it before taking any locks
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, domain.ErrInvalidInvitation.WithCause(err)
	}

	var (
		user *domain.User
		snap domain.CapacitySnapshot
	)

	err = s.store.InTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		if err := tx.SetTenantContext(ctx, companyID, ""); err != nil {
			return err
		}

		company, err := tx.LockCompany(ctx, companyID)
		if err != nil {
			return err
		}
		if company == nil {
			return domain.ErrPlanVerificationFailed
		}

		// Re-read under the company lock; the row may have been redeemed or
		// cancelled since the pre-read
		inv, err := tx.LockInvitationByToken(ctx, token, now)
		if err != nil {
			return err
		}
		if inv == nil {
			return domain.ErrInvalidInvitation
		}

		if company.BiometricRequired && req.BiometricID == "" {
			return domain.ErrBiometricsRequired
		}

		exists, err := tx.ActiveUserExists(ctx, inv.CompanyID, inv.Email)
		if err != nil {
			return err
		}
		if exists {
			return domain.ErrDuplicateEmail
		}

		user = &domain.User{
			ID:           uuid.New().String(),
			CompanyID:    inv.CompanyID,
			Email:        inv.Email,
			PasswordHash: string(hash),
			FirstName:    inv.FirstName,
			LastName:     inv.LastName,
			Role:         inv.Role,
			Position:     inv.Position,
			BiometricID:  req.BiometricID,
			IsActive:     true,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if err := tx.CreateUser(ctx, user); err != nil {
			return err
		}

		flipped, err := tx.MarkInvitationAccepted(ctx, inv.ID, now)
		if err != nil {
			return err
		}
		if !flipped {
			return domain.ErrInvalidInvitation
		}

		count, err := tx.RefreshEmployeeCount(ctx, inv.CompanyID)
		if err != nil {
			return err
		}
		pending, err := tx.CountPendingInvitations(ctx, inv.CompanyID, now)
		if err != nil {
			return err
		}

		entry := audit.NewEntry(inv.CompanyID, user.ID, audit.ActionAccept, audit.OutcomeSuccess)
		entry.ResourceType = "invitation"
		entry.ResourceID = inv.ID
		entry.TraceID = traceID
		entry.Details = map[string]interface{}{
			"email":   inv.Email,
			"user_id": user.ID,
		}
		if err := tx.RecordAudit(ctx, entry); err != nil {
			return err
		}

		snap = domain.EvaluateCapacity(inv.CompanyID, company.Plan, company.EffectiveSeatLimit(), count, pending)
		return nil
	})
	if err != nil {
		err = asDomainError(err, domain.ErrInvalidInvitation)
		recordFailure(s.sink, companyID, "", audit.ActionAccept, traceID, "", err)
		recordOperation(ctx, string(audit.ActionAccept), start, err)
		return nil, err
	}
	recordOperation(ctx, string(audit.ActionAccept), start, nil)

	s.broadcaster.BroadcastCapacity(ctx, snap)

	return &dto.AcceptInvitationResponse{
		User:     dto.ToUserResponse(user),
		Capacity: snap,
	}, nil
}

// CancelInvitation revokes a pending invitation, returning its reserved seat
// to the pool
func (s *invitationService) CancelInvitation(ctx context.Context, companyID, actorID, invitationID string) (*dto.InvitationResponse, error) {
	now := s.nowFn()
	traceID := traceIDFromContext(ctx)

	var (
		inv  *domain.Invitation
		snap domain.CapacitySnapshot
	)

	err := s.store.InTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		if err := tx.SetTenantContext(ctx, companyID, actorID); err != nil {
			return err
		}

		company, err := tx.LockCompany(ctx, companyID)
		if err != nil {
			return err
		}
		if company == nil {
			return domain.ErrPlanVerificationFailed
		}

		inv, err = tx.GetInvitation(ctx, companyID, invitationID)
		if err != nil {
			return err
		}
		if inv == nil {
			return domain.ErrInvitationNotFound
		}
		// An expired row already reads as dead; it cannot transition
		if inv.Status == domain.InvitationPending && inv.IsExpired(now) {
			return domain.ErrInvitationNotFound
		}
		if inv.Status.IsTerminal() {
			return domain.ErrInvitationCancelFailed.WithDetails(map[string]interface{}{
				"status": string(inv.Status),
			})
		}

		flipped, err := tx.MarkInvitationCancelled(ctx, inv.ID, now)
		if err != nil {
			return err
		}
		if !flipped {
			return domain.ErrInvitationCancelFailed
		}
		inv.Status = domain.InvitationCancelled
		inv.CancelledAt = &now

		current, err := tx.CountActiveUsers(ctx, companyID)
		if err != nil {
			return err
		}
		pending, err := tx.CountPendingInvitations(ctx, companyID, now)
		if err != nil {
			return err
		}

		entry := audit.NewEntry(companyID, actorID, audit.ActionCancel, audit.OutcomeSuccess)
		entry.ResourceType = "invitation"
		entry.ResourceID = inv.ID
		entry.TraceID = traceID
		if err := tx.RecordAudit(ctx, entry); err != nil {
			return err
		}

		snap = domain.EvaluateCapacity(companyID, company.Plan, company.EffectiveSeatLimit(), current, pending)
		return nil
	})
	if err != nil {
		err = asDomainError(err, domain.ErrInvitationCancelFailed)
		recordFailure(s.sink, companyID, actorID, audit.ActionCancel, traceID, "", err)
		return nil, err
	}

	s.broadcaster.BroadcastCapacity(ctx, snap)
	return dto.ToInvitationResponse(inv, now), nil
}

// ResendInvitation queues the invitation email again for a still-redeemable
// invitation
func (s *invitationService) ResendInvitation(ctx context.Context, companyID, actorID, invitationID string) (*dto.InvitationResponse, error) {
	now := s.nowFn()
	traceID := traceIDFromContext(ctx)

	var (
		inv     *domain.Invitation
		company *domain.Company
	)

	err := s.store.InTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		if err := tx.SetTenantContext(ctx, companyID, actorID); err != nil {
			return err
		}

		var err error
		company, err = tx.LockCompany(ctx, companyID)
		if err != nil {
			return err
		}
		if company == nil {
			return domain.ErrPlanVerificationFailed
		}

		inv, err = tx.GetInvitation(ctx, companyID, invitationID)
		if err != nil {
			return err
		}
		if inv == nil || !inv.CanBeAccepted(now) {
			return domain.ErrInvitationNotFound
		}

		if err := tx.IncrementInvitationRetry(ctx, inv.ID); err != nil {
			return err
		}

		entry := audit.NewEntry(companyID, actorID, audit.ActionResend, audit.OutcomeSuccess)
		entry.ResourceType = "invitation"
		entry.ResourceID = inv.ID
		entry.TraceID = traceID
		return tx.RecordAudit(ctx, entry)
	})
	if err != nil {
		err = asDomainError(err, domain.ErrInvitationNotFound)
		recordFailure(s.sink, companyID, actorID, audit.ActionResend, traceID, "", err)
		return nil, err
	}

	queueInvitationEmail(ctx, s.store, s.mailer, s.config, company, inv)
	return dto.ToInvitationResponse(inv, now), nil
}

// ListInvitations returns the company's invitations with read-time statuses
func (s *invitationService) ListInvitations(ctx context.Context, companyID string, query *dto.ListInvitationsQuery) (*dto.ListInvitationsResponse, error) {
	now := s.nowFn()

	invitations, err := s.store.ListInvitations(ctx, companyID, domain.InvitationStatus(query.Status), now)
	if err != nil {
		return nil, err
	}

	responses := make([]*dto.InvitationResponse, 0, len(invitations))
	for _, inv := range invitations {
		responses = append(responses, dto.ToInvitationResponse(inv, now))
	}
	return &dto.ListInvitationsResponse{
		Invitations: responses,
		TotalCount:  len(responses),
	}, nil
}

// PreviewInvitation resolves an acceptance link without authentication.
// Anything other than a live pending invitation reads as invalid, so tokens
// leak nothing about resolved invitations.
func (s *invitationService) PreviewInvitation(ctx context.Context, token string) (*dto.InvitationPreviewResponse, error) {
	now := s.nowFn()

	inv, err := s.store.GetInvitationByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if inv == nil || !inv.CanBeAccepted(now) {
		return nil, domain.ErrInvalidInvitation
	}

	company, err := s.store.GetCompany(ctx, inv.CompanyID)
	if err != nil {
		return nil, err
	}
	if company == nil {
		return nil, domain.ErrInvalidInvitation
	}

	return &dto.InvitationPreviewResponse{
		CompanyName:       company.Name,
		Email:             inv.Email,
		FirstName:         inv.FirstName,
		LastName:          inv.LastName,
		Role:              inv.Role,
		Position:          inv.Position,
		ExpiresAt:         inv.ExpiresAt.Format(time.RFC3339),
		BiometricRequired: company.BiometricRequired,
	}, nil
}
