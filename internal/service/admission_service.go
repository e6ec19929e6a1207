package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/Onyemech/teemplot-sub006/internal/audit"
	"github.com/Onyemech/teemplot-sub006/internal/broadcast"
	"github.com/Onyemech/teemplot-sub006/internal/domain"
	"github.com/Onyemech/teemplot-sub006/internal/dto"
	"github.com/Onyemech/teemplot-sub006/internal/mailer"
	"github.com/Onyemech/teemplot-sub006/internal/repository"
)

// AdmissionService runs the seat-admission transaction: every invitation is
// admitted or rejected against the company's seat limit while the company
// row lock is held
type AdmissionService interface {
	// InviteEmployee admits an invitation against the company's capacity,
	// queues the invitation email, and broadcasts the updated capacity
	InviteEmployee(ctx context.Context, companyID, actorID string, req *dto.InviteEmployeeRequest) (*dto.InviteEmployeeResponse, error)
}

type admissionService struct {
	store       repository.Store
	sink        audit.Sink
	broadcaster broadcast.Broadcaster
	mailer      mailer.Mailer
	config      AdmissionConfig
	nowFn       func() time.Time
}

// NewAdmissionService creates a new AdmissionService
func NewAdmissionService(store repository.Store, sink audit.Sink, broadcaster broadcast.Broadcaster, m mailer.Mailer, config AdmissionConfig) AdmissionService {
	if config.ExpiryDays <= 0 {
		config.ExpiryDays = 7
	}
	if config.TokenBytes <= 0 {
		config.TokenBytes = 32
	}
	return &admissionService{
		store:       store,
		sink:        sink,
		broadcaster: broadcaster,
		mailer:      m,
		config:      config,
		nowFn:       time.Now,
	}
}

// InviteEmployee admits an invitation against the company's capacity
func (s *admissionService) InviteEmployee(ctx context.Context, companyID, actorID string, req *dto.InviteEmployeeRequest) (*dto.InviteEmployeeResponse, error) {
	email := req.NormalizedEmail()
	now := s.nowFn()
	start := time.Now()
	traceID := traceIDFromContext(ctx)

	var (
		invitation *domain.Invitation
		company    *domain.Company
		snap       domain.CapacitySnapshot
	)

	err := s.store.InTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		if err := tx.SetTenantContext(ctx, companyID, actorID); err != nil {
			return err
		}

		// The company row lock serializes every admission decision for this
		// tenant; all checks below read a stable snapshot
		var err error
		company, err = tx.LockCompany(ctx, companyID)
		if err != nil {
			return err
		}
		if company == nil {
			return domain.ErrPlanVerificationFailed
		}

		exists, err := tx.ActiveUserExists(ctx, companyID, email)
		if err != nil {
			return err
		}
		if exists {
			return domain.ErrDuplicateEmail
		}

		pendingExists, err := tx.PendingInvitationExists(ctx, companyID, email, now)
		if err != nil {
			return err
		}
		if pendingExists {
			return domain.ErrDuplicateInvitation
		}

		current, err := tx.CountActiveUsers(ctx, companyID)
		if err != nil {
			return err
		}
		pending, err := tx.CountPendingInvitations(ctx, companyID, now)
		if err != nil {
			return err
		}

		limit := company.EffectiveSeatLimit()
		capacity := domain.EvaluateCapacity(companyID, company.Plan, limit, current, pending)
		if !capacity.CanAdmit {
			return domain.LimitReached(current, pending, limit, domain.UpgradeForPlan(company.Plan))
		}

		token, err := domain.NewInvitationToken(s.config.TokenBytes)
		if err != nil {
			return domain.ErrInvitationCreationFailed.WithCause(err)
		}

		invitation = &domain.Invitation{
			ID:        uuid.New().String(),
			CompanyID: companyID,
			Token:     token,
			Email:     email,
			FirstName: req.FirstName,
			LastName:  req.LastName,
			Role:      req.Role,
			Position:  req.Position,
			Status:    domain.InvitationPending,
			ExpiresAt: now.Add(time.Duration(s.config.ExpiryDays) * 24 * time.Hour),
			InvitedBy: actorID,
			TraceID:   traceID,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := tx.CreateInvitation(ctx, invitation); err != nil {
			return domain.ErrInvitationCreationFailed.WithCause(err)
		}

		entry := audit.NewEntry(companyID, actorID, audit.ActionInvite, audit.OutcomeSuccess)
		entry.ResourceType = "invitation"
		entry.ResourceID = invitation.ID
		entry.TraceID = traceID
		entry.Details = map[string]interface{}{
			"email": email,
			"role":  req.Role,
		}
		if err := tx.RecordAudit(ctx, entry); err != nil {
			return err
		}

		// Snapshot for the broadcast reflects the seat this invitation now
		// holds
		snap = domain.EvaluateCapacity(companyID, company.Plan, limit, current, pending+1)
		return nil
	})
	if err != nil {
		err = asDomainError(err, domain.ErrInvitationCreationFailed)
		recordFailure(s.sink, companyID, actorID, audit.ActionInvite, traceID, email, err)
		recordOperation(ctx, string(audit.ActionInvite), start, err)
		return nil, err
	}
	recordOperation(ctx, string(audit.ActionInvite), start, nil)

	queueInvitationEmail(ctx, s.store, s.mailer, s.config, company, invitation)
	s.broadcaster.BroadcastCapacity(ctx, snap)

	return &dto.InviteEmployeeResponse{
		Invitation: dto.ToInvitationResponse(invitation, now),
		Capacity:   snap,
		AcceptURL:  s.config.acceptURL(invitation.Token),
	}, nil
}
