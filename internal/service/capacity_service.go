package service

import (
	"context"
	"time"

	"github.com/Onyemech/teemplot-sub006/internal/domain"
	"github.com/Onyemech/teemplot-sub006/internal/dto"
	"github.com/Onyemech/teemplot-sub006/internal/repository"
)

// CapacityService answers advisory capacity questions from normal reads.
// Answers can go stale immediately; the admission transaction re-checks
// under the company lock before committing anything.
type CapacityService interface {
	// GetCapacity returns the company's current seat usage
	GetCapacity(ctx context.Context, companyID string) (*dto.CapacityResponse, error)
}

type capacityService struct {
	store repository.Store
	nowFn func() time.Time
}

// NewCapacityService creates a new CapacityService
func NewCapacityService(store repository.Store) CapacityService {
	return &capacityService{store: store, nowFn: time.Now}
}

// GetCapacity returns the company's current seat usage
func (s *capacityService) GetCapacity(ctx context.Context, companyID string) (*dto.CapacityResponse, error) {
	now := s.nowFn()

	company, err := s.store.GetCompany(ctx, companyID)
	if err != nil {
		return nil, err
	}
	if company == nil {
		return nil, domain.ErrPlanVerificationFailed
	}

	current, err := s.store.CountActiveUsers(ctx, companyID)
	if err != nil {
		return nil, err
	}
	pending, err := s.store.CountPendingInvitations(ctx, companyID, now)
	if err != nil {
		return nil, err
	}

	snap := domain.EvaluateCapacity(companyID, company.Plan, company.EffectiveSeatLimit(), current, pending)

	resp := &dto.CapacityResponse{CapacitySnapshot: snap}
	if !snap.CanAdmit {
		resp.Upgrade = domain.UpgradeForPlan(company.Plan)
	}
	return resp, nil
}
