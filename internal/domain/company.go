package domain

import (
	"time"
)

// PlanTier identifies a company's subscription tier
type PlanTier string

const (
	PlanTrial  PlanTier = "trial"
	PlanSilver PlanTier = "silver"
	PlanGold   PlanTier = "gold"
)

// Default seat limits per tier, applied when a company has no explicit
// override. Confirm against current billing plans before changing.
const (
	TrialSeatLimit   = 50
	GoldSeatLimit    = 500
	DefaultSeatLimit = 5
)

// Company represents a tenant in the multi-tenant system
type Company struct {
	ID            string     `json:"id"`
	Name          string     `json:"name"`
	Plan          PlanTier   `json:"plan"`
	BillingStatus string     `json:"billing_status"`
	// SeatLimit is the explicit per-company override; nil or non-positive
	// means the tier default applies
	SeatLimit *int `json:"seat_limit,omitempty"`
	// EmployeeCount is a denormalized counter refreshed only by the
	// admission and acceptance transactions
	EmployeeCount     int        `json:"employee_count"`
	BiometricRequired bool       `json:"biometric_required"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
	DeletedAt         *time.Time `json:"deleted_at,omitempty"`
}

// EffectiveSeatLimit resolves the company's seat limit: the explicit value
// when set, otherwise the tier default ladder.
func (c *Company) EffectiveSeatLimit() int {
	if c.SeatLimit != nil && *c.SeatLimit > 0 {
		return *c.SeatLimit
	}
	switch c.Plan {
	case PlanTrial:
		return TrialSeatLimit
	case PlanGold:
		return GoldSeatLimit
	default:
		return DefaultSeatLimit
	}
}

// UpgradeInfo carries pricing metadata for the next tier up, attached to
// limit-reached errors so the UI can offer an upgrade flow. It never feeds
// into capacity math.
type UpgradeInfo struct {
	SuggestedPlan PlanTier `json:"suggested_plan"`
	SeatLimit     int      `json:"seat_limit"`
	PricePerSeat  float64  `json:"price_per_seat"`
	Currency      string   `json:"currency"`
}

// UpgradeForPlan returns the upgrade offer for a company on the given tier,
// or nil when there is no higher tier to offer
func UpgradeForPlan(plan PlanTier) *UpgradeInfo {
	switch plan {
	case PlanGold:
		return nil
	case PlanSilver:
		return &UpgradeInfo{SuggestedPlan: PlanGold, SeatLimit: GoldSeatLimit, PricePerSeat: 7.50, Currency: "USD"}
	default:
		return &UpgradeInfo{SuggestedPlan: PlanSilver, SeatLimit: TrialSeatLimit, PricePerSeat: 4.00, Currency: "USD"}
	}
}
