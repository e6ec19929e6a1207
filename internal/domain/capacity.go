package domain

// CapacitySnapshot is the result of evaluating a company's seat usage from a
// consistent read. Callers supplying a non-locked snapshot get an advisory
// answer only; the authoritative check happens after the company row lock.
type CapacitySnapshot struct {
	CompanyID          string   `json:"company_id"`
	SeatLimit          int      `json:"seat_limit"`
	CurrentCount       int      `json:"current_count"`
	PendingInvitations int      `json:"pending_invitations"`
	UsedSeats          int      `json:"used_seats"`
	Remaining          int      `json:"remaining"`
	UsagePercent       float64  `json:"usage_percent"`
	CanAdmit           bool     `json:"can_admit"`
	Plan               PlanTier `json:"plan"`
}

// EvaluateCapacity computes seat usage from a snapshot of counts. Pure; no
// side effects.
func EvaluateCapacity(companyID string, plan PlanTier, seatLimit, currentUsers, pendingInvitations int) CapacitySnapshot {
	used := currentUsers + pendingInvitations

	remaining := seatLimit - used
	if remaining < 0 {
		remaining = 0
	}

	var pct float64
	if seatLimit > 0 {
		pct = float64(used) / float64(seatLimit) * 100
	}

	return CapacitySnapshot{
		CompanyID:          companyID,
		SeatLimit:          seatLimit,
		CurrentCount:       currentUsers,
		PendingInvitations: pendingInvitations,
		UsedSeats:          used,
		Remaining:          remaining,
		UsagePercent:       pct,
		CanAdmit:           used < seatLimit,
		Plan:               plan,
	}
}
