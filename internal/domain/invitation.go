package domain

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"time"
)

// InvitationStatus is the stored state of an invitation. "expired" is never
// stored: an invitation past its expiry is excluded from active queries by a
// timestamp comparison, without any row mutation.
type InvitationStatus string

const (
	InvitationPending   InvitationStatus = "pending"
	InvitationAccepted  InvitationStatus = "accepted"
	InvitationCancelled InvitationStatus = "cancelled"
	// InvitationExpired is a derived, read-time status used in list filters
	// and responses only
	InvitationExpired InvitationStatus = "expired"
)

// IsTerminal reports whether the status admits no further transitions
func (s InvitationStatus) IsTerminal() bool {
	return s == InvitationAccepted || s == InvitationCancelled
}

// IsValid reports whether the status is a known stored value
func (s InvitationStatus) IsValid() bool {
	switch s {
	case InvitationPending, InvitationAccepted, InvitationCancelled:
		return true
	}
	return false
}

// CanTransitionTo reports whether a stored-state transition is allowed
func (s InvitationStatus) CanTransitionTo(target InvitationStatus) bool {
	if s != InvitationPending {
		return false
	}
	return target == InvitationAccepted || target == InvitationCancelled
}

// Invitation represents a pending seat claim against a company's capacity
type Invitation struct {
	ID        string           `json:"id"`
	CompanyID string           `json:"company_id"`
	Token     string           `json:"token"`
	Email     string           `json:"email"`
	FirstName string           `json:"first_name"`
	LastName  string           `json:"last_name"`
	Role      string           `json:"role"`
	Position  string           `json:"position,omitempty"`
	Status    InvitationStatus `json:"status"`
	ExpiresAt time.Time        `json:"expires_at"`
	InvitedBy string           `json:"invited_by"`
	// TraceID correlates the invitation with the admission transaction's
	// audit trail
	TraceID     string     `json:"trace_id,omitempty"`
	RetryCount  int        `json:"retry_count"`
	AcceptedAt  *time.Time `json:"accepted_at,omitempty"`
	CancelledAt *time.Time `json:"cancelled_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// IsExpired reports whether the invitation is past its expiry at the given
// instant
func (i *Invitation) IsExpired(now time.Time) bool {
	return now.After(i.ExpiresAt)
}

// CanBeAccepted reports whether the invitation is still redeemable
func (i *Invitation) CanBeAccepted(now time.Time) bool {
	return i.Status == InvitationPending && !i.IsExpired(now)
}

// EffectiveStatus returns the status as observed at read time, folding
// expiry into the answer
func (i *Invitation) EffectiveStatus(now time.Time) InvitationStatus {
	if i.Status == InvitationPending && i.IsExpired(now) {
		return InvitationExpired
	}
	return i.Status
}

// NewInvitationToken generates an unguessable redemption token with the
// given number of random bytes
func NewInvitationToken(numBytes int) (string, error) {
	if numBytes < 16 {
		numBytes = 16
	}
	buf := make([]byte, numBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate invitation token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
