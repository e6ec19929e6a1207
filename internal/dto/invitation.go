package dto

import (
	"strings"
	"time"

	"github.com/Onyemech/teemplot-sub006/internal/domain"
)

// InviteEmployeeRequest is the payload for inviting an employee into a
// company
type InviteEmployeeRequest struct {
	Email     string `json:"email" binding:"required,email"`
	FirstName string `json:"first_name" binding:"required,max=100"`
	LastName  string `json:"last_name" binding:"required,max=100"`
	Role      string `json:"role" binding:"required,oneof=admin manager employee"`
	Position  string `json:"position" binding:"omitempty,max=100"`
}

// NormalizedEmail returns the email lowercased and trimmed, the canonical
// form used for duplicate checks
func (r *InviteEmployeeRequest) NormalizedEmail() string {
	return strings.ToLower(strings.TrimSpace(r.Email))
}

// InvitationResponse is the API shape of an invitation. Status reflects
// expiry at read time.
type InvitationResponse struct {
	ID          string `json:"id"`
	CompanyID   string `json:"company_id"`
	Email       string `json:"email"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	Role        string `json:"role"`
	Position    string `json:"position,omitempty"`
	Status      string `json:"status"`
	ExpiresAt   string `json:"expires_at"`
	InvitedBy   string `json:"invited_by"`
	AcceptedAt  string `json:"accepted_at,omitempty"`
	CancelledAt string `json:"cancelled_at,omitempty"`
	CreatedAt   string `json:"created_at"`
}

// ToInvitationResponse converts a domain invitation, folding expiry into the
// reported status
func ToInvitationResponse(inv *domain.Invitation, now time.Time) *InvitationResponse {
	resp := &InvitationResponse{
		ID:        inv.ID,
		CompanyID: inv.CompanyID,
		Email:     inv.Email,
		FirstName: inv.FirstName,
		LastName:  inv.LastName,
		Role:      inv.Role,
		Position:  inv.Position,
		Status:    string(inv.EffectiveStatus(now)),
		ExpiresAt: inv.ExpiresAt.Format(time.RFC3339),
		InvitedBy: inv.InvitedBy,
		CreatedAt: inv.CreatedAt.Format(time.RFC3339),
	}
	if inv.AcceptedAt != nil {
		resp.AcceptedAt = inv.AcceptedAt.Format(time.RFC3339)
	}
	if inv.CancelledAt != nil {
		resp.CancelledAt = inv.CancelledAt.Format(time.RFC3339)
	}
	return resp
}

// InviteEmployeeResponse is returned after a successful admission
type InviteEmployeeResponse struct {
	Invitation *InvitationResponse     `json:"invitation"`
	Capacity   domain.CapacitySnapshot `json:"capacity"`
	AcceptURL  string                  `json:"accept_url"`
}

// ListInvitationsQuery filters the invitation list
type ListInvitationsQuery struct {
	Status string `form:"status" binding:"omitempty,oneof=pending accepted cancelled expired"`
}

// ListInvitationsResponse is the invitation list payload
type ListInvitationsResponse struct {
	Invitations []*InvitationResponse `json:"invitations"`
	TotalCount  int                   `json:"total_count"`
}

// InvitationPreviewResponse is the public view of an invitation shown on the
// acceptance page, before any credentials are collected
type InvitationPreviewResponse struct {
	CompanyName       string `json:"company_name"`
	Email             string `json:"email"`
	FirstName         string `json:"first_name"`
	LastName          string `json:"last_name"`
	Role              string `json:"role"`
	Position          string `json:"position,omitempty"`
	ExpiresAt         string `json:"expires_at"`
	BiometricRequired bool   `json:"biometric_required"`
}

// AcceptInvitationRequest carries the credentials for redeeming an
// invitation
type AcceptInvitationRequest struct {
	Password    string `json:"password" binding:"required,min=8,max=72"`
	BiometricID string `json:"biometric_id" binding:"omitempty,max=255"`
}

// UserResponse is the API shape of a user account
type UserResponse struct {
	ID        string `json:"id"`
	CompanyID string `json:"company_id"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Role      string `json:"role"`
	Position  string `json:"position,omitempty"`
	IsActive  bool   `json:"is_active"`
	CreatedAt string `json:"created_at"`
}

// ToUserResponse converts a domain user
func ToUserResponse(u *domain.User) *UserResponse {
	return &UserResponse{
		ID:        u.ID,
		CompanyID: u.CompanyID,
		Email:     u.Email,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Role:      u.Role,
		Position:  u.Position,
		IsActive:  u.IsActive,
		CreatedAt: u.CreatedAt.Format(time.RFC3339),
	}
}

// AcceptInvitationResponse is returned after a successful acceptance
type AcceptInvitationResponse struct {
	User     *UserResponse           `json:"user"`
	Capacity domain.CapacitySnapshot `json:"capacity"`
}
