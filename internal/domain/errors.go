package domain

import (
	"fmt"
)

// Code identifies a seat-admission error kind. Codes are stable and are
// returned to callers verbatim, together with structured details.
type Code string

const (
	CodeDuplicateEmail           Code = "DUPLICATE_EMAIL"
	CodeDuplicateInvitation      Code = "DUPLICATE_INVITATION"
	CodeEmployeeLimitReached     Code = "EMPLOYEE_LIMIT_REACHED"
	CodePlanVerificationFailed   Code = "PLAN_VERIFICATION_FAILED"
	CodeInvitationCreationFailed Code = "INVITATION_CREATION_FAILED"
	CodeInvalidInvitation        Code = "INVALID_INVITATION"
	CodeBiometricsRequired       Code = "BIOMETRICS_REQUIRED"
	CodeInvitationNotFound       Code = "INVITATION_NOT_FOUND"
	CodeInvitationCancelFailed   Code = "INVITATION_CANCEL_FAILED"
)

// Error is a typed engine error carrying structured context for the caller.
// Two Errors match under errors.Is when their codes are equal, so services
// and handlers compare against the sentinel values below.
type Error struct {
	Code    Code
	Message string
	Details map[string]interface{}
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is matches errors by code
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// Unwrap returns the underlying cause, if any
func (e *Error) Unwrap() error {
	return e.cause
}

// WithDetails returns a copy of the error with the given details attached
func (e *Error) WithDetails(details map[string]interface{}) *Error {
	return &Error{
		Code:    e.Code,
		Message: e.Message,
		Details: details,
		cause:   e.cause,
	}
}

// WithCause returns a copy of the error wrapping the given cause
func (e *Error) WithCause(cause error) *Error {
	return &Error{
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
		cause:   cause,
	}
}

// Sentinel errors for each code. Use errors.Is against these.
var (
	ErrDuplicateEmail           = &Error{Code: CodeDuplicateEmail, Message: "an active user already owns this email"}
	ErrDuplicateInvitation      = &Error{Code: CodeDuplicateInvitation, Message: "a pending invitation already exists for this email"}
	ErrEmployeeLimitReached     = &Error{Code: CodeEmployeeLimitReached, Message: "employee seat limit reached"}
	ErrPlanVerificationFailed   = &Error{Code: CodePlanVerificationFailed, Message: "company plan could not be verified"}
	ErrInvitationCreationFailed = &Error{Code: CodeInvitationCreationFailed, Message: "invitation could not be created"}
	ErrInvalidInvitation        = &Error{Code: CodeInvalidInvitation, Message: "invitation token is unknown, already resolved, or expired"}
	ErrBiometricsRequired       = &Error{Code: CodeBiometricsRequired, Message: "company policy requires biometric enrollment"}
	ErrInvitationNotFound       = &Error{Code: CodeInvitationNotFound, Message: "invitation not found or already resolved"}
	ErrInvitationCancelFailed   = &Error{Code: CodeInvitationCancelFailed, Message: "invitation could not be cancelled"}
)

// LimitReached builds an EMPLOYEE_LIMIT_REACHED error carrying current usage
// and upgrade pricing so the caller can offer an upgrade path
func LimitReached(currentCount, pendingCount, limit int, upgrade *UpgradeInfo) *Error {
	details := map[string]interface{}{
		"current_count":       currentCount,
		"pending_invitations": pendingCount,
		"limit":               limit,
	}
	if upgrade != nil {
		details["upgrade"] = upgrade
	}
	return ErrEmployeeLimitReached.WithDetails(details)
}
