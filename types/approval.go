package types

import "time"

// Approval request types.
const (
	ApprovalAdminVerification     = "admin_verification"
	ApprovalModeratorVerification = "moderator_verification"
	ApprovalInstitutionJoin       = "institution_join"
	ApprovalRoleUpgrade           = "role_upgrade"
)

// Approval request statuses. Pending is the only non-terminal status.
const (
	StatusPending   = "pending"
	StatusApproved  = "approved"
	StatusRejected  = "rejected"
	StatusCancelled = "cancelled"
)

// Approval request priorities.
const (
	PriorityLow    = "low"
	PriorityNormal = "normal"
	PriorityHigh   = "high"
	PriorityUrgent = "urgent"
)

// ApprovalRequest is a pending change-of-role record requiring review by a
// privileged actor. Requests are never deleted; rejected and cancelled
// requests are retained for audit.
type ApprovalRequest struct {
	// ID is the unique identifier of the request (UUID).
	ID string `json:"id" db:"id"`

	// UserID identifies the requesting user.
	UserID int `json:"user_id" db:"user_id"`

	// Username is denormalized for list views.
	Username string `json:"username" db:"username"`

	// ApprovalType is one of the Approval* constants.
	ApprovalType string `json:"approval_type" db:"approval_type"`

	// CurrentRole is the requester's role at submission time.
	CurrentRole string `json:"current_role" db:"current_role"`

	// RequestedRole is the role the requester wants to hold.
	RequestedRole string `json:"requested_role" db:"requested_role"`

	// RequestedAdminType is set only for admin_verification requests.
	RequestedAdminType string `json:"requested_admin_type,omitempty" db:"requested_admin_type"`

	// Institution optionally names the institution the request concerns.
	Institution string `json:"institution,omitempty" db:"institution"`

	// Reason is the requester's stated justification. Never empty.
	Reason string `json:"reason" db:"reason"`

	// AdditionalInfo carries optional free-text context.
	AdditionalInfo string `json:"additional_info,omitempty" db:"additional_info"`

	// Status is one of the Status* constants.
	Status string `json:"status" db:"status"`

	// Priority is one of the Priority* constants.
	Priority string `json:"priority" db:"priority"`

	// Notes holds the reviewer's decision notes, once decided.
	Notes string `json:"notes,omitempty" db:"notes"`

	// ReviewedBy identifies the deciding actor, once decided.
	ReviewedBy int `json:"reviewed_by,omitempty" db:"reviewed_by"`

	// CreatedAt is the submission timestamp.
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// ReviewedAt is the decision timestamp, nil while pending.
	ReviewedAt *time.Time `json:"reviewed_at,omitempty" db:"reviewed_at"`
}

// Terminal reports whether the request reached a final status.
func (a ApprovalRequest) Terminal() bool {
	return a.Status != StatusPending
}

// ValidApprovalType reports whether t names a known approval type.
func ValidApprovalType(t string) bool {
	switch t {
	case ApprovalAdminVerification, ApprovalModeratorVerification,
		ApprovalInstitutionJoin, ApprovalRoleUpgrade:
		return true
	}
	return false
}

// ValidStatus reports whether s names a known request status.
func ValidStatus(s string) bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected, StatusCancelled:
		return true
	}
	return false
}
