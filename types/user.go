package types

import "time"

// Roles a user can hold on the platform. Role determines baseline
// capability; fine-grained capabilities live in User.Permissions.
const (
	RoleStudent        = "student"
	RoleModerator      = "moderator"
	RoleAdmin          = "admin"
	RoleSuperAdmin     = "super_admin"
	RoleSuperModerator = "super_moderator"
)

// Admin sub-classification, meaningful only when Role is RoleAdmin.
const (
	AdminTypePrimary   = "primary"
	AdminTypeSecondary = "secondary"
)

// Verification status values for a user account.
const (
	VerificationPending     = "pending"
	VerificationVerified    = "verified"
	VerificationNotRequired = "not_required"
)

// Capability tags drawn from User.Permissions.
const (
	PermApproveAdmins     = "approve_admins"
	PermApproveModerators = "approve_moderators"
	PermManageUsers       = "manage_users"
)

// User represents an account in the system.
// It contains identity, role, and audit metadata.
type User struct {
	// ID is the unique identifier of the user.
	ID int `json:"id" db:"id"`

	// Username is the unique login name chosen by the user.
	Username string `json:"username" db:"username"`

	// Email is the user's email address.
	Email string `json:"email" db:"email"`

	// Name is the user's display or full name.
	Name string `json:"name" db:"name"`

	// Phone is the user's contact phone number, if provided.
	Phone string `json:"phone,omitempty" db:"phone"`

	// Role indicates the user's authorization level within the
	// system (one of the Role* constants).
	Role string `json:"role" db:"role"`

	// AdminType sub-classifies admin accounts as primary or
	// secondary. Empty for every non-admin role.
	AdminType string `json:"admin_type,omitempty" db:"admin_type"`

	// IsSuperAdmin marks the separately-privileged tier. True only
	// for super_admin and super_moderator roles.
	IsSuperAdmin bool `json:"is_super_admin" db:"is_super_admin"`

	// IsVerified reports whether the account passed verification.
	IsVerified bool `json:"is_verified" db:"is_verified"`

	// VerificationStatus is one of the Verification* constants.
	// Super-admin tier accounts always carry VerificationNotRequired.
	VerificationStatus string `json:"verification_status" db:"verification_status"`

	// Permissions is the set of capability tags granted to the user.
	Permissions []string `json:"permissions" db:"permissions"`

	// IsActive reports whether the account may sign in.
	IsActive bool `json:"is_active" db:"is_active"`

	// PasswordHash stores the hashed representation of the user's password.
	// This field is never exposed in API responses.
	PasswordHash string `json:"-" db:"password_hash"`

	// CreatedAt is the timestamp when the user account was created.
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// UpdatedAt is the timestamp of the most recent update to the user account.
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// HasPermission reports whether the user carries the capability tag.
func (u User) HasPermission(perm string) bool {
	for _, p := range u.Permissions {
		if p == perm {
			return true
		}
	}
	return false
}

// InstitutionSettings describes a user's institution enrollment and the
// opt-in flag that unlocks institution-only routes. The settings store is
// externally owned; this server only reads it.
type InstitutionSettings struct {
	InstitutionFunctionsEnabled bool   `json:"institution_functions_enabled"`
	InstitutionName             string `json:"institution_name,omitempty"`
	StudentID                   string `json:"student_id,omitempty"`
	Department                  string `json:"department,omitempty"`
	AcademicYear                string `json:"academic_year,omitempty"`
	EnrollmentDate              string `json:"enrollment_date,omitempty"`
	StudentLevel                string `json:"student_level,omitempty"`
}
