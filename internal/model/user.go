package model

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Role is the closed set of staff roles.
type Role string

const (
	RoleNetworkManager Role = "NETWORK_MANAGER"
	RoleBranchManager  Role = "BRANCH_MANAGER"
	RoleTherapist      Role = "THERAPIST"
	RoleReceptionist   Role = "RECEPTIONIST"
)

// roleAliases maps single-branch and legacy labels onto the closed set.
// A single-branch MANAGER is a network manager with no branch.
var roleAliases = map[string]Role{
	"NETWORK_MANAGER": RoleNetworkManager,
	"BRANCH_MANAGER":  RoleBranchManager,
	"THERAPIST":       RoleTherapist,
	"RECEPTIONIST":    RoleReceptionist,
	"MANAGER":         RoleNetworkManager,
	"GESTOR_GERAL":    RoleNetworkManager,
	"GESTOR":          RoleNetworkManager,
	"GESTOR_FILIAL":   RoleBranchManager,
	"FISIOTERAPEUTA":  RoleTherapist,
	"ATENDENTE":       RoleReceptionist,
}

// ParseRole resolves a role label, case-insensitively.
func ParseRole(s string) (Role, error) {
	if r, ok := roleAliases[strings.ToUpper(strings.TrimSpace(s))]; ok {
		return r, nil
	}
	return "", fmt.Errorf("unknown role %q", s)
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleNetworkManager, RoleBranchManager, RoleTherapist, RoleReceptionist:
		return true
	}
	return false
}

// User is a staff identity. Patients are never users.
type User struct {
	Base
	ClinicID     uuid.UUID  `json:"clinic_id" db:"clinic_id"`
	BranchID     *uuid.UUID `json:"branch_id,omitempty" db:"branch_id"`
	Role         Role       `json:"role" db:"role"`
	Email        string     `json:"email" db:"email"`
	Name         string     `json:"name" db:"name"`
	PasswordHash string     `json:"-" db:"password_hash"`
	LicenseID    *string    `json:"license_id,omitempty" db:"license_id"`
	CPF          *string    `json:"cpf,omitempty" db:"cpf"`
	Phone        *string    `json:"phone,omitempty" db:"phone"`
	Active       bool       `json:"active" db:"active"`
}

func (u *User) IsNetworkManager() bool {
	return u != nil && u.Role == RoleNetworkManager
}

func (u *User) IsBranchManager() bool {
	return u != nil && u.Role == RoleBranchManager
}

// IsManager is true for either manager kind.
func (u *User) IsManager() bool {
	return u.IsNetworkManager() || u.IsBranchManager()
}

func (u *User) IsTherapist() bool {
	return u != nil && u.Role == RoleTherapist
}

func (u *User) IsReceptionist() bool {
	return u != nil && u.Role == RoleReceptionist
}

// InBranch reports whether the user is assigned to the given branch.
// Two unassigned sides match, which covers single-branch clinics.
func (u *User) InBranch(branchID *uuid.UUID) bool {
	return u != nil && SameID(u.BranchID, branchID)
}

// ValidateAssignment checks the role/branch/license invariants. clinicHasBranches
// tells whether the clinic runs in multi-branch mode.
func (u *User) ValidateAssignment(clinicHasBranches bool) (field string, err error) {
	if !u.Role.Valid() {
		return "role", fmt.Errorf("invalid role %q", u.Role)
	}
	if u.IsNetworkManager() && u.BranchID != nil {
		return "branch_id", fmt.Errorf("network manager cannot belong to a branch")
	}
	if !u.IsNetworkManager() && clinicHasBranches && u.BranchID == nil {
		return "branch_id", fmt.Errorf("branch is required for role %s", u.Role)
	}
	if u.IsTherapist() && (u.LicenseID == nil || strings.TrimSpace(*u.LicenseID) == "") {
		return "license_id", fmt.Errorf("license id is required for therapists")
	}
	return "", nil
}

// UserFilter represents user search parameters
type UserFilter struct {
	Pagination
	Role       Role   `form:"role"`
	SearchTerm string `form:"search_term"`
	ActiveOnly bool   `form:"active_only"`
}

// CreateUserRequest represents user creation parameters
type CreateUserRequest struct {
	Email     string  `json:"email" binding:"required,email"`
	Name      string  `json:"name" binding:"required"`
	Password  string  `json:"password" binding:"required,min=8"`
	Role      string  `json:"role" binding:"required"`
	BranchID  *string `json:"branch_id" binding:"omitempty,uuid"`
	LicenseID *string `json:"license_id"`
	CPF       *string `json:"cpf" binding:"omitempty,cpf"`
	Phone     *string `json:"phone"`
}

// UpdateUserRequest represents user update parameters
type UpdateUserRequest struct {
	Name      *string `json:"name"`
	Email     *string `json:"email" binding:"omitempty,email"`
	Phone     *string `json:"phone"`
	LicenseID *string `json:"license_id"`
	Role      *string `json:"role"`
	BranchID  *string `json:"branch_id" binding:"omitempty,uuid"`
	Active    *bool   `json:"active"`
}
