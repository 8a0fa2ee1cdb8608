package user

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/jwalitptl/physiocapture-api/internal/access"
	"github.com/jwalitptl/physiocapture-api/internal/model"
	"github.com/jwalitptl/physiocapture-api/internal/repository"
	"github.com/jwalitptl/physiocapture-api/internal/service/audit"
	apperrors "github.com/jwalitptl/physiocapture-api/pkg/errors"
	"github.com/jwalitptl/physiocapture-api/pkg/security"
)

type Service struct {
	repo     repository.UserRepository
	clinics  repository.ClinicRepository
	branches repository.BranchRepository
	patients repository.PatientRepository
	hasher   security.PasswordHasher
	auditor  *audit.Service
}

func NewService(repo repository.UserRepository, clinics repository.ClinicRepository, branches repository.BranchRepository,
	patients repository.PatientRepository, hasher security.PasswordHasher, auditor *audit.Service) *Service {
	return &Service{
		repo:     repo,
		clinics:  clinics,
		branches: branches,
		patients: patients,
		hasher:   hasher,
		auditor:  auditor,
	}
}

// NewStaff builds an active, unsaved user of clinicID from req. The password
// is not hashed yet.
func NewStaff(clinicID uuid.UUID, req *model.CreateUserRequest) (*model.User, error) {
	role, err := model.ParseRole(req.Role)
	if err != nil {
		return nil, apperrors.NewValidation("role", err.Error())
	}
	user := &model.User{
		ClinicID:  clinicID,
		Role:      role,
		Email:     strings.ToLower(strings.TrimSpace(req.Email)),
		Name:      strings.TrimSpace(req.Name),
		LicenseID: req.LicenseID,
		CPF:       req.CPF,
		Phone:     req.Phone,
		Active:    true,
	}
	if req.BranchID != nil {
		id, err := uuid.Parse(*req.BranchID)
		if err != nil {
			return nil, apperrors.NewValidation("branch_id", "invalid branch id")
		}
		user.BranchID = &id
	}
	return user, nil
}

// HashPassword stores the hash of password on user.
func HashPassword(hasher security.PasswordHasher, user *model.User, password string) error {
	hash, err := hasher.Hash(password)
	if err != nil {
		if errors.Is(err, security.ErrPasswordTooShort) {
			return apperrors.NewValidation("password", fmt.Sprintf("password must have at least %d characters", security.MinPasswordLen))
		}
		return apperrors.NewInternal(err)
	}
	user.PasswordHash = hash
	return nil
}

func (s *Service) Create(ctx context.Context, caller *model.User, req *model.CreateUserRequest) (*model.User, error) {
	if !access.CanManageUsers(caller) {
		return nil, apperrors.Forbidden("manage users")
	}

	target, err := NewStaff(caller.ClinicID, req)
	if err != nil {
		return nil, err
	}
	if target.IsNetworkManager() && !caller.IsNetworkManager() {
		return nil, apperrors.Forbidden("create a network manager")
	}
	if err := s.validateAssignment(ctx, target); err != nil {
		return nil, err
	}
	if !access.CanManageUser(caller, target) {
		return nil, apperrors.Forbidden("create a user in this branch")
	}
	if target.IsTherapist() {
		if err := s.checkQuota(ctx, caller.ClinicID); err != nil {
			return nil, err
		}
	}
	if err := HashPassword(s.hasher, target, req.Password); err != nil {
		return nil, err
	}

	if err := s.repo.Create(ctx, nil, target); err != nil {
		return nil, err
	}

	s.auditor.Record(ctx, caller, model.AuditActionCreate, model.AuditEntityUser, target.ID, target)
	return target, nil
}

// Get returns a user the caller may see: themselves or someone they manage.
func (s *Service) Get(ctx context.Context, caller *model.User, id uuid.UUID) (*model.User, error) {
	target, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if target.ID != caller.ID && !access.CanManageUser(caller, target) {
		return nil, apperrors.Forbidden("view this user")
	}
	return target, nil
}

// Update applies req. Everyone may edit their own contact data; role, branch
// and status changes need CanManageUser on both the old and the new state.
func (s *Service) Update(ctx context.Context, caller *model.User, id uuid.UUID, req *model.UpdateUserRequest) (*model.User, error) {
	target, err := s.Get(ctx, caller, id)
	if err != nil {
		return nil, err
	}
	wasTherapist := target.IsTherapist() && target.Active
	ownedRole, ownedBranch := target.Role, target.BranchID

	administrative := req.Role != nil || req.BranchID != nil || req.Active != nil || req.LicenseID != nil
	if administrative && !access.CanManageUser(caller, target) {
		return nil, apperrors.Forbidden("change role, branch or status of this user")
	}
	if req.Active != nil && !*req.Active && target.ID == caller.ID {
		return nil, apperrors.NewValidation("active", "you cannot deactivate yourself")
	}

	if req.Name != nil {
		target.Name = strings.TrimSpace(*req.Name)
	}
	if req.Email != nil {
		target.Email = strings.ToLower(strings.TrimSpace(*req.Email))
	}
	if req.Phone != nil {
		target.Phone = req.Phone
	}
	if req.LicenseID != nil {
		target.LicenseID = req.LicenseID
	}
	if req.Active != nil {
		target.Active = *req.Active
	}
	if req.Role != nil {
		role, err := model.ParseRole(*req.Role)
		if err != nil {
			return nil, apperrors.NewValidation("role", err.Error())
		}
		if role == model.RoleNetworkManager && !caller.IsNetworkManager() {
			return nil, apperrors.Forbidden("grant the network manager role")
		}
		target.Role = role
		if target.IsNetworkManager() {
			target.BranchID = nil
		}
	}
	if req.BranchID != nil {
		branchID, err := uuid.Parse(*req.BranchID)
		if err != nil {
			return nil, apperrors.NewValidation("branch_id", "invalid branch id")
		}
		target.BranchID = &branchID
	}

	if err := s.validateAssignment(ctx, target); err != nil {
		return nil, err
	}
	if administrative && !access.CanManageUser(caller, target) {
		return nil, apperrors.Forbidden("move this user outside your branch")
	}
	if ownedRole == model.RoleTherapist && (!target.IsTherapist() || !sameBranch(ownedBranch, target.BranchID)) {
		// A patient's branch follows its therapist; the move must go through a transfer.
		owned, err := s.patients.CountByTherapist(ctx, target.ID)
		if err != nil {
			return nil, err
		}
		if owned > 0 {
			return nil, apperrors.NewIntegrity("therapist still owns patients; transfer them first")
		}
	}
	if target.IsTherapist() && target.Active && !wasTherapist {
		if err := s.checkQuota(ctx, target.ClinicID); err != nil {
			return nil, err
		}
	}

	if err := s.repo.Update(ctx, target); err != nil {
		return nil, err
	}

	s.auditor.Record(ctx, caller, model.AuditActionUpdate, model.AuditEntityUser, target.ID, req)
	return target, nil
}

// Deactivate disables a login. Users are never deleted since patients and
// history reference them.
func (s *Service) Deactivate(ctx context.Context, caller *model.User, id uuid.UUID) error {
	if id == caller.ID {
		return apperrors.NewValidation("id", "you cannot deactivate yourself")
	}
	target, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if !access.CanManageUser(caller, target) {
		return apperrors.Forbidden("deactivate this user")
	}
	if !target.Active {
		return apperrors.NewStateConflict("user", "inactive")
	}

	target.Active = false
	if err := s.repo.Update(ctx, target); err != nil {
		return err
	}

	s.auditor.Record(ctx, caller, model.AuditActionDelete, model.AuditEntityUser, target.ID, nil)
	return nil
}

func (s *Service) List(ctx context.Context, caller *model.User, filter *model.UserFilter) ([]*model.User, int, error) {
	scope, ok := access.UserScope(caller)
	if !ok {
		return nil, 0, apperrors.Forbidden("list users")
	}
	return s.repo.List(ctx, scope, filter)
}

// ListTransferTargets returns the active therapists of the caller's clinic a
// patient could be moved to, excluding the caller.
func (s *Service) ListTransferTargets(ctx context.Context, caller *model.User) ([]*model.User, error) {
	if !access.CanAccessClinicalData(caller) {
		return nil, apperrors.Forbidden("list transfer targets")
	}
	therapists, err := s.repo.ListActiveTherapists(ctx, caller.ClinicID)
	if err != nil {
		return nil, err
	}
	out := make([]*model.User, 0, len(therapists))
	for _, t := range therapists {
		if t.ID != caller.ID {
			out = append(out, t)
		}
	}
	return out, nil
}

// validateAssignment checks role and branch invariants against the stored clinic layout.
func (s *Service) validateAssignment(ctx context.Context, user *model.User) error {
	if user.BranchID != nil {
		branch, err := s.branches.Get(ctx, *user.BranchID)
		if err != nil {
			if apperrors.Is(err, apperrors.ErrNotFound) {
				return apperrors.NewValidation("branch_id", "branch not found")
			}
			return err
		}
		if branch.ClinicID != user.ClinicID {
			return apperrors.NewIntegrity("branch belongs to another clinic")
		}
	}

	branches, err := s.branches.CountByClinic(ctx, user.ClinicID)
	if err != nil {
		return err
	}
	if field, err := user.ValidateAssignment(branches > 0); err != nil {
		return apperrors.NewValidation(field, err.Error())
	}
	return nil
}

func (s *Service) checkQuota(ctx context.Context, clinicID uuid.UUID) error {
	clinic, err := s.clinics.Get(ctx, clinicID)
	if err != nil {
		return err
	}
	count, err := s.repo.CountActiveTherapists(ctx, clinicID)
	if err != nil {
		return err
	}
	if count >= clinic.MaxTherapists {
		return apperrors.NewIntegrity(fmt.Sprintf("clinic reached its limit of %d therapists", clinic.MaxTherapists))
	}
	return nil
}

func sameBranch(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
