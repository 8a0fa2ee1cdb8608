// Package tenant manages clinics and their branches.
package tenant

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/physiocapture-api/internal/access"
	"github.com/jwalitptl/physiocapture-api/internal/model"
	"github.com/jwalitptl/physiocapture-api/internal/repository"
	"github.com/jwalitptl/physiocapture-api/internal/service/audit"
	"github.com/jwalitptl/physiocapture-api/internal/service/user"
	apperrors "github.com/jwalitptl/physiocapture-api/pkg/errors"
	"github.com/jwalitptl/physiocapture-api/pkg/security"
	"github.com/jwalitptl/physiocapture-api/pkg/validator"
)

type Service struct {
	tx       repository.Transactor
	clinics  repository.ClinicRepository
	branches repository.BranchRepository
	users    repository.UserRepository
	hasher   security.PasswordHasher
	auditor  *audit.Service
}

func NewService(tx repository.Transactor, clinics repository.ClinicRepository, branches repository.BranchRepository,
	users repository.UserRepository, hasher security.PasswordHasher, auditor *audit.Service) *Service {
	return &Service{
		tx:       tx,
		clinics:  clinics,
		branches: branches,
		users:    users,
		hasher:   hasher,
		auditor:  auditor,
	}
}

// CreateClinic provisions a tenant together with its first network manager.
// It is only reachable from the operator CLI.
func (s *Service) CreateClinic(ctx context.Context, req *model.CreateClinicRequest) (*model.Clinic, *model.User, error) {
	taxID := validator.Digits(req.TaxID)
	if !validator.ValidCNPJ(taxID) {
		return nil, nil, apperrors.NewValidation("tax_id", "invalid CNPJ")
	}
	if strings.TrimSpace(req.Name) == "" {
		return nil, nil, apperrors.NewValidation("name", "name is required")
	}
	if _, err := s.clinics.GetByTaxID(ctx, taxID); err == nil {
		return nil, nil, apperrors.NewIntegrity("a clinic with this CNPJ already exists")
	} else if !apperrors.Is(err, apperrors.ErrNotFound) {
		return nil, nil, err
	}

	maxTherapists := req.MaxTherapists
	if maxTherapists <= 0 {
		maxTherapists = model.DefaultMaxTherapists
	}
	clinic := &model.Clinic{
		Name:          strings.TrimSpace(req.Name),
		LegalName:     strings.TrimSpace(req.LegalName),
		TaxID:         taxID,
		Active:        true,
		MaxTherapists: maxTherapists,
	}
	clinic.ID = uuid.New()

	managerReq := req.Manager
	managerReq.Role = string(model.RoleNetworkManager)
	managerReq.BranchID = nil
	manager, err := user.NewStaff(clinic.ID, &managerReq)
	if err != nil {
		return nil, nil, err
	}
	if manager.Email == "" || manager.Name == "" {
		return nil, nil, apperrors.NewValidation("manager", "manager name and email are required")
	}
	if err := user.HashPassword(s.hasher, manager, managerReq.Password); err != nil {
		return nil, nil, err
	}

	err = s.tx.WithTx(ctx, func(tx *sqlx.Tx) error {
		if err := s.clinics.Create(ctx, tx, clinic); err != nil {
			return err
		}
		return s.users.Create(ctx, tx, manager)
	})
	if err != nil {
		return nil, nil, err
	}

	s.auditor.Record(ctx, manager, model.AuditActionCreate, model.AuditEntityClinic, clinic.ID, clinic)
	return clinic, manager, nil
}

func (s *Service) CreateBranch(ctx context.Context, caller *model.User, req *model.CreateBranchRequest) (*model.Branch, error) {
	if !access.CanManageBranches(caller) {
		return nil, apperrors.Forbidden("create branches")
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, apperrors.NewValidation("name", "name is required")
	}

	branch := &model.Branch{ClinicID: caller.ClinicID, Name: name, Active: true}
	if err := s.branches.Create(ctx, branch); err != nil {
		return nil, err
	}

	s.auditor.Record(ctx, caller, model.AuditActionCreate, model.AuditEntityBranch, branch.ID, branch)
	return branch, nil
}

func (s *Service) GetBranch(ctx context.Context, caller *model.User, id uuid.UUID) (*model.Branch, error) {
	branch, err := s.branches.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !access.CanAccessFilial(caller, branch) {
		return nil, apperrors.Forbidden("access this branch")
	}
	return branch, nil
}

// ListBranches returns the branches of the caller's clinic the caller may see.
func (s *Service) ListBranches(ctx context.Context, caller *model.User) ([]*model.Branch, error) {
	if caller == nil {
		return nil, apperrors.Forbidden("list branches")
	}
	branches, err := s.branches.ListByClinic(ctx, caller.ClinicID)
	if err != nil {
		return nil, err
	}
	out := make([]*model.Branch, 0, len(branches))
	for _, b := range branches {
		if access.CanAccessFilial(caller, b) {
			out = append(out, b)
		}
	}
	return out, nil
}
