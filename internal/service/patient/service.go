package patient

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/physiocapture-api/internal/access"
	"github.com/jwalitptl/physiocapture-api/internal/model"
	"github.com/jwalitptl/physiocapture-api/internal/repository"
	"github.com/jwalitptl/physiocapture-api/internal/service/audit"
	apperrors "github.com/jwalitptl/physiocapture-api/pkg/errors"
	"github.com/jwalitptl/physiocapture-api/pkg/validator"
)

type Service struct {
	tx       repository.Transactor
	repo     repository.PatientRepository
	users    repository.UserRepository
	auditor  *audit.Service
	cpfScope model.CPFScope
}

func NewService(tx repository.Transactor, repo repository.PatientRepository, users repository.UserRepository,
	auditor *audit.Service, cpfScope model.CPFScope) *Service {
	if cpfScope == "" {
		cpfScope = model.CPFScopeClinic
	}
	return &Service{
		tx:       tx,
		repo:     repo,
		users:    users,
		auditor:  auditor,
		cpfScope: cpfScope,
	}
}

// Create registers a patient in the caller's clinic. A therapist creating a
// patient owns it unless another therapist is named.
func (s *Service) Create(ctx context.Context, caller *model.User, req *model.CreatePatientRequest) (interface{}, error) {
	therapistID := caller.ID
	if req.TherapistID != nil {
		id, err := uuid.Parse(*req.TherapistID)
		if err != nil {
			return nil, apperrors.NewValidation("therapist_id", "invalid therapist id")
		}
		therapistID = id
	} else if !caller.IsTherapist() {
		return nil, apperrors.NewValidation("therapist_id", "therapist_id is required")
	}

	therapist, err := s.therapist(ctx, caller, therapistID)
	if err != nil {
		return nil, err
	}
	if req.HasClinicalData() && !access.CanAccessClinicalData(caller) {
		return nil, apperrors.Forbidden("record clinical data")
	}

	cpf := validator.Digits(req.CPF)
	if !validator.ValidCPF(cpf) {
		return nil, apperrors.NewValidation("cpf", "invalid CPF")
	}
	taken, err := s.cpfTaken(ctx, caller, cpf)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, apperrors.NewIntegrity("a patient with this CPF already exists")
	}

	patient := &model.Patient{
		ClinicID:       caller.ClinicID,
		FullName:       strings.TrimSpace(req.FullName),
		CPF:            cpf,
		BirthDate:      req.BirthDate,
		Gender:         req.Gender,
		Phone:          req.Phone,
		Email:          req.Email,
		Address:        req.Address,
		ChiefComplaint: req.ChiefComplaint,
		BloodType:      req.BloodType,
		Allergies:      req.Allergies,
		Medications:    req.Medications,
		MedicalHistory: req.MedicalHistory,
		Notes:          req.Notes,
		Active:         true,
	}
	patient.AssignTo(therapist)

	if !access.CanAccessPatient(caller, patient) {
		return nil, apperrors.Forbidden("create a patient for this therapist")
	}

	if err := s.repo.Create(ctx, patient); err != nil {
		return nil, err
	}

	s.auditor.Record(ctx, caller, model.AuditActionCreate, model.AuditEntityPatient, patient.ID, patient.Summary())
	return s.view(caller, patient), nil
}

// Get returns the full record to callers with clinical access and the
// basic view to everyone else allowed to see the patient.
func (s *Service) Get(ctx context.Context, caller *model.User, id uuid.UUID) (interface{}, error) {
	patient, err := s.load(ctx, caller, id)
	if err != nil {
		return nil, err
	}
	return s.view(caller, patient), nil
}

// Load returns the patient after the basic access check. Other services use
// it to gate schedule and record operations.
func (s *Service) Load(ctx context.Context, caller *model.User, id uuid.UUID) (*model.Patient, error) {
	return s.load(ctx, caller, id)
}

// Update edits demographic and clinical fields. Therapist and branch never
// change here.
func (s *Service) Update(ctx context.Context, caller *model.User, id uuid.UUID, req *model.UpdatePatientRequest) (interface{}, error) {
	if req.FullName != nil && strings.TrimSpace(*req.FullName) == "" {
		return nil, apperrors.NewValidation("full_name", "full_name cannot be empty")
	}
	patient, err := s.mutate(ctx, caller, id, func(p *model.Patient) error {
		if req.HasClinicalData() && !access.CanAccessPatientClinicalData(caller, p) {
			return apperrors.Forbidden("edit clinical data of this patient")
		}
		req.Apply(p)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.auditor.Record(ctx, caller, model.AuditActionUpdate, model.AuditEntityPatient, patient.ID, req)
	return s.view(caller, patient), nil
}

// SetAvailableForTransfer flags a patient as open to a new therapist.
func (s *Service) SetAvailableForTransfer(ctx context.Context, caller *model.User, id uuid.UUID, available bool) (*model.PatientSummary, error) {
	patient, err := s.mutate(ctx, caller, id, func(p *model.Patient) error {
		if !access.CanTransferPatient(caller, p, nil) {
			return apperrors.Forbidden("change transfer availability of this patient")
		}
		p.AvailableForTransfer = available
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.auditor.Record(ctx, caller, model.AuditActionUpdate, model.AuditEntityPatient, patient.ID,
		model.JSONMap{"available_for_transfer": available})
	return patient.Summary(), nil
}

func (s *Service) Deactivate(ctx context.Context, caller *model.User, id uuid.UUID) error {
	patient, err := s.mutate(ctx, caller, id, func(p *model.Patient) error {
		if !caller.IsManager() {
			return apperrors.Forbidden("deactivate patients")
		}
		if !p.Active {
			return apperrors.NewStateConflict("patient", "inactive")
		}
		p.Active = false
		p.AvailableForTransfer = false
		return nil
	})
	if err != nil {
		return err
	}

	s.auditor.Record(ctx, caller, model.AuditActionDelete, model.AuditEntityPatient, patient.ID, nil)
	return nil
}

// mutate locks the patient row, checks access on the locked row, applies fn
// and stores the result in the same transaction. A transfer committed before
// the lock was granted is therefore seen by the checks.
func (s *Service) mutate(ctx context.Context, caller *model.User, id uuid.UUID, fn func(*model.Patient) error) (*model.Patient, error) {
	var patient *model.Patient
	err := s.tx.WithTx(ctx, func(tx *sqlx.Tx) error {
		var err error
		patient, err = s.repo.GetForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if !access.CanAccessPatient(caller, patient) {
			return apperrors.Forbidden("access this patient")
		}
		if err := fn(patient); err != nil {
			return err
		}
		return s.repo.Update(ctx, tx, patient)
	})
	if err != nil {
		return nil, err
	}
	return patient, nil
}

// List returns basic views of the patients the caller may see.
func (s *Service) List(ctx context.Context, caller *model.User, filter *model.PatientFilter) ([]*model.PatientSummary, int, error) {
	scope, ok := access.PatientScope(caller)
	if !ok {
		return nil, 0, apperrors.Forbidden("list patients")
	}
	patients, total, err := s.repo.List(ctx, scope, filter)
	if err != nil {
		return nil, 0, err
	}
	out := make([]*model.PatientSummary, 0, len(patients))
	for _, p := range patients {
		out = append(out, p.Summary())
	}
	return out, total, nil
}

func (s *Service) ListAvailableForTransfer(ctx context.Context, caller *model.User, filter *model.PatientFilter) ([]*model.PatientSummary, int, error) {
	available := true
	filter.ActiveOnly = true
	filter.AvailableForTransfer = &available
	return s.List(ctx, caller, filter)
}

// ValidateCPF checks the checksum and whether the CPF is still free in the
// configured scope.
func (s *Service) ValidateCPF(ctx context.Context, caller *model.User, cpf string) (*model.ValidateCPFResponse, error) {
	digits := validator.Digits(cpf)
	resp := &model.ValidateCPFResponse{CPF: digits}
	if !validator.ValidCPF(digits) {
		resp.Message = "invalid CPF"
		return resp, nil
	}
	resp.Valid = true

	taken, err := s.cpfTaken(ctx, caller, digits)
	if err != nil {
		return nil, err
	}
	resp.Available = !taken
	if taken {
		resp.Message = "a patient with this CPF already exists"
	}
	return resp, nil
}

func (s *Service) load(ctx context.Context, caller *model.User, id uuid.UUID) (*model.Patient, error) {
	patient, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !access.CanAccessPatient(caller, patient) {
		return nil, apperrors.Forbidden("access this patient")
	}
	return patient, nil
}

func (s *Service) view(caller *model.User, patient *model.Patient) interface{} {
	if access.CanAccessPatientClinicalData(caller, patient) {
		return patient
	}
	return patient.Summary()
}

func (s *Service) cpfTaken(ctx context.Context, caller *model.User, cpf string) (bool, error) {
	if s.cpfScope == model.CPFScopeGlobal {
		return s.repo.CPFExists(ctx, cpf, nil)
	}
	clinicID := caller.ClinicID
	return s.repo.CPFExists(ctx, cpf, &clinicID)
}

// therapist loads the user a new patient is assigned to.
func (s *Service) therapist(ctx context.Context, caller *model.User, id uuid.UUID) (*model.User, error) {
	therapist, err := s.users.Get(ctx, id)
	if err != nil {
		if apperrors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.NewValidation("therapist_id", "therapist not found")
		}
		return nil, err
	}
	if therapist.ClinicID != caller.ClinicID {
		return nil, apperrors.NewIntegrity("therapist belongs to another clinic")
	}
	if !therapist.IsTherapist() || !therapist.Active {
		return nil, apperrors.NewValidation("therapist_id", "patients can only be assigned to active therapists")
	}
	return therapist, nil
}
