package medical

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/jwalitptl/physiocapture-api/internal/access"
	"github.com/jwalitptl/physiocapture-api/internal/model"
	"github.com/jwalitptl/physiocapture-api/internal/repository"
	"github.com/jwalitptl/physiocapture-api/internal/service/audit"
	apperrors "github.com/jwalitptl/physiocapture-api/pkg/errors"
)

type Service struct {
	repo     repository.MedicalRecordRepository
	patients repository.PatientRepository
	auditor  *audit.Service
}

func NewService(repo repository.MedicalRecordRepository, patients repository.PatientRepository, auditor *audit.Service) *Service {
	return &Service{
		repo:     repo,
		patients: patients,
		auditor:  auditor,
	}
}

func (s *Service) Add(ctx context.Context, caller *model.User, patientID uuid.UUID, req *model.CreateMedicalRecordRequest) (*model.MedicalRecord, error) {
	if _, err := s.patient(ctx, caller, patientID); err != nil {
		return nil, err
	}
	if err := validateRecord(req); err != nil {
		return nil, err
	}

	record := &model.MedicalRecord{
		PatientID: patientID,
		AuthorID:  caller.ID,
		Type:      model.MedicalRecordType(req.Type),
		Title:     strings.TrimSpace(req.Title),
		Content:   req.Content,
	}
	if err := s.repo.Create(ctx, record); err != nil {
		return nil, err
	}

	// content stays out of the audit trail
	s.auditor.Record(ctx, caller, model.AuditActionCreate, model.AuditEntityMedicalRecord, record.ID,
		model.JSONMap{"patient_id": patientID, "record_type": record.Type})
	return record, nil
}

func (s *Service) List(ctx context.Context, caller *model.User, patientID uuid.UUID, page model.Pagination) ([]*model.MedicalRecord, int, error) {
	if _, err := s.patient(ctx, caller, patientID); err != nil {
		return nil, 0, err
	}
	return s.repo.ListByPatient(ctx, patientID, page)
}

func (s *Service) patient(ctx context.Context, caller *model.User, id uuid.UUID) (*model.Patient, error) {
	patient, err := s.patients.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !access.CanAccessPatientClinicalData(caller, patient) {
		return nil, apperrors.Forbidden("access clinical data of this patient")
	}
	return patient, nil
}

func validateRecord(req *model.CreateMedicalRecordRequest) error {
	switch model.MedicalRecordType(req.Type) {
	case model.RecordTypeEvaluation, model.RecordTypeEvolution, model.RecordTypeDischarge, model.RecordTypeNote:
	default:
		return apperrors.NewValidation("record_type", "unsupported record type")
	}
	if strings.TrimSpace(req.Title) == "" {
		return apperrors.NewValidation("title", "title is required")
	}
	if strings.TrimSpace(req.Content) == "" {
		return apperrors.NewValidation("content", "content is required")
	}
	return nil
}
