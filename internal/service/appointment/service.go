package appointment

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/physiocapture-api/internal/access"
	"github.com/jwalitptl/physiocapture-api/internal/model"
	"github.com/jwalitptl/physiocapture-api/internal/repository"
	"github.com/jwalitptl/physiocapture-api/internal/service/audit"
	apperrors "github.com/jwalitptl/physiocapture-api/pkg/errors"
)

const (
	MinAppointmentDuration = 15 * time.Minute
	MaxAppointmentDuration = 4 * time.Hour
)

type Service struct {
	repo     repository.AppointmentRepository
	patients repository.PatientRepository
	auditor  *audit.Service
	now      func() time.Time
}

func NewService(repo repository.AppointmentRepository, patients repository.PatientRepository, auditor *audit.Service) *Service {
	return &Service{
		repo:     repo,
		patients: patients,
		auditor:  auditor,
		now:      time.Now,
	}
}

func (s *Service) validateAppointmentTime(start, end time.Time) error {
	if start.Before(s.now()) {
		return apperrors.NewValidation("starts_at", "appointment cannot be scheduled in the past")
	}
	duration := end.Sub(start)
	if duration < MinAppointmentDuration {
		return apperrors.NewValidation("ends_at", fmt.Sprintf("appointment duration must be at least %v", MinAppointmentDuration))
	}
	if duration > MaxAppointmentDuration {
		return apperrors.NewValidation("ends_at", fmt.Sprintf("appointment duration cannot exceed %v", MaxAppointmentDuration))
	}
	return nil
}

// Create books the patient with their current therapist, in the patient's branch.
func (s *Service) Create(ctx context.Context, caller *model.User, req *model.CreateAppointmentRequest) (*model.Appointment, error) {
	if !access.CanManageSchedule(caller) {
		return nil, apperrors.Forbidden("manage the schedule")
	}
	patientID, err := uuid.Parse(req.PatientID)
	if err != nil {
		return nil, apperrors.NewValidation("patient_id", "invalid patient id")
	}
	patient, err := s.patient(ctx, caller, patientID)
	if err != nil {
		return nil, err
	}
	if !patient.Active {
		return nil, apperrors.NewStateConflict("patient", "inactive")
	}
	if err := s.validateAppointmentTime(req.StartsAt, req.EndsAt); err != nil {
		return nil, err
	}
	if err := s.checkConflict(ctx, patient.TherapistID, req.StartsAt, req.EndsAt, nil); err != nil {
		return nil, err
	}

	apt := &model.Appointment{
		ClinicID:    patient.ClinicID,
		BranchID:    patient.BranchID,
		PatientID:   patient.ID,
		TherapistID: patient.TherapistID,
		StartsAt:    req.StartsAt.UTC(),
		EndsAt:      req.EndsAt.UTC(),
		Status:      model.AppointmentStatusScheduled,
		Notes:       req.Notes,
		CreatedBy:   caller.ID,
	}
	if err := s.repo.Create(ctx, apt); err != nil {
		return nil, err
	}

	s.auditor.Record(ctx, caller, model.AuditActionCreate, model.AuditEntityAppointment, apt.ID, apt)
	return apt, nil
}

func (s *Service) Reschedule(ctx context.Context, caller *model.User, id uuid.UUID, req *model.RescheduleAppointmentRequest) (*model.Appointment, error) {
	apt, err := s.loadScheduled(ctx, caller, id)
	if err != nil {
		return nil, err
	}
	if err := s.validateAppointmentTime(req.StartsAt, req.EndsAt); err != nil {
		return nil, err
	}
	if err := s.checkConflict(ctx, apt.TherapistID, req.StartsAt, req.EndsAt, &apt.ID); err != nil {
		return nil, err
	}

	apt.StartsAt = req.StartsAt.UTC()
	apt.EndsAt = req.EndsAt.UTC()
	if err := s.repo.Update(ctx, apt); err != nil {
		return nil, err
	}

	s.auditor.Record(ctx, caller, model.AuditActionUpdate, model.AuditEntityAppointment, apt.ID, req)
	return apt, nil
}

func (s *Service) Cancel(ctx context.Context, caller *model.User, id uuid.UUID, reason string) (*model.Appointment, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, apperrors.NewValidation("reason", "reason is required")
	}
	apt, err := s.loadScheduled(ctx, caller, id)
	if err != nil {
		return nil, err
	}

	apt.Status = model.AppointmentStatusCancelled
	apt.CancelReason = &reason
	if err := s.repo.Update(ctx, apt); err != nil {
		return nil, err
	}

	s.auditor.Record(ctx, caller, model.AuditActionUpdate, model.AuditEntityAppointment, apt.ID,
		model.JSONMap{"status": apt.Status, "reason": reason})
	return apt, nil
}

// List returns the schedule entries the caller may see. Therapists only see their own.
func (s *Service) List(ctx context.Context, caller *model.User, filter *model.AppointmentFilter) ([]*model.Appointment, int, error) {
	scope, ok := access.ScheduleScope(caller)
	if !ok {
		return nil, 0, apperrors.Forbidden("view the schedule")
	}
	return s.repo.List(ctx, scope, filter)
}

// loadScheduled loads an appointment for a write and requires it to be open.
func (s *Service) loadScheduled(ctx context.Context, caller *model.User, id uuid.UUID) (*model.Appointment, error) {
	if !access.CanManageSchedule(caller) {
		return nil, apperrors.Forbidden("manage the schedule")
	}
	apt, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := s.patient(ctx, caller, apt.PatientID); err != nil {
		return nil, err
	}
	if apt.Status != model.AppointmentStatusScheduled {
		return nil, apperrors.NewStateConflict("appointment", string(apt.Status))
	}
	return apt, nil
}

func (s *Service) patient(ctx context.Context, caller *model.User, id uuid.UUID) (*model.Patient, error) {
	patient, err := s.patients.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !access.CanAccessPatient(caller, patient) {
		return nil, apperrors.Forbidden("schedule this patient")
	}
	return patient, nil
}

func (s *Service) checkConflict(ctx context.Context, therapistID uuid.UUID, start, end time.Time, exclude *uuid.UUID) error {
	conflict, err := s.repo.HasConflict(ctx, therapistID, start, end, exclude)
	if err != nil {
		return err
	}
	if conflict {
		return apperrors.NewIntegrity("therapist already has an appointment in this slot")
	}
	return nil
}
