// Package transfer moves patients between therapists, either directly or
// through the approval-gated transfer request workflow.
package transfer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/physiocapture-api/internal/access"
	"github.com/jwalitptl/physiocapture-api/internal/model"
	"github.com/jwalitptl/physiocapture-api/internal/repository"
	"github.com/jwalitptl/physiocapture-api/internal/service/audit"
	apperrors "github.com/jwalitptl/physiocapture-api/pkg/errors"
	"github.com/jwalitptl/physiocapture-api/pkg/metrics"
)

type Service struct {
	tx       repository.Transactor
	patients repository.PatientRepository
	users    repository.UserRepository
	history  repository.TransferHistoryRepository
	requests repository.TransferRequestRepository
	outbox   repository.OutboxRepository
	auditor  *audit.Service
	metrics  *metrics.Metrics
	now      func() time.Time
}

func NewService(
	tx repository.Transactor,
	patients repository.PatientRepository,
	users repository.UserRepository,
	history repository.TransferHistoryRepository,
	requests repository.TransferRequestRepository,
	outbox repository.OutboxRepository,
	auditor *audit.Service,
	metrics *metrics.Metrics,
) *Service {
	return &Service{
		tx:       tx,
		patients: patients,
		users:    users,
		history:  history,
		requests: requests,
		outbox:   outbox,
		auditor:  auditor,
		metrics:  metrics,
		now:      time.Now,
	}
}

// TransferPatient reassigns a patient directly. The patient row is locked and
// every check runs against the locked row.
func (s *Service) TransferPatient(ctx context.Context, caller *model.User, patientID, therapistID uuid.UUID, reason string) (patient *model.Patient, err error) {
	defer func() { s.metrics.ObserveTransfer("direct", err) }()

	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, apperrors.NewValidation("reason", "reason is required")
	}
	target, err := s.targetTherapist(ctx, caller, therapistID)
	if err != nil {
		return nil, err
	}

	var entry *model.PatientTransferHistory
	err = s.tx.WithTx(ctx, func(tx *sqlx.Tx) error {
		patient, err = s.patients.GetForUpdate(ctx, tx, patientID)
		if err != nil {
			return err
		}
		if !access.CanTransferPatient(caller, patient, target.BranchID) {
			return apperrors.Forbidden("transfer this patient")
		}
		if patient.TherapistID == target.ID {
			return apperrors.NewValidation("to_therapist_id", "patient is already assigned to this therapist")
		}

		pending, err := s.requests.HasPending(ctx, tx, patient.ID)
		if err != nil {
			return err
		}
		if pending {
			return apperrors.NewIntegrity("patient has a pending transfer request")
		}

		entry, err = s.reassign(ctx, tx, caller, patient, target, reason, nil)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.auditor.Record(ctx, caller, model.AuditActionTransfer, model.AuditEntityPatient, patient.ID, entry)
	return patient, nil
}

// reassign performs the ownership change inside tx: snapshot, move the patient
// with its therapist, append one history row and queue the event.
func (s *Service) reassign(ctx context.Context, tx *sqlx.Tx, actor *model.User, patient *model.Patient, target *model.User, reason string, requestID *uuid.UUID) (*model.PatientTransferHistory, error) {
	if patient.ClinicID != target.ClinicID {
		return nil, apperrors.NewIntegrity("patient and therapist belong to different clinics")
	}

	entry := &model.PatientTransferHistory{
		ID:              uuid.New(),
		PatientID:       patient.ID,
		FromTherapistID: patient.TherapistID,
		ToTherapistID:   target.ID,
		FromBranchID:    patient.BranchID,
		ToBranchID:      target.BranchID,
		Reason:          reason,
		TransferredBy:   actor.ID,
	}

	patient.AssignTo(target)
	patient.AvailableForTransfer = false
	if err := s.patients.UpdateAssignment(ctx, tx, patient); err != nil {
		return nil, err
	}
	if err := s.history.Create(ctx, tx, entry); err != nil {
		return nil, err
	}

	status := model.TransferStatus("")
	if requestID != nil {
		status = model.TransferStatusApproved
	}
	event := model.TransferEvent{
		ClinicID:      patient.ClinicID,
		PatientID:     patient.ID,
		RequestID:     requestID,
		Status:        status,
		FromTherapist: entry.FromTherapistID,
		ToTherapist:   entry.ToTherapistID,
		FromBranchID:  entry.FromBranchID,
		ToBranchID:    entry.ToBranchID,
		ActorID:       actor.ID,
		Reason:        reason,
		OccurredAt:    s.now().UTC(),
	}
	if err := s.enqueue(ctx, tx, model.EventPatientTransferred, event); err != nil {
		return nil, err
	}
	return entry, nil
}

// CreateRequest opens a PENDING transfer request for a patient the caller owns.
func (s *Service) CreateRequest(ctx context.Context, caller *model.User, patientID, therapistID uuid.UUID, reason string) (req *model.TransferRequest, err error) {
	defer func() { s.metrics.ObserveTransfer("request", err) }()

	if !caller.IsTherapist() {
		return nil, apperrors.Forbidden("request a patient transfer")
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, apperrors.NewValidation("reason", "reason is required")
	}
	if therapistID == caller.ID {
		return nil, apperrors.NewValidation("to_therapist_id", "cannot transfer a patient to yourself")
	}
	target, err := s.targetTherapist(ctx, caller, therapistID)
	if err != nil {
		return nil, err
	}

	err = s.tx.WithTx(ctx, func(tx *sqlx.Tx) error {
		patient, err := s.patients.GetForUpdate(ctx, tx, patientID)
		if err != nil {
			return err
		}
		if patient.ClinicID != caller.ClinicID {
			return apperrors.Forbidden("access this patient")
		}
		if patient.TherapistID != caller.ID {
			return apperrors.NewValidation("patient_id", "only the patient's current therapist can request a transfer")
		}
		if patient.ClinicID != target.ClinicID {
			return apperrors.NewIntegrity("patient and therapist belong to different clinics")
		}

		pending, err := s.requests.HasPending(ctx, tx, patient.ID)
		if err != nil {
			return err
		}
		if pending {
			return apperrors.NewIntegrity("patient already has a pending transfer request")
		}

		req = &model.TransferRequest{
			PatientID:     patient.ID,
			ClinicID:      patient.ClinicID,
			RequestedBy:   caller.ID,
			FromBranchID:  patient.BranchID,
			ToTherapistID: target.ID,
			ToBranchID:    target.BranchID,
			Reason:        reason,
			Status:        model.TransferStatusPending,
		}
		if err := s.requests.Create(ctx, tx, req); err != nil {
			return err
		}
		return s.enqueue(ctx, tx, model.EventTransferRequestCreated, s.requestEvent(req, patient.TherapistID, caller))
	})
	if err != nil {
		return nil, err
	}

	s.auditor.Record(ctx, caller, model.AuditActionRequest, model.AuditEntityTransferRequest, req.ID, req)
	return req, nil
}

// Approve flips a PENDING request to APPROVED and performs the transfer in
// the same transaction.
func (s *Service) Approve(ctx context.Context, caller *model.User, requestID uuid.UUID, note string) (req *model.TransferRequest, err error) {
	defer func() { s.metrics.ObserveTransfer("approve", err) }()

	err = s.tx.WithTx(ctx, func(tx *sqlx.Tx) error {
		req, err = s.lockPending(ctx, tx, requestID)
		if err != nil {
			return err
		}
		if !access.CanReviewTransfer(caller, req) {
			return apperrors.Forbidden("review this transfer request")
		}

		patient, err := s.patients.GetForUpdate(ctx, tx, req.PatientID)
		if err != nil {
			return err
		}
		if patient.TherapistID != req.RequestedBy {
			return apperrors.NewStateConflict("patient assignment", "changed since the request was made")
		}
		target, err := s.targetTherapist(ctx, caller, req.ToTherapistID)
		if err != nil {
			return err
		}

		s.review(req, caller, model.TransferStatusApproved, note)
		if err := s.requests.UpdateReview(ctx, tx, req); err != nil {
			return err
		}
		from := patient.TherapistID
		if _, err := s.reassign(ctx, tx, caller, patient, target, req.Reason, &req.ID); err != nil {
			return err
		}
		return s.enqueue(ctx, tx, model.EventTransferRequestApproved, s.requestEvent(req, from, caller))
	})
	if err != nil {
		return nil, err
	}

	s.auditor.Record(ctx, caller, model.AuditActionApprove, model.AuditEntityTransferRequest, req.ID, req)
	return req, nil
}

// Reject closes a PENDING request. The note is mandatory.
func (s *Service) Reject(ctx context.Context, caller *model.User, requestID uuid.UUID, note string) (req *model.TransferRequest, err error) {
	defer func() { s.metrics.ObserveTransfer("reject", err) }()

	err = s.tx.WithTx(ctx, func(tx *sqlx.Tx) error {
		req, err = s.lockPending(ctx, tx, requestID)
		if err != nil {
			return err
		}
		if !access.CanReviewTransfer(caller, req) {
			return apperrors.Forbidden("review this transfer request")
		}
		if strings.TrimSpace(note) == "" {
			return apperrors.NewValidation("note", "a note is required to reject a transfer request")
		}

		s.review(req, caller, model.TransferStatusRejected, note)
		if err := s.requests.UpdateReview(ctx, tx, req); err != nil {
			return err
		}
		return s.enqueue(ctx, tx, model.EventTransferRequestRejected, s.requestEvent(req, req.RequestedBy, caller))
	})
	if err != nil {
		return nil, err
	}

	s.auditor.Record(ctx, caller, model.AuditActionReject, model.AuditEntityTransferRequest, req.ID, req)
	return req, nil
}

// Cancel withdraws a PENDING request. Only its requester may do so.
func (s *Service) Cancel(ctx context.Context, caller *model.User, requestID uuid.UUID) (req *model.TransferRequest, err error) {
	defer func() { s.metrics.ObserveTransfer("cancel", err) }()

	err = s.tx.WithTx(ctx, func(tx *sqlx.Tx) error {
		req, err = s.lockPending(ctx, tx, requestID)
		if err != nil {
			return err
		}
		if !access.CanCancelTransfer(caller, req) {
			return apperrors.Forbidden("cancel this transfer request")
		}

		req.Status = model.TransferStatusCancelled
		if err := s.requests.UpdateReview(ctx, tx, req); err != nil {
			return err
		}
		return s.enqueue(ctx, tx, model.EventTransferRequestCancelled, s.requestEvent(req, req.RequestedBy, caller))
	})
	if err != nil {
		return nil, err
	}

	s.auditor.Record(ctx, caller, model.AuditActionCancel, model.AuditEntityTransferRequest, req.ID, req)
	return req, nil
}

func (s *Service) GetRequest(ctx context.Context, caller *model.User, requestID uuid.UUID) (*model.TransferRequest, error) {
	req, err := s.requests.Get(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if !access.CanViewTransferRequest(caller, req) {
		return nil, apperrors.Forbidden("view this transfer request")
	}
	return req, nil
}

func (s *Service) ListRequests(ctx context.Context, caller *model.User, filter *model.TransferRequestFilter) ([]*model.TransferRequest, int, error) {
	scope, ok := access.TransferRequestScope(caller)
	if !ok {
		return nil, 0, apperrors.Forbidden("list transfer requests")
	}
	return s.requests.List(ctx, scope, filter)
}

// History lists completed transfers of a patient, newest first.
func (s *Service) History(ctx context.Context, caller *model.User, patientID uuid.UUID) ([]*model.PatientTransferHistory, error) {
	patient, err := s.patients.Get(ctx, patientID)
	if err != nil {
		return nil, err
	}
	if !access.CanAccessPatient(caller, patient) {
		return nil, apperrors.Forbidden("access this patient")
	}
	return s.history.ListByPatient(ctx, patientID)
}

// lockPending loads the request under lock and requires PENDING.
func (s *Service) lockPending(ctx context.Context, tx *sqlx.Tx, requestID uuid.UUID) (*model.TransferRequest, error) {
	req, err := s.requests.GetForUpdate(ctx, tx, requestID)
	if err != nil {
		return nil, err
	}
	if req.Status != model.TransferStatusPending {
		return nil, apperrors.NewStateConflict("transfer request", string(req.Status))
	}
	return req, nil
}

func (s *Service) review(req *model.TransferRequest, reviewer *model.User, status model.TransferStatus, note string) {
	now := s.now().UTC()
	req.Status = status
	req.ReviewedBy = &reviewer.ID
	req.ReviewedAt = &now
	if note = strings.TrimSpace(note); note != "" {
		req.ReviewNote = &note
	}
}

// targetTherapist loads the user a patient would move to and checks it can own patients.
func (s *Service) targetTherapist(ctx context.Context, caller *model.User, id uuid.UUID) (*model.User, error) {
	target, err := s.users.Get(ctx, id)
	if err != nil {
		if apperrors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.NewValidation("to_therapist_id", "target therapist not found")
		}
		return nil, err
	}
	if target.ClinicID != caller.ClinicID {
		return nil, apperrors.NewIntegrity("target therapist belongs to another clinic")
	}
	if !target.IsTherapist() {
		return nil, apperrors.NewValidation("to_therapist_id", "target user is not a therapist")
	}
	if !target.Active {
		return nil, apperrors.NewValidation("to_therapist_id", "target therapist is inactive")
	}
	return target, nil
}

func (s *Service) requestEvent(req *model.TransferRequest, fromTherapist uuid.UUID, actor *model.User) model.TransferEvent {
	return model.TransferEvent{
		ClinicID:      req.ClinicID,
		PatientID:     req.PatientID,
		RequestID:     &req.ID,
		Status:        req.Status,
		FromTherapist: fromTherapist,
		ToTherapist:   req.ToTherapistID,
		FromBranchID:  req.FromBranchID,
		ToBranchID:    req.ToBranchID,
		ActorID:       actor.ID,
		Reason:        req.Reason,
		OccurredAt:    s.now().UTC(),
	}
}

func (s *Service) enqueue(ctx context.Context, tx *sqlx.Tx, eventType string, payload model.TransferEvent) error {
	event, err := model.NewOutboxEvent(eventType, payload)
	if err != nil {
		return fmt.Errorf("failed to build %s event: %w", eventType, err)
	}
	return s.outbox.Create(ctx, tx, event)
}
