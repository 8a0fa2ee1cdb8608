package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/physiocapture-api/internal/model"
)

// All repository interfaces in one file.
// Methods taking a *sqlx.Tx run inside it; a nil tx runs on the pool.
type (
	// Transactor runs fn in a single database transaction, rolling back on error or panic.
	Transactor interface {
		WithTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error
	}

	ClinicRepository interface {
		Create(ctx context.Context, tx *sqlx.Tx, clinic *model.Clinic) error
		Get(ctx context.Context, id uuid.UUID) (*model.Clinic, error)
		GetByTaxID(ctx context.Context, taxID string) (*model.Clinic, error)
	}

	BranchRepository interface {
		Create(ctx context.Context, branch *model.Branch) error
		Get(ctx context.Context, id uuid.UUID) (*model.Branch, error)
		ListByClinic(ctx context.Context, clinicID uuid.UUID) ([]*model.Branch, error)
		CountByClinic(ctx context.Context, clinicID uuid.UUID) (int, error)
	}

	UserRepository interface {
		Create(ctx context.Context, tx *sqlx.Tx, user *model.User) error
		Get(ctx context.Context, id uuid.UUID) (*model.User, error)
		GetByEmail(ctx context.Context, email string) (*model.User, error)
		Update(ctx context.Context, user *model.User) error
		List(ctx context.Context, scope model.Scope, filter *model.UserFilter) ([]*model.User, int, error)
		ListActiveTherapists(ctx context.Context, clinicID uuid.UUID) ([]*model.User, error)
		ListReviewers(ctx context.Context, clinicID uuid.UUID, branchIDs []uuid.UUID) ([]*model.User, error)
		CountActiveTherapists(ctx context.Context, clinicID uuid.UUID) (int, error)
	}

	PatientRepository interface {
		Create(ctx context.Context, patient *model.Patient) error
		Get(ctx context.Context, id uuid.UUID) (*model.Patient, error)
		GetForUpdate(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) (*model.Patient, error)
		Update(ctx context.Context, tx *sqlx.Tx, patient *model.Patient) error
		UpdateAssignment(ctx context.Context, tx *sqlx.Tx, patient *model.Patient) error
		List(ctx context.Context, scope model.Scope, filter *model.PatientFilter) ([]*model.Patient, int, error)
		// CPFExists checks uniqueness within clinicID, or globally when clinicID is nil.
		CPFExists(ctx context.Context, cpf string, clinicID *uuid.UUID) (bool, error)
		// CountByTherapist counts the patients, active or not, assigned to therapistID.
		CountByTherapist(ctx context.Context, therapistID uuid.UUID) (int, error)
	}

	TransferHistoryRepository interface {
		Create(ctx context.Context, tx *sqlx.Tx, entry *model.PatientTransferHistory) error
		ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*model.PatientTransferHistory, error)
	}

	TransferRequestRepository interface {
		Create(ctx context.Context, tx *sqlx.Tx, req *model.TransferRequest) error
		Get(ctx context.Context, id uuid.UUID) (*model.TransferRequest, error)
		GetForUpdate(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) (*model.TransferRequest, error)
		// UpdateReview stores a transition out of PENDING; it fails if the row is no longer PENDING.
		UpdateReview(ctx context.Context, tx *sqlx.Tx, req *model.TransferRequest) error
		HasPending(ctx context.Context, tx *sqlx.Tx, patientID uuid.UUID) (bool, error)
		List(ctx context.Context, scope model.TransferRequestScope, filter *model.TransferRequestFilter) ([]*model.TransferRequest, int, error)
	}

	MedicalRecordRepository interface {
		Create(ctx context.Context, record *model.MedicalRecord) error
		ListByPatient(ctx context.Context, patientID uuid.UUID, page model.Pagination) ([]*model.MedicalRecord, int, error)
	}

	AppointmentRepository interface {
		Create(ctx context.Context, appointment *model.Appointment) error
		Get(ctx context.Context, id uuid.UUID) (*model.Appointment, error)
		Update(ctx context.Context, appointment *model.Appointment) error
		List(ctx context.Context, scope model.Scope, filter *model.AppointmentFilter) ([]*model.Appointment, int, error)
		HasConflict(ctx context.Context, therapistID uuid.UUID, start, end time.Time, excludeID *uuid.UUID) (bool, error)
	}

	AuditRepository interface {
		Create(ctx context.Context, log *model.AuditLog) error
		ListByEntity(ctx context.Context, entityType string, entityID uuid.UUID) ([]*model.AuditLog, error)
		Cleanup(ctx context.Context, before time.Time) (int64, error)
	}

	OutboxRepository interface {
		Transactor
		Create(ctx context.Context, tx *sqlx.Tx, event *model.OutboxEvent) error
		GetPendingEventsWithLock(ctx context.Context, tx *sqlx.Tx, limit int) ([]*model.OutboxEvent, error)
		UpdateStatus(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, status model.OutboxStatus, errorMessage *string, retryAt *time.Time) error
		DeleteProcessedBefore(ctx context.Context, before time.Time) (int64, error)
	}
)
