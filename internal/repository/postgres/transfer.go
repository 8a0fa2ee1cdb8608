package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/physiocapture-api/internal/model"
	"github.com/jwalitptl/physiocapture-api/internal/repository"
	apperrors "github.com/jwalitptl/physiocapture-api/pkg/errors"
)

type transferHistoryRepository struct {
	BaseRepository
}

func NewTransferHistoryRepository(base BaseRepository) repository.TransferHistoryRepository {
	return &transferHistoryRepository{base}
}

func (r *transferHistoryRepository) Create(ctx context.Context, tx *sqlx.Tx, entry *model.PatientTransferHistory) error {
	query := `
		INSERT INTO patient_transfer_history (
			id, patient_id, from_therapist_id, to_therapist_id,
			from_branch_id, to_branch_id, reason, transferred_by, transferred_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	entry.TransferredAt = time.Now().UTC()

	_, err := r.ext(tx).ExecContext(ctx, query,
		entry.ID,
		entry.PatientID,
		entry.FromTherapistID,
		entry.ToTherapistID,
		entry.FromBranchID,
		entry.ToBranchID,
		entry.Reason,
		entry.TransferredBy,
		entry.TransferredAt,
	)
	return wrapError(err, "transfer history", "create")
}

func (r *transferHistoryRepository) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*model.PatientTransferHistory, error) {
	entries := []*model.PatientTransferHistory{}
	query := `
		SELECT id, patient_id, from_therapist_id, to_therapist_id, from_branch_id,
			to_branch_id, reason, transferred_by, transferred_at
		FROM patient_transfer_history
		WHERE patient_id = $1
		ORDER BY transferred_at DESC
	`
	if err := r.db.SelectContext(ctx, &entries, query, patientID); err != nil {
		return nil, wrapError(err, "transfer history", "list")
	}
	return entries, nil
}

type transferRequestRepository struct {
	BaseRepository
}

func NewTransferRequestRepository(base BaseRepository) repository.TransferRequestRepository {
	return &transferRequestRepository{base}
}

const transferRequestColumns = `id, patient_id, clinic_id, requested_by, from_branch_id,
	to_therapist_id, to_branch_id, reason, status, reviewed_by, review_note, reviewed_at,
	created_at, updated_at`

func (r *transferRequestRepository) Create(ctx context.Context, tx *sqlx.Tx, req *model.TransferRequest) error {
	query := `
		INSERT INTO transfer_requests (` + transferRequestColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`
	if req.ID == uuid.Nil {
		req.ID = uuid.New()
	}
	req.CreatedAt = time.Now().UTC()
	req.UpdatedAt = req.CreatedAt

	_, err := r.ext(tx).ExecContext(ctx, query,
		req.ID,
		req.PatientID,
		req.ClinicID,
		req.RequestedBy,
		req.FromBranchID,
		req.ToTherapistID,
		req.ToBranchID,
		req.Reason,
		req.Status,
		req.ReviewedBy,
		req.ReviewNote,
		req.ReviewedAt,
		req.CreatedAt,
		req.UpdatedAt,
	)
	return wrapError(err, "pending transfer request", "create")
}

func (r *transferRequestRepository) Get(ctx context.Context, id uuid.UUID) (*model.TransferRequest, error) {
	var req model.TransferRequest
	query := `SELECT ` + transferRequestColumns + ` FROM transfer_requests WHERE id = $1`
	if err := r.db.GetContext(ctx, &req, query, id); err != nil {
		return nil, wrapError(err, "transfer request", "get")
	}
	return &req, nil
}

func (r *transferRequestRepository) GetForUpdate(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) (*model.TransferRequest, error) {
	var req model.TransferRequest
	query := `SELECT ` + transferRequestColumns + ` FROM transfer_requests WHERE id = $1 FOR UPDATE`
	if err := sqlx.GetContext(ctx, r.ext(tx), &req, query, id); err != nil {
		return nil, wrapError(err, "transfer request", "lock")
	}
	return &req, nil
}

func (r *transferRequestRepository) UpdateReview(ctx context.Context, tx *sqlx.Tx, req *model.TransferRequest) error {
	query := `
		UPDATE transfer_requests
		SET status = $1, reviewed_by = $2, review_note = $3, reviewed_at = $4, updated_at = $5
		WHERE id = $6 AND status = $7
	`
	req.UpdatedAt = time.Now().UTC()

	result, err := r.ext(tx).ExecContext(ctx, query,
		req.Status,
		req.ReviewedBy,
		req.ReviewNote,
		req.ReviewedAt,
		req.UpdatedAt,
		req.ID,
		model.TransferStatusPending,
	)
	if err != nil {
		return wrapError(err, "transfer request", "update")
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return wrapError(err, "transfer request", "update")
	}
	if rows == 0 {
		// Lost the race to another reviewer; report what the request is now.
		var status model.TransferStatus
		query := `SELECT status FROM transfer_requests WHERE id = $1`
		if err := sqlx.GetContext(ctx, r.ext(tx), &status, query, req.ID); err != nil {
			return wrapError(err, "transfer request", "get")
		}
		return apperrors.NewStateConflict("transfer request", string(status))
	}
	return nil
}

func (r *transferRequestRepository) HasPending(ctx context.Context, tx *sqlx.Tx, patientID uuid.UUID) (bool, error) {
	var exists bool
	query := `SELECT EXISTS (SELECT 1 FROM transfer_requests WHERE patient_id = $1 AND status = $2)`
	if err := sqlx.GetContext(ctx, r.ext(tx), &exists, query, patientID, model.TransferStatusPending); err != nil {
		return false, wrapError(err, "transfer request", "check pending")
	}
	return exists, nil
}

func (r *transferRequestRepository) List(ctx context.Context, scope model.TransferRequestScope, filter *model.TransferRequestFilter) ([]*model.TransferRequest, int, error) {
	where := ` WHERE clinic_id = $1`
	args := []interface{}{scope.ClinicID}

	if scope.BranchID != nil {
		p := placeholder(args)
		where += ` AND (from_branch_id = ` + p + ` OR to_branch_id = ` + p + `)`
		args = append(args, *scope.BranchID)
	}
	if scope.TherapistID != nil {
		p := placeholder(args)
		where += ` AND (requested_by = ` + p + ` OR to_therapist_id = ` + p + `)`
		args = append(args, *scope.TherapistID)
	}
	if filter.Status != "" {
		where += ` AND status = ` + placeholder(args)
		args = append(args, filter.Status)
	}
	if filter.PatientID != nil {
		where += ` AND patient_id = ` + placeholder(args)
		args = append(args, *filter.PatientID)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM transfer_requests`+where, args...); err != nil {
		return nil, 0, wrapError(err, "transfer requests", "count")
	}

	filter.Normalize()
	query := `SELECT ` + transferRequestColumns + ` FROM transfer_requests` + where +
		` ORDER BY created_at DESC LIMIT ` + placeholder(args)
	args = append(args, filter.PageSize)
	query += ` OFFSET ` + placeholder(args)
	args = append(args, filter.Offset())

	requests := []*model.TransferRequest{}
	if err := r.db.SelectContext(ctx, &requests, query, args...); err != nil {
		return nil, 0, wrapError(err, "transfer requests", "list")
	}
	return requests, total, nil
}
