package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/physiocapture-api/internal/model"
	"github.com/jwalitptl/physiocapture-api/internal/repository"
)

type appointmentRepository struct {
	BaseRepository
}

func NewAppointmentRepository(base BaseRepository) repository.AppointmentRepository {
	return &appointmentRepository{base}
}

const appointmentColumns = `id, clinic_id, branch_id, patient_id, therapist_id, starts_at, ends_at,
	status, notes, cancel_reason, created_by, created_at, updated_at`

func (r *appointmentRepository) Create(ctx context.Context, appointment *model.Appointment) error {
	query := `
		INSERT INTO appointments (` + appointmentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`
	if appointment.ID == uuid.Nil {
		appointment.ID = uuid.New()
	}
	appointment.CreatedAt = time.Now().UTC()
	appointment.UpdatedAt = appointment.CreatedAt

	_, err := r.db.ExecContext(ctx, query,
		appointment.ID,
		appointment.ClinicID,
		appointment.BranchID,
		appointment.PatientID,
		appointment.TherapistID,
		appointment.StartsAt,
		appointment.EndsAt,
		appointment.Status,
		appointment.Notes,
		appointment.CancelReason,
		appointment.CreatedBy,
		appointment.CreatedAt,
		appointment.UpdatedAt,
	)
	return wrapError(err, "appointment", "create")
}

func (r *appointmentRepository) Get(ctx context.Context, id uuid.UUID) (*model.Appointment, error) {
	var appointment model.Appointment
	query := `SELECT ` + appointmentColumns + ` FROM appointments WHERE id = $1`
	if err := r.db.GetContext(ctx, &appointment, query, id); err != nil {
		return nil, wrapError(err, "appointment", "get")
	}
	return &appointment, nil
}

func (r *appointmentRepository) Update(ctx context.Context, appointment *model.Appointment) error {
	query := `
		UPDATE appointments
		SET starts_at = $1, ends_at = $2, status = $3, notes = $4, cancel_reason = $5, updated_at = $6
		WHERE id = $7
	`
	appointment.UpdatedAt = time.Now().UTC()

	result, err := r.db.ExecContext(ctx, query,
		appointment.StartsAt,
		appointment.EndsAt,
		appointment.Status,
		appointment.Notes,
		appointment.CancelReason,
		appointment.UpdatedAt,
		appointment.ID,
	)
	if err != nil {
		return wrapError(err, "appointment", "update")
	}
	return affected(result, "appointment")
}

func (r *appointmentRepository) List(ctx context.Context, scope model.Scope, filter *model.AppointmentFilter) ([]*model.Appointment, int, error) {
	where := ` WHERE clinic_id = $1`
	args := []interface{}{scope.ClinicID}

	if scope.BranchID != nil {
		where += ` AND branch_id = ` + placeholder(args)
		args = append(args, *scope.BranchID)
	}
	if scope.TherapistID != nil {
		where += ` AND therapist_id = ` + placeholder(args)
		args = append(args, *scope.TherapistID)
	}
	if filter.PatientID != nil {
		where += ` AND patient_id = ` + placeholder(args)
		args = append(args, *filter.PatientID)
	}
	if filter.From != nil {
		where += ` AND starts_at >= ` + placeholder(args)
		args = append(args, *filter.From)
	}
	if filter.To != nil {
		where += ` AND starts_at < ` + placeholder(args)
		args = append(args, *filter.To)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM appointments`+where, args...); err != nil {
		return nil, 0, wrapError(err, "appointments", "count")
	}

	filter.Normalize()
	query := `SELECT ` + appointmentColumns + ` FROM appointments` + where + ` ORDER BY starts_at LIMIT ` + placeholder(args)
	args = append(args, filter.PageSize)
	query += ` OFFSET ` + placeholder(args)
	args = append(args, filter.Offset())

	appointments := []*model.Appointment{}
	if err := r.db.SelectContext(ctx, &appointments, query, args...); err != nil {
		return nil, 0, wrapError(err, "appointments", "list")
	}
	return appointments, total, nil
}

// HasConflict reports an overlapping scheduled appointment for the therapist.
func (r *appointmentRepository) HasConflict(ctx context.Context, therapistID uuid.UUID, start, end time.Time, excludeID *uuid.UUID) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM appointments
			WHERE therapist_id = $1 AND status = $2
			AND starts_at < $4 AND ends_at > $3
			AND ($5::uuid IS NULL OR id <> $5)
		)
	`
	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, therapistID, model.AppointmentStatusScheduled, start, end, excludeID); err != nil {
		return false, wrapError(err, "appointment", "check conflicts")
	}
	return exists, nil
}
