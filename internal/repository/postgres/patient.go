package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/physiocapture-api/internal/model"
	"github.com/jwalitptl/physiocapture-api/internal/repository"
)

type patientRepository struct {
	BaseRepository
}

func NewPatientRepository(base BaseRepository) repository.PatientRepository {
	return &patientRepository{base}
}

const patientColumns = `id, clinic_id, branch_id, therapist_id, full_name, cpf, birth_date,
	gender, phone, email, address, chief_complaint, blood_type, allergies, medications,
	medical_history, notes, available_for_transfer, active, last_visit, created_at, updated_at`

func (r *patientRepository) Create(ctx context.Context, patient *model.Patient) error {
	query := `
		INSERT INTO patients (` + patientColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15,
			$16, $17, $18, $19, $20, $21, $22)
	`
	if patient.ID == uuid.Nil {
		patient.ID = uuid.New()
	}
	patient.CreatedAt = time.Now().UTC()
	patient.UpdatedAt = patient.CreatedAt

	_, err := r.db.ExecContext(ctx, query,
		patient.ID,
		patient.ClinicID,
		patient.BranchID,
		patient.TherapistID,
		patient.FullName,
		patient.CPF,
		patient.BirthDate,
		patient.Gender,
		patient.Phone,
		patient.Email,
		patient.Address,
		patient.ChiefComplaint,
		patient.BloodType,
		patient.Allergies,
		patient.Medications,
		patient.MedicalHistory,
		patient.Notes,
		patient.AvailableForTransfer,
		patient.Active,
		patient.LastVisit,
		patient.CreatedAt,
		patient.UpdatedAt,
	)
	return wrapError(err, "patient", "create")
}

func (r *patientRepository) Get(ctx context.Context, id uuid.UUID) (*model.Patient, error) {
	var patient model.Patient
	query := `SELECT ` + patientColumns + ` FROM patients WHERE id = $1`
	if err := r.db.GetContext(ctx, &patient, query, id); err != nil {
		return nil, wrapError(err, "patient", "get")
	}
	return &patient, nil
}

// GetForUpdate locks the patient row until tx ends.
func (r *patientRepository) GetForUpdate(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) (*model.Patient, error) {
	var patient model.Patient
	query := `SELECT ` + patientColumns + ` FROM patients WHERE id = $1 FOR UPDATE`
	if err := sqlx.GetContext(ctx, r.ext(tx), &patient, query, id); err != nil {
		return nil, wrapError(err, "patient", "lock")
	}
	return &patient, nil
}

// Update stores demographic, clinical and status fields. Ownership only
// changes through UpdateAssignment.
func (r *patientRepository) Update(ctx context.Context, tx *sqlx.Tx, patient *model.Patient) error {
	query := `
		UPDATE patients SET
			full_name = $1, birth_date = $2, gender = $3, phone = $4, email = $5,
			address = $6, chief_complaint = $7, blood_type = $8, allergies = $9,
			medications = $10, medical_history = $11, notes = $12,
			available_for_transfer = $13, active = $14, last_visit = $15, updated_at = $16
		WHERE id = $17
	`
	patient.UpdatedAt = time.Now().UTC()

	result, err := r.ext(tx).ExecContext(ctx, query,
		patient.FullName,
		patient.BirthDate,
		patient.Gender,
		patient.Phone,
		patient.Email,
		patient.Address,
		patient.ChiefComplaint,
		patient.BloodType,
		patient.Allergies,
		patient.Medications,
		patient.MedicalHistory,
		patient.Notes,
		patient.AvailableForTransfer,
		patient.Active,
		patient.LastVisit,
		patient.UpdatedAt,
		patient.ID,
	)
	if err != nil {
		return wrapError(err, "patient", "update")
	}
	return affected(result, "patient")
}

func (r *patientRepository) CountByTherapist(ctx context.Context, therapistID uuid.UUID) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM patients WHERE therapist_id = $1`
	if err := r.db.GetContext(ctx, &count, query, therapistID); err != nil {
		return 0, wrapError(err, "patients", "count")
	}
	return count, nil
}

func (r *patientRepository) UpdateAssignment(ctx context.Context, tx *sqlx.Tx, patient *model.Patient) error {
	query := `
		UPDATE patients
		SET therapist_id = $1, branch_id = $2, available_for_transfer = $3, updated_at = $4
		WHERE id = $5
	`
	patient.UpdatedAt = time.Now().UTC()

	result, err := r.ext(tx).ExecContext(ctx, query,
		patient.TherapistID,
		patient.BranchID,
		patient.AvailableForTransfer,
		patient.UpdatedAt,
		patient.ID,
	)
	if err != nil {
		return wrapError(err, "patient", "reassign")
	}
	return affected(result, "patient")
}

func (r *patientRepository) List(ctx context.Context, scope model.Scope, filter *model.PatientFilter) ([]*model.Patient, int, error) {
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
	if filter.ActiveOnly {
		where += ` AND active = TRUE`
	}
	if filter.AvailableForTransfer != nil {
		where += ` AND available_for_transfer = ` + placeholder(args)
		args = append(args, *filter.AvailableForTransfer)
	}
	if filter.SearchTerm != "" {
		p := placeholder(args)
		where += ` AND (full_name ILIKE ` + p + ` OR cpf LIKE ` + p + `)`
		args = append(args, "%"+filter.SearchTerm+"%")
	}

	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM patients`+where, args...); err != nil {
		return nil, 0, wrapError(err, "patients", "count")
	}

	filter.Normalize()
	query := `SELECT ` + patientColumns + ` FROM patients` + where + ` ORDER BY full_name LIMIT ` + placeholder(args)
	args = append(args, filter.PageSize)
	query += ` OFFSET ` + placeholder(args)
	args = append(args, filter.Offset())

	patients := []*model.Patient{}
	if err := r.db.SelectContext(ctx, &patients, query, args...); err != nil {
		return nil, 0, wrapError(err, "patients", "list")
	}
	return patients, total, nil
}

func (r *patientRepository) CPFExists(ctx context.Context, cpf string, clinicID *uuid.UUID) (bool, error) {
	var exists bool
	var err error
	if clinicID != nil {
		err = r.db.GetContext(ctx, &exists,
			`SELECT EXISTS (SELECT 1 FROM patients WHERE cpf = $1 AND clinic_id = $2)`, cpf, *clinicID)
	} else {
		err = r.db.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM patients WHERE cpf = $1)`, cpf)
	}
	if err != nil {
		return false, wrapError(err, "patient", "check cpf")
	}
	return exists, nil
}
