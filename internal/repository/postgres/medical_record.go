package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/physiocapture-api/internal/model"
	"github.com/jwalitptl/physiocapture-api/internal/repository"
)

type medicalRecordRepository struct {
	BaseRepository
}

func NewMedicalRecordRepository(base BaseRepository) repository.MedicalRecordRepository {
	return &medicalRecordRepository{base}
}

func (r *medicalRecordRepository) Create(ctx context.Context, record *model.MedicalRecord) error {
	query := `
		INSERT INTO medical_records (id, patient_id, author_id, record_type, title, content, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	record.CreatedAt = time.Now().UTC()
	record.UpdatedAt = record.CreatedAt

	_, err := r.db.ExecContext(ctx, query,
		record.ID,
		record.PatientID,
		record.AuthorID,
		record.Type,
		record.Title,
		record.Content,
		record.CreatedAt,
		record.UpdatedAt,
	)
	return wrapError(err, "medical record", "create")
}

func (r *medicalRecordRepository) ListByPatient(ctx context.Context, patientID uuid.UUID, page model.Pagination) ([]*model.MedicalRecord, int, error) {
	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM medical_records WHERE patient_id = $1`, patientID); err != nil {
		return nil, 0, wrapError(err, "medical records", "count")
	}

	page.Normalize()
	records := []*model.MedicalRecord{}
	query := `
		SELECT id, patient_id, author_id, record_type, title, content, created_at, updated_at
		FROM medical_records
		WHERE patient_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`
	if err := r.db.SelectContext(ctx, &records, query, patientID, page.PageSize, page.Offset()); err != nil {
		return nil, 0, wrapError(err, "medical records", "list")
	}
	return records, total, nil
}
