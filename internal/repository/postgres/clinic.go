package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/physiocapture-api/internal/model"
	"github.com/jwalitptl/physiocapture-api/internal/repository"
)

type clinicRepository struct {
	BaseRepository
}

func NewClinicRepository(base BaseRepository) repository.ClinicRepository {
	return &clinicRepository{base}
}

const clinicColumns = `id, name, legal_name, tax_id, active, max_therapists, created_at, updated_at`

func (r *clinicRepository) Create(ctx context.Context, tx *sqlx.Tx, clinic *model.Clinic) error {
	query := `
		INSERT INTO clinics (id, name, legal_name, tax_id, active, max_therapists, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	if clinic.ID == uuid.Nil {
		clinic.ID = uuid.New()
	}
	clinic.CreatedAt = time.Now().UTC()
	clinic.UpdatedAt = clinic.CreatedAt

	_, err := r.ext(tx).ExecContext(ctx, query,
		clinic.ID,
		clinic.Name,
		clinic.LegalName,
		clinic.TaxID,
		clinic.Active,
		clinic.MaxTherapists,
		clinic.CreatedAt,
		clinic.UpdatedAt,
	)
	return wrapError(err, "clinic", "create")
}

func (r *clinicRepository) Get(ctx context.Context, id uuid.UUID) (*model.Clinic, error) {
	var clinic model.Clinic
	query := `SELECT ` + clinicColumns + ` FROM clinics WHERE id = $1`
	if err := r.db.GetContext(ctx, &clinic, query, id); err != nil {
		return nil, wrapError(err, "clinic", "get")
	}
	return &clinic, nil
}

func (r *clinicRepository) GetByTaxID(ctx context.Context, taxID string) (*model.Clinic, error) {
	var clinic model.Clinic
	query := `SELECT ` + clinicColumns + ` FROM clinics WHERE tax_id = $1`
	if err := r.db.GetContext(ctx, &clinic, query, taxID); err != nil {
		return nil, wrapError(err, "clinic", "get")
	}
	return &clinic, nil
}
