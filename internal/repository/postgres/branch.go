package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/physiocapture-api/internal/model"
	"github.com/jwalitptl/physiocapture-api/internal/repository"
)

type branchRepository struct {
	BaseRepository
}

func NewBranchRepository(base BaseRepository) repository.BranchRepository {
	return &branchRepository{base}
}

func (r *branchRepository) Create(ctx context.Context, branch *model.Branch) error {
	query := `
		INSERT INTO branches (id, clinic_id, name, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	if branch.ID == uuid.Nil {
		branch.ID = uuid.New()
	}
	branch.CreatedAt = time.Now().UTC()
	branch.UpdatedAt = branch.CreatedAt

	_, err := r.db.ExecContext(ctx, query,
		branch.ID, branch.ClinicID, branch.Name, branch.Active, branch.CreatedAt, branch.UpdatedAt)
	return wrapError(err, "branch", "create")
}

func (r *branchRepository) Get(ctx context.Context, id uuid.UUID) (*model.Branch, error) {
	var branch model.Branch
	query := `SELECT id, clinic_id, name, active, created_at, updated_at FROM branches WHERE id = $1`
	if err := r.db.GetContext(ctx, &branch, query, id); err != nil {
		return nil, wrapError(err, "branch", "get")
	}
	return &branch, nil
}

func (r *branchRepository) ListByClinic(ctx context.Context, clinicID uuid.UUID) ([]*model.Branch, error) {
	branches := []*model.Branch{}
	query := `
		SELECT id, clinic_id, name, active, created_at, updated_at
		FROM branches
		WHERE clinic_id = $1
		ORDER BY name
	`
	if err := r.db.SelectContext(ctx, &branches, query, clinicID); err != nil {
		return nil, wrapError(err, "branches", "list")
	}
	return branches, nil
}

func (r *branchRepository) CountByClinic(ctx context.Context, clinicID uuid.UUID) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM branches WHERE clinic_id = $1`
	if err := r.db.GetContext(ctx, &count, query, clinicID); err != nil {
		return 0, wrapError(err, "branches", "count")
	}
	return count, nil
}
