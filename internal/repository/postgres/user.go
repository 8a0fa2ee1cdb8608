package postgres

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/jwalitptl/physiocapture-api/internal/model"
	"github.com/jwalitptl/physiocapture-api/internal/repository"
)

type userRepository struct {
	BaseRepository
}

func NewUserRepository(base BaseRepository) repository.UserRepository {
	return &userRepository{base}
}

const userColumns = `id, clinic_id, branch_id, role, email, name, password_hash,
	license_id, cpf, phone, active, created_at, updated_at`

func (r *userRepository) Create(ctx context.Context, tx *sqlx.Tx, user *model.User) error {
	query := `
		INSERT INTO users (
			id, clinic_id, branch_id, role, email, name, password_hash,
			license_id, cpf, phone, active, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`

	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	user.Email = strings.ToLower(user.Email)
	user.CreatedAt = time.Now().UTC()
	user.UpdatedAt = user.CreatedAt

	_, err := r.ext(tx).ExecContext(ctx, query,
		user.ID,
		user.ClinicID,
		user.BranchID,
		user.Role,
		user.Email,
		user.Name,
		user.PasswordHash,
		user.LicenseID,
		user.CPF,
		user.Phone,
		user.Active,
		user.CreatedAt,
		user.UpdatedAt,
	)
	return wrapError(err, "user", "create")
}

func (r *userRepository) Get(ctx context.Context, id uuid.UUID) (*model.User, error) {
	var user model.User
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	if err := r.db.GetContext(ctx, &user, query, id); err != nil {
		return nil, wrapError(err, "user", "get")
	}
	return &user, nil
}

func (r *userRepository) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	var user model.User
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	if err := r.db.GetContext(ctx, &user, query, strings.ToLower(email)); err != nil {
		return nil, wrapError(err, "user", "get")
	}
	return &user, nil
}

func (r *userRepository) Update(ctx context.Context, user *model.User) error {
	query := `
		UPDATE users SET
			branch_id = $1, role = $2, email = $3, name = $4,
			license_id = $5, phone = $6, active = $7, updated_at = $8
		WHERE id = $9 AND clinic_id = $10
	`
	user.UpdatedAt = time.Now().UTC()

	result, err := r.db.ExecContext(ctx, query,
		user.BranchID,
		user.Role,
		strings.ToLower(user.Email),
		user.Name,
		user.LicenseID,
		user.Phone,
		user.Active,
		user.UpdatedAt,
		user.ID,
		user.ClinicID,
	)
	if err != nil {
		return wrapError(err, "user", "update")
	}
	return affected(result, "user")
}

func (r *userRepository) List(ctx context.Context, scope model.Scope, filter *model.UserFilter) ([]*model.User, int, error) {
	where := ` WHERE clinic_id = $1`
	args := []interface{}{scope.ClinicID}

	if scope.BranchID != nil {
		where += ` AND branch_id = ` + placeholder(args)
		args = append(args, *scope.BranchID)
	}
	if filter.Role != "" {
		where += ` AND role = ` + placeholder(args)
		args = append(args, filter.Role)
	}
	if filter.ActiveOnly {
		where += ` AND active = TRUE`
	}
	if filter.SearchTerm != "" {
		p := placeholder(args)
		where += ` AND (name ILIKE ` + p + ` OR email ILIKE ` + p + `)`
		args = append(args, "%"+filter.SearchTerm+"%")
	}

	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM users`+where, args...); err != nil {
		return nil, 0, wrapError(err, "users", "count")
	}

	filter.Normalize()
	query := `SELECT ` + userColumns + ` FROM users` + where + ` ORDER BY name LIMIT ` + placeholder(args)
	args = append(args, filter.PageSize)
	query += ` OFFSET ` + placeholder(args)
	args = append(args, filter.Offset())

	users := []*model.User{}
	if err := r.db.SelectContext(ctx, &users, query, args...); err != nil {
		return nil, 0, wrapError(err, "users", "list")
	}
	return users, total, nil
}

func (r *userRepository) ListActiveTherapists(ctx context.Context, clinicID uuid.UUID) ([]*model.User, error) {
	users := []*model.User{}
	query := `SELECT ` + userColumns + ` FROM users
		WHERE clinic_id = $1 AND role = $2 AND active = TRUE
		ORDER BY name`
	if err := r.db.SelectContext(ctx, &users, query, clinicID, model.RoleTherapist); err != nil {
		return nil, wrapError(err, "therapists", "list")
	}
	return users, nil
}

// ListReviewers returns the active managers able to review a transfer touching branchIDs.
func (r *userRepository) ListReviewers(ctx context.Context, clinicID uuid.UUID, branchIDs []uuid.UUID) ([]*model.User, error) {
	ids := make([]string, 0, len(branchIDs))
	for _, id := range branchIDs {
		ids = append(ids, id.String())
	}

	users := []*model.User{}
	query := `SELECT ` + userColumns + ` FROM users
		WHERE clinic_id = $1 AND active = TRUE
		AND (role = $2 OR (role = $3 AND branch_id = ANY($4::uuid[])))
		ORDER BY name`
	err := r.db.SelectContext(ctx, &users, query,
		clinicID, model.RoleNetworkManager, model.RoleBranchManager, pq.Array(ids))
	if err != nil {
		return nil, wrapError(err, "reviewers", "list")
	}
	return users, nil
}

func (r *userRepository) CountActiveTherapists(ctx context.Context, clinicID uuid.UUID) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM users WHERE clinic_id = $1 AND role = $2 AND active = TRUE`
	if err := r.db.GetContext(ctx, &count, query, clinicID, model.RoleTherapist); err != nil {
		return 0, wrapError(err, "therapists", "count")
	}
	return count, nil
}
