package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	apperrors "github.com/jwalitptl/physiocapture-api/pkg/errors"
)

// BaseRepository provides common functionality for all repositories
type BaseRepository struct {
	db          *sqlx.DB
	lockTimeout time.Duration
}

// NewBaseRepository creates a new base repository. A positive lockTimeout is
// applied to every transaction opened by WithTx.
func NewBaseRepository(db *sqlx.DB, lockTimeout time.Duration) BaseRepository {
	return BaseRepository{db: db, lockTimeout: lockTimeout}
}

// GetDB returns the database instance
func (r *BaseRepository) GetDB() *sqlx.DB {
	return r.db
}

// WithTx executes a function within a transaction
func (r *BaseRepository) WithTx(ctx context.Context, fn func(*sqlx.Tx) error) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()

	if r.lockTimeout > 0 {
		stmt := fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", r.lockTimeout.Milliseconds())
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to set lock timeout: %w", err)
		}
	}

	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return wrapError(err, "transaction", "commit")
	}
	return nil
}

// ext picks the transaction when one is given, the pool otherwise.
func (r *BaseRepository) ext(tx *sqlx.Tx) sqlx.ExtContext {
	if tx != nil {
		return tx
	}
	return r.db
}

// Postgres error codes mapped onto the application taxonomy.
const (
	pqUniqueViolation      = "23505"
	pqForeignKeyViolation  = "23503"
	pqSerializationFailure = "40001"
	pqDeadlockDetected     = "40P01"
	pqLockNotAvailable     = "55P03"
)

// wrapError maps driver errors to application errors and wraps the rest.
func wrapError(err error, resource, op string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return apperrors.NewNotFound(resource, err)
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case pqUniqueViolation:
			appErr := apperrors.NewIntegrity(fmt.Sprintf("%s already exists", resource))
			appErr.Err = err
			return appErr
		case pqForeignKeyViolation:
			appErr := apperrors.NewIntegrity(fmt.Sprintf("%s references a missing entity", resource))
			appErr.Err = err
			return appErr
		case pqSerializationFailure, pqDeadlockDetected, pqLockNotAvailable:
			return apperrors.NewConcurrency(err)
		}
	}
	return fmt.Errorf("failed to %s %s: %w", op, resource, err)
}

// affected turns a zero-row update into a not-found error.
func affected(result sql.Result, resource string) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return apperrors.NewNotFound(resource, nil)
	}
	return nil
}

// placeholder returns the next positional parameter for a query being built.
func placeholder(args []interface{}) string {
	return fmt.Sprintf("$%d", len(args)+1)
}
