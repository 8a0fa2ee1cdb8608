package postgres

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/physiocapture-api/internal/model"
	apperrors "github.com/jwalitptl/physiocapture-api/pkg/errors"
)

func newMock(t *testing.T, lockTimeout time.Duration) (BaseRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewBaseRepository(sqlx.NewDb(db, "postgres"), lockTimeout), mock
}

func TestWithTxCommitsAndSetsLockTimeout(t *testing.T) {
	base, mock := newMock(t, 5*time.Second)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("SET LOCAL lock_timeout = '5000ms'")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	called := false
	err := base.WithTx(context.Background(), func(tx *sqlx.Tx) error {
		called = true
		return nil
	})
	require.NoError(t, err)
	assert.True(t, called)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTxRollsBackOnError(t *testing.T) {
	base, mock := newMock(t, 0)

	mock.ExpectBegin()
	mock.ExpectRollback()

	boom := errors.New("boom")
	err := base.WithTx(context.Background(), func(tx *sqlx.Tx) error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWrapError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want apperrors.ErrorCode
	}{
		{"no rows", sql.ErrNoRows, apperrors.ErrNotFound},
		{"unique violation", &pq.Error{Code: pqUniqueViolation}, apperrors.ErrIntegrity},
		{"foreign key", &pq.Error{Code: pqForeignKeyViolation}, apperrors.ErrIntegrity},
		{"serialization", &pq.Error{Code: pqSerializationFailure}, apperrors.ErrConcurrency},
		{"lock timeout", &pq.Error{Code: pqLockNotAvailable}, apperrors.ErrConcurrency},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, apperrors.CodeOf(wrapError(tt.err, "patient", "get")))
		})
	}

	assert.NoError(t, wrapError(nil, "patient", "get"))
	_, ok := apperrors.As(wrapError(errors.New("conn reset"), "patient", "get"))
	assert.False(t, ok, "driver failures stay internal")
}

func TestPatientGetForUpdateLocksRow(t *testing.T) {
	base, mock := newMock(t, 0)
	repo := NewPatientRepository(base)
	id, clinicID, therapistID := uuid.New(), uuid.New(), uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM patients WHERE id = \$1 FOR UPDATE`).
		WithArgs(id.String()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "clinic_id", "therapist_id", "full_name", "cpf", "available_for_transfer", "active"}).
			AddRow(id.String(), clinicID.String(), therapistID.String(), "Maria", "52998224725", true, true))
	mock.ExpectCommit()

	var got *model.Patient
	err := base.WithTx(context.Background(), func(tx *sqlx.Tx) error {
		var err error
		got, err = repo.GetForUpdate(context.Background(), tx, id)
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, therapistID, got.TherapistID)
	assert.True(t, got.AvailableForTransfer)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransferRequestUpdateReviewConflict(t *testing.T) {
	base, mock := newMock(t, 0)
	repo := NewTransferRequestRepository(base)
	reviewer := uuid.New()
	now := time.Now().UTC()
	req := &model.TransferRequest{Status: model.TransferStatusApproved, ReviewedBy: &reviewer, ReviewedAt: &now}
	req.ID = uuid.New()

	mock.ExpectExec(`UPDATE transfer_requests`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT status FROM transfer_requests WHERE id = \$1`).
		WithArgs(req.ID.String()).
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("REJECTED"))

	err := repo.UpdateReview(context.Background(), nil, req)
	assert.True(t, apperrors.Is(err, apperrors.ErrStateConflict))
	assert.EqualError(t, err, "transfer request is REJECTED")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransferRequestUpdateReviewMissing(t *testing.T) {
	base, mock := newMock(t, 0)
	repo := NewTransferRequestRepository(base)
	req := &model.TransferRequest{Status: model.TransferStatusRejected}
	req.ID = uuid.New()

	mock.ExpectExec(`UPDATE transfer_requests`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT status FROM transfer_requests`).
		WillReturnError(sql.ErrNoRows)

	err := repo.UpdateReview(context.Background(), nil, req)
	assert.True(t, apperrors.Is(err, apperrors.ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransferRequestCreateDuplicatePending(t *testing.T) {
	base, mock := newMock(t, 0)
	repo := NewTransferRequestRepository(base)

	mock.ExpectExec(`INSERT INTO transfer_requests`).
		WillReturnError(&pq.Error{Code: pqUniqueViolation})

	err := repo.Create(context.Background(), nil, &model.TransferRequest{
		PatientID: uuid.New(), Status: model.TransferStatusPending, Reason: "closer to home",
	})
	assert.True(t, apperrors.Is(err, apperrors.ErrIntegrity))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransferRequestHasPending(t *testing.T) {
	base, mock := newMock(t, 0)
	repo := NewTransferRequestRepository(base)
	patientID := uuid.New()

	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs(patientID.String(), "PENDING").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	pending, err := repo.HasPending(context.Background(), nil, patientID)
	require.NoError(t, err)
	assert.True(t, pending)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOutboxDeleteProcessedBefore(t *testing.T) {
	base, mock := newMock(t, 0)
	repo := NewOutboxRepository(base)
	before := time.Now().Add(-time.Hour)

	mock.ExpectExec(`DELETE FROM outbox_events`).
		WithArgs("PROCESSED", before).
		WillReturnResult(sqlmock.NewResult(0, 4))

	rows, err := repo.DeleteProcessedBefore(context.Background(), before)
	require.NoError(t, err)
	assert.Equal(t, int64(4), rows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOutboxUpdateStatusMissingEvent(t *testing.T) {
	base, mock := newMock(t, 0)
	repo := NewOutboxRepository(base)

	mock.ExpectExec(`UPDATE outbox_events`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdateStatus(context.Background(), nil, uuid.New(), model.OutboxStatusProcessed, nil, nil)
	assert.True(t, apperrors.Is(err, apperrors.ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}
