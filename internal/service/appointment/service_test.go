package appointment

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/physiocapture-api/internal/model"
	"github.com/jwalitptl/physiocapture-api/internal/repository/memory"
	"github.com/jwalitptl/physiocapture-api/internal/service/audit"
	apperrors "github.com/jwalitptl/physiocapture-api/pkg/errors"
)

var monday = time.Date(2030, 3, 4, 9, 0, 0, 0, time.UTC)

type fixture struct {
	store *memory.Store
	svc   *Service

	network, managerB, therapistT, receptionistA *model.User
	patient                                      *model.Patient
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clinic, branchA, branchB := uuid.New(), uuid.New(), uuid.New()
	mk := func(role model.Role, branch *uuid.UUID) *model.User {
		u := &model.User{ClinicID: clinic, BranchID: branch, Role: role, Active: true}
		u.ID = uuid.New()
		return u
	}
	f := &fixture{store: memory.New()}
	f.network = mk(model.RoleNetworkManager, nil)
	f.managerB = mk(model.RoleBranchManager, &branchB)
	f.therapistT = mk(model.RoleTherapist, &branchA)
	f.receptionistA = mk(model.RoleReceptionist, &branchA)

	f.patient = &model.Patient{ClinicID: clinic, FullName: "Nina", Active: true}
	f.patient.ID = uuid.New()
	f.patient.AssignTo(f.therapistT)

	f.store.Seed(f.network, f.managerB, f.therapistT, f.receptionistA, f.patient)
	f.svc = NewService(f.store.Appointments(), f.store.Patients(), audit.NewService(f.store.Audit()))
	f.svc.now = func() time.Time { return monday.Add(-24 * time.Hour) }
	return f
}

func (f *fixture) book(start time.Time, d time.Duration) *model.CreateAppointmentRequest {
	return &model.CreateAppointmentRequest{PatientID: f.patient.ID.String(), StartsAt: start, EndsAt: start.Add(d)}
}

func TestCreate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	apt, err := f.svc.Create(ctx, f.receptionistA, f.book(monday, time.Hour))
	require.NoError(t, err)
	assert.Equal(t, f.therapistT.ID, apt.TherapistID)
	assert.Equal(t, *f.patient.BranchID, *apt.BranchID)
	assert.Equal(t, model.AppointmentStatusScheduled, apt.Status)
	assert.Equal(t, f.receptionistA.ID, apt.CreatedBy)

	_, err = f.svc.Create(ctx, f.network, f.book(monday.Add(30*time.Minute), time.Hour))
	assert.Equal(t, apperrors.ErrIntegrity, apperrors.CodeOf(err))

	_, err = f.svc.Create(ctx, f.network, f.book(monday.Add(time.Hour), time.Hour))
	assert.NoError(t, err)
}

func TestCreateRules(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		caller *model.User
		req    *model.CreateAppointmentRequest
		code   apperrors.ErrorCode
	}{
		{"therapists are read-only", f.therapistT, f.book(monday, time.Hour), apperrors.ErrForbidden},
		{"manager of another branch", f.managerB, f.book(monday, time.Hour), apperrors.ErrForbidden},
		{"in the past", f.network, f.book(monday.Add(-48*time.Hour), time.Hour), apperrors.ErrValidation},
		{"too short", f.network, f.book(monday, 5*time.Minute), apperrors.ErrValidation},
		{"too long", f.network, f.book(monday, 5*time.Hour), apperrors.ErrValidation},
		{"bad patient id", f.network, &model.CreateAppointmentRequest{PatientID: "x", StartsAt: monday, EndsAt: monday.Add(time.Hour)}, apperrors.ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Create(ctx, tt.caller, tt.req)
			assert.Equal(t, tt.code, apperrors.CodeOf(err))
		})
	}
}

func TestRescheduleAndCancel(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.svc.Create(ctx, f.receptionistA, f.book(monday, time.Hour))
	require.NoError(t, err)
	second, err := f.svc.Create(ctx, f.receptionistA, f.book(monday.Add(2*time.Hour), time.Hour))
	require.NoError(t, err)

	// moving within its own slot is not a conflict
	moved, err := f.svc.Reschedule(ctx, f.receptionistA, first.ID, &model.RescheduleAppointmentRequest{
		StartsAt: monday.Add(15 * time.Minute), EndsAt: monday.Add(75 * time.Minute),
	})
	require.NoError(t, err)
	assert.Equal(t, monday.Add(15*time.Minute), moved.StartsAt)

	_, err = f.svc.Reschedule(ctx, f.receptionistA, first.ID, &model.RescheduleAppointmentRequest{
		StartsAt: monday.Add(150 * time.Minute), EndsAt: monday.Add(210 * time.Minute),
	})
	assert.Equal(t, apperrors.ErrIntegrity, apperrors.CodeOf(err))

	_, err = f.svc.Cancel(ctx, f.therapistT, second.ID, "sick")
	assert.Equal(t, apperrors.ErrForbidden, apperrors.CodeOf(err))

	_, err = f.svc.Cancel(ctx, f.receptionistA, second.ID, " ")
	assert.Equal(t, apperrors.ErrValidation, apperrors.CodeOf(err))

	cancelled, err := f.svc.Cancel(ctx, f.receptionistA, second.ID, "sick")
	require.NoError(t, err)
	assert.Equal(t, model.AppointmentStatusCancelled, cancelled.Status)

	_, err = f.svc.Cancel(ctx, f.receptionistA, second.ID, "again")
	assert.Equal(t, apperrors.ErrStateConflict, apperrors.CodeOf(err))

	// the freed slot can be booked again
	_, err = f.svc.Create(ctx, f.receptionistA, f.book(monday.Add(2*time.Hour), time.Hour))
	assert.NoError(t, err)
}

func TestListIsScoped(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.Create(ctx, f.receptionistA, f.book(monday, time.Hour))
	require.NoError(t, err)

	for _, tt := range []struct {
		caller *model.User
		total  int
	}{
		{f.network, 1},
		{f.receptionistA, 1},
		{f.therapistT, 1},
		{f.managerB, 0},
	} {
		_, total, err := f.svc.List(ctx, tt.caller, &model.AppointmentFilter{})
		require.NoError(t, err)
		assert.Equal(t, tt.total, total, tt.caller.Role)
	}

	other := &model.User{ClinicID: f.therapistT.ClinicID, BranchID: f.therapistT.BranchID, Role: model.RoleTherapist, Active: true}
	other.ID = uuid.New()
	_, total, err := f.svc.List(ctx, other, &model.AppointmentFilter{})
	require.NoError(t, err)
	assert.Zero(t, total)
}
