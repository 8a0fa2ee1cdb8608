package user

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/jwalitptl/physiocapture-api/internal/model"
	"github.com/jwalitptl/physiocapture-api/internal/repository/memory"
	"github.com/jwalitptl/physiocapture-api/internal/service/audit"
	apperrors "github.com/jwalitptl/physiocapture-api/pkg/errors"
	"github.com/jwalitptl/physiocapture-api/pkg/security"
)

type fixture struct {
	store            *memory.Store
	svc              *Service
	clinic           *model.Clinic
	branchA, branchB *model.Branch

	network, managerA, therapistT, receptionistA *model.User
}

func newFixture(t *testing.T, maxTherapists int) *fixture {
	t.Helper()
	f := &fixture{store: memory.New()}
	f.clinic = &model.Clinic{Name: "Physio", TaxID: "11222333000181", Active: true, MaxTherapists: maxTherapists}
	f.clinic.ID = uuid.New()
	f.branchA = &model.Branch{ClinicID: f.clinic.ID, Name: "A", Active: true}
	f.branchA.ID = uuid.New()
	f.branchB = &model.Branch{ClinicID: f.clinic.ID, Name: "B", Active: true}
	f.branchB.ID = uuid.New()

	mk := func(role model.Role, branch *model.Branch, email string) *model.User {
		u := &model.User{ClinicID: f.clinic.ID, Role: role, Email: email, Name: email, Active: true}
		u.ID = uuid.New()
		if branch != nil {
			u.BranchID = &branch.ID
		}
		return u
	}
	f.network = mk(model.RoleNetworkManager, nil, "network@physio.test")
	f.managerA = mk(model.RoleBranchManager, f.branchA, "manager-a@physio.test")
	f.therapistT = mk(model.RoleTherapist, f.branchA, "therapist@physio.test")
	f.therapistT.LicenseID = str("CREFITO-3/54321-F")
	f.receptionistA = mk(model.RoleReceptionist, f.branchA, "reception@physio.test")

	f.store.Seed(f.clinic, f.branchA, f.branchB, f.network, f.managerA, f.therapistT, f.receptionistA)
	s := f.store
	f.svc = NewService(s.Users(), s.Clinics(), s.Branches(), s.Patients(), security.NewBcryptHasher(bcrypt.MinCost), audit.NewService(s.Audit()))
	return f
}

func str(s string) *string { return &s }

func therapistReq(email string, branch *model.Branch) *model.CreateUserRequest {
	id := branch.ID.String()
	return &model.CreateUserRequest{
		Email: email, Name: "New Therapist", Password: "s3cret-pass",
		Role: "FISIOTERAPEUTA", BranchID: &id, LicenseID: str("CREFITO-3/12345-F"),
	}
}

func TestCreate(t *testing.T) {
	f := newFixture(t, 5)
	ctx := context.Background()

	created, err := f.svc.Create(ctx, f.managerA, therapistReq("New@Physio.test", f.branchA))
	require.NoError(t, err)
	assert.Equal(t, model.RoleTherapist, created.Role)
	assert.Equal(t, "new@physio.test", created.Email)
	assert.True(t, created.Active)
	require.NoError(t, bcrypt.CompareHashAndPassword([]byte(created.PasswordHash), []byte("s3cret-pass")))
	assert.Len(t, f.store.AuditLogs(), 1)
}

func TestCreateRules(t *testing.T) {
	ctx := context.Background()
	branchA := func(f *fixture) *string { id := f.branchA.ID.String(); return &id }

	tests := []struct {
		name   string
		caller func(*fixture) *model.User
		req    func(*fixture) *model.CreateUserRequest
		code   apperrors.ErrorCode
		field  string
	}{
		{
			name:   "therapist cannot manage users",
			caller: func(f *fixture) *model.User { return f.therapistT },
			req:    func(f *fixture) *model.CreateUserRequest { return therapistReq("x@physio.test", f.branchA) },
			code:   apperrors.ErrForbidden,
		},
		{
			name:   "branch manager cannot create a network manager",
			caller: func(f *fixture) *model.User { return f.managerA },
			req: func(f *fixture) *model.CreateUserRequest {
				return &model.CreateUserRequest{Email: "x@physio.test", Name: "X", Password: "s3cret-pass", Role: "NETWORK_MANAGER"}
			},
			code: apperrors.ErrForbidden,
		},
		{
			name:   "branch manager cannot create outside own branch",
			caller: func(f *fixture) *model.User { return f.managerA },
			req:    func(f *fixture) *model.CreateUserRequest { return therapistReq("x@physio.test", f.branchB) },
			code:   apperrors.ErrForbidden,
		},
		{
			name:   "network manager cannot have a branch",
			caller: func(f *fixture) *model.User { return f.network },
			req: func(f *fixture) *model.CreateUserRequest {
				return &model.CreateUserRequest{Email: "x@physio.test", Name: "X", Password: "s3cret-pass", Role: "NETWORK_MANAGER", BranchID: branchA(f)}
			},
			code:  apperrors.ErrValidation,
			field: "branch_id",
		},
		{
			name:   "branch required in multi-branch clinic",
			caller: func(f *fixture) *model.User { return f.network },
			req: func(f *fixture) *model.CreateUserRequest {
				return &model.CreateUserRequest{Email: "x@physio.test", Name: "X", Password: "s3cret-pass", Role: "RECEPTIONIST"}
			},
			code:  apperrors.ErrValidation,
			field: "branch_id",
		},
		{
			name:   "therapist needs a license",
			caller: func(f *fixture) *model.User { return f.network },
			req: func(f *fixture) *model.CreateUserRequest {
				r := therapistReq("x@physio.test", f.branchA)
				r.LicenseID = nil
				return r
			},
			code:  apperrors.ErrValidation,
			field: "license_id",
		},
		{
			name:   "unknown role",
			caller: func(f *fixture) *model.User { return f.network },
			req: func(f *fixture) *model.CreateUserRequest {
				r := therapistReq("x@physio.test", f.branchA)
				r.Role = "JANITOR"
				return r
			},
			code:  apperrors.ErrValidation,
			field: "role",
		},
		{
			name:   "unknown branch",
			caller: func(f *fixture) *model.User { return f.network },
			req: func(f *fixture) *model.CreateUserRequest {
				return therapistReq("x@physio.test", &model.Branch{Base: model.Base{ID: uuid.New()}})
			},
			code:  apperrors.ErrValidation,
			field: "branch_id",
		},
		{
			name:   "short password",
			caller: func(f *fixture) *model.User { return f.network },
			req: func(f *fixture) *model.CreateUserRequest {
				r := therapistReq("x@physio.test", f.branchA)
				r.Password = "short"
				return r
			},
			code:  apperrors.ErrValidation,
			field: "password",
		},
		{
			name:   "duplicate email",
			caller: func(f *fixture) *model.User { return f.network },
			req:    func(f *fixture) *model.CreateUserRequest { return therapistReq("THERAPIST@physio.test", f.branchA) },
			code:   apperrors.ErrIntegrity,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, 5)
			_, err := f.svc.Create(ctx, tt.caller(f), tt.req(f))
			require.Error(t, err)
			appErr, ok := apperrors.As(err)
			require.True(t, ok)
			assert.Equal(t, tt.code, appErr.Code, err.Error())
			if tt.field != "" {
				assert.Equal(t, tt.field, appErr.Field)
			}
		})
	}
}

func TestTherapistQuota(t *testing.T) {
	f := newFixture(t, 2)
	ctx := context.Background()

	_, err := f.svc.Create(ctx, f.network, therapistReq("second@physio.test", f.branchA))
	require.NoError(t, err)

	_, err = f.svc.Create(ctx, f.network, therapistReq("third@physio.test", f.branchB))
	assert.Equal(t, apperrors.ErrIntegrity, apperrors.CodeOf(err))

	id := f.branchB.ID.String()
	_, err = f.svc.Create(ctx, f.network, &model.CreateUserRequest{
		Email: "desk@physio.test", Name: "Desk", Password: "s3cret-pass", Role: "RECEPTIONIST", BranchID: &id,
	})
	assert.NoError(t, err)
}

func TestGetAndUpdate(t *testing.T) {
	f := newFixture(t, 5)
	ctx := context.Background()

	_, err := f.svc.Get(ctx, f.therapistT, f.therapistT.ID)
	assert.NoError(t, err)
	_, err = f.svc.Get(ctx, f.therapistT, f.managerA.ID)
	assert.Equal(t, apperrors.ErrForbidden, apperrors.CodeOf(err))

	updated, err := f.svc.Update(ctx, f.therapistT, f.therapistT.ID, &model.UpdateUserRequest{Phone: str("5511988887777")})
	require.NoError(t, err)
	assert.Equal(t, "5511988887777", *updated.Phone)

	_, err = f.svc.Update(ctx, f.therapistT, f.therapistT.ID, &model.UpdateUserRequest{Role: str("BRANCH_MANAGER")})
	assert.Equal(t, apperrors.ErrForbidden, apperrors.CodeOf(err))

	branchB := f.branchB.ID.String()
	_, err = f.svc.Update(ctx, f.managerA, f.receptionistA.ID, &model.UpdateUserRequest{BranchID: &branchB})
	assert.Equal(t, apperrors.ErrForbidden, apperrors.CodeOf(err))

	_, err = f.svc.Update(ctx, f.managerA, f.receptionistA.ID, &model.UpdateUserRequest{Role: str("NETWORK_MANAGER")})
	assert.Equal(t, apperrors.ErrForbidden, apperrors.CodeOf(err))

	moved, err := f.svc.Update(ctx, f.network, f.receptionistA.ID, &model.UpdateUserRequest{BranchID: &branchB})
	require.NoError(t, err)
	assert.Equal(t, f.branchB.ID, *moved.BranchID)
}

func TestOwningTherapistKeepsRoleAndBranch(t *testing.T) {
	f := newFixture(t, 5)
	ctx := context.Background()

	patient := &model.Patient{ClinicID: f.clinic.ID, FullName: "Maria", CPF: "52998224725", Active: true}
	patient.ID = uuid.New()
	patient.AssignTo(f.therapistT)
	f.store.Seed(patient)

	branchB := f.branchB.ID.String()
	for name, req := range map[string]*model.UpdateUserRequest{
		"role":   {Role: str("RECEPTIONIST")},
		"branch": {BranchID: &branchB},
	} {
		_, err := f.svc.Update(ctx, f.network, f.therapistT.ID, req)
		assert.Equal(t, apperrors.ErrIntegrity, apperrors.CodeOf(err), name)
	}

	stored, err := f.store.Users().Get(ctx, f.therapistT.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RoleTherapist, stored.Role)
	assert.Equal(t, f.branchA.ID, *stored.BranchID)

	free := &model.User{ClinicID: f.clinic.ID, BranchID: &f.branchA.ID, Role: model.RoleTherapist,
		Email: "free@physio.test", Name: "free", Active: true, LicenseID: str("CREFITO-3/11111-F")}
	free.ID = uuid.New()
	f.store.Seed(free)
	moved, err := f.svc.Update(ctx, f.network, free.ID, &model.UpdateUserRequest{BranchID: &branchB})
	require.NoError(t, err)
	assert.Equal(t, f.branchB.ID, *moved.BranchID)
}

func TestDeactivate(t *testing.T) {
	f := newFixture(t, 5)
	ctx := context.Background()

	err := f.svc.Deactivate(ctx, f.managerA, f.managerA.ID)
	assert.Equal(t, apperrors.ErrValidation, apperrors.CodeOf(err))

	err = f.svc.Deactivate(ctx, f.managerA, f.network.ID)
	assert.Equal(t, apperrors.ErrForbidden, apperrors.CodeOf(err))

	require.NoError(t, f.svc.Deactivate(ctx, f.managerA, f.therapistT.ID))
	err = f.svc.Deactivate(ctx, f.managerA, f.therapistT.ID)
	assert.Equal(t, apperrors.ErrStateConflict, apperrors.CodeOf(err))

	stored, err := f.store.Users().Get(ctx, f.therapistT.ID)
	require.NoError(t, err)
	assert.False(t, stored.Active)
}

func TestListScopes(t *testing.T) {
	f := newFixture(t, 5)
	ctx := context.Background()

	_, total, err := f.svc.List(ctx, f.network, &model.UserFilter{})
	require.NoError(t, err)
	assert.Equal(t, 4, total)

	_, total, err = f.svc.List(ctx, f.managerA, &model.UserFilter{})
	require.NoError(t, err)
	assert.Equal(t, 3, total)

	_, _, err = f.svc.List(ctx, f.therapistT, &model.UserFilter{})
	assert.Equal(t, apperrors.ErrForbidden, apperrors.CodeOf(err))
}

func TestListTransferTargets(t *testing.T) {
	f := newFixture(t, 5)
	ctx := context.Background()
	_, err := f.svc.Create(ctx, f.network, therapistReq("other@physio.test", f.branchB))
	require.NoError(t, err)

	targets, err := f.svc.ListTransferTargets(ctx, f.therapistT)
	require.NoError(t, err)
	require.Len(t, targets, 1)
	assert.Equal(t, "other@physio.test", targets[0].Email)

	targets, err = f.svc.ListTransferTargets(ctx, f.network)
	require.NoError(t, err)
	assert.Len(t, targets, 2)

	_, err = f.svc.ListTransferTargets(ctx, f.receptionistA)
	assert.Equal(t, apperrors.ErrForbidden, apperrors.CodeOf(err))
}
