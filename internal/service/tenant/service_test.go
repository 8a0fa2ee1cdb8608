package tenant

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

func newService() (*Service, *memory.Store) {
	s := memory.New()
	return NewService(s, s.Clinics(), s.Branches(), s.Users(), security.NewBcryptHasher(bcrypt.MinCost), audit.NewService(s.Audit())), s
}

func clinicReq() *model.CreateClinicRequest {
	return &model.CreateClinicRequest{
		Name:      "Physio Centro",
		LegalName: "Physio Centro LTDA",
		TaxID:     "11.222.333/0001-81",
		Manager: model.CreateUserRequest{
			Email:    "Owner@Physio.test",
			Name:     "Owner",
			Password: "s3cret-pass",
			Role:     "RECEPTIONIST",
		},
	}
}

func TestCreateClinic(t *testing.T) {
	svc, store := newService()
	ctx := context.Background()

	clinic, manager, err := svc.CreateClinic(ctx, clinicReq())
	require.NoError(t, err)
	assert.Equal(t, "11222333000181", clinic.TaxID)
	assert.Equal(t, model.DefaultMaxTherapists, clinic.MaxTherapists)
	assert.True(t, clinic.Active)

	assert.Equal(t, model.RoleNetworkManager, manager.Role)
	assert.Nil(t, manager.BranchID)
	assert.Equal(t, clinic.ID, manager.ClinicID)
	assert.Equal(t, "owner@physio.test", manager.Email)
	require.NoError(t, bcrypt.CompareHashAndPassword([]byte(manager.PasswordHash), []byte("s3cret-pass")))

	stored, err := store.Users().GetByEmail(ctx, "owner@physio.test")
	require.NoError(t, err)
	assert.Equal(t, manager.ID, stored.ID)

	_, _, err = svc.CreateClinic(ctx, clinicReq())
	assert.Equal(t, apperrors.ErrIntegrity, apperrors.CodeOf(err))
}

func TestCreateClinicValidation(t *testing.T) {
	svc, _ := newService()
	ctx := context.Background()

	req := clinicReq()
	req.TaxID = "11.222.333/0001-00"
	_, _, err := svc.CreateClinic(ctx, req)
	assert.Equal(t, apperrors.ErrValidation, apperrors.CodeOf(err))

	req = clinicReq()
	req.Manager.Password = "short"
	_, _, err = svc.CreateClinic(ctx, req)
	assert.Equal(t, apperrors.ErrValidation, apperrors.CodeOf(err))
}

func TestBranches(t *testing.T) {
	svc, _ := newService()
	ctx := context.Background()

	_, network, err := svc.CreateClinic(ctx, clinicReq())
	require.NoError(t, err)

	a, err := svc.CreateBranch(ctx, network, &model.CreateBranchRequest{Name: "Centro"})
	require.NoError(t, err)
	b, err := svc.CreateBranch(ctx, network, &model.CreateBranchRequest{Name: "Zona Sul"})
	require.NoError(t, err)

	_, err = svc.CreateBranch(ctx, network, &model.CreateBranchRequest{Name: "centro"})
	assert.Equal(t, apperrors.ErrIntegrity, apperrors.CodeOf(err))

	manager := &model.User{ClinicID: network.ClinicID, BranchID: &a.ID, Role: model.RoleBranchManager, Active: true}
	manager.ID = uuid.New()

	_, err = svc.CreateBranch(ctx, manager, &model.CreateBranchRequest{Name: "Norte"})
	assert.Equal(t, apperrors.ErrForbidden, apperrors.CodeOf(err))

	all, err := svc.ListBranches(ctx, network)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	own, err := svc.ListBranches(ctx, manager)
	require.NoError(t, err)
	require.Len(t, own, 1)
	assert.Equal(t, a.ID, own[0].ID)

	_, err = svc.GetBranch(ctx, manager, b.ID)
	assert.Equal(t, apperrors.ErrForbidden, apperrors.CodeOf(err))
	_, err = svc.GetBranch(ctx, network, b.ID)
	assert.NoError(t, err)
}
