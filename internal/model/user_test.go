package model

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRole(t *testing.T) {
	cases := map[string]Role{
		"NETWORK_MANAGER": RoleNetworkManager,
		"branch_manager":  RoleBranchManager,
		" therapist ":     RoleTherapist,
		"RECEPTIONIST":    RoleReceptionist,
		"MANAGER":         RoleNetworkManager,
		"GESTOR_GERAL":    RoleNetworkManager,
		"GESTOR_FILIAL":   RoleBranchManager,
		"FISIOTERAPEUTA":  RoleTherapist,
		"ATENDENTE":       RoleReceptionist,
	}
	for in, want := range cases {
		got, err := ParseRole(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseRole("ADMIN")
	assert.Error(t, err)
}

func TestRolePredicatesAreNilSafe(t *testing.T) {
	var u *User
	assert.False(t, u.IsManager())
	assert.False(t, u.IsTherapist())
	assert.False(t, u.IsReceptionist())
	assert.False(t, u.InBranch(nil))
}

func TestValidateAssignment(t *testing.T) {
	branch := uuid.New()
	license := "CREFITO-12345"

	cases := []struct {
		name      string
		user      User
		branches  bool
		wantField string
	}{
		{"network manager without branch", User{Role: RoleNetworkManager}, true, ""},
		{"network manager with branch", User{Role: RoleNetworkManager, BranchID: &branch}, true, "branch_id"},
		{"branch manager needs branch", User{Role: RoleBranchManager}, true, "branch_id"},
		{"receptionist in single branch clinic", User{Role: RoleReceptionist}, false, ""},
		{"therapist needs license", User{Role: RoleTherapist, BranchID: &branch}, true, "license_id"},
		{"therapist with license", User{Role: RoleTherapist, BranchID: &branch, LicenseID: &license}, true, ""},
		{"unknown role", User{Role: "ADMIN"}, false, "role"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			field, err := tc.user.ValidateAssignment(tc.branches)
			assert.Equal(t, tc.wantField, field)
			if tc.wantField == "" {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestAssignToMovesBranch(t *testing.T) {
	branch := uuid.New()
	therapist := &User{Role: RoleTherapist, BranchID: &branch}
	therapist.ID = uuid.New()
	p := &Patient{}

	p.AssignTo(therapist)

	assert.Equal(t, therapist.ID, p.TherapistID)
	assert.Equal(t, branch, *p.BranchID)
}

func TestTransferStatusTerminal(t *testing.T) {
	assert.False(t, TransferStatusPending.Terminal())
	assert.True(t, TransferStatusApproved.Terminal())
	assert.True(t, TransferStatusRejected.Terminal())
	assert.True(t, TransferStatusCancelled.Terminal())
}
