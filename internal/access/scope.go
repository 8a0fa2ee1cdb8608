package access

import (
	"github.com/jwalitptl/physiocapture-api/internal/model"
)

// PatientScope returns the listing filter matching CanAccessPatient.
// ok is false when the caller may not list patients at all.
func PatientScope(caller *model.User) (scope model.Scope, ok bool) {
	if !active(caller) {
		return model.Scope{}, false
	}
	scope.ClinicID = caller.ClinicID
	switch {
	case caller.IsNetworkManager():
		return scope, true
	case caller.IsBranchManager(), caller.IsReceptionist():
		scope.BranchID = caller.BranchID
		return scope, true
	case caller.IsTherapist():
		id := caller.ID
		scope.TherapistID = &id
		return scope, true
	}
	return model.Scope{}, false
}

// UserScope returns the listing filter for staff listings. Managers see who
// they may manage; everyone else sees nobody but themselves.
func UserScope(caller *model.User) (scope model.Scope, ok bool) {
	if !CanManageUsers(caller) {
		return model.Scope{}, false
	}
	scope.ClinicID = caller.ClinicID
	if caller.IsBranchManager() {
		scope.BranchID = caller.BranchID
	}
	return scope, true
}

// TransferRequestScope mirrors CanViewTransferRequest for listings.
func TransferRequestScope(caller *model.User) (scope model.TransferRequestScope, ok bool) {
	if !active(caller) {
		return model.TransferRequestScope{}, false
	}
	scope.ClinicID = caller.ClinicID
	switch {
	case caller.IsNetworkManager():
		return scope, true
	case caller.IsBranchManager():
		scope.BranchID = caller.BranchID
		return scope, true
	case caller.IsTherapist():
		id := caller.ID
		scope.TherapistID = &id
		return scope, true
	}
	return model.TransferRequestScope{}, false
}

// ScheduleScope mirrors CanViewSchedule: therapists see their own entries,
// branch-bound roles their branch, network managers the clinic.
func ScheduleScope(caller *model.User) (scope model.Scope, ok bool) {
	if !CanViewSchedule(caller) {
		return model.Scope{}, false
	}
	return PatientScope(caller)
}

// Capabilities lists the caller-only decisions, for clients that hide forbidden actions.
type Capabilities struct {
	ManageUsers        bool `json:"manage_users"`
	AccessClinicalData bool `json:"access_clinical_data"`
	ManageSchedule     bool `json:"manage_schedule"`
	ViewSchedule       bool `json:"view_schedule"`
	ManageInventory    bool `json:"manage_inventory"`
	ViewReports        bool `json:"view_reports"`
	ReviewTransfers    bool `json:"review_transfers"`
	RequestTransfers   bool `json:"request_transfers"`
}

func CapabilitiesOf(caller *model.User) Capabilities {
	return Capabilities{
		ManageUsers:        CanManageUsers(caller),
		AccessClinicalData: CanAccessClinicalData(caller),
		ManageSchedule:     CanManageSchedule(caller),
		ViewSchedule:       CanViewSchedule(caller),
		ManageInventory:    CanManageInventory(caller),
		ViewReports:        CanViewReports(caller),
		ReviewTransfers:    active(caller) && caller.IsManager(),
		RequestTransfers:   active(caller) && caller.IsTherapist(),
	}
}
