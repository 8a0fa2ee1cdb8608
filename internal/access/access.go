// Package access decides what a staff user may do with clinic data.
//
// Every function is pure and total. A nil caller, an inactive caller, an
// unknown role and any combination not explicitly granted are denied.
// Tenant isolation is always checked before role logic.
package access

import (
	"github.com/google/uuid"

	"github.com/jwalitptl/physiocapture-api/internal/model"
)

// active is the precondition of every grant.
func active(u *model.User) bool {
	return u != nil && u.Active && u.Role.Valid()
}

func sameClinic(caller *model.User, clinicID uuid.UUID) bool {
	return caller.ClinicID == clinicID
}

// CanManageUsers is true for either manager kind.
func CanManageUsers(caller *model.User) bool {
	return active(caller) && caller.IsManager()
}

// CanManageUser decides whether caller may administer target.
func CanManageUser(caller, target *model.User) bool {
	if !active(caller) || target == nil || !sameClinic(caller, target.ClinicID) {
		return false
	}
	switch {
	case caller.IsNetworkManager():
		return true
	case caller.IsBranchManager():
		return target.BranchID != nil && caller.InBranch(target.BranchID)
	}
	return false
}

// CanAccessClinicalData blocks receptionists from clinical content regardless of ownership.
func CanAccessClinicalData(caller *model.User) bool {
	return active(caller) && (caller.IsManager() || caller.IsTherapist())
}

// CanManageSchedule allows schedule writes. Therapists are read-only.
func CanManageSchedule(caller *model.User) bool {
	return active(caller) && (caller.IsManager() || caller.IsReceptionist())
}

// CanViewSchedule allows schedule reads for every active role.
func CanViewSchedule(caller *model.User) bool {
	return active(caller)
}

func CanManageInventory(caller *model.User) bool {
	return active(caller) && caller.IsManager()
}

// CanViewReports grants reports to managers. Scoping the report data is a query concern.
func CanViewReports(caller *model.User) bool {
	return active(caller) && caller.IsManager()
}

// CanManageBranches allows creating branches. Only network managers span branches.
func CanManageBranches(caller *model.User) bool {
	return active(caller) && caller.IsNetworkManager()
}

// CanViewAuditTrail guards the audit log. Entries span branches, so only
// network managers read it.
func CanViewAuditTrail(caller *model.User) bool {
	return active(caller) && caller.IsNetworkManager()
}

// CanAccessFilial decides branch visibility.
func CanAccessFilial(caller *model.User, branch *model.Branch) bool {
	if !active(caller) || branch == nil || !sameClinic(caller, branch.ClinicID) {
		return false
	}
	if caller.IsNetworkManager() {
		return true
	}
	return caller.InBranch(&branch.ID)
}

// CanAccessPatient decides basic-data access to a patient.
func CanAccessPatient(caller *model.User, patient *model.Patient) bool {
	if !active(caller) || patient == nil || !sameClinic(caller, patient.ClinicID) {
		return false
	}
	switch {
	case caller.IsNetworkManager():
		return true
	case caller.IsBranchManager(), caller.IsReceptionist():
		return caller.InBranch(patient.BranchID)
	case caller.IsTherapist():
		return patient.TherapistID == caller.ID
	}
	return false
}

// CanAccessPatientClinicalData is the conjunction of clinical and patient access.
func CanAccessPatientClinicalData(caller *model.User, patient *model.Patient) bool {
	return CanAccessClinicalData(caller) && CanAccessPatient(caller, patient)
}

// CanTransferPatient decides a direct transfer. targetBranch is the branch the
// patient would move to, nil when unknown or unchanged. Therapists may only
// move patients within their own branch; cross-branch moves go through a
// transfer request.
func CanTransferPatient(caller *model.User, patient *model.Patient, targetBranch *uuid.UUID) bool {
	if !CanAccessPatient(caller, patient) {
		return false
	}
	switch {
	case caller.IsNetworkManager():
		return true
	case caller.IsBranchManager():
		return caller.InBranch(patient.BranchID)
	case caller.IsTherapist():
		return patient.TherapistID == caller.ID && (targetBranch == nil || caller.InBranch(targetBranch))
	}
	return false
}

// CanReviewTransfer decides who may approve or reject a transfer request:
// network managers of the clinic, and branch managers of the origin or target branch.
func CanReviewTransfer(caller *model.User, req *model.TransferRequest) bool {
	if !active(caller) || req == nil || !sameClinic(caller, req.ClinicID) {
		return false
	}
	switch {
	case caller.IsNetworkManager():
		return true
	case caller.IsBranchManager():
		return req.Touches(caller.BranchID)
	}
	return false
}

// CanCancelTransfer is true only for the original requester.
func CanCancelTransfer(caller *model.User, req *model.TransferRequest) bool {
	return active(caller) && req != nil && sameClinic(caller, req.ClinicID) && req.RequestedBy == caller.ID
}

// CanViewTransferRequest decides visibility of a single request.
func CanViewTransferRequest(caller *model.User, req *model.TransferRequest) bool {
	if CanReviewTransfer(caller, req) {
		return true
	}
	return active(caller) && caller.IsTherapist() && req != nil && sameClinic(caller, req.ClinicID) &&
		(req.RequestedBy == caller.ID || req.ToTherapistID == caller.ID)
}
