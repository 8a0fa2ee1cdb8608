package model

import (
	"time"

	"github.com/google/uuid"
)

// PatientTransferHistory is written once per completed transfer and never changed.
type PatientTransferHistory struct {
	ID              uuid.UUID  `db:"id" json:"id"`
	PatientID       uuid.UUID  `db:"patient_id" json:"patient_id"`
	FromTherapistID uuid.UUID  `db:"from_therapist_id" json:"from_therapist_id"`
	ToTherapistID   uuid.UUID  `db:"to_therapist_id" json:"to_therapist_id"`
	FromBranchID    *uuid.UUID `db:"from_branch_id" json:"from_branch_id,omitempty"`
	ToBranchID      *uuid.UUID `db:"to_branch_id" json:"to_branch_id,omitempty"`
	Reason          string     `db:"reason" json:"reason"`
	TransferredBy   uuid.UUID  `db:"transferred_by" json:"transferred_by"`
	TransferredAt   time.Time  `db:"transferred_at" json:"transferred_at"`
}

type TransferStatus string

const (
	TransferStatusPending   TransferStatus = "PENDING"
	TransferStatusApproved  TransferStatus = "APPROVED"
	TransferStatusRejected  TransferStatus = "REJECTED"
	TransferStatusCancelled TransferStatus = "CANCELLED"
)

// Terminal reports whether no further transition is possible.
func (s TransferStatus) Terminal() bool {
	return s == TransferStatusApproved || s == TransferStatusRejected || s == TransferStatusCancelled
}

// TransferRequest is an approval-gated proposal to move a patient to another therapist.
type TransferRequest struct {
	Base
	PatientID     uuid.UUID      `db:"patient_id" json:"patient_id"`
	ClinicID      uuid.UUID      `db:"clinic_id" json:"clinic_id"`
	RequestedBy   uuid.UUID      `db:"requested_by" json:"requested_by"`
	FromBranchID  *uuid.UUID     `db:"from_branch_id" json:"from_branch_id,omitempty"`
	ToTherapistID uuid.UUID      `db:"to_therapist_id" json:"to_therapist_id"`
	ToBranchID    *uuid.UUID     `db:"to_branch_id" json:"to_branch_id,omitempty"`
	Reason        string         `db:"reason" json:"reason"`
	Status        TransferStatus `db:"status" json:"status"`
	ReviewedBy    *uuid.UUID     `db:"reviewed_by" json:"reviewed_by,omitempty"`
	ReviewNote    *string        `db:"review_note" json:"review_note,omitempty"`
	ReviewedAt    *time.Time     `db:"reviewed_at" json:"reviewed_at,omitempty"`
}

// Touches reports whether the request moves a patient out of or into branchID.
func (r *TransferRequest) Touches(branchID *uuid.UUID) bool {
	return SameID(r.FromBranchID, branchID) || SameID(r.ToBranchID, branchID)
}

type TransferRequestFilter struct {
	Pagination
	Status    TransferStatus `form:"status"`
	PatientID *uuid.UUID     `form:"-"`
}

// TransferRequestScope narrows request listings to what a caller may see.
// Nil fields are unrestricted.
type TransferRequestScope struct {
	ClinicID    uuid.UUID
	BranchID    *uuid.UUID
	TherapistID *uuid.UUID
}

type DirectTransferRequest struct {
	ToTherapistID string `json:"to_therapist_id" binding:"required,uuid"`
	Reason        string `json:"reason" binding:"required,max=1000"`
}

type CreateTransferRequest struct {
	PatientID     string `json:"patient_id" binding:"required,uuid"`
	ToTherapistID string `json:"to_therapist_id" binding:"required,uuid"`
	Reason        string `json:"reason" binding:"required,max=1000"`
}

type ReviewTransferRequest struct {
	Note string `json:"note" binding:"max=1000"`
}
