package model

import (
	"time"

	"github.com/google/uuid"
)

// Patient is a clinical record owned by one therapist. It is never a login identity.
type Patient struct {
	Base
	ClinicID             uuid.UUID  `db:"clinic_id" json:"clinic_id"`
	BranchID             *uuid.UUID `db:"branch_id" json:"branch_id,omitempty"`
	TherapistID          uuid.UUID  `db:"therapist_id" json:"therapist_id"`
	FullName             string     `db:"full_name" json:"full_name"`
	CPF                  string     `db:"cpf" json:"cpf"`
	BirthDate            *time.Time `db:"birth_date" json:"birth_date,omitempty"`
	Gender               *string    `db:"gender" json:"gender,omitempty"`
	Phone                *string    `db:"phone" json:"phone,omitempty"`
	Email                *string    `db:"email" json:"email,omitempty"`
	Address              *string    `db:"address" json:"address,omitempty"`
	ChiefComplaint       *string    `db:"chief_complaint" json:"chief_complaint,omitempty"`
	BloodType            *string    `db:"blood_type" json:"blood_type,omitempty"`
	Allergies            *string    `db:"allergies" json:"allergies,omitempty"`
	Medications          *string    `db:"medications" json:"medications,omitempty"`
	MedicalHistory       *string    `db:"medical_history" json:"medical_history,omitempty"`
	Notes                *string    `db:"notes" json:"notes,omitempty"`
	AvailableForTransfer bool       `db:"available_for_transfer" json:"available_for_transfer"`
	Active               bool       `db:"active" json:"active"`
	LastVisit            *time.Time `db:"last_visit" json:"last_visit,omitempty"`
}

// PatientSummary is the basic-data view served to callers without clinical access.
type PatientSummary struct {
	ID                   uuid.UUID  `json:"id"`
	ClinicID             uuid.UUID  `json:"clinic_id"`
	BranchID             *uuid.UUID `json:"branch_id,omitempty"`
	TherapistID          uuid.UUID  `json:"therapist_id"`
	FullName             string     `json:"full_name"`
	CPF                  string     `json:"cpf"`
	BirthDate            *time.Time `json:"birth_date,omitempty"`
	Gender               *string    `json:"gender,omitempty"`
	Phone                *string    `json:"phone,omitempty"`
	Email                *string    `json:"email,omitempty"`
	Address              *string    `json:"address,omitempty"`
	AvailableForTransfer bool       `json:"available_for_transfer"`
	Active               bool       `json:"active"`
	LastVisit            *time.Time `json:"last_visit,omitempty"`
}

// Summary strips clinical fields.
func (p *Patient) Summary() *PatientSummary {
	return &PatientSummary{
		ID:                   p.ID,
		ClinicID:             p.ClinicID,
		BranchID:             p.BranchID,
		TherapistID:          p.TherapistID,
		FullName:             p.FullName,
		CPF:                  p.CPF,
		BirthDate:            p.BirthDate,
		Gender:               p.Gender,
		Phone:                p.Phone,
		Email:                p.Email,
		Address:              p.Address,
		AvailableForTransfer: p.AvailableForTransfer,
		Active:               p.Active,
		LastVisit:            p.LastVisit,
	}
}

// AssignTo sets the therapist and moves the patient to the therapist's branch.
func (p *Patient) AssignTo(therapist *User) {
	p.TherapistID = therapist.ID
	p.BranchID = therapist.BranchID
}

// CPFScope selects where patient CPFs must be unique.
type CPFScope string

const (
	CPFScopeClinic CPFScope = "clinic"
	CPFScopeGlobal CPFScope = "global"
)

type PatientFilter struct {
	Pagination
	SearchTerm           string `form:"search_term"`
	ActiveOnly           bool   `form:"active_only"`
	AvailableForTransfer *bool  `form:"available_for_transfer"`
}

type CreatePatientRequest struct {
	TherapistID    *string    `json:"therapist_id" binding:"omitempty,uuid"`
	FullName       string     `json:"full_name" binding:"required,max=200"`
	CPF            string     `json:"cpf" binding:"required,cpf"`
	BirthDate      *time.Time `json:"birth_date"`
	Gender         *string    `json:"gender" binding:"omitempty,oneof=M F O"`
	Phone          *string    `json:"phone"`
	Email          *string    `json:"email" binding:"omitempty,email"`
	Address        *string    `json:"address"`
	ChiefComplaint *string    `json:"chief_complaint"`
	BloodType      *string    `json:"blood_type"`
	Allergies      *string    `json:"allergies"`
	Medications    *string    `json:"medications"`
	MedicalHistory *string    `json:"medical_history"`
	Notes          *string    `json:"notes"`
}

// HasClinicalData reports whether any clinical field is set.
func (r *CreatePatientRequest) HasClinicalData() bool {
	return anySet(r.ChiefComplaint, r.BloodType, r.Allergies, r.Medications, r.MedicalHistory, r.Notes)
}

type UpdatePatientRequest struct {
	FullName       *string    `json:"full_name" binding:"omitempty,max=200"`
	BirthDate      *time.Time `json:"birth_date"`
	Gender         *string    `json:"gender" binding:"omitempty,oneof=M F O"`
	Phone          *string    `json:"phone"`
	Email          *string    `json:"email" binding:"omitempty,email"`
	Address        *string    `json:"address"`
	ChiefComplaint *string    `json:"chief_complaint"`
	BloodType      *string    `json:"blood_type"`
	Allergies      *string    `json:"allergies"`
	Medications    *string    `json:"medications"`
	MedicalHistory *string    `json:"medical_history"`
	Notes          *string    `json:"notes"`
	LastVisit      *time.Time `json:"last_visit"`
}

func (r *UpdatePatientRequest) HasClinicalData() bool {
	return anySet(r.ChiefComplaint, r.BloodType, r.Allergies, r.Medications, r.MedicalHistory, r.Notes)
}

// Apply copies set fields onto p.
func (r *UpdatePatientRequest) Apply(p *Patient) {
	if r.FullName != nil {
		p.FullName = *r.FullName
	}
	if r.BirthDate != nil {
		p.BirthDate = r.BirthDate
	}
	if r.Gender != nil {
		p.Gender = r.Gender
	}
	if r.Phone != nil {
		p.Phone = r.Phone
	}
	if r.Email != nil {
		p.Email = r.Email
	}
	if r.Address != nil {
		p.Address = r.Address
	}
	if r.ChiefComplaint != nil {
		p.ChiefComplaint = r.ChiefComplaint
	}
	if r.BloodType != nil {
		p.BloodType = r.BloodType
	}
	if r.Allergies != nil {
		p.Allergies = r.Allergies
	}
	if r.Medications != nil {
		p.Medications = r.Medications
	}
	if r.MedicalHistory != nil {
		p.MedicalHistory = r.MedicalHistory
	}
	if r.Notes != nil {
		p.Notes = r.Notes
	}
	if r.LastVisit != nil {
		p.LastVisit = r.LastVisit
	}
}

type SetAvailabilityRequest struct {
	AvailableForTransfer *bool `json:"available_for_transfer" binding:"required"`
}

type ValidateCPFRequest struct {
	CPF string `json:"cpf" binding:"required"`
}

type ValidateCPFResponse struct {
	CPF       string `json:"cpf"`
	Valid     bool   `json:"valid"`
	Available bool   `json:"available"`
	Message   string `json:"message,omitempty"`
}

func anySet(fields ...*string) bool {
	for _, f := range fields {
		if f != nil {
			return true
		}
	}
	return false
}
