package model

import (
	"github.com/google/uuid"
)

const DefaultMaxTherapists = 5

// Clinic is the tenant root.
type Clinic struct {
	Base
	Name          string `db:"name" json:"name"`
	LegalName     string `db:"legal_name" json:"legal_name"`
	TaxID         string `db:"tax_id" json:"tax_id"`
	Active        bool   `db:"active" json:"active"`
	MaxTherapists int    `db:"max_therapists" json:"max_therapists"`
}

// Branch is a physical location of a clinic.
type Branch struct {
	Base
	ClinicID uuid.UUID `db:"clinic_id" json:"clinic_id"`
	Name     string    `db:"name" json:"name"`
	Active   bool      `db:"active" json:"active"`
}

type CreateClinicRequest struct {
	Name          string            `json:"name" binding:"required"`
	LegalName     string            `json:"legal_name" binding:"required"`
	TaxID         string            `json:"tax_id" binding:"required,cnpj"`
	MaxTherapists int               `json:"max_therapists" binding:"omitempty,min=1"`
	Manager       CreateUserRequest `json:"manager"`
}

type CreateBranchRequest struct {
	Name string `json:"name" binding:"required,max=100"`
}
