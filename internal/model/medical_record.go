package model

import (
	"github.com/google/uuid"
)

type MedicalRecordType string

const (
	RecordTypeEvaluation MedicalRecordType = "EVALUATION"
	RecordTypeEvolution  MedicalRecordType = "EVOLUTION"
	RecordTypeDischarge  MedicalRecordType = "DISCHARGE"
	RecordTypeNote       MedicalRecordType = "NOTE"
)

// MedicalRecord is clinical content attached to a patient.
type MedicalRecord struct {
	Base
	PatientID uuid.UUID         `db:"patient_id" json:"patient_id"`
	AuthorID  uuid.UUID         `db:"author_id" json:"author_id"`
	Type      MedicalRecordType `db:"record_type" json:"record_type"`
	Title     string            `db:"title" json:"title"`
	Content   string            `db:"content" json:"content"`
}

type CreateMedicalRecordRequest struct {
	Type    string `json:"record_type" binding:"required,oneof=EVALUATION EVOLUTION DISCHARGE NOTE"`
	Title   string `json:"title" binding:"required,max=200"`
	Content string `json:"content" binding:"required"`
}
