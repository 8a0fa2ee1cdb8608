package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type AuditLog struct {
	ID         uuid.UUID       `json:"id" db:"id"`
	UserID     uuid.UUID       `json:"user_id" db:"user_id"`
	ClinicID   uuid.UUID       `json:"clinic_id" db:"clinic_id"`
	Action     string          `json:"action" db:"action"`
	EntityType string          `json:"entity_type" db:"entity_type"`
	EntityID   uuid.UUID       `json:"entity_id" db:"entity_id"`
	Changes    json.RawMessage `json:"changes" db:"changes"`
	IPAddress  string          `json:"ip_address" db:"ip_address"`
	UserAgent  string          `json:"user_agent" db:"user_agent"`
	CreatedAt  time.Time       `json:"created_at" db:"created_at"`
}

const (
	// Action types
	AuditActionCreate   = "create"
	AuditActionUpdate   = "update"
	AuditActionDelete   = "delete"
	AuditActionLogin    = "login"
	AuditActionTransfer = "transfer"
	AuditActionRequest  = "request_transfer"
	AuditActionApprove  = "approve_transfer"
	AuditActionReject   = "reject_transfer"
	AuditActionCancel   = "cancel_transfer"

	// Entity types
	AuditEntityClinic          = "clinic"
	AuditEntityBranch          = "branch"
	AuditEntityUser            = "user"
	AuditEntityPatient         = "patient"
	AuditEntityMedicalRecord   = "medical_record"
	AuditEntityAppointment     = "appointment"
	AuditEntityTransferRequest = "transfer_request"
)

func ValidAuditEntity(entityType string) bool {
	switch entityType {
	case AuditEntityClinic, AuditEntityBranch, AuditEntityUser, AuditEntityPatient,
		AuditEntityMedicalRecord, AuditEntityAppointment, AuditEntityTransferRequest:
		return true
	}
	return false
}
