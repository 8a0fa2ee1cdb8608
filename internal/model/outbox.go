package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type OutboxStatus string

const (
	OutboxStatusPending   OutboxStatus = "PENDING"
	OutboxStatusRetry     OutboxStatus = "RETRY"
	OutboxStatusProcessed OutboxStatus = "PROCESSED"
	OutboxStatusFailed    OutboxStatus = "FAILED"
)

// Event types published through the outbox.
const (
	EventPatientTransferred       = "patient.transferred"
	EventTransferRequestCreated   = "transfer_request.created"
	EventTransferRequestApproved  = "transfer_request.approved"
	EventTransferRequestRejected  = "transfer_request.rejected"
	EventTransferRequestCancelled = "transfer_request.cancelled"
)

type OutboxEvent struct {
	ID           uuid.UUID       `db:"id" json:"id"`
	EventType    string          `db:"event_type" json:"event_type"`
	Payload      json.RawMessage `db:"payload" json:"payload"`
	Status       OutboxStatus    `db:"status" json:"status"`
	ErrorMessage *string         `db:"error_message" json:"error_message,omitempty"`
	RetryCount   int             `db:"retry_count" json:"retry_count"`
	RetryAt      *time.Time      `db:"retry_at" json:"retry_at,omitempty"`
	ProcessedAt  *time.Time      `db:"processed_at" json:"processed_at,omitempty"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time       `db:"updated_at" json:"updated_at"`
}

// NewOutboxEvent marshals payload into a pending event.
func NewOutboxEvent(eventType string, payload interface{}) (*OutboxEvent, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	return &OutboxEvent{
		ID:        uuid.New(),
		EventType: eventType,
		Payload:   data,
		Status:    OutboxStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// TransferEvent is the payload of every transfer related event.
type TransferEvent struct {
	ClinicID      uuid.UUID      `json:"clinic_id"`
	PatientID     uuid.UUID      `json:"patient_id"`
	RequestID     *uuid.UUID     `json:"request_id,omitempty"`
	Status        TransferStatus `json:"status,omitempty"`
	FromTherapist uuid.UUID      `json:"from_therapist_id"`
	ToTherapist   uuid.UUID      `json:"to_therapist_id"`
	FromBranchID  *uuid.UUID     `json:"from_branch_id,omitempty"`
	ToBranchID    *uuid.UUID     `json:"to_branch_id,omitempty"`
	ActorID       uuid.UUID      `json:"actor_id"`
	Reason        string         `json:"reason,omitempty"`
	OccurredAt    time.Time      `json:"occurred_at"`
}
