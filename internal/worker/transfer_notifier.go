package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/jwalitptl/physiocapture-api/internal/email"
	"github.com/jwalitptl/physiocapture-api/internal/model"
	"github.com/jwalitptl/physiocapture-api/internal/repository"
	"github.com/jwalitptl/physiocapture-api/pkg/logger"
	"github.com/jwalitptl/physiocapture-api/pkg/messaging"
)

// TransferNotifier emails the staff involved in a transfer when its events
// are published.
type TransferNotifier struct {
	users  repository.UserRepository
	sender email.Sender
	logger *logger.Logger
}

func NewTransferNotifier(users repository.UserRepository, sender email.Sender, l *logger.Logger) *TransferNotifier {
	return &TransferNotifier{
		users:  users,
		sender: sender,
		logger: l.WithComponent("transfer-notifier"),
	}
}

var transferChannels = []string{
	model.EventPatientTransferred,
	model.EventTransferRequestCreated,
	model.EventTransferRequestApproved,
	model.EventTransferRequestRejected,
	model.EventTransferRequestCancelled,
}

// Start subscribes to every transfer channel. Consumption stops with ctx.
func (n *TransferNotifier) Start(ctx context.Context, broker messaging.Broker) error {
	for _, channel := range transferChannels {
		channel := channel
		handle := func(ctx context.Context, payload []byte) error {
			return n.Handle(ctx, channel, payload)
		}
		onError := func(err error) {
			n.logger.Error(err, "Failed to notify", "event_type", channel)
		}
		if err := messaging.Consume(ctx, broker, channel, handle, onError); err != nil {
			return fmt.Errorf("failed to subscribe to %s: %w", channel, err)
		}
	}
	n.logger.Info("Transfer notifier subscribed", "channels", len(transferChannels))
	return nil
}

// Handle sends the notification for one event.
func (n *TransferNotifier) Handle(ctx context.Context, eventType string, payload []byte) error {
	var event model.TransferEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return fmt.Errorf("invalid %s payload: %w", eventType, err)
	}

	var (
		recipients []*model.User
		subject    string
		err        error
	)
	switch eventType {
	case model.EventTransferRequestCreated, model.EventTransferRequestCancelled:
		recipients, err = n.reviewers(ctx, &event)
		subject = "Transfer request awaiting review"
		if eventType == model.EventTransferRequestCancelled {
			subject = "Transfer request cancelled"
		}
	case model.EventTransferRequestApproved:
		recipients, err = n.usersByID(ctx, event.FromTherapist, event.ToTherapist)
		subject = "Transfer request approved"
	case model.EventTransferRequestRejected:
		recipients, err = n.usersByID(ctx, event.FromTherapist)
		subject = "Transfer request rejected"
	case model.EventPatientTransferred:
		recipients, err = n.usersByID(ctx, event.FromTherapist, event.ToTherapist)
		subject = "Patient transferred"
	default:
		return fmt.Errorf("unsupported event type %s", eventType)
	}
	if err != nil {
		return err
	}

	to := addresses(recipients, event.ActorID)
	if len(to) == 0 {
		return nil
	}
	return n.sender.Send(ctx, email.Message{
		To:      to,
		Subject: subject,
		Body:    body(eventType, &event),
	})
}

func (n *TransferNotifier) reviewers(ctx context.Context, event *model.TransferEvent) ([]*model.User, error) {
	var branches []uuid.UUID
	for _, b := range []*uuid.UUID{event.FromBranchID, event.ToBranchID} {
		if b != nil {
			branches = append(branches, *b)
		}
	}
	return n.users.ListReviewers(ctx, event.ClinicID, branches)
}

// usersByID skips users that no longer exist.
func (n *TransferNotifier) usersByID(ctx context.Context, ids ...uuid.UUID) ([]*model.User, error) {
	out := make([]*model.User, 0, len(ids))
	for _, id := range ids {
		u, err := n.users.Get(ctx, id)
		if err != nil {
			if isNotFound(err) {
				continue
			}
			return nil, err
		}
		out = append(out, u)
	}
	return out, nil
}

// addresses dedupes active recipients and leaves out whoever caused the event.
func addresses(users []*model.User, actor uuid.UUID) []string {
	seen := make(map[string]bool, len(users))
	out := make([]string, 0, len(users))
	for _, u := range users {
		if !u.Active || u.ID == actor || u.Email == "" || seen[u.Email] {
			continue
		}
		seen[u.Email] = true
		out = append(out, u.Email)
	}
	return out
}

func body(eventType string, event *model.TransferEvent) string {
	ref := event.PatientID.String()
	if event.RequestID != nil {
		ref = event.RequestID.String()
	}
	switch eventType {
	case model.EventTransferRequestCreated:
		return fmt.Sprintf("A patient transfer request (%s) needs your review.\n\nReason: %s\n", ref, event.Reason)
	case model.EventTransferRequestCancelled:
		return fmt.Sprintf("Transfer request %s was cancelled by the requesting therapist.\n", ref)
	case model.EventTransferRequestApproved:
		return fmt.Sprintf("Transfer request %s was approved. The patient now belongs to the new therapist.\n", ref)
	case model.EventTransferRequestRejected:
		return fmt.Sprintf("Transfer request %s was rejected. See the request for the reviewer's note.\n", ref)
	default:
		return fmt.Sprintf("Patient %s was transferred.\n\nReason: %s\n", ref, event.Reason)
	}
}
