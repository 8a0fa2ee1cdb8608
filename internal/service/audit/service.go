package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/physiocapture-api/internal/access"
	"github.com/jwalitptl/physiocapture-api/internal/model"
	"github.com/jwalitptl/physiocapture-api/internal/repository"
	apperrors "github.com/jwalitptl/physiocapture-api/pkg/errors"
)

type Service struct {
	repo repository.AuditRepository
	now  func() time.Time
}

func NewService(repo repository.AuditRepository) *Service {
	return &Service{repo: repo, now: time.Now}
}

type LogOptions struct {
	Changes   interface{}
	IPAddress string
	UserAgent string
}

// Log creates an audit log entry. When ctx is a gin context the client
// address and agent are taken from the request.
func (s *Service) Log(ctx context.Context, userID, clinicID uuid.UUID, action, entityType string, entityID uuid.UUID, opts *LogOptions) error {
	if opts == nil {
		opts = &LogOptions{}
	}

	var changes json.RawMessage
	if opts.Changes != nil {
		data, err := json.Marshal(opts.Changes)
		if err != nil {
			return err
		}
		changes = data
	}

	ipAddress := opts.IPAddress
	userAgent := opts.UserAgent
	if gc, ok := ctx.(*gin.Context); ok && ipAddress == "" {
		ipAddress = gc.ClientIP()
		userAgent = gc.GetHeader("User-Agent")
	}

	entry := &model.AuditLog{
		ID:         uuid.New(),
		UserID:     userID,
		ClinicID:   clinicID,
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		Changes:    changes,
		IPAddress:  ipAddress,
		UserAgent:  userAgent,
		CreatedAt:  s.now().UTC(),
	}

	return s.repo.Create(ctx, entry)
}

// Record logs after the audited change has committed. A failure here must
// not undo the change, so it is only reported.
func (s *Service) Record(ctx context.Context, actor *model.User, action, entityType string, entityID uuid.UUID, changes interface{}) {
	if err := s.Log(ctx, actor.ID, actor.ClinicID, action, entityType, entityID, &LogOptions{Changes: changes}); err != nil {
		log.Warn().Err(err).
			Str("action", action).
			Str("entity_type", entityType).
			Str("entity_id", entityID.String()).
			Msg("failed to write audit log")
	}
}

func (s *Service) ListByEntity(ctx context.Context, entityType string, entityID uuid.UUID) ([]*model.AuditLog, error) {
	return s.repo.ListByEntity(ctx, entityType, entityID)
}

// Trail returns the entries of one entity within the caller's clinic.
func (s *Service) Trail(ctx context.Context, caller *model.User, entityType string, entityID uuid.UUID) ([]*model.AuditLog, error) {
	if !access.CanViewAuditTrail(caller) {
		return nil, apperrors.Forbidden("view the audit trail")
	}
	if !model.ValidAuditEntity(entityType) {
		return nil, apperrors.NewValidation("type", "unknown entity type")
	}
	entries, err := s.repo.ListByEntity(ctx, entityType, entityID)
	if err != nil {
		return nil, err
	}
	out := make([]*model.AuditLog, 0, len(entries))
	for _, e := range entries {
		if e.ClinicID == caller.ClinicID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *Service) Cleanup(ctx context.Context, before time.Time) (int64, error) {
	return s.repo.Cleanup(ctx, before)
}
