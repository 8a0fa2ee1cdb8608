package transfer

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jwalitptl/physiocapture-api/internal/handler"
	"github.com/jwalitptl/physiocapture-api/internal/model"
	"github.com/jwalitptl/physiocapture-api/internal/service/transfer"
	apperrors "github.com/jwalitptl/physiocapture-api/pkg/errors"
	"github.com/jwalitptl/physiocapture-api/pkg/httputil"
)

type Handler struct {
	service *transfer.Service
}

func NewHandler(service *transfer.Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup, clinical gin.HandlerFunc) {
	requests := r.Group("/transfer-requests", clinical)
	{
		requests.GET("", h.ListRequests)
		requests.POST("", h.CreateRequest)
		requests.GET("/:id", h.GetRequest)
		requests.POST("/:id/approve", h.Approve)
		requests.POST("/:id/reject", h.Reject)
		requests.POST("/:id/cancel", h.Cancel)
	}
}

func (h *Handler) CreateRequest(c *gin.Context) {
	caller, ok := handler.Caller(c)
	if !ok {
		return
	}
	var req model.CreateTransferRequest
	if !handler.BindJSON(c, &req) {
		return
	}
	patientID, err := uuid.Parse(req.PatientID)
	if err != nil {
		httputil.RespondWithError(c, apperrors.NewValidation("patient_id", "invalid patient id"))
		return
	}
	therapistID, err := uuid.Parse(req.ToTherapistID)
	if err != nil {
		httputil.RespondWithError(c, apperrors.NewValidation("to_therapist_id", "invalid therapist id"))
		return
	}

	created, err := h.service.CreateRequest(c, caller, patientID, therapistID, req.Reason)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithCreated(c, created)
}

func (h *Handler) GetRequest(c *gin.Context) {
	caller, id, ok := callerAndID(c)
	if !ok {
		return
	}

	found, err := h.service.GetRequest(c, caller, id)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, found)
}

func (h *Handler) ListRequests(c *gin.Context) {
	caller, ok := handler.Caller(c)
	if !ok {
		return
	}
	var filter model.TransferRequestFilter
	if !handler.BindQuery(c, &filter) {
		return
	}
	if raw := c.Query("patient_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			httputil.RespondWithError(c, apperrors.NewValidation("patient_id", "invalid patient id"))
			return
		}
		filter.PatientID = &id
	}

	requests, total, err := h.service.ListRequests(c, caller, &filter)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	handler.RespondWithPage(c, requests, filter.Pagination, total)
}

func (h *Handler) Approve(c *gin.Context) {
	h.review(c, h.service.Approve)
}

func (h *Handler) Reject(c *gin.Context) {
	h.review(c, h.service.Reject)
}

func (h *Handler) Cancel(c *gin.Context) {
	caller, id, ok := callerAndID(c)
	if !ok {
		return
	}

	cancelled, err := h.service.Cancel(c, caller, id)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, cancelled)
}

type reviewFunc func(ctx context.Context, caller *model.User, id uuid.UUID, note string) (*model.TransferRequest, error)

// review runs an approve or reject. The body is optional; the service
// decides whether the note is required.
func (h *Handler) review(c *gin.Context, fn reviewFunc) {
	caller, id, ok := callerAndID(c)
	if !ok {
		return
	}
	var req model.ReviewTransferRequest
	if c.Request.ContentLength != 0 && !handler.BindJSON(c, &req) {
		return
	}

	reviewed, err := fn(c, caller, id, req.Note)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, reviewed)
}

func callerAndID(c *gin.Context) (*model.User, uuid.UUID, bool) {
	caller, ok := handler.Caller(c)
	if !ok {
		return nil, uuid.Nil, false
	}
	id, ok := handler.ParamID(c, "id")
	if !ok {
		return nil, uuid.Nil, false
	}
	return caller, id, true
}
