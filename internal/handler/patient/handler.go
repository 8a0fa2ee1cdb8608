package patient

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jwalitptl/physiocapture-api/internal/handler"
	"github.com/jwalitptl/physiocapture-api/internal/model"
	"github.com/jwalitptl/physiocapture-api/internal/service/medical"
	"github.com/jwalitptl/physiocapture-api/internal/service/patient"
	"github.com/jwalitptl/physiocapture-api/internal/service/transfer"
	apperrors "github.com/jwalitptl/physiocapture-api/pkg/errors"
	"github.com/jwalitptl/physiocapture-api/pkg/httputil"
)

type Handler struct {
	service   *patient.Service
	transfers *transfer.Service
	records   *medical.Service
}

func NewHandler(service *patient.Service, transfers *transfer.Service, records *medical.Service) *Handler {
	return &Handler{
		service:   service,
		transfers: transfers,
		records:   records,
	}
}

// RegisterRoutes mounts the patient endpoints. clinical guards the routes
// that only make sense for clinical staff; per-patient checks stay in the services.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup, clinical gin.HandlerFunc) {
	patients := r.Group("/patients")
	{
		patients.GET("", h.ListPatients)
		patients.POST("", h.CreatePatient)
		patients.GET("/available-for-transfer", clinical, h.ListAvailableForTransfer)
		patients.POST("/validate-cpf", h.ValidateCPF)

		patients.GET("/:id", h.GetPatient)
		patients.PUT("/:id", h.UpdatePatient)
		patients.DELETE("/:id", h.DeactivatePatient)
		patients.PUT("/:id/availability", clinical, h.SetAvailability)

		patients.POST("/:id/transfer", clinical, h.TransferPatient)
		patients.GET("/:id/transfer-history", h.TransferHistory)

		patients.GET("/:id/records", clinical, h.ListMedicalRecords)
		patients.POST("/:id/records", clinical, h.AddMedicalRecord)
	}
}

func (h *Handler) CreatePatient(c *gin.Context) {
	caller, ok := handler.Caller(c)
	if !ok {
		return
	}
	var req model.CreatePatientRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	created, err := h.service.Create(c, caller, &req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithCreated(c, created)
}

func (h *Handler) GetPatient(c *gin.Context) {
	caller, id, ok := callerAndID(c)
	if !ok {
		return
	}

	found, err := h.service.Get(c, caller, id)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, found)
}

func (h *Handler) UpdatePatient(c *gin.Context) {
	caller, id, ok := callerAndID(c)
	if !ok {
		return
	}
	var req model.UpdatePatientRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	updated, err := h.service.Update(c, caller, id, &req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, updated)
}

func (h *Handler) DeactivatePatient(c *gin.Context) {
	caller, id, ok := callerAndID(c)
	if !ok {
		return
	}

	if err := h.service.Deactivate(c, caller, id); err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, gin.H{"id": id, "active": false})
}

func (h *Handler) ListPatients(c *gin.Context) {
	caller, ok := handler.Caller(c)
	if !ok {
		return
	}
	var filter model.PatientFilter
	if !handler.BindQuery(c, &filter) {
		return
	}

	patients, total, err := h.service.List(c, caller, &filter)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	handler.RespondWithPage(c, patients, filter.Pagination, total)
}

func (h *Handler) ListAvailableForTransfer(c *gin.Context) {
	caller, ok := handler.Caller(c)
	if !ok {
		return
	}
	var filter model.PatientFilter
	if !handler.BindQuery(c, &filter) {
		return
	}

	patients, total, err := h.service.ListAvailableForTransfer(c, caller, &filter)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	handler.RespondWithPage(c, patients, filter.Pagination, total)
}

func (h *Handler) ValidateCPF(c *gin.Context) {
	caller, ok := handler.Caller(c)
	if !ok {
		return
	}
	var req model.ValidateCPFRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	resp, err := h.service.ValidateCPF(c, caller, req.CPF)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, resp)
}

func (h *Handler) SetAvailability(c *gin.Context) {
	caller, id, ok := callerAndID(c)
	if !ok {
		return
	}
	var req model.SetAvailabilityRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	summary, err := h.service.SetAvailableForTransfer(c, caller, id, *req.AvailableForTransfer)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, summary)
}

func (h *Handler) TransferPatient(c *gin.Context) {
	caller, id, ok := callerAndID(c)
	if !ok {
		return
	}
	var req model.DirectTransferRequest
	if !handler.BindJSON(c, &req) {
		return
	}
	therapistID, err := uuid.Parse(req.ToTherapistID)
	if err != nil {
		httputil.RespondWithError(c, apperrors.NewValidation("to_therapist_id", "invalid therapist id"))
		return
	}

	moved, err := h.transfers.TransferPatient(c, caller, id, therapistID, req.Reason)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, moved.Summary())
}

func (h *Handler) TransferHistory(c *gin.Context) {
	caller, id, ok := callerAndID(c)
	if !ok {
		return
	}

	history, err := h.transfers.History(c, caller, id)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, history)
}

func (h *Handler) AddMedicalRecord(c *gin.Context) {
	caller, id, ok := callerAndID(c)
	if !ok {
		return
	}
	var req model.CreateMedicalRecordRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	record, err := h.records.Add(c, caller, id, &req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithCreated(c, record)
}

func (h *Handler) ListMedicalRecords(c *gin.Context) {
	caller, id, ok := callerAndID(c)
	if !ok {
		return
	}
	var page model.Pagination
	if !handler.BindQuery(c, &page) {
		return
	}
	page.Normalize()

	records, total, err := h.records.List(c, caller, id, page)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	handler.RespondWithPage(c, records, page, total)
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
