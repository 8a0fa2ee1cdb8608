package user

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jwalitptl/physiocapture-api/internal/handler"
	"github.com/jwalitptl/physiocapture-api/internal/model"
	"github.com/jwalitptl/physiocapture-api/internal/service/user"
	"github.com/jwalitptl/physiocapture-api/pkg/httputil"
)

// Forgetter drops cached authentication state for a user.
type Forgetter interface {
	Forget(id uuid.UUID)
}

type Handler struct {
	service *user.Service
	callers Forgetter
}

func NewHandler(service *user.Service, callers Forgetter) *Handler {
	return &Handler{service: service, callers: callers}
}

// RegisterRoutes mounts the user endpoints. manage guards the administrative
// routes; reading one's own record goes through the service check only.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup, manage, clinical gin.HandlerFunc) {
	users := r.Group("/users")
	{
		users.GET("", manage, h.ListUsers)
		users.POST("", manage, h.CreateUser)
		users.GET("/transfer-targets", clinical, h.ListTransferTargets)
		users.GET("/:id", h.GetUser)
		users.PUT("/:id", h.UpdateUser)
		users.DELETE("/:id", manage, h.DeactivateUser)
	}
}

func (h *Handler) CreateUser(c *gin.Context) {
	caller, ok := handler.Caller(c)
	if !ok {
		return
	}
	var req model.CreateUserRequest
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

func (h *Handler) GetUser(c *gin.Context) {
	caller, ok := handler.Caller(c)
	if !ok {
		return
	}
	id, ok := handler.ParamID(c, "id")
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

func (h *Handler) UpdateUser(c *gin.Context) {
	caller, ok := handler.Caller(c)
	if !ok {
		return
	}
	id, ok := handler.ParamID(c, "id")
	if !ok {
		return
	}
	var req model.UpdateUserRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	updated, err := h.service.Update(c, caller, id, &req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	h.forget(id)
	httputil.RespondWithSuccess(c, updated)
}

func (h *Handler) DeactivateUser(c *gin.Context) {
	caller, ok := handler.Caller(c)
	if !ok {
		return
	}
	id, ok := handler.ParamID(c, "id")
	if !ok {
		return
	}

	if err := h.service.Deactivate(c, caller, id); err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	h.forget(id)
	httputil.RespondWithSuccess(c, gin.H{"id": id, "active": false})
}

func (h *Handler) ListUsers(c *gin.Context) {
	caller, ok := handler.Caller(c)
	if !ok {
		return
	}
	var filter model.UserFilter
	if !handler.BindQuery(c, &filter) {
		return
	}

	users, total, err := h.service.List(c, caller, &filter)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	handler.RespondWithPage(c, users, filter.Pagination, total)
}

func (h *Handler) ListTransferTargets(c *gin.Context) {
	caller, ok := handler.Caller(c)
	if !ok {
		return
	}
	targets, err := h.service.ListTransferTargets(c, caller)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, targets)
}

func (h *Handler) forget(id uuid.UUID) {
	if h.callers != nil {
		h.callers.Forget(id)
	}
}
