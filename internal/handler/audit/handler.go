package audit

import (
	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/physiocapture-api/internal/handler"
	"github.com/jwalitptl/physiocapture-api/internal/service/audit"
	"github.com/jwalitptl/physiocapture-api/pkg/httputil"
)

type Handler struct {
	service *audit.Service
}

func NewHandler(service *audit.Service) *Handler {
	return &Handler{
		service: service,
	}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	audit := r.Group("/audit")
	{
		audit.GET("/logs/entity/:type/:id", h.GetEntityLogs)
	}
}

func (h *Handler) GetEntityLogs(c *gin.Context) {
	caller, ok := handler.Caller(c)
	if !ok {
		return
	}
	entityID, ok := handler.ParamID(c, "id")
	if !ok {
		return
	}

	logs, err := h.service.Trail(c, caller, c.Param("type"), entityID)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, logs)
}
