package branch

import (
	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/physiocapture-api/internal/handler"
	"github.com/jwalitptl/physiocapture-api/internal/model"
	"github.com/jwalitptl/physiocapture-api/internal/service/tenant"
	"github.com/jwalitptl/physiocapture-api/pkg/httputil"
)

type Handler struct {
	svc *tenant.Service
}

func NewHandler(svc *tenant.Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	branches := r.Group("/branches")
	{
		branches.GET("", h.ListBranches)
		branches.POST("", h.CreateBranch)
		branches.GET("/:id", h.GetBranch)
	}
}

func (h *Handler) CreateBranch(c *gin.Context) {
	caller, ok := handler.Caller(c)
	if !ok {
		return
	}
	var req model.CreateBranchRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	branch, err := h.svc.CreateBranch(c, caller, &req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithCreated(c, branch)
}

func (h *Handler) GetBranch(c *gin.Context) {
	caller, ok := handler.Caller(c)
	if !ok {
		return
	}
	id, ok := handler.ParamID(c, "id")
	if !ok {
		return
	}

	branch, err := h.svc.GetBranch(c, caller, id)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, branch)
}

func (h *Handler) ListBranches(c *gin.Context) {
	caller, ok := handler.Caller(c)
	if !ok {
		return
	}
	branches, err := h.svc.ListBranches(c, caller)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, branches)
}
