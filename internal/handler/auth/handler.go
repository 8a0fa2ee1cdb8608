package auth

import (
	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/physiocapture-api/internal/access"
	"github.com/jwalitptl/physiocapture-api/internal/handler"
	"github.com/jwalitptl/physiocapture-api/internal/model"
	"github.com/jwalitptl/physiocapture-api/internal/service/auth"
	"github.com/jwalitptl/physiocapture-api/pkg/httputil"
)

type Handler struct {
	svc *auth.Service
}

func NewHandler(svc *auth.Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts login on the public group and the caller endpoints
// on the authenticated one. limit guards login against password guessing.
func (h *Handler) RegisterRoutes(public, protected *gin.RouterGroup, limit gin.HandlerFunc) {
	login := []gin.HandlerFunc{h.Login}
	if limit != nil {
		login = append([]gin.HandlerFunc{limit}, login...)
	}
	public.POST("/auth/login", login...)

	me := protected.Group("/me")
	{
		me.GET("", h.Me)
		me.GET("/capabilities", h.Capabilities)
	}
}

func (h *Handler) Login(c *gin.Context) {
	var req model.LoginRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	tokens, err := h.svc.Login(c, req.Email, req.Password)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithSuccess(c, tokens)
}

func (h *Handler) Me(c *gin.Context) {
	caller, ok := handler.Caller(c)
	if !ok {
		return
	}
	httputil.RespondWithSuccess(c, caller)
}

// Capabilities lets clients hide what the caller cannot do. The server
// still checks every request.
func (h *Handler) Capabilities(c *gin.Context) {
	caller, ok := handler.Caller(c)
	if !ok {
		return
	}
	httputil.RespondWithSuccess(c, access.CapabilitiesOf(caller))
}
