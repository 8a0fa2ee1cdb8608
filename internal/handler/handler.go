// Package handler holds the request plumbing shared by the resource handlers.
package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jwalitptl/physiocapture-api/internal/middleware"
	"github.com/jwalitptl/physiocapture-api/internal/model"
	apperrors "github.com/jwalitptl/physiocapture-api/pkg/errors"
	"github.com/jwalitptl/physiocapture-api/pkg/httputil"
	"github.com/jwalitptl/physiocapture-api/pkg/validator"
)

// ParamID reads a uuid path parameter. On failure the response is written
// and ok is false.
func ParamID(c *gin.Context, name string) (id uuid.UUID, ok bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		httputil.RespondWithError(c, apperrors.NewValidation(name, "invalid "+name))
		return uuid.Nil, false
	}
	return id, true
}

// BindJSON decodes and validates the request body into req.
func BindJSON(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		httputil.RespondWithError(c, validator.FromBinding(err))
		return false
	}
	return true
}

// BindQuery decodes query parameters into req.
func BindQuery(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindQuery(req); err != nil {
		httputil.RespondWithError(c, validator.FromBinding(err))
		return false
	}
	return true
}

// Caller returns the authenticated user. Routes behind Authenticate always
// have one; a missing caller is answered with 401.
func Caller(c *gin.Context) (*model.User, bool) {
	caller := middleware.Caller(c)
	if caller == nil {
		httputil.RespondWithError(c, apperrors.Unauthorized(nil))
		return nil, false
	}
	return caller, true
}

// RespondWithPage writes a paginated list. Repositories normalize the
// pagination in place, so p carries the effective page and size.
func RespondWithPage(c *gin.Context, data interface{}, p model.Pagination, total int) {
	httputil.RespondWithPagination(c, data, p.Page, p.PageSize, total)
}
