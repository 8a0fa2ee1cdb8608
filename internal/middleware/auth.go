package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"

	"github.com/jwalitptl/physiocapture-api/internal/access"
	"github.com/jwalitptl/physiocapture-api/internal/model"
	"github.com/jwalitptl/physiocapture-api/pkg/auth"
	apperrors "github.com/jwalitptl/physiocapture-api/pkg/errors"
	"github.com/jwalitptl/physiocapture-api/pkg/httputil"
	"github.com/jwalitptl/physiocapture-api/pkg/metrics"
)

const ContextCaller = "caller"

// CallerLoader resolves the stored user behind a token. It must fail for
// unknown and inactive users.
type CallerLoader interface {
	Caller(ctx context.Context, id uuid.UUID) (*model.User, error)
}

type AuthMiddleware struct {
	tokens  auth.JWTService
	callers CallerLoader
	cache   *cache.Cache
	metrics *metrics.Metrics
}

// NewAuthMiddleware caches resolved callers for ttl. A zero ttl disables the cache.
func NewAuthMiddleware(tokens auth.JWTService, callers CallerLoader, ttl time.Duration, m *metrics.Metrics) *AuthMiddleware {
	mw := &AuthMiddleware{tokens: tokens, callers: callers, metrics: m}
	if ttl > 0 {
		mw.cache = cache.New(ttl, 2*ttl)
	}
	return mw
}

// Authenticate verifies the bearer token and stores the caller in the context.
// There is no anonymous caller: every failure is a 401.
func (m *AuthMiddleware) Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		scheme, token, found := strings.Cut(header, " ")
		if !found || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
			httputil.RespondWithError(c, apperrors.Unauthorized(nil))
			return
		}

		claims, err := m.tokens.ValidateToken(strings.TrimSpace(token))
		if err != nil {
			httputil.RespondWithError(c, apperrors.Unauthorized(err))
			return
		}

		caller, err := m.caller(c, claims.UserID)
		if err != nil {
			httputil.RespondWithError(c, err)
			return
		}

		c.Set(ContextCaller, caller)
		c.Next()
	}
}

func (m *AuthMiddleware) caller(ctx context.Context, id uuid.UUID) (*model.User, error) {
	key := id.String()
	if m.cache != nil {
		if cached, ok := m.cache.Get(key); ok {
			u := *cached.(*model.User)
			return &u, nil
		}
	}
	user, err := m.callers.Caller(ctx, id)
	if err != nil {
		return nil, err
	}
	if m.cache != nil {
		stored := *user
		m.cache.SetDefault(key, &stored)
	}
	return user, nil
}

// Forget drops a cached caller, for use after the user record changed.
func (m *AuthMiddleware) Forget(id uuid.UUID) {
	if m.cache != nil {
		m.cache.Delete(id.String())
	}
}

// Caller returns the authenticated user, or nil outside Authenticate.
func Caller(c *gin.Context) *model.User {
	if v, ok := c.Get(ContextCaller); ok {
		if u, ok := v.(*model.User); ok {
			return u
		}
	}
	return nil
}

func (m *AuthMiddleware) require(capability string, allowed func(c *gin.Context, caller *model.User) bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		caller := Caller(c)
		if caller == nil {
			httputil.RespondWithError(c, apperrors.Unauthorized(nil))
			return
		}
		if !allowed(c, caller) {
			m.metrics.ObserveDenied(capability)
			httputil.RespondWithError(c, apperrors.Forbidden(strings.ReplaceAll(capability, "_", " ")))
			return
		}
		c.Next()
	}
}

func (m *AuthMiddleware) RequireUserManagement() gin.HandlerFunc {
	return m.require("manage_users", func(_ *gin.Context, u *model.User) bool {
		return access.CanManageUsers(u)
	})
}

func (m *AuthMiddleware) RequireClinicalData() gin.HandlerFunc {
	return m.require("access_clinical_data", func(_ *gin.Context, u *model.User) bool {
		return access.CanAccessClinicalData(u)
	})
}

// RequireSchedule lets every schedule viewer read; writes need CanManageSchedule.
func (m *AuthMiddleware) RequireSchedule() gin.HandlerFunc {
	return m.require("manage_schedule", func(c *gin.Context, u *model.User) bool {
		switch c.Request.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			return access.CanViewSchedule(u)
		}
		return access.CanManageSchedule(u)
	})
}

func (m *AuthMiddleware) RequireReports() gin.HandlerFunc {
	return m.require("view_reports", func(_ *gin.Context, u *model.User) bool {
		return access.CanViewReports(u)
	})
}
