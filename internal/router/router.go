package router

import (
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/jwalitptl/physiocapture-api/internal/handler/appointment"
	"github.com/jwalitptl/physiocapture-api/internal/handler/audit"
	"github.com/jwalitptl/physiocapture-api/internal/handler/auth"
	"github.com/jwalitptl/physiocapture-api/internal/handler/branch"
	"github.com/jwalitptl/physiocapture-api/internal/handler/health"
	"github.com/jwalitptl/physiocapture-api/internal/handler/patient"
	"github.com/jwalitptl/physiocapture-api/internal/handler/prometheus"
	"github.com/jwalitptl/physiocapture-api/internal/handler/transfer"
	"github.com/jwalitptl/physiocapture-api/internal/handler/user"
	"github.com/jwalitptl/physiocapture-api/internal/middleware"
)

// Handlers groups the resource handlers mounted under /api/v1.
type Handlers struct {
	Health      *health.Handler
	Auth        *auth.Handler
	Branch      *branch.Handler
	User        *user.Handler
	Patient     *patient.Handler
	Transfer    *transfer.Handler
	Appointment *appointment.Handler
	Audit       *audit.Handler
}

type RouterConfig struct {
	RequestTimeout   time.Duration
	MaxBodyBytes     int64
	RateLimitEnabled bool
	RateLimit        rate.Limit
	RateBurst        int
	AllowedOrigins   []string
	Security         middleware.SecurityConfig
}

type Router struct {
	engine  *gin.Engine
	auth    *middleware.AuthMiddleware
	metrics *prometheus.Handler
	h       Handlers
	config  RouterConfig
}

func NewRouter(auth *middleware.AuthMiddleware, metrics *prometheus.Handler, h Handlers, config RouterConfig) (*Router, error) {
	if err := middleware.RegisterValidators(); err != nil {
		return nil, err
	}

	engine := gin.New()
	// handlers pass *gin.Context to services as their context
	engine.ContextWithFallback = true

	r := &Router{
		engine:  engine,
		auth:    auth,
		metrics: metrics,
		h:       h,
		config:  config,
	}

	engine.Use(
		middleware.RequestID(),
		middleware.Logger(),
		middleware.Recovery(),
	)
	if metrics != nil {
		engine.Use(metrics.Middleware())
	}
	engine.Use(
		middleware.ErrorHandler(),
		middleware.SecurityHeaders(config.Security),
		middleware.CORS(config.AllowedOrigins),
		middleware.SizeLimit(config.MaxBodyBytes),
		middleware.Timeout(config.RequestTimeout),
	)

	r.setup()
	return r, nil
}

func (r *Router) setup() {
	api := r.engine.Group("/api/v1")

	var metricsHandler gin.HandlerFunc
	if r.metrics != nil {
		metricsHandler = r.metrics.Handler()
	}
	r.h.Health.RegisterRoutes(api, metricsHandler)

	if r.config.RateLimitEnabled {
		limiter := middleware.NewRateLimiter(middleware.RateLimiterConfig{
			Rate:  r.config.RateLimit,
			Burst: r.config.RateBurst,
		})
		api.Use(limiter.RateLimit())
	}

	// Credential guessing gets a much smaller budget than regular traffic.
	login := middleware.NewRateLimiter(middleware.RateLimiterConfig{
		Rate:  rate.Every(12 * time.Second),
		Burst: 5,
	})

	protected := api.Group("", r.auth.Authenticate())
	r.h.Auth.RegisterRoutes(api, protected, login.RateLimit())

	manage := r.auth.RequireUserManagement()
	clinical := r.auth.RequireClinicalData()

	r.h.Branch.RegisterRoutes(protected)
	r.h.User.RegisterRoutes(protected, manage, clinical)
	r.h.Patient.RegisterRoutes(protected, clinical)
	r.h.Transfer.RegisterRoutes(protected, clinical)
	r.h.Appointment.RegisterRoutes(protected, r.auth.RequireSchedule())
	r.h.Audit.RegisterRoutes(protected.Group("", r.auth.RequireReports()))
}

func (r *Router) Engine() *gin.Engine {
	return r.engine
}
