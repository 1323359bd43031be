// Package handler exposes the attendance API over gin.
package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"qrattend/internal/apperr"
	"qrattend/internal/attendance"
	"qrattend/internal/auth"
	"qrattend/internal/classes"
	"qrattend/internal/identity"
	"qrattend/internal/sessions"
)

// TallyReader reports live check-in counts per session.
type TallyReader interface {
	Count(ctx context.Context, sessionID string) (int64, error)
}

// HealthCheck returns nil when a dependency is reachable.
type HealthCheck func(ctx context.Context) error

// Deps are the services the handler dispatches to. Tally and Checks are optional.
type Deps struct {
	Users   *identity.Service
	Tokens  *auth.Tokens
	Classes *classes.Service
	Issuer  *sessions.Issuer
	Marks   *attendance.Service
	Reports *attendance.Reports
	Tally   TallyReader
	Checks  map[string]HealthCheck
	Logger  *zap.Logger
}

// Handler serves the HTTP API.
type Handler struct {
	Deps
}

// New builds a handler and registers request validators.
func New(deps Deps) (*Handler, error) {
	if err := registerValidators(); err != nil {
		return nil, err
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &Handler{Deps: deps}, nil
}

// Register mounts all routes on r.
func (h *Handler) Register(r *gin.Engine) {
	r.GET("/healthz", h.health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api")
	api.GET("/health", h.health)

	authed := auth.Required(h.Tokens.Signer())
	manager := auth.RequireClassManager()

	a := api.Group("/auth")
	a.POST("/register", h.register)
	a.POST("/login", h.login)
	a.POST("/refresh", h.refresh)
	a.POST("/logout", h.logout)
	a.GET("/me", authed, h.me)

	c := api.Group("/classes", authed)
	c.POST("", manager, h.createClass)
	c.GET("", h.listClasses)
	c.GET("/:id", h.getClass)
	c.POST("/join/:code", h.joinClass)
	c.POST("/join", h.joinClass)
	c.POST("/:id/students", manager, h.addStudent)
	c.DELETE("/:id", manager, h.deleteClass)

	at := api.Group("/attendance", authed)
	at.POST("/generate-qr/:classId", manager, h.generateQR)
	at.GET("/active-session/:classId", h.activeSession)
	at.POST("/sessions/:sessionId/invalidate", manager, h.invalidateSession)
	at.POST("/mark", h.mark)
	at.GET("/class/:classId", manager, h.classAttendance)
	at.GET("/my-attendance", h.myAttendance)
	at.GET("/stats/:classId", manager, h.stats)
	at.GET("/summary/:classId", manager, h.summary)
}

func (h *Handler) health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	body := gin.H{"status": "ok"}
	for name, check := range h.Checks {
		err := check(ctx)
		body[name] = err == nil
		if err != nil {
			status = http.StatusServiceUnavailable
			body["status"] = "degraded"
			h.Logger.Warn("health check failed", zap.String("component", name), zap.Error(err))
		}
	}
	c.JSON(status, body)
}

func actor(c *gin.Context) identity.Actor {
	claims, _ := auth.ClaimsFrom(c)
	return claims.Actor()
}

// respondError renders err as {"message": ...} with the status of its kind.
func (h *Handler) respondError(c *gin.Context, err error) {
	kind := apperr.KindOf(err)
	if kind == apperr.Internal {
		h.Logger.Error("request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Error(err),
		)
	}
	_ = c.Error(err)
	c.AbortWithStatusJSON(kind.Status(), gin.H{"message": apperr.Message(err)})
}

// bind decodes the JSON body into v, reporting failures as validation errors.
func (h *Handler) bind(c *gin.Context, v any) bool {
	if err := c.ShouldBindJSON(v); err != nil {
		h.respondError(c, bindError(err))
		return false
	}
	return true
}

var errEmptyBody = errors.New("request body is required")
