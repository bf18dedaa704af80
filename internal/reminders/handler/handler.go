package handler

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"billing_reminders_backend/internal/reminders/domain"
	"billing_reminders_backend/internal/reminders/service"
	"billing_reminders_backend/internal/reminders/transport"
	"billing_reminders_backend/platform/httpkit"
	"billing_reminders_backend/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	msgInvalidRequest   = "invalid request"
	msgValidationFailed = "validation failed"
)

// Engine is the part of the reminder service the handlers drive.
type Engine interface {
	Run(ctx context.Context, req service.RunRequest) (domain.RunOutcome, error)
	RunAllScopes(ctx context.Context, source domain.TriggerSource, dryRun bool) ([]domain.RunOutcome, error)
	ListRuns(ctx context.Context, scope domain.Scope, limit int) ([]domain.Run, error)
}

// Handler serves the trigger and run-listing routes.
type Handler struct {
	engine Engine
	val    *validator.Validator
	now    func() time.Time
}

func New(engine Engine, val *validator.Validator) *Handler {
	return &Handler{engine: engine, val: val, now: time.Now}
}

// TriggerCron runs reminders for one workspace, or for every scope with due
// invoices when no workspace is named. Authenticated by the shared cron secret.
func (h *Handler) TriggerCron(c *gin.Context) {
	req, ok := h.bindTrigger(c)
	if !ok {
		return
	}
	if req.WorkspaceID == nil {
		if raw := c.Query("workspaceId"); raw != "" {
			id, err := uuid.Parse(raw)
			if err != nil {
				httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, "workspaceId must be a UUID")
				return
			}
			req.WorkspaceID = &id
		}
	}

	if req.WorkspaceID != nil {
		h.runScope(c, service.RunRequest{
			Scope:       domain.WorkspaceScope(*req.WorkspaceID),
			TriggeredBy: domain.TriggerCron,
			DryRun:      req.DryRun,
		})
		return
	}

	ranAt := h.now().UTC()
	outcomes, err := h.engine.RunAllScopes(c.Request.Context(), domain.TriggerCron, req.DryRun)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.NewFanOutResponse(ranAt, req.DryRun, outcomes))
}

// TriggerManual runs reminders for the caller's workspace, or their legacy
// account when the token carries no workspace.
func (h *Handler) TriggerManual(c *gin.Context) {
	h.triggerAsCaller(c, domain.TriggerManual)
}

// TriggerDev is TriggerManual recorded as a dev run. Only mounted in development.
func (h *Handler) TriggerDev(c *gin.Context) {
	h.triggerAsCaller(c, domain.TriggerDev)
}

func (h *Handler) triggerAsCaller(c *gin.Context, source domain.TriggerSource) {
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}
	req, ok := h.bindTrigger(c)
	if !ok {
		return
	}
	h.runScope(c, service.RunRequest{
		Scope:       callerScope(identity),
		TriggeredBy: source,
		ActorEmail:  identity.Email(),
		DryRun:      req.DryRun,
	})
}

func (h *Handler) runScope(c *gin.Context, req service.RunRequest) {
	outcome, err := h.engine.Run(c.Request.Context(), req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.NewTriggerResponse(outcome))
}

// ListRuns returns the most recent runs of the caller's scope.
func (h *Handler) ListRuns(c *gin.Context) {
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	var query transport.ListRunsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(query); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	runs, err := h.engine.ListRuns(c.Request.Context(), callerScope(identity), query.Limit)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.NewRunListResponse(runs))
}

// bindTrigger reads the optional JSON body. An empty body is a plain run.
func (h *Handler) bindTrigger(c *gin.Context) (transport.TriggerRequest, bool) {
	var req transport.TriggerRequest
	if c.Request.ContentLength == 0 {
		req.DryRun = c.Query("dryRun") == "true"
		return req, true
	}
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return req, false
	}
	return req, true
}

func callerScope(identity httpkit.Identity) domain.Scope {
	if workspaceID := identity.WorkspaceID(); workspaceID != nil {
		return domain.WorkspaceScope(*workspaceID)
	}
	return domain.LegacyScope(identity.UserID())
}
