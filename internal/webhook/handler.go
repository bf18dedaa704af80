package webhook

import (
	"context"
	"encoding/json"
	"net/http"

	"billing_reminders_backend/internal/reminders/domain"
	"billing_reminders_backend/platform/httpkit"
	"billing_reminders_backend/platform/logger"

	"github.com/gin-gonic/gin"
)

// Reconciler applies a delivery failure to recorded run items.
type Reconciler interface {
	Reconcile(ctx context.Context, f domain.DeliveryFailure) (domain.ReconcileResult, error)
}

// DeliveryResponse is returned for every accepted webhook call.
type DeliveryResponse struct {
	OK           bool `json:"ok"`
	Ignored      bool `json:"ignored,omitempty"`
	UpdatedRuns  int  `json:"updated_runs"`
	UpdatedItems int  `json:"updated_items"`
}

// Handler handles delivery webhook HTTP requests.
type Handler struct {
	reconciler Reconciler
	provider   string
	log        *logger.Logger
}

// NewHandler creates a handler attributing events to provider.
func NewHandler(reconciler Reconciler, provider string, log *logger.Logger) *Handler {
	return &Handler{reconciler: reconciler, provider: provider, log: log}
}

// HandleEmailDelivery reconciles a provider delivery-failure event.
// POST /api/v1/webhooks/email-delivery
func (h *Handler) HandleEmailDelivery(c *gin.Context) {
	body, ok := c.Get(rawBodyKey)
	raw, _ := body.([]byte)
	if !ok || len(raw) == 0 {
		httpkit.Error(c, http.StatusBadRequest, "invalid request body", nil)
		return
	}

	var ev Event
	if err := json.Unmarshal(raw, &ev); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid request body", nil)
		return
	}

	failure, ok := ExtractFailure(h.provider, ev)
	if !ok {
		h.log.WithContext(c.Request.Context()).Debug("delivery webhook ignored", "type", ev.Type)
		c.JSON(http.StatusOK, DeliveryResponse{OK: true, Ignored: true})
		return
	}

	res, err := h.reconciler.Reconcile(c.Request.Context(), failure)
	if httpkit.HandleError(c, err) {
		return
	}
	c.JSON(http.StatusOK, DeliveryResponse{
		OK:           true,
		UpdatedRuns:  res.UpdatedRuns,
		UpdatedItems: res.UpdatedItems,
	})
}
