package handler

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jdships/yodoo-rebuild/internal/billing"
	"github.com/jdships/yodoo-rebuild/internal/domain"
	"github.com/jdships/yodoo-rebuild/internal/service"
	"github.com/jdships/yodoo-rebuild/pkg/log"
	"github.com/jdships/yodoo-rebuild/pkg/middleware"
	"github.com/jdships/yodoo-rebuild/pkg/response"
)

const maxWebhookBody = 1 << 20

// ListPlans returns the purchasable plans and the billing mode.
func (h *Handler) ListPlans(c *gin.Context) {
	response.Success(c, gin.H{
		"plans":       h.svc.Billing.Plans(),
		"environment": h.svc.Billing.Environment(),
	})
}

// CreateCheckout opens a hosted checkout for a plan.
func (h *Handler) CreateCheckout(c *gin.Context) {
	ctx := c.Request.Context()
	var req domain.CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil || !req.PlanType.Purchasable() {
		response.BadRequest(c, service.ErrInvalidPlan.Error())
		return
	}

	session, err := h.svc.Billing.CreateCheckout(ctx, middleware.GetUserID(c), req.PlanType)
	if err != nil {
		h.writeError(c, err, "create checkout")
		return
	}
	response.Success(c, session)
}

// RedirectCheckout opens a checkout from query parameters and redirects
// to the provider's page.
func (h *Handler) RedirectCheckout(c *gin.Context) {
	metadata := c.QueryMap("metadata")
	if _, ok := metadata["user_id"]; !ok {
		metadata["user_id"] = middleware.GetUserID(c)
	}

	url, err := h.svc.Billing.RedirectCheckout(c.Request.Context(), billing.CheckoutParams{
		ProductID:  c.Query("product_id"),
		CustomerID: c.Query("customer_id"),
		SuccessURL: c.Query("success_url"),
		Metadata:   metadata,
	})
	if err != nil {
		h.writeError(c, err, "redirect checkout")
		return
	}
	c.Redirect(http.StatusFound, url)
}

// Webhook verifies and applies a billing provider event.
func (h *Handler) Webhook(c *gin.Context) {
	ctx := c.Request.Context()
	provider := c.Param("provider")
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		response.BadRequest(c, "failed to read body")
		return
	}

	if err := h.svc.Billing.HandleWebhook(ctx, provider, c.Request.Header, body); err != nil {
		h.writeError(c, err, "webhook "+provider)
		return
	}

	l := log.Ctx(ctx)
	l.Debug().Str(log.FieldProvider, provider).Msg("webhook processed")
	response.Success(c, gin.H{"received": true})
}
