package billing

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/jdships/yodoo-rebuild/internal/domain"
)

var (
	ErrInvalidSignature = errors.New("invalid webhook signature")
	ErrMalformedEvent   = errors.New("malformed webhook event")
	ErrUpstream         = errors.New("billing provider request failed")
)

// Environment selects the provider's API: sandbox or production.
type Environment string

const (
	Sandbox    Environment = "sandbox"
	Production Environment = "production"
)

// ParseEnvironment accepts "sandbox" and "production"; anything else is an error.
func ParseEnvironment(s string) (Environment, error) {
	switch Environment(strings.ToLower(strings.TrimSpace(s))) {
	case Sandbox:
		return Sandbox, nil
	case Production:
		return Production, nil
	}
	return "", fmt.Errorf("unknown billing environment %q", s)
}

// CheckoutParams describes a hosted checkout to open.
type CheckoutParams struct {
	ProductID  string
	PriceID    string
	CustomerID string
	SuccessURL string
	CancelURL  string
	Metadata   map[string]string
}

// Provider is a billing backend.
type Provider interface {
	Name() string
	CreateCustomer(ctx context.Context, email, userID string) (string, error)
	CreateCheckout(ctx context.Context, params CheckoutParams) (*domain.CheckoutSession, error)
	// ParseWebhook verifies the request signature and normalises the event.
	ParseWebhook(header http.Header, body []byte) (*domain.WebhookEvent, error)
}

// NormalizeStatus maps a provider subscription status to ours.
func NormalizeStatus(status string) domain.SubscriptionStatus {
	switch strings.ToLower(status) {
	case "active", "trialing", "confirmed", "succeeded", "complete":
		return domain.StatusActive
	case "canceled", "cancelled", "revoked":
		return domain.StatusCanceled
	case "past_due", "unpaid":
		return domain.StatusPastDue
	default:
		return domain.StatusInactive
	}
}
