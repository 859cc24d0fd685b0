package billing

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/stripe/stripe-go/v72"
	"github.com/stripe/stripe-go/v72/client"
	"github.com/stripe/stripe-go/v72/webhook"
	"github.com/tidwall/gjson"

	"github.com/jdships/yodoo-rebuild/internal/domain"
)

// StripeConfig configures the Stripe provider.
type StripeConfig struct {
	SecretKey     string `mapstructure:"secret_key"`
	WebhookSecret string `mapstructure:"webhook_secret"`
}

// Stripe opens subscription checkouts through Stripe Checkout.
type Stripe struct {
	client        *client.API
	webhookSecret string
}

// NewStripe creates a Stripe provider. The key must match env: test keys
// in sandbox, live keys in production.
func NewStripe(cfg StripeConfig, env Environment, backends *stripe.Backends) (*Stripe, error) {
	if cfg.SecretKey == "" {
		return nil, fmt.Errorf("stripe API key is required")
	}
	if cfg.WebhookSecret == "" {
		return nil, fmt.Errorf("stripe webhook secret is required")
	}
	live := strings.Contains(cfg.SecretKey, "_live_")
	if env == Production && !live {
		return nil, fmt.Errorf("stripe production mode requires a live key")
	}
	if env == Sandbox && live {
		return nil, fmt.Errorf("stripe sandbox mode requires a test key")
	}

	api := &client.API{}
	api.Init(cfg.SecretKey, backends)

	return &Stripe{client: api, webhookSecret: cfg.WebhookSecret}, nil
}

func (s *Stripe) Name() string { return "stripe" }

func (s *Stripe) CreateCustomer(ctx context.Context, email, userID string) (string, error) {
	params := &stripe.CustomerParams{Email: stripe.String(email)}
	params.Context = ctx
	params.AddMetadata("user_id", userID)

	c, err := s.client.Customers.New(params)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	return c.ID, nil
}

func (s *Stripe) CreateCheckout(ctx context.Context, params CheckoutParams) (*domain.CheckoutSession, error) {
	if params.PriceID == "" {
		return nil, fmt.Errorf("stripe checkout requires a price id")
	}
	cancelURL := params.CancelURL
	if cancelURL == "" {
		cancelURL = params.SuccessURL
	}

	sp := &stripe.CheckoutSessionParams{
		Mode:       stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		SuccessURL: stripe.String(strings.ReplaceAll(params.SuccessURL, "{CHECKOUT_ID}", "{CHECKOUT_SESSION_ID}")),
		CancelURL:  stripe.String(cancelURL),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{Price: stripe.String(params.PriceID), Quantity: stripe.Int64(1)},
		},
	}
	if params.CustomerID != "" {
		sp.Customer = stripe.String(params.CustomerID)
	}
	sp.Context = ctx
	for k, v := range params.Metadata {
		sp.AddMetadata(k, v)
	}
	sp.AddMetadata("product_id", params.ProductID)

	sess, err := s.client.CheckoutSessions.New(sp)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	return &domain.CheckoutSession{CheckoutID: sess.ID, CheckoutURL: sess.URL}, nil
}

// ParseWebhook verifies the Stripe-Signature header and normalises the event.
func (s *Stripe) ParseWebhook(header http.Header, body []byte) (*domain.WebhookEvent, error) {
	event, err := webhook.ConstructEvent(body, header.Get("Stripe-Signature"), s.webhookSecret)
	if err != nil {
		return nil, ErrInvalidSignature
	}
	if event.Data == nil {
		return nil, ErrMalformedEvent
	}

	obj := gjson.ParseBytes(event.Data.Raw)
	ev := &domain.WebhookEvent{
		ID:         event.ID,
		Provider:   s.Name(),
		RawType:    event.Type,
		CustomerID: obj.Get("customer").String(),
		Status:     obj.Get("status").String(),
		UserID:     obj.Get("metadata.user_id").String(),
	}

	switch event.Type {
	case "checkout.session.completed":
		ev.Kind = domain.WebhookCheckoutUpdated
		ev.ProductID = obj.Get("metadata.product_id").String()
		if ev.Status == "complete" {
			ev.Status = "confirmed"
		}
	case "customer.subscription.created":
		ev.Kind = domain.WebhookSubscriptionCreated
	case "customer.subscription.updated":
		ev.Kind = domain.WebhookSubscriptionUpdated
	case "customer.subscription.deleted":
		ev.Kind = domain.WebhookSubscriptionCanceled
	default:
		ev.Kind = domain.WebhookUnhandled
	}

	if strings.HasPrefix(event.Type, "customer.subscription.") {
		ev.ProductID = obj.Get("items.data.0.price.product").String()
		ev.StartedAt = parseTime(obj.Get("start_date"))
		ev.EndsAt = parseTime(obj.Get("current_period_end"))
	}
	return ev, nil
}
