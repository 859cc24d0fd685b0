package domain

import "time"

// Plan is a purchasable subscription.
type Plan struct {
	Type        PlanType `json:"type"`
	Name        string   `json:"name"`
	PriceCents  int      `json:"price_cents"`
	Interval    string   `json:"interval"`
	ProductID   string   `json:"product_id"`
	PriceID     string   `json:"-"`
	Description string   `json:"description"`
}

// CheckoutRequest is the body of POST /api/create-checkout.
type CheckoutRequest struct {
	PlanType PlanType `json:"planType"`
}

// CheckoutSession is a provider hosted checkout.
type CheckoutSession struct {
	CheckoutURL string `json:"checkoutUrl"`
	CheckoutID  string `json:"checkoutId"`
}

// WebhookEventKind is the normalised billing event.
type WebhookEventKind string

const (
	WebhookCheckoutCreated      WebhookEventKind = "checkout.created"
	WebhookCheckoutUpdated      WebhookEventKind = "checkout.updated"
	WebhookSubscriptionCreated  WebhookEventKind = "subscription.created"
	WebhookSubscriptionUpdated  WebhookEventKind = "subscription.updated"
	WebhookSubscriptionCanceled WebhookEventKind = "subscription.canceled"
	WebhookUnhandled            WebhookEventKind = "unhandled"
)

// WebhookEvent is a verified provider event reduced to what the
// application needs.
type WebhookEvent struct {
	ID         string
	Provider   string
	RawType    string
	Kind       WebhookEventKind
	CustomerID string
	ProductID  string
	// Status is the provider's subscription or checkout status.
	Status    string
	UserID    string // from metadata, when present
	StartedAt *time.Time
	EndsAt    *time.Time
}
