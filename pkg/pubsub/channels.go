package pubsub

import "fmt"

// Channel naming: {stream}:user:{userID}:{kind}. Kafka maps the stream and
// kind to a topic and uses the user id as the message key.
const (
	ChannelBillingEvents = "billing:user:%s:events"
	ChannelUsageEvents   = "usage:user:%s:events"

	PatternBillingEvents = "billing:user:*:events"
	PatternUsageEvents   = "usage:user:*:events"
)

// Event types.
const (
	EventSubscriptionUpdated = "subscription.updated"
	EventCheckoutCreated     = "checkout.created"
	EventUsageIncremented    = "usage.incremented"
	EventUsageReset          = "usage.reset"
	EventKeysChanged         = "keys.changed"
)

// BillingChannel returns the billing channel for a user.
func BillingChannel(userID string) string {
	return fmt.Sprintf(ChannelBillingEvents, userID)
}

// UsageChannel returns the usage channel for a user.
func UsageChannel(userID string) string {
	return fmt.Sprintf(ChannelUsageEvents, userID)
}

// SubscriptionUpdatedPayload is published when a webhook changes a plan.
type SubscriptionUpdatedPayload struct {
	SubscriptionType   string `json:"subscription_type"`
	SubscriptionStatus string `json:"subscription_status"`
	Provider           string `json:"provider"`
	ProviderEvent      string `json:"provider_event"`
}

// CheckoutCreatedPayload is published when a checkout session is opened.
type CheckoutCreatedPayload struct {
	CheckoutID string `json:"checkout_id"`
	PlanType   string `json:"plan_type"`
}

// UsageIncrementedPayload is published after a message is counted.
type UsageIncrementedPayload struct {
	Model    string `json:"model"`
	ProModel bool   `json:"pro_model"`
}

// UsageResetPayload is published by the monthly reset job.
type UsageResetPayload struct {
	Users int64 `json:"users"`
}
