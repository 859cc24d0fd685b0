package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/jdships/yodoo-rebuild/internal/audit"
	"github.com/jdships/yodoo-rebuild/internal/billing"
	"github.com/jdships/yodoo-rebuild/internal/domain"
	"github.com/jdships/yodoo-rebuild/internal/repository"
	"github.com/jdships/yodoo-rebuild/pkg/log"
	"github.com/jdships/yodoo-rebuild/pkg/metrics"
	"github.com/jdships/yodoo-rebuild/pkg/pubsub"
)

// Webhook results recorded in metrics.
const (
	webhookApplied     = "applied"
	webhookIgnored     = "ignored"
	webhookUnknownUser = "unknown_user"
	webhookRejected    = "rejected"
	webhookFailed      = "failed"
)

type billingServiceImpl struct {
	providers map[string]billing.Provider
	active    billing.Provider
	env       billing.Environment
	catalog   *billing.Catalog
	users     repository.UserRepository
	usage     UsageService
	publisher pubsub.Publisher
	appURL    string
}

// NewBillingService creates a new billing service. Checkouts go through
// the active provider; webhooks are accepted from every provider given.
func NewBillingService(
	providers []billing.Provider,
	active string,
	env billing.Environment,
	catalog *billing.Catalog,
	users repository.UserRepository,
	usage UsageService,
	publisher pubsub.Publisher,
	appURL string,
) (BillingService, error) {
	byName := make(map[string]billing.Provider, len(providers))
	for _, p := range providers {
		byName[p.Name()] = p
	}
	s := &billingServiceImpl{
		providers: byName,
		env:       env,
		catalog:   catalog,
		users:     users,
		usage:     usage,
		publisher: publisher,
		appURL:    strings.TrimRight(appURL, "/"),
	}
	if active != "" {
		p, ok := byName[active]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, active)
		}
		s.active = p
	}
	return s, nil
}

func (s *billingServiceImpl) Plans() []domain.Plan {
	return s.catalog.List()
}

func (s *billingServiceImpl) Environment() billing.Environment {
	return s.env
}

func (s *billingServiceImpl) CreateCheckout(ctx context.Context, userID string, planType domain.PlanType) (*domain.CheckoutSession, error) {
	if !planType.Purchasable() {
		return nil, ErrInvalidPlan
	}
	plan, ok := s.catalog.Plan(planType)
	if !ok || plan.ProductID == "" {
		return nil, fmt.Errorf("%w: %s", ErrPlanNotConfigured, planType)
	}
	if s.active == nil {
		return nil, fmt.Errorf("%w: no billing provider configured", ErrPlanNotConfigured)
	}

	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	customerID := u.BillingCustomerID
	if customerID == "" {
		customerID, err = s.active.CreateCustomer(ctx, u.Email, userID)
		if err != nil {
			return nil, fmt.Errorf("failed to create customer: %w", err)
		}
		if err := s.users.SetBillingCustomerID(ctx, userID, customerID); err != nil {
			return nil, fmt.Errorf("failed to store customer: %w", err)
		}
	}

	session, err := s.active.CreateCheckout(ctx, billing.CheckoutParams{
		ProductID:  plan.ProductID,
		PriceID:    plan.PriceID,
		CustomerID: customerID,
		SuccessURL: s.successURL(),
		CancelURL:  s.appURL,
		Metadata: map[string]string{
			"user_id":   userID,
			"plan_type": string(planType),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create checkout: %w", err)
	}

	publishEvent(ctx, s.publisher, pubsub.BillingChannel(userID), pubsub.EventCheckoutCreated, userID,
		pubsub.CheckoutCreatedPayload{CheckoutID: session.CheckoutID, PlanType: string(planType)})
	audit.LogWithDetail(ctx, audit.ActionCheckoutCreated, userID, string(planType), "checkout session created")
	return session, nil
}

func (s *billingServiceImpl) RedirectCheckout(ctx context.Context, params billing.CheckoutParams) (string, error) {
	if params.ProductID == "" {
		return "", fmt.Errorf("%w: product_id is required", ErrInvalidInput)
	}
	if s.active == nil {
		return "", fmt.Errorf("%w: no billing provider configured", ErrPlanNotConfigured)
	}
	if params.SuccessURL == "" {
		params.SuccessURL = s.successURL()
	}
	session, err := s.active.CreateCheckout(ctx, params)
	if err != nil {
		return "", fmt.Errorf("failed to create checkout: %w", err)
	}
	return session.CheckoutURL, nil
}

func (s *billingServiceImpl) HandleWebhook(ctx context.Context, providerName string, header http.Header, body []byte) error {
	provider, ok := s.providers[providerName]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownProvider, providerName)
	}
	l := log.Ctx(ctx)

	ev, err := provider.ParseWebhook(header, body)
	if err != nil {
		metrics.RecordWebhook(providerName, "", webhookRejected)
		return err
	}

	change, apply := s.changeFor(ev)
	if !apply {
		l.Debug().Str(log.FieldProvider, providerName).Str(log.FieldEventType, ev.RawType).Msg("webhook event ignored")
		metrics.RecordWebhook(providerName, string(ev.Kind), webhookIgnored)
		return nil
	}

	u, err := s.findUser(ctx, ev)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			l.Warn().
				Str(log.FieldProvider, providerName).
				Str(log.FieldEventType, ev.RawType).
				Str("customer_id", ev.CustomerID).
				Msg("webhook for unknown user")
			metrics.RecordWebhook(providerName, string(ev.Kind), webhookUnknownUser)
			return nil
		}
		metrics.RecordWebhook(providerName, string(ev.Kind), webhookFailed)
		return err
	}

	if err := s.users.UpdateSubscription(ctx, u.ID, change); err != nil {
		metrics.RecordWebhook(providerName, string(ev.Kind), webhookFailed)
		return fmt.Errorf("failed to update subscription: %w", err)
	}

	s.usage.Invalidate(ctx, u.ID)
	publishEvent(ctx, s.publisher, pubsub.BillingChannel(u.ID), pubsub.EventSubscriptionUpdated, u.ID,
		pubsub.SubscriptionUpdatedPayload{
			SubscriptionType:   string(change.Type),
			SubscriptionStatus: string(change.Status),
			Provider:           providerName,
			ProviderEvent:      ev.RawType,
		})
	audit.LogWithDetail(ctx, audit.ActionSubscriptionUpdated, u.ID,
		fmt.Sprintf("%s:%s", change.Type, change.Status), "subscription updated by "+providerName)
	metrics.RecordWebhook(providerName, string(ev.Kind), webhookApplied)
	return nil
}

// changeFor derives the subscription change of an event. Checkout events
// only apply once the checkout is confirmed.
func (s *billingServiceImpl) changeFor(ev *domain.WebhookEvent) (domain.SubscriptionChange, bool) {
	change := domain.SubscriptionChange{
		Type:      s.catalog.PlanForProduct(ev.ProductID),
		StartedAt: ev.StartedAt,
		EndsAt:    ev.EndsAt,
	}
	switch ev.Kind {
	case domain.WebhookCheckoutCreated, domain.WebhookCheckoutUpdated:
		change.Status = billing.NormalizeStatus(ev.Status)
		if change.Status != domain.StatusActive {
			return change, false
		}
	case domain.WebhookSubscriptionCreated:
		change.Status = domain.StatusActive
	case domain.WebhookSubscriptionUpdated:
		change.Status = billing.NormalizeStatus(ev.Status)
	case domain.WebhookSubscriptionCanceled:
		change.Status = domain.StatusCanceled
	default:
		return change, false
	}
	return change, true
}

// findUser resolves the event's user by billing customer, then by the
// user id carried in checkout metadata.
func (s *billingServiceImpl) findUser(ctx context.Context, ev *domain.WebhookEvent) (*domain.User, error) {
	if ev.CustomerID != "" {
		u, err := s.users.GetByBillingCustomerID(ctx, ev.CustomerID)
		if err == nil {
			return u, nil
		}
		if !errors.Is(err, repository.ErrUserNotFound) {
			return nil, err
		}
	}
	if ev.UserID == "" {
		return nil, ErrUserNotFound
	}

	u, err := s.users.GetByID(ctx, ev.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	if u.BillingCustomerID == "" && ev.CustomerID != "" {
		if err := s.users.SetBillingCustomerID(ctx, u.ID, ev.CustomerID); err != nil {
			l := log.Ctx(ctx)
			l.Warn().Err(err).Str(log.FieldUserID, u.ID).Msg("failed to link billing customer")
		}
	}
	return u, nil
}

func (s *billingServiceImpl) successURL() string {
	return s.appURL + "/confirmation?checkout_id={CHECKOUT_ID}"
}
