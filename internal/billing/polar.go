package billing

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	standardwebhooks "github.com/standard-webhooks/standard-webhooks/libraries/go"
	"github.com/tidwall/gjson"

	"github.com/jdships/yodoo-rebuild/internal/domain"
)

const (
	polarSandboxURL    = "https://sandbox-api.polar.sh"
	polarProductionURL = "https://api.polar.sh"
)

// PolarConfig configures the Polar provider.
type PolarConfig struct {
	AccessToken   string `mapstructure:"access_token"`
	WebhookSecret string `mapstructure:"webhook_secret"`
	// BaseURL overrides the environment's API host.
	BaseURL string `mapstructure:"base_url"`
}

// Polar talks to the Polar REST API.
type Polar struct {
	baseURL     string
	accessToken string
	webhook     *standardwebhooks.Webhook
	httpClient  *http.Client
}

// NewPolar creates a Polar provider for env.
func NewPolar(cfg PolarConfig, env Environment, httpClient *http.Client) (*Polar, error) {
	if cfg.AccessToken == "" {
		return nil, fmt.Errorf("polar access token is required")
	}
	if cfg.WebhookSecret == "" {
		return nil, fmt.Errorf("polar webhook secret is required")
	}
	webhook, err := newStandardWebhook(cfg.WebhookSecret)
	if err != nil {
		return nil, fmt.Errorf("polar webhook secret: %w", err)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = polarSandboxURL
		if env == Production {
			baseURL = polarProductionURL
		}
	}

	return &Polar{
		baseURL:     strings.TrimRight(baseURL, "/"),
		accessToken: cfg.AccessToken,
		webhook:     webhook,
		httpClient:  httpClient,
	}, nil
}

func (p *Polar) Name() string { return "polar" }

func (p *Polar) CreateCustomer(ctx context.Context, email, userID string) (string, error) {
	body := map[string]interface{}{
		"email":    email,
		"metadata": map[string]string{"user_id": userID},
	}
	res, err := p.post(ctx, "/v1/customers/", body)
	if err != nil {
		return "", err
	}
	id := res.Get("id").String()
	if id == "" {
		return "", fmt.Errorf("%w: customer response without id", ErrUpstream)
	}
	return id, nil
}

func (p *Polar) CreateCheckout(ctx context.Context, params CheckoutParams) (*domain.CheckoutSession, error) {
	body := map[string]interface{}{
		"products":    []string{params.ProductID},
		"success_url": params.SuccessURL,
		"metadata":    params.Metadata,
	}
	if params.CustomerID != "" {
		body["customer_id"] = params.CustomerID
	}

	res, err := p.post(ctx, "/v1/checkouts/", body)
	if err != nil {
		return nil, err
	}
	session := &domain.CheckoutSession{
		CheckoutID:  res.Get("id").String(),
		CheckoutURL: res.Get("url").String(),
	}
	if session.CheckoutURL == "" {
		return nil, fmt.Errorf("%w: checkout response without url", ErrUpstream)
	}
	return session, nil
}

func (p *Polar) post(ctx context.Context, path string, payload interface{}) (gjson.Result, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return gjson.Result{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return gjson.Result{}, err
	}
	req.Header.Set("Authorization", "Bearer "+p.accessToken)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return gjson.Result{}, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	if resp.StatusCode >= 300 {
		detail := gjson.GetBytes(raw, "detail").String()
		if detail == "" {
			detail = strings.TrimSpace(string(raw))
		}
		return gjson.Result{}, fmt.Errorf("%w: polar %s returned %d: %s", ErrUpstream, path, resp.StatusCode, detail)
	}
	return gjson.ParseBytes(raw), nil
}

// ParseWebhook verifies a Standard Webhooks signed Polar event.
func (p *Polar) ParseWebhook(header http.Header, body []byte) (*domain.WebhookEvent, error) {
	if err := verifyStandardWebhook(p.webhook, header, body); err != nil {
		return nil, err
	}
	if !gjson.ValidBytes(body) {
		return nil, ErrMalformedEvent
	}

	root := gjson.ParseBytes(body)
	data := root.Get("data")
	ev := &domain.WebhookEvent{
		ID:         header.Get("webhook-id"),
		Provider:   p.Name(),
		RawType:    root.Get("type").String(),
		CustomerID: data.Get("customer_id").String(),
		ProductID:  data.Get("product_id").String(),
		Status:     data.Get("status").String(),
		UserID:     data.Get("metadata.user_id").String(),
		StartedAt:  parseTime(data.Get("started_at")),
		EndsAt:     parseTime(data.Get("ends_at")),
	}
	if ev.EndsAt == nil {
		ev.EndsAt = parseTime(data.Get("current_period_end"))
	}

	switch ev.RawType {
	case "checkout.created":
		ev.Kind = domain.WebhookCheckoutCreated
	case "checkout.updated":
		ev.Kind = domain.WebhookCheckoutUpdated
	case "subscription.created":
		ev.Kind = domain.WebhookSubscriptionCreated
	case "subscription.updated", "subscription.active", "subscription.uncanceled":
		ev.Kind = domain.WebhookSubscriptionUpdated
	case "subscription.canceled", "subscription.revoked":
		ev.Kind = domain.WebhookSubscriptionCanceled
	case "":
		return nil, ErrMalformedEvent
	default:
		ev.Kind = domain.WebhookUnhandled
	}
	return ev, nil
}

func parseTime(v gjson.Result) *time.Time {
	if !v.Exists() || v.Type == gjson.Null {
		return nil
	}
	if v.Type == gjson.Number {
		t := time.Unix(v.Int(), 0).UTC()
		return &t
	}
	t, err := time.Parse(time.RFC3339, v.String())
	if err != nil {
		return nil
	}
	t = t.UTC()
	return &t
}
