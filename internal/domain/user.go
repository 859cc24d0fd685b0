package domain

import "time"

// PlanType is the subscription tier.
type PlanType string

const (
	PlanFree      PlanType = "free"
	PlanPro       PlanType = "pro"
	PlanUnlimited PlanType = "unlimited"
)

// Valid reports whether p is a known plan.
func (p PlanType) Valid() bool {
	switch p {
	case PlanFree, PlanPro, PlanUnlimited:
		return true
	}
	return false
}

// Purchasable reports whether a checkout can be opened for p.
func (p PlanType) Purchasable() bool {
	return p == PlanPro || p == PlanUnlimited
}

// SubscriptionStatus is the billing state of a subscription.
type SubscriptionStatus string

const (
	StatusActive   SubscriptionStatus = "active"
	StatusInactive SubscriptionStatus = "inactive"
	StatusCanceled SubscriptionStatus = "canceled"
	StatusPastDue  SubscriptionStatus = "past_due"
)

// User represents an application user. The id is the auth provider subject.
type User struct {
	ID                    string             `json:"id"`
	Email                 string             `json:"email"`
	DisplayName           string             `json:"display_name,omitempty"`
	ProfileImage          string             `json:"profile_image,omitempty"`
	Anonymous             bool               `json:"anonymous"`
	Premium               bool               `json:"premium"`
	MessageCount          int                `json:"message_count"`
	DailyMessageCount     int                `json:"daily_message_count"`
	DailyReset            *time.Time         `json:"daily_reset,omitempty"`
	DailyProMessageCount  int                `json:"daily_pro_message_count"`
	DailyProReset         *time.Time         `json:"daily_pro_reset,omitempty"`
	FavoriteModels        []string           `json:"favorite_models"`
	SubscriptionType      PlanType           `json:"subscription_type"`
	SubscriptionStatus    SubscriptionStatus `json:"subscription_status"`
	SubscriptionStartedAt *time.Time         `json:"subscription_started_at,omitempty"`
	SubscriptionEndsAt    *time.Time         `json:"subscription_ends_at,omitempty"`
	BillingCustomerID     string             `json:"-"`
	LastActiveAt          *time.Time         `json:"last_active_at,omitempty"`
	CreatedAt             time.Time          `json:"created_at"`
	UpdatedAt             time.Time          `json:"updated_at"`
}

// Subscription is the normalised plan of a user.
type Subscription struct {
	Type   PlanType           `json:"type"`
	Status SubscriptionStatus `json:"status"`
}

// Subscription returns the user's plan with defaults applied.
func (u *User) Subscription() Subscription {
	s := Subscription{Type: u.SubscriptionType, Status: u.SubscriptionStatus}
	if s.Type == "" {
		s.Type = PlanFree
	}
	if s.Status == "" {
		s.Status = StatusInactive
	}
	return s
}

// HasActiveSubscription reports an active paid plan.
func (u *User) HasActiveSubscription() bool {
	s := u.Subscription()
	return s.Status == StatusActive && s.Type != PlanFree
}

// IsUnlimited reports an active unlimited plan.
func (u *User) IsUnlimited() bool {
	s := u.Subscription()
	return s.Status == StatusActive && s.Type == PlanUnlimited
}

// IsPremium is true for active pro and unlimited plans.
func (u *User) IsPremium() bool {
	s := u.Subscription()
	return s.Status == StatusActive && (s.Type == PlanPro || s.Type == PlanUnlimited)
}

// NewUser describes a user to provision from a session.
type NewUser struct {
	ID           string
	Email        string
	DisplayName  string
	ProfileImage string
	Anonymous    bool
}

// SubscriptionChange is applied by billing webhooks.
type SubscriptionChange struct {
	Type      PlanType
	Status    SubscriptionStatus
	StartedAt *time.Time
	EndsAt    *time.Time
}

// UserProfile is the response of GET /api/user.
type UserProfile struct {
	User
	Preferences  UserPreferences `json:"preferences"`
	Subscription Subscription    `json:"subscription"`
	HasAPIKeys   bool            `json:"has_api_keys"`
}
