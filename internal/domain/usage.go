package domain

// UsageLimitCode is the code carried by every usage limit rejection.
const UsageLimitCode = "DAILY_LIMIT_REACHED"

// UsageLimitError is returned when a plan limit blocks a request.
type UsageLimitError struct {
	Message string
	Code    string
	// Kind narrows the limit for metrics: "auth", "monthly", "pro_daily", "attachments".
	Kind string
}

// NewUsageLimitError creates a UsageLimitError with the standard code.
func NewUsageLimitError(kind, message string) *UsageLimitError {
	return &UsageLimitError{Message: message, Code: UsageLimitCode, Kind: kind}
}

func (e *UsageLimitError) Error() string {
	return e.Message
}

// UsageSummary is the response of GET /api/rate-limits.
type UsageSummary struct {
	DailyCount         int                `json:"dailyCount"`
	DailyProCount      int                `json:"dailyProCount"`
	DailyLimit         int                `json:"dailyLimit"`
	MonthlyCount       int                `json:"monthlyCount"`
	MonthlyLimit       int                `json:"monthlyLimit"`
	Remaining          int                `json:"remaining"`
	RemainingPro       int                `json:"remainingPro"`
	RemainingMonthly   int                `json:"remainingMonthly"`
	SubscriptionType   PlanType           `json:"subscriptionType"`
	SubscriptionStatus SubscriptionStatus `json:"subscriptionStatus"`
	HasAPIKeys         bool               `json:"hasApiKeys"`
}
