// Package usage holds the plan tier rules: which limits apply to a user,
// when a request must be rejected and how the remaining quota is reported.
// It is pure: callers load the user and persist counter changes.
package usage

import (
	"fmt"
	"strconv"
	"time"

	"github.com/jdships/yodoo-rebuild/internal/domain"
)

// Unlimited marks a limit that does not apply.
const Unlimited = -1

// Limits are the configurable plan thresholds.
type Limits struct {
	FreeTotal           int `mapstructure:"free_total"`
	FreeWithKeysMonthly int `mapstructure:"free_with_keys_monthly"`
	ProMonthly          int `mapstructure:"pro_monthly"`
	ProWithKeysMonthly  int `mapstructure:"pro_with_keys_monthly"`
	DailyProModels      int `mapstructure:"daily_pro_models"`
	FreeMaxModels       int `mapstructure:"free_max_models"`
	ProMaxModels        int `mapstructure:"pro_max_models"`
	UnlimitedMaxModels  int `mapstructure:"unlimited_max_models"`
	MessageMaxLength    int `mapstructure:"message_max_length"`
	DailyFileUploads    int `mapstructure:"daily_file_uploads"`
}

// DefaultLimits returns the production thresholds.
func DefaultLimits() Limits {
	return Limits{
		FreeTotal:           100,
		FreeWithKeysMonthly: 250,
		ProMonthly:          5000,
		ProWithKeysMonthly:  10000,
		DailyProModels:      500,
		FreeMaxModels:       2,
		ProMaxModels:        4,
		UnlimitedMaxModels:  10,
		MessageMaxLength:    10000,
		DailyFileUploads:    5,
	}
}

// Policy applies Limits to users.
type Policy struct {
	limits     Limits
	freeModels map[string]struct{}
	appName    string
}

// NewPolicy creates a Policy. Models in freeModels count against the
// monthly quota; every other model is a pro model with a daily quota.
func NewPolicy(limits Limits, freeModels []string, appName string) *Policy {
	set := make(map[string]struct{}, len(freeModels))
	for _, m := range freeModels {
		set[m] = struct{}{}
	}
	return &Policy{limits: limits, freeModels: set, appName: appName}
}

// Limits returns the configured thresholds.
func (p *Policy) Limits() Limits {
	return p.limits
}

// IsProModel reports whether model is billed against the daily pro quota.
func (p *Policy) IsProModel(model string) bool {
	_, free := p.freeModels[model]
	return !free
}

// AuthRequired is the rejection for unauthenticated usage.
func (p *Policy) AuthRequired() *domain.UsageLimitError {
	return domain.NewUsageLimitError("auth", fmt.Sprintf("Authentication required. Please sign in to use %s.", p.appName))
}

// MonthlyLimit returns the message quota of u. Free users without keys
// get a lifetime total, everyone else a monthly allowance.
func (p *Policy) MonthlyLimit(u *domain.User, hasKeys bool) int {
	switch {
	case u.IsUnlimited():
		return Unlimited
	case u.HasActiveSubscription():
		if hasKeys {
			return p.limits.ProWithKeysMonthly
		}
		return p.limits.ProMonthly
	case hasKeys:
		return p.limits.FreeWithKeysMonthly
	default:
		return p.limits.FreeTotal
	}
}

// ResetsMonthly reports whether the message count of u is cleared at the
// start of each month.
func (p *Policy) ResetsMonthly(u *domain.User, hasKeys bool) bool {
	return u.HasActiveSubscription() || hasKeys
}

// CheckMonthly rejects u when the message quota is used up.
func (p *Policy) CheckMonthly(u *domain.User, hasKeys bool) error {
	limit := p.MonthlyLimit(u, hasKeys)
	count := u.MessageCount
	if limit <= 0 || count < limit {
		return nil
	}

	var msg string
	switch {
	case u.HasActiveSubscription():
		suggestion := fmt.Sprintf("Add your own API keys to double your limit to %s messages.", formatCount(p.limits.ProWithKeysMonthly))
		if hasKeys {
			suggestion = "You've reached your enhanced limit."
		}
		msg = fmt.Sprintf("Monthly message limit reached. You've used all %s messages this month. %s", formatCount(limit), suggestion)
	case hasKeys:
		msg = fmt.Sprintf("Monthly message limit reached. You've used %d/%d messages this month. Upgrade to Pro for more messages.", count, limit)
	default:
		msg = fmt.Sprintf("Message limit reached. You've used %d/%d messages. Add your own API keys for %d messages per month, or upgrade to Pro for more messages.", count, limit, p.limits.FreeWithKeysMonthly)
	}
	return domain.NewUsageLimitError("monthly", msg)
}

// ProCount returns the pro model count of u as of now, and whether the
// stored counter belongs to an earlier UTC day and must be reset.
func (p *Policy) ProCount(u *domain.User, now time.Time) (count int, stale bool) {
	if u.DailyProReset == nil || !SameUTCDay(*u.DailyProReset, now) {
		return 0, true
	}
	return u.DailyProMessageCount, false
}

// CheckProDaily rejects a pro model request when today's count is used up.
func (p *Policy) CheckProDaily(count int) error {
	if count >= p.limits.DailyProModels {
		return domain.NewUsageLimitError("pro_daily", "Daily Pro model limit reached.")
	}
	return nil
}

// MaxModels is the number of models u may query in one multi-model request.
func (p *Policy) MaxModels(u *domain.User) int {
	switch {
	case u.IsUnlimited():
		return p.limits.UnlimitedMaxModels
	case u.HasActiveSubscription():
		return p.limits.ProMaxModels
	default:
		return p.limits.FreeMaxModels
	}
}

// CheckMessageLength rejects prompts longer than the configured maximum.
func (p *Policy) CheckMessageLength(content string) error {
	if n := len([]rune(content)); n > p.limits.MessageMaxLength {
		return fmt.Errorf("message exceeds %d characters (got %d)", p.limits.MessageMaxLength, n)
	}
	return nil
}

// CheckFileUploads rejects an upload when today's allowance is used up.
func (p *Policy) CheckFileUploads(today int) error {
	if today >= p.limits.DailyFileUploads {
		return domain.NewUsageLimitError("attachments", fmt.Sprintf("Daily upload limit of %d files reached.", p.limits.DailyFileUploads))
	}
	return nil
}

// Summary reports the counters and remaining quota of u at now.
func (p *Policy) Summary(u *domain.User, hasKeys bool, now time.Time) domain.UsageSummary {
	sub := u.Subscription()
	proCount, _ := p.ProCount(u, now)
	monthlyLimit := p.MonthlyLimit(u, hasKeys)

	// Remaining counts never go negative, e.g. after a downgrade.
	remainingMonthly := Unlimited
	if monthlyLimit > 0 {
		remainingMonthly = max(monthlyLimit-u.MessageCount, 0)
	}

	return domain.UsageSummary{
		DailyCount:         u.DailyMessageCount,
		DailyProCount:      proCount,
		DailyLimit:         Unlimited,
		MonthlyCount:       u.MessageCount,
		MonthlyLimit:       monthlyLimit,
		Remaining:          Unlimited,
		RemainingPro:       max(p.limits.DailyProModels-proCount, 0),
		RemainingMonthly:   remainingMonthly,
		SubscriptionType:   sub.Type,
		SubscriptionStatus: sub.Status,
		HasAPIKeys:         hasKeys,
	}
}

// SameUTCDay reports whether a and b fall on the same UTC calendar day.
func SameUTCDay(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}

// StartOfUTCDay truncates t to midnight UTC.
func StartOfUTCDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// formatCount renders n with thousands separators (5000 -> "5,000").
func formatCount(n int) string {
	if n < 0 {
		return "-" + formatCount(-n)
	}
	s := strconv.Itoa(n)
	for i := len(s) - 3; i > 0; i -= 3 {
		s = s[:i] + "," + s[i:]
	}
	return s
}
