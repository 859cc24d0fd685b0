package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSubscriptionDefaults(t *testing.T) {
	u := &User{}
	assert.Equal(t, Subscription{Type: PlanFree, Status: StatusInactive}, u.Subscription())
	assert.False(t, u.HasActiveSubscription())
	assert.False(t, u.IsUnlimited())
}

func TestSubscriptionPredicates(t *testing.T) {
	cases := []struct {
		plan      PlanType
		status    SubscriptionStatus
		active    bool
		unlimited bool
	}{
		{PlanFree, StatusActive, false, false},
		{PlanPro, StatusActive, true, false},
		{PlanPro, StatusCanceled, false, false},
		{PlanUnlimited, StatusActive, true, true},
		{PlanUnlimited, StatusPastDue, false, false},
	}
	for _, tc := range cases {
		u := &User{SubscriptionType: tc.plan, SubscriptionStatus: tc.status}
		assert.Equal(t, tc.active, u.HasActiveSubscription(), "%s/%s", tc.plan, tc.status)
		assert.Equal(t, tc.active, u.IsPremium(), "%s/%s", tc.plan, tc.status)
		assert.Equal(t, tc.unlimited, u.IsUnlimited(), "%s/%s", tc.plan, tc.status)
	}
}

func TestPreferencesPatchApply(t *testing.T) {
	off := false
	hidden := []string{"gpt-4.1-nano"}
	p := PreferencesPatch{PromptSuggestions: &off, HiddenModels: &hidden}
	assert.False(t, p.Empty())

	got := p.Apply(DefaultPreferences())
	assert.False(t, got.PromptSuggestions)
	assert.True(t, got.ShowToolInvocations)
	assert.Equal(t, []string{"gpt-4.1-nano"}, got.HiddenModels)

	assert.True(t, PreferencesPatch{}.Empty())
	assert.Equal(t, []string{}, PreferencesPatch{}.Apply(UserPreferences{}).HiddenModels)
}

func TestUsageLimitError(t *testing.T) {
	err := NewUsageLimitError("monthly", "limit hit")
	assert.Equal(t, "limit hit", err.Error())
	assert.Equal(t, UsageLimitCode, err.Code)
}

func TestMessageModelRoundTripKeepsNullableFields(t *testing.T) {
	group := "g1"
	msg := &Message{ChatID: "c1", Role: RoleUser, Content: "hi", MessageGroupID: &group}
	back := MessageToModel(msg).ToDomain()
	assert.Equal(t, "g1", back.GroupID())
	assert.Equal(t, "", back.ModelID())
	assert.Nil(t, back.Attachments)
}
