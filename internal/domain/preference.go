package domain

// UserPreferences are per-user UI settings.
type UserPreferences struct {
	PromptSuggestions        bool     `json:"prompt_suggestions"`
	ShowToolInvocations      bool     `json:"show_tool_invocations"`
	ShowConversationPreviews bool     `json:"show_conversation_previews"`
	MultiModelEnabled        bool     `json:"multi_model_enabled"`
	HiddenModels             []string `json:"hidden_models"`
}

// DefaultPreferences are returned for users without a stored row.
func DefaultPreferences() UserPreferences {
	return UserPreferences{
		PromptSuggestions:        true,
		ShowToolInvocations:      true,
		ShowConversationPreviews: true,
		MultiModelEnabled:        false,
		HiddenModels:             []string{},
	}
}

// PreferencesPatch carries only the fields present in a PUT body.
type PreferencesPatch struct {
	PromptSuggestions        *bool
	ShowToolInvocations      *bool
	ShowConversationPreviews *bool
	MultiModelEnabled        *bool
	HiddenModels             *[]string
}

// Empty reports whether the patch changes nothing.
func (p PreferencesPatch) Empty() bool {
	return p.PromptSuggestions == nil && p.ShowToolInvocations == nil &&
		p.ShowConversationPreviews == nil && p.MultiModelEnabled == nil && p.HiddenModels == nil
}

// Apply overlays the patch on prefs.
func (p PreferencesPatch) Apply(prefs UserPreferences) UserPreferences {
	if p.PromptSuggestions != nil {
		prefs.PromptSuggestions = *p.PromptSuggestions
	}
	if p.ShowToolInvocations != nil {
		prefs.ShowToolInvocations = *p.ShowToolInvocations
	}
	if p.ShowConversationPreviews != nil {
		prefs.ShowConversationPreviews = *p.ShowConversationPreviews
	}
	if p.MultiModelEnabled != nil {
		prefs.MultiModelEnabled = *p.MultiModelEnabled
	}
	if p.HiddenModels != nil {
		prefs.HiddenModels = append([]string{}, (*p.HiddenModels)...)
	}
	if prefs.HiddenModels == nil {
		prefs.HiddenModels = []string{}
	}
	return prefs
}
