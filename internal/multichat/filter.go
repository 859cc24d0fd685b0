// Package multichat holds the rules for running one prompt against several
// models: the per-model view of a shared history and the settle-all fan-out.
package multichat

import "github.com/jdships/yodoo-rebuild/internal/domain"

// MaxModels bounds any multi-model request regardless of plan.
const MaxModels = 10

// FilterForModel returns the part of a shared multi-model history that
// belongs to model: its own assistant replies and the user turns they
// answer. User turns are matched by message group id and appear once per
// group even when the group was stored more than once.
func FilterForModel(messages []*domain.Message, model string) []*domain.Message {
	answered := make(map[string]struct{})
	for _, m := range messages {
		if m.Role == domain.RoleAssistant && m.ModelID() == model {
			if g := m.GroupID(); g != "" {
				answered[g] = struct{}{}
			}
		}
	}

	out := make([]*domain.Message, 0, len(messages))
	seen := make(map[string]struct{})
	for _, m := range messages {
		switch m.Role {
		case domain.RoleAssistant:
			if m.ModelID() == model {
				out = append(out, m)
			}
		case domain.RoleUser:
			g := m.GroupID()
			if _, ok := answered[g]; !ok || g == "" {
				continue
			}
			if _, dup := seen[g]; dup {
				continue
			}
			seen[g] = struct{}{}
			out = append(out, m)
		}
	}
	return out
}

// HasGroups reports whether any message belongs to a multi-model group.
func HasGroups(messages []*domain.Message) bool {
	for _, m := range messages {
		if m.GroupID() != "" {
			return true
		}
	}
	return false
}
