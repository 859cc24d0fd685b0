package audit

import (
	"context"

	"github.com/jdships/yodoo-rebuild/pkg/log"
)

// Audit actions.
const (
	ActionUserProvisioned     = "user.provisioned"
	ActionChatCreated         = "chat.created"
	ActionChatDeleted         = "chat.deleted"
	ActionProjectDeleted      = "project.deleted"
	ActionKeySaved            = "keys.saved"
	ActionKeyDeleted          = "keys.deleted"
	ActionCheckoutCreated     = "billing.checkout_created"
	ActionSubscriptionUpdated = "billing.subscription_updated"
	ActionUsageLimitHit       = "usage.limit_hit"
	ActionMonthlyReset        = "usage.monthly_reset"
)

// Field constants for audit entries.
const (
	FieldAction   = "action"
	FieldTargetID = "target_id"
	FieldDetail   = "detail"
)

// Log emits a structured audit log entry via the context logger.
func Log(ctx context.Context, action string, userID string, msg string) {
	l := log.Ctx(ctx)
	l.Info().
		Str(log.FieldLogType, log.LogTypeAudit).
		Str(FieldAction, action).
		Str(log.FieldUserID, userID).
		Msg(msg)
}

// LogWithTarget emits an audit log about a specific record.
func LogWithTarget(ctx context.Context, action string, userID string, targetID string, msg string) {
	l := log.Ctx(ctx)
	l.Info().
		Str(log.FieldLogType, log.LogTypeAudit).
		Str(FieldAction, action).
		Str(log.FieldUserID, userID).
		Str(FieldTargetID, targetID).
		Msg(msg)
}

// LogWithDetail emits an audit log with extra detail field.
func LogWithDetail(ctx context.Context, action string, userID string, detail string, msg string) {
	l := log.Ctx(ctx)
	l.Info().
		Str(log.FieldLogType, log.LogTypeAudit).
		Str(FieldAction, action).
		Str(log.FieldUserID, userID).
		Str(FieldDetail, detail).
		Msg(msg)
}
