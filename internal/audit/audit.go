package audit

import (
	"context"

	"github.com/reservo/chat-service/pkg/log"
)

// Audit actions for the messaging core.
const (
	ActionJoin         = "chat.join"
	ActionJoinRejected = "chat.join_rejected"
	ActionSendMessage  = "chat.send_message"
	ActionSendRejected = "chat.send_rejected"
	ActionDisconnect   = "chat.disconnect"
	ActionMarkRead     = "chat.mark_read"
)

const (
	fieldAction = "action"
	fieldDetail = "detail"
)

// Log emits a structured audit entry via the context logger.
func Log(ctx context.Context, action string, userID int64, msg string) {
	l := log.Ctx(ctx)
	l.Info().
		Str(log.FieldLogType, log.LogTypeAudit).
		Str(fieldAction, action).
		Int64(log.FieldUserID, userID).
		Msg(msg)
}

// LogWithDetail emits an audit entry with an extra detail field.
func LogWithDetail(ctx context.Context, action string, userID int64, detail, msg string) {
	l := log.Ctx(ctx)
	l.Info().
		Str(log.FieldLogType, log.LogTypeAudit).
		Str(fieldAction, action).
		Int64(log.FieldUserID, userID).
		Str(fieldDetail, detail).
		Msg(msg)
}
