package log

const (
	// Request
	FieldRequestID = "request_id"
	FieldMethod    = "method"
	FieldPath      = "path"
	FieldStatus    = "status"
	FieldLatency   = "latency_ms"
	FieldClientIP  = "client_ip"

	// Actor
	FieldUserID = "user_id"

	// Messaging
	FieldConnID         = "conn_id"
	FieldConversationID = "conversation_id"
	FieldMessageID      = "message_id"
	FieldSenderID       = "sender_id"
	FieldReceiverID     = "receiver_id"
	FieldEvent          = "event"

	// Service
	FieldService = "service"

	// Log type (for audit log)
	FieldLogType = "log_type"
	LogTypeAudit = "audit"
)
