package logger

import "context"

type contextKey string

const fieldsKey contextKey = "log_fields"

// Fields are attached to every record logged with the carrying context.
type Fields struct {
	UpdateID  string // correlation id of the inbound update
	ActorID   int64  // Telegram user id of the sender
	ChatID    int64
	RequestID int64
	Component string
}

// WithFields merges fields into ctx, with non-zero values in fields winning.
func WithFields(ctx context.Context, fields Fields) context.Context {
	merged := FieldsFrom(ctx)
	if fields.UpdateID != "" {
		merged.UpdateID = fields.UpdateID
	}
	if fields.ActorID != 0 {
		merged.ActorID = fields.ActorID
	}
	if fields.ChatID != 0 {
		merged.ChatID = fields.ChatID
	}
	if fields.RequestID != 0 {
		merged.RequestID = fields.RequestID
	}
	if fields.Component != "" {
		merged.Component = fields.Component
	}
	return context.WithValue(ctx, fieldsKey, merged)
}

func FieldsFrom(ctx context.Context) Fields {
	if f, ok := ctx.Value(fieldsKey).(Fields); ok {
		return f
	}
	return Fields{}
}
