package logger

import "context"

type contextKey string

const logFieldsKey contextKey = "log_fields"

// LogFields are attached to every record logged with a context carrying them.
type LogFields struct {
	Component string  // e.g. "digest.queue.drain"
	QueueKey  *string // deferred buffer key being processed
	EventType *string // Notion event type, e.g. "page.content_updated"
	Table     *string // durable table name
	Task      *string // scheduled task name
}

// WithLogFields merges fields into ctx; newer non-empty values win.
func WithLogFields(ctx context.Context, fields LogFields) context.Context {
	merged := mergeFields(GetLogFields(ctx), fields)
	return context.WithValue(ctx, logFieldsKey, merged)
}

func GetLogFields(ctx context.Context) LogFields {
	if fields, ok := ctx.Value(logFieldsKey).(LogFields); ok {
		return fields
	}
	return LogFields{}
}

func mergeFields(existing, new LogFields) LogFields {
	result := existing

	if new.Component != "" {
		result.Component = new.Component
	}
	if new.QueueKey != nil {
		result.QueueKey = new.QueueKey
	}
	if new.EventType != nil {
		result.EventType = new.EventType
	}
	if new.Table != nil {
		result.Table = new.Table
	}
	if new.Task != nil {
		result.Task = new.Task
	}

	return result
}

// Ptr returns a pointer to v, handy for inline LogFields literals.
func Ptr[T any](v T) *T {
	return &v
}

// Truncate cuts s to at most maxLen bytes without splitting a UTF-8 rune.
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	cut := maxLen
	for cut > 0 && !isRuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}
