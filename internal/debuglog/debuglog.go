package debuglog

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/PratikDhanave/offhours-digest/internal/logger"
	"github.com/PratikDhanave/offhours-digest/internal/store"
)

const maxPayload = 2000

// Appender appends one row to a durable table.
type Appender interface {
	AppendRow(ctx context.Context, table store.Table, ts time.Time, fields []string) error
}

// Pruner trims a table after an append.
type Pruner interface {
	Prune(ctx context.Context, table store.Table) (int, error)
}

// Recorder writes labelled diagnostic rows to the DebugLogs table when
// debugging is enabled. It never fails the caller.
type Recorder struct {
	rows    Appender
	pruner  Pruner
	enabled bool
	now     func() time.Time
}

func NewRecorder(rows Appender, pruner Pruner, enabled bool) *Recorder {
	return &Recorder{rows: rows, pruner: pruner, enabled: enabled, now: time.Now}
}

func (r *Recorder) Log(ctx context.Context, label string, v any) {
	if r == nil || !r.enabled {
		return
	}
	appendAndPrune(ctx, r.rows, r.pruner, store.DebugLogs, r.now(), []string{label, encode(v)})
}

// SlackLog keeps the raw Slack API answers in the SlackLogs table.
type SlackLog struct {
	rows   Appender
	pruner Pruner
	now    func() time.Time
}

func NewSlackLog(rows Appender, pruner Pruner) *SlackLog {
	return &SlackLog{rows: rows, pruner: pruner, now: time.Now}
}

func (s *SlackLog) Record(ctx context.Context, phase, message string) {
	if s == nil {
		return
	}
	appendAndPrune(ctx, s.rows, s.pruner, store.SlackLogs, s.now(), []string{"INFO", phase, logger.Truncate(message, maxPayload)})
}

func appendAndPrune(ctx context.Context, rows Appender, pruner Pruner, table store.Table, ts time.Time, fields []string) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{Table: logger.Ptr(string(table))})
	if err := rows.AppendRow(ctx, table, ts, fields); err != nil {
		slog.WarnContext(ctx, "failed to append log row", "error", err)
		return
	}
	if pruner == nil {
		return
	}
	if _, err := pruner.Prune(ctx, table); err != nil {
		slog.WarnContext(ctx, "failed to prune log table", "error", err)
	}
}

func encode(v any) string {
	var s string
	switch x := v.(type) {
	case string:
		s = x
	case error:
		s = x.Error()
	default:
		b, err := json.Marshal(x)
		if err != nil {
			s = fmt.Sprintf("%v", x)
		} else {
			s = string(b)
		}
	}
	return logger.Truncate(s, maxPayload)
}
