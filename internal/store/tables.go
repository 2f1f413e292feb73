package store

import (
	"errors"
	"fmt"
	"time"
)

// Table names a durable, append-only table.
type Table string

const (
	Events    Table = "Events"
	DebugLogs Table = "DebugLogs"
	SlackLogs Table = "SlackLogs"
)

// AllTables is the set pruned after every digest cycle.
var AllTables = []Table{Events, DebugLogs, SlackLogs}

var (
	ErrUnknownTable = errors.New("store: unknown table")
	ErrNotFound     = errors.New("store: not found")
)

// tableDef maps a logical table onto its SQL name and data columns. The
// timestamp column "ts" is implicit and always first.
type tableDef struct {
	name    string
	columns []string
}

var tables = map[Table]tableDef{
	Events:    {name: "events", columns: []string{"type", "entity_id", "user_display", "url"}},
	DebugLogs: {name: "debug_logs", columns: []string{"label", "payload"}},
	SlackLogs: {name: "slack_logs", columns: []string{"level", "phase", "message"}},
}

func lookup(table Table, fields int) (tableDef, error) {
	def, ok := tables[table]
	if !ok {
		return tableDef{}, fmt.Errorf("%w: %q", ErrUnknownTable, table)
	}
	if fields >= 0 && fields != len(def.columns) {
		return tableDef{}, fmt.Errorf("store: %s expects %d fields, got %d", table, len(def.columns), fields)
	}
	return def, nil
}

// Row is one stored row: its append time plus the data columns in order.
type Row struct {
	ID        int64
	Timestamp time.Time
	Fields    []string
}
