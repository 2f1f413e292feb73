package retention

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/PratikDhanave/offhours-digest/internal/logger"
	"github.com/PratikDhanave/offhours-digest/internal/store"
)

// headerRows is the column header every table keeps; it counts towards the
// ceiling but is never deleted.
const headerRows = 1

const (
	DefaultMaxRows = 2000
	DefaultBlock   = 1000
)

// RowStore is the part of the durable store the pruner needs.
type RowStore interface {
	RowCount(ctx context.Context, table store.Table) (int, error)
	DeleteOldest(ctx context.Context, table store.Table, count int) (int, error)
}

// Pruner bounds table size by trimming a fixed block of the oldest rows once
// a table grows past MaxRows (header included).
type Pruner struct {
	store   RowStore
	maxRows int
	block   int
}

func NewPruner(st RowStore, maxRows, block int) *Pruner {
	if maxRows <= 0 {
		maxRows = DefaultMaxRows
	}
	if block <= 0 {
		block = DefaultBlock
	}
	return &Pruner{store: st, maxRows: maxRows, block: block}
}

// Prune trims table if it is over the ceiling and returns the number of
// deleted rows.
func (p *Pruner) Prune(ctx context.Context, table store.Table) (int, error) {
	data, err := p.store.RowCount(ctx, table)
	if err != nil {
		return 0, fmt.Errorf("prune %s: %w", table, err)
	}
	if data+headerRows <= p.maxRows {
		return 0, nil
	}

	n := p.block
	if n > data {
		n = data
	}
	deleted, err := p.store.DeleteOldest(ctx, table, n)
	if err != nil {
		return 0, fmt.Errorf("prune %s: %w", table, err)
	}

	slog.InfoContext(ctx, "pruned table",
		"table", string(table),
		"deleted", deleted,
		"rows_before", data+headerRows)
	return deleted, nil
}

// PruneAll prunes every table; a failure on one table does not stop the rest.
func (p *Pruner) PruneAll(ctx context.Context, tables ...store.Table) {
	if len(tables) == 0 {
		tables = store.AllTables
	}
	for _, t := range tables {
		tctx := logger.WithLogFields(ctx, logger.LogFields{Table: logger.Ptr(string(t))})
		if _, err := p.Prune(tctx, t); err != nil {
			slog.ErrorContext(tctx, "prune failed", "error", err)
		}
	}
}
