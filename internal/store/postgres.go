package store

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/PratikDhanave/offhours-digest/internal/models"
)

// schemaSQL is embedded so the service can self-bootstrap its database schema.
//
//go:embed schema.sql
var schemaSQL string

// PostgresStore is the durable row store behind the Events, DebugLogs and
// SlackLogs tables, the holiday cache and the digest exports.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a connection pool and fails fast if DB is unreachable.
func NewPostgresStore(dbURL string) (*PostgresStore, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

// EnsureSchema applies schema.sql. Safe to run multiple times.
func (p *PostgresStore) EnsureSchema(ctx context.Context) error {
	_, err := p.pool.Exec(ctx, schemaSQL)
	return err
}

// Ping is used by readiness endpoint to validate DB connectivity.
func (p *PostgresStore) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

// Close shuts down the connection pool.
func (p *PostgresStore) Close() {
	p.pool.Close()
}

// AppendRow appends one row. Rows are never updated afterwards.
func (p *PostgresStore) AppendRow(ctx context.Context, table Table, ts time.Time, fields []string) error {
	def, err := lookup(table, len(fields))
	if err != nil {
		return err
	}

	placeholders := make([]string, 0, len(fields)+1)
	args := make([]any, 0, len(fields)+1)
	placeholders = append(placeholders, "$1")
	args = append(args, ts)
	for i, f := range fields {
		placeholders = append(placeholders, fmt.Sprintf("$%d", i+2))
		args = append(args, f)
	}

	sql := fmt.Sprintf("INSERT INTO %s (ts, %s) VALUES (%s)",
		def.name, strings.Join(def.columns, ", "), strings.Join(placeholders, ", "))
	if _, err := p.pool.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("append %s: %w", table, err)
	}
	return nil
}

// QueryRange returns rows with ts in the half-open window [from,to), in
// append order.
func (p *PostgresStore) QueryRange(ctx context.Context, table Table, from, to time.Time) ([]Row, error) {
	def, err := lookup(table, -1)
	if err != nil {
		return nil, err
	}

	sql := fmt.Sprintf("SELECT id, ts, %s FROM %s WHERE ts >= $1 AND ts < $2 ORDER BY id ASC",
		strings.Join(def.columns, ", "), def.name)
	rows, err := p.pool.Query(ctx, sql, from, to)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", table, err)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		r := Row{Fields: make([]string, len(def.columns))}
		dest := make([]any, 0, len(def.columns)+2)
		dest = append(dest, &r.ID, &r.Timestamp)
		for i := range r.Fields {
			dest = append(dest, &r.Fields[i])
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan %s: %w", table, err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// RowCount returns the number of data rows (the header is not stored).
func (p *PostgresStore) RowCount(ctx context.Context, table Table) (int, error) {
	def, err := lookup(table, -1)
	if err != nil {
		return 0, err
	}

	var n int
	if err := p.pool.QueryRow(ctx, "SELECT COUNT(*) FROM "+def.name).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", table, err)
	}
	return n, nil
}

// DeleteOldest removes up to count rows in append order and reports how many
// were deleted.
func (p *PostgresStore) DeleteOldest(ctx context.Context, table Table, count int) (int, error) {
	def, err := lookup(table, -1)
	if err != nil {
		return 0, err
	}
	if count <= 0 {
		return 0, nil
	}

	sql := fmt.Sprintf("DELETE FROM %[1]s WHERE id IN (SELECT id FROM %[1]s ORDER BY id ASC LIMIT $1)", def.name)
	tag, err := p.pool.Exec(ctx, sql, count)
	if err != nil {
		return 0, fmt.Errorf("delete oldest %s: %w", table, err)
	}
	return int(tag.RowsAffected()), nil
}

// AppendEvent appends an EventRecord to the Events table.
func (p *PostgresStore) AppendEvent(ctx context.Context, rec models.EventRecord) error {
	return p.AppendRow(ctx, Events, rec.Timestamp, []string{rec.Type, rec.EntityID, rec.UserDisplay, rec.URL})
}

// QueryEvents returns the EventRecords appended in [from,to).
func (p *PostgresStore) QueryEvents(ctx context.Context, from, to time.Time) ([]models.EventRecord, error) {
	rows, err := p.QueryRange(ctx, Events, from, to)
	if err != nil {
		return nil, err
	}
	return RowsToEvents(rows), nil
}

// RowsToEvents converts Events rows into records.
func RowsToEvents(rows []Row) []models.EventRecord {
	out := make([]models.EventRecord, 0, len(rows))
	for _, r := range rows {
		rec := models.EventRecord{Timestamp: r.Timestamp}
		if len(r.Fields) == 4 {
			rec.Type, rec.EntityID, rec.UserDisplay, rec.URL = r.Fields[0], r.Fields[1], r.Fields[2], r.Fields[3]
		}
		out = append(out, rec)
	}
	return out
}

// GetHoliday returns the cached holiday status for dateKey; found is false
// when the date has never been looked up.
func (p *PostgresStore) GetHoliday(ctx context.Context, dateKey string) (holiday bool, found bool, err error) {
	err = p.pool.QueryRow(ctx, `SELECT is_holiday FROM holiday_cache WHERE date_key = $1`, dateKey).Scan(&holiday)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, false, nil
	}
	if err != nil {
		return false, false, fmt.Errorf("get holiday %s: %w", dateKey, err)
	}
	return holiday, true, nil
}

// PutHoliday stores the holiday status for dateKey. The first write wins;
// later writes for the same key are ignored.
func (p *PostgresStore) PutHoliday(ctx context.Context, dateKey string, holiday bool) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO holiday_cache (date_key, is_holiday)
		VALUES ($1, $2)
		ON CONFLICT (date_key) DO NOTHING
	`, dateKey, holiday)
	if err != nil {
		return fmt.Errorf("put holiday %s: %w", dateKey, err)
	}
	return nil
}

// Export is a stored digest artifact.
type Export struct {
	ID        uuid.UUID
	Name      string
	Content   []byte
	CreatedAt time.Time
}

// CreateExport stores an artifact and returns its id.
func (p *PostgresStore) CreateExport(ctx context.Context, name string, content []byte) (uuid.UUID, error) {
	id := uuid.New()
	_, err := p.pool.Exec(ctx,
		`INSERT INTO digest_exports (id, name, content) VALUES ($1, $2, $3)`,
		id, name, content)
	if err != nil {
		return uuid.Nil, fmt.Errorf("create export: %w", err)
	}
	return id, nil
}

// GetExport loads an artifact; ErrNotFound when it does not exist.
func (p *PostgresStore) GetExport(ctx context.Context, id uuid.UUID) (Export, error) {
	var e Export
	err := p.pool.QueryRow(ctx,
		`SELECT id, name, content, created_at FROM digest_exports WHERE id = $1`, id,
	).Scan(&e.ID, &e.Name, &e.Content, &e.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Export{}, ErrNotFound
	}
	if err != nil {
		return Export{}, fmt.Errorf("get export: %w", err)
	}
	return e, nil
}
