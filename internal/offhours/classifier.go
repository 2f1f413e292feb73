package offhours

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/PratikDhanave/offhours-digest/internal/logger"
)

// HolidayOracle answers whether any holiday falls in [from,to).
type HolidayOracle interface {
	HasHoliday(ctx context.Context, from, to time.Time) (bool, error)
}

// HolidayStore persists holiday answers per date key, first write wins.
type HolidayStore interface {
	GetHoliday(ctx context.Context, dateKey string) (holiday bool, found bool, err error)
	PutHoliday(ctx context.Context, dateKey string, holiday bool) error
}

// Classifier decides whether a moment is outside working hours: evenings,
// weekends and holidays in the configured location.
type Classifier struct {
	loc       *time.Location
	startHour int
	endHour   int
	oracle    HolidayOracle
	store     HolidayStore
	now       func() time.Time

	// memo holds holiday answers for the life of the process.
	memo sync.Map // dateKey -> bool
}

type Option func(*Classifier)

// WithClock overrides the time source used when no timestamp is given.
func WithClock(now func() time.Time) Option {
	return func(c *Classifier) { c.now = now }
}

// WithHolidayStore adds a persistent layer under the in-memory memo.
func WithHolidayStore(s HolidayStore) Option {
	return func(c *Classifier) { c.store = s }
}

func NewClassifier(loc *time.Location, startHour, endHour int, oracle HolidayOracle, opts ...Option) *Classifier {
	if loc == nil {
		loc = time.Local
	}
	c := &Classifier{
		loc:       loc,
		startHour: startHour,
		endHour:   endHour,
		oracle:    oracle,
		now:       time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// IsOffHours reports whether ts (now when nil) is off-hours. It never fails:
// an unreachable holiday oracle counts as "not a holiday".
func (c *Classifier) IsOffHours(ctx context.Context, ts *time.Time) bool {
	t := c.now()
	if ts != nil {
		t = *ts
	}
	t = t.In(c.loc)

	if h := t.Hour(); h >= c.endHour || h < c.startHour {
		return true
	}
	if wd := t.Weekday(); wd == time.Saturday || wd == time.Sunday {
		return true
	}
	return c.IsHoliday(ctx, t)
}

// DateKey formats t as the local calendar date used for holiday caching.
func (c *Classifier) DateKey(t time.Time) string {
	return t.In(c.loc).Format(time.DateOnly)
}

// IsHoliday looks t's local date up in the memo, then the store, then the
// oracle. Oracle failures are not cached so they are retried next time.
func (c *Classifier) IsHoliday(ctx context.Context, t time.Time) bool {
	key := c.DateKey(t)
	ctx = logger.WithLogFields(ctx, logger.LogFields{Component: "digest.offhours"})

	if v, ok := c.memo.Load(key); ok {
		return v.(bool)
	}

	if c.store != nil {
		hol, found, err := c.store.GetHoliday(ctx, key)
		if err != nil {
			slog.WarnContext(ctx, "holiday cache read failed", "date", key, "error", err)
		} else if found {
			c.memo.Store(key, hol)
			return hol
		}
	}

	if c.oracle == nil {
		return false
	}

	local := t.In(c.loc)
	dayStart := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, c.loc)
	hol, err := c.oracle.HasHoliday(ctx, dayStart, dayStart.Add(24*time.Hour))
	if err != nil {
		slog.WarnContext(ctx, "holiday lookup failed, treating as working day", "date", key, "error", err)
		return false
	}

	if c.store != nil {
		if err := c.store.PutHoliday(ctx, key, hol); err != nil {
			slog.WarnContext(ctx, "holiday cache write failed", "date", key, "error", err)
		}
	}
	c.memo.Store(key, hol)
	return hol
}
