package digest

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/PratikDhanave/offhours-digest/internal/logger"
	"github.com/PratikDhanave/offhours-digest/internal/models"
	"github.com/PratikDhanave/offhours-digest/internal/slack"
	"github.com/PratikDhanave/offhours-digest/internal/store"
)

const (
	HeaderText = "🌙 Off-Hours Digest"
	ButtonText = "📄 View Sheet"
)

type EventSource interface {
	QueryEvents(ctx context.Context, from, to time.Time) ([]models.EventRecord, error)
}

type Exporter interface {
	Export(ctx context.Context, name string, records []models.EventRecord) (url string, err error)
}

type Notifier interface {
	PostMessage(ctx context.Context, blocks []slack.Block) (string, error)
}

type Pruner interface {
	PruneAll(ctx context.Context, tables ...store.Table)
}

// Aggregator builds the daily digest of yesterday's off-hours activity.
type Aggregator struct {
	events   EventSource
	exporter Exporter
	notifier Notifier
	pruner   Pruner
	loc      *time.Location
	now      func() time.Time
}

type Option func(*Aggregator)

// WithClock overrides the time source used to compute the window.
func WithClock(now func() time.Time) Option {
	return func(a *Aggregator) { a.now = now }
}

func NewAggregator(events EventSource, exporter Exporter, notifier Notifier, pruner Pruner, loc *time.Location, opts ...Option) *Aggregator {
	if loc == nil {
		loc = time.Local
	}
	a := &Aggregator{
		events:   events,
		exporter: exporter,
		notifier: notifier,
		pruner:   pruner,
		loc:      loc,
		now:      time.Now,
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Summary describes one digest run. Users is empty when nothing was sent.
type Summary struct {
	From      time.Time `json:"from"`
	To        time.Time `json:"to"`
	Events    int       `json:"events"`
	Users     []string  `json:"users"`
	ExportURL string    `json:"export_url,omitempty"`
}

// Window returns [start of yesterday, start of today) in the aggregator's zone.
func (a *Aggregator) Window() (time.Time, time.Time) {
	now := a.now().In(a.loc)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, a.loc)
	return today.AddDate(0, 0, -1), today
}

// RunDaily exports yesterday's events, posts the digest and prunes. With no
// events it does nothing. Any step failing stops the run.
func (a *Aggregator) RunDaily(ctx context.Context) (Summary, error) {
	sp := logger.StartSpan(ctx, "digest.run_daily")
	defer sp.End()
	ctx = logger.WithLogFields(sp.Context(), logger.LogFields{Component: "digest.aggregator"})

	from, to := a.Window()
	sum := Summary{From: from, To: to}

	records, err := a.events.QueryEvents(ctx, from, to)
	if err != nil {
		sp.RecordError(err)
		return sum, fmt.Errorf("query events: %w", err)
	}
	if len(records) == 0 {
		slog.InfoContext(ctx, "no off-hours events, digest skipped", "from", from, "to", to)
		return sum, nil
	}
	sum.Events = len(records)
	sum.Users = DistinctUsers(records)

	url, err := a.exporter.Export(ctx, ExportName(from), records)
	if err != nil {
		sp.RecordError(err)
		return sum, fmt.Errorf("export digest: %w", err)
	}
	sum.ExportURL = url

	if _, err := a.notifier.PostMessage(ctx, BuildBlocks(sum.Users, url)); err != nil {
		sp.RecordError(err)
		return sum, fmt.Errorf("post digest: %w", err)
	}

	a.pruner.PruneAll(ctx)

	slog.InfoContext(ctx, "digest sent", "events", sum.Events, "users", len(sum.Users), "export_url", url)
	return sum, nil
}

// DistinctUsers lists each UserDisplay once, in first-occurrence order.
func DistinctUsers(records []models.EventRecord) []string {
	seen := make(map[string]struct{}, len(records))
	users := make([]string, 0)
	for _, r := range records {
		if _, ok := seen[r.UserDisplay]; ok {
			continue
		}
		seen[r.UserDisplay] = struct{}{}
		users = append(users, r.UserDisplay)
	}
	return users
}

// BuildBlocks renders the digest message.
func BuildBlocks(users []string, exportURL string) []slack.Block {
	lines := make([]string, len(users))
	for i, u := range users {
		lines[i] = "• " + u
	}
	return []slack.Block{
		slack.Header(HeaderText),
		slack.Markdown(strings.Join(lines, "\n")),
		slack.LinkButton(ButtonText, exportURL),
	}
}

// ExportName is OffHours_<yyyyMMdd_HHmm> of the window start.
func ExportName(windowStart time.Time) string {
	return "OffHours_" + windowStart.Format("20060102_1504")
}
