package monitor

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/PratikDhanave/offhours-digest/internal/logger"
	"github.com/PratikDhanave/offhours-digest/internal/notion"
	"github.com/PratikDhanave/offhours-digest/internal/slack"
)

const healthBodyLimit = 300

// NotionAPI is the slice of the Notion client the probes need.
type NotionAPI interface {
	Me(ctx context.Context) (notion.Response, error)
	GetWebhook(ctx context.Context, id string) (notion.Webhook, error)
	ResumeWebhook(ctx context.Context, id string) (notion.Response, error)
}

type Notifier interface {
	PostMessage(ctx context.Context, blocks []slack.Block) (string, error)
}

// Monitor watches the Notion integration: token health and the webhook
// subscription's paused flag. It keeps no state between probes.
type Monitor struct {
	api       NotionAPI
	notifier  Notifier
	webhookID string
}

func New(api NotionAPI, notifier Notifier, webhookID string) *Monitor {
	return &Monitor{api: api, notifier: notifier, webhookID: webhookID}
}

type HealthResult struct {
	Status   int  `json:"status"`
	Healthy  bool `json:"healthy"`
	Notified bool `json:"notified"`
}

// CheckHealth calls the identity endpoint and warns on anything but 200. A
// transport failure is reported as status 0.
func (m *Monitor) CheckHealth(ctx context.Context) HealthResult {
	sp := logger.StartSpan(ctx, "monitor.health")
	defer sp.End()
	ctx = logger.WithLogFields(sp.Context(), logger.LogFields{Component: "digest.monitor.health"})

	resp, err := m.api.Me(ctx)
	body := string(resp.Body)
	if err != nil {
		sp.RecordError(err)
		resp.StatusCode = 0
		body = err.Error()
	}

	res := HealthResult{Status: resp.StatusCode, Healthy: resp.OK()}
	if res.Healthy {
		slog.DebugContext(ctx, "notion api healthy")
		return res
	}

	slog.WarnContext(ctx, "notion api health check failed", "status", res.Status)
	res.Notified = m.notify(ctx, HealthWarning(res.Status, body))
	return res
}

// HealthWarning is the alert text for a failed health probe.
func HealthWarning(status int, body string) string {
	return fmt.Sprintf("*:warning: Notion API health check failed*\nStatus: %d\n```%s```",
		status, logger.Truncate(body, healthBodyLimit))
}

const resumedText = "*:arrow_forward: Notion webhook resumed automatically*"

type ResumeResult struct {
	Paused   bool `json:"paused"`
	Resumed  bool `json:"resumed"`
	Notified bool `json:"notified"`
}

// ResumeIfPaused un-pauses the webhook subscription when it is paused and
// announces a successful resume. Fetch failures are ignored.
func (m *Monitor) ResumeIfPaused(ctx context.Context) ResumeResult {
	sp := logger.StartSpan(ctx, "monitor.resume")
	defer sp.End()
	ctx = logger.WithLogFields(sp.Context(), logger.LogFields{Component: "digest.monitor.resume"})

	var res ResumeResult
	if m.webhookID == "" {
		slog.DebugContext(ctx, "no webhook id configured, resume probe skipped")
		return res
	}

	wh, err := m.api.GetWebhook(ctx, m.webhookID)
	if err != nil {
		slog.WarnContext(ctx, "webhook status fetch failed", "webhook_id", m.webhookID, "error", err)
		return res
	}
	if !wh.Paused {
		return res
	}
	res.Paused = true

	resp, err := m.api.ResumeWebhook(ctx, m.webhookID)
	if err != nil {
		sp.RecordError(err)
		slog.ErrorContext(ctx, "webhook resume failed", "webhook_id", m.webhookID, "error", err)
		return res
	}
	if !resp.OK() {
		slog.ErrorContext(ctx, "webhook resume rejected", "webhook_id", m.webhookID, "status", resp.StatusCode)
		return res
	}
	res.Resumed = true

	slog.InfoContext(ctx, "webhook resumed", "webhook_id", m.webhookID)
	res.Notified = m.notify(ctx, resumedText)
	return res
}

func (m *Monitor) notify(ctx context.Context, text string) bool {
	if _, err := m.notifier.PostMessage(ctx, []slack.Block{slack.Markdown(text)}); err != nil {
		slog.ErrorContext(ctx, "monitor notification failed", "error", err)
		return false
	}
	return true
}
