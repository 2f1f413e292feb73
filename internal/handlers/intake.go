package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/PratikDhanave/offhours-digest/internal/logger"
	"github.com/PratikDhanave/offhours-digest/internal/models"
)

type OffHoursClassifier interface {
	IsOffHours(ctx context.Context, ts *time.Time) bool
}

type Enqueuer interface {
	Enqueue(ctx context.Context, ev models.InboundEvent) (string, error)
}

type DebugLog interface {
	Log(ctx context.Context, label string, v any)
}

// Intake is the webhook boundary: it decides whether an event belongs in the
// digest and queues it. It never fails towards the caller.
type Intake struct {
	classifier OffHoursClassifier
	queue      Enqueuer
	debug      DebugLog
}

func NewIntake(classifier OffHoursClassifier, queue Enqueuer, debug DebugLog) *Intake {
	return &Intake{classifier: classifier, queue: queue, debug: debug}
}

// Result reports what Handle did. Err is informational only.
type Result struct {
	Queued       bool
	Skipped      bool
	Key          string
	Verification bool
	Err          error
}

func (in *Intake) Handle(ctx context.Context, body []byte) (res Result) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{Component: "digest.intake"})
	defer func() {
		if r := recover(); r != nil {
			res = Result{Err: fmt.Errorf("intake panic: %v", r)}
		}
		if res.Err != nil {
			slog.ErrorContext(ctx, "intake failed", "error", res.Err)
			if in.debug != nil {
				in.debug.Log(ctx, "intake_error", res.Err)
			}
		}
	}()

	ev := models.DecodeInboundEvent(body)

	if ev.VerificationToken != "" {
		slog.InfoContext(ctx, "webhook verification token received", "verification_token", ev.VerificationToken)
		if in.debug != nil {
			in.debug.Log(ctx, "verification_token", ev.VerificationToken)
		}
		return Result{Skipped: true, Verification: true}
	}

	if ev.Type != "" {
		ctx = logger.WithLogFields(ctx, logger.LogFields{EventType: logger.Ptr(ev.Type)})
	}

	if !in.classifier.IsOffHours(ctx, ev.ParsedTimestamp()) {
		slog.DebugContext(ctx, "working-hours event ignored")
		return Result{Skipped: true}
	}

	key, err := in.queue.Enqueue(ctx, ev)
	if err != nil {
		return Result{Err: err}
	}
	slog.DebugContext(ctx, "event queued", "queue_key", key)
	return Result{Queued: true, Key: key}
}
