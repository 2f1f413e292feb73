package queue

import (
	"context"
	"log/slog"
	"time"

	"github.com/PratikDhanave/offhours-digest/internal/logger"
)

const DefaultDrainDelay = time.Minute

// DrainScheduler runs a drain function some delay after it is asked to,
// folding bursts of requests into one run. At most one drain is pending at
// a time; a Submit during a running drain schedules exactly one follow-up.
type DrainScheduler struct {
	delay time.Duration
	drain func(ctx context.Context)

	submitCh  chan struct{}
	stopCh    chan struct{}
	stoppedCh chan struct{}
}

func NewDrainScheduler(delay time.Duration, drain func(ctx context.Context)) *DrainScheduler {
	if delay <= 0 {
		delay = DefaultDrainDelay
	}
	return &DrainScheduler{
		delay:     delay,
		drain:     drain,
		submitCh:  make(chan struct{}, 1),
		stopCh:    make(chan struct{}),
		stoppedCh: make(chan struct{}),
	}
}

// Submit requests a drain. It never blocks.
func (s *DrainScheduler) Submit() {
	select {
	case s.submitCh <- struct{}{}:
	default:
	}
}

// Run owns the timer. Blocks until ctx is done or Stop is called; a drain
// still pending at Stop is run before returning.
func (s *DrainScheduler) Run(ctx context.Context) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{Component: "digest.queue.scheduler"})
	defer close(s.stoppedCh)

	timer := time.NewTimer(s.delay)
	timer.Stop()
	defer timer.Stop()
	pending := false

	slog.InfoContext(ctx, "drain scheduler started", "delay", s.delay)

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			if pending {
				slog.InfoContext(ctx, "running pending drain before stop")
				s.drain(ctx)
			}
			slog.InfoContext(ctx, "drain scheduler stopped")
			return
		case <-s.submitCh:
			if !pending {
				pending = true
				timer.Reset(s.delay)
			}
		case <-timer.C:
			pending = false
			s.drain(ctx)
		}
	}
}

// Stop signals Run to return and waits for it.
func (s *DrainScheduler) Stop() {
	close(s.stopCh)
	<-s.stoppedCh
}
