package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/PratikDhanave/offhours-digest/internal/logger"
)

// TaskFunc is one unit of scheduled work.
type TaskFunc func(ctx context.Context) error

type job struct {
	name    string
	timeout time.Duration
	fn      TaskFunc
	next    func(now time.Time) time.Time
}

// Scheduler runs registered tasks on fixed intervals or at a daily hour,
// each run bounded by its own timeout.
type Scheduler struct {
	loc  *time.Location
	now  func() time.Time
	jobs []job

	stopCh chan struct{}
	wg     sync.WaitGroup
}

func New(loc *time.Location) *Scheduler {
	if loc == nil {
		loc = time.Local
	}
	return &Scheduler{loc: loc, now: time.Now, stopCh: make(chan struct{})}
}

// Every runs fn every interval, first run one interval after Start.
func (s *Scheduler) Every(name string, interval, timeout time.Duration, fn TaskFunc) {
	s.jobs = append(s.jobs, job{
		name:    name,
		timeout: timeout,
		fn:      fn,
		next:    func(now time.Time) time.Time { return now.Add(interval) },
	})
}

// DailyAt runs fn once a day at hour:00 in the scheduler's location.
func (s *Scheduler) DailyAt(name string, hour int, timeout time.Duration, fn TaskFunc) {
	s.jobs = append(s.jobs, job{
		name:    name,
		timeout: timeout,
		fn:      fn,
		next:    func(now time.Time) time.Time { return NextDaily(now, hour, s.loc) },
	})
}

// NextDaily returns the first hour:00 in loc strictly after now.
func NextDaily(now time.Time, hour int, loc *time.Location) time.Time {
	local := now.In(loc)
	next := time.Date(local.Year(), local.Month(), local.Day(), hour, 0, 0, 0, loc)
	if !next.After(local) {
		next = time.Date(local.Year(), local.Month(), local.Day()+1, hour, 0, 0, 0, loc)
	}
	return next
}

// Start launches one goroutine per job. Stop waits for them.
func (s *Scheduler) Start(ctx context.Context) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{Component: "digest.scheduler"})
	for _, j := range s.jobs {
		s.wg.Add(1)
		go s.loop(ctx, j)
	}
	slog.InfoContext(ctx, "scheduler started", "jobs", len(s.jobs), "location", s.loc.String())
}

func (s *Scheduler) Stop() {
	close(s.stopCh)
	s.wg.Wait()
}

func (s *Scheduler) loop(ctx context.Context, j job) {
	defer s.wg.Done()
	ctx = logger.WithLogFields(ctx, logger.LogFields{Task: logger.Ptr(j.name)})

	for {
		at := j.next(s.now())
		timer := time.NewTimer(time.Until(at))
		slog.DebugContext(ctx, "next run scheduled", "at", at)

		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-s.stopCh:
			timer.Stop()
			return
		case <-timer.C:
			_ = RunTask(ctx, j.name, j.timeout, j.fn)
		}
	}
}

// RunTask runs fn under a timeout, logging the outcome. Panics are
// recovered and returned as errors.
func RunTask(ctx context.Context, name string, timeout time.Duration, fn TaskFunc) (err error) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{Task: logger.Ptr(name)})
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task %s panicked: %v", name, r)
		}
		if err != nil {
			slog.ErrorContext(ctx, "task failed", "error", err, "duration_ms", time.Since(start).Milliseconds())
			return
		}
		slog.InfoContext(ctx, "task finished", "duration_ms", time.Since(start).Milliseconds())
	}()

	return fn(ctx)
}
