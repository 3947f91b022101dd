// Package schedule runs the board's background sweeps on cron.
package schedule

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"taskboard/internal/config"
	"taskboard/internal/domain"
	"taskboard/internal/engine"
)

// ChangeRetention is how long change rows are kept before pruning.
const ChangeRetention = 30 * 24 * time.Hour

type Scheduler struct {
	cron *cron.Cron
}

func New(loc *time.Location) *Scheduler {
	if loc == nil {
		loc = time.UTC
	}
	return &Scheduler{cron: cron.New(cron.WithLocation(loc), cron.WithSeconds())}
}

// ScheduleDaily registers a job at an HH:MM wall-clock time.
func (s *Scheduler) ScheduleDaily(clock string, job func()) (cron.EntryID, error) {
	spec, err := dailySpec(clock)
	if err != nil {
		return 0, err
	}
	return s.cron.AddFunc(spec, job)
}

func (s *Scheduler) ScheduleInterval(interval time.Duration, job func()) (cron.EntryID, error) {
	if interval <= 0 {
		return 0, fmt.Errorf("interval must be positive")
	}
	seconds := int(interval.Seconds())
	if seconds <= 0 {
		seconds = 1
	}
	return s.cron.AddFunc(fmt.Sprintf("@every %ds", seconds), job)
}

func (s *Scheduler) Entries() int {
	return len(s.cron.Entries())
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop waits for running jobs to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

func dailySpec(clock string) (string, error) {
	hour, minute, err := config.ParseClock(clock)
	if err != nil {
		return "", err
	}
	// second minute hour dom month dow
	return fmt.Sprintf("0 %d %d * * *", minute, hour), nil
}

// Sweeper holds the board jobs.
type Sweeper struct {
	Engine engine.Engine
	Logger *log.Logger
}

func (w Sweeper) logger() *log.Logger {
	if w.Logger != nil {
		return w.Logger
	}
	return log.Default()
}

// MaterializeAhead materializes today through the configured lookahead.
func (w Sweeper) MaterializeAhead(ctx context.Context) (int, error) {
	days := 0
	if w.Engine.Config != nil {
		days = w.Engine.Config.Schedule.LookaheadDays
	}
	results, err := w.Engine.MaterializeRange(engine.WithActor(ctx, "scheduler"), w.Engine.Today(), days)
	created := 0
	for _, r := range results {
		created += len(r.Created)
	}
	return created, err
}

// PruneChanges drops change rows older than ChangeRetention.
func (w Sweeper) PruneChanges(ctx context.Context, now time.Time) (int64, error) {
	return w.Engine.Repo.PruneEventsBefore(ctx, domain.Timestamp(now.Add(-ChangeRetention)))
}

// Register adds the daily sweeps to s.
func (w Sweeper) Register(ctx context.Context, s *Scheduler) error {
	at := "00:05"
	if w.Engine.Config != nil && w.Engine.Config.Schedule.MaterializeAt != "" {
		at = w.Engine.Config.Schedule.MaterializeAt
	}
	_, err := s.ScheduleDaily(at, func() {
		n, err := w.MaterializeAhead(ctx)
		if err != nil {
			w.logger().Printf("materialize: sweep failed: %v", err)
			return
		}
		w.logger().Printf("materialize: %d instances created", n)
		if _, err := w.PruneChanges(ctx, time.Now()); err != nil {
			w.logger().Printf("materialize: prune changes: %v", err)
		}
	})
	return err
}
