// Package scheduler runs the filter's periodic maintenance jobs on cron
// schedules: the deep timeline rescan and the nightly history prune.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// jobTimeout bounds a single job execution.
const jobTimeout = 30 * time.Minute

// Job represents a scheduled task
type Job func(ctx context.Context) error

// Scheduler manages periodic tasks
type Scheduler struct {
	cron *cron.Cron
	jobs map[string]cron.EntryID
	log  *slog.Logger
}

// New creates a new scheduler running in local time.
func New(log *slog.Logger) *Scheduler {
	return &Scheduler{
		cron: cron.New(),
		jobs: make(map[string]cron.EntryID),
		log:  log,
	}
}

// AddJob adds a job with a cron schedule
// schedule format: "0 7 * * *" (at 7:00 AM daily)
func (s *Scheduler) AddJob(name, schedule string, job Job) error {
	entryID, err := s.cron.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
		defer cancel()

		start := time.Now()
		if err := job(ctx); err != nil {
			s.log.Warn("scheduled job failed", "job", name, "error", err)
		} else {
			s.log.Debug("scheduled job completed", "job", name, "took", time.Since(start))
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule job %s: %w", name, err)
	}

	s.jobs[name] = entryID
	s.log.Info("scheduled job", "job", name, "schedule", schedule)
	return nil
}

// AddEvery adds a job that runs on a fixed minute interval.
func (s *Scheduler) AddEvery(name string, interval time.Duration, job Job) error {
	minutes := int(interval.Minutes())
	if minutes < 1 {
		minutes = 1
	}
	return s.AddJob(name, fmt.Sprintf("@every %dm", minutes), job)
}

// AddDaily adds a job at a specific local time, format "03:30".
func (s *Scheduler) AddDaily(name, timeStr string, job Job) error {
	t, err := time.Parse("15:04", timeStr)
	if err != nil {
		return fmt.Errorf("invalid time format %s: %w", timeStr, err)
	}
	return s.AddJob(name, fmt.Sprintf("%d %d * * *", t.Minute(), t.Hour()), job)
}

// Start begins running scheduled jobs
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts the scheduler and returns a context that is done once
// running jobs finish.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}
