package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"
)

// Scheduler wraps gocron scheduler for managing periodic tasks.
type Scheduler struct {
	scheduler gocron.Scheduler
}

// NewScheduler creates a new scheduler instance.
func NewScheduler() (*Scheduler, error) {
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create gocron scheduler: %w", err)
	}

	return &Scheduler{
		scheduler: s,
	}, nil
}

// Start begins the scheduler.
func (s *Scheduler) Start(_ context.Context) {
	slog.Info("Starting scheduler")
	s.scheduler.Start()
}

// Stop gracefully shuts down the scheduler, waiting for running tasks.
func (s *Scheduler) Stop(_ context.Context) error {
	slog.Info("Stopping scheduler")
	return s.scheduler.Shutdown()
}

// ScheduleEvery runs task every interval. A run that is still in progress
// when the next one is due makes the next one wait.
// Returns the job ID for later management.
func (s *Scheduler) ScheduleEvery(name string, interval time.Duration, task func(), opts ...gocron.JobOption) (string, error) {
	if interval <= 0 {
		return "", fmt.Errorf("invalid interval %s for job %s", interval, name)
	}
	return s.schedule(name, gocron.DurationJob(interval), task, opts)
}

// ScheduleCron runs task on a five-field crontab schedule.
func (s *Scheduler) ScheduleCron(name, expr string, task func(), opts ...gocron.JobOption) (string, error) {
	return s.schedule(name, gocron.CronJob(expr, false), task, opts)
}

func (s *Scheduler) schedule(name string, def gocron.JobDefinition, task func(), extra []gocron.JobOption) (string, error) {
	opts := append([]gocron.JobOption{
		gocron.WithName(name),
		gocron.WithSingletonMode(gocron.LimitModeWait),
	}, extra...)
	job, err := s.scheduler.NewJob(def, gocron.NewTask(task), opts...)
	if err != nil {
		return "", fmt.Errorf("failed to create job %s: %w", name, err)
	}

	return job.ID().String(), nil
}
