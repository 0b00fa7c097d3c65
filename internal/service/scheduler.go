package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	cron "github.com/robfig/cron/v3"

	"github.com/rongwang/propvera-server/internal/utils"
)

// Scheduler triggers jobs on cron expressions in the billing time zone
type Scheduler struct {
	cron *cron.Cron
}

// NewScheduler creates a scheduler; each job is registered with AddJob
func NewScheduler(loc *time.Location) *Scheduler {
	return &Scheduler{
		cron: cron.New(cron.WithLocation(loc)),
	}
}

// AddJob registers job to run on the standard 5-field cron spec
func (s *Scheduler) AddJob(spec string, job Job) error {
	if _, err := s.cron.AddFunc(spec, runScheduled(job)); err != nil {
		return fmt.Errorf("error scheduling %s with %q: %w", job.Name(), spec, err)
	}
	utils.Logger.Infof("Scheduled %s: %s", job.Name(), spec)
	return nil
}

// Start runs the scheduler in its own goroutine
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop prevents new runs and returns a context that is done once running jobs finish
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

func runScheduled(job Job) func() {
	return func() {
		report, err := job.Run(context.Background())
		switch {
		case errors.Is(err, ErrJobAlreadyRunning):
			utils.Logger.Warnf("Scheduled %s skipped: previous run still holds the lock", job.Name())
		case err != nil && report == nil:
			utils.Logger.WithError(err).Errorf("Scheduled %s failed", job.Name())
		case err != nil:
			utils.Logger.WithError(err).Errorf("Scheduled %s finished with %d failed builders", job.Name(), len(report.Failures))
		}
	}
}
