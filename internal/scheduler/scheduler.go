// Package scheduler runs background jobs on cron schedules.
package scheduler

import (
	"log/slog"

	"github.com/robfig/cron/v3"
)

type Job interface {
	Run() error
	Name() string
}

type Scheduler struct {
	cron   *cron.Cron
	logger *slog.Logger
}

// New accepts six-field specs (with seconds) and descriptors like "@hourly".
func New(logger *slog.Logger) *Scheduler {
	return &Scheduler{
		cron:   cron.New(cron.WithSeconds()),
		logger: logger.With("component", "scheduler"),
	}
}

func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("scheduler started")
}

// Stop waits for running jobs to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) AddJob(schedule string, job Job) error {
	_, err := s.cron.AddFunc(schedule, func() { s.run(job) })
	if err != nil {
		return err
	}
	s.logger.Info("job registered", "job", job.Name(), "schedule", schedule)
	return nil
}

// RunNow executes job outside its schedule.
func (s *Scheduler) RunNow(job Job) error {
	s.logger.Info("running job immediately", "job", job.Name())
	return job.Run()
}

func (s *Scheduler) run(job Job) {
	s.logger.Debug("running job", "job", job.Name())
	if err := job.Run(); err != nil {
		s.logger.Error("job failed", "job", job.Name(), "err", err)
		return
	}
	s.logger.Debug("job completed", "job", job.Name())
}
