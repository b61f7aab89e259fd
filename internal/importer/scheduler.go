package importer

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	appLog "classgrid/internal/log"
)

// Scheduler runs named tasks on cron specs in the reference zone. A task
// still running when its next tick arrives is skipped.
type Scheduler struct {
	cron *cron.Cron
	ctx  context.Context
}

// NewScheduler builds a stopped Scheduler. Tasks receive ctx.
func NewScheduler(ctx context.Context, loc *time.Location) *Scheduler {
	logger := cronLogger{}
	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithLogger(logger),
			cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
		),
		ctx: ctx,
	}
}

// Add registers task under spec (standard 5-field or descriptors such as
// "@hourly").
func (s *Scheduler) Add(name, spec string, task func(context.Context) error) error {
	_, err := s.cron.AddFunc(spec, func() {
		if err := task(s.ctx); err != nil {
			appLog.Error("scheduled task failed", err, "task", name)
		}
	})
	if err != nil {
		return fmt.Errorf("importer: schedule %s %q: %w", name, spec, err)
	}
	appLog.Info("task scheduled", "task", name, "spec", spec)
	return nil
}

func (s *Scheduler) Start() { s.cron.Start() }

// Stop prevents new runs and waits for running tasks to return.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// ScheduleJob registers j on s.
func ScheduleJob(s *Scheduler, j *Job, spec string) error {
	return s.Add("import "+j.src.ID, spec, func(ctx context.Context) error {
		_, err := j.Run(ctx)
		return err
	})
}

type cronLogger struct{}

func (cronLogger) Info(msg string, kv ...interface{}) {
	appLog.Debug("cron: "+msg, kv...)
}

func (cronLogger) Error(err error, msg string, kv ...interface{}) {
	appLog.Error("cron: "+msg, err, kv...)
}
