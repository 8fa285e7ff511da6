// Package scheduler triggers pipeline runs on a cron schedule for the start
// command. A run that is still going when the next tick fires is skipped.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// RunFunc is one pass of the pipeline.
type RunFunc func(ctx context.Context) error

// Scheduler fires RunFunc on a cron spec.
type Scheduler struct {
	spec       string
	schedule   cron.Schedule
	runOnStart bool
	run        RunFunc
	logger     *slog.Logger
}

// New parses spec (standard five-field cron or a descriptor such as
// "@every 12h") and returns a Scheduler.
func New(spec string, runOnStart bool, run RunFunc, logger *slog.Logger) (*Scheduler, error) {
	schedule, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, fmt.Errorf("parsing schedule %q: %w", spec, err)
	}
	return &Scheduler{
		spec:       spec,
		schedule:   schedule,
		runOnStart: runOnStart,
		run:        run,
		logger:     logger,
	}, nil
}

// Run blocks until ctx is cancelled, then waits for an in-flight run to
// finish. It returns nil on graceful shutdown.
func (s *Scheduler) Run(ctx context.Context) error {
	log := cronLogger{s.logger}
	c := cron.New(cron.WithLogger(log))

	job := cron.NewChain(cron.Recover(log), cron.SkipIfStillRunning(log)).
		Then(cron.FuncJob(func() { s.runOnce(ctx) }))
	c.Schedule(s.schedule, job)

	c.Start()
	s.logger.Info("starting scheduler", "schedule", s.spec, "next", s.schedule.Next(time.Now()))

	// cron only waits for jobs it started itself
	var first sync.WaitGroup
	if s.runOnStart {
		first.Add(1)
		go func() {
			defer first.Done()
			job.Run()
		}()
	}

	<-ctx.Done()
	s.logger.Info("shutting down scheduler")
	<-c.Stop().Done()
	first.Wait()
	return nil
}

func (s *Scheduler) runOnce(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if err := s.run(ctx); err != nil {
		s.logger.Error("scheduled run failed", "error", err)
	}
	s.logger.Info("next run", "at", s.schedule.Next(time.Now()))
}

// cronLogger adapts slog to cron.Logger. Cron's own chatter goes to debug.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
