// Package maintenance runs the periodic scheduling jobs: instance extension,
// slot materialization, the consistency audit and optional orphan repair.
package maintenance

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"slotengine/internal/service/scheduling"
)

// Tasks is the part of the scheduling service the jobs drive.
type Tasks interface {
	Extend(ctx context.Context) (int, error)
	MaterializeAll(ctx context.Context) (int, error)
	CheckConsistency(ctx context.Context) (scheduling.AuditReport, error)
	RepairOrphans(ctx context.Context) (scheduling.RepairReport, error)
}

// Config holds one cron spec per job; an empty spec disables the job.
type Config struct {
	ExtendSpec      string
	MaterializeSpec string
	AuditSpec       string
	RepairSpec      string
	Location        *time.Location
}

type Scheduler struct {
	cron   *cron.Cron
	tasks  Tasks
	logger *slog.Logger

	mu   sync.Mutex
	ctx  context.Context
	jobs map[string]func(context.Context) error
}

func New(tasks Tasks, cfg Config, logger *slog.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "maintenance")
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}

	s := &Scheduler{
		tasks:  tasks,
		logger: logger,
		ctx:    context.Background(),
		jobs:   make(map[string]func(context.Context) error),
	}
	cl := cronLogger{logger}
	s.cron = cron.New(
		cron.WithLocation(loc),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)

	for _, job := range []struct {
		name string
		spec string
		run  func(context.Context) error
	}{
		{"extend", cfg.ExtendSpec, s.extend},
		{"materialize", cfg.MaterializeSpec, s.materialize},
		{"audit", cfg.AuditSpec, s.audit},
		{"repair", cfg.RepairSpec, s.repair},
	} {
		if job.spec == "" {
			continue
		}
		name, run := job.name, job.run
		if _, err := s.cron.AddFunc(job.spec, func() { s.runJob(name, run) }); err != nil {
			return nil, fmt.Errorf("maintenance %s schedule %q: %w", name, job.spec, err)
		}
		s.jobs[name] = run
	}
	return s, nil
}

// Jobs lists the enabled job names.
func (s *Scheduler) Jobs() []string {
	out := make([]string, 0, len(s.jobs))
	for name := range s.jobs {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Run starts the schedule and blocks until ctx is done, then waits for running
// jobs to finish.
func (s *Scheduler) Run(ctx context.Context) error {
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()

	s.cron.Start()
	s.logger.Info("maintenance started", "jobs", s.Jobs())
	<-ctx.Done()
	<-s.cron.Stop().Done()
	s.logger.Info("maintenance stopped")
	return nil
}

func (s *Scheduler) runJob(name string, run func(context.Context) error) {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()
	if ctx.Err() != nil {
		return
	}

	started := time.Now()
	if err := run(ctx); err != nil {
		s.logger.Error("maintenance job failed", "job", name, "err", err, "duration", time.Since(started))
		return
	}
	s.logger.Debug("maintenance job done", "job", name, "duration", time.Since(started))
}

func (s *Scheduler) extend(ctx context.Context) error {
	n, err := s.tasks.Extend(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		s.logger.Info("instances extended", "generated", n)
	}
	return nil
}

func (s *Scheduler) materialize(ctx context.Context) error {
	n, err := s.tasks.MaterializeAll(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		s.logger.Info("slots materialized", "inserted", n)
	}
	return nil
}

func (s *Scheduler) audit(ctx context.Context) error {
	rep, err := s.tasks.CheckConsistency(ctx)
	if err != nil {
		return err
	}
	level := slog.LevelInfo
	if !rep.IsConsistent {
		level = slog.LevelWarn
	}
	s.logger.Log(ctx, level, "consistency audit",
		"consistent", rep.IsConsistent,
		"issues", len(rep.Issues),
		"raw", rep.Totals.RawAppointments,
		"unified", rep.Totals.UnifiedAppointments,
		"duplicates", rep.Totals.Duplicates,
	)
	for _, w := range rep.Issues {
		if w.Critical {
			s.logger.Warn("critical consistency issue", "type", w.Type, "appointment_id", w.AppointmentID, "message", w.Message)
		}
	}
	return nil
}

func (s *Scheduler) repair(ctx context.Context) error {
	rep, err := s.tasks.RepairOrphans(ctx)
	if err != nil {
		return err
	}
	s.logger.Info("orphan repair", "rules_deleted", rep.RulesDeleted, "appointments_normalized", rep.AppointmentsNormalized)
	return nil
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	l *slog.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.l.Debug("cron: "+msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.l.Error("cron: "+msg, append([]any{"err", err}, keysAndValues...)...)
}
