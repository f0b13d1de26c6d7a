package splitpay

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/robfig/cron/v3"
)

// DefaultSweepSchedule runs the overdue sweep at the top of every hour.
const DefaultSweepSchedule = "@hourly"

// Reminder is notified about each overdue milestone found by a sweep.
type Reminder interface {
	RemindOverdue(ctx context.Context, t *Transaction) error
}

// LogReminder logs overdue milestones. Used when no delivery channel is wired.
type LogReminder struct {
	Logger *slog.Logger
}

func (r LogReminder) RemindOverdue(ctx context.Context, t *Transaction) error {
	l := r.Logger
	if l == nil {
		l = slog.Default()
	}
	l.Warn("milestone payment overdue",
		"transaction_id", t.ID,
		"contract_id", t.ContractID,
		"milestone", t.MilestoneType,
		"amount", t.Amount,
		"due_date", t.DueDate)
	return nil
}

// OverdueSweeper periodically lists overdue milestones and hands them to a
// Reminder.
type OverdueSweeper struct {
	service  *Service
	reminder Reminder
	schedule string
	logger   *slog.Logger
	cron     *cron.Cron
	running  atomic.Bool
}

// NewOverdueSweeper creates a sweeper on the given cron schedule. An empty
// schedule means DefaultSweepSchedule.
func NewOverdueSweeper(service *Service, schedule string, logger *slog.Logger) *OverdueSweeper {
	if schedule == "" {
		schedule = DefaultSweepSchedule
	}
	return &OverdueSweeper{
		service:  service,
		reminder: LogReminder{Logger: logger},
		schedule: schedule,
		logger:   logger,
	}
}

// WithReminder replaces the default log reminder.
func (s *OverdueSweeper) WithReminder(r Reminder) *OverdueSweeper {
	s.reminder = r
	return s
}

// Running reports whether the sweeper is scheduled.
func (s *OverdueSweeper) Running() bool {
	return s.running.Load()
}

// Start schedules the sweep. It returns an error for an invalid schedule.
func (s *OverdueSweeper) Start(ctx context.Context) error {
	c := cron.New()
	if _, err := c.AddFunc(s.schedule, func() { s.safeSweep(ctx) }); err != nil {
		return fmt.Errorf("overdue sweep schedule %q: %w", s.schedule, err)
	}
	s.cron = c
	c.Start()
	s.running.Store(true)
	s.logger.Info("overdue sweeper started", "schedule", s.schedule)
	return nil
}

// Stop unschedules the sweep and waits for a running sweep to finish or ctx
// to expire.
func (s *OverdueSweeper) Stop(ctx context.Context) {
	if s.cron == nil {
		return
	}
	done := s.cron.Stop()
	s.running.Store(false)
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
}

func (s *OverdueSweeper) safeSweep(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("panic in overdue sweeper", "panic", fmt.Sprint(r))
		}
	}()
	s.Sweep(ctx)
}

// Sweep runs one pass and returns how many overdue milestones it found.
func (s *OverdueSweeper) Sweep(ctx context.Context) int {
	overdue, err := s.service.GetOverdueMilestones(ctx)
	if err != nil {
		s.logger.Warn("failed to list overdue milestones", "error", err)
		return 0
	}
	OverdueMilestones.Set(float64(len(overdue)))

	for _, t := range overdue {
		if err := s.reminder.RemindOverdue(ctx, t); err != nil {
			s.logger.Warn("overdue reminder failed",
				"transaction_id", t.ID, "error", err)
		}
	}
	if len(overdue) > 0 {
		s.logger.Info("overdue sweep complete", "overdue", len(overdue))
	}
	return len(overdue)
}
