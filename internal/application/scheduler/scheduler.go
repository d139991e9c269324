// Package scheduler fires workflows on cron schedules. Each schedule carries
// its own IANA timezone; expressions may use the standard 5-field form or a
// 6-field form with leading seconds.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	appengine "github.com/flowline-ai/flowline/internal/application/engine"
	"github.com/flowline-ai/flowline/internal/domain/repository"
	"github.com/flowline-ai/flowline/internal/infrastructure/logger"
	"github.com/flowline-ai/flowline/pkg/engine"
	"github.com/flowline-ai/flowline/pkg/models"
)

// MisfireGrace is the window after a missed fire during which the schedule
// still runs immediately on startup. Older misfires are silently dropped.
const MisfireGrace = time.Minute

// cronParser accepts 5-field expressions, an optional leading seconds field,
// and descriptors like @hourly.
var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// ValidateExpression checks a cron expression before acceptance.
func ValidateExpression(expression string) error {
	if _, err := cronParser.Parse(expression); err != nil {
		return &models.ValidationError{Field: "expression", Message: fmt.Sprintf("invalid cron expression %q: %v", expression, err)}
	}
	return nil
}

// loadLocation resolves a schedule timezone, falling back to UTC with a
// warning when the name is unknown or empty.
func loadLocation(tz string, log *logger.Logger) *time.Location {
	if tz == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		log.Warn("invalid timezone, using UTC", "timezone", tz, "error", err)
		return time.UTC
	}
	return loc
}

// NextRun computes the next fire time after base, evaluated in the
// schedule's timezone and returned in UTC.
func NextRun(expression, timezone string, base time.Time, log *logger.Logger) (time.Time, error) {
	sched, err := cronParser.Parse(expression)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid cron expression %q: %w", expression, err)
	}
	loc := loadLocation(timezone, log)
	return sched.Next(base.In(loc)).UTC(), nil
}

// Scheduler keeps one cron entry per enabled schedule and dispatches fires
// through the background execution manager.
type Scheduler struct {
	schedules  repository.ScheduleRepository
	workflows  repository.WorkflowRepository
	executions repository.ExecutionRepository
	manager    *appengine.Manager
	runner     *engine.Runner

	cron    *cron.Cron
	mu      sync.Mutex
	entries map[string]cron.EntryID
	running bool

	log *logger.Logger
	now func() time.Time
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithClock injects a clock for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// WithLogger sets the scheduler logger.
func WithLogger(l *logger.Logger) Option {
	return func(s *Scheduler) { s.log = l }
}

// New creates a scheduler.
func New(
	schedules repository.ScheduleRepository,
	workflows repository.WorkflowRepository,
	executions repository.ExecutionRepository,
	manager *appengine.Manager,
	runner *engine.Runner,
	opts ...Option,
) *Scheduler {
	s := &Scheduler{
		schedules:  schedules,
		workflows:  workflows,
		executions: executions,
		manager:    manager,
		runner:     runner,
		cron:       cron.New(cron.WithParser(cronParser), cron.WithLocation(time.UTC)),
		entries:    make(map[string]cron.EntryID),
		log:        logger.New("scheduler"),
		now:        func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start loads all enabled schedules, registers a cron entry per schedule,
// fires schedules misfired within the grace window, and starts the timer
// wheel.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		s.log.Warn("scheduler already running")
		return nil
	}
	s.running = true
	s.mu.Unlock()

	enabled, err := s.schedules.ListEnabled(ctx)
	if err != nil {
		return fmt.Errorf("load enabled schedules: %w", err)
	}

	for _, schedule := range enabled {
		if err := s.register(ctx, schedule); err != nil {
			s.log.Error("failed to load schedule", "schedule_id", schedule.ID, "error", err)
			continue
		}
		s.handleMisfire(ctx, schedule)
	}

	s.cron.Start()
	s.log.Info("scheduler started", "schedules", len(enabled))
	return nil
}

// Stop halts the timer wheel and waits for in-flight fire callbacks.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	<-s.cron.Stop().Done()
	s.log.Info("scheduler stopped")
}

// Add validates and registers a new schedule; disabled schedules are
// accepted but not registered.
func (s *Scheduler) Add(ctx context.Context, schedule *models.Schedule) error {
	if err := ValidateExpression(schedule.Expression); err != nil {
		return err
	}
	if !schedule.Enabled {
		return nil
	}
	if err := s.register(ctx, schedule); err != nil {
		return err
	}
	return s.advanceNextRun(ctx, schedule)
}

// Update re-registers a schedule after its definition changed.
func (s *Scheduler) Update(ctx context.Context, schedule *models.Schedule) error {
	s.Remove(schedule.ID)
	if !schedule.Enabled {
		return nil
	}
	return s.Add(ctx, schedule)
}

// Remove drops a schedule's cron entry. Unknown IDs are a no-op.
func (s *Scheduler) Remove(scheduleID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entryID, ok := s.entries[scheduleID]; ok {
		s.cron.Remove(entryID)
		delete(s.entries, scheduleID)
	}
}

// Enable registers a previously disabled schedule.
func (s *Scheduler) Enable(ctx context.Context, schedule *models.Schedule) error {
	if err := s.register(ctx, schedule); err != nil {
		return err
	}
	return s.advanceNextRun(ctx, schedule)
}

// Disable drops a schedule's cron entry.
func (s *Scheduler) Disable(scheduleID string) {
	s.Remove(scheduleID)
}

// register adds the cron entry for a schedule in its own timezone.
func (s *Scheduler) register(ctx context.Context, schedule *models.Schedule) error {
	spec := schedule.Expression
	loc := loadLocation(schedule.Timezone, s.log)
	if loc != time.UTC {
		spec = "CRON_TZ=" + schedule.Timezone + " " + schedule.Expression
	}

	scheduleID := schedule.ID
	entryID, err := s.cron.AddFunc(spec, func() {
		s.fire(context.WithoutCancel(ctx), scheduleID)
	})
	if err != nil {
		return fmt.Errorf("register schedule %s: %w", schedule.ID, err)
	}

	s.mu.Lock()
	if old, ok := s.entries[schedule.ID]; ok {
		s.cron.Remove(old)
	}
	s.entries[schedule.ID] = entryID
	s.mu.Unlock()
	return nil
}

// handleMisfire fires a schedule immediately when its stored next_run_at was
// missed within the grace window while the scheduler was offline.
func (s *Scheduler) handleMisfire(ctx context.Context, schedule *models.Schedule) {
	if schedule.NextRunAt == nil {
		return
	}
	missedBy := s.now().Sub(*schedule.NextRunAt)
	if missedBy <= 0 {
		return
	}
	if missedBy <= MisfireGrace {
		s.log.Info("firing misfired schedule within grace", "schedule_id", schedule.ID, "missed_by", missedBy)
		s.fire(ctx, schedule.ID)
		return
	}
	// Past the grace window the firing is dropped; only bookkeeping advances.
	if err := s.advanceNextRun(ctx, schedule); err != nil {
		s.log.Error("failed to advance misfired schedule", "schedule_id", schedule.ID, "error", err)
	}
}

// fire executes one scheduled trigger: reload the schedule and workflow,
// dispatch through the execution manager, and write back last/next run.
func (s *Scheduler) fire(ctx context.Context, scheduleID string) {
	schedule, err := s.schedules.GetByID(ctx, scheduleID)
	if err != nil || schedule == nil || !schedule.Enabled {
		s.log.Warn("schedule not found or disabled, skipping fire", "schedule_id", scheduleID)
		return
	}

	workflow, err := s.workflows.GetByID(ctx, schedule.WorkflowID)
	if err != nil || workflow == nil {
		s.log.Error("workflow not found for schedule", "schedule_id", scheduleID, "workflow_id", schedule.WorkflowID)
		return
	}

	fireTime := s.now()
	if err := s.schedules.UpdateLastRun(ctx, scheduleID, fireTime); err != nil {
		s.log.Error("failed to record last run", "schedule_id", scheduleID, "error", err)
	}

	ownerID := ""
	if workflow.OwnerID != nil {
		ownerID = *workflow.OwnerID
	}
	opts := &engine.Options{
		ExecutionID: uuid.NewString(),
		Mode:        models.ModeFull,
		TriggerType: models.TriggerCron,
		TriggerID:   scheduleID,
		UserID:      ownerID,
	}

	var input any = schedule.Input
	s.manager.Dispatch(ctx, func(taskCtx context.Context) error {
		result, err := s.runner.Run(taskCtx, workflow, input, opts)
		if result != nil && s.executions != nil {
			if saveErr := s.executions.Save(taskCtx, result); saveErr != nil {
				s.log.Error("failed to persist scheduled execution", "execution_id", result.ID, "error", saveErr)
			}
		}
		if err != nil {
			return err
		}
		if result.Status != models.ExecutionStatusCompleted {
			return fmt.Errorf("scheduled execution %s ended %s: %s", result.ID, result.Status, result.Error)
		}
		return nil
	}, opts.ExecutionID)

	if err := s.advanceNextRun(ctx, schedule); err != nil {
		s.log.Error("failed to advance next run", "schedule_id", scheduleID, "error", err)
	}
	s.log.Info("schedule fired", "schedule_id", scheduleID, "workflow_id", schedule.WorkflowID, "at", fireTime)
}

// advanceNextRun recomputes and persists the schedule's next fire time,
// keeping the enabled-schedule invariant that next_run_at is in the future.
func (s *Scheduler) advanceNextRun(ctx context.Context, schedule *models.Schedule) error {
	next, err := NextRun(schedule.Expression, schedule.Timezone, s.now(), s.log)
	if err != nil {
		return err
	}
	return s.schedules.UpdateNextRun(ctx, schedule.ID, next)
}
