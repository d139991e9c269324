package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appengine "github.com/flowline-ai/flowline/internal/application/engine"
	"github.com/flowline-ai/flowline/internal/infrastructure/logger"
	"github.com/flowline-ai/flowline/internal/infrastructure/storage/memory"
	"github.com/flowline-ai/flowline/pkg/builder"
	"github.com/flowline-ai/flowline/pkg/engine"
	"github.com/flowline-ai/flowline/pkg/executor/builtin"
	"github.com/flowline-ai/flowline/pkg/models"
)

var testLog = logger.New("scheduler-test")

func TestValidateExpression(t *testing.T) {
	t.Parallel()

	assert.NoError(t, ValidateExpression("* * * * *"))
	assert.NoError(t, ValidateExpression("0 9 * * 1-5"))
	assert.NoError(t, ValidateExpression("30 0 9 * * *")) // 6-field with seconds
	assert.NoError(t, ValidateExpression("@hourly"))

	assert.Error(t, ValidateExpression(""))
	assert.Error(t, ValidateExpression("not a cron"))
	assert.Error(t, ValidateExpression("* * * * * * *"))
}

func TestNextRun_EveryMinute(t *testing.T) {
	t.Parallel()

	base := time.Date(2026, 1, 1, 0, 0, 30, 0, time.UTC)
	next, err := NextRun("* * * * *", "UTC", base, testLog)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 1, 1, 0, 1, 0, 0, time.UTC), next)
}

func TestNextRun_TimezoneAware(t *testing.T) {
	t.Parallel()

	// 09:00 in New York during EST is 14:00 UTC.
	base := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)
	next, err := NextRun("0 9 * * *", "America/New_York", base, testLog)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 1, 15, 14, 0, 0, 0, time.UTC), next)
}

func TestNextRun_InvalidTimezoneFallsBackToUTC(t *testing.T) {
	t.Parallel()

	base := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)
	next, err := NextRun("0 9 * * *", "Mars/Olympus", base, testLog)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 1, 15, 9, 0, 0, 0, time.UTC), next)
}

func newTestScheduler(t *testing.T, now time.Time) (*Scheduler, *memory.ScheduleRepository, *memory.WorkflowRepository, *memory.ExecutionRepository) {
	t.Helper()

	schedules := memory.NewScheduleRepository()
	workflows := memory.NewWorkflowRepository()
	executions := memory.NewExecutionRepository()

	mock, err := builtin.NewMockManager()
	require.NoError(t, err)
	runner := engine.NewRunner(mock, mock, engine.NewMemoryCheckpointStore())
	manager := appengine.NewManager()

	s := New(schedules, workflows, executions, manager, runner,
		WithClock(func() time.Time { return now }),
		WithLogger(testLog),
	)
	return s, schedules, workflows, executions
}

func TestScheduler_FireRecordsRuns(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	fireTime := time.Date(2026, 1, 1, 0, 1, 0, 0, time.UTC)
	s, schedules, workflows, executions := newTestScheduler(t, fireTime)

	wf := builder.NewWorkflow("scheduled").
		WithID("wf-1").
		AddNode("T", models.NodeTypeTrigger, nil).
		MustBuild()
	require.NoError(t, workflows.Save(ctx, wf))

	// next_run_at 30 s in the past: inside the misfire grace window, so Start
	// fires immediately.
	missed := fireTime.Add(-30 * time.Second)
	// The expression's own next wall-clock fire (00:30 on Jan 1) is far away,
	// so the only fire in this test is the misfire catch-up.
	schedule := &models.Schedule{
		ID:         "sched-1",
		WorkflowID: "wf-1",
		Type:       models.ScheduleTypeCron,
		Expression: "30 0 1 1 *",
		Timezone:   "UTC",
		Input:      map[string]any{"source": "cron"},
		Enabled:    true,
		NextRunAt:  &missed,
	}
	require.NoError(t, schedules.Save(ctx, schedule))

	require.NoError(t, s.Start(ctx))
	defer s.Stop()

	// The dispatched run settles asynchronously.
	var recorded []*models.Execution
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		recorded, _ = executions.ListByWorkflow(ctx, "wf-1", 10)
		if len(recorded) > 0 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	require.Len(t, recorded, 1, "exactly one execution dispatched")

	execution := recorded[0]
	assert.Equal(t, models.TriggerCron, execution.TriggerType)
	assert.Equal(t, "sched-1", execution.TriggerID)
	assert.Equal(t, models.ExecutionStatusCompleted, execution.Status)

	// Bookkeeping: last run is the fire time, next run advances strictly.
	stored, err := schedules.GetByID(ctx, "sched-1")
	require.NoError(t, err)
	require.NotNil(t, stored.LastRunAt)
	assert.Equal(t, fireTime, *stored.LastRunAt)
	require.NotNil(t, stored.NextRunAt)
	assert.Equal(t, time.Date(2026, 1, 1, 0, 30, 0, 0, time.UTC), *stored.NextRunAt)
	assert.True(t, stored.NextRunAt.After(fireTime))
}

func TestScheduler_MisfirePastGraceIsDropped(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	s, schedules, workflows, executions := newTestScheduler(t, now)

	wf := builder.NewWorkflow("late").
		WithID("wf-2").
		AddNode("T", models.NodeTypeTrigger, nil).
		MustBuild()
	require.NoError(t, workflows.Save(ctx, wf))

	// Missed by an hour: far past the 60 s grace, dropped silently.
	missed := now.Add(-time.Hour)
	require.NoError(t, schedules.Save(ctx, &models.Schedule{
		ID:         "sched-2",
		WorkflowID: "wf-2",
		Type:       models.ScheduleTypeCron,
		Expression: "0 * * * *",
		Timezone:   "UTC",
		Enabled:    true,
		NextRunAt:  &missed,
	}))

	require.NoError(t, s.Start(ctx))
	defer s.Stop()

	time.Sleep(50 * time.Millisecond)
	recorded, _ := executions.ListByWorkflow(ctx, "wf-2", 10)
	assert.Empty(t, recorded)

	// next_run_at still advances so the invariant holds.
	stored, err := schedules.GetByID(ctx, "sched-2")
	require.NoError(t, err)
	require.NotNil(t, stored.NextRunAt)
	assert.True(t, stored.NextRunAt.After(now))
}

func TestScheduler_AddRejectsInvalidExpression(t *testing.T) {
	t.Parallel()

	s, _, _, _ := newTestScheduler(t, time.Now().UTC())
	err := s.Add(context.Background(), &models.Schedule{
		ID:         "bad",
		Expression: "every tuesday",
		Enabled:    true,
	})
	var vErr *models.ValidationError
	require.ErrorAs(t, err, &vErr)
}

func TestScheduler_DisabledScheduleNotRegistered(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s, schedules, workflows, executions := newTestScheduler(t, time.Now().UTC())

	wf := builder.NewWorkflow("off").
		WithID("wf-3").
		AddNode("T", models.NodeTypeTrigger, nil).
		MustBuild()
	require.NoError(t, workflows.Save(ctx, wf))
	require.NoError(t, schedules.Save(ctx, &models.Schedule{
		ID:         "sched-3",
		WorkflowID: "wf-3",
		Expression: "* * * * *",
		Timezone:   "UTC",
		Enabled:    false,
	}))

	require.NoError(t, s.Add(ctx, &models.Schedule{
		ID:         "sched-3",
		WorkflowID: "wf-3",
		Expression: "* * * * *",
		Timezone:   "UTC",
		Enabled:    false,
	}))

	recorded, _ := executions.ListByWorkflow(ctx, "wf-3", 10)
	assert.Empty(t, recorded)
}
