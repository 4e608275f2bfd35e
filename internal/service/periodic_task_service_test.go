package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"family-tasks/internal/model"
)

func TestCreateRuleValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	start := date(2024, time.January, 1)

	_, err := env.periodicSvc.CreateRule(ctx, PeriodicTaskInput{
		Title: "", Schedule: model.DailySchedule{}, TaskDuration: 1, StartDate: start,
	})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = env.periodicSvc.CreateRule(ctx, PeriodicTaskInput{
		Title: "no duration", Schedule: model.DailySchedule{}, TaskDuration: 0, StartDate: start,
	})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = env.periodicSvc.CreateRule(ctx, PeriodicTaskInput{
		Title: "empty weekly", Schedule: model.WeeklySchedule{}, TaskDuration: 1, StartDate: start,
	})
	assert.ErrorIs(t, err, ErrValidation)

	end := date(2023, time.December, 31)
	_, err = env.periodicSvc.CreateRule(ctx, PeriodicTaskInput{
		Title: "inverted window", Schedule: model.DailySchedule{}, TaskDuration: 1,
		StartDate: start, EndDate: &end,
	})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestGenerateForDateIdempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	day := date(2024, time.January, 1)

	rule, err := env.periodicSvc.CreateRule(ctx, PeriodicTaskInput{
		Title:        "take out trash",
		Schedule:     model.DailySchedule{},
		TaskDuration: 1,
		StartDate:    day,
		ExecutorIDs:  []string{"alice"},
		Description:  "bins to the curb",
	})
	require.NoError(t, err)

	generated, err := env.periodicSvc.GenerateForDate(ctx, rule.ID, day)
	require.NoError(t, err)
	assert.True(t, generated)

	generated, err = env.periodicSvc.GenerateForDate(ctx, rule.ID, day)
	require.NoError(t, err)
	assert.False(t, generated, "second call for the same date must not fire")

	got, err := env.periodicSvc.GetRule(ctx, rule.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.CurrentRepeatCount)
	require.NotNil(t, got.LastGeneratedDate)
	assert.True(t, got.LastGeneratedDate.Equal(day))

	tasks, err := env.periodicSvc.GeneratedTasks(ctx, rule.ID)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, "take out trash", tasks[0].Title)
	assert.Equal(t, rule.ID, tasks[0].PeriodicTaskID)
	assert.Equal(t, []string{"alice"}, tasks[0].ExecutorIDs)
	assert.Equal(t, "bins to the curb", tasks[0].Description)
}

func TestGeneratedInstanceSpan(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	day := date(2024, time.January, 30)

	rule, err := env.periodicSvc.CreateRule(ctx, PeriodicTaskInput{
		Title:        "deep clean",
		Schedule:     model.DailySchedule{},
		TaskDuration: 4,
		StartDate:    day,
	})
	require.NoError(t, err)

	generated, err := env.periodicSvc.GenerateForDate(ctx, rule.ID, day)
	require.NoError(t, err)
	require.True(t, generated)

	tasks, err := env.periodicSvc.GeneratedTasks(ctx, rule.ID)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.True(t, tasks[0].StartDate.Equal(day))
	assert.True(t, tasks[0].EndDate.Equal(date(2024, time.February, 2)), "span is duration days inclusive")

	// The instance crosses a month boundary, so it must be visible from both.
	febTasks, err := env.taskSvc.TasksByDate(ctx, date(2024, time.February, 1))
	require.NoError(t, err)
	assert.Len(t, febTasks, 1)
}

func TestWeeklyRuleBoundary(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	monday := date(2024, time.January, 1)

	rule, err := env.periodicSvc.CreateRule(ctx, PeriodicTaskInput{
		Title:        "piano practice",
		Schedule:     model.WeeklySchedule{WeekDays: []int{0, 2}}, // Mon, Wed
		TaskDuration: 1,
		StartDate:    monday,
	})
	require.NoError(t, err)

	generated, err := env.periodicSvc.GenerateForDate(ctx, rule.ID, monday)
	require.NoError(t, err)
	assert.True(t, generated, "fires on Monday")

	generated, err = env.periodicSvc.GenerateForDate(ctx, rule.ID, monday.AddDays(1))
	require.NoError(t, err)
	assert.False(t, generated, "does not fire on Tuesday")

	generated, err = env.periodicSvc.GenerateForDate(ctx, rule.ID, monday.AddDays(2))
	require.NoError(t, err)
	assert.True(t, generated, "fires on Wednesday")
}

func TestMonthlyRule(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.periodicSvc.CreateRule(ctx, PeriodicTaskInput{
		Title:        "pay rent",
		Schedule:     model.MonthlySchedule{MonthDays: []int{1, 15}},
		TaskDuration: 1,
		StartDate:    date(2024, time.January, 1),
	})
	require.NoError(t, err)

	count, err := env.periodicSvc.GenerateForDateRange(ctx, date(2024, time.January, 1), date(2024, time.February, 29))
	require.NoError(t, err)
	assert.Equal(t, 4, count, "1st and 15th of two months")
}

func TestBoundedRepeatExhaustion(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	start := date(2024, time.January, 1)

	rule, err := env.periodicSvc.CreateRule(ctx, PeriodicTaskInput{
		Title:          "twice only",
		Schedule:       model.DailySchedule{},
		TaskDuration:   1,
		MaxRepeatCount: 2,
		StartDate:      start,
	})
	require.NoError(t, err)

	count, err := env.periodicSvc.GenerateForDateRange(ctx, start, start.AddDays(9))
	require.NoError(t, err)
	assert.Equal(t, 2, count, "stops after maxRepeatCount fires")

	got, err := env.periodicSvc.GetRule(ctx, rule.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.CurrentRepeatCount)
	assert.True(t, got.Exhausted())
	assert.True(t, got.IsActive, "exhaustion is not deactivation")
}

func TestRuleWindowBounds(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	start := date(2024, time.March, 10)
	end := date(2024, time.March, 12)

	rule, err := env.periodicSvc.CreateRule(ctx, PeriodicTaskInput{
		Title:        "short window",
		Schedule:     model.DailySchedule{},
		TaskDuration: 1,
		StartDate:    start,
		EndDate:      &end,
	})
	require.NoError(t, err)

	generated, err := env.periodicSvc.GenerateForDate(ctx, rule.ID, start.AddDays(-1))
	require.NoError(t, err)
	assert.False(t, generated, "before the window")

	count, err := env.periodicSvc.GenerateForDateRange(ctx, date(2024, time.March, 1), date(2024, time.March, 31))
	require.NoError(t, err)
	assert.Equal(t, 3, count, "only the three days inside the window")
}

func TestInactiveRuleNeverFires(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	day := date(2024, time.January, 1)

	rule, err := env.periodicSvc.CreateRule(ctx, PeriodicTaskInput{
		Title: "paused", Schedule: model.DailySchedule{}, TaskDuration: 1, StartDate: day,
	})
	require.NoError(t, err)

	_, err = env.periodicSvc.SetActive(ctx, rule.ID, false)
	require.NoError(t, err)

	generated, err := env.periodicSvc.GenerateForDate(ctx, rule.ID, day)
	require.NoError(t, err)
	assert.False(t, generated)

	// Reactivating resumes generation.
	_, err = env.periodicSvc.SetActive(ctx, rule.ID, true)
	require.NoError(t, err)
	generated, err = env.periodicSvc.GenerateForDate(ctx, rule.ID, day)
	require.NoError(t, err)
	assert.True(t, generated)
}

func TestGenerateForMissingRule(t *testing.T) {
	env := newTestEnv(t)
	generated, err := env.periodicSvc.GenerateForDate(context.Background(), "missing", date(2024, time.January, 1))
	require.NoError(t, err)
	assert.False(t, generated)
}

func TestGenerateAllForDate(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	monday := date(2024, time.January, 1)

	_, err := env.periodicSvc.CreateRule(ctx, PeriodicTaskInput{
		Title: "daily one", Schedule: model.DailySchedule{}, TaskDuration: 1, StartDate: monday,
	})
	require.NoError(t, err)
	_, err = env.periodicSvc.CreateRule(ctx, PeriodicTaskInput{
		Title: "tuesdays", Schedule: model.WeeklySchedule{WeekDays: []int{1}}, TaskDuration: 1, StartDate: monday,
	})
	require.NoError(t, err)

	count, err := env.periodicSvc.GenerateAllForDate(ctx, monday)
	require.NoError(t, err)
	assert.Equal(t, 1, count, "only the daily rule matches Monday")

	count, err = env.periodicSvc.GenerateAllForDate(ctx, monday.AddDays(1))
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestGenerateForDateRangeValidation(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.periodicSvc.GenerateForDateRange(context.Background(),
		date(2024, time.January, 5), date(2024, time.January, 1))
	assert.ErrorIs(t, err, ErrValidation)
}

func TestBackfillOverlappingRangeOnlyFillsGaps(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	start := date(2024, time.January, 1)

	rule, err := env.periodicSvc.CreateRule(ctx, PeriodicTaskInput{
		Title: "every day", Schedule: model.DailySchedule{}, TaskDuration: 1, StartDate: start,
	})
	require.NoError(t, err)

	count, err := env.periodicSvc.GenerateForDateRange(ctx, start, start.AddDays(2))
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	// Re-running an overlapping range only creates the missing days.
	count, err = env.periodicSvc.GenerateForDateRange(ctx, start, start.AddDays(4))
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	tasks, err := env.periodicSvc.GeneratedTasks(ctx, rule.ID)
	require.NoError(t, err)
	assert.Len(t, tasks, 5)
}

func TestGenerateForDateConcurrent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	day := date(2024, time.January, 1)

	rule, err := env.periodicSvc.CreateRule(ctx, PeriodicTaskInput{
		Title: "raced", Schedule: model.DailySchedule{}, TaskDuration: 1, StartDate: day,
	})
	require.NoError(t, err)

	const callers = 8
	results := make(chan bool, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			generated, err := env.periodicSvc.GenerateForDate(ctx, rule.ID, day)
			assert.NoError(t, err)
			results <- generated
		}()
	}
	wg.Wait()
	close(results)

	fired := 0
	for generated := range results {
		if generated {
			fired++
		}
	}
	assert.Equal(t, 1, fired, "exactly one caller wins the date")

	got, err := env.periodicSvc.GetRule(ctx, rule.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.CurrentRepeatCount)
}

func TestRuleStats(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	start := date(2024, time.January, 1)

	rule, err := env.periodicSvc.CreateRule(ctx, PeriodicTaskInput{
		Title: "counted", Schedule: model.DailySchedule{}, TaskDuration: 1, StartDate: start,
	})
	require.NoError(t, err)

	_, err = env.periodicSvc.GenerateForDateRange(ctx, start, start.AddDays(2))
	require.NoError(t, err)

	tasks, err := env.periodicSvc.GeneratedTasks(ctx, rule.ID)
	require.NoError(t, err)
	require.Len(t, tasks, 3)

	_, err = env.taskSvc.SetStatus(ctx, tasks[0].ID, model.StatusCompleted)
	require.NoError(t, err)

	stats, err := env.periodicSvc.Stats(ctx, rule.ID)
	require.NoError(t, err)
	assert.Equal(t, RuleStats{TotalGenerated: 3, Completed: 1, Pending: 2}, stats)

	_, err = env.periodicSvc.Stats(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateRule(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	rule, err := env.periodicSvc.CreateRule(ctx, PeriodicTaskInput{
		Title: "mutable", Schedule: model.DailySchedule{}, TaskDuration: 1,
		StartDate: date(2024, time.January, 1),
	})
	require.NoError(t, err)

	duration := 3
	updated, err := env.periodicSvc.UpdateRule(ctx, rule.ID, PeriodicTaskPatch{
		Schedule:     model.WeeklySchedule{WeekDays: []int{5}},
		TaskDuration: &duration,
	})
	require.NoError(t, err)
	assert.Equal(t, model.PeriodicWeekly, updated.PeriodicType)
	assert.Equal(t, []int{5}, updated.WeekDays)
	assert.Equal(t, 3, updated.TaskDuration)

	badDuration := 0
	_, err = env.periodicSvc.UpdateRule(ctx, rule.ID, PeriodicTaskPatch{TaskDuration: &badDuration})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = env.periodicSvc.UpdateRule(ctx, "missing", PeriodicTaskPatch{TaskDuration: &duration})
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, env.periodicSvc.DeleteRule(ctx, rule.ID))
	assert.ErrorIs(t, env.periodicSvc.DeleteRule(ctx, rule.ID), ErrNotFound)
}
