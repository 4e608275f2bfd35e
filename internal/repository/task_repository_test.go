package repository

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"family-tasks/internal/model"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := NewDB(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	return db
}

func newTask(id string, start, end model.Date) *model.TodoTask {
	return &model.TodoTask{
		ID:        id,
		Title:     "task " + id,
		StartDate: start,
		EndDate:   end,
		Status:    model.StatusPending,
	}
}

func TestTaskIndexOnCreate(t *testing.T) {
	db := newTestDB(t)
	repo := NewTaskRepository(db)
	ctx := context.Background()

	task := newTask("t1", model.NewDate(2024, time.January, 28), model.NewDate(2024, time.February, 3))
	require.NoError(t, repo.Create(ctx, task))

	keys, err := repo.MonthKeysForTask(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, []string{"2024-01", "2024-02"}, keys)

	janTasks, err := repo.ListByMonthKey(ctx, "2024-01")
	require.NoError(t, err)
	require.Len(t, janTasks, 1)
	assert.Equal(t, "t1", janTasks[0].ID)

	marTasks, err := repo.ListByMonthKey(ctx, "2024-03")
	require.NoError(t, err)
	assert.Empty(t, marTasks)
}

func TestTaskIndexOnUpdate(t *testing.T) {
	db := newTestDB(t)
	repo := NewTaskRepository(db)
	ctx := context.Background()

	task := newTask("t1", model.NewDate(2024, time.January, 28), model.NewDate(2024, time.February, 3))
	require.NoError(t, repo.Create(ctx, task))

	t.Run("span change rebuilds buckets", func(t *testing.T) {
		task.EndDate = model.NewDate(2024, time.January, 31)
		require.NoError(t, repo.Save(ctx, task, true))

		keys, err := repo.MonthKeysForTask(ctx, "t1")
		require.NoError(t, err)
		assert.Equal(t, []string{"2024-01"}, keys)

		febTasks, err := repo.ListByMonthKey(ctx, "2024-02")
		require.NoError(t, err)
		assert.Empty(t, febTasks)
	})

	t.Run("same-span save leaves index untouched", func(t *testing.T) {
		task.Title = "renamed"
		require.NoError(t, repo.Save(ctx, task, false))

		keys, err := repo.MonthKeysForTask(ctx, "t1")
		require.NoError(t, err)
		assert.Equal(t, []string{"2024-01"}, keys)
	})
}

func TestTaskIndexOnDelete(t *testing.T) {
	db := newTestDB(t)
	repo := NewTaskRepository(db)
	ctx := context.Background()

	task := newTask("t1", model.NewDate(2024, time.January, 28), model.NewDate(2024, time.February, 3))
	require.NoError(t, repo.Create(ctx, task))
	require.NoError(t, repo.Delete(ctx, "t1"))

	for _, key := range []string{"2024-01", "2024-02"} {
		tasks, err := repo.ListByMonthKey(ctx, key)
		require.NoError(t, err)
		assert.Empty(t, tasks, "bucket %s should be empty after delete", key)
	}

	_, err := repo.FindByID(ctx, "t1")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	assert.ErrorIs(t, repo.Delete(ctx, "t1"), gorm.ErrRecordNotFound)
}

func TestListByMonthKeySkipsDanglingIds(t *testing.T) {
	db := newTestDB(t)
	repo := NewTaskRepository(db)
	ctx := context.Background()

	task := newTask("t1", model.NewDate(2024, time.April, 1), model.NewDate(2024, time.April, 2))
	require.NoError(t, repo.Create(ctx, task))

	// Simulate index drift: a bucket row whose task record is gone.
	require.NoError(t, db.Create(&model.TaskMonth{MonthKey: "2024-04", TaskID: "ghost"}).Error)

	tasks, err := repo.ListByMonthKey(ctx, "2024-04")
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, "t1", tasks[0].ID)
}

func TestListByPeriodicTask(t *testing.T) {
	db := newTestDB(t)
	repo := NewTaskRepository(db)
	ctx := context.Background()

	first := newTask("t1", model.NewDate(2024, time.May, 2), model.NewDate(2024, time.May, 2))
	first.PeriodicTaskID = "pt_rule"
	second := newTask("t2", model.NewDate(2024, time.May, 1), model.NewDate(2024, time.May, 1))
	second.PeriodicTaskID = "pt_rule"
	other := newTask("t3", model.NewDate(2024, time.May, 1), model.NewDate(2024, time.May, 1))

	for _, task := range []*model.TodoTask{first, second, other} {
		require.NoError(t, repo.Create(ctx, task))
	}

	tasks, err := repo.ListByPeriodicTask(ctx, "pt_rule")
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	assert.Equal(t, "t2", tasks[0].ID, "ordered by start date")
	assert.Equal(t, "t1", tasks[1].ID)
}

func TestPeriodicTaskRepositoryAdvanceGeneration(t *testing.T) {
	db := newTestDB(t)
	repo := NewPeriodicTaskRepository(db)
	ctx := context.Background()

	rule := &model.PeriodicTask{
		ID:           "pt_1",
		Title:        "water plants",
		TaskDuration: 1,
		StartDate:    model.NewDate(2024, time.January, 1),
		IsActive:     true,
	}
	require.NoError(t, rule.SetSchedule(model.DailySchedule{}))
	require.NoError(t, repo.Create(ctx, rule))

	date := model.NewDate(2024, time.January, 5)
	require.NoError(t, repo.AdvanceGeneration(ctx, "pt_1", date))
	require.NoError(t, repo.AdvanceGeneration(ctx, "pt_1", date.AddDays(1)))

	got, err := repo.FindByID(ctx, "pt_1")
	require.NoError(t, err)
	assert.Equal(t, 2, got.CurrentRepeatCount)
	require.NotNil(t, got.LastGeneratedDate)
	assert.Equal(t, "2024-01-06", got.LastGeneratedDate.String())

	assert.ErrorIs(t, repo.AdvanceGeneration(ctx, "missing", date), gorm.ErrRecordNotFound)
}

func TestMemberRepository(t *testing.T) {
	db := newTestDB(t)
	repo := NewMemberRepository(db)
	ctx := context.Background()

	member := &model.FamilyMember{ID: "m1", Name: "Alice", Role: "parent"}
	require.NoError(t, repo.Create(ctx, member))

	require.NoError(t, repo.LinkTelegram(ctx, "m1", 12345))
	got, err := repo.FindByTelegramID(ctx, 12345)
	require.NoError(t, err)
	assert.Equal(t, "Alice", got.Name)

	assert.ErrorIs(t, repo.LinkTelegram(ctx, "missing", 1), gorm.ErrRecordNotFound)
}
