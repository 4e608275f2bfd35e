package repository

import (
	"context"
	"errors"
	"fmt"
	"log"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"family-tasks/internal/model"
)

// TaskRepository handles storage of tasks and keeps the monthly index in
// step with every task write. Index rows change in the same transaction as
// the task record, so readers never observe a half-updated index.
type TaskRepository struct {
	db *gorm.DB
}

func NewTaskRepository(db *gorm.DB) *TaskRepository {
	return &TaskRepository{db: db}
}

func (r *TaskRepository) Create(ctx context.Context, task *model.TodoTask) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(task).Error; err != nil {
			return fmt.Errorf("create task: %w", err)
		}
		return addTaskToIndex(tx, task)
	})
}

func (r *TaskRepository) FindByID(ctx context.Context, id string) (*model.TodoTask, error) {
	var task model.TodoTask
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&task).Error; err != nil {
		return nil, err
	}
	return &task, nil
}

// Save persists a modified task. When spanChanged is set the task's index
// rows are rebuilt; a same-span save leaves the index untouched.
func (r *TaskRepository) Save(ctx context.Context, task *model.TodoTask, spanChanged bool) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Save(task).Error; err != nil {
			return fmt.Errorf("save task: %w", err)
		}
		if !spanChanged {
			return nil
		}
		if err := removeTaskFromIndex(tx, task.ID); err != nil {
			return err
		}
		return addTaskToIndex(tx, task)
	})
}

// Delete removes the task record and every index row referencing it.
func (r *TaskRepository) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("id = ?", id).Delete(&model.TodoTask{})
		if res.Error != nil {
			return fmt.Errorf("delete task: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return removeTaskFromIndex(tx, id)
	})
}

// ListByMonthKey loads every task indexed under the given "YYYY-MM" bucket.
// Ids that no longer resolve to a record are logged and skipped so a stale
// index row cannot break a listing.
func (r *TaskRepository) ListByMonthKey(ctx context.Context, monthKey string) ([]model.TodoTask, error) {
	var ids []string
	if err := r.db.WithContext(ctx).Model(&model.TaskMonth{}).
		Where("month_key = ?", monthKey).
		Order("id ASC").
		Pluck("task_id", &ids).Error; err != nil {
		return nil, fmt.Errorf("load month index %s: %w", monthKey, err)
	}

	tasks := make([]model.TodoTask, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}

		task, err := r.FindByID(ctx, id)
		switch {
		case err == nil:
			tasks = append(tasks, *task)
		case errors.Is(err, gorm.ErrRecordNotFound):
			log.Printf("[warn] month index %s references missing task %s, skipping", monthKey, id)
		default:
			log.Printf("[warn] load task %s from month %s: %v, skipping", id, monthKey, err)
		}
	}
	return tasks, nil
}

// MonthKeysForTask lists the buckets currently holding the task's id.
func (r *TaskRepository) MonthKeysForTask(ctx context.Context, taskID string) ([]string, error) {
	var keys []string
	if err := r.db.WithContext(ctx).Model(&model.TaskMonth{}).
		Where("task_id = ?", taskID).
		Order("month_key ASC").
		Pluck("month_key", &keys).Error; err != nil {
		return nil, fmt.Errorf("load index months for task %s: %w", taskID, err)
	}
	return keys, nil
}

func (r *TaskRepository) ListAll(ctx context.Context) ([]model.TodoTask, error) {
	var tasks []model.TodoTask
	if err := r.db.WithContext(ctx).Order("created_at DESC").Find(&tasks).Error; err != nil {
		return nil, err
	}
	return tasks, nil
}

// ListByPeriodicTask returns the instances a recurrence rule has generated.
func (r *TaskRepository) ListByPeriodicTask(ctx context.Context, periodicTaskID string) ([]model.TodoTask, error) {
	var tasks []model.TodoTask
	if err := r.db.WithContext(ctx).
		Where("periodic_task_id = ?", periodicTaskID).
		Order("start_date ASC").
		Find(&tasks).Error; err != nil {
		return nil, err
	}
	return tasks, nil
}

func addTaskToIndex(tx *gorm.DB, task *model.TodoTask) error {
	for _, key := range task.MonthKeys() {
		row := model.TaskMonth{MonthKey: key, TaskID: task.ID}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error; err != nil {
			return fmt.Errorf("index task %s under %s: %w", task.ID, key, err)
		}
	}
	return nil
}

func removeTaskFromIndex(tx *gorm.DB, taskID string) error {
	if err := tx.Where("task_id = ?", taskID).Delete(&model.TaskMonth{}).Error; err != nil {
		return fmt.Errorf("unindex task %s: %w", taskID, err)
	}
	return nil
}
