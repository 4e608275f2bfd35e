package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"family-tasks/internal/model"
)

// PeriodicTaskRepository handles CRUD for recurrence rules.
type PeriodicTaskRepository struct {
	db *gorm.DB
}

func NewPeriodicTaskRepository(db *gorm.DB) *PeriodicTaskRepository {
	return &PeriodicTaskRepository{db: db}
}

func (r *PeriodicTaskRepository) Create(ctx context.Context, rule *model.PeriodicTask) error {
	if err := r.db.WithContext(ctx).Create(rule).Error; err != nil {
		return fmt.Errorf("create periodic task: %w", err)
	}
	return nil
}

func (r *PeriodicTaskRepository) FindByID(ctx context.Context, id string) (*model.PeriodicTask, error) {
	var rule model.PeriodicTask
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&rule).Error; err != nil {
		return nil, err
	}
	return &rule, nil
}

func (r *PeriodicTaskRepository) ListAll(ctx context.Context) ([]model.PeriodicTask, error) {
	var rules []model.PeriodicTask
	if err := r.db.WithContext(ctx).Order("created_at DESC").Find(&rules).Error; err != nil {
		return nil, err
	}
	return rules, nil
}

func (r *PeriodicTaskRepository) ListActive(ctx context.Context) ([]model.PeriodicTask, error) {
	var rules []model.PeriodicTask
	if err := r.db.WithContext(ctx).Where("is_active = ?", true).
		Order("created_at DESC").Find(&rules).Error; err != nil {
		return nil, err
	}
	return rules, nil
}

func (r *PeriodicTaskRepository) Save(ctx context.Context, rule *model.PeriodicTask) error {
	if err := r.db.WithContext(ctx).Save(rule).Error; err != nil {
		return fmt.Errorf("save periodic task: %w", err)
	}
	return nil
}

func (r *PeriodicTaskRepository) Delete(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Where("id = ?", id).Delete(&model.PeriodicTask{})
	if res.Error != nil {
		return fmt.Errorf("delete periodic task: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// AdvanceGeneration records a successful fire for the given date: the
// repeat counter and lastGeneratedDate move forward in a single update.
func (r *PeriodicTaskRepository) AdvanceGeneration(ctx context.Context, id string, date model.Date) error {
	res := r.db.WithContext(ctx).Model(&model.PeriodicTask{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"current_repeat_count": gorm.Expr("current_repeat_count + 1"),
			"last_generated_date":  date,
		})
	if res.Error != nil {
		return fmt.Errorf("advance generation for %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
