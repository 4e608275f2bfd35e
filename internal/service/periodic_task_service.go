package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"family-tasks/internal/model"
	"family-tasks/internal/repository"
)

// PeriodicTaskInput represents data required to create a recurrence rule.
type PeriodicTaskInput struct {
	Title          string
	Schedule       model.Schedule
	TaskDuration   int
	ExecutorIDs    []string
	Description    string
	Detail         string
	MaxRepeatCount int
	StartDate      model.Date
	EndDate        *model.Date
}

// PeriodicTaskPatch carries the optional fields of a rule update; nil means
// "leave unchanged". Generation state is not settable through a patch.
type PeriodicTaskPatch struct {
	Title          *string
	Schedule       model.Schedule
	TaskDuration   *int
	ExecutorIDs    *[]string
	Description    *string
	Detail         *string
	MaxRepeatCount *int
	StartDate      *model.Date
	EndDate        **model.Date
	IsActive       *bool
}

// RuleStats summarizes the instances a rule has produced so far.
type RuleStats struct {
	TotalGenerated int
	Completed      int
	Pending        int
}

// PeriodicTaskService is the recurrence engine: it owns rule definitions
// and decides, per rule and calendar date, whether to materialize a task
// instance through the task store. Generation is idempotent per date.
type PeriodicTaskService struct {
	ruleRepo *repository.PeriodicTaskRepository
	taskSvc  *TaskService
	locks    *keyedMutex
}

func NewPeriodicTaskService(ruleRepo *repository.PeriodicTaskRepository, taskSvc *TaskService) *PeriodicTaskService {
	return &PeriodicTaskService{
		ruleRepo: ruleRepo,
		taskSvc:  taskSvc,
		locks:    newKeyedMutex(),
	}
}

func (s *PeriodicTaskService) CreateRule(ctx context.Context, input PeriodicTaskInput) (*model.PeriodicTask, error) {
	if strings.TrimSpace(input.Title) == "" {
		return nil, fmt.Errorf("%w: title is required", ErrValidation)
	}
	if input.TaskDuration <= 0 {
		return nil, fmt.Errorf("%w: task duration must be positive, got %d", ErrValidation, input.TaskDuration)
	}
	if input.StartDate.IsZero() {
		return nil, fmt.Errorf("%w: start date is required", ErrValidation)
	}
	if input.EndDate != nil && input.EndDate.Before(input.StartDate) {
		return nil, fmt.Errorf("%w: end date %s before start date %s",
			ErrValidation, input.EndDate, input.StartDate)
	}
	if input.MaxRepeatCount < 0 {
		return nil, fmt.Errorf("%w: max repeat count must not be negative", ErrValidation)
	}

	rule := &model.PeriodicTask{
		ID:             "pt_" + uuid.NewString(),
		Title:          strings.TrimSpace(input.Title),
		TaskDuration:   input.TaskDuration,
		ExecutorIDs:    input.ExecutorIDs,
		Description:    input.Description,
		Detail:         input.Detail,
		MaxRepeatCount: input.MaxRepeatCount,
		StartDate:      input.StartDate,
		EndDate:        input.EndDate,
		IsActive:       true,
	}
	if err := rule.SetSchedule(input.Schedule); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	if err := s.ruleRepo.Create(ctx, rule); err != nil {
		return nil, err
	}
	return rule, nil
}

func (s *PeriodicTaskService) GetRule(ctx context.Context, id string) (*model.PeriodicTask, error) {
	rule, err := s.ruleRepo.FindByID(ctx, id)
	if err != nil {
		return nil, wrapNotFound(err)
	}
	return rule, nil
}

func (s *PeriodicTaskService) ListRules(ctx context.Context) ([]model.PeriodicTask, error) {
	return s.ruleRepo.ListAll(ctx)
}

func (s *PeriodicTaskService) UpdateRule(ctx context.Context, id string, patch PeriodicTaskPatch) (*model.PeriodicTask, error) {
	unlock := s.locks.lock(id)
	defer unlock()

	rule, err := s.ruleRepo.FindByID(ctx, id)
	if err != nil {
		return nil, wrapNotFound(err)
	}

	if patch.Title != nil {
		title := strings.TrimSpace(*patch.Title)
		if title == "" {
			return nil, fmt.Errorf("%w: title is required", ErrValidation)
		}
		rule.Title = title
	}
	if patch.Schedule != nil {
		if err := rule.SetSchedule(patch.Schedule); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrValidation, err)
		}
	}
	if patch.TaskDuration != nil {
		if *patch.TaskDuration <= 0 {
			return nil, fmt.Errorf("%w: task duration must be positive, got %d", ErrValidation, *patch.TaskDuration)
		}
		rule.TaskDuration = *patch.TaskDuration
	}
	if patch.ExecutorIDs != nil {
		rule.ExecutorIDs = *patch.ExecutorIDs
	}
	if patch.Description != nil {
		rule.Description = *patch.Description
	}
	if patch.Detail != nil {
		rule.Detail = *patch.Detail
	}
	if patch.MaxRepeatCount != nil {
		if *patch.MaxRepeatCount < 0 {
			return nil, fmt.Errorf("%w: max repeat count must not be negative", ErrValidation)
		}
		rule.MaxRepeatCount = *patch.MaxRepeatCount
	}
	if patch.StartDate != nil {
		rule.StartDate = *patch.StartDate
	}
	if patch.EndDate != nil {
		rule.EndDate = *patch.EndDate
	}
	if rule.EndDate != nil && rule.EndDate.Before(rule.StartDate) {
		return nil, fmt.Errorf("%w: end date %s before start date %s",
			ErrValidation, rule.EndDate, rule.StartDate)
	}
	if patch.IsActive != nil {
		rule.IsActive = *patch.IsActive
	}

	if err := s.ruleRepo.Save(ctx, rule); err != nil {
		return nil, err
	}
	return rule, nil
}

func (s *PeriodicTaskService) DeleteRule(ctx context.Context, id string) error {
	unlock := s.locks.lock(id)
	defer unlock()
	return wrapNotFound(s.ruleRepo.Delete(ctx, id))
}

// SetActive toggles a rule between active and inactive. Inactive rules
// never fire; generation state is kept so reactivating resumes where the
// rule left off.
func (s *PeriodicTaskService) SetActive(ctx context.Context, id string, active bool) (*model.PeriodicTask, error) {
	return s.UpdateRule(ctx, id, PeriodicTaskPatch{IsActive: &active})
}

// shouldFire reports whether the rule produces an instance on the given
// day. A rule fires at most once per calendar date: once lastGeneratedDate
// is set, that date and every earlier one are permanently foreclosed, which
// is why callers must evaluate dates in non-decreasing order.
func shouldFire(rule *model.PeriodicTask, date model.Date) bool {
	if !rule.IsActive {
		return false
	}
	if date.Before(rule.StartDate) {
		return false
	}
	if rule.EndDate != nil && date.After(*rule.EndDate) {
		return false
	}
	if rule.Exhausted() {
		return false
	}
	if rule.LastGeneratedDate != nil && !date.After(*rule.LastGeneratedDate) {
		return false
	}

	sched, err := rule.Schedule()
	if err != nil {
		log.Printf("[warn] rule %s has unusable schedule: %v", rule.ID, err)
		return false
	}
	return sched.Matches(date)
}

// GenerateForDate materializes the rule's instance for the given day, if
// eligible. It reports whether an instance was created; a missing rule or a
// negative eligibility check returns false with no side effects. The
// created instance spans [date, date+taskDuration-1], and the rule's
// generation state advances atomically with respect to other callers.
func (s *PeriodicTaskService) GenerateForDate(ctx context.Context, ruleID string, date model.Date) (bool, error) {
	unlock := s.locks.lock(ruleID)
	defer unlock()

	rule, err := s.ruleRepo.FindByID(ctx, ruleID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, err
	}

	if !shouldFire(rule, date) {
		return false, nil
	}

	_, err = s.taskSvc.CreateTask(ctx, TaskInput{
		Title:          rule.Title,
		StartDate:      date,
		EndDate:        date.AddDays(rule.TaskDuration - 1),
		ExecutorIDs:    rule.ExecutorIDs,
		Description:    rule.Description,
		Detail:         rule.Detail,
		PeriodicTaskID: rule.ID,
	})
	if err != nil {
		return false, fmt.Errorf("generate instance for rule %s: %w", ruleID, err)
	}

	if err := s.ruleRepo.AdvanceGeneration(ctx, ruleID, date); err != nil {
		return false, err
	}
	return true, nil
}

// GenerateAllForDate runs every active rule against the given day and
// returns how many instances were created. A failing rule is logged and
// skipped so one broken rule cannot block the rest.
func (s *PeriodicTaskService) GenerateAllForDate(ctx context.Context, date model.Date) (int, error) {
	rules, err := s.ruleRepo.ListActive(ctx)
	if err != nil {
		return 0, err
	}

	count := 0
	for _, rule := range rules {
		generated, err := s.GenerateForDate(ctx, rule.ID, date)
		if err != nil {
			log.Printf("[warn] generate for rule %s on %s: %v", rule.ID, date, err)
			continue
		}
		if generated {
			count++
		}
	}
	return count, nil
}

// GenerateForDateRange backfills every day in [start, end], walking the
// days strictly ascending. Ascending order is what makes the single
// lastGeneratedDate guard in shouldFire sufficient; days at or before an
// earlier fire are skipped, so re-running an overlapping range is safe.
func (s *PeriodicTaskService) GenerateForDateRange(ctx context.Context, start, end model.Date) (int, error) {
	if start.IsZero() || end.IsZero() {
		return 0, fmt.Errorf("%w: start and end dates are required", ErrValidation)
	}
	if end.Before(start) {
		return 0, fmt.Errorf("%w: range end %s before start %s", ErrValidation, end, start)
	}

	total := 0
	for day := start; !day.After(end); day = day.AddDays(1) {
		count, err := s.GenerateAllForDate(ctx, day)
		if err != nil {
			return total, err
		}
		total += count
	}
	return total, nil
}

// GeneratedTasks lists the instances the rule has produced.
func (s *PeriodicTaskService) GeneratedTasks(ctx context.Context, ruleID string) ([]model.TodoTask, error) {
	if _, err := s.GetRule(ctx, ruleID); err != nil {
		return nil, err
	}
	return s.taskSvc.TasksByRule(ctx, ruleID)
}

// Stats reports generated/completed/pending counts for the rule.
func (s *PeriodicTaskService) Stats(ctx context.Context, ruleID string) (RuleStats, error) {
	tasks, err := s.GeneratedTasks(ctx, ruleID)
	if err != nil {
		return RuleStats{}, err
	}

	stats := RuleStats{TotalGenerated: len(tasks)}
	for _, task := range tasks {
		if task.Status == model.StatusCompleted {
			stats.Completed++
		} else {
			stats.Pending++
		}
	}
	return stats, nil
}
