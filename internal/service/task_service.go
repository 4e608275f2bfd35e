package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"family-tasks/internal/model"
	"family-tasks/internal/repository"
)

// TaskInput represents data required to create a task.
type TaskInput struct {
	Title          string
	StartDate      model.Date
	EndDate        model.Date
	ExecutorIDs    []string
	Description    string
	Detail         string
	PeriodicTaskID string
}

// TaskPatch carries the optional fields of a task update; nil means
// "leave unchanged".
type TaskPatch struct {
	Title       *string
	StartDate   *model.Date
	EndDate     *model.Date
	ExecutorIDs *[]string
	Description *string
	Detail      *string
}

// TaskService is the task store: it owns TodoTask records and answers
// point, month and executor queries through the monthly index.
type TaskService struct {
	taskRepo *repository.TaskRepository
	mediaDir string
	locks    *keyedMutex
}

func NewTaskService(taskRepo *repository.TaskRepository, mediaDir string) *TaskService {
	return &TaskService{
		taskRepo: taskRepo,
		mediaDir: mediaDir,
		locks:    newKeyedMutex(),
	}
}

func (s *TaskService) CreateTask(ctx context.Context, input TaskInput) (*model.TodoTask, error) {
	if strings.TrimSpace(input.Title) == "" {
		return nil, fmt.Errorf("%w: title is required", ErrValidation)
	}
	if input.StartDate.IsZero() || input.EndDate.IsZero() {
		return nil, fmt.Errorf("%w: start and end dates are required", ErrValidation)
	}
	if input.EndDate.Before(input.StartDate) {
		return nil, fmt.Errorf("%w: end date %s before start date %s",
			ErrValidation, input.EndDate, input.StartDate)
	}

	statuses := make([]model.ExecutorStatus, 0, len(input.ExecutorIDs))
	for _, memberID := range input.ExecutorIDs {
		statuses = append(statuses, model.ExecutorStatus{
			MemberID: memberID,
			Status:   model.StatusPending,
		})
	}

	task := &model.TodoTask{
		ID:               uuid.NewString(),
		Title:            strings.TrimSpace(input.Title),
		StartDate:        input.StartDate,
		EndDate:          input.EndDate,
		ExecutorIDs:      input.ExecutorIDs,
		Description:      input.Description,
		Detail:           input.Detail,
		Status:           model.StatusPending,
		ExecutorStatuses: statuses,
		PeriodicTaskID:   input.PeriodicTaskID,
	}

	if err := s.taskRepo.Create(ctx, task); err != nil {
		return nil, err
	}
	return task, nil
}

func (s *TaskService) GetTask(ctx context.Context, id string) (*model.TodoTask, error) {
	task, err := s.taskRepo.FindByID(ctx, id)
	if err != nil {
		return nil, wrapNotFound(err)
	}
	return task, nil
}

// UpdateTask merges the patch into the task. The monthly index is rebuilt
// only when the date span actually changed.
func (s *TaskService) UpdateTask(ctx context.Context, id string, patch TaskPatch) (*model.TodoTask, error) {
	unlock := s.locks.lock(id)
	defer unlock()

	task, err := s.taskRepo.FindByID(ctx, id)
	if err != nil {
		return nil, wrapNotFound(err)
	}

	oldStart, oldEnd := task.StartDate, task.EndDate

	if patch.Title != nil {
		title := strings.TrimSpace(*patch.Title)
		if title == "" {
			return nil, fmt.Errorf("%w: title is required", ErrValidation)
		}
		task.Title = title
	}
	if patch.StartDate != nil {
		task.StartDate = *patch.StartDate
	}
	if patch.EndDate != nil {
		task.EndDate = *patch.EndDate
	}
	if task.EndDate.Before(task.StartDate) {
		return nil, fmt.Errorf("%w: end date %s before start date %s",
			ErrValidation, task.EndDate, task.StartDate)
	}
	if patch.Description != nil {
		task.Description = *patch.Description
	}
	if patch.Detail != nil {
		task.Detail = *patch.Detail
	}
	if patch.ExecutorIDs != nil {
		task.ExecutorIDs = *patch.ExecutorIDs
		task.ExecutorStatuses = reconcileExecutorStatuses(task.ExecutorIDs, task.ExecutorStatuses)
	}

	spanChanged := !task.StartDate.Equal(oldStart) || !task.EndDate.Equal(oldEnd)
	if err := s.taskRepo.Save(ctx, task, spanChanged); err != nil {
		return nil, err
	}
	return task, nil
}

// DeleteTask removes the task, its index rows and its media directory.
func (s *TaskService) DeleteTask(ctx context.Context, id string) error {
	unlock := s.locks.lock(id)
	defer unlock()

	if err := s.taskRepo.Delete(ctx, id); err != nil {
		return wrapNotFound(err)
	}

	if s.mediaDir != "" {
		if err := os.RemoveAll(filepath.Join(s.mediaDir, id)); err != nil {
			log.Printf("[warn] remove media for task %s: %v", id, err)
		}
	}
	return nil
}

// TasksByDate returns the tasks whose span contains the given day. Only the
// day's month bucket is consulted; the bucket is a superset, so each
// candidate is filtered against its actual span.
func (s *TaskService) TasksByDate(ctx context.Context, date model.Date) ([]model.TodoTask, error) {
	candidates, err := s.taskRepo.ListByMonthKey(ctx, date.MonthKey())
	if err != nil {
		return nil, err
	}
	tasks := make([]model.TodoTask, 0, len(candidates))
	for _, task := range candidates {
		if task.Contains(date) {
			tasks = append(tasks, task)
		}
	}
	return tasks, nil
}

// TasksByMonth returns every task overlapping the given month.
func (s *TaskService) TasksByMonth(ctx context.Context, year int, month time.Month) ([]model.TodoTask, error) {
	return s.taskRepo.ListByMonthKey(ctx, model.MonthKey(year, month))
}

// TasksByExecutor returns the tasks visible to a member: tasks assigned to
// them plus unassigned tasks, which apply to everyone. With a date the
// result is scoped to that day, otherwise the whole store is considered.
func (s *TaskService) TasksByExecutor(ctx context.Context, memberID string, date *model.Date) ([]model.TodoTask, error) {
	var (
		tasks []model.TodoTask
		err   error
	)
	if date != nil {
		tasks, err = s.TasksByDate(ctx, *date)
	} else {
		tasks, err = s.taskRepo.ListAll(ctx)
	}
	if err != nil {
		return nil, err
	}

	visible := make([]model.TodoTask, 0, len(tasks))
	for _, task := range tasks {
		if task.AssignedTo(memberID) {
			visible = append(visible, task)
		}
	}
	return visible, nil
}

func (s *TaskService) ListAll(ctx context.Context) ([]model.TodoTask, error) {
	return s.taskRepo.ListAll(ctx)
}

// TasksByRule returns the instances generated by a recurrence rule.
func (s *TaskService) TasksByRule(ctx context.Context, periodicTaskID string) ([]model.TodoTask, error) {
	return s.taskRepo.ListByPeriodicTask(ctx, periodicTaskID)
}

// SetStatus sets the whole-task status directly. Used when there are no
// per-executor trackers; with executors, completion normally flows through
// SetExecutorStatus.
func (s *TaskService) SetStatus(ctx context.Context, id string, status model.TaskStatus) (*model.TodoTask, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrValidation, status)
	}

	unlock := s.locks.lock(id)
	defer unlock()

	task, err := s.taskRepo.FindByID(ctx, id)
	if err != nil {
		return nil, wrapNotFound(err)
	}
	task.Status = status
	if err := s.taskRepo.Save(ctx, task, false); err != nil {
		return nil, err
	}
	return task, nil
}

// SetExecutorStatus upserts one executor's status entry and recomputes the
// aggregate: the task flips to completed only once every assigned executor
// is completed. A partial completion never regresses the overall status.
func (s *TaskService) SetExecutorStatus(ctx context.Context, id, memberID string, status model.TaskStatus) (*model.TodoTask, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrValidation, status)
	}

	unlock := s.locks.lock(id)
	defer unlock()

	task, err := s.taskRepo.FindByID(ctx, id)
	if err != nil {
		return nil, wrapNotFound(err)
	}

	entry := model.ExecutorStatus{MemberID: memberID, Status: status}
	if status == model.StatusCompleted {
		now := time.Now()
		entry.CompletedAt = &now
	}

	replaced := false
	for i, es := range task.ExecutorStatuses {
		if es.MemberID == memberID {
			task.ExecutorStatuses[i] = entry
			replaced = true
			break
		}
	}
	if !replaced {
		task.ExecutorStatuses = append(task.ExecutorStatuses, entry)
	}

	if task.AllExecutorsCompleted() {
		task.Status = model.StatusCompleted
	}

	if err := s.taskRepo.Save(ctx, task, false); err != nil {
		return nil, err
	}
	return task, nil
}

// EnsureMediaDir creates and returns the task's media directory.
func (s *TaskService) EnsureMediaDir(taskID string) (string, error) {
	dir := filepath.Join(s.mediaDir, taskID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create media dir for task %s: %w", taskID, err)
	}
	return dir, nil
}

// AddImage records an image path (relative to the media root) on the task.
func (s *TaskService) AddImage(ctx context.Context, id, imagePath string) (*model.TodoTask, error) {
	unlock := s.locks.lock(id)
	defer unlock()

	task, err := s.taskRepo.FindByID(ctx, id)
	if err != nil {
		return nil, wrapNotFound(err)
	}
	task.Images = append(task.Images, imagePath)
	if err := s.taskRepo.Save(ctx, task, false); err != nil {
		return nil, err
	}
	return task, nil
}

// RemoveImage drops the image from the task and deletes the file.
func (s *TaskService) RemoveImage(ctx context.Context, id, imagePath string) (*model.TodoTask, error) {
	unlock := s.locks.lock(id)
	defer unlock()

	task, err := s.taskRepo.FindByID(ctx, id)
	if err != nil {
		return nil, wrapNotFound(err)
	}

	images := task.Images[:0]
	for _, p := range task.Images {
		if p != imagePath {
			images = append(images, p)
		}
	}
	task.Images = images

	if s.mediaDir != "" {
		if err := os.Remove(filepath.Join(s.mediaDir, imagePath)); err != nil && !os.IsNotExist(err) {
			log.Printf("[warn] remove image %s: %v", imagePath, err)
		}
	}

	if err := s.taskRepo.Save(ctx, task, false); err != nil {
		return nil, err
	}
	return task, nil
}

// SetAudio sets or clears (empty path) the task's audio recording.
func (s *TaskService) SetAudio(ctx context.Context, id, audioPath string) (*model.TodoTask, error) {
	unlock := s.locks.lock(id)
	defer unlock()

	task, err := s.taskRepo.FindByID(ctx, id)
	if err != nil {
		return nil, wrapNotFound(err)
	}
	task.AudioPath = audioPath
	if err := s.taskRepo.Save(ctx, task, false); err != nil {
		return nil, err
	}
	return task, nil
}

// reconcileExecutorStatuses keeps entries for executors still assigned and
// seeds pending entries for newly assigned ones.
func reconcileExecutorStatuses(executorIDs []string, statuses []model.ExecutorStatus) []model.ExecutorStatus {
	byMember := make(map[string]model.ExecutorStatus, len(statuses))
	for _, es := range statuses {
		byMember[es.MemberID] = es
	}

	next := make([]model.ExecutorStatus, 0, len(executorIDs))
	for _, id := range executorIDs {
		if es, ok := byMember[id]; ok {
			next = append(next, es)
			continue
		}
		next = append(next, model.ExecutorStatus{MemberID: id, Status: model.StatusPending})
	}
	return next
}

func wrapNotFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}
