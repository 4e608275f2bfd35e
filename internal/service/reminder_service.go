package service

import (
	"context"
	"fmt"
	"html"
	"sort"
	"strings"

	"family-tasks/internal/model"
	"family-tasks/internal/repository"
)

// ReminderService builds human-readable summaries for daily notifications.
type ReminderService struct {
	taskSvc    *TaskService
	memberRepo *repository.MemberRepository
}

func NewReminderService(taskSvc *TaskService, memberRepo *repository.MemberRepository) *ReminderService {
	return &ReminderService{taskSvc: taskSvc, memberRepo: memberRepo}
}

// DailySummary renders the family-wide task list for one day.
func (s *ReminderService) DailySummary(ctx context.Context, date model.Date) (string, error) {
	tasks, err := s.taskSvc.TasksByDate(ctx, date)
	if err != nil {
		return "", err
	}

	names, err := s.memberNames(ctx)
	if err != nil {
		return "", err
	}

	var pending, completed []model.TodoTask
	for _, task := range tasks {
		if task.Status == model.StatusCompleted {
			completed = append(completed, task)
		} else {
			pending = append(pending, task)
		}
	}
	sortByEndDate(pending)

	var builder strings.Builder
	builder.WriteString("📋 <b>Family tasks</b>\n")
	builder.WriteString(fmt.Sprintf("🗓 %s\n\n", date))

	builder.WriteString("🔥 <b>Open</b>\n")
	if len(pending) == 0 {
		builder.WriteString("— nothing due today\n")
	} else {
		for _, task := range pending {
			builder.WriteString(formatTask(task, names, date))
		}
	}

	if len(completed) > 0 {
		builder.WriteString("\n✅ <b>Done</b>\n")
		for _, task := range completed {
			builder.WriteString(fmt.Sprintf("✅ %s\n", html.EscapeString(task.Title)))
		}
	}

	return strings.TrimSpace(builder.String()), nil
}

// MemberSummary renders the day's tasks visible to one member.
func (s *ReminderService) MemberSummary(ctx context.Context, member model.FamilyMember, date model.Date) (string, error) {
	tasks, err := s.taskSvc.TasksByExecutor(ctx, member.ID, &date)
	if err != nil {
		return "", err
	}

	names, err := s.memberNames(ctx)
	if err != nil {
		return "", err
	}

	var open []model.TodoTask
	for _, task := range tasks {
		if memberDone(task, member.ID) {
			continue
		}
		open = append(open, task)
	}
	sortByEndDate(open)

	var builder strings.Builder
	builder.WriteString(fmt.Sprintf("👋 <b>%s</b>, your tasks for %s\n\n", html.EscapeString(member.Name), date))

	if len(open) == 0 {
		builder.WriteString("🎉 All done — nothing left for today.")
		return builder.String(), nil
	}
	for _, task := range open {
		builder.WriteString(formatTask(task, names, date))
	}
	return strings.TrimSpace(builder.String()), nil
}

func (s *ReminderService) memberNames(ctx context.Context) (map[string]string, error) {
	members, err := s.memberRepo.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	names := make(map[string]string, len(members))
	for _, m := range members {
		names[m.ID] = m.Name
	}
	return names, nil
}

// memberDone reports whether the member has nothing left to do on the task.
func memberDone(task model.TodoTask, memberID string) bool {
	if task.Status == model.StatusCompleted {
		return true
	}
	for _, es := range task.ExecutorStatuses {
		if es.MemberID == memberID {
			return es.Status == model.StatusCompleted
		}
	}
	return false
}

func sortByEndDate(tasks []model.TodoTask) {
	sort.SliceStable(tasks, func(i, j int) bool {
		if !tasks[i].EndDate.Equal(tasks[j].EndDate) {
			return tasks[i].EndDate.Before(tasks[j].EndDate)
		}
		return tasks[i].CreatedAt.After(tasks[j].CreatedAt)
	})
}

func formatTask(task model.TodoTask, names map[string]string, today model.Date) string {
	var sb strings.Builder

	icon := "🟢"
	switch {
	case today.After(task.EndDate):
		icon = "⚠️"
	case today.Equal(task.EndDate):
		icon = "⏳"
	}

	sb.WriteString(fmt.Sprintf("%s %s", icon, html.EscapeString(strings.TrimSpace(task.Title))))

	if len(task.ExecutorIDs) > 0 {
		var who []string
		for _, id := range task.ExecutorIDs {
			name := names[id]
			if name == "" {
				name = id
			}
			if memberDone(task, id) {
				name += " ✓"
			}
			who = append(who, html.EscapeString(name))
		}
		sb.WriteString(fmt.Sprintf(" <i>(%s)</i>", strings.Join(who, ", ")))
	}

	if !task.StartDate.Equal(task.EndDate) {
		sb.WriteString(fmt.Sprintf("\n   📆 %s — %s", task.StartDate, task.EndDate))
	}
	if task.Description != "" {
		sb.WriteString(fmt.Sprintf("\n   📝 %s", html.EscapeString(strings.TrimSpace(task.Description))))
	}

	sb.WriteByte('\n')
	return sb.String()
}
