package model

import "time"

// TaskStatus is the completion state of a task or of one executor's part.
type TaskStatus string

const (
	StatusPending   TaskStatus = "pending"
	StatusCompleted TaskStatus = "completed"
)

func (s TaskStatus) Valid() bool {
	return s == StatusPending || s == StatusCompleted
}

// ExecutorStatus tracks one assignee's progress on a task.
type ExecutorStatus struct {
	MemberID    string     `json:"memberId"`
	Status      TaskStatus `json:"status"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// TodoTask is one concrete, schedulable unit of work. Its inclusive
// [StartDate, EndDate] span drives the monthly index.
type TodoTask struct {
	ID               string `gorm:"primaryKey"`
	Title            string
	StartDate        Date `gorm:"index"`
	EndDate          Date
	ExecutorIDs      []string `gorm:"serializer:json"`
	Description      string
	Detail           string
	Images           []string `gorm:"serializer:json"`
	AudioPath        string
	Status           TaskStatus       `gorm:"default:pending"`
	ExecutorStatuses []ExecutorStatus `gorm:"serializer:json"`
	PeriodicTaskID   string           `gorm:"index"`
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Contains reports whether the given day falls inside the task's span.
func (t *TodoTask) Contains(d Date) bool {
	return !d.Before(t.StartDate) && !d.After(t.EndDate)
}

// MonthKeys lists the index buckets the task's span overlaps.
func (t *TodoTask) MonthKeys() []string {
	return MonthKeysBetween(t.StartDate, t.EndDate)
}

// AssignedTo reports whether the task applies to the given member.
// A task with no executors applies to everyone.
func (t *TodoTask) AssignedTo(memberID string) bool {
	if len(t.ExecutorIDs) == 0 {
		return true
	}
	for _, id := range t.ExecutorIDs {
		if id == memberID {
			return true
		}
	}
	return false
}

// AllExecutorsCompleted reports whether every assigned executor has a
// completed status entry. False when the task has no executors.
func (t *TodoTask) AllExecutorsCompleted() bool {
	if len(t.ExecutorIDs) == 0 {
		return false
	}
	byMember := make(map[string]TaskStatus, len(t.ExecutorStatuses))
	for _, es := range t.ExecutorStatuses {
		byMember[es.MemberID] = es.Status
	}
	for _, id := range t.ExecutorIDs {
		if byMember[id] != StatusCompleted {
			return false
		}
	}
	return true
}

// TaskMonth is one row of the monthly index: the task overlaps the month
// identified by MonthKey ("YYYY-MM"). Maintained by the task repository in
// the same transaction as the task write.
type TaskMonth struct {
	ID       uint   `gorm:"primaryKey"`
	MonthKey string `gorm:"index:idx_task_month,unique;index"`
	TaskID   string `gorm:"index:idx_task_month,unique;index"`
}
