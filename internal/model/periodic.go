package model

import (
	"fmt"
	"time"
)

// PeriodicType discriminates the recurrence shape of a rule.
type PeriodicType string

const (
	PeriodicDaily   PeriodicType = "daily"
	PeriodicWeekly  PeriodicType = "weekly"
	PeriodicMonthly PeriodicType = "monthly"
)

// Schedule is the recurrence shape of a periodic task. Exactly one of the
// three variants exists; constructing a rule through SetSchedule makes
// mismatched payloads (a daily rule carrying month days, say)
// unrepresentable in the API.
type Schedule interface {
	Type() PeriodicType
	// Matches reports whether the schedule fires on the given day,
	// ignoring date-range and repeat-count constraints.
	Matches(d Date) bool
	Validate() error
}

// DailySchedule fires every day.
type DailySchedule struct{}

func (DailySchedule) Type() PeriodicType { return PeriodicDaily }
func (DailySchedule) Matches(Date) bool  { return true }
func (DailySchedule) Validate() error    { return nil }

// WeeklySchedule fires on the listed weekdays (Monday=0 through Sunday=6).
type WeeklySchedule struct {
	WeekDays []int
}

func (WeeklySchedule) Type() PeriodicType { return PeriodicWeekly }

func (s WeeklySchedule) Matches(d Date) bool {
	wd := d.Weekday()
	for _, day := range s.WeekDays {
		if day == wd {
			return true
		}
	}
	return false
}

func (s WeeklySchedule) Validate() error {
	if len(s.WeekDays) == 0 {
		return fmt.Errorf("weekly schedule needs at least one weekday")
	}
	for _, day := range s.WeekDays {
		if day < 0 || day > 6 {
			return fmt.Errorf("weekday %d out of range 0-6", day)
		}
	}
	return nil
}

// MonthlySchedule fires on the listed days of month (1-31).
type MonthlySchedule struct {
	MonthDays []int
}

func (MonthlySchedule) Type() PeriodicType { return PeriodicMonthly }

func (s MonthlySchedule) Matches(d Date) bool {
	dom := d.Day()
	for _, day := range s.MonthDays {
		if day == dom {
			return true
		}
	}
	return false
}

func (s MonthlySchedule) Validate() error {
	if len(s.MonthDays) == 0 {
		return fmt.Errorf("monthly schedule needs at least one day of month")
	}
	for _, day := range s.MonthDays {
		if day < 1 || day > 31 {
			return fmt.Errorf("day of month %d out of range 1-31", day)
		}
	}
	return nil
}

// PeriodicTask is a recurrence rule that spawns TodoTask instances.
// CurrentRepeatCount and LastGeneratedDate are advanced only by the
// recurrence engine as a side effect of a successful generation.
type PeriodicTask struct {
	ID                 string `gorm:"primaryKey"`
	Title              string
	PeriodicType       PeriodicType
	WeekDays           []int `gorm:"serializer:json"`
	MonthDays          []int `gorm:"serializer:json"`
	TaskDuration       int
	ExecutorIDs        []string `gorm:"serializer:json"`
	Description        string
	Detail             string
	MaxRepeatCount     int
	CurrentRepeatCount int
	StartDate          Date
	EndDate            *Date
	IsActive           bool `gorm:"default:true"`
	LastGeneratedDate  *Date
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// SetSchedule validates the schedule and writes it into the rule's
// persisted columns, clearing the payload of the other variants.
func (p *PeriodicTask) SetSchedule(s Schedule) error {
	if s == nil {
		return fmt.Errorf("schedule is required")
	}
	if err := s.Validate(); err != nil {
		return err
	}
	p.PeriodicType = s.Type()
	p.WeekDays = nil
	p.MonthDays = nil
	switch sched := s.(type) {
	case WeeklySchedule:
		p.WeekDays = sched.WeekDays
	case MonthlySchedule:
		p.MonthDays = sched.MonthDays
	}
	return nil
}

// Schedule reconstructs the typed schedule from the persisted columns.
func (p *PeriodicTask) Schedule() (Schedule, error) {
	var s Schedule
	switch p.PeriodicType {
	case PeriodicDaily:
		s = DailySchedule{}
	case PeriodicWeekly:
		s = WeeklySchedule{WeekDays: p.WeekDays}
	case PeriodicMonthly:
		s = MonthlySchedule{MonthDays: p.MonthDays}
	default:
		return nil, fmt.Errorf("unknown periodic type %q", p.PeriodicType)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Exhausted reports whether a bounded rule has used up its repeats.
func (p *PeriodicTask) Exhausted() bool {
	return p.MaxRepeatCount > 0 && p.CurrentRepeatCount >= p.MaxRepeatCount
}
