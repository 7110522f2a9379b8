package model

import (
	"sort"
	"time"
)

// Task is a Lark task as seen by the alarm daemon.
type Task struct {
	GUID     string     `json:"guid"`
	Summary  string     `json:"summary"`
	Due      *time.Time `json:"due,omitempty"`
	IsAllDay bool       `json:"is_all_day,omitempty"`
	URL      string     `json:"url,omitempty"`
}

// HasDue reports whether the task carries a deadline.
func (t Task) HasDue() bool {
	return t.Due != nil && !t.Due.IsZero()
}

// DueMillis returns the deadline as epoch milliseconds, or 0 without one.
func (t Task) DueMillis() int64 {
	if !t.HasDue() {
		return 0
	}
	return t.Due.UnixMilli()
}

// SortByDue orders tasks by due time ascending. Tasks without a deadline
// keep their relative order and sort last.
func SortByDue(tasks []Task) []Task {
	sorted := make([]Task, len(tasks))
	copy(sorted, tasks)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		switch {
		case !a.HasDue():
			return false
		case !b.HasDue():
			return true
		default:
			return a.Due.Before(*b.Due)
		}
	})
	return sorted
}
