package alarm

import (
	"context"
	"time"

	"github.com/charmbracelet/log"

	"github.com/harrisonrobin/larkalarm/pkg/model"
)

// DefaultOffset applies when no alert offset is configured.
const DefaultOffset = 15 * time.Minute

// Work hours, as minutes of the local day, used when WorkHoursOnly is set.
const (
	workStartMinute = 8*60 + 30
	workEndMinute   = 17*60 + 30
)

// Settings are the user preferences the evaluator reads on every tick.
type Settings struct {
	Offset          time.Duration
	AlertNoDeadline bool
	WorkHoursOnly   bool
}

func (s Settings) offset() time.Duration {
	if s.Offset <= 0 {
		return DefaultOffset
	}
	return s.Offset
}

// SnoozeChecker reports whether a task is inside its snooze window.
type SnoozeChecker interface {
	IsSnoozed(guid string, now time.Time) bool
}

// Trigger makes an alarm visible for task.
type Trigger interface {
	Trigger(ctx context.Context, task model.Task)
}

// InWorkHours reports whether now falls inside 08:30-17:30 local time,
// both ends inclusive at minute precision.
func InWorkHours(now time.Time) bool {
	m := now.Hour()*60 + now.Minute()
	return m >= workStartMinute && m <= workEndMinute
}

// Select returns the tasks that should start alarming at now, in due order.
// Tasks already active or snoozed are skipped, and each GUID appears once.
// The work-hours window is enforced by Evaluator.Run, not here.
func Select(tasks []model.Task, now time.Time, s Settings, snoozes SnoozeChecker, active func(guid string) bool) []model.Task {
	var out []model.Task
	seen := make(map[string]bool)
	for _, task := range model.SortByDue(tasks) {
		if seen[task.GUID] {
			continue
		}
		if !task.HasDue() {
			if !s.AlertNoDeadline {
				continue
			}
		} else if now.Before(task.Due.Add(-s.offset())) {
			continue
		}
		if snoozes != nil && snoozes.IsSnoozed(task.GUID, now) {
			continue
		}
		if active != nil && active(task.GUID) {
			continue
		}
		seen[task.GUID] = true
		out = append(out, task)
	}
	return out
}

// Evaluator runs Select against the registry on each scheduling tick and
// hands newly due tasks to the presence layer.
type Evaluator struct {
	registry *Registry
	snoozes  SnoozeChecker
	trigger  Trigger
	logger   *log.Logger
}

func NewEvaluator(registry *Registry, snoozes SnoozeChecker, trigger Trigger, logger *log.Logger) *Evaluator {
	if logger == nil {
		logger = log.Default()
	}
	return &Evaluator{registry: registry, snoozes: snoozes, trigger: trigger, logger: logger}
}

// Run evaluates tasks at now and triggers every selected one. It returns how
// many alarms were triggered.
func (e *Evaluator) Run(ctx context.Context, tasks []model.Task, now time.Time, s Settings) int {
	if s.WorkHoursOnly && !InWorkHours(now) {
		e.logger.Debug("outside work hours, skipping evaluation", "time", now.Format("15:04"))
		return 0
	}
	selected := Select(tasks, now, s, e.snoozes, e.registry.Contains)
	for _, task := range selected {
		e.logger.Info("alarm triggered", "guid", task.GUID, "summary", task.Summary)
		e.trigger.Trigger(ctx, task)
	}
	return len(selected)
}
