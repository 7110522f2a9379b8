package alarm

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"github.com/harrisonrobin/larkalarm/pkg/model"
	"github.com/harrisonrobin/larkalarm/pkg/snooze"
	"github.com/harrisonrobin/larkalarm/pkg/state"
)

var ict = time.FixedZone("ICT", 7*3600)

func due(t time.Time) *time.Time { return &t }

type fakeSnoozes map[string]time.Time

func (f fakeSnoozes) IsSnoozed(guid string, now time.Time) bool {
	until, ok := f[guid]
	return ok && !now.After(until)
}

// activatingTrigger mimics the presence manager: a triggered task becomes
// active in the registry.
type activatingTrigger struct {
	registry  *Registry
	triggered []string
}

func (a *activatingTrigger) Trigger(_ context.Context, task model.Task) {
	a.registry.Add(task)
	a.triggered = append(a.triggered, task.GUID)
}

func guids(tasks []model.Task) []string {
	out := make([]string, len(tasks))
	for i, t := range tasks {
		out[i] = t.GUID
	}
	return out
}

func TestSelectThreshold(t *testing.T) {
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, ict)
	tasks := []model.Task{
		{GUID: "later", Due: due(now.Add(time.Hour))},
		{GUID: "edge", Due: due(now.Add(15 * time.Minute))},
		{GUID: "overdue", Due: due(now.Add(-2 * time.Hour))},
		{GUID: "soon", Due: due(now.Add(10 * time.Minute))},
	}

	got := guids(Select(tasks, now, Settings{Offset: 15 * time.Minute}, nil, nil))
	want := []string{"overdue", "soon", "edge"}
	if len(got) != len(want) {
		t.Fatalf("Expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Expected %v, got %v", want, got)
			break
		}
	}
}

func TestSelectZeroOffsetUsesDefault(t *testing.T) {
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, ict)
	tasks := []model.Task{
		{GUID: "a", Due: due(now.Add(14 * time.Minute))},
		{GUID: "b", Due: due(now.Add(16 * time.Minute))},
	}
	got := guids(Select(tasks, now, Settings{}, nil, nil))
	if len(got) != 1 || got[0] != "a" {
		t.Errorf("Expected [a], got %v", got)
	}
}

func TestSelectNoDeadline(t *testing.T) {
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, ict)
	tasks := []model.Task{{GUID: "nodue"}, {GUID: "due", Due: due(now)}}

	got := guids(Select(tasks, now, Settings{Offset: 15 * time.Minute}, nil, nil))
	if len(got) != 1 || got[0] != "due" {
		t.Errorf("Expected only the due task, got %v", got)
	}

	got = guids(Select(tasks, now, Settings{Offset: 15 * time.Minute, AlertNoDeadline: true}, nil, nil))
	if len(got) != 2 || got[1] != "nodue" {
		t.Errorf("Expected no-deadline task last, got %v", got)
	}

	snoozed := fakeSnoozes{"nodue": now.Add(time.Minute)}
	got = guids(Select(tasks, now, Settings{AlertNoDeadline: true}, snoozed, nil))
	if len(got) != 1 || got[0] != "due" {
		t.Errorf("Expected snoozed no-deadline task to be skipped, got %v", got)
	}
}

func TestSelectSkipsActiveAndDuplicates(t *testing.T) {
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, ict)
	tasks := []model.Task{
		{GUID: "a", Due: due(now)},
		{GUID: "a", Due: due(now)},
		{GUID: "b", Due: due(now)},
	}
	active := func(guid string) bool { return guid == "b" }

	got := guids(Select(tasks, now, Settings{}, nil, active))
	if len(got) != 1 || got[0] != "a" {
		t.Errorf("Expected [a], got %v", got)
	}
}

func TestEvaluatorWorkHours(t *testing.T) {
	tasks := []model.Task{
		{GUID: "a", Due: due(time.Date(2026, 3, 2, 0, 0, 0, 0, ict))},
		{GUID: "nodue"},
	}
	s := Settings{WorkHoursOnly: true, AlertNoDeadline: true}

	for _, tc := range []struct {
		hour, minute int
		want         int
	}{
		{8, 29, 0},
		{8, 30, 2},
		{12, 0, 2},
		{17, 30, 2},
		{17, 31, 0},
		{23, 0, 0},
	} {
		registry := NewRegistry()
		ev := NewEvaluator(registry, nil, &activatingTrigger{registry: registry}, log.New(io.Discard))
		now := time.Date(2026, 3, 2, tc.hour, tc.minute, 0, 0, ict)
		if got := ev.Run(context.Background(), tasks, now, s); got != tc.want {
			t.Errorf("At %02d:%02d expected %d tasks, got %d", tc.hour, tc.minute, tc.want, got)
		}
	}

	// Select itself does not gate on the clock.
	night := time.Date(2026, 3, 2, 23, 0, 0, 0, ict)
	if got := Select(tasks, night, s, nil, nil); len(got) != 2 {
		t.Errorf("Expected Select to ignore work hours, got %v", guids(got))
	}
}

func TestEvaluatorDismissScenario(t *testing.T) {
	store, err := state.Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	snoozes, err := snooze.NewTable(store)
	if err != nil {
		t.Fatalf("NewTable failed: %v", err)
	}
	registry := NewRegistry()
	trigger := &activatingTrigger{registry: registry}
	ev := NewEvaluator(registry, snoozes, trigger, log.New(io.Discard))
	ctx := context.Background()

	now := time.Date(2026, 3, 2, 10, 0, 0, 0, ict)
	tasks := []model.Task{
		{GUID: "A", Summary: "Send report", Due: due(now.Add(10 * time.Minute))},
		{GUID: "B", Summary: "Review", Due: due(now.Add(time.Hour))},
	}
	s := Settings{Offset: 15 * time.Minute}

	if n := ev.Run(ctx, tasks, now, s); n != 1 || trigger.triggered[0] != "A" {
		t.Fatalf("Expected only A to trigger, got %v", trigger.triggered)
	}

	// Still active: repeated evaluation keeps one entry.
	ev.Run(ctx, tasks, now.Add(30*time.Second), s)
	if registry.Len() != 1 || len(trigger.triggered) != 1 {
		t.Fatalf("Expected a single active alarm, got %d (triggered %v)", registry.Len(), trigger.triggered)
	}

	// Dismiss A.
	if _, err := snoozes.Snooze("A", now); err != nil {
		t.Fatalf("Snooze failed: %v", err)
	}
	registry.Remove("A")

	if n := ev.Run(ctx, tasks, now.Add(time.Minute), s); n != 0 {
		t.Errorf("Expected no trigger one minute after dismissal, got %v", trigger.triggered)
	}
	if n := ev.Run(ctx, tasks, now.Add(6*time.Minute), s); n != 1 {
		t.Errorf("Expected A to trigger again after six minutes, got %v", trigger.triggered)
	}
	if last := trigger.triggered[len(trigger.triggered)-1]; last != "A" {
		t.Errorf("Expected A to re-trigger, got %s", last)
	}
}

func TestEvaluatorOutsideWorkHours(t *testing.T) {
	registry := NewRegistry()
	trigger := &activatingTrigger{registry: registry}
	ev := NewEvaluator(registry, fakeSnoozes{}, trigger, log.New(io.Discard))

	now := time.Date(2026, 3, 2, 19, 0, 0, 0, ict)
	tasks := []model.Task{{GUID: "A", Due: due(now.Add(-time.Hour))}}
	if n := ev.Run(context.Background(), tasks, now, Settings{WorkHoursOnly: true}); n != 0 {
		t.Errorf("Expected nothing outside work hours, got %v", trigger.triggered)
	}
}
