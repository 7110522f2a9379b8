package background

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"github.com/harrisonrobin/larkalarm/pkg/alarm"
	"github.com/harrisonrobin/larkalarm/pkg/auth"
	"github.com/harrisonrobin/larkalarm/pkg/config"
	"github.com/harrisonrobin/larkalarm/pkg/model"
	"github.com/harrisonrobin/larkalarm/pkg/snooze"
	"github.com/harrisonrobin/larkalarm/pkg/state"
)

type fakeAuth struct {
	authorized bool
}

func (f *fakeAuth) Authorized() bool { return f.authorized }

func (f *fakeAuth) RegisterDevice(context.Context, string) error { return nil }

func (f *fakeAuth) Token(context.Context) (string, error) { return "tok", nil }

func (f *fakeAuth) Logout() error {
	f.authorized = false
	return nil
}

type fakeFetcher struct {
	mu    sync.Mutex
	tasks []model.Task
	err   error
	calls int
}

func (f *fakeFetcher) FetchTasks(context.Context) ([]model.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.tasks, f.err
}

type fakeMirror struct {
	mirrored [][]model.Task
}

func (f *fakeMirror) Mirror(_ context.Context, tasks []model.Task) error {
	f.mirrored = append(f.mirrored, tasks)
	return nil
}

type fakeSettings struct {
	cfg config.Config
}

func (f *fakeSettings) Current() config.Config { return f.cfg }

func (f *fakeSettings) SaveSettings(s config.Settings) error {
	if err := s.Validate(); err != nil {
		return err
	}
	f.cfg.AlertOffset = s.AlertOffset
	f.cfg.AlertNoDeadline = s.AlertNoDeadline
	f.cfg.WorkHoursOnly = s.WorkHoursOnly
	return nil
}

// fakePresence activates triggered tasks in the registry like the real
// manager does.
type fakePresence struct {
	registry  *alarm.Registry
	snoozes   *snooze.Table
	now       func() time.Time
	triggered []string
	resets    int
}

func (f *fakePresence) Trigger(_ context.Context, task model.Task) {
	f.registry.Add(task)
	f.triggered = append(f.triggered, task.GUID)
}

func (f *fakePresence) Closed(_ context.Context, guid string) {
	f.registry.Remove(guid)
}

func (f *fakePresence) Dismiss(ctx context.Context, guid string) error {
	if _, err := f.snoozes.Snooze(guid, f.now()); err != nil {
		return err
	}
	f.Closed(ctx, guid)
	return nil
}

func (f *fakePresence) Reset() {
	f.resets++
	f.registry.Clear()
}

func (f *fakePresence) Watch(ctx context.Context) { <-ctx.Done() }

type fixture struct {
	svc      *Service
	store    *state.Store
	fetcher  *fakeFetcher
	mirror   *fakeMirror
	presence *fakePresence
	settings *fakeSettings
	registry *alarm.Registry
	snoozes  *snooze.Table
	now      time.Time
}

func newFixture(t *testing.T, tasks []model.Task) *fixture {
	t.Helper()
	store, err := state.Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	snoozes, err := snooze.NewTable(store)
	if err != nil {
		t.Fatalf("NewTable failed: %v", err)
	}
	f := &fixture{
		store:    store,
		fetcher:  &fakeFetcher{tasks: tasks},
		mirror:   &fakeMirror{},
		settings: &fakeSettings{cfg: config.Config{AlertOffset: 15}},
		registry: alarm.NewRegistry(),
		snoozes:  snoozes,
		now:      time.Date(2026, 3, 2, 10, 0, 0, 0, time.Local),
	}
	f.presence = &fakePresence{registry: f.registry, snoozes: snoozes, now: func() time.Time { return f.now }}
	f.svc = New(Options{
		Store:     store,
		Auth:      &fakeAuth{authorized: true},
		Tasks:     f.fetcher,
		Settings:  f.settings,
		Registry:  f.registry,
		Snoozes:   snoozes,
		Presence:  f.presence,
		Mirror:    f.mirror,
		Connected: func() bool { return true },
		Logger:    log.New(io.Discard),
	})
	f.svc.now = func() time.Time { return f.now }
	return f
}

func due(t time.Time) *time.Time { return &t }

func TestTickSchedule(t *testing.T) {
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.Local)
	f := newFixture(t, []model.Task{{GUID: "a", Due: due(now.Add(time.Hour))}})
	ctx := context.Background()

	for i := 0; i < 11; i++ {
		f.svc.Tick(ctx)
	}
	if f.fetcher.calls != 3 {
		t.Errorf("Expected fetches on ticks 0, 5 and 10, got %d", f.fetcher.calls)
	}
	if len(f.mirror.mirrored) != 3 {
		t.Errorf("Expected the mirror to follow each fetch, got %d", len(f.mirror.mirrored))
	}
}

func TestSyncPersistsAndEvaluates(t *testing.T) {
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.Local)
	f := newFixture(t, []model.Task{
		{GUID: "A", Summary: "Send report", Due: due(now.Add(10 * time.Minute))},
		{GUID: "B", Summary: "Review", Due: due(now.Add(time.Hour))},
	})
	ctx := context.Background()

	f.svc.Sync(ctx)
	if len(f.presence.triggered) != 1 || f.presence.triggered[0] != "A" {
		t.Fatalf("Expected only A to trigger, got %v", f.presence.triggered)
	}
	stored, err := f.svc.StoredTasks()
	if err != nil || len(stored) != 2 {
		t.Fatalf("Expected 2 stored tasks, got %d (%v)", len(stored), err)
	}
	last, err := f.store.GetTime(state.KeyLastSync)
	if err != nil || !last.Equal(now) {
		t.Errorf("Expected last sync %v, got %v (%v)", now, last, err)
	}

	// B crosses its threshold on a processing tick without a fetch.
	f.fetcher.err = errors.New("should not fetch")
	f.now = now.Add(50 * time.Minute)
	f.svc.Process(ctx)
	if len(f.presence.triggered) != 2 || f.presence.triggered[1] != "B" {
		t.Errorf("Expected B to trigger from stored tasks, got %v", f.presence.triggered)
	}
}

func TestSyncSwallowsErrors(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	f.fetcher.err = fmt.Errorf("refresh: %w", auth.ErrNotAuthorized)
	f.svc.Sync(ctx)
	f.fetcher.err = errors.New("boom")
	f.svc.Sync(ctx)

	if f.store.Has(state.KeyLastSync) {
		t.Error("Expected failed syncs not to record a sync time")
	}
	if len(f.mirror.mirrored) != 0 {
		t.Error("Expected no mirror after a failed fetch")
	}
}

func TestDismissAndForceSync(t *testing.T) {
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.Local)
	f := newFixture(t, []model.Task{{GUID: "A", Due: due(now.Add(-time.Minute))}})
	ctx := context.Background()

	f.svc.Sync(ctx)
	if err := f.svc.Dismiss(ctx, "A"); err != nil {
		t.Fatalf("Dismiss failed: %v", err)
	}
	f.now = now.Add(time.Minute)
	f.svc.Process(ctx)
	if len(f.presence.triggered) != 1 {
		t.Fatalf("Expected no trigger while snoozed, got %v", f.presence.triggered)
	}

	if err := f.svc.ForceSync(ctx); err != nil {
		t.Fatalf("ForceSync failed: %v", err)
	}
	if f.presence.resets != 1 {
		t.Errorf("Expected presence reset, got %d", f.presence.resets)
	}
	if len(f.snoozes.All()) != 0 {
		t.Errorf("Expected snoozes cleared, got %v", f.snoozes.All())
	}
	if len(f.presence.triggered) != 2 {
		t.Errorf("Expected A to trigger again after force sync, got %v", f.presence.triggered)
	}
}

func TestSnoozeKeepsAlarmOnScreen(t *testing.T) {
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.Local)
	f := newFixture(t, []model.Task{{GUID: "A", Due: due(now)}})
	ctx := context.Background()
	f.svc.Sync(ctx)

	until, err := f.svc.Snooze(ctx, "A")
	if err != nil {
		t.Fatalf("Snooze failed: %v", err)
	}
	if !until.Equal(now.Add(snooze.Window)) {
		t.Errorf("Expected snooze until %v, got %v", now.Add(snooze.Window), until)
	}
	if !f.registry.Contains("A") {
		t.Error("Expected the alarm to stay active after a snooze")
	}

	f.svc.AlarmClosed(ctx, "A")
	if f.registry.Contains("A") {
		t.Error("Expected AlarmClosed to deactivate the alarm")
	}
}

func TestUpdateSettings(t *testing.T) {
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.Local)
	f := newFixture(t, []model.Task{{GUID: "A", Due: due(now.Add(20 * time.Minute))}})
	ctx := context.Background()

	f.svc.Sync(ctx)
	if len(f.presence.triggered) != 0 {
		t.Fatalf("Expected nothing at a 15 minute offset, got %v", f.presence.triggered)
	}

	if err := f.svc.UpdateSettings(ctx, config.Settings{AlertOffset: 30}); err != nil {
		t.Fatalf("UpdateSettings failed: %v", err)
	}
	if got := f.svc.Settings().AlertOffset; got != 30 {
		t.Errorf("Expected offset 30, got %d", got)
	}
	if len(f.presence.triggered) != 1 {
		t.Errorf("Expected the new offset to apply at once, got %v", f.presence.triggered)
	}

	if err := f.svc.UpdateSettings(ctx, config.Settings{AlertOffset: 0}); err == nil {
		t.Error("Expected a zero offset to be rejected")
	}
}

func TestStatus(t *testing.T) {
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.Local)
	f := newFixture(t, []model.Task{
		{GUID: "A", Summary: "Send report", Due: due(now)},
		{GUID: "B", Due: due(now.Add(time.Hour))},
	})
	ctx := context.Background()
	f.svc.Sync(ctx)
	f.svc.Snooze(ctx, "B")

	st := f.svc.Status()
	if !st.Authorized || !st.BrowserConnected {
		t.Errorf("Expected authorized and connected, got %+v", st)
	}
	if st.Tasks != 2 || st.LastSync == nil {
		t.Errorf("Expected 2 tasks and a sync time, got %d %v", st.Tasks, st.LastSync)
	}
	if len(st.ActiveAlarms) != 1 || st.ActiveAlarms[0].GUID != "A" || st.ActiveAlarms[0].Summary != "Send report" {
		t.Errorf("Expected A active, got %+v", st.ActiveAlarms)
	}
	if _, ok := st.Snoozed["B"]; !ok {
		t.Errorf("Expected B snoozed, got %v", st.Snoozed)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	f := newFixture(t, nil)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- f.svc.Run(ctx) }()

	deadline := time.After(2 * time.Second)
	for !f.store.Has(state.KeyLastSync) {
		select {
		case <-deadline:
			t.Fatal("Expected the first tick to sync")
		case <-time.After(10 * time.Millisecond):
		}
	}
	cancel()
	if err := <-done; err != nil {
		t.Errorf("Run returned %v", err)
	}
	if _, err := f.store.GetString(state.KeyDeviceID); err != nil {
		t.Errorf("Expected a device id, got %v", err)
	}
}
