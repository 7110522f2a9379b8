// Package background runs the daemon: the periodic sync and evaluation loop
// and the operations the local HTTP API exposes.
package background

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/harrisonrobin/larkalarm/pkg/alarm"
	"github.com/harrisonrobin/larkalarm/pkg/auth"
	"github.com/harrisonrobin/larkalarm/pkg/config"
	"github.com/harrisonrobin/larkalarm/pkg/model"
	"github.com/harrisonrobin/larkalarm/pkg/presence"
	"github.com/harrisonrobin/larkalarm/pkg/server"
	"github.com/harrisonrobin/larkalarm/pkg/snooze"
	"github.com/harrisonrobin/larkalarm/pkg/state"
)

const (
	// TickInterval is the scheduling period.
	TickInterval = time.Minute
	// SyncEvery is how many ticks pass between remote fetches.
	SyncEvery = 5
)

// Authenticator is the device credential side of auth.Bridge.
type Authenticator interface {
	Authorized() bool
	RegisterDevice(ctx context.Context, proof string) error
	Token(ctx context.Context) (string, error)
	Logout() error
}

// Fetcher lists the user's incomplete tasks.
type Fetcher interface {
	FetchTasks(ctx context.Context) ([]model.Task, error)
}

// Mirror copies fetched tasks somewhere else, the Google calendar for now.
type Mirror interface {
	Mirror(ctx context.Context, tasks []model.Task) error
}

// SettingsStore reads and writes the alarm preferences.
type SettingsStore interface {
	Current() config.Config
	SaveSettings(s config.Settings) error
}

// Presence is what the service needs from presence.Manager.
type Presence interface {
	alarm.Trigger
	Closed(ctx context.Context, guid string)
	Dismiss(ctx context.Context, guid string) error
	Reset()
	Watch(ctx context.Context)
}

// Options carry the collaborators of a Service. Mirror and Connected are
// optional.
type Options struct {
	Store     *state.Store
	Auth      Authenticator
	Tasks     Fetcher
	Settings  SettingsStore
	Registry  *alarm.Registry
	Snoozes   *snooze.Table
	Presence  Presence
	Mirror    Mirror
	Connected func() bool
	Logger    *log.Logger
}

// Service implements server.Service.
type Service struct {
	store     *state.Store
	auth      Authenticator
	tasks     Fetcher
	settings  SettingsStore
	registry  *alarm.Registry
	snoozes   *snooze.Table
	presence  Presence
	mirror    Mirror
	connected func() bool
	evaluator *alarm.Evaluator
	logger    *log.Logger
	now       func() time.Time

	// syncMu serializes sync and evaluation between the ticker and the API.
	syncMu sync.Mutex
	ticks  int
}

var _ server.Service = (*Service)(nil)

func New(opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Service{
		store:     opts.Store,
		auth:      opts.Auth,
		tasks:     opts.Tasks,
		settings:  opts.Settings,
		registry:  opts.Registry,
		snoozes:   opts.Snoozes,
		presence:  opts.Presence,
		mirror:    opts.Mirror,
		connected: opts.Connected,
		evaluator: alarm.NewEvaluator(opts.Registry, opts.Snoozes, opts.Presence, logger),
		logger:    logger,
		now:       time.Now,
	}
}

// Run drives the service until ctx is cancelled. The first tick runs
// immediately and fetches.
func (s *Service) Run(ctx context.Context) error {
	deviceID, err := s.store.EnsureDeviceID()
	if err != nil {
		return fmt.Errorf("failed to initialise device id: %w", err)
	}
	s.logger.Info("alarm service started", "device_id", deviceID)

	go s.presence.Watch(ctx)

	ticker := time.NewTicker(TickInterval)
	defer ticker.Stop()

	s.Tick(ctx)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("alarm service stopped")
			return nil
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick runs one scheduling step: every SyncEvery-th tick fetches, the
// others re-evaluate the cached task list.
func (s *Service) Tick(ctx context.Context) {
	n := s.ticks
	s.ticks++

	if swept, err := s.snoozes.Sweep(s.now()); err != nil {
		s.logger.Warn("snooze sweep failed", "err", err)
	} else if len(swept) > 0 {
		s.logger.Debug("snoozes expired", "guids", swept)
	}

	if n%SyncEvery == 0 {
		s.Sync(ctx)
		return
	}
	s.Process(ctx)
}

// Refresh fetches the task list and stores it with the sync time. The
// calendar mirror, if any, is updated from the result.
func (s *Service) Refresh(ctx context.Context) ([]model.Task, error) {
	tasks, err := s.tasks.FetchTasks(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.store.SetJSON(state.KeyTasks, tasks); err != nil {
		return nil, fmt.Errorf("failed to store tasks: %w", err)
	}
	if err := s.store.SetTime(state.KeyLastSync, s.now()); err != nil {
		return nil, fmt.Errorf("failed to store sync time: %w", err)
	}
	s.logger.Info("tasks synced", "count", len(tasks))

	if s.mirror != nil {
		if err := s.mirror.Mirror(ctx, tasks); err != nil {
			s.logger.Warn("calendar mirror failed", "err", err)
		}
	}
	return tasks, nil
}

// Sync refreshes and evaluates. Failures are logged and dropped; the next
// sync tick retries.
func (s *Service) Sync(ctx context.Context) {
	s.syncMu.Lock()
	defer s.syncMu.Unlock()

	tasks, err := s.Refresh(ctx)
	if err != nil {
		if auth.IsNotAuthorized(err) {
			s.logger.Info("not logged in, skipping sync")
			return
		}
		s.logger.Error("sync failed", "err", err)
		return
	}
	s.evaluate(ctx, tasks)
}

// Process evaluates the stored task list without fetching.
func (s *Service) Process(ctx context.Context) {
	s.syncMu.Lock()
	defer s.syncMu.Unlock()

	tasks, err := s.StoredTasks()
	if err != nil {
		s.logger.Warn("could not read stored tasks", "err", err)
		return
	}
	s.evaluate(ctx, tasks)
}

func (s *Service) evaluate(ctx context.Context, tasks []model.Task) {
	settings := s.Settings().AlarmSettings()
	s.evaluator.Run(ctx, tasks, s.now(), settings)
}

// StoredTasks returns the task list from the last successful sync.
func (s *Service) StoredTasks() ([]model.Task, error) {
	var tasks []model.Task
	err := s.store.GetJSON(state.KeyTasks, &tasks)
	if errors.Is(err, state.ErrNotFound) {
		return nil, nil
	}
	return tasks, err
}

// ForceSync forgets active alarms and snoozes, then syncs.
func (s *Service) ForceSync(ctx context.Context) error {
	s.presence.Reset()
	if err := s.snoozes.Clear(); err != nil {
		return fmt.Errorf("failed to clear snoozes: %w", err)
	}
	s.Sync(ctx)
	return nil
}

func (s *Service) RegisterDevice(ctx context.Context, proof string) error {
	if err := s.auth.RegisterDevice(ctx, proof); err != nil {
		return err
	}
	go s.Sync(context.WithoutCancel(ctx))
	return nil
}

func (s *Service) Token(ctx context.Context) (string, error) {
	return s.auth.Token(ctx)
}

func (s *Service) Logout() error {
	return s.auth.Logout()
}

// Snooze suppresses guid for the snooze window without touching what is on
// screen.
func (s *Service) Snooze(_ context.Context, guid string) (time.Time, error) {
	return s.snoozes.Snooze(guid, s.now())
}

func (s *Service) AlarmClosed(ctx context.Context, guid string) {
	s.presence.Closed(ctx, guid)
}

func (s *Service) Dismiss(ctx context.Context, guid string) error {
	return s.presence.Dismiss(ctx, guid)
}

func (s *Service) Settings() config.Settings {
	return s.settings.Current().Settings()
}

// UpdateSettings persists s and re-runs a forced sync so the new
// preferences apply at once.
func (s *Service) UpdateSettings(ctx context.Context, settings config.Settings) error {
	if err := s.settings.SaveSettings(settings); err != nil {
		return err
	}
	return s.ForceSync(ctx)
}

func (s *Service) Status() server.Status {
	st := server.Status{
		Authorized:   s.auth.Authorized(),
		ActiveAlarms: []server.AlarmStatus{},
		Snoozed:      s.snoozes.All(),
	}
	if t, err := s.store.GetTime(state.KeyLastSync); err == nil {
		st.LastSync = &t
	}
	if tasks, err := s.StoredTasks(); err == nil {
		st.Tasks = len(tasks)
	}
	for _, a := range s.registry.States() {
		st.ActiveAlarms = append(st.ActiveAlarms, server.AlarmStatus{
			GUID:     a.Task.GUID,
			Summary:  a.Task.Summary,
			Due:      a.Task.Due,
			Presence: a.Presence.String(),
			Since:    a.ActivatedAt,
		})
	}
	sort.Slice(st.ActiveAlarms, func(i, j int) bool {
		return st.ActiveAlarms[i].Since.Before(st.ActiveAlarms[j].Since)
	})
	if s.connected != nil {
		st.BrowserConnected = s.connected()
	}
	return st
}

var _ Presence = (*presence.Manager)(nil)
