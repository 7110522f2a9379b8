package presence

import (
	"context"
	"errors"
	"time"

	"github.com/charmbracelet/log"

	"github.com/harrisonrobin/larkalarm/pkg/alarm"
	"github.com/harrisonrobin/larkalarm/pkg/messages"
	"github.com/harrisonrobin/larkalarm/pkg/model"
	"github.com/harrisonrobin/larkalarm/pkg/surface"
)

// Snoozer records a dismissal.
type Snoozer interface {
	Snooze(guid string, now time.Time) (time.Time, error)
}

// Manager reconciles the registry's active alarms with what the browser
// shows. Browser failures are logged and otherwise ignored.
type Manager struct {
	browser  Browser
	registry *alarm.Registry
	snoozes  Snoozer
	picker   messages.Picker
	apiBase  string
	logger   *log.Logger
	now      func() time.Time
}

// NewManager wires a presence manager. apiBase is the local HTTP API the
// alarm surfaces call back into.
func NewManager(browser Browser, registry *alarm.Registry, snoozes Snoozer, picker messages.Picker, apiBase string, logger *log.Logger) *Manager {
	if logger == nil {
		logger = log.Default()
	}
	return &Manager{
		browser:  browser,
		registry: registry,
		snoozes:  snoozes,
		picker:   picker,
		apiBase:  apiBase,
		logger:   logger,
		now:      time.Now,
	}
}

// Trigger activates task and makes it visible: on the focused tab when it
// is eligible, otherwise in a fallback window the first time only. With no
// browser attached the task is left inactive so a later tick retries it.
func (m *Manager) Trigger(ctx context.Context, task model.Task) {
	tab, ok, err := m.browser.ActiveTab(ctx)
	if errors.Is(err, ErrNotConnected) {
		m.logger.Debug("no browser attached, alarm deferred", "guid", task.GUID)
		return
	}
	if err != nil {
		m.logger.Debug("active tab query failed", "err", err)
	}

	isNew := m.registry.Add(task)
	if err == nil && ok && Eligible(tab.URL) {
		m.ensureOnTab(ctx, tab.ID, task)
		return
	}
	if isNew {
		m.openFallback(ctx, task)
	}
}

// ensureOnTab draws task's overlay in tabID, loading the renderer and
// retrying once if the tab had none.
func (m *Manager) ensureOnTab(ctx context.Context, tabID string, task model.Task) {
	st, active := m.registry.Get(task.GUID)
	if !active {
		return
	}
	task = st.Task

	tab, err := m.browser.Tab(ctx, tabID)
	if err != nil || !Eligible(tab.URL) {
		return
	}

	a := surface.NewAlarm(task, m.now(), m.picker, m.apiBase)
	if err := m.browser.ShowAlarm(ctx, tabID, a); err == nil {
		m.registry.MarkTab(task.GUID, tabID)
		return
	}

	if err := m.browser.InjectOverlay(ctx, tabID); err != nil {
		m.logger.Debug("overlay injection failed", "tab", tabID, "err", err)
		return
	}
	if err := m.browser.ShowAlarm(ctx, tabID, a); err != nil {
		m.logger.Debug("show alarm failed after injection", "tab", tabID, "guid", task.GUID, "err", err)
		return
	}
	m.registry.MarkTab(task.GUID, tabID)
}

func (m *Manager) ensureAllOnTab(ctx context.Context, tabID string) {
	for _, task := range m.registry.Tasks() {
		m.ensureOnTab(ctx, tabID, task)
	}
}

// TabActivated re-displays every active alarm on the newly focused tab.
func (m *Manager) TabActivated(ctx context.Context, tabID string) {
	m.ensureAllOnTab(ctx, tabID)
}

// TabUpdated re-displays every active alarm once tab finishes loading.
func (m *Manager) TabUpdated(ctx context.Context, tabID, status string, tab Tab) {
	if status != StatusComplete || !Eligible(tab.URL) {
		return
	}
	m.ensureAllOnTab(ctx, tabID)
}

// WindowRemoved forgets a fallback window closed by the user. The alarm
// stays active.
func (m *Manager) WindowRemoved(windowID string) {
	if guid, ok := m.registry.ForgetWindow(windowID); ok {
		m.logger.Debug("fallback window closed", "guid", guid, "window", windowID)
	}
}

// Closed deactivates guid and tears down every surface showing it.
func (m *Manager) Closed(ctx context.Context, guid string) {
	st, ok := m.registry.Remove(guid)
	if ok {
		m.logger.Info("alarm closed", "guid", guid)
	}

	tabs, err := m.browser.Tabs(ctx)
	if err != nil {
		m.logger.Debug("tab listing failed", "err", err)
	}
	for _, tab := range tabs {
		if !Eligible(tab.URL) {
			continue
		}
		if err := m.browser.RemoveAlarm(ctx, tab.ID, guid); err != nil {
			m.logger.Debug("remove alarm failed", "tab", tab.ID, "err", err)
		}
	}

	if ok && st.WindowID != "" {
		if err := m.browser.CloseWindow(ctx, st.WindowID); err != nil {
			m.logger.Debug("close fallback window failed", "window", st.WindowID, "err", err)
		}
	}
}

// Dismiss snoozes guid and closes its alarm.
func (m *Manager) Dismiss(ctx context.Context, guid string) error {
	until, err := m.snoozes.Snooze(guid, m.now())
	if err != nil {
		return err
	}
	m.logger.Info("alarm snoozed", "guid", guid, "until", until.Format(time.Kitchen))
	m.Closed(ctx, guid)
	return nil
}

// Reset forgets every active alarm and tracked window without touching
// what is on screen.
func (m *Manager) Reset() {
	m.registry.Clear()
}

func (m *Manager) openFallback(ctx context.Context, task model.Task) {
	if _, ok := m.registry.Window(task.GUID); ok {
		return
	}

	var parent *surface.WindowBounds
	if b, ok, err := m.browser.FocusedWindow(ctx); err == nil && ok {
		parent = &b
	}
	bounds := surface.FallbackBounds(parent)
	url := surface.FallbackURL(m.apiBase, task)

	windowID, err := m.browser.OpenWindow(ctx, url, bounds)
	if err != nil {
		m.logger.Warn("could not open fallback window", "guid", task.GUID, "err", err)
		return
	}
	if !m.registry.SetWindow(task.GUID, windowID) {
		// Closed or already shown elsewhere while the window was opening.
		_ = m.browser.CloseWindow(ctx, windowID)
		return
	}
	m.logger.Info("fallback window opened", "guid", task.GUID, "window", windowID)
}

// HandleEvent applies one browser event.
func (m *Manager) HandleEvent(ctx context.Context, ev Event) {
	switch ev.Kind {
	case TabActivated:
		m.TabActivated(ctx, ev.TabID)
	case TabUpdated:
		tab := Tab{ID: ev.TabID}
		if ev.Tab != nil {
			tab = *ev.Tab
		}
		m.TabUpdated(ctx, ev.TabID, ev.Status, tab)
	case WindowRemoved:
		m.WindowRemoved(ev.WindowID)
	case AlarmDismissed:
		if err := m.Dismiss(ctx, ev.GUID); err != nil {
			m.logger.Warn("could not dismiss alarm", "guid", ev.GUID, "err", err)
		}
	default:
		m.logger.Debug("ignoring browser event", "kind", ev.Kind)
	}
}

// Watch applies browser events until ctx is done or the event channel
// closes.
func (m *Manager) Watch(ctx context.Context) {
	events := m.browser.Events()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			m.HandleEvent(ctx, ev)
		}
	}
}
