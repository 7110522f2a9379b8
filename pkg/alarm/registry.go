package alarm

import (
	"sync"
	"time"

	"github.com/harrisonrobin/larkalarm/pkg/model"
)

// PresenceKind says where an active alarm is currently shown.
type PresenceKind int

const (
	PresenceNone PresenceKind = iota
	PresenceTab
	PresenceWindow
)

func (k PresenceKind) String() string {
	switch k {
	case PresenceTab:
		return "tab"
	case PresenceWindow:
		return "window"
	default:
		return "none"
	}
}

// State is the in-memory record of one active alarm.
type State struct {
	Task        model.Task
	Presence    PresenceKind
	TabID       string
	WindowID    string
	ActivatedAt time.Time
}

// Registry owns the set of active alarms, keyed by task GUID. It is the only
// place that decides whether a task is "already active".
type Registry struct {
	mu     sync.Mutex
	alarms map[string]*State
	now    func() time.Time
}

func NewRegistry() *Registry {
	return &Registry{alarms: make(map[string]*State), now: time.Now}
}

// Add marks task active. It returns false if the task already was, in which
// case the stored task is refreshed but presence is kept.
func (r *Registry) Add(task model.Task) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if st, ok := r.alarms[task.GUID]; ok {
		st.Task = task
		return false
	}
	r.alarms[task.GUID] = &State{Task: task, ActivatedAt: r.now()}
	return true
}

func (r *Registry) Contains(guid string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.alarms[guid]
	return ok
}

func (r *Registry) Get(guid string) (State, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.alarms[guid]
	if !ok {
		return State{}, false
	}
	return *st, true
}

// Remove deactivates guid and returns its last state.
func (r *Registry) Remove(guid string) (State, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.alarms[guid]
	if !ok {
		return State{}, false
	}
	delete(r.alarms, guid)
	return *st, true
}

// Tasks returns the active tasks ordered by due time.
func (r *Registry) Tasks() []model.Task {
	r.mu.Lock()
	tasks := make([]model.Task, 0, len(r.alarms))
	for _, st := range r.alarms {
		tasks = append(tasks, st.Task)
	}
	r.mu.Unlock()
	return model.SortByDue(tasks)
}

// States returns a snapshot of every active alarm.
func (r *Registry) States() []State {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]State, 0, len(r.alarms))
	for _, st := range r.alarms {
		out = append(out, *st)
	}
	return out
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.alarms)
}

// MarkTab records that guid was last shown as an overlay in tabID. A
// tracked fallback window is kept.
func (r *Registry) MarkTab(guid, tabID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.alarms[guid]
	if !ok {
		return
	}
	st.TabID = tabID
	if st.WindowID == "" {
		st.Presence = PresenceTab
	}
}

// SetWindow records the fallback window opened for guid. It returns false
// when guid is no longer active or already owns a window; the caller then
// owns windowID and should close it.
func (r *Registry) SetWindow(guid, windowID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.alarms[guid]
	if !ok || st.WindowID != "" {
		return false
	}
	st.WindowID = windowID
	st.Presence = PresenceWindow
	return true
}

// Window returns the fallback window tracked for guid.
func (r *Registry) Window(guid string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.alarms[guid]
	if !ok || st.WindowID == "" {
		return "", false
	}
	return st.WindowID, true
}

// ForgetWindow drops windowID from whichever alarm tracks it, returning that
// alarm's GUID. The alarm itself stays active.
func (r *Registry) ForgetWindow(windowID string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for guid, st := range r.alarms {
		if st.WindowID != windowID {
			continue
		}
		st.WindowID = ""
		if st.TabID != "" {
			st.Presence = PresenceTab
		} else {
			st.Presence = PresenceNone
		}
		return guid, true
	}
	return "", false
}

// Clear forgets every active alarm.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alarms = make(map[string]*State)
}
