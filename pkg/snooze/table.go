package snooze

import (
	"errors"
	"sync"
	"time"

	"github.com/harrisonrobin/larkalarm/pkg/state"
)

// Window is how long a dismissed alarm stays quiet.
const Window = 5 * time.Minute

// Table maps task GUIDs to the time their alarm may fire again. Entries are
// persisted as epoch milliseconds under state.KeySnoozeList.
type Table struct {
	store   *state.Store
	mu      sync.Mutex
	entries map[string]int64
}

// NewTable loads the snooze list from store. A missing list starts empty.
func NewTable(store *state.Store) (*Table, error) {
	t := &Table{store: store, entries: make(map[string]int64)}
	if err := store.GetJSON(state.KeySnoozeList, &t.entries); err != nil && !errors.Is(err, state.ErrNotFound) {
		return nil, err
	}
	if t.entries == nil {
		t.entries = make(map[string]int64)
	}
	return t, nil
}

// Snooze suppresses guid until now+Window and returns that time.
func (t *Table) Snooze(guid string, now time.Time) (time.Time, error) {
	until := now.Add(Window)
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries[guid] = until.UnixMilli()
	return until, t.saveLocked()
}

// Until returns the suppress-until time for guid, zero if none.
func (t *Table) Until(guid string) time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	ms, ok := t.entries[guid]
	if !ok {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

// IsSnoozed reports whether guid is still inside its snooze window. The task
// becomes eligible again once now passes the stored time.
func (t *Table) IsSnoozed(guid string, now time.Time) bool {
	until := t.Until(guid)
	return !until.IsZero() && now.UnixMilli() <= until.UnixMilli()
}

// All returns a copy of the current entries.
func (t *Table) All() map[string]time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]time.Time, len(t.entries))
	for guid, ms := range t.entries {
		out[guid] = time.UnixMilli(ms)
	}
	return out
}

// Clear forgets every snooze.
func (t *Table) Clear() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries = make(map[string]int64)
	return t.saveLocked()
}

// Sweep drops entries whose window has passed and returns their GUIDs.
func (t *Table) Sweep(now time.Time) ([]string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	var swept []string
	for guid, ms := range t.entries {
		if ms < now.UnixMilli() {
			swept = append(swept, guid)
			delete(t.entries, guid)
		}
	}
	if len(swept) == 0 {
		return nil, nil
	}
	return swept, t.saveLocked()
}

func (t *Table) saveLocked() error {
	return t.store.SetJSON(state.KeySnoozeList, t.entries)
}
