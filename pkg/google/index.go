package google

import (
	"errors"
	"sync"

	"github.com/harrisonrobin/larkalarm/pkg/state"
)

// EventIndex maps task GUIDs to calendar event ids. It is loaded from and
// saved to the state store under calendar_index.
type EventIndex struct {
	store    *state.Store
	mu       sync.RWMutex
	mappings map[string]string
	dirty    bool
}

func LoadEventIndex(store *state.Store) (*EventIndex, error) {
	idx := &EventIndex{store: store, mappings: make(map[string]string)}
	err := store.GetJSON(state.KeyCalendarIndex, &idx.mappings)
	if err != nil && !errors.Is(err, state.ErrNotFound) {
		return nil, err
	}
	if idx.mappings == nil {
		idx.mappings = make(map[string]string)
	}
	return idx, nil
}

// Save writes the index back if it changed since the last save.
func (idx *EventIndex) Save() error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if !idx.dirty {
		return nil
	}
	if err := idx.store.SetJSON(state.KeyCalendarIndex, idx.mappings); err != nil {
		return err
	}
	idx.dirty = false
	return nil
}

func (idx *EventIndex) Get(guid string) string {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.mappings[guid]
}

func (idx *EventIndex) Set(guid, eventID string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if idx.mappings[guid] != eventID {
		idx.mappings[guid] = eventID
		idx.dirty = true
	}
}

func (idx *EventIndex) Remove(guid string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if _, ok := idx.mappings[guid]; ok {
		delete(idx.mappings, guid)
		idx.dirty = true
	}
}

// GUIDs lists every indexed task.
func (idx *EventIndex) GUIDs() []string {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	out := make([]string, 0, len(idx.mappings))
	for guid := range idx.mappings {
		out = append(out, guid)
	}
	return out
}

func (idx *EventIndex) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.mappings)
}
