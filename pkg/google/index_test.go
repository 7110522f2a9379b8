package google

import (
	"testing"

	"github.com/harrisonrobin/larkalarm/pkg/state"
)

func TestEventIndexPersistence(t *testing.T) {
	store, err := state.Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	idx, err := LoadEventIndex(store)
	if err != nil {
		t.Fatalf("LoadEventIndex failed: %v", err)
	}
	if idx.Len() != 0 {
		t.Fatalf("Expected empty index, got %d", idx.Len())
	}

	idx.Set("a", "ev1")
	idx.Set("b", "ev2")
	idx.Remove("b")
	if err := idx.Save(); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	reloaded, err := LoadEventIndex(store)
	if err != nil {
		t.Fatalf("LoadEventIndex failed: %v", err)
	}
	if got := reloaded.Get("a"); got != "ev1" {
		t.Errorf("Expected ev1, got %q", got)
	}
	if got := reloaded.Get("b"); got != "" {
		t.Errorf("Expected b to be removed, got %q", got)
	}

	// Clean saves are no-ops.
	if err := store.Remove(state.KeyCalendarIndex); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if err := reloaded.Save(); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if store.Has(state.KeyCalendarIndex) {
		t.Error("Expected a clean index not to be written")
	}
}
