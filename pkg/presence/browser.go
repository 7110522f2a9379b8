// Package presence keeps exactly one visible alarm per active task in the
// user's browser: an overlay in the focused tab when it can take one,
// otherwise a standalone fallback window.
package presence

import (
	"context"
	"errors"
	"strings"

	"github.com/harrisonrobin/larkalarm/pkg/surface"
)

var (
	// ErrNoReceiver means the tab has no overlay renderer loaded.
	ErrNoReceiver = errors.New("no receiver in tab")
	// ErrTabNotFound means the tab is gone.
	ErrTabNotFound = errors.New("tab not found")
	// ErrNotConnected means the backend has no browser to talk to.
	ErrNotConnected = errors.New("browser extension not connected")
)

// Tab is a browser tab as the backend reports it.
type Tab struct {
	ID       string `json:"id"`
	WindowID string `json:"window_id,omitempty"`
	URL      string `json:"url"`
	Active   bool   `json:"active,omitempty"`
}

// Browser is the capability set the presence manager needs from a browser.
// Implementations live under pkg/browser.
type Browser interface {
	// ActiveTab returns the active tab of the last focused window.
	ActiveTab(ctx context.Context) (Tab, bool, error)
	Tab(ctx context.Context, tabID string) (Tab, error)
	Tabs(ctx context.Context) ([]Tab, error)

	// ShowAlarm asks the tab's overlay renderer to draw a. It returns
	// ErrNoReceiver when nothing in the tab is listening.
	ShowAlarm(ctx context.Context, tabID string, a surface.Alarm) error
	// InjectOverlay loads the overlay renderer into the tab.
	InjectOverlay(ctx context.Context, tabID string) error
	RemoveAlarm(ctx context.Context, tabID, guid string) error

	// FocusedWindow returns the bounds of the last focused window.
	FocusedWindow(ctx context.Context) (surface.WindowBounds, bool, error)
	OpenWindow(ctx context.Context, url string, bounds surface.WindowBounds) (string, error)
	CloseWindow(ctx context.Context, windowID string) error

	Events() <-chan Event
}

type EventKind string

const (
	TabActivated  EventKind = "tab.activated"
	TabUpdated    EventKind = "tab.updated"
	WindowRemoved EventKind = "window.removed"
	// AlarmDismissed is raised by an overlay that cannot reach the HTTP API
	// itself.
	AlarmDismissed EventKind = "alarm.dismissed"
)

// StatusComplete is the tab status reported once a page finished loading.
const StatusComplete = "complete"

// Event is a browser notification relevant to alarm presence.
type Event struct {
	Kind     EventKind `json:"kind"`
	TabID    string    `json:"tab_id,omitempty"`
	WindowID string    `json:"window_id,omitempty"`
	Status   string    `json:"status,omitempty"`
	Tab      *Tab      `json:"tab,omitempty"`
	GUID     string    `json:"guid,omitempty"`
}

var ineligiblePrefixes = []string{"chrome:", "edge:", "about:", "view-source:", "chrome-extension:"}

// Eligible reports whether a page at url can host an overlay.
func Eligible(url string) bool {
	if url == "" {
		return false
	}
	for _, p := range ineligiblePrefixes {
		if strings.HasPrefix(url, p) {
			return false
		}
	}
	return true
}
