// Package bridge drives the browser through a companion extension that
// connects to the daemon over a websocket.
package bridge

import (
	"github.com/harrisonrobin/larkalarm/pkg/presence"
	"github.com/harrisonrobin/larkalarm/pkg/surface"
)

// Request types understood by the extension.
const (
	reqActiveTab     = "tabs.active"
	reqGetTab        = "tabs.get"
	reqQueryTabs     = "tabs.query"
	reqShowAlarm     = "alarm.show"
	reqInject        = "alarm.inject"
	reqRemoveAlarm   = "alarm.remove"
	reqFocusedWindow = "windows.focused"
	reqCreateWindow  = "windows.create"
	reqRemoveWindow  = "windows.remove"
)

// Frame types sent by the extension.
const (
	frameResponse = "response"
	frameEvent    = "event"
	frameHello    = "hello"
)

// Error codes the extension reports.
const (
	errNoReceiver  = "no_receiver"
	errTabNotFound = "tab_not_found"
)

type request struct {
	ID        string                `json:"id"`
	Type      string                `json:"type"`
	TabID     string                `json:"tab_id,omitempty"`
	WindowID  string                `json:"window_id,omitempty"`
	GUID      string                `json:"guid,omitempty"`
	URL       string                `json:"url,omitempty"`
	ScriptURL string                `json:"script_url,omitempty"`
	Alarm     *surface.Alarm        `json:"alarm,omitempty"`
	Bounds    *surface.WindowBounds `json:"bounds,omitempty"`
}

// frame is anything the extension sends. Responses carry the request id.
type frame struct {
	ID       string                `json:"id,omitempty"`
	Type     string                `json:"type"`
	OK       bool                  `json:"ok"`
	Error    string                `json:"error,omitempty"`
	Found    bool                  `json:"found,omitempty"`
	Tab      *presence.Tab         `json:"tab,omitempty"`
	Tabs     []presence.Tab        `json:"tabs,omitempty"`
	WindowID string                `json:"window_id,omitempty"`
	Bounds   *surface.WindowBounds `json:"bounds,omitempty"`
	Event    *presence.Event       `json:"event,omitempty"`
	Version  string                `json:"version,omitempty"`
}
