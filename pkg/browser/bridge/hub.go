package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"

	"github.com/harrisonrobin/larkalarm/pkg/presence"
	"github.com/harrisonrobin/larkalarm/pkg/surface"
)

// ErrNotConnected is returned while no extension is attached.
var ErrNotConnected = presence.ErrNotConnected

const (
	DefaultTimeout = 5 * time.Second

	pingInterval = 30 * time.Second
	readTimeout  = 90 * time.Second
	writeTimeout = 10 * time.Second
	eventBuffer  = 64
)

// Hub accepts one extension connection at a time and implements
// presence.Browser on top of it. A newer connection replaces the old one.
type Hub struct {
	logger    *log.Logger
	scriptURL string
	timeout   time.Duration
	upgrader  websocket.Upgrader

	mu      sync.Mutex
	conn    *websocket.Conn
	pending map[string]chan frame
	writeMu sync.Mutex

	nextID atomic.Uint64
	events chan presence.Event
}

var _ presence.Browser = (*Hub)(nil)

// NewHub creates a hub. scriptURL is where the extension fetches the
// overlay renderer when asked to inject it.
func NewHub(scriptURL string, logger *log.Logger) *Hub {
	if logger == nil {
		logger = log.Default()
	}
	return &Hub{
		logger:    logger,
		scriptURL: scriptURL,
		timeout:   DefaultTimeout,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     checkOrigin,
		},
		pending: make(map[string]chan frame),
		events:  make(chan presence.Event, eventBuffer),
	}
}

// checkOrigin admits extension pages and non-browser clients only.
func checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	return origin == "" ||
		strings.HasPrefix(origin, "chrome-extension://") ||
		strings.HasPrefix(origin, "moz-extension://")
}

func (h *Hub) Connected() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.conn != nil
}

func (h *Hub) Events() <-chan presence.Event {
	return h.events
}

// ServeHTTP upgrades the request and serves the connection until it drops.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "err", err)
		return
	}

	h.mu.Lock()
	old := h.conn
	h.conn = conn
	if old != nil {
		// Responses to these can only arrive on the old connection.
		h.failPending()
	}
	h.mu.Unlock()
	if old != nil {
		h.logger.Info("replacing browser extension connection")
		old.Close()
	}
	h.logger.Info("browser extension connected", "remote", r.RemoteAddr)

	done := make(chan struct{})
	go h.keepAlive(conn, done)
	h.readLoop(conn)
	close(done)

	h.mu.Lock()
	if h.conn == conn {
		h.conn = nil
		h.failPending()
	}
	h.mu.Unlock()
	conn.Close()
	h.logger.Info("browser extension disconnected")
}

// failPending wakes every waiting call with ErrNotConnected. h.mu must be
// held.
func (h *Hub) failPending() {
	for id, ch := range h.pending {
		close(ch)
		delete(h.pending, id)
	}
}

func (h *Hub) keepAlive(conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			h.writeMu.Lock()
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout))
			h.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

func (h *Hub) readLoop(conn *websocket.Conn) {
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readTimeout))
	})
	for {
		conn.SetReadDeadline(time.Now().Add(readTimeout))
		_, data, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.Debug("websocket read ended", "err", err)
			}
			return
		}
		var f frame
		if err := json.Unmarshal(data, &f); err != nil {
			h.logger.Warn("invalid extension frame", "err", err)
			continue
		}
		h.dispatch(f)
	}
}

func (h *Hub) dispatch(f frame) {
	switch f.Type {
	case frameResponse:
		h.mu.Lock()
		ch, ok := h.pending[f.ID]
		delete(h.pending, f.ID)
		h.mu.Unlock()
		if ok {
			ch <- f
		}
	case frameEvent:
		if f.Event == nil {
			return
		}
		select {
		case h.events <- *f.Event:
		default:
			h.logger.Warn("dropping browser event, queue full", "kind", f.Event.Kind)
		}
	case frameHello:
		h.logger.Info("browser extension ready", "version", f.Version)
	default:
		h.logger.Debug("ignoring extension frame", "type", f.Type)
	}
}

// call sends req and waits for the matching response.
func (h *Hub) call(ctx context.Context, req request) (frame, error) {
	req.ID = strconv.FormatUint(h.nextID.Add(1), 10)
	ch := make(chan frame, 1)

	h.mu.Lock()
	conn := h.conn
	if conn == nil {
		h.mu.Unlock()
		return frame{}, ErrNotConnected
	}
	h.pending[req.ID] = ch
	h.mu.Unlock()

	cleanup := func() {
		h.mu.Lock()
		delete(h.pending, req.ID)
		h.mu.Unlock()
	}

	h.writeMu.Lock()
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	err := conn.WriteJSON(req)
	h.writeMu.Unlock()
	if err != nil {
		cleanup()
		return frame{}, fmt.Errorf("send %s: %w", req.Type, err)
	}

	timer := time.NewTimer(h.timeout)
	defer timer.Stop()
	select {
	case f, ok := <-ch:
		if !ok {
			return frame{}, ErrNotConnected
		}
		if !f.OK {
			return f, responseError(req.Type, f.Error)
		}
		return f, nil
	case <-timer.C:
		cleanup()
		return frame{}, fmt.Errorf("%s: timed out after %s", req.Type, h.timeout)
	case <-ctx.Done():
		cleanup()
		return frame{}, ctx.Err()
	}
}

func responseError(op, code string) error {
	switch code {
	case errNoReceiver:
		return presence.ErrNoReceiver
	case errTabNotFound:
		return presence.ErrTabNotFound
	case "":
		return fmt.Errorf("%s: extension reported failure", op)
	default:
		return fmt.Errorf("%s: %s", op, code)
	}
}

func (h *Hub) ActiveTab(ctx context.Context) (presence.Tab, bool, error) {
	f, err := h.call(ctx, request{Type: reqActiveTab})
	if err != nil {
		return presence.Tab{}, false, err
	}
	if f.Tab == nil {
		return presence.Tab{}, false, nil
	}
	return *f.Tab, true, nil
}

func (h *Hub) Tab(ctx context.Context, tabID string) (presence.Tab, error) {
	f, err := h.call(ctx, request{Type: reqGetTab, TabID: tabID})
	if err != nil {
		return presence.Tab{}, err
	}
	if f.Tab == nil {
		return presence.Tab{}, presence.ErrTabNotFound
	}
	return *f.Tab, nil
}

func (h *Hub) Tabs(ctx context.Context) ([]presence.Tab, error) {
	f, err := h.call(ctx, request{Type: reqQueryTabs})
	if err != nil {
		return nil, err
	}
	return f.Tabs, nil
}

func (h *Hub) ShowAlarm(ctx context.Context, tabID string, a surface.Alarm) error {
	_, err := h.call(ctx, request{Type: reqShowAlarm, TabID: tabID, Alarm: &a})
	return err
}

func (h *Hub) InjectOverlay(ctx context.Context, tabID string) error {
	_, err := h.call(ctx, request{Type: reqInject, TabID: tabID, ScriptURL: h.scriptURL})
	return err
}

func (h *Hub) RemoveAlarm(ctx context.Context, tabID, guid string) error {
	_, err := h.call(ctx, request{Type: reqRemoveAlarm, TabID: tabID, GUID: guid})
	return err
}

func (h *Hub) FocusedWindow(ctx context.Context) (surface.WindowBounds, bool, error) {
	f, err := h.call(ctx, request{Type: reqFocusedWindow})
	if err != nil {
		return surface.WindowBounds{}, false, err
	}
	if f.Bounds == nil {
		return surface.WindowBounds{}, false, nil
	}
	return *f.Bounds, true, nil
}

func (h *Hub) OpenWindow(ctx context.Context, url string, bounds surface.WindowBounds) (string, error) {
	f, err := h.call(ctx, request{Type: reqCreateWindow, URL: url, Bounds: &bounds})
	if err != nil {
		return "", err
	}
	if f.WindowID == "" {
		return "", fmt.Errorf("%s: no window id in response", reqCreateWindow)
	}
	return f.WindowID, nil
}

func (h *Hub) CloseWindow(ctx context.Context, windowID string) error {
	_, err := h.call(ctx, request{Type: reqRemoveWindow, WindowID: windowID})
	return err
}
