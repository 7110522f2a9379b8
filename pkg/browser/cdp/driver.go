// Package cdp drives a Chrome instance over the DevTools protocol. Page
// targets are treated as tabs and fallback windows are popup targets the
// driver created itself.
package cdp

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	cdpproto "github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/browser"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"

	"github.com/harrisonrobin/larkalarm/pkg/presence"
	"github.com/harrisonrobin/larkalarm/pkg/surface"
)

const (
	pollInterval = 2 * time.Second
	eventBuffer  = 64
)

// Options select how Chrome is reached. RemoteURL wins over launching.
type Options struct {
	RemoteURL  string
	ExecPath   string
	ProfileDir string
	Headless   bool
}

type attached struct {
	ctx    context.Context
	cancel context.CancelFunc
}

// Driver implements presence.Browser with chromedp.
type Driver struct {
	logger *log.Logger

	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc

	mu      sync.Mutex
	targets map[target.ID]attached
	windows map[string]target.ID
	active  target.ID

	events chan presence.Event
}

var _ presence.Browser = (*Driver)(nil)

func allocatorOptions(opts Options) []chromedp.ExecAllocatorOption {
	o := []chromedp.ExecAllocatorOption{
		chromedp.NoFirstRun,
		chromedp.NoDefaultBrowserCheck,
		chromedp.Flag("disable-infobars", true),
		chromedp.Flag("disable-popup-blocking", true),
		chromedp.Flag("disable-session-crashed-bubble", true),
		chromedp.Flag("hide-crash-restore-bubble", true),
		chromedp.WindowSize(1366, 768),
	}
	if opts.ProfileDir != "" {
		o = append(o, chromedp.UserDataDir(opts.ProfileDir))
	}
	if opts.ExecPath != "" {
		o = append(o, chromedp.ExecPath(opts.ExecPath))
	}
	if opts.Headless {
		o = append(o, chromedp.Headless)
	} else {
		o = append(o, chromedp.Flag("headless", false))
	}
	return o
}

// New connects to or launches Chrome and starts watching its targets.
func New(ctx context.Context, opts Options, logger *log.Logger) (*Driver, error) {
	if logger == nil {
		logger = log.Default()
	}
	d := &Driver{
		logger:  logger,
		targets: make(map[target.ID]attached),
		windows: make(map[string]target.ID),
		events:  make(chan presence.Event, eventBuffer),
	}

	var allocCtx context.Context
	if opts.RemoteURL != "" {
		logger.Info("connecting to Chrome", "url", opts.RemoteURL)
		allocCtx, d.allocCancel = chromedp.NewRemoteAllocator(ctx, opts.RemoteURL)
	} else {
		logger.Info("launching Chrome", "profile", opts.ProfileDir, "headless", opts.Headless)
		allocCtx, d.allocCancel = chromedp.NewExecAllocator(ctx, allocatorOptions(opts)...)
	}
	d.browserCtx, d.browserCancel = chromedp.NewContext(allocCtx)

	if err := chromedp.Run(d.browserCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		return target.SetDiscoverTargets(true).Do(d.browserExec(ctx))
	})); err != nil {
		d.Close()
		return nil, fmt.Errorf("cannot start Chrome: %w", err)
	}

	chromedp.ListenBrowser(d.browserCtx, d.onBrowserEvent)
	go d.pollActive()
	return d, nil
}

// Close shuts the browser connection down.
func (d *Driver) Close() {
	if d.browserCancel != nil {
		d.browserCancel()
	}
	if d.allocCancel != nil {
		d.allocCancel()
	}
}

func (d *Driver) Events() <-chan presence.Event {
	return d.events
}

func (d *Driver) browserExec(ctx context.Context) context.Context {
	return cdpproto.WithExecutor(ctx, chromedp.FromContext(d.browserCtx).Browser)
}

func (d *Driver) emit(ev presence.Event) {
	select {
	case d.events <- ev:
	default:
		d.logger.Warn("dropping browser event, queue full", "kind", ev.Kind)
	}
}

// onBrowserEvent runs on chromedp's event goroutine and must not block.
func (d *Driver) onBrowserEvent(ev any) {
	switch e := ev.(type) {
	case *target.EventTargetInfoChanged:
		info := e.TargetInfo
		if info.Type != "page" || d.isPopup(info.TargetID) {
			return
		}
		tab := toTab(info)
		d.emit(presence.Event{Kind: presence.TabUpdated, TabID: tab.ID, Status: presence.StatusComplete, Tab: &tab})
	case *target.EventTargetDestroyed:
		d.mu.Lock()
		if t, ok := d.targets[e.TargetID]; ok {
			t.cancel()
			delete(d.targets, e.TargetID)
		}
		var windowID string
		for wid, tid := range d.windows {
			if tid == e.TargetID {
				windowID = wid
				delete(d.windows, wid)
				break
			}
		}
		d.mu.Unlock()
		if windowID != "" {
			d.emit(presence.Event{Kind: presence.WindowRemoved, WindowID: windowID})
		}
	}
}

// pollActive emits TabActivated when the focused page changes; CDP has no
// event for tab activation.
func (d *Driver) pollActive() {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-d.browserCtx.Done():
			return
		case <-ticker.C:
			tab, ok, err := d.ActiveTab(d.browserCtx)
			if err != nil || !ok {
				continue
			}
			d.mu.Lock()
			changed := d.active != target.ID(tab.ID)
			d.active = target.ID(tab.ID)
			d.mu.Unlock()
			if changed {
				d.emit(presence.Event{Kind: presence.TabActivated, TabID: tab.ID})
			}
		}
	}
}

func (d *Driver) isPopup(id target.ID) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, tid := range d.windows {
		if tid == id {
			return true
		}
	}
	return false
}

func toTab(info *target.Info) presence.Tab {
	return presence.Tab{ID: string(info.TargetID), URL: info.URL}
}

// targetCtx returns a chromedp context attached to id, created once and
// kept until the target goes away.
func (d *Driver) targetCtx(id target.ID) context.Context {
	d.mu.Lock()
	defer d.mu.Unlock()
	if t, ok := d.targets[id]; ok {
		return t.ctx
	}
	ctx, cancel := chromedp.NewContext(d.browserCtx, chromedp.WithTargetID(id))
	chromedp.ListenTarget(ctx, func(ev any) { d.onTargetEvent(id, ev) })
	d.targets[id] = attached{ctx: ctx, cancel: cancel}
	return ctx
}

// onTargetEvent turns overlay dismissals reported through the page binding
// into presence events. Page CSP does not apply to bindings.
func (d *Driver) onTargetEvent(id target.ID, ev any) {
	e, ok := ev.(*runtime.EventBindingCalled)
	if !ok || e.Name != surface.DismissBinding || e.Payload == "" {
		return
	}
	d.emit(presence.Event{Kind: presence.AlarmDismissed, TabID: string(id), GUID: e.Payload})
}

// run executes actions in the target, bounded by ctx.
func (d *Driver) run(ctx context.Context, id target.ID, actions ...chromedp.Action) error {
	tctx := d.targetCtx(id)
	done := make(chan error, 1)
	go func() { done <- chromedp.Run(tctx, actions...) }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Driver) pages(ctx context.Context) ([]*target.Info, error) {
	infos, err := target.GetTargets().Do(d.browserExec(ctx))
	if err != nil {
		return nil, err
	}
	var out []*target.Info
	for _, info := range infos {
		if info.Type == "page" && !d.isPopup(info.TargetID) {
			out = append(out, info)
		}
	}
	return out, nil
}

func (d *Driver) Tabs(ctx context.Context) ([]presence.Tab, error) {
	infos, err := d.pages(ctx)
	if err != nil {
		return nil, err
	}
	tabs := make([]presence.Tab, 0, len(infos))
	for _, info := range infos {
		tabs = append(tabs, toTab(info))
	}
	return tabs, nil
}

func (d *Driver) Tab(ctx context.Context, tabID string) (presence.Tab, error) {
	info, err := target.GetTargetInfo().WithTargetID(target.ID(tabID)).Do(d.browserExec(ctx))
	if err != nil || info == nil {
		return presence.Tab{}, presence.ErrTabNotFound
	}
	return toTab(info), nil
}

// ActiveTab picks the page that has focus, falling back to the first
// visible page.
func (d *Driver) ActiveTab(ctx context.Context) (presence.Tab, bool, error) {
	infos, err := d.pages(ctx)
	if err != nil {
		return presence.Tab{}, false, err
	}
	var visible *target.Info
	for _, info := range infos {
		var state string
		err := d.run(ctx, info.TargetID, chromedp.Evaluate(
			`document.hasFocus() ? "focused" : document.visibilityState`, &state))
		if err != nil {
			continue
		}
		if state == "focused" {
			tab := toTab(info)
			tab.Active = true
			return tab, true, nil
		}
		if state == "visible" && visible == nil {
			visible = info
		}
	}
	if visible == nil {
		return presence.Tab{}, false, nil
	}
	tab := toTab(visible)
	tab.Active = true
	return tab, true, nil
}

func showExpression(a surface.Alarm) (string, error) {
	show, err := surface.ShowScript(a)
	if err != nil {
		return "", err
	}
	return `typeof window.__larkAlarm === "undefined" ? false : ` + show, nil
}

func (d *Driver) ShowAlarm(ctx context.Context, tabID string, a surface.Alarm) error {
	expr, err := showExpression(a)
	if err != nil {
		return err
	}
	var shown bool
	if err := d.run(ctx, target.ID(tabID), chromedp.Evaluate(expr, &shown)); err != nil {
		return err
	}
	if !shown {
		return presence.ErrNoReceiver
	}
	return nil
}

// InjectOverlay installs the dismiss binding, which survives navigation,
// then evaluates the renderer.
func (d *Driver) InjectOverlay(ctx context.Context, tabID string) error {
	return d.run(ctx, target.ID(tabID),
		chromedp.ActionFunc(func(ctx context.Context) error {
			return runtime.AddBinding(surface.DismissBinding).Do(ctx)
		}),
		chromedp.Evaluate(string(surface.ContentScript()), nil),
	)
}

func (d *Driver) RemoveAlarm(ctx context.Context, tabID, guid string) error {
	return d.run(ctx, target.ID(tabID), chromedp.Evaluate(surface.RemoveScript(guid), nil))
}

func (d *Driver) FocusedWindow(ctx context.Context) (surface.WindowBounds, bool, error) {
	tab, ok, err := d.ActiveTab(ctx)
	if err != nil || !ok {
		return surface.WindowBounds{}, false, err
	}
	_, bounds, err := browser.GetWindowForTarget().WithTargetID(target.ID(tab.ID)).Do(d.browserExec(ctx))
	if err != nil {
		return surface.WindowBounds{}, false, err
	}
	return surface.WindowBounds{
		Left:   int(bounds.Left),
		Top:    int(bounds.Top),
		Width:  int(bounds.Width),
		Height: int(bounds.Height),
	}, true, nil
}

func (d *Driver) OpenWindow(ctx context.Context, url string, b surface.WindowBounds) (string, error) {
	exec := d.browserExec(ctx)
	id, err := target.CreateTarget(url).WithNewWindow(true).Do(exec)
	if err != nil {
		return "", fmt.Errorf("create window: %w", err)
	}
	windowID, _, err := browser.GetWindowForTarget().WithTargetID(id).Do(exec)
	if err != nil {
		return "", fmt.Errorf("locate window: %w", err)
	}
	err = browser.SetWindowBounds(windowID, &browser.Bounds{
		Left:   int64(b.Left),
		Top:    int64(b.Top),
		Width:  int64(b.Width),
		Height: int64(b.Height),
	}).Do(exec)
	if err != nil {
		d.logger.Debug("could not position fallback window", "err", err)
	}

	key := strconv.FormatInt(int64(windowID), 10)
	d.mu.Lock()
	d.windows[key] = id
	d.mu.Unlock()
	return key, nil
}

func (d *Driver) CloseWindow(ctx context.Context, windowID string) error {
	d.mu.Lock()
	id, ok := d.windows[windowID]
	d.mu.Unlock()
	if !ok {
		return errors.New("unknown window " + windowID)
	}
	return d.run(ctx, id, page.Close())
}
