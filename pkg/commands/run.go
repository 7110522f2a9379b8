package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/harrisonrobin/larkalarm/pkg/alarm"
	"github.com/harrisonrobin/larkalarm/pkg/background"
	"github.com/harrisonrobin/larkalarm/pkg/browser/bridge"
	"github.com/harrisonrobin/larkalarm/pkg/browser/cdp"
	"github.com/harrisonrobin/larkalarm/pkg/config"
	"github.com/harrisonrobin/larkalarm/pkg/google"
	"github.com/harrisonrobin/larkalarm/pkg/lark"
	"github.com/harrisonrobin/larkalarm/pkg/messages"
	"github.com/harrisonrobin/larkalarm/pkg/presence"
	"github.com/harrisonrobin/larkalarm/pkg/server"
	"github.com/harrisonrobin/larkalarm/pkg/snooze"
	"github.com/harrisonrobin/larkalarm/pkg/state"
)

func addRun(topLevel *cobra.Command, a *app) {
	headless := false
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the alarm daemon.",
		Example: `
larkalarm run
LARKALARM_BROWSER=cdp larkalarm run --headless
`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.runDaemon(ctx, headless)
		},
	}
	cmd.Flags().BoolVar(&headless, "headless", false, "Launch Chrome headless (cdp browser only).")
	topLevel.AddCommand(cmd)
}

// browserBackend is the selected presence.Browser plus what the rest of the
// daemon needs from it.
type browserBackend struct {
	browser   presence.Browser
	websocket http.Handler
	connected func() bool
	close     func()
}

func (a *app) openBrowser(ctx context.Context, cfg config.Config, apiBase string, headless bool) (*browserBackend, error) {
	switch cfg.Browser {
	case config.BrowserCDP:
		dir, err := config.Dir()
		if err != nil {
			return nil, err
		}
		d, err := cdp.New(ctx, cdp.Options{
			RemoteURL:  cfg.CDPURL,
			ExecPath:   cfg.ChromePath,
			ProfileDir: filepath.Join(dir, "chrome"),
			Headless:   headless,
		}, a.logger)
		if err != nil {
			return nil, fmt.Errorf("failed to start chrome: %w", err)
		}
		return &browserBackend{
			browser:   d,
			connected: func() bool { return true },
			close:     d.Close,
		}, nil
	default:
		hub := bridge.NewHub(apiBase+"/assets/content.js", a.logger)
		a.logger.Info("waiting for the browser extension, install it with 'larkalarm extension'", "ws", a.websocketURL())
		return &browserBackend{
			browser:   hub,
			websocket: hub,
			connected: hub.Connected,
			close:     func() {},
		}, nil
	}
}

// openMirror connects the calendar mirror when a calendar is configured.
// Any failure leaves the daemon running without it.
func (a *app) openMirror(ctx context.Context, cfg config.Config, store *state.Store) background.Mirror {
	if cfg.Calendar == "" {
		return nil
	}
	dir, err := config.Dir()
	if err != nil {
		a.logger.Warn("calendar mirror disabled", "err", err)
		return nil
	}
	httpClient, err := google.NewHTTPClient(ctx, dir, a.logger)
	if err != nil {
		a.logger.Warn("calendar mirror disabled", "err", err)
		return nil
	}
	idx, err := google.LoadEventIndex(store)
	if err != nil {
		a.logger.Warn("calendar mirror disabled", "err", err)
		return nil
	}
	client, err := google.NewClient(ctx, httpClient, cfg.Calendar, idx, a.logger)
	if err != nil {
		a.logger.Warn("calendar mirror disabled", "err", err)
		return nil
	}
	a.logger.Info("mirroring tasks to Google Calendar", "calendar", cfg.Calendar)
	return client
}

func (a *app) runDaemon(ctx context.Context, headless bool) error {
	cfg := a.cfg.Current()
	logger := a.logger

	store, err := a.openStore()
	if err != nil {
		return err
	}
	authBridge := a.bridge(store)
	snoozes, err := snooze.NewTable(store)
	if err != nil {
		return err
	}
	registry := alarm.NewRegistry()
	picker := messages.New(cfg.Locale, nil)
	apiBase := a.apiBase()

	backend, err := a.openBrowser(ctx, cfg, apiBase, headless)
	if err != nil {
		return err
	}
	defer backend.close()

	manager := presence.NewManager(backend.browser, registry, snoozes, picker, apiBase, logger)
	svc := background.New(background.Options{
		Store:     store,
		Auth:      authBridge,
		Tasks:     lark.NewClient(cfg.LarkBaseURL, authBridge.TokenSource(ctx), logger),
		Settings:  a.cfg,
		Registry:  registry,
		Snoozes:   snoozes,
		Presence:  manager,
		Mirror:    a.openMirror(ctx, cfg, store),
		Connected: backend.connected,
		Logger:    logger,
	})

	a.cfg.Watch(func(c config.Config) {
		a.setLevel(c.LogLevel)
	})

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	srv := server.New(svc, picker, backend.websocket, logger)
	errc := make(chan error, 1)
	go func() {
		err := srv.Run(ctx, cfg.ListenAddr)
		if err != nil {
			cancel()
		}
		errc <- err
	}()

	if !authBridge.Authorized() {
		logger.Info("not logged in, open the login page to connect Lark", "url", authBridge.LoginURL(cfg.ExtensionID))
	}

	runErr := svc.Run(ctx)
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http api: %w", err)
	}
	return runErr
}
