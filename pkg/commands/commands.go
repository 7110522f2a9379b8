// Package commands is the larkalarm command line.
package commands

import (
	"fmt"
	"net"
	"os"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/harrisonrobin/larkalarm/pkg/auth"
	"github.com/harrisonrobin/larkalarm/pkg/config"
	"github.com/harrisonrobin/larkalarm/pkg/state"
)

// BuildInfo is stamped into the binary at link time.
type BuildInfo struct {
	Version string
	Commit  string
	Date    string
}

// app holds what every subcommand shares: the loaded configuration and the
// logger built from it.
type app struct {
	configPath string
	logLevel   string

	logger *log.Logger
	cfg    *config.Manager
}

func New(info BuildInfo) *cobra.Command {
	a := &app{}
	cmd := &cobra.Command{
		Use:   "larkalarm",
		Short: "Alarms for Lark tasks that are about to be due.",
		Long: `larkalarm polls your Lark tasks and raises an alarm in the browser
when one is close to its deadline. Run "larkalarm run" to start the daemon.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == "version" {
				return nil
			}
			return a.load()
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}
	cmd.PersistentFlags().StringVar(&a.configPath, "config", "", "Config file (default ~/.config/larkalarm/config.yaml)")
	cmd.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "Override the configured log level")

	addRun(cmd, a)
	addLogin(cmd, a)
	addRegister(cmd, a)
	addLogout(cmd, a)
	addToken(cmd, a)
	addSync(cmd, a)
	addSnooze(cmd, a)
	addStatus(cmd, a)
	addConfig(cmd, a)
	addCalendar(cmd, a)
	addExtension(cmd, a)
	addVersion(cmd, info)
	return cmd
}

// Execute runs the command line and reports any error on stderr.
func Execute(info BuildInfo) error {
	cmd := New(info)
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return err
	}
	return nil
}

func (a *app) load() error {
	a.logger = log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		Prefix:          "larkalarm",
	})
	cfg, err := config.Load(a.configPath, a.logger)
	if err != nil {
		return err
	}
	a.cfg = cfg

	level := cfg.Current().LogLevel
	if a.logLevel != "" {
		level = a.logLevel
	}
	a.setLevel(level)
	return nil
}

func (a *app) setLevel(level string) {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		a.logger.Warn("unknown log level, using info", "level", level)
		lvl = log.InfoLevel
	}
	a.logger.SetLevel(lvl)
}

func (a *app) openStore() (*state.Store, error) {
	return state.Open(a.cfg.Current().StateDir)
}

func (a *app) bridge(store *state.Store) *auth.Bridge {
	return auth.NewBridge(a.cfg.Current().BridgeURL, store, a.logger)
}

// apiBase is the URL the local HTTP API is reachable at. Wildcard listen
// addresses are reached over loopback.
func (a *app) apiBase() string {
	addr := a.cfg.Current().ListenAddr
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return "http://" + strings.TrimPrefix(addr, "http://")
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, port)
}
