package commands

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/gosuri/uitable"
	"github.com/spf13/cobra"

	"github.com/harrisonrobin/larkalarm/pkg/config"
)

func addConfig(topLevel *cobra.Command, a *app) {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or change configuration.",
	}

	show := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration.",
		RunE: func(_ *cobra.Command, _ []string) error {
			printConfig(a.cfg)
			return nil
		},
	}

	set := &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Change one configuration value.",
		Long: "Change one configuration value. Keys: " + strings.Join(config.Keys(), ", ") + `.
A running daemon picks the change up on its next tick.`,
		Example: `
larkalarm config set alert_offset 30
larkalarm config set work_hours_only true
`,
		Args: cobra.ExactArgs(2),
		RunE: func(_ *cobra.Command, args []string) error {
			if err := a.cfg.Set(args[0], args[1]); err != nil {
				return err
			}
			fmt.Printf("%s = %s\n", args[0], args[1])
			return nil
		},
	}

	cmd.AddCommand(show, set)
	topLevel.AddCommand(cmd)
}

func printConfig(m *config.Manager) {
	key := color.New(color.FgCyan).SprintFunc()
	fmt.Fprintln(color.Output, "# "+m.Path())
	c := m.Current()
	values := map[string]any{
		config.KeyAlertOffset:     c.AlertOffset,
		config.KeyAlertNoDeadline: c.AlertNoDeadline,
		config.KeyWorkHoursOnly:   c.WorkHoursOnly,
		config.KeyBridgeURL:       c.BridgeURL,
		config.KeyLarkBaseURL:     c.LarkBaseURL,
		config.KeyListenAddr:      c.ListenAddr,
		config.KeyStateDir:        c.StateDir,
		config.KeyBrowser:         c.Browser,
		config.KeyCDPURL:          c.CDPURL,
		config.KeyChromePath:      c.ChromePath,
		config.KeyExtensionID:     c.ExtensionID,
		config.KeyLocale:          c.Locale,
		config.KeyCalendar:        c.Calendar,
		config.KeyLogLevel:        c.LogLevel,
	}
	tbl := uitable.New()
	for _, k := range config.Keys() {
		tbl.AddRow(key(k), values[k])
	}
	_, _ = fmt.Fprintln(color.Output, tbl)
}
