package commands

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/harrisonrobin/larkalarm/pkg/browser/bridge"
	"github.com/harrisonrobin/larkalarm/pkg/config"
)

func addExtension(topLevel *cobra.Command, a *app) {
	cmd := &cobra.Command{
		Use:   "extension [dir]",
		Short: "Write the companion browser extension.",
		Long: `Write the companion extension used by the default "bridge" browser backend.
Load the directory in chrome://extensions with "Load unpacked". Re-run after
changing listen_addr.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := ""
			if len(args) == 1 {
				dir = args[0]
			} else {
				cfgDir, err := config.Dir()
				if err != nil {
					return err
				}
				dir = filepath.Join(cfgDir, "extension")
			}
			if err := bridge.WriteExtension(dir, a.websocketURL()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Extension written to %s\n", dir)
			return nil
		},
	}
	topLevel.AddCommand(cmd)
}

// websocketURL is where the companion extension reaches the daemon.
func (a *app) websocketURL() string {
	return "ws" + strings.TrimPrefix(a.apiBase(), "http") + "/ws"
}
