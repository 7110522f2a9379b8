package commands

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/harrisonrobin/larkalarm/pkg/config"
	"github.com/harrisonrobin/larkalarm/pkg/google"
)

func addCalendar(topLevel *cobra.Command, a *app) {
	cmd := &cobra.Command{
		Use:   "calendar",
		Short: "Google Calendar mirror.",
	}

	authCmd := &cobra.Command{
		Use:   "auth",
		Short: "Authorize access to Google Calendar.",
		Long: `Authorize larkalarm to write events to Google Calendar. Place the OAuth
client file from the Google Cloud console at ~/.config/larkalarm/credentials.json
first, then set the calendar name with "larkalarm config set calendar <name>".`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			dir, err := config.Dir()
			if err != nil {
				return err
			}
			tokenFile := filepath.Join(dir, google.TokenFile)
			if _, err := os.Stat(tokenFile); err == nil {
				a.logger.Info("removing existing token file", "path", tokenFile)
				if err := os.Remove(tokenFile); err != nil {
					return fmt.Errorf("could not delete token file '%s': %w", tokenFile, err)
				}
			} else if !errors.Is(err, os.ErrNotExist) {
				a.logger.Warn("could not check token file", "path", tokenFile, "err", err)
			}

			err = google.Authorize(cmd.Context(), dir, a.logger, func(authURL string) {
				fmt.Printf("Go to the following link in your browser:\n\n%s\n\n", authURL)
			})
			if err != nil {
				return fmt.Errorf("authentication failed: %w", err)
			}
			fmt.Printf("Authentication successful! Token saved to %s\n", tokenFile)
			return nil
		},
	}

	cmd.AddCommand(authCmd)
	topLevel.AddCommand(cmd)
}
