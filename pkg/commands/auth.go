package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func addLogin(topLevel *cobra.Command, a *app) {
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Print the Lark login page URL.",
		Long: `Print the URL of the OAuth bridge login page. After logging in the
bridge redirects to the daemon's /callback page, which registers this device.`,
		RunE: func(_ *cobra.Command, _ []string) error {
			store, err := a.openStore()
			if err != nil {
				return err
			}
			fmt.Println(a.bridge(store).LoginURL(a.cfg.Current().ExtensionID))
			return nil
		},
	}
	topLevel.AddCommand(cmd)
}

func addRegister(topLevel *cobra.Command, a *app) {
	cmd := &cobra.Command{
		Use:   "register <oauth-proof>",
		Short: "Register this device with a proof from the login page.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.openStore()
			if err != nil {
				return err
			}
			if _, err := store.EnsureDeviceID(); err != nil {
				return err
			}
			if err := a.bridge(store).RegisterDevice(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Println("Device registered.")
			return nil
		},
	}
	topLevel.AddCommand(cmd)
}

func addLogout(topLevel *cobra.Command, a *app) {
	cmd := &cobra.Command{
		Use:   "logout",
		Short: "Forget the device credential and cached token.",
		RunE: func(_ *cobra.Command, _ []string) error {
			store, err := a.openStore()
			if err != nil {
				return err
			}
			if err := a.bridge(store).Logout(); err != nil {
				return err
			}
			fmt.Println("Logged out.")
			return nil
		},
	}
	topLevel.AddCommand(cmd)
}

func addToken(topLevel *cobra.Command, a *app) {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Print a valid Lark access token, refreshing it if needed.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := a.openStore()
			if err != nil {
				return err
			}
			tok, err := a.bridge(store).Token(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Println(tok)
			return nil
		},
	}
	topLevel.AddCommand(cmd)
}
