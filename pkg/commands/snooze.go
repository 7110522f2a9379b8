package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func addSnooze(topLevel *cobra.Command, a *app) {
	dismiss := false
	cmd := &cobra.Command{
		Use:   "snooze <guid>",
		Short: "Snooze a task's alarm for five minutes.",
		Example: `
larkalarm snooze 8c1f0f7e-2a51-4c1e-9f3e-1d1b0c2f3a4b
larkalarm snooze --dismiss 8c1f0f7e-2a51-4c1e-9f3e-1d1b0c2f3a4b
`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := newDaemonClient(a.apiBase())
			if dismiss {
				if err := c.dismiss(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Println("Alarm dismissed.")
				return nil
			}
			until, err := c.snooze(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Printf("Snoozed until %s.\n", until.Local().Format("15:04:05"))
			return nil
		},
	}
	cmd.Flags().BoolVar(&dismiss, "dismiss", false, "Also close the alarm on screen.")
	topLevel.AddCommand(cmd)
}
