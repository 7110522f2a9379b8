package commands

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/gosuri/uitable"
	"github.com/spf13/cobra"

	"github.com/harrisonrobin/larkalarm/pkg/lark"
	"github.com/harrisonrobin/larkalarm/pkg/model"
	"github.com/harrisonrobin/larkalarm/pkg/state"
	"github.com/harrisonrobin/larkalarm/pkg/surface"
)

func addSync(topLevel *cobra.Command, a *app) {
	asJSON := false
	force := false
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Fetch tasks from Lark once and print them.",
		Example: `
larkalarm sync
larkalarm sync --json
larkalarm sync --force
`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if force {
				if err := newDaemonClient(a.apiBase()).forceSync(cmd.Context()); err != nil {
					return err
				}
				fmt.Println("Daemon resynced.")
				return nil
			}
			cfg := a.cfg.Current()
			store, err := a.openStore()
			if err != nil {
				return err
			}
			client := lark.NewClient(cfg.LarkBaseURL, a.bridge(store).TokenSource(cmd.Context()), a.logger)
			tasks, err := client.FetchTasks(cmd.Context())
			if err != nil {
				return err
			}
			now := time.Now()
			if err := store.SetJSON(state.KeyTasks, tasks); err != nil {
				return err
			}
			if err := store.SetTime(state.KeyLastSync, now); err != nil {
				return err
			}
			if asJSON {
				b, err := json.MarshalIndent(tasks, "", "  ")
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintln(color.Output, string(b))
				return nil
			}
			printTasks(tasks, now)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON.")
	cmd.Flags().BoolVar(&force, "force", false, "Have the running daemon clear snoozes and active alarms, then sync.")
	topLevel.AddCommand(cmd)
}

var levelColor = map[surface.Level]func(a ...interface{}) string{
	surface.LevelNormal:  color.New(color.FgWhite).SprintFunc(),
	surface.LevelWarning: color.New(color.FgYellow).SprintFunc(),
	surface.LevelOverdue: color.New(color.FgRed, color.Bold).SprintFunc(),
}

func printTasks(tasks []model.Task, now time.Time) {
	if len(tasks) == 0 {
		fmt.Fprintln(color.Output, "No open tasks.")
		return
	}
	tbl := uitable.New()
	tbl.MaxColWidth = 60
	tbl.AddRow("DUE", "SUMMARY", "GUID")
	for _, t := range model.SortByDue(tasks) {
		paint := levelColor[surface.Classify(t.Due, now)]
		tbl.AddRow(paint(surface.DueText(t.Due)), t.Summary, t.GUID)
	}
	_, _ = fmt.Fprintln(color.Output, tbl)
}
