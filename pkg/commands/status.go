package commands

import (
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/fatih/color"
	"github.com/gosuri/uitable"
	"github.com/spf13/cobra"

	"github.com/harrisonrobin/larkalarm/pkg/server"
)

func addStatus(topLevel *cobra.Command, a *app) {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the running daemon's active alarms and snoozes.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			var st server.Status
			if err := newDaemonClient(a.apiBase()).do(cmd.Context(), http.MethodGet, "/api/status", &st); err != nil {
				return err
			}
			printStatus(st, time.Now())
			return nil
		},
	}
	topLevel.AddCommand(cmd)
}

func printStatus(st server.Status, now time.Time) {
	bold := color.New(color.Bold).SprintFunc()
	yes := color.New(color.FgGreen).SprintFunc()
	no := color.New(color.FgRed).SprintFunc()
	flag := func(b bool) string {
		if b {
			return yes("yes")
		}
		return no("no")
	}

	tbl := uitable.New()
	tbl.AddRow("Logged in:", flag(st.Authorized))
	tbl.AddRow("Browser connected:", flag(st.BrowserConnected))
	last := "never"
	if st.LastSync != nil {
		last = st.LastSync.Format("02/01/2006 15:04")
	}
	tbl.AddRow("Last sync:", last)
	tbl.AddRow("Tasks:", st.Tasks)
	_, _ = fmt.Fprintln(color.Output, tbl)

	if len(st.ActiveAlarms) > 0 {
		_, _ = fmt.Fprintln(color.Output, "\n"+bold("Active alarms"))
		alarms := uitable.New()
		alarms.MaxColWidth = 60
		alarms.AddRow("GUID", "SUMMARY", "SHOWN IN", "SINCE")
		for _, al := range st.ActiveAlarms {
			alarms.AddRow(al.GUID, al.Summary, al.Presence, al.Since.Format("15:04"))
		}
		_, _ = fmt.Fprintln(color.Output, alarms)
	}

	if len(st.Snoozed) > 0 {
		_, _ = fmt.Fprintln(color.Output, "\n"+bold("Snoozed"))
		guids := make([]string, 0, len(st.Snoozed))
		for g := range st.Snoozed {
			guids = append(guids, g)
		}
		sort.Strings(guids)
		snoozed := uitable.New()
		for _, g := range guids {
			snoozed.AddRow(g, "for "+st.Snoozed[g].Sub(now).Round(time.Second).String())
		}
		_, _ = fmt.Fprintln(color.Output, snoozed)
	}
}
