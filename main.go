package main

import (
	"os"

	"github.com/harrisonrobin/larkalarm/pkg/commands"
)

// Set by -ldflags at release time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	info := commands.BuildInfo{Version: version, Commit: commit, Date: date}
	if err := commands.Execute(info); err != nil {
		os.Exit(1)
	}
}
