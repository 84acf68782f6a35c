// Package main is the entry point for the orchd daemon.
package main

import (
	"fmt"
	"os"

	orchd "github.com/othala-dev/orchd/cmd/orchd"
)

// Build information injected via ldflags at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	versionString := fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date)
	orchd.SetVersion(versionString)
	if err := orchd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
