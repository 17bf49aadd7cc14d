// Command mlocid-e2e runs the mlocid stand-in application and manages the
// browser the end-to-end suite drives.
package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/kuitang/mlocid-e2e/internal/obs"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "mlocid-e2e",
		Short: "Support tooling for the mlocid browser suite",
		Long: `mlocid-e2e serves a local build of the mlocid flashcard application and
installs the Chromium build the browser suite drives.

Run the suite itself with: go test ./tests/browser/...`,
		// Errors are reported by cobra; usage is noise for runtime failures.
		SilenceUsage: true,
	}
	root.AddCommand(newServeCmd())
	root.AddCommand(newInstallCmd())
	return root
}

func main() {
	obs.Init()
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
