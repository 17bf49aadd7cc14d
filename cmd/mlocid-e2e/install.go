package main

import (
	"github.com/spf13/cobra"

	"github.com/kuitang/mlocid-e2e/internal/browser/pwdriver"
	"github.com/kuitang/mlocid-e2e/internal/obs"
)

func newInstallCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "install",
		Short: "Install the Playwright driver and Chromium",
		Long: `Downloads the Playwright driver and the Chromium build it pins. The suite
does this itself before launching unless MLOCID_E2E_SKIP_INSTALL=true; run it
ahead of time to keep the download out of test timings.`,
		Args: cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			if err := pwdriver.Install(); err != nil {
				return err
			}
			obs.Pkg("main").Info("browser_installed", "browser", "chromium")
			return nil
		},
	}
}
