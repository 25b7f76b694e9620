package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kuitang/plantilla-walkthrough/internal/browser"
)

var installCmd = &cobra.Command{
	Use:   "install",
	Short: "Install the Playwright driver and browser",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig(cmd)
		if err := browser.Install(cfg.Browser); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Installed Playwright driver and %s\n", cfg.Browser)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(installCmd)
}
