package main

import (
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/foxzi/campaigner/internal/campaign"
	"github.com/foxzi/campaigner/internal/dnscheck"
)

var noColor bool

var (
	green  = color.New(color.FgGreen).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
)

func init() {
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		if noColor {
			color.NoColor = true
		}
	}
}

// colorStatus colors a DNS check or campaign outcome label. color disables
// itself when stdout is not a terminal.
func colorStatus(status, label string) string {
	switch status {
	case dnscheck.StatusOK, campaign.StatusSent, campaign.StatusRendered:
		return green(label)
	case dnscheck.StatusWarning, dnscheck.StatusNotFound, campaign.StatusSkipped:
		return yellow(label)
	case dnscheck.StatusError, campaign.StatusFailed:
		return red(label)
	}
	return label
}
