package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/foxzi/campaigner/internal/logging"
)

var logsLines int

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Show the last lines of the send log",
	RunE:  runLogs,
}

func init() {
	logsCmd.Flags().IntVarP(&logsLines, "lines", "n", 10, "Number of lines")
	rootCmd.AddCommand(logsCmd)
}

func runLogs(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	lines, err := logging.Tail(cfg.Logging.SendLogFile, logsLines)
	if err != nil {
		return fmt.Errorf("failed to read send log: %w", err)
	}

	if len(lines) == 0 {
		fmt.Println("Send log is empty")
		return nil
	}
	for _, line := range lines {
		fmt.Println(line)
	}
	return nil
}
