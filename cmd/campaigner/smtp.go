package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var smtpCmd = &cobra.Command{
	Use:   "smtp",
	Short: "SMTP commands",
}

var smtpTestCmd = &cobra.Command{
	Use:   "test",
	Short: "Connect and log in to the configured SMTP server",
	RunE:  runSMTPTest,
}

func init() {
	smtpCmd.AddCommand(smtpTestCmd)
	rootCmd.AddCommand(smtpCmd)
}

func runSMTPTest(cmd *cobra.Command, args []string) error {
	application, err := openApp()
	if err != nil {
		return err
	}
	defer application.Close()

	smtpCfg := application.Config.SMTP
	fmt.Printf("Testing SMTP connection to %s:%d (%s)...\n", smtpCfg.Host, smtpCfg.Port, smtpCfg.TLSMode)

	if _, err := application.ConnectSMTP(context.Background()); err != nil {
		return fmt.Errorf("SMTP test failed: %w", err)
	}

	fmt.Printf("SMTP connection OK, logged in as %s\n", smtpCfg.Username)
	return nil
}
