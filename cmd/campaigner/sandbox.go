package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/foxzi/campaigner/internal/mailbox"
	"github.com/foxzi/campaigner/internal/sandbox"
)

var (
	sandboxListFrom   string
	sandboxListTo     string
	sandboxListSource string
	sandboxListLimit  int
	sandboxShowFormat string
	sandboxOlderThan  time.Duration
)

var sandboxCmd = &cobra.Command{
	Use:   "sandbox",
	Short: "Captured campaign mail and the local capture server",
}

var sandboxServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run a local SMTP server that stores every message",
	Long:  `Run a local SMTP server on sandbox.listen_addr. Point smtp.host at it to rehearse a campaign end to end.`,
	RunE:  runSandboxServe,
}

var sandboxListCmd = &cobra.Command{
	Use:   "list",
	Short: "List captured messages",
	RunE:  runSandboxList,
}

var sandboxShowCmd = &cobra.Command{
	Use:   "show <message_id>",
	Short: "Show a captured message",
	Args:  cobra.ExactArgs(1),
	RunE:  runSandboxShow,
}

var sandboxClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete captured messages",
	RunE:  runSandboxClear,
}

var sandboxStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show capture statistics",
	RunE:  runSandboxStats,
}

func init() {
	sandboxListCmd.Flags().StringVar(&sandboxListFrom, "from", "", "Filter by sender")
	sandboxListCmd.Flags().StringVar(&sandboxListTo, "to", "", "Filter by recipient")
	sandboxListCmd.Flags().StringVar(&sandboxListSource, "source", "", "Filter by source (capture, redirect, smtp)")
	sandboxListCmd.Flags().IntVar(&sandboxListLimit, "limit", 50, "Maximum number of messages")

	sandboxShowCmd.Flags().StringVar(&sandboxShowFormat, "format", "text", "Output format (text, html, raw)")

	sandboxClearCmd.Flags().DurationVar(&sandboxOlderThan, "older-than", 0, "Only clear messages older than this, e.g. 72h")

	sandboxCmd.AddCommand(sandboxServeCmd, sandboxListCmd, sandboxShowCmd, sandboxClearCmd, sandboxStatsCmd)
	rootCmd.AddCommand(sandboxCmd)
}

func runSandboxServe(cmd *cobra.Command, args []string) error {
	application, err := openApp()
	if err != nil {
		return err
	}
	defer application.Close()

	return application.ServeSandbox(context.Background())
}

func sandboxFilter() sandbox.ListFilter {
	return sandbox.ListFilter{
		From:      sandboxListFrom,
		Recipient: sandboxListTo,
		Source:    sandboxListSource,
		Limit:     sandboxListLimit,
	}
}

func runSandboxList(cmd *cobra.Command, args []string) error {
	application, err := openApp()
	if err != nil {
		return err
	}
	defer application.Close()

	messages, err := application.Sandbox.List(context.Background(), sandboxFilter())
	if err != nil {
		return fmt.Errorf("failed to list messages: %w", err)
	}

	if len(messages) == 0 {
		fmt.Println("No messages in sandbox")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSOURCE\tFROM\tTO\tSUBJECT\tCAPTURED")
	fmt.Fprintln(w, "--\t------\t----\t--\t-------\t--------")
	for _, msg := range messages {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			msg.ID[:min(8, len(msg.ID))],
			msg.Source,
			msg.From,
			truncate(strings.Join(msg.To, ", "), 30),
			truncate(msg.Subject, 30),
			msg.CapturedAt.Format("2006-01-02 15:04"),
		)
	}
	w.Flush()

	fmt.Printf("\nTotal: %d messages\n", len(messages))
	return nil
}

func runSandboxShow(cmd *cobra.Command, args []string) error {
	application, err := openApp()
	if err != nil {
		return err
	}
	defer application.Close()

	msg, err := application.Sandbox.Get(context.Background(), args[0])
	if err != nil {
		return fmt.Errorf("failed to get message: %w", err)
	}

	if sandboxShowFormat == "raw" {
		fmt.Println(string(msg.Data))
		return nil
	}

	parsed := mailbox.Parse(msg.Data)
	if sandboxShowFormat == "html" {
		fmt.Println(parsed.HTML)
		return nil
	}

	fmt.Printf("Message: %s\n\n", msg.ID)
	fmt.Printf("Source:     %s\n", msg.Source)
	fmt.Printf("From:       %s\n", msg.From)
	fmt.Printf("To:         %s\n", strings.Join(msg.To, ", "))
	if len(msg.OriginalTo) > 0 {
		fmt.Printf("Original To: %s\n", strings.Join(msg.OriginalTo, ", "))
	}
	fmt.Printf("Subject:    %s\n", msg.Subject)
	fmt.Printf("Captured:   %s\n", msg.CapturedAt.Format(time.RFC3339))
	if msg.ClientIP != "" {
		fmt.Printf("Client IP:  %s\n", msg.ClientIP)
	}
	fmt.Printf("\n%s\n", parsed.Body())
	return nil
}

func runSandboxClear(cmd *cobra.Command, args []string) error {
	application, err := openApp()
	if err != nil {
		return err
	}
	defer application.Close()

	count, err := application.Sandbox.Clear(context.Background(), sandboxOlderThan)
	if err != nil {
		return fmt.Errorf("failed to clear sandbox: %w", err)
	}

	fmt.Printf("Cleared %d messages from sandbox\n", count)
	return nil
}

func runSandboxStats(cmd *cobra.Command, args []string) error {
	application, err := openApp()
	if err != nil {
		return err
	}
	defer application.Close()

	stats, err := application.Sandbox.Stats(context.Background())
	if err != nil {
		return fmt.Errorf("failed to get sandbox stats: %w", err)
	}

	fmt.Println("Sandbox Statistics")
	fmt.Println("==================")
	fmt.Printf("Mode:           %s\n", application.Config.Sandbox.Mode)
	fmt.Printf("Total Messages: %d\n", stats.Total)
	fmt.Printf("Total Size:     %d bytes\n", stats.TotalSize)

	if len(stats.BySource) > 0 {
		fmt.Println("\nBy Source:")
		for source, count := range stats.BySource {
			fmt.Printf("  %s: %d\n", source, count)
		}
	}

	if !stats.OldestAt.IsZero() {
		fmt.Printf("\nOldest Message: %s\n", stats.OldestAt.Format(time.RFC3339))
	}
	if !stats.NewestAt.IsZero() {
		fmt.Printf("Newest Message: %s\n", stats.NewestAt.Format(time.RFC3339))
	}
	return nil
}
