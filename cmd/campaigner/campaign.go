package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/foxzi/campaigner/internal/app"
	"github.com/foxzi/campaigner/internal/campaign"
	"github.com/foxzi/campaigner/internal/template"
)

var (
	campaignTemplate string
	campaignIDs      []int64
	campaignDryRun   bool
	campaignLimit    int
	campaignVerbose  bool
)

var campaignCmd = &cobra.Command{
	Use:   "campaign",
	Short: "Campaign dispatch commands",
}

var campaignSendCmd = &cobra.Command{
	Use:   "send",
	Short: "Send a campaign to active recipients",
	Long: `Send a campaign to every active recipient, or to the recipients given with --ids.
Without --template the built-in personalized email is sent.`,
	RunE: runCampaignSend,
}

var campaignTestCmd = &cobra.Command{
	Use:   "test",
	Short: "Send a campaign to the first few active recipients",
	Long:  `Send to the first dispatch.test_batch_size active recipients (5 by default) to check a campaign before the full run.`,
	RunE:  runCampaignTest,
}

func init() {
	for _, c := range []*cobra.Command{campaignSendCmd, campaignTestCmd} {
		c.Flags().StringVarP(&campaignTemplate, "template", "t", "", "Template name (default built-in personalized email)")
		c.Flags().BoolVar(&campaignDryRun, "dry-run", false, "Render only, send nothing")
		c.Flags().BoolVarP(&campaignVerbose, "verbose", "v", false, "Print every recipient outcome")
	}
	campaignSendCmd.Flags().Int64SliceVar(&campaignIDs, "ids", nil, "Recipient ids (default all active)")
	campaignSendCmd.Flags().IntVar(&campaignLimit, "limit", 0, "Send to at most this many recipients")
	campaignTestCmd.Flags().IntVar(&campaignLimit, "limit", 0, "Batch size (default dispatch.test_batch_size)")

	campaignCmd.AddCommand(campaignSendCmd, campaignTestCmd)
	rootCmd.AddCommand(campaignCmd)
}

func runCampaignSend(cmd *cobra.Command, args []string) error {
	if campaignLimit < 0 {
		return fmt.Errorf("--limit must not be negative")
	}
	return dispatchCampaign(campaignIDs, campaign.Options{DryRun: campaignDryRun, Limit: campaignLimit}, false)
}

func runCampaignTest(cmd *cobra.Command, args []string) error {
	if campaignLimit < 0 {
		return fmt.Errorf("--limit must not be negative")
	}
	return dispatchCampaign(nil, campaign.Options{DryRun: campaignDryRun, Limit: campaignLimit}, true)
}

// dispatchCampaign runs one campaign; a test batch takes its default limit
// from dispatch.test_batch_size
func dispatchCampaign(ids []int64, opts campaign.Options, testBatch bool) error {
	application, err := openApp()
	if err != nil {
		return err
	}
	defer application.Close()

	if testBatch && opts.Limit == 0 {
		opts.Limit = application.Config.Dispatch.TestBatchSize
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	name := campaignTemplate
	for {
		report, err := application.RunCampaign(ctx, name, ids, opts)
		if errors.Is(err, template.ErrNotFound) {
			if name, err = askTemplate(ctx, application, name); err != nil {
				return err
			}
			continue
		}
		if report != nil {
			printReport(report)
		}
		return err
	}
}

// askTemplate lists the stored templates and reads another name from the
// terminal. An empty answer selects the built-in personalized email.
func askTemplate(ctx context.Context, application *app.App, missing string) (string, error) {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return "", fmt.Errorf("%w: %s", template.ErrNotFound, missing)
	}

	names, err := application.Templates.List(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to list templates: %w", err)
	}

	fmt.Printf("Template '%s' not found. Available templates: %s\n", missing, strings.Join(names, ", "))
	fmt.Print("Template name (empty for the personalized email): ")

	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("failed to read template name: %w", err)
	}
	return strings.TrimSpace(line), nil
}

func printReport(report *campaign.Report) {
	if report.DryRun {
		fmt.Printf("Dry run of campaign '%s': rendered %d emails\n", report.CampaignID, report.Rendered)
		for _, o := range report.Outcomes {
			if o.Email != nil {
				fmt.Printf("  %s: %s\n", o.Recipient.Email, o.Email.Subject)
			}
		}
	} else {
		fmt.Printf("Campaign '%s': %s\n", report.CampaignID, report.Summary())
	}

	for _, o := range report.Outcomes {
		switch {
		case o.Status == campaign.StatusFailed:
			fmt.Printf("  %s  %s: %s\n", colorStatus(o.Status, "Failed"), o.Recipient.Email, o.Reason)
		case o.Status == campaign.StatusSkipped:
			fmt.Printf("  %s %s: %s\n", colorStatus(o.Status, "Skipped"), o.Recipient.Email, o.Reason)
		case campaignVerbose && o.Status == campaign.StatusSent:
			fmt.Printf("  %s    %s\n", colorStatus(o.Status, "Sent"), o.Recipient.Email)
		}
	}
}
