package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var analyticsOutput string

var analyticsCmd = &cobra.Command{
	Use:   "analytics",
	Short: "Campaign send statistics",
}

var analyticsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List campaigns with send totals",
	RunE:  runAnalyticsList,
}

var analyticsShowCmd = &cobra.Command{
	Use:   "show <campaign_id>",
	Short: "Show the recipients a campaign reached",
	Args:  cobra.ExactArgs(1),
	RunE:  runAnalyticsShow,
}

var analyticsExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export statistics as JSON",
	RunE:  runAnalyticsExport,
}

func init() {
	analyticsExportCmd.Flags().StringVarP(&analyticsOutput, "output", "o", "email_stats.json", "Output file, - for stdout")

	analyticsCmd.AddCommand(analyticsListCmd, analyticsShowCmd, analyticsExportCmd)
	rootCmd.AddCommand(analyticsCmd)
}

func runAnalyticsList(cmd *cobra.Command, args []string) error {
	application, err := openApp()
	if err != nil {
		return err
	}
	defer application.Close()

	records, err := application.Analytics.List(context.Background())
	if err != nil {
		return fmt.Errorf("failed to list campaigns: %w", err)
	}

	if len(records) == 0 {
		fmt.Println("No campaigns sent yet")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "CAMPAIGN\tTOTAL SENT\tRECIPIENTS\tLAST SENT")
	fmt.Fprintln(w, "--------\t----------\t----------\t---------")
	for _, r := range records {
		fmt.Fprintf(w, "%s\t%d\t%d\t%s\n", r.CampaignID, r.TotalSent, len(r.Recipients), r.LastSent.Format("2006-01-02 15:04"))
	}
	return w.Flush()
}

func runAnalyticsShow(cmd *cobra.Command, args []string) error {
	application, err := openApp()
	if err != nil {
		return err
	}
	defer application.Close()

	r, err := application.Analytics.Get(context.Background(), args[0])
	if err != nil {
		return fmt.Errorf("failed to get campaign: %w", err)
	}

	fmt.Printf("Campaign:   %s\n", r.CampaignID)
	fmt.Printf("Total sent: %d\n", r.TotalSent)
	fmt.Printf("Last sent:  %s\n\n", r.LastSent.Format("2006-01-02 15:04:05"))

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "RECIPIENT\tFIRST SENT")
	fmt.Fprintln(w, "---------\t----------")
	for _, e := range r.Recipients {
		fmt.Fprintf(w, "%s\t%s\n", e.ID, e.SentAt.Format("2006-01-02 15:04:05"))
	}
	return w.Flush()
}

func runAnalyticsExport(cmd *cobra.Command, args []string) error {
	application, err := openApp()
	if err != nil {
		return err
	}
	defer application.Close()

	var out io.Writer = os.Stdout
	if analyticsOutput != "-" {
		f, err := os.Create(analyticsOutput)
		if err != nil {
			return fmt.Errorf("failed to create export file: %w", err)
		}
		defer f.Close()
		out = f
	}

	if err := application.Analytics.Export(context.Background(), out); err != nil {
		return fmt.Errorf("failed to export statistics: %w", err)
	}

	if analyticsOutput != "-" {
		fmt.Printf("Statistics exported to %s\n", analyticsOutput)
	}
	return nil
}
