package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/foxzi/campaigner/internal/config"
)

var ratelimitCmd = &cobra.Command{
	Use:   "ratelimit",
	Short: "Sending quota commands",
}

var ratelimitShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show configured quotas and current usage",
	RunE:  runRatelimitShow,
}

func init() {
	ratelimitCmd.AddCommand(ratelimitShowCmd)
	rootCmd.AddCommand(ratelimitCmd)
}

func limitRow(w *tabwriter.Writer, label string, v *config.LimitValues) {
	if v == nil {
		fmt.Fprintf(w, "%s\t-\t-\n", label)
		return
	}
	fmt.Fprintf(w, "%s\t%d\t%d\n", label, v.MessagesPerHour, v.MessagesPerDay)
}

func runRatelimitShow(cmd *cobra.Command, args []string) error {
	application, err := openApp()
	if err != nil {
		return err
	}
	defer application.Close()

	rl := application.Config.RateLimit

	fmt.Println("Rate Limiting Configuration")
	fmt.Println("===========================")
	fmt.Printf("Enabled: %v\n\n", rl.Enabled)

	if !rl.Enabled {
		fmt.Println("Rate limiting is disabled")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "LEVEL\tMESSAGES/HOUR\tMESSAGES/DAY")
	fmt.Fprintln(w, "-----\t-------------\t------------")
	limitRow(w, "Global", rl.Global)
	limitRow(w, "Per Sender", rl.DefaultSender)
	limitRow(w, "Per Recipient Domain", rl.DefaultRecipientDomain)

	domains := make([]string, 0, len(rl.RecipientDomains))
	for domain := range rl.RecipientDomains {
		domains = append(domains, domain)
	}
	sort.Strings(domains)
	for _, domain := range domains {
		limitRow(w, domain, rl.RecipientDomains[domain])
	}
	w.Flush()

	stats, err := application.Limiter.ListStats(context.Background())
	if err != nil {
		return fmt.Errorf("failed to read usage: %w", err)
	}

	fmt.Println("\nCurrent Usage:")
	if len(stats) == 0 {
		fmt.Println("  No messages counted yet")
		return nil
	}

	w = tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "LEVEL\tKEY\tTHIS HOUR\tTODAY")
	fmt.Fprintln(w, "-----\t---\t---------\t-----")
	for _, s := range stats {
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\n", s.Level, s.Key, s.HourlyCount, s.DailyCount)
	}
	return w.Flush()
}
