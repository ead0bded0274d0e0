package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/foxzi/campaigner/internal/config"
	"github.com/foxzi/campaigner/internal/dkim"
	"github.com/foxzi/campaigner/internal/dnscheck"
)

var (
	dnsDomain   string
	dnsSelector string
	dnsTimeout  time.Duration
	dnsShowAll  bool
)

var dnsCmd = &cobra.Command{
	Use:   "dns",
	Short: "Check DNS records that affect deliverability",
}

var dnsCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Check MX, SPF, DKIM and DMARC of the sender domain",
	Long: `Check the sender domain's DNS records. The domain defaults to dkim.domain,
then to the domain of smtp.sender. When a DKIM key is configured the published
key must match it.`,
	RunE: runDNSCheck,
}

var dnsRecipientsCmd = &cobra.Command{
	Use:   "recipients",
	Short: "Check that active recipients' domains accept mail",
	RunE:  runDNSRecipients,
}

func init() {
	dnsCmd.PersistentFlags().DurationVar(&dnsTimeout, "timeout", 30*time.Second, "Overall lookup timeout")

	dnsCheckCmd.Flags().StringVar(&dnsDomain, "domain", "", "Domain to check")
	dnsCheckCmd.Flags().StringVar(&dnsSelector, "selector", "", "DKIM selector (default dkim.selector)")

	dnsRecipientsCmd.Flags().BoolVar(&dnsShowAll, "all", false, "Also list deliverable domains")

	dnsCmd.AddCommand(dnsCheckCmd, dnsRecipientsCmd)
	rootCmd.AddCommand(dnsCmd)
}

// senderCheckOptions resolves the domain and DKIM expectations from flags and config
func senderCheckOptions(cfg *config.Config) (string, dnscheck.SenderOptions, error) {
	domain := firstNonEmpty(dnsDomain, cfg.DKIM.Domain, dnscheck.ExtractDomain(cfg.SMTP.Sender))
	if domain == "" {
		return "", dnscheck.SenderOptions{}, fmt.Errorf("no domain: pass --domain or set smtp.sender")
	}

	opts := dnscheck.SenderOptions{Selector: firstNonEmpty(dnsSelector, cfg.DKIM.Selector)}
	if cfg.DKIM.Enabled && strings.EqualFold(cfg.DKIM.Domain, domain) && opts.Selector == cfg.DKIM.Selector {
		key, err := dkim.LoadPrivateKey(cfg.DKIM.KeyFile)
		if err != nil {
			return "", opts, err
		}
		record, err := dkim.DNSRecord(&key.PublicKey)
		if err != nil {
			return "", opts, err
		}
		opts.DKIMRecord = record
	}
	return domain, opts, nil
}

func runDNSCheck(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	domain, opts, err := senderCheckOptions(cfg)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), dnsTimeout)
	defer cancel()

	result, err := dnscheck.New(nil).CheckSender(ctx, domain, opts)
	if err != nil {
		return err
	}

	fmt.Printf("DNS check for %s\n\n", result.Domain)
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "CHECK\tSTATUS\tMESSAGE")
	fmt.Fprintln(w, "-----\t------\t-------")
	for _, r := range result.Results {
		fmt.Fprintf(w, "%s\t%s\t%s\n", r.Type, colorStatus(r.Status, strings.ToUpper(r.Status)), r.Message)
	}
	w.Flush()

	for _, r := range result.Results {
		if r.Value != "" {
			fmt.Printf("\n%s:\n  %s\n", r.Type, r.Value)
		}
	}

	s := result.Summary
	fmt.Printf("\nSummary: %d ok, %d warnings, %d errors, %d not found\n", s.OK, s.Warnings, s.Errors, s.NotFound)
	if s.Errors > 0 {
		return fmt.Errorf("%d DNS check(s) failed", s.Errors)
	}
	return nil
}

func runDNSRecipients(cmd *cobra.Command, args []string) error {
	application, err := openApp()
	if err != nil {
		return err
	}
	defer application.Close()

	ctx, cancel := context.WithTimeout(context.Background(), dnsTimeout)
	defer cancel()

	recipients, err := application.Recipients.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("failed to list recipients: %w", err)
	}
	if len(recipients) == 0 {
		fmt.Println("No active recipients")
		return nil
	}

	emails := make([]string, len(recipients))
	for i, r := range recipients {
		emails[i] = r.Email
	}

	statuses := dnscheck.NewMXCache(dnscheck.New(nil), 0).CheckRecipients(ctx, emails)

	var undeliverable int
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "DOMAIN\tRECIPIENTS\tSTATUS\tDETAIL")
	fmt.Fprintln(w, "------\t----------\t------\t------")
	for _, s := range statuses {
		if !s.Deliverable {
			undeliverable += len(s.Recipients)
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", orDash(&s.Domain), truncate(strings.Join(s.Recipients, ", "), 40), colorStatus(dnscheck.StatusError, "FAIL"), s.Error)
			continue
		}
		if dnsShowAll {
			fmt.Fprintf(w, "%s\t%d\t%s\t%s\n", s.Domain, len(s.Recipients), colorStatus(dnscheck.StatusOK, "OK"), s.MX[0])
		}
	}
	w.Flush()

	fmt.Printf("\n%d domains, %d of %d recipients undeliverable\n", len(statuses), undeliverable, len(emails))
	return nil
}
