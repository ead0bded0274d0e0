package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/foxzi/campaigner/internal/dkim"
)

var (
	dkimDomain   string
	dkimSelector string
	dkimKeyFile  string
	dkimOutDir   string
	dkimBits     int
)

var dkimCmd = &cobra.Command{
	Use:   "dkim",
	Short: "DKIM key management commands",
}

var dkimGenerateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate a new DKIM key pair",
	Long:  `Generate a new RSA DKIM key pair and print the DNS record to publish.`,
	RunE:  runDKIMGenerate,
}

var dkimShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show DKIM DNS record from existing key",
	RunE:  runDKIMShow,
}

func init() {
	dkimGenerateCmd.Flags().StringVar(&dkimDomain, "domain", "", "Domain name (required)")
	dkimGenerateCmd.Flags().StringVar(&dkimSelector, "selector", "campaigner", "DKIM selector")
	dkimGenerateCmd.Flags().StringVar(&dkimOutDir, "out", ".", "Output directory for key file")
	dkimGenerateCmd.Flags().IntVar(&dkimBits, "bits", dkim.DefaultKeyBits, "RSA key size")
	dkimGenerateCmd.MarkFlagRequired("domain")

	dkimShowCmd.Flags().StringVar(&dkimKeyFile, "key", "", "Path to private key file (default dkim.key_file)")
	dkimShowCmd.Flags().StringVar(&dkimDomain, "domain", "", "Domain name (default dkim.domain)")
	dkimShowCmd.Flags().StringVar(&dkimSelector, "selector", "", "DKIM selector (default dkim.selector)")

	dkimCmd.AddCommand(dkimGenerateCmd, dkimShowCmd)
	rootCmd.AddCommand(dkimCmd)
}

func runDKIMGenerate(cmd *cobra.Command, args []string) error {
	key, err := dkim.GenerateKey(dkimBits)
	if err != nil {
		return fmt.Errorf("failed to generate key: %w", err)
	}

	keyPath := filepath.Join(dkimOutDir, fmt.Sprintf("%s.key", dkimDomain))
	if err := dkim.WritePrivateKey(keyPath, key); err != nil {
		return fmt.Errorf("failed to save private key: %w", err)
	}

	record, err := dkim.DNSRecord(&key.PublicKey)
	if err != nil {
		return err
	}

	fmt.Printf("DKIM key generated successfully\n\n")
	fmt.Printf("Private key saved to: %s\n\n", keyPath)
	printDKIMRecord(dkim.DNSName(dkimSelector, dkimDomain), record)
	return nil
}

func runDKIMShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	keyFile := firstNonEmpty(dkimKeyFile, cfg.DKIM.KeyFile)
	domain := firstNonEmpty(dkimDomain, cfg.DKIM.Domain)
	selector := firstNonEmpty(dkimSelector, cfg.DKIM.Selector)
	if keyFile == "" || domain == "" || selector == "" {
		return fmt.Errorf("key file, domain and selector are required (flags or dkim section)")
	}

	key, err := dkim.LoadPrivateKey(keyFile)
	if err != nil {
		return err
	}
	record, err := dkim.DNSRecord(&key.PublicKey)
	if err != nil {
		return err
	}

	printDKIMRecord(dkim.DNSName(selector, domain), record)
	return nil
}

func printDKIMRecord(name, value string) {
	fmt.Printf("DNS Record:\n")
	fmt.Printf("  Name:  %s\n", name)
	fmt.Printf("  Type:  TXT\n")
	fmt.Printf("  Value: %s\n", value)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
