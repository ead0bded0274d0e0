package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/foxzi/campaigner/internal/tls"
)

var tlsCmd = &cobra.Command{
	Use:   "tls",
	Short: "API TLS certificate management",
}

var tlsStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the API TLS certificate status",
	Long: `Show the certificate the API serves. With ACME the certificates are read
from the cache; they are obtained and renewed by 'campaigner serve' itself.`,
	RunE: runTLSStatus,
}

func init() {
	tlsCmd.AddCommand(tlsStatusCmd)
	rootCmd.AddCommand(tlsCmd)
}

// certStatus grades the days left before a certificate expires
func certStatus(daysLeft int) string {
	switch {
	case daysLeft < 0:
		return "EXPIRED"
	case daysLeft < 14:
		return "EXPIRING SOON"
	case daysLeft < 30:
		return "RENEWAL DUE"
	}
	return "OK"
}

func runTLSStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	tlsCfg := cfg.API.TLS

	if !tlsCfg.ACME.Enabled {
		if tlsCfg.CertFile == "" {
			fmt.Println("TLS is not configured, the API is served over plain HTTP")
			return nil
		}
		info, err := tls.GetCertificateInfo(tlsCfg.CertFile)
		if err != nil {
			return fmt.Errorf("failed to read certificate: %w", err)
		}
		fmt.Println("TLS Certificate (manual):")
		fmt.Printf("  File:        %s\n", tlsCfg.CertFile)
		fmt.Printf("  Subject:     %s\n", info.Subject)
		fmt.Printf("  Issuer:      %s\n", info.Issuer)
		fmt.Printf("  Valid from:  %s\n", info.NotBefore.Format(time.RFC3339))
		fmt.Printf("  Valid until: %s\n", info.NotAfter.Format(time.RFC3339))
		fmt.Printf("  Days left:   %d\n", info.DaysLeft)
		fmt.Printf("  Status:      %s\n", certStatus(info.DaysLeft))
		return nil
	}

	acmeManager := tls.NewACMEManager(tlsCfg.ACME.Email, tlsCfg.ACME.Domains, tlsCfg.ACME.CacheDir)
	certs := acmeManager.CachedCertificates(context.Background())
	if len(certs) == 0 {
		fmt.Println("ACME certificates not found in cache.")
		fmt.Println("They are obtained on the first HTTPS request to 'campaigner serve'.")
		return nil
	}

	fmt.Println("ACME Certificates:")
	for _, cert := range certs {
		fmt.Printf("  %s:\n", cert.Domain)
		fmt.Printf("    Valid until: %s\n", cert.NotAfter.Format(time.RFC3339))
		fmt.Printf("    Days left:   %d\n", cert.DaysLeft)
		fmt.Printf("    Status:      %s\n", certStatus(cert.DaysLeft))
	}
	if len(certs) < len(acmeManager.Domains()) {
		fmt.Printf("\n%d of %d domains have no cached certificate yet\n", len(acmeManager.Domains())-len(certs), len(acmeManager.Domains()))
	}
	return nil
}
