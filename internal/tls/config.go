// Package tls builds the TLS configuration of the HTTP API from certificate
// files or ACME.
package tls

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
	"time"

	"github.com/foxzi/campaigner/internal/config"
)

// CertificateInfo describes a certificate in use or in the ACME cache
type CertificateInfo struct {
	Domain    string
	Subject   string
	Issuer    string
	NotBefore time.Time
	NotAfter  time.Time
	DaysLeft  int
	DNSNames  []string
}

// ServerConfig returns the API listener's TLS configuration. Both results
// are nil when TLS is off; the manager is set only for ACME.
func ServerConfig(cfg config.TLSConfig) (*tls.Config, *ACMEManager, error) {
	switch {
	case cfg.ACME.Enabled:
		m := NewACMEManager(cfg.ACME.Email, cfg.ACME.Domains, cfg.ACME.CacheDir)
		return m.TLSConfig(), m, nil
	case cfg.CertFile != "":
		tlsConfig, err := LoadCertificate(cfg.CertFile, cfg.KeyFile)
		return tlsConfig, nil, err
	}
	return nil, nil, nil
}

// LoadCertificate loads TLS certificate from PEM files
func LoadCertificate(certFile, keyFile string) (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load TLS certificate: %w", err)
	}

	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}, nil
}

// GetCertificateInfo reads certificate info from a PEM file
func GetCertificateInfo(certFile string) (*CertificateInfo, error) {
	data, err := os.ReadFile(certFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read certificate file: %w", err)
	}

	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("failed to decode PEM block")
	}

	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse certificate: %w", err)
	}
	return newCertificateInfo(cert.Subject.CommonName, cert), nil
}

func newCertificateInfo(domain string, cert *x509.Certificate) *CertificateInfo {
	return &CertificateInfo{
		Domain:    domain,
		Subject:   cert.Subject.CommonName,
		Issuer:    cert.Issuer.CommonName,
		NotBefore: cert.NotBefore,
		NotAfter:  cert.NotAfter,
		DaysLeft:  int(time.Until(cert.NotAfter).Hours() / 24),
		DNSNames:  cert.DNSNames,
	}
}
