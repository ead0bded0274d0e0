package tls

import (
	"context"
	"crypto/tls"
	"crypto/x509"

	"golang.org/x/crypto/acme/autocert"
)

// ACMEManager manages automatic TLS certificates from Let's Encrypt
type ACMEManager struct {
	manager *autocert.Manager
	cache   autocert.DirCache
	domains []string
}

// NewACMEManager creates a new ACME manager
func NewACMEManager(email string, domains []string, cacheDir string) *ACMEManager {
	cache := autocert.DirCache(cacheDir)
	return &ACMEManager{
		manager: &autocert.Manager{
			Prompt:     autocert.AcceptTOS,
			Email:      email,
			HostPolicy: autocert.HostWhitelist(domains...),
			Cache:      cache,
		},
		cache:   cache,
		domains: domains,
	}
}

// Domains returns the list of configured domains
func (a *ACMEManager) Domains() []string {
	return a.domains
}

// TLSConfig returns a server configuration that obtains and renews
// certificates on demand. It answers TLS-ALPN-01 challenges itself, so no
// port 80 listener is needed.
func (a *ACMEManager) TLSConfig() *tls.Config {
	cfg := a.manager.TLSConfig()
	cfg.MinVersion = tls.VersionTLS12
	return cfg
}

// CachedCertificates reads certificates from cache without contacting
// Let's Encrypt. Domains without a cached certificate are left out.
func (a *ACMEManager) CachedCertificates(ctx context.Context) []CertificateInfo {
	var results []CertificateInfo
	for _, domain := range a.domains {
		// autocert stores ECDSA certificates under the bare name and RSA
		// ones with a "+rsa" suffix
		for _, key := range []string{domain, domain + "+rsa"} {
			data, err := a.cache.Get(ctx, key)
			if err != nil {
				continue
			}
			// Cached entries hold the private key and the chain in one PEM file
			cert, err := tls.X509KeyPair(data, data)
			if err != nil || len(cert.Certificate) == 0 {
				continue
			}
			leaf, err := x509.ParseCertificate(cert.Certificate[0])
			if err != nil {
				continue
			}
			results = append(results, *newCertificateInfo(domain, leaf))
			break
		}
	}
	return results
}
