package wsshare

import (
	"crypto/tls"

	"golang.org/x/crypto/acme"
	"golang.org/x/crypto/acme/autocert"

	"github.com/sammck-go/logger"
	"github.com/sammck-go/wsmux/pkg/wstnet"
)

// NewTLSConfig builds the server TLS configuration from the first
// certificate source that is configured: certificate files, then ACME,
// then a generated self-signed certificate. It returns a nil config if TLS
// is disabled. The returned reloader is non-nil only for certificate files
// and must be shut down by the caller.
func NewTLSConfig(lg logger.Logger, c *ServerConfig) (*tls.Config, *CertReloader, error) {
	if c.DisableTLS {
		lg.ILogf("TLS disabled")
		return nil, nil, nil
	}
	tlsConfig := &tls.Config{
		MinVersion: tls.VersionTLS12,
		// the upgrade request is always HTTP/1.1
		NextProtos: []string{"http/1.1"},
	}
	switch {
	case c.CertFile != "":
		r, err := NewCertReloader(lg.ForkLog("certs"), c.CertFile, c.KeyFile)
		if err != nil {
			return nil, nil, err
		}
		tlsConfig.GetCertificate = r.GetCertificate
		return tlsConfig, r, nil

	case len(c.AutocertDomains) > 0:
		m := &autocert.Manager{
			Prompt:     autocert.AcceptTOS,
			HostPolicy: autocert.HostWhitelist(c.AutocertDomains...),
		}
		if c.AutocertCacheDir != "" {
			m.Cache = autocert.DirCache(c.AutocertCacheDir)
		}
		tlsConfig.GetCertificate = m.GetCertificate
		tlsConfig.NextProtos = append(tlsConfig.NextProtos, acme.ALPNProto)
		lg.ILogf("ACME certificates for %v", c.AutocertDomains)
		return tlsConfig, nil, nil
	}

	cert, err := wstnet.NewSelfSignedCertificate(c.SelfSignedHosts...)
	if err != nil {
		return nil, nil, lg.Errorf("unable to generate self-signed certificate: %s", err)
	}
	lg.ILogf("Self-signed certificate for %v, fingerprint %s", c.SelfSignedHosts, wstnet.FingerprintCertificate(cert))
	tlsConfig.Certificates = []tls.Certificate{cert}
	return tlsConfig, nil, nil
}
