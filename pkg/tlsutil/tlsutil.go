// Package tlsutil builds tls.Config values for the gateway listener and for
// store clients.
package tlsutil

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"
	"time"

	"github.com/c360/metaquery/errors"
	"github.com/c360/metaquery/pkg/acme"
)

// RenewalInterval is how often the ACME renewal loop checks the certificate.
var RenewalInterval = time.Hour

// LoadServerConfig loads a manual-mode server config, with mTLS when
// configured. It returns nil when TLS is disabled.
func LoadServerConfig(cfg ServerConfig) (*tls.Config, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
	if err != nil {
		return nil, errors.WrapFatal(err, "tlsutil", "LoadServerConfig", "load certificate")
	}

	tlsConfig := &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   parseTLSVersion(cfg.MinVersion),
	}
	if err := applyMTLS(tlsConfig, cfg.MTLS); err != nil {
		return nil, err
	}
	return tlsConfig, nil
}

// LoadClientConfig builds a client config. It returns nil when TLS is
// disabled.
func LoadClientConfig(cfg ClientConfig) (*tls.Config, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	rootCAs, err := x509.SystemCertPool()
	if err != nil {
		rootCAs = x509.NewCertPool()
	}
	if err := appendCAFiles(rootCAs, cfg.CAFiles, "LoadClientConfig"); err != nil {
		return nil, err
	}

	tlsConfig := &tls.Config{
		RootCAs:            rootCAs,
		MinVersion:         parseTLSVersion(cfg.MinVersion),
		InsecureSkipVerify: cfg.InsecureSkipVerify,
	}

	if cfg.CertFile != "" {
		cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
		if err != nil {
			return nil, errors.WrapFatal(err, "tlsutil", "LoadClientConfig", "load client certificate")
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	}
	return tlsConfig, nil
}

// ServerTLS builds the listener config for either mode. In acme mode the
// certificate is obtained (or reused from storage) up front and renewed in
// the background until the returned stop function is called; renewed
// certificates are served without a restart. When ACME fails and manual
// files are configured, those are used instead.
func ServerTLS(ctx context.Context, cfg ServerConfig, logger *slog.Logger) (*tls.Config, func(), error) {
	noop := func() {}
	if !cfg.Enabled {
		return nil, noop, nil
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Mode != ModeACME {
		tlsConfig, err := LoadServerConfig(cfg)
		return tlsConfig, noop, err
	}

	client, cert, err := obtainACME(ctx, cfg.ACME, logger)
	if err != nil {
		if cfg.CertFile == "" || cfg.KeyFile == "" {
			return nil, nil, err
		}
		logger.Warn("ACME unavailable, using configured certificate files", "error", err)
		tlsConfig, fallbackErr := LoadServerConfig(cfg)
		if fallbackErr != nil {
			return nil, nil, errors.WrapFatal(fallbackErr, "tlsutil", "ServerTLS", "fall back to manual TLS")
		}
		return tlsConfig, noop, nil
	}

	var current atomic.Pointer[tls.Certificate]
	current.Store(cert)
	tlsConfig := &tls.Config{
		MinVersion: parseTLSVersion(cfg.MinVersion),
		GetCertificate: func(*tls.ClientHelloInfo) (*tls.Certificate, error) {
			return current.Load(), nil
		},
	}
	if err := applyMTLS(tlsConfig, cfg.MTLS); err != nil {
		return nil, nil, err
	}

	renewCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = client.StartRenewalLoop(renewCtx, RenewalInterval, func(c *tls.Certificate) {
			current.Store(c)
		})
	}()

	return tlsConfig, func() {
		cancel()
		<-done
	}, nil
}

func obtainACME(ctx context.Context, cfg acme.Config, logger *slog.Logger) (*acme.Client, *tls.Certificate, error) {
	client, err := acme.NewClient(cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	cert, _, err := client.RenewCertificateIfNeeded(ctx)
	if err == nil && cert != nil {
		return client, cert, nil
	}
	cert, err = client.ObtainCertificate(ctx)
	if err != nil {
		return nil, nil, err
	}
	return client, cert, nil
}

func applyMTLS(tlsConfig *tls.Config, cfg ServerMTLSConfig) error {
	if !cfg.Enabled {
		return nil
	}

	clientCAs := x509.NewCertPool()
	if err := appendCAFiles(clientCAs, cfg.ClientCAFiles, "applyMTLS"); err != nil {
		return err
	}
	tlsConfig.ClientCAs = clientCAs
	if cfg.RequireClientCert {
		tlsConfig.ClientAuth = tls.RequireAndVerifyClientCert
	} else {
		tlsConfig.ClientAuth = tls.VerifyClientCertIfGiven
	}

	if len(cfg.AllowedClientCNs) > 0 {
		allowed := cfg.AllowedClientCNs
		tlsConfig.VerifyPeerCertificate = func(_ [][]byte, chains [][]*x509.Certificate) error {
			if len(chains) == 0 && !cfg.RequireClientCert {
				return nil
			}
			return verifyAllowedClientCN(chains, allowed)
		}
	}
	return nil
}

func appendCAFiles(pool *x509.CertPool, files []string, method string) error {
	for _, caFile := range files {
		caPEM, err := os.ReadFile(caFile)
		if err != nil {
			return errors.WrapFatal(err, "tlsutil", method, fmt.Sprintf("read CA file %s", caFile))
		}
		if !pool.AppendCertsFromPEM(caPEM) {
			return errors.WrapFatal(fmt.Errorf("invalid PEM data"), "tlsutil", method,
				fmt.Sprintf("parse CA certificate from %s", caFile))
		}
	}
	return nil
}

func verifyAllowedClientCN(chains [][]*x509.Certificate, allowedCNs []string) error {
	if len(chains) == 0 || len(chains[0]) == 0 {
		return fmt.Errorf("no verified certificate chains")
	}

	cn := chains[0][0].Subject.CommonName
	for _, allowed := range allowedCNs {
		if cn == allowed {
			return nil
		}
	}
	return fmt.Errorf("client certificate CN %q not in allowed list", cn)
}

// parseTLSVersion defaults to TLS 1.2
func parseTLSVersion(version string) uint16 {
	if version == "1.3" {
		return tls.VersionTLS13
	}
	return tls.VersionTLS12
}
