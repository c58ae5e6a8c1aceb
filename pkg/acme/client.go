// Package acme obtains and renews the gateway's server certificate from an
// ACME directory (for example step-ca).
package acme

import (
	"context"
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/go-acme/lego/v4/certcrypto"
	"github.com/go-acme/lego/v4/certificate"
	"github.com/go-acme/lego/v4/challenge/http01"
	"github.com/go-acme/lego/v4/challenge/tlsalpn01"
	"github.com/go-acme/lego/v4/lego"
	"github.com/go-acme/lego/v4/registration"

	"github.com/c360/metaquery/errors"
)

// Challenge types
const (
	ChallengeHTTP01    = "http-01"
	ChallengeTLSALPN01 = "tls-alpn-01"
)

const (
	accountFile = "account.json"
	accountKey  = "account.key"
	certFile    = "certificate.pem"
	certKeyFile = "certificate.key"
)

// Config holds ACME client configuration
type Config struct {
	DirectoryURL  string        `json:"directory_url"            yaml:"directory_url"`
	Email         string        `json:"email"                    yaml:"email"`
	Domains       []string      `json:"domains"                  yaml:"domains"`
	ChallengeType string        `json:"challenge_type,omitempty" yaml:"challenge_type,omitempty"`
	RenewBefore   time.Duration `json:"renew_before,omitempty"   yaml:"renew_before,omitempty"`
	StoragePath   string        `json:"storage_path"             yaml:"storage_path"`
	CABundle      string        `json:"ca_bundle,omitempty"      yaml:"ca_bundle,omitempty"`
}

// Validate checks the configuration and fills defaults
func (c *Config) Validate() error {
	if c.DirectoryURL == "" {
		return errors.WrapInvalid(fmt.Errorf("directory_url is required"), "acme.Config", "Validate", "check directory URL")
	}
	if c.Email == "" {
		return errors.WrapInvalid(fmt.Errorf("email is required"), "acme.Config", "Validate", "check email")
	}
	if len(c.Domains) == 0 {
		return errors.WrapInvalid(fmt.Errorf("at least one domain is required"), "acme.Config", "Validate", "check domains")
	}
	switch c.ChallengeType {
	case "":
		c.ChallengeType = ChallengeHTTP01
	case ChallengeHTTP01, ChallengeTLSALPN01:
	default:
		return errors.WrapInvalid(fmt.Errorf("challenge_type must be 'http-01' or 'tls-alpn-01'"),
			"acme.Config", "Validate", "check challenge type")
	}
	if c.StoragePath == "" {
		return errors.WrapInvalid(fmt.Errorf("storage_path is required"), "acme.Config", "Validate", "check storage path")
	}
	if c.RenewBefore <= 0 {
		c.RenewBefore = 8 * time.Hour
	}
	return nil
}

// Account is the persisted ACME account
type Account struct {
	Email        string                 `json:"email"`
	Registration *registration.Resource `json:"registration"`
	key          crypto.PrivateKey
}

// GetEmail implements registration.User
func (a *Account) GetEmail() string { return a.Email }

// GetRegistration implements registration.User
func (a *Account) GetRegistration() *registration.Resource { return a.Registration }

// GetPrivateKey implements registration.User
func (a *Account) GetPrivateKey() crypto.PrivateKey { return a.key }

// Client manages the certificate lifecycle. Certificates and the account
// are kept under StoragePath so restarts reuse them.
type Client struct {
	config     Config
	logger     *slog.Logger
	legoClient *lego.Client
	account    *Account
}

// NewClient validates cfg, loads or creates the account and registers it
// with the directory.
func NewClient(cfg Config, logger *slog.Logger) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(cfg.StoragePath, 0o700); err != nil {
		return nil, errors.WrapFatal(err, "acme.Client", "NewClient", "create storage directory")
	}

	c := &Client{
		config: cfg,
		logger: logger.With("component", "acme", "directory", cfg.DirectoryURL),
	}
	if err := c.loadOrCreateAccount(); err != nil {
		return nil, err
	}
	if err := c.initializeLegoClient(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Client) path(name string) string {
	return filepath.Join(c.config.StoragePath, name)
}

func (c *Client) loadOrCreateAccount() error {
	data, err := os.ReadFile(c.path(accountFile))
	switch {
	case err == nil:
		var account Account
		if err := json.Unmarshal(data, &account); err != nil {
			return errors.WrapFatal(err, "acme.Client", "loadOrCreateAccount", "unmarshal account")
		}
		keyData, err := os.ReadFile(c.path(accountKey))
		if err != nil {
			return errors.WrapFatal(err, "acme.Client", "loadOrCreateAccount", "read key file")
		}
		if account.key, err = certcrypto.ParsePEMPrivateKey(keyData); err != nil {
			return errors.WrapFatal(err, "acme.Client", "loadOrCreateAccount", "parse private key")
		}
		c.account = &account
		return nil

	case os.IsNotExist(err):
		key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
		if err != nil {
			return errors.WrapFatal(err, "acme.Client", "loadOrCreateAccount", "generate private key")
		}
		c.account = &Account{Email: c.config.Email, key: key}
		return c.saveAccount()

	default:
		return errors.WrapFatal(err, "acme.Client", "loadOrCreateAccount", "read account file")
	}
}

func (c *Client) saveAccount() error {
	data, err := json.MarshalIndent(c.account, "", "  ")
	if err != nil {
		return errors.WrapFatal(err, "acme.Client", "saveAccount", "marshal account")
	}
	if err := os.WriteFile(c.path(accountFile), data, 0o600); err != nil {
		return errors.WrapFatal(err, "acme.Client", "saveAccount", "write account file")
	}
	if err := os.WriteFile(c.path(accountKey), certcrypto.PEMEncode(c.account.key), 0o600); err != nil {
		return errors.WrapFatal(err, "acme.Client", "saveAccount", "write key file")
	}
	return nil
}

func (c *Client) initializeLegoClient() error {
	config := lego.NewConfig(c.account)
	config.CADirURL = c.config.DirectoryURL
	config.Certificate.KeyType = certcrypto.EC256

	if c.config.CABundle != "" {
		caCert, err := os.ReadFile(c.config.CABundle)
		if err != nil {
			return errors.WrapFatal(err, "acme.Client", "initializeLegoClient", "read CA bundle")
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caCert) {
			return errors.WrapFatal(fmt.Errorf("no certificates in %s", c.config.CABundle),
				"acme.Client", "initializeLegoClient", "parse CA bundle")
		}
		config.HTTPClient = &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{RootCAs: pool, MinVersion: tls.VersionTLS12},
			},
		}
	}

	client, err := lego.NewClient(config)
	if err != nil {
		return errors.WrapTransient(err, "acme.Client", "initializeLegoClient", "create lego client")
	}

	switch c.config.ChallengeType {
	case ChallengeHTTP01:
		err = client.Challenge.SetHTTP01Provider(http01.NewProviderServer("", "80"))
	case ChallengeTLSALPN01:
		err = client.Challenge.SetTLSALPN01Provider(tlsalpn01.NewProviderServer("", "443"))
	}
	if err != nil {
		return errors.WrapFatal(err, "acme.Client", "initializeLegoClient", "set up "+c.config.ChallengeType+" challenge")
	}

	if c.account.Registration == nil {
		reg, err := client.Registration.Register(registration.RegisterOptions{TermsOfServiceAgreed: true})
		if err != nil {
			return errors.WrapTransient(err, "acme.Client", "initializeLegoClient", "register account")
		}
		c.account.Registration = reg
		if err := c.saveAccount(); err != nil {
			return err
		}
		c.logger.Info("ACME account registered", "email", c.account.Email)
	}

	c.legoClient = client
	return nil
}

// ObtainCertificate requests a new certificate for the configured domains
func (c *Client) ObtainCertificate(_ context.Context) (*tls.Certificate, error) {
	res, err := c.legoClient.Certificate.Obtain(certificate.ObtainRequest{
		Domains: c.config.Domains,
		Bundle:  true,
	})
	if err != nil {
		return nil, errors.WrapTransient(err, "acme.Client", "ObtainCertificate", "obtain certificate")
	}
	cert, err := c.store(res.Certificate, res.PrivateKey)
	if err != nil {
		return nil, err
	}
	c.logger.Info("Certificate obtained", "domains", c.config.Domains)
	return cert, nil
}

// store persists a PEM pair and parses it.
func (c *Client) store(certPEM, keyPEM []byte) (*tls.Certificate, error) {
	if err := os.WriteFile(c.path(certFile), certPEM, 0o644); err != nil {
		return nil, errors.WrapFatal(err, "acme.Client", "store", "write certificate")
	}
	if err := os.WriteFile(c.path(certKeyFile), keyPEM, 0o600); err != nil {
		return nil, errors.WrapFatal(err, "acme.Client", "store", "write private key")
	}
	cert, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		return nil, errors.WrapFatal(err, "acme.Client", "store", "load certificate")
	}
	return &cert, nil
}

// StoredCertificate loads the persisted certificate. It returns nil when
// none has been obtained yet.
func (c *Client) StoredCertificate() (*tls.Certificate, *x509.Certificate, error) {
	if _, err := os.Stat(c.path(certFile)); os.IsNotExist(err) {
		return nil, nil, nil
	}
	cert, err := tls.LoadX509KeyPair(c.path(certFile), c.path(certKeyFile))
	if err != nil {
		return nil, nil, errors.WrapFatal(err, "acme.Client", "StoredCertificate", "load certificate")
	}
	leaf, err := x509.ParseCertificate(cert.Certificate[0])
	if err != nil {
		return nil, nil, errors.WrapFatal(err, "acme.Client", "StoredCertificate", "parse certificate")
	}
	return &cert, leaf, nil
}

// NeedsRenewal reports whether leaf expires within the renewal window.
func (c *Client) NeedsRenewal(leaf *x509.Certificate, now time.Time) bool {
	return !now.Before(leaf.NotAfter.Add(-c.config.RenewBefore))
}

// RenewCertificateIfNeeded returns the stored certificate, renewing it
// first when it is inside the renewal window. It returns nil when no
// certificate is stored.
func (c *Client) RenewCertificateIfNeeded(_ context.Context) (*tls.Certificate, bool, error) {
	cert, leaf, err := c.StoredCertificate()
	if err != nil || cert == nil {
		return nil, false, err
	}
	if !c.NeedsRenewal(leaf, time.Now()) {
		return cert, false, nil
	}

	certPEM, err := os.ReadFile(c.path(certFile))
	if err != nil {
		return nil, false, errors.WrapFatal(err, "acme.Client", "RenewCertificateIfNeeded", "read certificate")
	}
	renewed, err := c.legoClient.Certificate.Renew(certificate.Resource{
		Domain:      c.config.Domains[0],
		Certificate: certPEM,
	}, true, false, "")
	if err != nil {
		return nil, false, errors.WrapTransient(err, "acme.Client", "RenewCertificateIfNeeded", "renew certificate")
	}

	cert, err = c.store(renewed.Certificate, renewed.PrivateKey)
	if err != nil {
		return nil, false, err
	}
	c.logger.Info("Certificate renewed", "domains", c.config.Domains)
	return cert, true, nil
}

// StartRenewalLoop checks for renewal every interval until ctx is done.
// Failures are logged and retried on the next tick.
func (c *Client) StartRenewalLoop(ctx context.Context, interval time.Duration, onRenewal func(*tls.Certificate)) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			cert, renewed, err := c.RenewCertificateIfNeeded(ctx)
			if err != nil {
				c.logger.Warn("Certificate renewal failed", "error", err)
				continue
			}
			if renewed && onRenewal != nil {
				onRenewal(cert)
			}
		}
	}
}
